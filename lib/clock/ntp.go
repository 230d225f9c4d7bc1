package clock

import (
	"context"
	"sync"
	"time"

	"github.com/beevik/ntp"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

const (
	maxRTT            = 2 * time.Second
	maxClockOffset    = 10 * time.Minute
	maxRootDispersion = 1 * time.Second
	maxRootDelay      = 1 * time.Second
)

// NTPClient performs a single NTP query.
type NTPClient interface {
	QueryWithOptions(host string, options ntp.QueryOptions) (*ntp.Response, error)
}

// DefaultNTPClient queries real servers through beevik/ntp.
type DefaultNTPClient struct{}

func (DefaultNTPClient) QueryWithOptions(host string, options ntp.QueryOptions) (*ntp.Response, error) {
	return ntp.QueryWithOptions(host, options)
}

// NTPClock is the system clock shifted by the offset measured in the last
// successful Sync.
type NTPClock struct {
	client  NTPClient
	servers []string
	timeout time.Duration

	mu     sync.RWMutex
	offset time.Duration
	synced bool
}

// NewNTPClock returns an unsynchronized clock. Until Sync succeeds it reports
// system time.
func NewNTPClock(client NTPClient, servers []string, timeout time.Duration) *NTPClock {
	if client == nil {
		client = DefaultNTPClient{}
	}
	return &NTPClock{client: client, servers: servers, timeout: timeout}
}

// Now returns the corrected time.
func (c *NTPClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Now().Add(c.offset)
}

// Offset returns the last measured offset and whether one was measured.
func (c *NTPClock) Offset() (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset, c.synced
}

// Sync queries servers in order until one gives a valid answer.
func (c *NTPClock) Sync(ctx context.Context) error {
	if len(c.servers) == 0 {
		return oops.Errorf("no NTP servers configured")
	}
	var lastErr error
	for _, server := range c.servers {
		if err := ctx.Err(); err != nil {
			return err
		}
		resp, err := c.client.QueryWithOptions(server, ntp.QueryOptions{Timeout: c.timeout})
		if err != nil {
			log.WithError(err).WithField("server", server).Debug("NTP query failed")
			lastErr = err
			continue
		}
		if err := validateResponse(resp); err != nil {
			log.WithError(err).WithField("server", server).Debug("NTP response failed validation")
			lastErr = err
			continue
		}
		c.mu.Lock()
		c.offset = resp.ClockOffset
		c.synced = true
		c.mu.Unlock()
		log.WithFields(logger.Fields{
			"at":     "NTPClock.Sync",
			"server": server,
			"offset": resp.ClockOffset.String(),
		}).Debug("clock synchronized")
		return nil
	}
	return oops.In("clock").With("servers", c.servers).Wrapf(lastErr, "no NTP server answered")
}

// validateResponse rejects unsynchronized servers and implausible measurements.
func validateResponse(resp *ntp.Response) error {
	if resp.Leap == ntp.LeapNotInSync {
		return oops.Errorf("server clock not synchronized")
	}
	if resp.Stratum == 0 || resp.Stratum > 15 {
		return oops.Errorf("stratum %d out of range", resp.Stratum)
	}
	if resp.RTT < 0 || resp.RTT > maxRTT {
		return oops.Errorf("round-trip delay %v out of bounds", resp.RTT)
	}
	if absDuration(resp.ClockOffset) > maxClockOffset {
		return oops.Errorf("clock offset %v out of bounds", resp.ClockOffset)
	}
	if resp.Time.IsZero() {
		return oops.Errorf("zero time")
	}
	if resp.RootDispersion > maxRootDispersion || resp.RootDelay > maxRootDelay {
		return oops.Errorf("root dispersion %v or delay %v too high", resp.RootDispersion, resp.RootDelay)
	}
	return nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
