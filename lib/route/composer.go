package route

import (
	"context"
	"math/rand"
	"time"

	"github.com/go-i2p/logger"
	"github.com/go-i2p/nostr-onion/lib/cashu"
	"github.com/go-i2p/nostr-onion/lib/clock"
	"github.com/go-i2p/nostr-onion/lib/mailbox"
	"github.com/go-i2p/nostr-onion/lib/nostr"
	"github.com/samber/oops"
)

var log = logger.GetGoI2PLogger()

// Config controls hop expiration spacing.
type Config struct {
	// BaseInterval is added to the previous expiration for every hop. Values
	// under one second are raised to one second.
	BaseInterval time.Duration
	// Jitter bounds the random extra time on top of BaseInterval.
	Jitter time.Duration
}

// DefaultConfig spaces hops 10 to 15 minutes apart.
func DefaultConfig() Config {
	return Config{BaseInterval: 10 * time.Minute, Jitter: 5 * time.Minute}
}

// Composer builds a Route one hop at a time, splitting each hop's fee off
// the pool it owns.
type Composer struct {
	pool     *cashu.TokenPool
	resolver mailbox.Resolver
	rng      *rand.Rand
	clock    clock.Clock
	cfg      Config

	hops     []Hop
	previous nostr.Timestamp
	finished bool
}

// NewComposer takes ownership of pool. resolver may be nil, in which case no
// relay hints are assigned.
func NewComposer(pool *cashu.TokenPool, resolver mailbox.Resolver, rng *rand.Rand, clk clock.Clock, cfg Config) *Composer {
	if clk == nil {
		clk = clock.System{}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(clk.Now().UnixNano()))
	}
	return &Composer{
		pool:     pool,
		resolver: resolver,
		rng:      rng,
		clock:    clk,
		cfg:      cfg,
		previous: nostr.FromTime(clk.Now()),
	}
}

// Remaining is the value left for further hops.
func (c *Composer) Remaining() uint64 {
	return c.pool.Total()
}

// Done reports whether the pool is exhausted.
func (c *Composer) Done() bool {
	return c.Remaining() == 0
}

// Hops returns the hops added so far.
func (c *Composer) Hops() []Hop {
	return append([]Hop(nil), c.hops...)
}

// Add appends a hop paid with sel.Fee. The fee is checked before anything
// else so an invalid selection never touches the pool.
func (c *Composer) Add(ctx context.Context, sel Selection) (*Hop, error) {
	if c.finished {
		return nil, ErrComposerClosed
	}
	remaining := c.Remaining()
	if remaining == 0 {
		return nil, ErrPoolExhausted
	}
	if sel.Fee < 1 || sel.Fee > remaining {
		return nil, oops.In("route").With("fee", sel.Fee).With("remaining", remaining).Wrapf(ErrInvalidFee, "hop %d", len(c.hops))
	}
	if !nostr.IsValidPublicKey(sel.Pubkey) {
		return nil, oops.Wrapf(nostr.ErrInvalidPublicKey, "hop %d: %q", len(c.hops), sel.Pubkey)
	}

	relay := c.pickRelay(ctx, sel.Pubkey)
	expiration := c.nextExpiration()

	spend, change, err := c.pool.Split(ctx, sel.Fee)
	if err != nil {
		return nil, oops.Wrapf(err, "payment for hop %d", len(c.hops))
	}
	token, err := spend.Token()
	if err != nil {
		return nil, oops.Wrapf(err, "payment token for hop %d", len(c.hops))
	}
	c.pool = change
	c.previous = expiration

	hop := Hop{
		Pubkey:     sel.Pubkey,
		Fee:        sel.Fee,
		Paid:       spend.Total(),
		Payment:    spend,
		Token:      token,
		Relay:      relay,
		Expiration: expiration,
	}
	c.hops = append(c.hops, hop)

	log.WithFields(logger.Fields{
		"at":         "Composer.Add",
		"hop":        len(c.hops) - 1,
		"pubkey":     sel.Pubkey,
		"fee":        sel.Fee,
		"paid":       hop.Paid,
		"relay":      relay,
		"expiration": int64(expiration),
		"remaining":  c.Remaining(),
	}).Debug("added hop")
	return &c.hops[len(c.hops)-1], nil
}

// Unspent gathers what the composer still holds: the remaining pool plus
// the payments of the hops added so far. Use it to recover funds when
// composing fails part way.
func (c *Composer) Unspent() *cashu.TokenPool {
	pools := []*cashu.TokenPool{c.pool}
	for _, h := range c.hops {
		pools = append(pools, h.Payment)
	}
	return mergePools(pools)
}

// Finish returns the route with the remaining pool as change.
func (c *Composer) Finish() (*Route, error) {
	if c.finished {
		return nil, ErrComposerClosed
	}
	if len(c.hops) == 0 {
		return nil, ErrEmptyRoute
	}
	c.finished = true
	return &Route{Hops: c.hops, Change: c.pool}, nil
}

// Compose adds every selection in order and finishes the route. Selections
// left over after the pool runs out fail with ErrPoolExhausted.
func (c *Composer) Compose(ctx context.Context, sels []Selection) (*Route, error) {
	for _, sel := range sels {
		if _, err := c.Add(ctx, sel); err != nil {
			return nil, err
		}
	}
	return c.Finish()
}

// nextExpiration draws previous + base + [0, jitter] in whole seconds.
func (c *Composer) nextExpiration() nostr.Timestamp {
	base := int64(c.cfg.BaseInterval / time.Second)
	if base < 1 {
		base = 1
	}
	var extra int64
	if jitter := int64(c.cfg.Jitter / time.Second); jitter > 0 {
		extra = c.rng.Int63n(jitter + 1)
	}
	return c.previous + nostr.Timestamp(base+extra)
}

// pickRelay chooses one inbox of pubkey uniformly at random. Lookup failures
// only cost the hint.
func (c *Composer) pickRelay(ctx context.Context, pubkey string) string {
	if c.resolver == nil {
		return ""
	}
	m, err := c.resolver.Resolve(ctx, pubkey)
	if err != nil {
		log.WithError(err).WithField("pubkey", pubkey).Warn("mailbox lookup failed, hop gets no relay hint")
		return ""
	}
	if len(m.Inboxes) == 0 {
		return ""
	}
	return m.Inboxes[c.rng.Intn(len(m.Inboxes))]
}
