package clock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/beevik/ntp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockNTPClient struct {
	responses map[string]*ntp.Response
	queried   []string
}

func (m *mockNTPClient) QueryWithOptions(host string, _ ntp.QueryOptions) (*ntp.Response, error) {
	m.queried = append(m.queried, host)
	if resp, ok := m.responses[host]; ok {
		return resp, nil
	}
	return nil, errors.New("timeout")
}

func goodResponse(offset time.Duration) *ntp.Response {
	return &ntp.Response{
		Time:        time.Now(),
		ClockOffset: offset,
		RTT:         20 * time.Millisecond,
		Stratum:     2,
	}
}

func TestNTPClockSync(t *testing.T) {
	client := &mockNTPClient{responses: map[string]*ntp.Response{
		"bad":  {Time: time.Now(), Stratum: 0},
		"good": goodResponse(90 * time.Second),
	}}
	c := NewNTPClock(client, []string{"down", "bad", "good"}, time.Second)

	_, synced := c.Offset()
	assert.False(t, synced)

	require.NoError(t, c.Sync(context.Background()))
	assert.Equal(t, []string{"down", "bad", "good"}, client.queried)

	offset, synced := c.Offset()
	assert.True(t, synced)
	assert.Equal(t, 90*time.Second, offset)
	assert.WithinDuration(t, time.Now().Add(90*time.Second), c.Now(), time.Second)
}

func TestNTPClockAllServersFail(t *testing.T) {
	c := NewNTPClock(&mockNTPClient{}, []string{"a", "b"}, time.Second)
	assert.Error(t, c.Sync(context.Background()))
	assert.WithinDuration(t, time.Now(), c.Now(), time.Second, "falls back to system time")

	assert.Error(t, NewNTPClock(&mockNTPClient{}, nil, time.Second).Sync(context.Background()))
}

func TestValidateResponse(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ntp.Response)
	}{
		{"leap not in sync", func(r *ntp.Response) { r.Leap = ntp.LeapNotInSync }},
		{"stratum too high", func(r *ntp.Response) { r.Stratum = 16 }},
		{"rtt too long", func(r *ntp.Response) { r.RTT = 3 * time.Second }},
		{"offset too large", func(r *ntp.Response) { r.ClockOffset = -time.Hour }},
		{"zero time", func(r *ntp.Response) { r.Time = time.Time{} }},
		{"root delay", func(r *ntp.Response) { r.RootDelay = 2 * time.Second }},
	}
	require.NoError(t, validateResponse(goodResponse(0)))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := goodResponse(0)
			tt.mutate(resp)
			assert.Error(t, validateResponse(resp))
		})
	}
}

func TestFixedClock(t *testing.T) {
	at := time.Unix(1700000000, 0)
	assert.Equal(t, at, Fixed(at).Now())
}
