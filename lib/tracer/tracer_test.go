package tracer

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-i2p/nostr-onion/lib/clock"
	"github.com/go-i2p/nostr-onion/lib/nostr"
	"github.com/go-i2p/nostr-onion/lib/onion"
	"github.com/go-i2p/nostr-onion/lib/relay"
	"github.com/go-i2p/nostr-onion/lib/route"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Unix(1700000000, 0)

type fakeSub struct {
	ch      chan *nostr.Event
	once    sync.Once
	relays  []string
	filters nostr.Filters
}

func (f *fakeSub) Events() <-chan *nostr.Event { return f.ch }

func (f *fakeSub) Close() { f.once.Do(func() { close(f.ch) }) }

type fakeSubscriber struct {
	sub *fakeSub
}

func (f *fakeSubscriber) Subscribe(_ context.Context, relays []string, filters nostr.Filters) (Subscription, error) {
	f.sub = &fakeSub{ch: make(chan *nostr.Event, 16), relays: relays, filters: filters}
	return f.sub, nil
}

type fixture struct {
	hops  []route.TestHop
	route *route.Route
	onion *onion.Onion
	// layers[i] is the event addressed to hop i
	layers []*nostr.Event
}

func newFixture(t *testing.T, n int, withRelays bool) *fixture {
	t.Helper()
	return newFixtureOfKind(t, n, withRelays, nostr.KindTextNote)
}

func newFixtureOfKind(t *testing.T, n int, withRelays bool, kind int) *fixture {
	t.Helper()
	hops, err := route.NewTestHops(n)
	require.NoError(t, err)
	r := &route.Route{}
	for i, h := range hops {
		hop := route.Hop{Pubkey: h.Pubkey, Fee: 1, Paid: 1, Token: "cashuAx",
			Expiration: nostr.FromTime(testNow.Add(time.Duration(i+1) * time.Hour))}
		if withRelays {
			hop.Relay = "wss://hop" + strconv.Itoa(i) + ".example"
		}
		require.NoError(t, r.AppendHop(hop))
	}

	sk, err := nostr.GeneratePrivateKey()
	require.NoError(t, err)
	payload := &nostr.Event{Kind: kind, CreatedAt: nostr.FromTime(testNow), Content: "hello"}
	require.NoError(t, nostr.Sign(payload, sk))

	o, err := onion.NewEncoder(onion.WithClock(clock.Fixed(testNow))).Encode(payload, r)
	require.NoError(t, err)

	f := &fixture{hops: hops, route: r, onion: o}
	layer := o.Outer
	for _, h := range hops {
		f.layers = append(f.layers, layer)
		peeled, err := onion.Peel(layer, h.SecretKey, nil)
		require.NoError(t, err)
		layer = peeled.Inner
	}
	return f
}

func collect(t *testing.T, tr *Trace) []Progress {
	t.Helper()
	var out []Progress
	timeout := time.After(5 * time.Second)
	for {
		select {
		case p, ok := <-tr.Progress():
			if !ok {
				return out
			}
			out = append(out, p)
		case <-timeout:
			t.Fatal("progress channel never closed")
		}
	}
}

func TestOutOfOrderArrivals(t *testing.T) {
	f := newFixture(t, 3, true)
	names := map[string]string{f.hops[0].Pubkey: "alice", f.hops[1].Pubkey: "bob", f.hops[2].Pubkey: "carol"}
	subscriber := &fakeSubscriber{}
	tracer := New(subscriber, WithNamer(func(pk string) string { return names[pk] }))

	tr, err := tracer.Start(context.Background(), f.route, f.onion, []string{"wss://outbox.example"})
	require.NoError(t, err)
	assert.Equal(t, Waiting, tr.State())
	assert.ElementsMatch(t, []string{"wss://hop0.example", "wss://hop1.example", "wss://hop2.example", "wss://outbox.example"}, subscriber.sub.relays)
	require.Len(t, subscriber.sub.filters, 1)
	assert.ElementsMatch(t, append(f.onion.IDs(), f.onion.Payload.ID), subscriber.sub.filters[0].IDs)

	unrelated := &nostr.Event{ID: strings.Repeat("ab", 32), Kind: nostr.KindTextNote}
	for _, evt := range []*nostr.Event{f.layers[2], f.layers[0], unrelated, f.layers[1], f.layers[0], f.onion.Payload} {
		subscriber.sub.ch <- evt
	}

	progress := collect(t, tr)
	require.Len(t, progress, 4)
	assert.Equal(t, []int{2, 0, 1, -1}, []int{progress[0].Hop, progress[1].Hop, progress[2].Hop, progress[3].Hop})
	assert.Equal(t, "Onion reached carol", progress[0].Message())
	assert.Equal(t, "Onion reached alice", progress[1].Message())
	assert.True(t, progress[3].Delivered)

	c, err := tr.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, f.onion.Payload.ID, c.PayloadID)
	assert.True(t, strings.HasPrefix(c.Nevent, "nevent1"))
	assert.Equal(t, "https://nostrudel.ninja/#/l/"+c.Nevent, c.URL)
	assert.Equal(t, Closed, tr.State())
	assert.Equal(t, []int{0, 1, 2}, tr.Reached())
	assert.Len(t, tr.History(), 4)
}

func TestConfirmsPayloadOfAnyKind(t *testing.T) {
	f := newFixtureOfKind(t, 1, false, 30023)
	subscriber := &fakeSubscriber{}
	tr, err := New(subscriber).Start(context.Background(), f.route, f.onion, []string{"wss://outbox.example"})
	require.NoError(t, err)

	subscriber.sub.ch <- f.layers[0]
	subscriber.sub.ch <- f.onion.Payload

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := tr.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, f.onion.Payload.ID, c.PayloadID)
	assert.Equal(t, []int{0}, tr.Reached())
}

func TestIgnoresLayerWithWrongRecipient(t *testing.T) {
	f := newFixture(t, 2, false)
	subscriber := &fakeSubscriber{}
	tr, err := New(subscriber).Start(context.Background(), f.route, f.onion, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"wss://nostrue.com"}, tr.Relays())

	forged := *f.layers[1]
	forged.Tags = nostr.Tags{{"p", f.hops[0].Pubkey}}
	subscriber.sub.ch <- &forged
	subscriber.sub.ch <- f.layers[0]
	subscriber.sub.ch <- f.onion.Payload

	progress := collect(t, tr)
	require.Len(t, progress, 2)
	assert.Equal(t, 0, progress[0].Hop)
	assert.Equal(t, []int{0}, tr.Reached())
}

func TestHistoryIsBounded(t *testing.T) {
	f := newFixture(t, 3, false)
	subscriber := &fakeSubscriber{}
	tr, err := New(subscriber, WithHistory(2)).Start(context.Background(), f.route, f.onion, nil)
	require.NoError(t, err)
	for _, l := range f.layers {
		subscriber.sub.ch <- l
	}
	subscriber.sub.ch <- f.onion.Payload
	collect(t, tr)

	h := tr.History()
	require.Len(t, h, 2)
	assert.Equal(t, 2, h[0].Hop)
	assert.True(t, h[1].Delivered)
}

func TestWaitAbandoned(t *testing.T) {
	f := newFixture(t, 1, false)
	subscriber := &fakeSubscriber{}

	t.Run("wait context", func(t *testing.T) {
		tr, err := New(subscriber).Start(context.Background(), f.route, f.onion, nil)
		require.NoError(t, err)
		defer tr.Stop()
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = tr.Wait(ctx)
		assert.ErrorIs(t, err, ErrTracingAbandoned)
		assert.Equal(t, Waiting, tr.State())
	})

	t.Run("trace context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		tr, err := New(subscriber).Start(ctx, f.route, f.onion, nil)
		require.NoError(t, err)
		cancel()
		_, err = tr.Wait(context.Background())
		assert.ErrorIs(t, err, ErrTracingAbandoned)
		assert.Equal(t, Closed, tr.State())
	})

	t.Run("subscription ends", func(t *testing.T) {
		tr, err := New(subscriber).Start(context.Background(), f.route, f.onion, nil)
		require.NoError(t, err)
		subscriber.sub.Close()
		_, err = tr.Wait(context.Background())
		assert.ErrorIs(t, err, ErrSubscriptionEnded)
	})
}

func TestStartRejectsEmptyOnion(t *testing.T) {
	_, err := New(&fakeSubscriber{}).Start(context.Background(), &route.Route{}, &onion.Onion{}, nil)
	assert.ErrorIs(t, err, ErrNothingToTrace)
}

func TestTraceThroughRelay(t *testing.T) {
	rel := relay.NewTestRelay()
	defer rel.Close()
	pool := relay.NewPool(relay.WithDialTimeout(2*time.Second), relay.WithPublishTimeout(2*time.Second))
	defer pool.Close()

	f := newFixture(t, 2, false)
	tr, err := New(PoolSubscriber{Pool: pool}).Start(context.Background(), f.route, f.onion, []string{rel.URL()})
	require.NoError(t, err)

	ctx := context.Background()
	for _, evt := range []*nostr.Event{f.layers[0], f.layers[1], f.onion.Payload} {
		_, err := pool.Publish(ctx, []string{rel.URL()}, evt)
		require.NoError(t, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	c, err := tr.Wait(waitCtx)
	require.NoError(t, err)
	assert.Equal(t, f.onion.Payload.ID, c.PayloadID)
	assert.Equal(t, []int{0, 1}, tr.Reached())
}
