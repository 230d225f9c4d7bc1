package tracer

import (
	"context"

	"github.com/go-i2p/nostr-onion/lib/nostr"
	"github.com/go-i2p/nostr-onion/lib/relay"
)

// Subscription is a live stream of matching events.
type Subscription interface {
	Events() <-chan *nostr.Event
	Close()
}

// Subscriber opens subscriptions on a set of relays.
type Subscriber interface {
	Subscribe(ctx context.Context, relays []string, filters nostr.Filters) (Subscription, error)
}

// PoolSubscriber subscribes through a relay pool.
type PoolSubscriber struct {
	Pool *relay.Pool
}

func (p PoolSubscriber) Subscribe(ctx context.Context, relays []string, filters nostr.Filters) (Subscription, error) {
	sub, err := p.Pool.SubscribeMany(ctx, relays, filters)
	if err != nil {
		return nil, err
	}
	return sub, nil
}
