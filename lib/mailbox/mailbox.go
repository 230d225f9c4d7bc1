// Package mailbox resolves the inbox and outbox relays of an identity from
// its kind 10002 relay list.
package mailbox

import (
	"context"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/go-i2p/logger"
	"github.com/go-i2p/nostr-onion/lib/nostr"
	"github.com/go-i2p/nostr-onion/lib/relay"
	lru "github.com/hashicorp/golang-lru"
	"github.com/samber/oops"
)

var log = logger.GetGoI2PLogger()

const cacheSize = 256

// Mailboxes are the relays an identity reads from (inboxes) and writes to
// (outboxes). Either may be empty.
type Mailboxes struct {
	Inboxes  []string
	Outboxes []string
}

// IsEmpty reports whether no relays are known.
func (m Mailboxes) IsEmpty() bool {
	return len(m.Inboxes) == 0 && len(m.Outboxes) == 0
}

// Resolver looks up the mailboxes of a hex public key.
type Resolver interface {
	Resolve(ctx context.Context, pubkey string) (Mailboxes, error)
}

// Querier fetches the newest event matching a filter.
// *relay.Pool implements it.
type Querier interface {
	QuerySingle(ctx context.Context, urls []string, filter nostr.Filter) (*nostr.Event, error)
}

// ParseRelayList extracts mailboxes from a kind 10002 event. An r tag
// without a marker counts as both inbox and outbox.
func ParseRelayList(evt *nostr.Event) Mailboxes {
	if evt == nil || evt.Kind != nostr.KindRelayList {
		return Mailboxes{}
	}
	inboxes := mapset.NewThreadUnsafeSet[string]()
	outboxes := mapset.NewThreadUnsafeSet[string]()
	var m Mailboxes
	for _, tag := range evt.Tags.FindAll("r") {
		u := relay.NormalizeURL(tag[1])
		if u == "" {
			continue
		}
		marker := ""
		if len(tag) > 2 {
			marker = tag[2]
		}
		if (marker == "" || marker == "read") && inboxes.Add(u) {
			m.Inboxes = append(m.Inboxes, u)
		}
		if (marker == "" || marker == "write") && outboxes.Add(u) {
			m.Outboxes = append(m.Outboxes, u)
		}
	}
	return m
}

// RelayListResolver queries directory relays for relay lists and caches
// the results.
type RelayListResolver struct {
	querier   Querier
	directory []string
	timeout   time.Duration
	cache     *lru.Cache
}

// NewRelayListResolver returns a resolver that asks the given directory relays.
func NewRelayListResolver(q Querier, directory []string, timeout time.Duration) *RelayListResolver {
	cache, _ := lru.New(cacheSize)
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &RelayListResolver{
		querier:   q,
		directory: directory,
		timeout:   timeout,
		cache:     cache,
	}
}

// Resolve returns the mailboxes of pubkey. A missing relay list yields
// empty mailboxes, not an error.
func (r *RelayListResolver) Resolve(ctx context.Context, pubkey string) (Mailboxes, error) {
	if v, ok := r.cache.Get(pubkey); ok {
		return v.(Mailboxes), nil
	}
	qctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	evt, err := r.querier.QuerySingle(qctx, r.directory, nostr.Filter{
		Kinds:   []int{nostr.KindRelayList},
		Authors: []string{pubkey},
		Limit:   1,
	})
	if err != nil {
		return Mailboxes{}, oops.In("mailbox").With("pubkey", pubkey).Wrapf(err, "relay list lookup failed")
	}
	m := ParseRelayList(evt)
	r.cache.Add(pubkey, m)

	log.WithFields(logger.Fields{
		"at":       "RelayListResolver.Resolve",
		"pubkey":   pubkey,
		"inboxes":  len(m.Inboxes),
		"outboxes": len(m.Outboxes),
	}).Debug("resolved mailboxes")
	return m, nil
}

// Static resolves from a fixed table.
type Static map[string]Mailboxes

// Resolve returns the table entry for pubkey.
func (s Static) Resolve(_ context.Context, pubkey string) (Mailboxes, error) {
	return s[pubkey], nil
}

// Chain tries each resolver in order and returns the first non-empty result.
// Errors are only returned when every resolver failed.
type Chain []Resolver

// Resolve implements Resolver.
func (c Chain) Resolve(ctx context.Context, pubkey string) (Mailboxes, error) {
	var lastErr error
	failures := 0
	for _, r := range c {
		m, err := r.Resolve(ctx, pubkey)
		if err != nil {
			lastErr = err
			failures++
			continue
		}
		if !m.IsEmpty() {
			return m, nil
		}
	}
	if failures == len(c) && lastErr != nil {
		return Mailboxes{}, lastErr
	}
	return Mailboxes{}, nil
}
