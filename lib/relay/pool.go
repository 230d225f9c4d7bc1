package relay

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/go-i2p/logger"
	"github.com/go-i2p/nostr-onion/lib/nostr"
	"github.com/gorilla/websocket"
	lru "github.com/hashicorp/golang-lru"
	"github.com/samber/oops"
	"golang.org/x/sync/errgroup"
)

const (
	seenCacheSize     = 4096
	maxParallelRelays = 16
)

// Pool keeps one connection per relay URL.
type Pool struct {
	dialer         *websocket.Dialer
	dialTimeout    time.Duration
	publishTimeout time.Duration

	mu     sync.Mutex
	relays map[string]*Relay
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithDialTimeout bounds each websocket handshake.
func WithDialTimeout(d time.Duration) PoolOption {
	return func(p *Pool) { p.dialTimeout = d }
}

// WithPublishTimeout bounds the wait for each relay's OK.
func WithPublishTimeout(d time.Duration) PoolOption {
	return func(p *Pool) { p.publishTimeout = d }
}

// WithDialer replaces the default websocket dialer.
func WithDialer(d *websocket.Dialer) PoolOption {
	return func(p *Pool) { p.dialer = d }
}

// NewPool returns an empty pool. Connections are made on first use.
func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{
		dialTimeout:    10 * time.Second,
		publishTimeout: 10 * time.Second,
		relays:         make(map[string]*Relay),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NormalizeURL lowercases scheme and host, strips a trailing slash and
// defaults to wss:// when no scheme is given.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "wss://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	switch strings.ToLower(u.Scheme) {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return ""
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimRight(u.Path, "/")
	return u.String()
}

// NormalizeURLs normalizes and deduplicates urls, dropping invalid ones.
func NormalizeURLs(urls []string) []string {
	set := mapset.NewThreadUnsafeSet[string]()
	out := make([]string, 0, len(urls))
	for _, raw := range urls {
		if u := NormalizeURL(raw); u != "" && set.Add(u) {
			out = append(out, u)
		}
	}
	return out
}

// EnsureRelay returns a live connection to url, dialing if needed.
func (p *Pool) EnsureRelay(ctx context.Context, rawURL string) (*Relay, error) {
	u := NormalizeURL(rawURL)
	if u == "" {
		return nil, oops.Errorf("invalid relay url %q", rawURL)
	}

	p.mu.Lock()
	r, ok := p.relays[u]
	p.mu.Unlock()
	if ok && r.IsConnected() {
		return r, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, p.dialTimeout)
	defer cancel()
	r, err := Connect(dialCtx, u, p.dialer)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if existing, ok := p.relays[u]; ok && existing.IsConnected() {
		p.mu.Unlock()
		_ = r.Close()
		return existing, nil
	}
	p.relays[u] = r
	p.mu.Unlock()
	return r, nil
}

// Publish sends evt to every url in parallel and returns the relays that
// accepted it. It fails with ErrPublishFailure only when none did.
func (p *Pool) Publish(ctx context.Context, urls []string, evt *nostr.Event) ([]string, error) {
	urls = NormalizeURLs(urls)
	if len(urls) == 0 {
		return nil, oops.Wrapf(ErrPublishFailure, "%s", ErrNoRelays.Error())
	}

	var (
		mu       sync.Mutex
		accepted []string
		lastErr  error
	)
	var g errgroup.Group
	g.SetLimit(maxParallelRelays)
	for _, u := range urls {
		g.Go(func() error {
			err := p.publishOne(ctx, u, evt)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				lastErr = err
				log.WithFields(logger.Fields{
					"at":     "Pool.Publish",
					"reason": "relay_failed",
					"url":    u,
					"id":     evt.ID,
				}).WithError(err).Warn("publish failed on relay")
				return nil
			}
			accepted = append(accepted, u)
			return nil
		})
	}
	_ = g.Wait()

	if len(accepted) == 0 {
		if lastErr == nil {
			lastErr = ErrNoRelays
		}
		return nil, oops.In("relay").With("relays", urls).Wrapf(ErrPublishFailure, "%s", lastErr.Error())
	}
	log.WithFields(logger.Fields{
		"at":       "Pool.Publish",
		"id":       evt.ID,
		"accepted": accepted,
	}).Debug("event published")
	return accepted, nil
}

func (p *Pool) publishOne(ctx context.Context, u string, evt *nostr.Event) error {
	r, err := p.EnsureRelay(ctx, u)
	if err != nil {
		return err
	}
	pubCtx, cancel := context.WithTimeout(ctx, p.publishTimeout)
	defer cancel()
	return r.Publish(pubCtx, evt)
}

// Subscription merges one filter set across many relays. Duplicate events
// are delivered once.
type Subscription struct {
	events chan *nostr.Event
	eose   chan struct{}
	cancel context.CancelFunc
	subs   []*RelaySubscription
	relays []string

	closeOnce sync.Once
}

// Events is closed once every relay subscription has ended.
func (s *Subscription) Events() <-chan *nostr.Event { return s.events }

// EndOfStoredEvents is closed once every relay sent EOSE or ended.
func (s *Subscription) EndOfStoredEvents() <-chan struct{} { return s.eose }

// Relays lists the relays the subscription is open on.
func (s *Subscription) Relays() []string { return s.relays }

// Close ends the subscription on every relay.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		for _, sub := range s.subs {
			sub.Close()
		}
	})
}

// SubscribeMany opens filters on every reachable relay in urls. Unreachable
// relays are skipped; it fails only when none can be reached.
func (p *Pool) SubscribeMany(ctx context.Context, urls []string, filters nostr.Filters) (*Subscription, error) {
	urls = NormalizeURLs(urls)
	if len(urls) == 0 {
		return nil, ErrNoRelays
	}
	seen, err := lru.New(seenCacheSize)
	if err != nil {
		return nil, oops.Wrapf(err, "failed to create dedupe cache")
	}

	subCtx, cancel := context.WithCancel(ctx)
	ms := &Subscription{
		events: make(chan *nostr.Event, subEventsBacklog),
		eose:   make(chan struct{}),
		cancel: cancel,
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(maxParallelRelays)
	for _, u := range urls {
		g.Go(func() error {
			r, err := p.EnsureRelay(subCtx, u)
			if err != nil {
				log.WithFields(logger.Fields{
					"at":     "Pool.SubscribeMany",
					"reason": "relay_unreachable",
					"url":    u,
				}).WithError(err).Warn("skipping relay")
				return nil
			}
			sub, err := r.Subscribe(filters)
			if err != nil {
				log.WithError(err).WithField("url", u).Warn("subscription failed")
				return nil
			}
			mu.Lock()
			ms.subs = append(ms.subs, sub)
			ms.relays = append(ms.relays, u)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(ms.subs) == 0 {
		cancel()
		return nil, oops.Wrapf(ErrNoRelays, "none of %v reachable", urls)
	}

	var forward, stored sync.WaitGroup
	for _, sub := range ms.subs {
		forward.Add(1)
		stored.Add(1)
		go ms.forward(subCtx, sub, seen, &forward, &stored)
	}
	go func() {
		stored.Wait()
		close(ms.eose)
	}()
	go func() {
		forward.Wait()
		close(ms.events)
	}()
	go func() {
		<-subCtx.Done()
		ms.Close()
	}()
	return ms, nil
}

// forward copies sub's events into the merged channel. Events a relay sent
// before its EOSE are forwarded before stored is released.
func (s *Subscription) forward(ctx context.Context, sub *RelaySubscription, seen *lru.Cache, forward, stored *sync.WaitGroup) {
	defer forward.Done()
	eose := sub.EndOfStoredEvents()
	released := false
	release := func() {
		if !released {
			released = true
			stored.Done()
		}
	}
	defer release()

	deliver := func(evt *nostr.Event) bool {
		if known, _ := seen.ContainsOrAdd(evt.ID, struct{}{}); known {
			return true
		}
		select {
		case s.events <- evt:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		select {
		case evt := <-sub.Events():
			if !deliver(evt) {
				return
			}
		case <-eose:
			for pending := true; pending; {
				select {
				case evt := <-sub.Events():
					if !deliver(evt) {
						return
					}
				default:
					pending = false
				}
			}
			release()
			eose = nil
		case <-sub.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}

// QuerySingle returns the newest event matching filter across urls, waiting
// until every relay has sent its stored events or ctx ends.
func (p *Pool) QuerySingle(ctx context.Context, urls []string, filter nostr.Filter) (*nostr.Event, error) {
	sub, err := p.SubscribeMany(ctx, urls, nostr.Filters{filter})
	if err != nil {
		return nil, err
	}
	defer sub.Close()

	var newest *nostr.Event
	for {
		select {
		case evt, ok := <-sub.Events():
			if !ok {
				return newest, nil
			}
			if newest == nil || evt.CreatedAt > newest.CreatedAt {
				newest = evt
			}
		case <-sub.EndOfStoredEvents():
			for {
				select {
				case evt, ok := <-sub.Events():
					if ok && (newest == nil || evt.CreatedAt > newest.CreatedAt) {
						newest = evt
					}
					if ok {
						continue
					}
				default:
				}
				return newest, nil
			}
		case <-ctx.Done():
			if newest != nil {
				return newest, nil
			}
			return nil, ctx.Err()
		}
	}
}

// Close closes every connection in the pool.
func (p *Pool) Close() {
	p.mu.Lock()
	relays := p.relays
	p.relays = make(map[string]*Relay)
	p.mu.Unlock()
	for _, r := range relays {
		_ = r.Close()
	}
}
