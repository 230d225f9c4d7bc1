// Package send runs the whole sending pipeline: sign the note, compose the
// paid route, encode the onion, start tracing and publish the outer layer.
package send

import (
	"context"
	"errors"
	"math/rand"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/go-i2p/logger"
	"github.com/go-i2p/nostr-onion/lib/cashu"
	"github.com/go-i2p/nostr-onion/lib/clock"
	"github.com/go-i2p/nostr-onion/lib/mailbox"
	"github.com/go-i2p/nostr-onion/lib/nostr"
	"github.com/go-i2p/nostr-onion/lib/onion"
	"github.com/go-i2p/nostr-onion/lib/relay"
	"github.com/go-i2p/nostr-onion/lib/route"
	"github.com/go-i2p/nostr-onion/lib/tracer"
	"github.com/samber/oops"
)

var log = logger.GetGoI2PLogger()

var ErrNoPool = errors.New("no token pool to pay the route with")

// RefundError is returned when sending fails after the request's pool was
// split. Refund holds every proof that was not published: the remaining
// pool and the payments of the hops composed so far.
type RefundError struct {
	Err    error
	Refund *cashu.TokenPool
}

func (e *RefundError) Error() string { return e.Err.Error() }

func (e *RefundError) Unwrap() error { return e.Err }

// Token encodes the refund as a bearer token.
func (e *RefundError) Token() (string, error) { return e.Refund.Token() }

func withRefund(err error, refund *cashu.TokenPool) error {
	if refund == nil || refund.Total() == 0 {
		return err
	}
	log.WithFields(logger.Fields{
		"at":     "send.withRefund",
		"reason": err.Error(),
		"refund": refund.Total(),
	}).Warn("send failed, returning unspent proofs")
	return &RefundError{Err: err, Refund: refund}
}

// Publisher sends an event to a set of relays.
type Publisher interface {
	Publish(ctx context.Context, urls []string, evt *nostr.Event) ([]string, error)
}

// Request is what the operator wants sent.
type Request struct {
	// SecretKey signs the note. Hex or nsec; empty generates a throwaway key.
	SecretKey string
	Content   string
	Tags      nostr.Tags
	Hops      []route.Selection
	Pool      *cashu.TokenPool
}

// Prepared is a fully built onion that has not been published yet.
type Prepared struct {
	Author   string
	Payload  *nostr.Event
	Route    *route.Route
	Onion    *onion.Onion
	Outboxes []string
	// Targets are the relays the outer layer is published to.
	Targets []string
}

// ChangeToken encodes what is left of the pool after paying every hop, or
// returns "" when nothing is left.
func (p *Prepared) ChangeToken() (string, error) {
	if p.Route.Change == nil || p.Route.Change.Total() == 0 {
		return "", nil
	}
	return p.Route.Change.Token()
}

// Sender wires the pipeline together.
type Sender struct {
	publisher Publisher
	resolver  mailbox.Resolver
	encoder   *onion.Encoder
	tracer    *tracer.Tracer
	rng       *rand.Rand
	clock     clock.Clock
	routeCfg  route.Config
	fallback  []string
}

// Option configures a Sender.
type Option func(*Sender)

func WithResolver(r mailbox.Resolver) Option { return func(s *Sender) { s.resolver = r } }

func WithEncoder(e *onion.Encoder) Option { return func(s *Sender) { s.encoder = e } }

func WithRand(rng *rand.Rand) Option { return func(s *Sender) { s.rng = rng } }

func WithClock(c clock.Clock) Option { return func(s *Sender) { s.clock = c } }

func WithRouteConfig(cfg route.Config) Option { return func(s *Sender) { s.routeCfg = cfg } }

// WithFallbackRelays is used when the first hop has no known relay.
func WithFallbackRelays(urls []string) Option { return func(s *Sender) { s.fallback = urls } }

// New returns a Sender publishing through publisher and tracing with t.
func New(publisher Publisher, t *tracer.Tracer, opts ...Option) *Sender {
	s := &Sender{
		publisher: publisher,
		tracer:    t,
		clock:     clock.System{},
		routeCfg:  route.DefaultConfig(),
		fallback:  []string{"wss://nostrue.com"},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(s.clock.Now().UnixNano()))
	}
	if s.encoder == nil {
		s.encoder = onion.NewEncoder(onion.WithRand(s.rng), onion.WithClock(s.clock))
	}
	return s
}

// Prepare signs the note, composes the route and encodes the onion. Nothing
// is published. The request's pool is consumed. When composing or encoding
// fails the error is a *RefundError carrying the unspent value.
func (s *Sender) Prepare(ctx context.Context, req Request) (*Prepared, error) {
	if req.Pool == nil {
		return nil, ErrNoPool
	}
	sk, err := nostr.NormalizeSecretKey(req.SecretKey)
	if err != nil {
		return nil, err
	}
	payload := &nostr.Event{
		Kind:      nostr.KindTextNote,
		CreatedAt: nostr.FromTime(s.clock.Now()),
		Content:   req.Content,
		Tags:      req.Tags,
	}
	if err := nostr.Sign(payload, sk); err != nil {
		return nil, oops.Wrapf(err, "signing note")
	}

	composer := route.NewComposer(req.Pool, s.resolver, s.rng, s.clock, s.routeCfg)
	r, err := composer.Compose(ctx, req.Hops)
	if err != nil {
		return nil, withRefund(err, composer.Unspent())
	}
	o, err := s.encoder.Encode(payload, r)
	if err != nil {
		return nil, withRefund(err, r.Unspent())
	}

	p := &Prepared{
		Author:  payload.PubKey,
		Payload: payload,
		Route:   r,
		Onion:   o,
	}
	p.Outboxes = s.outboxes(ctx, payload.PubKey)
	p.Targets = s.firstHopRelays(ctx, r)
	log.WithFields(logger.Fields{
		"at":      "Sender.Prepare",
		"hops":    r.Len(),
		"paid":    r.TotalPaid(),
		"targets": p.Targets,
	}).Debug("onion prepared")
	return p, nil
}

// firstHopRelays picks where the outer layer goes: the first hop's inboxes,
// then its relay hint, then the fallback relays.
func (s *Sender) firstHopRelays(ctx context.Context, r *route.Route) []string {
	first := r.Hops[0]
	if s.resolver != nil {
		m, err := s.resolver.Resolve(ctx, first.Pubkey)
		if err != nil {
			log.WithError(err).WithField("pubkey", first.Pubkey).Warn("could not resolve first hop inboxes")
		} else if urls := relay.NormalizeURLs(m.Inboxes); len(urls) > 0 {
			return urls
		}
	}
	if first.Relay != "" {
		return []string{first.Relay}
	}
	return relay.NormalizeURLs(s.fallback)
}

func (s *Sender) outboxes(ctx context.Context, author string) []string {
	if s.resolver != nil {
		m, err := s.resolver.Resolve(ctx, author)
		if err == nil {
			if urls := relay.NormalizeURLs(m.Outboxes); len(urls) > 0 {
				return urls
			}
		}
	}
	return relay.NormalizeURLs(s.fallback)
}

// Trace starts watching for p. It must run before Publish so that layers
// forwarded quickly are not missed.
func (s *Sender) Trace(ctx context.Context, p *Prepared) (*tracer.Trace, error) {
	watch := mapset.NewThreadUnsafeSet[string](p.Outboxes...)
	for _, u := range p.Targets {
		watch.Add(u)
	}
	return s.tracer.Start(ctx, p.Route, p.Onion, watch.ToSlice())
}

// Publish sends the outer layer to p's targets.
func (s *Sender) Publish(ctx context.Context, p *Prepared) ([]string, error) {
	return s.Republish(ctx, p, p.Targets)
}

// Republish sends the outer layer to another relay set, for retrying after
// a publish failure.
func (s *Sender) Republish(ctx context.Context, p *Prepared, relays []string) ([]string, error) {
	accepted, err := s.publisher.Publish(ctx, relays, p.Onion.Outer)
	if err != nil {
		if !errors.Is(err, relay.ErrPublishFailure) {
			err = oops.Wrapf(relay.ErrPublishFailure, "%s", err.Error())
		}
		return nil, err
	}
	log.WithFields(logger.Fields{
		"at":       "Sender.Publish",
		"outer":    p.Onion.Outer.ID,
		"accepted": accepted,
	}).Info("onion published")
	return accepted, nil
}

// Result of Send.
type Result struct {
	*Prepared
	Trace    *tracer.Trace
	Accepted []string
}

// Send prepares, starts tracing and publishes. The caller waits on
// Result.Trace. When publishing fails the trace is stopped and the prepared
// onion is still returned so it can be republished.
func (s *Sender) Send(ctx context.Context, req Request) (*Result, error) {
	p, err := s.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	res := &Result{Prepared: p}
	trace, err := s.Trace(ctx, p)
	if err != nil {
		return res, withRefund(err, p.Route.Unspent())
	}
	res.Trace = trace
	accepted, err := s.Publish(ctx, p)
	if err != nil {
		trace.Stop()
		return res, err
	}
	res.Accepted = accepted
	return res, nil
}
