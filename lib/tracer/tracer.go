package tracer

import (
	"context"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	cb "github.com/emirpasic/gods/queues/circularbuffer"
	"github.com/go-i2p/logger"
	"github.com/go-i2p/nostr-onion/lib/clock"
	"github.com/go-i2p/nostr-onion/lib/nostr"
	"github.com/go-i2p/nostr-onion/lib/onion"
	"github.com/go-i2p/nostr-onion/lib/relay"
	"github.com/go-i2p/nostr-onion/lib/route"
	"github.com/samber/oops"
)

var log = logger.GetGoI2PLogger()

// State of a trace.
type State int

const (
	Waiting State = iota
	Confirmed
	Closed
)

func (s State) String() string {
	switch s {
	case Waiting:
		return "WAITING"
	case Confirmed:
		return "CONFIRMED"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Progress is one observation made while tracing.
type Progress struct {
	// Hop is the index of the hop the seen layer is addressed to, or -1 for
	// the delivered note.
	Hop       int
	Pubkey    string
	Name      string
	EventID   string
	Relay     string
	Delivered bool
	At        time.Time
}

// Message renders the observation for a human.
func (p Progress) Message() string {
	if p.Delivered {
		return "Onion delivered: note " + p.EventID + " published"
	}
	return "Onion reached " + p.Name
}

// Confirmation describes the delivered note.
type Confirmation struct {
	PayloadID string
	Nevent    string
	URL       string
	At        time.Time
}

// Namer maps a hop pubkey to a display name.
type Namer func(pubkey string) string

// Tracer starts traces. It holds no per-onion state.
type Tracer struct {
	sub       Subscriber
	namer     Namer
	history   int
	viewerURL string
	fallback  []string
	clock     clock.Clock
}

// Option configures a Tracer.
type Option func(*Tracer)

func WithNamer(n Namer) Option { return func(t *Tracer) { t.namer = n } }

func WithHistory(n int) Option { return func(t *Tracer) { t.history = n } }

func WithViewerURL(u string) Option { return func(t *Tracer) { t.viewerURL = u } }

// WithFallbackRelays sets the relays watched when the route names none.
func WithFallbackRelays(urls []string) Option { return func(t *Tracer) { t.fallback = urls } }

func WithClock(c clock.Clock) Option { return func(t *Tracer) { t.clock = c } }

// New returns a tracer that subscribes through sub.
func New(sub Subscriber, opts ...Option) *Tracer {
	t := &Tracer{
		sub:       sub,
		history:   32,
		viewerURL: "https://nostrudel.ninja/#/l/",
		fallback:  []string{"wss://nostrue.com"},
		clock:     clock.System{},
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.namer == nil {
		t.namer = shortName
	}
	if t.history < 1 {
		t.history = 1
	}
	return t
}

func shortName(pubkey string) string {
	if npub, err := nostr.EncodeNpub(pubkey); err == nil && len(npub) > 16 {
		return npub[:16]
	}
	return pubkey
}

// Trace follows one onion.
type Trace struct {
	route     *route.Route
	payload   *nostr.Event
	layers    map[string]int
	outboxes  []string
	relays    []string
	namer     Namer
	viewerURL string
	clock     clock.Clock

	sub      Subscription
	progress chan Progress
	done     chan struct{}

	mu      sync.Mutex
	state   State
	seen    mapset.Set[int]
	history *cb.Queue
	result  *Confirmation
	err     error
}

// Relays returns the union of the route's relay hints and extra, or the
// fallback relays when both are empty.
func (t *Tracer) Relays(r *route.Route, extra []string) []string {
	set := mapset.NewThreadUnsafeSet[string]()
	var out []string
	add := func(urls []string) {
		for _, u := range relay.NormalizeURLs(urls) {
			if set.Add(u) {
				out = append(out, u)
			}
		}
	}
	add(r.Relays())
	add(extra)
	if len(out) == 0 {
		add(t.fallback)
	}
	return out
}

// Filter matches every layer of o and its payload.
func Filter(o *onion.Onion) nostr.Filter {
	ids := append(o.IDs(), o.Payload.ID)
	return nostr.Filter{IDs: ids}
}

// Start subscribes before anything is published so no layer is missed.
// outboxes are the sender's write relays; they are watched and also used
// as hints in the nevent reference.
func (t *Tracer) Start(ctx context.Context, r *route.Route, o *onion.Onion, outboxes []string) (*Trace, error) {
	if r == nil || o == nil || len(o.LayerIDs) == 0 {
		return nil, ErrNothingToTrace
	}
	tr := &Trace{
		route:     r,
		payload:   o.Payload,
		layers:    make(map[string]int, len(o.LayerIDs)),
		outboxes:  relay.NormalizeURLs(outboxes),
		relays:    t.Relays(r, outboxes),
		namer:     t.namer,
		viewerURL: t.viewerURL,
		clock:     t.clock,
		progress:  make(chan Progress, len(o.LayerIDs)+1),
		done:      make(chan struct{}),
		state:     Waiting,
		seen:      mapset.NewThreadUnsafeSet[int](),
		history:   cb.New(t.history),
	}
	for i, id := range o.LayerIDs {
		tr.layers[id] = i
	}

	sub, err := t.sub.Subscribe(ctx, tr.relays, nostr.Filters{Filter(o)})
	if err != nil {
		return nil, oops.In("tracer").With("relays", tr.relays).Wrapf(err, "subscribing")
	}
	tr.sub = sub
	log.WithFields(logger.Fields{
		"at":      "Tracer.Start",
		"relays":  tr.relays,
		"layers":  len(o.LayerIDs),
		"payload": o.Payload.ID,
	}).Debug("tracing onion")

	go tr.run(ctx)
	return tr, nil
}

func (tr *Trace) run(ctx context.Context) {
	defer close(tr.progress)
	events := tr.sub.Events()
	for {
		select {
		case <-ctx.Done():
			tr.finish(nil, ErrTracingAbandoned)
			return
		case evt, ok := <-events:
			if !ok {
				tr.finish(nil, ErrSubscriptionEnded)
				return
			}
			if tr.observe(evt) {
				return
			}
		}
	}
}

// observe returns true once the payload has been seen. The payload is
// matched by id whatever its kind.
func (tr *Trace) observe(evt *nostr.Event) bool {
	if evt.ID == tr.payload.ID {
		tr.confirm(evt)
		return true
	}
	variant, err := onion.Classify(evt)
	if err != nil {
		log.WithError(err).WithField("id", evt.ID).Debug("ignoring unexpected event")
		return false
	}
	switch variant {
	case onion.EphemeralLayer, onion.ExpiringLayer:
		return tr.observeLayer(evt)
	default:
		return false
	}
}

func (tr *Trace) observeLayer(evt *nostr.Event) bool {
	i, ok := tr.layers[evt.ID]
	if !ok {
		return false
	}
	hop := tr.route.Hops[i]
	if onion.Recipient(evt) != hop.Pubkey {
		log.WithFields(logger.Fields{
			"at":     "Trace.observeLayer",
			"reason": "recipient_mismatch",
			"id":     evt.ID,
		}).Warn("ignoring layer with unexpected p tag")
		return false
	}

	tr.mu.Lock()
	first := tr.seen.Add(i)
	tr.mu.Unlock()
	if !first {
		return false
	}
	tr.emit(Progress{
		Hop:     i,
		Pubkey:  hop.Pubkey,
		Name:    tr.namer(hop.Pubkey),
		EventID: evt.ID,
		Relay:   hop.Relay,
		At:      tr.clock.Now(),
	})
	return false
}

func (tr *Trace) confirm(evt *nostr.Event) {
	nevent, err := nostr.EncodeNevent(evt.ID, tr.outboxes, evt.PubKey, evt.Kind)
	if err != nil {
		log.WithError(err).Warn("could not encode nevent")
	}
	c := &Confirmation{
		PayloadID: evt.ID,
		Nevent:    nevent,
		At:        tr.clock.Now(),
	}
	if nevent != "" {
		c.URL = tr.viewerURL + nevent
	}

	tr.mu.Lock()
	tr.state = Confirmed
	tr.mu.Unlock()
	tr.emit(Progress{Hop: -1, Pubkey: evt.PubKey, EventID: evt.ID, Delivered: true, At: c.At})
	log.WithFields(logger.Fields{
		"at":  "Trace.confirm",
		"id":  evt.ID,
		"url": c.URL,
	}).Info("onion delivered")
	tr.finish(c, nil)
}

func (tr *Trace) emit(p Progress) {
	tr.mu.Lock()
	tr.history.Enqueue(p)
	tr.mu.Unlock()
	select {
	case tr.progress <- p:
	default:
		log.WithField("hop", p.Hop).Warn("progress channel full, notification kept in history only")
	}
}

func (tr *Trace) finish(c *Confirmation, err error) {
	tr.sub.Close()
	tr.mu.Lock()
	tr.result = c
	tr.err = err
	tr.state = Closed
	tr.mu.Unlock()
	close(tr.done)
}

// Progress delivers observations in arrival order. It is closed when the
// trace ends.
func (tr *Trace) Progress() <-chan Progress { return tr.progress }

// Done is closed when the trace ends.
func (tr *Trace) Done() <-chan struct{} { return tr.done }

// Relays returns the relays being watched.
func (tr *Trace) Relays() []string { return tr.relays }

// State returns the current state.
func (tr *Trace) State() State {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.state
}

// Reached returns the sorted indices of hops seen so far.
func (tr *Trace) Reached() []int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := make([]int, 0, tr.seen.Cardinality())
	for i := range tr.route.Hops {
		if tr.seen.Contains(i) {
			out = append(out, i)
		}
	}
	return out
}

// History returns the most recent observations, oldest first.
func (tr *Trace) History() []Progress {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	values := tr.history.Values()
	out := make([]Progress, 0, len(values))
	for _, v := range values {
		out = append(out, v.(Progress))
	}
	return out
}

// Wait blocks until the note is seen or the trace ends. Cancelling ctx
// returns ErrTracingAbandoned but leaves the trace running.
func (tr *Trace) Wait(ctx context.Context) (*Confirmation, error) {
	select {
	case <-ctx.Done():
		return nil, oops.Wrapf(ErrTracingAbandoned, "%s", ctx.Err().Error())
	case <-tr.done:
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.result, tr.err
}

// Stop ends the trace without waiting for delivery.
func (tr *Trace) Stop() {
	tr.sub.Close()
}
