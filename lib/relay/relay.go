package relay

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-i2p/logger"
	"github.com/go-i2p/nostr-onion/lib/nostr"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/oops"
)

var log = logger.GetGoI2PLogger()

const (
	wsReadBuffer     = 1024
	wsWriteBuffer    = 1024
	wsReadLimit      = 4 * 1024 * 1024
	wsWriteTimeout   = 10 * time.Second
	subEventsBacklog = 64
)

type okResult struct {
	ok     bool
	reason string
}

// Relay is a single websocket connection to a nostr relay.
type Relay struct {
	URL string

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu        sync.Mutex
	subs      map[string]*RelaySubscription
	okWaiters map[string]chan okResult

	done      chan struct{}
	closeOnce sync.Once
}

// Connect dials a relay and starts its reader goroutine.
func Connect(ctx context.Context, url string, dialer *websocket.Dialer) (*Relay, error) {
	if dialer == nil {
		dialer = &websocket.Dialer{
			ReadBufferSize:  wsReadBuffer,
			WriteBufferSize: wsWriteBuffer,
			Proxy:           http.ProxyFromEnvironment,
		}
	}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		e := oops.In("relay").With("url", url)
		if resp != nil {
			e = e.With("status", resp.Status)
		}
		return nil, e.Wrapf(err, "websocket dial failed")
	}
	conn.SetReadLimit(wsReadLimit)

	r := &Relay{
		URL:       url,
		conn:      conn,
		subs:      make(map[string]*RelaySubscription),
		okWaiters: make(map[string]chan okResult),
		done:      make(chan struct{}),
	}
	go r.readLoop()
	log.WithFields(logger.Fields{"at": "relay.Connect", "url": url}).Debug("connected to relay")
	return r, nil
}

// Done is closed when the connection ends.
func (r *Relay) Done() <-chan struct{} { return r.done }

// IsConnected reports whether the connection is still open.
func (r *Relay) IsConnected() bool {
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

// Close tears down the connection and every subscription on it.
func (r *Relay) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.done)
		err = r.conn.Close()

		r.mu.Lock()
		subs := r.subs
		r.subs = make(map[string]*RelaySubscription)
		r.mu.Unlock()
		for _, sub := range subs {
			sub.end("relay connection closed")
		}
	})
	return err
}

// Publish sends evt and waits for the relay's OK.
func (r *Relay) Publish(ctx context.Context, evt *nostr.Event) error {
	ch := make(chan okResult, 1)
	r.mu.Lock()
	r.okWaiters[evt.ID] = ch
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.okWaiters, evt.ID)
		r.mu.Unlock()
	}()

	if err := r.write(EventEnvelope{Event: evt}); err != nil {
		return err
	}

	select {
	case res := <-ch:
		if !res.ok {
			return oops.In("relay").With("url", r.URL).Wrapf(ErrRejected, "%s", res.reason)
		}
		return nil
	case <-ctx.Done():
		return oops.In("relay").With("url", r.URL).Wrapf(ctx.Err(), "no OK for %s", evt.ID)
	case <-r.done:
		return ErrRelayClosed
	}
}

// Subscribe opens a subscription with the given filters.
func (r *Relay) Subscribe(filters nostr.Filters) (*RelaySubscription, error) {
	sub := &RelaySubscription{
		ID:      uuid.NewString(),
		Filters: filters,
		relay:   r,
		events:  make(chan *nostr.Event, subEventsBacklog),
		eose:    make(chan struct{}),
		closed:  make(chan struct{}),
	}
	r.mu.Lock()
	select {
	case <-r.done:
		r.mu.Unlock()
		return nil, ErrRelayClosed
	default:
	}
	r.subs[sub.ID] = sub
	r.mu.Unlock()

	if err := r.write(ReqEnvelope{SubscriptionID: sub.ID, Filters: filters}); err != nil {
		r.unregister(sub.ID)
		return nil, err
	}
	return sub, nil
}

func (r *Relay) unregister(id string) {
	r.mu.Lock()
	delete(r.subs, id)
	r.mu.Unlock()
}

func (r *Relay) write(env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return oops.Wrapf(err, "failed to encode %s", env.Label())
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if !r.IsConnected() {
		return ErrRelayClosed
	}
	_ = r.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := r.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return oops.In("relay").With("url", r.URL).Wrapf(err, "write %s failed", env.Label())
	}
	return nil
}

func (r *Relay) readLoop() {
	defer r.Close()
	for {
		_, data, err := r.conn.ReadMessage()
		if err != nil {
			if r.IsConnected() {
				log.WithFields(logger.Fields{
					"at":     "Relay.readLoop",
					"reason": "read_failed",
					"url":    r.URL,
				}).WithError(err).Debug("relay connection lost")
			}
			return
		}
		env, err := ParseMessage(data)
		if err != nil {
			log.WithFields(logger.Fields{
				"at":     "Relay.readLoop",
				"reason": "bad_message",
				"url":    r.URL,
			}).WithError(err).Debug("ignoring malformed relay message")
			continue
		}
		r.handle(env)
	}
}

func (r *Relay) handle(env Envelope) {
	switch e := env.(type) {
	case EventEnvelope:
		sub := r.subscription(e.SubscriptionID)
		if sub == nil || e.Event == nil {
			return
		}
		if !sub.Filters.Match(e.Event) {
			return
		}
		if err := nostr.CheckSignature(e.Event); err != nil {
			log.WithFields(logger.Fields{
				"at":     "Relay.handle",
				"reason": "invalid_signature",
				"url":    r.URL,
				"id":     e.Event.ID,
			}).Warn("dropping event with invalid signature")
			return
		}
		sub.dispatch(e.Event)
	case EOSEEnvelope:
		if sub := r.subscription(e.SubscriptionID); sub != nil {
			sub.markEOSE()
		}
	case ClosedEnvelope:
		if sub := r.subscription(e.SubscriptionID); sub != nil {
			r.unregister(sub.ID)
			sub.end(e.Reason)
		}
	case OKEnvelope:
		r.mu.Lock()
		ch, ok := r.okWaiters[e.EventID]
		r.mu.Unlock()
		if ok {
			select {
			case ch <- okResult{ok: e.OK, reason: e.Reason}:
			default:
			}
		}
	case NoticeEnvelope:
		log.WithFields(logger.Fields{"at": "Relay.handle", "url": r.URL}).Info("relay notice: " + e.Message)
	}
}

func (r *Relay) subscription(id string) *RelaySubscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subs[id]
}

// RelaySubscription is one REQ on one relay. Its event channel is never
// closed; consumers select on Done.
type RelaySubscription struct {
	ID      string
	Filters nostr.Filters

	relay  *Relay
	events chan *nostr.Event
	eose   chan struct{}
	closed chan struct{}

	eoseOnce  sync.Once
	closeOnce sync.Once
	reason    string
}

// Events delivers matching events with verified signatures.
func (s *RelaySubscription) Events() <-chan *nostr.Event { return s.events }

// EndOfStoredEvents is closed once the relay has sent all stored events.
func (s *RelaySubscription) EndOfStoredEvents() <-chan struct{} { return s.eose }

// Done is closed when the subscription ends for any reason.
func (s *RelaySubscription) Done() <-chan struct{} { return s.closed }

// Reason returns why the relay ended the subscription, if it did.
func (s *RelaySubscription) Reason() string {
	select {
	case <-s.closed:
		return s.reason
	default:
		return ""
	}
}

// Close ends the subscription and sends CLOSE to the relay.
func (s *RelaySubscription) Close() {
	s.relay.unregister(s.ID)
	if s.end("") {
		_ = s.relay.write(CloseEnvelope{SubscriptionID: s.ID})
	}
}

func (s *RelaySubscription) dispatch(evt *nostr.Event) {
	select {
	case s.events <- evt:
	case <-s.closed:
	}
}

func (s *RelaySubscription) markEOSE() {
	s.eoseOnce.Do(func() { close(s.eose) })
}

// end closes the subscription once and reports whether this call did it.
func (s *RelaySubscription) end(reason string) bool {
	ended := false
	s.closeOnce.Do(func() {
		s.reason = reason
		close(s.closed)
		ended = true
	})
	return ended
}
