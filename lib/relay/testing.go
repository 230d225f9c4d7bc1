package relay

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/go-i2p/nostr-onion/lib/nostr"
	"github.com/gorilla/websocket"
)

// TestRelay is a minimal in-process nostr relay for tests. It stores every
// accepted event and forwards it to matching subscriptions.
type TestRelay struct {
	Server *httptest.Server

	mu      sync.Mutex
	events  []*nostr.Event
	clients map[*testClient]struct{}
	reject  string
}

type testClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	mu      sync.Mutex
	subs    map[string]nostr.Filters
}

func (c *testClient) send(env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.WriteMessage(websocket.TextMessage, data)
}

// NewTestRelay starts a relay on a random local port.
func NewTestRelay() *TestRelay {
	tr := &TestRelay{clients: make(map[*testClient]struct{})}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  wsReadBuffer,
		WriteBufferSize: wsWriteBuffer,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
	tr.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		tr.serve(&testClient{conn: conn, subs: make(map[string]nostr.Filters)})
	}))
	return tr
}

// URL returns the ws:// address of the relay.
func (tr *TestRelay) URL() string {
	return "ws://" + strings.TrimPrefix(tr.Server.URL, "http://")
}

// Close stops the relay and drops all connections.
func (tr *TestRelay) Close() {
	tr.mu.Lock()
	for c := range tr.clients {
		_ = c.conn.Close()
	}
	tr.mu.Unlock()
	tr.Server.Close()
}

// RejectAll makes the relay answer every EVENT with OK false and reason.
// An empty reason accepts events again.
func (tr *TestRelay) RejectAll(reason string) {
	tr.mu.Lock()
	tr.reject = reason
	tr.mu.Unlock()
}

// Events returns a copy of the stored events.
func (tr *TestRelay) Events() []*nostr.Event {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]*nostr.Event(nil), tr.events...)
}

// Inject stores evt as if a client had published it, without verification.
func (tr *TestRelay) Inject(evt *nostr.Event) {
	tr.store(evt)
}

func (tr *TestRelay) store(evt *nostr.Event) {
	tr.mu.Lock()
	tr.events = append(tr.events, evt)
	clients := make([]*testClient, 0, len(tr.clients))
	for c := range tr.clients {
		clients = append(clients, c)
	}
	tr.mu.Unlock()

	for _, c := range clients {
		c.mu.Lock()
		var matched []string
		for id, filters := range c.subs {
			if filters.Match(evt) {
				matched = append(matched, id)
			}
		}
		c.mu.Unlock()
		for _, id := range matched {
			c.send(EventEnvelope{SubscriptionID: id, Event: evt})
		}
	}
}

func (tr *TestRelay) serve(c *testClient) {
	tr.mu.Lock()
	tr.clients[c] = struct{}{}
	tr.mu.Unlock()
	defer func() {
		tr.mu.Lock()
		delete(tr.clients, c)
		tr.mu.Unlock()
		_ = c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := ParseMessage(data)
		if err != nil {
			c.send(NoticeEnvelope{Message: "invalid: " + err.Error()})
			continue
		}
		switch e := env.(type) {
		case EventEnvelope:
			tr.mu.Lock()
			reject := tr.reject
			tr.mu.Unlock()
			switch {
			case reject != "":
				c.send(OKEnvelope{EventID: e.Event.ID, OK: false, Reason: reject})
			case nostr.CheckSignature(e.Event) != nil:
				c.send(OKEnvelope{EventID: e.Event.ID, OK: false, Reason: "invalid: bad signature"})
			default:
				c.send(OKEnvelope{EventID: e.Event.ID, OK: true})
				tr.store(e.Event)
			}
		case ReqEnvelope:
			// registering under tr.mu means no event falls between the
			// stored snapshot and live delivery
			tr.mu.Lock()
			var stored []*nostr.Event
			for _, evt := range tr.events {
				if e.Filters.Match(evt) {
					stored = append(stored, evt)
				}
			}
			c.mu.Lock()
			c.subs[e.SubscriptionID] = e.Filters
			c.mu.Unlock()
			tr.mu.Unlock()
			for _, evt := range stored {
				c.send(EventEnvelope{SubscriptionID: e.SubscriptionID, Event: evt})
			}
			c.send(EOSEEnvelope{SubscriptionID: e.SubscriptionID})
		case CloseEnvelope:
			c.mu.Lock()
			delete(c.subs, e.SubscriptionID)
			c.mu.Unlock()
			c.send(ClosedEnvelope{SubscriptionID: e.SubscriptionID})
		}
	}
}
