package ws

import (
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/agent-console/backend/internal/event"
	"github.com/agent-console/backend/internal/model"
	"github.com/agent-console/backend/internal/session"
)

// Client is one WebSocket connection. A client subscribes to at most
// one session at a time; subscribing again replaces the previous
// subscription.
type Client struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn) *Client {
	return &Client{
		conn: conn,
		send: make(chan []byte, 256),
	}
}

// Send queues data for delivery. A client that cannot keep up is
// closed rather than allowed to block the pump.
func (c *Client) Send(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.send <- data:
	default:
		c.closeLocked()
	}
}

// Close marks the client closed and closes its send channel.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// IsClosed reports whether the client has been closed.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// SendChan exposes the outbound queue for the write pump.
func (c *Client) SendChan() <-chan []byte {
	return c.send
}

// Hub fans session events out to subscribed clients. One pump
// goroutine per session drains the session's event channel; the pump
// is started on the first subscription and exits when the channel
// closes, broadcasting each event to whoever is subscribed at that
// moment.
type Hub struct {
	registry *session.Registry

	mu          sync.RWMutex
	subscribers map[string]map[*Client]struct{}
	byClient    map[*Client]string
	watched     map[string]struct{}
}

// NewHub creates a hub over the registry.
func NewHub(registry *session.Registry) *Hub {
	return &Hub{
		registry:    registry,
		subscribers: make(map[string]map[*Client]struct{}),
		byClient:    make(map[*Client]string),
		watched:     make(map[string]struct{}),
	}
}

// Subscribe attaches the client to the identified session. A repeated
// subscription to the same session is a no-op; a subscription to a
// different session silently replaces the previous one. Buffered
// history is replayed to the client before live events flow.
func (h *Hub) Subscribe(client *Client, sessionID string) error {
	s, ok := h.registry.Get(sessionID)
	if !ok {
		return model.ErrSessionNotFound
	}

	h.mu.Lock()
	if prev, subscribed := h.byClient[client]; subscribed {
		if prev == sessionID {
			h.mu.Unlock()
			return nil
		}
		h.removeLocked(client, prev)
	}

	set, ok := h.subscribers[sessionID]
	if !ok {
		set = make(map[*Client]struct{})
		h.subscribers[sessionID] = set
	}
	set[client] = struct{}{}
	h.byClient[client] = sessionID

	// The pump is wired exactly once per session lifetime.
	_, pumping := h.watched[sessionID]
	if !pumping {
		h.watched[sessionID] = struct{}{}
	}

	// Queued under the lock: Publish snapshots the subscriber set under
	// the same lock, so no live event can reach this client before its
	// history message.
	h.replayHistory(client, s)
	h.mu.Unlock()

	if !pumping {
		go h.pump(s)
	}
	return nil
}

// Unsubscribe detaches the client from whatever it watches. Safe to
// call for a client that never subscribed.
func (h *Hub) Unsubscribe(client *Client) {
	h.mu.Lock()
	if id, ok := h.byClient[client]; ok {
		h.removeLocked(client, id)
	}
	h.mu.Unlock()
}

// SessionID returns the session the client currently watches.
func (h *Hub) SessionID(client *Client) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	id, ok := h.byClient[client]
	return id, ok
}

// SubscriberCount returns how many clients watch the session.
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[sessionID])
}

// Publish broadcasts one event to every subscriber of its session.
// The event is marshaled once, not per client.
func (h *Hub) Publish(ev event.Event) {
	data, err := ev.Marshal()
	if err != nil {
		log.Printf("hub: failed to marshal %s event: %v", ev.Type, err)
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.subscribers[ev.SessionID]))
	for c := range h.subscribers[ev.SessionID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.Send(data)
	}
}

// Close detaches and closes every client. The per-session pumps exit
// on their own when the sessions finish.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.byClient))
	for c := range h.byClient {
		clients = append(clients, c)
	}
	h.subscribers = make(map[string]map[*Client]struct{})
	h.byClient = make(map[*Client]string)
	h.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
}

func (h *Hub) removeLocked(client *Client, sessionID string) {
	if set, ok := h.subscribers[sessionID]; ok {
		delete(set, client)
		if len(set) == 0 {
			delete(h.subscribers, sessionID)
		}
	}
	delete(h.byClient, client)
}

// pump drains the session's event channel until it closes. Late
// subscribers catch up via the history replay; events emitted while
// nobody is subscribed are dropped by design of Publish.
func (h *Hub) pump(s *session.Session) {
	for ev := range s.Events() {
		h.Publish(ev)
	}
}

// replayHistory sends the session's buffered raw output as a single
// history event so the client can repaint the terminal.
func (h *Hub) replayHistory(client *Client, s *session.Session) {
	history := s.History()
	if len(history) == 0 {
		return
	}

	ev := event.Event{
		Type:      event.TypeHistory,
		SessionID: s.ID(),
		Text:      string(history),
	}
	data, err := ev.Marshal()
	if err != nil {
		log.Printf("hub: failed to marshal history event: %v", err)
		return
	}
	client.Send(data)
}
