package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agent-console/backend/internal/event"
	"github.com/agent-console/backend/internal/session"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8192
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// All origins are accepted; deployments that front a fixed host
	// pin the policy through SetCheckOrigin.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// CommandType discriminates the client-to-server control messages.
type CommandType string

const (
	CommandSubscribe CommandType = "subscribe"
	CommandSend      CommandType = "send"
	CommandInterrupt CommandType = "interrupt"
	CommandConfirm   CommandType = "confirm"
	CommandResize    CommandType = "resize"
	CommandPing      CommandType = "ping"
)

// Command is one inbound control message.
type Command struct {
	Type      CommandType `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Input     string      `json:"input,omitempty"`
	Accepted  *bool       `json:"accepted,omitempty"`
	Cols      uint16      `json:"cols,omitempty"`
	Rows      uint16      `json:"rows,omitempty"`
}

// Handler upgrades HTTP requests and speaks the control protocol.
type Handler struct {
	hub      *Hub
	registry *session.Registry
}

// NewHandler creates a WebSocket handler.
func NewHandler(hub *Hub, registry *session.Registry) *Handler {
	return &Handler{hub: hub, registry: registry}
}

// HandleConnection upgrades the request and attaches the connection to
// the identified session. The caller has already resolved sessionID
// from the route; unknown sessions are rejected before upgrading.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request, sessionID string) error {
	if _, ok := h.registry.Get(sessionID); !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return nil
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := NewClient(conn)

	h.sendEvent(client, event.Event{Type: event.TypeConnected})

	if err := h.hub.Subscribe(client, sessionID); err != nil {
		h.sendEvent(client, event.Event{
			Type:    event.TypeError,
			Message: err.Error(),
		})
	}

	go h.writePump(client)
	go h.readPump(client)

	return nil
}

// readPump decodes control commands until the connection drops, then
// detaches the client.
func (h *Handler) readPump(client *Client) {
	defer func() {
		h.hub.Unsubscribe(client)
		client.Close()
		client.conn.Close()
	}()

	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("ws: read error: %v", err)
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(message, &cmd); err != nil {
			// Malformed input fails only this connection's command,
			// reported back on the same connection.
			h.sendEvent(client, event.Event{
				Type:    event.TypeError,
				Message: "malformed command: " + err.Error(),
			})
			continue
		}

		h.dispatch(client, cmd)
	}
}

// writePump drains the client's send queue and keeps the connection
// alive with protocol-level pings.
func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.SendChan():
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One frame per message so the frontend can JSON.parse
			// each frame independently.
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			n := len(client.SendChan())
			for i := 0; i < n; i++ {
				queued := <-client.SendChan()
				client.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := client.conn.WriteMessage(websocket.TextMessage, queued); err != nil {
					return
				}
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch routes one decoded command.
func (h *Handler) dispatch(client *Client, cmd Command) {
	switch cmd.Type {
	case CommandSubscribe:
		if cmd.SessionID == "" {
			h.sendEvent(client, event.Event{
				Type:    event.TypeError,
				Message: "subscribe requires a sessionId",
			})
			return
		}
		if err := h.hub.Subscribe(client, cmd.SessionID); err != nil {
			h.sendEvent(client, event.Event{
				Type:      event.TypeError,
				SessionID: cmd.SessionID,
				Message:   err.Error(),
			})
		}
	case CommandSend:
		if s, ok := h.watchedSession(client); ok {
			if ev := s.Send(cmd.Input); ev != nil {
				h.sendEvent(client, *ev)
			}
		}
	case CommandInterrupt:
		if s, ok := h.watchedSession(client); ok {
			s.Interrupt()
		}
	case CommandConfirm:
		if s, ok := h.watchedSession(client); ok {
			accepted := cmd.Accepted == nil || *cmd.Accepted
			s.Confirm(accepted)
		}
	case CommandResize:
		if cmd.Cols == 0 || cmd.Rows == 0 {
			return
		}
		if s, ok := h.watchedSession(client); ok {
			s.Resize(cmd.Cols, cmd.Rows)
		}
	case CommandPing:
		h.sendEvent(client, event.Event{Type: event.TypePong})
	default:
		h.sendEvent(client, event.Event{
			Type:    event.TypeError,
			Message: "unknown command type: " + string(cmd.Type),
		})
	}
}

// watchedSession resolves the client's current subscription to a live
// session. Commands from unsubscribed clients are dropped with an
// error event.
func (h *Handler) watchedSession(client *Client) (*session.Session, bool) {
	id, ok := h.hub.SessionID(client)
	if !ok {
		h.sendEvent(client, event.Event{
			Type:    event.TypeError,
			Message: "not subscribed to a session",
		})
		return nil, false
	}
	s, ok := h.registry.Get(id)
	if !ok {
		h.sendEvent(client, event.Event{
			Type:      event.TypeError,
			SessionID: id,
			Message:   "session no longer exists",
		})
		return nil, false
	}
	return s, true
}

func (h *Handler) sendEvent(client *Client, ev event.Event) {
	data, err := ev.Marshal()
	if err != nil {
		log.Printf("ws: failed to marshal %s event: %v", ev.Type, err)
		return
	}
	client.Send(data)
}

// SetCheckOrigin overrides the upgrader's origin policy.
func SetCheckOrigin(fn func(r *http.Request) bool) {
	upgrader.CheckOrigin = fn
}
