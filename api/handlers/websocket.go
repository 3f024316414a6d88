package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agent-console/backend/internal/session"
	"github.com/agent-console/backend/internal/ws"
)

// WebSocketHandler exposes the session event stream over WebSocket.
type WebSocketHandler struct {
	registry  *session.Registry
	wsHandler *ws.Handler
}

// NewWebSocketHandler creates a WebSocketHandler.
func NewWebSocketHandler(registry *session.Registry, wsHandler *ws.Handler) *WebSocketHandler {
	return &WebSocketHandler{
		registry:  registry,
		wsHandler: wsHandler,
	}
}

// Attach handles GET /api/sessions/:id/ws - attaches to a session's
// event stream. The connection is subscribed immediately; further
// control commands arrive over the socket itself.
func (h *WebSocketHandler) Attach(c *gin.Context) {
	sessionID := c.Param("id")

	if _, ok := h.registry.Get(sessionID); !ok {
		sendError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session "+sessionID+" not found")
		return
	}

	// Upgrade errors are reported to the peer by the upgrader itself.
	h.wsHandler.HandleConnection(c.Writer, c.Request, sessionID)
}

// RegisterRoutes registers the WebSocket route on a Gin router group.
func (h *WebSocketHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/sessions/:id/ws", h.Attach)
}
