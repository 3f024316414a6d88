// Package handlers provides HTTP API request handlers.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agent-console/backend/internal/model"
	"github.com/agent-console/backend/internal/session"
)

// SessionHandler handles HTTP requests for session management.
type SessionHandler struct {
	registry *session.Registry
}

// NewSessionHandler creates a SessionHandler over the registry.
func NewSessionHandler(registry *session.Registry) *SessionHandler {
	return &SessionHandler{registry: registry}
}

// SessionResponse represents a session in API responses.
type SessionResponse struct {
	ID         string `json:"id"`
	Workdir    string `json:"workdir"`
	Model      string `json:"model,omitempty"`
	State      string `json:"state"`
	ExitCode   *int   `json:"exitCode,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	CreatedAt  string `json:"createdAt"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func toSessionResponse(s model.SessionState) SessionResponse {
	return SessionResponse{
		ID:         s.ID,
		Workdir:    s.Workdir,
		Model:      s.Model,
		State:      string(s.State),
		ExitCode:   s.ExitCode,
		Transcript: s.Transcript,
		CreatedAt:  s.CreatedAt.Format(time.RFC3339),
	}
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// Create handles POST /api/sessions - creates and starts a session.
func (h *SessionHandler) Create(c *gin.Context) {
	var req model.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	s, err := h.registry.Create(req.Workdir, req.Model)
	if err != nil {
		if errors.Is(err, model.ErrWorkdirRequired) {
			sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create session: "+err.Error())
		return
	}

	if err := s.Start(); err != nil {
		// The pending session stays in the registry; the client can
		// retry or delete it.
		sendError(c, http.StatusUnprocessableEntity, "START_FAILED", "Failed to start agent: "+err.Error())
		return
	}

	c.JSON(http.StatusCreated, toSessionResponse(s.State()))
}

// List handles GET /api/sessions - lists all tracked sessions.
func (h *SessionHandler) List(c *gin.Context) {
	states := h.registry.List()

	response := make([]SessionResponse, len(states))
	for i, s := range states {
		response[i] = toSessionResponse(s)
	}
	c.JSON(http.StatusOK, response)
}

// Get handles GET /api/sessions/:id - gets a specific session.
func (h *SessionHandler) Get(c *gin.Context) {
	sessionID := c.Param("id")

	s, ok := h.registry.Get(sessionID)
	if !ok {
		sendError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session "+sessionID+" not found")
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(s.State()))
}

// Delete handles DELETE /api/sessions/:id - stops a session. The
// session stays queryable through the grace window after stopping.
func (h *SessionHandler) Delete(c *gin.Context) {
	sessionID := c.Param("id")

	if !h.registry.Stop(sessionID) {
		sendError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session "+sessionID+" not found")
		return
	}
	c.Status(http.StatusNoContent)
}

// GetLogs handles GET /api/sessions/:id/logs - downloads the session
// transcript in Asciinema v2 format.
func (h *SessionHandler) GetLogs(c *gin.Context) {
	sessionID := c.Param("id")

	s, ok := h.registry.Get(sessionID)
	if !ok {
		sendError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session "+sessionID+" not found")
		return
	}

	transcript := s.State().Transcript
	if transcript == "" {
		sendError(c, http.StatusNotFound, "TRANSCRIPT_NOT_FOUND", "Session has no transcript")
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+sessionID+".cast")
	c.Header("Content-Type", "application/x-asciicast")
	c.File(transcript)
}

// RegisterRoutes registers the session routes on a Gin router group.
func (h *SessionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/sessions", h.Create)
	rg.GET("/sessions", h.List)
	rg.GET("/sessions/:id", h.Get)
	rg.DELETE("/sessions/:id", h.Delete)
	rg.GET("/sessions/:id/logs", h.GetLogs)
}
