package session

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agent-console/backend/internal/model"
	"github.com/agent-console/backend/internal/repository"
)

const (
	// DefaultGraceWindow is how long an exited session stays queryable
	// before the registry evicts it.
	DefaultGraceWindow = 60 * time.Second

	// DefaultAgentCommand is the executable spawned for each session.
	DefaultAgentCommand = "claude"
)

// Config holds registry-wide settings.
type Config struct {
	// AgentCommand is the agent executable; defaults to "claude".
	AgentCommand string

	// LogDir is where transcripts are written; empty disables them.
	LogDir string

	// GraceWindow is the post-exit retention period; defaults to 60s.
	GraceWindow time.Duration

	// Repo persists session metadata; nil disables persistence.
	Repo *repository.SessionRepository
}

// Registry creates, looks up, and garbage-collects sessions. It is the
// only holder of live Session references; the HTTP and WebSocket
// layers reach sessions exclusively through it.
type Registry struct {
	cfg Config

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates a registry. Constructed once at process start
// and torn down with StopAll during shutdown.
func NewRegistry(cfg Config) *Registry {
	if cfg.AgentCommand == "" {
		cfg.AgentCommand = DefaultAgentCommand
	}
	if cfg.GraceWindow == 0 {
		cfg.GraceWindow = DefaultGraceWindow
	}
	return &Registry{
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// Create allocates a new identifier and a pending session. The agent
// process is not spawned; callers follow up with Start.
func (r *Registry) Create(workdir, modelName string) (*Session, error) {
	if workdir == "" {
		return nil, model.ErrWorkdirRequired
	}

	id := uuid.New().String()

	var transcriptPath string
	if r.cfg.LogDir != "" {
		transcriptPath = filepath.Join(r.cfg.LogDir, id+".cast")
	}

	s := newSession(id, workdir, modelName, r.cfg.AgentCommand, transcriptPath, r.handleTransition)

	if r.cfg.Repo != nil {
		if err := r.cfg.Repo.Create(context.Background(), s.State()); err != nil {
			return nil, fmt.Errorf("failed to persist session: %w", err)
		}
	}

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	return s, nil
}

// Get looks up a live session. Absence is a normal outcome.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// List returns a state snapshot of every tracked session.
func (r *Registry) List() []model.SessionState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.SessionState, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.State())
	}
	return out
}

// Stop stops the identified session; reports whether it was found.
func (r *Registry) Stop(id string) bool {
	s, ok := r.Get(id)
	if !ok {
		return false
	}
	s.Stop()
	return true
}

// StopAll stops every tracked session. Called during orderly shutdown,
// before network listeners are released, so no agent process is
// orphaned.
func (r *Registry) StopAll() {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	for _, s := range sessions {
		s.Stop()
	}
}

// handleTransition runs after every session state change: persists the
// new state and, on exit, schedules eviction after the grace window.
func (r *Registry) handleTransition(s *Session) {
	snap := s.State()

	if r.cfg.Repo != nil {
		if err := r.cfg.Repo.UpdateState(context.Background(), snap.ID, snap.State, snap.ExitCode); err != nil {
			log.Printf("registry: failed to persist state for session %s: %v", snap.ID, err)
		}
	}

	if snap.State == model.StateExited {
		time.AfterFunc(r.cfg.GraceWindow, func() {
			r.evict(snap.ID)
		})
	}
}

func (r *Registry) evict(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
	log.Printf("registry: evicted session %s after grace window", id)
}
