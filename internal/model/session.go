package model

import "time"

// ActivityState describes where a session is in its lifecycle.
type ActivityState string

const (
	// StatePending means the session exists but no process has been spawned.
	StatePending ActivityState = "pending"

	// StateActive means the agent process is running.
	StateActive ActivityState = "active"

	// StateExited means the agent process has terminated. Terminal state.
	StateExited ActivityState = "exited"
)

// SessionState is an immutable snapshot of a session's metadata.
// The live Session hands these out; nothing in a snapshot can mutate
// the session it was taken from.
type SessionState struct {
	ID         string        `json:"id"`
	Workdir    string        `json:"workdir"`
	Model      string        `json:"model,omitempty"`
	State      ActivityState `json:"state"`
	ExitCode   *int          `json:"exitCode,omitempty"`
	Transcript string        `json:"transcript,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// CreateSessionRequest is the payload for creating a new session.
type CreateSessionRequest struct {
	Workdir string `json:"workdir" binding:"required"`
	Model   string `json:"model"`
}

// Validate checks the request for required fields.
func (r *CreateSessionRequest) Validate() error {
	if r.Workdir == "" {
		return ErrWorkdirRequired
	}
	return nil
}
