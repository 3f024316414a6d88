// Package event defines the typed messages a session produces and the
// hub fans out to subscribed browser connections.
package event

import "encoding/json"

// Type discriminates the event variants on the wire.
type Type string

const (
	// TypeConnected acknowledges a new connection. The only event that
	// carries no session identifier.
	TypeConnected Type = "connected"

	// TypeOutput is a raw ANSI-stripped output chunk, emitted as soon
	// as bytes arrive for low-latency streaming. Overlaps with the
	// line-classified events below; consumers tolerate the duplication.
	TypeOutput Type = "output"

	// TypePlain is a classified line with no special meaning.
	TypePlain Type = "plain"

	// TypeThinking is a classified reasoning-in-progress line.
	TypeThinking Type = "thinking"

	// TypeToolStart reports the agent beginning a tool operation.
	TypeToolStart Type = "tool_start"

	// TypeToolEnd reports a tool operation finishing.
	TypeToolEnd Type = "tool_end"

	// TypePermissionRequest reports an interactive confirmation prompt
	// blocking the agent. Answered with a confirm control message.
	TypePermissionRequest Type = "permission_request"

	// TypeSessionStarted reports the agent process spawned.
	TypeSessionStarted Type = "session_started"

	// TypeSessionEnded reports the agent process terminated, for any
	// reason. Emitted exactly once per session.
	TypeSessionEnded Type = "session_ended"

	// TypeError reports a failure caused by a control operation, e.g.
	// sending input to a session that is not active.
	TypeError Type = "error"

	// TypeHistory replays buffered raw output to a newly subscribed
	// connection so the terminal view can be restored.
	TypeHistory Type = "history"

	// TypePong answers an application-level ping from the client.
	TypePong Type = "pong"
)

// Event is one self-describing typed message. Immutable once built;
// within a session, emission order is the order lines were classified.
type Event struct {
	Type      Type   `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Text      string `json:"text,omitempty"`
	Tool      string `json:"tool,omitempty"`
	Detail    string `json:"detail,omitempty"`
	ExitCode  *int   `json:"exitCode,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Marshal serializes the event to its wire form.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
