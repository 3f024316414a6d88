// Package session owns the supervised agent conversations: one
// pty-backed child process per session, the output pipeline that turns
// its raw bytes into typed events, and the registry that tracks every
// live session.
package session

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/agent-console/backend/internal/ansi"
	"github.com/agent-console/backend/internal/buffer"
	"github.com/agent-console/backend/internal/classify"
	"github.com/agent-console/backend/internal/event"
	"github.com/agent-console/backend/internal/logger"
	"github.com/agent-console/backend/internal/model"
	"github.com/agent-console/backend/internal/pty"
)

const (
	// historySize is how much raw output a session retains for
	// reconnect replay (64KB).
	historySize = 64 * 1024

	// readBufferSize is the chunk size for pty reads.
	readBufferSize = 4096

	// eventBufferSize bounds the outbound event channel. A consumer
	// that falls this far behind starts losing events.
	eventBufferSize = 1024

	// termWait is how long Stop gives the agent after SIGTERM before
	// escalating to SIGKILL, and again after SIGKILL before forcing
	// the exited transition.
	termWait = 3 * time.Second

	// keyInterrupt is the terminal interrupt key (Ctrl+C).
	keyInterrupt = "\x03"
)

// Session supervises one agent conversation. It is single-shot: once
// the process exits the session stays queryable until the registry
// evicts it, but it never respawns.
type Session struct {
	id        string
	workdir   string
	model     string
	createdAt time.Time

	command        string
	transcriptPath string

	mu       sync.Mutex
	state    model.ActivityState
	exitCode *int
	proc     *pty.Process

	// pending is the tail of the most recent output chunk that has not
	// yet been terminated by a line break.
	pending []byte

	events   chan event.Event
	closed   bool
	exited   chan struct{}
	readDone chan struct{}

	history    *buffer.RingBuffer
	transcript *logger.CastLogger

	// notify is invoked after every state transition; the registry
	// uses it for persistence and grace-window eviction.
	notify func(*Session)
}

func newSession(id, workdir, modelName, command, transcriptPath string, notify func(*Session)) *Session {
	return &Session{
		id:             id,
		workdir:        workdir,
		model:          modelName,
		createdAt:      time.Now(),
		command:        command,
		transcriptPath: transcriptPath,
		state:          model.StatePending,
		events:         make(chan event.Event, eventBufferSize),
		exited:         make(chan struct{}),
		readDone:       make(chan struct{}),
		history:        buffer.NewRingBuffer(historySize),
		notify:         notify,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Events returns the session's outbound event channel. Closed after
// the session_ended event; the hub consumes it with a single pump.
func (s *Session) Events() <-chan event.Event { return s.events }

// Done is closed when the session reaches the exited state.
func (s *Session) Done() <-chan struct{} { return s.exited }

// History returns the retained raw output for reconnect replay.
func (s *Session) History() []byte { return s.history.Snapshot() }

// State returns an immutable snapshot of the session's metadata.
func (s *Session) State() model.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() model.SessionState {
	snap := model.SessionState{
		ID:         s.id,
		Workdir:    s.workdir,
		Model:      s.model,
		State:      s.state,
		Transcript: s.transcriptPath,
		CreatedAt:  s.createdAt,
	}
	if s.exitCode != nil {
		code := *s.exitCode
		snap.ExitCode = &code
	}
	return snap
}

// Start spawns the agent process on a 120x40 pseudo-terminal in the
// session's working directory. On success the session is active and a
// session_started event has been emitted before Start returns. On
// failure the session stays pending and may be started again. Calling
// Start on a non-pending session is a programming error and is
// rejected.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != model.StatePending {
		return model.ErrAlreadyStarted
	}

	info, err := os.Stat(s.workdir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("invalid working directory %s: %w", s.workdir, errOrNotDir(err))
	}

	var transcript *logger.CastLogger
	if s.transcriptPath != "" {
		transcript, err = logger.NewCastLogger(s.transcriptPath)
		if err != nil {
			return fmt.Errorf("failed to open transcript: %w", err)
		}
		if err := transcript.WriteHeader(int(pty.DefaultCols), int(pty.DefaultRows)); err != nil {
			transcript.Close()
			return fmt.Errorf("failed to write transcript header: %w", err)
		}
	}

	var args []string
	if s.model != "" {
		args = append(args, "--model", s.model)
	}

	proc, err := pty.Spawn(pty.SpawnOptions{
		Command: s.command,
		Args:    args,
		Dir:     s.workdir,
		Cols:    pty.DefaultCols,
		Rows:    pty.DefaultRows,
	})
	if err != nil {
		if transcript != nil {
			transcript.Close()
		}
		return fmt.Errorf("failed to spawn agent: %w", err)
	}

	s.proc = proc
	s.transcript = transcript
	s.state = model.StateActive
	s.emitLocked(event.Event{Type: event.TypeSessionStarted, SessionID: s.id})

	go s.readLoop(proc)
	go s.waitLoop(proc)

	if s.notify != nil {
		go s.notify(s)
	}
	return nil
}

func errOrNotDir(err error) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("not a directory")
}

// Send writes input followed by a newline to the agent. Sending to a
// session that is not active never touches the process; the returned
// Error event tells the caller why. The caller delivers it to the
// originating connection itself: after exit the session's event
// channel is closed, so the error cannot travel through the pump.
// Returns nil when the input was written.
func (s *Session) Send(input string) *event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != model.StateActive {
		return &event.Event{
			Type:      event.TypeError,
			SessionID: s.id,
			Message:   fmt.Sprintf("cannot send input: %v", model.ErrNotActive),
		}
	}
	s.writeLocked([]byte(input + "\n"))
	return nil
}

// Interrupt sends the terminal interrupt key, telling the agent to
// abandon its current turn. No-op when not active.
func (s *Session) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != model.StateActive {
		return
	}
	s.writeLocked([]byte(keyInterrupt))
}

// Confirm answers a pending permission prompt with y or n. The session
// does not track whether a prompt is actually outstanding; the bytes
// are forwarded verbatim. No-op when not active.
func (s *Session) Confirm(accepted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != model.StateActive {
		return
	}
	answer := "n\n"
	if accepted {
		answer = "y\n"
	}
	s.writeLocked([]byte(answer))
}

// Resize changes the pseudo-terminal geometry. No-op when not active.
func (s *Session) Resize(cols, rows uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != model.StateActive || cols == 0 || rows == 0 {
		return
	}
	if err := s.proc.Terminal.Resize(cols, rows); err != nil {
		log.Printf("session %s: resize failed: %v", s.id, err)
	}
}

func (s *Session) writeLocked(data []byte) {
	if _, err := s.proc.Terminal.Write(data); err != nil {
		s.emitLocked(event.Event{
			Type:      event.TypeError,
			SessionID: s.id,
			Message:   fmt.Sprintf("failed to write to agent: %v", err),
		})
		return
	}
	if s.transcript != nil {
		s.transcript.WriteInput(data)
	}
}

// Stop terminates the agent process and guarantees the session reaches
// the exited state, escalating SIGTERM to SIGKILL after a bounded
// wait. Idempotent: safe on exited and never-started sessions.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state == model.StateExited {
		s.mu.Unlock()
		return
	}
	if s.state == model.StatePending {
		s.finishLocked(nil)
		s.mu.Unlock()
		return
	}
	proc := s.proc
	s.mu.Unlock()

	if err := proc.Terminate(); err != nil {
		log.Printf("session %s: terminate failed: %v", s.id, err)
	}
	select {
	case <-s.exited:
		return
	case <-time.After(termWait):
	}

	if err := proc.Kill(); err != nil {
		log.Printf("session %s: kill failed: %v", s.id, err)
	}
	select {
	case <-s.exited:
	case <-time.After(termWait):
		// The waiter never fired; force the transition so the state
		// machine invariant holds even with an unreapable process.
		code := -1
		s.mu.Lock()
		s.finishLocked(&code)
		s.mu.Unlock()
	}
}

// readLoop is the single reader of the pty; all output handling is
// serialized through it.
func (s *Session) readLoop(proc *pty.Process) {
	defer close(s.readDone)

	buf := make([]byte, readBufferSize)
	for {
		n, err := proc.Terminal.Read(buf)
		if n > 0 {
			s.handleOutput(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

// waitLoop reaps the process, lets the reader drain, and drives the
// exited transition.
func (s *Session) waitLoop(proc *pty.Process) {
	code, err := proc.Wait()
	if err != nil {
		log.Printf("session %s: wait failed: %v", s.id, err)
	}

	// Closing the terminal unblocks a reader still parked in Read.
	proc.Close()
	<-s.readDone

	s.mu.Lock()
	s.finishLocked(&code)
	s.mu.Unlock()
}

// finishLocked performs the single transition into exited: records the
// exit code, emits session_ended, closes the event channel.
func (s *Session) finishLocked(code *int) {
	if s.state == model.StateExited {
		return
	}
	s.state = model.StateExited
	s.exitCode = code

	ev := event.Event{Type: event.TypeSessionEnded, SessionID: s.id}
	if code != nil {
		c := *code
		ev.ExitCode = &c
	}
	s.emitLocked(ev)

	s.closed = true
	close(s.events)
	close(s.exited)

	if s.transcript != nil {
		s.transcript.Close()
	}
	if s.notify != nil {
		go s.notify(s)
	}
}

// handleOutput runs the output pipeline over one raw chunk: transcript
// and history capture, immediate stripped-chunk emission, then line
// reassembly and per-line classification.
func (s *Session) handleOutput(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.transcript != nil {
		s.transcript.WriteOutput(data)
	}
	s.history.Write(data)

	if stripped := ansi.StripBytes(data); len(strings.TrimSpace(string(stripped))) > 0 {
		s.emitLocked(event.Event{Type: event.TypeOutput, SessionID: s.id, Text: string(stripped)})
	}

	s.pending = append(s.pending, data...)
	for {
		idx := bytes.IndexByte(s.pending, '\n')
		if idx < 0 {
			break
		}
		line := string(s.pending[:idx])
		s.pending = s.pending[idx+1:]
		s.classifyLineLocked(line)
	}
}

func (s *Session) classifyLineLocked(raw string) {
	raw = strings.TrimRight(raw, "\r")
	stripped := ansi.Strip(raw)
	if strings.TrimSpace(stripped) == "" {
		return
	}

	res := classify.Classify(stripped, raw)
	ev := event.Event{SessionID: s.id}
	switch res.Category {
	case classify.PermissionPrompt:
		ev.Type = event.TypePermissionRequest
		ev.Text = strings.TrimSpace(stripped)
	case classify.ToolStart:
		ev.Type = event.TypeToolStart
		ev.Tool = res.Tool
		ev.Detail = res.Detail
	case classify.ToolEnd:
		ev.Type = event.TypeToolEnd
		ev.Tool = res.Tool
		ev.Detail = res.Detail
	case classify.Thinking:
		ev.Type = event.TypeThinking
		ev.Text = strings.TrimSpace(stripped)
	default:
		ev.Type = event.TypePlain
		ev.Text = stripped
	}
	s.emitLocked(ev)
}

// emitLocked sends an event without blocking. Requires s.mu; every
// emission site holds it, which also keeps the closed check and the
// channel close atomic.
func (s *Session) emitLocked(ev event.Event) {
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		log.Printf("session %s: event buffer full, dropping %s event", s.id, ev.Type)
	}
}
