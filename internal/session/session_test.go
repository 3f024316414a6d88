package session

import (
	"strings"
	"testing"
	"time"

	"github.com/agent-console/backend/internal/event"
	"github.com/agent-console/backend/internal/model"
	"github.com/agent-console/backend/internal/pty"
)

// newIdleSession builds a pending session that never spawns a process.
func newIdleSession(t *testing.T) *Session {
	t.Helper()
	return newSession("test-session", t.TempDir(), "", "true", "", nil)
}

// collect drains every event currently buffered on the session.
func collect(s *Session) []event.Event {
	var out []event.Event
	for {
		select {
		case ev, ok := <-s.events:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestSendOnPendingReturnsSingleError(t *testing.T) {
	s := newIdleSession(t)

	ev := s.Send("hello")

	if ev == nil {
		t.Fatal("expected an error event for send on a pending session")
	}
	if ev.Type != event.TypeError {
		t.Errorf("expected error event, got %s", ev.Type)
	}
	if !strings.Contains(ev.Message, model.ErrNotActive.Error()) {
		t.Errorf("error message %q does not mention inactive session", ev.Message)
	}
	if s.State().State != model.StatePending {
		t.Errorf("send must not change state, got %s", s.State().State)
	}
	if events := collect(s); len(events) != 0 {
		t.Errorf("error must go to the caller, not the event channel; got %d events", len(events))
	}
}

func TestSendOnExitedReturnsSingleError(t *testing.T) {
	s := newIdleSession(t)
	term := activate(s)

	code := 0
	s.mu.Lock()
	s.finishLocked(&code)
	s.mu.Unlock()
	collect(s)

	ev := s.Send("late input")

	if ev == nil {
		t.Fatal("expected an error event for send on an exited session")
	}
	if ev.Type != event.TypeError || !strings.Contains(ev.Message, model.ErrNotActive.Error()) {
		t.Errorf("unexpected error event %+v", ev)
	}
	if len(term.written) != 0 {
		t.Errorf("exited process was written to: %q", term.written)
	}
}

func TestControlOpsOnPendingAreSilent(t *testing.T) {
	s := newIdleSession(t)

	s.Interrupt()
	s.Confirm(true)
	s.Confirm(false)
	s.Resize(80, 24)

	if events := collect(s); len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}
}

func TestHandleOutputClassifiesToolStart(t *testing.T) {
	s := newIdleSession(t)

	s.handleOutput([]byte("Reading file.txt\n"))

	events := collect(s)
	if len(events) != 2 {
		t.Fatalf("expected output + tool_start, got %d events: %+v", len(events), events)
	}
	if events[0].Type != event.TypeOutput {
		t.Errorf("first event is %s, want output", events[0].Type)
	}
	if events[1].Type != event.TypeToolStart {
		t.Fatalf("second event is %s, want tool_start", events[1].Type)
	}
	if events[1].Tool != "Read" || events[1].Detail != "file.txt" {
		t.Errorf("unexpected tool event: tool=%q detail=%q", events[1].Tool, events[1].Detail)
	}
}

func TestHandleOutputPermissionPromptWinsOverToolStart(t *testing.T) {
	s := newIdleSession(t)

	s.handleOutput([]byte("Allow this Bash(rm -rf build) call? [y/n]\n"))

	events := collect(s)
	var prompts int
	for _, ev := range events {
		if ev.Type == event.TypePermissionRequest {
			prompts++
		}
		if ev.Type == event.TypeToolStart {
			t.Errorf("line classified as tool_start, want permission_request")
		}
	}
	if prompts != 1 {
		t.Errorf("expected exactly 1 permission_request, got %d", prompts)
	}
}

func TestHandleOutputStripsANSIFromEvents(t *testing.T) {
	s := newIdleSession(t)

	s.handleOutput([]byte("\x1b[31mred text\x1b[0m\n"))

	events := collect(s)
	for _, ev := range events {
		if strings.Contains(ev.Text, "\x1b") {
			t.Errorf("event %s carries unstripped escapes: %q", ev.Type, ev.Text)
		}
	}
}

func TestHandleOutputReassemblesSplitLines(t *testing.T) {
	s := newIdleSession(t)

	s.handleOutput([]byte("Read"))
	s.handleOutput([]byte("ing fi"))
	s.handleOutput([]byte("le.txt\n"))

	var starts []event.Event
	for _, ev := range collect(s) {
		if ev.Type == event.TypeToolStart {
			starts = append(starts, ev)
		}
	}
	if len(starts) != 1 {
		t.Fatalf("expected 1 tool_start from reassembled line, got %d", len(starts))
	}
	if starts[0].Detail != "file.txt" {
		t.Errorf("unexpected detail %q", starts[0].Detail)
	}
}

func TestHandleOutputSkipsBlankLines(t *testing.T) {
	s := newIdleSession(t)

	s.handleOutput([]byte("\n   \n\r\n"))

	if events := collect(s); len(events) != 0 {
		t.Errorf("expected no events for blank output, got %d: %+v", len(events), events)
	}
}

func TestHandleOutputRecordsHistory(t *testing.T) {
	s := newIdleSession(t)

	s.handleOutput([]byte("\x1b[1mchunk one\x1b[0m\n"))
	s.handleOutput([]byte("chunk two\n"))

	history := string(s.History())
	if !strings.Contains(history, "\x1b[1m") {
		t.Error("history must retain raw bytes including escapes")
	}
	if !strings.Contains(history, "chunk two") {
		t.Error("history missing later chunk")
	}
}

func TestStopOnPendingReachesExited(t *testing.T) {
	s := newIdleSession(t)

	s.Stop()

	select {
	case <-s.Done():
	default:
		t.Fatal("Done must be closed after Stop")
	}

	snap := s.State()
	if snap.State != model.StateExited {
		t.Errorf("state is %s, want exited", snap.State)
	}
	if snap.ExitCode != nil {
		t.Errorf("never-started session must have no exit code, got %d", *snap.ExitCode)
	}

	events := collect(s)
	var ended int
	for _, ev := range events {
		if ev.Type == event.TypeSessionEnded {
			ended++
		}
	}
	if ended != 1 {
		t.Errorf("expected exactly 1 session_ended, got %d", ended)
	}

	// Idempotent and terminal.
	s.Stop()
	if s.State().State != model.StateExited {
		t.Error("session left exited state")
	}
}

func TestStartRejectedAfterExit(t *testing.T) {
	s := newIdleSession(t)
	s.Stop()

	if err := s.Start(); err != model.ErrAlreadyStarted {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestStartRejectsMissingWorkdir(t *testing.T) {
	s := newSession("test-session", "/no/such/directory", "", "true", "", nil)

	if err := s.Start(); err == nil {
		t.Fatal("expected error for missing workdir")
	}
	if s.State().State != model.StatePending {
		t.Errorf("failed start must leave session pending, got %s", s.State().State)
	}
}

func TestLateActivityAfterExitIsSafe(t *testing.T) {
	s := newIdleSession(t)
	s.Stop()
	collect(s)

	// Straggler pty output must not panic on the closed channel.
	s.handleOutput([]byte("late output\n"))

	// Input still reports back to the caller.
	if ev := s.Send("late input"); ev == nil {
		t.Error("expected an error event for send after exit")
	}
}

// fakeTerminal records writes; reads block forever like an idle pty.
type fakeTerminal struct {
	written []byte
}

func (f *fakeTerminal) Read(b []byte) (int, error)  { select {} }
func (f *fakeTerminal) Write(b []byte) (int, error) { f.written = append(f.written, b...); return len(b), nil }
func (f *fakeTerminal) Close() error                { return nil }
func (f *fakeTerminal) Resize(cols, rows uint16) error {
	return nil
}

// activate wires a fake terminal and forces the active state, skipping
// the real spawn.
func activate(s *Session) *fakeTerminal {
	term := &fakeTerminal{}
	s.mu.Lock()
	s.proc = &pty.Process{Terminal: term}
	s.state = model.StateActive
	s.mu.Unlock()
	return term
}

func TestControlOpsWriteExpectedBytes(t *testing.T) {
	cases := []struct {
		name string
		op   func(*Session)
		want string
	}{
		{"send appends newline", func(s *Session) { s.Send("hello") }, "hello\n"},
		{"confirm yes", func(s *Session) { s.Confirm(true) }, "y\n"},
		{"confirm no", func(s *Session) { s.Confirm(false) }, "n\n"},
		{"interrupt sends ctrl-c", func(s *Session) { s.Interrupt() }, "\x03"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newIdleSession(t)
			term := activate(s)

			tc.op(s)

			if got := string(term.written); got != tc.want {
				t.Errorf("wrote %q, want %q", got, tc.want)
			}
		})
	}
}

func TestExitEmitsSingleSessionEnded(t *testing.T) {
	s := newIdleSession(t)
	activate(s)

	code := 1
	s.mu.Lock()
	s.finishLocked(&code)
	s.mu.Unlock()

	snap := s.State()
	if snap.State != model.StateExited {
		t.Errorf("state is %s, want exited", snap.State)
	}
	if snap.ExitCode == nil || *snap.ExitCode != 1 {
		t.Errorf("exit code snapshot is %v, want 1", snap.ExitCode)
	}

	var ended []event.Event
	for _, ev := range collect(s) {
		if ev.Type == event.TypeSessionEnded {
			ended = append(ended, ev)
		}
	}
	if len(ended) != 1 {
		t.Fatalf("expected exactly 1 session_ended, got %d", len(ended))
	}
	if ended[0].ExitCode == nil || *ended[0].ExitCode != 1 {
		t.Errorf("session_ended exit code is %v, want 1", ended[0].ExitCode)
	}

	// Terminal: a second transition attempt changes nothing.
	other := 7
	s.mu.Lock()
	s.finishLocked(&other)
	s.mu.Unlock()
	if got := s.State(); got.ExitCode == nil || *got.ExitCode != 1 {
		t.Errorf("exit code changed after terminal state: %v", got.ExitCode)
	}
}

func TestNotifyFiresOnTransition(t *testing.T) {
	transitions := make(chan model.ActivityState, 4)
	s := newSession("test-session", t.TempDir(), "", "true", "", func(s *Session) {
		transitions <- s.State().State
	})

	s.Stop()

	select {
	case state := <-transitions:
		if state != model.StateExited {
			t.Errorf("notified state is %s, want exited", state)
		}
	case <-time.After(time.Second):
		t.Fatal("notify was never invoked")
	}
}
