// Package pty spawns agent processes attached to a pseudo-terminal and
// exposes the handle the session layer drives: read output, write
// input, resize, terminate.
package pty

import (
	"io"
	"os/exec"
)

// Terminal is the platform-independent pseudo-terminal handle.
type Terminal interface {
	// Read reads process output from the terminal master.
	io.Reader

	// Write writes input to the process.
	io.Writer

	// Close releases the terminal.
	io.Closer

	// Resize changes the terminal geometry.
	Resize(cols, rows uint16) error
}

// SpawnOptions configures a new agent process.
type SpawnOptions struct {
	// Command is the executable to run.
	Command string

	// Args are passed to the executable.
	Args []string

	// Env is the process environment; nil inherits the parent's.
	Env []string

	// Dir is the working directory; must exist.
	Dir string

	// Cols and Rows set the initial terminal geometry; zero values
	// fall back to 120x40.
	Cols, Rows uint16
}

const (
	// DefaultCols and DefaultRows are the pty geometry a session gets
	// unless a client resizes it.
	DefaultCols uint16 = 120
	DefaultRows uint16 = 40
)

// Process is a running agent process and its terminal.
type Process struct {
	Terminal Terminal
	Cmd      *exec.Cmd
	pid      int
}

// PID returns the operating-system process id.
func (p *Process) PID() int {
	return p.pid
}

// Wait blocks until the process exits and returns its exit code.
// A signal-killed process reports the shell convention 128+signal via
// ExitCode; a wait failure reports -1.
func (p *Process) Wait() (int, error) {
	err := p.Cmd.Wait()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		return -1, err
	}
	return 0, nil
}

// Kill forcibly terminates the process.
func (p *Process) Kill() error {
	if p.Cmd.Process != nil {
		return p.Cmd.Process.Kill()
	}
	return nil
}

// Close releases the terminal handle. The process, if still running,
// sees EOF/SIGHUP on its controlling terminal.
func (p *Process) Close() error {
	return p.Terminal.Close()
}
