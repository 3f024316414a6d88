//go:build !windows
// +build !windows

package pty

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// unixTerminal drives the master side of a /dev/ptmx pair.
type unixTerminal struct {
	master *os.File
}

func (t *unixTerminal) Read(b []byte) (int, error)  { return t.master.Read(b) }
func (t *unixTerminal) Write(b []byte) (int, error) { return t.master.Write(b) }
func (t *unixTerminal) Close() error                { return t.master.Close() }

func (t *unixTerminal) Resize(cols, rows uint16) error {
	ws := &unix.Winsize{Row: rows, Col: cols}
	return unix.IoctlSetWinsize(int(t.master.Fd()), unix.TIOCSWINSZ, ws)
}

// Terminate asks the process to exit with SIGTERM. Stop escalates to
// Kill if the process ignores it.
func (p *Process) Terminate() error {
	if p.Cmd.Process != nil {
		return p.Cmd.Process.Signal(syscall.SIGTERM)
	}
	return nil
}

// Spawn starts the agent process attached to a fresh pseudo-terminal.
func Spawn(opts SpawnOptions) (*Process, error) {
	master, slave, err := openPair()
	if err != nil {
		return nil, fmt.Errorf("failed to open pty: %w", err)
	}

	cols, rows := opts.Cols, opts.Rows
	if cols == 0 {
		cols = DefaultCols
	}
	if rows == 0 {
		rows = DefaultRows
	}
	ws := &unix.Winsize{Row: rows, Col: cols}
	if err := unix.IoctlSetWinsize(int(master.Fd()), unix.TIOCSWINSZ, ws); err != nil {
		master.Close()
		slave.Close()
		return nil, fmt.Errorf("failed to set pty size: %w", err)
	}

	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Env = opts.Env
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}

	cmd.Stdin = slave
	cmd.Stdout = slave
	cmd.Stderr = slave

	// New session with the slave as controlling terminal, so the agent
	// behaves as if run interactively.
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid:  true,
		Setctty: true,
	}

	if err := cmd.Start(); err != nil {
		master.Close()
		slave.Close()
		return nil, fmt.Errorf("failed to start process: %w", err)
	}

	// Parent keeps only the master side.
	slave.Close()

	return &Process{
		Terminal: &unixTerminal{master: master},
		Cmd:      cmd,
		pid:      cmd.Process.Pid,
	}, nil
}

// openPair opens a new master/slave pseudo-terminal pair.
func openPair() (master, slave *os.File, err error) {
	master, err = os.OpenFile("/dev/ptmx", os.O_RDWR, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open /dev/ptmx: %w", err)
	}

	slaveName, err := ptsname(master)
	if err != nil {
		master.Close()
		return nil, nil, fmt.Errorf("failed to resolve slave name: %w", err)
	}

	if err := unlockpt(master); err != nil {
		master.Close()
		return nil, nil, fmt.Errorf("failed to unlock pty: %w", err)
	}

	slave, err = os.OpenFile(slaveName, os.O_RDWR|syscall.O_NOCTTY, 0)
	if err != nil {
		master.Close()
		return nil, nil, fmt.Errorf("failed to open slave pty: %w", err)
	}

	return master, slave, nil
}

func ptsname(master *os.File) (string, error) {
	var n uint32
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, master.Fd(), syscall.TIOCGPTN, uintptr(unsafe.Pointer(&n)))
	if errno != 0 {
		return "", errno
	}
	return fmt.Sprintf("/dev/pts/%d", n), nil
}

func unlockpt(master *os.File) error {
	var unlock int32
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, master.Fd(), syscall.TIOCSPTLCK, uintptr(unsafe.Pointer(&unlock)))
	if errno != 0 {
		return errno
	}
	return nil
}
