//go:build windows
// +build windows

package pty

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	kernel32                = windows.NewLazySystemDLL("kernel32.dll")
	procCreatePseudoConsole = kernel32.NewProc("CreatePseudoConsole")
	procResizePseudoConsole = kernel32.NewProc("ResizePseudoConsole")
	procClosePseudoConsole  = kernel32.NewProc("ClosePseudoConsole")
)

// conptyTerminal implements Terminal over the Windows ConPTY API
// (Windows 10 1809+).
type conptyTerminal struct {
	hPC         windows.Handle
	outputRead  *os.File // process output -> our reads
	inputWrite  *os.File // our writes -> process input
}

func (t *conptyTerminal) Read(b []byte) (int, error)  { return t.outputRead.Read(b) }
func (t *conptyTerminal) Write(b []byte) (int, error) { return t.inputWrite.Write(b) }

func (t *conptyTerminal) Close() error {
	var firstErr error
	if t.outputRead != nil {
		if err := t.outputRead.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if t.inputWrite != nil {
		if err := t.inputWrite.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if t.hPC != 0 {
		procClosePseudoConsole.Call(uintptr(t.hPC))
	}
	return firstErr
}

func (t *conptyTerminal) Resize(cols, rows uint16) error {
	size := (int32(rows) << 16) | int32(cols)
	ret, _, err := procResizePseudoConsole.Call(uintptr(t.hPC), uintptr(size))
	if ret != 0 {
		return fmt.Errorf("ResizePseudoConsole failed: %w", err)
	}
	return nil
}

// Terminate has no graceful signal on Windows; it kills the process.
func (p *Process) Terminate() error {
	return p.Kill()
}

// Spawn starts the agent process attached to a ConPTY pseudo-console.
func Spawn(opts SpawnOptions) (*Process, error) {
	if err := procCreatePseudoConsole.Find(); err != nil {
		return nil, fmt.Errorf("ConPTY not available: %w", err)
	}

	var outRead, outWrite, inRead, inWrite windows.Handle
	if err := windows.CreatePipe(&outRead, &outWrite, nil, 0); err != nil {
		return nil, fmt.Errorf("failed to create output pipe: %w", err)
	}
	if err := windows.CreatePipe(&inRead, &inWrite, nil, 0); err != nil {
		windows.CloseHandle(outRead)
		windows.CloseHandle(outWrite)
		return nil, fmt.Errorf("failed to create input pipe: %w", err)
	}

	cols, rows := opts.Cols, opts.Rows
	if cols == 0 {
		cols = DefaultCols
	}
	if rows == 0 {
		rows = DefaultRows
	}
	size := (int32(rows) << 16) | int32(cols)

	var hPC windows.Handle
	ret, _, err := procCreatePseudoConsole.Call(
		uintptr(size),
		uintptr(inRead),
		uintptr(outWrite),
		0,
		uintptr(unsafe.Pointer(&hPC)),
	)
	if ret != 0 {
		windows.CloseHandle(outRead)
		windows.CloseHandle(outWrite)
		windows.CloseHandle(inRead)
		windows.CloseHandle(inWrite)
		return nil, fmt.Errorf("CreatePseudoConsole failed: %w", err)
	}

	// Handles now owned by the pseudo console.
	windows.CloseHandle(inRead)
	windows.CloseHandle(outWrite)

	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Env = opts.Env
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_UNICODE_ENVIRONMENT,
	}

	if err := cmd.Start(); err != nil {
		procClosePseudoConsole.Call(uintptr(hPC))
		windows.CloseHandle(outRead)
		windows.CloseHandle(inWrite)
		return nil, fmt.Errorf("failed to start process: %w", err)
	}

	return &Process{
		Terminal: &conptyTerminal{
			hPC:        hPC,
			outputRead: os.NewFile(uintptr(outRead), "conpty-output"),
			inputWrite: os.NewFile(uintptr(inWrite), "conpty-input"),
		},
		Cmd: cmd,
		pid: cmd.Process.Pid,
	}, nil
}
