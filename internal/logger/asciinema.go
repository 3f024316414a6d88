// Package logger records session terminals as Asciinema v2 casts so
// conversations can be replayed after the fact.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Header is the first line of an Asciinema v2 recording.
type Header struct {
	Version   int   `json:"version"`
	Width     int   `json:"width"`
	Height    int   `json:"height"`
	Timestamp int64 `json:"timestamp"`
}

// CastEvent is one recorded event: [offset_seconds, type, data] where
// type is "o" for output and "i" for input.
type CastEvent struct {
	Offset float64
	Kind   string
	Data   string
}

// MarshalJSON renders the event as the three-element array form.
func (e CastEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{e.Offset, e.Kind, e.Data})
}

// UnmarshalJSON parses the three-element array form.
func (e *CastEvent) UnmarshalJSON(data []byte) error {
	var arr []interface{}
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	if len(arr) != 3 {
		return fmt.Errorf("invalid cast event: expected 3 elements, got %d", len(arr))
	}
	offset, ok := arr[0].(float64)
	if !ok {
		return fmt.Errorf("invalid cast event offset")
	}
	kind, ok := arr[1].(string)
	if !ok {
		return fmt.Errorf("invalid cast event kind")
	}
	payload, ok := arr[2].(string)
	if !ok {
		return fmt.Errorf("invalid cast event data")
	}
	e.Offset, e.Kind, e.Data = offset, kind, payload
	return nil
}

// CastLogger writes a session transcript in Asciinema v2 JSON-Lines.
type CastLogger struct {
	mu        sync.Mutex
	writer    io.Writer
	file      *os.File // set only when the logger owns the file
	startTime time.Time
}

// NewCastLogger creates a logger writing to path.
func NewCastLogger(path string) (*CastLogger, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcript: %w", err)
	}
	return &CastLogger{
		writer:    file,
		file:      file,
		startTime: time.Now(),
	}, nil
}

// NewCastLoggerWithWriter creates a logger writing to w. Used in tests.
func NewCastLoggerWithWriter(w io.Writer) *CastLogger {
	return &CastLogger{
		writer:    w,
		startTime: time.Now(),
	}
}

// WriteHeader writes the recording header. Call once, before any event.
func (l *CastLogger) WriteHeader(cols, rows int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(Header{
		Version:   2,
		Width:     cols,
		Height:    rows,
		Timestamp: l.startTime.Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if _, err := l.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	return nil
}

// WriteOutput records bytes the agent wrote to its terminal.
func (l *CastLogger) WriteOutput(data []byte) error {
	return l.writeEvent("o", data)
}

// WriteInput records bytes sent to the agent's terminal.
func (l *CastLogger) WriteInput(data []byte) error {
	return l.writeEvent("i", data)
}

func (l *CastLogger) writeEvent(kind string, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ev := CastEvent{
		Offset: time.Since(l.startTime).Seconds(),
		Kind:   kind,
		Data:   string(data),
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal cast event: %w", err)
	}
	if _, err := l.writer.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write cast event: %w", err)
	}
	return nil
}

// Close closes the transcript file, if the logger owns one.
func (l *CastLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
