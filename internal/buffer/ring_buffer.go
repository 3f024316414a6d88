// Package buffer provides the bounded output cache a session keeps for
// reconnect replay.
package buffer

import "sync"

// RingBuffer holds the most recent bytes written to it, up to a fixed
// capacity; older bytes are discarded as new ones arrive. A session
// writes its raw pty output here so a browser that subscribes late (or
// reconnects) can restore the terminal view.
type RingBuffer struct {
	mu       sync.RWMutex
	data     []byte
	capacity int
}

// NewRingBuffer creates a buffer retaining the last capacity bytes.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer{
		data:     make([]byte, 0, capacity),
		capacity: capacity,
	}
}

// Write appends p, discarding the oldest bytes when the total exceeds
// capacity. Implements io.Writer and never fails.
func (rb *RingBuffer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	if len(p) >= rb.capacity {
		rb.data = append(rb.data[:0], p[len(p)-rb.capacity:]...)
		return len(p), nil
	}

	total := len(rb.data) + len(p)
	if total <= rb.capacity {
		rb.data = append(rb.data, p...)
		return len(p), nil
	}

	discard := total - rb.capacity
	kept := copy(rb.data, rb.data[discard:])
	rb.data = append(rb.data[:kept], p...)
	return len(p), nil
}

// Snapshot returns a copy of the buffered bytes, oldest first.
func (rb *RingBuffer) Snapshot() []byte {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if len(rb.data) == 0 {
		return nil
	}
	out := make([]byte, len(rb.data))
	copy(out, rb.data)
	return out
}

// Len returns the number of buffered bytes.
func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return len(rb.data)
}

// Cap returns the retention capacity.
func (rb *RingBuffer) Cap() int {
	return rb.capacity
}
