// Package telemetry stores recent control samples in a fixed-capacity
// ring buffer shared between the control loop (single writer) and any
// number of dashboard readers.
package telemetry

import (
	"fmt"
	"sync"
)

// Ring is a thread-safe FIFO of control samples. When full, the oldest
// entry is evicted. Readers always see fully constructed samples: the
// writer builds the Sample value before taking the lock, and readers get
// copies out.
type Ring struct {
	mu    sync.RWMutex
	buf   []Sample
	head  int    // index of the oldest sample
	size  int    // number of valid samples
	total uint64 // samples ever appended; doubles as the sequence number
}

// NewRing creates a ring holding up to capacity samples.
func NewRing(capacity int) (*Ring, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("invalid ring capacity: %d", capacity)
	}
	return &Ring{buf: make([]Sample, capacity)}, nil
}

// Append adds a sample, evicting the oldest when full. Called only by the
// control loop.
func (r *Ring) Append(s Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size < len(r.buf) {
		r.buf[(r.head+r.size)%len(r.buf)] = s
		r.size++
	} else {
		r.buf[r.head] = s
		r.head = (r.head + 1) % len(r.buf)
	}
	r.total++
}

// Latest returns up to n samples ending with the newest, oldest first.
// n <= 0 returns all buffered samples.
func (r *Ring) Latest(n int) []Sample {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n <= 0 || n > r.size {
		n = r.size
	}
	if n == 0 {
		return nil
	}

	out := make([]Sample, n)
	start := r.head + r.size - n
	for i := 0; i < n; i++ {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out
}

// All returns every buffered sample, oldest first.
func (r *Ring) All() []Sample {
	return r.Latest(0)
}

// Since returns the samples appended at or after sequence number seq,
// oldest first, along with the next sequence number to poll with.
// Samples already evicted are silently skipped.
func (r *Ring) Since(seq uint64) ([]Sample, uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	next := r.total
	if seq >= r.total {
		return nil, next
	}

	missed := r.total - seq
	n := int(missed)
	if n > r.size {
		n = r.size
	}
	if n == 0 {
		return nil, next
	}

	out := make([]Sample, n)
	start := r.head + r.size - n
	for i := 0; i < n; i++ {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out, next
}

// Len returns the number of buffered samples.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Cap returns the fixed capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Total returns the number of samples ever appended.
func (r *Ring) Total() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.total
}

// Clear drops all buffered samples. The sequence number keeps counting.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head = 0
	r.size = 0
}
