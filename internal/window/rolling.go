// Package window holds a fixed-capacity, FIFO-evicting history of recent values.
package window

import (
	"fmt"
	"sync"
)

// DefaultCapacity matches the number of points kept for display.
const DefaultCapacity = 500

// Rolling is a ring buffer of at most Cap() items, oldest first. Appends and
// snapshots are serialised by a lock, so readers never see a half-evicted state.
type Rolling[T any] struct {
	mu    sync.RWMutex
	buf   []T
	start int
	size  int
}

// New builds a Rolling window with the given fixed capacity.
func New[T any](capacity int) (*Rolling[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("window capacity must be positive, got %d", capacity)
	}
	return &Rolling[T]{buf: make([]T, capacity)}, nil
}

// Append inserts item, evicting the oldest one first when full.
func (r *Rolling[T]) Append(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == len(r.buf) {
		var zero T
		r.buf[r.start] = zero
		r.start = (r.start + 1) % len(r.buf)
		r.size--
	}
	r.buf[(r.start+r.size)%len(r.buf)] = item
	r.size++
}

// Snapshot returns a copy of the contents, oldest first.
func (r *Rolling[T]) Snapshot() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// Latest returns the newest item, if any.
func (r *Rolling[T]) Latest() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero T
	if r.size == 0 {
		return zero, false
	}
	return r.buf[(r.start+r.size-1)%len(r.buf)], true
}

// Len is the current number of items.
func (r *Rolling[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Cap is the fixed capacity.
func (r *Rolling[T]) Cap() int {
	return len(r.buf)
}
