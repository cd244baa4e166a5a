package session

import "sync"

// Ring is a bounded most-recent window. Appends beyond the cap evict the
// oldest entry. Both the live channel and polled fetches append here; the
// two sources are independent, idempotent appends with no merge step.
type Ring[T any] struct {
	mu    sync.RWMutex
	items []T
	cap   int
}

// NewRing creates a ring holding at most capacity items.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{cap: capacity}
}

// Append adds item, evicting the oldest entry when the window is full.
func (r *Ring[T]) Append(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items = append(r.items, item)
	if len(r.items) > r.cap {
		r.items = r.items[len(r.items)-r.cap:]
	}
}

// Items returns a copy of the window, oldest first.
func (r *Ring[T]) Items() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, len(r.items))
	copy(out, r.items)
	return out
}

// ItemsNewestFirst returns a copy of the window, newest first. Used for
// the fault timeline, which displays most recent events on top.
func (r *Ring[T]) ItemsNewestFirst() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, len(r.items))
	for i, item := range r.items {
		out[len(r.items)-1-i] = item
	}
	return out
}

// Len returns the current window size.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}
