package natsutil

import (
	"context"
	"sync"
)

// Holder is a single-slot "latest value" box: a writer overwrites
// whatever was there before, a reader always sees only the most
// recently written value, and a waiter is woken on every change. It
// generalizes the wake-on-change single-slot pattern used for live
// camera frame delivery into a reusable primitive for propagating
// config and calibration updates to long-running consumer loops.
type Holder[T any] struct {
	mu      sync.Mutex
	value   T
	everSet bool
	unseen  bool
	ready   chan struct{}
}

// NewHolder creates an empty holder.
func NewHolder[T any]() *Holder[T] {
	return &Holder[T]{ready: make(chan struct{})}
}

// Set stores value and wakes any goroutine blocked in Wait.
func (h *Holder[T]) Set(value T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.value = value
	h.everSet = true
	h.unseen = true
	close(h.ready)
	h.ready = make(chan struct{})
}

// Get returns the most recently set value and whether one has ever
// been set.
func (h *Holder[T]) Get() (T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.value, h.everSet
}

// Wait returns the latest value at once if Set was called since the
// previous Wait returned; otherwise it blocks until the next Set call
// or until ctx is done. Values overwritten between two Waits are never
// returned, only the latest one.
func (h *Holder[T]) Wait(ctx context.Context) (T, error) {
	h.mu.Lock()
	if h.unseen {
		h.unseen = false
		v := h.value
		h.mu.Unlock()
		return v, nil
	}
	ready := h.ready
	h.mu.Unlock()

	select {
	case <-ready:
		h.mu.Lock()
		h.unseen = false
		v := h.value
		h.mu.Unlock()
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
