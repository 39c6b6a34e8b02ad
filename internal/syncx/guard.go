// Package syncx provides small synchronization primitives shared by the
// perception loop and the control surface.
package syncx

import "sync"

// Guard wraps a value behind an RWMutex.
type Guard[T any] struct {
	mu    sync.RWMutex
	value T
}

// NewGuard creates a guarded value.
func NewGuard[T any](initial T) *Guard[T] {
	return &Guard[T]{value: initial}
}

// Get returns a copy of the value (T should be a value type or immutable).
func (g *Guard[T]) Get() T {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.value
}

// Set replaces the value.
func (g *Guard[T]) Set(v T) {
	g.mu.Lock()
	g.value = v
	g.mu.Unlock()
}
