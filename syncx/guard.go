// Package syncx provides small generic synchronization helpers.
package syncx

import "sync"

// RWGuard holds a value behind a RWMutex. Writers mutate through Write or
// Update; readers take copies through Get or View.
type RWGuard[T any] struct {
	mu    sync.RWMutex
	value T
}

// NewGuard creates a guarded value.
func NewGuard[T any](initial T) *RWGuard[T] {
	return &RWGuard[T]{value: initial}
}

// Get returns a copy of the value (T should be a value type).
func (g *RWGuard[T]) Get() T {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.value
}

// Set replaces the value.
func (g *RWGuard[T]) Set(v T) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.value = v
}

// Write executes fn while holding the write lock.
func (g *RWGuard[T]) Write(fn func(*T)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(&g.value)
}

// Update is Write that also returns a copy of the value after fn ran.
func (g *RWGuard[T]) Update(fn func(*T)) T {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(&g.value)
	return g.value
}

// View executes fn while holding the read lock.
func (g *RWGuard[T]) View(fn func(T)) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	fn(g.value)
}
