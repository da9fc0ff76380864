package observe

import "sync"

// Subject holds a value and notifies listeners when it changes. Services own
// one per published property; consumers subscribe instead of polling.
type Subject[T any] struct {
	mu        sync.RWMutex
	value     T
	listeners []func(T)
}

func NewSubject[T any](initial T) *Subject[T] {
	return &Subject[T]{value: initial}
}

// Get returns the current value.
func (s *Subject[T]) Get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Set stores a new value and notifies listeners with a snapshot.
func (s *Subject[T]) Set(v T) {
	s.mu.Lock()
	s.value = v
	listeners := append([]func(T){}, s.listeners...)
	s.mu.Unlock()

	for _, listener := range listeners {
		listener(v)
	}
}

// OnChange registers a callback invoked on every Set.
func (s *Subject[T]) OnChange(listener func(T)) {
	if listener == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, listener)
}
