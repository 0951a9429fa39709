// Package status holds the simulated VM health flag.
package status

import (
	"sync"
	"sync/atomic"
)

// Listener is called with the current health after every change
type Listener func(healthy bool)

// Store is the process-wide health flag. Reads and flips are lock-free;
// listeners are invoked one at a time with the latest value.
type Store struct {
	healthy atomic.Bool

	mu        sync.Mutex
	listeners []Listener
}

// NewStore creates a store with the given initial health
func NewStore(healthy bool) *Store {
	s := &Store{}
	s.healthy.Store(healthy)
	return s
}

// Healthy returns the current flag
func (s *Store) Healthy() bool {
	return s.healthy.Load()
}

// Toggle flips the flag and returns the new value
func (s *Store) Toggle() bool {
	for {
		old := s.healthy.Load()
		if s.healthy.CompareAndSwap(old, !old) {
			s.notify()
			return !old
		}
	}
}

// Set forces the flag to healthy
func (s *Store) Set(healthy bool) {
	if s.healthy.Swap(healthy) != healthy {
		s.notify()
	}
}

// OnChange registers a listener and calls it once with the current value
func (s *Store) OnChange(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listeners = append(s.listeners, l)
	l(s.healthy.Load())
}

// notify reads the flag under mu, so the last listener call always sees
// the final value even when flips race.
func (s *Store) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.healthy.Load()
	for _, l := range s.listeners {
		l(current)
	}
}
