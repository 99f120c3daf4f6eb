package store

import (
	"maps"
	"slices"
	"sync"
	"time"
)

// Store is the in-memory status store for the daemon.
// It is thread-safe and supports pub/sub for real-time updates.
type Store struct {
	mu          sync.RWMutex
	state       *State
	subscribers map[chan Update]struct{}
	now         func() time.Time
}

// New creates a new Store instance.
func New() *Store {
	s := &Store{
		subscribers: make(map[chan Update]struct{}),
		now:         time.Now,
	}
	s.state = &State{
		StartedAt: s.now(),
		Roots:     make(map[string]int),
	}
	return s
}

// Get returns a copy of the current state.
func (s *Store) Get() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := *s.state
	st.Roots = maps.Clone(s.state.Roots)
	st.NewFiles = slices.Clone(s.state.NewFiles)
	return st
}

// ApplyUpdate modifies the state and notifies subscribers.
func (s *Store) ApplyUpdate(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch u.Type {
	case UpdatePhase:
		if p, ok := u.Payload.(PhasePayload); ok {
			s.state.Phase = p.Phase
			if p.Notifier != "" {
				s.state.Notifier = p.Notifier
			}
		}
	case UpdateRoots, UpdateScan:
		if p, ok := u.Payload.(ScanPayload); ok {
			s.state.Roots = maps.Clone(p.Roots)
			s.state.NewFiles = slices.Clone(p.NewFiles)
			if p.Cursor > s.state.Cursor {
				s.state.Cursor = p.Cursor
			}
		}
		if u.Type == UpdateScan {
			s.state.Scans++
			s.state.LastScan = s.now()
		}
	case UpdateDispatch:
		if p, ok := u.Payload.(DispatchPayload); ok {
			s.state.Dispatched += p.Succeeded
			s.state.Failed += p.Failed
		}
	}

	// Broadcast to subscribers
	for ch := range s.subscribers {
		select {
		case ch <- u:
		default:
			// Non-blocking send to prevent slow subscribers from stalling the worker
		}
	}
}

// Subscribe creates a new subscription channel for state updates.
func (s *Store) Subscribe() chan Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan Update, 100) // Buffered
	s.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (s *Store) Unsubscribe(ch chan Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscribers[ch]; !ok {
		return
	}
	delete(s.subscribers, ch)
	close(ch)
}
