// Package history keeps recent actions in memory and fans them out to
// listeners such as the websocket feed.
package history

import (
	"sync"
	"time"

	"github.com/GriffinCanCode/hotpath/internal/router"
)

// Event is an action announced to listeners.
type Event struct {
	Action router.Action
	Source string
}

// Entry is a stored action.
type Entry struct {
	Timestamp time.Time
	Action    router.Action
	Source    string
}

// Store is the action history used by the orchestrator.
type Store interface {
	Add(a router.Action, source string)
	Recent(window time.Duration) []Entry
	Events() <-chan Event
	Emit(event Event)
}

// MemoryStore is a bounded in-memory Store.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  []Entry
	maxSize  int
	eventsCh chan Event
	now      func() time.Time
}

// NewStore creates a history keeping at most maxEntries actions.
func NewStore(maxEntries, eventBuffer int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if eventBuffer < 0 {
		eventBuffer = DefaultEventBuffer
	}
	return &MemoryStore{
		entries:  make([]Entry, 0, maxEntries),
		maxSize:  maxEntries,
		eventsCh: make(chan Event, eventBuffer),
		now:      time.Now,
	}
}

// Add stores an action, dropping the oldest beyond capacity.
func (s *MemoryStore) Add(a router.Action, source string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, Entry{Timestamp: s.now(), Action: a, Source: source})
	if len(s.entries) > s.maxSize {
		s.entries = s.entries[len(s.entries)-s.maxSize:]
	}
}

// Recent returns actions from the last window, oldest first. A zero window
// returns everything.
func (s *MemoryStore) Recent(window time.Duration) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if window <= 0 {
		return append([]Entry(nil), s.entries...)
	}
	cutoff := s.now().Add(-window)
	var out []Entry
	for _, e := range s.entries {
		if !e.Timestamp.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

// Events returns the channel for action events.
func (s *MemoryStore) Events() <-chan Event {
	return s.eventsCh
}

// Emit sends an action event (non-blocking).
func (s *MemoryStore) Emit(event Event) {
	select {
	case s.eventsCh <- event:
	default:
	}
}

// Len returns the number of stored actions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
