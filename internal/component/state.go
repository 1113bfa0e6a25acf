package component

import (
	"context"
	"sync"
)

// Event is delivered to a Handler.
type Event struct {
	// Type is the event name, e.g. "click".
	Type string
	// Key is the hydration key of the element the event targeted.
	Key string
}

// Handler reacts to a client-side event. Handlers never run during a server
// render.
type Handler func(ctx context.Context, e Event) error

// Store holds component instance state. A server render uses a fresh Store
// per call; the hydration bootstrapper keeps one for the life of a root.
type Store struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{values: make(map[string]any)}
}

func (s *Store) init(id string, initial any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[id]; !ok {
		s.values[id] = initial
	}
}

func (s *Store) get(id string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[id]
	return v, ok
}

func (s *Store) set(id string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[id] = v
}

// Len returns the number of state cells.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// State is a handle on one state cell.
type State struct {
	store *Store
	id    string
}

// Get returns the current value.
func (st *State) Get() any {
	v, _ := st.store.get(st.id)
	return v
}

// Set replaces the value. It takes effect on the next render against the
// same store.
func (st *State) Set(v any) {
	st.store.set(st.id, v)
}

// Value returns the current value of st as a T, and false when the cell holds
// something else.
func Value[T any](st *State) (T, bool) {
	v, ok := st.Get().(T)
	return v, ok
}
