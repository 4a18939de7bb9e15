package store

import (
	"sync"

	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/engine"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/models"
)

// Listener receives a snapshot after every change.
type Listener func(state models.GameState)

// GameStore owns the single GameState of a session. Dispatch is the only way
// to mutate it and applications never interleave.
type GameStore struct {
	mu        sync.Mutex
	state     models.GameState
	version   uint64
	listeners map[int]Listener
	nextID    int

	notifyMu  sync.Mutex
	delivered uint64
}

// New creates a store seeded with initial.
func New(initial models.GameState) *GameStore {
	return &GameStore{
		state:     initial.Clone(),
		listeners: make(map[int]Listener),
	}
}

// State returns a copy of the current snapshot.
func (s *GameStore) State() models.GameState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Version increases by one on every change.
func (s *GameStore) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Dispatch runs action through the reducer and returns the snapshots on
// either side of it. changed is false when the action was a no-op.
func (s *GameStore) Dispatch(action engine.Action) (before, after models.GameState, changed bool) {
	s.mu.Lock()
	before = s.state
	next, changed := engine.Apply(s.state, action)
	if !changed {
		s.mu.Unlock()
		return before.Clone(), before.Clone(), false
	}
	s.state = next
	s.version++
	version := s.version
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	after = next.Clone()
	s.notify(version, after, listeners)
	return before.Clone(), after, true
}

// Replace swaps in an authoritative snapshot, e.g. a fresh read from the store.
func (s *GameStore) Replace(state models.GameState) {
	s.mu.Lock()
	s.state = state.Clone()
	s.version++
	version := s.version
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	s.notify(version, state.Clone(), listeners)
}

// Subscribe registers fn and returns a function that removes it.
func (s *GameStore) Subscribe(fn Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *GameStore) snapshotListeners() []Listener {
	out := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		out = append(out, l)
	}
	return out
}

// notify delivers snapshots in version order and drops superseded ones.
func (s *GameStore) notify(version uint64, state models.GameState, listeners []Listener) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if version <= s.delivered {
		return
	}
	s.delivered = version
	for _, l := range listeners {
		l(state)
	}
}
