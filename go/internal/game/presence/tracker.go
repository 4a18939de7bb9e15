// Package presence tracks who is attached to a game. The participant set is
// a join-semilattice: merging in any order yields the same result.
package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/events"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/models"
)

// DefaultTTL is how long a participant stays live without a heartbeat.
const DefaultTTL = 30 * time.Second

// Entry is the replicated record for one participant.
type Entry struct {
	Participant models.LobbyParticipant `json:"participant"`
	Version     uint64                  `json:"version"`
	Left        bool                    `json:"left"`
	LastSeen    time.Time               `json:"lastSeen"`
}

// merge keeps the higher version; at equal versions a leave wins.
func merge(a, b Entry) Entry {
	var out Entry
	switch {
	case a.Version > b.Version:
		out = a
	case b.Version > a.Version:
		out = b
	default:
		out = a
		if lessParticipant(a.Participant, b.Participant) {
			out = b
		}
		out.Left = a.Left || b.Left
	}
	if b.LastSeen.After(a.LastSeen) {
		out.LastSeen = b.LastSeen
	} else {
		out.LastSeen = a.LastSeen
	}
	return out
}

type Tracker struct {
	mu      sync.RWMutex
	clock   clockwork.Clock
	ttl     time.Duration
	entries map[string]Entry
}

func NewTracker(clock clockwork.Clock, ttl time.Duration) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{
		clock:   clock,
		ttl:     ttl,
		entries: make(map[string]Entry),
	}
}

// Observe folds a presence event in. It reports whether the live set changed.
func (t *Tracker) Observe(ev events.PresenceEvent) bool {
	if ev.Participant.ID == "" || ev.Kind == events.PresenceSync {
		return false
	}
	in := Entry{
		Participant: ev.Participant,
		Version:     ev.Version,
		Left:        ev.Kind == events.PresenceUntrack,
		LastSeen:    t.clock.Now(),
	}
	return t.Merge([]Entry{in})
}

// Merge folds remote entries in. It reports whether the live set changed.
func (t *Tracker) Merge(entries []Entry) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	before := t.liveLocked()
	for _, in := range entries {
		if in.Participant.ID == "" {
			continue
		}
		if cur, ok := t.entries[in.Participant.ID]; ok {
			t.entries[in.Participant.ID] = merge(cur, in)
		} else {
			t.entries[in.Participant.ID] = in
		}
	}
	return !sameParticipants(before, t.liveLocked())
}

// Snapshot returns every entry, including tombstones.
func (t *Tracker) Snapshot() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Participant.ID < out[j].Participant.ID })
	return out
}

// Participants returns live participants ordered by id.
func (t *Tracker) Participants() []models.LobbyParticipant {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.liveLocked()
}

// Prune drops entries whose heartbeat is older than the TTL and returns their ids.
func (t *Tracker) Prune() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()
	var expired []string
	for id, e := range t.entries {
		if now.Sub(e.LastSeen) > t.ttl {
			delete(t.entries, id)
			if !e.Left {
				expired = append(expired, id)
			}
		}
	}
	sort.Strings(expired)
	return expired
}

// PlayerConnected ORs the durable flag with live presence for the slot.
func (t *Tracker) PlayerConnected(state models.GameState, id models.PlayerID) bool {
	if p, ok := state.Players[id]; ok && p.IsConnected {
		return true
	}
	for _, p := range t.Participants() {
		if p.Type == models.ParticipantPlayer && p.PlayerID == id && p.IsConnected {
			return true
		}
	}
	return false
}

// HostConnected ORs the durable flag with any live host device.
func (t *Tracker) HostConnected(state models.GameState) bool {
	if state.HostIsConnected {
		return true
	}
	for _, p := range t.Participants() {
		if p.Type.IsHost() && p.IsConnected {
			return true
		}
	}
	return false
}

// ConnectedPlayers counts slots connected by either signal, so the result is
// never lower than either count alone.
func (t *Tracker) ConnectedPlayers(state models.GameState) int {
	n := 0
	for _, id := range models.PlayerSlots {
		if t.PlayerConnected(state, id) {
			n++
		}
	}
	return n
}

func (t *Tracker) liveLocked() []models.LobbyParticipant {
	now := t.clock.Now()
	out := make([]models.LobbyParticipant, 0, len(t.entries))
	for _, e := range t.entries {
		if e.Left || now.Sub(e.LastSeen) > t.ttl {
			continue
		}
		out = append(out, e.Participant)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func lessParticipant(a, b models.LobbyParticipant) bool {
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	if a.Type != b.Type {
		return a.Type < b.Type
	}
	if a.PlayerID != b.PlayerID {
		return a.PlayerID < b.PlayerID
	}
	return !a.IsConnected && b.IsConnected
}

func sameParticipants(a, b []models.LobbyParticipant) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
