// Package channel carries game traffic between attached clients: broadcast
// messages, presence and committed row changes, all scoped to one game id.
package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/events"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/models"
)

// ErrClosed is returned by a Subscription after Close.
var ErrClosed = errors.New("channel: subscription closed")

// Handler receives traffic for one joined game. Calls for one kind of
// traffic arrive in order; different kinds may interleave.
type Handler interface {
	HandleMessage(env events.Envelope, msg events.Message)
	HandleRowChange(rc events.RowChange)
	HandlePresence(ev events.PresenceEvent)
}

// Channel joins games.
type Channel interface {
	// Join subscribes handler to gameID. self identifies the sender so
	// broadcasts are never echoed back to it.
	Join(ctx context.Context, gameID, self string, handler Handler) (Subscription, error)
}

// Subscription is one client's attachment to a game.
type Subscription interface {
	Broadcast(ctx context.Context, msg events.Message) error
	Track(ctx context.Context, p models.LobbyParticipant) error
	Heartbeat(ctx context.Context) error
	Untrack(ctx context.Context) error
	Close() error
}

const (
	subjectRoot  = "thirty"
	changesRoot  = "thirty.changes"
	streamName   = "THIRTY_CHANGES"
	senderHeader = "Thirty-Sender"
)

// BroadcastSubject is the core NATS subject for a game's broadcast messages.
func BroadcastSubject(gameID string) string {
	return fmt.Sprintf("%s.games.%s.broadcast", subjectRoot, gameID)
}

// PresenceSubject is the core NATS subject for a game's presence traffic.
func PresenceSubject(gameID string) string {
	return fmt.Sprintf("%s.games.%s.presence", subjectRoot, gameID)
}

// ChangeSubject is the JetStream subject for a committed row.
func ChangeSubject(gameID string, table events.RowTable, rowID string) string {
	return fmt.Sprintf("%s.%s.%s.%s", changesRoot, gameID, table, rowID)
}

// ChangeFilter matches every row change of one game.
func ChangeFilter(gameID string) string {
	return fmt.Sprintf("%s.%s.>", changesRoot, gameID)
}

// ChangesStreamSubjects lists the subjects bound to the change stream.
func ChangesStreamSubjects() []string {
	return []string{changesRoot + ".>"}
}

// StreamName is the JetStream stream holding row changes.
func StreamName() string {
	return streamName
}

// tracking holds the participant a subscription announced. Versions come
// from the clock so a later incarnation always outranks an earlier one.
type tracking struct {
	mu          sync.Mutex
	clock       clockwork.Clock
	gameID      string
	participant models.LobbyParticipant
	version     uint64
	tracked     bool
}

func (t *tracking) track(p models.LobbyParticipant) events.PresenceEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()
	v := uint64(now.UnixNano())
	if v <= t.version {
		v = t.version + 1
	}
	t.participant = p
	t.version = v
	t.tracked = true
	return t.eventLocked(events.PresenceTrack, now)
}

func (t *tracking) untrack() (events.PresenceEvent, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.tracked {
		return events.PresenceEvent{}, false
	}
	t.tracked = false
	return t.eventLocked(events.PresenceUntrack, t.clock.Now()), true
}

// current returns the announcement to repeat, if any.
func (t *tracking) current(kind events.PresenceKind) (events.PresenceEvent, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.tracked {
		return events.PresenceEvent{}, false
	}
	return t.eventLocked(kind, t.clock.Now()), true
}

func (t *tracking) eventLocked(kind events.PresenceKind, at time.Time) events.PresenceEvent {
	return events.PresenceEvent{
		Kind:        kind,
		GameID:      t.gameID,
		Participant: t.participant,
		Version:     t.version,
		SentAt:      at,
	}
}

// syncRequest asks every tracked peer to announce itself again.
func syncRequest(gameID, self string, at time.Time) events.PresenceEvent {
	return events.PresenceEvent{
		Kind:        events.PresenceSync,
		GameID:      gameID,
		Participant: models.LobbyParticipant{ID: self},
		SentAt:      at,
	}
}
