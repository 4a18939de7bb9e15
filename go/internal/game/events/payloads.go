package events

import (
	"time"

	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/models"
)

// EventType defines the broadcast message kinds exchanged between sessions.
type EventType string

const (
	EventTypeGameStateUpdate EventType = "game_state_update"
	EventTypePlayerJoin      EventType = "player_join"
	EventTypePlayerLeave     EventType = "player_leave"
	EventTypeHostUpdate      EventType = "host_update"
	EventTypeVideoRoomUpdate EventType = "video_room_update"
)

// Message is one of the five broadcast payloads.
type Message interface {
	Type() EventType
	message()
}

// GameStateUpdate carries a partial state.
type GameStateUpdate struct {
	GameState models.GameStatePatch `json:"gameState"`
}

type PlayerJoin struct {
	PlayerID   models.PlayerID `json:"playerId"`
	PlayerData models.Player   `json:"playerData"`
}

type PlayerLeave struct {
	PlayerID models.PlayerID `json:"playerId"`
}

type HostUpdate struct {
	HostName string `json:"hostName"`
}

type VideoRoomUpdate struct {
	RoomURL     string `json:"roomUrl"`
	RoomCreated bool   `json:"roomCreated"`
}

func (GameStateUpdate) Type() EventType { return EventTypeGameStateUpdate }
func (PlayerJoin) Type() EventType      { return EventTypePlayerJoin }
func (PlayerLeave) Type() EventType     { return EventTypePlayerLeave }
func (HostUpdate) Type() EventType      { return EventTypeHostUpdate }
func (VideoRoomUpdate) Type() EventType { return EventTypeVideoRoomUpdate }

func (GameStateUpdate) message() {}
func (PlayerJoin) message()      {}
func (PlayerLeave) message()     {}
func (HostUpdate) message()      {}
func (VideoRoomUpdate) message() {}

// PresenceKind defines presence protocol messages.
type PresenceKind string

const (
	PresenceTrack     PresenceKind = "track"
	PresenceUntrack   PresenceKind = "untrack"
	PresenceHeartbeat PresenceKind = "heartbeat"
	PresenceSync      PresenceKind = "sync"
)

// PresenceEvent announces a participant. Version increases with every
// track/untrack from the same participant.
type PresenceEvent struct {
	Kind        PresenceKind            `json:"kind"`
	GameID      string                  `json:"gameId"`
	Participant models.LobbyParticipant `json:"participant"`
	Version     uint64                  `json:"version"`
	SentAt      time.Time               `json:"sentAt"`
}

// RowTable names a table that feeds the change stream.
type RowTable string

const (
	TableGames       RowTable = "games"
	TablePlayers     RowTable = "players"
	TableScoreEvents RowTable = "score_events"
)

// RowChange is a committed row, already mapped to a state patch.
type RowChange struct {
	ChangeID    int64                 `json:"changeId"`
	GameID      string                `json:"gameId"`
	Table       RowTable              `json:"table"`
	Operation   string                `json:"operation"`
	RowID       string                `json:"rowId"`
	Patch       models.GameStatePatch `json:"patch"`
	CommittedAt time.Time             `json:"committedAt"`
}
