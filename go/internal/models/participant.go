package models

// ParticipantType distinguishes the devices that can be present in a game.
type ParticipantType string

const (
	ParticipantHostPC     ParticipantType = "host-pc"
	ParticipantHostMobile ParticipantType = "host-mobile"
	ParticipantPlayer     ParticipantType = "player"
)

func (t ParticipantType) Valid() bool {
	switch t {
	case ParticipantHostPC, ParticipantHostMobile, ParticipantPlayer:
		return true
	}
	return false
}

func (t ParticipantType) IsHost() bool {
	return t == ParticipantHostPC || t == ParticipantHostMobile
}

// LobbyParticipant is ephemeral presence data. It is never persisted.
type LobbyParticipant struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Type        ParticipantType `json:"type"`
	PlayerID    PlayerID        `json:"playerId,omitempty"`
	IsConnected bool            `json:"isConnected"`
}
