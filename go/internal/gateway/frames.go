package gateway

import (
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/models"
)

// FrameType tags every message pushed to a browser.
type FrameType string

const (
	FrameWelcome  FrameType = "welcome"
	FrameState    FrameType = "state"
	FramePresence FrameType = "presence"
	FrameResult   FrameType = "result"
	FrameShutdown FrameType = "shutdown"
)

// WelcomeFrame is the first frame on a new connection.
type WelcomeFrame struct {
	Type          FrameType              `json:"type"`
	ConnectionID  string                 `json:"connectionId"`
	ParticipantID string                 `json:"participantId"`
	Role          models.ParticipantType `json:"role"`
	PlayerID      models.PlayerID        `json:"playerId,omitempty"`
	Mode          string                 `json:"mode"`
	Warnings      []string               `json:"warnings,omitempty"`
}

// StateFrame carries the full local snapshot after every change.
type StateFrame struct {
	Type  FrameType        `json:"type"`
	State models.GameState `json:"state"`
}

type PresenceFrame struct {
	Type         FrameType                 `json:"type"`
	Participants []models.LobbyParticipant `json:"participants"`
}

// ResultFrame answers one client command.
type ResultFrame struct {
	Type    FrameType `json:"type"`
	ID      string    `json:"id,omitempty"`
	Action  string    `json:"action"`
	Success bool      `json:"success"`
	Applied bool      `json:"applied"`
	Error   string    `json:"error,omitempty"`
}

type ShutdownFrame struct {
	Type   FrameType `json:"type"`
	Reason string    `json:"reason"`
}

// visibleState hides the host code from anyone but a host.
func visibleState(state models.GameState, role models.ParticipantType) models.GameState {
	if !role.IsHost() {
		state.HostCode = ""
	}
	return state
}
