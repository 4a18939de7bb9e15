package models

import "time"

// PlayerID is a player slot key.
type PlayerID string

const (
	PlayerA PlayerID = "playerA"
	PlayerB PlayerID = "playerB"
)

// PlayerSlots lists the two fixed slots.
var PlayerSlots = []PlayerID{PlayerA, PlayerB}

func (id PlayerID) Valid() bool {
	return id == PlayerA || id == PlayerB
}

// SpecialButton is a one-shot power-up.
type SpecialButton string

const (
	LockButton     SpecialButton = "LOCK_BUTTON"
	TravelerButton SpecialButton = "TRAVELER_BUTTON"
	PitButton      SpecialButton = "PIT_BUTTON"
)

var SpecialButtonKinds = []SpecialButton{LockButton, TravelerButton, PitButton}

func (b SpecialButton) Valid() bool {
	for _, k := range SpecialButtonKinds {
		if k == b {
			return true
		}
	}
	return false
}

// SpecialButtons maps a button to whether it is still available.
type SpecialButtons map[SpecialButton]bool

// NewSpecialButtons returns a set with every button available.
func NewSpecialButtons() SpecialButtons {
	b := make(SpecialButtons, len(SpecialButtonKinds))
	for _, k := range SpecialButtonKinds {
		b[k] = true
	}
	return b
}

func (b SpecialButtons) Clone() SpecialButtons {
	if b == nil {
		return nil
	}
	out := make(SpecialButtons, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Available reports whether the button has not been used yet.
// A missing entry counts as available.
func (b SpecialButtons) Available(button SpecialButton) bool {
	v, ok := b[button]
	return !ok || v
}

const MaxStrikes = 3

// Player is the record held in a player slot.
type Player struct {
	ID             PlayerID       `json:"id"`
	Name           string         `json:"name"`
	Flag           string         `json:"flag,omitempty"`
	Club           string         `json:"club,omitempty"`
	Role           string         `json:"role,omitempty"`
	Score          int            `json:"score"`
	Strikes        int            `json:"strikes"`
	IsConnected    bool           `json:"isConnected"`
	SpecialButtons SpecialButtons `json:"specialButtons"`
	JoinedAt       time.Time      `json:"joinedAt"`
	LastActive     time.Time      `json:"lastActive"`
}

// NewPlayer returns an empty, disconnected record for a slot.
func NewPlayer(id PlayerID) Player {
	return Player{
		ID:             id,
		SpecialButtons: NewSpecialButtons(),
	}
}

func (p Player) Clone() Player {
	c := p
	c.SpecialButtons = p.SpecialButtons.Clone()
	return c
}
