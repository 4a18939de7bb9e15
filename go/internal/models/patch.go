package models

import "time"

// GameStatePatch is a partial GameState. Nil fields are absent.
// Players carries the changed fields of each slot; ScoreHistory carries
// events to merge.
type GameStatePatch struct {
	HostName             *string             `json:"hostName,omitempty"`
	HostIsConnected      *bool               `json:"hostIsConnected,omitempty"`
	Phase                *Phase              `json:"phase,omitempty"`
	CurrentSegment       *SegmentCode        `json:"currentSegment,omitempty"`
	CurrentQuestionIndex *int                `json:"currentQuestionIndex,omitempty"`
	SegmentComplete      *bool               `json:"segmentComplete,omitempty"`
	SegmentSettings      SegmentSettings     `json:"segmentSettings,omitempty"`
	VideoRoomURL         *string             `json:"videoRoomUrl,omitempty"`
	VideoRoomCreated     *bool               `json:"videoRoomCreated,omitempty"`
	Timer                *int                `json:"timer,omitempty"`
	IsTimerRunning       *bool               `json:"isTimerRunning,omitempty"`
	Bell                 *BellState          `json:"bell,omitempty"`
	Players              map[PlayerID]PlayerPatch `json:"players,omitempty"`
	ScoreHistory         []ScoreEvent        `json:"scoreHistory,omitempty"`
}

// IsEmpty reports whether the patch carries no field at all.
func (p GameStatePatch) IsEmpty() bool {
	return !p.HasGameFields() && len(p.Players) == 0 && len(p.ScoreHistory) == 0
}

// HasGameFields reports whether any column of the games row is present.
func (p GameStatePatch) HasGameFields() bool {
	return p.HostName != nil ||
		p.HostIsConnected != nil ||
		p.Phase != nil ||
		p.CurrentSegment != nil ||
		p.CurrentQuestionIndex != nil ||
		p.SegmentComplete != nil ||
		p.SegmentSettings != nil ||
		p.VideoRoomURL != nil ||
		p.VideoRoomCreated != nil ||
		p.Timer != nil ||
		p.IsTimerRunning != nil ||
		p.Bell != nil
}

// PlayerPatch is a partial Player. Score and Strikes are the sender's view
// and only display values: stored scores move through ScoreHistory events
// and stored strikes through StrikesDelta, unless the delta is zero and
// Strikes is set (a reset). SpecialButtons lists only buttons that changed.
type PlayerPatch struct {
	Name           *string        `json:"name,omitempty"`
	Flag           *string        `json:"flag,omitempty"`
	Club           *string        `json:"club,omitempty"`
	Role           *string        `json:"role,omitempty"`
	Score          *int           `json:"score,omitempty"`
	Strikes        *int           `json:"strikes,omitempty"`
	StrikesDelta   int            `json:"strikesDelta,omitempty"`
	IsConnected    *bool          `json:"isConnected,omitempty"`
	SpecialButtons SpecialButtons `json:"specialButtons,omitempty"`
	JoinedAt       *time.Time     `json:"joinedAt,omitempty"`
	LastActive     *time.Time     `json:"lastActive,omitempty"`
}

// PlayerPatchFrom expresses every field of a slot record.
func PlayerPatchFrom(p Player) PlayerPatch {
	return PlayerPatch{
		Name:           Ptr(p.Name),
		Flag:           Ptr(p.Flag),
		Club:           Ptr(p.Club),
		Role:           Ptr(p.Role),
		Score:          Ptr(p.Score),
		Strikes:        Ptr(p.Strikes),
		IsConnected:    Ptr(p.IsConnected),
		SpecialButtons: p.SpecialButtons.Clone(),
		JoinedAt:       Ptr(p.JoinedAt),
		LastActive:     Ptr(p.LastActive),
	}
}

func (p PlayerPatch) IsEmpty() bool {
	return p.Name == nil && p.Flag == nil && p.Club == nil && p.Role == nil &&
		p.Score == nil && p.Strikes == nil && p.StrikesDelta == 0 &&
		p.IsConnected == nil && len(p.SpecialButtons) == 0 &&
		p.JoinedAt == nil && p.LastActive == nil
}

// Ptr returns a pointer to v. Used to build patches.
func Ptr[T any](v T) *T {
	return &v
}
