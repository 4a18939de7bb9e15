package models

import (
	"fmt"
	"regexp"
	"time"
)

// Phase defines the lifecycle stage of a game.
type Phase string

const (
	PhaseConfig    Phase = "CONFIG"
	PhaseLobby     Phase = "LOBBY"
	PhasePlaying   Phase = "PLAYING"
	PhaseCompleted Phase = "COMPLETED"
)

// Rank orders phases. Unknown phases rank below CONFIG.
func (p Phase) Rank() int {
	switch p {
	case PhaseConfig:
		return 0
	case PhaseLobby:
		return 1
	case PhasePlaying:
		return 2
	case PhaseCompleted:
		return 3
	default:
		return -1
	}
}

func (p Phase) Valid() bool {
	return p.Rank() >= 0
}

// SegmentCode identifies one of the five question segments.
type SegmentCode string

const (
	SegmentWSHA SegmentCode = "WSHA"
	SegmentAUCT SegmentCode = "AUCT"
	SegmentBELL SegmentCode = "BELL"
	SegmentSING SegmentCode = "SING"
	SegmentREMO SegmentCode = "REMO"
)

// SegmentOrder is the fixed play order.
var SegmentOrder = []SegmentCode{SegmentWSHA, SegmentAUCT, SegmentBELL, SegmentSING, SegmentREMO}

// Rank returns the position of the segment in SegmentOrder, or -1.
func (s SegmentCode) Rank() int {
	for i, code := range SegmentOrder {
		if code == s {
			return i
		}
	}
	return -1
}

func (s SegmentCode) Valid() bool {
	return s.Rank() >= 0
}

// Next returns the segment that follows s. ok is false for the final segment.
func (s SegmentCode) Next() (next SegmentCode, ok bool) {
	r := s.Rank()
	if r < 0 || r+1 >= len(SegmentOrder) {
		return "", false
	}
	return SegmentOrder[r+1], true
}

const (
	MinQuestionsPerSegment = 1
	MaxQuestionsPerSegment = 20
)

// SegmentSettings maps each segment to its question count.
type SegmentSettings map[SegmentCode]int

// DefaultSegmentSettings returns the stock question counts.
func DefaultSegmentSettings() SegmentSettings {
	return SegmentSettings{
		SegmentWSHA: 4,
		SegmentAUCT: 4,
		SegmentBELL: 10,
		SegmentSING: 10,
		SegmentREMO: 4,
	}
}

// Validate checks that every segment is present with a count in range.
func (s SegmentSettings) Validate() error {
	if len(s) != len(SegmentOrder) {
		return fmt.Errorf("%w: expected %d segments, got %d", ErrInvalidSettings, len(SegmentOrder), len(s))
	}
	for _, code := range SegmentOrder {
		count, ok := s[code]
		if !ok {
			return fmt.Errorf("%w: missing segment %s", ErrInvalidSettings, code)
		}
		if count < MinQuestionsPerSegment || count > MaxQuestionsPerSegment {
			return fmt.Errorf("%w: segment %s has %d questions, want %d-%d",
				ErrInvalidSettings, code, count, MinQuestionsPerSegment, MaxQuestionsPerSegment)
		}
	}
	return nil
}

func (s SegmentSettings) Clone() SegmentSettings {
	if s == nil {
		return nil
	}
	out := make(SegmentSettings, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// GameState is the replicated root aggregate of a single game.
type GameState struct {
	GameID               string              `json:"gameId"`
	HostCode             string              `json:"hostCode"`
	HostName             string              `json:"hostName"`
	HostIsConnected      bool                `json:"hostIsConnected"`
	Phase                Phase               `json:"phase"`
	CurrentSegment       SegmentCode         `json:"currentSegment,omitempty"`
	CurrentQuestionIndex int                 `json:"currentQuestionIndex"`
	SegmentComplete      bool                `json:"segmentComplete"`
	SegmentSettings      SegmentSettings     `json:"segmentSettings"`
	VideoRoomURL         string              `json:"videoRoomUrl,omitempty"`
	VideoRoomCreated     bool                `json:"videoRoomCreated"`
	Timer                int                 `json:"timer"`
	IsTimerRunning       bool                `json:"isTimerRunning"`
	Bell                 BellState           `json:"bell"`
	Players              map[PlayerID]Player `json:"players"`
	ScoreHistory         []ScoreEvent        `json:"scoreHistory"`
	CreatedAt            time.Time           `json:"createdAt"`
	UpdatedAt            time.Time           `json:"updatedAt"`
}

var gameIDPattern = regexp.MustCompile(`^[A-Z0-9]{1,32}$`)

// ValidGameID reports whether id can name a game. Ids become NATS subject
// tokens, so wildcards and separators are never allowed.
func ValidGameID(id string) bool {
	return gameIDPattern.MatchString(id)
}

// NewGameState builds a game in CONFIG with both player slots empty.
func NewGameState(gameID, hostCode, hostName string, settings SegmentSettings, now time.Time) GameState {
	if settings == nil {
		settings = DefaultSegmentSettings()
	}
	players := make(map[PlayerID]Player, len(PlayerSlots))
	for _, id := range PlayerSlots {
		players[id] = NewPlayer(id)
	}
	return GameState{
		GameID:          gameID,
		HostCode:        hostCode,
		HostName:        hostName,
		Phase:           PhaseConfig,
		SegmentSettings: settings.Clone(),
		Players:         players,
		ScoreHistory:    []ScoreEvent{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Clone returns a deep copy so callers can never alias another snapshot's maps or slices.
func (g GameState) Clone() GameState {
	c := g
	c.SegmentSettings = g.SegmentSettings.Clone()
	if g.Players != nil {
		c.Players = make(map[PlayerID]Player, len(g.Players))
		for id, p := range g.Players {
			c.Players[id] = p.Clone()
		}
	}
	if g.ScoreHistory != nil {
		c.ScoreHistory = make([]ScoreEvent, len(g.ScoreHistory))
		copy(c.ScoreHistory, g.ScoreHistory)
	}
	return c
}

// QuestionCount returns the configured count for the active segment, or 0.
func (g GameState) QuestionCount() int {
	if !g.CurrentSegment.Valid() {
		return 0
	}
	return g.SegmentSettings[g.CurrentSegment]
}

// ConnectedPlayerCount counts slots whose durable connection flag is set.
func (g GameState) ConnectedPlayerCount() int {
	n := 0
	for _, id := range PlayerSlots {
		if p, ok := g.Players[id]; ok && p.IsConnected {
			n++
		}
	}
	return n
}
