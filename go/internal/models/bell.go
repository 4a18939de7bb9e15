package models

// BellCountdownSeconds is the answer window after a successful buzz.
const BellCountdownSeconds = 10

// BellState is the buzzer record. Round increments on every activation and
// reset so presses from an earlier question can be told apart.
type BellState struct {
	IsActive       bool     `json:"isActive"`
	ClickedBy      PlayerID `json:"clickedBy,omitempty"`
	Round          int      `json:"round"`
	TimerSeconds   int      `json:"timerSeconds"`
	IsTimerRunning bool     `json:"isTimerRunning"`
}

// Claimed reports whether a player has won the current round.
func (b BellState) Claimed() bool {
	return b.ClickedBy != ""
}
