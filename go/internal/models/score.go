package models

import "time"

// ScoreEvent is one entry of the append-only score history.
type ScoreEvent struct {
	ID            string      `json:"id"`
	PlayerID      PlayerID    `json:"playerId"`
	Points        int         `json:"points"`
	Timestamp     time.Time   `json:"timestamp"`
	Segment       SegmentCode `json:"segment"`
	QuestionIndex int         `json:"questionIndex"`
}
