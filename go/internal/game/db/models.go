package db

import (
	"database/sql"
	"time"

	"github.com/sqlc-dev/pqtype"
)

type Game struct {
	ID                   string                `json:"id"`
	HostCode             string                `json:"host_code"`
	HostName             sql.NullString        `json:"host_name"`
	HostIsConnected      bool                  `json:"host_is_connected"`
	Phase                string                `json:"phase"`
	CurrentSegment       sql.NullString        `json:"current_segment"`
	CurrentQuestionIndex int32                 `json:"current_question_index"`
	SegmentComplete      bool                  `json:"segment_complete"`
	SegmentSettings      pqtype.NullRawMessage `json:"segment_settings"`
	VideoRoomUrl         sql.NullString        `json:"video_room_url"`
	VideoRoomCreated     bool                  `json:"video_room_created"`
	Timer                int32                 `json:"timer"`
	IsTimerRunning       bool                  `json:"is_timer_running"`
	BellActive           bool                  `json:"bell_active"`
	BellClickedBy        sql.NullString        `json:"bell_clicked_by"`
	BellRound            int32                 `json:"bell_round"`
	BellTimer            int32                 `json:"bell_timer"`
	BellTimerRunning     bool                  `json:"bell_timer_running"`
	CreatedAt            time.Time             `json:"created_at"`
	UpdatedAt            time.Time             `json:"updated_at"`
}

type Player struct {
	ID             string                `json:"id"`
	GameID         string                `json:"game_id"`
	Name           sql.NullString        `json:"name"`
	Flag           sql.NullString        `json:"flag"`
	Club           sql.NullString        `json:"club"`
	Role           sql.NullString        `json:"role"`
	Score          int32                 `json:"score"`
	Strikes        int32                 `json:"strikes"`
	IsConnected    bool                  `json:"is_connected"`
	SpecialButtons pqtype.NullRawMessage `json:"special_buttons"`
	JoinedAt       time.Time             `json:"joined_at"`
	LastActive     time.Time             `json:"last_active"`
}

type ScoreEvent struct {
	ID            string         `json:"id"`
	GameID        string         `json:"game_id"`
	PlayerID      string         `json:"player_id"`
	Points        int32          `json:"points"`
	Segment       sql.NullString `json:"segment"`
	QuestionIndex int32          `json:"question_index"`
	CreatedAt     time.Time      `json:"created_at"`
}

type GameChangeOutbox struct {
	ID        int64        `json:"id"`
	GameID    string       `json:"game_id"`
	TableName string       `json:"table_name"`
	RowID     string       `json:"row_id"`
	Operation string       `json:"operation"`
	CreatedAt time.Time    `json:"created_at"`
	SentAt    sql.NullTime `json:"sent_at"`
}
