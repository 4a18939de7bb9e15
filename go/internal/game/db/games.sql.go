package db

import (
	"context"
	"database/sql"

	"github.com/sqlc-dev/pqtype"
)

const gameColumns = `id, host_code, host_name, host_is_connected, phase, current_segment, current_question_index, segment_complete, segment_settings, video_room_url, video_room_created, timer, is_timer_running, bell_active, bell_clicked_by, bell_round, bell_timer, bell_timer_running, created_at, updated_at`

func scanGame(row interface{ Scan(...interface{}) error }) (Game, error) {
	var i Game
	err := row.Scan(
		&i.ID,
		&i.HostCode,
		&i.HostName,
		&i.HostIsConnected,
		&i.Phase,
		&i.CurrentSegment,
		&i.CurrentQuestionIndex,
		&i.SegmentComplete,
		&i.SegmentSettings,
		&i.VideoRoomUrl,
		&i.VideoRoomCreated,
		&i.Timer,
		&i.IsTimerRunning,
		&i.BellActive,
		&i.BellClickedBy,
		&i.BellRound,
		&i.BellTimer,
		&i.BellTimerRunning,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createGame = `-- name: CreateGame :one
INSERT INTO games (id, host_code, host_name, phase, segment_settings)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + gameColumns

type CreateGameParams struct {
	ID              string                `json:"id"`
	HostCode        string                `json:"host_code"`
	HostName        sql.NullString        `json:"host_name"`
	Phase           string                `json:"phase"`
	SegmentSettings pqtype.NullRawMessage `json:"segment_settings"`
}

func (q *Queries) CreateGame(ctx context.Context, arg CreateGameParams) (Game, error) {
	row := q.db.QueryRowContext(ctx, createGame,
		arg.ID,
		arg.HostCode,
		arg.HostName,
		arg.Phase,
		arg.SegmentSettings,
	)
	return scanGame(row)
}

const getGame = `-- name: GetGame :one
SELECT ` + gameColumns + ` FROM games
WHERE id = $1`

func (q *Queries) GetGame(ctx context.Context, id string) (Game, error) {
	row := q.db.QueryRowContext(ctx, getGame, id)
	return scanGame(row)
}

const updateGame = `-- name: UpdateGame :execrows
UPDATE games SET
    host_name              = COALESCE($2, host_name),
    host_is_connected      = COALESCE($3, host_is_connected),
    phase                  = COALESCE($4, phase),
    current_segment        = COALESCE($5, current_segment),
    current_question_index = COALESCE($6, current_question_index),
    segment_complete       = COALESCE($7, segment_complete),
    segment_settings       = COALESCE($8, segment_settings),
    video_room_url         = COALESCE($9, video_room_url),
    video_room_created     = COALESCE($10, video_room_created),
    timer                  = COALESCE($11, timer),
    is_timer_running       = COALESCE($12, is_timer_running),
    bell_active            = CASE WHEN $14::boolean AND $16::integer > bell_round
                                  THEN $13::boolean ELSE bell_active END,
    bell_clicked_by        = CASE WHEN $14::boolean AND $16::integer > bell_round
                                  THEN $15::text ELSE bell_clicked_by END,
    bell_timer             = CASE WHEN $14::boolean AND ($16::integer > bell_round
                                   OR ($16::integer = bell_round AND bell_clicked_by IS NOT DISTINCT FROM $15::text))
                                  THEN $17::integer ELSE bell_timer END,
    bell_timer_running     = CASE WHEN $14::boolean AND ($16::integer > bell_round
                                   OR ($16::integer = bell_round AND bell_clicked_by IS NOT DISTINCT FROM $15::text))
                                  THEN $18::boolean ELSE bell_timer_running END,
    bell_round             = CASE WHEN $14::boolean THEN GREATEST(bell_round, $16::integer) ELSE bell_round END,
    updated_at             = now()
WHERE id = $1`

// UpdateGameParams holds a partial row. Invalid Null* fields keep the stored
// value. The bell columns are written together when SetBell is true, and
// only by a newer round; within the stored round the winner is owned by
// ClaimBell and a writer that agrees on it may only move the countdown.
type UpdateGameParams struct {
	ID                   string                `json:"id"`
	HostName             sql.NullString        `json:"host_name"`
	HostIsConnected      sql.NullBool          `json:"host_is_connected"`
	Phase                sql.NullString        `json:"phase"`
	CurrentSegment       sql.NullString        `json:"current_segment"`
	CurrentQuestionIndex sql.NullInt32         `json:"current_question_index"`
	SegmentComplete      sql.NullBool          `json:"segment_complete"`
	SegmentSettings      pqtype.NullRawMessage `json:"segment_settings"`
	VideoRoomUrl         sql.NullString        `json:"video_room_url"`
	VideoRoomCreated     sql.NullBool          `json:"video_room_created"`
	Timer                sql.NullInt32         `json:"timer"`
	IsTimerRunning       sql.NullBool          `json:"is_timer_running"`
	BellActive           bool                  `json:"bell_active"`
	SetBell              bool                  `json:"set_bell"`
	BellClickedBy        sql.NullString        `json:"bell_clicked_by"`
	BellRound            int32                 `json:"bell_round"`
	BellTimer            int32                 `json:"bell_timer"`
	BellTimerRunning     bool                  `json:"bell_timer_running"`
}

func (q *Queries) UpdateGame(ctx context.Context, arg UpdateGameParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateGame,
		arg.ID,
		arg.HostName,
		arg.HostIsConnected,
		arg.Phase,
		arg.CurrentSegment,
		arg.CurrentQuestionIndex,
		arg.SegmentComplete,
		arg.SegmentSettings,
		arg.VideoRoomUrl,
		arg.VideoRoomCreated,
		arg.Timer,
		arg.IsTimerRunning,
		arg.BellActive,
		arg.SetBell,
		arg.BellClickedBy,
		arg.BellRound,
		arg.BellTimer,
		arg.BellTimerRunning,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const claimBell = `-- name: ClaimBell :execrows
UPDATE games SET
    bell_clicked_by    = $2,
    bell_timer         = $4,
    bell_timer_running = TRUE,
    updated_at         = now()
WHERE id = $1
  AND bell_active
  AND bell_clicked_by IS NULL
  AND bell_round = $3`

type ClaimBellParams struct {
	ID           string `json:"id"`
	PlayerID     string `json:"player_id"`
	Round        int32  `json:"round"`
	TimerSeconds int32  `json:"timer_seconds"`
}

// ClaimBell is a conditional write. Zero rows affected means another player
// already owns the round or the round moved on.
func (q *Queries) ClaimBell(ctx context.Context, arg ClaimBellParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, claimBell,
		arg.ID,
		arg.PlayerID,
		arg.Round,
		arg.TimerSeconds,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
