package db

import (
	"context"
	"database/sql"
	"time"
)

const scoreEventColumns = `id, game_id, player_id, points, segment, question_index, created_at`

func scanScoreEvent(row interface{ Scan(...interface{}) error }) (ScoreEvent, error) {
	var i ScoreEvent
	err := row.Scan(
		&i.ID,
		&i.GameID,
		&i.PlayerID,
		&i.Points,
		&i.Segment,
		&i.QuestionIndex,
		&i.CreatedAt,
	)
	return i, err
}

const insertScoreEvent = `-- name: InsertScoreEvent :execrows
INSERT INTO score_events (id, game_id, player_id, points, segment, question_index, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO NOTHING`

type InsertScoreEventParams struct {
	ID            string         `json:"id"`
	GameID        string         `json:"game_id"`
	PlayerID      string         `json:"player_id"`
	Points        int32          `json:"points"`
	Segment       sql.NullString `json:"segment"`
	QuestionIndex int32          `json:"question_index"`
	CreatedAt     time.Time      `json:"created_at"`
}

// InsertScoreEvent is idempotent on the event id.
func (q *Queries) InsertScoreEvent(ctx context.Context, arg InsertScoreEventParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, insertScoreEvent,
		arg.ID,
		arg.GameID,
		arg.PlayerID,
		arg.Points,
		arg.Segment,
		arg.QuestionIndex,
		arg.CreatedAt,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getScoreEvent = `-- name: GetScoreEvent :one
SELECT ` + scoreEventColumns + ` FROM score_events
WHERE id = $1`

func (q *Queries) GetScoreEvent(ctx context.Context, id string) (ScoreEvent, error) {
	row := q.db.QueryRowContext(ctx, getScoreEvent, id)
	return scanScoreEvent(row)
}

const listScoreEventsByGame = `-- name: ListScoreEventsByGame :many
SELECT ` + scoreEventColumns + ` FROM score_events
WHERE game_id = $1
ORDER BY created_at, id`

func (q *Queries) ListScoreEventsByGame(ctx context.Context, gameID string) ([]ScoreEvent, error) {
	rows, err := q.db.QueryContext(ctx, listScoreEventsByGame, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ScoreEvent
	for rows.Next() {
		i, err := scanScoreEvent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
