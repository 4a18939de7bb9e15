package db

import (
	"context"
	"database/sql"

	"github.com/sqlc-dev/pqtype"
)

const playerColumns = `id, game_id, name, flag, club, role, score, strikes, is_connected, special_buttons, joined_at, last_active`

func scanPlayer(row interface{ Scan(...interface{}) error }) (Player, error) {
	var i Player
	err := row.Scan(
		&i.ID,
		&i.GameID,
		&i.Name,
		&i.Flag,
		&i.Club,
		&i.Role,
		&i.Score,
		&i.Strikes,
		&i.IsConnected,
		&i.SpecialButtons,
		&i.JoinedAt,
		&i.LastActive,
	)
	return i, err
}

const savePlayer = `-- name: SavePlayer :one
INSERT INTO players AS p (id, game_id, name, flag, club, role, strikes, is_connected, special_buttons, joined_at, last_active)
VALUES (
    $1, $2, $3, $4, $5, $6,
    LEAST(3, GREATEST(0, COALESCE($7::integer, 0) + $8::integer)),
    COALESCE($9::boolean, FALSE),
    and_special_buttons(NULL, $10::jsonb),
    COALESCE($11::timestamptz, now()),
    COALESCE($12::timestamptz, now())
)
ON CONFLICT (game_id, id) DO UPDATE SET
    name            = COALESCE($3, p.name),
    flag            = COALESCE($4, p.flag),
    club            = COALESCE($5, p.club),
    role            = COALESCE($6, p.role),
    strikes         = LEAST(3, GREATEST(0, COALESCE($7::integer, p.strikes) + $8::integer)),
    is_connected    = COALESCE($9::boolean, p.is_connected),
    special_buttons = and_special_buttons(p.special_buttons, $10::jsonb),
    last_active     = GREATEST(p.last_active, COALESCE($12::timestamptz, p.last_active))
RETURNING ` + playerColumns

// SavePlayerParams holds the changed fields of a slot. Invalid Null* fields
// keep the stored value. Strikes sets the count before StrikesDelta is
// added; score is never written here, see AddPlayerScore.
type SavePlayerParams struct {
	ID             string                `json:"id"`
	GameID         string                `json:"game_id"`
	Name           sql.NullString        `json:"name"`
	Flag           sql.NullString        `json:"flag"`
	Club           sql.NullString        `json:"club"`
	Role           sql.NullString        `json:"role"`
	Strikes        sql.NullInt32         `json:"strikes"`
	StrikesDelta   int32                 `json:"strikes_delta"`
	IsConnected    sql.NullBool          `json:"is_connected"`
	SpecialButtons pqtype.NullRawMessage `json:"special_buttons"`
	JoinedAt       sql.NullTime          `json:"joined_at"`
	LastActive     sql.NullTime          `json:"last_active"`
}

func (q *Queries) SavePlayer(ctx context.Context, arg SavePlayerParams) (Player, error) {
	row := q.db.QueryRowContext(ctx, savePlayer,
		arg.ID,
		arg.GameID,
		arg.Name,
		arg.Flag,
		arg.Club,
		arg.Role,
		arg.Strikes,
		arg.StrikesDelta,
		arg.IsConnected,
		arg.SpecialButtons,
		arg.JoinedAt,
		arg.LastActive,
	)
	return scanPlayer(row)
}

const addPlayerScore = `-- name: AddPlayerScore :execrows
INSERT INTO players (id, game_id, score)
VALUES ($2, $1, GREATEST(0, $3::integer))
ON CONFLICT (game_id, id) DO UPDATE SET
    score = GREATEST(0, players.score + $3::integer)`

type AddPlayerScoreParams struct {
	GameID string `json:"game_id"`
	ID     string `json:"id"`
	Points int32  `json:"points"`
}

// AddPlayerScore applies one score event to the stored total, floored at 0.
func (q *Queries) AddPlayerScore(ctx context.Context, arg AddPlayerScoreParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, addPlayerScore, arg.GameID, arg.ID, arg.Points)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getPlayer = `-- name: GetPlayer :one
SELECT ` + playerColumns + ` FROM players
WHERE game_id = $1 AND id = $2`

type GetPlayerParams struct {
	GameID string `json:"game_id"`
	ID     string `json:"id"`
}

func (q *Queries) GetPlayer(ctx context.Context, arg GetPlayerParams) (Player, error) {
	row := q.db.QueryRowContext(ctx, getPlayer, arg.GameID, arg.ID)
	return scanPlayer(row)
}

const listPlayersByGame = `-- name: ListPlayersByGame :many
SELECT ` + playerColumns + ` FROM players
WHERE game_id = $1
ORDER BY id`

func (q *Queries) ListPlayersByGame(ctx context.Context, gameID string) ([]Player, error) {
	rows, err := q.db.QueryContext(ctx, listPlayersByGame, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Player
	for rows.Next() {
		i, err := scanPlayer(rows)
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

const setPlayerConnected = `-- name: SetPlayerConnected :execrows
UPDATE players SET is_connected = $3, last_active = now()
WHERE game_id = $1 AND id = $2`

type SetPlayerConnectedParams struct {
	GameID      string `json:"game_id"`
	ID          string `json:"id"`
	IsConnected bool   `json:"is_connected"`
}

func (q *Queries) SetPlayerConnected(ctx context.Context, arg SetPlayerConnectedParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, setPlayerConnected, arg.GameID, arg.ID, arg.IsConnected)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
