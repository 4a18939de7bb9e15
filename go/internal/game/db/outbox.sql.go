package db

import (
	"context"
)

const outboxColumns = `id, game_id, table_name, row_id, operation, created_at, sent_at`

func scanOutbox(row interface{ Scan(...interface{}) error }) (GameChangeOutbox, error) {
	var i GameChangeOutbox
	err := row.Scan(
		&i.ID,
		&i.GameID,
		&i.TableName,
		&i.RowID,
		&i.Operation,
		&i.CreatedAt,
		&i.SentAt,
	)
	return i, err
}

const fetchChangeByID = `-- name: FetchChangeByID :one
SELECT ` + outboxColumns + ` FROM game_change_outbox
WHERE id = $1 AND sent_at IS NULL`

func (q *Queries) FetchChangeByID(ctx context.Context, id int64) (GameChangeOutbox, error) {
	row := q.db.QueryRowContext(ctx, fetchChangeByID, id)
	return scanOutbox(row)
}

const fetchUnsentChanges = `-- name: FetchUnsentChanges :many
SELECT ` + outboxColumns + ` FROM game_change_outbox
WHERE sent_at IS NULL
ORDER BY id
LIMIT $1`

func (q *Queries) FetchUnsentChanges(ctx context.Context, limit int32) ([]GameChangeOutbox, error) {
	rows, err := q.db.QueryContext(ctx, fetchUnsentChanges, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []GameChangeOutbox
	for rows.Next() {
		i, err := scanOutbox(rows)
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

const markChangeSent = `-- name: MarkChangeSent :exec
UPDATE game_change_outbox SET sent_at = now()
WHERE id = $1`

func (q *Queries) MarkChangeSent(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, markChangeSent, id)
	return err
}

const countPendingChanges = `-- name: CountPendingChanges :one
SELECT count(*) FROM game_change_outbox
WHERE sent_at IS NULL`

func (q *Queries) CountPendingChanges(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countPendingChanges)
	var count int64
	err := row.Scan(&count)
	return count, err
}
