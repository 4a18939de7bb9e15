package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/db"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/events"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/models"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/sqlutil"
)

const uniqueViolation = "23505"

// Repository persists games, player slots and score history.
type Repository struct {
	db      *sql.DB
	queries *db.Queries
}

func NewRepository(conn *sql.DB) *Repository {
	return &Repository{
		db:      conn,
		queries: db.New(conn),
	}
}

// Queries exposes the underlying queries for the change relay.
func (r *Repository) Queries() *db.Queries {
	return r.queries
}

// CreateGame inserts the games row for a fresh snapshot. An existing id maps
// to models.ErrGameExists.
func (r *Repository) CreateGame(ctx context.Context, state models.GameState) error {
	settings, err := sqlutil.ToNullRawJSON(state.SegmentSettings)
	if err != nil {
		return err
	}
	err = sqlutil.Run(ctx, r.db, r.queries.WithTx, func(q *db.Queries) error {
		if _, err := q.CreateGame(ctx, db.CreateGameParams{
			ID:              state.GameID,
			HostCode:        state.HostCode,
			HostName:        sqlutil.ToSqlStringNonEmpty(state.HostName),
			Phase:           string(state.Phase),
			SegmentSettings: settings,
		}); err != nil {
			return err
		}
		for _, id := range models.PlayerSlots {
			p, ok := state.Players[id]
			if !ok || p.Name == "" {
				continue
			}
			params, err := saveParamsFromPatch(state.GameID, id, models.PlayerPatchFrom(p))
			if err != nil {
				return err
			}
			if _, err := q.SavePlayer(ctx, params); err != nil {
				return err
			}
			if p.Score > 0 {
				if _, err := q.AddPlayerScore(ctx, db.AddPlayerScoreParams{GameID: state.GameID, ID: string(id), Points: int32(p.Score)}); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if isUniqueViolation(err) {
		return fmt.Errorf("create game %s: %w", state.GameID, models.ErrGameExists)
	}
	if err != nil {
		return fmt.Errorf("failed to create game: %w", err)
	}
	return nil
}

// LoadGame reads the full snapshot of a game in one read-only transaction.
func (r *Repository) LoadGame(ctx context.Context, gameID string) (models.GameState, error) {
	var (
		game    db.Game
		players []db.Player
		scores  []db.ScoreEvent
	)
	err := sqlutil.Read(ctx, r.db, r.queries.WithTx, func(q *db.Queries) error {
		var err error
		game, err = q.GetGame(ctx, gameID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("load game %s: %w", gameID, models.ErrGameNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to get game: %w", err)
		}
		if players, err = q.ListPlayersByGame(ctx, gameID); err != nil {
			return fmt.Errorf("failed to list players: %w", err)
		}
		if scores, err = q.ListScoreEventsByGame(ctx, gameID); err != nil {
			return fmt.Errorf("failed to list score events: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.GameState{}, err
	}
	return StateFromRows(game, players, scores)
}

// SaveDelta writes a patch in one transaction. Only the fields the patch
// carries are written, and each is merged with the stored row rather than
// replacing it: strikes move by delta, special buttons are ANDed, bell
// columns only move forward by round, and scores move only through score
// events. Events are inserted idempotently so a replayed patch never double
// counts.
func (r *Repository) SaveDelta(ctx context.Context, gameID string, patch models.GameStatePatch) error {
	if patch.IsEmpty() {
		return nil
	}
	return sqlutil.Run(ctx, r.db, r.queries.WithTx, func(q *db.Queries) error {
		if patch.HasGameFields() {
			params, err := updateParamsFromPatch(gameID, patch)
			if err != nil {
				return err
			}
			n, err := q.UpdateGame(ctx, params)
			if err != nil {
				return fmt.Errorf("failed to update game: %w", err)
			}
			if n == 0 {
				return fmt.Errorf("update game %s: %w", gameID, models.ErrGameNotFound)
			}
		}
		for _, id := range models.PlayerSlots {
			p, ok := patch.Players[id]
			if !ok || !storesPlayerRow(p) {
				continue
			}
			params, err := saveParamsFromPatch(gameID, id, p)
			if err != nil {
				return err
			}
			if _, err := q.SavePlayer(ctx, params); err != nil {
				return fmt.Errorf("failed to save player %s: %w", id, err)
			}
		}
		for _, ev := range patch.ScoreHistory {
			n, err := q.InsertScoreEvent(ctx, insertParamsFromScore(gameID, ev))
			if err != nil {
				return fmt.Errorf("failed to insert score event %s: %w", ev.ID, err)
			}
			if n == 0 || !ev.PlayerID.Valid() {
				continue
			}
			if _, err := q.AddPlayerScore(ctx, db.AddPlayerScoreParams{
				GameID: gameID,
				ID:     string(ev.PlayerID),
				Points: int32(ev.Points),
			}); err != nil {
				return fmt.Errorf("failed to add score event %s: %w", ev.ID, err)
			}
		}
		return nil
	})
}

// ClaimBell awards the current bell round to playerID if nobody owns it yet.
// It always returns the bell as stored after the attempt; a lost race also
// returns models.ErrBellAlreadyClaimed.
func (r *Repository) ClaimBell(ctx context.Context, gameID string, playerID models.PlayerID, round int) (models.BellState, error) {
	n, err := r.queries.ClaimBell(ctx, db.ClaimBellParams{
		ID:           gameID,
		PlayerID:     string(playerID),
		Round:        int32(round),
		TimerSeconds: models.BellCountdownSeconds,
	})
	if err != nil {
		return models.BellState{}, fmt.Errorf("failed to claim bell: %w", err)
	}

	game, err := r.queries.GetGame(ctx, gameID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.BellState{}, fmt.Errorf("claim bell %s: %w", gameID, models.ErrGameNotFound)
	}
	if err != nil {
		return models.BellState{}, fmt.Errorf("failed to read bell: %w", err)
	}
	bell := bellFromRow(game)
	if n == 0 {
		return bell, models.ErrBellAlreadyClaimed
	}
	return bell, nil
}

// MarkPlayerConnected flips the durable connection flag of a slot. A slot
// that was never joined has no row and is left alone.
func (r *Repository) MarkPlayerConnected(ctx context.Context, gameID string, playerID models.PlayerID, connected bool) error {
	if _, err := r.queries.SetPlayerConnected(ctx, db.SetPlayerConnectedParams{
		GameID:      gameID,
		ID:          string(playerID),
		IsConnected: connected,
	}); err != nil {
		return fmt.Errorf("failed to mark player %s connected=%t: %w", playerID, connected, err)
	}
	return nil
}

// SetHostConnected flips the durable host connection flag.
func (r *Repository) SetHostConnected(ctx context.Context, gameID string, connected bool) error {
	return r.SaveDelta(ctx, gameID, models.GameStatePatch{HostIsConnected: models.Ptr(connected)})
}

// RowChange reads the row an outbox entry points at and maps it to a patch.
func (r *Repository) RowChange(ctx context.Context, change db.GameChangeOutbox) (events.RowChange, error) {
	rc := events.RowChange{
		ChangeID:    change.ID,
		GameID:      change.GameID,
		Table:       events.RowTable(change.TableName),
		Operation:   change.Operation,
		RowID:       change.RowID,
		CommittedAt: change.CreatedAt,
	}

	switch rc.Table {
	case events.TableGames:
		row, err := r.queries.GetGame(ctx, change.GameID)
		if err != nil {
			return rc, fmt.Errorf("failed to get game %s: %w", change.GameID, err)
		}
		patch, err := PatchFromGameRow(row)
		if err != nil {
			return rc, err
		}
		rc.Patch = patch
	case events.TablePlayers:
		row, err := r.queries.GetPlayer(ctx, db.GetPlayerParams{GameID: change.GameID, ID: change.RowID})
		if err != nil {
			return rc, fmt.Errorf("failed to get player %s: %w", change.RowID, err)
		}
		p, err := PlayerFromRow(row)
		if err != nil {
			return rc, err
		}
		rc.Patch.Players = map[models.PlayerID]models.PlayerPatch{p.ID: models.PlayerPatchFrom(p)}
	case events.TableScoreEvents:
		row, err := r.queries.GetScoreEvent(ctx, change.RowID)
		if err != nil {
			return rc, fmt.Errorf("failed to get score event %s: %w", change.RowID, err)
		}
		rc.Patch.ScoreHistory = []models.ScoreEvent{ScoreEventFromRow(row)}
	default:
		return rc, fmt.Errorf("unknown change table %q", change.TableName)
	}
	return rc, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	return false
}
