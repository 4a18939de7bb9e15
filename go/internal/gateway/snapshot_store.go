package gateway

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/session"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/models"
)

type snapshotInvalidator interface {
	Invalidate(ctx context.Context, gameID string) error
}

// invalidatingStore drops the cached REST snapshot of a game after every
// committed write through it. A snapshot filled by a read that raced the
// write can still live until its TTL.
type invalidatingStore struct {
	session.Gateway
	snapshots snapshotInvalidator
}

func withSnapshotInvalidation(store session.Gateway, snapshots snapshotInvalidator) session.Gateway {
	if store == nil || snapshots == nil {
		return store
	}
	return &invalidatingStore{Gateway: store, snapshots: snapshots}
}

func (s *invalidatingStore) SaveDelta(ctx context.Context, gameID string, patch models.GameStatePatch) error {
	return s.invalidate(ctx, gameID, s.Gateway.SaveDelta(ctx, gameID, patch))
}

func (s *invalidatingStore) ClaimBell(ctx context.Context, gameID string, playerID models.PlayerID, round int) (models.BellState, error) {
	bell, err := s.Gateway.ClaimBell(ctx, gameID, playerID, round)
	return bell, s.invalidate(ctx, gameID, err)
}

func (s *invalidatingStore) MarkPlayerConnected(ctx context.Context, gameID string, playerID models.PlayerID, connected bool) error {
	return s.invalidate(ctx, gameID, s.Gateway.MarkPlayerConnected(ctx, gameID, playerID, connected))
}

func (s *invalidatingStore) SetHostConnected(ctx context.Context, gameID string, connected bool) error {
	return s.invalidate(ctx, gameID, s.Gateway.SetHostConnected(ctx, gameID, connected))
}

// invalidate passes err through; a failed delete only costs staleness.
func (s *invalidatingStore) invalidate(ctx context.Context, gameID string, err error) error {
	if err != nil {
		return err
	}
	if derr := s.snapshots.Invalidate(ctx, gameID); derr != nil {
		log.Warn().Err(derr).Str("game_id", gameID).Msg("failed to invalidate snapshot")
	}
	return nil
}
