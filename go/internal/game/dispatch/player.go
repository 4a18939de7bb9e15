package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/engine"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/events"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/models"
)

// PlayerDispatcher holds the operations of one player slot.
type PlayerDispatcher struct {
	*Dispatcher
	playerID models.PlayerID
	video    VideoService
}

func NewPlayerDispatcher(d *Dispatcher, playerID models.PlayerID, video VideoService) *PlayerDispatcher {
	return &PlayerDispatcher{
		Dispatcher: d,
		playerID:   playerID,
		video:      video,
	}
}

func (p *PlayerDispatcher) PlayerID() models.PlayerID {
	return p.playerID
}

// Join writes the slot's identity. Score, strikes and buttons are kept.
func (p *PlayerDispatcher) Join(ctx context.Context, profile models.Player) Result {
	profile.ID = p.playerID
	return p.Do(ctx, engine.JoinPlayer{Player: profile, At: p.clock.Now()})
}

func (p *PlayerDispatcher) Leave(ctx context.Context) Result {
	return p.Do(ctx, engine.LeavePlayer{PlayerID: p.playerID})
}

func (p *PlayerDispatcher) UseSpecialButton(ctx context.Context, button models.SpecialButton) Result {
	return p.Do(ctx, engine.UseSpecialButton{PlayerID: p.playerID, Button: button})
}

// PressBell claims the bell locally, then through the store's conditional
// write. A lost race reconciles to the persisted winner.
func (p *PlayerDispatcher) PressBell(ctx context.Context) Result {
	round := p.store.State().Bell.Round
	before, after, changed := p.store.Dispatch(engine.PressBell{PlayerID: p.playerID})
	if !changed {
		return Result{Success: true}
	}

	if p.gateway != nil {
		bell, err := p.gateway.ClaimBell(ctx, after.GameID, p.playerID, round)
		switch {
		case errors.Is(err, models.ErrBellAlreadyClaimed):
			p.store.Dispatch(engine.Reconcile{Patch: models.GameStatePatch{Bell: &bell}})
			log.Info().
				Str("game_id", after.GameID).
				Str("player_id", string(p.playerID)).
				Str("winner", string(bell.ClickedBy)).
				Msg("bell claimed by another player")
			return Result{Error: err}
		case err != nil:
			log.Error().Err(err).Str("game_id", after.GameID).Msg("failed to claim bell")
			applied := !p.resync(ctx, after.GameID)
			return Result{Applied: applied, Error: fmt.Errorf("claim bell: %w", err)}
		}
	}

	p.broadcast(ctx, events.GameStateUpdate{GameState: engine.Diff(before, after)})
	return Result{Success: true, Applied: true}
}

// VideoToken issues a participant token for the game's room.
func (p *PlayerDispatcher) VideoToken(ctx context.Context, user string) (string, error) {
	return issueToken(ctx, p.video, p.gameID(), user, false, false)
}
