// Package dispatch is the per-role façade over a session's store: it applies
// an action optimistically, persists the delta and only then broadcasts it.
package dispatch

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/engine"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/events"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/store"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/models"
)

// Result reports the outcome of one action. Applied is true when the local
// state still reflects the action.
type Result struct {
	Success bool
	Applied bool
	Error   error
}

// Gateway is the durable store behind a dispatcher.
type Gateway interface {
	SaveDelta(ctx context.Context, gameID string, patch models.GameStatePatch) error
	ClaimBell(ctx context.Context, gameID string, playerID models.PlayerID, round int) (models.BellState, error)
	LoadGame(ctx context.Context, gameID string) (models.GameState, error)
}

// Broadcaster sends a message to every other client of the game.
type Broadcaster interface {
	Broadcast(ctx context.Context, msg events.Message) error
}

type Dispatcher struct {
	store   *store.GameStore
	gateway Gateway
	out     Broadcaster
	clock   clockwork.Clock
}

// New builds a dispatcher. A nil gateway or broadcaster means the session
// runs local-only for that concern.
func New(st *store.GameStore, gateway Gateway, out Broadcaster, clock clockwork.Clock) *Dispatcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Dispatcher{
		store:   st,
		gateway: gateway,
		out:     out,
		clock:   clock,
	}
}

func (d *Dispatcher) Store() *store.GameStore {
	return d.store
}

func (d *Dispatcher) gameID() string {
	return d.store.State().GameID
}

// Do applies action locally, persists the resulting delta and broadcasts it.
// Nothing is broadcast when the write fails; the store is re-read instead.
func (d *Dispatcher) Do(ctx context.Context, action engine.Action) Result {
	before, after, changed := d.store.Dispatch(action)
	if !changed {
		return Result{Success: true}
	}
	patch := engine.Diff(before, after)

	if err := d.persist(ctx, after.GameID, patch); err != nil {
		log.Error().
			Err(err).
			Str("game_id", after.GameID).
			Str("action", string(action.Kind())).
			Msg("failed to persist action")
		applied := !d.resync(ctx, after.GameID)
		return Result{Applied: applied, Error: fmt.Errorf("persist %s: %w", action.Kind(), err)}
	}

	d.broadcast(ctx, messageFor(action, after, patch))
	return Result{Success: true, Applied: true}
}

func (d *Dispatcher) persist(ctx context.Context, gameID string, patch models.GameStatePatch) error {
	if d.gateway == nil || patch.IsEmpty() {
		return nil
	}
	return d.gateway.SaveDelta(ctx, gameID, patch)
}

// resync replaces local state with the persisted snapshot. It reports
// whether the read succeeded; without a gateway local state is kept.
func (d *Dispatcher) resync(ctx context.Context, gameID string) bool {
	if d.gateway == nil {
		return false
	}
	state, err := d.gateway.LoadGame(ctx, gameID)
	if err != nil {
		log.Warn().Err(err).Str("game_id", gameID).Msg("read-back after failed write failed, keeping local state")
		return false
	}
	d.store.Replace(state)
	log.Info().Str("game_id", gameID).Msg("local state resynced from store")
	return true
}

func (d *Dispatcher) broadcast(ctx context.Context, msg events.Message) {
	if d.out == nil {
		return
	}
	if err := d.out.Broadcast(ctx, msg); err != nil {
		log.Warn().Err(err).Str("event", string(msg.Type())).Msg("broadcast failed")
	}
}

// messageFor picks the broadcast kind for an applied action.
func messageFor(action engine.Action, after models.GameState, patch models.GameStatePatch) events.Message {
	switch a := action.(type) {
	case engine.JoinPlayer:
		return events.PlayerJoin{PlayerID: a.Player.ID, PlayerData: after.Players[a.Player.ID].Clone()}
	case engine.LeavePlayer:
		return events.PlayerLeave{PlayerID: a.PlayerID}
	case engine.SetHostName:
		return events.HostUpdate{HostName: after.HostName}
	case engine.SetVideoRoom:
		return events.VideoRoomUpdate{RoomURL: after.VideoRoomURL, RoomCreated: after.VideoRoomCreated}
	default:
		return events.GameStateUpdate{GameState: patch}
	}
}
