package dispatch

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/engine"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/presence"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/models"
)

// DefaultMinPlayers is the live player count StartGame waits for.
const DefaultMinPlayers = 2

// HostDispatcher holds every host-only operation.
type HostDispatcher struct {
	*Dispatcher
	presence   *presence.Tracker
	video      VideoService
	minPlayers int
}

func NewHostDispatcher(d *Dispatcher, tracker *presence.Tracker, video VideoService, minPlayers int) *HostDispatcher {
	if minPlayers <= 0 {
		minPlayers = DefaultMinPlayers
	}
	return &HostDispatcher{
		Dispatcher: d,
		presence:   tracker,
		video:      video,
		minPlayers: minPlayers,
	}
}

func (h *HostDispatcher) ConfirmSettings(ctx context.Context, settings models.SegmentSettings) Result {
	if err := settings.Validate(); err != nil {
		return Result{Error: err}
	}
	return h.Do(ctx, engine.ConfirmSettings{Settings: settings})
}

// StartGame requires MinPlayers live players. Slots seen only through
// presence are marked connected first so the reducer sees them too.
func (h *HostDispatcher) StartGame(ctx context.Context) Result {
	state := h.store.State()
	if h.presence != nil {
		if n := h.presence.ConnectedPlayers(state); n < h.minPlayers {
			return Result{Error: fmt.Errorf("%w: %d of %d", models.ErrNotEnoughPlayers, n, h.minPlayers)}
		}
		for _, id := range models.PlayerSlots {
			p, ok := state.Players[id]
			if ok && !p.IsConnected && h.presence.PlayerConnected(state, id) {
				if res := h.Do(ctx, engine.SetPlayerConnected{PlayerID: id, Connected: true}); res.Error != nil {
					return res
				}
			}
		}
	}
	return h.Do(ctx, engine.StartGame{})
}

func (h *HostDispatcher) NextQuestion(ctx context.Context) Result {
	return h.Do(ctx, engine.NextQuestion{})
}

func (h *HostDispatcher) NextSegment(ctx context.Context) Result {
	return h.Do(ctx, engine.NextSegment{})
}

func (h *HostDispatcher) UpdateScore(ctx context.Context, playerID models.PlayerID, points int) Result {
	return h.Do(ctx, engine.UpdateScore{
		EventID:  uuid.NewString(),
		PlayerID: playerID,
		Points:   points,
		At:       h.clock.Now(),
	})
}

func (h *HostDispatcher) AddStrike(ctx context.Context, playerID models.PlayerID) Result {
	return h.Do(ctx, engine.AddStrike{PlayerID: playerID})
}

func (h *HostDispatcher) ResetStrikes(ctx context.Context, playerID models.PlayerID) Result {
	return h.Do(ctx, engine.ResetStrikes{PlayerID: playerID})
}

func (h *HostDispatcher) ActivateBell(ctx context.Context) Result {
	return h.Do(ctx, engine.ActivateBell{})
}

func (h *HostDispatcher) ResetBell(ctx context.Context) Result {
	return h.Do(ctx, engine.ResetBell{})
}

func (h *HostDispatcher) StartTimer(ctx context.Context, seconds int) Result {
	return h.Do(ctx, engine.StartTimer{Seconds: seconds})
}

func (h *HostDispatcher) StopTimer(ctx context.Context) Result {
	return h.Do(ctx, engine.StopTimer{})
}

func (h *HostDispatcher) UpdateHostName(ctx context.Context, name string) Result {
	return h.Do(ctx, engine.SetHostName{Name: name})
}

// ProvisionVideoRoom reuses the game's room when the provider still has it
// and creates it otherwise.
func (h *HostDispatcher) ProvisionVideoRoom(ctx context.Context) Result {
	if h.video == nil {
		return Result{Error: ErrVideoUnavailable}
	}
	gameID := h.gameID()
	room := RoomName(gameID)

	url, exists, err := h.video.CheckRoom(ctx, room)
	if err != nil {
		log.Warn().Err(err).Str("game_id", gameID).Str("room", room).Msg("video room check failed, creating")
	}
	if !exists || url == "" {
		url, err = h.video.CreateRoom(ctx, room)
		if err != nil {
			return Result{Error: fmt.Errorf("create video room: %w", err)}
		}
		log.Info().Str("game_id", gameID).Str("room", room).Msg("video room created")
	}
	return h.Do(ctx, engine.SetVideoRoom{URL: url, Created: true})
}

// VideoToken issues a host token for the game's room.
func (h *HostDispatcher) VideoToken(ctx context.Context, user string) (string, error) {
	return issueToken(ctx, h.video, h.gameID(), user, true, false)
}
