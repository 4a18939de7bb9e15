// Package session wires one client's view of a game: its store, channel
// subscription, presence tracker and role dispatcher.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/channel"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/dispatch"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/engine"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/events"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/presence"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/store"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/models"
)

// Mode reports whether a session replicates through the store and channel.
type Mode string

const (
	ModeReplicated Mode = "replicated"
	ModeLocalOnly  Mode = "local-only"
)

const disconnectTimeout = 3 * time.Second

// Gateway is the durable store as seen by a session.
type Gateway interface {
	dispatch.Gateway
	CreateGame(ctx context.Context, state models.GameState) error
	MarkPlayerConnected(ctx context.Context, gameID string, playerID models.PlayerID, connected bool) error
	SetHostConnected(ctx context.Context, gameID string, connected bool) error
}

// Options tune timers and lobby rules. Zero values take defaults.
type Options struct {
	MinPlayers        int
	PresenceTTL       time.Duration
	HeartbeatInterval time.Duration
	TickInterval      time.Duration
	DefaultSettings   models.SegmentSettings
}

func (o Options) withDefaults() Options {
	if o.MinPlayers <= 0 {
		o.MinPlayers = dispatch.DefaultMinPlayers
	}
	if o.PresenceTTL <= 0 {
		o.PresenceTTL = presence.DefaultTTL
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = o.PresenceTTL / 3
	}
	if o.TickInterval <= 0 {
		o.TickInterval = dispatch.TickInterval
	}
	if o.DefaultSettings == nil {
		o.DefaultSettings = models.DefaultSegmentSettings()
	}
	return o
}

// Deps are the collaborators a session is built from. A nil Gateway or
// Channel puts the session in local-only mode.
type Deps struct {
	Gateway Gateway
	Channel channel.Channel
	Video   dispatch.VideoService
	Clock   clockwork.Clock
	Options Options
}

// CreateParams describe a new game created by its host.
type CreateParams struct {
	GameID   string
	HostCode string
	HostName string
	Settings models.SegmentSettings
}

// AttachParams describe a client joining an existing game.
type AttachParams struct {
	GameID        string
	Role          models.ParticipantType
	HostCode      string
	PlayerID      models.PlayerID
	Profile       models.Player
	ParticipantID string
}

type Session struct {
	participant models.LobbyParticipant
	deps        Deps
	clock       clockwork.Clock

	store      *store.GameStore
	tracker    *presence.Tracker
	sub        channel.Subscription
	dispatcher *dispatch.Dispatcher
	host       *dispatch.HostDispatcher
	player     *dispatch.PlayerDispatcher
	timer      *dispatch.TimerDriver

	mode     Mode
	warnings []string

	presenceMu        sync.Mutex
	presenceListeners map[int]func([]models.LobbyParticipant)
	nextListener      int

	cancel    context.CancelFunc
	loops     sync.WaitGroup
	closeOnce sync.Once
}

// Create inserts a new game and attaches its host-pc session.
func Create(ctx context.Context, deps Deps, params CreateParams) (*Session, error) {
	deps = normalize(deps)
	gameID := strings.ToUpper(strings.TrimSpace(params.GameID))
	if gameID == "" {
		gameID = NewGameID()
	}
	if !models.ValidGameID(gameID) {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidGameID, gameID)
	}
	hostCode := strings.TrimSpace(params.HostCode)
	if hostCode == "" {
		hostCode = NewHostCode()
	}
	settings := params.Settings
	if settings == nil {
		settings = deps.Options.DefaultSettings
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	state := models.NewGameState(gameID, hostCode, strings.TrimSpace(params.HostName), settings, deps.Clock.Now())

	var warnings []string
	if deps.Gateway != nil {
		err := deps.Gateway.CreateGame(ctx, state)
		switch {
		case errors.Is(err, models.ErrGameExists):
			return nil, err
		case err != nil:
			log.Warn().Err(err).Str("game_id", gameID).Msg("failed to create game row, continuing local-only")
			warnings = append(warnings, fmt.Sprintf("store unavailable: %v", err))
			deps.Gateway = nil
		}
	}

	participant := models.LobbyParticipant{
		ID:          participantID(""),
		Name:        state.HostName,
		Type:        models.ParticipantHostPC,
		IsConnected: true,
	}
	return start(ctx, deps, state, participant, models.Player{}, warnings)
}

// Attach loads an existing game and joins it in the requested role. Hosts
// must present the game's host code; players must name a slot.
func Attach(ctx context.Context, deps Deps, params AttachParams) (*Session, error) {
	deps = normalize(deps)
	if !params.Role.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidRole, params.Role)
	}
	if params.Role == models.ParticipantPlayer && !params.PlayerID.Valid() {
		return nil, fmt.Errorf("%w: player slot %q", models.ErrInvalidRole, params.PlayerID)
	}
	gameID := strings.ToUpper(strings.TrimSpace(params.GameID))
	if !models.ValidGameID(gameID) {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidGameID, gameID)
	}

	var (
		state    models.GameState
		warnings []string
	)
	if deps.Gateway != nil {
		loaded, err := deps.Gateway.LoadGame(ctx, gameID)
		switch {
		case errors.Is(err, models.ErrGameNotFound):
			return nil, err
		case err != nil:
			log.Warn().Err(err).Str("game_id", gameID).Msg("failed to load game, continuing local-only")
			warnings = append(warnings, fmt.Sprintf("store unavailable: %v", err))
			deps.Gateway = nil
		default:
			state = loaded
		}
	}
	if deps.Gateway == nil {
		state = models.NewGameState(gameID, params.HostCode, "", deps.Options.DefaultSettings, deps.Clock.Now())
	}

	if params.Role.IsHost() && params.HostCode != state.HostCode {
		return nil, models.ErrInvalidHostCode
	}

	participant := models.LobbyParticipant{
		ID:          participantID(params.ParticipantID),
		Type:        params.Role,
		IsConnected: true,
	}
	if params.Role == models.ParticipantPlayer {
		participant.PlayerID = params.PlayerID
		participant.Name = strings.TrimSpace(params.Profile.Name)
	} else {
		participant.Name = state.HostName
	}
	profile := params.Profile
	profile.ID = params.PlayerID
	return start(ctx, deps, state, participant, profile, warnings)
}

func normalize(deps Deps) Deps {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	deps.Options = deps.Options.withDefaults()
	return deps
}

func start(ctx context.Context, deps Deps, state models.GameState, participant models.LobbyParticipant, profile models.Player, warnings []string) (*Session, error) {
	s := &Session{
		participant:       participant,
		deps:              deps,
		clock:             deps.Clock,
		store:             store.New(state),
		tracker:           presence.NewTracker(deps.Clock, deps.Options.PresenceTTL),
		warnings:          warnings,
		presenceListeners: make(map[int]func([]models.LobbyParticipant)),
	}

	ch := deps.Channel
	if ch == nil {
		s.warnings = append(s.warnings, "no sync channel configured")
		ch = channel.Noop{}
	}
	sub, err := ch.Join(ctx, state.GameID, participant.ID, s)
	if err != nil {
		log.Warn().Err(err).Str("game_id", state.GameID).Msg("failed to join channel, continuing local-only")
		s.warnings = append(s.warnings, fmt.Sprintf("channel unavailable: %v", err))
		sub, _ = channel.Noop{}.Join(ctx, state.GameID, participant.ID, s)
		ch = channel.Noop{}
	}
	s.sub = sub

	if deps.Gateway == nil {
		if len(warnings) == 0 {
			s.warnings = append(s.warnings, "no store configured")
		}
	}
	s.mode = ModeReplicated
	if deps.Gateway == nil || isNoop(ch) {
		s.mode = ModeLocalOnly
	}

	var gateway dispatch.Gateway
	if deps.Gateway != nil {
		gateway = deps.Gateway
	}
	s.dispatcher = dispatch.New(s.store, gateway, sub, deps.Clock)

	if participant.Type.IsHost() {
		s.host = dispatch.NewHostDispatcher(s.dispatcher, s.tracker, deps.Video, deps.Options.MinPlayers)
	} else {
		s.player = dispatch.NewPlayerDispatcher(s.dispatcher, participant.PlayerID, deps.Video)
	}

	if err := sub.Track(ctx, participant); err != nil {
		log.Warn().Err(err).Str("game_id", state.GameID).Msg("failed to track presence")
	}

	if res := s.markConnected(ctx, profile); res.Error != nil {
		log.Warn().Err(res.Error).Str("game_id", state.GameID).Msg("failed to mark participant connected")
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.loops.Add(1)
	go s.heartbeat(loopCtx)

	if participant.Type == models.ParticipantHostPC {
		s.timer = dispatch.NewTimerDriver(s.dispatcher, deps.Options.TickInterval)
		s.timer.Start(loopCtx)
	}

	log.Info().
		Str("game_id", state.GameID).
		Str("participant_id", participant.ID).
		Str("role", string(participant.Type)).
		Str("mode", string(s.mode)).
		Msg("session attached")
	return s, nil
}

func isNoop(ch channel.Channel) bool {
	_, ok := ch.(channel.Noop)
	return ok
}

func (s *Session) markConnected(ctx context.Context, profile models.Player) dispatch.Result {
	if s.player != nil {
		return s.player.Join(ctx, profile)
	}
	return s.dispatcher.Do(ctx, engine.SetHostConnected{Connected: true})
}

func (s *Session) heartbeat(ctx context.Context) {
	defer s.loops.Done()
	ticker := s.clock.NewTicker(s.deps.Options.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if err := s.sub.Heartbeat(ctx); err != nil && !errors.Is(err, channel.ErrClosed) {
				log.Warn().Err(err).Str("game_id", s.GameID()).Msg("presence heartbeat failed")
			}
			if expired := s.tracker.Prune(); len(expired) > 0 {
				log.Info().Str("game_id", s.GameID()).Strs("participants", expired).Msg("presence expired")
				s.notifyPresence()
			}
		}
	}
}

// Close marks the participant disconnected, untracks it and releases the
// subscription. The disconnect write is best-effort with its own timeout.
func (s *Session) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		if s.timer != nil {
			s.timer.Stop()
		}
		s.cancel()
		s.loops.Wait()

		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), disconnectTimeout)
		defer cancel()
		s.markDisconnected(writeCtx)

		if uerr := s.sub.Untrack(writeCtx); uerr != nil && !errors.Is(uerr, channel.ErrClosed) {
			log.Warn().Err(uerr).Str("game_id", s.GameID()).Msg("failed to untrack presence")
		}
		err = s.sub.Close()
		log.Info().Str("game_id", s.GameID()).Str("participant_id", s.participant.ID).Msg("session closed")
	})
	return err
}

func (s *Session) markDisconnected(ctx context.Context) {
	gameID := s.GameID()
	var (
		msg events.Message
		err error
	)
	if s.player != nil {
		id := s.participant.PlayerID
		if _, _, changed := s.store.Dispatch(engine.SetPlayerConnected{PlayerID: id, Connected: false}); !changed {
			return
		}
		if s.deps.Gateway != nil {
			err = s.deps.Gateway.MarkPlayerConnected(ctx, gameID, id, false)
		}
		msg = events.PlayerLeave{PlayerID: id}
	} else {
		if s.participant.Type != models.ParticipantHostPC {
			return
		}
		if _, _, changed := s.store.Dispatch(engine.SetHostConnected{Connected: false}); !changed {
			return
		}
		if s.deps.Gateway != nil {
			err = s.deps.Gateway.SetHostConnected(ctx, gameID, false)
		}
		msg = events.GameStateUpdate{GameState: models.GameStatePatch{HostIsConnected: models.Ptr(false)}}
	}
	if err != nil {
		log.Warn().Err(err).Str("game_id", gameID).Msg("disconnect write failed")
		return
	}
	if berr := s.sub.Broadcast(ctx, msg); berr != nil {
		log.Warn().Err(berr).Str("game_id", gameID).Msg("disconnect broadcast failed")
	}
}

func (s *Session) GameID() string {
	return s.store.State().GameID
}

func (s *Session) State() models.GameState {
	return s.store.State()
}

func (s *Session) Store() *store.GameStore {
	return s.store
}

func (s *Session) Participant() models.LobbyParticipant {
	return s.participant
}

// Participants lists live presence entries.
func (s *Session) Participants() []models.LobbyParticipant {
	return s.tracker.Participants()
}

// Presence exposes the tracker for connection checks.
func (s *Session) Presence() *presence.Tracker {
	return s.tracker
}

// Host returns the host dispatcher, or nil for a player session.
func (s *Session) Host() *dispatch.HostDispatcher {
	return s.host
}

// Player returns the player dispatcher, or nil for a host session.
func (s *Session) Player() *dispatch.PlayerDispatcher {
	return s.player
}

func (s *Session) Mode() Mode {
	return s.mode
}

func (s *Session) Warnings() []string {
	return append([]string(nil), s.warnings...)
}

// OnPresence registers fn for live participant changes and returns an
// unsubscribe func.
func (s *Session) OnPresence(fn func([]models.LobbyParticipant)) func() {
	s.presenceMu.Lock()
	defer s.presenceMu.Unlock()
	id := s.nextListener
	s.nextListener++
	s.presenceListeners[id] = fn
	return func() {
		s.presenceMu.Lock()
		defer s.presenceMu.Unlock()
		delete(s.presenceListeners, id)
	}
}

func (s *Session) notifyPresence() {
	s.presenceMu.Lock()
	listeners := make([]func([]models.LobbyParticipant), 0, len(s.presenceListeners))
	for _, fn := range s.presenceListeners {
		listeners = append(listeners, fn)
	}
	s.presenceMu.Unlock()

	live := s.tracker.Participants()
	for _, fn := range listeners {
		fn(live)
	}
}

// NewGameID returns a short upper-case game id.
func NewGameID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
}

// NewHostCode returns the secret a host-mobile device presents to attach.
func NewHostCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func participantID(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return uuid.NewString()
}
