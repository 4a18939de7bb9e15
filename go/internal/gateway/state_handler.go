package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/cache"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/dispatch"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/session"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/models"
)

// GameStore is the durable store behind the REST routes.
type GameStore interface {
	CreateGame(ctx context.Context, state models.GameState) error
	LoadGame(ctx context.Context, gameID string) (models.GameState, error)
}

// StateHandler serves game creation and catch-up reads.
type StateHandler struct {
	games    GameStore
	cache    *cache.SnapshotCache
	video    dispatch.VideoService
	clock    clockwork.Clock
	settings models.SegmentSettings
}

func NewStateHandler(games GameStore, snapshots *cache.SnapshotCache, video dispatch.VideoService, clock clockwork.Clock, settings models.SegmentSettings) *StateHandler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if settings == nil {
		settings = models.DefaultSegmentSettings()
	}
	return &StateHandler{
		games:    games,
		cache:    snapshots,
		video:    video,
		clock:    clock,
		settings: settings,
	}
}

type createGameRequest struct {
	GameID   string                 `json:"gameId,omitempty"`
	HostName string                 `json:"hostName"`
	Settings models.SegmentSettings `json:"segmentSettings,omitempty"`
}

type createGameResponse struct {
	GameID   string `json:"gameId"`
	HostCode string `json:"hostCode"`
}

type tokenResponse struct {
	Token string `json:"token"`
	Room  string `json:"room"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HandleCreateGame handles POST /api/games.
func (h *StateHandler) HandleCreateGame(w http.ResponseWriter, r *http.Request) {
	if h.games == nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}

	var req createGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	settings := req.Settings
	if settings == nil {
		settings = h.settings
	}
	if err := settings.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	gameID := strings.ToUpper(strings.TrimSpace(req.GameID))
	if gameID == "" {
		gameID = session.NewGameID()
	}
	if !models.ValidGameID(gameID) {
		writeError(w, http.StatusBadRequest, models.ErrInvalidGameID.Error())
		return
	}
	state := models.NewGameState(gameID, session.NewHostCode(), strings.TrimSpace(req.HostName), settings, h.clock.Now())

	if err := h.games.CreateGame(r.Context(), state); err != nil {
		if errors.Is(err, models.ErrGameExists) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		log.Error().Err(err).Str("game_id", gameID).Msg("failed to create game")
		writeError(w, http.StatusInternalServerError, "failed to create game")
		return
	}

	log.Info().Str("game_id", gameID).Msg("game created")
	writeJSON(w, http.StatusCreated, createGameResponse{GameID: gameID, HostCode: state.HostCode})
}

// HandleGetGameState handles GET /api/games/{id}/state.
func (h *StateHandler) HandleGetGameState(w http.ResponseWriter, r *http.Request) {
	state, ok := h.loadGame(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, visibleState(state, ""))
}

// HandleVideoToken handles GET /api/games/{id}/video-token?user=&role=.
func (h *StateHandler) HandleVideoToken(w http.ResponseWriter, r *http.Request) {
	if h.video == nil {
		writeError(w, http.StatusServiceUnavailable, dispatch.ErrVideoUnavailable.Error())
		return
	}
	state, ok := h.loadGame(w, r)
	if !ok {
		return
	}
	user := strings.TrimSpace(r.URL.Query().Get("user"))
	if user == "" {
		writeError(w, http.StatusBadRequest, "user is required")
		return
	}
	role := parseRole(r.URL.Query().Get("role"))
	if role.IsHost() && r.URL.Query().Get("host_code") != state.HostCode {
		writeError(w, http.StatusForbidden, models.ErrInvalidHostCode.Error())
		return
	}

	room := dispatch.RoomName(state.GameID)
	token, err := h.video.IssueToken(r.Context(), room, user, role.IsHost(), !role.Valid())
	if err != nil {
		log.Error().Err(err).Str("game_id", state.GameID).Msg("failed to issue video token")
		writeError(w, http.StatusBadGateway, "failed to issue video token")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, Room: room})
}

// loadGame reads the cache, then the store, and writes the error response
// itself on failure.
func (h *StateHandler) loadGame(w http.ResponseWriter, r *http.Request) (models.GameState, bool) {
	gameID := strings.ToUpper(r.PathValue("id"))
	if !models.ValidGameID(gameID) {
		writeError(w, http.StatusBadRequest, models.ErrInvalidGameID.Error())
		return models.GameState{}, false
	}

	ctx := r.Context()
	state, hit, err := h.cache.Get(ctx, gameID)
	if err != nil {
		log.Warn().Err(err).Str("game_id", gameID).Msg("snapshot cache read failed")
	}
	if hit {
		return state, true
	}

	if h.games == nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return models.GameState{}, false
	}
	state, err = h.games.LoadGame(ctx, gameID)
	if errors.Is(err, models.ErrGameNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return models.GameState{}, false
	}
	if err != nil {
		log.Error().Err(err).Str("game_id", gameID).Msg("failed to load game")
		writeError(w, http.StatusInternalServerError, "failed to load game")
		return models.GameState{}, false
	}

	if err := h.cache.Set(ctx, state); err != nil {
		log.Warn().Err(err).Str("game_id", gameID).Msg("snapshot cache write failed")
	}
	return state, true
}

func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/games", h.HandleCreateGame)
	mux.HandleFunc("GET /api/games/{id}/state", h.HandleGetGameState)
	mux.HandleFunc("GET /api/games/{id}/video-token", h.HandleVideoToken)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
