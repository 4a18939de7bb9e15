package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/session"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/models"
)

// WebSocketHandler attaches a session per websocket.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	deps              session.Deps
}

func NewWebSocketHandler(cm *ConnectionManager, deps session.Deps) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		deps:              deps,
	}
}

// parseRole maps the query role to a participant type. "host" is the main
// host screen.
func parseRole(role string) models.ParticipantType {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "host", string(models.ParticipantHostPC):
		return models.ParticipantHostPC
	case "controller", string(models.ParticipantHostMobile):
		return models.ParticipantHostMobile
	case string(models.ParticipantPlayer):
		return models.ParticipantPlayer
	}
	return models.ParticipantType(role)
}

// HandleGameConnection handles GET /ws/games?game_id=&role=&player_id=&host_code=&name=
func (h *WebSocketHandler) HandleGameConnection(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	gameID := strings.ToUpper(strings.TrimSpace(q.Get("game_id")))
	if !models.ValidGameID(gameID) {
		http.Error(w, "game_id must be 1-32 letters or digits", http.StatusBadRequest)
		return
	}

	params := session.AttachParams{
		GameID:        gameID,
		Role:          parseRole(q.Get("role")),
		HostCode:      q.Get("host_code"),
		PlayerID:      models.PlayerID(q.Get("player_id")),
		ParticipantID: q.Get("participant_id"),
		Profile: models.Player{
			Name: q.Get("name"),
			Flag: q.Get("flag"),
			Club: q.Get("club"),
		},
	}

	// The request context ends once the socket is hijacked.
	ctx := context.WithoutCancel(r.Context())
	sess, err := session.Attach(ctx, h.deps, params)
	if err != nil {
		status := attachStatus(err)
		log.Info().Err(err).Str("game_id", gameID).Str("role", string(params.Role)).Msg("attach rejected")
		http.Error(w, err.Error(), status)
		return
	}

	conn, err := h.connectionManager.UpgradeConnection(w, r, sess)
	if err != nil {
		log.Error().Err(err).Str("game_id", gameID).Msg("failed to upgrade websocket connection")
		if cerr := sess.Close(ctx); cerr != nil {
			log.Warn().Err(cerr).Str("game_id", gameID).Msg("failed to close session")
		}
		return
	}

	h.bind(conn, sess)
}

// bind pushes the welcome frame and the current snapshot, then streams
// store and presence changes.
func (h *WebSocketHandler) bind(conn *Connection, sess *session.Session) {
	cm := h.connectionManager
	p := sess.Participant()
	cm.Push(conn, WelcomeFrame{
		Type:          FrameWelcome,
		ConnectionID:  conn.ID,
		ParticipantID: p.ID,
		Role:          p.Type,
		PlayerID:      p.PlayerID,
		Mode:          string(sess.Mode()),
		Warnings:      sess.Warnings(),
	})

	unsubscribeState := sess.Store().Subscribe(func(state models.GameState) {
		cm.Push(conn, StateFrame{Type: FrameState, State: visibleState(state, p.Type)})
	})
	unsubscribePresence := sess.OnPresence(func(live []models.LobbyParticipant) {
		cm.Push(conn, PresenceFrame{Type: FramePresence, Participants: live})
	})
	conn.OnClose(unsubscribeState)
	conn.OnClose(unsubscribePresence)

	cm.Push(conn, StateFrame{Type: FrameState, State: visibleState(sess.State(), p.Type)})
	cm.Push(conn, PresenceFrame{Type: FramePresence, Participants: sess.Participants()})
}

func attachStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrGameNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidHostCode):
		return http.StatusForbidden
	case errors.Is(err, models.ErrInvalidRole), errors.Is(err, models.ErrInvalidGameID):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// HandleConnectionStats handles GET /ws/stats.
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.GetConnectionStats()); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/games", h.HandleGameConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}
