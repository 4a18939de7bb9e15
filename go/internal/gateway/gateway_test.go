package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/channel"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/engine"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/session"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/models"
)

type memStore struct {
	mu    sync.Mutex
	games map[string]models.GameState
}

func newMemStore() *memStore {
	return &memStore{games: make(map[string]models.GameState)}
}

func (m *memStore) CreateGame(ctx context.Context, state models.GameState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.games[state.GameID]; ok {
		return models.ErrGameExists
	}
	m.games[state.GameID] = state.Clone()
	return nil
}

func (m *memStore) LoadGame(ctx context.Context, gameID string) (models.GameState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.games[gameID]
	if !ok {
		return models.GameState{}, models.ErrGameNotFound
	}
	return s.Clone(), nil
}

func (m *memStore) SaveDelta(ctx context.Context, gameID string, patch models.GameStatePatch) error {
	return m.apply(gameID, engine.Reconcile{Patch: patch})
}

func (m *memStore) ClaimBell(ctx context.Context, gameID string, playerID models.PlayerID, round int) (models.BellState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.games[gameID]
	if !s.Bell.IsActive || s.Bell.Claimed() || s.Bell.Round != round {
		return s.Bell, models.ErrBellAlreadyClaimed
	}
	s.Bell.ClickedBy = playerID
	s.Bell.TimerSeconds = models.BellCountdownSeconds
	s.Bell.IsTimerRunning = true
	m.games[gameID] = s
	return s.Bell, nil
}

func (m *memStore) MarkPlayerConnected(ctx context.Context, gameID string, playerID models.PlayerID, connected bool) error {
	return m.apply(gameID, engine.SetPlayerConnected{PlayerID: playerID, Connected: connected})
}

func (m *memStore) SetHostConnected(ctx context.Context, gameID string, connected bool) error {
	return m.apply(gameID, engine.SetHostConnected{Connected: connected})
}

func (m *memStore) apply(gameID string, action engine.Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.games[gameID]
	if !ok {
		return models.ErrGameNotFound
	}
	m.games[gameID] = engine.Reduce(s, action)
	return nil
}

type fakeVideo struct{}

func (fakeVideo) CreateRoom(ctx context.Context, name string) (string, error) {
	return "https://video.example/" + name, nil
}

func (fakeVideo) CheckRoom(ctx context.Context, name string) (string, bool, error) {
	return "", false, nil
}

func (fakeVideo) IssueToken(ctx context.Context, room, user string, isHost, isObserver bool) (string, error) {
	if isHost {
		return room + ":" + user + ":host", nil
	}
	return room + ":" + user, nil
}

type testServer struct {
	*httptest.Server
	store   *memStore
	service *Service
}

func newTestServer(t *testing.T, withStore bool) *testServer {
	t.Helper()
	clock := clockwork.NewFakeClock()
	store := newMemStore()
	deps := Deps{
		Sessions: session.Deps{
			Channel: channel.NewLocalHub(channel.WithClock(clock)),
			Video:   fakeVideo{},
			Clock:   clock,
		},
	}
	if withStore {
		deps.Sessions.Gateway = store
		deps.Games = store
	}

	service := NewService(DefaultConfig(), deps)
	mux := http.NewServeMux()
	service.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		service.Shutdown()
		srv.Close()
	})
	return &testServer{Server: srv, store: store, service: service}
}

func (s *testServer) createGame(t *testing.T, body string) (int, createGameResponse) {
	t.Helper()
	resp, err := http.Post(s.URL+"/api/games", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out createGameResponse
	if resp.StatusCode == http.StatusCreated {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func (s *testServer) dial(t *testing.T, params url.Values) *websocket.Conn {
	t.Helper()
	conn, resp, err := s.tryDial(params)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (s *testServer) tryDial(params url.Values) (*websocket.Conn, *http.Response, error) {
	u := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws/games?" + params.Encode()
	return websocket.DefaultDialer.Dial(u, nil)
}

type frame struct {
	Type         FrameType                 `json:"type"`
	Role         models.ParticipantType    `json:"role"`
	Mode         string                    `json:"mode"`
	State        models.GameState          `json:"state"`
	Participants []models.LobbyParticipant `json:"participants"`
	ID           string                    `json:"id"`
	Action       string                    `json:"action"`
	Success      bool                      `json:"success"`
	Error        string                    `json:"error"`
}

func readUntil(t *testing.T, conn *websocket.Conn, match func(frame) bool) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var f frame
		require.NoError(t, conn.ReadJSON(&f))
		if match(f) {
			return f
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, cmd Command) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(cmd))
}

func TestCreateGameAndReadState(t *testing.T) {
	srv := newTestServer(t, true)

	status, created := srv.createGame(t, `{"hostName":"Sam","gameId":"abc123"}`)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "ABC123", created.GameID)
	assert.Len(t, created.HostCode, 8)

	status, _ = srv.createGame(t, `{"hostName":"Sam","gameId":"ABC123"}`)
	assert.Equal(t, http.StatusConflict, status)

	resp, err := http.Get(srv.URL + "/api/games/ABC123/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var state models.GameState
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	assert.Equal(t, "Sam", state.HostName)
	assert.Equal(t, models.PhaseConfig, state.Phase)
	assert.Empty(t, state.HostCode, "host code is never served publicly")
}

func TestCreateGameValidation(t *testing.T) {
	srv := newTestServer(t, true)

	status, _ := srv.createGame(t, `not json`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = srv.createGame(t, `{"hostName":"Sam","segmentSettings":{"WSHA":99}}`)
	assert.Equal(t, http.StatusBadRequest, status)

	for _, id := range []string{"AB.C*", "ABC.>", "ABC 123", strings.Repeat("A", 33)} {
		body, err := json.Marshal(map[string]string{"hostName": "Sam", "gameId": id})
		require.NoError(t, err)
		status, _ = srv.createGame(t, string(body))
		assert.Equal(t, http.StatusBadRequest, status, id)
	}

	resp, err := http.Get(srv.URL + "/api/games/AB.C/state")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStateNotFound(t *testing.T) {
	srv := newTestServer(t, true)

	resp, err := http.Get(srv.URL + "/api/games/NOPE00/state")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRoutesWithoutStore(t *testing.T) {
	srv := newTestServer(t, false)

	status, _ := srv.createGame(t, `{"hostName":"Sam"}`)
	assert.Equal(t, http.StatusServiceUnavailable, status)

	resp, err := http.Get(srv.URL + "/api/games/ABC123/state")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestVideoToken(t *testing.T) {
	srv := newTestServer(t, true)
	_, created := srv.createGame(t, `{"hostName":"Sam","gameId":"ABC123"}`)

	get := func(query string) (int, tokenResponse) {
		resp, err := http.Get(srv.URL + "/api/games/ABC123/video-token?" + query)
		require.NoError(t, err)
		defer resp.Body.Close()
		var out tokenResponse
		if resp.StatusCode == http.StatusOK {
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		}
		return resp.StatusCode, out
	}

	status, _ := get("role=player")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = get("role=host&user=Sam&host_code=wrong")
	assert.Equal(t, http.StatusForbidden, status)

	status, token := get("role=host&user=Sam&host_code=" + created.HostCode)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "thirty-ABC123:Sam:host", token.Token)
	assert.Equal(t, "thirty-ABC123", token.Room)

	status, token = get("role=player&user=Alice")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "thirty-ABC123:Alice", token.Token)
}

func TestWebsocketAttachRejections(t *testing.T) {
	srv := newTestServer(t, true)
	_, created := srv.createGame(t, `{"hostName":"Sam","gameId":"ABC123"}`)
	require.NotEmpty(t, created.HostCode)

	tests := []struct {
		name   string
		params url.Values
		status int
	}{
		{"missing game id", url.Values{"role": {"player"}}, http.StatusBadRequest},
		{"subject wildcard", url.Values{"game_id": {"A.>"}, "role": {"player"}, "player_id": {"playerA"}}, http.StatusBadRequest},
		{"subject star", url.Values{"game_id": {"*"}, "role": {"player"}, "player_id": {"playerA"}}, http.StatusBadRequest},
		{"unknown game", url.Values{"game_id": {"ZZZ999"}, "role": {"player"}, "player_id": {"playerA"}}, http.StatusNotFound},
		{"wrong host code", url.Values{"game_id": {"ABC123"}, "role": {"host"}, "host_code": {"nope"}}, http.StatusForbidden},
		{"bad role", url.Values{"game_id": {"ABC123"}, "role": {"referee"}}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := srv.tryDial(tt.params)
			require.Error(t, err)
			require.NotNil(t, resp)
			resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestWebsocketHostAndPlayerFlow(t *testing.T) {
	srv := newTestServer(t, true)
	_, created := srv.createGame(t, `{"hostName":"Sam","gameId":"ABC123"}`)

	host := srv.dial(t, url.Values{"game_id": {"ABC123"}, "role": {"host"}, "host_code": {created.HostCode}})
	welcome := readUntil(t, host, func(f frame) bool { return f.Type == FrameWelcome })
	assert.Equal(t, models.ParticipantHostPC, welcome.Role)
	assert.Equal(t, string(session.ModeReplicated), welcome.Mode)
	first := readUntil(t, host, func(f frame) bool { return f.Type == FrameState })
	assert.Equal(t, created.HostCode, first.State.HostCode, "hosts see their code")

	send(t, host, Command{ID: "1", Action: "confirm_settings", Settings: models.DefaultSegmentSettings()})
	res := readUntil(t, host, func(f frame) bool { return f.Type == FrameResult && f.ID == "1" })
	assert.True(t, res.Success, res.Error)

	player := srv.dial(t, url.Values{"game_id": {"ABC123"}, "role": {"player"}, "player_id": {"playerA"}, "name": {"Alice"}})
	joined := readUntil(t, player, func(f frame) bool { return f.Type == FrameState })
	assert.Equal(t, models.PhaseLobby, joined.State.Phase)
	assert.Empty(t, joined.State.HostCode)

	readUntil(t, host, func(f frame) bool {
		return f.Type == FrameState && f.State.Players[models.PlayerA].IsConnected
	})
	readUntil(t, host, func(f frame) bool {
		return f.Type == FramePresence && len(f.Participants) == 2
	})

	send(t, player, Command{ID: "2", Action: "start_game"})
	res = readUntil(t, player, func(f frame) bool { return f.Type == FrameResult && f.ID == "2" })
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, ErrForbiddenCommand.Error())

	send(t, host, Command{ID: "3", Action: "update_host_name", Name: "Samira"})
	readUntil(t, player, func(f frame) bool {
		return f.Type == FrameState && f.State.HostName == "Samira"
	})

	require.NoError(t, player.WriteMessage(websocket.TextMessage, []byte(`{"nope":true}`)))
	res = readUntil(t, player, func(f frame) bool { return f.Type == FrameResult })
	assert.Contains(t, res.Error, ErrMalformedCommand.Error())

	stats := srv.service.Stats()
	assert.Equal(t, 2, stats.TotalConnections)
	assert.Equal(t, 2, stats.GameConnections["ABC123"])

	player.Close()
	readUntil(t, host, func(f frame) bool {
		return f.Type == FrameState && !f.State.Players[models.PlayerA].IsConnected
	})
}

func TestExecuteRouting(t *testing.T) {
	sess, err := session.Create(context.Background(), session.Deps{Clock: clockwork.NewFakeClock()}, session.CreateParams{GameID: "LOCAL1"})
	require.NoError(t, err)
	defer sess.Close(context.Background())

	res := Execute(context.Background(), sess, Command{Action: "press_bell"})
	assert.ErrorIs(t, res.Error, ErrForbiddenCommand)

	res = Execute(context.Background(), sess, Command{Action: "dance"})
	assert.ErrorIs(t, res.Error, ErrUnknownCommand)

	res = Execute(context.Background(), sess, Command{Action: "update_host_name", Name: "Samira"})
	assert.True(t, res.Success)
	assert.Equal(t, "Samira", sess.State().HostName)
}

func TestDecodeCommand(t *testing.T) {
	_, err := DecodeCommand([]byte(`{`))
	assert.ErrorIs(t, err, ErrMalformedCommand)

	_, err = DecodeCommand([]byte(`{"id":"x"}`))
	assert.ErrorIs(t, err, ErrMalformedCommand)

	cmd, err := DecodeCommand(bytes.TrimSpace([]byte(` {"action":"add_strike","playerId":"playerB"} `)))
	require.NoError(t, err)
	assert.Equal(t, models.PlayerB, cmd.PlayerID)
}

func TestParseRole(t *testing.T) {
	assert.Equal(t, models.ParticipantHostPC, parseRole("host"))
	assert.Equal(t, models.ParticipantHostPC, parseRole("host-pc"))
	assert.Equal(t, models.ParticipantHostMobile, parseRole("controller"))
	assert.Equal(t, models.ParticipantPlayer, parseRole("Player"))
	assert.False(t, parseRole("referee").Valid())
}

func TestAttachStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, attachStatus(fmt.Errorf("%w: %q", models.ErrInvalidGameID, "A.>")))
	assert.Equal(t, http.StatusNotFound, attachStatus(models.ErrGameNotFound))
	assert.Equal(t, http.StatusForbidden, attachStatus(models.ErrInvalidHostCode))
	assert.Equal(t, http.StatusInternalServerError, attachStatus(context.DeadlineExceeded))
}
