// Package gateway serves browsers: one websocket per browser bound to a
// game session, plus REST routes for game creation and catch-up reads.
package gateway

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/cache"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/session"
)

type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
}

type Config struct {
	ConnectionConfig ConnectionConfig
}

func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

// Deps are the collaborators of the gateway. Games may be nil when the
// store is unavailable.
type Deps struct {
	Sessions session.Deps
	Games    GameStore
	Cache    *cache.SnapshotCache
}

func NewService(config Config, deps Deps) *Service {
	connectionManager := NewConnectionManager(config.ConnectionConfig)
	settings := deps.Sessions.Options.DefaultSettings
	if deps.Cache != nil {
		deps.Sessions.Gateway = withSnapshotInvalidation(deps.Sessions.Gateway, deps.Cache)
	}

	return &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager, deps.Sessions),
		stateHandler:      NewStateHandler(deps.Games, deps.Cache, deps.Sessions.Video, deps.Sessions.Clock, settings),
	}
}

func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("gateway routes registered")
}

func (s *Service) Stats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}

// Shutdown closes every connection, which closes their sessions.
func (s *Service) Shutdown() {
	s.connectionManager.CloseAll("server shutting down")
	log.Info().Msg("gateway stopped")
}
