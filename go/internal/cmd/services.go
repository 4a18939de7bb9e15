package main

import (
	"context"
	"database/sql"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Kasco23/thirty-challenge-code-sub000/go/clients/video_client"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/cache"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/channel"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/config"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/repository"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/session"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/gateway"
)

// Services holds everything the server wires together. Any infrastructure
// piece may be missing; sessions then run degraded.
type Services struct {
	DB      *sql.DB
	NATS    *channel.NATSChannel
	Redis   *redis.Client
	Gateway *gateway.Service
}

func setupServices(ctx context.Context, cfg config.Config) (*Services, error) {
	services := &Services{}
	deps := gateway.Deps{
		Sessions: session.Deps{
			Clock:   clockwork.NewRealClock(),
			Options: sessionOptions(cfg),
		},
	}

	// Database → Repository
	database, err := setupDatabase(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("database unavailable, games run local-only")
	} else {
		services.DB = database
		repo := repository.NewRepository(database)
		deps.Sessions.Gateway = repo
		deps.Games = repo
	}

	// Channel: NATS when configured, else in-process
	if cfg.NATS.URL != "" {
		natsCfg := channel.DefaultNATSConfig()
		natsCfg.URL = cfg.NATS.URL
		nc, err := channel.NewNATSChannel(natsCfg)
		if err != nil {
			log.Warn().Err(err).Msg("NATS unavailable, using in-process channel")
		} else {
			services.NATS = nc
			deps.Sessions.Channel = nc
		}
	}
	if deps.Sessions.Channel == nil {
		deps.Sessions.Channel = channel.NewLocalHub(channel.WithClock(deps.Sessions.Clock))
	}

	// Snapshot cache
	if cfg.Redis.Addr != "" {
		client, err := cache.Connect(ctx, cfg.Redis.Addr)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, state reads go to the database")
		} else {
			services.Redis = client
			deps.Cache = cache.NewSnapshotCache(client, cfg.Redis.TTL)
		}
	}

	// Video provider
	if cfg.Video.URL != "" {
		deps.Sessions.Video = video_client.NewVideoClient(cfg.Video.URL, cfg.Video.APIKey)
	} else {
		log.Warn().Msg("video provider not configured, video rooms disabled")
	}

	services.Gateway = gateway.NewService(gateway.DefaultConfig(), deps)
	return services, nil
}

func (s *Services) Close() {
	if s.NATS != nil {
		s.NATS.Close()
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Error().Err(err).Msg("close redis")
		}
	}
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			log.Error().Err(err).Msg("close database")
		}
	}
}
