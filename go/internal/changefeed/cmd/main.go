package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/changefeed"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/config"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/dbconfig"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/repository"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	zerolog.SetGlobalLevel(cfg.Level())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbCfg := dbconfig.NewConfigFromEnv()
	db, err := dbCfg.Open(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()
	log.Info().
		Str("host", dbCfg.Host).
		Int("port", dbCfg.Port).
		Str("database", dbCfg.Database).
		Msg("connected to database")

	jsCfg := changefeed.DefaultJetStreamConfig()
	if cfg.NATS.URL != "" {
		jsCfg.URL = cfg.NATS.URL
	}
	publisher, err := changefeed.NewJetStreamPublisher(ctx, jsCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create JetStream publisher")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("close publisher")
		}
	}()

	repo := repository.NewRepository(db)
	relayCfg := changefeed.DefaultConfig()
	relayCfg.DatabaseURL = dbCfg.DSN()
	relayCfg.NotifyChannel = cfg.Relay.Channel
	relayCfg.FallbackInterval = cfg.Relay.PollInterval
	relayCfg.BatchSize = int32(cfg.Relay.BatchSize)

	relay := changefeed.NewRelay(repo.Queries(), repo, publisher, relayCfg, nil)
	if err := relay.Listen(); err != nil {
		log.Warn().Err(err).Msg("LISTEN unavailable, relaying by polling only")
	}

	mux := http.NewServeMux()
	mux.Handle("/health", changefeed.NewHealthChecker(relay, db, time.Minute))
	healthServer := &http.Server{
		Addr:              ":" + cfg.Relay.HealthPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", healthServer.Addr).Msg("health endpoint listening")
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server failed")
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- relay.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
		if err := <-errCh; err != nil {
			log.Error().Err(err).Msg("relay stopped with error")
		}
	case err := <-errCh:
		log.Error().Err(err).Msg("relay exited unexpectedly")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server shutdown")
	}
	log.Info().Msg("graceful shutdown complete")
}
