package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/config"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/session"
)

func setupLogging(cfg config.Config) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	zerolog.SetGlobalLevel(cfg.Level())
}

// sessionOptions maps the game section onto session defaults. Settings were
// validated by config.Load.
func sessionOptions(cfg config.Config) session.Options {
	settings, err := cfg.SegmentSettings()
	if err != nil {
		log.Warn().Err(err).Msg("invalid segment settings, using defaults")
		settings = nil
	}
	return session.Options{
		MinPlayers:        cfg.Game.MinPlayers,
		PresenceTTL:       cfg.Game.PresenceTTL,
		HeartbeatInterval: cfg.Game.HeartbeatInterval,
		TickInterval:      cfg.Game.TickInterval,
		DefaultSettings:   settings,
	}
}
