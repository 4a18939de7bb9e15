package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/dbconfig"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/migrations"
)

// setupDatabase connects and brings the schema up to date.
func setupDatabase(ctx context.Context) (*sql.DB, error) {
	dbCfg := dbconfig.NewConfigFromEnv()

	database, err := dbCfg.Open(ctx)
	if err != nil {
		return nil, err
	}
	if err := migrations.Up(dbCfg.MigrateURL()); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Info().
		Str("user", dbCfg.User).
		Str("host", dbCfg.Host).
		Int("port", dbCfg.Port).
		Str("database", dbCfg.Database).
		Msg("connected to database")
	return database, nil
}
