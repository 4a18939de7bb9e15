// seed_game inserts a demo game in CONFIG with both slots reserved, for
// exercising the browser flow against a local database.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/dbconfig"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/session"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/models"
)

func main() {
	gameID := flag.String("id", "", "game id (random when empty)")
	hostName := flag.String("host", "Demo Host", "host display name")
	flag.Parse()

	id := strings.ToUpper(strings.TrimSpace(*gameID))
	if id == "" {
		id = session.NewGameID()
	}
	if !models.ValidGameID(id) {
		fmt.Fprintf(os.Stderr, "%v: %q\n", models.ErrInvalidGameID, id)
		os.Exit(1)
	}
	hostCode := session.NewHostCode()

	settings, err := json.Marshal(models.DefaultSegmentSettings())
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal settings: %v\n", err)
		os.Exit(1)
	}
	buttons, err := json.Marshal(models.NewSpecialButtons())
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal buttons: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
            INSERT INTO games (id, host_code, host_name, segment_settings)
            VALUES ($1, $2, $3, $4)
            ON CONFLICT (id) DO NOTHING
        `, id, hostCode, *hostName, settings)
		if err != nil {
			return fmt.Errorf("insert game: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("game %s already exists", id)
		}

		for _, slot := range models.PlayerSlots {
			if _, err := tx.Exec(ctx, `
                INSERT INTO players (id, game_id, special_buttons)
                VALUES ($1, $2, $3)
                ON CONFLICT (game_id, id) DO NOTHING
            `, string(slot), id, buttons); err != nil {
				return fmt.Errorf("insert %s: %w", slot, err)
			}
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Seeded game %s\n", id)
	fmt.Printf("  host code: %s\n", hostCode)
	fmt.Printf("  host:      /ws/games?game_id=%s&role=host&host_code=%s\n", id, hostCode)
	fmt.Printf("  player A:  /ws/games?game_id=%s&role=player&player_id=playerA&name=Alice\n", id)
}
