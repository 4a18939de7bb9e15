package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/dbconfig"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/migrations"
)

func main() {
	down := flag.Int("down", 0, "roll back this many migrations instead of migrating up")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "could not load .env file: %v\n", err)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	url := dbconfig.NewConfigFromEnv().MigrateURL()

	var err error
	if *down > 0 {
		err = migrations.Down(url, *down)
	} else {
		err = migrations.Up(url)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
