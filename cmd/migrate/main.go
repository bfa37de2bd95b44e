// Command migrate applies or reports on the Postgres schema migrations
// under internal/store/migrations. Grounded on the teacher's cmd/migrate
// entrypoint: a single subcommand flag, one-shot run against
// database/sql+lib/pq, no long-lived process.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kestrel-trading/agentrader/internal/config"
	"github.com/kestrel-trading/agentrader/internal/store"
)

func main() {
	configPath := flag.String("config", "", "process config file path (defaults to ./configs/config.yaml)")
	command := flag.String("command", "up", "migration command: up or status")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	baseLog := config.NewLogger("migrate")

	migrator, err := store.NewMigrator(cfg.Database.GetDSN(), cfg.Database.MigrationsPath, baseLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open migrator connection")
	}
	defer migrator.Close()

	ctx := context.Background()

	switch *command {
	case "up":
		if err := migrator.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("migration failed")
		}
		log.Info().Msg("migrations applied")
	case "status":
		statuses, err := migrator.Status(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to read migration status")
		}
		for _, s := range statuses {
			state := "pending"
			if s.Applied {
				state = "applied"
			}
			fmt.Printf("%-50s %s\n", s.Filename, state)
		}
	default:
		log.Fatal().Str("command", *command).Msg("unknown command, expected up or status")
	}
}
