// Command migrate applies and inspects schema migrations for the graph,
// change, approval, audit, and policy tables.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/opsgrid/changeintel/internal/database"
	"github.com/opsgrid/changeintel/internal/database/postgres"
)

func main() {
	var (
		command = flag.String("command", "up", "migration command: up, down, status")
		steps   = flag.Int("steps", 1, "number of steps for the down command")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := postgres.LoadFromEnv()
	pool := postgres.NewPostgresPool(cfg, logger)

	ctx := context.Background()
	if err := pool.Connect(ctx); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Disconnect(ctx)

	var err error
	switch *command {
	case "up":
		err = database.RunMigrations(ctx, pool, logger)
	case "down":
		err = database.RunMigrationsDown(ctx, pool, *steps, logger)
	case "status":
		err = database.GetMigrationStatus(ctx, pool, logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q: expected up, down, or status\n", *command)
		os.Exit(2)
	}

	if err != nil {
		logger.Error("migration command failed", "command", *command, "error", err)
		os.Exit(1)
	}
}
