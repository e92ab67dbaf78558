package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/munesh14/first-exchange-hub-sub000/internal/app"
	"github.com/munesh14/first-exchange-hub-sub000/internal/platform/db"
	"github.com/munesh14/first-exchange-hub-sub000/migrations"
)

func main() {
	steps := flag.Int("steps", 1, "number of migrations to roll back with down")
	all := flag.Bool("all", false, "roll back every migration with down")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	migrator, err := db.NewMigrator(cfg.PGDSN, migrations.FS, logger)
	if err != nil {
		logger.Error("init migrator", slog.Any("error", err))
		os.Exit(1)
	}
	defer migrator.Close()

	command := "up"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}
	switch command {
	case "up":
		err = migrator.Up(ctx)
	case "down":
		err = migrator.Down(ctx, *steps, *all)
	case "status":
		err = migrator.Status(ctx)
	default:
		logger.Error("unknown command", slog.String("command", command))
		os.Exit(2)
	}
	if err != nil {
		logger.Error("migrate", slog.String("command", command), slog.Any("error", err))
		os.Exit(1)
	}
}
