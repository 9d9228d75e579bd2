package main

import (
	"flag"
	"log/slog"
	"os"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/joho/godotenv"

	"github.com/stocklane/stocklane/internal/app"
	"github.com/stocklane/stocklane/migrations"
)

func main() {
	_ = godotenv.Load()

	down := flag.Bool("down", false, "roll back all migrations instead of applying them")
	flag.Parse()

	logger := slog.Default()

	cfg, err := app.LoadConfig()
	if err != nil {
		logger.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		logger.Error("open migration source", slog.Any("error", err))
		os.Exit(1)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, pgx5URL(cfg.PGDSN))
	if err != nil {
		logger.Error("init migrator", slog.Any("error", err))
		os.Exit(1)
	}
	defer m.Close()

	if *down {
		err = m.Down()
	} else {
		err = m.Up()
	}
	if err != nil && err != migrate.ErrNoChange {
		logger.Error("run migrations", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("migrations applied")
}

// pgx5URL rewrites a postgres:// DSN to the scheme the migrate pgx/v5 driver
// registers.
func pgx5URL(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") {
		return "pgx5://" + strings.TrimPrefix(dsn, "postgres://")
	}
	if strings.HasPrefix(dsn, "postgresql://") {
		return "pgx5://" + strings.TrimPrefix(dsn, "postgresql://")
	}
	return dsn
}
