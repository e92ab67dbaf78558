package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx database/sql driver
	"github.com/pressly/goose/v3"
)

// Migrator applies the embedded goose migrations.
type Migrator struct {
	db     *sql.DB
	fsys   fs.FS
	logger *slog.Logger
}

// NewMigrator opens a database/sql handle for goose over the pgx driver.
func NewMigrator(dsn string, fsys fs.FS, logger *slog.Logger) (*Migrator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("platform/db: open migrator: %w", err)
	}
	if err := goose.SetDialect("postgres"); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &Migrator{db: conn, fsys: fsys, logger: logger}, nil
}

// Close releases the migration connection.
func (m *Migrator) Close() error {
	return m.db.Close()
}

// Up applies all pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	goose.SetBaseFS(m.fsys)
	if err := goose.UpContext(ctx, m.db, "."); err != nil {
		if isNoMigrationErr(err) {
			m.logger.Info("no migrations to apply")
			return nil
		}
		return err
	}
	m.logger.Info("migrations applied")
	return nil
}

// Down rolls back migrations. Steps <=0 defaults to 1; all=true rolls
// everything back.
func (m *Migrator) Down(ctx context.Context, steps int, all bool) error {
	goose.SetBaseFS(m.fsys)
	if all {
		if err := goose.DownToContext(ctx, m.db, ".", 0); err != nil && !isNoMigrationErr(err) {
			return err
		}
		m.logger.Info("migrations rolled back", slog.String("mode", "all"))
		return nil
	}
	if steps <= 0 {
		steps = 1
	}
	for i := 0; i < steps; i++ {
		if err := goose.DownContext(ctx, m.db, "."); err != nil {
			if isNoMigrationErr(err) {
				m.logger.Info("no migrations to rollback")
				return nil
			}
			return err
		}
	}
	m.logger.Info("migrations rolled back", slog.Int("steps", steps))
	return nil
}

// Status logs the applied state of every migration.
func (m *Migrator) Status(ctx context.Context) error {
	goose.SetBaseFS(m.fsys)
	return goose.StatusContext(ctx, m.db, ".")
}

func isNoMigrationErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, goose.ErrNoNextVersion) || errors.Is(err, goose.ErrNoMigrationFiles) {
		return true
	}
	return strings.Contains(err.Error(), "no migrations")
}
