package db

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"

	"github.com/munesh14/first-exchange-hub-sub000/migrations"
)

func TestEmbeddedMigrationsAreGooseFiles(t *testing.T) {
	files, err := fs.Glob(migrations.FS, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)
	for _, name := range files {
		body, err := fs.ReadFile(migrations.FS, name)
		require.NoError(t, err)
		text := string(body)
		require.Contains(t, text, "-- +goose Up", name)
		require.Contains(t, text, "-- +goose Down", name)
	}
	body, err := fs.ReadFile(migrations.FS, "00001_lpo.sql")
	require.NoError(t, err)
	for _, table := range []string{"lpo_orders", "lpo_order_lines", "lpo_receipts", "fixed_assets", "approvals", "audit_logs", "idempotency_keys"} {
		require.True(t, strings.Contains(string(body), "CREATE TABLE "+table+" ("), table)
	}
}

func TestIsNoMigrationErr(t *testing.T) {
	require.False(t, isNoMigrationErr(nil))
	require.True(t, isNoMigrationErr(fmt.Errorf("wrap: %w", goose.ErrNoNextVersion)))
	require.True(t, isNoMigrationErr(errors.New("goose: no migrations found")))
	require.False(t, isNoMigrationErr(errors.New("connection refused")))
}
