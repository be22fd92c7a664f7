package main

import (
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/reelsong/reelsong-api/migrations"
)

// setupGoose points goose at the embedded migration files.
func setupGoose() error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return nil
}

// migrateUp applies all pending migrations. Called on every startup so a
// fresh database is usable without a separate migration step.
func migrateUp(db *sql.DB) error {
	if err := setupGoose(); err != nil {
		return err
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// runMigrationCommand executes an explicit migration command from the
// -migrate flag.
func runMigrationCommand(db *sql.DB, cmd string) error {
	if err := setupGoose(); err != nil {
		return err
	}

	switch cmd {
	case "up":
		return goose.Up(db, ".")
	case "down":
		return goose.Down(db, ".")
	case "status":
		return goose.Status(db, ".")
	default:
		return fmt.Errorf("unknown migration command %q (want up, down or status)", cmd)
	}
}
