package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// migration is one ordered schema step. Steps run exactly once, inside their
// own transaction, and are recorded in schema_migrations.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the full schema history. Append only; never edit an applied
// step.
var migrations = []migration{
	{
		Version: 1,
		Name:    "entity journal",
		SQL: `
CREATE TABLE entities (
	kind TEXT NOT NULL,
	id TEXT NOT NULL,
	version INTEGER NOT NULL,
	last_changed TEXT NOT NULL,
	payload TEXT NOT NULL,
	PRIMARY KEY (kind, id)
);

CREATE TABLE removals (
	kind TEXT NOT NULL,
	id TEXT NOT NULL,
	removed_at TEXT NOT NULL,
	PRIMARY KEY (kind, id)
);`,
	},
	{
		Version: 2,
		Name:    "credentials",
		SQL: `
CREATE TABLE credentials (
	user_id TEXT PRIMARY KEY,
	password_hash TEXT NOT NULL,
	updated_at TEXT NOT NULL
);`,
	},
	{
		Version: 3,
		Name:    "sessions",
		SQL: `
CREATE TABLE sessions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	token TEXT NOT NULL UNIQUE,
	expires_at TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	revoked_at TEXT
);

CREATE INDEX idx_sessions_user_id ON sessions (user_id);
CREATE INDEX idx_sessions_expires_at ON sessions (expires_at);`,
	},
}

// applyMigrations brings the schema up to the latest version. Already applied
// steps are skipped, so Open is safe to call on every start.
func applyMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	applied_at TEXT NOT NULL
)`); err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}

	var current sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for _, step := range migrations {
		if current.Valid && step.Version <= int(current.Int64) {
			continue
		}
		if err := applyMigration(ctx, db, step); err != nil {
			return fmt.Errorf("migration %d (%s): %w", step.Version, step.Name, err)
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, step migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, step.SQL); err != nil {
		return err
	}
	appliedAt := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
		step.Version, step.Name, appliedAt); err != nil {
		return err
	}
	return tx.Commit()
}

// schemaVersion reports the highest applied migration version, 0 for a fresh
// database.
func schemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var current sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&current); err != nil {
		return 0, err
	}
	if !current.Valid {
		return 0, nil
	}
	return int(current.Int64), nil
}
