package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cinemaleshalles/rapla/internal/entity"
	"github.com/cinemaleshalles/rapla/internal/storage"
)

// LoadEntities reads every committed entity snapshot from the journal.
func (s *Store) LoadEntities(ctx context.Context) ([]entity.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, id, payload
		FROM entities
		ORDER BY kind, id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading entities: %w", err)
	}
	defer rows.Close()

	var entities []entity.Entity
	for rows.Next() {
		var kind, id string
		var payload []byte
		if err := rows.Scan(&kind, &id, &payload); err != nil {
			return nil, fmt.Errorf("sqlite: scanning entity row: %w", err)
		}
		decoded, err := entity.DecodeJSON(entity.Kind(kind), payload)
		if err != nil {
			return nil, fmt.Errorf("sqlite: decoding %s/%s: %w", kind, id, err)
		}
		entities = append(entities, decoded)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating entities: %w", err)
	}
	return entities, nil
}

// LoadRemovals reads the persisted deletion log.
func (s *Store) LoadRemovals(ctx context.Context) (map[entity.ReferenceInfo]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, id, removed_at FROM removals`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading removals: %w", err)
	}
	defer rows.Close()

	removed := make(map[entity.ReferenceInfo]time.Time)
	for rows.Next() {
		var kind, id, removedAt string
		if err := rows.Scan(&kind, &id, &removedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning removal row: %w", err)
		}
		at, err := storage.ParseTimestamp(removedAt)
		if err != nil {
			return nil, fmt.Errorf("sqlite: removal timestamp for %s/%s: %w", kind, id, err)
		}
		removed[entity.ReferenceInfo{ID: id, Kind: entity.Kind(kind)}] = at
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating removals: %w", err)
	}
	return removed, nil
}

// RecordCommit writes the commit's stores and removals in one transaction.
// The cache applies the commit only after this returns, so a crash between
// the two leaves the durable state ahead of memory, never behind it.
func (s *Store) RecordCommit(ctx context.Context, commit storage.Commit) error {
	return s.withTransaction(ctx, func(tx *sql.Tx) error {
		timestamp := storage.FormatTimestamp(commit.Timestamp)
		for _, ref := range commit.Removed {
			if _, err := tx.Exec(`DELETE FROM entities WHERE kind = ? AND id = ?`,
				string(ref.Kind), ref.ID); err != nil {
				return fmt.Errorf("sqlite: removing %s: %w", ref, err)
			}
			if _, err := tx.Exec(`
				INSERT INTO removals (kind, id, removed_at) VALUES (?, ?, ?)
				ON CONFLICT (kind, id) DO UPDATE SET removed_at = excluded.removed_at`,
				string(ref.Kind), ref.ID, timestamp); err != nil {
				return fmt.Errorf("sqlite: journaling removal of %s: %w", ref, err)
			}
		}
		for _, e := range commit.Stored {
			ref := e.Ref()
			payload, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("sqlite: encoding %s: %w", ref, err)
			}
			meta := e.Metadata()
			if _, err := tx.Exec(`
				INSERT INTO entities (kind, id, version, last_changed, payload)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT (kind, id) DO UPDATE
				SET version = excluded.version,
				    last_changed = excluded.last_changed,
				    payload = excluded.payload`,
				string(ref.Kind), ref.ID, meta.Version,
				storage.FormatTimestamp(meta.LastChanged), payload); err != nil {
				return fmt.Errorf("sqlite: storing %s: %w", ref, err)
			}
			if _, err := tx.Exec(`DELETE FROM removals WHERE kind = ? AND id = ?`,
				string(ref.Kind), ref.ID); err != nil {
				return fmt.Errorf("sqlite: clearing removal of %s: %w", ref, err)
			}
		}
		return nil
	})
}
