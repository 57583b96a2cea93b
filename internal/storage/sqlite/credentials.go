package sqlite

import (
	"context"
	"fmt"
	"time"
)

// PasswordHash returns the stored password hash for a user.
func (s *Store) PasswordHash(ctx context.Context, userID string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT password_hash FROM credentials WHERE user_id = ?`, userID).Scan(&hash)
	if err != nil {
		return "", mapError(err)
	}
	return hash, nil
}

// SetPasswordHash stores or replaces a user's password hash.
func (s *Store) SetPasswordHash(ctx context.Context, userID, hash string, updatedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (user_id, password_hash, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE
		SET password_hash = excluded.password_hash,
		    updated_at = excluded.updated_at`,
		userID, hash, updatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("sqlite: storing password hash: %w", err)
	}
	return nil
}

// DeleteCredentials removes a user's stored password hash.
func (s *Store) DeleteCredentials(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("sqlite: deleting credentials: %w", err)
	}
	return nil
}
