package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cinemaleshalles/rapla/internal/storage"
)

// CreateSession inserts a new session row.
func (s *Store) CreateSession(ctx context.Context, session storage.Session) error {
	var revokedAt sql.NullString
	if session.RevokedAt != nil {
		revokedAt = sql.NullString{String: session.RevokedAt.UTC().Format(time.RFC3339), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, token, expires_at, created_at, updated_at, revoked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.UserID,
		session.Token,
		session.ExpiresAt.UTC().Format(time.RFC3339),
		session.CreatedAt.UTC().Format(time.RFC3339),
		session.UpdatedAt.UTC().Format(time.RFC3339),
		revokedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating session: %w", mapError(err))
	}
	return nil
}

// SessionByToken looks up a session by its opaque token.
func (s *Store) SessionByToken(ctx context.Context, token string) (storage.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, token, expires_at, created_at, updated_at, revoked_at
		FROM sessions
		WHERE token = ?`, token)
	return scanSession(row)
}

// TouchSession extends a session's expiry.
func (s *Store) TouchSession(ctx context.Context, id string, expiresAt, updatedAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET expires_at = ?, updated_at = ?
		WHERE id = ? AND revoked_at IS NULL`,
		expiresAt.UTC().Format(time.RFC3339),
		updatedAt.UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: touching session: %w", err)
	}
	return requireRow(result)
}

// RevokeSession marks a session revoked. Revoking twice is not an error.
func (s *Store) RevokeSession(ctx context.Context, id string, revokedAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET revoked_at = ?, updated_at = ?
		WHERE id = ? AND revoked_at IS NULL`,
		revokedAt.UTC().Format(time.RFC3339),
		revokedAt.UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: revoking session: %w", err)
	}
	_ = result
	return nil
}

// RevokeUserSessions revokes every live session of a user, used when the
// account's password changes.
func (s *Store) RevokeUserSessions(ctx context.Context, userID string, revokedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET revoked_at = ?, updated_at = ?
		WHERE user_id = ? AND revoked_at IS NULL`,
		revokedAt.UTC().Format(time.RFC3339),
		revokedAt.UTC().Format(time.RFC3339),
		userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: revoking sessions for user: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes sessions whose expiry has passed.
func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < ?`,
		now.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting expired sessions: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting deleted sessions: %w", err)
	}
	return deleted, nil
}

func scanSession(row *sql.Row) (storage.Session, error) {
	var session storage.Session
	var expiresAt, createdAt, updatedAt string
	var revokedAt sql.NullString
	err := row.Scan(&session.ID, &session.UserID, &session.Token,
		&expiresAt, &createdAt, &updatedAt, &revokedAt)
	if err != nil {
		return storage.Session{}, mapError(err)
	}
	if session.ExpiresAt, err = time.Parse(time.RFC3339, expiresAt); err != nil {
		return storage.Session{}, fmt.Errorf("sqlite: parsing session expiry: %w", err)
	}
	if session.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return storage.Session{}, fmt.Errorf("sqlite: parsing session created_at: %w", err)
	}
	if session.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return storage.Session{}, fmt.Errorf("sqlite: parsing session updated_at: %w", err)
	}
	if revokedAt.Valid {
		at, err := time.Parse(time.RFC3339, revokedAt.String)
		if err != nil {
			return storage.Session{}, fmt.Errorf("sqlite: parsing session revoked_at: %w", err)
		}
		session.RevokedAt = &at
	}
	return session, nil
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: counting affected rows: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}
