package storage

import "time"

// Session is an authenticated session issued to a user. Tokens are opaque
// random strings validated server-side so revocation takes effect
// immediately.
type Session struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
	RevokedAt *time.Time
}
