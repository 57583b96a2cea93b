package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cinemaleshalles/rapla/internal/entity"
	"github.com/cinemaleshalles/rapla/internal/storage"
)

// UserDirectory resolves user accounts from the committed entity state.
type UserDirectory interface {
	UserByName(username string) (*entity.User, error)
	ResolveUser(id string) (*entity.User, error)
}

// CredentialStore exposes the persisted password hashes.
type CredentialStore interface {
	PasswordHash(ctx context.Context, userID string) (string, error)
	SetPasswordHash(ctx context.Context, userID, hash string, updatedAt time.Time) error
}

// SessionRepository captures the persistence interactions for issued sessions.
type SessionRepository interface {
	CreateSession(ctx context.Context, session storage.Session) error
	SessionByToken(ctx context.Context, token string) (storage.Session, error)
	RevokeSession(ctx context.Context, id string, revokedAt time.Time) error
	RevokeUserSessions(ctx context.Context, userID string, revokedAt time.Time) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// PasswordVerifier compares a stored hash with a candidate password.
type PasswordVerifier func(hashedPassword, password string) error

// AuthService coordinates login, session validation, and revocation.
type AuthService struct {
	users          UserDirectory
	credentials    CredentialStore
	sessions       SessionRepository
	verifyPassword PasswordVerifier
	tokenGenerator func() string
	now            func() time.Time
	sessionTTL     time.Duration
	logger         *slog.Logger
}

// AuthConfig wires the auth service's dependencies.
type AuthConfig struct {
	Users          UserDirectory
	Credentials    CredentialStore
	Sessions       SessionRepository
	VerifyPassword PasswordVerifier
	TokenGenerator func() string
	Now            func() time.Time
	SessionTTL     time.Duration
	Logger         *slog.Logger
}

// NewAuthService constructs an AuthService with the provided dependencies.
func NewAuthService(cfg AuthConfig) *AuthService {
	if cfg.VerifyPassword == nil {
		cfg.VerifyPassword = VerifyPassword
	}
	if cfg.TokenGenerator == nil {
		cfg.TokenGenerator = NewSessionToken
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	return &AuthService{
		users:          cfg.Users,
		credentials:    cfg.Credentials,
		sessions:       cfg.Sessions,
		verifyPassword: cfg.VerifyPassword,
		tokenGenerator: cfg.TokenGenerator,
		now:            cfg.Now,
		sessionTTL:     cfg.SessionTTL,
		logger:         defaultLogger(cfg.Logger),
	}
}

func (s *AuthService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AuthService", operation, attrs...)
}

// Authenticate validates credentials and issues a new session token.
func (s *AuthService) Authenticate(ctx context.Context, params AuthenticateParams) (result AuthenticateResult, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}
	if s.users == nil || s.credentials == nil || s.sessions == nil {
		err = fmt.Errorf("auth service not fully configured")
		return
	}

	username := strings.TrimSpace(params.Username)
	logger := s.loggerWith(ctx, "Authenticate", "username", username)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "authentication failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", result.User.ID).InfoContext(ctx, "authentication succeeded")
	}()

	if username == "" || params.Password == "" {
		err = ErrInvalidCredentials
		return
	}

	user, lookupErr := s.users.UserByName(username)
	if lookupErr != nil {
		err = ErrInvalidCredentials
		return
	}

	hash, hashErr := s.credentials.PasswordHash(ctx, user.ID)
	if hashErr != nil {
		err = ErrInvalidCredentials
		return
	}
	if err = s.verifyPassword(hash, params.Password); err != nil {
		err = ErrInvalidCredentials
		return
	}

	now := s.now()
	if _, pruneErr := s.sessions.DeleteExpiredSessions(ctx, now); pruneErr != nil {
		err = pruneErr
		return
	}

	session := storage.Session{
		ID:        s.tokenGenerator(),
		UserID:    user.ID,
		Token:     s.tokenGenerator(),
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	if err = s.sessions.CreateSession(ctx, session); err != nil {
		return
	}

	result = AuthenticateResult{User: user, Token: session.Token, ExpiresAt: session.ExpiresAt}
	return
}

// ValidateSession verifies the token and returns the acting principal.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (principal Principal, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}
	if s.users == nil || s.sessions == nil {
		err = fmt.Errorf("auth service not fully configured")
		return
	}

	trimmed := strings.TrimSpace(token)
	logger := s.loggerWith(ctx, "ValidateSession", "token_provided", trimmed != "")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "session validation failed", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if trimmed == "" {
		err = ErrInvalidCredentials
		return
	}

	session, lookupErr := s.sessions.SessionByToken(ctx, trimmed)
	if lookupErr != nil {
		if errors.Is(lookupErr, storage.ErrNotFound) {
			err = ErrUnauthorized
			return
		}
		err = lookupErr
		return
	}

	now := s.now()
	if session.RevokedAt != nil && !session.RevokedAt.IsZero() {
		err = ErrSessionRevoked
		return
	}
	if !session.ExpiresAt.After(now) {
		err = ErrSessionExpired
		return
	}

	user, userErr := s.users.ResolveUser(session.UserID)
	if userErr != nil {
		err = ErrUnauthorized
		return
	}

	principal = Principal{UserID: user.ID, IsAdmin: user.Admin}
	return
}

// RevokeSession invalidates an existing session token.
func (s *AuthService) RevokeSession(ctx context.Context, token string) error {
	if s == nil {
		return fmt.Errorf("AuthService is nil")
	}
	if s.sessions == nil {
		return fmt.Errorf("auth service not fully configured")
	}

	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return ErrInvalidCredentials
	}

	logger := s.loggerWith(ctx, "RevokeSession")

	session, err := s.sessions.SessionByToken(ctx, trimmed)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			logger.ErrorContext(ctx, "failed to revoke session", "error", ErrInvalidCredentials, "error_kind", ErrorKind(ErrInvalidCredentials))
			return ErrInvalidCredentials
		}
		logger.ErrorContext(ctx, "failed to revoke session", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	if err := s.sessions.RevokeSession(ctx, session.ID, s.now()); err != nil {
		logger.ErrorContext(ctx, "failed to revoke session", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	if _, err := s.sessions.DeleteExpiredSessions(ctx, s.now()); err != nil {
		logger.ErrorContext(ctx, "failed to prune expired sessions", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	logger.InfoContext(ctx, "session revoked")
	return nil
}
