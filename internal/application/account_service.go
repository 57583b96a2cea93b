package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cinemaleshalles/rapla/internal/entity"
	"github.com/cinemaleshalles/rapla/internal/mail"
	"github.com/cinemaleshalles/rapla/internal/operator"
	"github.com/cinemaleshalles/rapla/internal/permission"
	"github.com/cinemaleshalles/rapla/internal/storage"
)

// AccountService manages user self-service: passwords, display names, and
// email confirmation.
type AccountService struct {
	op          *operator.Operator
	credentials CredentialStore
	sessions    SessionRepository
	mailer      mail.Sender
	hashParams  Argon2idParams
	now         func() time.Time
	logger      *slog.Logger
}

// AccountConfig wires the account service's dependencies.
type AccountConfig struct {
	Operator    *operator.Operator
	Credentials CredentialStore
	Sessions    SessionRepository
	Mailer      mail.Sender
	HashParams  Argon2idParams
	Now         func() time.Time
	Logger      *slog.Logger
}

// NewAccountService constructs an AccountService with the provided dependencies.
func NewAccountService(cfg AccountConfig) *AccountService {
	if cfg.HashParams == (Argon2idParams{}) {
		cfg.HashParams = DefaultArgon2idParams
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Mailer == nil {
		cfg.Mailer = &mail.LogSender{Logger: cfg.Logger}
	}
	return &AccountService{
		op:          cfg.Operator,
		credentials: cfg.Credentials,
		sessions:    cfg.Sessions,
		mailer:      cfg.Mailer,
		hashParams:  cfg.HashParams,
		now:         cfg.Now,
		logger:      defaultLogger(cfg.Logger),
	}
}

func (s *AccountService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AccountService", operation, attrs...)
}

// CanChangePassword reports whether password changes are possible, which
// requires a configured credential store.
func (s *AccountService) CanChangePassword() bool {
	return s != nil && s.credentials != nil
}

// ChangePassword sets a new password for the target user. Administrators may
// change any password without knowing the old one; everyone else proves the
// old password for their own account first.
func (s *AccountService) ChangePassword(ctx context.Context, principal Principal, change PasswordChange) (err error) {
	logger := s.loggerWith(ctx, "ChangePassword",
		"user_id", principal.UserID,
		"target_id", change.UserID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "password change failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "password changed")
	}()

	if !s.CanChangePassword() {
		return fmt.Errorf("credential store not configured")
	}
	if strings.TrimSpace(change.NewPassword) == "" {
		vErr := &ValidationError{}
		vErr.add("new_password", "must not be empty")
		return vErr
	}

	acting, err := s.op.ResolveUser(principal.UserID)
	if err != nil {
		return ErrUnauthorized
	}
	target, err := s.op.ResolveUser(change.UserID)
	if err != nil {
		return ErrNotFound
	}

	bypassOldPassword := permission.CanAdminUser(acting, target)
	if !bypassOldPassword {
		if acting.ID != target.ID {
			return ErrUnauthorized
		}
		hash, hashErr := s.credentials.PasswordHash(ctx, target.ID)
		if hashErr != nil && !errors.Is(hashErr, storage.ErrNotFound) {
			return hashErr
		}
		if hashErr == nil {
			if err := VerifyPassword(hash, change.OldPassword); err != nil {
				return ErrInvalidCredentials
			}
		}
	}

	newHash, err := CreatePasswordHash(change.NewPassword, s.hashParams)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if err := s.credentials.SetPasswordHash(ctx, target.ID, newHash, s.now()); err != nil {
		return err
	}
	if s.sessions != nil {
		if err := s.sessions.RevokeUserSessions(ctx, target.ID, s.now()); err != nil {
			return err
		}
	}
	return nil
}

// ChangeName updates the display name of the principal's own account.
func (s *AccountService) ChangeName(ctx context.Context, principal Principal, title, firstname, lastname string) error {
	acting, err := s.op.ResolveUser(principal.UserID)
	if err != nil {
		return ErrUnauthorized
	}
	updated := acting.Clone().(*entity.User)
	updated.Title = strings.TrimSpace(title)
	updated.Firstname = strings.TrimSpace(firstname)
	updated.Lastname = strings.TrimSpace(lastname)
	return s.storeUser(ctx, acting, updated)
}

// ConfirmEmail mails a security code to the new address. The code must be
// echoed back to ChangeEmail before the address is committed.
func (s *AccountService) ConfirmEmail(ctx context.Context, principal Principal, newEmail string) error {
	acting, err := s.op.ResolveUser(principal.UserID)
	if err != nil {
		return ErrUnauthorized
	}
	email := strings.TrimSpace(newEmail)
	if email == "" {
		vErr := &ValidationError{}
		vErr.add("email", "must not be empty")
		return vErr
	}
	code := SecurityCode(email)
	body := fmt.Sprintf("Your security code for confirming the address change of account %s is %s.", acting.Username, code)
	if err := s.mailer.Send(ctx, email, "Email confirmation", body); err != nil {
		return fmt.Errorf("sending confirmation mail: %w", err)
	}
	s.loggerWith(ctx, "ConfirmEmail", "user_id", acting.ID).InfoContext(ctx, "confirmation code sent")
	return nil
}

// ChangeEmail commits a new email address after the security code from
// ConfirmEmail is presented.
func (s *AccountService) ChangeEmail(ctx context.Context, principal Principal, newEmail, code string) error {
	acting, err := s.op.ResolveUser(principal.UserID)
	if err != nil {
		return ErrUnauthorized
	}
	email := strings.TrimSpace(newEmail)
	if SecurityCode(email) != strings.TrimSpace(code) {
		return ErrInvalidSecurityCode
	}
	updated := acting.Clone().(*entity.User)
	updated.Email = email
	return s.storeUser(ctx, acting, updated)
}

// GetUsername resolves a user id to its login name.
func (s *AccountService) GetUsername(ctx context.Context, userID string) (string, error) {
	user, err := s.op.ResolveUser(userID)
	if err != nil {
		return "", ErrNotFound
	}
	return user.Username, nil
}

func (s *AccountService) storeUser(ctx context.Context, acting, updated *entity.User) error {
	evt := &storage.UpdateEvent{
		UserID:        acting.ID,
		Store:         []entity.Entity{updated},
		LastValidated: s.op.CurrentTimestamp(),
	}
	return s.op.Dispatch(ctx, evt)
}

// SecurityCode derives the confirmation code for an email address. The code
// is a decimal rendering of the address's string hash, stable across
// restarts so confirmation needs no server-side state.
func SecurityCode(email string) string {
	var hash int32
	for _, r := range email {
		hash = hash*31 + r
	}
	if hash < 0 {
		hash = -hash
	}
	return strconv.FormatInt(int64(hash), 10)
}
