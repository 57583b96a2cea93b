package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cinemaleshalles/rapla/internal/binding"
	"github.com/cinemaleshalles/rapla/internal/entity"
	"github.com/cinemaleshalles/rapla/internal/logging"
	"github.com/cinemaleshalles/rapla/internal/operator"
	"github.com/cinemaleshalles/rapla/internal/storage"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = base
	}
	if logger == nil {
		logger = slog.Default()
	}

	pairs := []any{"service", serviceName}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if len(attrs) > 0 {
		pairs = append(pairs, attrs...)
	}
	return logger.With(pairs...)
}

// ErrorKind maps sentinel and structured errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrSessionExpired):
		return "session_expired"
	case errors.Is(err, ErrSessionRevoked):
		return "session_revoked"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrInvalidSecurityCode):
		return "invalid_security_code"
	case errors.Is(err, operator.ErrSecurity):
		return "security"
	case errors.Is(err, binding.ErrNoFreeSlot):
		return "no_free_slot"
	}

	var versionErr *storage.VersionConflictError
	if errors.As(err, &versionErr) {
		return "version_conflict"
	}
	var dependencyErr *storage.DependencyError
	if errors.As(err, &dependencyErr) {
		return "dependency"
	}
	var notFoundErr *entity.NotFoundError
	if errors.As(err, &notFoundErr) {
		return "not_found"
	}
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}

	return "unexpected"
}
