package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cinemaleshalles/rapla/internal/application"
	"github.com/cinemaleshalles/rapla/internal/binding"
	"github.com/cinemaleshalles/rapla/internal/entity"
	"github.com/cinemaleshalles/rapla/internal/operator"
	"github.com/cinemaleshalles/rapla/internal/storage"
)

var (
	errBadRequestBody      = errors.New("invalid request body")
	errMissingSessionToken = errors.New("a session token is required")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := http.StatusText(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

// handleServiceError maps application and engine errors to wire responses.
// Version conflicts and dependency violations both surface as 409 so clients
// refresh and retry.
func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	var versionErr *storage.VersionConflictError
	var dependencyErr *storage.DependencyError
	var notFoundErr *entity.NotFoundError
	var vErr *application.ValidationError

	switch {
	case errors.Is(err, application.ErrInvalidCredentials),
		errors.Is(err, application.ErrSessionExpired),
		errors.Is(err, application.ErrSessionRevoked):
		r.writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{
			ErrorCode: "AUTH_INVALID_SESSION",
			Message:   "authentication required",
		})
	case errors.Is(err, application.ErrUnauthorized), errors.Is(err, operator.ErrSecurity):
		r.writeJSON(ctx, w, http.StatusForbidden, errorResponse{
			ErrorCode: "AUTH_FORBIDDEN",
			Message:   "you are not allowed to perform this operation",
		})
	case errors.As(err, &versionErr):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "STALE_VERSION",
			Message:   versionErr.Error(),
		})
	case errors.As(err, &dependencyErr):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode:    "DEPENDENCY",
			Message:      dependencyErr.Error(),
			Dependencies: dependencyErr.Dependencies,
		})
	case errors.Is(err, application.ErrNotFound), errors.As(err, &notFoundErr):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{Message: "the requested entity does not exist"})
	case errors.Is(err, application.ErrTimeout):
		r.writeJSON(ctx, w, http.StatusGatewayTimeout, errorResponse{
			ErrorCode: "TIMEOUT",
			Message:   "the operation did not complete in time",
		})
	case errors.Is(err, binding.ErrNoFreeSlot):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{
			ErrorCode: "NO_FREE_SLOT",
			Message:   "no free slot within the search horizon",
		})
	case errors.Is(err, application.ErrInvalidSecurityCode):
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
			ErrorCode: "INVALID_SECURITY_CODE",
			Message:   "the security code does not match",
		})
	case errors.As(err, &vErr):
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
			Message: "the request contains invalid values",
			Errors:  vErr.FieldErrors,
		})
	default:
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "error", err, "error_kind", application.ErrorKind(err))
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Message: "internal server error"})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

type errorResponse struct {
	ErrorCode    string            `json:"error_code,omitempty"`
	Message      string            `json:"message"`
	Errors       map[string]string `json:"errors,omitempty"`
	Dependencies []string          `json:"dependencies,omitempty"`
}
