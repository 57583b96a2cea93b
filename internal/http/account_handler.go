package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/cinemaleshalles/rapla/internal/application"
)

type accountService interface {
	CanChangePassword() bool
	ChangePassword(ctx context.Context, principal application.Principal, change application.PasswordChange) error
	ChangeName(ctx context.Context, principal application.Principal, title, firstname, lastname string) error
	ConfirmEmail(ctx context.Context, principal application.Principal, newEmail string) error
	ChangeEmail(ctx context.Context, principal application.Principal, newEmail, code string) error
	GetUsername(ctx context.Context, userID string) (string, error)
}

// AccountHandler exposes user self-service: password, name, and email
// changes.
type AccountHandler struct {
	service   accountService
	responder responder
	logger    *slog.Logger
}

func NewAccountHandler(service accountService, logger *slog.Logger) *AccountHandler {
	base := defaultLogger(logger)
	return &AccountHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *AccountHandler) principal(w http.ResponseWriter, r *http.Request) (application.Principal, bool) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingSessionToken)
	}
	return principal, ok
}

func (h *AccountHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	target := req.UserID
	if target == "" {
		target = principal.UserID
	}
	err := h.service.ChangePassword(r.Context(), principal, application.PasswordChange{
		UserID:      target,
		OldPassword: req.OldPassword,
		NewPassword: req.NewPassword,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *AccountHandler) CanChangePassword(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.principal(w, r); !ok {
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, canChangePasswordResponse{
		CanChangePassword: h.service.CanChangePassword(),
	})
}

func (h *AccountHandler) ChangeName(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req changeNameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	if err := h.service.ChangeName(r.Context(), principal, req.Title, req.Firstname, req.Lastname); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *AccountHandler) ConfirmEmail(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req confirmEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	if err := h.service.ConfirmEmail(r.Context(), principal, req.Email); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *AccountHandler) ChangeEmail(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req changeEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	if err := h.service.ChangeEmail(r.Context(), principal, req.Email, req.Code); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *AccountHandler) Username(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.principal(w, r); !ok {
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	username, err := h.service.GetUsername(r.Context(), userID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, usernameResponse{Username: username})
}

type changePasswordRequest struct {
	UserID      string `json:"user_id,omitempty"`
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type canChangePasswordResponse struct {
	CanChangePassword bool `json:"can_change_password"`
}

type changeNameRequest struct {
	Title     string `json:"title"`
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
}

type confirmEmailRequest struct {
	Email string `json:"email"`
}

type changeEmailRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type usernameResponse struct {
	Username string `json:"username"`
}
