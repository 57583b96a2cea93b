package http

import (
	"log/slog"
	"net/http"
)

// AdminHandler exposes server administration endpoints.
type AdminHandler struct {
	restart   func()
	responder responder
	logger    *slog.Logger
}

// NewAdminHandler builds the handler. restart is invoked asynchronously when
// an administrator requests a server restart.
func NewAdminHandler(restart func(), logger *slog.Logger) *AdminHandler {
	base := defaultLogger(logger)
	return &AdminHandler{restart: restart, responder: newResponder(base), logger: base}
}

// Restart schedules a server restart. The response is written before the
// listener goes down.
func (h *AdminHandler) Restart(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingSessionToken)
		return
	}
	if !principal.IsAdmin {
		h.responder.writeJSON(r.Context(), w, http.StatusForbidden, errorResponse{
			ErrorCode: "AUTH_FORBIDDEN",
			Message:   "you are not allowed to perform this operation",
		})
		return
	}
	handlerLogger(r.Context(), h.logger, "AdminHandler", "Restart", "user_id", principal.UserID).
		InfoContext(r.Context(), "server restart requested")
	h.responder.writeJSON(r.Context(), w, http.StatusAccepted, nil)
	if h.restart != nil {
		go h.restart()
	}
}
