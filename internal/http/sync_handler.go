package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cinemaleshalles/rapla/internal/application"
	"github.com/cinemaleshalles/rapla/internal/entity"
)

type syncService interface {
	GetResources(ctx context.Context, principal application.Principal) ([]entity.Entity, time.Time, error)
	GetEntityRecursive(ctx context.Context, principal application.Principal, refs []entity.ReferenceInfo) ([]entity.Entity, error)
	Store(ctx context.Context, principal application.Principal, params application.StoreParams) (application.UpdateResult, error)
	Refresh(ctx context.Context, principal application.Principal, since time.Time) (application.UpdateResult, error)
	DoMerge(ctx context.Context, principal application.Principal, params application.MergeParams) (application.UpdateResult, error)
	CreateIdentifiers(ctx context.Context, principal application.Principal, kind entity.Kind, count int) ([]string, error)
}

// SyncHandler exposes the entity synchronization surface: initial load,
// changeset dispatch, incremental refresh, merges, and identifier reservation.
type SyncHandler struct {
	service   syncService
	responder responder
	logger    *slog.Logger
}

func NewSyncHandler(service syncService, logger *slog.Logger) *SyncHandler {
	base := defaultLogger(logger)
	return &SyncHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *SyncHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "SyncHandler", operation, attrs...)
}

func (h *SyncHandler) principal(w http.ResponseWriter, r *http.Request) (application.Principal, bool) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingSessionToken)
	}
	return principal, ok
}

// Resources returns every entity visible to the principal, the initial load
// of a fresh client, together with the synchronization point to refresh from.
func (h *SyncHandler) Resources(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	entities, timestamp, err := h.service.GetResources(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	stored, err := encodeEntities(entities)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resourcesResponse{
		Stored:        stored,
		LastValidated: formatWireTimestamp(timestamp),
	})
}

// Entities resolves the requested references with their transitive
// dependencies.
func (h *SyncHandler) Entities(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req entitiesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	refs, err := decodeRefs(req.Refs)
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	entities, err := h.service.GetEntityRecursive(r.Context(), principal, refs)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	stored, err := encodeEntities(entities)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, entitiesResponse{Stored: stored})
}

// Store dispatches one changeset and answers with the refresh the client
// must apply.
func (h *SyncHandler) Store(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req storeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Store", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode changeset", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	params, err := req.toParams()
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	result, err := h.service.Store(r.Context(), principal, params)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	dto, err := encodeUpdateResult(result)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, dto)
}

// Refresh returns the incremental changeset since the client's
// synchronization point, passed as the `since` query parameter.
func (h *SyncHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	since, err := parseWireTimestamp(r.URL.Query().Get("since"))
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	result, err := h.service.Refresh(r.Context(), principal, since)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	dto, err := encodeUpdateResult(result)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, dto)
}

// Merge folds duplicate allocatables into a canonical one.
func (h *SyncHandler) Merge(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req mergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	var canonical entity.Allocatable
	if err := json.Unmarshal(req.Canonical, &canonical); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	since, err := parseWireTimestamp(req.LastValidated)
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	result, err := h.service.DoMerge(r.Context(), principal, application.MergeParams{
		Canonical:     &canonical,
		DuplicateIDs:  req.DuplicateIDs,
		LastValidated: since,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	dto, err := encodeUpdateResult(result)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, dto)
}

// Identifiers reserves server-generated entity identifiers.
func (h *SyncHandler) Identifiers(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	kind := entity.Kind(r.URL.Query().Get("kind"))
	count := 1
	if raw := r.URL.Query().Get("count"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
			return
		}
		count = parsed
	}
	ids, err := h.service.CreateIdentifiers(r.Context(), principal, kind, count)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, identifiersResponse{IDs: ids})
}

type resourcesResponse struct {
	Stored        []entityEnvelope `json:"stored"`
	LastValidated string           `json:"last_validated"`
}

type entitiesRequest struct {
	Refs []refDTO `json:"refs"`
}

type entitiesResponse struct {
	Stored []entityEnvelope `json:"stored"`
}

type storeRequest struct {
	Stored            []entityEnvelope         `json:"stored"`
	Removed           []refDTO                 `json:"removed"`
	PreferencePatches []entity.PreferencePatch `json:"preference_patches"`
	LastValidated     string                   `json:"last_validated"`
}

func (req storeRequest) toParams() (application.StoreParams, error) {
	stored, err := decodeEntities(req.Stored)
	if err != nil {
		return application.StoreParams{}, err
	}
	removed, err := decodeRefs(req.Removed)
	if err != nil {
		return application.StoreParams{}, err
	}
	since, err := parseWireTimestamp(req.LastValidated)
	if err != nil {
		return application.StoreParams{}, err
	}
	return application.StoreParams{
		Stored:            stored,
		Removed:           removed,
		PreferencePatches: req.PreferencePatches,
		LastValidated:     since,
	}, nil
}

type mergeRequest struct {
	Canonical     json.RawMessage `json:"canonical"`
	DuplicateIDs  []string        `json:"duplicate_ids"`
	LastValidated string          `json:"last_validated"`
}

type identifiersResponse struct {
	IDs []string `json:"ids"`
}
