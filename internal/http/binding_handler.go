package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/cinemaleshalles/rapla/internal/application"
	"github.com/cinemaleshalles/rapla/internal/binding"
	"github.com/cinemaleshalles/rapla/internal/entity"
)

type bindingService interface {
	FirstAllocatableBindings(ctx context.Context, principal application.Principal, req application.BindingRequest) (map[string][]string, error)
	AllAllocatableBindings(ctx context.Context, principal application.Principal, req application.BindingRequest) ([]*entity.Reservation, error)
	NextAllocatableDate(ctx context.Context, principal application.Principal, req application.BindingRequest, opts binding.SearchOptions) (time.Time, error)
	QueryAppointments(ctx context.Context, principal application.Principal, allocatableIDs []string, start, end time.Time, annotationFilter map[string]string) (map[string][]entity.Appointment, error)
	GetConflicts(ctx context.Context, principal application.Principal) ([]binding.Conflict, error)
}

// BindingHandler exposes the collision and availability queries.
type BindingHandler struct {
	service   bindingService
	responder responder
	logger    *slog.Logger
}

func NewBindingHandler(service bindingService, logger *slog.Logger) *BindingHandler {
	base := defaultLogger(logger)
	return &BindingHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *BindingHandler) principal(w http.ResponseWriter, r *http.Request) (application.Principal, bool) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingSessionToken)
	}
	return principal, ok
}

// First reports, per allocatable, the queried appointments that collide with
// existing bindings.
func (h *BindingHandler) First(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	req, ok := h.decodeBindingRequest(w, r)
	if !ok {
		return
	}
	bindings, err := h.service.FirstAllocatableBindings(r.Context(), principal, req)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, firstBindingsResponse{Bindings: bindings})
}

// All returns the distinct reservations responsible for collisions with the
// queried appointments.
func (h *BindingHandler) All(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	req, ok := h.decodeBindingRequest(w, r)
	if !ok {
		return
	}
	reservations, err := h.service.AllAllocatableBindings(r.Context(), principal, req)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	entities := make([]entity.Entity, 0, len(reservations))
	for _, reservation := range reservations {
		entities = append(entities, reservation)
	}
	stored, err := encodeEntities(entities)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, entitiesResponse{Stored: stored})
}

// NextDate searches forward for the next start where every requested
// allocatable is free.
func (h *BindingHandler) NextDate(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req nextDateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	opts := binding.SearchOptions{
		WorktimeStartMinutes: req.WorktimeStartMinutes,
		WorktimeEndMinutes:   req.WorktimeEndMinutes,
		RowsPerHour:          req.RowsPerHour,
	}
	if len(req.ExcludedDays) > 0 {
		opts.ExcludedDays = make(map[time.Weekday]struct{}, len(req.ExcludedDays))
		for _, day := range req.ExcludedDays {
			opts.ExcludedDays[time.Weekday(day)] = struct{}{}
		}
	}
	start, err := h.service.NextAllocatableDate(r.Context(), principal, application.BindingRequest{
		AllocatableIDs:       req.AllocatableIDs,
		Appointments:         []entity.Appointment{req.Appointment},
		IgnoreReservationIDs: req.IgnoreReservationIDs,
	}, opts)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, nextDateResponse{Start: formatWireTimestamp(start)})
}

// Appointments returns the appointments bound to the requested allocatables
// inside a window.
func (h *BindingHandler) Appointments(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req appointmentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	start, err := parseWireTimestamp(req.Start)
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	end, err := parseWireTimestamp(req.End)
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	appointments, err := h.service.QueryAppointments(r.Context(), principal, req.AllocatableIDs, start, end, req.AnnotationFilter)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, appointmentsResponse{Appointments: appointments})
}

// Conflicts enumerates the double bookings visible to the principal.
func (h *BindingHandler) Conflicts(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	conflicts, err := h.service.GetConflicts(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	out := make([]conflictDTO, 0, len(conflicts))
	for _, conflict := range conflicts {
		out = append(out, conflictDTO{
			AllocatableID:  conflict.AllocatableID,
			Reservation1ID: conflict.Reservation1ID,
			Appointment1ID: conflict.Appointment1ID,
			Reservation2ID: conflict.Reservation2ID,
			Appointment2ID: conflict.Appointment2ID,
		})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, conflictsResponse{Conflicts: out})
}

func (h *BindingHandler) decodeBindingRequest(w http.ResponseWriter, r *http.Request) (application.BindingRequest, bool) {
	var req bindingRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return application.BindingRequest{}, false
	}
	return application.BindingRequest{
		AllocatableIDs:       req.AllocatableIDs,
		Appointments:         req.Appointments,
		IgnoreReservationIDs: req.IgnoreReservationIDs,
	}, true
}

type bindingRequestDTO struct {
	AllocatableIDs       []string             `json:"allocatable_ids"`
	Appointments         []entity.Appointment `json:"appointments"`
	IgnoreReservationIDs []string             `json:"ignore_reservation_ids"`
}

type firstBindingsResponse struct {
	Bindings map[string][]string `json:"bindings"`
}

type nextDateRequest struct {
	AllocatableIDs       []string           `json:"allocatable_ids"`
	Appointment          entity.Appointment `json:"appointment"`
	IgnoreReservationIDs []string           `json:"ignore_reservation_ids"`
	WorktimeStartMinutes int                `json:"worktime_start_minutes"`
	WorktimeEndMinutes   int                `json:"worktime_end_minutes"`
	ExcludedDays         []int              `json:"excluded_days"`
	RowsPerHour          int                `json:"rows_per_hour"`
}

type nextDateResponse struct {
	Start string `json:"start"`
}

type appointmentsRequest struct {
	AllocatableIDs   []string          `json:"allocatable_ids"`
	Start            string            `json:"start"`
	End              string            `json:"end"`
	AnnotationFilter map[string]string `json:"annotation_filter"`
}

type appointmentsResponse struct {
	Appointments map[string][]entity.Appointment `json:"appointments"`
}

type conflictDTO struct {
	AllocatableID  string `json:"allocatable_id"`
	Reservation1ID string `json:"reservation1_id"`
	Appointment1ID string `json:"appointment1_id"`
	Reservation2ID string `json:"reservation2_id"`
	Appointment2ID string `json:"appointment2_id"`
}

type conflictsResponse struct {
	Conflicts []conflictDTO `json:"conflicts"`
}
