package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cinemaleshalles/rapla/internal/binding"
	"github.com/cinemaleshalles/rapla/internal/entity"
	"github.com/cinemaleshalles/rapla/internal/operator"
	"github.com/cinemaleshalles/rapla/internal/storage"
)

// DefaultQueryTimeout bounds binding and appointment queries.
const DefaultQueryTimeout = 50 * time.Second

// DefaultMergeTimeout bounds allocatable merges.
const DefaultMergeTimeout = 20 * time.Second

// SyncService is the client-facing facade over the operator: it resolves
// principals to full user accounts, applies the operation timeouts, and turns
// commits into refresh changesets.
type SyncService struct {
	op           *operator.Operator
	queryTimeout time.Duration
	mergeTimeout time.Duration
	logger       *slog.Logger
}

// SyncConfig wires the sync service's dependencies.
type SyncConfig struct {
	Operator     *operator.Operator
	QueryTimeout time.Duration
	MergeTimeout time.Duration
	Logger       *slog.Logger
}

// NewSyncService constructs the facade with the provided dependencies.
func NewSyncService(cfg SyncConfig) *SyncService {
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultQueryTimeout
	}
	if cfg.MergeTimeout <= 0 {
		cfg.MergeTimeout = DefaultMergeTimeout
	}
	return &SyncService{
		op:           cfg.Operator,
		queryTimeout: cfg.QueryTimeout,
		mergeTimeout: cfg.MergeTimeout,
		logger:       defaultLogger(cfg.Logger),
	}
}

func (s *SyncService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "SyncService", operation, attrs...)
}

func (s *SyncService) actingUser(principal Principal) (*entity.User, error) {
	user, err := s.op.ResolveUser(principal.UserID)
	if err != nil {
		return nil, ErrUnauthorized
	}
	return user, nil
}

// GetResources returns every entity the principal may see, the initial load
// of a fresh client.
func (s *SyncService) GetResources(ctx context.Context, principal Principal) ([]entity.Entity, time.Time, error) {
	user, err := s.actingUser(principal)
	if err != nil {
		return nil, time.Time{}, err
	}
	timestamp := s.op.CurrentTimestamp()
	return s.op.VisibleEntities(user), timestamp, nil
}

// GetEntityRecursive resolves the requested references, filtered through the
// principal's read permissions.
func (s *SyncService) GetEntityRecursive(ctx context.Context, principal Principal, refs []entity.ReferenceInfo) ([]entity.Entity, error) {
	user, err := s.actingUser(principal)
	if err != nil {
		return nil, err
	}
	entities, err := s.op.GetEntities(user, refs)
	if err != nil {
		if errors.Is(err, operator.ErrSecurity) {
			return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		return nil, err
	}
	return entities, nil
}

// Store dispatches one changeset and returns the refresh the client must
// apply, which includes its own committed changes.
func (s *SyncService) Store(ctx context.Context, principal Principal, params StoreParams) (result UpdateResult, err error) {
	logger := s.loggerWith(ctx, "Store",
		"user_id", principal.UserID,
		"stored", len(params.Stored),
		"removed", len(params.Removed),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "dispatch failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "changeset committed")
	}()

	user, err := s.actingUser(principal)
	if err != nil {
		return UpdateResult{}, err
	}

	evt := &storage.UpdateEvent{
		UserID:            user.ID,
		Store:             params.Stored,
		Remove:            params.Removed,
		PreferencePatches: params.PreferencePatches,
		LastValidated:     params.LastValidated,
	}
	if err = s.op.Dispatch(ctx, evt); err != nil {
		if errors.Is(err, operator.ErrSecurity) {
			err = fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		return UpdateResult{}, err
	}
	// Dispatch clamps a client timestamp that runs ahead of server time.
	// Build the refresh from the clamped point so the client still receives
	// its own committed entities.
	return s.refresh(user, evt.LastValidated), nil
}

// Refresh returns the incremental changeset since the client's
// synchronization point.
func (s *SyncService) Refresh(ctx context.Context, principal Principal, since time.Time) (UpdateResult, error) {
	user, err := s.actingUser(principal)
	if err != nil {
		return UpdateResult{}, err
	}
	return s.refresh(user, since), nil
}

func (s *SyncService) refresh(user *entity.User, since time.Time) UpdateResult {
	evt := s.op.CreateUpdateEvent(user, since)
	return UpdateResult{
		Stored:        evt.Store,
		Removed:       evt.Remove,
		LastValidated: evt.LastValidated,
	}
}

// FirstAllocatableBindings reports, per requested allocatable, the queried
// appointments that collide with existing bindings.
func (s *SyncService) FirstAllocatableBindings(ctx context.Context, principal Principal, req BindingRequest) (map[string][]string, error) {
	user, err := s.actingUser(principal)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	out, err := s.op.FirstAllocatableBindings(ctx, user, req.AllocatableIDs, req.Appointments, req.IgnoreReservationIDs)
	return out, s.mapQueryError(err)
}

// AllAllocatableBindings returns the distinct reservations that collide with
// the queried appointments on the requested allocatables.
func (s *SyncService) AllAllocatableBindings(ctx context.Context, principal Principal, req BindingRequest) ([]*entity.Reservation, error) {
	user, err := s.actingUser(principal)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	out, err := s.op.AllAllocatableBindings(ctx, user, req.AllocatableIDs, req.Appointments, req.IgnoreReservationIDs)
	return out, s.mapQueryError(err)
}

// NextAllocatableDate searches forward for the next start where every
// requested allocatable is free.
func (s *SyncService) NextAllocatableDate(ctx context.Context, principal Principal, req BindingRequest, opts binding.SearchOptions) (time.Time, error) {
	user, err := s.actingUser(principal)
	if err != nil {
		return time.Time{}, err
	}
	if len(req.Appointments) != 1 {
		vErr := &ValidationError{}
		vErr.add("appointments", "exactly one appointment is required")
		return time.Time{}, vErr
	}
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	start, err := s.op.NextAllocatableDate(ctx, user, req.AllocatableIDs, req.Appointments[0], req.IgnoreReservationIDs, opts)
	return start, s.mapQueryError(err)
}

// QueryAppointments returns the appointments bound to the requested
// allocatables inside the window, optionally filtered by annotation values.
func (s *SyncService) QueryAppointments(ctx context.Context, principal Principal, allocatableIDs []string,
	start, end time.Time, annotationFilter map[string]string) (map[string][]entity.Appointment, error) {

	user, err := s.actingUser(principal)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	out, err := s.op.QueryAppointments(ctx, user, allocatableIDs, start, end, annotationFilter)
	return out, s.mapQueryError(err)
}

// GetConflicts enumerates the double bookings visible to the principal.
func (s *SyncService) GetConflicts(ctx context.Context, principal Principal) ([]binding.Conflict, error) {
	user, err := s.actingUser(principal)
	if err != nil {
		return nil, err
	}
	return s.op.Conflicts(user), nil
}

// DoMerge folds duplicate allocatables into the canonical one and returns
// the refresh the client must apply.
func (s *SyncService) DoMerge(ctx context.Context, principal Principal, params MergeParams) (result UpdateResult, err error) {
	logger := s.loggerWith(ctx, "DoMerge",
		"user_id", principal.UserID,
		"duplicates", len(params.DuplicateIDs),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "merge failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "allocatables merged")
	}()

	user, err := s.actingUser(principal)
	if err != nil {
		return UpdateResult{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.mergeTimeout)
	defer cancel()
	if _, err = s.op.Merge(ctx, user, params.Canonical, params.DuplicateIDs); err != nil {
		err = s.mapQueryError(err)
		if errors.Is(err, operator.ErrSecurity) {
			err = fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		return UpdateResult{}, err
	}
	return s.refresh(user, params.LastValidated), nil
}

// CreateIdentifiers reserves server-generated identifiers for new entities of
// the given kind.
func (s *SyncService) CreateIdentifiers(ctx context.Context, principal Principal, kind entity.Kind, count int) ([]string, error) {
	if _, err := s.actingUser(principal); err != nil {
		return nil, err
	}
	return s.op.CreateIdentifiers(kind, count)
}

// mapQueryError turns a deadline hit into the timeout sentinel.
func (s *SyncService) mapQueryError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}
