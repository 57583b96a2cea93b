// Package operator implements the write and refresh paths of the
// synchronization engine: dispatching changesets into the local cache,
// computing incremental diffs for clients, binding and conflict queries, and
// consolidating duplicate allocatables.
package operator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cinemaleshalles/rapla/internal/entity"
	"github.com/cinemaleshalles/rapla/internal/permission"
	"github.com/cinemaleshalles/rapla/internal/storage"
)

// ErrSecurity marks permission and transfer violations. Terminal for the
// request; callers map it to their own unauthorized error.
var ErrSecurity = errors.New("operator: security violation")

// Journal durably records committed changesets and restores the cache at
// boot. A nil journal keeps the engine purely in memory.
type Journal interface {
	LoadEntities(ctx context.Context) ([]entity.Entity, error)
	LoadRemovals(ctx context.Context) (map[entity.ReferenceInfo]time.Time, error)
	RecordCommit(ctx context.Context, commit storage.Commit) error
}

// Operator owns the local cache and serializes every mutation through one
// exclusive critical section. Reads run concurrently against the cache's own
// read lock.
type Operator struct {
	mu         sync.Mutex
	cache      *storage.LocalCache
	journal    Journal
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string
	processors []DispatchProcessor

	anonymousTypeID string
}

// Config wires the operator's dependencies.
type Config struct {
	Journal Journal
	Logger  *slog.Logger
	Now     func() time.Time
	NewID   func() string
}

// New builds an operator, loads the journaled snapshot, and seeds the
// built-in anonymous reservation type when missing.
func New(ctx context.Context, cfg Config) (*Operator, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	o := &Operator{
		cache:   storage.NewLocalCache(),
		journal: cfg.Journal,
		logger:  cfg.Logger,
		now:     cfg.Now,
		newID:   cfg.NewID,
	}
	if o.journal != nil {
		entities, err := o.journal.LoadEntities(ctx)
		if err != nil {
			return nil, fmt.Errorf("operator: loading snapshot: %w", err)
		}
		if len(entities) > 0 {
			o.cache.Apply(storage.Commit{Stored: entities, Timestamp: o.CurrentTimestamp()})
		}
		removed, err := o.journal.LoadRemovals(ctx)
		if err != nil {
			return nil, fmt.Errorf("operator: loading deletion log: %w", err)
		}
		o.cache.RestoreRemovals(removed)
	}
	if err := o.ensureAnonymousType(ctx); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *Operator) ensureAnonymousType(ctx context.Context) error {
	if existing, ok := o.cache.DynamicTypeByKey(entity.AnonymousTypeKey); ok {
		o.anonymousTypeID = existing.ID
		return nil
	}
	now := o.CurrentTimestamp()
	anonymous := &entity.DynamicType{
		Meta: entity.Meta{ID: o.newID(), Version: 1, CreatedAt: now, LastChanged: now},
		Key:  entity.AnonymousTypeKey,
	}
	commit := storage.Commit{Stored: []entity.Entity{anonymous}, Timestamp: now}
	if o.journal != nil {
		if err := o.journal.RecordCommit(ctx, commit); err != nil {
			return fmt.Errorf("operator: seeding anonymous type: %w", err)
		}
	}
	o.cache.Apply(commit)
	o.anonymousTypeID = anonymous.ID
	return nil
}

// EnsureAdminUser seeds the administrator account on an empty installation.
// It reports whether the account was created, so the caller can set the
// initial password.
func (o *Operator) EnsureAdminUser(ctx context.Context, username string) (*entity.User, bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if existing, ok := o.cache.UserByName(username); ok {
		return existing, false, nil
	}
	if len(o.cache.All(entity.KindUser)) > 0 {
		return nil, false, fmt.Errorf("operator: no account named %q but users exist", username)
	}
	now := o.CurrentTimestamp()
	admin := &entity.User{
		Meta:     entity.Meta{ID: o.newID(), Version: 1, CreatedAt: now, LastChanged: now},
		Username: username,
		Admin:    true,
	}
	commit := storage.Commit{Stored: []entity.Entity{admin}, Timestamp: now}
	if o.journal != nil {
		if err := o.journal.RecordCommit(ctx, commit); err != nil {
			return nil, false, fmt.Errorf("operator: seeding admin account: %w", err)
		}
	}
	o.cache.Apply(commit)
	return admin, true, nil
}

// CurrentTimestamp returns the server time truncated to the precision of the
// serializable timestamp format, so round trips through the wire form are
// lossless.
func (o *Operator) CurrentTimestamp() time.Time {
	return o.now().UTC().Truncate(time.Millisecond)
}

// Cache exposes the committed snapshot as a resolver for read paths.
func (o *Operator) Cache() *storage.LocalCache {
	return o.cache
}

// Resolve returns the committed entity for the reference.
func (o *Operator) Resolve(ref entity.ReferenceInfo) (entity.Entity, error) {
	return o.cache.Resolve(ref)
}

// ResolveUser resolves a user entity by id.
func (o *Operator) ResolveUser(id string) (*entity.User, error) {
	e, err := o.cache.Resolve(entity.ReferenceInfo{ID: id, Kind: entity.KindUser})
	if err != nil {
		return nil, err
	}
	return e.(*entity.User), nil
}

// UserByName resolves a user entity by username.
func (o *Operator) UserByName(username string) (*entity.User, error) {
	user, ok := o.cache.UserByName(username)
	if !ok {
		return nil, &entity.NotFoundError{Reference: entity.ReferenceInfo{ID: username, Kind: entity.KindUser}}
	}
	return user, nil
}

// CreateIdentifiers mints fresh identifiers for the kind. Clients use them to
// pre-assign ids before a dispatch.
func (o *Operator) CreateIdentifiers(kind entity.Kind, count int) ([]string, error) {
	if !entity.ValidKind(kind) {
		return nil, fmt.Errorf("operator: cannot create identifiers for unknown kind %q", kind)
	}
	if count <= 0 {
		return nil, nil
	}
	ids := make([]string, count)
	for i := range ids {
		ids[i] = o.newID()
	}
	return ids, nil
}

// transferable reports whether the entity may leave the server at all.
// Entities of internal dynamic types stay server-side.
func (o *Operator) transferable(e entity.Entity) bool {
	switch typed := e.(type) {
	case *entity.DynamicType:
		return !typed.Internal
	case *entity.Allocatable:
		return o.typeTransferable(typed.Classification.TypeID)
	case *entity.Reservation:
		return o.typeTransferable(typed.Classification.TypeID)
	default:
		return true
	}
}

func (o *Operator) typeTransferable(typeID string) bool {
	if typeID == "" {
		return true
	}
	e, ok := o.cache.TryResolve(entity.ReferenceInfo{ID: typeID, Kind: entity.KindDynamicType})
	if !ok {
		return true
	}
	return !e.(*entity.DynamicType).Internal
}

// forClient prepares one committed entity for transfer to the user:
// anonymizing unreadable reservations and redacting server-only preferences.
// Returns nil when the entity must not be transferred.
func (o *Operator) forClient(user *entity.User, e entity.Entity) entity.Entity {
	if !o.transferable(e) {
		return nil
	}
	switch typed := e.(type) {
	case *entity.Reservation:
		if permission.CanRead(user, typed, o.cache) {
			return typed
		}
		return o.anonymize(typed)
	case *entity.Preferences:
		if typed.OwnerID == "" {
			if user.Admin {
				return typed
			}
			return typed.WithoutServerOnly()
		}
		if typed.OwnerID == user.ID || user.Admin {
			return typed
		}
		return nil
	default:
		if permission.CanRead(user, e, o.cache) {
			return e
		}
		return nil
	}
}

// anonymize clones a reservation the user may not read, replacing its
// classification with the anonymous type while preserving scheduling-conflict
// visibility. The clone is read-only.
func (o *Operator) anonymize(reservation *entity.Reservation) *entity.Reservation {
	clone := reservation.Clone().(*entity.Reservation)
	clone.Classification = entity.Classification{TypeID: o.anonymousTypeID}
	clone.OwnerID = ""
	clone.ReadOnly = true
	return clone
}

// VisibleEntities returns the full snapshot visible to the user, prepared for
// transfer.
func (o *Operator) VisibleEntities(user *entity.User) []entity.Entity {
	var out []entity.Entity
	for _, e := range o.cache.Snapshot() {
		if prepared := o.forClient(user, e); prepared != nil {
			out = append(out, prepared)
		}
	}
	return out
}

// GetEntities resolves specific references for the user, permission- and
// visibility-filtered. Unreadable reservations come back anonymized; entities
// of internal types fail with a security error.
func (o *Operator) GetEntities(user *entity.User, refs []entity.ReferenceInfo) ([]entity.Entity, error) {
	out := make([]entity.Entity, 0, len(refs))
	for _, ref := range refs {
		e, err := o.cache.Resolve(ref)
		if err != nil {
			return nil, err
		}
		if !o.transferable(e) {
			return nil, fmt.Errorf("entity %s is not transferable to clients: %w", ref, ErrSecurity)
		}
		prepared := o.forClient(user, e)
		if prepared == nil {
			return nil, fmt.Errorf("read access to %s denied: %w", ref, ErrSecurity)
		}
		out = append(out, prepared)
	}
	return out, nil
}
