package operator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cinemaleshalles/rapla/internal/entity"
	"github.com/cinemaleshalles/rapla/internal/permission"
	"github.com/cinemaleshalles/rapla/internal/storage"
)

// Dispatch validates and atomically commits a changeset. Validation through
// commit runs as one exclusive critical section; any failure leaves the cache
// untouched. On success the event's LastValidated has been clamped to server
// time when the client clock ran ahead.
func (o *Operator) Dispatch(ctx context.Context, evt *storage.UpdateEvent) error {
	serverTime := o.CurrentTimestamp()
	if evt.LastValidated.After(serverTime) {
		skew := evt.LastValidated.Sub(serverTime)
		o.logger.Warn("client timestamp ahead of server, clamping",
			"skew_ms", skew.Milliseconds(), "user_id", evt.UserID)
		evt.LastValidated = serverTime
	}

	user, err := o.ResolveUser(evt.UserID)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	// Work on clones so neither the caller's instances nor committed state
	// are touched before the commit point.
	stored := make([]entity.Entity, 0, len(evt.Store))
	for _, e := range evt.Store {
		stored = append(stored, e.Clone())
	}
	o.assignIdentifiers(stored)

	batch := entity.NewStore(o.cache, stored...)

	for _, e := range stored {
		if err := entity.ResolveAll(batch, e); err != nil {
			return err
		}
		if err := o.validateEntity(batch, e); err != nil {
			return err
		}
	}
	if err := o.checkVersions(stored); err != nil {
		return err
	}

	// Permission checks run per entity before any mutation; one failure
	// aborts the whole changeset.
	for _, e := range stored {
		if !permission.CanWrite(user, e, batch) {
			return fmt.Errorf("user %s may not store %s: %w", user.Username, e.Ref(), ErrSecurity)
		}
	}
	for _, patch := range evt.PreferencePatches {
		if patch.UserID != user.ID && !user.Admin {
			return fmt.Errorf("user %s may not patch preferences of %q: %w", user.Username, patch.UserID, ErrSecurity)
		}
	}
	removals, err := o.expandRemovals(evt.Remove)
	if err != nil {
		return err
	}
	for _, ref := range removals {
		target, ok := o.cache.TryResolve(ref)
		if !ok {
			continue
		}
		if !permission.CanDelete(user, target, o.cache) {
			return fmt.Errorf("user %s may not remove %s: %w", user.Username, ref, ErrSecurity)
		}
	}

	if err := o.checkDependencies(stored, removals); err != nil {
		return err
	}

	for _, processor := range o.processors {
		if err := processor.PreProcess(user, evt); err != nil {
			return fmt.Errorf("operator: dispatch vetoed: %w", err)
		}
	}

	// Stamp the commit strictly after the client's synchronization point so
	// the follow-up refresh cannot miss it.
	commitTime := o.CurrentTimestamp()
	if !commitTime.After(evt.LastValidated) {
		commitTime = evt.LastValidated.Add(time.Millisecond)
	}
	commit, err := o.buildCommit(user, stored, removals, evt.PreferencePatches, commitTime)
	if err != nil {
		return err
	}
	if o.journal != nil {
		if err := o.journal.RecordCommit(ctx, commit); err != nil {
			return fmt.Errorf("operator: journaling commit: %w", err)
		}
	}
	o.cache.Apply(commit)

	for _, processor := range o.processors {
		processor.PostProcess(user, evt)
	}
	return nil
}

// assignIdentifiers gives unassigned entities and their owned appointments an
// id. Ids are assigned at first successful dispatch; a validation failure
// later simply discards the clones.
func (o *Operator) assignIdentifiers(stored []entity.Entity) {
	for _, e := range stored {
		meta := e.Metadata()
		if meta.ID == "" {
			meta.ID = o.newID()
		}
		if reservation, ok := e.(*entity.Reservation); ok {
			for i := range reservation.Appointments {
				if reservation.Appointments[i].ID == "" {
					reservation.Appointments[i].ID = o.newID()
				}
			}
		}
	}
}

func (o *Operator) validateEntity(resolver entity.Resolver, e entity.Entity) error {
	switch typed := e.(type) {
	case *entity.Reservation:
		if err := typed.Validate(); err != nil {
			return err
		}
		return o.validateClassification(resolver, typed.Classification)
	case *entity.Allocatable:
		return o.validateClassification(resolver, typed.Classification)
	default:
		return nil
	}
}

func (o *Operator) validateClassification(resolver entity.Resolver, c entity.Classification) error {
	if c.TypeID == "" {
		return nil
	}
	resolved, err := resolver.Resolve(entity.ReferenceInfo{ID: c.TypeID, Kind: entity.KindDynamicType})
	if err != nil {
		return err
	}
	return c.Validate(resolved.(*entity.DynamicType))
}

// checkVersions rejects entities based on a snapshot another client has
// already replaced.
func (o *Operator) checkVersions(stored []entity.Entity) error {
	for _, e := range stored {
		ref := e.Ref()
		incoming := e.Metadata().Version
		committed, ok := o.cache.TryResolve(ref)
		if !ok {
			if incoming != 0 {
				// The base version was removed by a concurrent commit.
				return &storage.VersionConflictError{Reference: ref, ClientVersion: incoming, CommittedVersion: -1}
			}
			continue
		}
		if committedVersion := committed.Metadata().Version; committedVersion != incoming {
			return &storage.VersionConflictError{Reference: ref, ClientVersion: incoming, CommittedVersion: committedVersion}
		}
	}
	return nil
}

// expandRemovals cascades removals the data model implies: dropping a user
// also drops the preferences they own.
func (o *Operator) expandRemovals(requested []entity.ReferenceInfo) ([]entity.ReferenceInfo, error) {
	out := make([]entity.ReferenceInfo, 0, len(requested))
	seen := make(map[entity.ReferenceInfo]struct{}, len(requested))
	add := func(ref entity.ReferenceInfo) {
		if _, ok := seen[ref]; !ok {
			seen[ref] = struct{}{}
			out = append(out, ref)
		}
	}
	for _, ref := range requested {
		if !entity.ValidKind(ref.Kind) || ref.ID == "" {
			return nil, fmt.Errorf("operator: malformed removal reference %q", ref)
		}
		add(ref)
		if ref.Kind == entity.KindUser {
			if prefs, ok := o.cache.PreferencesFor(ref.ID); ok {
				add(prefs.Ref())
			}
		}
	}
	return out, nil
}

// checkDependencies blocks removals of entities the post-commit state would
// still reference. Batch entities count with their new references; committed
// entities replaced by the batch do not count twice.
func (o *Operator) checkDependencies(stored []entity.Entity, removals []entity.ReferenceInfo) error {
	if len(removals) == 0 {
		return nil
	}
	exclude := make(map[entity.ReferenceInfo]struct{}, len(removals)+len(stored))
	for _, ref := range removals {
		exclude[ref] = struct{}{}
	}
	for _, e := range stored {
		exclude[e.Ref()] = struct{}{}
	}
	for _, target := range removals {
		dependents := o.cache.Referencers(target, exclude)
		for _, e := range stored {
			for _, ref := range e.References() {
				if ref == target {
					dependents = append(dependents, entity.Describe(e))
					break
				}
			}
		}
		if len(dependents) > 0 {
			sort.Strings(dependents)
			return &storage.DependencyError{Reference: target, Dependencies: dependents}
		}
	}
	return nil
}

// buildCommit produces the committed clones: bumped versions, stamped change
// times, owner defaults for fresh entities, and preference patches applied.
func (o *Operator) buildCommit(user *entity.User, stored []entity.Entity, removals []entity.ReferenceInfo,
	patches []entity.PreferencePatch, timestamp time.Time) (storage.Commit, error) {

	commit := storage.Commit{Removed: removals, Timestamp: timestamp}
	for _, e := range stored {
		meta := e.Metadata()
		if meta.Version == 0 {
			meta.CreatedAt = timestamp
			if meta.OwnerID == "" {
				switch e.(type) {
				case *entity.Reservation, *entity.Preferences:
					meta.OwnerID = user.ID
				}
			}
		}
		meta.Version++
		meta.LastChanged = timestamp
		commit.Stored = append(commit.Stored, e)
	}

	for _, patch := range patches {
		prefs, ok := o.cache.PreferencesFor(patch.UserID)
		var clone *entity.Preferences
		if ok {
			clone = prefs.Clone().(*entity.Preferences)
		} else {
			clone = &entity.Preferences{Meta: entity.Meta{
				ID:        o.newID(),
				OwnerID:   patch.UserID,
				CreatedAt: timestamp,
			}}
		}
		patch.Apply(clone)
		clone.Version++
		clone.LastChanged = timestamp
		commit.Stored = append(commit.Stored, clone)
	}
	return commit, nil
}
