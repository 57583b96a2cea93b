package operator

import (
	"context"
	"fmt"

	"github.com/cinemaleshalles/rapla/internal/entity"
	"github.com/cinemaleshalles/rapla/internal/permission"
	"github.com/cinemaleshalles/rapla/internal/storage"
)

// Merge consolidates duplicate allocatables into one canonical entity. Every
// reservation and preference referencing a duplicate is rewritten to the
// canonical allocatable and the duplicates are removed, all in one atomic
// commit: readers never observe a partially merged state.
func (o *Operator) Merge(ctx context.Context, user *entity.User, canonical *entity.Allocatable, duplicateIDs []string) (*entity.Allocatable, error) {
	if !permission.CanWrite(user, canonical, o.cache) {
		return nil, fmt.Errorf("user %s may not write %s: %w", user.Username, canonical.Ref(), ErrSecurity)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	merged := canonical.Clone().(*entity.Allocatable)
	if merged.ID == "" {
		merged.ID = o.newID()
	}
	if err := o.checkVersions([]entity.Entity{merged}); err != nil {
		return nil, err
	}

	duplicates := make(map[string]struct{}, len(duplicateIDs))
	var removals []entity.ReferenceInfo
	for _, id := range duplicateIDs {
		if id == "" || id == merged.ID {
			continue
		}
		if _, ok := o.cache.TryResolve(entity.ReferenceInfo{ID: id, Kind: entity.KindAllocatable}); !ok {
			// Assumed already merged by a concurrent client.
			continue
		}
		if _, seen := duplicates[id]; seen {
			continue
		}
		duplicates[id] = struct{}{}
		removals = append(removals, entity.ReferenceInfo{ID: id, Kind: entity.KindAllocatable})
	}

	timestamp := o.CurrentTimestamp()
	commit := storage.Commit{Removed: removals, Timestamp: timestamp}

	merged.Version++
	merged.LastChanged = timestamp
	if merged.Version == 1 {
		merged.CreatedAt = timestamp
	}
	commit.Stored = append(commit.Stored, merged)

	for _, e := range o.cache.All(entity.KindReservation) {
		reservation := e.(*entity.Reservation)
		if !referencesAny(reservation, duplicates) {
			continue
		}
		clone := reservation.Clone().(*entity.Reservation)
		rewriteAllocations(clone, duplicates, merged.ID)
		clone.Version++
		clone.LastChanged = timestamp
		commit.Stored = append(commit.Stored, clone)
	}

	for _, e := range o.cache.All(entity.KindPreferences) {
		prefs := e.(*entity.Preferences)
		clone := prefs.Clone().(*entity.Preferences)
		if !clone.RewriteAllocatableReferences(duplicates, merged.ID) {
			continue
		}
		clone.Version++
		clone.LastChanged = timestamp
		commit.Stored = append(commit.Stored, clone)
	}

	if err := ctx.Err(); err != nil {
		// Abandoning before the commit point leaves no partial state.
		return nil, err
	}
	if o.journal != nil {
		if err := o.journal.RecordCommit(ctx, commit); err != nil {
			return nil, fmt.Errorf("operator: journaling merge: %w", err)
		}
	}
	o.cache.Apply(commit)
	return merged, nil
}

func referencesAny(reservation *entity.Reservation, ids map[string]struct{}) bool {
	for _, id := range reservation.AllocatableIDs {
		if _, ok := ids[id]; ok {
			return true
		}
	}
	return false
}

// rewriteAllocations repoints duplicate allocations to the canonical id. A
// restriction survives only when every merged binding was restricted; one
// unrestricted binding makes the canonical binding unrestricted.
func rewriteAllocations(reservation *entity.Reservation, duplicates map[string]struct{}, canonicalID string) {
	var rewritten []string
	seen := make(map[string]struct{}, len(reservation.AllocatableIDs))
	unrestricted := false
	var mergedRestrictions []string
	hadCanonical := false

	for _, id := range reservation.AllocatableIDs {
		_, isDuplicate := duplicates[id]
		if !isDuplicate && id != canonicalID {
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				rewritten = append(rewritten, id)
			}
			continue
		}
		hadCanonical = true
		restriction, restricted := reservation.Restrictions[id]
		if !restricted || len(restriction) == 0 {
			unrestricted = true
		} else {
			mergedRestrictions = append(mergedRestrictions, restriction...)
		}
		delete(reservation.Restrictions, id)
	}
	if hadCanonical {
		if _, dup := seen[canonicalID]; !dup {
			rewritten = append(rewritten, canonicalID)
		}
		if !unrestricted && len(mergedRestrictions) > 0 {
			if reservation.Restrictions == nil {
				reservation.Restrictions = make(map[string][]string)
			}
			reservation.Restrictions[canonicalID] = dedupe(mergedRestrictions)
		}
	}
	reservation.AllocatableIDs = rewritten
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
