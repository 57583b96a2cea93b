// Package permission evaluates access rights of users against entity
// permission lists, admin flags, and ownership. All functions are pure and
// evaluated fresh against current entity state on every call; results are
// never cached across requests because permissions may change between calls.
package permission

import (
	"time"

	"github.com/cinemaleshalles/rapla/internal/entity"
)

// matches reports whether a permission entry applies to the user. An entry
// with neither user nor group set applies to everyone.
func matches(p entity.Permission, user *entity.User) bool {
	if p.UserID == "" && p.GroupID == "" {
		return true
	}
	if p.UserID != "" && p.UserID == user.ID {
		return true
	}
	if p.GroupID != "" && user.InGroup(p.GroupID) {
		return true
	}
	return false
}

// levelFor computes the effective access level of the user on the
// allocatable. An empty permission list leaves the resource open for
// allocation by everyone. Explicit entries override the default; the highest
// matching level wins.
func levelFor(user *entity.User, allocatable *entity.Allocatable, start, end time.Time, timed bool) entity.AccessLevel {
	if len(allocatable.Permissions) == 0 {
		return entity.AccessAllocate
	}
	level := entity.AccessDenied
	matched := false
	for _, p := range allocatable.Permissions {
		if !matches(p, user) {
			continue
		}
		if timed && p.Access == entity.AccessAllocate && !p.AppliesAt(start, end) {
			// A time-restricted allocate entry still grants read outside
			// its window.
			if level < entity.AccessRead {
				level = entity.AccessRead
			}
			matched = true
			continue
		}
		matched = true
		if p.Access > level {
			level = p.Access
		}
	}
	if !matched {
		return entity.AccessDenied
	}
	return level
}

// CanRead reports whether the user may see the entity. Reservations without
// read access are not hidden by callers but anonymized; this predicate drives
// that decision.
func CanRead(user *entity.User, e entity.Entity, resolver entity.Resolver) bool {
	if user == nil || e == nil {
		return false
	}
	if user.Admin {
		return true
	}
	meta := e.Metadata()
	if meta.OwnerID == user.ID && meta.OwnerID != "" {
		return true
	}
	switch typed := e.(type) {
	case *entity.Allocatable:
		return levelFor(user, typed, time.Time{}, time.Time{}, false) >= entity.AccessRead
	case *entity.Reservation:
		return canReadReservation(user, typed, resolver)
	case *entity.Preferences:
		// System preferences are readable by everyone after server-only
		// redaction; foreign user preferences are not.
		return meta.OwnerID == ""
	case *entity.User:
		return true
	default:
		// Categories and dynamic types are shared vocabulary.
		return true
	}
}

func canReadReservation(user *entity.User, reservation *entity.Reservation, resolver entity.Resolver) bool {
	if resolver == nil {
		return false
	}
	for _, id := range reservation.AllocatableIDs {
		e, ok := resolver.TryResolve(entity.ReferenceInfo{ID: id, Kind: entity.KindAllocatable})
		if !ok {
			continue
		}
		allocatable, ok := e.(*entity.Allocatable)
		if !ok {
			continue
		}
		if levelFor(user, allocatable, time.Time{}, time.Time{}, false) >= entity.AccessEdit {
			return true
		}
	}
	return false
}

// CanWrite reports whether the user may store a changed version of the
// entity.
func CanWrite(user *entity.User, e entity.Entity, resolver entity.Resolver) bool {
	if user == nil || e == nil {
		return false
	}
	meta := e.Metadata()
	if meta.ReadOnly {
		return false
	}
	if user.Admin {
		return true
	}
	switch typed := e.(type) {
	case *entity.Allocatable:
		if meta.OwnerID != "" && meta.OwnerID == user.ID {
			return true
		}
		return levelFor(user, typed, time.Time{}, time.Time{}, false) >= entity.AccessEdit
	case *entity.Reservation:
		if meta.OwnerID == "" || meta.OwnerID == user.ID {
			return meta.OwnerID != "" || canAllocateAll(user, typed, resolver)
		}
		return canReadReservation(user, typed, resolver)
	case *entity.Preferences:
		return meta.OwnerID == user.ID
	case *entity.User:
		return typed.ID == user.ID
	default:
		// Schema and category changes stay with administrators.
		return false
	}
}

func canAllocateAll(user *entity.User, reservation *entity.Reservation, resolver entity.Resolver) bool {
	start, end := reservationWindow(reservation)
	for _, id := range reservation.AllocatableIDs {
		e, ok := resolver.TryResolve(entity.ReferenceInfo{ID: id, Kind: entity.KindAllocatable})
		if !ok {
			return false
		}
		allocatable, ok := e.(*entity.Allocatable)
		if !ok {
			return false
		}
		if !CanAllocate(user, allocatable, start, end) {
			return false
		}
	}
	return true
}

func reservationWindow(reservation *entity.Reservation) (time.Time, time.Time) {
	var start, end time.Time
	for _, appointment := range reservation.Appointments {
		if start.IsZero() || appointment.Start.Before(start) {
			start = appointment.Start
		}
		if appointment.End.After(end) {
			end = appointment.End
		}
	}
	return start, end
}

// CanAllocate reports whether the user may bind the allocatable for the
// window, honoring time-restricted allocate permissions.
func CanAllocate(user *entity.User, allocatable *entity.Allocatable, start, end time.Time) bool {
	if user == nil || allocatable == nil {
		return false
	}
	if user.Admin {
		return true
	}
	if allocatable.OwnerID != "" && allocatable.OwnerID == user.ID {
		return true
	}
	return levelFor(user, allocatable, start, end, true) >= entity.AccessAllocate
}

// CanDelete reports whether the user may remove the entity. Dependency
// protection is checked separately by the dispatch engine.
func CanDelete(user *entity.User, e entity.Entity, resolver entity.Resolver) bool {
	if user == nil || e == nil {
		return false
	}
	if user.Admin {
		return true
	}
	meta := e.Metadata()
	switch typed := e.(type) {
	case *entity.Reservation:
		return meta.OwnerID == user.ID
	case *entity.Allocatable:
		return levelFor(user, typed, time.Time{}, time.Time{}, false) >= entity.AccessAdmin
	case *entity.Preferences:
		return meta.OwnerID == user.ID
	default:
		return false
	}
}

// CanAdminUser reports whether the acting user administrates the target
// account. Self-service operations are not admin operations; callers fall
// back to re-authentication for those.
func CanAdminUser(actor, target *entity.User) bool {
	if actor == nil || target == nil {
		return false
	}
	return actor.Admin
}
