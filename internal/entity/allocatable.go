package entity

import "time"

// AccessLevel orders the rights a permission entry can grant. Higher levels
// include every lower one.
type AccessLevel int

const (
	// AccessDenied explicitly revokes access for the matched principal.
	AccessDenied AccessLevel = iota
	// AccessRead allows seeing the entity.
	AccessRead
	// AccessAllocate allows binding the allocatable into reservations.
	AccessAllocate
	// AccessEdit allows modifying the entity.
	AccessEdit
	// AccessAdmin allows managing permissions and deletion.
	AccessAdmin
)

// Permission grants an access level to a user or to the members of a group
// category, optionally restricted to a time window for allocations.
type Permission struct {
	UserID  string
	GroupID string
	Access  AccessLevel
	Start   *time.Time
	End     *time.Time
}

// AppliesAt reports whether the optional time restriction covers the window.
func (p Permission) AppliesAt(start, end time.Time) bool {
	if p.Start != nil && end.Before(*p.Start) {
		return false
	}
	if p.End != nil && start.After(*p.End) {
		return false
	}
	return true
}

// Allocatable is a bookable resource or person. It owns a classification and
// the permission list evaluated by the permission controller.
type Allocatable struct {
	Meta
	Classification Classification
	Permissions    []Permission
	Person         bool
}

// Ref returns the stable identity of the allocatable.
func (a *Allocatable) Ref() ReferenceInfo {
	return ReferenceInfo{ID: a.ID, Kind: KindAllocatable}
}

// References lists the classification refs plus permission principals.
func (a *Allocatable) References() []ReferenceInfo {
	refs := a.Classification.References()
	for _, permission := range a.Permissions {
		if permission.UserID != "" {
			refs = append(refs, ReferenceInfo{ID: permission.UserID, Kind: KindUser})
		}
		if permission.GroupID != "" {
			refs = append(refs, ReferenceInfo{ID: permission.GroupID, Kind: KindCategory})
		}
	}
	return refs
}

// Clone returns a deep copy safe to mutate.
func (a *Allocatable) Clone() Entity {
	clone := *a
	clone.Classification = a.Classification.Clone()
	clone.Permissions = make([]Permission, len(a.Permissions))
	for i, permission := range a.Permissions {
		permission.Start = cloneTimePtr(permission.Start)
		permission.End = cloneTimePtr(permission.End)
		clone.Permissions[i] = permission
	}
	return &clone
}
