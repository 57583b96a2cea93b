package application

import (
	"time"

	"github.com/cinemaleshalles/rapla/internal/entity"
)

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID  string
	IsAdmin bool
}

// AuthenticateParams carries a login request.
type AuthenticateParams struct {
	Username string
	Password string
}

// AuthenticateResult is the outcome of a successful login.
type AuthenticateResult struct {
	User      *entity.User
	Token     string
	ExpiresAt time.Time
}

// StoreParams carries one dispatched changeset.
type StoreParams struct {
	// Stored holds the client's modified entity snapshots, inserts carrying
	// version zero.
	Stored []entity.Entity
	// Removed lists the references to delete.
	Removed []entity.ReferenceInfo
	// PreferencePatches holds partial preference updates keyed by owner.
	PreferencePatches []entity.PreferencePatch
	// LastValidated is the client's current synchronization point.
	LastValidated time.Time
}

// UpdateResult is the incremental changeset a client applies to catch up.
type UpdateResult struct {
	Stored        []entity.Entity
	Removed       []entity.ReferenceInfo
	LastValidated time.Time
}

// BindingRequest identifies the allocatables and appointments of a binding
// query. Reservations named in IgnoreReservationIDs are excluded from
// collision checks, typically the reservation currently being edited.
type BindingRequest struct {
	AllocatableIDs       []string
	Appointments         []entity.Appointment
	IgnoreReservationIDs []string
}

// MergeParams carries an allocatable merge request.
type MergeParams struct {
	Canonical    *entity.Allocatable
	DuplicateIDs []string
	// LastValidated is the client's synchronization point, used to build the
	// refresh result returned after the merge commits.
	LastValidated time.Time
}

// PasswordChange carries a password change request for a target user.
type PasswordChange struct {
	UserID      string
	OldPassword string
	NewPassword string
}
