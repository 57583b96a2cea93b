package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cinemaleshalles/rapla/internal/entity"
)

var (
	userCounter        uint64
	typeCounter        uint64
	allocatableCounter uint64
	reservationCounter uint64
	appointmentCounter uint64
)

var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// Fixtures are stamped at the reference time itself so seeded snapshots sit
// exactly on a fresh harness clock and never leak into incremental diffs.
func meta(id string) entity.Meta {
	return entity.Meta{
		ID:          id,
		Version:     1,
		CreatedAt:   referenceTime,
		LastChanged: referenceTime,
	}
}

// NewUser returns a deterministic committed user account.
func NewUser(opts ...func(*entity.User)) *entity.User {
	idx := atomic.AddUint64(&userCounter, 1)
	user := &entity.User{
		Meta:      meta(fmt.Sprintf("user-%03d", idx)),
		Username:  fmt.Sprintf("user%03d", idx),
		Email:     fmt.Sprintf("user%03d@example.org", idx),
		Firstname: "Test",
		Lastname:  fmt.Sprintf("User %03d", idx),
	}
	for _, opt := range opts {
		opt(user)
	}
	return user
}

// AsAdmin marks a user fixture as an administrator.
func AsAdmin() func(*entity.User) {
	return func(u *entity.User) { u.Admin = true }
}

// NewDynamicType returns a deterministic schema with the given attributes.
func NewDynamicType(key string, attrs ...entity.Attribute) *entity.DynamicType {
	idx := atomic.AddUint64(&typeCounter, 1)
	if key == "" {
		key = fmt.Sprintf("type%03d", idx)
	}
	return &entity.DynamicType{
		Meta:       meta(fmt.Sprintf("type-%03d", idx)),
		Key:        key,
		Attributes: attrs,
	}
}

// NewAllocatable returns a deterministic resource classified by the type.
func NewAllocatable(typeID string, opts ...func(*entity.Allocatable)) *entity.Allocatable {
	idx := atomic.AddUint64(&allocatableCounter, 1)
	allocatable := &entity.Allocatable{
		Meta:           meta(fmt.Sprintf("alloc-%03d", idx)),
		Classification: entity.Classification{TypeID: typeID},
	}
	for _, opt := range opts {
		opt(allocatable)
	}
	return allocatable
}

// WithPermissions replaces the allocatable's access list.
func WithPermissions(permissions ...entity.Permission) func(*entity.Allocatable) {
	return func(a *entity.Allocatable) { a.Permissions = permissions }
}

// NewAppointment returns a single appointment offset from the reference time.
func NewAppointment(startOffset, duration time.Duration) entity.Appointment {
	idx := atomic.AddUint64(&appointmentCounter, 1)
	start := referenceTime.Add(startOffset)
	return entity.Appointment{
		ID:    fmt.Sprintf("appt-%03d", idx),
		Start: start,
		End:   start.Add(duration),
	}
}

// NewReservation returns a deterministic reservation binding the allocatables
// to the appointments without restrictions.
func NewReservation(typeID, ownerID string, allocatableIDs []string, appointments []entity.Appointment, opts ...func(*entity.Reservation)) *entity.Reservation {
	idx := atomic.AddUint64(&reservationCounter, 1)
	m := meta(fmt.Sprintf("resv-%03d", idx))
	m.OwnerID = ownerID
	reservation := &entity.Reservation{
		Meta:           m,
		Classification: entity.Classification{TypeID: typeID},
		Appointments:   appointments,
		AllocatableIDs: allocatableIDs,
	}
	for _, opt := range opts {
		opt(reservation)
	}
	return reservation
}

// WithRestrictions limits an allocatable of the reservation to a subset of
// its appointments.
func WithRestrictions(allocatableID string, appointmentIDs ...string) func(*entity.Reservation) {
	return func(r *entity.Reservation) {
		if r.Restrictions == nil {
			r.Restrictions = make(map[string][]string)
		}
		r.Restrictions[allocatableID] = appointmentIDs
	}
}
