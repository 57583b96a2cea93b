// Package binding computes allocation bindings, double-booking conflicts, and
// free-slot searches over snapshots of the entity graph. Everything here is
// pure; callers hand in the reservations and allocatables they captured from
// the local cache and may run the computation outside any lock.
package binding

import (
	"time"

	"github.com/cinemaleshalles/rapla/internal/entity"
)

// DefaultHorizon bounds every expansion and search so open-ended repeating
// appointments cannot make a query run forever.
const DefaultHorizon = 366 * 24 * time.Hour

// Occurrence is one expanded time block of an appointment.
type Occurrence struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open intervals intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// Expand generates the occurrences of an appointment intersecting the window,
// honoring the repeating rule and its exceptions.
func Expand(a entity.Appointment, windowStart, windowEnd time.Time) []Occurrence {
	if !windowEnd.After(windowStart) {
		return nil
	}
	if a.Repeating == nil {
		if Overlaps(a.Start, a.End, windowStart, windowEnd) {
			return []Occurrence{{Start: a.Start, End: a.End}}
		}
		return nil
	}
	duration := a.End.Sub(a.Start)
	step := a.Repeating.Step()
	var out []Occurrence
	for i := 0; ; i++ {
		if a.Repeating.Count > 0 && i >= a.Repeating.Count {
			break
		}
		start := a.Start.Add(time.Duration(i) * step)
		if !start.Before(windowEnd) {
			break
		}
		if a.Repeating.IsException(start) {
			continue
		}
		end := start.Add(duration)
		if Overlaps(start, end, windowStart, windowEnd) {
			out = append(out, Occurrence{Start: start, End: end})
		}
	}
	return out
}

// AppointmentsCollide reports whether any occurrence of a intersects any
// occurrence of b within the bounded horizon.
func AppointmentsCollide(a, b entity.Appointment) bool {
	windowStart := a.Start
	if b.Start.After(windowStart) {
		windowStart = b.Start
	}
	windowEnd := windowStart.Add(DefaultHorizon)
	occurrencesA := Expand(a, a.Start, windowEnd)
	occurrencesB := Expand(b, b.Start, windowEnd)
	for _, oa := range occurrencesA {
		for _, ob := range occurrencesB {
			if Overlaps(oa.Start, oa.End, ob.Start, ob.End) {
				return true
			}
		}
	}
	return false
}

// Request carries the inputs shared by the binding queries: the allocatables
// under test, the candidate appointments, and reservations whose bindings are
// ignored (typically the reservation being edited).
type Request struct {
	Allocatables []*entity.Allocatable
	Appointments []entity.Appointment
	Reservations []*entity.Reservation
	IgnoredIDs   map[string]struct{}
}

func (r Request) ignored(reservationID string) bool {
	_, ok := r.IgnoredIDs[reservationID]
	return ok
}

// FirstBindings determines, per allocatable, which of the queried
// appointments collide with an existing binding of a non-ignored reservation.
// The result maps allocatable id to the colliding appointment ids.
func FirstBindings(req Request) map[string][]string {
	out := make(map[string][]string, len(req.Allocatables))
	for _, allocatable := range req.Allocatables {
		var bound []string
		for _, appointment := range req.Appointments {
			if collidesWithAny(allocatable, appointment, req) {
				bound = append(bound, appointment.ID)
			}
		}
		out[allocatable.ID] = bound
	}
	return out
}

func collidesWithAny(allocatable *entity.Allocatable, appointment entity.Appointment, req Request) bool {
	for _, reservation := range req.Reservations {
		if req.ignored(reservation.ID) {
			continue
		}
		for _, existing := range reservation.AppointmentsFor(allocatable.ID) {
			if AppointmentsCollide(appointment, existing) {
				return true
			}
		}
	}
	return false
}

// AllBindings returns the distinct reservations responsible for every
// collision found, used to present "who else holds this slot".
func AllBindings(req Request) []*entity.Reservation {
	seen := make(map[string]struct{})
	var out []*entity.Reservation
	for _, allocatable := range req.Allocatables {
		for _, reservation := range req.Reservations {
			if req.ignored(reservation.ID) {
				continue
			}
			if _, already := seen[reservation.ID]; already {
				continue
			}
			if reservationCollides(allocatable, reservation, req.Appointments) {
				seen[reservation.ID] = struct{}{}
				out = append(out, reservation)
			}
		}
	}
	return out
}

func reservationCollides(allocatable *entity.Allocatable, reservation *entity.Reservation, appointments []entity.Appointment) bool {
	existing := reservation.AppointmentsFor(allocatable.ID)
	if len(existing) == 0 {
		return false
	}
	for _, appointment := range appointments {
		for _, bound := range existing {
			if AppointmentsCollide(appointment, bound) {
				return true
			}
		}
	}
	return false
}

// Conflict identifies a pair of bindings that violate exclusivity: the same
// allocatable bound by overlapping appointments of two different
// reservations. Conflicts are a derived, non-persistent view.
type Conflict struct {
	AllocatableID  string
	Reservation1ID string
	Appointment1ID string
	Reservation2ID string
	Appointment2ID string
}

// Conflicts enumerates every double booking among the reservations for the
// given allocatables.
func Conflicts(allocatables []*entity.Allocatable, reservations []*entity.Reservation) []Conflict {
	var out []Conflict
	for _, allocatable := range allocatables {
		for i, first := range reservations {
			firstBound := first.AppointmentsFor(allocatable.ID)
			if len(firstBound) == 0 {
				continue
			}
			for _, second := range reservations[i+1:] {
				secondBound := second.AppointmentsFor(allocatable.ID)
				for _, a := range firstBound {
					for _, b := range secondBound {
						if AppointmentsCollide(a, b) {
							out = append(out, Conflict{
								AllocatableID:  allocatable.ID,
								Reservation1ID: first.ID,
								Appointment1ID: a.ID,
								Reservation2ID: second.ID,
								Appointment2ID: b.ID,
							})
						}
					}
				}
			}
		}
	}
	return out
}
