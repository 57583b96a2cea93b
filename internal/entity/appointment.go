package entity

import (
	"fmt"
	"time"
)

// RepeatingType enumerates supported repeating patterns.
type RepeatingType string

const (
	// RepeatDaily repeats every Interval days.
	RepeatDaily RepeatingType = "daily"
	// RepeatWeekly repeats every Interval weeks.
	RepeatWeekly RepeatingType = "weekly"
)

// Repeating describes the recurrence of an appointment. Count bounds the
// number of occurrences; zero means open ended (bounded only by the query
// window). Exceptions remove single occurrences and must fall on the pattern.
type Repeating struct {
	Type       RepeatingType
	Interval   int
	Count      int
	Exceptions []time.Time
}

// Clone returns a deep copy of the repeating rule.
func (r *Repeating) Clone() *Repeating {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Exceptions = cloneTimes(r.Exceptions)
	return &clone
}

// Step returns the gap between consecutive occurrence starts.
func (r *Repeating) Step() time.Duration {
	interval := r.Interval
	if interval <= 0 {
		interval = 1
	}
	switch r.Type {
	case RepeatWeekly:
		return time.Duration(interval) * 7 * 24 * time.Hour
	default:
		return time.Duration(interval) * 24 * time.Hour
	}
}

// IsException reports whether the occurrence starting at the instant is
// excluded from the pattern.
func (r *Repeating) IsException(start time.Time) bool {
	if r == nil {
		return false
	}
	for _, exception := range r.Exceptions {
		if exception.Equal(start) {
			return true
		}
	}
	return false
}

// Appointment is a single scheduled block owned by exactly one reservation.
// It has no independent lifecycle; its id is only unique within the engine to
// let clients address it inside changesets and binding queries.
type Appointment struct {
	ID        string
	Start     time.Time
	End       time.Time
	Repeating *Repeating
}

// Clone returns a deep copy of the appointment.
func (a Appointment) Clone() Appointment {
	a.Repeating = a.Repeating.Clone()
	return a
}

// Validate enforces the appointment invariants: start before or equal to end,
// exceptions aligned with the repeating pattern.
func (a Appointment) Validate() error {
	if a.Start.After(a.End) {
		return fmt.Errorf("entity: appointment %s starts after it ends", a.ID)
	}
	if a.Repeating == nil {
		return nil
	}
	switch a.Repeating.Type {
	case RepeatDaily, RepeatWeekly:
	default:
		return fmt.Errorf("entity: appointment %s has unsupported repeating type %q", a.ID, a.Repeating.Type)
	}
	step := a.Repeating.Step()
	for _, exception := range a.Repeating.Exceptions {
		offset := exception.Sub(a.Start)
		if offset < 0 || offset%step != 0 {
			return fmt.Errorf("entity: appointment %s exception %s is not on the repeating pattern", a.ID, exception.Format(time.RFC3339))
		}
		if a.Repeating.Count > 0 && int(offset/step) >= a.Repeating.Count {
			return fmt.Errorf("entity: appointment %s exception %s is past the last occurrence", a.ID, exception.Format(time.RFC3339))
		}
	}
	return nil
}
