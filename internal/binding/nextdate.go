package binding

import (
	"errors"
	"time"
)

// ErrNoFreeSlot is returned when the bounded search finds no start time where
// all allocatables are free.
var ErrNoFreeSlot = errors.New("binding: no free slot within the search horizon")

// SearchOptions shapes the next-free-slot search.
type SearchOptions struct {
	// WorktimeStartMinutes and WorktimeEndMinutes bound the daily window in
	// minutes after midnight. Zero values mean the whole day.
	WorktimeStartMinutes int
	WorktimeEndMinutes   int
	// ExcludedDays are weekdays never considered.
	ExcludedDays map[time.Weekday]struct{}
	// RowsPerHour sets the slot granularity; 0 defaults to 1 (hour slots).
	RowsPerHour int
	// Horizon bounds the search; 0 defaults to DefaultHorizon.
	Horizon time.Duration
}

func (o SearchOptions) slot() time.Duration {
	rows := o.RowsPerHour
	if rows <= 0 {
		rows = 1
	}
	return time.Hour / time.Duration(rows)
}

func (o SearchOptions) worktime() (time.Duration, time.Duration) {
	start := time.Duration(o.WorktimeStartMinutes) * time.Minute
	end := time.Duration(o.WorktimeEndMinutes) * time.Minute
	if end <= start {
		start, end = 0, 24*time.Hour
	}
	return start, end
}

// NextFreeStart searches forward from the appointment's current start for the
// next start time where every allocatable in the request is free. The search
// is bounded by the horizon and degrades to ErrNoFreeSlot instead of looping.
// The request's Appointments field is ignored; the candidate appointment is
// supplied separately and tested shifted to each slot.
func NextFreeStart(req Request, opts SearchOptions) (time.Time, error) {
	if len(req.Appointments) != 1 {
		return time.Time{}, errors.New("binding: next-free-slot search takes exactly one appointment")
	}
	appointment := req.Appointments[0]
	duration := appointment.End.Sub(appointment.Start)
	slot := opts.slot()
	workStart, workEnd := opts.worktime()
	horizon := opts.Horizon
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	deadline := appointment.Start.Add(horizon)

	candidate := appointment.Start.Truncate(slot)
	if candidate.Before(appointment.Start) {
		candidate = candidate.Add(slot)
	}
	for !candidate.After(deadline) {
		if _, excluded := opts.ExcludedDays[candidate.Weekday()]; excluded {
			candidate = startOfNextDay(candidate).Add(workStart)
			continue
		}
		minuteOfDay := candidate.Sub(startOfDay(candidate))
		if minuteOfDay < workStart {
			candidate = startOfDay(candidate).Add(workStart)
			continue
		}
		if minuteOfDay+duration > workEnd {
			candidate = startOfNextDay(candidate).Add(workStart)
			continue
		}

		shifted := appointment.Clone()
		delta := candidate.Sub(appointment.Start)
		shifted.Start = appointment.Start.Add(delta)
		shifted.End = appointment.End.Add(delta)
		if shifted.Repeating != nil {
			for i, exception := range shifted.Repeating.Exceptions {
				shifted.Repeating.Exceptions[i] = exception.Add(delta)
			}
		}

		free := true
		for _, allocatable := range req.Allocatables {
			if collidesWithAny(allocatable, shifted, req) {
				free = false
				break
			}
		}
		if free {
			return candidate, nil
		}
		candidate = candidate.Add(slot)
	}
	return time.Time{}, ErrNoFreeSlot
}

func startOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

func startOfNextDay(t time.Time) time.Time {
	return startOfDay(t).AddDate(0, 0, 1)
}
