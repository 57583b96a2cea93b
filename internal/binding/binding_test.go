package binding

import (
	"testing"
	"time"

	"github.com/cinemaleshalles/rapla/internal/entity"
)

var base = time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)

func at(hour int) time.Time {
	return base.Add(time.Duration(hour) * time.Hour)
}

func block(id string, startHour, endHour int) entity.Appointment {
	return entity.Appointment{ID: id, Start: at(startHour), End: at(endHour)}
}

func allocatable(id string) *entity.Allocatable {
	return &entity.Allocatable{Meta: entity.Meta{ID: id}}
}

func reservation(id string, allocatableIDs []string, appointments ...entity.Appointment) *entity.Reservation {
	return &entity.Reservation{
		Meta:           entity.Meta{ID: id},
		Appointments:   appointments,
		AllocatableIDs: allocatableIDs,
	}
}

func TestOverlaps(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name                       string
		aStart, aEnd, bStart, bEnd time.Time
		want                       bool
	}{
		{"partial overlap", at(10), at(12), at(11), at(13), true},
		{"containment", at(10), at(14), at(11), at(12), true},
		{"touching endpoints are free", at(10), at(12), at(12), at(13), false},
		{"disjoint", at(10), at(11), at(12), at(13), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Overlaps(tc.aStart, tc.aEnd, tc.bStart, tc.bEnd); got != tc.want {
				t.Fatalf("Overlaps = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestExpand(t *testing.T) {
	t.Parallel()

	t.Run("single block inside the window", func(t *testing.T) {
		t.Parallel()

		occurrences := Expand(block("appt-1", 10, 12), at(0), at(24))
		if len(occurrences) != 1 {
			t.Fatalf("expected one occurrence, got %v", occurrences)
		}
		if !occurrences[0].Start.Equal(at(10)) || !occurrences[0].End.Equal(at(12)) {
			t.Fatalf("unexpected occurrence %v", occurrences[0])
		}
	})

	t.Run("single block outside the window", func(t *testing.T) {
		t.Parallel()

		if got := Expand(block("appt-1", 10, 12), at(12), at(24)); got != nil {
			t.Fatalf("expected no occurrences, got %v", got)
		}
	})

	t.Run("daily pattern honors count and exceptions", func(t *testing.T) {
		t.Parallel()

		appointment := block("appt-1", 10, 11)
		appointment.Repeating = &entity.Repeating{
			Type:       entity.RepeatDaily,
			Interval:   1,
			Count:      4,
			Exceptions: []time.Time{at(10).Add(24 * time.Hour)},
		}

		occurrences := Expand(appointment, base, base.AddDate(0, 0, 30))
		if len(occurrences) != 3 {
			t.Fatalf("expected three occurrences after the exception, got %d", len(occurrences))
		}
		if !occurrences[1].Start.Equal(at(10).Add(48 * time.Hour)) {
			t.Fatalf("expected the excepted day to be skipped, got %v", occurrences[1].Start)
		}
	})

	t.Run("open-ended pattern stops at the window", func(t *testing.T) {
		t.Parallel()

		appointment := block("appt-1", 10, 11)
		appointment.Repeating = &entity.Repeating{Type: entity.RepeatWeekly, Interval: 1}

		occurrences := Expand(appointment, base, base.AddDate(0, 0, 22))
		if len(occurrences) != 4 {
			t.Fatalf("expected four weekly occurrences in the window, got %d", len(occurrences))
		}
	})
}

func TestAppointmentsCollide(t *testing.T) {
	t.Parallel()

	t.Run("plain blocks", func(t *testing.T) {
		t.Parallel()

		if !AppointmentsCollide(block("a", 10, 12), block("b", 11, 13)) {
			t.Fatal("expected overlapping blocks to collide")
		}
		if AppointmentsCollide(block("a", 10, 12), block("b", 12, 13)) {
			t.Fatal("expected back-to-back blocks not to collide")
		}
	})

	t.Run("repeating against plain", func(t *testing.T) {
		t.Parallel()

		weekly := block("a", 10, 11)
		weekly.Repeating = &entity.Repeating{Type: entity.RepeatWeekly, Interval: 1}
		nextWeek := entity.Appointment{
			ID:    "b",
			Start: at(10).AddDate(0, 0, 7),
			End:   at(11).AddDate(0, 0, 7),
		}

		if !AppointmentsCollide(weekly, nextWeek) {
			t.Fatal("expected a later occurrence of the pattern to collide")
		}
	})

	t.Run("exception removes the collision", func(t *testing.T) {
		t.Parallel()

		weekly := block("a", 10, 11)
		weekly.Repeating = &entity.Repeating{
			Type:       entity.RepeatWeekly,
			Interval:   1,
			Exceptions: []time.Time{at(10).AddDate(0, 0, 7)},
		}
		nextWeek := entity.Appointment{
			ID:    "b",
			Start: at(10).AddDate(0, 0, 7),
			End:   at(11).AddDate(0, 0, 7),
		}

		if AppointmentsCollide(weekly, nextWeek) {
			t.Fatal("expected the excepted occurrence not to collide")
		}
	})
}

func TestFirstBindings(t *testing.T) {
	t.Parallel()

	busy := reservation("resv-busy", []string{"alloc-1"}, block("appt-busy", 10, 12))
	req := Request{
		Allocatables: []*entity.Allocatable{allocatable("alloc-1"), allocatable("alloc-2")},
		Appointments: []entity.Appointment{block("appt-q1", 11, 13), block("appt-q2", 14, 15)},
		Reservations: []*entity.Reservation{busy},
	}

	bindings := FirstBindings(req)
	if got := bindings["alloc-1"]; len(got) != 1 || got[0] != "appt-q1" {
		t.Fatalf("expected the overlapping appointment to be bound, got %v", got)
	}
	if got := bindings["alloc-2"]; len(got) != 0 {
		t.Fatalf("expected the free allocatable to have no bindings, got %v", got)
	}
}

func TestFirstBindingsIgnoresEditedReservation(t *testing.T) {
	t.Parallel()

	busy := reservation("resv-busy", []string{"alloc-1"}, block("appt-busy", 10, 12))
	req := Request{
		Allocatables: []*entity.Allocatable{allocatable("alloc-1")},
		Appointments: []entity.Appointment{block("appt-q1", 11, 13)},
		Reservations: []*entity.Reservation{busy},
		IgnoredIDs:   map[string]struct{}{"resv-busy": {}},
	}

	if got := FirstBindings(req)["alloc-1"]; len(got) != 0 {
		t.Fatalf("expected the ignored reservation to be skipped, got %v", got)
	}
}

func TestFirstBindingsHonorsRestrictions(t *testing.T) {
	t.Parallel()

	busy := reservation("resv-busy", []string{"alloc-1"}, block("appt-a", 10, 12), block("appt-b", 14, 16))
	busy.Restrictions = map[string][]string{"alloc-1": {"appt-b"}}
	req := Request{
		Allocatables: []*entity.Allocatable{allocatable("alloc-1")},
		Appointments: []entity.Appointment{block("appt-q", 11, 13)},
		Reservations: []*entity.Reservation{busy},
	}

	if got := FirstBindings(req)["alloc-1"]; len(got) != 0 {
		t.Fatalf("expected the restriction to free the morning slot, got %v", got)
	}
}

func TestAllBindings(t *testing.T) {
	t.Parallel()

	first := reservation("resv-1", []string{"alloc-1"}, block("appt-1", 10, 12))
	second := reservation("resv-2", []string{"alloc-1"}, block("appt-2", 11, 13))
	free := reservation("resv-3", []string{"alloc-1"}, block("appt-3", 20, 21))
	req := Request{
		Allocatables: []*entity.Allocatable{allocatable("alloc-1")},
		Appointments: []entity.Appointment{block("appt-q", 11, 12)},
		Reservations: []*entity.Reservation{first, second, free},
	}

	holders := AllBindings(req)
	if len(holders) != 2 {
		t.Fatalf("expected two colliding reservations, got %d", len(holders))
	}
	seen := map[string]struct{}{}
	for _, r := range holders {
		seen[r.ID] = struct{}{}
	}
	if _, ok := seen["resv-3"]; ok {
		t.Fatal("expected the free reservation to be absent")
	}
}

func TestConflicts(t *testing.T) {
	t.Parallel()

	first := reservation("resv-1", []string{"alloc-1"}, block("appt-1", 10, 12))
	second := reservation("resv-2", []string{"alloc-1"}, block("appt-2", 11, 13))
	third := reservation("resv-3", []string{"alloc-2"}, block("appt-3", 11, 13))

	conflicts := Conflicts(
		[]*entity.Allocatable{allocatable("alloc-1"), allocatable("alloc-2")},
		[]*entity.Reservation{first, second, third},
	)
	if len(conflicts) != 1 {
		t.Fatalf("expected exactly one double booking, got %v", conflicts)
	}
	c := conflicts[0]
	if c.AllocatableID != "alloc-1" || c.Reservation1ID != "resv-1" || c.Reservation2ID != "resv-2" {
		t.Fatalf("unexpected conflict %+v", c)
	}
	if c.Appointment1ID != "appt-1" || c.Appointment2ID != "appt-2" {
		t.Fatalf("unexpected appointment pair %+v", c)
	}
}

func TestConflictsDifferentResourcesDoNotConflict(t *testing.T) {
	t.Parallel()

	first := reservation("resv-1", []string{"alloc-1"}, block("appt-1", 10, 12))
	second := reservation("resv-2", []string{"alloc-2"}, block("appt-2", 10, 12))

	conflicts := Conflicts(
		[]*entity.Allocatable{allocatable("alloc-1"), allocatable("alloc-2")},
		[]*entity.Reservation{first, second},
	)
	if len(conflicts) != 0 {
		t.Fatalf("expected no conflicts across distinct resources, got %v", conflicts)
	}
}
