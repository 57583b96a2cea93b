package operator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cinemaleshalles/rapla/internal/binding"
	"github.com/cinemaleshalles/rapla/internal/entity"
	"github.com/cinemaleshalles/rapla/internal/permission"
)

// bindingSnapshot captures the inputs of a binding query from the cache so
// the computation can run outside any lock.
func (o *Operator) bindingSnapshot(user *entity.User, allocatableIDs []string, appointments []entity.Appointment,
	ignoreReservationIDs []string) (binding.Request, error) {

	req := binding.Request{
		Appointments: appointments,
		IgnoredIDs:   make(map[string]struct{}, len(ignoreReservationIDs)),
	}
	for _, id := range allocatableIDs {
		e, err := o.cache.Resolve(entity.ReferenceInfo{ID: id, Kind: entity.KindAllocatable})
		if err != nil {
			return binding.Request{}, err
		}
		allocatable := e.(*entity.Allocatable)
		if !permission.CanRead(user, allocatable, o.cache) {
			return binding.Request{}, fmt.Errorf("read access to %s denied: %w", e.Ref(), ErrSecurity)
		}
		req.Allocatables = append(req.Allocatables, allocatable)
	}
	for _, id := range ignoreReservationIDs {
		// Unresolvable reservations are assumed new and unsaved; skip them.
		if _, ok := o.cache.TryResolve(entity.ReferenceInfo{ID: id, Kind: entity.KindReservation}); ok {
			req.IgnoredIDs[id] = struct{}{}
		}
	}
	for _, e := range o.cache.All(entity.KindReservation) {
		req.Reservations = append(req.Reservations, e.(*entity.Reservation))
	}
	return req, nil
}

// FirstAllocatableBindings reports, per allocatable, which of the queried
// appointments collide with existing bindings outside the ignored
// reservations. Allocatables are evaluated in parallel.
func (o *Operator) FirstAllocatableBindings(ctx context.Context, user *entity.User, allocatableIDs []string,
	appointments []entity.Appointment, ignoreReservationIDs []string) (map[string][]string, error) {

	req, err := o.bindingSnapshot(user, allocatableIDs, appointments, ignoreReservationIDs)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	out := make(map[string][]string, len(req.Allocatables))
	group, groupCtx := errgroup.WithContext(ctx)
	for _, allocatable := range req.Allocatables {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			single := req
			single.Allocatables = []*entity.Allocatable{allocatable}
			partial := binding.FirstBindings(single)
			mu.Lock()
			out[allocatable.ID] = partial[allocatable.ID]
			mu.Unlock()
			return groupCtx.Err()
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// AllAllocatableBindings returns the distinct reservations responsible for
// every collision with the queried appointments, prepared for the user
// (unreadable reservations are anonymized).
func (o *Operator) AllAllocatableBindings(ctx context.Context, user *entity.User, allocatableIDs []string,
	appointments []entity.Appointment, ignoreReservationIDs []string) ([]*entity.Reservation, error) {

	req, err := o.bindingSnapshot(user, allocatableIDs, appointments, ignoreReservationIDs)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	colliding := binding.AllBindings(req)
	out := make([]*entity.Reservation, 0, len(colliding))
	for _, reservation := range colliding {
		prepared := o.forClient(user, reservation)
		if prepared == nil {
			continue
		}
		out = append(out, prepared.(*entity.Reservation))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// NextAllocatableDate searches forward from the appointment for the next
// start time where all allocatables are free, respecting the daily working
// window, excluded weekdays, and slot granularity. The bounded search returns
// binding.ErrNoFreeSlot when the horizon is exhausted.
func (o *Operator) NextAllocatableDate(ctx context.Context, user *entity.User, allocatableIDs []string,
	appointment entity.Appointment, ignoreReservationIDs []string, opts binding.SearchOptions) (time.Time, error) {

	req, err := o.bindingSnapshot(user, allocatableIDs, []entity.Appointment{appointment}, ignoreReservationIDs)
	if err != nil {
		return time.Time{}, err
	}
	type result struct {
		start time.Time
		err   error
	}
	done := make(chan result, 1)
	go func() {
		start, err := binding.NextFreeStart(req, opts)
		done <- result{start: start, err: err}
	}()
	select {
	case <-ctx.Done():
		return time.Time{}, ctx.Err()
	case r := <-done:
		return r.start, r.err
	}
}

// QueryAppointments returns, per requested allocatable, the appointments
// bound to it that intersect the window. Reservations are matched against the
// optional annotation filter on string classification values.
func (o *Operator) QueryAppointments(ctx context.Context, user *entity.User, allocatableIDs []string,
	start, end time.Time, annotationFilter map[string]string) (map[string][]entity.Appointment, error) {

	req, err := o.bindingSnapshot(user, allocatableIDs, nil, nil)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[string][]entity.Appointment, len(req.Allocatables))
	for _, allocatable := range req.Allocatables {
		var bound []entity.Appointment
		for _, reservation := range req.Reservations {
			if !matchesAnnotations(reservation, annotationFilter) {
				continue
			}
			for _, appointment := range reservation.AppointmentsFor(allocatable.ID) {
				if len(binding.Expand(appointment, start, end)) > 0 {
					bound = append(bound, appointment.Clone())
				}
			}
		}
		out[allocatable.ID] = bound
	}
	return out, nil
}

func matchesAnnotations(reservation *entity.Reservation, filter map[string]string) bool {
	for key, expected := range filter {
		value, ok := reservation.Classification.Values[key]
		if !ok || value.Type != entity.AttributeString || value.String != expected {
			return false
		}
	}
	return true
}

// Conflicts enumerates current double bookings visible to the user: only
// conflicts on allocatables the user may read are reported.
func (o *Operator) Conflicts(user *entity.User) []binding.Conflict {
	var allocatables []*entity.Allocatable
	for _, e := range o.cache.All(entity.KindAllocatable) {
		allocatable := e.(*entity.Allocatable)
		if permission.CanRead(user, allocatable, o.cache) {
			allocatables = append(allocatables, allocatable)
		}
	}
	var reservations []*entity.Reservation
	for _, e := range o.cache.All(entity.KindReservation) {
		reservations = append(reservations, e.(*entity.Reservation))
	}
	return binding.Conflicts(allocatables, reservations)
}
