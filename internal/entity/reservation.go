package entity

// Reservation owns a classification, a set of appointments, and the mapping
// from allocated resources to the subset of appointments they are bound for.
type Reservation struct {
	Meta
	Classification Classification
	Appointments   []Appointment
	AllocatableIDs []string
	// Restrictions maps an allocatable id to the appointment ids it is bound
	// for. A missing or empty entry binds the allocatable to every
	// appointment of the reservation.
	Restrictions map[string][]string
}

// Ref returns the stable identity of the reservation.
func (r *Reservation) Ref() ReferenceInfo {
	return ReferenceInfo{ID: r.ID, Kind: KindReservation}
}

// References lists the classification refs, the owner, and every allocated
// resource.
func (r *Reservation) References() []ReferenceInfo {
	refs := r.Classification.References()
	if r.OwnerID != "" {
		refs = append(refs, ReferenceInfo{ID: r.OwnerID, Kind: KindUser})
	}
	for _, id := range r.AllocatableIDs {
		refs = append(refs, ReferenceInfo{ID: id, Kind: KindAllocatable})
	}
	return refs
}

// Clone returns a deep copy safe to mutate.
func (r *Reservation) Clone() Entity {
	clone := *r
	clone.Classification = r.Classification.Clone()
	clone.Appointments = make([]Appointment, len(r.Appointments))
	for i, appointment := range r.Appointments {
		clone.Appointments[i] = appointment.Clone()
	}
	clone.AllocatableIDs = cloneStrings(r.AllocatableIDs)
	if r.Restrictions != nil {
		clone.Restrictions = make(map[string][]string, len(r.Restrictions))
		for id, appointmentIDs := range r.Restrictions {
			clone.Restrictions[id] = cloneStrings(appointmentIDs)
		}
	}
	return &clone
}

// Allocates reports whether the allocatable is bound into the reservation.
func (r *Reservation) Allocates(allocatableID string) bool {
	for _, id := range r.AllocatableIDs {
		if id == allocatableID {
			return true
		}
	}
	return false
}

// AppointmentsFor returns the appointments the allocatable is bound for,
// honoring the restriction subset when one is present.
func (r *Reservation) AppointmentsFor(allocatableID string) []Appointment {
	if !r.Allocates(allocatableID) {
		return nil
	}
	restricted, ok := r.Restrictions[allocatableID]
	if !ok || len(restricted) == 0 {
		return r.Appointments
	}
	allowed := make(map[string]struct{}, len(restricted))
	for _, id := range restricted {
		allowed[id] = struct{}{}
	}
	var out []Appointment
	for _, appointment := range r.Appointments {
		if _, ok := allowed[appointment.ID]; ok {
			out = append(out, appointment)
		}
	}
	return out
}

// Appointment looks up an owned appointment by id.
func (r *Reservation) Appointment(id string) (Appointment, bool) {
	for _, appointment := range r.Appointments {
		if appointment.ID == id {
			return appointment, true
		}
	}
	return Appointment{}, false
}

// Validate checks the invariants of every owned appointment and restriction.
func (r *Reservation) Validate() error {
	for _, appointment := range r.Appointments {
		if err := appointment.Validate(); err != nil {
			return err
		}
	}
	return nil
}
