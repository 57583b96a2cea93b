package entity

import "time"

// Meta carries the bookkeeping fields shared by every independent entity.
// Version implements optimistic concurrency: a changeset that stores an entity
// whose version differs from the committed one is rejected as stale.
type Meta struct {
	ID          string
	Version     int64
	CreatedAt   time.Time
	LastChanged time.Time
	OwnerID     string
	ReadOnly    bool
}

// Metadata exposes the embedded bookkeeping so generic code can touch it.
func (m *Meta) Metadata() *Meta {
	return m
}

// Entity is any domain object held by the local cache. Committed instances are
// value-like snapshots; mutation always happens on a Clone.
type Entity interface {
	Ref() ReferenceInfo
	Metadata() *Meta
	// References lists every outgoing reference of the entity, used for
	// dependency protection and batch resolution.
	References() []ReferenceInfo
	// Clone returns a deep copy safe to mutate independently.
	Clone() Entity
}

// Describe renders an entity for dependency reports and logs.
func Describe(e Entity) string {
	if e == nil {
		return "<nil>"
	}
	return e.Ref().String()
}

func cloneTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}

func cloneTimes(values []time.Time) []time.Time {
	if values == nil {
		return nil
	}
	out := make([]time.Time, len(values))
	copy(out, values)
	return out
}
