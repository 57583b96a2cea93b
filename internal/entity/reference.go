package entity

import (
	"fmt"
	"strings"
)

// Kind identifies the type of a domain entity inside a ReferenceInfo.
type Kind string

const (
	// KindCategory identifies category entities.
	KindCategory Kind = "category"
	// KindDynamicType identifies dynamic type (schema) entities.
	KindDynamicType Kind = "dynamictype"
	// KindAllocatable identifies resource and person entities.
	KindAllocatable Kind = "allocatable"
	// KindReservation identifies reservation entities.
	KindReservation Kind = "reservation"
	// KindUser identifies user accounts.
	KindUser Kind = "user"
	// KindPreferences identifies per-user or system preference entities.
	KindPreferences Kind = "preferences"
)

// Kinds enumerates every entity kind the engine stores.
func Kinds() []Kind {
	return []Kind{KindCategory, KindDynamicType, KindAllocatable, KindReservation, KindUser, KindPreferences}
}

// ValidKind reports whether the kind names a storable entity type.
func ValidKind(kind Kind) bool {
	switch kind {
	case KindCategory, KindDynamicType, KindAllocatable, KindReservation, KindUser, KindPreferences:
		return true
	default:
		return false
	}
}

// ReferenceInfo is the stable identity of an entity: an immutable id scoped by
// the entity kind. References are the only way entities point at each other.
type ReferenceInfo struct {
	ID   string
	Kind Kind
}

// NewReference constructs a reference for the given kind and id.
func NewReference(kind Kind, id string) ReferenceInfo {
	return ReferenceInfo{ID: id, Kind: kind}
}

// IsZero reports whether the reference carries no identity.
func (r ReferenceInfo) IsZero() bool {
	return r.ID == "" && r.Kind == ""
}

// String renders the reference in its canonical "kind/id" text form.
func (r ReferenceInfo) String() string {
	return string(r.Kind) + "/" + r.ID
}

// ParseReference parses the canonical "kind/id" text form.
func ParseReference(value string) (ReferenceInfo, error) {
	kind, id, ok := strings.Cut(strings.TrimSpace(value), "/")
	if !ok || kind == "" || id == "" {
		return ReferenceInfo{}, fmt.Errorf("entity: malformed reference %q", value)
	}
	ref := ReferenceInfo{ID: id, Kind: Kind(kind)}
	if !ValidKind(ref.Kind) {
		return ReferenceInfo{}, fmt.Errorf("entity: unknown kind in reference %q", value)
	}
	return ref, nil
}
