package entity

import (
	"encoding/json"
	"fmt"
)

// DecodeJSON unmarshals a serialized entity into the concrete type named by
// the kind. Journal rows and wire payloads both carry the kind out of band.
func DecodeJSON(kind Kind, data []byte) (Entity, error) {
	var target Entity
	switch kind {
	case KindCategory:
		target = &Category{}
	case KindDynamicType:
		target = &DynamicType{}
	case KindAllocatable:
		target = &Allocatable{}
	case KindReservation:
		target = &Reservation{}
	case KindUser:
		target = &User{}
	case KindPreferences:
		target = &Preferences{}
	default:
		return nil, fmt.Errorf("entity: unknown kind %q", kind)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return nil, fmt.Errorf("entity: decoding %s: %w", kind, err)
	}
	return target, nil
}
