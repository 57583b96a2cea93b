package storage

import (
	"time"

	"github.com/cinemaleshalles/rapla/internal/entity"
)

// UpdateEvent is the changeset envelope exchanged between clients and the
// engine. Outbound it carries the incremental diff a client must apply;
// inbound it carries the entities to store, the references to remove, and the
// sparse preference patches of one dispatch.
type UpdateEvent struct {
	UserID            string
	Store             []entity.Entity
	Remove            []entity.ReferenceInfo
	PreferencePatches []entity.PreferencePatch
	// LastValidated marks the server state the client had seen when it built
	// the changeset, and on responses the new synchronization point.
	LastValidated time.Time
}

// AddStore appends an entity to the store set.
func (e *UpdateEvent) AddStore(entities ...entity.Entity) {
	e.Store = append(e.Store, entities...)
}

// AddRemove appends references to the remove set.
func (e *UpdateEvent) AddRemove(refs ...entity.ReferenceInfo) {
	e.Remove = append(e.Remove, refs...)
}

// AddPatch appends a preference patch.
func (e *UpdateEvent) AddPatch(patches ...entity.PreferencePatch) {
	e.PreferencePatches = append(e.PreferencePatches, patches...)
}

// Empty reports whether the event carries no changes.
func (e *UpdateEvent) Empty() bool {
	return len(e.Store) == 0 && len(e.Remove) == 0 && len(e.PreferencePatches) == 0
}
