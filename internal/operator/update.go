package operator

import (
	"time"

	"github.com/cinemaleshalles/rapla/internal/entity"
	"github.com/cinemaleshalles/rapla/internal/storage"
)

// CreateUpdateEvent computes the minimal changeset the user must apply to
// catch up from the given synchronization point: entities changed after it,
// references removed after it, and the fresh server timestamp as the next
// synchronization point. Calling it twice without intervening commits yields
// an empty changeset, only the timestamp advances with the clock.
func (o *Operator) CreateUpdateEvent(user *entity.User, since time.Time) *storage.UpdateEvent {
	evt := &storage.UpdateEvent{
		UserID:        user.ID,
		LastValidated: o.CurrentTimestamp(),
	}
	for _, changed := range o.cache.ChangedSince(since) {
		if prepared := o.forClient(user, changed); prepared != nil {
			evt.AddStore(prepared)
		}
	}
	evt.AddRemove(o.cache.RemovedSince(since)...)
	return evt
}
