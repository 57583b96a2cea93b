package storage

import (
	"sync"
	"time"

	"github.com/cinemaleshalles/rapla/internal/entity"
)

// LocalCache is the authoritative in-memory snapshot of all entities visible
// to the server. It exclusively owns committed instances; callers receive the
// committed pointers for reading and must clone before mutating. Mutation
// happens only through Apply with a fully validated commit.
type LocalCache struct {
	mu       sync.RWMutex
	entities map[entity.Kind]map[string]entity.Entity
	removed  map[entity.ReferenceInfo]time.Time
}

// NewLocalCache returns an empty cache.
func NewLocalCache() *LocalCache {
	entities := make(map[entity.Kind]map[string]entity.Entity, len(entity.Kinds()))
	for _, kind := range entity.Kinds() {
		entities[kind] = make(map[string]entity.Entity)
	}
	return &LocalCache{
		entities: entities,
		removed:  make(map[entity.ReferenceInfo]time.Time),
	}
}

// Resolve implements entity.Resolver against the committed snapshot.
func (c *LocalCache) Resolve(ref entity.ReferenceInfo) (entity.Entity, error) {
	if e, ok := c.TryResolve(ref); ok {
		return e, nil
	}
	return nil, &entity.NotFoundError{Reference: ref}
}

// TryResolve implements entity.Resolver against the committed snapshot.
func (c *LocalCache) TryResolve(ref entity.ReferenceInfo) (entity.Entity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	byID, ok := c.entities[ref.Kind]
	if !ok {
		return nil, false
	}
	e, ok := byID[ref.ID]
	return e, ok
}

// All returns the committed entities of one kind.
func (c *LocalCache) All(kind entity.Kind) []entity.Entity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	byID := c.entities[kind]
	out := make([]entity.Entity, 0, len(byID))
	for _, e := range byID {
		out = append(out, e)
	}
	return out
}

// Snapshot returns every committed entity across all kinds.
func (c *LocalCache) Snapshot() []entity.Entity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []entity.Entity
	for _, kind := range entity.Kinds() {
		for _, e := range c.entities[kind] {
			out = append(out, e)
		}
	}
	return out
}

// ChangedSince returns entities whose last change is after the timestamp.
func (c *LocalCache) ChangedSince(since time.Time) []entity.Entity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []entity.Entity
	for _, kind := range entity.Kinds() {
		for _, e := range c.entities[kind] {
			if e.Metadata().LastChanged.After(since) {
				out = append(out, e)
			}
		}
	}
	return out
}

// RemovedSince returns references removed after the timestamp. The deletion
// log lets incremental refreshes tell clients what to drop.
func (c *LocalCache) RemovedSince(since time.Time) []entity.ReferenceInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []entity.ReferenceInfo
	for ref, at := range c.removed {
		if at.After(since) {
			out = append(out, ref)
		}
	}
	return out
}

// Referencers returns descriptions of committed entities that reference the
// target, skipping entities in the exclude set. Drives dependency protection.
func (c *LocalCache) Referencers(target entity.ReferenceInfo, exclude map[entity.ReferenceInfo]struct{}) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []string
	for _, kind := range entity.Kinds() {
		for _, e := range c.entities[kind] {
			if _, skipped := exclude[e.Ref()]; skipped {
				continue
			}
			for _, ref := range e.References() {
				if ref == target {
					out = append(out, entity.Describe(e))
					break
				}
			}
		}
	}
	return out
}

// PreferencesFor finds the preferences entity owned by the user, or the
// system preferences when ownerID is empty.
func (c *LocalCache) PreferencesFor(ownerID string) (*entity.Preferences, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.entities[entity.KindPreferences] {
		prefs := e.(*entity.Preferences)
		if prefs.OwnerID == ownerID {
			return prefs, true
		}
	}
	return nil, false
}

// UserByName finds a user entity by username.
func (c *LocalCache) UserByName(username string) (*entity.User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.entities[entity.KindUser] {
		user := e.(*entity.User)
		if user.Username == username {
			return user, true
		}
	}
	return nil, false
}

// DynamicTypeByKey finds a dynamic type by its key.
func (c *LocalCache) DynamicTypeByKey(key string) (*entity.DynamicType, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.entities[entity.KindDynamicType] {
		dt := e.(*entity.DynamicType)
		if dt.Key == key {
			return dt, true
		}
	}
	return nil, false
}

// Commit is the atomic unit Apply writes into the cache: committed entity
// snapshots plus removals, all stamped with one timestamp.
type Commit struct {
	Stored    []entity.Entity
	Removed   []entity.ReferenceInfo
	Timestamp time.Time
}

// RestoreRemovals seeds the deletion log from a persisted journal so
// incremental refreshes keep working across restarts. Entries for references
// that are present again in the cache are skipped.
func (c *LocalCache) RestoreRemovals(removed map[entity.ReferenceInfo]time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ref, at := range removed {
		if byID, ok := c.entities[ref.Kind]; ok {
			if _, exists := byID[ref.ID]; exists {
				continue
			}
		}
		c.removed[ref] = at
	}
}

// Apply writes the commit atomically. Callers have already validated
// permissions, references, and versions; Apply only swaps state.
func (c *LocalCache) Apply(commit Commit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ref := range commit.Removed {
		if byID, ok := c.entities[ref.Kind]; ok {
			if _, existed := byID[ref.ID]; existed {
				delete(byID, ref.ID)
				c.removed[ref] = commit.Timestamp
			}
		}
	}
	for _, e := range commit.Stored {
		ref := e.Ref()
		c.entities[ref.Kind][ref.ID] = e
		delete(c.removed, ref)
	}
}
