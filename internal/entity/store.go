package entity

import "fmt"

// NotFoundError reports that a referenced entity does not exist.
type NotFoundError struct {
	Reference ReferenceInfo
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("entity: %s not found", e.Reference)
}

// Resolver resolves references against some backing set of entities.
type Resolver interface {
	Resolve(ref ReferenceInfo) (Entity, error)
	TryResolve(ref ReferenceInfo) (Entity, bool)
}

// Store is a transient resolver seeded with the entities of a changeset.
// References between entities of the same batch resolve locally before any
// lookup in the fallback resolver, which supports structurally cyclic
// same-batch updates.
type Store struct {
	entities map[ReferenceInfo]Entity
	fallback Resolver
}

// NewStore builds a batch-first resolver over the optional fallback.
func NewStore(fallback Resolver, batch ...Entity) *Store {
	store := &Store{
		entities: make(map[ReferenceInfo]Entity, len(batch)),
		fallback: fallback,
	}
	for _, e := range batch {
		store.Add(e)
	}
	return store
}

// Add seeds the store with one more entity.
func (s *Store) Add(e Entity) {
	if e == nil {
		return
	}
	ref := e.Ref()
	if ref.ID == "" {
		return
	}
	s.entities[ref] = e
}

// Resolve returns the entity for the reference, batch entries first.
func (s *Store) Resolve(ref ReferenceInfo) (Entity, error) {
	if e, ok := s.entities[ref]; ok {
		return e, nil
	}
	if s.fallback != nil {
		return s.fallback.Resolve(ref)
	}
	return nil, &NotFoundError{Reference: ref}
}

// TryResolve is Resolve without an error for absent entities.
func (s *Store) TryResolve(ref ReferenceInfo) (Entity, bool) {
	if e, ok := s.entities[ref]; ok {
		return e, true
	}
	if s.fallback != nil {
		return s.fallback.TryResolve(ref)
	}
	return nil, false
}

// ResolveAll verifies that every outgoing reference of the entity resolves.
// The first dangling reference is reported as a NotFoundError.
func ResolveAll(resolver Resolver, e Entity) error {
	for _, ref := range e.References() {
		if _, err := resolver.Resolve(ref); err != nil {
			return err
		}
	}
	return nil
}
