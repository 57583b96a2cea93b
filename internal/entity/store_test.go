package entity

import (
	"errors"
	"testing"
)

type mapResolver map[ReferenceInfo]Entity

func (m mapResolver) Resolve(ref ReferenceInfo) (Entity, error) {
	if e, ok := m[ref]; ok {
		return e, nil
	}
	return nil, &NotFoundError{Reference: ref}
}

func (m mapResolver) TryResolve(ref ReferenceInfo) (Entity, bool) {
	e, ok := m[ref]
	return e, ok
}

func TestStoreResolvesBatchFirst(t *testing.T) {
	t.Parallel()

	committed := &Category{Meta: Meta{ID: "cat-1", Version: 3}, Key: "committed"}
	updated := &Category{Meta: Meta{ID: "cat-1", Version: 4}, Key: "updated"}
	fallback := mapResolver{committed.Ref(): committed}

	store := NewStore(fallback, updated)

	resolved, err := store.Resolve(ReferenceInfo{ID: "cat-1", Kind: KindCategory})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.(*Category).Key != "updated" {
		t.Fatalf("expected the batch entry to win, got %q", resolved.(*Category).Key)
	}
}

func TestStoreFallsBackToCommitted(t *testing.T) {
	t.Parallel()

	committed := &User{Meta: Meta{ID: "user-1"}, Username: "alice"}
	store := NewStore(mapResolver{committed.Ref(): committed})

	resolved, err := store.Resolve(committed.Ref())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.(*User).Username != "alice" {
		t.Fatalf("unexpected user: %+v", resolved)
	}
}

func TestStoreReportsNotFound(t *testing.T) {
	t.Parallel()

	store := NewStore(nil)
	ref := ReferenceInfo{ID: "missing", Kind: KindAllocatable}

	_, err := store.Resolve(ref)
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if notFound.Reference != ref {
		t.Fatalf("expected reference %v, got %v", ref, notFound.Reference)
	}
}

func TestResolveAllCyclicBatch(t *testing.T) {
	t.Parallel()

	parent := &Category{Meta: Meta{ID: "cat-parent"}, Key: "parent", ParentID: "cat-child"}
	child := &Category{Meta: Meta{ID: "cat-child"}, Key: "child", ParentID: "cat-parent"}
	store := NewStore(nil, parent, child)

	if err := ResolveAll(store, parent); err != nil {
		t.Fatalf("ResolveAll failed on cyclic batch: %v", err)
	}
	if err := ResolveAll(store, child); err != nil {
		t.Fatalf("ResolveAll failed on cyclic batch: %v", err)
	}
}

func TestResolveAllDanglingReference(t *testing.T) {
	t.Parallel()

	reservation := &Reservation{
		Meta:           Meta{ID: "resv-1"},
		AllocatableIDs: []string{"alloc-missing"},
	}
	store := NewStore(nil, reservation)

	err := ResolveAll(store, reservation)
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if notFound.Reference.ID != "alloc-missing" {
		t.Fatalf("unexpected dangling reference: %v", notFound.Reference)
	}
}
