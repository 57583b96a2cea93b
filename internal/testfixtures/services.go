package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cinemaleshalles/rapla/internal/entity"
	"github.com/cinemaleshalles/rapla/internal/operator"
	"github.com/cinemaleshalles/rapla/internal/storage"
)

// MemoryJournal is an in-memory journal that records every committed
// changeset. Tests seed it with entities before constructing the engine and
// assert against Commits afterwards.
type MemoryJournal struct {
	mu       sync.Mutex
	Entities []entity.Entity
	Removals map[entity.ReferenceInfo]time.Time
	Commits  []storage.Commit

	CommitErr error
}

// LoadEntities returns the seeded snapshot.
func (j *MemoryJournal) LoadEntities(context.Context) ([]entity.Entity, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]entity.Entity(nil), j.Entities...), nil
}

// LoadRemovals returns the seeded deletion log.
func (j *MemoryJournal) LoadRemovals(context.Context) (map[entity.ReferenceInfo]time.Time, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	removed := make(map[entity.ReferenceInfo]time.Time, len(j.Removals))
	for ref, at := range j.Removals {
		removed[ref] = at
	}
	return removed, nil
}

// RecordCommit appends the commit, or fails with CommitErr when set.
func (j *MemoryJournal) RecordCommit(_ context.Context, commit storage.Commit) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.CommitErr != nil {
		return j.CommitErr
	}
	j.Commits = append(j.Commits, commit)
	return nil
}

// EngineHarness bundles a deterministic operator with the clock, identifier
// generator, and journal it was built from.
type EngineHarness struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Journal     *MemoryJournal
	Operator    *operator.Operator
}

// EngineHarnessOption configures an EngineHarness instance.
type EngineHarnessOption func(*EngineHarness)

// WithClock overrides the clock used by the harness.
func WithClock(clock *Clock) EngineHarnessOption {
	return func(h *EngineHarness) {
		h.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the harness.
func WithIDGenerator(generator *IDGenerator) EngineHarnessOption {
	return func(h *EngineHarness) {
		h.IDGenerator = generator
	}
}

// WithSeed preloads the journal with entities that are restored into the
// cache during construction, bypassing dispatch validation.
func WithSeed(entities ...entity.Entity) EngineHarnessOption {
	return func(h *EngineHarness) {
		h.Journal.Entities = append(h.Journal.Entities, entities...)
	}
}

// NewEngineHarness builds an operator backed by a MemoryJournal, using the
// shared reference clock and a deterministic identifier generator unless
// overridden.
func NewEngineHarness(tb testing.TB, opts ...EngineHarnessOption) *EngineHarness {
	tb.Helper()

	harness := &EngineHarness{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("gen"),
		Journal:     &MemoryJournal{},
	}
	for _, opt := range opts {
		opt(harness)
	}
	if harness.Clock == nil {
		harness.Clock = NewClock(time.Time{})
	}
	if harness.IDGenerator == nil {
		harness.IDGenerator = NewIDGenerator("gen")
	}

	op, err := operator.New(context.Background(), operator.Config{
		Journal: harness.Journal,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:     harness.Clock.NowFunc(),
		NewID:   harness.IDGenerator.NextFunc(),
	})
	if err != nil {
		tb.Fatalf("failed to build operator: %v", err)
	}
	harness.Operator = op
	return harness
}
