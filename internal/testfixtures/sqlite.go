package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cinemaleshalles/rapla/internal/storage/sqlite"
)

// SQLiteHarness provides a temporary SQLite store for integration-style
// persistence tests.
type SQLiteHarness struct {
	Store *sqlite.Store

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness constructs a SQLiteHarness over a temporary database file.
// Callers may optionally invoke Close, but the helper also registers a
// cleanup callback with the provided testing.TB.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	dir := tb.TempDir()
	dsn := "file:" + filepath.Join(dir, "rapla.db")

	store, err := sqlite.Open(context.Background(), sqlite.Config{DSN: dsn})
	if err != nil {
		tb.Fatalf("failed to open store: %v", err)
	}

	harness := &SQLiteHarness{
		Store: store,
		cleanup: func() {
			_ = store.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}
