package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/conference-repeater/internal/persistence"
	"github.com/example/conference-repeater/internal/persistence/sqlite"
)

// SQLiteHarness provides repository access backed by a temporary SQLite
// database for integration-style persistence tests.
type SQLiteHarness struct {
	Store  *sqlite.Store
	Users  persistence.UserRepository
	Rooms  persistence.RoomRepository
	Series persistence.SeriesRepository

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness constructs a SQLiteHarness using a temporary file that is
// migrated automatically. Callers may optionally invoke Close, but the helper
// also registers a cleanup callback with the provided testing.TB.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "repeater.db")

	store, err := sqlite.Open(path)
	if err != nil {
		tb.Fatalf("failed to open store: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		tb.Fatalf("failed to migrate store: %v", err)
	}

	harness := &SQLiteHarness{
		Store:  store,
		Users:  store.Users,
		Rooms:  store.Rooms,
		Series: store.Series,
	}
	harness.cleanup = func() { _ = store.Close() }
	tb.Cleanup(harness.Close)
	return harness
}
