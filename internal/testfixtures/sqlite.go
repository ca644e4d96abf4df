package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/happiestt-talha/pentutor-api/internal/persistence/sqlstore"
)

// SQLiteHarness provides a migrated store backed by a temporary SQLite file
// for integration-style tests.
type SQLiteHarness struct {
	Store *sqlstore.Store
	Path  string

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness opens and migrates a store in a temporary directory. The
// store is closed automatically through tb.Cleanup.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "liveclass.db")
	ctx := context.Background()

	store, err := sqlstore.Open(ctx, sqlstore.TempFileTestConfig(path), nil)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	harness := &SQLiteHarness{
		Store: store,
		Path:  path,
		cleanup: func() {
			_ = store.Close()
		},
	}
	tb.Cleanup(harness.Close)
	return harness
}

// SeedSchedule stores the schedule fixture.
func (h *SQLiteHarness) SeedSchedule(tb testing.TB, fixture ScheduleFixture) ScheduleFixture {
	tb.Helper()
	if err := h.Store.CreateSchedule(context.Background(), fixture.Persistence()); err != nil {
		tb.Fatalf("failed to seed schedule %s: %v", fixture.ID, err)
	}
	return fixture
}

// SeedSession stores the session fixture.
func (h *SQLiteHarness) SeedSession(tb testing.TB, fixture SessionFixture) SessionFixture {
	tb.Helper()
	inserted, err := h.Store.InsertSession(context.Background(), fixture.Persistence())
	if err != nil {
		tb.Fatalf("failed to seed session %s: %v", fixture.ID, err)
	}
	if !inserted {
		tb.Fatalf("session slot for %s already taken", fixture.ID)
	}
	return fixture
}

// SeedSubscription stores the subscription fixture.
func (h *SQLiteHarness) SeedSubscription(tb testing.TB, fixture SubscriptionFixture) SubscriptionFixture {
	tb.Helper()
	if err := h.Store.CreateSubscription(context.Background(), fixture.Persistence()); err != nil {
		tb.Fatalf("failed to seed subscription %s: %v", fixture.ID, err)
	}
	return fixture
}
