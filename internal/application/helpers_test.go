package application_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/happiestt-talha/pentutor-api/internal/testfixtures"
)

type testEnv struct {
	ctx     context.Context
	clock   *testfixtures.Clock
	factory *testfixtures.ServiceFactory
	harness *testfixtures.SQLiteHarness
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := testfixtures.NewClock(testfixtures.ReferenceTime())
	return &testEnv{
		ctx:   context.Background(),
		clock: clock,
		factory: testfixtures.NewServiceFactory(
			testfixtures.WithClock(clock),
			testfixtures.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		),
		harness: testfixtures.NewSQLiteHarness(t),
	}
}

// pendingKinds counts queued outbox events by kind.
func (e *testEnv) pendingKinds(t *testing.T) map[string]int {
	t.Helper()
	events, err := e.harness.Store.PendingEvents(e.ctx, e.clock.Now().Add(365*24*time.Hour), 1000)
	if err != nil {
		t.Fatalf("PendingEvents returned error: %v", err)
	}
	kinds := make(map[string]int)
	for _, event := range events {
		kinds[event.Kind]++
	}
	return kinds
}

func at(day, hour int) time.Time {
	return time.Date(2026, time.October, day, hour, 0, 0, 0, time.UTC)
}
