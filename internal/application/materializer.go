package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/happiestt-talha/pentutor-api/internal/outbox"
	"github.com/happiestt-talha/pentutor-api/internal/persistence"
	"github.com/happiestt-talha/pentutor-api/internal/recurrence"
)

// DefaultWindowDays is the materialization horizon used when none is configured.
const DefaultWindowDays = 7

// Materializer turns active schedules into concrete sessions over a rolling
// window. Runs are idempotent: a slot that already has a session is skipped.
type Materializer struct {
	store       persistence.Store
	engine      *recurrence.Engine
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewMaterializer constructs a materializer.
func NewMaterializer(store persistence.Store, engine *recurrence.Engine, idGenerator func() string, now func() time.Time) *Materializer {
	return NewMaterializerWithLogger(store, engine, idGenerator, now, nil)
}

// NewMaterializerWithLogger constructs a materializer with a specified logger.
func NewMaterializerWithLogger(store persistence.Store, engine *recurrence.Engine, idGenerator func() string, now func() time.Time, logger *slog.Logger) *Materializer {
	if engine == nil {
		engine = recurrence.NewEngine(time.UTC)
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &Materializer{store: store, engine: engine, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

func (m *Materializer) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, m.logger, "Materializer", operation, attrs...)
}

// Materialize creates the missing sessions of every active schedule for the
// next windowDays days and returns how many were created. A failing schedule
// is logged and reported in the joined error without stopping the run.
func (m *Materializer) Materialize(ctx context.Context, windowDays int) (created int, err error) {
	if m == nil {
		err = fmt.Errorf("Materializer is nil")
		return
	}
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}

	logger := m.loggerWith(ctx, "Materialize", "window_days", windowDays)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "materialization incomplete", "error", err, "error_kind", ErrorKind(err), "created", created)
			return
		}
		logger.With("created", created).InfoContext(ctx, "materialization finished")
	}()

	var schedules []persistence.Schedule
	schedules, err = m.store.ListSchedules(ctx, persistence.ScheduleFilter{ActiveOnly: true})
	if err != nil {
		return
	}

	now := m.now()
	var errs []error
	for _, schedule := range schedules {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		n, serr := m.materializeSchedule(ctx, schedule, windowDays, now)
		created += n
		if serr != nil {
			logger.WarnContext(ctx, "schedule materialization failed", "schedule_id", schedule.ID, "error", serr)
			errs = append(errs, fmt.Errorf("schedule %s: %w", schedule.ID, serr))
		}
	}
	err = errors.Join(errs...)
	return
}

func (m *Materializer) materializeSchedule(ctx context.Context, schedule persistence.Schedule, windowDays int, now time.Time) (int, error) {
	pattern, err := recurrence.NewPattern(schedule.ClassDays, schedule.ClassTimes)
	if err != nil {
		return 0, fmt.Errorf("invalid stored pattern: %w", err)
	}

	created := 0
	for _, occ := range m.engine.Expand(pattern, now, windowDays) {
		if occ.Start.Before(now) {
			continue
		}
		day := m.engine.DateOf(occ.Start)
		if !schedule.CoversDate(day) {
			continue
		}

		inserted, err := m.insertSlot(ctx, schedule, occ.Start, day, now, false)
		if errors.Is(err, persistence.ErrDuplicate) {
			// A concurrent run already created the schedule's demo.
			inserted, err = m.insertSlot(ctx, schedule, occ.Start, day, now, true)
		}
		if err != nil {
			return created, fmt.Errorf("slot %s: %w", occ.Start.Format(time.RFC3339), err)
		}
		if inserted {
			created++
		}
	}
	return created, nil
}

// insertSlot creates one session in its own transaction. The demo flag is
// set only while the trial is pending and no demo exists yet; forceRegular
// skips the demo check after losing the single-demo race.
func (m *Materializer) insertSlot(ctx context.Context, schedule persistence.Schedule, start, day, now time.Time, forceRegular bool) (bool, error) {
	inserted := false
	err := m.store.WithinTx(ctx, func(tx persistence.Repositories) error {
		demo := false
		if !schedule.DemoCompleted && !forceRegular {
			has, err := tx.HasDemoSession(ctx, schedule.ID)
			if err != nil {
				return err
			}
			demo = !has
		}

		session := persistence.Session{
			ID:              m.idGenerator(),
			ScheduleID:      schedule.ID,
			ScheduledAt:     start,
			SlotAt:          start,
			DurationMinutes: schedule.DurationMinutes,
			Status:          persistence.SessionScheduled,
			IsDemo:          demo,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if !demo {
			covering, err := tx.CoveringSubscriptions(ctx, schedule.ID, day)
			if err != nil {
				return err
			}
			for _, sub := range covering {
				if sub.Status == persistence.SubscriptionActive {
					id := sub.ID
					session.SubscriptionID = &id
					break
				}
			}
		}

		ok, err := tx.InsertSession(ctx, session)
		if err != nil || !ok {
			return err
		}
		inserted = true
		return enqueue(ctx, tx, outbox.NewBuilder(m.idGenerator, now).MeetingRoom(meetingRoomPayload(schedule, session)))
	})
	return inserted, err
}
