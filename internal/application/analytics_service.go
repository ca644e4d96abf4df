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

// AnalyticsService aggregates read-only statistics and sends the monthly report.
type AnalyticsService struct {
	store       persistence.Store
	engine      *recurrence.Engine
	cache       *analyticsCache
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// AnalyticsCacheConfig sizes the snapshot cache.
type AnalyticsCacheConfig struct {
	TTL        time.Duration
	MaxEntries int
}

// NewAnalyticsService constructs an analytics service.
func NewAnalyticsService(store persistence.Store, engine *recurrence.Engine, cache AnalyticsCacheConfig, idGenerator func() string, now func() time.Time) *AnalyticsService {
	return NewAnalyticsServiceWithLogger(store, engine, cache, idGenerator, now, nil)
}

// NewAnalyticsServiceWithLogger constructs an analytics service with a specified logger.
func NewAnalyticsServiceWithLogger(store persistence.Store, engine *recurrence.Engine, cache AnalyticsCacheConfig, idGenerator func() string, now func() time.Time, logger *slog.Logger) *AnalyticsService {
	if engine == nil {
		engine = recurrence.NewEngine(time.UTC)
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &AnalyticsService{
		store:       store,
		engine:      engine,
		cache:       newAnalyticsCache(cache.TTL, cache.MaxEntries),
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *AnalyticsService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AnalyticsService", operation, attrs...)
}

// GetAnalytics returns a snapshot for the requested scope. Administrators may
// query any scope; teachers and students only their own data.
func (s *AnalyticsService) GetAnalytics(ctx context.Context, query AnalyticsQuery) (snapshot AnalyticsSnapshot, err error) {
	if s == nil {
		err = fmt.Errorf("AnalyticsService is nil")
		return
	}

	logger := s.loggerWith(ctx, "GetAnalytics",
		"principal_id", query.Principal.UserID,
		"scope", string(query.Scope),
		"subject_id", query.SubjectID,
	)
	cached := false
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to compute analytics", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("cache_hit", cached).DebugContext(ctx, "analytics served")
	}()

	query, err = s.authorize(ctx, query)
	if err != nil {
		return
	}

	key := buildAnalyticsCacheKey(query)
	if hit, ok := s.cache.Get(key); ok {
		cached = true
		snapshot = hit
		return
	}

	snapshot, err = s.compute(ctx, query)
	if err != nil {
		return
	}
	s.cache.Store(key, snapshot)
	return
}

// SendMonthlyReport posts the previous calendar month's platform snapshot on
// the administrator channel. The event id is derived from the month, so the
// report is queued at most once however often the job ticks.
func (s *AnalyticsService) SendMonthlyReport(ctx context.Context) (sent bool, err error) {
	if s == nil {
		err = fmt.Errorf("AnalyticsService is nil")
		return
	}

	now := s.now()
	local := now.In(s.engine.Location())
	to := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, s.engine.Location())
	from := to.AddDate(0, -1, 0)
	month := from.Format("2006-01")

	logger := s.loggerWith(ctx, "SendMonthlyReport", "month", month)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to send monthly report", "error", err, "error_kind", ErrorKind(err))
			return
		}
		if sent {
			logger.InfoContext(ctx, "monthly report queued")
		}
	}()

	var snapshot AnalyticsSnapshot
	snapshot, err = s.compute(ctx, AnalyticsQuery{Scope: ScopePlatform, From: &from, To: &to})
	if err != nil {
		return
	}

	events := outbox.NewBuilder(s.idGenerator, now).WithID("monthly-report-"+month, outbox.KindAdminNotice, outbox.AdminNoticePayload{
		Category: "monthly_report",
		Title:    "Live classes report for " + month,
		Message:  formatReport(snapshot),
	})
	err = enqueue(ctx, s.store, events)
	if errors.Is(err, persistence.ErrDuplicate) {
		err = nil
		return
	}
	sent = err == nil
	return
}

func (s *AnalyticsService) authorize(ctx context.Context, query AnalyticsQuery) (AnalyticsQuery, error) {
	principal := query.Principal
	if query.From != nil && query.To != nil && query.To.Before(*query.From) {
		vErr := &ValidationError{}
		vErr.add("to", "end of range must not be before its start")
		return query, vErr
	}

	switch query.Scope {
	case ScopePlatform:
		if !principal.IsAdmin() {
			return query, ErrUnauthorized
		}
		query.SubjectID = ""
		return query, nil
	case ScopeTeacher, ScopeStudent:
		if query.SubjectID == "" && !principal.IsAdmin() {
			query.SubjectID = principal.UserID
		}
		if query.SubjectID == "" {
			vErr := &ValidationError{}
			vErr.add("id", "id is required for this scope")
			return query, vErr
		}
		if principal.IsAdmin() {
			return query, nil
		}
		if query.SubjectID != principal.UserID || string(principal.Role) != string(query.Scope) {
			return query, ErrUnauthorized
		}
		return query, nil
	case ScopeSchedule:
		if query.SubjectID == "" {
			vErr := &ValidationError{}
			vErr.add("id", "id is required for this scope")
			return query, vErr
		}
		schedule, err := s.store.GetSchedule(ctx, query.SubjectID)
		if err != nil {
			return query, mapRepoError(err, "schedule")
		}
		if !canView(principal, schedule) {
			return query, ErrUnauthorized
		}
		return query, nil
	}

	vErr := &ValidationError{}
	vErr.add("scope", "scope must be schedule, teacher, student or platform")
	return query, vErr
}

func (s *AnalyticsService) compute(ctx context.Context, query AnalyticsQuery) (AnalyticsSnapshot, error) {
	scheduleFilter := persistence.ScheduleFilter{}
	sessionFilter := persistence.SessionFilter{From: query.From, To: query.To}
	subscriptionFilter := persistence.SubscriptionFilter{}
	paymentFilter := persistence.PaymentFilter{Status: persistence.PaymentCompleted, From: query.From, To: query.To}

	switch query.Scope {
	case ScopeSchedule:
		scheduleFilter.IDs = []string{query.SubjectID}
		sessionFilter.ScheduleID = query.SubjectID
		subscriptionFilter.ScheduleID = query.SubjectID
		paymentFilter.ScheduleID = query.SubjectID
	case ScopeTeacher:
		scheduleFilter.TeacherID = query.SubjectID
		sessionFilter.TeacherID = query.SubjectID
		subscriptionFilter.TeacherID = query.SubjectID
		paymentFilter.TeacherID = query.SubjectID
	case ScopeStudent:
		scheduleFilter.StudentID = query.SubjectID
		sessionFilter.StudentID = query.SubjectID
		subscriptionFilter.StudentID = query.SubjectID
		paymentFilter.StudentID = query.SubjectID
	}

	schedules, err := s.store.ListSchedules(ctx, scheduleFilter)
	if err != nil {
		return AnalyticsSnapshot{}, fmt.Errorf("load schedules: %w", err)
	}
	sessions, err := s.store.ListSessions(ctx, sessionFilter)
	if err != nil {
		return AnalyticsSnapshot{}, fmt.Errorf("load sessions: %w", err)
	}
	subscriptions, err := s.store.ListSubscriptions(ctx, subscriptionFilter)
	if err != nil {
		return AnalyticsSnapshot{}, fmt.Errorf("load subscriptions: %w", err)
	}
	payments, err := s.store.ListPayments(ctx, paymentFilter)
	if err != nil {
		return AnalyticsSnapshot{}, fmt.Errorf("load payments: %w", err)
	}

	snapshot := ComputeSnapshot(schedules, sessions, subscriptions, payments, s.now())
	snapshot.Scope = query.Scope
	snapshot.SubjectID = query.SubjectID
	snapshot.From = query.From
	snapshot.To = query.To
	return snapshot, nil
}

// ComputeSnapshot aggregates already filtered rows. A schedule counts as
// converted only when its completed demo session is among sessions. Rates are
// zero when their denominator is zero.
func ComputeSnapshot(schedules []persistence.Schedule, sessions []persistence.Session, subscriptions []persistence.Subscription, payments []persistence.Payment, now time.Time) AnalyticsSnapshot {
	snapshot := AnalyticsSnapshot{GeneratedAt: now, TotalSchedules: len(schedules), TotalSessions: len(sessions)}

	subscribed := make(map[string]struct{}, len(subscriptions))
	for _, sub := range subscriptions {
		subscribed[sub.ScheduleID] = struct{}{}
		snapshot.ClassesConsumed += sub.Consumed
		if sub.Status == persistence.SubscriptionActive {
			snapshot.ActiveSubscriptions++
		}
	}

	demoRun := make(map[string]struct{})
	for _, session := range sessions {
		switch session.Status {
		case persistence.SessionCompleted:
			snapshot.CompletedSessions++
			if session.IsDemo {
				snapshot.DemoSessionsRun++
				demoRun[session.ScheduleID] = struct{}{}
			}
		case persistence.SessionMissed:
			snapshot.MissedSessions++
		case persistence.SessionCancelled:
			snapshot.CancelledSessions++
		case persistence.SessionScheduled, persistence.SessionRescheduled:
			if session.ScheduledAt.After(now) {
				snapshot.UpcomingSessions++
			}
		}
	}

	// A schedule converts within the window its demo ran in, so the rate
	// never exceeds one.
	for _, schedule := range schedules {
		if schedule.IsActive {
			snapshot.ActiveSchedules++
		}
		_, demoed := demoRun[schedule.ID]
		if _, ok := subscribed[schedule.ID]; ok && demoed && schedule.DemoCompleted {
			snapshot.ConvertedSchedules++
		}
	}

	for _, payment := range payments {
		if payment.Status == persistence.PaymentCompleted {
			snapshot.Revenue += payment.Amount
		}
	}

	if snapshot.TotalSessions > 0 {
		snapshot.AttendanceRate = float64(snapshot.CompletedSessions) / float64(snapshot.TotalSessions)
	}
	if snapshot.DemoSessionsRun > 0 {
		snapshot.ConversionRate = float64(snapshot.ConvertedSchedules) / float64(snapshot.DemoSessionsRun)
	}
	return snapshot
}

func formatReport(s AnalyticsSnapshot) string {
	return fmt.Sprintf(
		"Sessions: %d total, %d completed, %d missed, %d cancelled (attendance %.0f%%). "+
			"Demos run: %d, converted schedules: %d (%.0f%%). Revenue: %d. Active subscriptions: %d.",
		s.TotalSessions, s.CompletedSessions, s.MissedSessions, s.CancelledSessions, s.AttendanceRate*100,
		s.DemoSessionsRun, s.ConvertedSchedules, s.ConversionRate*100, s.Revenue, s.ActiveSubscriptions,
	)
}
