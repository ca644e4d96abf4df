package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/happiestt-talha/pentutor-api/internal/outbox"
	"github.com/happiestt-talha/pentutor-api/internal/persistence"
	"github.com/happiestt-talha/pentutor-api/internal/recurrence"
)

const (
	maxDurationMinutes = 8 * 60
	upcomingLimit      = 10
)

// ScheduleService orchestrates validation and persistence for schedule operations.
type ScheduleService struct {
	store       persistence.Store
	engine      *recurrence.Engine
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewScheduleService wires dependencies for schedule operations.
func NewScheduleService(store persistence.Store, engine *recurrence.Engine, idGenerator func() string, now func() time.Time) *ScheduleService {
	return NewScheduleServiceWithLogger(store, engine, idGenerator, now, nil)
}

// NewScheduleServiceWithLogger wires dependencies with a specified logger.
func NewScheduleServiceWithLogger(store persistence.Store, engine *recurrence.Engine, idGenerator func() string, now func() time.Time, logger *slog.Logger) *ScheduleService {
	if engine == nil {
		engine = recurrence.NewEngine(time.UTC)
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &ScheduleService{store: store, engine: engine, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

func (s *ScheduleService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ScheduleService", operation, attrs...)
}

// CreateSchedule validates the definition, stores it and bootstraps the free
// demo session at the next occurrence in the same transaction.
func (s *ScheduleService) CreateSchedule(ctx context.Context, params CreateScheduleParams) (result CreateScheduleResult, err error) {
	if s == nil {
		err = fmt.Errorf("ScheduleService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateSchedule",
		"principal_id", params.Principal.UserID,
		"teacher_id", params.Input.TeacherID,
		"student_id", params.Input.StudentID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create schedule", "error", err, "error_kind", ErrorKind(err))
			return
		}
		attrs := []any{"schedule_id", result.Schedule.ID}
		if result.DemoSession != nil {
			attrs = append(attrs, "demo_session_id", result.DemoSession.ID, "demo_at", result.DemoSession.ScheduledAt)
		}
		logger.With(attrs...).InfoContext(ctx, "schedule created")
	}()

	input := params.Input
	if strings.TrimSpace(input.TeacherID) == "" && params.Principal.Role == RoleTeacher {
		input.TeacherID = params.Principal.UserID
	}
	if !params.Principal.IsAdmin() && params.Principal.UserID != strings.TrimSpace(input.TeacherID) {
		err = ErrUnauthorized
		return
	}

	now := s.now()
	if input.StartDate.IsZero() {
		input.StartDate = s.engine.DateOf(now)
	}

	pattern, vErr := validateScheduleInput(input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	schedule := persistence.Schedule{
		ID:              s.idGenerator(),
		TeacherID:       strings.TrimSpace(input.TeacherID),
		StudentID:       strings.TrimSpace(input.StudentID),
		Subject:         strings.TrimSpace(input.Subject),
		ClassesPerWeek:  input.ClassesPerWeek,
		ClassDays:       pattern.DayNames(),
		ClassTimes:      pattern.TimeMap(),
		DurationMinutes: input.DurationMinutes,
		WeeklyPrice:     input.WeeklyPrice,
		MonthlyPrice:    input.MonthlyPrice,
		IsActive:        true,
		StartDate:       dateOnly(input.StartDate),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if input.EndDate != nil {
		end := dateOnly(*input.EndDate)
		schedule.EndDate = &end
	}

	var demo *persistence.Session
	if start, ok := s.firstOccurrence(pattern, schedule, now); ok {
		demo = &persistence.Session{
			ID:              s.idGenerator(),
			ScheduleID:      schedule.ID,
			ScheduledAt:     start,
			DurationMinutes: schedule.DurationMinutes,
			Status:          persistence.SessionScheduled,
			IsDemo:          true,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
	}

	err = s.store.WithinTx(ctx, func(tx persistence.Repositories) error {
		if err := tx.CreateSchedule(ctx, schedule); err != nil {
			if errors.Is(err, persistence.ErrDuplicate) {
				return &ConflictError{Resource: "schedule", Message: "a schedule for this teacher, student and subject already exists"}
			}
			return mapRepoError(err, "schedule")
		}

		events := outbox.NewBuilder(s.idGenerator, now)
		if demo != nil {
			if _, err := tx.InsertSession(ctx, *demo); err != nil {
				return mapRepoError(err, "session")
			}
			events.MeetingRoom(meetingRoomPayload(schedule, *demo)).
				Notify(outbox.NotificationPayload{
					RecipientID: schedule.StudentID,
					Category:    "demo_scheduled",
					Title:       "Free demo class scheduled",
					Message:     fmt.Sprintf("Your free %s demo class is on %s.", schedule.Subject, formatStart(demo.ScheduledAt)),
					SessionID:   demo.ID,
					ScheduleID:  schedule.ID,
				}).
				Email(outbox.EmailPayload{
					RecipientID: schedule.StudentID,
					Subject:     "Your free demo class",
					Body:        fmt.Sprintf("Your first %s class on %s is free. Join from your dashboard when it starts.", schedule.Subject, formatStart(demo.ScheduledAt)),
				})
		}
		events.Admin(outbox.AdminNoticePayload{
			Category: "schedule_created",
			Title:    "New live class schedule",
			Message:  fmt.Sprintf("Teacher %s scheduled %s with student %s (%s).", schedule.TeacherID, schedule.Subject, schedule.StudentID, strings.Join(schedule.ClassDays, ", ")),
		})
		return enqueue(ctx, tx, events)
	})
	if err != nil {
		return
	}

	result = CreateScheduleResult{Schedule: schedule, DemoSession: demo}
	return
}

// GetSchedule loads a schedule visible to the principal.
func (s *ScheduleService) GetSchedule(ctx context.Context, principal Principal, scheduleID string) (schedule persistence.Schedule, err error) {
	if s == nil {
		err = fmt.Errorf("ScheduleService is nil")
		return
	}
	schedule, err = s.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		err = mapRepoError(err, "schedule")
		return
	}
	if !canView(principal, schedule) {
		err = ErrUnauthorized
		return
	}
	return
}

// ListSchedules returns schedules scoped to the principal. Admins see all.
func (s *ScheduleService) ListSchedules(ctx context.Context, params ListSchedulesParams) (schedules []persistence.Schedule, err error) {
	if s == nil {
		err = fmt.Errorf("ScheduleService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ListSchedules", "principal_id", params.Principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list schedules", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(schedules)).DebugContext(ctx, "schedules listed")
	}()

	filter, ok := scheduleFilterFor(params.Principal)
	if !ok {
		err = ErrUnauthorized
		return
	}
	filter.ActiveOnly = params.ActiveOnly
	schedules, err = s.store.ListSchedules(ctx, filter)
	return
}

// DeactivateSchedule stops materialization for a schedule. Existing sessions are kept.
func (s *ScheduleService) DeactivateSchedule(ctx context.Context, principal Principal, scheduleID string) (err error) {
	if s == nil {
		return fmt.Errorf("ScheduleService is nil")
	}

	logger := s.loggerWith(ctx, "DeactivateSchedule", "principal_id", principal.UserID, "schedule_id", scheduleID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to deactivate schedule", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "schedule deactivated")
	}()

	schedule, err := s.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return mapRepoError(err, "schedule")
	}
	if !principal.IsAdmin() && principal.UserID != schedule.TeacherID {
		return ErrUnauthorized
	}
	if err := s.store.SetScheduleActive(ctx, scheduleID, false, s.now()); err != nil {
		return mapRepoError(err, "schedule")
	}
	return nil
}

// UpdateSchedule edits prices, validity end, the active flag or the weekly
// pattern. Sessions already materialized keep their times; a new pattern only
// shapes sessions created after the edit.
func (s *ScheduleService) UpdateSchedule(ctx context.Context, params UpdateScheduleParams) (schedule persistence.Schedule, err error) {
	if s == nil {
		err = fmt.Errorf("ScheduleService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateSchedule", "principal_id", params.Principal.UserID, "schedule_id", params.ScheduleID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update schedule", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("is_active", schedule.IsActive, "class_days", schedule.ClassDays).InfoContext(ctx, "schedule updated")
	}()

	current, err := s.store.GetSchedule(ctx, params.ScheduleID)
	if err != nil {
		err = mapRepoError(err, "schedule")
		return
	}
	if !params.Principal.IsAdmin() && params.Principal.UserID != current.TeacherID {
		err = ErrUnauthorized
		return
	}

	updated, patternChanged, vErr := applyScheduleChanges(current, params.Changes)
	if vErr.HasErrors() {
		err = vErr
		return
	}
	now := s.now()
	updated.UpdatedAt = now

	err = s.store.WithinTx(ctx, func(tx persistence.Repositories) error {
		if err := tx.UpdateSchedule(ctx, updated); err != nil {
			return mapRepoError(err, "schedule")
		}
		events := outbox.NewBuilder(s.idGenerator, now)
		if patternChanged {
			events.Notify(outbox.NotificationPayload{
				RecipientID: updated.StudentID,
				Category:    "schedule_updated",
				Title:       "Class times changed",
				Message:     fmt.Sprintf("Your %s classes now run on %s.", updated.Subject, describePattern(updated)),
				ScheduleID:  updated.ID,
			})
		}
		events.Admin(outbox.AdminNoticePayload{
			Category: "schedule_updated",
			Title:    "Live class schedule edited",
			Message:  fmt.Sprintf("Schedule %s (%s, teacher %s, student %s) was edited by %s.", updated.ID, updated.Subject, updated.TeacherID, updated.StudentID, params.Principal.UserID),
		})
		return enqueue(ctx, tx, events)
	})
	if err != nil {
		return
	}
	schedule = updated
	return
}

// applyScheduleChanges validates changes against the stored schedule and
// returns the edited copy. When only days change, stored times are kept for
// the days that remain.
func applyScheduleChanges(current persistence.Schedule, changes ScheduleChanges) (persistence.Schedule, bool, *ValidationError) {
	vErr := &ValidationError{}
	if changes.empty() {
		vErr.add("changes", "at least one field must be provided")
		return current, false, vErr
	}

	updated := current
	patternChanged := false
	if changes.ClassDays != nil || changes.ClassTimes != nil {
		days := current.ClassDays
		if changes.ClassDays != nil {
			days = changes.ClassDays
		}
		times := changes.ClassTimes
		if times == nil {
			times = make(map[string]string, len(days))
			for _, day := range days {
				key := strings.ToLower(strings.TrimSpace(day))
				if tod, ok := current.ClassTimes[key]; ok {
					times[key] = tod
				}
			}
		}
		pattern, err := recurrence.NewPattern(days, times)
		if err != nil {
			vErr.merge(patternValidation(err))
		} else {
			updated.ClassDays = pattern.DayNames()
			updated.ClassTimes = pattern.TimeMap()
			updated.ClassesPerWeek = pattern.Len()
			patternChanged = !slices.Equal(updated.ClassDays, current.ClassDays) || !maps.Equal(updated.ClassTimes, current.ClassTimes)
		}
	}

	if changes.WeeklyPrice != nil {
		updated.WeeklyPrice = *changes.WeeklyPrice
		if updated.WeeklyPrice <= 0 {
			vErr.add("weekly_price", "price must be positive")
		}
	}
	if changes.MonthlyPrice != nil {
		updated.MonthlyPrice = *changes.MonthlyPrice
		if updated.MonthlyPrice <= 0 {
			vErr.add("monthly_price", "price must be positive")
		}
	}

	switch {
	case changes.ClearEndDate && changes.EndDate != nil:
		vErr.add("end_date", "end date cannot be set and cleared together")
	case changes.ClearEndDate:
		updated.EndDate = nil
	case changes.EndDate != nil:
		end := dateOnly(*changes.EndDate)
		if end.Before(dateOnly(current.StartDate)) {
			vErr.add("end_date", "end date must not be before start date")
		}
		updated.EndDate = &end
	}

	if changes.IsActive != nil {
		updated.IsActive = *changes.IsActive
	}
	return updated, patternChanged, vErr
}

func describePattern(schedule persistence.Schedule) string {
	parts := make([]string, 0, len(schedule.ClassDays))
	for _, day := range schedule.ClassDays {
		parts = append(parts, day+" "+schedule.ClassTimes[day])
	}
	return strings.Join(parts, ", ")
}

// PreviewSchedule lists the class starts of the next weeks without storing anything.
func (s *ScheduleService) PreviewSchedule(ctx context.Context, principal Principal, scheduleID string, weeks int) ([]recurrence.Occurrence, error) {
	schedule, err := s.GetSchedule(ctx, principal, scheduleID)
	if err != nil {
		return nil, err
	}
	pattern, err := recurrence.NewPattern(schedule.ClassDays, schedule.ClassTimes)
	if err != nil {
		return nil, fmt.Errorf("stored pattern for schedule %s: %w", schedule.ID, err)
	}
	now := s.now()
	occurrences := s.engine.Preview(pattern, now, weeks)
	visible := occurrences[:0]
	for _, occ := range occurrences {
		if occ.Start.After(now) && schedule.CoversDate(s.engine.DateOf(occ.Start)) {
			visible = append(visible, occ)
		}
	}
	return visible, nil
}

// UpcomingClasses returns the next class starts across the principal's active schedules.
func (s *ScheduleService) UpcomingClasses(ctx context.Context, principal Principal) (classes []UpcomingClass, err error) {
	if s == nil {
		err = fmt.Errorf("ScheduleService is nil")
		return
	}
	filter, ok := scheduleFilterFor(principal)
	if !ok {
		err = ErrUnauthorized
		return
	}
	filter.ActiveOnly = true

	var schedules []persistence.Schedule
	schedules, err = s.store.ListSchedules(ctx, filter)
	if err != nil {
		return
	}

	now := s.now()
	classes = make([]UpcomingClass, 0)
	for _, schedule := range schedules {
		pattern, perr := recurrence.NewPattern(schedule.ClassDays, schedule.ClassTimes)
		if perr != nil {
			s.loggerWith(ctx, "UpcomingClasses", "schedule_id", schedule.ID).
				WarnContext(ctx, "skipping schedule with invalid pattern", "error", perr)
			continue
		}
		for _, occ := range s.engine.Expand(pattern, now, 14) {
			if !occ.Start.After(now) || !schedule.CoversDate(s.engine.DateOf(occ.Start)) {
				continue
			}
			classes = append(classes, UpcomingClass{
				ScheduleID:      schedule.ID,
				Subject:         schedule.Subject,
				TeacherID:       schedule.TeacherID,
				StudentID:       schedule.StudentID,
				StartsAt:        occ.Start,
				DurationMinutes: schedule.DurationMinutes,
			})
		}
	}

	sort.SliceStable(classes, func(i, j int) bool {
		if classes[i].StartsAt.Equal(classes[j].StartsAt) {
			return classes[i].ScheduleID < classes[j].ScheduleID
		}
		return classes[i].StartsAt.Before(classes[j].StartsAt)
	})
	if len(classes) > upcomingLimit {
		classes = classes[:upcomingLimit]
	}
	return
}

// firstOccurrence finds the first class start after now that lies inside the
// schedule validity window.
func (s *ScheduleService) firstOccurrence(pattern recurrence.Pattern, schedule persistence.Schedule, now time.Time) (time.Time, bool) {
	from := now
	startOfValidity := time.Date(schedule.StartDate.Year(), schedule.StartDate.Month(), schedule.StartDate.Day(), 0, 0, 0, 0, s.engine.Location())
	if startOfValidity.After(from) {
		from = startOfValidity.Add(-time.Second)
	}
	next, ok := s.engine.NextOccurrence(pattern, from)
	if !ok || !schedule.CoversDate(s.engine.DateOf(next)) {
		return time.Time{}, false
	}
	return next, true
}

func validateScheduleInput(input ScheduleInput) (recurrence.Pattern, *ValidationError) {
	vErr := &ValidationError{}

	teacherID := strings.TrimSpace(input.TeacherID)
	studentID := strings.TrimSpace(input.StudentID)
	if teacherID == "" {
		vErr.add("teacher_id", "teacher is required")
	}
	if studentID == "" {
		vErr.add("student_id", "student is required")
	}
	if teacherID != "" && teacherID == studentID {
		vErr.add("student_id", "student must differ from teacher")
	}
	if strings.TrimSpace(input.Subject) == "" {
		vErr.add("subject", "subject is required")
	}
	if input.ClassesPerWeek < 1 || input.ClassesPerWeek > 7 {
		vErr.add("classes_per_week", "classes per week must be between 1 and 7")
	} else if len(input.ClassDays) != input.ClassesPerWeek {
		vErr.add("class_days", fmt.Sprintf("exactly %d class days are required", input.ClassesPerWeek))
	}
	if input.DurationMinutes <= 0 || input.DurationMinutes > maxDurationMinutes {
		vErr.add("duration_minutes", "duration must be between 1 and 480 minutes")
	}
	validatePrices(vErr, input.WeeklyPrice, input.MonthlyPrice)
	if input.EndDate != nil && dateOnly(*input.EndDate).Before(dateOnly(input.StartDate)) {
		vErr.add("end_date", "end date must not be before start date")
	}

	pattern, err := recurrence.NewPattern(input.ClassDays, input.ClassTimes)
	if err != nil {
		vErr.merge(patternValidation(err))
	}
	return pattern, vErr
}

// validatePrices requires both plans to cost something, since a purchase is
// only accepted with a positive amount equal to the plan price.
func validatePrices(vErr *ValidationError, weekly, monthly int64) {
	if weekly <= 0 {
		vErr.add("weekly_price", "price must be positive")
	}
	if monthly <= 0 {
		vErr.add("monthly_price", "price must be positive")
	}
}

// patternValidation attributes each pattern problem to the request field that caused it.
func patternValidation(err error) *ValidationError {
	vErr := &ValidationError{}
	errs := []error{err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	}
	for _, e := range errs {
		field := "class_days"
		if errors.Is(e, recurrence.ErrMissingTime) || errors.Is(e, recurrence.ErrUnexpectedTime) || errors.Is(e, recurrence.ErrInvalidTimeOfDay) {
			field = "class_times"
		}
		message := e.Error()
		if existing, ok := vErr.FieldErrors[field]; ok {
			message = existing + "; " + message
			delete(vErr.FieldErrors, field)
		}
		vErr.add(field, message)
	}
	return vErr
}

// scheduleFilterFor scopes queries to what the principal may see.
func scheduleFilterFor(principal Principal) (persistence.ScheduleFilter, bool) {
	switch principal.Role {
	case RoleAdmin:
		return persistence.ScheduleFilter{}, true
	case RoleTeacher:
		return persistence.ScheduleFilter{TeacherID: principal.UserID}, true
	case RoleStudent:
		return persistence.ScheduleFilter{StudentID: principal.UserID}, true
	}
	return persistence.ScheduleFilter{}, false
}

func canView(principal Principal, schedule persistence.Schedule) bool {
	return principal.IsAdmin() || principal.UserID == schedule.TeacherID || principal.UserID == schedule.StudentID
}

func meetingRoomPayload(schedule persistence.Schedule, session persistence.Session) outbox.MeetingRoomPayload {
	return outbox.MeetingRoomPayload{
		SessionID:       session.ID,
		ScheduleID:      schedule.ID,
		Topic:           schedule.Subject,
		StartsAt:        session.ScheduledAt,
		DurationMinutes: session.DurationMinutes,
		HostID:          schedule.TeacherID,
		GuestID:         schedule.StudentID,
	}
}

func enqueue(ctx context.Context, tx persistence.OutboxRepository, events *outbox.Builder) error {
	list, err := events.Events()
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return nil
	}
	return tx.EnqueueEvents(ctx, list...)
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func formatStart(t time.Time) string {
	return t.Format("Mon 02 Jan 2006 15:04 MST")
}
