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

// MeetingRooms provisions rooms on the external meeting service.
type MeetingRooms interface {
	CreateRoom(ctx context.Context, request outbox.MeetingRoomPayload) (string, error)
}

// AttendancePolicy holds the time windows used by the attendance jobs.
type AttendancePolicy struct {
	MissedGrace  time.Duration
	ReminderLead time.Duration
	Retention    time.Duration
}

// DefaultAttendancePolicy returns the production windows.
func DefaultAttendancePolicy() AttendancePolicy {
	return AttendancePolicy{
		MissedGrace:  15 * time.Minute,
		ReminderLead: time.Hour,
		Retention:    90 * 24 * time.Hour,
	}
}

// AttendanceService records joins, completes sessions and runs the
// attendance sweeps.
type AttendanceService struct {
	store       persistence.Store
	gate        *AccessGate
	rooms       MeetingRooms
	engine      *recurrence.Engine
	policy      AttendancePolicy
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewAttendanceService constructs an attendance service.
func NewAttendanceService(store persistence.Store, gate *AccessGate, rooms MeetingRooms, engine *recurrence.Engine, policy AttendancePolicy, idGenerator func() string, now func() time.Time) *AttendanceService {
	return NewAttendanceServiceWithLogger(store, gate, rooms, engine, policy, idGenerator, now, nil)
}

// NewAttendanceServiceWithLogger constructs an attendance service with a specified logger.
func NewAttendanceServiceWithLogger(store persistence.Store, gate *AccessGate, rooms MeetingRooms, engine *recurrence.Engine, policy AttendancePolicy, idGenerator func() string, now func() time.Time, logger *slog.Logger) *AttendanceService {
	if engine == nil {
		engine = recurrence.NewEngine(time.UTC)
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if gate == nil {
		gate = NewAccessGate(store, engine, now)
	}
	defaults := DefaultAttendancePolicy()
	if policy.MissedGrace <= 0 {
		policy.MissedGrace = defaults.MissedGrace
	}
	if policy.ReminderLead <= 0 {
		policy.ReminderLead = defaults.ReminderLead
	}
	if policy.Retention <= 0 {
		policy.Retention = defaults.Retention
	}
	return &AttendanceService{
		store:       store,
		gate:        gate,
		rooms:       rooms,
		engine:      engine,
		policy:      policy,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *AttendanceService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AttendanceService", operation, attrs...)
}

// RequestJoin admits a participant through the access gate, records the join
// and returns the meeting room handle, provisioning it if needed. Joins are
// only accepted on the session's day and before it ends.
func (s *AttendanceService) RequestJoin(ctx context.Context, params JoinParams) (result JoinResult, err error) {
	if s == nil {
		err = fmt.Errorf("AttendanceService is nil")
		return
	}

	logger := s.loggerWith(ctx, "RequestJoin", "principal_id", params.Principal.UserID, "session_id", params.SessionID)
	defer func() {
		if err != nil {
			var denied *AccessDeniedError
			if errors.As(err, &denied) {
				logger.WarnContext(ctx, "join denied", "reason", string(denied.Reason))
				return
			}
			logger.ErrorContext(ctx, "failed to join session", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("side", string(result.Side), "room_ref", result.MeetingRoomRef).InfoContext(ctx, "session joined")
	}()

	session, schedule, err := s.load(ctx, params.SessionID)
	if err != nil {
		return
	}
	if session.Status.Terminal() {
		err = &StateError{Entity: "session", Status: string(session.Status), Operation: "join"}
		return
	}

	now := s.now()
	if opens, closes := s.joinWindow(session); now.Before(opens) || !now.Before(closes) {
		err = &AccessDeniedError{Reason: DenialOutsideWindow}
		return
	}

	var side persistence.Side
	side, err = s.gate.CanJoin(ctx, schedule, session, params.Principal)
	if err != nil {
		return
	}

	if side != "" {
		var ok bool
		ok, err = s.store.RecordJoin(ctx, session.ID, side, now)
		if err != nil {
			return
		}
		if !ok {
			err = s.stateErrorFor(ctx, s.store, session.ID, "join")
			return
		}
		session, err = s.store.GetSession(ctx, session.ID)
		if err != nil {
			err = mapRepoError(err, "session")
			return
		}
	}

	ref := session.MeetingRoomRef
	if ref == "" {
		ref, err = s.provisionRoom(ctx, schedule, session, now)
		if err != nil {
			return
		}
		session.MeetingRoomRef = ref
	}

	result = JoinResult{Session: session, Side: side, MeetingRoomRef: ref}
	return
}

// joinWindow spans the session's calendar day in the engine location up to
// its scheduled end.
func (s *AttendanceService) joinWindow(session persistence.Session) (time.Time, time.Time) {
	local := session.ScheduledAt.In(s.engine.Location())
	y, m, d := local.Date()
	opens := time.Date(y, m, d, 0, 0, 0, 0, local.Location())
	closes := session.ScheduledAt.Add(time.Duration(session.DurationMinutes) * time.Minute)
	return opens, closes
}

// RecordParticipantEvent applies a presence event from the meeting service.
// Joins reported for sessions that are already closed are ignored.
func (s *AttendanceService) RecordParticipantEvent(ctx context.Context, event ParticipantEvent) (err error) {
	if s == nil {
		return fmt.Errorf("AttendanceService is nil")
	}

	logger := s.loggerWith(ctx, "RecordParticipantEvent",
		"session_id", event.SessionID,
		"side", string(event.Side),
		"kind", string(event.Kind),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to record participant event", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	vErr := &ValidationError{}
	if event.SessionID == "" {
		vErr.add("session_id", "session is required")
	}
	if event.Side != persistence.SideStudent && event.Side != persistence.SideTeacher {
		vErr.add("side", "side must be student or teacher")
	}
	if event.Kind != ParticipantJoined && event.Kind != ParticipantLeft {
		vErr.add("kind", "kind must be join or leave")
	}
	if vErr.HasErrors() {
		return vErr
	}
	at := event.At
	if at.IsZero() {
		at = s.now()
	}

	var ok bool
	if event.Kind == ParticipantJoined {
		ok, err = s.store.RecordJoin(ctx, event.SessionID, event.Side, at)
	} else {
		ok, err = s.store.RecordLeave(ctx, event.SessionID, event.Side, at)
	}
	if err != nil {
		return err
	}
	if !ok {
		if _, getErr := s.store.GetSession(ctx, event.SessionID); getErr != nil {
			return mapRepoError(getErr, "session")
		}
		logger.DebugContext(ctx, "participant event ignored for closed session")
	}
	return nil
}

// CompleteSession closes a session. Regular sessions consume one class from
// their subscription; the demo session ends the free trial instead.
func (s *AttendanceService) CompleteSession(ctx context.Context, params CompleteSessionParams) (session persistence.Session, err error) {
	if s == nil {
		err = fmt.Errorf("AttendanceService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CompleteSession", "principal_id", params.Principal.UserID, "session_id", params.SessionID)
	var consumedFrom string
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to complete session", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("is_demo", session.IsDemo, "subscription_id", consumedFrom).InfoContext(ctx, "session completed")
	}()

	var schedule persistence.Schedule
	session, schedule, err = s.load(ctx, params.SessionID)
	if err != nil {
		return
	}
	if !params.Principal.IsAdmin() && params.Principal.UserID != schedule.TeacherID {
		err = ErrUnauthorized
		return
	}

	now := s.now()
	today := s.engine.DateOf(now)
	err = s.store.WithinTx(ctx, func(tx persistence.Repositories) error {
		ok, err := tx.TransitionSession(ctx, session.ID, persistence.ActiveSessionStatuses(), persistence.SessionCompleted, now)
		if err != nil {
			return err
		}
		if !ok {
			return s.stateErrorFor(ctx, tx, session.ID, "complete")
		}
		if params.TeacherNotes != "" || params.StudentFeedback != "" {
			if err := tx.UpdateSessionNotes(ctx, session.ID, params.TeacherNotes, params.StudentFeedback, now); err != nil {
				return mapRepoError(err, "session")
			}
		}

		events := outbox.NewBuilder(s.idGenerator, now)
		if !session.IsDemo {
			consumedFrom, err = s.consume(ctx, tx, schedule, session, today, now)
			if err != nil {
				return err
			}
		}
		// An unpaid class taken while the trial is pending uses up the trial.
		if session.IsDemo || consumedFrom == "" {
			marked, err := tx.MarkDemoCompleted(ctx, schedule.ID, now)
			if err != nil {
				return err
			}
			if marked {
				trialEnded(events, schedule)
			}
		}
		events.CloseMeeting(outbox.MeetingClosePayload{SessionID: session.ID, RoomRef: session.MeetingRoomRef}).
			Notify(outbox.NotificationPayload{
				RecipientID: schedule.StudentID,
				Category:    "session_completed",
				Title:       "Class completed",
				Message:     fmt.Sprintf("Your %s class on %s is complete.", schedule.Subject, formatStart(session.ScheduledAt)),
				SessionID:   session.ID,
				ScheduleID:  schedule.ID,
			})
		return enqueue(ctx, tx, events)
	})
	if err != nil {
		return
	}

	session, err = s.store.GetSession(ctx, session.ID)
	if err != nil {
		err = mapRepoError(err, "session")
	}
	return
}

// CancelSession cancels a session that has not finished. Administrators only.
func (s *AttendanceService) CancelSession(ctx context.Context, params CancelSessionParams) (err error) {
	if s == nil {
		return fmt.Errorf("AttendanceService is nil")
	}

	logger := s.loggerWith(ctx, "CancelSession", "principal_id", params.Principal.UserID, "session_id", params.SessionID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to cancel session", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "session cancelled")
	}()

	if !params.Principal.IsAdmin() {
		return ErrUnauthorized
	}
	session, schedule, err := s.load(ctx, params.SessionID)
	if err != nil {
		return err
	}

	now := s.now()
	return s.store.WithinTx(ctx, func(tx persistence.Repositories) error {
		ok, err := tx.TransitionSession(ctx, session.ID, persistence.ActiveSessionStatuses(), persistence.SessionCancelled, now)
		if err != nil {
			return err
		}
		if !ok {
			return s.stateErrorFor(ctx, tx, session.ID, "cancel")
		}
		message := fmt.Sprintf("The %s class on %s was cancelled.", schedule.Subject, formatStart(session.ScheduledAt))
		if params.Reason != "" {
			message += " Reason: " + params.Reason
		}
		events := outbox.NewBuilder(s.idGenerator, now).
			CloseMeeting(outbox.MeetingClosePayload{SessionID: session.ID, RoomRef: session.MeetingRoomRef})
		for _, recipient := range []string{schedule.StudentID, schedule.TeacherID} {
			events.Notify(outbox.NotificationPayload{
				RecipientID: recipient,
				Category:    "session_cancelled",
				Title:       "Class cancelled",
				Message:     message,
				SessionID:   session.ID,
				ScheduleID:  schedule.ID,
			})
		}
		return enqueue(ctx, tx, events)
	})
}

// ListSessions returns sessions visible to the principal in chronological order.
func (s *AttendanceService) ListSessions(ctx context.Context, params ListSessionsParams) (sessions []persistence.Session, err error) {
	if s == nil {
		err = fmt.Errorf("AttendanceService is nil")
		return
	}
	filter := persistence.SessionFilter{
		ScheduleID: params.ScheduleID,
		Statuses:   params.Statuses,
		From:       params.From,
		To:         params.To,
		Limit:      params.Limit,
	}
	switch params.Principal.Role {
	case RoleAdmin:
	case RoleTeacher:
		filter.TeacherID = params.Principal.UserID
	case RoleStudent:
		filter.StudentID = params.Principal.UserID
	default:
		err = ErrUnauthorized
		return
	}
	sessions, err = s.store.ListSessions(ctx, filter)
	return
}

// SweepMissed marks scheduled sessions nobody joined within the grace period
// as missed. Each row is guarded, so overlapping sweeps notify once.
func (s *AttendanceService) SweepMissed(ctx context.Context) (missed int, err error) {
	if s == nil {
		err = fmt.Errorf("AttendanceService is nil")
		return
	}

	logger := s.loggerWith(ctx, "SweepMissed")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "missed sweep incomplete", "error", err, "error_kind", ErrorKind(err), "missed", missed)
			return
		}
		if missed > 0 {
			logger.With("missed", missed).InfoContext(ctx, "sessions marked missed")
		}
	}()

	now := s.now()
	cutoff := now.Add(-s.policy.MissedGrace)
	var candidates []persistence.Session
	candidates, err = s.store.ListSessions(ctx, persistence.SessionFilter{
		Statuses: []persistence.SessionStatus{persistence.SessionScheduled, persistence.SessionRescheduled},
		To:       &cutoff,
	})
	if err != nil {
		return
	}
	var schedules map[string]persistence.Schedule
	schedules, err = s.schedulesFor(ctx, candidates)
	if err != nil {
		return
	}

	var errs []error
	for _, session := range candidates {
		if session.StudentJoined || session.TeacherJoined {
			continue
		}
		schedule := schedules[session.ScheduleID]
		changed := false
		txErr := s.store.WithinTx(ctx, func(tx persistence.Repositories) error {
			ok, err := tx.MarkMissed(ctx, session.ID, cutoff, now)
			if err != nil || !ok {
				return err
			}
			changed = true
			events := outbox.NewBuilder(s.idGenerator, now).
				CloseMeeting(outbox.MeetingClosePayload{SessionID: session.ID, RoomRef: session.MeetingRoomRef}).
				Admin(outbox.AdminNoticePayload{
					Category: "session_missed",
					Title:    "Missed class",
					Message: fmt.Sprintf("Session %s (%s, teacher %s, student %s) scheduled %s was not attended.",
						session.ID, schedule.Subject, schedule.TeacherID, schedule.StudentID, formatStart(session.ScheduledAt)),
				})
			return enqueue(ctx, tx, events)
		})
		if txErr != nil {
			errs = append(errs, fmt.Errorf("mark session %s missed: %w", session.ID, txErr))
			continue
		}
		if changed {
			missed++
		}
	}
	err = errors.Join(errs...)
	return
}

// SendReminders emails both participants once for each session starting within the reminder lead.
func (s *AttendanceService) SendReminders(ctx context.Context) (sent int, err error) {
	if s == nil {
		err = fmt.Errorf("AttendanceService is nil")
		return
	}

	logger := s.loggerWith(ctx, "SendReminders")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "reminders incomplete", "error", err, "error_kind", ErrorKind(err), "sent", sent)
			return
		}
		if sent > 0 {
			logger.With("sent", sent).InfoContext(ctx, "reminders queued")
		}
	}()

	now := s.now()
	until := now.Add(s.policy.ReminderLead)
	var upcoming []persistence.Session
	upcoming, err = s.store.ListSessions(ctx, persistence.SessionFilter{
		Statuses: []persistence.SessionStatus{persistence.SessionScheduled, persistence.SessionRescheduled},
		From:     &now,
		To:       &until,
	})
	if err != nil {
		return
	}
	var schedules map[string]persistence.Schedule
	schedules, err = s.schedulesFor(ctx, upcoming)
	if err != nil {
		return
	}

	var errs []error
	for _, session := range upcoming {
		if session.ReminderSentAt != nil {
			continue
		}
		schedule := schedules[session.ScheduleID]
		claimed := false
		txErr := s.store.WithinTx(ctx, func(tx persistence.Repositories) error {
			ok, err := tx.MarkReminderSent(ctx, session.ID, now)
			if err != nil || !ok {
				return err
			}
			claimed = true
			body := fmt.Sprintf("Your %s class starts at %s.", schedule.Subject, formatStart(session.ScheduledAt))
			events := outbox.NewBuilder(s.idGenerator, now)
			for _, recipient := range []string{schedule.StudentID, schedule.TeacherID} {
				events.Email(outbox.EmailPayload{RecipientID: recipient, Subject: "Class reminder", Body: body})
			}
			return enqueue(ctx, tx, events)
		})
		if txErr != nil {
			errs = append(errs, fmt.Errorf("remind session %s: %w", session.ID, txErr))
			continue
		}
		if claimed {
			sent++
		}
	}
	err = errors.Join(errs...)
	return
}

// CleanupRetention deletes terminal sessions older than the retention window.
func (s *AttendanceService) CleanupRetention(ctx context.Context) (deleted int64, err error) {
	if s == nil {
		err = fmt.Errorf("AttendanceService is nil")
		return
	}
	logger := s.loggerWith(ctx, "CleanupRetention")
	cutoff := s.now().Add(-s.policy.Retention)
	err = s.store.WithinTx(ctx, func(tx persistence.Repositories) error {
		n, err := tx.DeleteTerminalSessionsBefore(ctx, cutoff)
		deleted = n
		return err
	})
	if err != nil {
		logger.ErrorContext(ctx, "retention cleanup failed", "error", err, "error_kind", ErrorKind(err))
		return 0, err
	}
	if deleted > 0 {
		logger.With("deleted", deleted, "cutoff", cutoff).InfoContext(ctx, "old sessions deleted")
	}
	return deleted, nil
}

// consume takes one class for a completed regular session. The linked
// subscription is tried first, then other active subscriptions covering the
// session date. Before the trial ends a session without any subscription is
// completed free.
func (s *AttendanceService) consume(ctx context.Context, tx persistence.Repositories, schedule persistence.Schedule, session persistence.Session, today, now time.Time) (string, error) {
	candidates := make([]string, 0, 2)
	if session.SubscriptionID != nil {
		candidates = append(candidates, *session.SubscriptionID)
	}
	covering, err := tx.CoveringSubscriptions(ctx, schedule.ID, s.engine.DateOf(session.ScheduledAt))
	if err != nil {
		return "", err
	}
	for _, sub := range covering {
		if sub.Status == persistence.SubscriptionActive && (session.SubscriptionID == nil || sub.ID != *session.SubscriptionID) {
			candidates = append(candidates, sub.ID)
		}
	}

	if len(candidates) == 0 {
		if !schedule.DemoCompleted {
			return "", nil
		}
		return "", &StateError{Entity: "session", Status: "unpaid", Operation: "complete"}
	}

	for _, id := range candidates {
		ok, err := tx.ConsumeClass(ctx, id, today, now)
		if err != nil {
			return "", err
		}
		if !ok {
			continue
		}
		if session.SubscriptionID == nil || *session.SubscriptionID != id {
			if err := tx.SetSessionSubscription(ctx, session.ID, id, now); err != nil {
				return "", mapRepoError(err, "session")
			}
		}
		return id, nil
	}
	return "", &StateError{Entity: "subscription", Status: "exhausted", Operation: "consume a class from"}
}

func (s *AttendanceService) provisionRoom(ctx context.Context, schedule persistence.Schedule, session persistence.Session, now time.Time) (string, error) {
	if s.rooms == nil {
		return "", ErrMeetingUnavailable
	}
	ref, err := s.rooms.CreateRoom(ctx, meetingRoomPayload(schedule, session))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMeetingUnavailable, err)
	}
	stored, err := s.store.SetMeetingRoom(ctx, session.ID, ref, now)
	if err != nil {
		return "", err
	}
	if stored {
		return ref, nil
	}
	// Another caller stored a room first; theirs is canonical.
	current, err := s.store.GetSession(ctx, session.ID)
	if err != nil {
		return "", mapRepoError(err, "session")
	}
	return current.MeetingRoomRef, nil
}

func (s *AttendanceService) load(ctx context.Context, sessionID string) (persistence.Session, persistence.Schedule, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return persistence.Session{}, persistence.Schedule{}, mapRepoError(err, "session")
	}
	schedule, err := s.store.GetSchedule(ctx, session.ScheduleID)
	if err != nil {
		return persistence.Session{}, persistence.Schedule{}, mapRepoError(err, "schedule")
	}
	return session, schedule, nil
}

func (s *AttendanceService) stateErrorFor(ctx context.Context, repo persistence.SessionRepository, sessionID, operation string) error {
	current, err := repo.GetSession(ctx, sessionID)
	if err != nil {
		return mapRepoError(err, "session")
	}
	return &StateError{Entity: "session", Status: string(current.Status), Operation: operation}
}

func (s *AttendanceService) schedulesFor(ctx context.Context, sessions []persistence.Session) (map[string]persistence.Schedule, error) {
	return loadSchedules(ctx, s.store, sessions)
}

func loadSchedules(ctx context.Context, repo persistence.ScheduleRepository, sessions []persistence.Session) (map[string]persistence.Schedule, error) {
	byID := make(map[string]persistence.Schedule)
	if len(sessions) == 0 {
		return byID, nil
	}
	ids := make([]string, 0, len(sessions))
	seen := make(map[string]struct{}, len(sessions))
	for _, session := range sessions {
		if _, ok := seen[session.ScheduleID]; ok {
			continue
		}
		seen[session.ScheduleID] = struct{}{}
		ids = append(ids, session.ScheduleID)
	}
	schedules, err := repo.ListSchedules(ctx, persistence.ScheduleFilter{IDs: ids})
	if err != nil {
		return nil, err
	}
	for _, schedule := range schedules {
		byID[schedule.ID] = schedule
	}
	return byID, nil
}

// trialEnded appends the messages sent when a schedule's demo class is done.
func trialEnded(events *outbox.Builder, schedule persistence.Schedule) {
	events.Notify(outbox.NotificationPayload{
		RecipientID: schedule.StudentID,
		Category:    "trial_ended",
		Title:       "Your free demo is complete",
		Message:     fmt.Sprintf("Subscribe to continue your %s classes.", schedule.Subject),
		ScheduleID:  schedule.ID,
	}).
		Email(outbox.EmailPayload{
			RecipientID: schedule.StudentID,
			Subject:     "Continue your classes",
			Body:        fmt.Sprintf("Your free %s demo class is complete. Buy a weekly or monthly subscription to keep learning.", schedule.Subject),
		}).
		Admin(outbox.AdminNoticePayload{
			Category: "demo_completed",
			Title:    "Demo completed",
			Message:  fmt.Sprintf("Schedule %s (%s) finished its demo class.", schedule.ID, schedule.Subject),
		})
}
