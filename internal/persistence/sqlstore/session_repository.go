package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/happiestt-talha/pentutor-api/internal/persistence"
)

const sessionColumns = `s.id, s.schedule_id, s.subscription_id, s.scheduled_at, s.actual_at, s.duration_minutes,
	s.status, s.is_demo, s.student_joined, s.teacher_joined, s.student_joined_at, s.teacher_joined_at,
	s.student_left_at, s.teacher_left_at, s.teacher_notes, s.student_feedback, s.meeting_room_ref,
	s.reminder_sent_at, s.created_at, s.updated_at, s.slot_at`

// InsertSession creates a session unless its slot is already taken, either
// by the session materialized for it or by another session rescheduled onto
// that time. A taken slot is not an error: it reports false so repeated
// materialization is idempotent. Other uniqueness failures (a second demo)
// surface as persistence.ErrDuplicate.
func (s *Store) InsertSession(ctx context.Context, session persistence.Session) (bool, error) {
	if session.ID == "" || session.ScheduleID == "" {
		return false, persistence.ErrConstraintViolation
	}
	status := session.Status
	if status == "" {
		status = persistence.SessionScheduled
	}
	slot := session.SlotAt
	if slot.IsZero() {
		slot = session.ScheduledAt
	}

	var occupied int
	err := s.queryRow(ctx, `
		SELECT COUNT(*) FROM sessions WHERE schedule_id = ? AND scheduled_at = ?`,
		session.ScheduleID, formatTimestamp(session.ScheduledAt)).Scan(&occupied)
	if err != nil {
		return false, mapError(err)
	}
	if occupied > 0 {
		return false, nil
	}

	return s.execAffected(ctx, `
		INSERT INTO sessions (id, schedule_id, subscription_id, scheduled_at, slot_at, duration_minutes, status,
			is_demo, meeting_room_ref, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (schedule_id, slot_at) DO NOTHING`,
		session.ID,
		session.ScheduleID,
		nullString(session.SubscriptionID),
		formatTimestamp(session.ScheduledAt),
		formatTimestamp(slot),
		session.DurationMinutes,
		string(status),
		boolInt(session.IsDemo),
		session.MeetingRoomRef,
		formatTimestamp(session.CreatedAt),
		formatTimestamp(session.UpdatedAt),
	)
}

// GetSession loads a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (persistence.Session, error) {
	row := s.queryRow(ctx, `SELECT `+sessionColumns+` FROM sessions s WHERE s.id = ?`, id)
	session, err := scanSession(row)
	if err != nil {
		return persistence.Session{}, notFoundOr(err)
	}
	return session, nil
}

// ListSessions returns sessions in chronological order.
func (s *Store) ListSessions(ctx context.Context, filter persistence.SessionFilter) ([]persistence.Session, error) {
	where := &whereBuilder{}
	if filter.ScheduleID != "" {
		where.add("s.schedule_id = ?", filter.ScheduleID)
	}
	if filter.TeacherID != "" {
		where.add("sc.teacher_id = ?", filter.TeacherID)
	}
	if filter.StudentID != "" {
		where.add("sc.student_id = ?", filter.StudentID)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			statuses[i] = string(status)
		}
		where.in("s.status", statuses)
	}
	if filter.From != nil {
		where.add("s.scheduled_at >= ?", formatTimestamp(*filter.From))
	}
	if filter.To != nil {
		where.add("s.scheduled_at < ?", formatTimestamp(*filter.To))
	}

	query := `SELECT ` + sessionColumns + ` FROM sessions s JOIN schedules sc ON sc.id = s.schedule_id` +
		where.String() + ` ORDER BY s.scheduled_at, s.id`
	args := where.args
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]persistence.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return sessions, nil
}

// HasDemoSession reports whether a demo session was ever created for the schedule.
func (s *Store) HasDemoSession(ctx context.Context, scheduleID string) (bool, error) {
	var count int
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM sessions WHERE schedule_id = ? AND is_demo = 1`, scheduleID).Scan(&count); err != nil {
		return false, mapError(err)
	}
	return count > 0, nil
}

// RecordJoin stamps one side's join. The side's timestamp only moves forward,
// actual_at keeps the earliest join of either side, and a waiting session
// becomes ongoing. Terminal sessions are left untouched and report false.
func (s *Store) RecordJoin(ctx context.Context, id string, side persistence.Side, at time.Time) (bool, error) {
	joined, joinedAt := "student_joined", "student_joined_at"
	if side == persistence.SideTeacher {
		joined, joinedAt = "teacher_joined", "teacher_joined_at"
	}
	ts := formatTimestamp(at)
	return s.execAffected(ctx, `
		UPDATE sessions SET
			`+joined+` = 1,
			`+joinedAt+` = CASE WHEN `+joinedAt+` IS NULL OR `+joinedAt+` < ? THEN ? ELSE `+joinedAt+` END,
			actual_at = CASE WHEN actual_at IS NULL OR actual_at > ? THEN ? ELSE actual_at END,
			status = CASE WHEN status IN ('scheduled', 'rescheduled') THEN 'ongoing' ELSE status END,
			updated_at = ?
		WHERE id = ? AND status IN ('scheduled', 'ongoing', 'rescheduled')`,
		ts, ts, ts, ts, ts, id)
}

// RecordLeave stamps one side's departure, keeping the latest timestamp.
func (s *Store) RecordLeave(ctx context.Context, id string, side persistence.Side, at time.Time) (bool, error) {
	leftAt := "student_left_at"
	if side == persistence.SideTeacher {
		leftAt = "teacher_left_at"
	}
	ts := formatTimestamp(at)
	return s.execAffected(ctx, `
		UPDATE sessions SET
			`+leftAt+` = CASE WHEN `+leftAt+` IS NULL OR `+leftAt+` < ? THEN ? ELSE `+leftAt+` END,
			updated_at = ?
		WHERE id = ?`,
		ts, ts, ts, id)
}

// TransitionSession moves a session to status `to` only if its current status is in from.
func (s *Store) TransitionSession(ctx context.Context, id string, from []persistence.SessionStatus, to persistence.SessionStatus, at time.Time) (bool, error) {
	where := &whereBuilder{}
	where.add("id = ?", id)
	statuses := make([]string, len(from))
	for i, status := range from {
		statuses[i] = string(status)
	}
	where.in("status", statuses)

	args := append([]any{string(to), formatTimestamp(at)}, where.args...)
	return s.execAffected(ctx, `UPDATE sessions SET status = ?, updated_at = ?`+where.String(), args...)
}

// UpdateSessionNotes stores teacher notes and student feedback; empty values keep the stored text.
func (s *Store) UpdateSessionNotes(ctx context.Context, id, teacherNotes, studentFeedback string, at time.Time) error {
	changed, err := s.execAffected(ctx, `
		UPDATE sessions SET
			teacher_notes = CASE WHEN ? = '' THEN teacher_notes ELSE ? END,
			student_feedback = CASE WHEN ? = '' THEN student_feedback ELSE ? END,
			updated_at = ?
		WHERE id = ?`,
		teacherNotes, teacherNotes, studentFeedback, studentFeedback, formatTimestamp(at), id)
	if err != nil {
		return err
	}
	if !changed {
		return persistence.ErrNotFound
	}
	return nil
}

// MoveSession sets a new start time and marks the session rescheduled. The
// original slot_at is kept. It reports false for terminal sessions and
// persistence.ErrDuplicate when another session already starts at that time.
func (s *Store) MoveSession(ctx context.Context, id string, scheduledAt time.Time, at time.Time) (bool, error) {
	return s.execAffected(ctx, `
		UPDATE sessions SET scheduled_at = ?, status = 'rescheduled', reminder_sent_at = NULL, updated_at = ?
		WHERE id = ? AND status IN ('scheduled', 'ongoing', 'rescheduled')`,
		formatTimestamp(scheduledAt), formatTimestamp(at), id)
}

// SetSessionSubscription links a session to the subscription that pays for it.
func (s *Store) SetSessionSubscription(ctx context.Context, id, subscriptionID string, at time.Time) error {
	changed, err := s.execAffected(ctx, `UPDATE sessions SET subscription_id = ?, updated_at = ? WHERE id = ?`,
		subscriptionID, formatTimestamp(at), id)
	if err != nil {
		return err
	}
	if !changed {
		return persistence.ErrNotFound
	}
	return nil
}

// AttachSubscription links unpaid, non-demo, not yet held sessions in [from, to) to a subscription.
func (s *Store) AttachSubscription(ctx context.Context, scheduleID, subscriptionID string, from, to time.Time, at time.Time) (int64, error) {
	return s.execCount(ctx, `
		UPDATE sessions SET subscription_id = ?, updated_at = ?
		WHERE schedule_id = ? AND subscription_id IS NULL AND is_demo = 0
			AND status IN ('scheduled', 'rescheduled')
			AND scheduled_at >= ? AND scheduled_at < ?`,
		subscriptionID, formatTimestamp(at), scheduleID, formatTimestamp(from), formatTimestamp(to))
}

// SetMeetingRoom records the external room reference once; later calls report false.
func (s *Store) SetMeetingRoom(ctx context.Context, id, ref string, at time.Time) (bool, error) {
	return s.execAffected(ctx, `
		UPDATE sessions SET meeting_room_ref = ?, updated_at = ?
		WHERE id = ? AND meeting_room_ref = ''`,
		ref, formatTimestamp(at), id)
}

// MarkMissed moves a scheduled or rescheduled, unattended session that started
// before cutoff to missed.
func (s *Store) MarkMissed(ctx context.Context, id string, cutoff, at time.Time) (bool, error) {
	return s.execAffected(ctx, `
		UPDATE sessions SET status = 'missed', updated_at = ?
		WHERE id = ? AND status IN ('scheduled', 'rescheduled') AND scheduled_at < ?
			AND student_joined = 0 AND teacher_joined = 0`,
		formatTimestamp(at), id, formatTimestamp(cutoff))
}

// MarkReminderSent claims the reminder for a session; false means it was already claimed.
func (s *Store) MarkReminderSent(ctx context.Context, id string, at time.Time) (bool, error) {
	return s.execAffected(ctx, `
		UPDATE sessions SET reminder_sent_at = ?, updated_at = ?
		WHERE id = ? AND reminder_sent_at IS NULL`,
		formatTimestamp(at), formatTimestamp(at), id)
}

// DeleteTerminalSessionsBefore removes completed, missed and cancelled
// sessions scheduled before cutoff together with their reschedule requests.
// Callers run it inside WithinTx so both deletes commit together.
func (s *Store) DeleteTerminalSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ts := formatTimestamp(cutoff)
	if _, err := s.exec(ctx, `
		DELETE FROM reschedule_requests WHERE session_id IN (
			SELECT id FROM sessions
			WHERE status IN ('completed', 'missed', 'cancelled') AND scheduled_at < ?
		)`, ts); err != nil {
		return 0, err
	}
	return s.execCount(ctx, `
		DELETE FROM sessions
		WHERE status IN ('completed', 'missed', 'cancelled') AND scheduled_at < ?`, ts)
}

func scanSession(row rowScanner) (persistence.Session, error) {
	var (
		session         persistence.Session
		subscriptionID  sql.NullString
		scheduledAt     string
		actualAt        sql.NullString
		status          string
		isDemo          int
		studentJoined   int
		teacherJoined   int
		studentJoinedAt sql.NullString
		teacherJoinedAt sql.NullString
		studentLeftAt   sql.NullString
		teacherLeftAt   sql.NullString
		reminderSentAt  sql.NullString
		createdAt       string
		updatedAt       string
		slotAt          string
	)
	if err := row.Scan(
		&session.ID,
		&session.ScheduleID,
		&subscriptionID,
		&scheduledAt,
		&actualAt,
		&session.DurationMinutes,
		&status,
		&isDemo,
		&studentJoined,
		&teacherJoined,
		&studentJoinedAt,
		&teacherJoinedAt,
		&studentLeftAt,
		&teacherLeftAt,
		&session.TeacherNotes,
		&session.StudentFeedback,
		&session.MeetingRoomRef,
		&reminderSentAt,
		&createdAt,
		&updatedAt,
		&slotAt,
	); err != nil {
		return persistence.Session{}, err
	}

	session.SubscriptionID = stringPtr(subscriptionID)
	session.Status = persistence.SessionStatus(status)
	session.IsDemo = isDemo == 1
	session.StudentJoined = studentJoined == 1
	session.TeacherJoined = teacherJoined == 1

	var err error
	if session.ScheduledAt, err = parseTimestamp(scheduledAt); err != nil {
		return persistence.Session{}, err
	}
	if session.SlotAt, err = parseTimestamp(slotAt); err != nil {
		return persistence.Session{}, err
	}
	for _, field := range []struct {
		dst **time.Time
		src sql.NullString
	}{
		{&session.ActualAt, actualAt},
		{&session.StudentJoinedAt, studentJoinedAt},
		{&session.TeacherJoinedAt, teacherJoinedAt},
		{&session.StudentLeftAt, studentLeftAt},
		{&session.TeacherLeftAt, teacherLeftAt},
		{&session.ReminderSentAt, reminderSentAt},
	} {
		if *field.dst, err = parseNullTimestamp(field.src); err != nil {
			return persistence.Session{}, err
		}
	}
	if session.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return persistence.Session{}, err
	}
	if session.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return persistence.Session{}, err
	}
	return session, nil
}
