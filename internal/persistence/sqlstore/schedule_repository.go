package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/happiestt-talha/pentutor-api/internal/persistence"
)

const scheduleColumns = `id, teacher_id, student_id, subject, classes_per_week, class_days, class_times,
	duration_minutes, weekly_price, monthly_price, is_active, demo_completed, demo_date,
	start_date, end_date, created_at, updated_at`

// CreateSchedule inserts a schedule. The (teacher, student, subject) triple is
// unique; a second insert fails with persistence.ErrDuplicate.
func (s *Store) CreateSchedule(ctx context.Context, schedule persistence.Schedule) error {
	if schedule.ID == "" || schedule.TeacherID == "" || schedule.StudentID == "" {
		return persistence.ErrConstraintViolation
	}
	days, err := encodeJSON(schedule.ClassDays)
	if err != nil {
		return fmt.Errorf("encode class days: %w", err)
	}
	times, err := encodeJSON(schedule.ClassTimes)
	if err != nil {
		return fmt.Errorf("encode class times: %w", err)
	}

	_, err = s.exec(ctx, `
		INSERT INTO schedules (`+scheduleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		schedule.ID,
		schedule.TeacherID,
		schedule.StudentID,
		schedule.Subject,
		schedule.ClassesPerWeek,
		days,
		times,
		schedule.DurationMinutes,
		schedule.WeeklyPrice,
		schedule.MonthlyPrice,
		boolInt(schedule.IsActive),
		boolInt(schedule.DemoCompleted),
		nullTimestamp(schedule.DemoDate),
		formatDate(schedule.StartDate),
		nullDate(schedule.EndDate),
		formatTimestamp(schedule.CreatedAt),
		formatTimestamp(schedule.UpdatedAt),
	)
	return err
}

// GetSchedule loads a schedule by id.
func (s *Store) GetSchedule(ctx context.Context, id string) (persistence.Schedule, error) {
	row := s.queryRow(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
	schedule, err := scanSchedule(row)
	if err != nil {
		return persistence.Schedule{}, notFoundOr(err)
	}
	return schedule, nil
}

// ListSchedules returns schedules ordered by creation time.
func (s *Store) ListSchedules(ctx context.Context, filter persistence.ScheduleFilter) ([]persistence.Schedule, error) {
	where := &whereBuilder{}
	where.in("id", filter.IDs)
	if filter.TeacherID != "" {
		where.add("teacher_id = ?", filter.TeacherID)
	}
	if filter.StudentID != "" {
		where.add("student_id = ?", filter.StudentID)
	}
	if filter.ActiveOnly {
		where.add("is_active = 1")
	}

	rows, err := s.query(ctx, `SELECT `+scheduleColumns+` FROM schedules`+where.String()+` ORDER BY created_at, id`, where.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	schedules := make([]persistence.Schedule, 0)
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, schedule)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return schedules, nil
}

// SetScheduleActive toggles whether the materializer expands the schedule.
func (s *Store) SetScheduleActive(ctx context.Context, id string, active bool, at time.Time) error {
	changed, err := s.execAffected(ctx, `UPDATE schedules SET is_active = ?, updated_at = ? WHERE id = ?`,
		boolInt(active), formatTimestamp(at), id)
	if err != nil {
		return err
	}
	if !changed {
		return persistence.ErrNotFound
	}
	return nil
}

// UpdateSchedule stores edited terms. Participants, subject, duration and the
// demo state are not editable and are left untouched.
func (s *Store) UpdateSchedule(ctx context.Context, schedule persistence.Schedule) error {
	days, err := encodeJSON(schedule.ClassDays)
	if err != nil {
		return fmt.Errorf("encode class days: %w", err)
	}
	times, err := encodeJSON(schedule.ClassTimes)
	if err != nil {
		return fmt.Errorf("encode class times: %w", err)
	}

	changed, err := s.execAffected(ctx, `
		UPDATE schedules SET classes_per_week = ?, class_days = ?, class_times = ?,
			weekly_price = ?, monthly_price = ?, is_active = ?, end_date = ?, updated_at = ?
		WHERE id = ?`,
		schedule.ClassesPerWeek,
		days,
		times,
		schedule.WeeklyPrice,
		schedule.MonthlyPrice,
		boolInt(schedule.IsActive),
		nullDate(schedule.EndDate),
		formatTimestamp(schedule.UpdatedAt),
		schedule.ID,
	)
	if err != nil {
		return err
	}
	if !changed {
		return persistence.ErrNotFound
	}
	return nil
}

// MarkDemoCompleted records the end of the free trial exactly once.
func (s *Store) MarkDemoCompleted(ctx context.Context, id string, at time.Time) (bool, error) {
	return s.execAffected(ctx, `
		UPDATE schedules SET demo_completed = 1, demo_date = ?, updated_at = ?
		WHERE id = ? AND demo_completed = 0`,
		formatTimestamp(at), formatTimestamp(at), id)
}

func scanSchedule(row rowScanner) (persistence.Schedule, error) {
	var (
		schedule      persistence.Schedule
		days, times   string
		isActive      int
		demoCompleted int
		demoDate      sql.NullString
		startDate     string
		endDate       sql.NullString
		createdAt     string
		updatedAt     string
	)
	if err := row.Scan(
		&schedule.ID,
		&schedule.TeacherID,
		&schedule.StudentID,
		&schedule.Subject,
		&schedule.ClassesPerWeek,
		&days,
		&times,
		&schedule.DurationMinutes,
		&schedule.WeeklyPrice,
		&schedule.MonthlyPrice,
		&isActive,
		&demoCompleted,
		&demoDate,
		&startDate,
		&endDate,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.Schedule{}, err
	}

	if err := json.Unmarshal([]byte(days), &schedule.ClassDays); err != nil {
		return persistence.Schedule{}, fmt.Errorf("decode class days: %w", err)
	}
	if err := json.Unmarshal([]byte(times), &schedule.ClassTimes); err != nil {
		return persistence.Schedule{}, fmt.Errorf("decode class times: %w", err)
	}
	schedule.IsActive = isActive == 1
	schedule.DemoCompleted = demoCompleted == 1

	var err error
	if schedule.DemoDate, err = parseNullTimestamp(demoDate); err != nil {
		return persistence.Schedule{}, err
	}
	if schedule.StartDate, err = parseDate(startDate); err != nil {
		return persistence.Schedule{}, err
	}
	if schedule.EndDate, err = parseNullDate(endDate); err != nil {
		return persistence.Schedule{}, err
	}
	if schedule.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return persistence.Schedule{}, err
	}
	if schedule.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return persistence.Schedule{}, err
	}
	return schedule, nil
}
