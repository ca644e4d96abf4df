package sqlstore

import (
	"context"
	"time"

	"github.com/happiestt-talha/pentutor-api/internal/persistence"
)

const subscriptionColumns = `sub.id, sub.schedule_id, sub.student_id, sub.type, sub.amount_paid, sub.quota,
	sub.consumed, sub.start_date, sub.end_date, sub.status, sub.created_at, sub.updated_at`

// CreateSubscription inserts a subscription.
func (s *Store) CreateSubscription(ctx context.Context, subscription persistence.Subscription) error {
	if subscription.ID == "" || subscription.ScheduleID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := s.exec(ctx, `
		INSERT INTO subscriptions (id, schedule_id, student_id, type, amount_paid, quota, consumed,
			start_date, end_date, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		subscription.ID,
		subscription.ScheduleID,
		subscription.StudentID,
		string(subscription.Type),
		subscription.AmountPaid,
		subscription.Quota,
		subscription.Consumed,
		formatDate(subscription.StartDate),
		formatDate(subscription.EndDate),
		string(subscription.Status),
		formatTimestamp(subscription.CreatedAt),
		formatTimestamp(subscription.UpdatedAt),
	)
	return err
}

// GetSubscription loads a subscription by id.
func (s *Store) GetSubscription(ctx context.Context, id string) (persistence.Subscription, error) {
	row := s.queryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions sub WHERE sub.id = ?`, id)
	subscription, err := scanSubscription(row)
	if err != nil {
		return persistence.Subscription{}, notFoundOr(err)
	}
	return subscription, nil
}

// ListSubscriptions returns subscriptions newest first.
func (s *Store) ListSubscriptions(ctx context.Context, filter persistence.SubscriptionFilter) ([]persistence.Subscription, error) {
	where := &whereBuilder{}
	if filter.ScheduleID != "" {
		where.add("sub.schedule_id = ?", filter.ScheduleID)
	}
	if filter.StudentID != "" {
		where.add("sub.student_id = ?", filter.StudentID)
	}
	if filter.TeacherID != "" {
		where.add("sc.teacher_id = ?", filter.TeacherID)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			statuses[i] = string(status)
		}
		where.in("sub.status", statuses)
	}
	if filter.EndsBefore != nil {
		where.add("sub.end_date < ?", formatDate(*filter.EndsBefore))
	}
	return s.listSubscriptions(ctx, where, "sub.created_at DESC, sub.id DESC")
}

// CoveringSubscriptions returns subscriptions whose window contains day, newest first.
func (s *Store) CoveringSubscriptions(ctx context.Context, scheduleID string, day time.Time) ([]persistence.Subscription, error) {
	where := &whereBuilder{}
	date := formatDate(day)
	where.add("sub.schedule_id = ?", scheduleID)
	where.add("sub.start_date <= ?", date)
	where.add("sub.end_date >= ?", date)
	return s.listSubscriptions(ctx, where, "sub.created_at DESC, sub.id DESC")
}

// ConsumeClass performs the attend-class read-check-write as one statement.
// Only an active, unexpired subscription with quota left is touched; reaching
// the quota flips the status to expired in the same write.
func (s *Store) ConsumeClass(ctx context.Context, id string, today, at time.Time) (bool, error) {
	return s.execAffected(ctx, `
		UPDATE subscriptions SET
			consumed = consumed + 1,
			status = CASE WHEN consumed + 1 >= quota THEN 'expired' ELSE status END,
			updated_at = ?
		WHERE id = ? AND status = 'active' AND consumed < quota AND end_date >= ?`,
		formatTimestamp(at), id, formatDate(today))
}

// ExpireSubscription expires an active subscription whose window ended before today.
func (s *Store) ExpireSubscription(ctx context.Context, id string, today, at time.Time) (bool, error) {
	return s.execAffected(ctx, `
		UPDATE subscriptions SET status = 'expired', updated_at = ?
		WHERE id = ? AND status = 'active' AND end_date < ?`,
		formatTimestamp(at), id, formatDate(today))
}

func (s *Store) listSubscriptions(ctx context.Context, where *whereBuilder, orderBy string) ([]persistence.Subscription, error) {
	rows, err := s.query(ctx, `SELECT `+subscriptionColumns+`
		FROM subscriptions sub JOIN schedules sc ON sc.id = sub.schedule_id`+where.String()+` ORDER BY `+orderBy, where.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subscriptions := make([]persistence.Subscription, 0)
	for rows.Next() {
		subscription, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subscriptions = append(subscriptions, subscription)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return subscriptions, nil
}

func scanSubscription(row rowScanner) (persistence.Subscription, error) {
	var (
		subscription persistence.Subscription
		kind, status string
		startDate    string
		endDate      string
		createdAt    string
		updatedAt    string
	)
	if err := row.Scan(
		&subscription.ID,
		&subscription.ScheduleID,
		&subscription.StudentID,
		&kind,
		&subscription.AmountPaid,
		&subscription.Quota,
		&subscription.Consumed,
		&startDate,
		&endDate,
		&status,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.Subscription{}, err
	}
	subscription.Type = persistence.SubscriptionType(kind)
	subscription.Status = persistence.SubscriptionStatus(status)

	var err error
	if subscription.StartDate, err = parseDate(startDate); err != nil {
		return persistence.Subscription{}, err
	}
	if subscription.EndDate, err = parseDate(endDate); err != nil {
		return persistence.Subscription{}, err
	}
	if subscription.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return persistence.Subscription{}, err
	}
	if subscription.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return persistence.Subscription{}, err
	}
	return subscription, nil
}
