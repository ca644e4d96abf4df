package sqlstore

import (
	"context"
	"database/sql"

	"github.com/happiestt-talha/pentutor-api/internal/persistence"
)

// CreatePayment inserts a payment record. The transaction reference is unique.
func (s *Store) CreatePayment(ctx context.Context, payment persistence.Payment) error {
	if payment.ID == "" || payment.TransactionRef == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := s.exec(ctx, `
		INSERT INTO payments (id, subscription_id, schedule_id, student_id, amount, method, transaction_ref,
			status, failure_reason, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID,
		payment.SubscriptionID,
		payment.ScheduleID,
		payment.StudentID,
		payment.Amount,
		payment.Method,
		payment.TransactionRef,
		string(payment.Status),
		payment.FailureReason,
		formatTimestamp(payment.CreatedAt),
		nullTimestamp(payment.CompletedAt),
	)
	return err
}

// ListPayments returns payments oldest first.
func (s *Store) ListPayments(ctx context.Context, filter persistence.PaymentFilter) ([]persistence.Payment, error) {
	where := &whereBuilder{}
	if filter.ScheduleID != "" {
		where.add("p.schedule_id = ?", filter.ScheduleID)
	}
	if filter.TeacherID != "" {
		where.add("sc.teacher_id = ?", filter.TeacherID)
	}
	if filter.StudentID != "" {
		where.add("p.student_id = ?", filter.StudentID)
	}
	if filter.Status != "" {
		where.add("p.status = ?", string(filter.Status))
	}
	if filter.From != nil {
		where.add("p.created_at >= ?", formatTimestamp(*filter.From))
	}
	if filter.To != nil {
		where.add("p.created_at < ?", formatTimestamp(*filter.To))
	}

	rows, err := s.query(ctx, `
		SELECT p.id, p.subscription_id, p.schedule_id, p.student_id, p.amount, p.method, p.transaction_ref,
			p.status, p.failure_reason, p.created_at, p.completed_at
		FROM payments p JOIN schedules sc ON sc.id = p.schedule_id`+where.String()+`
		ORDER BY p.created_at, p.id`, where.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]persistence.Payment, 0)
	for rows.Next() {
		var (
			payment     persistence.Payment
			status      string
			createdAt   string
			completedAt sql.NullString
		)
		if err := rows.Scan(
			&payment.ID,
			&payment.SubscriptionID,
			&payment.ScheduleID,
			&payment.StudentID,
			&payment.Amount,
			&payment.Method,
			&payment.TransactionRef,
			&status,
			&payment.FailureReason,
			&createdAt,
			&completedAt,
		); err != nil {
			return nil, mapError(err)
		}
		payment.Status = persistence.PaymentStatus(status)
		if payment.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return nil, err
		}
		if payment.CompletedAt, err = parseNullTimestamp(completedAt); err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return payments, nil
}
