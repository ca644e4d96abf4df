package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/happiestt-talha/pentutor-api/internal/persistence"
)

// EnqueueEvents stores side effects for the dispatcher. Called inside the
// transaction that commits the state change they describe.
func (s *Store) EnqueueEvents(ctx context.Context, events ...persistence.OutboxEvent) error {
	for _, event := range events {
		if event.ID == "" || event.Kind == "" {
			return persistence.ErrConstraintViolation
		}
		next := event.NextAttemptAt
		if next.IsZero() {
			next = event.CreatedAt
		}
		if _, err := s.exec(ctx, `
			INSERT INTO outbox_events (id, kind, payload, attempts, next_attempt_at, created_at)
			VALUES (?, ?, ?, 0, ?, ?)`,
			event.ID, event.Kind, string(event.Payload), formatTimestamp(next), formatTimestamp(event.CreatedAt),
		); err != nil {
			return err
		}
	}
	return nil
}

// PendingEvents returns undispatched events due at now, oldest first.
func (s *Store) PendingEvents(ctx context.Context, now time.Time, limit int) ([]persistence.OutboxEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.query(ctx, `
		SELECT id, kind, payload, attempts, next_attempt_at, dispatched_at, last_error, created_at
		FROM outbox_events
		WHERE dispatched_at IS NULL AND next_attempt_at <= ?
		ORDER BY created_at, id
		LIMIT ?`, formatTimestamp(now), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]persistence.OutboxEvent, 0)
	for rows.Next() {
		var (
			event        persistence.OutboxEvent
			payload      string
			nextAttempt  string
			dispatchedAt sql.NullString
			createdAt    string
		)
		if err := rows.Scan(&event.ID, &event.Kind, &payload, &event.Attempts, &nextAttempt, &dispatchedAt, &event.LastError, &createdAt); err != nil {
			return nil, mapError(err)
		}
		event.Payload = []byte(payload)
		if event.NextAttemptAt, err = parseTimestamp(nextAttempt); err != nil {
			return nil, err
		}
		if event.DispatchedAt, err = parseNullTimestamp(dispatchedAt); err != nil {
			return nil, err
		}
		if event.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return events, nil
}

// MarkEventDispatched records successful delivery.
func (s *Store) MarkEventDispatched(ctx context.Context, id string, at time.Time) error {
	_, err := s.exec(ctx, `UPDATE outbox_events SET dispatched_at = ? WHERE id = ? AND dispatched_at IS NULL`,
		formatTimestamp(at), id)
	return err
}

// MarkEventFailed records a failed attempt and when to try again.
func (s *Store) MarkEventFailed(ctx context.Context, id string, attempts int, nextAttemptAt time.Time, lastError string) error {
	_, err := s.exec(ctx, `UPDATE outbox_events SET attempts = ?, next_attempt_at = ?, last_error = ? WHERE id = ?`,
		attempts, formatTimestamp(nextAttemptAt), lastError, id)
	return err
}
