package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/happiestt-talha/pentutor-api/internal/persistence"
)

const rescheduleColumns = `id, session_id, original_at, proposed_at, reason, requested_by, approved_by,
	approved, approved_at, status, decision_note, resolved_at, created_at`

// CreateRescheduleRequest inserts a pending reschedule request.
func (s *Store) CreateRescheduleRequest(ctx context.Context, request persistence.RescheduleRequest) error {
	if request.ID == "" || request.SessionID == "" {
		return persistence.ErrConstraintViolation
	}
	status := request.Status
	if status == "" {
		status = persistence.ReschedulePending
	}
	_, err := s.exec(ctx, `
		INSERT INTO reschedule_requests (id, session_id, original_at, proposed_at, reason, requested_by,
			approved, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		request.ID,
		request.SessionID,
		formatTimestamp(request.OriginalAt),
		formatTimestamp(request.ProposedAt),
		request.Reason,
		request.RequestedBy,
		string(status),
		formatTimestamp(request.CreatedAt),
	)
	return err
}

// GetRescheduleRequest loads a request by id.
func (s *Store) GetRescheduleRequest(ctx context.Context, id string) (persistence.RescheduleRequest, error) {
	row := s.queryRow(ctx, `SELECT `+rescheduleColumns+` FROM reschedule_requests WHERE id = ?`, id)
	request, err := scanRescheduleRequest(row)
	if err != nil {
		return persistence.RescheduleRequest{}, notFoundOr(err)
	}
	return request, nil
}

// ListRescheduleRequests returns requests oldest first.
func (s *Store) ListRescheduleRequests(ctx context.Context, filter persistence.RescheduleFilter) ([]persistence.RescheduleRequest, error) {
	where := &whereBuilder{}
	if filter.Status != "" {
		where.add("status = ?", string(filter.Status))
	}
	if filter.SessionID != "" {
		where.add("session_id = ?", filter.SessionID)
	}
	rows, err := s.query(ctx, `SELECT `+rescheduleColumns+` FROM reschedule_requests`+where.String()+` ORDER BY created_at, id`, where.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests := make([]persistence.RescheduleRequest, 0)
	for rows.Next() {
		request, err := scanRescheduleRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return requests, nil
}

// ResolveRescheduleRequest is the write-once decision on a request: only a
// pending row is updated, so of two concurrent approvals exactly one wins.
func (s *Store) ResolveRescheduleRequest(ctx context.Context, id string, status persistence.RescheduleStatus, approverID, note string, at time.Time) (bool, error) {
	approved := status == persistence.RescheduleApproved
	var approvedAt sql.NullString
	if approved {
		approvedAt = sql.NullString{String: formatTimestamp(at), Valid: true}
	}
	return s.execAffected(ctx, `
		UPDATE reschedule_requests SET
			status = ?, approved = ?, approved_by = ?, approved_at = ?, decision_note = ?, resolved_at = ?
		WHERE id = ? AND status = 'pending' AND approved = 0`,
		string(status), boolInt(approved), approverID, approvedAt, note, formatTimestamp(at), id)
}

func scanRescheduleRequest(row rowScanner) (persistence.RescheduleRequest, error) {
	var (
		request    persistence.RescheduleRequest
		originalAt string
		proposedAt string
		approvedBy sql.NullString
		approved   int
		approvedAt sql.NullString
		status     string
		resolvedAt sql.NullString
		createdAt  string
	)
	if err := row.Scan(
		&request.ID,
		&request.SessionID,
		&originalAt,
		&proposedAt,
		&request.Reason,
		&request.RequestedBy,
		&approvedBy,
		&approved,
		&approvedAt,
		&status,
		&request.DecisionNote,
		&resolvedAt,
		&createdAt,
	); err != nil {
		return persistence.RescheduleRequest{}, err
	}
	request.ApprovedBy = stringPtr(approvedBy)
	request.Approved = approved == 1
	request.Status = persistence.RescheduleStatus(status)

	var err error
	if request.OriginalAt, err = parseTimestamp(originalAt); err != nil {
		return persistence.RescheduleRequest{}, err
	}
	if request.ProposedAt, err = parseTimestamp(proposedAt); err != nil {
		return persistence.RescheduleRequest{}, err
	}
	if request.ApprovedAt, err = parseNullTimestamp(approvedAt); err != nil {
		return persistence.RescheduleRequest{}, err
	}
	if request.ResolvedAt, err = parseNullTimestamp(resolvedAt); err != nil {
		return persistence.RescheduleRequest{}, err
	}
	if request.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return persistence.RescheduleRequest{}, err
	}
	return request, nil
}
