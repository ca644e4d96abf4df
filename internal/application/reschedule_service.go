package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/happiestt-talha/pentutor-api/internal/outbox"
	"github.com/happiestt-talha/pentutor-api/internal/persistence"
)

// RescheduleService runs the request, approve and deny workflow for moving sessions.
type RescheduleService struct {
	store       persistence.Store
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewRescheduleService constructs a reschedule service.
func NewRescheduleService(store persistence.Store, idGenerator func() string, now func() time.Time) *RescheduleService {
	return NewRescheduleServiceWithLogger(store, idGenerator, now, nil)
}

// NewRescheduleServiceWithLogger constructs a reschedule service with a specified logger.
func NewRescheduleServiceWithLogger(store persistence.Store, idGenerator func() string, now func() time.Time, logger *slog.Logger) *RescheduleService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &RescheduleService{store: store, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

func (s *RescheduleService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "RescheduleService", operation, attrs...)
}

// RequestReschedule records a pending request to move a session.
func (s *RescheduleService) RequestReschedule(ctx context.Context, params RescheduleParams) (request persistence.RescheduleRequest, err error) {
	if s == nil {
		err = fmt.Errorf("RescheduleService is nil")
		return
	}

	logger := s.loggerWith(ctx, "RequestReschedule", "principal_id", params.Principal.UserID, "session_id", params.SessionID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to request reschedule", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("request_id", request.ID, "proposed_at", request.ProposedAt).InfoContext(ctx, "reschedule requested")
	}()

	var session persistence.Session
	session, err = s.store.GetSession(ctx, params.SessionID)
	if err != nil {
		err = mapRepoError(err, "session")
		return
	}
	var schedule persistence.Schedule
	schedule, err = s.store.GetSchedule(ctx, session.ScheduleID)
	if err != nil {
		err = mapRepoError(err, "schedule")
		return
	}
	if params.Principal.UserID != schedule.TeacherID && params.Principal.UserID != schedule.StudentID {
		err = ErrUnauthorized
		return
	}
	if session.Status != persistence.SessionScheduled && session.Status != persistence.SessionRescheduled {
		err = &StateError{Entity: "session", Status: string(session.Status), Operation: "reschedule"}
		return
	}

	now := s.now()
	vErr := &ValidationError{}
	if params.ProposedAt.IsZero() {
		vErr.add("proposed_at", "new date and time are required")
	} else if !params.ProposedAt.After(now) {
		vErr.add("proposed_at", "new date and time must be in the future")
	} else if params.ProposedAt.Equal(session.ScheduledAt) {
		vErr.add("proposed_at", "new date and time must differ from the current one")
	}
	if strings.TrimSpace(params.Reason) == "" {
		vErr.add("reason", "reason is required")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	request = persistence.RescheduleRequest{
		ID:          s.idGenerator(),
		SessionID:   session.ID,
		OriginalAt:  session.ScheduledAt,
		ProposedAt:  params.ProposedAt.UTC().Truncate(time.Second),
		Reason:      strings.TrimSpace(params.Reason),
		RequestedBy: params.Principal.UserID,
		Status:      persistence.ReschedulePending,
		CreatedAt:   now,
	}

	err = s.store.WithinTx(ctx, func(tx persistence.Repositories) error {
		if err := tx.CreateRescheduleRequest(ctx, request); err != nil {
			return mapRepoError(err, "reschedule request")
		}
		events := outbox.NewBuilder(s.idGenerator, now).Admin(outbox.AdminNoticePayload{
			Category: "reschedule_requested",
			Title:    "Reschedule request",
			Message: fmt.Sprintf("%s asks to move session %s (%s) from %s to %s: %s",
				request.RequestedBy, session.ID, schedule.Subject, formatStart(request.OriginalAt), formatStart(request.ProposedAt), request.Reason),
		})
		return enqueue(ctx, tx, events)
	})
	return
}

// ApproveReschedule decides a pending request and moves its session in one
// transaction. Of two concurrent approvals exactly one succeeds.
func (s *RescheduleService) ApproveReschedule(ctx context.Context, params ResolveRescheduleParams) (result ApproveRescheduleResult, err error) {
	if s == nil {
		err = fmt.Errorf("RescheduleService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ApproveReschedule", "principal_id", params.Principal.UserID, "request_id", params.RequestID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to approve reschedule", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("session_id", result.Session.ID, "scheduled_at", result.Session.ScheduledAt).InfoContext(ctx, "reschedule approved")
	}()

	if !params.Principal.IsAdmin() {
		err = ErrUnauthorized
		return
	}

	now := s.now()
	err = s.store.WithinTx(ctx, func(tx persistence.Repositories) error {
		request, err := tx.GetRescheduleRequest(ctx, params.RequestID)
		if err != nil {
			return mapRepoError(err, "reschedule request")
		}
		ok, err := tx.ResolveRescheduleRequest(ctx, request.ID, persistence.RescheduleApproved, params.Principal.UserID, params.Note, now)
		if err != nil {
			return err
		}
		if !ok {
			return s.requestStateError(ctx, tx, request.ID, "approve")
		}

		moved, err := tx.MoveSession(ctx, request.SessionID, request.ProposedAt, now)
		if err != nil {
			if errors.Is(err, persistence.ErrDuplicate) {
				return &ConflictError{Resource: "session", Message: "the proposed slot already has a session"}
			}
			return mapRepoError(err, "session")
		}
		if !moved {
			session, err := tx.GetSession(ctx, request.SessionID)
			if err != nil {
				return mapRepoError(err, "session")
			}
			return &StateError{Entity: "session", Status: string(session.Status), Operation: "reschedule"}
		}

		session, err := tx.GetSession(ctx, request.SessionID)
		if err != nil {
			return mapRepoError(err, "session")
		}
		schedule, err := tx.GetSchedule(ctx, session.ScheduleID)
		if err != nil {
			return mapRepoError(err, "schedule")
		}
		request, err = tx.GetRescheduleRequest(ctx, request.ID)
		if err != nil {
			return mapRepoError(err, "reschedule request")
		}

		message := fmt.Sprintf("Your %s class moved from %s to %s.", schedule.Subject, formatStart(request.OriginalAt), formatStart(session.ScheduledAt))
		events := outbox.NewBuilder(s.idGenerator, now)
		for _, recipient := range []string{schedule.StudentID, schedule.TeacherID} {
			events.Notify(outbox.NotificationPayload{
				RecipientID: recipient,
				Category:    "reschedule_approved",
				Title:       "Class rescheduled",
				Message:     message,
				SessionID:   session.ID,
				ScheduleID:  schedule.ID,
			}).Email(outbox.EmailPayload{RecipientID: recipient, Subject: "Class rescheduled", Body: message})
		}
		if err := enqueue(ctx, tx, events); err != nil {
			return err
		}

		result = ApproveRescheduleResult{Request: request, Session: session}
		return nil
	})
	return
}

// DenyReschedule closes a pending request without moving the session.
func (s *RescheduleService) DenyReschedule(ctx context.Context, params ResolveRescheduleParams) (request persistence.RescheduleRequest, err error) {
	if s == nil {
		err = fmt.Errorf("RescheduleService is nil")
		return
	}

	logger := s.loggerWith(ctx, "DenyReschedule", "principal_id", params.Principal.UserID, "request_id", params.RequestID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to deny reschedule", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "reschedule denied")
	}()

	if !params.Principal.IsAdmin() {
		err = ErrUnauthorized
		return
	}

	now := s.now()
	err = s.store.WithinTx(ctx, func(tx persistence.Repositories) error {
		current, err := tx.GetRescheduleRequest(ctx, params.RequestID)
		if err != nil {
			return mapRepoError(err, "reschedule request")
		}
		ok, err := tx.ResolveRescheduleRequest(ctx, current.ID, persistence.RescheduleDenied, params.Principal.UserID, params.Note, now)
		if err != nil {
			return err
		}
		if !ok {
			return s.requestStateError(ctx, tx, current.ID, "deny")
		}
		request, err = tx.GetRescheduleRequest(ctx, current.ID)
		if err != nil {
			return mapRepoError(err, "reschedule request")
		}

		message := fmt.Sprintf("Your request to move the class on %s was declined.", formatStart(request.OriginalAt))
		if request.DecisionNote != "" {
			message += " " + request.DecisionNote
		}
		events := outbox.NewBuilder(s.idGenerator, now).Notify(outbox.NotificationPayload{
			RecipientID: request.RequestedBy,
			Category:    "reschedule_denied",
			Title:       "Reschedule declined",
			Message:     message,
			SessionID:   request.SessionID,
		})
		return enqueue(ctx, tx, events)
	})
	return
}

// ListRescheduleRequests returns requests, optionally by status. Administrators only.
func (s *RescheduleService) ListRescheduleRequests(ctx context.Context, params ListRescheduleParams) ([]persistence.RescheduleRequest, error) {
	if s == nil {
		return nil, fmt.Errorf("RescheduleService is nil")
	}
	if !params.Principal.IsAdmin() {
		return nil, ErrUnauthorized
	}
	switch params.Status {
	case "", persistence.ReschedulePending, persistence.RescheduleApproved, persistence.RescheduleDenied:
	default:
		vErr := &ValidationError{}
		vErr.add("status", "status must be pending, approved or denied")
		return nil, vErr
	}
	return s.store.ListRescheduleRequests(ctx, persistence.RescheduleFilter{Status: params.Status})
}

func (s *RescheduleService) requestStateError(ctx context.Context, tx persistence.RescheduleRepository, id, operation string) error {
	current, err := tx.GetRescheduleRequest(ctx, id)
	if err != nil {
		return mapRepoError(err, "reschedule request")
	}
	return &StateError{Entity: "reschedule request", Status: string(current.Status), Operation: operation}
}
