package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/happiestt-talha/pentutor-api/internal/application"
	"github.com/happiestt-talha/pentutor-api/internal/persistence"
)

type attendanceService interface {
	RequestJoin(ctx context.Context, params application.JoinParams) (application.JoinResult, error)
	CompleteSession(ctx context.Context, params application.CompleteSessionParams) (persistence.Session, error)
	CancelSession(ctx context.Context, params application.CancelSessionParams) error
	ListSessions(ctx context.Context, params application.ListSessionsParams) ([]persistence.Session, error)
}

const maxSessionListLimit = 500

type SessionHandler struct {
	service   attendanceService
	responder responder
	logger    *slog.Logger
}

func NewSessionHandler(service attendanceService, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{service: service, responder: newResponder(logger), logger: defaultLogger(logger)}
}

func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	params, err := buildListSessionsParams(r)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	params.Principal, _ = PrincipalFromContext(r.Context())

	sessions, err := h.service.ListSessions(r.Context(), params)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listSessionsResponse{Sessions: toSessionDTOs(sessions)})
}

// Join checks entitlement and returns the meeting room for the caller.
func (h *SessionHandler) Join(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	sessionID := strings.TrimSpace(r.PathValue("id"))
	if sessionID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidSessionID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	result, err := h.service.RequestJoin(r.Context(), application.JoinParams{Principal: principal, SessionID: sessionID})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, joinResponse{
		Session:        toSessionDTO(result.Session),
		Side:           string(result.Side),
		MeetingRoomRef: result.MeetingRoomRef,
	})
}

func (h *SessionHandler) Complete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	sessionID := strings.TrimSpace(r.PathValue("id"))
	if sessionID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidSessionID)
		return
	}

	var req completeSessionRequest
	if !h.responder.decode(w, r, &req) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	session, err := h.service.CompleteSession(r.Context(), application.CompleteSessionParams{
		Principal:       principal,
		SessionID:       sessionID,
		TeacherNotes:    req.TeacherNotes,
		StudentFeedback: req.StudentFeedback,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toSessionDTO(session))
}

func (h *SessionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	sessionID := strings.TrimSpace(r.PathValue("id"))
	if sessionID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidSessionID)
		return
	}

	var req cancelSessionRequest
	if !h.responder.decode(w, r, &req) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	if err := h.service.CancelSession(r.Context(), application.CancelSessionParams{
		Principal: principal,
		SessionID: sessionID,
		Reason:    req.Reason,
	}); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	handlerLogger(r.Context(), h.logger, "SessionHandler", "Cancel", "session_id", sessionID).
		InfoContext(r.Context(), "session cancelled")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func buildListSessionsParams(r *http.Request) (application.ListSessionsParams, error) {
	query := r.URL.Query()
	params := application.ListSessionsParams{ScheduleID: strings.TrimSpace(query.Get("schedule_id"))}

	vErr := &application.ValidationError{FieldErrors: map[string]string{}}
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status := persistence.SessionStatus(strings.ToLower(strings.TrimSpace(part)))
			switch status {
			case persistence.SessionScheduled, persistence.SessionOngoing, persistence.SessionCompleted,
				persistence.SessionMissed, persistence.SessionRescheduled, persistence.SessionCancelled:
				params.Statuses = append(params.Statuses, status)
			default:
				vErr.FieldErrors["status"] = "unknown session status " + strconv.Quote(part)
			}
		}
	}

	var err error
	if params.From, err = parseTimeQuery(r, "from"); err != nil {
		vErr.FieldErrors["from"] = err.(*application.ValidationError).FieldErrors["from"]
	}
	if params.To, err = parseTimeQuery(r, "to"); err != nil {
		vErr.FieldErrors["to"] = err.(*application.ValidationError).FieldErrors["to"]
	}
	if params.From != nil && params.To != nil && params.To.Before(*params.From) {
		vErr.FieldErrors["to"] = "must not be before from"
	}

	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, convErr := strconv.Atoi(raw)
		if convErr != nil || limit < 1 || limit > maxSessionListLimit {
			vErr.FieldErrors["limit"] = "must be between 1 and " + strconv.Itoa(maxSessionListLimit)
		} else {
			params.Limit = limit
		}
	}

	if vErr.HasErrors() {
		return params, vErr
	}
	return params, nil
}

type completeSessionRequest struct {
	TeacherNotes    string `json:"teacher_notes" validate:"max=4000"`
	StudentFeedback string `json:"student_feedback" validate:"max=4000"`
}

type cancelSessionRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

type joinResponse struct {
	Session        sessionDTO `json:"session"`
	Side           string     `json:"side,omitempty"`
	MeetingRoomRef string     `json:"meeting_room_ref"`
}

type listSessionsResponse struct {
	Sessions []sessionDTO `json:"sessions"`
}
