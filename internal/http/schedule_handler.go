package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/happiestt-talha/pentutor-api/internal/application"
	"github.com/happiestt-talha/pentutor-api/internal/persistence"
	"github.com/happiestt-talha/pentutor-api/internal/recurrence"
)

type scheduleService interface {
	CreateSchedule(ctx context.Context, params application.CreateScheduleParams) (application.CreateScheduleResult, error)
	GetSchedule(ctx context.Context, principal application.Principal, scheduleID string) (persistence.Schedule, error)
	ListSchedules(ctx context.Context, params application.ListSchedulesParams) ([]persistence.Schedule, error)
	UpdateSchedule(ctx context.Context, params application.UpdateScheduleParams) (persistence.Schedule, error)
	DeactivateSchedule(ctx context.Context, principal application.Principal, scheduleID string) error
	PreviewSchedule(ctx context.Context, principal application.Principal, scheduleID string, weeks int) ([]recurrence.Occurrence, error)
	UpcomingClasses(ctx context.Context, principal application.Principal) ([]application.UpcomingClass, error)
}

const (
	defaultPreviewWeeks = 2
	maxPreviewWeeks     = 12
)

type ScheduleHandler struct {
	service   scheduleService
	responder responder
	logger    *slog.Logger
}

func NewScheduleHandler(service scheduleService, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{service: service, responder: newResponder(logger), logger: defaultLogger(logger)}
}

func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req scheduleRequest
	if !h.responder.decode(w, r, &req) {
		return
	}
	input, err := req.toInput()
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	result, err := h.service.CreateSchedule(r.Context(), application.CreateScheduleParams{
		Principal: principal,
		Input:     input,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	response := createScheduleResponse{Schedule: toScheduleDTO(result.Schedule)}
	if result.DemoSession != nil {
		demo := toSessionDTO(*result.DemoSession)
		response.DemoSession = &demo
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, response)
}

func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	scheduleID := strings.TrimSpace(r.PathValue("id"))
	if scheduleID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidScheduleID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	schedule, err := h.service.GetSchedule(r.Context(), principal, scheduleID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toScheduleDTO(schedule))
}

func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	activeOnly, err := parseBoolQuery(r, "active")
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	schedules, err := h.service.ListSchedules(r.Context(), application.ListSchedulesParams{
		Principal:  principal,
		ActiveOnly: activeOnly,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listSchedulesResponse{Schedules: toScheduleDTOs(schedules)})
}

// Update applies a partial edit; omitted fields keep their stored value.
func (h *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	scheduleID := strings.TrimSpace(r.PathValue("id"))
	if scheduleID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidScheduleID)
		return
	}

	var req updateScheduleRequest
	if !h.responder.decode(w, r, &req) {
		return
	}
	changes, err := req.toChanges()
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	schedule, err := h.service.UpdateSchedule(r.Context(), application.UpdateScheduleParams{
		Principal:  principal,
		ScheduleID: scheduleID,
		Changes:    changes,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toScheduleDTO(schedule))
}

func (h *ScheduleHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	scheduleID := strings.TrimSpace(r.PathValue("id"))
	if scheduleID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidScheduleID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	if err := h.service.DeactivateSchedule(r.Context(), principal, scheduleID); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	handlerLogger(r.Context(), h.logger, "ScheduleHandler", "Deactivate", "schedule_id", scheduleID).
		InfoContext(r.Context(), "schedule deactivated")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *ScheduleHandler) Preview(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	scheduleID := strings.TrimSpace(r.PathValue("id"))
	if scheduleID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidScheduleID)
		return
	}

	weeks := defaultPreviewWeeks
	if raw := strings.TrimSpace(r.URL.Query().Get("weeks")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxPreviewWeeks {
			h.responder.handleServiceError(r.Context(), w, &application.ValidationError{
				FieldErrors: map[string]string{"weeks": "must be between 1 and " + strconv.Itoa(maxPreviewWeeks)},
			})
			return
		}
		weeks = parsed
	}

	principal, _ := PrincipalFromContext(r.Context())
	occurrences, err := h.service.PreviewSchedule(r.Context(), principal, scheduleID, weeks)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]occurrenceDTO, 0, len(occurrences))
	for _, occ := range occurrences {
		out = append(out, occurrenceDTO{Weekday: recurrence.WeekdayName(occ.Weekday), StartsAt: occ.Start})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, previewResponse{ScheduleID: scheduleID, Weeks: weeks, Occurrences: out})
}

func (h *ScheduleHandler) Upcoming(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	classes, err := h.service.UpcomingClasses(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, upcomingResponse{Classes: toUpcomingDTOs(classes)})
}

type scheduleRequest struct {
	TeacherID       string            `json:"teacher_id"`
	StudentID       string            `json:"student_id" validate:"required"`
	Subject         string            `json:"subject" validate:"required,max=200"`
	ClassesPerWeek  int               `json:"classes_per_week" validate:"required"`
	ClassDays       []string          `json:"class_days" validate:"required,dive,required"`
	ClassTimes      map[string]string `json:"class_times" validate:"required"`
	DurationMinutes int               `json:"duration_minutes" validate:"required"`
	WeeklyPrice     int64             `json:"weekly_price"`
	MonthlyPrice    int64             `json:"monthly_price"`
	StartDate       string            `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate         string            `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
}

func (req scheduleRequest) toInput() (application.ScheduleInput, error) {
	input := application.ScheduleInput{
		TeacherID:       req.TeacherID,
		StudentID:       req.StudentID,
		Subject:         req.Subject,
		ClassesPerWeek:  req.ClassesPerWeek,
		ClassDays:       req.ClassDays,
		ClassTimes:      req.ClassTimes,
		DurationMinutes: req.DurationMinutes,
		WeeklyPrice:     req.WeeklyPrice,
		MonthlyPrice:    req.MonthlyPrice,
	}
	if req.StartDate != "" {
		start, err := recurrence.ParseDate(req.StartDate)
		if err != nil {
			return input, &application.ValidationError{FieldErrors: map[string]string{"start_date": "must be a YYYY-MM-DD date"}}
		}
		input.StartDate = start
	}
	if req.EndDate != "" {
		end, err := recurrence.ParseDate(req.EndDate)
		if err != nil {
			return input, &application.ValidationError{FieldErrors: map[string]string{"end_date": "must be a YYYY-MM-DD date"}}
		}
		input.EndDate = &end
	}
	return input, nil
}

type updateScheduleRequest struct {
	ClassDays    []string          `json:"class_days" validate:"omitempty,dive,required"`
	ClassTimes   map[string]string `json:"class_times"`
	WeeklyPrice  *int64            `json:"weekly_price"`
	MonthlyPrice *int64            `json:"monthly_price"`
	EndDate      *string           `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	ClearEndDate bool              `json:"clear_end_date"`
	IsActive     *bool             `json:"is_active"`
}

func (req updateScheduleRequest) toChanges() (application.ScheduleChanges, error) {
	changes := application.ScheduleChanges{
		ClassDays:    req.ClassDays,
		ClassTimes:   req.ClassTimes,
		WeeklyPrice:  req.WeeklyPrice,
		MonthlyPrice: req.MonthlyPrice,
		ClearEndDate: req.ClearEndDate,
		IsActive:     req.IsActive,
	}
	if req.EndDate != nil {
		end, err := recurrence.ParseDate(*req.EndDate)
		if err != nil {
			return changes, &application.ValidationError{FieldErrors: map[string]string{"end_date": "must be a YYYY-MM-DD date"}}
		}
		changes.EndDate = &end
	}
	return changes, nil
}

type createScheduleResponse struct {
	Schedule    scheduleDTO `json:"schedule"`
	DemoSession *sessionDTO `json:"demo_session,omitempty"`
}

type listSchedulesResponse struct {
	Schedules []scheduleDTO `json:"schedules"`
}

type previewResponse struct {
	ScheduleID  string          `json:"schedule_id"`
	Weeks       int             `json:"weeks"`
	Occurrences []occurrenceDTO `json:"occurrences"`
}

type upcomingResponse struct {
	Classes []upcomingClassDTO `json:"classes"`
}

func parseBoolQuery(r *http.Request, key string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return false, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &application.ValidationError{FieldErrors: map[string]string{key: "must be true or false"}}
	}
	return value, nil
}

// parseTimeQuery accepts RFC 3339 timestamps or YYYY-MM-DD dates.
func parseTimeQuery(r *http.Request, key string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return &ts, nil
	}
	if day, err := recurrence.ParseDate(raw); err == nil {
		return &day, nil
	}
	return nil, &application.ValidationError{FieldErrors: map[string]string{key: "must be an RFC 3339 timestamp or YYYY-MM-DD date"}}
}
