package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/happiestt-talha/pentutor-api/internal/application"
	"github.com/happiestt-talha/pentutor-api/internal/jobs"
)

type materializer interface {
	Materialize(ctx context.Context, windowDays int) (int, error)
}

type jobTrigger interface {
	RunOnce(ctx context.Context, name string) error
}

const maxMaterializeWindowDays = 90

// AdminHandler exposes operator triggers for work that normally runs on a timer.
type AdminHandler struct {
	materializer      materializer
	jobs              jobTrigger
	defaultWindowDays int
	responder         responder
	logger            *slog.Logger
}

func NewAdminHandler(materializer materializer, jobs jobTrigger, defaultWindowDays int, logger *slog.Logger) *AdminHandler {
	if defaultWindowDays <= 0 {
		defaultWindowDays = 7
	}
	return &AdminHandler{
		materializer:      materializer,
		jobs:              jobs,
		defaultWindowDays: defaultWindowDays,
		responder:         newResponder(logger),
		logger:            defaultLogger(logger),
	}
}

func (h *AdminHandler) Materialize(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.materializer == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if !h.requireAdmin(w, r) {
		return
	}

	window := h.defaultWindowDays
	if raw := strings.TrimSpace(r.URL.Query().Get("window_days")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxMaterializeWindowDays {
			h.responder.handleServiceError(r.Context(), w, &application.ValidationError{
				FieldErrors: map[string]string{"window_days": "must be between 1 and " + strconv.Itoa(maxMaterializeWindowDays)},
			})
			return
		}
		window = parsed
	}

	created, err := h.materializer.Materialize(r.Context(), window)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	handlerLogger(r.Context(), h.logger, "AdminHandler", "Materialize", "window_days", window, "created", created).
		InfoContext(r.Context(), "manual materialization finished")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, materializeResponse{WindowDays: window, Created: created})
}

// RunJob triggers one registered background job by name.
func (h *AdminHandler) RunJob(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.jobs == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if !h.requireAdmin(w, r) {
		return
	}

	name := strings.TrimSpace(r.PathValue("name"))
	if err := h.jobs.RunOnce(r.Context(), name); err != nil {
		if errors.Is(err, jobs.ErrUnknownJob) {
			h.responder.handleServiceError(r.Context(), w, application.ErrNotFound)
			return
		}
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusAccepted, runJobResponse{Job: name, Status: "completed"})
}

func (h *AdminHandler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok || !principal.IsAdmin() {
		handlerLogger(r.Context(), h.logger, "AdminHandler", "", "error_kind", "forbidden").
			WarnContext(r.Context(), "non-administrator attempted an admin operation")
		h.responder.handleServiceError(r.Context(), w, application.ErrUnauthorized)
		return false
	}
	return true
}

type materializeResponse struct {
	WindowDays int `json:"window_days"`
	Created    int `json:"created"`
}

type runJobResponse struct {
	Job    string `json:"job"`
	Status string `json:"status"`
}
