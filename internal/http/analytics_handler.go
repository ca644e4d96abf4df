package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/happiestt-talha/pentutor-api/internal/application"
)

type analyticsService interface {
	GetAnalytics(ctx context.Context, query application.AnalyticsQuery) (application.AnalyticsSnapshot, error)
}

type AnalyticsHandler struct {
	service   analyticsService
	responder responder
}

func NewAnalyticsHandler(service analyticsService, logger *slog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{service: service, responder: newResponder(logger)}
}

// Get returns a snapshot for ?scope=&id=&from=&to=. Scope defaults to the
// caller's own role.
func (h *AnalyticsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	query := r.URL.Query()
	scope := application.AnalyticsScope(strings.ToLower(strings.TrimSpace(query.Get("scope"))))
	if scope == "" {
		scope = defaultScope(principal)
	}

	from, err := parseTimeQuery(r, "from")
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	to, err := parseTimeQuery(r, "to")
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	snapshot, err := h.service.GetAnalytics(r.Context(), application.AnalyticsQuery{
		Principal: principal,
		Scope:     scope,
		SubjectID: strings.TrimSpace(query.Get("id")),
		From:      from,
		To:        to,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toAnalyticsDTO(snapshot))
}

func defaultScope(principal application.Principal) application.AnalyticsScope {
	switch principal.Role {
	case application.RoleAdmin:
		return application.ScopePlatform
	case application.RoleTeacher:
		return application.ScopeTeacher
	default:
		return application.ScopeStudent
	}
}
