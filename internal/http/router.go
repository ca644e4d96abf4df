package http

import (
	"context"
	"net/http"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	Auth          *AuthHandler
	Schedules     *ScheduleHandler
	Subscriptions *SubscriptionHandler
	Sessions      *SessionHandler
	Reschedules   *RescheduleHandler
	Analytics     *AnalyticsHandler
	Admin         *AdminHandler
	Webhooks      *WebhookHandler
	Health        Pinger
	// Authenticate wraps every route except /healthz and the webhook.
	Authenticate func(http.Handler) http.Handler
	Middleware   []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	protected := http.NewServeMux()

	if cfg.Auth != nil {
		protected.HandleFunc("POST /auth/tokens", cfg.Auth.IssueToken)
	}

	if cfg.Schedules != nil {
		protected.HandleFunc("POST /schedules", cfg.Schedules.Create)
		protected.HandleFunc("GET /schedules", cfg.Schedules.List)
		protected.HandleFunc("GET /schedules/{id}", cfg.Schedules.Get)
		protected.HandleFunc("PATCH /schedules/{id}", cfg.Schedules.Update)
		protected.HandleFunc("POST /schedules/{id}/deactivate", cfg.Schedules.Deactivate)
		protected.HandleFunc("GET /schedules/{id}/preview", cfg.Schedules.Preview)
		protected.HandleFunc("GET /sessions/upcoming", cfg.Schedules.Upcoming)
	}

	if cfg.Subscriptions != nil {
		protected.HandleFunc("POST /schedules/{id}/subscriptions", cfg.Subscriptions.Purchase)
		protected.HandleFunc("GET /subscriptions", cfg.Subscriptions.List)
		protected.HandleFunc("GET /payments", cfg.Subscriptions.Payments)
	}

	if cfg.Sessions != nil {
		protected.HandleFunc("GET /sessions", cfg.Sessions.List)
		protected.HandleFunc("POST /sessions/{id}/join", cfg.Sessions.Join)
		protected.HandleFunc("POST /sessions/{id}/complete", cfg.Sessions.Complete)
		protected.HandleFunc("POST /sessions/{id}/cancel", cfg.Sessions.Cancel)
	}

	if cfg.Reschedules != nil {
		protected.HandleFunc("POST /sessions/{id}/reschedule-requests", cfg.Reschedules.Create)
		protected.HandleFunc("GET /reschedule-requests", cfg.Reschedules.List)
		protected.HandleFunc("POST /reschedule-requests/{id}/approve", cfg.Reschedules.Approve)
		protected.HandleFunc("POST /reschedule-requests/{id}/deny", cfg.Reschedules.Deny)
	}

	if cfg.Analytics != nil {
		protected.HandleFunc("GET /analytics", cfg.Analytics.Get)
	}

	if cfg.Admin != nil {
		protected.HandleFunc("POST /admin/materialize", cfg.Admin.Materialize)
		protected.HandleFunc("POST /admin/jobs/{name}", cfg.Admin.RunJob)
	}

	var protectedHandler http.Handler = protected
	if cfg.Authenticate != nil {
		protectedHandler = cfg.Authenticate(protected)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", healthHandler(cfg.Health))
	if cfg.Webhooks != nil {
		mux.HandleFunc("POST /webhooks/meeting", cfg.Webhooks.Meeting)
	}
	mux.Handle("/", protectedHandler)

	var handler http.Handler = mux
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		if cfg.Middleware[i] != nil {
			handler = cfg.Middleware[i](handler)
		}
	}

	return handler
}

func healthHandler(pinger Pinger) http.HandlerFunc {
	responder := newResponder(nil)
	return func(w http.ResponseWriter, r *http.Request) {
		if pinger != nil {
			if err := pinger.Ping(r.Context()); err != nil {
				responder.loggerFor(r.Context()).WarnContext(r.Context(), "health check failed", "error", err)
				responder.writeJSON(r.Context(), w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
				return
			}
		}
		responder.writeJSON(r.Context(), w, http.StatusOK, healthResponse{Status: "ok"})
	}
}

type healthResponse struct {
	Status string `json:"status"`
}
