package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/happiestt-talha/pentutor-api/internal/config"
	"github.com/happiestt-talha/pentutor-api/internal/integrations/mail"
	"github.com/happiestt-talha/pentutor-api/internal/integrations/meeting"
	"github.com/happiestt-talha/pentutor-api/internal/integrations/notify"
	"github.com/happiestt-talha/pentutor-api/internal/jobs"
)

func loadTestConfig(t *testing.T, extra map[string]string) config.Config {
	t.Helper()

	t.Setenv(config.Prefix+"JWT_SECRET", "test-secret")
	t.Setenv(config.Prefix+"DATABASE_DSN", filepath.Join(t.TempDir(), "liveclass.db"))
	t.Setenv(config.Prefix+"ADMIN_IDS", "admin-001")
	for key, value := range extra {
		t.Setenv(config.Prefix+key, value)
	}

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewAppServesHealthAndRequiresTokens(t *testing.T) {
	cfg := loadTestConfig(t, nil)

	svc, err := newApp(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("failed to build app: %v", err)
	}
	t.Cleanup(func() {
		if err := svc.Close(); err != nil {
			t.Fatalf("failed to close app: %v", err)
		}
	})

	server := httptest.NewServer(svc.handler)
	t.Cleanup(server.Close)

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz request failed: %v", err)
	}
	var health struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || health.Status != "ok" {
		t.Fatalf("expected healthy store, got %d %q", resp.StatusCode, health.Status)
	}

	resp, err = http.Get(server.URL + "/schedules")
	if err != nil {
		t.Fatalf("schedules request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", resp.StatusCode)
	}

	resp, err = http.Post(server.URL+"/webhooks/meeting", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("webhook request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected webhook route to fall through to authentication without a secret, got %d", resp.StatusCode)
	}
}

func TestNewAppRegistersBackgroundJobs(t *testing.T) {
	cfg := loadTestConfig(t, nil)

	svc, err := newApp(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("failed to build app: %v", err)
	}
	defer svc.Close()

	for _, name := range []string{"materialize", "sweep_missed", "expire_subscriptions", "send_reminders", "cleanup_retention", "monthly_report", "outbox_dispatch"} {
		if err := svc.runner.RunOnce(context.Background(), name); err != nil {
			t.Fatalf("job %s failed on an empty store: %v", name, err)
		}
	}
	if err := svc.runner.RunOnce(context.Background(), "nope"); !errors.Is(err, jobs.ErrUnknownJob) {
		t.Fatalf("expected ErrUnknownJob, got %v", err)
	}
}

func TestNewSinksSelectsFallbacks(t *testing.T) {
	cfg := loadTestConfig(t, nil)

	sinks, err := newSinks(cfg, discardLogger())
	if err != nil {
		t.Fatalf("failed to build sinks: %v", err)
	}
	if _, ok := sinks.Rooms.(*meeting.Local); !ok {
		t.Fatalf("expected local meeting rooms, got %T", sinks.Rooms)
	}
	if _, ok := sinks.Notifier.(*notify.Log); !ok {
		t.Fatalf("expected log notifier, got %T", sinks.Notifier)
	}
	if _, ok := sinks.Mailer.(*mail.Log); !ok {
		t.Fatalf("expected log mailer, got %T", sinks.Mailer)
	}
	channels, ok := sinks.Admin.(notify.Channels)
	if !ok || len(channels) != 1 {
		t.Fatalf("expected a single admin role channel, got %#v", sinks.Admin)
	}
	if _, ok := channels[0].(*notify.RoleChannel); !ok {
		t.Fatalf("expected role channel for configured admins, got %T", channels[0])
	}
}

func TestNewSinksSelectsConfiguredServices(t *testing.T) {
	cfg := loadTestConfig(t, map[string]string{
		"MEETING_SERVICE_URL": "https://meet.example.com",
		"NOTIFY_WEBHOOK_URL":  "https://notify.example.com/hook",
		"SMTP_ADDR":           "smtp.example.com:587",
		"USER_EMAILS":         "student-001=student@example.com",
	})

	sinks, err := newSinks(cfg, discardLogger())
	if err != nil {
		t.Fatalf("failed to build sinks: %v", err)
	}
	if _, ok := sinks.Rooms.(*meeting.Client); !ok {
		t.Fatalf("expected meeting client, got %T", sinks.Rooms)
	}
	if _, ok := sinks.Notifier.(*notify.Webhook); !ok {
		t.Fatalf("expected webhook notifier, got %T", sinks.Notifier)
	}
	if _, ok := sinks.Mailer.(*mail.SMTP); !ok {
		t.Fatalf("expected SMTP mailer, got %T", sinks.Mailer)
	}
}

func TestNewSinksRejectsMalformedAddressBook(t *testing.T) {
	cfg := loadTestConfig(t, map[string]string{
		"SMTP_ADDR":   "smtp.example.com:587",
		"USER_EMAILS": "missing-separator",
	})

	if _, err := newSinks(cfg, discardLogger()); err == nil {
		t.Fatalf("expected malformed address book to be rejected")
	}
}
