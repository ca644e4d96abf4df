// Package notify delivers in-app notifications and administrator notices.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/happiestt-talha/pentutor-api/internal/outbox"
)

// Webhook posts notifications as JSON to the notification service.
type Webhook struct {
	url        string
	httpClient *http.Client
}

// NewWebhook returns a notifier posting to url. A nil httpClient uses a
// client with a ten second timeout.
func NewWebhook(url string, httpClient *http.Client) *Webhook {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Webhook{url: url, httpClient: httpClient}
}

// Notify posts one notification. Any non-2xx response fails the delivery.
func (w *Webhook) Notify(ctx context.Context, notification outbox.NotificationPayload) error {
	body, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notification service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}

// Log writes notifications and notices to the structured log. It stands in
// when no outward channel is configured.
type Log struct {
	logger *slog.Logger
}

// NewLog returns a log-backed notifier and admin channel.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger.With("component", "notify")}
}

// Notify logs the notification.
func (l *Log) Notify(ctx context.Context, notification outbox.NotificationPayload) error {
	l.logger.InfoContext(ctx, "notification",
		"recipient_id", notification.RecipientID,
		"category", notification.Category,
		"title", notification.Title,
		"session_id", notification.SessionID,
	)
	return nil
}

// Announce logs the notice.
func (l *Log) Announce(ctx context.Context, notice outbox.AdminNoticePayload) error {
	l.logger.InfoContext(ctx, "admin notice", "category", notice.Category, "title", notice.Title)
	return nil
}

// RoleDirectory lists the users holding a role.
type RoleDirectory interface {
	UsersWithRole(ctx context.Context, role string) ([]string, error)
}

// StaticDirectory is a RoleDirectory over a fixed role to users map.
type StaticDirectory map[string][]string

// UsersWithRole returns the configured users for role.
func (d StaticDirectory) UsersWithRole(_ context.Context, role string) ([]string, error) {
	return append([]string(nil), d[role]...), nil
}

// RoleChannel announces notices by notifying every administrator individually.
type RoleChannel struct {
	directory RoleDirectory
	notifier  outbox.Notifier
	role      string
}

// NewRoleChannel returns an admin channel fanning notices out to role holders.
func NewRoleChannel(directory RoleDirectory, notifier outbox.Notifier, role string) *RoleChannel {
	return &RoleChannel{directory: directory, notifier: notifier, role: role}
}

// Announce notifies each role holder; failures are joined so a retry reaches
// everyone again.
func (c *RoleChannel) Announce(ctx context.Context, notice outbox.AdminNoticePayload) error {
	recipients, err := c.directory.UsersWithRole(ctx, c.role)
	if err != nil {
		return fmt.Errorf("resolve %s users: %w", c.role, err)
	}
	var errs []error
	for _, recipient := range recipients {
		err := c.notifier.Notify(ctx, outbox.NotificationPayload{
			RecipientID: recipient,
			Category:    notice.Category,
			Title:       notice.Title,
			Message:     notice.Message,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("notify %s: %w", recipient, err))
		}
	}
	return errors.Join(errs...)
}

// Channels announces on every channel in order and joins their errors.
type Channels []outbox.AdminChannel

// Announce posts the notice on each channel.
func (cs Channels) Announce(ctx context.Context, notice outbox.AdminNoticePayload) error {
	var errs []error
	for _, channel := range cs {
		if err := channel.Announce(ctx, notice); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
