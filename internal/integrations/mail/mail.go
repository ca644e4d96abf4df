// Package mail delivers outbox emails over SMTP.
package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/happiestt-talha/pentutor-api/internal/outbox"
)

// ErrUnknownRecipient is returned when no address is known for a user.
var ErrUnknownRecipient = errors.New("mail: no address for recipient")

// AddressBook resolves user ids to email addresses.
type AddressBook map[string]string

// Lookup returns the address for userID.
func (b AddressBook) Lookup(userID string) (string, bool) {
	addr, ok := b[userID]
	return addr, ok && addr != ""
}

// SMTPConfig holds the relay settings.
type SMTPConfig struct {
	Addr     string
	Username string
	Password string
	From     string
}

type sendFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// SMTP sends plain text emails through a relay.
type SMTP struct {
	cfg       SMTPConfig
	addresses AddressBook
	send      sendFunc
	now       func() time.Time
	logger    *slog.Logger
}

// NewSMTP returns a mailer relaying through cfg.Addr.
func NewSMTP(cfg SMTPConfig, addresses AddressBook, logger *slog.Logger) *SMTP {
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTP{
		cfg:       cfg,
		addresses: addresses,
		send:      smtp.SendMail,
		now:       time.Now,
		logger:    logger.With("component", "mail"),
	}
}

// Send delivers one email. Recipients without an address fail the event so it
// stays queued until the directory learns them.
func (m *SMTP) Send(ctx context.Context, email outbox.EmailPayload) error {
	to, ok := m.addresses.Lookup(email.RecipientID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRecipient, email.RecipientID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if m.cfg.Username != "" {
		host, _, err := net.SplitHostPort(m.cfg.Addr)
		if err != nil {
			return fmt.Errorf("invalid smtp address %q: %w", m.cfg.Addr, err)
		}
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, host)
	}

	msg := buildMessage(m.cfg.From, to, email.Subject, email.Body, m.now())
	if err := m.send(m.cfg.Addr, auth, m.cfg.From, []string{to}, msg); err != nil {
		return fmt.Errorf("smtp send to %s: %w", email.RecipientID, err)
	}
	m.logger.DebugContext(ctx, "email sent", "recipient_id", email.RecipientID, "subject", email.Subject)
	return nil
}

func buildMessage(from, to, subject, body string, at time.Time) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + sanitizeHeader(subject) + "\r\n")
	b.WriteString("Date: " + at.UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}

func sanitizeHeader(value string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(value)
}

// Log writes emails to the structured log instead of sending them.
type Log struct {
	logger *slog.Logger
}

// NewLog returns a log-backed mailer.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger.With("component", "mail")}
}

// Send logs the email.
func (l *Log) Send(ctx context.Context, email outbox.EmailPayload) error {
	l.logger.InfoContext(ctx, "email", "recipient_id", email.RecipientID, "subject", email.Subject)
	return nil
}

// ParseAddressBook parses "user=address" pairs separated by commas.
func ParseAddressBook(raw string) (AddressBook, error) {
	book := AddressBook{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		user, addr, ok := strings.Cut(pair, "=")
		user, addr = strings.TrimSpace(user), strings.TrimSpace(addr)
		if !ok || user == "" || !strings.Contains(addr, "@") {
			return nil, fmt.Errorf("invalid address book entry %q", pair)
		}
		book[user] = addr
	}
	return book, nil
}
