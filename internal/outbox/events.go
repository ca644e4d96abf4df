// Package outbox carries side effects from committed state changes to the
// external meeting, notification, email and administrator services.
//
// Services append events through a Builder inside the same transaction as
// their state change. The Dispatcher later reads committed events and performs
// the outward calls with at-least-once delivery.
package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/happiestt-talha/pentutor-api/internal/persistence"
)

// Event kinds.
const (
	KindMeetingRoom  = "meeting.create"
	KindMeetingClose = "meeting.close"
	KindNotification = "notification.send"
	KindEmail        = "email.send"
	KindAdminNotice  = "admin.notice"
)

// MeetingRoomPayload asks the meeting service for a room for one session.
type MeetingRoomPayload struct {
	SessionID       string    `json:"session_id"`
	ScheduleID      string    `json:"schedule_id"`
	Topic           string    `json:"topic"`
	StartsAt        time.Time `json:"starts_at"`
	DurationMinutes int       `json:"duration_minutes"`
	HostID          string    `json:"host_id"`
	GuestID         string    `json:"guest_id"`
}

// MeetingClosePayload tears a room down once its session is over.
type MeetingClosePayload struct {
	SessionID string `json:"session_id"`
	RoomRef   string `json:"room_ref"`
}

// NotificationPayload is an in-app notification for one user.
type NotificationPayload struct {
	RecipientID string `json:"recipient_id"`
	Category    string `json:"category"`
	Title       string `json:"title"`
	Message     string `json:"message"`
	SessionID   string `json:"session_id,omitempty"`
	ScheduleID  string `json:"schedule_id,omitempty"`
}

// EmailPayload is an email for one user; the mail service resolves the address.
type EmailPayload struct {
	RecipientID string `json:"recipient_id"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
}

// AdminNoticePayload is broadcast on the administrator channel.
type AdminNoticePayload struct {
	Category string `json:"category"`
	Title    string `json:"title"`
	Message  string `json:"message"`
}

// Builder accumulates events for one state change. The first encoding error
// sticks and is reported by Events.
type Builder struct {
	newID  func() string
	at     time.Time
	events []persistence.OutboxEvent
	err    error
}

// NewBuilder returns a builder stamping events with at.
func NewBuilder(newID func() string, at time.Time) *Builder {
	return &Builder{newID: newID, at: at}
}

// MeetingRoom requests a room for a session.
func (b *Builder) MeetingRoom(p MeetingRoomPayload) *Builder {
	return b.add(KindMeetingRoom, p)
}

// CloseMeeting tears down a session room. Sessions without a room are skipped.
func (b *Builder) CloseMeeting(p MeetingClosePayload) *Builder {
	if p.RoomRef == "" {
		return b
	}
	return b.add(KindMeetingClose, p)
}

// Notify sends an in-app notification.
func (b *Builder) Notify(p NotificationPayload) *Builder {
	return b.add(KindNotification, p)
}

// Email sends an email.
func (b *Builder) Email(p EmailPayload) *Builder {
	return b.add(KindEmail, p)
}

// Admin posts on the administrator channel.
func (b *Builder) Admin(p AdminNoticePayload) *Builder {
	return b.add(KindAdminNotice, p)
}

// WithID appends an event with a caller-chosen id. Reusing the id of a stored
// event makes the enqueue fail with persistence.ErrDuplicate, which callers use
// to emit an event at most once.
func (b *Builder) WithID(id, kind string, payload any) *Builder {
	return b.addWithID(id, kind, payload)
}

// Events returns the accumulated events.
func (b *Builder) Events() ([]persistence.OutboxEvent, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.events, nil
}

func (b *Builder) add(kind string, payload any) *Builder {
	return b.addWithID(b.newID(), kind, payload)
}

func (b *Builder) addWithID(id, kind string, payload any) *Builder {
	if b.err != nil {
		return b
	}
	data, err := json.Marshal(payload)
	if err != nil {
		b.err = fmt.Errorf("encode %s event: %w", kind, err)
		return b
	}
	b.events = append(b.events, persistence.OutboxEvent{
		ID:            id,
		Kind:          kind,
		Payload:       data,
		NextAttemptAt: b.at,
		CreatedAt:     b.at,
	})
	return b
}

// Decode unmarshals an event payload into dst.
func Decode(event persistence.OutboxEvent, dst any) error {
	if err := json.Unmarshal(event.Payload, dst); err != nil {
		return fmt.Errorf("decode %s event %s: %w", event.Kind, event.ID, err)
	}
	return nil
}
