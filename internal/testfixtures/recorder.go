package testfixtures

import (
	"context"
	"fmt"
	"sync"

	"github.com/happiestt-talha/pentutor-api/internal/outbox"
)

// Recorder stands in for every external collaborator: it provisions rooms,
// and records notifications, emails and administrator notices. Setting an
// error field makes the matching call fail.
type Recorder struct {
	mu sync.Mutex

	RoomErr   error
	NotifyErr error
	MailErr   error
	AdminErr  error

	RoomsCreated  []outbox.MeetingRoomPayload
	RoomsClosed   []outbox.MeetingClosePayload
	Notifications []outbox.NotificationPayload
	Emails        []outbox.EmailPayload
	AdminNotices  []outbox.AdminNoticePayload
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// CreateRoom returns a room reference derived from the session id.
func (r *Recorder) CreateRoom(ctx context.Context, request outbox.MeetingRoomPayload) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.RoomErr != nil {
		return "", r.RoomErr
	}
	r.RoomsCreated = append(r.RoomsCreated, request)
	return fmt.Sprintf("room-%s", request.SessionID), nil
}

// CloseRoom records a room teardown.
func (r *Recorder) CloseRoom(ctx context.Context, request outbox.MeetingClosePayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.RoomErr != nil {
		return r.RoomErr
	}
	r.RoomsClosed = append(r.RoomsClosed, request)
	return nil
}

// Notify records an in-app notification.
func (r *Recorder) Notify(ctx context.Context, notification outbox.NotificationPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.NotifyErr != nil {
		return r.NotifyErr
	}
	r.Notifications = append(r.Notifications, notification)
	return nil
}

// Send records an email.
func (r *Recorder) Send(ctx context.Context, email outbox.EmailPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.MailErr != nil {
		return r.MailErr
	}
	r.Emails = append(r.Emails, email)
	return nil
}

// Announce records an administrator notice.
func (r *Recorder) Announce(ctx context.Context, notice outbox.AdminNoticePayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.AdminErr != nil {
		return r.AdminErr
	}
	r.AdminNotices = append(r.AdminNotices, notice)
	return nil
}

// Counts returns how many rooms, notifications, emails and notices were recorded.
func (r *Recorder) Counts() (rooms, notifications, emails, notices int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.RoomsCreated), len(r.Notifications), len(r.Emails), len(r.AdminNotices)
}
