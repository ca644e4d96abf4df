package persistence

import (
	"context"
	"time"
)

// ScheduleFilter narrows schedule queries. Zero values do not filter.
type ScheduleFilter struct {
	IDs        []string
	TeacherID  string
	StudentID  string
	ActiveOnly bool
}

// ScheduleRepository stores schedule definitions.
type ScheduleRepository interface {
	CreateSchedule(ctx context.Context, schedule Schedule) error
	GetSchedule(ctx context.Context, id string) (Schedule, error)
	ListSchedules(ctx context.Context, filter ScheduleFilter) ([]Schedule, error)
	SetScheduleActive(ctx context.Context, id string, active bool, at time.Time) error
	// UpdateSchedule rewrites the editable fields: pattern, prices, end date and active flag.
	UpdateSchedule(ctx context.Context, schedule Schedule) error
	// MarkDemoCompleted flips demo_completed once; it reports false when already set.
	MarkDemoCompleted(ctx context.Context, id string, at time.Time) (bool, error)
}

// SessionFilter narrows session queries. Zero values do not filter.
type SessionFilter struct {
	ScheduleID string
	TeacherID  string
	StudentID  string
	Statuses   []SessionStatus
	From       *time.Time
	To         *time.Time
	Limit      int
}

// SessionRepository stores materialized class sessions.
type SessionRepository interface {
	// InsertSession creates the session unless its (schedule, slot) or start time is taken,
	// in which case it reports false without error.
	InsertSession(ctx context.Context, session Session) (bool, error)
	GetSession(ctx context.Context, id string) (Session, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]Session, error)
	HasDemoSession(ctx context.Context, scheduleID string) (bool, error)
	RecordJoin(ctx context.Context, id string, side Side, at time.Time) (bool, error)
	RecordLeave(ctx context.Context, id string, side Side, at time.Time) (bool, error)
	TransitionSession(ctx context.Context, id string, from []SessionStatus, to SessionStatus, at time.Time) (bool, error)
	UpdateSessionNotes(ctx context.Context, id, teacherNotes, studentFeedback string, at time.Time) error
	MoveSession(ctx context.Context, id string, scheduledAt time.Time, at time.Time) (bool, error)
	SetSessionSubscription(ctx context.Context, id, subscriptionID string, at time.Time) error
	AttachSubscription(ctx context.Context, scheduleID, subscriptionID string, from, to time.Time, at time.Time) (int64, error)
	SetMeetingRoom(ctx context.Context, id, ref string, at time.Time) (bool, error)
	MarkMissed(ctx context.Context, id string, cutoff, at time.Time) (bool, error)
	MarkReminderSent(ctx context.Context, id string, at time.Time) (bool, error)
	DeleteTerminalSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SubscriptionFilter narrows subscription queries. Zero values do not filter.
type SubscriptionFilter struct {
	ScheduleID string
	StudentID  string
	TeacherID  string
	Statuses   []SubscriptionStatus
	EndsBefore *time.Time
}

// SubscriptionRepository stores purchased entitlements.
type SubscriptionRepository interface {
	CreateSubscription(ctx context.Context, subscription Subscription) error
	GetSubscription(ctx context.Context, id string) (Subscription, error)
	ListSubscriptions(ctx context.Context, filter SubscriptionFilter) ([]Subscription, error)
	// CoveringSubscriptions returns subscriptions whose window contains day, newest first.
	CoveringSubscriptions(ctx context.Context, scheduleID string, day time.Time) ([]Subscription, error)
	// ConsumeClass atomically consumes one class; false means the subscription could not attend.
	ConsumeClass(ctx context.Context, id string, today, at time.Time) (bool, error)
	ExpireSubscription(ctx context.Context, id string, today, at time.Time) (bool, error)
}

// RescheduleFilter narrows reschedule request queries.
type RescheduleFilter struct {
	Status    RescheduleStatus
	SessionID string
}

// RescheduleRepository stores reschedule requests.
type RescheduleRepository interface {
	CreateRescheduleRequest(ctx context.Context, request RescheduleRequest) error
	GetRescheduleRequest(ctx context.Context, id string) (RescheduleRequest, error)
	ListRescheduleRequests(ctx context.Context, filter RescheduleFilter) ([]RescheduleRequest, error)
	// ResolveRescheduleRequest moves a pending request to status; false when it was no longer pending.
	ResolveRescheduleRequest(ctx context.Context, id string, status RescheduleStatus, approverID, note string, at time.Time) (bool, error)
}

// PaymentFilter narrows payment queries.
type PaymentFilter struct {
	ScheduleID string
	TeacherID  string
	StudentID  string
	Status     PaymentStatus
	From       *time.Time
	To         *time.Time
}

// PaymentRepository stores entitlement purchase records.
type PaymentRepository interface {
	CreatePayment(ctx context.Context, payment Payment) error
	ListPayments(ctx context.Context, filter PaymentFilter) ([]Payment, error)
}

// OutboxRepository stores side effects awaiting dispatch.
type OutboxRepository interface {
	EnqueueEvents(ctx context.Context, events ...OutboxEvent) error
	PendingEvents(ctx context.Context, now time.Time, limit int) ([]OutboxEvent, error)
	MarkEventDispatched(ctx context.Context, id string, at time.Time) error
	MarkEventFailed(ctx context.Context, id string, attempts int, nextAttemptAt time.Time, lastError string) error
}

// Repositories groups every repository served by one connection or transaction.
type Repositories interface {
	ScheduleRepository
	SessionRepository
	SubscriptionRepository
	RescheduleRepository
	PaymentRepository
	OutboxRepository
}

// Store is the authoritative data store.
type Store interface {
	Repositories
	// WithinTx runs fn against a transaction-scoped view; fn's error rolls back.
	WithinTx(ctx context.Context, fn func(tx Repositories) error) error
}
