package persistence

import "time"

// Schedule is the recurring weekly agreement between one teacher and one
// student for one subject.
type Schedule struct {
	ID              string
	TeacherID       string
	StudentID       string
	Subject         string
	ClassesPerWeek  int
	ClassDays       []string
	ClassTimes      map[string]string
	DurationMinutes int
	WeeklyPrice     int64
	MonthlyPrice    int64
	IsActive        bool
	DemoCompleted   bool
	DemoDate        *time.Time
	StartDate       time.Time
	EndDate         *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CoversDate reports whether the calendar date falls inside the schedule validity window.
func (s Schedule) CoversDate(day time.Time) bool {
	if day.Before(s.StartDate) {
		return false
	}
	if s.EndDate != nil && day.After(*s.EndDate) {
		return false
	}
	return true
}

// SessionStatus enumerates the lifecycle states of a Session.
type SessionStatus string

const (
	SessionScheduled   SessionStatus = "scheduled"
	SessionOngoing     SessionStatus = "ongoing"
	SessionCompleted   SessionStatus = "completed"
	SessionMissed      SessionStatus = "missed"
	SessionRescheduled SessionStatus = "rescheduled"
	SessionCancelled   SessionStatus = "cancelled"
)

// Terminal reports whether no further transitions are defined out of the status.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionCompleted, SessionMissed, SessionCancelled:
		return true
	default:
		return false
	}
}

// ActiveSessionStatuses lists the statuses a session can be joined or completed from.
func ActiveSessionStatuses() []SessionStatus {
	return []SessionStatus{SessionScheduled, SessionOngoing, SessionRescheduled}
}

// TerminalSessionStatuses lists the statuses eligible for retention cleanup.
func TerminalSessionStatuses() []SessionStatus {
	return []SessionStatus{SessionCompleted, SessionMissed, SessionCancelled}
}

// Side identifies which participant of a session an event concerns.
type Side string

const (
	SideStudent Side = "student"
	SideTeacher Side = "teacher"
)

// Session is one concrete, individually addressable class occurrence.
type Session struct {
	ID              string
	ScheduleID      string
	SubscriptionID  *string
	ScheduledAt     time.Time
	// SlotAt is the recurring slot the session was created for. It differs
	// from ScheduledAt after an approved reschedule and never changes.
	SlotAt          time.Time
	ActualAt        *time.Time
	DurationMinutes int
	Status          SessionStatus
	IsDemo          bool
	StudentJoined   bool
	TeacherJoined   bool
	StudentJoinedAt *time.Time
	TeacherJoinedAt *time.Time
	StudentLeftAt   *time.Time
	TeacherLeftAt   *time.Time
	TeacherNotes    string
	StudentFeedback string
	MeetingRoomRef  string
	ReminderSentAt  *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SubscriptionType selects how an entitlement window is computed.
type SubscriptionType string

const (
	SubscriptionWeekly  SubscriptionType = "weekly"
	SubscriptionMonthly SubscriptionType = "monthly"
)

// SubscriptionStatus enumerates entitlement states.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionExpired   SubscriptionStatus = "expired"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

// Subscription is a purchased quota of sessions valid over a date window.
type Subscription struct {
	ID         string
	ScheduleID string
	StudentID  string
	Type       SubscriptionType
	AmountPaid int64
	Quota      int
	Consumed   int
	StartDate  time.Time
	EndDate    time.Time
	Status     SubscriptionStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsValid reports whether the subscription is active and has not lapsed on today.
func (s Subscription) IsValid(today time.Time) bool {
	return s.Status == SubscriptionActive && !s.EndDate.Before(today)
}

// CanAttend reports whether another class may be consumed from the subscription.
func (s Subscription) CanAttend(today time.Time) bool {
	return s.IsValid(today) && s.Consumed < s.Quota
}

// Covers reports whether day lies inside the subscription window.
func (s Subscription) Covers(day time.Time) bool {
	return !day.Before(s.StartDate) && !day.After(s.EndDate)
}

// Remaining returns the number of unconsumed classes.
func (s Subscription) Remaining() int {
	if s.Consumed >= s.Quota {
		return 0
	}
	return s.Quota - s.Consumed
}

// RescheduleStatus enumerates reschedule request states.
type RescheduleStatus string

const (
	ReschedulePending  RescheduleStatus = "pending"
	RescheduleApproved RescheduleStatus = "approved"
	RescheduleDenied   RescheduleStatus = "denied"
)

// RescheduleRequest proposes moving a session to another date-time.
type RescheduleRequest struct {
	ID           string
	SessionID    string
	OriginalAt   time.Time
	ProposedAt   time.Time
	Reason       string
	RequestedBy  string
	ApprovedBy   *string
	Approved     bool
	ApprovedAt   *time.Time
	Status       RescheduleStatus
	DecisionNote string
	ResolvedAt   *time.Time
	CreatedAt    time.Time
}

// PaymentStatus enumerates payment record states.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Payment records the purchase that created a subscription.
type Payment struct {
	ID             string
	SubscriptionID string
	ScheduleID     string
	StudentID      string
	Amount         int64
	Method         string
	TransactionRef string
	Status         PaymentStatus
	FailureReason  string
	CreatedAt      time.Time
	CompletedAt    *time.Time
}

// OutboxEvent is a side effect committed alongside the state change that caused it.
type OutboxEvent struct {
	ID            string
	Kind          string
	Payload       []byte
	Attempts      int
	NextAttemptAt time.Time
	DispatchedAt  *time.Time
	LastError     string
	CreatedAt     time.Time
}
