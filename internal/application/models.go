package application

import (
	"time"

	"github.com/happiestt-talha/pentutor-api/internal/persistence"
)

// Role is the platform role carried by an authenticated principal.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID string
	Role   Role
}

// IsAdmin reports whether the principal holds the administrator role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// ScheduleInput captures caller provided schedule fields.
type ScheduleInput struct {
	TeacherID       string
	StudentID       string
	Subject         string
	ClassesPerWeek  int
	ClassDays       []string
	ClassTimes      map[string]string
	DurationMinutes int
	WeeklyPrice     int64
	MonthlyPrice    int64
	StartDate       time.Time
	EndDate         *time.Time
}

// CreateScheduleParams wraps the data required to create a schedule.
type CreateScheduleParams struct {
	Principal Principal
	Input     ScheduleInput
}

// CreateScheduleResult is the stored schedule and the demo session bootstrapped with it.
type CreateScheduleResult struct {
	Schedule    persistence.Schedule
	DemoSession *persistence.Session
}

// ScheduleChanges lists the editable terms of a schedule. Nil fields keep
// their stored value; ClearEndDate removes the end date.
type ScheduleChanges struct {
	ClassDays    []string
	ClassTimes   map[string]string
	WeeklyPrice  *int64
	MonthlyPrice *int64
	EndDate      *time.Time
	ClearEndDate bool
	IsActive     *bool
}

func (c ScheduleChanges) empty() bool {
	return c.ClassDays == nil && c.ClassTimes == nil && c.WeeklyPrice == nil && c.MonthlyPrice == nil &&
		c.EndDate == nil && !c.ClearEndDate && c.IsActive == nil
}

// UpdateScheduleParams wraps an edit of an existing schedule.
type UpdateScheduleParams struct {
	Principal  Principal
	ScheduleID string
	Changes    ScheduleChanges
}

// ListSchedulesParams scopes a schedule listing.
type ListSchedulesParams struct {
	Principal  Principal
	ActiveOnly bool
}

// UpcomingClass is one future occurrence of an active schedule.
type UpcomingClass struct {
	ScheduleID      string
	Subject         string
	TeacherID       string
	StudentID       string
	StartsAt        time.Time
	DurationMinutes int
}

// PaymentConfirmation is the external payment record presented at purchase.
type PaymentConfirmation struct {
	TransactionRef string
	Amount         int64
	Method         string
	Status         persistence.PaymentStatus
	FailureReason  string
}

// PurchaseParams buys an entitlement for a schedule.
type PurchaseParams struct {
	Principal  Principal
	ScheduleID string
	Type       persistence.SubscriptionType
	// StartDate defaults to today.
	StartDate time.Time
	Payment   PaymentConfirmation
}

// PurchaseResult is the created subscription with its payment record.
type PurchaseResult struct {
	Subscription     persistence.Subscription
	Payment          persistence.Payment
	AttachedSessions int64
}

// EntitlementWindow is the quota and validity computed for a purchase.
type EntitlementWindow struct {
	StartDate time.Time
	EndDate   time.Time
	Quota     int
}

// ListSubscriptionsParams scopes a subscription listing.
type ListSubscriptionsParams struct {
	Principal  Principal
	ScheduleID string
}

// ListPaymentsParams narrows the admin payment ledger. Zero values do not filter.
type ListPaymentsParams struct {
	Principal  Principal
	ScheduleID string
	StudentID  string
	Status     persistence.PaymentStatus
	From       *time.Time
	To         *time.Time
}

// ListSessionsParams scopes a session listing.
type ListSessionsParams struct {
	Principal  Principal
	ScheduleID string
	Statuses   []persistence.SessionStatus
	From       *time.Time
	To         *time.Time
	Limit      int
}

// JoinParams identifies who is joining which session.
type JoinParams struct {
	Principal Principal
	SessionID string
}

// JoinResult is returned to a participant admitted to a session.
type JoinResult struct {
	Session        persistence.Session
	Side           persistence.Side
	MeetingRoomRef string
}

// ParticipantEventKind enumerates meeting-service presence events.
type ParticipantEventKind string

const (
	ParticipantJoined ParticipantEventKind = "join"
	ParticipantLeft   ParticipantEventKind = "leave"
)

// ParticipantEvent is a presence change reported by the meeting service.
type ParticipantEvent struct {
	SessionID string
	Side      persistence.Side
	Kind      ParticipantEventKind
	At        time.Time
}

// CompleteSessionParams closes a session.
type CompleteSessionParams struct {
	Principal       Principal
	SessionID       string
	TeacherNotes    string
	StudentFeedback string
}

// CancelSessionParams cancels a session.
type CancelSessionParams struct {
	Principal Principal
	SessionID string
	Reason    string
}

// RescheduleParams proposes a new time for a session.
type RescheduleParams struct {
	Principal  Principal
	SessionID  string
	ProposedAt time.Time
	Reason     string
}

// ResolveRescheduleParams approves or denies a pending request.
type ResolveRescheduleParams struct {
	Principal Principal
	RequestID string
	Note      string
}

// ApproveRescheduleResult carries the decided request and the moved session.
type ApproveRescheduleResult struct {
	Request persistence.RescheduleRequest
	Session persistence.Session
}

// ListRescheduleParams filters reschedule requests.
type ListRescheduleParams struct {
	Principal Principal
	Status    persistence.RescheduleStatus
}

// AnalyticsScope selects the entity an analytics snapshot aggregates over.
type AnalyticsScope string

const (
	ScopeSchedule AnalyticsScope = "schedule"
	ScopeTeacher  AnalyticsScope = "teacher"
	ScopeStudent  AnalyticsScope = "student"
	ScopePlatform AnalyticsScope = "platform"
)

// AnalyticsQuery requests a snapshot.
type AnalyticsQuery struct {
	Principal Principal
	Scope     AnalyticsScope
	SubjectID string
	From      *time.Time
	To        *time.Time
}

// AnalyticsSnapshot is a read-only aggregate over schedules, sessions,
// subscriptions and payments.
type AnalyticsSnapshot struct {
	Scope               AnalyticsScope
	SubjectID           string
	From                *time.Time
	To                  *time.Time
	GeneratedAt         time.Time
	TotalSchedules      int
	ActiveSchedules     int
	TotalSessions       int
	CompletedSessions   int
	MissedSessions      int
	CancelledSessions   int
	UpcomingSessions    int
	DemoSessionsRun     int
	ConvertedSchedules  int
	AttendanceRate      float64
	ConversionRate      float64
	Revenue             int64
	ActiveSubscriptions int
	ClassesConsumed     int
}
