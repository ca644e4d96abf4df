package testfixtures

import (
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/happiestt-talha/pentutor-api/internal/application"
	"github.com/happiestt-talha/pentutor-api/internal/persistence"
	"github.com/happiestt-talha/pentutor-api/internal/recurrence"
)

var (
	scheduleCounter     uint64
	sessionCounter      uint64
	subscriptionCounter uint64
)

// referenceTime is a Monday morning; the default pattern has a class that evening.
var referenceTime = time.Date(2026, time.October, 19, 8, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ReferenceDate returns the calendar date of ReferenceTime.
func ReferenceDate() time.Time {
	y, m, d := referenceTime.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AdminPrincipal returns an administrator principal.
func AdminPrincipal() application.Principal {
	return application.Principal{UserID: "admin-001", Role: application.RoleAdmin}
}

// --------------------------- Schedule fixtures ---------------------------

// ScheduleFixture represents a deterministic schedule definition.
type ScheduleFixture struct {
	ID              string
	TeacherID       string
	StudentID       string
	Subject         string
	ClassTimes      map[string]string
	DurationMinutes int
	WeeklyPrice     int64
	MonthlyPrice    int64
	IsActive        bool
	DemoCompleted   bool
	StartDate       time.Time
	EndDate         *time.Time
	CreatedAt       time.Time
}

// ScheduleOption configures the generated schedule fixture.
type ScheduleOption func(*ScheduleFixture)

// NewScheduleFixture returns a Monday/Wednesday 18:00 schedule with optional overrides.
func NewScheduleFixture(opts ...ScheduleOption) ScheduleFixture {
	idx := atomic.AddUint64(&scheduleCounter, 1)
	fixture := ScheduleFixture{
		ID:              fmt.Sprintf("schedule-%03d", idx),
		TeacherID:       fmt.Sprintf("teacher-%03d", idx),
		StudentID:       fmt.Sprintf("student-%03d", idx),
		Subject:         "Mathematics",
		ClassTimes:      map[string]string{"monday": "18:00", "wednesday": "18:00"},
		DurationMinutes: 60,
		WeeklyPrice:     2000,
		MonthlyPrice:    7000,
		IsActive:        true,
		StartDate:       ReferenceDate(),
		CreatedAt:       referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithScheduleID overrides the generated schedule ID.
func WithScheduleID(id string) ScheduleOption {
	return func(f *ScheduleFixture) { f.ID = id }
}

// WithScheduleParticipants sets the teacher and student.
func WithScheduleParticipants(teacherID, studentID string) ScheduleOption {
	return func(f *ScheduleFixture) {
		f.TeacherID = teacherID
		f.StudentID = studentID
	}
}

// WithScheduleSubject overrides the subject.
func WithScheduleSubject(subject string) ScheduleOption {
	return func(f *ScheduleFixture) { f.Subject = subject }
}

// WithScheduleTimes replaces the weekly pattern.
func WithScheduleTimes(times map[string]string) ScheduleOption {
	return func(f *ScheduleFixture) { f.ClassTimes = times }
}

// WithSchedulePrices overrides the weekly and monthly prices.
func WithSchedulePrices(weekly, monthly int64) ScheduleOption {
	return func(f *ScheduleFixture) {
		f.WeeklyPrice = weekly
		f.MonthlyPrice = monthly
	}
}

// WithScheduleDemoCompleted marks the free trial as used.
func WithScheduleDemoCompleted() ScheduleOption {
	return func(f *ScheduleFixture) { f.DemoCompleted = true }
}

// WithScheduleInactive deactivates the schedule.
func WithScheduleInactive() ScheduleOption {
	return func(f *ScheduleFixture) { f.IsActive = false }
}

// WithScheduleValidity sets the start and optional end dates.
func WithScheduleValidity(start time.Time, end *time.Time) ScheduleOption {
	return func(f *ScheduleFixture) {
		f.StartDate = start
		f.EndDate = end
	}
}

// Days returns the class days ordered Monday first.
func (f ScheduleFixture) Days() []string {
	days := make([]string, 0, len(f.ClassTimes))
	for day := range f.ClassTimes {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool {
		a, _ := recurrence.ParseWeekday(days[i])
		b, _ := recurrence.ParseWeekday(days[j])
		return (int(a)+6)%7 < (int(b)+6)%7
	})
	return days
}

// Persistence converts the fixture into a stored schedule.
func (f ScheduleFixture) Persistence() persistence.Schedule {
	times := make(map[string]string, len(f.ClassTimes))
	for day, at := range f.ClassTimes {
		times[day] = at
	}
	var demoDate *time.Time
	if f.DemoCompleted {
		at := f.CreatedAt
		demoDate = &at
	}
	return persistence.Schedule{
		ID:              f.ID,
		TeacherID:       f.TeacherID,
		StudentID:       f.StudentID,
		Subject:         f.Subject,
		ClassesPerWeek:  len(f.ClassTimes),
		ClassDays:       f.Days(),
		ClassTimes:      times,
		DurationMinutes: f.DurationMinutes,
		WeeklyPrice:     f.WeeklyPrice,
		MonthlyPrice:    f.MonthlyPrice,
		IsActive:        f.IsActive,
		DemoCompleted:   f.DemoCompleted,
		DemoDate:        demoDate,
		StartDate:       f.StartDate,
		EndDate:         f.EndDate,
		CreatedAt:       f.CreatedAt,
		UpdatedAt:       f.CreatedAt,
	}
}

// Input converts the fixture into a create request.
func (f ScheduleFixture) Input() application.ScheduleInput {
	times := make(map[string]string, len(f.ClassTimes))
	for day, at := range f.ClassTimes {
		times[day] = at
	}
	return application.ScheduleInput{
		TeacherID:       f.TeacherID,
		StudentID:       f.StudentID,
		Subject:         f.Subject,
		ClassesPerWeek:  len(f.ClassTimes),
		ClassDays:       f.Days(),
		ClassTimes:      times,
		DurationMinutes: f.DurationMinutes,
		WeeklyPrice:     f.WeeklyPrice,
		MonthlyPrice:    f.MonthlyPrice,
		StartDate:       f.StartDate,
		EndDate:         f.EndDate,
	}
}

// CreateParams returns a create request issued by the schedule's teacher.
func (f ScheduleFixture) CreateParams() application.CreateScheduleParams {
	return application.CreateScheduleParams{Principal: f.Teacher(), Input: f.Input()}
}

// Teacher returns the schedule's teacher as a principal.
func (f ScheduleFixture) Teacher() application.Principal {
	return application.Principal{UserID: f.TeacherID, Role: application.RoleTeacher}
}

// Student returns the schedule's student as a principal.
func (f ScheduleFixture) Student() application.Principal {
	return application.Principal{UserID: f.StudentID, Role: application.RoleStudent}
}

// --------------------------- Session fixtures ----------------------------

// SessionFixture represents a deterministic session.
type SessionFixture struct {
	ID              string
	ScheduleID      string
	SubscriptionID  *string
	ScheduledAt     time.Time
	DurationMinutes int
	Status          persistence.SessionStatus
	IsDemo          bool
	MeetingRoomRef  string
	CreatedAt       time.Time
}

// SessionOption configures the generated session fixture.
type SessionOption func(*SessionFixture)

// NewSessionFixture returns a scheduled session for scheduleID at the
// reference Monday class time.
func NewSessionFixture(scheduleID string, opts ...SessionOption) SessionFixture {
	idx := atomic.AddUint64(&sessionCounter, 1)
	fixture := SessionFixture{
		ID:              fmt.Sprintf("session-%03d", idx),
		ScheduleID:      scheduleID,
		ScheduledAt:     time.Date(2026, time.October, 19, 18, 0, 0, 0, time.UTC),
		DurationMinutes: 60,
		Status:          persistence.SessionScheduled,
		CreatedAt:       referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithSessionID overrides the generated session ID.
func WithSessionID(id string) SessionOption {
	return func(f *SessionFixture) { f.ID = id }
}

// WithSessionAt overrides the slot.
func WithSessionAt(t time.Time) SessionOption {
	return func(f *SessionFixture) { f.ScheduledAt = t }
}

// WithSessionStatus overrides the status.
func WithSessionStatus(status persistence.SessionStatus) SessionOption {
	return func(f *SessionFixture) { f.Status = status }
}

// WithSessionDemo marks the session as the free demo.
func WithSessionDemo() SessionOption {
	return func(f *SessionFixture) { f.IsDemo = true }
}

// WithSessionSubscription links the session to a subscription.
func WithSessionSubscription(id string) SessionOption {
	return func(f *SessionFixture) { f.SubscriptionID = &id }
}

// WithSessionRoom sets the meeting room reference.
func WithSessionRoom(ref string) SessionOption {
	return func(f *SessionFixture) { f.MeetingRoomRef = ref }
}

// Persistence converts the fixture into a stored session.
func (f SessionFixture) Persistence() persistence.Session {
	var subscriptionID *string
	if f.SubscriptionID != nil {
		id := *f.SubscriptionID
		subscriptionID = &id
	}
	return persistence.Session{
		ID:              f.ID,
		ScheduleID:      f.ScheduleID,
		SubscriptionID:  subscriptionID,
		ScheduledAt:     f.ScheduledAt,
		DurationMinutes: f.DurationMinutes,
		Status:          f.Status,
		IsDemo:          f.IsDemo,
		MeetingRoomRef:  f.MeetingRoomRef,
		CreatedAt:       f.CreatedAt,
		UpdatedAt:       f.CreatedAt,
	}
}

// ------------------------- Subscription fixtures -------------------------

// SubscriptionFixture represents a deterministic subscription.
type SubscriptionFixture struct {
	ID         string
	ScheduleID string
	StudentID  string
	Type       persistence.SubscriptionType
	AmountPaid int64
	Quota      int
	Consumed   int
	StartDate  time.Time
	EndDate    time.Time
	Status     persistence.SubscriptionStatus
	CreatedAt  time.Time
}

// SubscriptionOption configures the generated subscription fixture.
type SubscriptionOption func(*SubscriptionFixture)

// NewSubscriptionFixture returns an active weekly subscription for the schedule
// starting on the reference date.
func NewSubscriptionFixture(schedule ScheduleFixture, opts ...SubscriptionOption) SubscriptionFixture {
	idx := atomic.AddUint64(&subscriptionCounter, 1)
	fixture := SubscriptionFixture{
		ID:         fmt.Sprintf("subscription-%03d", idx),
		ScheduleID: schedule.ID,
		StudentID:  schedule.StudentID,
		Type:       persistence.SubscriptionWeekly,
		AmountPaid: schedule.WeeklyPrice,
		Quota:      len(schedule.ClassTimes),
		StartDate:  ReferenceDate(),
		EndDate:    ReferenceDate().AddDate(0, 0, 7),
		Status:     persistence.SubscriptionActive,
		CreatedAt:  referenceTime.Add(time.Duration(idx) * time.Second),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithSubscriptionID overrides the generated subscription ID.
func WithSubscriptionID(id string) SubscriptionOption {
	return func(f *SubscriptionFixture) { f.ID = id }
}

// WithSubscriptionQuota sets quota and consumed classes.
func WithSubscriptionQuota(quota, consumed int) SubscriptionOption {
	return func(f *SubscriptionFixture) {
		f.Quota = quota
		f.Consumed = consumed
	}
}

// WithSubscriptionWindow sets the validity dates.
func WithSubscriptionWindow(start, end time.Time) SubscriptionOption {
	return func(f *SubscriptionFixture) {
		f.StartDate = start
		f.EndDate = end
	}
}

// WithSubscriptionStatus overrides the status.
func WithSubscriptionStatus(status persistence.SubscriptionStatus) SubscriptionOption {
	return func(f *SubscriptionFixture) { f.Status = status }
}

// WithSubscriptionCreatedAt overrides the creation time, which orders covering lookups.
func WithSubscriptionCreatedAt(t time.Time) SubscriptionOption {
	return func(f *SubscriptionFixture) { f.CreatedAt = t }
}

// Persistence converts the fixture into a stored subscription.
func (f SubscriptionFixture) Persistence() persistence.Subscription {
	return persistence.Subscription{
		ID:         f.ID,
		ScheduleID: f.ScheduleID,
		StudentID:  f.StudentID,
		Type:       f.Type,
		AmountPaid: f.AmountPaid,
		Quota:      f.Quota,
		Consumed:   f.Consumed,
		StartDate:  f.StartDate,
		EndDate:    f.EndDate,
		Status:     f.Status,
		CreatedAt:  f.CreatedAt,
		UpdatedAt:  f.CreatedAt,
	}
}
