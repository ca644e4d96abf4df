package http

import (
	"time"

	"github.com/happiestt-talha/pentutor-api/internal/application"
	"github.com/happiestt-talha/pentutor-api/internal/persistence"
	"github.com/happiestt-talha/pentutor-api/internal/recurrence"
)

type scheduleDTO struct {
	ID              string            `json:"id"`
	TeacherID       string            `json:"teacher_id"`
	StudentID       string            `json:"student_id"`
	Subject         string            `json:"subject"`
	ClassesPerWeek  int               `json:"classes_per_week"`
	ClassDays       []string          `json:"class_days"`
	ClassTimes      map[string]string `json:"class_times"`
	DurationMinutes int               `json:"duration_minutes"`
	WeeklyPrice     int64             `json:"weekly_price"`
	MonthlyPrice    int64             `json:"monthly_price"`
	IsActive        bool              `json:"is_active"`
	DemoCompleted   bool              `json:"demo_completed"`
	DemoDate        *time.Time        `json:"demo_date,omitempty"`
	StartDate       string            `json:"start_date"`
	EndDate         *string           `json:"end_date,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func toScheduleDTO(s persistence.Schedule) scheduleDTO {
	dto := scheduleDTO{
		ID:              s.ID,
		TeacherID:       s.TeacherID,
		StudentID:       s.StudentID,
		Subject:         s.Subject,
		ClassesPerWeek:  s.ClassesPerWeek,
		ClassDays:       s.ClassDays,
		ClassTimes:      s.ClassTimes,
		DurationMinutes: s.DurationMinutes,
		WeeklyPrice:     s.WeeklyPrice,
		MonthlyPrice:    s.MonthlyPrice,
		IsActive:        s.IsActive,
		DemoCompleted:   s.DemoCompleted,
		DemoDate:        s.DemoDate,
		StartDate:       recurrence.FormatDate(s.StartDate),
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
	if s.EndDate != nil {
		end := recurrence.FormatDate(*s.EndDate)
		dto.EndDate = &end
	}
	return dto
}

func toScheduleDTOs(schedules []persistence.Schedule) []scheduleDTO {
	out := make([]scheduleDTO, 0, len(schedules))
	for _, s := range schedules {
		out = append(out, toScheduleDTO(s))
	}
	return out
}

type sessionDTO struct {
	ID              string     `json:"id"`
	ScheduleID      string     `json:"schedule_id"`
	SubscriptionID  *string    `json:"subscription_id,omitempty"`
	ScheduledAt     time.Time  `json:"scheduled_at"`
	ActualAt        *time.Time `json:"actual_at,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
	Status          string     `json:"status"`
	IsDemo          bool       `json:"is_demo"`
	StudentJoined   bool       `json:"student_joined"`
	TeacherJoined   bool       `json:"teacher_joined"`
	StudentJoinedAt *time.Time `json:"student_joined_at,omitempty"`
	TeacherJoinedAt *time.Time `json:"teacher_joined_at,omitempty"`
	StudentLeftAt   *time.Time `json:"student_left_at,omitempty"`
	TeacherLeftAt   *time.Time `json:"teacher_left_at,omitempty"`
	TeacherNotes    string     `json:"teacher_notes,omitempty"`
	StudentFeedback string     `json:"student_feedback,omitempty"`
	MeetingRoomRef  string     `json:"meeting_room_ref,omitempty"`
}

func toSessionDTO(s persistence.Session) sessionDTO {
	return sessionDTO{
		ID:              s.ID,
		ScheduleID:      s.ScheduleID,
		SubscriptionID:  s.SubscriptionID,
		ScheduledAt:     s.ScheduledAt,
		ActualAt:        s.ActualAt,
		DurationMinutes: s.DurationMinutes,
		Status:          string(s.Status),
		IsDemo:          s.IsDemo,
		StudentJoined:   s.StudentJoined,
		TeacherJoined:   s.TeacherJoined,
		StudentJoinedAt: s.StudentJoinedAt,
		TeacherJoinedAt: s.TeacherJoinedAt,
		StudentLeftAt:   s.StudentLeftAt,
		TeacherLeftAt:   s.TeacherLeftAt,
		TeacherNotes:    s.TeacherNotes,
		StudentFeedback: s.StudentFeedback,
		MeetingRoomRef:  s.MeetingRoomRef,
	}
}

func toSessionDTOs(sessions []persistence.Session) []sessionDTO {
	out := make([]sessionDTO, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, toSessionDTO(s))
	}
	return out
}

type subscriptionDTO struct {
	ID         string    `json:"id"`
	ScheduleID string    `json:"schedule_id"`
	StudentID  string    `json:"student_id"`
	Type       string    `json:"type"`
	AmountPaid int64     `json:"amount_paid"`
	Quota      int       `json:"quota"`
	Consumed   int       `json:"consumed"`
	Remaining  int       `json:"remaining"`
	StartDate  string    `json:"start_date"`
	EndDate    string    `json:"end_date"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

func toSubscriptionDTO(s persistence.Subscription) subscriptionDTO {
	return subscriptionDTO{
		ID:         s.ID,
		ScheduleID: s.ScheduleID,
		StudentID:  s.StudentID,
		Type:       string(s.Type),
		AmountPaid: s.AmountPaid,
		Quota:      s.Quota,
		Consumed:   s.Consumed,
		Remaining:  s.Remaining(),
		StartDate:  recurrence.FormatDate(s.StartDate),
		EndDate:    recurrence.FormatDate(s.EndDate),
		Status:     string(s.Status),
		CreatedAt:  s.CreatedAt,
	}
}

type paymentDTO struct {
	ID             string     `json:"id"`
	SubscriptionID string     `json:"subscription_id,omitempty"`
	ScheduleID     string     `json:"schedule_id"`
	StudentID      string     `json:"student_id"`
	Amount         int64      `json:"amount"`
	Method         string     `json:"method"`
	TransactionRef string     `json:"transaction_ref"`
	Status         string     `json:"status"`
	FailureReason  string     `json:"failure_reason,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

func toPaymentDTO(p persistence.Payment) paymentDTO {
	return paymentDTO{
		ID:             p.ID,
		SubscriptionID: p.SubscriptionID,
		ScheduleID:     p.ScheduleID,
		StudentID:      p.StudentID,
		Amount:         p.Amount,
		Method:         p.Method,
		TransactionRef: p.TransactionRef,
		Status:         string(p.Status),
		FailureReason:  p.FailureReason,
		CreatedAt:      p.CreatedAt,
		CompletedAt:    p.CompletedAt,
	}
}

type rescheduleDTO struct {
	ID           string     `json:"id"`
	SessionID    string     `json:"session_id"`
	OriginalAt   time.Time  `json:"original_at"`
	ProposedAt   time.Time  `json:"proposed_at"`
	Reason       string     `json:"reason"`
	RequestedBy  string     `json:"requested_by"`
	Status       string     `json:"status"`
	ApprovedBy   *string    `json:"approved_by,omitempty"`
	ApprovedAt   *time.Time `json:"approved_at,omitempty"`
	DecisionNote string     `json:"decision_note,omitempty"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func toRescheduleDTO(r persistence.RescheduleRequest) rescheduleDTO {
	return rescheduleDTO{
		ID:           r.ID,
		SessionID:    r.SessionID,
		OriginalAt:   r.OriginalAt,
		ProposedAt:   r.ProposedAt,
		Reason:       r.Reason,
		RequestedBy:  r.RequestedBy,
		Status:       string(r.Status),
		ApprovedBy:   r.ApprovedBy,
		ApprovedAt:   r.ApprovedAt,
		DecisionNote: r.DecisionNote,
		ResolvedAt:   r.ResolvedAt,
		CreatedAt:    r.CreatedAt,
	}
}

type occurrenceDTO struct {
	Weekday  string    `json:"weekday"`
	StartsAt time.Time `json:"starts_at"`
}

type upcomingClassDTO struct {
	ScheduleID      string    `json:"schedule_id"`
	Subject         string    `json:"subject"`
	TeacherID       string    `json:"teacher_id"`
	StudentID       string    `json:"student_id"`
	StartsAt        time.Time `json:"starts_at"`
	DurationMinutes int       `json:"duration_minutes"`
}

func toUpcomingDTOs(classes []application.UpcomingClass) []upcomingClassDTO {
	out := make([]upcomingClassDTO, 0, len(classes))
	for _, c := range classes {
		out = append(out, upcomingClassDTO{
			ScheduleID:      c.ScheduleID,
			Subject:         c.Subject,
			TeacherID:       c.TeacherID,
			StudentID:       c.StudentID,
			StartsAt:        c.StartsAt,
			DurationMinutes: c.DurationMinutes,
		})
	}
	return out
}

type analyticsDTO struct {
	Scope               string     `json:"scope"`
	SubjectID           string     `json:"id,omitempty"`
	From                *time.Time `json:"from,omitempty"`
	To                  *time.Time `json:"to,omitempty"`
	GeneratedAt         time.Time  `json:"generated_at"`
	TotalSchedules      int        `json:"total_schedules"`
	ActiveSchedules     int        `json:"active_schedules"`
	TotalSessions       int        `json:"total_sessions"`
	CompletedSessions   int        `json:"completed_sessions"`
	MissedSessions      int        `json:"missed_sessions"`
	CancelledSessions   int        `json:"cancelled_sessions"`
	UpcomingSessions    int        `json:"upcoming_sessions"`
	DemoSessionsRun     int        `json:"demo_sessions_run"`
	ConvertedSchedules  int        `json:"converted_schedules"`
	AttendanceRate      float64    `json:"attendance_rate"`
	ConversionRate      float64    `json:"conversion_rate"`
	Revenue             int64      `json:"revenue"`
	ActiveSubscriptions int        `json:"active_subscriptions"`
	ClassesConsumed     int        `json:"classes_consumed"`
}

func toAnalyticsDTO(s application.AnalyticsSnapshot) analyticsDTO {
	return analyticsDTO{
		Scope:               string(s.Scope),
		SubjectID:           s.SubjectID,
		From:                s.From,
		To:                  s.To,
		GeneratedAt:         s.GeneratedAt,
		TotalSchedules:      s.TotalSchedules,
		ActiveSchedules:     s.ActiveSchedules,
		TotalSessions:       s.TotalSessions,
		CompletedSessions:   s.CompletedSessions,
		MissedSessions:      s.MissedSessions,
		CancelledSessions:   s.CancelledSessions,
		UpcomingSessions:    s.UpcomingSessions,
		DemoSessionsRun:     s.DemoSessionsRun,
		ConvertedSchedules:  s.ConvertedSchedules,
		AttendanceRate:      s.AttendanceRate,
		ConversionRate:      s.ConversionRate,
		Revenue:             s.Revenue,
		ActiveSubscriptions: s.ActiveSubscriptions,
		ClassesConsumed:     s.ClassesConsumed,
	}
}
