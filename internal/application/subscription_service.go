package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/happiestt-talha/pentutor-api/internal/outbox"
	"github.com/happiestt-talha/pentutor-api/internal/persistence"
	"github.com/happiestt-talha/pentutor-api/internal/recurrence"
)

// SubscriptionService sells and expires class entitlements.
type SubscriptionService struct {
	store       persistence.Store
	engine      *recurrence.Engine
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewSubscriptionService constructs a subscription service.
func NewSubscriptionService(store persistence.Store, engine *recurrence.Engine, idGenerator func() string, now func() time.Time) *SubscriptionService {
	return NewSubscriptionServiceWithLogger(store, engine, idGenerator, now, nil)
}

// NewSubscriptionServiceWithLogger constructs a subscription service with a specified logger.
func NewSubscriptionServiceWithLogger(store persistence.Store, engine *recurrence.Engine, idGenerator func() string, now func() time.Time, logger *slog.Logger) *SubscriptionService {
	if engine == nil {
		engine = recurrence.NewEngine(time.UTC)
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &SubscriptionService{store: store, engine: engine, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

func (s *SubscriptionService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "SubscriptionService", operation, attrs...)
}

// PurchaseSubscription turns a completed payment into a subscription. The
// subscription and payment are stored together and already materialized
// sessions in the window are linked to the new subscription.
func (s *SubscriptionService) PurchaseSubscription(ctx context.Context, params PurchaseParams) (result PurchaseResult, err error) {
	if s == nil {
		err = fmt.Errorf("SubscriptionService is nil")
		return
	}

	logger := s.loggerWith(ctx, "PurchaseSubscription",
		"principal_id", params.Principal.UserID,
		"schedule_id", params.ScheduleID,
		"subscription_type", string(params.Type),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to purchase subscription", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With(
			"subscription_id", result.Subscription.ID,
			"quota", result.Subscription.Quota,
			"end_date", recurrence.FormatDate(result.Subscription.EndDate),
			"attached_sessions", result.AttachedSessions,
		).InfoContext(ctx, "subscription purchased")
	}()

	var schedule persistence.Schedule
	schedule, err = s.store.GetSchedule(ctx, params.ScheduleID)
	if err != nil {
		err = mapRepoError(err, "schedule")
		return
	}
	if !params.Principal.IsAdmin() && params.Principal.UserID != schedule.StudentID {
		err = ErrUnauthorized
		return
	}

	now := s.now()
	today := s.engine.DateOf(now)
	start := params.StartDate
	if start.IsZero() {
		start = today
	}
	start = dateOnly(start)

	vErr := validatePurchase(params, schedule, start, today)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	pattern, perr := recurrence.NewPattern(schedule.ClassDays, schedule.ClassTimes)
	if perr != nil {
		err = fmt.Errorf("stored pattern for schedule %s: %w", schedule.ID, perr)
		return
	}
	var window EntitlementWindow
	window, err = ComputeEntitlementWindow(pattern, schedule.ClassesPerWeek, params.Type, start)
	if err != nil {
		return
	}
	if window.Quota <= 0 {
		vErr.add("type", "no classes remain in this period")
		err = vErr
		return
	}

	subscription := persistence.Subscription{
		ID:         s.idGenerator(),
		ScheduleID: schedule.ID,
		StudentID:  schedule.StudentID,
		Type:       params.Type,
		AmountPaid: params.Payment.Amount,
		Quota:      window.Quota,
		StartDate:  window.StartDate,
		EndDate:    window.EndDate,
		Status:     persistence.SubscriptionActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	method := strings.TrimSpace(params.Payment.Method)
	if method == "" {
		method = "card"
	}
	payment := persistence.Payment{
		ID:             s.idGenerator(),
		SubscriptionID: subscription.ID,
		ScheduleID:     schedule.ID,
		StudentID:      schedule.StudentID,
		Amount:         params.Payment.Amount,
		Method:         method,
		TransactionRef: strings.TrimSpace(params.Payment.TransactionRef),
		Status:         persistence.PaymentCompleted,
		CreatedAt:      now,
		CompletedAt:    &now,
	}

	var attached int64
	err = s.store.WithinTx(ctx, func(tx persistence.Repositories) error {
		if err := tx.CreateSubscription(ctx, subscription); err != nil {
			return mapRepoError(err, "subscription")
		}
		if err := tx.CreatePayment(ctx, payment); err != nil {
			if errors.Is(err, persistence.ErrDuplicate) {
				return &ConflictError{Resource: "payment", Message: "transaction reference already used"}
			}
			return mapRepoError(err, "payment")
		}

		// The window is inclusive of its end date; sessions are linked up to
		// the following midnight in the engine location.
		from := time.Date(window.StartDate.Year(), window.StartDate.Month(), window.StartDate.Day(), 0, 0, 0, 0, s.engine.Location())
		to := time.Date(window.EndDate.Year(), window.EndDate.Month(), window.EndDate.Day()+1, 0, 0, 0, 0, s.engine.Location())
		n, err := tx.AttachSubscription(ctx, schedule.ID, subscription.ID, from, to, now)
		if err != nil {
			return err
		}
		attached = n

		events := outbox.NewBuilder(s.idGenerator, now).
			Notify(outbox.NotificationPayload{
				RecipientID: schedule.TeacherID,
				Category:    "subscription_purchased",
				Title:       "New subscription",
				Message:     fmt.Sprintf("Student %s bought a %s %s subscription (%d classes).", schedule.StudentID, params.Type, schedule.Subject, window.Quota),
				ScheduleID:  schedule.ID,
			}).
			Email(outbox.EmailPayload{
				RecipientID: schedule.StudentID,
				Subject:     "Subscription confirmed",
				Body: fmt.Sprintf("Your %s %s subscription is active from %s to %s with %d classes.",
					params.Type, schedule.Subject, recurrence.FormatDate(window.StartDate), recurrence.FormatDate(window.EndDate), window.Quota),
			}).
			Admin(outbox.AdminNoticePayload{
				Category: "subscription_purchased",
				Title:    "Subscription purchased",
				Message:  fmt.Sprintf("Schedule %s: %s subscription, amount %d, ref %s.", schedule.ID, params.Type, payment.Amount, payment.TransactionRef),
			})
		return enqueue(ctx, tx, events)
	})
	if err != nil {
		return
	}

	result = PurchaseResult{Subscription: subscription, Payment: payment, AttachedSessions: attached}
	return
}

// ListSubscriptions returns subscriptions visible to the principal, newest first.
func (s *SubscriptionService) ListSubscriptions(ctx context.Context, params ListSubscriptionsParams) (subscriptions []persistence.Subscription, err error) {
	if s == nil {
		err = fmt.Errorf("SubscriptionService is nil")
		return
	}
	filter := persistence.SubscriptionFilter{ScheduleID: params.ScheduleID}
	switch params.Principal.Role {
	case RoleAdmin:
	case RoleTeacher:
		filter.TeacherID = params.Principal.UserID
	case RoleStudent:
		filter.StudentID = params.Principal.UserID
	default:
		err = ErrUnauthorized
		return
	}
	subscriptions, err = s.store.ListSubscriptions(ctx, filter)
	return
}

// ListPayments returns the payment ledger, oldest first. Only admins may read it.
func (s *SubscriptionService) ListPayments(ctx context.Context, params ListPaymentsParams) (payments []persistence.Payment, err error) {
	if s == nil {
		err = fmt.Errorf("SubscriptionService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ListPayments", "principal_id", params.Principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list payments", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(payments)).DebugContext(ctx, "payments listed")
	}()

	if !params.Principal.IsAdmin() {
		err = ErrUnauthorized
		return
	}
	vErr := &ValidationError{}
	switch params.Status {
	case "", persistence.PaymentPending, persistence.PaymentCompleted, persistence.PaymentFailed, persistence.PaymentRefunded:
	default:
		vErr.add("status", "status must be pending, completed, failed or refunded")
	}
	if params.From != nil && params.To != nil && !params.From.Before(*params.To) {
		vErr.add("from", "from must be before to")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	payments, err = s.store.ListPayments(ctx, persistence.PaymentFilter{
		ScheduleID: params.ScheduleID,
		StudentID:  params.StudentID,
		Status:     params.Status,
		From:       params.From,
		To:         params.To,
	})
	return
}

// ExpireLapsed expires active subscriptions whose window ended before today.
// Each row is guarded, so overlapping runs expire and notify once.
func (s *SubscriptionService) ExpireLapsed(ctx context.Context) (expired int, err error) {
	if s == nil {
		err = fmt.Errorf("SubscriptionService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ExpireLapsed")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "subscription expiry incomplete", "error", err, "error_kind", ErrorKind(err), "expired", expired)
			return
		}
		if expired > 0 {
			logger.With("expired", expired).InfoContext(ctx, "subscriptions expired")
		}
	}()

	now := s.now()
	today := s.engine.DateOf(now)
	var lapsed []persistence.Subscription
	lapsed, err = s.store.ListSubscriptions(ctx, persistence.SubscriptionFilter{
		Statuses:   []persistence.SubscriptionStatus{persistence.SubscriptionActive},
		EndsBefore: &today,
	})
	if err != nil {
		return
	}

	var errs []error
	for _, subscription := range lapsed {
		changed := false
		txErr := s.store.WithinTx(ctx, func(tx persistence.Repositories) error {
			ok, err := tx.ExpireSubscription(ctx, subscription.ID, today, now)
			if err != nil || !ok {
				return err
			}
			changed = true
			events := outbox.NewBuilder(s.idGenerator, now).
				Notify(outbox.NotificationPayload{
					RecipientID: subscription.StudentID,
					Category:    "subscription_expired",
					Title:       "Subscription expired",
					Message:     "Your class subscription has expired. Renew to keep attending.",
					ScheduleID:  subscription.ScheduleID,
				}).
				Email(outbox.EmailPayload{
					RecipientID: subscription.StudentID,
					Subject:     "Your subscription has expired",
					Body: fmt.Sprintf("Your %s subscription ended on %s with %d of %d classes used.",
						subscription.Type, recurrence.FormatDate(subscription.EndDate), subscription.Consumed, subscription.Quota),
				})
			return enqueue(ctx, tx, events)
		})
		if txErr != nil {
			errs = append(errs, fmt.Errorf("expire subscription %s: %w", subscription.ID, txErr))
			continue
		}
		if changed {
			expired++
		}
	}
	err = errors.Join(errs...)
	return
}

func validatePurchase(params PurchaseParams, schedule persistence.Schedule, start, today time.Time) *ValidationError {
	vErr := &ValidationError{}

	switch params.Type {
	case persistence.SubscriptionWeekly, persistence.SubscriptionMonthly:
	default:
		vErr.add("type", "type must be weekly or monthly")
	}
	if start.Before(today) {
		vErr.add("start_date", "start date cannot be in the past")
	}
	if !schedule.CoversDate(start) {
		vErr.add("start_date", "start date is outside the schedule validity")
	}
	if strings.TrimSpace(params.Payment.TransactionRef) == "" {
		vErr.add("transaction_ref", "transaction reference is required")
	}
	if params.Payment.Status != persistence.PaymentCompleted {
		vErr.add("payment_status", "payment must be completed")
	}
	if params.Payment.Amount <= 0 {
		vErr.add("amount", "amount must be positive")
	} else if vErr.FieldErrors["type"] == "" && params.Payment.Amount != priceFor(schedule, params.Type) {
		vErr.add("amount", fmt.Sprintf("amount must equal the %s price %d", params.Type, priceFor(schedule, params.Type)))
	}
	return vErr
}
