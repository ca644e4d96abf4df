package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/happiestt-talha/pentutor-api/internal/logging"
	"github.com/happiestt-talha/pentutor-api/internal/persistence"
)

// MeetingRooms creates and closes rooms on the external meeting service.
type MeetingRooms interface {
	CreateRoom(ctx context.Context, request MeetingRoomPayload) (string, error)
	CloseRoom(ctx context.Context, request MeetingClosePayload) error
}

// Notifier delivers in-app notifications.
type Notifier interface {
	Notify(ctx context.Context, notification NotificationPayload) error
}

// Mailer delivers emails.
type Mailer interface {
	Send(ctx context.Context, email EmailPayload) error
}

// AdminChannel broadcasts notices to administrators.
type AdminChannel interface {
	Announce(ctx context.Context, notice AdminNoticePayload) error
}

// Store is the persistence the dispatcher needs.
type Store interface {
	persistence.OutboxRepository
	SetMeetingRoom(ctx context.Context, id, ref string, at time.Time) (bool, error)
}

// Sinks groups the outward collaborators. A nil sink fails its events, which
// keeps them queued until one is configured.
type Sinks struct {
	Rooms    MeetingRooms
	Notifier Notifier
	Mailer   Mailer
	Admin    AdminChannel
}

// Policy bounds batch size and retry backoff.
type Policy struct {
	BatchSize   int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// MaxAttempts after which failures are logged as errors. Events are never dropped.
	MaxAttempts int
}

// DefaultPolicy returns the production dispatch policy.
func DefaultPolicy() Policy {
	return Policy{
		BatchSize:   50,
		BaseBackoff: 30 * time.Second,
		MaxBackoff:  time.Hour,
		MaxAttempts: 8,
	}
}

// ErrNoSink reports an event whose collaborator is not configured.
var ErrNoSink = errors.New("outbox: no sink configured")

// Dispatcher performs committed side effects with at-least-once delivery.
type Dispatcher struct {
	store  Store
	sinks  Sinks
	policy Policy
	now    func() time.Time
	logger *slog.Logger
}

// NewDispatcher constructs a dispatcher.
func NewDispatcher(store Store, sinks Sinks, policy Policy, now func() time.Time, logger *slog.Logger) *Dispatcher {
	defaults := DefaultPolicy()
	if policy.BatchSize <= 0 {
		policy.BatchSize = defaults.BatchSize
	}
	if policy.BaseBackoff <= 0 {
		policy.BaseBackoff = defaults.BaseBackoff
	}
	if policy.MaxBackoff <= 0 {
		policy.MaxBackoff = defaults.MaxBackoff
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = defaults.MaxAttempts
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{store: store, sinks: sinks, policy: policy, now: now, logger: logger}
}

// DispatchResult summarizes one dispatch pass.
type DispatchResult struct {
	Dispatched int
	Failed     int
}

// DispatchPending delivers one batch of due events. Delivery failures are
// recorded on the event and rescheduled; only storage errors are returned.
func (d *Dispatcher) DispatchPending(ctx context.Context) (DispatchResult, error) {
	logger := d.loggerFor(ctx)
	var result DispatchResult

	events, err := d.store.PendingEvents(ctx, d.now(), d.policy.BatchSize)
	if err != nil {
		return result, fmt.Errorf("load pending events: %w", err)
	}

	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if deliverErr := d.deliver(ctx, event); deliverErr != nil {
			result.Failed++
			attempts := event.Attempts + 1
			next := d.now().Add(d.backoff(attempts))
			level := slog.LevelWarn
			if attempts >= d.policy.MaxAttempts {
				level = slog.LevelError
			}
			logger.Log(ctx, level, "outbox delivery failed",
				"event_id", event.ID,
				"kind", event.Kind,
				"attempts", attempts,
				"next_attempt_at", next,
				"error", deliverErr,
			)
			if err := d.store.MarkEventFailed(ctx, event.ID, attempts, next, deliverErr.Error()); err != nil {
				return result, fmt.Errorf("record failure of event %s: %w", event.ID, err)
			}
			continue
		}
		if err := d.store.MarkEventDispatched(ctx, event.ID, d.now()); err != nil {
			return result, fmt.Errorf("mark event %s dispatched: %w", event.ID, err)
		}
		result.Dispatched++
	}

	if len(events) > 0 {
		logger.DebugContext(ctx, "outbox batch dispatched", "dispatched", result.Dispatched, "failed", result.Failed)
	}
	return result, nil
}

// Run drains the outbox until a pass finds nothing due. Used by the periodic job.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		result, err := d.DispatchPending(ctx)
		if err != nil {
			return err
		}
		if result.Dispatched+result.Failed < d.policy.BatchSize {
			return nil
		}
		if result.Dispatched == 0 {
			return nil
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event persistence.OutboxEvent) error {
	switch event.Kind {
	case KindMeetingRoom:
		var payload MeetingRoomPayload
		if err := Decode(event, &payload); err != nil {
			return err
		}
		return d.createRoom(ctx, payload)
	case KindMeetingClose:
		var payload MeetingClosePayload
		if err := Decode(event, &payload); err != nil {
			return err
		}
		if d.sinks.Rooms == nil {
			return ErrNoSink
		}
		return d.sinks.Rooms.CloseRoom(ctx, payload)
	case KindNotification:
		var payload NotificationPayload
		if err := Decode(event, &payload); err != nil {
			return err
		}
		if d.sinks.Notifier == nil {
			return ErrNoSink
		}
		return d.sinks.Notifier.Notify(ctx, payload)
	case KindEmail:
		var payload EmailPayload
		if err := Decode(event, &payload); err != nil {
			return err
		}
		if d.sinks.Mailer == nil {
			return ErrNoSink
		}
		return d.sinks.Mailer.Send(ctx, payload)
	case KindAdminNotice:
		var payload AdminNoticePayload
		if err := Decode(event, &payload); err != nil {
			return err
		}
		if d.sinks.Admin == nil {
			return ErrNoSink
		}
		return d.sinks.Admin.Announce(ctx, payload)
	default:
		return fmt.Errorf("outbox: unknown event kind %q", event.Kind)
	}
}

// createRoom provisions the room and stores its reference. A session that got
// a room meanwhile (join-time fallback) keeps the first one.
func (d *Dispatcher) createRoom(ctx context.Context, payload MeetingRoomPayload) error {
	if d.sinks.Rooms == nil {
		return ErrNoSink
	}
	ref, err := d.sinks.Rooms.CreateRoom(ctx, payload)
	if err != nil {
		return err
	}
	stored, err := d.store.SetMeetingRoom(ctx, payload.SessionID, ref, d.now())
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil
		}
		return err
	}
	if !stored {
		d.loggerFor(ctx).InfoContext(ctx, "meeting room already assigned", "session_id", payload.SessionID, "room_ref", ref)
	}
	return nil
}

// backoff returns the delay before the given attempt number (1-based).
func (d *Dispatcher) backoff(attempts int) time.Duration {
	b := retry.WithCappedDuration(d.policy.MaxBackoff, retry.NewExponential(d.policy.BaseBackoff))
	delay := d.policy.BaseBackoff
	for i := 0; i < attempts; i++ {
		next, stop := b.Next()
		if stop {
			break
		}
		delay = next
	}
	return delay
}

func (d *Dispatcher) loggerFor(ctx context.Context) *slog.Logger {
	return logging.FromContextOr(ctx, d.logger).With("component", "outbox")
}
