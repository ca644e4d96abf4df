package application

import (
	"context"
	"time"

	"github.com/happiestt-talha/pentutor-api/internal/persistence"
	"github.com/happiestt-talha/pentutor-api/internal/recurrence"
)

// AccessGate decides who may join a session. The teacher always may; the
// student may while the free demo is still pending and afterwards only with a
// subscription covering the session date.
type AccessGate struct {
	subscriptions persistence.SubscriptionRepository
	engine        *recurrence.Engine
	now           func() time.Time
}

// NewAccessGate constructs the gate.
func NewAccessGate(subscriptions persistence.SubscriptionRepository, engine *recurrence.Engine, now func() time.Time) *AccessGate {
	if engine == nil {
		engine = recurrence.NewEngine(time.UTC)
	}
	if now == nil {
		now = time.Now
	}
	return &AccessGate{subscriptions: subscriptions, engine: engine, now: now}
}

// CanJoin returns the participant side the principal joins as. Admins are
// admitted with an empty side. A refusal is an *AccessDeniedError.
func (g *AccessGate) CanJoin(ctx context.Context, schedule persistence.Schedule, session persistence.Session, principal Principal) (persistence.Side, error) {
	switch {
	case principal.UserID == schedule.TeacherID:
		return persistence.SideTeacher, nil
	case principal.UserID == schedule.StudentID:
	case principal.IsAdmin():
		return "", nil
	default:
		return "", &AccessDeniedError{Reason: DenialNotParticipant}
	}

	if !schedule.DemoCompleted {
		return persistence.SideStudent, nil
	}

	subscription, err := g.subscriptionFor(ctx, schedule, session)
	if err != nil {
		return "", err
	}
	if subscription == nil {
		return "", &AccessDeniedError{Reason: DenialNoSubscription}
	}
	today := g.engine.DateOf(g.now())
	switch {
	case subscription.CanAttend(today):
		return persistence.SideStudent, nil
	case subscription.Consumed >= subscription.Quota:
		return "", &AccessDeniedError{Reason: DenialQuotaExhausted}
	default:
		return "", &AccessDeniedError{Reason: DenialExpired}
	}
}

// subscriptionFor picks the subscription deciding a join: any covering one
// that can still attend, otherwise the newest covering one.
func (g *AccessGate) subscriptionFor(ctx context.Context, schedule persistence.Schedule, session persistence.Session) (*persistence.Subscription, error) {
	covering, err := g.subscriptions.CoveringSubscriptions(ctx, schedule.ID, g.engine.DateOf(session.ScheduledAt))
	if err != nil {
		return nil, err
	}
	if len(covering) == 0 {
		return nil, nil
	}
	today := g.engine.DateOf(g.now())
	for i := range covering {
		if covering[i].CanAttend(today) {
			return &covering[i], nil
		}
	}
	return &covering[0], nil
}
