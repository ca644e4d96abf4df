package application_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/happiestt-talha/pentutor-api/internal/application"
	"github.com/happiestt-talha/pentutor-api/internal/persistence"
	"github.com/happiestt-talha/pentutor-api/internal/testfixtures"
)

func TestRescheduleService_RequestAndApprove(t *testing.T) {
	env := newTestEnv(t)
	svc := env.factory.NewRescheduleService(env.harness.Store)
	fixture := env.harness.SeedSchedule(t, testfixtures.NewScheduleFixture())
	session := env.harness.SeedSession(t, testfixtures.NewSessionFixture(fixture.ID))

	proposed := at(20, 18)
	request, err := svc.RequestReschedule(env.ctx, application.RescheduleParams{
		Principal:  fixture.Student(),
		SessionID:  session.ID,
		ProposedAt: proposed,
		Reason:     "exam",
	})
	if err != nil {
		t.Fatalf("RequestReschedule returned error: %v", err)
	}
	if request.Status != persistence.ReschedulePending || !request.OriginalAt.Equal(session.ScheduledAt) || request.RequestedBy != fixture.StudentID {
		t.Fatalf("unexpected request %+v", request)
	}

	pending, err := svc.ListRescheduleRequests(env.ctx, application.ListRescheduleParams{Principal: testfixtures.AdminPrincipal(), Status: persistence.ReschedulePending})
	if err != nil {
		t.Fatalf("ListRescheduleRequests returned error: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected one pending request, got %d", len(pending))
	}

	result, err := svc.ApproveReschedule(env.ctx, application.ResolveRescheduleParams{Principal: testfixtures.AdminPrincipal(), RequestID: request.ID, Note: "ok"})
	if err != nil {
		t.Fatalf("ApproveReschedule returned error: %v", err)
	}
	if result.Session.Status != persistence.SessionRescheduled || !result.Session.ScheduledAt.Equal(proposed) {
		t.Fatalf("expected session moved to %v, got %+v", proposed, result.Session)
	}
	if result.Request.Status != persistence.RescheduleApproved || !result.Request.Approved || result.Request.ApprovedBy == nil {
		t.Fatalf("expected approved request, got %+v", result.Request)
	}

	if _, err := svc.DenyReschedule(env.ctx, application.ResolveRescheduleParams{Principal: testfixtures.AdminPrincipal(), RequestID: request.ID}); !errors.Is(err, application.ErrInvalidState) {
		t.Fatalf("expected decided request to be final, got %v", err)
	}

	kinds := env.pendingKinds(t)
	if kinds["admin.notice"] != 1 || kinds["notification.send"] != 2 || kinds["email.send"] != 2 {
		t.Fatalf("unexpected queued events %v", kinds)
	}
}

func TestRescheduleService_Deny(t *testing.T) {
	env := newTestEnv(t)
	svc := env.factory.NewRescheduleService(env.harness.Store)
	fixture := env.harness.SeedSchedule(t, testfixtures.NewScheduleFixture())
	session := env.harness.SeedSession(t, testfixtures.NewSessionFixture(fixture.ID))

	request, err := svc.RequestReschedule(env.ctx, application.RescheduleParams{
		Principal:  fixture.Teacher(),
		SessionID:  session.ID,
		ProposedAt: at(20, 18),
		Reason:     "travel",
	})
	if err != nil {
		t.Fatalf("RequestReschedule returned error: %v", err)
	}

	if _, err := svc.DenyReschedule(env.ctx, application.ResolveRescheduleParams{Principal: fixture.Teacher(), RequestID: request.ID}); !errors.Is(err, application.ErrUnauthorized) {
		t.Fatalf("expected non-admin to be rejected, got %v", err)
	}

	denied, err := svc.DenyReschedule(env.ctx, application.ResolveRescheduleParams{Principal: testfixtures.AdminPrincipal(), RequestID: request.ID, Note: "no rooms"})
	if err != nil {
		t.Fatalf("DenyReschedule returned error: %v", err)
	}
	if denied.Status != persistence.RescheduleDenied || denied.Approved || denied.DecisionNote != "no rooms" {
		t.Fatalf("unexpected denied request %+v", denied)
	}

	stored, err := env.harness.Store.GetSession(env.ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession returned error: %v", err)
	}
	if !stored.ScheduledAt.Equal(session.ScheduledAt) || stored.Status != persistence.SessionScheduled {
		t.Fatalf("expected session untouched, got %+v", stored)
	}
}

func TestRescheduleService_RequestValidation(t *testing.T) {
	env := newTestEnv(t)
	svc := env.factory.NewRescheduleService(env.harness.Store)
	fixture := env.harness.SeedSchedule(t, testfixtures.NewScheduleFixture())
	session := env.harness.SeedSession(t, testfixtures.NewSessionFixture(fixture.ID))
	done := env.harness.SeedSession(t, testfixtures.NewSessionFixture(fixture.ID,
		testfixtures.WithSessionAt(at(21, 18)),
		testfixtures.WithSessionStatus(persistence.SessionCompleted),
	))

	cases := []struct {
		name     string
		proposed time.Time
		reason   string
		field    string
	}{
		{name: "past time", proposed: at(18, 18), reason: "x", field: "proposed_at"},
		{name: "same time", proposed: session.ScheduledAt, reason: "x", field: "proposed_at"},
		{name: "missing time", reason: "x", field: "proposed_at"},
		{name: "missing reason", proposed: at(20, 18), reason: "  ", field: "reason"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.RequestReschedule(env.ctx, application.RescheduleParams{
				Principal:  fixture.Student(),
				SessionID:  session.ID,
				ProposedAt: tc.proposed,
				Reason:     tc.reason,
			})
			var vErr *application.ValidationError
			if !errors.As(err, &vErr) || vErr.FieldErrors[tc.field] == "" {
				t.Fatalf("expected validation error on %q, got %v", tc.field, err)
			}
		})
	}

	_, err := svc.RequestReschedule(env.ctx, application.RescheduleParams{Principal: fixture.Student(), SessionID: done.ID, ProposedAt: at(22, 18), Reason: "x"})
	if !errors.Is(err, application.ErrInvalidState) {
		t.Fatalf("expected completed session to be rejected, got %v", err)
	}

	stranger := application.Principal{UserID: "student-stranger", Role: application.RoleStudent}
	_, err = svc.RequestReschedule(env.ctx, application.RescheduleParams{Principal: stranger, SessionID: session.ID, ProposedAt: at(20, 18), Reason: "x"})
	if !errors.Is(err, application.ErrUnauthorized) {
		t.Fatalf("expected stranger to be rejected, got %v", err)
	}
}

func TestRescheduleService_ApproveIntoTakenSlotConflicts(t *testing.T) {
	env := newTestEnv(t)
	svc := env.factory.NewRescheduleService(env.harness.Store)
	fixture := env.harness.SeedSchedule(t, testfixtures.NewScheduleFixture())
	session := env.harness.SeedSession(t, testfixtures.NewSessionFixture(fixture.ID))
	env.harness.SeedSession(t, testfixtures.NewSessionFixture(fixture.ID, testfixtures.WithSessionAt(at(21, 18))))

	request, err := svc.RequestReschedule(env.ctx, application.RescheduleParams{
		Principal:  fixture.Student(),
		SessionID:  session.ID,
		ProposedAt: at(21, 18),
		Reason:     "swap",
	})
	if err != nil {
		t.Fatalf("RequestReschedule returned error: %v", err)
	}

	_, err = svc.ApproveReschedule(env.ctx, application.ResolveRescheduleParams{Principal: testfixtures.AdminPrincipal(), RequestID: request.ID})
	if !errors.Is(err, application.ErrConflict) {
		t.Fatalf("expected slot conflict, got %v", err)
	}

	stored, err := env.harness.Store.GetRescheduleRequest(env.ctx, request.ID)
	if err != nil {
		t.Fatalf("GetRescheduleRequest returned error: %v", err)
	}
	if stored.Status != persistence.ReschedulePending {
		t.Fatalf("expected failed approval to roll back, got %s", stored.Status)
	}
}

func TestRescheduleService_ConcurrentApprovalsSucceedOnce(t *testing.T) {
	env := newTestEnv(t)
	svc := env.factory.NewRescheduleService(env.harness.Store)
	fixture := env.harness.SeedSchedule(t, testfixtures.NewScheduleFixture())
	session := env.harness.SeedSession(t, testfixtures.NewSessionFixture(fixture.ID))

	request, err := svc.RequestReschedule(env.ctx, application.RescheduleParams{
		Principal:  fixture.Student(),
		SessionID:  session.ID,
		ProposedAt: at(20, 18),
		Reason:     "exam",
	})
	if err != nil {
		t.Fatalf("RequestReschedule returned error: %v", err)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ApproveReschedule(env.ctx, application.ResolveRescheduleParams{Principal: testfixtures.AdminPrincipal(), RequestID: request.ID})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one approval, got %d", successes)
	}
}

func TestRescheduleService_ListValidation(t *testing.T) {
	env := newTestEnv(t)
	svc := env.factory.NewRescheduleService(env.harness.Store)

	if _, err := svc.ListRescheduleRequests(env.ctx, application.ListRescheduleParams{Principal: application.Principal{UserID: "t", Role: application.RoleTeacher}}); !errors.Is(err, application.ErrUnauthorized) {
		t.Fatalf("expected non-admin to be rejected, got %v", err)
	}
	var vErr *application.ValidationError
	if _, err := svc.ListRescheduleRequests(env.ctx, application.ListRescheduleParams{Principal: testfixtures.AdminPrincipal(), Status: "maybe"}); !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
