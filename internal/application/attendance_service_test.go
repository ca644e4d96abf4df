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

func newAttendance(env *testEnv, rooms application.MeetingRooms) *application.AttendanceService {
	return env.factory.NewAttendanceService(testfixtures.AttendanceServiceDeps{
		Store: env.harness.Store,
		Rooms: rooms,
	})
}

func TestAttendanceService_RequestJoinProvisionsRoom(t *testing.T) {
	env := newTestEnv(t)
	recorder := testfixtures.NewRecorder()
	svc := newAttendance(env, recorder)
	fixture := env.harness.SeedSchedule(t, testfixtures.NewScheduleFixture())
	session := env.harness.SeedSession(t, testfixtures.NewSessionFixture(fixture.ID, testfixtures.WithSessionDemo()))
	env.clock.Set(at(19, 17))

	result, err := svc.RequestJoin(env.ctx, application.JoinParams{Principal: fixture.Student(), SessionID: session.ID})
	if err != nil {
		t.Fatalf("RequestJoin returned error: %v", err)
	}
	if result.Side != persistence.SideStudent || result.MeetingRoomRef != "room-"+session.ID {
		t.Fatalf("unexpected join result %+v", result)
	}
	if result.Session.Status != persistence.SessionOngoing || !result.Session.StudentJoined {
		t.Fatalf("expected ongoing session with student joined, got %+v", result.Session)
	}

	again, err := svc.RequestJoin(env.ctx, application.JoinParams{Principal: fixture.Teacher(), SessionID: session.ID})
	if err != nil {
		t.Fatalf("teacher RequestJoin returned error: %v", err)
	}
	if again.MeetingRoomRef != result.MeetingRoomRef {
		t.Fatalf("expected the same room for both sides, got %q and %q", result.MeetingRoomRef, again.MeetingRoomRef)
	}
	if len(recorder.RoomsCreated) != 1 {
		t.Fatalf("expected one room to be created, got %d", len(recorder.RoomsCreated))
	}
}

func TestAttendanceService_RequestJoinWithoutMeetingService(t *testing.T) {
	env := newTestEnv(t)
	svc := newAttendance(env, nil)
	fixture := env.harness.SeedSchedule(t, testfixtures.NewScheduleFixture())
	session := env.harness.SeedSession(t, testfixtures.NewSessionFixture(fixture.ID))

	_, err := svc.RequestJoin(env.ctx, application.JoinParams{Principal: fixture.Teacher(), SessionID: session.ID})
	if !errors.Is(err, application.ErrMeetingUnavailable) {
		t.Fatalf("expected meeting unavailable, got %v", err)
	}

	failing := testfixtures.NewRecorder()
	failing.RoomErr = errors.New("boom")
	svc = newAttendance(env, failing)
	_, err = svc.RequestJoin(env.ctx, application.JoinParams{Principal: fixture.Teacher(), SessionID: session.ID})
	if !errors.Is(err, application.ErrMeetingUnavailable) {
		t.Fatalf("expected meeting unavailable on provider failure, got %v", err)
	}
}

func TestAttendanceService_RequestJoinWindow(t *testing.T) {
	env := newTestEnv(t)
	svc := newAttendance(env, testfixtures.NewRecorder())
	fixture := env.harness.SeedSchedule(t, testfixtures.NewScheduleFixture())
	today := env.harness.SeedSession(t, testfixtures.NewSessionFixture(fixture.ID, testfixtures.WithSessionDemo()))
	later := env.harness.SeedSession(t, testfixtures.NewSessionFixture(fixture.ID,
		testfixtures.WithSessionDemo(),
		testfixtures.WithSessionAt(at(21, 18)),
	))

	var denied *application.AccessDeniedError
	_, err := svc.RequestJoin(env.ctx, application.JoinParams{Principal: fixture.Teacher(), SessionID: later.ID})
	if !errors.As(err, &denied) || denied.Reason != application.DenialOutsideWindow {
		t.Fatalf("expected outside_window for a later day, got %v", err)
	}

	env.clock.Set(at(19, 19))
	_, err = svc.RequestJoin(env.ctx, application.JoinParams{Principal: fixture.Teacher(), SessionID: today.ID})
	if !errors.As(err, &denied) || denied.Reason != application.DenialOutsideWindow {
		t.Fatalf("expected outside_window once the session ended, got %v", err)
	}

	env.clock.Set(at(19, 18).Add(59 * time.Minute))
	if _, err := svc.RequestJoin(env.ctx, application.JoinParams{Principal: fixture.Teacher(), SessionID: today.ID}); err != nil {
		t.Fatalf("expected join before the session ends, got %v", err)
	}

	stored, err := env.harness.Store.GetSession(env.ctx, later.ID)
	if err != nil {
		t.Fatalf("GetSession returned error: %v", err)
	}
	if stored.TeacherJoined || stored.MeetingRoomRef != "" {
		t.Fatalf("expected the early join to leave no trace, got %+v", stored)
	}
}

func TestAttendanceService_RequestJoinRefusals(t *testing.T) {
	env := newTestEnv(t)
	svc := newAttendance(env, testfixtures.NewRecorder())
	fixture := env.harness.SeedSchedule(t, testfixtures.NewScheduleFixture(testfixtures.WithScheduleDemoCompleted()))
	open := env.harness.SeedSession(t, testfixtures.NewSessionFixture(fixture.ID))
	closed := env.harness.SeedSession(t, testfixtures.NewSessionFixture(fixture.ID,
		testfixtures.WithSessionAt(at(21, 18)),
		testfixtures.WithSessionStatus(persistence.SessionCompleted),
	))

	_, err := svc.RequestJoin(env.ctx, application.JoinParams{Principal: fixture.Student(), SessionID: open.ID})
	var denied *application.AccessDeniedError
	if !errors.As(err, &denied) || denied.Reason != application.DenialNoSubscription {
		t.Fatalf("expected no_subscription denial, got %v", err)
	}

	_, err = svc.RequestJoin(env.ctx, application.JoinParams{Principal: fixture.Teacher(), SessionID: closed.ID})
	if !errors.Is(err, application.ErrInvalidState) {
		t.Fatalf("expected invalid state for completed session, got %v", err)
	}

	_, err = svc.RequestJoin(env.ctx, application.JoinParams{Principal: fixture.Teacher(), SessionID: "missing"})
	if !errors.Is(err, application.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	stored, err := env.harness.Store.GetSession(env.ctx, open.ID)
	if err != nil {
		t.Fatalf("GetSession returned error: %v", err)
	}
	if stored.StudentJoined {
		t.Fatalf("expected refused join to leave no trace")
	}
}

func TestAttendanceService_RecordParticipantEvent(t *testing.T) {
	env := newTestEnv(t)
	svc := newAttendance(env, nil)
	fixture := env.harness.SeedSchedule(t, testfixtures.NewScheduleFixture())
	session := env.harness.SeedSession(t, testfixtures.NewSessionFixture(fixture.ID))
	closed := env.harness.SeedSession(t, testfixtures.NewSessionFixture(fixture.ID,
		testfixtures.WithSessionAt(at(21, 18)),
		testfixtures.WithSessionStatus(persistence.SessionCancelled),
	))

	joinedAt := at(19, 18).Add(2 * time.Minute)
	events := []application.ParticipantEvent{
		{SessionID: session.ID, Side: persistence.SideTeacher, Kind: application.ParticipantJoined, At: joinedAt},
		{SessionID: session.ID, Side: persistence.SideTeacher, Kind: application.ParticipantJoined, At: joinedAt.Add(-time.Minute)},
		{SessionID: session.ID, Side: persistence.SideTeacher, Kind: application.ParticipantLeft, At: joinedAt.Add(time.Hour)},
	}
	for _, event := range events {
		if err := svc.RecordParticipantEvent(env.ctx, event); err != nil {
			t.Fatalf("RecordParticipantEvent returned error: %v", err)
		}
	}

	stored, err := env.harness.Store.GetSession(env.ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession returned error: %v", err)
	}
	if !stored.TeacherJoined || stored.TeacherJoinedAt == nil || !stored.TeacherJoinedAt.Equal(joinedAt) {
		t.Fatalf("expected latest join time to be kept, got %v", stored.TeacherJoinedAt)
	}
	if stored.TeacherLeftAt == nil || !stored.TeacherLeftAt.Equal(joinedAt.Add(time.Hour)) {
		t.Fatalf("expected leave time, got %v", stored.TeacherLeftAt)
	}

	if err := svc.RecordParticipantEvent(env.ctx, application.ParticipantEvent{SessionID: closed.ID, Side: persistence.SideStudent, Kind: application.ParticipantJoined}); err != nil {
		t.Fatalf("expected join on closed session to be ignored, got %v", err)
	}
	if err := svc.RecordParticipantEvent(env.ctx, application.ParticipantEvent{SessionID: "missing", Side: persistence.SideStudent, Kind: application.ParticipantJoined}); !errors.Is(err, application.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	err = svc.RecordParticipantEvent(env.ctx, application.ParticipantEvent{SessionID: session.ID, Side: "observer", Kind: "wave"})
	var vErr *application.ValidationError
	if !errors.As(err, &vErr) || vErr.FieldErrors["side"] == "" || vErr.FieldErrors["kind"] == "" {
		t.Fatalf("expected validation errors for side and kind, got %v", err)
	}
}

func TestAttendanceService_CompleteDemoEndsTrial(t *testing.T) {
	env := newTestEnv(t)
	svc := newAttendance(env, nil)
	fixture := env.harness.SeedSchedule(t, testfixtures.NewScheduleFixture())
	demo := env.harness.SeedSession(t, testfixtures.NewSessionFixture(fixture.ID, testfixtures.WithSessionDemo(), testfixtures.WithSessionRoom("room-demo")))
	env.clock.Set(at(19, 19))

	session, err := svc.CompleteSession(env.ctx, application.CompleteSessionParams{
		Principal:    fixture.Teacher(),
		SessionID:    demo.ID,
		TeacherNotes: "good start",
	})
	if err != nil {
		t.Fatalf("CompleteSession returned error: %v", err)
	}
	if session.Status != persistence.SessionCompleted || session.TeacherNotes != "good start" {
		t.Fatalf("unexpected completed session %+v", session)
	}

	schedule, err := env.harness.Store.GetSchedule(env.ctx, fixture.ID)
	if err != nil {
		t.Fatalf("GetSchedule returned error: %v", err)
	}
	if !schedule.DemoCompleted || schedule.DemoDate == nil {
		t.Fatalf("expected trial to be marked complete, got %+v", schedule)
	}

	kinds := env.pendingKinds(t)
	if kinds["meeting.close"] != 1 || kinds["notification.send"] != 2 || kinds["email.send"] != 1 {
		t.Fatalf("unexpected queued events %v", kinds)
	}

	if _, err := svc.CompleteSession(env.ctx, application.CompleteSessionParams{Principal: fixture.Teacher(), SessionID: demo.ID}); !errors.Is(err, application.ErrInvalidState) {
		t.Fatalf("expected second completion to fail with invalid state, got %v", err)
	}
}

func TestAttendanceService_UnpaidClassDuringTrialEndsTrial(t *testing.T) {
	env := newTestEnv(t)
	svc := newAttendance(env, nil)
	fixture := env.harness.SeedSchedule(t, testfixtures.NewScheduleFixture())
	regular := env.harness.SeedSession(t, testfixtures.NewSessionFixture(fixture.ID))
	next := env.harness.SeedSession(t, testfixtures.NewSessionFixture(fixture.ID, testfixtures.WithSessionAt(at(21, 18))))
	env.clock.Set(at(19, 19))

	if _, err := svc.CompleteSession(env.ctx, application.CompleteSessionParams{Principal: fixture.Teacher(), SessionID: regular.ID}); err != nil {
		t.Fatalf("CompleteSession returned error: %v", err)
	}

	schedule, err := env.harness.Store.GetSchedule(env.ctx, fixture.ID)
	if err != nil {
		t.Fatalf("GetSchedule returned error: %v", err)
	}
	if !schedule.DemoCompleted {
		t.Fatalf("expected the free class to end the trial")
	}
	if kinds := env.pendingKinds(t); kinds["email.send"] != 1 || kinds["admin.notice"] != 1 {
		t.Fatalf("expected trial-ended notices, got %v", kinds)
	}

	env.clock.Set(at(21, 19))
	if _, err := svc.CompleteSession(env.ctx, application.CompleteSessionParams{Principal: fixture.Teacher(), SessionID: next.ID}); !errors.Is(err, application.ErrInvalidState) {
		t.Fatalf("expected the second unpaid class to be refused, got %v", err)
	}
}

func TestAttendanceService_CompleteConsumesQuota(t *testing.T) {
	env := newTestEnv(t)
	svc := newAttendance(env, nil)
	fixture := env.harness.SeedSchedule(t, testfixtures.NewScheduleFixture(testfixtures.WithScheduleDemoCompleted()))
	sub := env.harness.SeedSubscription(t, testfixtures.NewSubscriptionFixture(fixture))
	first := env.harness.SeedSession(t, testfixtures.NewSessionFixture(fixture.ID, testfixtures.WithSessionSubscription(sub.ID)))
	second := env.harness.SeedSession(t, testfixtures.NewSessionFixture(fixture.ID, testfixtures.WithSessionAt(at(21, 18))))
	third := env.harness.SeedSession(t, testfixtures.NewSessionFixture(fixture.ID, testfixtures.WithSessionAt(at(26, 18))))

	for _, id := range []string{first.ID, second.ID} {
		if _, err := svc.CompleteSession(env.ctx, application.CompleteSessionParams{Principal: fixture.Teacher(), SessionID: id}); err != nil {
			t.Fatalf("CompleteSession(%s) returned error: %v", id, err)
		}
	}

	stored, err := env.harness.Store.GetSubscription(env.ctx, sub.ID)
	if err != nil {
		t.Fatalf("GetSubscription returned error: %v", err)
	}
	if stored.Consumed != 2 || stored.Status != persistence.SubscriptionExpired {
		t.Fatalf("expected exhausted subscription, got %+v", stored)
	}

	linked, err := env.harness.Store.GetSession(env.ctx, second.ID)
	if err != nil {
		t.Fatalf("GetSession returned error: %v", err)
	}
	if linked.SubscriptionID == nil || *linked.SubscriptionID != sub.ID {
		t.Fatalf("expected unlinked session to be charged to %s, got %v", sub.ID, linked.SubscriptionID)
	}

	_, err = svc.CompleteSession(env.ctx, application.CompleteSessionParams{Principal: fixture.Teacher(), SessionID: third.ID})
	if !errors.Is(err, application.ErrInvalidState) {
		t.Fatalf("expected completion without quota to fail, got %v", err)
	}
	untouched, err := env.harness.Store.GetSession(env.ctx, third.ID)
	if err != nil {
		t.Fatalf("GetSession returned error: %v", err)
	}
	if untouched.Status != persistence.SessionScheduled {
		t.Fatalf("expected failed completion to roll back, got %s", untouched.Status)
	}
}

func TestAttendanceService_ConcurrentCompletionsNeverOverdraw(t *testing.T) {
	env := newTestEnv(t)
	svc := newAttendance(env, nil)
	fixture := env.harness.SeedSchedule(t, testfixtures.NewScheduleFixture(testfixtures.WithScheduleDemoCompleted()))
	sub := env.harness.SeedSubscription(t, testfixtures.NewSubscriptionFixture(fixture, testfixtures.WithSubscriptionQuota(1, 0)))
	sessions := []testfixtures.SessionFixture{
		env.harness.SeedSession(t, testfixtures.NewSessionFixture(fixture.ID, testfixtures.WithSessionSubscription(sub.ID))),
		env.harness.SeedSession(t, testfixtures.NewSessionFixture(fixture.ID, testfixtures.WithSessionAt(at(21, 18)), testfixtures.WithSessionSubscription(sub.ID))),
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for _, session := range sessions {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := svc.CompleteSession(env.ctx, application.CompleteSessionParams{Principal: fixture.Teacher(), SessionID: id})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}(session.ID)
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one completion to consume the last class, got %d", successes)
	}
	stored, err := env.harness.Store.GetSubscription(env.ctx, sub.ID)
	if err != nil {
		t.Fatalf("GetSubscription returned error: %v", err)
	}
	if stored.Consumed != 1 {
		t.Fatalf("expected consumed to stay at quota, got %d", stored.Consumed)
	}
}

func TestAttendanceService_CompleteAuthorization(t *testing.T) {
	env := newTestEnv(t)
	svc := newAttendance(env, nil)
	fixture := env.harness.SeedSchedule(t, testfixtures.NewScheduleFixture())
	session := env.harness.SeedSession(t, testfixtures.NewSessionFixture(fixture.ID, testfixtures.WithSessionDemo()))

	if _, err := svc.CompleteSession(env.ctx, application.CompleteSessionParams{Principal: fixture.Student(), SessionID: session.ID}); !errors.Is(err, application.ErrUnauthorized) {
		t.Fatalf("expected student to be rejected, got %v", err)
	}
	if _, err := svc.CompleteSession(env.ctx, application.CompleteSessionParams{Principal: testfixtures.AdminPrincipal(), SessionID: session.ID}); err != nil {
		t.Fatalf("expected admin completion, got %v", err)
	}
}

func TestAttendanceService_CancelSession(t *testing.T) {
	env := newTestEnv(t)
	svc := newAttendance(env, nil)
	fixture := env.harness.SeedSchedule(t, testfixtures.NewScheduleFixture())
	session := env.harness.SeedSession(t, testfixtures.NewSessionFixture(fixture.ID, testfixtures.WithSessionRoom("room-1")))

	if err := svc.CancelSession(env.ctx, application.CancelSessionParams{Principal: fixture.Teacher(), SessionID: session.ID}); !errors.Is(err, application.ErrUnauthorized) {
		t.Fatalf("expected teacher to be rejected, got %v", err)
	}
	if err := svc.CancelSession(env.ctx, application.CancelSessionParams{Principal: testfixtures.AdminPrincipal(), SessionID: session.ID, Reason: "holiday"}); err != nil {
		t.Fatalf("CancelSession returned error: %v", err)
	}
	if err := svc.CancelSession(env.ctx, application.CancelSessionParams{Principal: testfixtures.AdminPrincipal(), SessionID: session.ID}); !errors.Is(err, application.ErrInvalidState) {
		t.Fatalf("expected cancelled session to stay terminal, got %v", err)
	}

	kinds := env.pendingKinds(t)
	if kinds["meeting.close"] != 1 || kinds["notification.send"] != 2 {
		t.Fatalf("unexpected queued events %v", kinds)
	}
}

func TestAttendanceService_ListSessionsScopedByRole(t *testing.T) {
	env := newTestEnv(t)
	svc := newAttendance(env, nil)
	mine := env.harness.SeedSchedule(t, testfixtures.NewScheduleFixture())
	theirs := env.harness.SeedSchedule(t, testfixtures.NewScheduleFixture())
	env.harness.SeedSession(t, testfixtures.NewSessionFixture(mine.ID))
	env.harness.SeedSession(t, testfixtures.NewSessionFixture(theirs.ID))

	sessions, err := svc.ListSessions(env.ctx, application.ListSessionsParams{Principal: mine.Student()})
	if err != nil {
		t.Fatalf("ListSessions returned error: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ScheduleID != mine.ID {
		t.Fatalf("expected only own sessions, got %+v", sessions)
	}

	all, err := svc.ListSessions(env.ctx, application.ListSessionsParams{Principal: testfixtures.AdminPrincipal()})
	if err != nil {
		t.Fatalf("ListSessions returned error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected admin to see every session, got %d", len(all))
	}
}

func TestAttendanceService_SweepMissed(t *testing.T) {
	env := newTestEnv(t)
	svc := newAttendance(env, nil)
	fixture := env.harness.SeedSchedule(t, testfixtures.NewScheduleFixture())
	unattended := env.harness.SeedSession(t, testfixtures.NewSessionFixture(fixture.ID))
	attended := env.harness.SeedSession(t, testfixtures.NewSessionFixture(fixture.ID, testfixtures.WithSessionAt(at(19, 17))))
	if _, err := env.harness.Store.RecordJoin(env.ctx, attended.ID, persistence.SideTeacher, at(19, 17)); err != nil {
		t.Fatalf("RecordJoin returned error: %v", err)
	}

	env.clock.Set(at(19, 18).Add(10 * time.Minute))
	missed, err := svc.SweepMissed(env.ctx)
	if err != nil {
		t.Fatalf("SweepMissed returned error: %v", err)
	}
	if missed != 0 {
		t.Fatalf("expected grace period to protect the session, got %d missed", missed)
	}

	env.clock.Set(at(19, 18).Add(20 * time.Minute))
	missed, err = svc.SweepMissed(env.ctx)
	if err != nil {
		t.Fatalf("SweepMissed returned error: %v", err)
	}
	if missed != 1 {
		t.Fatalf("expected one missed session, got %d", missed)
	}

	again, err := svc.SweepMissed(env.ctx)
	if err != nil {
		t.Fatalf("second SweepMissed returned error: %v", err)
	}
	if again != 0 {
		t.Fatalf("expected rerun to mark nothing, got %d", again)
	}

	for id, want := range map[string]persistence.SessionStatus{
		unattended.ID: persistence.SessionMissed,
		attended.ID:   persistence.SessionOngoing,
	} {
		stored, err := env.harness.Store.GetSession(env.ctx, id)
		if err != nil {
			t.Fatalf("GetSession returned error: %v", err)
		}
		if stored.Status != want {
			t.Fatalf("session %s: expected %s, got %s", id, want, stored.Status)
		}
	}

	if kinds := env.pendingKinds(t); kinds["admin.notice"] != 1 {
		t.Fatalf("expected one admin notice, got %v", kinds)
	}
}

func TestAttendanceService_SweepMissedCoversRescheduled(t *testing.T) {
	env := newTestEnv(t)
	svc := newAttendance(env, nil)
	fixture := env.harness.SeedSchedule(t, testfixtures.NewScheduleFixture())
	moved := env.harness.SeedSession(t, testfixtures.NewSessionFixture(fixture.ID,
		testfixtures.WithSessionAt(at(20, 18)),
		testfixtures.WithSessionStatus(persistence.SessionRescheduled),
	))

	env.clock.Set(at(20, 18).Add(20 * time.Minute))
	missed, err := svc.SweepMissed(env.ctx)
	if err != nil {
		t.Fatalf("SweepMissed returned error: %v", err)
	}
	if missed != 1 {
		t.Fatalf("expected the rescheduled session to be marked missed, got %d", missed)
	}

	stored, err := env.harness.Store.GetSession(env.ctx, moved.ID)
	if err != nil {
		t.Fatalf("GetSession returned error: %v", err)
	}
	if stored.Status != persistence.SessionMissed {
		t.Fatalf("expected missed, got %s", stored.Status)
	}
}

func TestAttendanceService_SendReminders(t *testing.T) {
	env := newTestEnv(t)
	svc := newAttendance(env, nil)
	fixture := env.harness.SeedSchedule(t, testfixtures.NewScheduleFixture())
	env.harness.SeedSession(t, testfixtures.NewSessionFixture(fixture.ID))
	env.harness.SeedSession(t, testfixtures.NewSessionFixture(fixture.ID, testfixtures.WithSessionAt(at(21, 18))))

	env.clock.Set(at(19, 17).Add(30 * time.Minute))
	sent, err := svc.SendReminders(env.ctx)
	if err != nil {
		t.Fatalf("SendReminders returned error: %v", err)
	}
	if sent != 1 {
		t.Fatalf("expected one reminder, got %d", sent)
	}

	again, err := svc.SendReminders(env.ctx)
	if err != nil {
		t.Fatalf("second SendReminders returned error: %v", err)
	}
	if again != 0 {
		t.Fatalf("expected reminders to be sent once, got %d", again)
	}

	if kinds := env.pendingKinds(t); kinds["email.send"] != 2 {
		t.Fatalf("expected an email to each participant, got %v", kinds)
	}
}

func TestAttendanceService_CleanupRetention(t *testing.T) {
	env := newTestEnv(t)
	svc := newAttendance(env, nil)
	fixture := env.harness.SeedSchedule(t, testfixtures.NewScheduleFixture())
	old := env.harness.SeedSession(t, testfixtures.NewSessionFixture(fixture.ID,
		testfixtures.WithSessionAt(time.Date(2026, time.June, 1, 18, 0, 0, 0, time.UTC)),
		testfixtures.WithSessionStatus(persistence.SessionCompleted),
	))
	oldOpen := env.harness.SeedSession(t, testfixtures.NewSessionFixture(fixture.ID,
		testfixtures.WithSessionAt(time.Date(2026, time.June, 3, 18, 0, 0, 0, time.UTC)),
	))
	recent := env.harness.SeedSession(t, testfixtures.NewSessionFixture(fixture.ID,
		testfixtures.WithSessionAt(at(12, 18)),
		testfixtures.WithSessionStatus(persistence.SessionMissed),
	))

	deleted, err := svc.CleanupRetention(env.ctx)
	if err != nil {
		t.Fatalf("CleanupRetention returned error: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected one deleted session, got %d", deleted)
	}
	if _, err := env.harness.Store.GetSession(env.ctx, old.ID); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected old session to be gone, got %v", err)
	}
	for _, id := range []string{oldOpen.ID, recent.ID} {
		if _, err := env.harness.Store.GetSession(env.ctx, id); err != nil {
			t.Fatalf("expected session %s to be kept, got %v", id, err)
		}
	}
}
