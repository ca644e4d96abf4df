package application_test

import (
	"errors"
	"testing"
	"time"

	"github.com/happiestt-talha/pentutor-api/internal/application"
	"github.com/happiestt-talha/pentutor-api/internal/outbox"
	"github.com/happiestt-talha/pentutor-api/internal/persistence"
	"github.com/happiestt-talha/pentutor-api/internal/testfixtures"
)

func TestScheduleService_CreateScheduleBootstrapsDemo(t *testing.T) {
	env := newTestEnv(t)
	svc := env.factory.NewScheduleService(env.harness.Store)
	fixture := testfixtures.NewScheduleFixture()

	result, err := svc.CreateSchedule(env.ctx, fixture.CreateParams())
	if err != nil {
		t.Fatalf("CreateSchedule returned error: %v", err)
	}

	if !result.Schedule.IsActive || result.Schedule.DemoCompleted {
		t.Fatalf("expected active schedule with pending demo, got %+v", result.Schedule)
	}
	if result.DemoSession == nil {
		t.Fatalf("expected demo session")
	}
	if !result.DemoSession.ScheduledAt.Equal(at(19, 18)) || !result.DemoSession.IsDemo {
		t.Fatalf("expected demo on Monday 18:00, got %+v", result.DemoSession)
	}

	stored, err := env.harness.Store.GetSession(env.ctx, result.DemoSession.ID)
	if err != nil {
		t.Fatalf("GetSession returned error: %v", err)
	}
	if !stored.IsDemo || stored.Status != "scheduled" {
		t.Fatalf("unexpected stored demo %+v", stored)
	}

	kinds := env.pendingKinds(t)
	if kinds[outbox.KindMeetingRoom] != 1 || kinds[outbox.KindNotification] != 1 || kinds[outbox.KindEmail] != 1 || kinds[outbox.KindAdminNotice] != 1 {
		t.Fatalf("unexpected queued events %v", kinds)
	}
}

func TestScheduleService_CreateScheduleDefaultsTeacherAndStartDate(t *testing.T) {
	env := newTestEnv(t)
	svc := env.factory.NewScheduleService(env.harness.Store)
	fixture := testfixtures.NewScheduleFixture()

	input := fixture.Input()
	input.TeacherID = ""
	input.StartDate = time.Time{}
	result, err := svc.CreateSchedule(env.ctx, application.CreateScheduleParams{Principal: fixture.Teacher(), Input: input})
	if err != nil {
		t.Fatalf("CreateSchedule returned error: %v", err)
	}
	if result.Schedule.TeacherID != fixture.TeacherID {
		t.Fatalf("expected teacher %q, got %q", fixture.TeacherID, result.Schedule.TeacherID)
	}
	if !result.Schedule.StartDate.Equal(testfixtures.ReferenceDate()) {
		t.Fatalf("expected start date today, got %v", result.Schedule.StartDate)
	}
}

func TestScheduleService_CreateScheduleFutureStartDelaysDemo(t *testing.T) {
	env := newTestEnv(t)
	svc := env.factory.NewScheduleService(env.harness.Store)
	fixture := testfixtures.NewScheduleFixture(
		testfixtures.WithScheduleValidity(time.Date(2026, time.October, 27, 0, 0, 0, 0, time.UTC), nil),
	)

	result, err := svc.CreateSchedule(env.ctx, fixture.CreateParams())
	if err != nil {
		t.Fatalf("CreateSchedule returned error: %v", err)
	}
	if result.DemoSession == nil || !result.DemoSession.ScheduledAt.Equal(at(28, 18)) {
		t.Fatalf("expected demo on the first class inside validity, got %+v", result.DemoSession)
	}
}

func TestScheduleService_CreateScheduleRejectsDuplicate(t *testing.T) {
	env := newTestEnv(t)
	svc := env.factory.NewScheduleService(env.harness.Store)
	fixture := testfixtures.NewScheduleFixture()

	if _, err := svc.CreateSchedule(env.ctx, fixture.CreateParams()); err != nil {
		t.Fatalf("first CreateSchedule returned error: %v", err)
	}
	_, err := svc.CreateSchedule(env.ctx, fixture.CreateParams())
	if !errors.Is(err, application.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestScheduleService_CreateScheduleValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*application.ScheduleInput)
		field  string
	}{
		{
			name:   "teacher teaches themselves",
			mutate: func(in *application.ScheduleInput) { in.StudentID = in.TeacherID },
			field:  "student_id",
		},
		{
			name:   "classes per week out of range",
			mutate: func(in *application.ScheduleInput) { in.ClassesPerWeek = 8 },
			field:  "classes_per_week",
		},
		{
			name:   "day count differs from classes per week",
			mutate: func(in *application.ScheduleInput) { in.ClassesPerWeek = 3 },
			field:  "class_days",
		},
		{
			name:   "malformed class time",
			mutate: func(in *application.ScheduleInput) { in.ClassTimes["monday"] = "25:00" },
			field:  "class_times",
		},
		{
			name:   "unknown weekday",
			mutate: func(in *application.ScheduleInput) { in.ClassDays = []string{"monday", "funday"} },
			field:  "class_days",
		},
		{
			name:   "duration too long",
			mutate: func(in *application.ScheduleInput) { in.DurationMinutes = 481 },
			field:  "duration_minutes",
		},
		{
			name:   "negative price",
			mutate: func(in *application.ScheduleInput) { in.WeeklyPrice = -1 },
			field:  "weekly_price",
		},
		{
			name:   "free monthly plan",
			mutate: func(in *application.ScheduleInput) { in.MonthlyPrice = 0 },
			field:  "monthly_price",
		},
		{
			name: "end before start",
			mutate: func(in *application.ScheduleInput) {
				end := in.StartDate.AddDate(0, 0, -1)
				in.EndDate = &end
			},
			field: "end_date",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t)
			svc := env.factory.NewScheduleService(env.harness.Store)
			input := testfixtures.NewScheduleFixture().Input()
			tc.mutate(&input)

			_, err := svc.CreateSchedule(env.ctx, application.CreateScheduleParams{Principal: testfixtures.AdminPrincipal(), Input: input})
			var vErr *application.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if vErr.FieldErrors[tc.field] == "" {
				t.Fatalf("expected error on %q, got %v", tc.field, vErr.FieldErrors)
			}
		})
	}
}

func TestScheduleService_CreateScheduleAuthorization(t *testing.T) {
	env := newTestEnv(t)
	svc := env.factory.NewScheduleService(env.harness.Store)
	fixture := testfixtures.NewScheduleFixture()

	if _, err := svc.CreateSchedule(env.ctx, application.CreateScheduleParams{Principal: fixture.Student(), Input: fixture.Input()}); !errors.Is(err, application.ErrUnauthorized) {
		t.Fatalf("expected student to be rejected, got %v", err)
	}

	other := application.Principal{UserID: "teacher-other", Role: application.RoleTeacher}
	if _, err := svc.CreateSchedule(env.ctx, application.CreateScheduleParams{Principal: other, Input: fixture.Input()}); !errors.Is(err, application.ErrUnauthorized) {
		t.Fatalf("expected other teacher to be rejected, got %v", err)
	}

	if _, err := svc.CreateSchedule(env.ctx, application.CreateScheduleParams{Principal: testfixtures.AdminPrincipal(), Input: fixture.Input()}); err != nil {
		t.Fatalf("expected admin to create on behalf of teacher, got %v", err)
	}
}

func TestScheduleService_ListAndGetScopedByRole(t *testing.T) {
	env := newTestEnv(t)
	svc := env.factory.NewScheduleService(env.harness.Store)
	mine := env.harness.SeedSchedule(t, testfixtures.NewScheduleFixture())
	theirs := env.harness.SeedSchedule(t, testfixtures.NewScheduleFixture())

	schedules, err := svc.ListSchedules(env.ctx, application.ListSchedulesParams{Principal: mine.Teacher()})
	if err != nil {
		t.Fatalf("ListSchedules returned error: %v", err)
	}
	if len(schedules) != 1 || schedules[0].ID != mine.ID {
		t.Fatalf("expected only own schedule, got %+v", schedules)
	}

	all, err := svc.ListSchedules(env.ctx, application.ListSchedulesParams{Principal: testfixtures.AdminPrincipal()})
	if err != nil {
		t.Fatalf("ListSchedules returned error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected admin to see both schedules, got %d", len(all))
	}

	if _, err := svc.GetSchedule(env.ctx, mine.Student(), theirs.ID); !errors.Is(err, application.ErrUnauthorized) {
		t.Fatalf("expected foreign schedule to be hidden, got %v", err)
	}
	if _, err := svc.GetSchedule(env.ctx, mine.Student(), "missing"); !errors.Is(err, application.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestScheduleService_DeactivateSchedule(t *testing.T) {
	env := newTestEnv(t)
	svc := env.factory.NewScheduleService(env.harness.Store)
	fixture := env.harness.SeedSchedule(t, testfixtures.NewScheduleFixture())

	if err := svc.DeactivateSchedule(env.ctx, fixture.Student(), fixture.ID); !errors.Is(err, application.ErrUnauthorized) {
		t.Fatalf("expected student to be rejected, got %v", err)
	}
	if err := svc.DeactivateSchedule(env.ctx, fixture.Teacher(), fixture.ID); err != nil {
		t.Fatalf("DeactivateSchedule returned error: %v", err)
	}

	active, err := svc.ListSchedules(env.ctx, application.ListSchedulesParams{Principal: fixture.Teacher(), ActiveOnly: true})
	if err != nil {
		t.Fatalf("ListSchedules returned error: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no active schedules, got %d", len(active))
	}
}

func TestScheduleService_UpdateScheduleKeepsMaterializedSessions(t *testing.T) {
	env := newTestEnv(t)
	svc := env.factory.NewScheduleService(env.harness.Store)
	materializer := env.factory.NewMaterializer(env.harness.Store)
	fixture := env.harness.SeedSchedule(t, testfixtures.NewScheduleFixture())

	if created, err := materializer.Materialize(env.ctx, 7); err != nil || created != 2 {
		t.Fatalf("expected two Monday/Wednesday sessions, got %d (%v)", created, err)
	}

	price := int64(2500)
	updated, err := svc.UpdateSchedule(env.ctx, application.UpdateScheduleParams{
		Principal:  fixture.Teacher(),
		ScheduleID: fixture.ID,
		Changes: application.ScheduleChanges{
			ClassDays:   []string{"Tuesday", "thursday"},
			ClassTimes:  map[string]string{"tuesday": "17:00", "thursday": "17:00"},
			WeeklyPrice: &price,
		},
	})
	if err != nil {
		t.Fatalf("UpdateSchedule returned error: %v", err)
	}
	if updated.ClassesPerWeek != 2 || updated.ClassDays[0] != "tuesday" || updated.WeeklyPrice != 2500 || updated.MonthlyPrice != fixture.MonthlyPrice {
		t.Fatalf("unexpected updated schedule %+v", updated)
	}
	stored, err := env.harness.Store.GetSchedule(env.ctx, fixture.ID)
	if err != nil {
		t.Fatalf("GetSchedule returned error: %v", err)
	}
	if stored.ClassTimes["thursday"] != "17:00" || stored.WeeklyPrice != 2500 {
		t.Fatalf("expected the edit to be stored, got %+v", stored)
	}
	if kinds := env.pendingKinds(t); kinds[outbox.KindNotification] == 0 || kinds[outbox.KindAdminNotice] == 0 {
		t.Fatalf("expected student and admin notices, got %v", kinds)
	}

	created, err := materializer.Materialize(env.ctx, 7)
	if err != nil {
		t.Fatalf("Materialize returned error: %v", err)
	}
	if created != 2 {
		t.Fatalf("expected Tuesday and Thursday sessions from the new pattern, got %d", created)
	}

	sessions, err := env.harness.Store.ListSessions(env.ctx, persistence.SessionFilter{ScheduleID: fixture.ID})
	if err != nil {
		t.Fatalf("ListSessions returned error: %v", err)
	}
	want := []time.Time{at(19, 18), at(20, 17), at(21, 18), at(22, 17)}
	if len(sessions) != len(want) {
		t.Fatalf("expected %d sessions, got %d", len(want), len(sessions))
	}
	for i, session := range sessions {
		if !session.ScheduledAt.Equal(want[i]) {
			t.Fatalf("session %d: expected %s, got %s", i, want[i], session.ScheduledAt)
		}
	}
}

func TestScheduleService_UpdateScheduleRules(t *testing.T) {
	env := newTestEnv(t)
	svc := env.factory.NewScheduleService(env.harness.Store)
	fixture := env.harness.SeedSchedule(t, testfixtures.NewScheduleFixture())
	update := func(principal application.Principal, changes application.ScheduleChanges) (persistence.Schedule, error) {
		return svc.UpdateSchedule(env.ctx, application.UpdateScheduleParams{Principal: principal, ScheduleID: fixture.ID, Changes: changes})
	}

	inactive := false
	if _, err := update(fixture.Student(), application.ScheduleChanges{IsActive: &inactive}); !errors.Is(err, application.ErrUnauthorized) {
		t.Fatalf("expected student to be rejected, got %v", err)
	}
	if _, err := svc.UpdateSchedule(env.ctx, application.UpdateScheduleParams{Principal: testfixtures.AdminPrincipal(), ScheduleID: "missing", Changes: application.ScheduleChanges{IsActive: &inactive}}); !errors.Is(err, application.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	free := int64(0)
	before := fixture.StartDate.AddDate(0, 0, -1)
	invalid := []struct {
		name    string
		changes application.ScheduleChanges
		field   string
	}{
		{name: "no changes", changes: application.ScheduleChanges{}, field: "changes"},
		{name: "free weekly plan", changes: application.ScheduleChanges{WeeklyPrice: &free}, field: "weekly_price"},
		{name: "end before start", changes: application.ScheduleChanges{EndDate: &before}, field: "end_date"},
		{name: "new day without a time", changes: application.ScheduleChanges{ClassDays: []string{"monday", "friday"}}, field: "class_times"},
		{name: "unknown day", changes: application.ScheduleChanges{ClassDays: []string{"funday"}}, field: "class_days"},
	}
	for _, tc := range invalid {
		_, err := update(testfixtures.AdminPrincipal(), tc.changes)
		var vErr *application.ValidationError
		if !errors.As(err, &vErr) || vErr.FieldErrors[tc.field] == "" {
			t.Fatalf("%s: expected validation error on %q, got %v", tc.name, tc.field, err)
		}
	}

	updated, err := update(testfixtures.AdminPrincipal(), application.ScheduleChanges{ClassDays: []string{"monday"}, IsActive: &inactive})
	if err != nil {
		t.Fatalf("UpdateSchedule returned error: %v", err)
	}
	if updated.ClassesPerWeek != 1 || updated.ClassTimes["monday"] != "18:00" || len(updated.ClassTimes) != 1 || updated.IsActive {
		t.Fatalf("expected a single inactive Monday class, got %+v", updated)
	}

	end := at(31, 0)
	updated, err = update(fixture.Teacher(), application.ScheduleChanges{EndDate: &end})
	if err != nil {
		t.Fatalf("UpdateSchedule returned error: %v", err)
	}
	if updated.EndDate == nil || !updated.EndDate.Equal(end) {
		t.Fatalf("expected end date %s, got %v", end, updated.EndDate)
	}
	updated, err = update(fixture.Teacher(), application.ScheduleChanges{ClearEndDate: true})
	if err != nil {
		t.Fatalf("UpdateSchedule returned error: %v", err)
	}
	if updated.EndDate != nil {
		t.Fatalf("expected the end date to be cleared, got %v", updated.EndDate)
	}
}

func TestScheduleService_UpcomingClasses(t *testing.T) {
	env := newTestEnv(t)
	svc := env.factory.NewScheduleService(env.harness.Store)
	fixture := env.harness.SeedSchedule(t, testfixtures.NewScheduleFixture())
	env.harness.SeedSchedule(t, testfixtures.NewScheduleFixture(
		testfixtures.WithScheduleParticipants(fixture.TeacherID, "student-other"),
		testfixtures.WithScheduleTimes(map[string]string{"tuesday": "09:00"}),
	))

	classes, err := svc.UpcomingClasses(env.ctx, fixture.Student())
	if err != nil {
		t.Fatalf("UpcomingClasses returned error: %v", err)
	}
	want := []time.Time{at(19, 18), at(21, 18), at(26, 18), at(28, 18)}
	if len(classes) != len(want) {
		t.Fatalf("expected %d classes, got %d", len(want), len(classes))
	}
	for i, class := range classes {
		if !class.StartsAt.Equal(want[i]) {
			t.Fatalf("class %d: expected %v, got %v", i, want[i], class.StartsAt)
		}
	}

	teacherClasses, err := svc.UpcomingClasses(env.ctx, fixture.Teacher())
	if err != nil {
		t.Fatalf("UpcomingClasses returned error: %v", err)
	}
	if len(teacherClasses) != 6 {
		t.Fatalf("expected classes from both schedules, got %d", len(teacherClasses))
	}
	if !teacherClasses[0].StartsAt.Equal(at(19, 18)) || !teacherClasses[1].StartsAt.Equal(at(20, 9)) {
		t.Fatalf("expected chronological merge, got %v and %v", teacherClasses[0].StartsAt, teacherClasses[1].StartsAt)
	}
}

func TestScheduleService_PreviewScheduleRespectsValidity(t *testing.T) {
	env := newTestEnv(t)
	svc := env.factory.NewScheduleService(env.harness.Store)
	end := time.Date(2026, time.October, 26, 0, 0, 0, 0, time.UTC)
	fixture := env.harness.SeedSchedule(t, testfixtures.NewScheduleFixture(
		testfixtures.WithScheduleValidity(testfixtures.ReferenceDate(), &end),
	))

	occurrences, err := svc.PreviewSchedule(env.ctx, fixture.Teacher(), fixture.ID, 4)
	if err != nil {
		t.Fatalf("PreviewSchedule returned error: %v", err)
	}
	if len(occurrences) != 3 {
		t.Fatalf("expected classes up to the end date only, got %d", len(occurrences))
	}
}
