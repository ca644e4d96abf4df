package application_test

import (
	"errors"
	"testing"
	"time"

	"github.com/happiestt-talha/pentutor-api/internal/application"
	"github.com/happiestt-talha/pentutor-api/internal/persistence"
	"github.com/happiestt-talha/pentutor-api/internal/testfixtures"
)

func TestAccessGate_CanJoin(t *testing.T) {
	t.Parallel()

	pending := testfixtures.NewScheduleFixture()
	trialDone := testfixtures.NewScheduleFixture(testfixtures.WithScheduleDemoCompleted())

	cases := []struct {
		name      string
		schedule  testfixtures.ScheduleFixture
		principal func(testfixtures.ScheduleFixture) application.Principal
		session   []testfixtures.SessionOption
		subs      []testfixtures.SubscriptionOption
		noSub     bool
		wantSide  persistence.Side
		wantDeny  application.DenialReason
	}{
		{
			name:      "teacher always joins",
			schedule:  trialDone,
			principal: testfixtures.ScheduleFixture.Teacher,
			noSub:     true,
			wantSide:  persistence.SideTeacher,
		},
		{
			name:      "student joins while the trial is pending",
			schedule:  pending,
			principal: testfixtures.ScheduleFixture.Student,
			noSub:     true,
			wantSide:  persistence.SideStudent,
		},
		{
			name:      "student without subscription after trial",
			schedule:  trialDone,
			principal: testfixtures.ScheduleFixture.Student,
			noSub:     true,
			wantDeny:  application.DenialNoSubscription,
		},
		{
			name:      "student with covering subscription",
			schedule:  trialDone,
			principal: testfixtures.ScheduleFixture.Student,
			wantSide:  persistence.SideStudent,
		},
		{
			name:      "student with exhausted quota",
			schedule:  trialDone,
			principal: testfixtures.ScheduleFixture.Student,
			subs: []testfixtures.SubscriptionOption{
				testfixtures.WithSubscriptionQuota(2, 2),
				testfixtures.WithSubscriptionStatus(persistence.SubscriptionExpired),
			},
			wantDeny: application.DenialQuotaExhausted,
		},
		{
			name:      "student with lapsed subscription",
			schedule:  trialDone,
			principal: testfixtures.ScheduleFixture.Student,
			session:   []testfixtures.SessionOption{testfixtures.WithSessionAt(at(12, 18))},
			subs: []testfixtures.SubscriptionOption{
				testfixtures.WithSubscriptionWindow(time.Date(2026, time.October, 5, 0, 0, 0, 0, time.UTC), time.Date(2026, time.October, 12, 0, 0, 0, 0, time.UTC)),
			},
			wantDeny: application.DenialExpired,
		},
		{
			name:     "stranger is not a participant",
			schedule: pending,
			principal: func(testfixtures.ScheduleFixture) application.Principal {
				return application.Principal{UserID: "student-stranger", Role: application.RoleStudent}
			},
			noSub:    true,
			wantDeny: application.DenialNotParticipant,
		},
		{
			name:     "admin observes without a side",
			schedule: trialDone,
			principal: func(testfixtures.ScheduleFixture) application.Principal {
				return testfixtures.AdminPrincipal()
			},
			noSub: true,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t)
			env.harness.SeedSchedule(t, tc.schedule)
			session := testfixtures.NewSessionFixture(tc.schedule.ID, tc.session...)
			if !tc.noSub {
				env.harness.SeedSubscription(t, testfixtures.NewSubscriptionFixture(tc.schedule, tc.subs...))
			}

			gate := env.factory.NewAccessGate(env.harness.Store)
			side, err := gate.CanJoin(env.ctx, tc.schedule.Persistence(), session.Persistence(), tc.principal(tc.schedule))

			if tc.wantDeny != "" {
				var denied *application.AccessDeniedError
				if !errors.As(err, &denied) {
					t.Fatalf("expected access denied, got side %q err %v", side, err)
				}
				if denied.Reason != tc.wantDeny {
					t.Fatalf("expected reason %q, got %q", tc.wantDeny, denied.Reason)
				}
				if !errors.Is(err, application.ErrAccessDenied) {
					t.Fatalf("expected error to match ErrAccessDenied")
				}
				return
			}
			if err != nil {
				t.Fatalf("CanJoin returned error: %v", err)
			}
			if side != tc.wantSide {
				t.Fatalf("expected side %q, got %q", tc.wantSide, side)
			}
		})
	}
}
