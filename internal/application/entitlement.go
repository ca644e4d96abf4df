package application

import (
	"fmt"
	"time"

	"github.com/happiestt-talha/pentutor-api/internal/persistence"
	"github.com/happiestt-talha/pentutor-api/internal/recurrence"
)

// ComputeEntitlementWindow derives the validity window and class quota of a
// purchase starting on start.
//
// A weekly purchase runs seven days past start and carries one week of
// classes. A monthly purchase runs to the last day of start's month: every
// full week contributes classesPerWeek and the leftover days contribute the
// pattern days they contain.
func ComputeEntitlementWindow(pattern recurrence.Pattern, classesPerWeek int, kind persistence.SubscriptionType, start time.Time) (EntitlementWindow, error) {
	start = dateOnly(start)
	switch kind {
	case persistence.SubscriptionWeekly:
		return EntitlementWindow{
			StartDate: start,
			EndDate:   start.AddDate(0, 0, 7),
			Quota:     classesPerWeek,
		}, nil
	case persistence.SubscriptionMonthly:
		end := recurrence.LastDayOfMonth(start)
		days := int(end.Sub(start).Hours()/24) + 1
		fullWeeks := days / 7
		quota := classesPerWeek*fullWeeks + recurrence.CountMatchingDays(pattern, start.AddDate(0, 0, fullWeeks*7), days%7)
		return EntitlementWindow{StartDate: start, EndDate: end, Quota: quota}, nil
	}
	return EntitlementWindow{}, fmt.Errorf("unknown subscription type %q", kind)
}

// priceFor returns the schedule price for the subscription type.
func priceFor(schedule persistence.Schedule, kind persistence.SubscriptionType) int64 {
	if kind == persistence.SubscriptionMonthly {
		return schedule.MonthlyPrice
	}
	return schedule.WeeklyPrice
}
