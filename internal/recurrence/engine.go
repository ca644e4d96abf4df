package recurrence

import (
	"time"
)

// DateLayout is the storage and transport layout for calendar dates.
const DateLayout = "2006-01-02"

// lookahead is the number of days after today scanned for a next occurrence.
const lookahead = 7

// Occurrence is one concrete class start produced from a Pattern.
type Occurrence struct {
	Weekday time.Weekday
	Start   time.Time
}

// Engine expands weekly patterns into concrete date-times. Weekdays and
// times of day are interpreted in the engine location.
type Engine struct {
	location *time.Location
}

// NewEngine constructs an Engine for the provided location. If loc is nil, UTC is used.
func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{location: loc}
}

// Location returns the engine time zone.
func (e *Engine) Location() *time.Location {
	if e == nil || e.location == nil {
		return time.UTC
	}
	return e.location
}

// NextOccurrence returns the first class start strictly after now. Today is
// considered only when its class time has not yet passed; otherwise the next
// seven days are scanned in order. It reports false when the pattern is empty.
func (e *Engine) NextOccurrence(p Pattern, now time.Time) (time.Time, bool) {
	local := now.In(e.Location())
	for offset := 0; offset <= lookahead; offset++ {
		day := addDays(local, offset)
		tod, ok := p.TimeOn(day.Weekday())
		if !ok {
			continue
		}
		candidate := e.at(day, tod)
		if offset == 0 && !candidate.After(now) {
			continue
		}
		return candidate, true
	}
	return time.Time{}, false
}

// Expand returns the occurrences on each day offset in [0, windowDays) from
// the calendar date of from, in chronological order.
func (e *Engine) Expand(p Pattern, from time.Time, windowDays int) []Occurrence {
	if windowDays <= 0 || p.Len() == 0 {
		return nil
	}
	local := from.In(e.Location())
	occurrences := make([]Occurrence, 0, windowDays*p.Len()/7+1)
	for offset := 0; offset < windowDays; offset++ {
		day := addDays(local, offset)
		tod, ok := p.TimeOn(day.Weekday())
		if !ok {
			continue
		}
		occurrences = append(occurrences, Occurrence{Weekday: day.Weekday(), Start: e.at(day, tod)})
	}
	return occurrences
}

// Preview lists the class starts for the given number of weeks beginning at from.
func (e *Engine) Preview(p Pattern, from time.Time, weeks int) []Occurrence {
	if weeks <= 0 {
		weeks = 4
	}
	return e.Expand(p, from, weeks*7)
}

// DateOf returns the calendar date of t in the engine location, as midnight UTC.
func (e *Engine) DateOf(t time.Time) time.Time {
	y, m, d := t.In(e.Location()).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CountMatchingDays counts the dates in [start, start+days) whose weekday is in the pattern.
func CountMatchingDays(p Pattern, start time.Time, days int) int {
	count := 0
	for offset := 0; offset < days; offset++ {
		if p.Has(start.AddDate(0, 0, offset).Weekday()) {
			count++
		}
	}
	return count
}

// LastDayOfMonth returns the final calendar date of the month containing date.
func LastDayOfMonth(date time.Time) time.Time {
	first := time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, date.Location())
	return first.AddDate(0, 1, -1)
}

// ParseDate parses a YYYY-MM-DD calendar date as midnight UTC.
func ParseDate(value string) (time.Time, error) {
	return time.Parse(DateLayout, value)
}

// FormatDate renders a calendar date.
func FormatDate(date time.Time) string {
	return date.Format(DateLayout)
}

func (e *Engine) at(day time.Time, tod TimeOfDay) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, tod.Hour, tod.Minute, 0, 0, e.Location())
}

func addDays(t time.Time, days int) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+days, 12, 0, 0, 0, t.Location())
}
