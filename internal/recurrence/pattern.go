package recurrence

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrEmptyPattern indicates no class days were supplied.
	ErrEmptyPattern = errors.New("recurrence: at least one class day is required")
	// ErrUnknownWeekday indicates a day name outside monday..sunday.
	ErrUnknownWeekday = errors.New("recurrence: unknown weekday")
	// ErrDuplicateDay indicates the same weekday was listed twice.
	ErrDuplicateDay = errors.New("recurrence: duplicate weekday")
	// ErrMissingTime indicates a listed day has no time of day.
	ErrMissingTime = errors.New("recurrence: missing time for day")
	// ErrUnexpectedTime indicates a time was supplied for a day that is not listed.
	ErrUnexpectedTime = errors.New("recurrence: time supplied for unlisted day")
	// ErrInvalidTimeOfDay indicates a time that is not formatted as HH:MM.
	ErrInvalidTimeOfDay = errors.New("recurrence: time must be formatted as HH:MM")
)

// DayError attributes a pattern error to the day that caused it.
type DayError struct {
	Day string
	Err error
}

func (e *DayError) Error() string {
	return fmt.Sprintf("%s: %v", e.Day, e.Err)
}

func (e *DayError) Unwrap() error {
	return e.Err
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday resolves a case-insensitive English weekday name.
func ParseWeekday(name string) (time.Weekday, error) {
	day, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, ErrUnknownWeekday
	}
	return day, nil
}

// WeekdayName returns the lower-case name used for storage and transport.
func WeekdayName(day time.Weekday) string {
	return strings.ToLower(day.String())
}

// TimeOfDay is a wall-clock time with minute precision.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses a strict 24-hour HH:MM value.
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	value = strings.TrimSpace(value)
	if len(value) != 5 || value[2] != ':' {
		return TimeOfDay{}, ErrInvalidTimeOfDay
	}
	hour, err := strconv.Atoi(value[:2])
	if err != nil || hour < 0 || hour > 23 {
		return TimeOfDay{}, ErrInvalidTimeOfDay
	}
	minute, err := strconv.Atoi(value[3:])
	if err != nil || minute < 0 || minute > 59 {
		return TimeOfDay{}, ErrInvalidTimeOfDay
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Pattern is a validated weekly mapping of weekday to class start time.
// The zero value has no days and never produces occurrences.
type Pattern struct {
	slots map[time.Weekday]TimeOfDay
}

// NewPattern validates days and times. Every listed day needs exactly one time
// and every time must belong to a listed day. All problems are reported together.
func NewPattern(days []string, times map[string]string) (Pattern, error) {
	if len(days) == 0 {
		return Pattern{}, ErrEmptyPattern
	}

	normalizedTimes := make(map[string]string, len(times))
	for day, value := range times {
		normalizedTimes[strings.ToLower(strings.TrimSpace(day))] = value
	}

	var errs []error
	slots := make(map[time.Weekday]TimeOfDay, len(days))
	listed := make(map[string]struct{}, len(days))
	for _, name := range days {
		key := strings.ToLower(strings.TrimSpace(name))
		day, err := ParseWeekday(key)
		if err != nil {
			errs = append(errs, &DayError{Day: name, Err: err})
			continue
		}
		if _, dup := slots[day]; dup {
			errs = append(errs, &DayError{Day: key, Err: ErrDuplicateDay})
			continue
		}
		listed[key] = struct{}{}
		raw, ok := normalizedTimes[key]
		if !ok || strings.TrimSpace(raw) == "" {
			errs = append(errs, &DayError{Day: key, Err: ErrMissingTime})
			slots[day] = TimeOfDay{}
			continue
		}
		tod, err := ParseTimeOfDay(raw)
		if err != nil {
			errs = append(errs, &DayError{Day: key, Err: err})
		}
		slots[day] = tod
	}

	extra := make([]string, 0)
	for key := range normalizedTimes {
		if _, ok := listed[key]; !ok {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	for _, key := range extra {
		errs = append(errs, &DayError{Day: key, Err: ErrUnexpectedTime})
	}

	if len(errs) > 0 {
		return Pattern{}, errors.Join(errs...)
	}
	return Pattern{slots: slots}, nil
}

// Len returns the number of class days per week.
func (p Pattern) Len() int {
	return len(p.slots)
}

// Has reports whether classes run on the weekday.
func (p Pattern) Has(day time.Weekday) bool {
	_, ok := p.slots[day]
	return ok
}

// TimeOn returns the class start time for the weekday.
func (p Pattern) TimeOn(day time.Weekday) (TimeOfDay, bool) {
	tod, ok := p.slots[day]
	return tod, ok
}

// Weekdays returns the class days ordered Monday first.
func (p Pattern) Weekdays() []time.Weekday {
	days := make([]time.Weekday, 0, len(p.slots))
	for day := range p.slots {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool {
		return mondayIndex(days[i]) < mondayIndex(days[j])
	})
	return days
}

// DayNames returns the lower-case class day names ordered Monday first.
func (p Pattern) DayNames() []string {
	days := p.Weekdays()
	names := make([]string, len(days))
	for i, day := range days {
		names[i] = WeekdayName(day)
	}
	return names
}

// TimeMap returns the day name to HH:MM mapping.
func (p Pattern) TimeMap() map[string]string {
	out := make(map[string]string, len(p.slots))
	for day, tod := range p.slots {
		out[WeekdayName(day)] = tod.String()
	}
	return out
}

func mondayIndex(day time.Weekday) int {
	return (int(day) + 6) % 7
}
