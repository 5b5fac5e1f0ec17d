package schedule

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ValidationError carries a human-readable reason suitable for re-prompting
// the user. It never indicates a system failure.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func validationErrf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a user-input validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

const civilDateLayout = "2006-01-02"

// ParseCivilDate parses a "YYYY-MM-DD" string in loc, at midnight.
func ParseCivilDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	t, err := time.ParseInLocation(civilDateLayout, s, loc)
	if err != nil {
		return time.Time{}, validationErrf("date must be YYYY-MM-DD")
	}
	return t, nil
}

// ParseFutureCivilDate is ParseCivilDate plus a "not earlier than today" check.
// Used on input paths so users cannot schedule into the past.
func ParseFutureCivilDate(s string, now time.Time, loc *time.Location) (time.Time, error) {
	t, err := ParseCivilDate(s, loc)
	if err != nil {
		return time.Time{}, err
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	if t.Before(today) {
		return time.Time{}, validationErrf("date cannot be in the past")
	}
	return t, nil
}

// ParseClock parses "HH:MM" into hour and minute.
func ParseClock(s string) (hour, minute int, err error) {
	s = strings.TrimSpace(s)
	h, m, ok := strings.Cut(s, ":")
	if !ok || len(m) != 2 {
		return 0, 0, validationErrf("time must be HH:MM")
	}
	hour, err = strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, validationErrf("hour must be 00..23")
	}
	minute, err = strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, validationErrf("minute must be 00..59")
	}
	return hour, minute, nil
}

// ParseWeekdays parses a comma-separated list of weekday numbers
// (0=Sunday..6=Saturday) into a sorted, deduplicated slice.
func ParseWeekdays(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	seen := map[int]bool{}
	var days []int
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		d, err := strconv.Atoi(p)
		if err != nil || d < 0 || d > 6 {
			return nil, validationErrf("weekdays must be numbers 0..6 separated by commas")
		}
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	if len(days) == 0 {
		return nil, validationErrf("at least one weekday is required")
	}
	sort.Ints(days)
	return days, nil
}

// ValidateDefinition checks the cross-field invariants of a definition before
// it is stored: kind/fields pairing, well-formed dates and times, end strictly
// after start on the same civil day, and (for one-time events) an occurrence
// that is not already in the past.
func ValidateDefinition(def *EventDefinition, now time.Time, loc *time.Location) error {
	if strings.TrimSpace(def.Name) == "" {
		return validationErrf("name is required")
	}
	if strings.TrimSpace(def.GroupKey) == "" {
		return validationErrf("no group selected")
	}

	switch def.Kind {
	case KindOneTime:
		if def.OneTime == nil || def.Recurring != nil {
			return validationErrf("one-time event fields are incomplete")
		}
		f := def.OneTime
		day, err := ParseCivilDate(f.Date, loc)
		if err != nil {
			return err
		}
		start, end, err := clockRange(day, f.StartTime, f.EndTime, loc)
		if err != nil {
			return err
		}
		_ = end
		if start.Before(now) {
			return validationErrf("event cannot start in the past")
		}
	case KindRecurring:
		if def.Recurring == nil || def.OneTime != nil {
			return validationErrf("recurring event fields are incomplete")
		}
		f := def.Recurring
		if len(f.DaysOfWeek) == 0 {
			return validationErrf("at least one weekday is required")
		}
		for _, d := range f.DaysOfWeek {
			if d < 0 || d > 6 {
				return validationErrf("weekdays must be 0..6")
			}
		}
		if f.StartDate != "" {
			if _, err := ParseCivilDate(f.StartDate, loc); err != nil {
				return err
			}
		}
		if f.DeleteAfter != "" {
			if _, err := ParseCivilDate(f.DeleteAfter, loc); err != nil {
				return err
			}
		}
		anchor := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
		if _, _, err := clockRange(anchor, f.StartTime, f.EndTime, loc); err != nil {
			return err
		}
	default:
		return validationErrf("unknown event kind")
	}
	return nil
}

// clockRange builds [start, end] on day from two HH:MM strings and enforces
// end strictly after start.
func clockRange(day time.Time, startClock, endClock string, loc *time.Location) (time.Time, time.Time, error) {
	sh, sm, err := ParseClock(startClock)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	eh, em, err := ParseClock(endClock)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), sh, sm, 0, 0, loc)
	end := time.Date(day.Year(), day.Month(), day.Day(), eh, em, 0, 0, loc)
	if !end.After(start) {
		return time.Time{}, time.Time{}, validationErrf("end time must be after start time")
	}
	return start, end, nil
}
