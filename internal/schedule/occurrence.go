package schedule

import "time"

// NextOccurrence computes the concrete start/end instants for def relative to
// now, in loc. It returns false when the definition has no upcoming occurrence
// (recurring with no matching weekday in the next 7 days).
//
// One-time definitions are built unconditionally from their date: staleness is
// handled by the reminder service's retirement pass, not here.
//
// Preconditions: def passed ValidateDefinition; malformed time fields make the
// definition yield no occurrence.
func NextOccurrence(def *EventDefinition, now time.Time, loc *time.Location) (Occurrence, bool) {
	switch def.Kind {
	case KindOneTime:
		if def.OneTime == nil {
			return Occurrence{}, false
		}
		f := def.OneTime
		day, err := ParseCivilDate(f.Date, loc)
		if err != nil {
			return Occurrence{}, false
		}
		return buildOccurrence(day, f.StartTime, f.EndTime, loc)

	case KindRecurring:
		if def.Recurring == nil {
			return Occurrence{}, false
		}
		f := def.Recurring

		base := now
		if f.StartDate != "" {
			if sd, err := ParseCivilDate(f.StartDate, loc); err == nil && sd.After(now) {
				base = sd
			}
		}

		for i := 0; i < 7; i++ {
			candidate := base.AddDate(0, 0, i)
			if !containsDay(f.DaysOfWeek, int(candidate.Weekday())) {
				continue
			}
			occ, ok := buildOccurrence(candidate, f.StartTime, f.EndTime, loc)
			if !ok {
				return Occurrence{}, false
			}
			// A same-day candidate whose end already elapsed is rejected so the
			// returned occurrence is never entirely in the past.
			if i == 0 && now.After(occ.End) {
				continue
			}
			return occ, true
		}
		return Occurrence{}, false
	}
	return Occurrence{}, false
}

func buildOccurrence(day time.Time, startClock, endClock string, loc *time.Location) (Occurrence, bool) {
	sh, sm, err := ParseClock(startClock)
	if err != nil {
		return Occurrence{}, false
	}
	eh, em, err := ParseClock(endClock)
	if err != nil {
		return Occurrence{}, false
	}
	return Occurrence{
		Start: time.Date(day.Year(), day.Month(), day.Day(), sh, sm, 0, 0, loc),
		End:   time.Date(day.Year(), day.Month(), day.Day(), eh, em, 0, 0, loc),
	}, true
}

func containsDay(days []int, d int) bool {
	for _, v := range days {
		if v == d {
			return true
		}
	}
	return false
}
