package services

import (
	"time"

	"github.com/teambition/rrule-go"

	"marketplace-server/models"
)

// DateKeyLayout is the calendar-date key used to detect collisions between
// physical and virtual instances. Two occurrences collide iff they fall on the
// same calendar date in the template's timezone, regardless of time-of-day.
const DateKeyLayout = "2006-01-02"

// defaultExpandDays bounds expansion when the caller gives no window.
const defaultExpandDays = 90

// ExpandOccurrences resolves an experience template's recurrence rule into the
// calendar dates on which a virtual instance should exist, inclusive of both
// window bounds. A template that is not recurring (or has no rule) contributes
// its start date alone, if it falls inside the window.
//
// A malformed rule or unknown timezone returns a validation error; callers
// doing multi-template listings are expected to downgrade it to a warning
// rather than failing the whole query.
func ExpandOccurrences(exp *models.Experience, windowStart, windowEnd *time.Time) ([]string, error) {
	tz := exp.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, ValidationError("experience %d: unknown timezone %q", exp.ID, tz)
	}

	if exp.StartDate == nil {
		return nil, nil
	}
	anchor := atStartOfDay(*exp.StartDate, loc)

	ws := anchor
	if windowStart != nil {
		ws = atStartOfDay(*windowStart, loc)
	}
	we := anchor.AddDate(0, 0, defaultExpandDays)
	if windowEnd != nil {
		we = atEndOfDay(*windowEnd, loc)
	}
	// The template's own end date bounds the recurrence validity window.
	if exp.EndDate != nil {
		if end := atEndOfDay(*exp.EndDate, loc); end.Before(we) {
			we = end
		}
	}
	if we.Before(ws) {
		return nil, nil
	}

	if !exp.IsRecurring || exp.RecurringPattern == "" {
		key := anchor.Format(DateKeyLayout)
		if !anchor.Before(ws) && !anchor.After(we) {
			return []string{key}, nil
		}
		return nil, nil
	}

	rule, err := rrule.StrToRRule(exp.RecurringPattern)
	if err != nil {
		return nil, ValidationError("experience %d: malformed recurrence rule: %v", exp.ID, err)
	}
	rule.DTStart(anchor)

	keys := make([]string, 0)
	seen := make(map[string]bool)
	for _, occ := range rule.Between(ws, we, true) {
		key := occ.In(loc).Format(DateKeyLayout)
		if seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	return keys, nil
}

// atStartOfDay reinterprets t's calendar date at midnight in loc.
func atStartOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Year(), t.Month(), t.Day()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func atEndOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Year(), t.Month(), t.Day()
	return time.Date(y, m, d, 23, 59, 59, 0, loc)
}
