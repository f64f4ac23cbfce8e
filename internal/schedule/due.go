package schedule

import "time"

// Rule is the part of a task the scheduler reads.
type Rule struct {
	Interval IntervalType
	// IntervalDays is only used by Legacy.
	IntervalDays int
	// Shift is the assigned shift name; empty means every day.
	Shift string
}

// Due is the result of NextDue.
type Due struct {
	At time.Time
	// Reference is the instant the rule was applied to.
	Reference time.Time
	// Shift is the resolved shift name, empty when the all-day shift was used.
	Shift     string
	Anomalies []Anomaly
}

// NextDue computes when a task is next due. lastCompleted is the stored
// timestamp of the latest completion, or "" when there is none.
func (c *Calendar) NextDue(now time.Time, lastCompleted string, rule Rule) Due {
	last, hasLast, anomalies := parseLastCompleted(lastCompleted, now.Location())
	ref := now
	if hasLast {
		ref = last
	}
	shift, resolved, shiftAnomalies := c.resolve(rule.Shift)
	due := Due{Reference: ref, Anomalies: appendUnique(anomalies, shiftAnomalies...)}
	if resolved {
		due.Shift = shift.Name
	}

	switch rule.Interval {
	case StartShiftDaily:
		due.At = nextActiveDay(ref, shift, shift.Start, shift.FirstDay())
	case EndShiftDaily:
		// Anchors its fallback on the configured first day, unlike
		// StartShiftDaily. Kept as-is; see TestEndShiftDailyFallbackAnchor.
		due.At = nextActiveDay(ref, shift, shift.End, shift.configuredFirstDay())
	case StartShiftWeekly:
		due.At = nextWeekly(ref, shift.FirstDay(), shift.Start)
	case EndShiftWeekly:
		due.At = nextWeekly(ref, shift.LastDay(), shift.End)
	case Legacy:
		due.At = now
		if hasLast {
			days := rule.IntervalDays
			if days <= 0 {
				days = 1
			}
			due.At = last.AddDate(0, 0, days)
		}
	default:
		due.At = now
	}
	return due
}

// nextActiveDay finds the first active weekday strictly after ref's date and
// returns at on that day.
func nextActiveDay(ref time.Time, s Shift, at Clock, fallback Weekday) time.Time {
	wd := WeekdayOf(ref)
	for i := 1; i <= 7; i++ {
		if !s.IsActiveWeekday(wd.Add(i)) {
			continue
		}
		if candidate := at.On(ref.AddDate(0, 0, i)); candidate.After(ref) {
			return candidate
		}
	}
	days := daysUntil(wd, fallback)
	if days == 0 {
		days = 7
	}
	return at.On(ref.AddDate(0, 0, days))
}

// nextWeekly returns at on the next occurrence of day, a week later if that
// is not after ref.
func nextWeekly(ref time.Time, day Weekday, at Clock) time.Time {
	candidate := at.On(ref.AddDate(0, 0, daysUntil(WeekdayOf(ref), day)))
	if !candidate.After(ref) {
		candidate = candidate.AddDate(0, 0, 7)
	}
	return candidate
}

func daysUntil(from, to Weekday) int {
	return mod7(int(to) - int(from))
}
