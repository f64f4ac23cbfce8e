package schedule

import (
	"errors"
	"fmt"
	"time"
)

// Shift is a named recurring work period.
type Shift struct {
	Name  string
	Start Clock
	End   Clock
	// Days keeps the configured order; see configuredFirstDay.
	Days         []Weekday
	DisplayOrder int
	Active       bool
}

// AllDay is the virtual shift used for tasks without a usable shift
// assignment: every weekday is active and the day window is empty.
func AllDay() Shift {
	return Shift{Days: AllWeekdays(), Active: true}
}

// ErrNoActiveDays marks a shift definition whose day set is empty.
var ErrNoActiveDays = errors.New("shift has no active weekdays")

// Validate reports whether s satisfies the shift invariants.
func (s Shift) Validate() error {
	if s.Name == "" {
		return errors.New("shift name is required")
	}
	if !s.Start.valid() || !s.End.valid() {
		return fmt.Errorf("shift %s: time of day out of range", s.Name)
	}
	if s.Start == s.End {
		return fmt.Errorf("shift %s: start and end must differ", s.Name)
	}
	if len(s.Days) == 0 {
		return fmt.Errorf("shift %s: %w", s.Name, ErrNoActiveDays)
	}
	for _, d := range s.Days {
		if !d.valid() {
			return fmt.Errorf("shift %s: invalid weekday %d", s.Name, int(d))
		}
	}
	return nil
}

// IsOvernight reports whether the shift crosses midnight.
func (s Shift) IsOvernight() bool {
	return s.End < s.Start
}

// IsActiveWeekday reports whether the shift runs on d.
func (s Shift) IsActiveWeekday(d Weekday) bool {
	for _, day := range s.Days {
		if day == d {
			return true
		}
	}
	return false
}

// FirstDay is the lowest active weekday index. Monday for an empty day set.
func (s Shift) FirstDay() Weekday {
	if len(s.Days) == 0 {
		return Monday
	}
	first := s.Days[0]
	for _, d := range s.Days[1:] {
		if d < first {
			first = d
		}
	}
	return first
}

// LastDay is the highest active weekday index. Sunday for an empty day set.
func (s Shift) LastDay() Weekday {
	if len(s.Days) == 0 {
		return Sunday
	}
	last := s.Days[0]
	for _, d := range s.Days[1:] {
		if d > last {
			last = d
		}
	}
	return last
}

// configuredFirstDay is the first element of the day list as configured,
// which is not necessarily FirstDay.
func (s Shift) configuredFirstDay() Weekday {
	if len(s.Days) == 0 {
		return s.FirstDay()
	}
	return s.Days[0]
}

// coversClock reports whether a time of day falls inside the shift window,
// ignoring weekdays.
func (s Shift) coversClock(c Clock) bool {
	if s.IsOvernight() {
		return c >= s.Start || c < s.End
	}
	return s.Start <= c && c < s.End
}

// OccurrenceDate returns the date on which the occurrence containing t
// started. ok is false when t belongs to no occurrence of the shift.
//
// On an active weekday an overnight shift claims the whole day: from Start
// on it is that day's occurrence, before Start it is the previous day's.
// On an inactive weekday only the tail before End counts, and only when the
// previous day is active, so Sat 04:00 belongs to a Friday-only 17:00-05:00
// shift while Sat 06:00 does not.
func (s Shift) OccurrenceDate(t time.Time) (Date, bool) {
	c := ClockOf(t)
	prev := t.AddDate(0, 0, -1)
	if !s.IsActiveWeekday(WeekdayOf(t)) {
		if s.IsOvernight() && c < s.End && s.IsActiveWeekday(WeekdayOf(prev)) {
			return DateOf(prev), true
		}
		return Date{}, false
	}
	switch {
	case !s.IsOvernight():
		if s.coversClock(c) {
			return DateOf(t), true
		}
		return Date{}, false
	case c >= s.Start:
		return DateOf(t), true
	default:
		return DateOf(prev), true
	}
}

// SameOccurrence reports whether both instants fall inside the same single
// occurrence of the shift.
func (s Shift) SameOccurrence(completedAt, ref time.Time) bool {
	a, ok := s.OccurrenceDate(completedAt)
	if !ok {
		return false
	}
	b, ok := s.OccurrenceDate(ref)
	return ok && a == b
}

// WeekStart returns the first-active-day date of the shift week containing t.
// On the first active day, the part of an overnight shift before its start
// time is the tail of the previous week.
func (s Shift) WeekStart(t time.Time) Date {
	first := s.FirstDay()
	start := DateOf(t).AddDays(-mod7(int(WeekdayOf(t)) - int(first)))
	if WeekdayOf(t) == first && s.IsOvernight() && ClockOf(t) < s.Start {
		start = start.AddDays(-7)
	}
	return start
}

// SameShiftWeek reports whether both instants fall in the same shift week.
func (s Shift) SameShiftWeek(completedAt, ref time.Time) bool {
	return s.WeekStart(completedAt) == s.WeekStart(ref)
}
