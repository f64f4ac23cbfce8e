package schedule

import "strings"

// IntervalType is a task's recurrence rule.
type IntervalType string

const (
	StartShiftDaily  IntervalType = "start_shift_daily"
	StartShiftWeekly IntervalType = "start_shift_weekly"
	EndShiftDaily    IntervalType = "end_shift_daily"
	EndShiftWeekly   IntervalType = "end_shift_weekly"
	// Legacy covers fixed day intervals from older data.
	Legacy IntervalType = "legacy"
)

// IntervalTypes lists every interval type.
func IntervalTypes() []IntervalType {
	return []IntervalType{StartShiftDaily, StartShiftWeekly, EndShiftDaily, EndShiftWeekly, Legacy}
}

// ParseIntervalType maps a stored value onto the closed set of interval
// types. Unrecognised values map to Legacy with ok=false.
func ParseIntervalType(s string) (t IntervalType, ok bool) {
	v := IntervalType(strings.ToLower(strings.TrimSpace(s)))
	switch v {
	case StartShiftDaily, StartShiftWeekly, EndShiftDaily, EndShiftWeekly, Legacy:
		return v, true
	default:
		return Legacy, false
	}
}

// Cadence is the period a completion counts for.
type Cadence int

const (
	CadenceNone Cadence = iota
	CadenceDaily
	CadenceWeekly
)

func (t IntervalType) Cadence() Cadence {
	switch t {
	case StartShiftDaily, EndShiftDaily:
		return CadenceDaily
	case StartShiftWeekly, EndShiftWeekly:
		return CadenceWeekly
	default:
		return CadenceNone
	}
}
