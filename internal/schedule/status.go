package schedule

import (
	"strings"
	"time"
)

// Status classifies a task at one instant.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusOverdue   Status = "overdue"
	StatusDue       Status = "due"
	StatusUpcoming  Status = "upcoming"
)

// Statuses lists every status.
func Statuses() []Status {
	return []Status{StatusCompleted, StatusOverdue, StatusDue, StatusUpcoming}
}

// ResolveStatus classifies a task. A completion inside the current shift
// period wins over the due date comparison.
func (c *Calendar) ResolveStatus(now, nextDue time.Time, lastCompleted string, rule Rule) (Status, []Anomaly) {
	var anomalies []Anomaly
	if strings.TrimSpace(rule.Shift) != "" {
		last, ok, parseAnomalies := parseLastCompleted(lastCompleted, now.Location())
		anomalies = appendUnique(anomalies, parseAnomalies...)
		if ok {
			done, shiftAnomalies := c.completedInPeriod(now, last, rule)
			anomalies = appendUnique(anomalies, shiftAnomalies...)
			if done {
				return StatusCompleted, anomalies
			}
		}
	}
	return classify(now, nextDue), anomalies
}

func (c *Calendar) completedInPeriod(now, completedAt time.Time, rule Rule) (bool, []Anomaly) {
	shift, resolved, anomalies := c.resolve(rule.Shift)
	if !resolved {
		return DateOf(completedAt) == DateOf(now), anomalies
	}
	switch rule.Interval.Cadence() {
	case CadenceDaily:
		return shift.SameOccurrence(completedAt, now), nil
	case CadenceWeekly:
		return shift.SameShiftWeek(completedAt, now), nil
	default:
		return false, nil
	}
}

func classify(now, nextDue time.Time) Status {
	switch {
	case now.After(nextDue):
		return StatusOverdue
	case nextDue.Sub(now) < 24*time.Hour:
		return StatusDue
	default:
		return StatusUpcoming
	}
}

// Evaluation is the full scheduling verdict for one task.
type Evaluation struct {
	NextDue       time.Time `json:"next_due"`
	Status        Status    `json:"status"`
	HoursUntilDue int       `json:"hours_until_due"`
	DaysUntilDue  int       `json:"days_until_due"`
	Shift         string    `json:"shift,omitempty"`
	Anomalies     []Anomaly `json:"anomalies,omitempty"`
}

// Evaluate runs NextDue and ResolveStatus for one task.
func (c *Calendar) Evaluate(now time.Time, lastCompleted string, rule Rule) Evaluation {
	due := c.NextDue(now, lastCompleted, rule)
	status, anomalies := c.ResolveStatus(now, due.At, lastCompleted, rule)
	until := due.At.Sub(now)
	return Evaluation{
		NextDue:       due.At,
		Status:        status,
		HoursUntilDue: int(until / time.Hour),
		DaysUntilDue:  floorDays(until),
		Shift:         due.Shift,
		Anomalies:     appendUnique(due.Anomalies, anomalies...),
	}
}

// floorDays counts whole days in d, rounding towards negative infinity.
func floorDays(d time.Duration) int {
	const day = 24 * time.Hour
	days := int(d / day)
	if d < 0 && d%day != 0 {
		days--
	}
	return days
}
