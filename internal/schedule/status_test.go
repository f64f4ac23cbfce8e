package schedule_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tpm/internal/schedule"
)

func TestResolveStatusThresholds(t *testing.T) {
	cal := factoryCalendar(t)
	now := at(10, 12, 0)
	rule := schedule.Rule{Interval: schedule.StartShiftDaily}
	cases := []struct {
		name    string
		nextDue time.Time
		want    schedule.Status
	}{
		{"ten hours", now.Add(10 * time.Hour), schedule.StatusDue},
		{"one minute late", now.Add(-time.Minute), schedule.StatusOverdue},
		{"three days", now.Add(72 * time.Hour), schedule.StatusUpcoming},
		{"exactly now", now, schedule.StatusDue},
		{"just under a day", now.Add(24*time.Hour - time.Second), schedule.StatusDue},
		{"exactly a day", now.Add(24 * time.Hour), schedule.StatusUpcoming},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, anomalies := cal.ResolveStatus(now, tc.nextDue, "", rule)
			assert.Equal(t, tc.want, got)
			assert.Empty(t, anomalies)
		})
	}
}

func TestResolveStatusCompletionOverridesOverdue(t *testing.T) {
	cal := factoryCalendar(t)
	now := at(8, 10, 0) // Mon, inside A
	got, _ := cal.ResolveStatus(now, now.Add(-time.Hour), "2024-01-08 06:00:00", schedule.Rule{Interval: schedule.StartShiftDaily, Shift: "A"})
	assert.Equal(t, schedule.StatusCompleted, got)

	// Thursday's occurrence no longer counts on Monday.
	got, _ = cal.ResolveStatus(now, now.Add(-time.Hour), "2024-01-04 06:00:00", schedule.Rule{Interval: schedule.StartShiftDaily, Shift: "A"})
	assert.Equal(t, schedule.StatusOverdue, got)
}

func TestResolveStatusOvernightOccurrence(t *testing.T) {
	cal := factoryCalendar(t)
	now := at(9, 1, 0) // Tue 01:00, tail of Monday's B
	got, _ := cal.ResolveStatus(now, now.Add(-time.Minute), "2024-01-08 22:00:00", schedule.Rule{Interval: schedule.EndShiftDaily, Shift: "B"})
	assert.Equal(t, schedule.StatusCompleted, got)
}

func TestEvaluateOvernightCompletionHoldsUntilNextStart(t *testing.T) {
	cal := factoryCalendar(t)
	rule := schedule.Rule{Interval: schedule.EndShiftDaily, Shift: "B"}
	ev := cal.Evaluate(at(2, 12, 0), "2024-01-02 02:00:00", rule)
	assert.Equal(t, schedule.StatusCompleted, ev.Status)

	ev = cal.Evaluate(at(2, 17, 0), "2024-01-02 02:00:00", rule)
	assert.NotEqual(t, schedule.StatusCompleted, ev.Status)
}

func TestResolveStatusWeekly(t *testing.T) {
	cal := factoryCalendar(t)
	rule := schedule.Rule{Interval: schedule.StartShiftWeekly, Shift: "A"}
	got, _ := cal.ResolveStatus(at(11, 10, 0), at(11, 9, 0), "2024-01-08 06:00:00", rule)
	assert.Equal(t, schedule.StatusCompleted, got)

	got, _ = cal.ResolveStatus(at(15, 10, 0), at(15, 4, 30), "2024-01-08 06:00:00", rule)
	assert.Equal(t, schedule.StatusOverdue, got)
}

func TestResolveStatusRequiresShift(t *testing.T) {
	cal := factoryCalendar(t)
	now := at(8, 10, 0)
	got, _ := cal.ResolveStatus(now, now.Add(-time.Hour), "2024-01-08 09:00:00", schedule.Rule{Interval: schedule.StartShiftDaily})
	assert.Equal(t, schedule.StatusOverdue, got)
}

func TestResolveStatusLegacyNeverCompleted(t *testing.T) {
	cal := factoryCalendar(t)
	now := at(8, 10, 0)
	got, _ := cal.ResolveStatus(now, now.Add(-time.Hour), "2024-01-08 09:00:00", schedule.Rule{Interval: schedule.Legacy, Shift: "A"})
	assert.Equal(t, schedule.StatusOverdue, got)
}

func TestResolveStatusUnknownShiftComparesDates(t *testing.T) {
	cal := factoryCalendar(t)
	now := at(8, 23, 0)
	rule := schedule.Rule{Interval: schedule.StartShiftDaily, Shift: "Z"}
	got, anomalies := cal.ResolveStatus(now, now.Add(-time.Hour), "2024-01-08 01:00:00", rule)
	assert.Equal(t, schedule.StatusCompleted, got)
	require.Len(t, anomalies, 1)
	assert.Equal(t, schedule.UnknownShift, anomalies[0].Kind)

	got, _ = cal.ResolveStatus(now, now.Add(-time.Hour), "2024-01-07 23:30:00", rule)
	assert.Equal(t, schedule.StatusOverdue, got)
}

func TestResolveStatusMalformedCompletion(t *testing.T) {
	cal := factoryCalendar(t)
	now := at(8, 10, 0)
	got, anomalies := cal.ResolveStatus(now, now.Add(2*time.Hour), "n/a", schedule.Rule{Interval: schedule.StartShiftDaily, Shift: "A"})
	assert.Equal(t, schedule.StatusDue, got)
	require.Len(t, anomalies, 1)
	assert.Equal(t, schedule.MalformedTimestamp, anomalies[0].Kind)
}

func TestEvaluate(t *testing.T) {
	cal := factoryCalendar(t)
	now := at(10, 12, 0)

	ev := cal.Evaluate(now, "", schedule.Rule{Interval: schedule.StartShiftDaily, Shift: "A"})
	assert.Equal(t, at(11, 4, 30), ev.NextDue)
	assert.Equal(t, schedule.StatusDue, ev.Status)
	assert.Equal(t, 16, ev.HoursUntilDue)
	assert.Equal(t, 0, ev.DaysUntilDue)
	assert.Equal(t, "A", ev.Shift)

	ev = cal.Evaluate(now, "2024-01-01 08:00:00", schedule.Rule{Interval: schedule.Legacy, IntervalDays: 3})
	assert.Equal(t, schedule.StatusOverdue, ev.Status)
	assert.Equal(t, -148, ev.HoursUntilDue)
	assert.Equal(t, -7, ev.DaysUntilDue)

	ev = cal.Evaluate(now, "bad", schedule.Rule{Interval: schedule.StartShiftDaily, Shift: "Z"})
	assert.Len(t, ev.Anomalies, 2, "duplicates from both steps are merged")
}
