package schedule_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tpm/internal/schedule"
)

func factoryCalendar(t *testing.T) *schedule.Calendar {
	t.Helper()
	cal, anomalies := schedule.NewCalendar("A",
		schedule.ShiftDef{Name: "A", Start: "04:30", End: "15:30", Days: "Mon,Tue,Wed,Thu", DisplayOrder: 1, Active: true},
		schedule.ShiftDef{Name: "B", Start: "16:30", End: "03:30", Days: "Mon,Tue,Wed,Thu", DisplayOrder: 2, Active: true},
		schedule.ShiftDef{Name: "C", Start: "05:00", End: "17:00", Days: "Fri,Sat,Sun", DisplayOrder: 3, Active: true},
		schedule.ShiftDef{Name: "D", Start: "17:00", End: "05:00", Days: "Fri,Sat,Sun", DisplayOrder: 4, Active: true},
	)
	require.Empty(t, anomalies)
	return cal
}

func TestNextDue(t *testing.T) {
	cal := factoryCalendar(t)
	now := at(10, 12, 0) // Wed
	cases := []struct {
		name string
		last string
		rule schedule.Rule
		want time.Time
	}{
		{"start daily next day", "2024-01-01 05:00:00", schedule.Rule{Interval: schedule.StartShiftDaily, Shift: "A"}, at(2, 4, 30)},
		{"start daily skips weekend", "2024-01-04 10:00:00", schedule.Rule{Interval: schedule.StartShiftDaily, Shift: "A"}, at(8, 4, 30)},
		{"start weekly passed start", "2024-01-01 05:00:00", schedule.Rule{Interval: schedule.StartShiftWeekly, Shift: "A"}, at(8, 4, 30)},
		{"start weekly before start", "2024-01-01 04:00:00", schedule.Rule{Interval: schedule.StartShiftWeekly, Shift: "A"}, at(1, 4, 30)},
		{"end daily overnight", "2024-01-04 20:00:00", schedule.Rule{Interval: schedule.EndShiftDaily, Shift: "B"}, at(8, 3, 30)},
		{"end weekly last day", "2024-01-02 10:00:00", schedule.Rule{Interval: schedule.EndShiftWeekly, Shift: "A"}, at(4, 15, 30)},
		{"end weekly wraps", "2024-01-04 16:00:00", schedule.Rule{Interval: schedule.EndShiftWeekly, Shift: "A"}, at(11, 15, 30)},
		{"weekend weekly", "2024-01-08 09:00:00", schedule.Rule{Interval: schedule.StartShiftWeekly, Shift: "C"}, at(12, 5, 0)},
		{"unassigned daily is next midnight", "2024-01-03 09:15:00", schedule.Rule{Interval: schedule.StartShiftDaily}, at(4, 0, 0)},
		{"never completed uses now", "", schedule.Rule{Interval: schedule.StartShiftDaily, Shift: "A"}, at(11, 4, 30)},
		{"minute precision", "2024-01-01 05:00", schedule.Rule{Interval: schedule.StartShiftDaily, Shift: "A"}, at(2, 4, 30)},
		{"iso form", "2024-01-01T05:00:00", schedule.Rule{Interval: schedule.StartShiftDaily, Shift: "A"}, at(2, 4, 30)},
		{"legacy", "2024-01-01 08:00:00", schedule.Rule{Interval: schedule.Legacy, IntervalDays: 3}, at(4, 8, 0)},
		{"legacy zero days", "2024-01-01 08:00:00", schedule.Rule{Interval: schedule.Legacy}, at(2, 8, 0)},
		{"legacy never completed", "", schedule.Rule{Interval: schedule.Legacy, IntervalDays: 7}, now},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			due := cal.NextDue(now, tc.last, tc.rule)
			assert.Equal(t, tc.want, due.At)
			assert.Empty(t, due.Anomalies)
		})
	}
}

func TestNextDueMalformedTimestampFallsBackToNow(t *testing.T) {
	cal := factoryCalendar(t)
	now := at(10, 12, 0)
	due := cal.NextDue(now, "last tuesday", schedule.Rule{Interval: schedule.StartShiftDaily, Shift: "A"})
	assert.Equal(t, at(11, 4, 30), due.At)
	assert.Equal(t, now, due.Reference)
	require.Len(t, due.Anomalies, 1)
	assert.Equal(t, schedule.MalformedTimestamp, due.Anomalies[0].Kind)

	legacy := cal.NextDue(now, "garbage", schedule.Rule{Interval: schedule.Legacy, IntervalDays: 5})
	assert.Equal(t, now, legacy.At)
}

func TestNextDueUnknownShiftUsesAllDay(t *testing.T) {
	cal := factoryCalendar(t)
	due := cal.NextDue(at(10, 12, 0), "2024-01-05 10:00:00", schedule.Rule{Interval: schedule.StartShiftDaily, Shift: "Z"})
	assert.Equal(t, at(6, 0, 0), due.At)
	assert.Empty(t, due.Shift)
	require.Len(t, due.Anomalies, 1)
	assert.Equal(t, schedule.UnknownShift, due.Anomalies[0].Kind)
	assert.Equal(t, "Z", due.Anomalies[0].Subject)
}

func TestNextDueDegenerateShift(t *testing.T) {
	cal, anomalies := schedule.NewCalendar("A",
		schedule.ShiftDef{Name: "A", Start: "04:30", End: "15:30", Days: "Mon", Active: true},
		schedule.ShiftDef{Name: "E", Start: "08:00", End: "12:00", Days: "", Active: true},
		schedule.ShiftDef{Name: "F", Start: "8am", End: "12:00", Days: "Mon", Active: true},
	)
	require.Len(t, anomalies, 2)
	assert.Equal(t, schedule.DegenerateShiftConfig, anomalies[0].Kind)
	assert.Equal(t, schedule.MalformedShift, anomalies[1].Kind)

	due := cal.NextDue(at(10, 12, 0), "2024-01-05 10:00:00", schedule.Rule{Interval: schedule.StartShiftDaily, Shift: "E"})
	assert.Equal(t, at(6, 0, 0), due.At)
	require.Len(t, due.Anomalies, 1)
	assert.Equal(t, schedule.DegenerateShiftConfig, due.Anomalies[0].Kind)

	due = cal.NextDue(at(10, 12, 0), "", schedule.Rule{Interval: schedule.StartShiftDaily, Shift: "F"})
	require.Len(t, due.Anomalies, 1)
	assert.Equal(t, schedule.UnknownShift, due.Anomalies[0].Kind)
}

func TestNextDueStrictlyAfterReference(t *testing.T) {
	cal := factoryCalendar(t)
	rules := []schedule.IntervalType{schedule.StartShiftDaily, schedule.StartShiftWeekly, schedule.EndShiftDaily, schedule.EndShiftWeekly}
	shifts := []string{"", "A", "B", "C", "D", "missing"}
	now := at(20, 9, 0)
	for _, interval := range rules {
		for _, shift := range shifts {
			for last := at(1, 0, 0); last.Before(at(15, 0, 0)); last = last.Add(53 * time.Minute) {
				raw := schedule.FormatTimestamp(last)
				due := cal.NextDue(now, raw, schedule.Rule{Interval: interval, Shift: shift})
				floor := last
				if now.Before(floor) {
					floor = now
				}
				assert.True(t, due.At.After(floor), "%s/%s from %s gave %s", interval, shift, raw, due.At)
			}
		}
	}
}

func TestNextDueIdempotent(t *testing.T) {
	cal := factoryCalendar(t)
	now := at(10, 12, 0)
	for _, interval := range schedule.IntervalTypes() {
		rule := schedule.Rule{Interval: interval, IntervalDays: 2, Shift: "B"}
		first := cal.NextDue(now, "2024-01-08 22:10:00", rule)
		second := cal.NextDue(now, "2024-01-08 22:10:00", rule)
		assert.Equal(t, first, second, interval)
	}
}

func TestParseIntervalType(t *testing.T) {
	v, ok := schedule.ParseIntervalType(" End_Shift_Weekly ")
	assert.True(t, ok)
	assert.Equal(t, schedule.EndShiftWeekly, v)

	v, ok = schedule.ParseIntervalType("monthly")
	assert.False(t, ok)
	assert.Equal(t, schedule.Legacy, v)
}

func TestParseTimestamp(t *testing.T) {
	loc := time.FixedZone("plant", 2*60*60)
	got, err := schedule.ParseTimestamp("2024-01-01 05:06:07", loc)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 1, 1, 5, 6, 7, 0, loc)))
	assert.Equal(t, 5, got.Hour())

	got, err = schedule.ParseTimestamp("2024-01-01T03:06:07Z", loc)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 1, 1, 5, 6, 7, 0, loc)))
	assert.Equal(t, loc, got.Location())

	_, err = schedule.ParseTimestamp("01/01/2024", loc)
	assert.Error(t, err)
}
