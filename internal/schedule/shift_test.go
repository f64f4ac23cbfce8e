package schedule_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tpm/internal/schedule"
)

// 2024-01-01 is a Monday.
func at(day, hour, minute int) time.Time {
	return time.Date(2024, 1, day, hour, minute, 0, 0, time.UTC)
}

func mustShift(t *testing.T, name, start, end, days string) schedule.Shift {
	t.Helper()
	s, err := schedule.ParseShift(schedule.ShiftDef{Name: name, Start: start, End: end, Days: days, Active: true})
	require.NoError(t, err)
	return s
}

func TestWeekdayOf(t *testing.T) {
	assert.Equal(t, schedule.Monday, schedule.WeekdayOf(at(1, 0, 0)))
	assert.Equal(t, schedule.Friday, schedule.WeekdayOf(at(5, 12, 0)))
	assert.Equal(t, schedule.Sunday, schedule.WeekdayOf(at(7, 23, 59)))
}

func TestParseWeekdays(t *testing.T) {
	days, err := schedule.ParseWeekdays("Fri, mon,FRI,,Sunday")
	require.NoError(t, err)
	assert.Equal(t, []schedule.Weekday{schedule.Friday, schedule.Monday, schedule.Sunday}, days)
	assert.Equal(t, "Fri,Mon,Sun", schedule.FormatWeekdays(days))

	days, err = schedule.ParseWeekdays("")
	require.NoError(t, err)
	assert.Empty(t, days)

	_, err = schedule.ParseWeekdays("Mon,Funday")
	assert.Error(t, err)
}

func TestParseClock(t *testing.T) {
	c, err := schedule.ParseClock("16:30")
	require.NoError(t, err)
	assert.Equal(t, schedule.Clock(16*60+30), c)
	assert.Equal(t, "16:30", c.String())

	c, err = schedule.ParseClock("4:05")
	require.NoError(t, err)
	assert.Equal(t, "04:05", c.String())

	for _, bad := range []string{"", "24:00", "12:60", "12", "12:5", "ab:cd", "123:00"} {
		_, err := schedule.ParseClock(bad)
		assert.Error(t, err, bad)
	}
}

func TestShiftValidate(t *testing.T) {
	_, err := schedule.ParseShift(schedule.ShiftDef{Name: "X", Start: "08:00", End: "08:00", Days: "Mon"})
	assert.Error(t, err)

	_, err = schedule.ParseShift(schedule.ShiftDef{Name: "X", Start: "08:00", End: "09:00", Days: ""})
	assert.ErrorIs(t, err, schedule.ErrNoActiveDays)

	_, err = schedule.ParseShift(schedule.ShiftDef{Name: "", Start: "08:00", End: "09:00", Days: "Mon"})
	assert.Error(t, err)
}

func TestShiftOvernight(t *testing.T) {
	assert.True(t, mustShift(t, "B", "16:30", "03:30", "Mon").IsOvernight())
	assert.False(t, mustShift(t, "A", "04:30", "15:30", "Mon").IsOvernight())
}

func TestShiftFirstAndLastDay(t *testing.T) {
	s := mustShift(t, "X", "08:00", "16:00", "Sun,Wed,Tue")
	assert.Equal(t, schedule.Tuesday, s.FirstDay())
	assert.Equal(t, schedule.Sunday, s.LastDay())
	assert.True(t, s.IsActiveWeekday(schedule.Wednesday))
	assert.False(t, s.IsActiveWeekday(schedule.Monday))
}

func TestSameOccurrenceOvernightRegression(t *testing.T) {
	fri := mustShift(t, "D", "17:00", "05:00", "Fri")
	completed := at(5, 23, 0) // Fri
	assert.True(t, fri.SameOccurrence(completed, at(6, 4, 0)), "Sat 04:00 is the tail of Friday's occurrence")
	assert.False(t, fri.SameOccurrence(completed, at(6, 6, 0)), "Sat 06:00 is outside the shift")
	assert.False(t, fri.SameOccurrence(completed, at(12, 23, 0)), "next Friday is another occurrence")
}

func TestSameOccurrenceMidnight(t *testing.T) {
	b := mustShift(t, "B", "16:30", "03:30", "Mon,Tue,Wed,Thu")
	assert.True(t, b.SameOccurrence(at(1, 23, 50), at(2, 0, 10)))
	assert.False(t, b.SameOccurrence(at(1, 23, 50), at(2, 16, 40)))
	// Thursday's occurrence spills into Friday.
	assert.True(t, b.SameOccurrence(at(4, 18, 0), at(5, 2, 0)))
	// On an active day the hours before Start still belong to the previous date.
	d, ok := b.OccurrenceDate(at(1, 2, 0))
	require.True(t, ok)
	assert.Equal(t, schedule.Date{Year: 2023, Month: time.December, Day: 31}, d)
}

func TestSameOccurrenceOvernightGapOnActiveDay(t *testing.T) {
	b := mustShift(t, "B", "16:30", "03:30", "Mon,Tue,Wed,Thu")
	assert.True(t, b.SameOccurrence(at(2, 2, 0), at(2, 12, 0)), "Tue 12:00 still belongs to Monday's occurrence")
	assert.True(t, b.SameOccurrence(at(2, 2, 0), at(2, 16, 29)))
	assert.False(t, b.SameOccurrence(at(2, 2, 0), at(2, 16, 30)), "Tuesday's occurrence starts at 16:30")

	// Friday is inactive: only the tail before End counts.
	_, ok := b.OccurrenceDate(at(5, 12, 0))
	assert.False(t, ok)
	_, ok = b.OccurrenceDate(at(6, 2, 0))
	assert.False(t, ok, "Saturday's tail would belong to Friday, which B does not have")
}

func TestSameOccurrenceDayShift(t *testing.T) {
	a := mustShift(t, "A", "04:30", "15:30", "Mon,Tue,Wed,Thu")
	assert.True(t, a.SameOccurrence(at(1, 5, 0), at(1, 15, 29)))
	assert.False(t, a.SameOccurrence(at(1, 5, 0), at(1, 15, 30)), "end is exclusive")
	assert.False(t, a.SameOccurrence(at(1, 4, 0), at(1, 4, 0)), "outside the window never matches")
	assert.False(t, a.SameOccurrence(at(1, 5, 0), at(2, 5, 0)))
	assert.False(t, a.SameOccurrence(at(5, 10, 0), at(5, 10, 0)), "Friday is not active")
}

func TestSameOccurrenceReflexiveInsideWindow(t *testing.T) {
	shifts := []schedule.Shift{
		mustShift(t, "A", "04:30", "15:30", "Mon,Tue,Wed,Thu"),
		mustShift(t, "B", "16:30", "03:30", "Mon,Tue,Wed,Thu"),
		mustShift(t, "C", "05:00", "17:00", "Fri,Sat,Sun"),
		mustShift(t, "D", "17:00", "05:00", "Fri,Sat,Sun"),
	}
	for _, s := range shifts {
		for ts := at(1, 0, 0); ts.Before(at(15, 0, 0)); ts = ts.Add(17 * time.Minute) {
			if _, ok := s.OccurrenceDate(ts); !ok {
				continue
			}
			assert.True(t, s.SameOccurrence(ts, ts), "%s at %s", s.Name, ts)
		}
	}
}

func TestWeekStartBoundaryRegression(t *testing.T) {
	mon := mustShift(t, "B", "16:30", "03:30", "Mon")
	assert.Equal(t, schedule.Date{Year: 2024, Month: time.January, Day: 1}, mon.WeekStart(at(8, 2, 0)),
		"Mon 02:00 is the tail of the previous week")
	assert.Equal(t, schedule.Date{Year: 2024, Month: time.January, Day: 8}, mon.WeekStart(at(8, 17, 0)))
	assert.False(t, mon.SameShiftWeek(at(8, 2, 0), at(8, 17, 0)))
	assert.True(t, mon.SameShiftWeek(at(8, 17, 0), at(10, 12, 0)))
}

func TestWeekStartAnchorsOnFirstActiveDay(t *testing.T) {
	c := mustShift(t, "C", "05:00", "17:00", "Fri,Sat,Sun")
	fri := schedule.Date{Year: 2024, Month: time.January, Day: 5}
	assert.Equal(t, fri, c.WeekStart(at(5, 6, 0)))
	assert.Equal(t, fri, c.WeekStart(at(7, 16, 0)))
	assert.Equal(t, fri, c.WeekStart(at(11, 9, 0)), "Thursday still belongs to the week started on Friday")
	assert.True(t, c.SameShiftWeek(at(5, 6, 0), at(11, 9, 0)))
	assert.False(t, c.SameShiftWeek(at(5, 6, 0), at(12, 6, 0)))
}

func TestDateAddDaysCrossesMonths(t *testing.T) {
	d := schedule.Date{Year: 2024, Month: time.January, Day: 1}
	assert.Equal(t, schedule.Date{Year: 2023, Month: time.December, Day: 25}, d.AddDays(-7))
	assert.Equal(t, "2024-03-01", schedule.Date{Year: 2024, Month: time.February, Day: 29}.AddDays(1).String())
}
