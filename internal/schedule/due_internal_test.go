package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// The daily scan only falls through when no listed day is a real weekday,
// which a validated shift never allows. Start-of-shift falls back to the
// lowest listed day; end-of-shift falls back to the first listed day.
// TODO: confirm with operations which anchor end-of-shift should use.
func TestEndShiftDailyFallbackAnchor(t *testing.T) {
	s := Shift{Name: "corrupt", Start: 6 * 60, End: 14 * 60, Days: []Weekday{9, 7}, Active: true}
	ref := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC) // Mon

	start := nextActiveDay(ref, s, s.Start, s.FirstDay())
	end := nextActiveDay(ref, s, s.End, s.configuredFirstDay())

	// min(9,7) = 7 is Monday again, so a full week ahead.
	assert.Equal(t, time.Date(2024, 1, 8, 6, 0, 0, 0, time.UTC), start)
	// Days[0] = 9 is Wednesday.
	assert.Equal(t, time.Date(2024, 1, 3, 14, 0, 0, 0, time.UTC), end)
}

func TestFloorDays(t *testing.T) {
	assert.Equal(t, 0, floorDays(23*time.Hour))
	assert.Equal(t, 1, floorDays(24*time.Hour))
	assert.Equal(t, -1, floorDays(-time.Minute))
	assert.Equal(t, -1, floorDays(-24*time.Hour))
	assert.Equal(t, -2, floorDays(-25*time.Hour))
}

func TestAppendUnique(t *testing.T) {
	a := Anomaly{Kind: UnknownShift, Subject: "Z"}
	got := appendUnique([]Anomaly{a}, a, Anomaly{Kind: UnknownShift, Subject: "Y"}, a)
	assert.Len(t, got, 2)
}
