package schedule

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the local-time format stored for completions.
const TimestampLayout = "2006-01-02 15:04:05"

// Second precision first, then minute precision, then ISO-8601 forms.
var timestampLayouts = []string{
	TimestampLayout,
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseTimestamp parses a boundary timestamp. Values without a zone are read
// in loc; values carrying a zone are converted to loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	v := strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t.In(loc), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// parseLastCompleted returns the parsed time and whether one was present and
// valid. A present but malformed value is reported as an anomaly.
func parseLastCompleted(raw string, loc *time.Location) (time.Time, bool, []Anomaly) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, false, nil
	}
	t, err := ParseTimestamp(raw, loc)
	if err != nil {
		return time.Time{}, false, []Anomaly{{Kind: MalformedTimestamp, Subject: raw, Detail: "using current time"}}
	}
	return t, true, nil
}
