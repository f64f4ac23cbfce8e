package schedule

import "fmt"

// AnomalyKind classifies data problems the scheduler recovered from.
type AnomalyKind string

const (
	// MalformedTimestamp: a completion time could not be parsed; "now" was used.
	MalformedTimestamp AnomalyKind = "malformed_timestamp"
	// UnknownShift: the assigned shift has no active definition; the
	// all-day shift was used.
	UnknownShift AnomalyKind = "unknown_shift"
	// DegenerateShiftConfig: the assigned shift has no active weekdays; it
	// was treated as unassigned.
	DegenerateShiftConfig AnomalyKind = "degenerate_shift_config"
	// MalformedShift: a shift definition could not be parsed and is never
	// active.
	MalformedShift AnomalyKind = "malformed_shift"
)

// Anomaly describes one recovered problem. Subject is the shift name or the
// raw timestamp involved.
type Anomaly struct {
	Kind    AnomalyKind `json:"kind"`
	Subject string      `json:"subject"`
	Detail  string      `json:"detail,omitempty"`
}

func (a Anomaly) String() string {
	if a.Detail == "" {
		return fmt.Sprintf("%s: %s", a.Kind, a.Subject)
	}
	return fmt.Sprintf("%s: %s (%s)", a.Kind, a.Subject, a.Detail)
}

func appendUnique(dst []Anomaly, src ...Anomaly) []Anomaly {
	for _, a := range src {
		dup := false
		for _, b := range dst {
			if a.Kind == b.Kind && a.Subject == b.Subject {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, a)
		}
	}
	return dst
}
