package schedule

import (
	"errors"
	"sort"
	"strings"
	"time"
)

// ShiftDef is a shift definition as stored: times and days are still text.
type ShiftDef struct {
	Name         string
	Start        string
	End          string
	Days         string
	DisplayOrder int
	Active       bool
}

// ParseShift converts a stored definition and validates it.
func ParseShift(def ShiftDef) (Shift, error) {
	start, err := ParseClock(def.Start)
	if err != nil {
		return Shift{}, err
	}
	end, err := ParseClock(def.End)
	if err != nil {
		return Shift{}, err
	}
	days, err := ParseWeekdays(def.Days)
	if err != nil {
		return Shift{}, err
	}
	s := Shift{
		Name:         strings.TrimSpace(def.Name),
		Start:        start,
		End:          end,
		Days:         days,
		DisplayOrder: def.DisplayOrder,
		Active:       def.Active,
	}
	if err := s.Validate(); err != nil {
		return Shift{}, err
	}
	return s, nil
}

// Calendar is an immutable snapshot of the active shifts.
type Calendar struct {
	shifts   []Shift
	byName   map[string]Shift
	rejected map[string]Anomaly
	fallback string
}

// NewCalendar builds a calendar from stored definitions. Inactive definitions
// are ignored. Definitions that fail to parse are left out and reported;
// looking them up later yields the same anomaly.
func NewCalendar(fallback string, defs ...ShiftDef) (*Calendar, []Anomaly) {
	c := &Calendar{
		byName:   map[string]Shift{},
		rejected: map[string]Anomaly{},
		fallback: fallback,
	}
	var anomalies []Anomaly
	for _, def := range defs {
		if !def.Active {
			continue
		}
		s, err := ParseShift(def)
		if err != nil {
			kind := MalformedShift
			if errors.Is(err, ErrNoActiveDays) {
				kind = DegenerateShiftConfig
			}
			a := Anomaly{Kind: kind, Subject: def.Name, Detail: err.Error()}
			c.rejected[def.Name] = a
			anomalies = append(anomalies, a)
			continue
		}
		c.shifts = append(c.shifts, s)
		c.byName[s.Name] = s
	}
	sort.SliceStable(c.shifts, func(i, j int) bool {
		return c.shifts[i].DisplayOrder < c.shifts[j].DisplayOrder
	})
	return c, anomalies
}

// Shifts returns the usable shifts in display order.
func (c *Calendar) Shifts() []Shift {
	out := make([]Shift, len(c.shifts))
	copy(out, c.shifts)
	return out
}

// Fallback is the shift name reported when no shift is active.
func (c *Calendar) Fallback() string { return c.fallback }

// Lookup returns the named active shift.
func (c *Calendar) Lookup(name string) (Shift, bool) {
	s, ok := c.byName[name]
	return s, ok
}

// resolve picks the shift a rule runs on. An empty name means the all-day
// shift; a name that cannot be used also falls back to it, with an anomaly.
func (c *Calendar) resolve(name string) (Shift, bool, []Anomaly) {
	if strings.TrimSpace(name) == "" {
		return AllDay(), false, nil
	}
	if s, ok := c.byName[name]; ok {
		return s, true, nil
	}
	if a, ok := c.rejected[name]; ok {
		if a.Kind == MalformedShift {
			a.Kind = UnknownShift
		}
		return AllDay(), false, []Anomaly{a}
	}
	return AllDay(), false, []Anomaly{{Kind: UnknownShift, Subject: name, Detail: "no active shift with this name"}}
}

// ActiveShift is the result of ResolveActiveShift. Matched is false when Name
// is the configured fallback.
type ActiveShift struct {
	Name    string `json:"shift"`
	Matched bool   `json:"matched"`
	Note    string `json:"note,omitempty"`
}

// ResolveActiveShift returns the first shift in display order whose window
// contains now on now's weekday.
func (c *Calendar) ResolveActiveShift(now time.Time) ActiveShift {
	if len(c.shifts) == 0 && len(c.rejected) == 0 {
		return ActiveShift{Name: c.fallback, Note: "no shifts configured"}
	}
	wd := WeekdayOf(now)
	clock := ClockOf(now)
	for _, s := range c.shifts {
		if !s.IsActiveWeekday(wd) {
			continue
		}
		if s.coversClock(clock) {
			return ActiveShift{Name: s.Name, Matched: true}
		}
	}
	return ActiveShift{Name: c.fallback, Note: "no shift matched current time"}
}
