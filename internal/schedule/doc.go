// Package schedule computes shift-aware due dates and task status.
//
// Everything in this package is a pure function of its inputs: the current
// instant, a Calendar snapshot of the configured shifts, a task's recurrence
// Rule and the timestamp of its latest completion. Nothing here reads the
// clock, touches storage or returns an error for bad data. Malformed input is
// recovered locally and reported back as an Anomaly next to the result so the
// caller can log it.
//
// Weekdays are indexed Monday=0 through Sunday=6 and times of day have minute
// precision. A shift whose end is earlier than its start runs overnight, and
// an occurrence of such a shift is anchored to the calendar date on which it
// started.
package schedule
