package engine

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"tpm/internal/repo"
	"tpm/internal/schedule"
)

const dateLayout = "2006-01-02"

// DefaultReportDays is the summary range when no start date is given.
const DefaultReportDays = 30

// SummaryQuery bounds a report by calendar date, inclusive. Empty dates
// default to the last DefaultReportDays days.
type SummaryQuery struct {
	Start string
	End   string
	User  string
}

type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type OverdueTask struct {
	TaskID        int64  `json:"task_id"`
	TaskName      string `json:"task_name"`
	Category      string `json:"category,omitempty"`
	Priority      string `json:"priority"`
	AssignedShift string `json:"assigned_shift"`
	NextDue       string `json:"next_due"`
	HoursOverdue  int    `json:"hours_overdue"`
	DaysOverdue   int    `json:"days_overdue"`
	LastCompleted string `json:"last_completed"`
}

type Summary struct {
	Completions     []repo.CompletionStat `json:"completions"`
	OverdueTasks    []OverdueTask         `json:"overdue_tasks"`
	CompletionTrend []repo.TrendPoint     `json:"completion_trend"`
	StatusCounts    map[string]int        `json:"status_counts"`
	DateRange       DateRange             `json:"date_range"`
	UserFilter      string                `json:"user_filter,omitempty"`
}

func (e Engine) completionFilters(q SummaryQuery) (repo.CompletionFilters, DateRange, error) {
	today := e.now()
	r := DateRange{Start: strings.TrimSpace(q.Start), End: strings.TrimSpace(q.End)}
	if r.End == "" {
		r.End = today.Format(dateLayout)
	}
	if r.Start == "" {
		r.Start = today.AddDate(0, 0, -DefaultReportDays).Format(dateLayout)
	}
	start, err := time.Parse(dateLayout, r.Start)
	if err != nil {
		return repo.CompletionFilters{}, r, invalid("start_date", "expected YYYY-MM-DD")
	}
	end, err := time.Parse(dateLayout, r.End)
	if err != nil {
		return repo.CompletionFilters{}, r, invalid("end_date", "expected YYYY-MM-DD")
	}
	if end.Before(start) {
		return repo.CompletionFilters{}, r, invalid("end_date", "is before start_date")
	}
	return repo.CompletionFilters{
		From:        r.Start + " 00:00:00",
		To:          r.End + " 23:59:59",
		CompletedBy: strings.TrimSpace(q.User),
	}, r, nil
}

// Summary reports completions in a date range and the tasks overdue now.
func (e Engine) Summary(ctx context.Context, q SummaryQuery) (Summary, error) {
	filters, dr, err := e.completionFilters(q)
	if err != nil {
		return Summary{}, err
	}
	stats, err := e.Repo.CompletionStats(ctx, filters)
	if err != nil {
		return Summary{}, fmt.Errorf("completion stats: %w", err)
	}
	trend, err := e.Repo.CompletionTrend(ctx, filters)
	if err != nil {
		return Summary{}, fmt.Errorf("completion trend: %w", err)
	}
	overdue, counts, err := e.overdueTasks(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		Completions:     nonNil(stats),
		OverdueTasks:    nonNil(overdue),
		StatusCounts:    counts,
		CompletionTrend: nonNil(trend),
		DateRange:       dr,
		UserFilter:      filters.CompletedBy,
	}, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// overdueTasks lists active tasks whose next due time has passed, and counts
// every active task by status.
func (e Engine) overdueTasks(ctx context.Context) ([]OverdueTask, map[string]int, error) {
	records, err := e.Repo.ListTaskRecords(ctx, repo.TaskFilters{})
	if err != nil {
		return nil, nil, err
	}
	cal, err := e.Calendar(ctx)
	if err != nil {
		return nil, nil, err
	}
	now := e.now()
	counts := map[string]int{}
	for _, st := range schedule.Statuses() {
		counts[string(st)] = 0
	}
	var res []OverdueTask
	for _, rec := range records {
		ev := cal.Evaluate(now, rec.LastCompletedAt(), rec.Task.Rule())
		e.logAnomalies(ctx, rec.Task.ID, ev.Anomalies)
		counts[string(ev.Status)]++
		if !ev.NextDue.Before(now) {
			continue
		}
		hours := int(now.Sub(ev.NextDue) / time.Hour)
		o := OverdueTask{
			TaskID:        rec.Task.ID,
			TaskName:      rec.Task.Name,
			Category:      rec.Task.Category,
			Priority:      rec.Task.Priority,
			AssignedShift: rec.Task.AssignedShift,
			NextDue:       ev.NextDue.Format(DueLayout),
			HoursOverdue:  hours,
			DaysOverdue:   hours / 24,
			LastCompleted: rec.LastCompletedAt(),
		}
		if o.AssignedShift == "" {
			o.AssignedShift = "All"
		}
		if o.LastCompleted == "" {
			o.LastCompleted = "Never"
		}
		res = append(res, o)
	}
	return res, counts, nil
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// ExportFilename is the suggested name for a completion export.
func ExportFilename(user string) string {
	user = strings.TrimSpace(user)
	if user == "" {
		return "TPM_Report_AllUsers.csv"
	}
	return "TPM_Report_" + unsafeFileChars.ReplaceAllString(user, "_") + ".csv"
}

var csvHeader = []string{"Task Name", "Category", "Shift", "Completed By", "Completed At", "Notes"}

// ExportCompletionsCSV writes completions in the range as CSV and returns the
// suggested file name.
func (e Engine) ExportCompletionsCSV(ctx context.Context, w io.Writer, q SummaryQuery) (string, error) {
	filters, _, err := e.completionFilters(q)
	if err != nil {
		return "", err
	}
	completions, err := e.Repo.ListCompletions(ctx, filters)
	if err != nil {
		return "", err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return "", err
	}
	for _, c := range completions {
		shift := c.AssignedShift
		if shift == "" {
			shift = "All"
		}
		if err := cw.Write([]string{c.TaskName, c.Category, shift, c.CompletedBy, c.CompletedAt, c.Notes}); err != nil {
			return "", err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", err
	}
	return ExportFilename(filters.CompletedBy), nil
}
