package domain

import "tpm/internal/schedule"

type Shift struct {
	ID           int64  `json:"id"`
	Name         string `json:"shift_name"`
	StartTime    string `json:"start_time" example:"04:30"`
	EndTime      string `json:"end_time" example:"15:30"`
	ActiveDays   string `json:"active_days" example:"Mon,Tue,Wed,Thu"`
	DisplayOrder int    `json:"display_order"`
	Active       bool   `json:"active"`
}

// Def converts the stored row for the scheduler.
func (s Shift) Def() schedule.ShiftDef {
	return schedule.ShiftDef{
		Name:         s.Name,
		Start:        s.StartTime,
		End:          s.EndTime,
		Days:         s.ActiveDays,
		DisplayOrder: s.DisplayOrder,
		Active:       s.Active,
	}
}

type Task struct {
	ID            int64  `json:"id"`
	Name          string `json:"task_name"`
	Description   string `json:"description,omitempty"`
	IntervalDays  int    `json:"interval_days"`
	IntervalType  string `json:"interval_type" enum:"start_shift_daily,start_shift_weekly,end_shift_daily,end_shift_weekly,legacy"`
	AssignedShift string `json:"assigned_shift,omitempty"`
	Category      string `json:"category,omitempty"`
	Priority      string `json:"priority" enum:"low,medium,high"`
	ProcedureLink string `json:"procedure_link,omitempty"`
	CreatedBy     string `json:"created_by"`
	Active        bool   `json:"active"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// Rule is the recurrence rule the scheduler reads. Unknown interval types
// are treated as legacy.
func (t Task) Rule() schedule.Rule {
	interval, _ := schedule.ParseIntervalType(t.IntervalType)
	return schedule.Rule{
		Interval:     interval,
		IntervalDays: t.IntervalDays,
		Shift:        t.AssignedShift,
	}
}

type Completion struct {
	ID            int64  `json:"id"`
	TaskID        int64  `json:"task_id"`
	TaskName      string `json:"task_name,omitempty"`
	Category      string `json:"category,omitempty"`
	AssignedShift string `json:"assigned_shift,omitempty"`
	CompletedBy   string `json:"completed_by"`
	CompletedAt   string `json:"completed_at" example:"2024-01-08 06:12:00"`
	Notes         string `json:"notes,omitempty"`
}

// TaskRecord is a task together with the completion data the scheduler
// needs.
type TaskRecord struct {
	Task            Task
	LastCompletion  *Completion
	CompletionCount int
}

// LastCompletedAt is the raw timestamp of the latest completion, or "".
func (r TaskRecord) LastCompletedAt() string {
	if r.LastCompletion == nil {
		return ""
	}
	return r.LastCompletion.CompletedAt
}

// TaskView is a task as listed to users and integrations.
type TaskView struct {
	Task
	LastCompletedAt string             `json:"last_completed_at,omitempty"`
	LastCompletedBy string             `json:"last_completed_by,omitempty"`
	CompletionCount int                `json:"completion_count"`
	NextDue         string             `json:"next_due" example:"2024-01-09 04:30"`
	Status          string             `json:"status" enum:"completed,overdue,due,upcoming"`
	HoursUntilDue   int                `json:"hours_until_due"`
	DaysUntilDue    int                `json:"days_until_due"`
	Warnings        []schedule.Anomaly `json:"warnings,omitempty"`
}

type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	Role         string `json:"role" enum:"admin,operator,integration"`
	Shift        string `json:"shift,omitempty"`
	CreatedAt    string `json:"created_at"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    int64  `json:"user_id"`
	Username  string `json:"username,omitempty"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Actor      string `json:"actor"`
	Payload    string `json:"payload_json"`
}
