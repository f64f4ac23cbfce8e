package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"tpm/internal/domain"
	"tpm/internal/events"
	"tpm/internal/repo"
	"tpm/internal/schedule"
)

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// DueLayout is how next-due instants are rendered.
const DueLayout = "2006-01-02 15:04"

// DefaultHistoryLimit bounds TaskHistory when no limit is given.
const DefaultHistoryLimit = 50

func validPriority(p string) bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// TaskQuery filters ListTasks.
type TaskQuery struct {
	Shift string
	// MyShiftOnly narrows to UserShift when the caller has one.
	MyShiftOnly bool
	UserShift   string
	Status      string
	Priority    string
}

// ListTasks returns active tasks with their scheduling evaluation.
func (e Engine) ListTasks(ctx context.Context, q TaskQuery) ([]domain.TaskView, error) {
	filters := repo.TaskFilters{Shift: strings.TrimSpace(q.Shift), Priority: q.Priority}
	if q.MyShiftOnly && q.UserShift != "" {
		filters.Shift = q.UserShift
	}
	if q.Priority != "" && !validPriority(q.Priority) {
		return nil, invalid("priority", "must be low, medium or high")
	}
	if q.Status != "" && !validStatus(q.Status) {
		return nil, invalid("status", "must be one of completed, overdue, due, upcoming")
	}
	records, err := e.Repo.ListTaskRecords(ctx, filters)
	if err != nil {
		return nil, err
	}
	cal, err := e.Calendar(ctx)
	if err != nil {
		return nil, err
	}
	now := e.now()
	views := make([]domain.TaskView, 0, len(records))
	for _, rec := range records {
		v := e.view(ctx, cal, now, rec)
		if q.Status != "" && v.Status != q.Status {
			continue
		}
		views = append(views, v)
	}
	return views, nil
}

func validStatus(s string) bool {
	for _, st := range schedule.Statuses() {
		if string(st) == s {
			return true
		}
	}
	return false
}

func (e Engine) view(ctx context.Context, cal *schedule.Calendar, now time.Time, rec domain.TaskRecord) domain.TaskView {
	if _, ok := schedule.ParseIntervalType(rec.Task.IntervalType); !ok {
		e.log().WarnContext(ctx, "unknown interval type, scheduling as legacy", "task_id", rec.Task.ID, "interval_type", rec.Task.IntervalType)
	}
	ev := cal.Evaluate(now, rec.LastCompletedAt(), rec.Task.Rule())
	e.logAnomalies(ctx, rec.Task.ID, ev.Anomalies)
	v := domain.TaskView{
		Task:            rec.Task,
		CompletionCount: rec.CompletionCount,
		NextDue:         ev.NextDue.Format(DueLayout),
		Status:          string(ev.Status),
		HoursUntilDue:   ev.HoursUntilDue,
		DaysUntilDue:    ev.DaysUntilDue,
		Warnings:        ev.Anomalies,
	}
	if rec.LastCompletion != nil {
		v.LastCompletedAt = rec.LastCompletion.CompletedAt
		v.LastCompletedBy = rec.LastCompletion.CompletedBy
	}
	return v
}

// GetTask returns one task, active or not, with its evaluation.
func (e Engine) GetTask(ctx context.Context, id int64) (domain.TaskView, error) {
	rec, err := e.Repo.GetTaskRecord(ctx, id)
	if err != nil {
		return domain.TaskView{}, err
	}
	cal, err := e.Calendar(ctx)
	if err != nil {
		return domain.TaskView{}, err
	}
	return e.view(ctx, cal, e.now(), rec), nil
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	Name          string
	Description   string
	IntervalDays  int
	IntervalType  string
	AssignedShift string
	Category      string
	Priority      string
	ProcedureLink string
	Actor         string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.TaskView, error) {
	ts := e.stamp()
	t := domain.Task{
		Name:          strings.TrimSpace(opts.Name),
		Description:   opts.Description,
		IntervalDays:  opts.IntervalDays,
		IntervalType:  strings.TrimSpace(opts.IntervalType),
		AssignedShift: strings.TrimSpace(opts.AssignedShift),
		Category:      opts.Category,
		Priority:      opts.Priority,
		ProcedureLink: opts.ProcedureLink,
		CreatedBy:     opts.Actor,
		Active:        true,
		CreatedAt:     ts,
		UpdatedAt:     ts,
	}
	if t.IntervalDays == 0 {
		t.IntervalDays = 1
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if err := e.validateTask(ctx, t); err != nil {
		return domain.TaskView{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TaskView{}, err
	}
	defer tx.Rollback()
	id, err := e.Repo.InsertTask(ctx, tx, t)
	if err != nil {
		return domain.TaskView{}, fmt.Errorf("insert task: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.TaskCreated, "task", events.ID(id), opts.Actor, events.EventPayload{
		"task_name": t.Name, "interval_type": t.IntervalType, "assigned_shift": t.AssignedShift, "priority": t.Priority,
	}); err != nil {
		return domain.TaskView{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TaskView{}, err
	}
	return e.GetTask(ctx, id)
}

func (e Engine) validateTask(ctx context.Context, t domain.Task) error {
	if t.Name == "" {
		return invalid("task_name", "is required")
	}
	if _, ok := schedule.ParseIntervalType(t.IntervalType); !ok {
		return invalid("interval_type", "unknown interval type %q", t.IntervalType)
	}
	if t.IntervalDays < 1 {
		return invalid("interval_days", "must be at least 1")
	}
	if !validPriority(t.Priority) {
		return invalid("priority", "must be low, medium or high")
	}
	if t.AssignedShift != "" {
		if _, err := e.Repo.GetShiftByName(ctx, t.AssignedShift); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return invalid("assigned_shift", "unknown shift %s", t.AssignedShift)
			}
			return err
		}
	}
	return nil
}

// TaskUpdateOptions holds a partial update; nil fields are left unchanged.
type TaskUpdateOptions struct {
	ID            int64
	Name          *string
	Description   *string
	IntervalDays  *int
	IntervalType  *string
	AssignedShift *string
	Category      *string
	Priority      *string
	ProcedureLink *string
	Active        *bool
	Actor         string
}

func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.TaskView, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TaskView{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, opts.ID)
	if err != nil {
		return domain.TaskView{}, err
	}
	changed := map[string]any{}
	setString := func(field string, dst *string, v *string) {
		if v != nil && *v != *dst {
			*dst = *v
			changed[field] = *v
		}
	}
	if opts.Name != nil {
		name := strings.TrimSpace(*opts.Name)
		setString("task_name", &t.Name, &name)
	}
	setString("description", &t.Description, opts.Description)
	setString("interval_type", &t.IntervalType, opts.IntervalType)
	setString("assigned_shift", &t.AssignedShift, opts.AssignedShift)
	setString("category", &t.Category, opts.Category)
	setString("priority", &t.Priority, opts.Priority)
	setString("procedure_link", &t.ProcedureLink, opts.ProcedureLink)
	if opts.IntervalDays != nil && *opts.IntervalDays != t.IntervalDays {
		t.IntervalDays = *opts.IntervalDays
		changed["interval_days"] = t.IntervalDays
	}
	if opts.Active != nil && *opts.Active != t.Active {
		t.Active = *opts.Active
		changed["active"] = t.Active
	}
	if len(changed) == 0 {
		if err := tx.Commit(); err != nil {
			return domain.TaskView{}, err
		}
		return e.GetTask(ctx, t.ID)
	}
	if err := e.validateTask(ctx, t); err != nil {
		return domain.TaskView{}, err
	}
	t.UpdatedAt = e.stamp()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.TaskView{}, fmt.Errorf("update task: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.TaskUpdated, "task", events.ID(t.ID), opts.Actor, events.EventPayload(changed)); err != nil {
		return domain.TaskView{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TaskView{}, err
	}
	return e.GetTask(ctx, t.ID)
}

// DeleteTask deactivates a task. Its completions stay for reports.
func (e Engine) DeleteTask(ctx context.Context, id int64, actor string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	t, err := e.Repo.GetTaskTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := e.Repo.DeactivateTask(ctx, tx, id, e.stamp()); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.TaskDeleted, "task", events.ID(id), actor, events.EventPayload{"task_name": t.Name}); err != nil {
		return err
	}
	return tx.Commit()
}

// activeTask loads a task for recording work against it; inactive tasks read
// as missing.
func (e Engine) activeTask(ctx context.Context, tx *sql.Tx, id int64) (domain.Task, error) {
	t, err := e.Repo.GetTaskTx(ctx, tx, id)
	if err != nil {
		return t, err
	}
	if !t.Active {
		return t, repo.ErrNotFound
	}
	return t, nil
}

// CompleteTask records a completion stamped with the current local time.
func (e Engine) CompleteTask(ctx context.Context, id int64, actor, notes string) (domain.Completion, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Completion{}, err
	}
	defer tx.Rollback()
	t, err := e.activeTask(ctx, tx, id)
	if err != nil {
		return domain.Completion{}, err
	}
	c := domain.Completion{
		TaskID:        t.ID,
		TaskName:      t.Name,
		Category:      t.Category,
		AssignedShift: t.AssignedShift,
		CompletedBy:   actor,
		CompletedAt:   e.stamp(),
		Notes:         strings.TrimSpace(notes),
	}
	c.ID, err = e.Repo.InsertCompletion(ctx, tx, c)
	if err != nil {
		return domain.Completion{}, fmt.Errorf("insert completion: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.TaskCompleted, "task", events.ID(t.ID), actor, events.EventPayload{
		"completion_id": c.ID, "task_name": t.Name, "completed_at": c.CompletedAt, "notes": c.Notes,
	}); err != nil {
		return domain.Completion{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Completion{}, err
	}
	return c, nil
}

// UndoCompletion removes the latest completion of a task.
func (e Engine) UndoCompletion(ctx context.Context, id int64, actor string) (domain.Completion, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Completion{}, err
	}
	defer tx.Rollback()
	t, err := e.activeTask(ctx, tx, id)
	if err != nil {
		return domain.Completion{}, err
	}
	c, err := e.Repo.LatestCompletion(ctx, tx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Completion{}, fmt.Errorf("task %d has no completion to undo: %w", id, repo.ErrNotFound)
		}
		return domain.Completion{}, err
	}
	if err := e.Repo.DeleteCompletion(ctx, tx, c.ID); err != nil {
		return domain.Completion{}, err
	}
	c.TaskName = t.Name
	c.Category = t.Category
	c.AssignedShift = t.AssignedShift
	if err := e.Events.Append(ctx, tx, events.TaskCompletionUndone, "task", events.ID(id), actor, events.EventPayload{
		"completion_id": c.ID, "task_name": t.Name, "completed_at": c.CompletedAt, "completed_by": c.CompletedBy,
	}); err != nil {
		return domain.Completion{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Completion{}, err
	}
	return c, nil
}

// TaskHistory returns the newest completions of a task.
func (e Engine) TaskHistory(ctx context.Context, id int64, limit int) ([]domain.Completion, error) {
	if _, err := e.Repo.GetTask(ctx, id); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return e.Repo.ListCompletions(ctx, repo.CompletionFilters{TaskID: id, Limit: limit})
}

// PermissiveResult answers whether equipment on a shift may run.
type PermissiveResult struct {
	Shift         string   `json:"shift"`
	RunPermissive bool     `json:"run_permissive"`
	Reason        string   `json:"reason,omitempty"`
	OverdueTasks  []string `json:"overdue_tasks,omitempty"`
	Timestamp     string   `json:"timestamp"`
}

// RunPermissive is false while any active high-priority task for the shift,
// or with no shift, is overdue. The reason names the first one found.
func (e Engine) RunPermissive(ctx context.Context, shift string) (PermissiveResult, error) {
	shift = strings.TrimSpace(shift)
	if shift == "" {
		shift = e.defaultShift()
	}
	records, err := e.Repo.ListTaskRecords(ctx, repo.TaskFilters{Shift: shift, Priority: PriorityHigh})
	if err != nil {
		return PermissiveResult{}, err
	}
	cal, err := e.Calendar(ctx)
	if err != nil {
		return PermissiveResult{}, err
	}
	now := e.now()
	res := PermissiveResult{Shift: shift, RunPermissive: true, Timestamp: schedule.FormatTimestamp(now)}
	for _, rec := range records {
		v := e.view(ctx, cal, now, rec)
		if v.Status != string(schedule.StatusOverdue) {
			continue
		}
		if res.RunPermissive {
			res.RunPermissive = false
			res.Reason = fmt.Sprintf("High priority task \"%s\" is overdue", rec.Task.Name)
		}
		res.OverdueTasks = append(res.OverdueTasks, rec.Task.Name)
	}
	return res, nil
}
