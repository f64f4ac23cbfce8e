package repo

import (
	"context"
	"database/sql"
	"strings"

	"tpm/internal/domain"
)

const taskColumns = `t.id,t.name,t.description,t.interval_days,t.interval_type,t.assigned_shift,t.category,t.priority,t.procedure_link,t.created_by,t.active,t.created_at,t.updated_at`

// High priority first, then by name.
const taskOrder = ` ORDER BY CASE t.priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 WHEN 'low' THEN 2 ELSE 3 END, t.name, t.id`

func taskDest(t *domain.Task, active *int) []any {
	return []any{&t.ID, &t.Name, &t.Description, &t.IntervalDays, &t.IntervalType, &t.AssignedShift, &t.Category,
		&t.Priority, &t.ProcedureLink, &t.CreatedBy, active, &t.CreatedAt, &t.UpdatedAt}
}

func scanTask(s scanner) (domain.Task, error) {
	var t domain.Task
	var active int
	if err := s.Scan(taskDest(&t, &active)...); err != nil {
		return t, mapErr(err)
	}
	t.Active = active != 0
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) (int64, error) {
	res, err := r.conn(tx).ExecContext(ctx, `INSERT INTO tasks(name,description,interval_days,interval_type,assigned_shift,category,priority,procedure_link,created_by,active,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.Name, t.Description, t.IntervalDays, t.IntervalType, t.AssignedShift, t.Category, t.Priority, t.ProcedureLink,
		t.CreatedBy, boolInt(t.Active), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return 0, mapErr(err)
	}
	return res.LastInsertId()
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := r.conn(tx).ExecContext(ctx, `UPDATE tasks SET name=?, description=?, interval_days=?, interval_type=?, assigned_shift=?, category=?, priority=?, procedure_link=?, active=?, updated_at=? WHERE id=?`,
		t.Name, t.Description, t.IntervalDays, t.IntervalType, t.AssignedShift, t.Category, t.Priority, t.ProcedureLink,
		boolInt(t.Active), t.UpdatedAt, t.ID)
	if err != nil {
		return mapErr(err)
	}
	return affectedOne(res)
}

// DeactivateTask is the soft delete; completions are kept for reports.
func (r Repo) DeactivateTask(ctx context.Context, tx *sql.Tx, id int64, updatedAt string) error {
	res, err := r.conn(tx).ExecContext(ctx, `UPDATE tasks SET active=0, updated_at=? WHERE id=? AND active=1`, updatedAt, id)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

func (r Repo) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	return r.GetTaskTx(ctx, nil, id)
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Task, error) {
	return scanTask(r.conn(tx).QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks t WHERE t.id=?`, id))
}

// FindActiveTaskByName returns the lowest-id active task with the given name.
func (r Repo) FindActiveTaskByName(ctx context.Context, tx *sql.Tx, name string) (domain.Task, error) {
	return scanTask(r.conn(tx).QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks t WHERE t.name=? AND t.active=1 ORDER BY t.id LIMIT 1`, name))
}

func (r Repo) CountActiveTasks(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE active=1`).Scan(&n)
	return n, err
}

type TaskFilters struct {
	// Shift keeps tasks assigned to this shift and tasks with no shift.
	Shift           string
	Priority        string
	IncludeInactive bool
	// ExcludeCreatedBy drops tasks created by this actor, e.g. seeded ones.
	ExcludeCreatedBy string
}

func (f TaskFilters) where() (string, []any) {
	var clauses []string
	var args []any
	if !f.IncludeInactive {
		clauses = append(clauses, "t.active=1")
	}
	if f.Shift != "" {
		clauses = append(clauses, "(t.assigned_shift=? OR t.assigned_shift='')")
		args = append(args, f.Shift)
	}
	if f.Priority != "" {
		clauses = append(clauses, "t.priority=?")
		args = append(args, f.Priority)
	}
	if f.ExcludeCreatedBy != "" {
		clauses = append(clauses, "t.created_by<>?")
		args = append(args, f.ExcludeCreatedBy)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	where, args := f.where()
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks t`+where+taskOrder, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

const recordSelect = `SELECT ` + taskColumns + `,
  (SELECT COUNT(*) FROM completions c WHERE c.task_id=t.id),
  lc.id, lc.completed_by, lc.completed_at, lc.notes
FROM tasks t
LEFT JOIN completions lc ON lc.id = (
  SELECT c2.id FROM completions c2 WHERE c2.task_id=t.id ORDER BY c2.completed_at DESC, c2.id DESC LIMIT 1
)`

func scanTaskRecord(s scanner) (domain.TaskRecord, error) {
	var rec domain.TaskRecord
	var active int
	var lastID sql.NullInt64
	var lastBy, lastAt, lastNotes sql.NullString
	dest := append(taskDest(&rec.Task, &active), &rec.CompletionCount, &lastID, &lastBy, &lastAt, &lastNotes)
	if err := s.Scan(dest...); err != nil {
		return rec, mapErr(err)
	}
	rec.Task.Active = active != 0
	if lastID.Valid {
		rec.LastCompletion = &domain.Completion{
			ID:            lastID.Int64,
			TaskID:        rec.Task.ID,
			TaskName:      rec.Task.Name,
			Category:      rec.Task.Category,
			AssignedShift: rec.Task.AssignedShift,
			CompletedBy:   lastBy.String,
			CompletedAt:   lastAt.String,
			Notes:         lastNotes.String,
		}
	}
	return rec, nil
}

// ListTaskRecords returns tasks with their latest completion and completion
// count, in one read.
func (r Repo) ListTaskRecords(ctx context.Context, f TaskFilters) ([]domain.TaskRecord, error) {
	where, args := f.where()
	rows, err := r.DB.QueryContext(ctx, recordSelect+where+taskOrder, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TaskRecord
	for rows.Next() {
		rec, err := scanTaskRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

func (r Repo) GetTaskRecord(ctx context.Context, id int64) (domain.TaskRecord, error) {
	return scanTaskRecord(r.DB.QueryRowContext(ctx, recordSelect+` WHERE t.id=?`, id))
}
