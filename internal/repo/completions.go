package repo

import (
	"context"
	"database/sql"
	"strings"

	"tpm/internal/domain"
)

func (r Repo) InsertCompletion(ctx context.Context, tx *sql.Tx, c domain.Completion) (int64, error) {
	res, err := r.conn(tx).ExecContext(ctx, `INSERT INTO completions(task_id,completed_by,completed_at,notes) VALUES (?,?,?,?)`,
		c.TaskID, c.CompletedBy, c.CompletedAt, c.Notes)
	if err != nil {
		return 0, mapErr(err)
	}
	return res.LastInsertId()
}

// LatestCompletion returns the most recent completion of a task.
func (r Repo) LatestCompletion(ctx context.Context, tx *sql.Tx, taskID int64) (domain.Completion, error) {
	var c domain.Completion
	err := r.conn(tx).QueryRowContext(ctx, `SELECT id,task_id,completed_by,completed_at,notes FROM completions WHERE task_id=? ORDER BY completed_at DESC, id DESC LIMIT 1`, taskID).
		Scan(&c.ID, &c.TaskID, &c.CompletedBy, &c.CompletedAt, &c.Notes)
	return c, mapErr(err)
}

func (r Repo) DeleteCompletion(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := r.conn(tx).ExecContext(ctx, `DELETE FROM completions WHERE id=?`, id)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

// CompletionFilters bounds are inclusive stored timestamps.
type CompletionFilters struct {
	TaskID      int64
	From        string
	To          string
	CompletedBy string
	Limit       int
}

func (f CompletionFilters) where() (string, []any) {
	clauses := []string{"1=1"}
	var args []any
	if f.TaskID > 0 {
		clauses = append(clauses, "c.task_id=?")
		args = append(args, f.TaskID)
	}
	if f.From != "" {
		clauses = append(clauses, "c.completed_at>=?")
		args = append(args, f.From)
	}
	if f.To != "" {
		clauses = append(clauses, "c.completed_at<=?")
		args = append(args, f.To)
	}
	if f.CompletedBy != "" {
		clauses = append(clauses, "c.completed_by=?")
		args = append(args, f.CompletedBy)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListCompletions returns completions newest first, joined with their task.
func (r Repo) ListCompletions(ctx context.Context, f CompletionFilters) ([]domain.Completion, error) {
	where, args := f.where()
	query := `SELECT c.id,c.task_id,t.name,t.category,t.assigned_shift,c.completed_by,c.completed_at,c.notes
FROM completions c JOIN tasks t ON t.id=c.task_id` + where + ` ORDER BY c.completed_at DESC, c.id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Completion
	for rows.Next() {
		var c domain.Completion
		if err := rows.Scan(&c.ID, &c.TaskID, &c.TaskName, &c.Category, &c.AssignedShift, &c.CompletedBy, &c.CompletedAt, &c.Notes); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

type CompletionStat struct {
	TaskID          int64  `json:"task_id"`
	TaskName        string `json:"task_name"`
	Category        string `json:"category,omitempty"`
	AssignedShift   string `json:"assigned_shift,omitempty"`
	CompletedBy     string `json:"completed_by"`
	CompletionCount int    `json:"completion_count"`
}

// CompletionStats counts completions per task and user.
func (r Repo) CompletionStats(ctx context.Context, f CompletionFilters) ([]CompletionStat, error) {
	where, args := f.where()
	rows, err := r.DB.QueryContext(ctx, `SELECT t.id,t.name,t.category,t.assigned_shift,c.completed_by,COUNT(c.id)
FROM completions c JOIN tasks t ON t.id=c.task_id`+where+`
GROUP BY t.id, c.completed_by ORDER BY t.name, c.completed_by`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []CompletionStat
	for rows.Next() {
		var s CompletionStat
		if err := rows.Scan(&s.TaskID, &s.TaskName, &s.Category, &s.AssignedShift, &s.CompletedBy, &s.CompletionCount); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

type TrendPoint struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// CompletionTrend counts completions per calendar day.
func (r Repo) CompletionTrend(ctx context.Context, f CompletionFilters) ([]TrendPoint, error) {
	where, args := f.where()
	rows, err := r.DB.QueryContext(ctx, `SELECT substr(c.completed_at,1,10) AS day, COUNT(*) FROM completions c`+where+`
GROUP BY day ORDER BY day`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []TrendPoint
	for rows.Next() {
		var p TrendPoint
		if err := rows.Scan(&p.Date, &p.Count); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
