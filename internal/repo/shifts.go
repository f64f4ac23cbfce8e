package repo

import (
	"context"
	"database/sql"

	"tpm/internal/domain"
)

const shiftColumns = `id,name,start_time,end_time,active_days,display_order,active`

func scanShift(s scanner) (domain.Shift, error) {
	var sh domain.Shift
	var active int
	if err := s.Scan(&sh.ID, &sh.Name, &sh.StartTime, &sh.EndTime, &sh.ActiveDays, &sh.DisplayOrder, &active); err != nil {
		return sh, mapErr(err)
	}
	sh.Active = active != 0
	return sh, nil
}

// ListShifts returns shifts in display order.
func (r Repo) ListShifts(ctx context.Context, activeOnly bool) ([]domain.Shift, error) {
	query := `SELECT ` + shiftColumns + ` FROM shifts`
	if activeOnly {
		query += ` WHERE active=1`
	}
	query += ` ORDER BY display_order, id`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Shift
	for rows.Next() {
		sh, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, sh)
	}
	return res, rows.Err()
}

func (r Repo) GetShiftByName(ctx context.Context, name string) (domain.Shift, error) {
	return scanShift(r.DB.QueryRowContext(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE name=?`, name))
}

// UpsertShift inserts a shift or replaces the definition with the same name.
func (r Repo) UpsertShift(ctx context.Context, tx *sql.Tx, s domain.Shift) error {
	_, err := r.conn(tx).ExecContext(ctx, `INSERT INTO shifts(name,start_time,end_time,active_days,display_order,active) VALUES (?,?,?,?,?,?)
ON CONFLICT(name) DO UPDATE SET start_time=excluded.start_time, end_time=excluded.end_time, active_days=excluded.active_days,
display_order=excluded.display_order, active=excluded.active`,
		s.Name, s.StartTime, s.EndTime, s.ActiveDays, s.DisplayOrder, boolInt(s.Active))
	return mapErr(err)
}

func (r Repo) CountShifts(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM shifts`).Scan(&n)
	return n, err
}
