package repo

import (
	"context"
	"database/sql"

	"tpm/internal/domain"
)

const userColumns = `id,username,password_hash,role,shift,created_at`

func scanUser(s scanner) (domain.User, error) {
	var u domain.User
	err := s.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.Shift, &u.CreatedAt)
	return u, mapErr(err)
}

// InsertUser returns ErrConflict when the username is taken, ignoring case.
func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) (int64, error) {
	res, err := r.conn(tx).ExecContext(ctx, `INSERT INTO users(username,password_hash,role,shift,created_at) VALUES (?,?,?,?,?)`,
		u.Username, u.PasswordHash, u.Role, u.Shift, u.CreatedAt)
	if err != nil {
		return 0, mapErr(err)
	}
	return res.LastInsertId()
}

func (r Repo) GetUser(ctx context.Context, id int64) (domain.User, error) {
	return r.GetUserTx(ctx, nil, id)
}

func (r Repo) GetUserTx(ctx context.Context, tx *sql.Tx, id int64) (domain.User, error) {
	return scanUser(r.conn(tx).QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
}

// GetUserByUsername matches case-insensitively.
func (r Repo) GetUserByUsername(ctx context.Context, tx *sql.Tx, username string) (domain.User, error) {
	return scanUser(r.conn(tx).QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username=?`, username))
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// UpdateUser writes username, role and shift. The password is set separately.
func (r Repo) UpdateUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	res, err := r.conn(tx).ExecContext(ctx, `UPDATE users SET username=?, role=?, shift=? WHERE id=?`, u.Username, u.Role, u.Shift, u.ID)
	if err != nil {
		return mapErr(err)
	}
	return affectedOne(res)
}

func (r Repo) SetPassword(ctx context.Context, tx *sql.Tx, id int64, hash string) error {
	res, err := r.conn(tx).ExecContext(ctx, `UPDATE users SET password_hash=? WHERE id=?`, hash, id)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

func (r Repo) DeleteUser(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := r.conn(tx).ExecContext(ctx, `DELETE FROM users WHERE id=?`, id)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

func (r Repo) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}
