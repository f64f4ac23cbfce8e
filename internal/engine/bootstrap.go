package engine

import (
	"context"
	"fmt"
	"strings"

	"tpm/internal/domain"
	"tpm/internal/engine/auth"
	"tpm/internal/events"
)

// BootstrapResult counts the rows seeded by Bootstrap.
type BootstrapResult struct {
	Shifts int `json:"shifts"`
	Users  int `json:"users"`
	Tasks  int `json:"tasks"`
}

// Bootstrap seeds an empty database from config: the shifts when none are
// stored, the admin user when there are no users, and the template tasks
// when no task is active. Seeding a populated database is a no-op.
func (e Engine) Bootstrap(ctx context.Context) (BootstrapResult, error) {
	var res BootstrapResult
	if e.Config == nil {
		return res, errNoConfig
	}
	shifts, err := e.Repo.CountShifts(ctx)
	if err != nil {
		return res, err
	}
	users, err := e.Repo.CountUsers(ctx)
	if err != nil {
		return res, err
	}
	tasks, err := e.Repo.CountActiveTasks(ctx)
	if err != nil {
		return res, err
	}

	var adminHash string
	admin := e.Config.Seed.Admin
	if users == 0 && strings.TrimSpace(admin.Username) != "" {
		if adminHash, err = auth.HashPassword(admin.Password); err != nil {
			return res, fmt.Errorf("seed admin: %w", err)
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	if shifts == 0 {
		if res.Shifts, err = e.upsertConfiguredShifts(ctx, tx, SystemActor); err != nil {
			return BootstrapResult{}, err
		}
	}
	ts := e.stamp()
	if adminHash != "" {
		id, err := e.Repo.InsertUser(ctx, tx, domain.User{
			Username: strings.TrimSpace(admin.Username), PasswordHash: adminHash, Role: auth.RoleAdmin, CreatedAt: ts,
		})
		if err != nil {
			return BootstrapResult{}, fmt.Errorf("seed admin: %w", err)
		}
		if err := e.Events.Append(ctx, tx, events.UserCreated, "user", events.ID(id), SystemActor, events.EventPayload{
			"username": admin.Username, "role": auth.RoleAdmin,
		}); err != nil {
			return BootstrapResult{}, err
		}
		res.Users = 1
	}
	if tasks == 0 {
		for _, tt := range e.Config.Seed.Tasks {
			t := domain.Task{
				Name: strings.TrimSpace(tt.Name), Description: tt.Description, IntervalDays: tt.IntervalDays,
				IntervalType: tt.IntervalType, AssignedShift: tt.AssignedShift, Category: tt.Category, Priority: tt.Priority,
				ProcedureLink: tt.ProcedureLink, CreatedBy: SystemActor, Active: true, CreatedAt: ts, UpdatedAt: ts,
			}
			if t.IntervalDays == 0 {
				t.IntervalDays = 1
			}
			if t.Priority == "" {
				t.Priority = PriorityMedium
			}
			id, err := e.Repo.InsertTask(ctx, tx, t)
			if err != nil {
				return BootstrapResult{}, fmt.Errorf("seed task %s: %w", t.Name, err)
			}
			if err := e.Events.Append(ctx, tx, events.TaskCreated, "task", events.ID(id), SystemActor, events.EventPayload{
				"task_name": t.Name, "interval_type": t.IntervalType, "assigned_shift": t.AssignedShift, "priority": t.Priority,
			}); err != nil {
				return BootstrapResult{}, err
			}
			res.Tasks++
		}
	}
	if err := tx.Commit(); err != nil {
		return BootstrapResult{}, err
	}
	if res != (BootstrapResult{}) {
		e.log().InfoContext(ctx, "database seeded", "shifts", res.Shifts, "users", res.Users, "tasks", res.Tasks)
	}
	return res, nil
}
