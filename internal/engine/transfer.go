package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tpm/internal/domain"
	"tpm/internal/engine/auth"
	"tpm/internal/events"
	"tpm/internal/repo"
	"tpm/internal/schedule"
)

// SystemActor owns seeded rows. They are left out of data exports.
const SystemActor = "system"

// DefaultImportPassword is given to imported users when the config has none.
const DefaultImportPassword = "changeme123"

type ExportInfo struct {
	Timestamp  string `json:"timestamp"`
	Version    string `json:"version"`
	ExportedBy string `json:"exported_by"`
}

type TaskExport struct {
	Name          string `json:"task_name"`
	Description   string `json:"description"`
	IntervalDays  int    `json:"interval_days"`
	IntervalType  string `json:"interval_type"`
	AssignedShift string `json:"assigned_shift"`
	Category      string `json:"category"`
	Priority      string `json:"priority"`
	ProcedureLink string `json:"procedure_link"`
	// Active defaults to true when absent.
	Active        *bool  `json:"active,omitempty"`
}

type UserExport struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	Shift    string `json:"shift"`
}

type ShiftExport struct {
	Name         string `json:"shift_name"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	ActiveDays   string `json:"active_days"`
	DisplayOrder int    `json:"display_order"`
	Active       bool   `json:"active"`
}

// DataExport is the system migration document.
type DataExport struct {
	ExportInfo *ExportInfo   `json:"export_info"`
	Tasks      []TaskExport  `json:"tasks"`
	Users      []UserExport  `json:"users"`
	Shifts     []ShiftExport `json:"shifts,omitempty"`
}

// DataExportFilename names a data export taken now.
func (e Engine) DataExportFilename() string {
	return "TPM_System_Export_" + e.now().Format("20060102_150405") + ".json"
}

// ExportData dumps user-created tasks, users other than the seeded admin, and
// all shifts. Password hashes are never exported.
func (e Engine) ExportData(ctx context.Context, actor string) (DataExport, error) {
	tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{IncludeInactive: true, ExcludeCreatedBy: SystemActor})
	if err != nil {
		return DataExport{}, err
	}
	users, err := e.Repo.ListUsers(ctx)
	if err != nil {
		return DataExport{}, err
	}
	shifts, err := e.Repo.ListShifts(ctx, false)
	if err != nil {
		return DataExport{}, err
	}
	out := DataExport{
		ExportInfo: &ExportInfo{Timestamp: e.stamp(), Version: Version, ExportedBy: actor},
		Tasks:      []TaskExport{},
		Users:      []UserExport{},
		Shifts:     []ShiftExport{},
	}
	for _, t := range tasks {
		out.Tasks = append(out.Tasks, TaskExport{
			Name: t.Name, Description: t.Description, IntervalDays: t.IntervalDays, IntervalType: t.IntervalType,
			AssignedShift: t.AssignedShift, Category: t.Category, Priority: t.Priority, ProcedureLink: t.ProcedureLink,
			Active: &t.Active,
		})
	}
	seedAdmin := ""
	if e.Config != nil {
		seedAdmin = e.Config.Seed.Admin.Username
	}
	for _, u := range users {
		if seedAdmin != "" && strings.EqualFold(u.Username, seedAdmin) {
			continue
		}
		out.Users = append(out.Users, UserExport{Username: u.Username, Role: u.Role, Shift: u.Shift})
	}
	for _, s := range shifts {
		out.Shifts = append(out.Shifts, ShiftExport{
			Name: s.Name, StartTime: s.StartTime, EndTime: s.EndTime, ActiveDays: s.ActiveDays,
			DisplayOrder: s.DisplayOrder, Active: s.Active,
		})
	}
	return out, nil
}

// ImportResult counts what ImportData wrote.
type ImportResult struct {
	Tasks   int      `json:"tasks"`
	Users   int      `json:"users"`
	Shifts  int      `json:"shifts"`
	Skipped []string `json:"skipped,omitempty"`
	Note    string   `json:"note,omitempty"`
}

// ImportData loads an export in one transaction. Shifts are upserted by name
// and tasks by active task name. Users that already exist are skipped; new
// users get the import password. Invalid entries are skipped and reported.
func (e Engine) ImportData(ctx context.Context, data DataExport, actor string) (ImportResult, error) {
	if data.ExportInfo == nil || data.Tasks == nil || data.Users == nil {
		return ImportResult{}, invalid("", "invalid export file format: export_info, tasks and users are required")
	}
	password := DefaultImportPassword
	if e.Config != nil && e.Config.Seed.ImportPassword != "" {
		password = e.Config.Seed.ImportPassword
	}
	var res ImportResult
	var hash string

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	for _, s := range data.Shifts {
		def := schedule.ShiftDef{Name: s.Name, Start: s.StartTime, End: s.EndTime, Days: s.ActiveDays, DisplayOrder: s.DisplayOrder, Active: s.Active}
		if _, err := schedule.ParseShift(def); err != nil {
			res.Skipped = append(res.Skipped, fmt.Sprintf("shift %s: %v", s.Name, err))
			continue
		}
		if err := e.Repo.UpsertShift(ctx, tx, domain.Shift{
			Name: strings.TrimSpace(s.Name), StartTime: s.StartTime, EndTime: s.EndTime, ActiveDays: s.ActiveDays,
			DisplayOrder: s.DisplayOrder, Active: s.Active,
		}); err != nil {
			return ImportResult{}, fmt.Errorf("import shift %s: %w", s.Name, err)
		}
		res.Shifts++
	}

	createdBy := "imported_by_" + actor
	ts := e.stamp()
	for _, te := range data.Tasks {
		t := domain.Task{
			Name: strings.TrimSpace(te.Name), Description: te.Description, IntervalDays: te.IntervalDays,
			IntervalType: te.IntervalType, AssignedShift: te.AssignedShift, Category: te.Category, Priority: te.Priority,
			ProcedureLink: te.ProcedureLink, CreatedBy: createdBy, Active: te.Active == nil || *te.Active, CreatedAt: ts, UpdatedAt: ts,
		}
		if t.IntervalDays == 0 {
			t.IntervalDays = 1
		}
		if t.Priority == "" {
			t.Priority = PriorityMedium
		}
		if reason := importTaskProblem(t); reason != "" {
			e.log().WarnContext(ctx, "skipping imported task", "task_name", t.Name, "reason", reason)
			res.Skipped = append(res.Skipped, fmt.Sprintf("task %s: %s", t.Name, reason))
			continue
		}
		existing, err := e.Repo.FindActiveTaskByName(ctx, tx, t.Name)
		switch {
		case err == nil:
			t.ID = existing.ID
			t.CreatedBy = existing.CreatedBy
			t.CreatedAt = existing.CreatedAt
			err = e.Repo.UpdateTask(ctx, tx, t)
		case errors.Is(err, repo.ErrNotFound):
			_, err = e.Repo.InsertTask(ctx, tx, t)
		}
		if err != nil {
			return ImportResult{}, fmt.Errorf("import task %s: %w", t.Name, err)
		}
		res.Tasks++
	}

	for _, ue := range data.Users {
		name := strings.TrimSpace(ue.Username)
		if name == "" {
			continue
		}
		if _, err := e.Repo.GetUserByUsername(ctx, tx, name); err == nil {
			continue
		} else if !errors.Is(err, repo.ErrNotFound) {
			return ImportResult{}, err
		}
		role := ue.Role
		if role == "" {
			role = auth.RoleOperator
		}
		if !auth.ValidRole(role) {
			res.Skipped = append(res.Skipped, fmt.Sprintf("user %s: unknown role %s", name, role))
			continue
		}
		if hash == "" {
			if hash, err = auth.HashPassword(password); err != nil {
				return ImportResult{}, err
			}
		}
		shift := ue.Shift
		if role == auth.RoleAdmin {
			shift = ""
		}
		if _, err := e.Repo.InsertUser(ctx, tx, domain.User{Username: name, PasswordHash: hash, Role: role, Shift: shift, CreatedAt: ts}); err != nil {
			return ImportResult{}, fmt.Errorf("import user %s: %w", name, err)
		}
		res.Users++
	}
	if res.Users > 0 {
		res.Note = "Imported users have the default password: " + password
	}
	if err := e.Events.Append(ctx, tx, events.DataImported, "system", "", actor, events.EventPayload{
		"tasks": res.Tasks, "users": res.Users, "shifts": res.Shifts, "skipped": len(res.Skipped),
		"source_exported_by": data.ExportInfo.ExportedBy,
	}); err != nil {
		return ImportResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return ImportResult{}, err
	}
	return res, nil
}

// importTaskProblem validates a task without checking that its shift exists;
// an unknown shift is reported by the scheduler when the task is evaluated.
func importTaskProblem(t domain.Task) string {
	switch {
	case t.Name == "":
		return "task_name is required"
	case t.IntervalDays < 1:
		return "interval_days must be at least 1"
	case !validPriority(t.Priority):
		return "priority must be low, medium or high"
	}
	if _, ok := schedule.ParseIntervalType(t.IntervalType); !ok {
		return fmt.Sprintf("unknown interval type %q", t.IntervalType)
	}
	return ""
}
