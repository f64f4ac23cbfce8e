package server

import (
	"tpm/internal/engine/auth"
)

type LoginRequest struct {
	Username string `json:"username" minLength:"1"`
	Password string `json:"password" minLength:"1"`
}

type HealthResponse struct {
	Status    string `json:"status" example:"running"`
	Service   string `json:"service" example:"TPM System"`
	Timestamp string `json:"timestamp" example:"2024-01-08 10:00:00"`
	Version   string `json:"version" example:"2.0"`
}

type CreateTaskRequest struct {
	Name          string `json:"task_name" minLength:"1"`
	Description   string `json:"description,omitempty"`
	IntervalDays  int    `json:"interval_days,omitempty" minimum:"1"`
	IntervalType  string `json:"interval_type" enum:"start_shift_daily,start_shift_weekly,end_shift_daily,end_shift_weekly,legacy"`
	AssignedShift string `json:"assigned_shift,omitempty"`
	Category      string `json:"category,omitempty"`
	Priority      string `json:"priority,omitempty" enum:"low,medium,high"`
	ProcedureLink string `json:"procedure_link,omitempty"`
}

type UpdateTaskRequest struct {
	Name          *string `json:"task_name,omitempty"`
	Description   *string `json:"description,omitempty"`
	IntervalDays  *int    `json:"interval_days,omitempty"`
	IntervalType  *string `json:"interval_type,omitempty"`
	AssignedShift *string `json:"assigned_shift,omitempty"`
	Category      *string `json:"category,omitempty"`
	Priority      *string `json:"priority,omitempty"`
	ProcedureLink *string `json:"procedure_link,omitempty"`
	Active        *bool   `json:"active,omitempty"`
}

type CompleteTaskRequest struct {
	Notes string `json:"notes,omitempty" maxLength:"2000"`
}

type CreateUserRequest struct {
	Username string `json:"username" minLength:"1"`
	Password string `json:"password" minLength:"1"`
	Role     string `json:"role,omitempty" enum:"admin,operator,integration"`
	Shift    string `json:"shift,omitempty"`
}

type UpdateUserRequest struct {
	Username *string `json:"username,omitempty"`
	Password *string `json:"password,omitempty"`
	Role     *string `json:"role,omitempty" enum:"admin,operator,integration"`
	Shift    *string `json:"shift,omitempty"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" minLength:"1"`
	NewPassword     string `json:"new_password" minLength:"1"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type MeResponse struct {
	Username    string   `json:"username"`
	Role        string   `json:"role"`
	Shift       string   `json:"shift,omitempty"`
	Source      string   `json:"source"`
	Permissions []string `json:"permissions"`
}

func meResponse(a auth.Actor) MeResponse {
	return MeResponse{
		Username:    a.Username,
		Role:        a.Role,
		Shift:       a.Shift,
		Source:      a.Source,
		Permissions: auth.Permissions(a.Role),
	}
}
