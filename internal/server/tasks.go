package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"tpm/internal/domain"
	"tpm/internal/engine"
	"tpm/internal/engine/auth"
)

type taskPath struct {
	ID int64 `path:"id" minimum:"1"`
}

var errShiftsReadOnly = newAPIError(http.StatusForbidden, "forbidden", "Shifts are hardcoded and cannot be modified", nil)

func registerShifts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-shifts",
		Method:      http.MethodGet,
		Path:        "/shifts",
		Summary:     "List shifts",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Shift `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermShiftRead); err != nil {
			return nil, err
		}
		shifts, err := e.ListShifts(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Shift `json:"body"`
		}{Body: shifts}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "active-shift",
		Method:      http.MethodGet,
		Path:        "/shifts/active",
		Summary:     "Shift on duty now",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body engine.ActiveShiftResult `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermShiftRead); err != nil {
			return nil, err
		}
		res, err := e.ActiveShift(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ActiveShiftResult `json:"body"`
		}{Body: res}, nil
	})

	readOnly := func(ctx context.Context, _ *struct {
		Shift string `path:"shift"`
	}) (*struct{}, error) {
		return nil, errShiftsReadOnly
	}
	huma.Register(api, huma.Operation{
		OperationID: "create-shift",
		Method:      http.MethodPost,
		Path:        "/shifts",
		Summary:     "Shifts are read-only",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct{}, error) {
		return nil, errShiftsReadOnly
	})
	huma.Register(api, huma.Operation{
		OperationID: "update-shift",
		Method:      http.MethodPut,
		Path:        "/shifts/{shift}",
		Summary:     "Shifts are read-only",
		Errors:      []int{http.StatusForbidden},
	}, readOnly)
	huma.Register(api, huma.Operation{
		OperationID: "delete-shift",
		Method:      http.MethodDelete,
		Path:        "/shifts/{shift}",
		Summary:     "Shifts are read-only",
		Errors:      []int{http.StatusForbidden},
	}, readOnly)
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks with their due state",
	}, func(ctx context.Context, input *struct {
		Shift       string `query:"shift"`
		MyShiftOnly bool   `query:"my_shift_only"`
		Status      string `query:"status" enum:"completed,overdue,due,upcoming"`
		Priority    string `query:"priority" enum:"low,medium,high"`
	}) (*struct {
		Body []domain.TaskView `json:"body"`
	}, error) {
		actor, err := requirePermission(ctx, auth.PermTaskRead)
		if err != nil {
			return nil, err
		}
		tasks, err := e.ListTasks(ctx, engine.TaskQuery{
			Shift:       input.Shift,
			MyShiftOnly: input.MyShiftOnly,
			UserShift:   actor.Shift,
			Status:      input.Status,
			Priority:    input.Priority,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.TaskView `json:"body"`
		}{Body: tasks}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.TaskView `json:"body"`
	}, error) {
		actor, err := requirePermission(ctx, auth.PermTaskWrite)
		if err != nil {
			return nil, err
		}
		b := input.Body
		t, err := e.CreateTask(ctx, engine.TaskCreateOptions{
			Name:          b.Name,
			Description:   b.Description,
			IntervalDays:  b.IntervalDays,
			IntervalType:  b.IntervalType,
			AssignedShift: b.AssignedShift,
			Category:      b.Category,
			Priority:      b.Priority,
			ProcedureLink: b.ProcedureLink,
			Actor:         actor.Username,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TaskView `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*struct {
		Body domain.TaskView `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermTaskRead); err != nil {
			return nil, err
		}
		t, err := e.GetTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TaskView `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}",
		Summary:     "Update task",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64             `path:"id" minimum:"1"`
		Body UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.TaskView `json:"body"`
	}, error) {
		actor, err := requirePermission(ctx, auth.PermTaskWrite)
		if err != nil {
			return nil, err
		}
		b := input.Body
		t, err := e.UpdateTask(ctx, engine.TaskUpdateOptions{
			ID:            input.ID,
			Name:          b.Name,
			Description:   b.Description,
			IntervalDays:  b.IntervalDays,
			IntervalType:  b.IntervalType,
			AssignedShift: b.AssignedShift,
			Category:      b.Category,
			Priority:      b.Priority,
			ProcedureLink: b.ProcedureLink,
			Active:        b.Active,
			Actor:         actor.Username,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TaskView `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/tasks/{id}",
		Summary:       "Deactivate task",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*struct{}, error) {
		actor, err := requirePermission(ctx, auth.PermTaskWrite)
		if err != nil {
			return nil, err
		}
		if err := e.DeleteTask(ctx, input.ID, actor.Username); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/complete",
		Summary:     "Record a completion",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64                `path:"id" minimum:"1"`
		Body *CompleteTaskRequest `json:"body,omitempty" required:"false"`
	}) (*struct {
		Body domain.Completion `json:"body"`
	}, error) {
		actor, err := requirePermission(ctx, auth.PermTaskComplete)
		if err != nil {
			return nil, err
		}
		notes := ""
		if input.Body != nil {
			notes = input.Body.Notes
		}
		c, err := e.CompleteTask(ctx, input.ID, actor.Username, notes)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Completion `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "uncomplete-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/incomplete",
		Summary:     "Remove the latest completion",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*struct {
		Body domain.Completion `json:"body"`
	}, error) {
		actor, err := requirePermission(ctx, auth.PermTaskUndo)
		if err != nil {
			return nil, err
		}
		c, err := e.UndoCompletion(ctx, input.ID, actor.Username)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Completion `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "task-history",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}/history",
		Summary:     "Completion history, newest first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID    int64 `path:"id" minimum:"1"`
		Limit int   `query:"limit"`
	}) (*struct {
		Body []domain.Completion `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermTaskRead); err != nil {
			return nil, err
		}
		limit := engine.DefaultHistoryLimit
		if input.Limit > 0 {
			limit = normalizeLimit(input.Limit)
		}
		history, err := e.TaskHistory(ctx, input.ID, limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Completion `json:"body"`
		}{Body: history}, nil
	})
}

func registerIntegration(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "run-permissive",
		Method:      http.MethodGet,
		Path:        "/integration/run-permissive",
		Summary:     "Whether production may run for a shift",
		Description: "False when a high priority task for the shift, or an unassigned one, is overdue.",
	}, func(ctx context.Context, input *struct {
		Shift string `query:"shift"`
	}) (*struct {
		Body engine.PermissiveResult `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermIntegration); err != nil {
			return nil, err
		}
		res, err := e.RunPermissive(ctx, input.Shift)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.PermissiveResult `json:"body"`
		}{Body: res}, nil
	})
}
