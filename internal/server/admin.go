package server

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"tpm/internal/domain"
	"tpm/internal/engine"
	"tpm/internal/engine/auth"
	"tpm/internal/repo"
)

type reportQuery struct {
	StartDate string `query:"start_date" example:"2024-01-01"`
	EndDate   string `query:"end_date" example:"2024-01-31"`
	User      string `query:"user"`
}

func (q reportQuery) summaryQuery() engine.SummaryQuery {
	return engine.SummaryQuery{Start: q.StartDate, End: q.EndDate, User: q.User}
}

func attachment(name string) string {
	return fmt.Sprintf("attachment; filename=%q", name)
}

func registerReports(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "report-summary",
		Method:      http.MethodGet,
		Path:        "/reports/summary",
		Summary:     "Completion summary and overdue tasks",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *reportQuery) (*struct {
		Body engine.Summary `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermReportRead); err != nil {
			return nil, err
		}
		s, err := e.Summary(ctx, input.summaryQuery())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.Summary `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "report-export",
		Method:      http.MethodGet,
		Path:        "/reports/export",
		Summary:     "Completions as CSV",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *reportQuery) (*struct {
		ContentType        string `header:"Content-Type"`
		ContentDisposition string `header:"Content-Disposition"`
		Body               []byte
	}, error) {
		if _, err := requirePermission(ctx, auth.PermReportRead); err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		name, err := e.ExportCompletionsCSV(ctx, &buf, input.summaryQuery())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			ContentType        string `header:"Content-Type"`
			ContentDisposition string `header:"Content-Disposition"`
			Body               []byte
		}{ContentType: "text/csv", ContentDisposition: attachment(name), Body: buf.Bytes()}, nil
	})
}

func registerAdmin(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "export-data",
		Method:      http.MethodGet,
		Path:        "/admin/export",
		Summary:     "Export tasks, users and shifts",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		ContentDisposition string            `header:"Content-Disposition"`
		Body               engine.DataExport `json:"body"`
	}, error) {
		actor, err := requirePermission(ctx, auth.PermDataExport)
		if err != nil {
			return nil, err
		}
		data, err := e.ExportData(ctx, actor.Username)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			ContentDisposition string            `header:"Content-Disposition"`
			Body               engine.DataExport `json:"body"`
		}{ContentDisposition: attachment(e.DataExportFilename()), Body: data}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:      "import-data",
		Method:           http.MethodPost,
		Path:             "/admin/import",
		Summary:          "Import an export document",
		Description:      "Tasks are matched by name and updated; missing users are created with the import password.",
		SkipValidateBody: true,
		Errors:           []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body engine.DataExport `json:"body"`
	}) (*struct {
		Body engine.ImportResult `json:"body"`
	}, error) {
		actor, err := requirePermission(ctx, auth.PermDataImport)
		if err != nil {
			return nil, err
		}
		res, err := e.ImportData(ctx, input.Body, actor.Username)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ImportResult `json:"body"`
		}{Body: res}, nil
	})
}

func registerUsers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.User `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermUserRead); err != nil {
			return nil, err
		}
		users, err := e.ListUsers(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.User `json:"body"`
		}{Body: users}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Create user",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateUserRequest `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		actor, err := requirePermission(ctx, auth.PermUserWrite)
		if err != nil {
			return nil, err
		}
		u, err := e.CreateUser(ctx, engine.UserCreateOptions{
			Username: input.Body.Username,
			Password: input.Body.Password,
			Role:     input.Body.Role,
			Shift:    input.Body.Shift,
			Actor:    actor.Username,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "change-password",
		Method:      http.MethodPost,
		Path:        "/users/me/password",
		Summary:     "Change the caller's password",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body ChangePasswordRequest `json:"body"`
	}) (*struct {
		Body MessageResponse `json:"body"`
	}, error) {
		actor, err := requirePermission(ctx, auth.PermPasswordChange)
		if err != nil {
			return nil, err
		}
		if err := e.ChangePassword(ctx, actor.Username, input.Body.CurrentPassword, input.Body.NewPassword); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MessageResponse `json:"body"`
		}{Body: MessageResponse{Message: "Password changed successfully"}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-user",
		Method:      http.MethodPatch,
		Path:        "/users/{id}",
		Summary:     "Update user",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   int64             `path:"id" minimum:"1"`
		Body UpdateUserRequest `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		actor, err := requirePermission(ctx, auth.PermUserWrite)
		if err != nil {
			return nil, err
		}
		u, err := e.UpdateUser(ctx, engine.UserUpdateOptions{
			ID:       input.ID,
			Username: input.Body.Username,
			Password: input.Body.Password,
			Role:     input.Body.Role,
			Shift:    input.Body.Shift,
			Actor:    actor.Username,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-user",
		Method:        http.MethodDelete,
		Path:          "/users/{id}",
		Summary:       "Delete user",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id" minimum:"1"`
	}) (*struct{}, error) {
		actor, err := requirePermission(ctx, auth.PermUserWrite)
		if err != nil {
			return nil, err
		}
		if err := e.DeleteUser(ctx, input.ID, actor.Username); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

type apiKeyCreated struct {
	domain.APIKey
	Secret string `json:"secret"`
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/api-keys",
		Summary:     "List API keys",
	}, func(ctx context.Context, input *struct {
		Username string `query:"username"`
	}) (*struct {
		Body []domain.APIKey `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermAPIKeyManage); err != nil {
			return nil, err
		}
		keys, err := e.ListAPIKeys(ctx, input.Username)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.APIKey `json:"body"`
		}{Body: keys}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/api-keys",
		Summary:       "Issue an API key",
		Description:   "The secret is only returned in this response.",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body struct {
			Username string `json:"username" minLength:"1"`
			Name     string `json:"name,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body apiKeyCreated `json:"body"`
	}, error) {
		actor, err := requirePermission(ctx, auth.PermAPIKeyManage)
		if err != nil {
			return nil, err
		}
		key, secret, err := e.CreateAPIKey(ctx, input.Body.Username, input.Body.Name, actor.Username)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body apiKeyCreated `json:"body"`
		}{Body: apiKeyCreated{APIKey: key, Secret: secret}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "revoke-api-key",
		Method:        http.MethodDelete,
		Path:          "/api-keys/{id}",
		Summary:       "Revoke an API key",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		actor, err := requirePermission(ctx, auth.PermAPIKeyManage)
		if err != nil {
			return nil, err
		}
		if err := e.RevokeAPIKey(ctx, input.ID, actor.Username); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Event log in id order",
	}, func(ctx context.Context, input *struct {
		After      int64  `query:"after" minimum:"0"`
		Limit      int    `query:"limit"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermEventRead); err != nil {
			return nil, err
		}
		evts, err := e.ListEvents(ctx, repo.EventFilters{
			After:      input.After,
			Type:       input.Type,
			EntityKind: input.EntityKind,
			Limit:      normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: evts}, nil
	})
}
