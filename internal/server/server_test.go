package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"tpm/internal/config"
	"tpm/internal/db"
	"tpm/internal/domain"
	"tpm/internal/engine"
	"tpm/internal/engine/auth"
	"tpm/internal/migrate"
)

// Monday 2024-01-08 10:00 UTC, inside shift A.
var monday = time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) engine.Engine {
	t.Helper()
	auth.BcryptCost = bcrypt.MinCost
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	cfg := config.Default()
	cfg.Site.Timezone = "UTC"
	cfg.Server.JWTSecret = "test-secret"
	e := engine.New(conn, cfg)
	e.Now = func() time.Time { return monday }
	e.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err = e.Bootstrap(context.Background())
	require.NoError(t, err)
	return e
}

func newTestServer(t *testing.T) (*httptest.Server, engine.Engine) {
	t.Helper()
	e := newTestEngine(t)
	handler, err := New(Config{Engine: e, BasePath: "/v1", Logger: e.Logger})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, e
}

func doJSON(t *testing.T, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

func login(t *testing.T, srv *httptest.Server, username, password string) map[string]string {
	t.Helper()
	res, data := doJSON(t, http.MethodPost, srv.URL+"/v1/auth/login", map[string]string{
		"username": username, "password": password,
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var tok engine.Token
	require.NoError(t, json.Unmarshal(data, &tok))
	require.NotEmpty(t, tok.AccessToken)
	return map[string]string{"Authorization": "Bearer " + tok.AccessToken}
}

func decodeError(t *testing.T, data []byte) apiErrorBody {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(data, &env), string(data))
	return env.Error
}

func TestHealthAndAuthentication(t *testing.T) {
	srv, _ := newTestServer(t)

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v1/health", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(data, &health))
	assert.Equal(t, "running", health.Status)
	assert.Equal(t, "TPM System", health.Service)
	assert.Equal(t, engine.Version, health.Version)
	assert.Equal(t, "2024-01-08 10:00:00", health.Timestamp)

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v1/tasks", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "unauthorized", decodeError(t, data).Code)

	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/tasks", nil, map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, data = doJSON(t, http.MethodPost, srv.URL+"/v1/auth/login", map[string]string{
		"username": "admin", "password": "wrong",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "invalid_credentials", decodeError(t, data).Code)

	headers := login(t, srv, "admin", "admin123")
	res, data = doJSON(t, http.MethodGet, srv.URL+"/v1/me", nil, headers)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var me MeResponse
	require.NoError(t, json.Unmarshal(data, &me))
	assert.Equal(t, "admin", me.Username)
	assert.Equal(t, auth.RoleAdmin, me.Role)
	assert.Equal(t, "jwt", me.Source)
	assert.Contains(t, me.Permissions, auth.PermDataImport)
}

func TestTaskLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)
	headers := login(t, srv, "admin", "admin123")

	res, data := doJSON(t, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"task_name":      "Check hydraulic pressure",
		"interval_type":  "start_shift_daily",
		"assigned_shift": "A",
		"priority":       "high",
	}, headers)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var created domain.TaskView
	require.NoError(t, json.Unmarshal(data, &created))
	assert.Equal(t, "due", created.Status)
	assert.Equal(t, "2024-01-09 04:30", created.NextDue)
	assert.Equal(t, "admin", created.CreatedBy)

	taskURL := srv.URL + "/v1/tasks/" + jsonID(created.ID)
	res, data = doJSON(t, http.MethodPost, taskURL+"/complete", map[string]string{"notes": "12 bar"}, headers)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var completion domain.Completion
	require.NoError(t, json.Unmarshal(data, &completion))
	assert.Equal(t, "admin", completion.CompletedBy)
	assert.Equal(t, "12 bar", completion.Notes)

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v1/tasks?status=completed", nil, headers)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var views []domain.TaskView
	require.NoError(t, json.Unmarshal(data, &views))
	require.Len(t, views, 1)
	assert.Equal(t, created.ID, views[0].ID)

	res, data = doJSON(t, http.MethodGet, taskURL+"/history", nil, headers)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var history []domain.Completion
	require.NoError(t, json.Unmarshal(data, &history))
	assert.Len(t, history, 1)

	res, data = doJSON(t, http.MethodPost, taskURL+"/incomplete", nil, headers)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	res, data = doJSON(t, http.MethodPost, taskURL+"/incomplete", nil, headers)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "not_found", decodeError(t, data).Code)

	res, data = doJSON(t, http.MethodPatch, taskURL, map[string]any{"priority": "urgent"}, headers)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))

	res, data = doJSON(t, http.MethodPatch, taskURL, map[string]any{"assigned_shift": "Z"}, headers)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
	assert.Equal(t, "assigned_shift", decodeError(t, data).Details["field"])

	res, _ = doJSON(t, http.MethodDelete, taskURL, nil, headers)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	res, _ = doJSON(t, http.MethodPost, taskURL+"/complete", nil, headers)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestPermissionsByRole(t *testing.T) {
	srv, _ := newTestServer(t)
	admin := login(t, srv, "admin", "admin123")

	res, data := doJSON(t, http.MethodPost, srv.URL+"/v1/users", map[string]any{
		"username": "olga", "password": "pw-olga", "role": "operator", "shift": "A",
	}, admin)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	res, data = doJSON(t, http.MethodPost, srv.URL+"/v1/users", map[string]any{
		"username": "OLGA", "password": "pw", "role": "operator", "shift": "A",
	}, admin)
	assert.Equal(t, http.StatusConflict, res.StatusCode, string(data))

	operator := login(t, srv, "olga", "pw-olga")
	res, data = doJSON(t, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"task_name": "Sneaky", "interval_type": "legacy",
	}, operator)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	e := decodeError(t, data)
	assert.Equal(t, "forbidden", e.Code)
	assert.Equal(t, auth.PermTaskWrite, e.Details["permission"])

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v1/tasks?my_shift_only=true", nil, operator)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var views []domain.TaskView
	require.NoError(t, json.Unmarshal(data, &views))
	for _, v := range views {
		assert.Contains(t, []string{"", "A"}, v.AssignedShift)
	}

	res, data = doJSON(t, http.MethodPut, srv.URL+"/v1/shifts/A", nil, admin)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Equal(t, "Shifts are hardcoded and cannot be modified", decodeError(t, data).Message)

	res, data = doJSON(t, http.MethodPost, srv.URL+"/v1/users/me/password", map[string]string{
		"current_password": "bad", "new_password": "next",
	}, operator)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode, string(data))
	res, data = doJSON(t, http.MethodPost, srv.URL+"/v1/users/me/password", map[string]string{
		"current_password": "pw-olga", "new_password": "next",
	}, operator)
	assert.Equal(t, http.StatusOK, res.StatusCode, string(data))
	login(t, srv, "olga", "next")
}

func TestIntegrationWithAPIKey(t *testing.T) {
	srv, _ := newTestServer(t)
	admin := login(t, srv, "admin", "admin123")

	res, data := doJSON(t, http.MethodPost, srv.URL+"/v1/users", map[string]any{
		"username": "plc", "password": "pw-plc", "role": "integration",
	}, admin)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	res, data = doJSON(t, http.MethodPost, srv.URL+"/v1/api-keys", map[string]any{
		"username": "plc", "name": "line 3",
	}, admin)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var key apiKeyCreated
	require.NoError(t, json.Unmarshal(data, &key))
	require.True(t, strings.HasPrefix(key.Secret, engine.APIKeyPrefix))
	plc := map[string]string{"X-Api-Key": key.Secret}

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v1/shifts/active", nil, plc)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var active engine.ActiveShiftResult
	require.NoError(t, json.Unmarshal(data, &active))
	assert.Equal(t, "A", active.Name)

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v1/integration/run-permissive?shift=A", nil, plc)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var permissive engine.PermissiveResult
	require.NoError(t, json.Unmarshal(data, &permissive))
	assert.Equal(t, "A", permissive.Shift)
	assert.True(t, permissive.RunPermissive)

	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/users", nil, plc)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res, _ = doJSON(t, http.MethodDelete, srv.URL+"/v1/api-keys/"+key.ID, nil, admin)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/shifts/active", nil, plc)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestReportsAndDataTransfer(t *testing.T) {
	srv, e := newTestServer(t)
	admin := login(t, srv, "admin", "admin123")

	tasks, err := e.ListTasks(context.Background(), engine.TaskQuery{})
	require.NoError(t, err)
	require.NotEmpty(t, tasks)
	_, err = e.CompleteTask(context.Background(), tasks[0].ID, "admin", "ok")
	require.NoError(t, err)

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v1/reports/summary", nil, admin)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var summary engine.Summary
	require.NoError(t, json.Unmarshal(data, &summary))
	require.Len(t, summary.Completions, 1)

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v1/reports/summary?start_date=2024-02-01&end_date=2024-01-01", nil, admin)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v1/reports/export?user=admin", nil, admin)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, `attachment; filename="TPM_Report_admin.csv"`, res.Header.Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(string(data), "Task Name,Category,Shift,Completed By,Completed At,Notes"))

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v1/admin/export", nil, admin)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Contains(t, res.Header.Get("Content-Disposition"), "TPM_System_Export_20240108_100000.json")
	var export engine.DataExport
	require.NoError(t, json.Unmarshal(data, &export))
	require.NotNil(t, export.ExportInfo)

	export.Tasks = append(export.Tasks, engine.TaskExport{
		Name: "Imported Check", IntervalDays: 1, IntervalType: "legacy", Priority: "low",
	})
	res, data = doJSON(t, http.MethodPost, srv.URL+"/v1/admin/import", export, admin)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var result engine.ImportResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, 1, result.Tasks)

	res, data = doJSON(t, http.MethodPost, srv.URL+"/v1/admin/import", map[string]any{"tasks": []any{}}, admin)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v1/events?type=data.imported", nil, admin)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var evts []domain.Event
	require.NoError(t, json.Unmarshal(data, &evts))
	assert.Len(t, evts, 1)
}

func TestOpenAPIDocument(t *testing.T) {
	srv, _ := newTestServer(t)
	res, data := doJSON(t, http.MethodGet, srv.URL+"/v1/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var doc struct {
		Paths      map[string]map[string]json.RawMessage `json:"paths"`
		Components struct {
			SecuritySchemes map[string]any `json:"securitySchemes"`
		} `json:"components"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Contains(t, doc.Paths, "/v1/tasks/{id}/complete")
	assert.Contains(t, doc.Components.SecuritySchemes, "bearerAuth")
	assert.Contains(t, doc.Components.SecuritySchemes, "apiKeyAuth")

	res, _ = doJSON(t, http.MethodGet, srv.URL+"/docs", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestWebhookDispatcherDeliversMatchingEvents(t *testing.T) {
	e := newTestEngine(t)
	var (
		mu       sync.Mutex
		received []http.Header
		bodies   []webhookEvent
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt webhookEvent
		_ = json.NewDecoder(r.Body).Decode(&evt)
		mu.Lock()
		received = append(received, r.Header.Clone())
		bodies = append(bodies, evt)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()
	e.Config.Webhooks = []config.WebhookConfig{{
		URL:    hook.URL,
		Events: []string{"task.completed"},
		Secret: "s3cret",
	}}
	d := NewWebhookDispatcher(e, e.Logger)
	ctx := context.Background()

	// Events recorded before the first poll are not replayed.
	d.DispatchAll(ctx)
	tasks, err := e.ListTasks(ctx, engine.TaskQuery{})
	require.NoError(t, err)
	_, err = e.CompleteTask(ctx, tasks[0].ID, "admin", "")
	require.NoError(t, err)
	_, err = e.UndoCompletion(ctx, tasks[0].ID, "admin")
	require.NoError(t, err)
	d.DispatchAll(ctx)
	d.DispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, "task.completed", received[0].Get("X-TPM-Event"))
	assert.Equal(t, "s3cret", received[0].Get("X-TPM-Secret"))
	assert.NotEmpty(t, received[0].Get("X-TPM-Delivery"))
	assert.Equal(t, "task", bodies[0].EntityKind)
	assert.Equal(t, "admin", bodies[0].Actor)
}

func jsonID(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
