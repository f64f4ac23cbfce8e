package tpmsdk

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"tpm/internal/config"
	"tpm/internal/db"
	"tpm/internal/engine"
	"tpm/internal/engine/auth"
	"tpm/internal/migrate"
	"tpm/internal/server"
)

func newServer(t *testing.T) (*httptest.Server, engine.Engine) {
	t.Helper()
	auth.BcryptCost = bcrypt.MinCost
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	cfg := config.Default()
	cfg.Site.Timezone = "UTC"
	cfg.Server.JWTSecret = "sdk-secret"
	e := engine.New(conn, cfg)
	// Friday 2024-01-12 12:00, inside shift C.
	e.Now = func() time.Time { return time.Date(2024, 1, 12, 12, 0, 0, 0, time.UTC) }
	e.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err = e.Bootstrap(context.Background())
	require.NoError(t, err)
	handler, err := server.New(server.Config{Engine: e, Logger: e.Logger})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, e
}

func TestClientPollsAndCompletes(t *testing.T) {
	srv, e := newServer(t)
	ctx := context.Background()
	_, err := e.CreateUser(ctx, engine.UserCreateOptions{Username: "gateway", Password: "pw", Role: auth.RoleIntegration, Actor: "admin"})
	require.NoError(t, err)
	_, secret, err := e.CreateAPIKey(ctx, "gateway", "line 1", "admin")
	require.NoError(t, err)

	c := New(srv.URL, secret)
	shift, err := c.ActiveShift(ctx)
	require.NoError(t, err)
	assert.Equal(t, "C", shift.Shift)
	assert.True(t, shift.Matched)

	tasks, err := c.ListTasks(ctx, TaskFilter{Shift: "C"})
	require.NoError(t, err)
	require.NotEmpty(t, tasks)

	done, err := c.CompleteTask(ctx, tasks[0].ID, "from gateway")
	require.NoError(t, err)
	assert.Equal(t, "gateway", done.CompletedBy)

	got, err := c.GetTask(ctx, tasks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "gateway", got.LastCompletedBy)
	assert.Equal(t, done.CompletedAt, got.LastCompletedAt)

	p, err := c.RunPermissive(ctx, "C")
	require.NoError(t, err)
	assert.Equal(t, "C", p.Shift)

	evts, err := c.Events(ctx, 0, 500)
	require.NoError(t, err)
	require.NotEmpty(t, evts)
	assert.Equal(t, "task.completed", evts[len(evts)-1].Type)
}

func TestClientErrors(t *testing.T) {
	srv, _ := newServer(t)
	ctx := context.Background()

	c := New(srv.URL, "tpm_bogus")
	_, err := c.ActiveShift(ctx)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "invalid_credentials", apiErr.Code)

	c = New(srv.URL, "")
	require.NoError(t, c.Login(ctx, "admin", "admin123"))
	_, err = c.GetTask(ctx, 9999)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	_, err = c.UndoCompletion(ctx, 1)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}
