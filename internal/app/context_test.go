package app

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"tpm/internal/config"
	"tpm/internal/engine/auth"
)

func TestOpenSeedsAndResolvesActor(t *testing.T) {
	auth.BcryptCost = bcrypt.MinCost
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(config.Path(dir), []byte(config.GenerateDefault("Plant 7")), 0o644))
	ctx := context.Background()

	w, err := Open(ctx, dir, nil)
	require.NoError(t, err)
	defer w.Close()
	assert.Equal(t, "Plant 7", w.Config.Site.Name)

	actor, err := ResolveActor(ctx, w, "")
	require.NoError(t, err)
	assert.Equal(t, "admin", actor.Username)
	assert.Equal(t, auth.RoleAdmin, actor.Role)
	assert.Equal(t, "local", actor.Source)

	_, err = ResolveActor(ctx, w, "ghost")
	assert.ErrorContains(t, err, "unknown actor ghost")

	require.NoError(t, w.Close())
	w, err = Open(ctx, dir, nil)
	require.NoError(t, err, "reopening a seeded workspace")
	defer w.Close()
	users, err := w.Engine.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}
