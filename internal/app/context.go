package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"tpm/internal/config"
	"tpm/internal/db"
	"tpm/internal/engine"
	"tpm/internal/engine/auth"
	"tpm/internal/migrate"
	"tpm/internal/repo"
)

// Workspace is an opened, migrated and seeded tpm workspace.
type Workspace struct {
	Dir    string
	DB     *sql.DB
	Config *config.Config
	Engine engine.Engine
}

func (w *Workspace) Close() error {
	if w == nil || w.DB == nil {
		return nil
	}
	return w.DB.Close()
}

// Open loads tpm.yml (the built-in defaults when it is missing), opens the
// database, applies migrations and seeds an empty database.
func Open(ctx context.Context, dir string, logger *slog.Logger) (*Workspace, error) {
	cfg, err := config.LoadOptional(dir)
	if err != nil {
		return nil, err
	}
	return OpenWithConfig(ctx, dir, cfg, logger)
}

func OpenWithConfig(ctx context.Context, dir string, cfg *config.Config, logger *slog.Logger) (*Workspace, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		return nil, err
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	eng := engine.New(conn, cfg)
	eng.Logger = logger
	if _, err := eng.Bootstrap(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return &Workspace{Dir: dir, DB: conn, Config: cfg, Engine: eng}, nil
}

// ResolveActor maps a username to the local actor the CLI acts as. An empty
// name means the seeded admin.
func ResolveActor(ctx context.Context, w *Workspace, username string) (auth.Actor, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		username = w.Config.Seed.Admin.Username
	}
	if username == "" {
		return auth.Actor{}, errors.New("actor not specified; use --actor")
	}
	u, err := w.Engine.UserByName(ctx, username)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return auth.Actor{}, fmt.Errorf("unknown actor %s; create it with tpm user create", username)
		}
		return auth.Actor{}, err
	}
	return engine.ActorFor(u, "local"), nil
}
