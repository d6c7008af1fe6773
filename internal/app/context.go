package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"drydock/internal/config"
	"drydock/internal/db"
	"drydock/internal/domain"
	"drydock/internal/engine"
	"drydock/internal/migrate"
	"drydock/internal/render"
	"drydock/internal/repo"
	"drydock/internal/scope"
)

// Env is the wired application: database, config and engine, ready for the
// CLI or the HTTP server to use.
type Env struct {
	DB     *sql.DB
	Config *config.Config
	Engine engine.Engine
}

// Open boots the workspace: opens (and migrates) the database, loads
// drydock.yml or falls back to defaults, and seeds the bootstrap admin if the
// actors table is empty. Safe to call on a fresh directory.
func Open(ctx context.Context, workspace string) (*Env, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := seedAdmin(ctx, repo.Repo{DB: conn}); err != nil {
		conn.Close()
		return nil, err
	}
	renderer := render.NewJSONRenderer(filepath.Join(workspace, cfg.Reports.OutputDir))
	env := &Env{
		DB:     conn,
		Config: cfg,
		Engine: engine.New(conn, cfg, renderer),
	}
	return env, nil
}

func (e *Env) Close() error {
	return e.DB.Close()
}

// BootstrapAdminID is the actor seeded into an empty workspace so the first
// commands have an identity to run as.
const BootstrapAdminID = "admin"

func seedAdmin(ctx context.Context, r repo.Repo) error {
	var n int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM actors`).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339)
	return r.InsertActor(ctx, nil, domain.Actor{
		ID:        BootstrapAdminID,
		Username:  "admin",
		FullName:  "Administrator",
		Role:      string(scope.RoleAdmin),
		Active:    true,
		CreatedAt: now,
	})
}

// ResolveIdentity loads the actor row and turns it into the request identity.
// Unknown or deactivated actors are rejected here, before any operation runs.
func ResolveIdentity(ctx context.Context, r repo.Repo, actorID string) (scope.Identity, error) {
	a, err := r.GetActor(ctx, nil, actorID)
	if errors.Is(err, repo.ErrNotFound) {
		return scope.Identity{}, fmt.Errorf("unknown actor %q", actorID)
	}
	if err != nil {
		return scope.Identity{}, err
	}
	if !a.Active {
		return scope.Identity{}, fmt.Errorf("actor %q is deactivated", actorID)
	}
	role, err := scope.ParseRole(a.Role)
	if err != nil {
		return scope.Identity{}, err
	}
	return scope.Identity{ActorID: a.ID, Role: role}, nil
}
