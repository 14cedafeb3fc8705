package app

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"skillroutine/internal/config"
	"skillroutine/internal/db"
	"skillroutine/internal/engine"
	"skillroutine/internal/migrate"
)

// ResolveConfig loads skillroutine.yml from the workspace and falls back to
// the built-in defaults when the file does not exist.
func ResolveConfig(workspace string) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg == nil {
		cfg = config.Default()
	}
	return cfg, nil
}

// Options controls how a workspace engine is opened.
type Options struct {
	Workspace string
	JWTSecret string
	Logger    *zap.Logger
}

// OpenEngine opens the workspace database, applies pending migrations and
// returns an engine bound to the effective config. The caller closes the
// returned database.
func OpenEngine(ctx context.Context, opts Options) (engine.Engine, *sql.DB, error) {
	cfg, err := ResolveConfig(opts.Workspace)
	if err != nil {
		return engine.Engine{}, nil, err
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return engine.Engine{}, nil, err
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return engine.Engine{}, nil, fmt.Errorf("migrate: %w", err)
	}
	e := engine.New(conn, cfg)
	e.Tokens.Secret = opts.JWTSecret
	if opts.Logger != nil {
		e.Logger = opts.Logger
	}
	return e, conn, nil
}
