// Package app wires the database, schema and engine for the CLI and server.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"tasktree/internal/config"
	"tasktree/internal/db"
	"tasktree/internal/engine"
	"tasktree/internal/migrate"
)

// App is an opened workspace.
type App struct {
	Config *config.Config
	DB     *sql.DB
	Engine engine.Engine
}

// Open opens the workspace database and applies pending migrations.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	conn, err := db.Open(db.Config{Workspace: cfg.Database.Workspace, BusyTimeout: cfg.BusyTimeout()})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &App{Config: cfg, DB: conn, Engine: engine.New(conn)}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}
