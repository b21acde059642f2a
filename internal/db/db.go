// Package db locates and opens the workspace SQLite database.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	// Dir is the workspace subdirectory that holds tasktree state.
	Dir      = ".tasktree"
	fileName = "tasktree.db"

	defaultBusyTimeout = 5 * time.Second
)

type Config struct {
	Workspace   string
	BusyTimeout time.Duration
}

// Path returns the database file for a workspace; "" means the current
// directory.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, Dir, fileName)
}

// EnsureWorkspace creates the state directory and returns its path.
func EnsureWorkspace(workspace string) (string, error) {
	dir := filepath.Dir(Path(workspace))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace %s: %w", dir, err)
	}
	return dir, nil
}

// DSN builds the modernc connection string. Foreign keys are enforced,
// the journal is WAL, and transactions begin IMMEDIATE so writers queue
// on the busy timeout instead of failing at commit.
func DSN(path string, busy time.Duration) string {
	if busy <= 0 {
		busy = defaultBusyTimeout
	}
	pragmas := []string{
		"_pragma=foreign_keys(1)",
		fmt.Sprintf("_pragma=busy_timeout(%d)", busy.Milliseconds()),
		"_pragma=journal_mode(WAL)",
		"_txlock=immediate",
	}
	return "file:" + path + "?" + strings.Join(pragmas, "&")
}

// Open creates the workspace if needed and returns a pool that has
// answered a ping.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	conn, err := sql.Open("sqlite", DSN(Path(cfg.Workspace), cfg.BusyTimeout))
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping %s: %w", Path(cfg.Workspace), err)
	}
	return conn, nil
}
