package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"tasktree/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict marks an insert whose key is already taken.
	ErrConflict = errors.New("already exists")
)

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// q returns tx when set, the pool otherwise.
func (r Repo) q(tx *sql.Tx) Querier {
	if tx != nil {
		return tx
	}
	return r.DB
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO projects(id,name,description,created_at) VALUES (?,?,?,?)`,
		p.ID, p.Name, nullable(p.Description), p.CreatedAt)
	if isConstraint(err) {
		return fmt.Errorf("project %s: %w", p.ID, ErrConflict)
	}
	return err
}

func (r Repo) GetProject(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	var p domain.Project
	err := r.q(tx).QueryRowContext(ctx, `SELECT id,name,COALESCE(description,''),created_at FROM projects WHERE id=?`, id).
		Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

// ListProjectsForActor returns the projects the actor is a member of.
func (r Repo) ListProjectsForActor(ctx context.Context, actorID string) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT p.id,p.name,COALESCE(p.description,''),p.created_at
FROM projects p JOIN project_members m ON m.project_id=p.id
WHERE m.user_id=? ORDER BY p.created_at DESC, p.id`, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) EnsureActor(ctx context.Context, tx *sql.Tx, actorID, displayName, now string) error {
	if actorID == "" {
		return errors.New("actor_id required")
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO actors(id, display_name, created_at) VALUES (?,?,?)
ON CONFLICT(id) DO UPDATE SET display_name=COALESCE(excluded.display_name, actors.display_name)`,
		actorID, nullable(displayName), now)
	return err
}

// GetActor resolves an actor reference; unknown actors resolve to a bare id.
func (r Repo) GetActor(ctx context.Context, tx *sql.Tx, actorID string) (domain.UserRef, error) {
	ref := domain.UserRef{ID: actorID}
	var name sql.NullString
	err := r.q(tx).QueryRowContext(ctx, `SELECT display_name FROM actors WHERE id=?`, actorID).Scan(&name)
	if err == sql.ErrNoRows {
		return ref, nil
	}
	if err != nil {
		return ref, err
	}
	if name.Valid {
		ref.DisplayName = name.String
	}
	return ref, nil
}

// isConstraint reports a primary key or unique violation.
func isConstraint(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
