package repo

import (
	"context"
	"database/sql"

	"tasktree/internal/domain"
)

const depColumns = `id,project_id,task_id,depends_on_task_id,dependency_type,created_by,created_at`

func scanDependency(s rowScanner) (domain.Dependency, error) {
	var d domain.Dependency
	err := s.Scan(&d.ID, &d.ProjectID, &d.TaskID, &d.DependsOnTaskID, &d.Type, &d.CreatedBy, &d.CreatedAt)
	return d, err
}

func scanDependencies(rows *sql.Rows) ([]domain.Dependency, error) {
	defer rows.Close()
	res := []domain.Dependency{}
	for rows.Next() {
		d, err := scanDependency(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// GetDependency returns the edge for the ordered pair.
func (r Repo) GetDependency(ctx context.Context, tx *sql.Tx, taskID, dependsOnID string) (domain.Dependency, error) {
	d, err := scanDependency(r.q(tx).QueryRowContext(ctx, `SELECT `+depColumns+` FROM task_deps WHERE task_id=? AND depends_on_task_id=?`, taskID, dependsOnID))
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	return d, err
}

func (r Repo) InsertDependency(ctx context.Context, tx *sql.Tx, d domain.Dependency) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO task_deps(`+depColumns+`) VALUES (?,?,?,?,?,?,?)`,
		d.ID, d.ProjectID, d.TaskID, d.DependsOnTaskID, d.Type, d.CreatedBy, d.CreatedAt)
	return err
}

func (r Repo) SetDependencyType(ctx context.Context, tx *sql.Tx, taskID, dependsOnID, depType string) error {
	_, err := r.q(tx).ExecContext(ctx, `UPDATE task_deps SET dependency_type=? WHERE task_id=? AND depends_on_task_id=?`, depType, taskID, dependsOnID)
	return err
}

// DeleteDependency removes the edge and reports whether one existed.
func (r Repo) DeleteDependency(ctx context.Context, tx *sql.Tx, taskID, dependsOnID string) (bool, error) {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM task_deps WHERE task_id=? AND depends_on_task_id=?`, taskID, dependsOnID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListDependencies returns the edges leaving taskID.
func (r Repo) ListDependencies(ctx context.Context, tx *sql.Tx, taskID string) ([]domain.Dependency, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+depColumns+` FROM task_deps WHERE task_id=? ORDER BY created_at, id`, taskID)
	if err != nil {
		return nil, err
	}
	return scanDependencies(rows)
}

// ListDependents returns the edges pointing at taskID.
func (r Repo) ListDependents(ctx context.Context, tx *sql.Tx, taskID string) ([]domain.Dependency, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+depColumns+` FROM task_deps WHERE depends_on_task_id=? ORDER BY created_at, id`, taskID)
	if err != nil {
		return nil, err
	}
	return scanDependencies(rows)
}

// DependencyAdjacency loads every edge of the project as task -> depends_on lists.
func (r Repo) DependencyAdjacency(ctx context.Context, tx *sql.Tx, projectID string) (map[string][]string, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT task_id, depends_on_task_id FROM task_deps WHERE project_id=? ORDER BY task_id, depends_on_task_id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	adj := map[string][]string{}
	for rows.Next() {
		var from, to string
		if err := rows.Scan(&from, &to); err != nil {
			return nil, err
		}
		adj[from] = append(adj[from], to)
	}
	return adj, rows.Err()
}
