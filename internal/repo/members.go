package repo

import (
	"context"
	"database/sql"

	"tasktree/internal/domain"
)

func (r Repo) UpsertMember(ctx context.Context, tx *sql.Tx, m domain.Member) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO project_members(project_id, user_id, role, created_at) VALUES (?,?,?,?)
ON CONFLICT(project_id, user_id) DO UPDATE SET role=excluded.role`, m.ProjectID, m.UserID, m.Role, m.CreatedAt)
	return err
}

func (r Repo) DeleteMember(ctx context.Context, tx *sql.Tx, projectID, userID string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM project_members WHERE project_id=? AND user_id=?`, projectID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRole returns the actor's role on the project, or "" for non-members.
func (r Repo) GetRole(ctx context.Context, tx *sql.Tx, projectID, userID string) (string, error) {
	var role string
	err := r.q(tx).QueryRowContext(ctx, `SELECT role FROM project_members WHERE project_id=? AND user_id=?`, projectID, userID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return role, err
}

func (r Repo) ListMembers(ctx context.Context, tx *sql.Tx, projectID string) ([]domain.Member, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT m.project_id, m.user_id, COALESCE(a.display_name,''), m.role, m.created_at
FROM project_members m LEFT JOIN actors a ON a.id=m.user_id
WHERE m.project_id=? ORDER BY m.created_at, m.user_id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Member
	for rows.Next() {
		var m domain.Member
		if err := rows.Scan(&m.ProjectID, &m.UserID, &m.DisplayName, &m.Role, &m.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) CountOwners(ctx context.Context, tx *sql.Tx, projectID string) (int, error) {
	var n int
	err := r.q(tx).QueryRowContext(ctx, `SELECT count(*) FROM project_members WHERE project_id=? AND role='owner'`, projectID).Scan(&n)
	return n, err
}
