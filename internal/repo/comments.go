package repo

import (
	"context"
	"database/sql"

	"tasktree/internal/domain"
)

func (r Repo) InsertComment(ctx context.Context, tx *sql.Tx, c domain.Comment) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO task_comments(id, task_id, author_id, body, created_at) VALUES (?,?,?,?,?)`,
		c.ID, c.TaskID, c.AuthorID, c.Body, c.CreatedAt)
	return err
}

// ListComments returns the task's comments, oldest first.
func (r Repo) ListComments(ctx context.Context, tx *sql.Tx, taskID string) ([]domain.Comment, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT id, task_id, author_id, body, created_at FROM task_comments WHERE task_id=? ORDER BY created_at, rowid`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Comment{}
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.Body, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
