package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"tasktree/internal/domain"
)

const taskColumns = `id,project_id,parent_task_id,title,description,status,priority,position,assignee_id,created_by,due_date,created_at,updated_at,completed_at`

func scanTask(s rowScanner) (domain.Task, error) {
	var t domain.Task
	var parentID, description, assigneeID, dueDate, completedAt sql.NullString
	if err := s.Scan(&t.ID, &t.ProjectID, &parentID, &t.Title, &description, &t.Status, &t.Priority, &t.Position,
		&assigneeID, &t.CreatedBy, &dueDate, &t.CreatedAt, &t.UpdatedAt, &completedAt); err != nil {
		return t, err
	}
	if parentID.Valid {
		t.ParentTaskID = &parentID.String
	}
	if description.Valid {
		t.Description = description.String
	}
	if assigneeID.Valid {
		t.AssigneeID = &assigneeID.String
	}
	if dueDate.Valid {
		t.DueDate = &dueDate.String
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.String
	}
	return t, nil
}

func scanTasks(rows *sql.Rows) ([]domain.Task, error) {
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ProjectID, nullableStringPtr(t.ParentTaskID), t.Title, nullable(t.Description), t.Status, t.Priority, t.Position,
		nullableStringPtr(t.AssigneeID), t.CreatedBy, nullableStringPtr(t.DueDate), t.CreatedAt, t.UpdatedAt, nullableStringPtr(t.CompletedAt))
	if isConstraint(err) {
		return fmt.Errorf("task %s: %w", t.ID, ErrConflict)
	}
	return err
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE tasks SET parent_task_id=?, title=?, description=?, status=?, priority=?, position=?, assignee_id=?, due_date=?, updated_at=?, completed_at=? WHERE id=?`,
		nullableStringPtr(t.ParentTaskID), t.Title, nullable(t.Description), t.Status, t.Priority, t.Position,
		nullableStringPtr(t.AssigneeID), nullableStringPtr(t.DueDate), t.UpdatedAt, nullableStringPtr(t.CompletedAt), t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetTask(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	t, err := scanTask(r.q(tx).QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type TaskFilters struct {
	ProjectID  string
	Status     string
	Priority   string
	AssigneeID string
	ParentID   string
	RootsOnly  bool
}

// ListTasks returns tasks grouped by parent and ordered by position within
// each group. Text search is applied by the caller.
func (r Repo) ListTasks(ctx context.Context, tx *sql.Tx, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Priority != "" {
		clauses = append(clauses, "priority=?")
		args = append(args, f.Priority)
	}
	if f.AssigneeID != "" {
		clauses = append(clauses, "assignee_id=?")
		args = append(args, f.AssigneeID)
	}
	if f.RootsOnly {
		clauses = append(clauses, "parent_task_id IS NULL")
	} else if f.ParentID != "" {
		clauses = append(clauses, "parent_task_id=?")
		args = append(args, f.ParentID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + ` ORDER BY COALESCE(parent_task_id,''), position, created_at, id`
	rows, err := r.q(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanTasks(rows)
}

// ListGroup returns one sibling group ordered by position. A nil parent
// selects the project's root tasks.
func (r Repo) ListGroup(ctx context.Context, tx *sql.Tx, projectID string, parentID *string) ([]domain.Task, error) {
	var rows *sql.Rows
	var err error
	if parentID == nil {
		rows, err = r.q(tx).QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE project_id=? AND parent_task_id IS NULL ORDER BY position, created_at, id`, projectID)
	} else {
		rows, err = r.q(tx).QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE project_id=? AND parent_task_id=? ORDER BY position, created_at, id`, projectID, *parentID)
	}
	if err != nil {
		return nil, err
	}
	return scanTasks(rows)
}

func (r Repo) CountGroup(ctx context.Context, tx *sql.Tx, projectID string, parentID *string) (int, error) {
	var n int
	var err error
	if parentID == nil {
		err = r.q(tx).QueryRowContext(ctx, `SELECT count(*) FROM tasks WHERE project_id=? AND parent_task_id IS NULL`, projectID).Scan(&n)
	} else {
		err = r.q(tx).QueryRowContext(ctx, `SELECT count(*) FROM tasks WHERE project_id=? AND parent_task_id=?`, projectID, *parentID).Scan(&n)
	}
	return n, err
}

func (r Repo) SetPosition(ctx context.Context, tx *sql.Tx, id string, position int) error {
	_, err := r.q(tx).ExecContext(ctx, `UPDATE tasks SET position=? WHERE id=?`, position, id)
	return err
}

// SetParent re-parents a task without touching its other fields.
func (r Repo) SetParent(ctx context.Context, tx *sql.Tx, id string, parentID *string, position int, updatedAt string) error {
	_, err := r.q(tx).ExecContext(ctx, `UPDATE tasks SET parent_task_id=?, position=?, updated_at=? WHERE id=?`,
		nullableStringPtr(parentID), position, updatedAt, id)
	return err
}

// ListChildren returns direct subtasks ordered by position.
func (r Repo) ListChildren(ctx context.Context, tx *sql.Tx, taskID string) ([]domain.Task, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE parent_task_id=? ORDER BY position, created_at, id`, taskID)
	if err != nil {
		return nil, err
	}
	return scanTasks(rows)
}

// ParentLinks maps every task of the project to its parent id ("" for roots).
func (r Repo) ParentLinks(ctx context.Context, tx *sql.Tx, projectID string) (map[string]string, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT id, COALESCE(parent_task_id,'') FROM tasks WHERE project_id=?`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	links := map[string]string{}
	for rows.Next() {
		var id, parent string
		if err := rows.Scan(&id, &parent); err != nil {
			return nil, err
		}
		links[id] = parent
	}
	return links, rows.Err()
}

// GetTaskSummaries loads compact task records keyed by id.
func (r Repo) GetTaskSummaries(ctx context.Context, tx *sql.Tx, ids []string) (map[string]domain.TaskSummary, error) {
	res := make(map[string]domain.TaskSummary, len(ids))
	if len(ids) == 0 {
		return res, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := r.q(tx).QueryContext(ctx, `SELECT id,title,status,position FROM tasks WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var s domain.TaskSummary
		if err := rows.Scan(&s.ID, &s.Title, &s.Status, &s.Position); err != nil {
			return nil, err
		}
		res[s.ID] = s
	}
	return res, rows.Err()
}
