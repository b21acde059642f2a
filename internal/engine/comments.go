package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"tasktree/internal/domain"
	"tasktree/internal/engine/auth"
	"tasktree/internal/events"
)

// AddComment attaches a plain-text comment to a task. Any project member
// may comment.
func (e Engine) AddComment(ctx context.Context, taskID, body, actorID string) (domain.Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return domain.Comment{}, invalid("comment body is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Comment{}, err
	}
	defer tx.Rollback()

	t, err := e.getTask(ctx, tx, taskID)
	if err != nil {
		return domain.Comment{}, err
	}
	if _, err := e.Guard.RequireMember(ctx, tx, t.ProjectID, actorID, auth.PermComment); err != nil {
		return domain.Comment{}, err
	}
	c := domain.Comment{ID: uuid.NewString(), TaskID: t.ID, AuthorID: actorID, Body: body, CreatedAt: e.stamp()}
	if err := e.Repo.InsertComment(ctx, tx, c); err != nil {
		return domain.Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	if err := e.emit(ctx, tx, events.CommentAdded, t.ProjectID, "comment", c.ID, actorID, events.EventPayload{"task_id": t.ID}); err != nil {
		return domain.Comment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Comment{}, err
	}
	return c, nil
}
