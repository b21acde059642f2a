package auth

import (
	"context"
	"database/sql"
	"fmt"

	"tasktree/internal/domain"
)

// ForbiddenError indicates the actor lacks the named permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

// Permissions reported by ForbiddenError.
const (
	PermProjectRead  = "project.read"
	PermTaskCreate   = "task.create"
	PermTaskEdit     = "task.edit"
	PermComment      = "comment.create"
	PermMemberManage = "member.manage"
)

// RoleLookup returns the actor's project role, "" for non-members.
type RoleLookup interface {
	GetRole(ctx context.Context, tx *sql.Tx, projectID, userID string) (string, error)
}

// Guard answers membership-based authorization questions.
type Guard struct {
	Roles RoleLookup
}

// CanEdit reports whether actorID may modify task in projectID. Owners and
// admins may edit any task; other members only tasks they are assigned to
// or created. Non-members may edit nothing.
func (g Guard) CanEdit(ctx context.Context, tx *sql.Tx, projectID, actorID string, task *domain.Task) (bool, error) {
	role, err := g.Roles.GetRole(ctx, tx, projectID, actorID)
	if err != nil {
		return false, err
	}
	switch role {
	case domain.RoleOwner, domain.RoleAdmin:
		return true, nil
	case "":
		return false, nil
	}
	if task == nil {
		return false, nil
	}
	if task.AssigneeID != nil && *task.AssigneeID == actorID {
		return true, nil
	}
	return task.CreatedBy == actorID, nil
}

func (g Guard) RequireEditor(ctx context.Context, tx *sql.Tx, projectID, actorID string, task *domain.Task) error {
	ok, err := g.CanEdit(ctx, tx, projectID, actorID, task)
	if err != nil {
		return err
	}
	if !ok {
		return ForbiddenError{Permission: PermTaskEdit}
	}
	return nil
}

// RequireMember passes for any role on the project.
func (g Guard) RequireMember(ctx context.Context, tx *sql.Tx, projectID, actorID, perm string) (string, error) {
	role, err := g.Roles.GetRole(ctx, tx, projectID, actorID)
	if err != nil {
		return "", err
	}
	if role == "" {
		return "", ForbiddenError{Permission: perm}
	}
	return role, nil
}

// RequireManager passes for owners and admins.
func (g Guard) RequireManager(ctx context.Context, tx *sql.Tx, projectID, actorID string) (string, error) {
	role, err := g.Roles.GetRole(ctx, tx, projectID, actorID)
	if err != nil {
		return "", err
	}
	if role != domain.RoleOwner && role != domain.RoleAdmin {
		return "", ForbiddenError{Permission: PermMemberManage}
	}
	return role, nil
}
