package engine

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"tasktree/internal/domain"
	"tasktree/internal/engine/auth"
	"tasktree/internal/events"
	"tasktree/internal/repo"
)

// projectIDPattern keeps ids usable as a single NATS subject token.
var projectIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

type ProjectCreateOptions struct {
	ID          string
	Name        string
	Description string
	ActorID     string
	ActorName   string
}

// CreateProject creates a project owned by the calling actor.
func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	opts.Name = strings.TrimSpace(opts.Name)
	if opts.Name == "" {
		return domain.Project{}, invalid("name is required")
	}
	if strings.TrimSpace(opts.ActorID) == "" {
		return domain.Project{}, invalid("actor required")
	}
	id := strings.TrimSpace(opts.ID)
	if id == "" {
		id = uuid.NewString()
	}
	if !projectIDPattern.MatchString(id) {
		return domain.Project{}, invalid("project id %q must be letters, digits, '-' or '_'", id)
	}
	now := e.stamp()
	p := domain.Project{ID: id, Name: opts.Name, Description: opts.Description, CreatedAt: now}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.EnsureActor(ctx, tx, opts.ActorID, opts.ActorName, now); err != nil {
		return domain.Project{}, err
	}
	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	if err := e.Repo.UpsertMember(ctx, tx, domain.Member{ProjectID: p.ID, UserID: opts.ActorID, Role: domain.RoleOwner, CreatedAt: now}); err != nil {
		return domain.Project{}, err
	}
	if err := e.emit(ctx, tx, events.ProjectCreated, p.ID, "project", p.ID, opts.ActorID, events.EventPayload{"name": p.Name}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (e Engine) GetProject(ctx context.Context, id, actorID string) (domain.Project, error) {
	p, err := e.Repo.GetProject(ctx, nil, id)
	if err != nil {
		return p, fmt.Errorf("project %s: %w", id, err)
	}
	if _, err := e.Guard.RequireMember(ctx, nil, id, actorID, auth.PermProjectRead); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (e Engine) ListProjects(ctx context.Context, actorID string) ([]domain.Project, error) {
	projects, err := e.Repo.ListProjectsForActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if projects == nil {
		projects = []domain.Project{}
	}
	return projects, nil
}

type MemberOptions struct {
	ProjectID   string
	UserID      string
	DisplayName string
	Role        string
	ActorID     string
}

// AddMember adds a member or changes an existing member's role. Only owners
// may grant or revoke ownership.
func (e Engine) AddMember(ctx context.Context, opts MemberOptions) (domain.Member, error) {
	if opts.Role == "" {
		opts.Role = domain.RoleMember
	}
	if !domain.ValidRole(opts.Role) {
		return domain.Member{}, invalid("unknown role %q", opts.Role)
	}
	opts.UserID = strings.TrimSpace(opts.UserID)
	if opts.UserID == "" {
		return domain.Member{}, invalid("user is required")
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Member{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetProject(ctx, tx, opts.ProjectID); err != nil {
		return domain.Member{}, fmt.Errorf("project %s: %w", opts.ProjectID, err)
	}
	actorRole, err := e.Guard.RequireManager(ctx, tx, opts.ProjectID, opts.ActorID)
	if err != nil {
		return domain.Member{}, err
	}
	current, err := e.Repo.GetRole(ctx, tx, opts.ProjectID, opts.UserID)
	if err != nil {
		return domain.Member{}, err
	}
	if (opts.Role == domain.RoleOwner || current == domain.RoleOwner) && actorRole != domain.RoleOwner {
		return domain.Member{}, auth.ForbiddenError{Permission: auth.PermMemberManage}
	}
	if current == domain.RoleOwner && opts.Role != domain.RoleOwner {
		if err := e.ensureAnotherOwner(ctx, tx, opts.ProjectID); err != nil {
			return domain.Member{}, err
		}
	}
	now := e.stamp()
	if err := e.Repo.EnsureActor(ctx, tx, opts.UserID, opts.DisplayName, now); err != nil {
		return domain.Member{}, err
	}
	m := domain.Member{ProjectID: opts.ProjectID, UserID: opts.UserID, Role: opts.Role, CreatedAt: now}
	if err := e.Repo.UpsertMember(ctx, tx, m); err != nil {
		return domain.Member{}, err
	}
	if err := e.emit(ctx, tx, events.MemberAdded, opts.ProjectID, "member", opts.UserID, opts.ActorID, events.EventPayload{
		"role": opts.Role, "previous_role": current,
	}); err != nil {
		return domain.Member{}, err
	}
	members, err := e.Repo.ListMembers(ctx, tx, opts.ProjectID)
	if err != nil {
		return domain.Member{}, err
	}
	for _, mm := range members {
		if mm.UserID == opts.UserID {
			m = mm
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Member{}, err
	}
	return m, nil
}

func (e Engine) RemoveMember(ctx context.Context, projectID, userID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	actorRole, err := e.Guard.RequireManager(ctx, tx, projectID, actorID)
	if err != nil {
		return err
	}
	role, err := e.Repo.GetRole(ctx, tx, projectID, userID)
	if err != nil {
		return err
	}
	if role == "" {
		return fmt.Errorf("member %s: %w", userID, repo.ErrNotFound)
	}
	if role == domain.RoleOwner {
		if actorRole != domain.RoleOwner {
			return auth.ForbiddenError{Permission: auth.PermMemberManage}
		}
		if err := e.ensureAnotherOwner(ctx, tx, projectID); err != nil {
			return err
		}
	}
	if err := e.Repo.DeleteMember(ctx, tx, projectID, userID); err != nil {
		return err
	}
	if err := e.emit(ctx, tx, events.MemberRemoved, projectID, "member", userID, actorID, events.EventPayload{"role": role}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) ListMembers(ctx context.Context, projectID, actorID string) ([]domain.Member, error) {
	if _, err := e.Guard.RequireMember(ctx, nil, projectID, actorID, auth.PermProjectRead); err != nil {
		return nil, err
	}
	members, err := e.Repo.ListMembers(ctx, nil, projectID)
	if err != nil {
		return nil, err
	}
	if members == nil {
		members = []domain.Member{}
	}
	return members, nil
}

// ensureAnotherOwner fails when the project has a single owner left.
func (e Engine) ensureAnotherOwner(ctx context.Context, tx *sql.Tx, projectID string) error {
	n, err := e.Repo.CountOwners(ctx, tx, projectID)
	if err != nil {
		return err
	}
	if n <= 1 {
		return ErrLastOwner
	}
	return nil
}
