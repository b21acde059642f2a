package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"tasktree/internal/domain"
	"tasktree/internal/engine/auth"
	"tasktree/internal/events"
	"tasktree/internal/graph"
	"tasktree/internal/repo"
)

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	ID          string
	ProjectID   string
	ParentID    string
	Title       string
	Description string
	Status      string
	Priority    string
	AssigneeID  string
	DueDate     string
	ActorID     string
}

// CreateTask appends a new task to the end of its sibling group.
func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.TaskDetail, error) {
	opts.Title = strings.TrimSpace(opts.Title)
	if opts.Title == "" {
		return domain.TaskDetail{}, invalid("title is required")
	}
	if opts.ProjectID == "" {
		return domain.TaskDetail{}, invalid("project is required")
	}
	if opts.Status == "" {
		opts.Status = domain.StatusTodo
	}
	if !domain.ValidStatus(opts.Status) {
		return domain.TaskDetail{}, invalid("unknown status %q", opts.Status)
	}
	if opts.Priority == "" {
		opts.Priority = domain.PriorityMedium
	}
	if !domain.ValidPriority(opts.Priority) {
		return domain.TaskDetail{}, invalid("unknown priority %q", opts.Priority)
	}
	if err := validateDueDate(opts.DueDate); err != nil {
		return domain.TaskDetail{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TaskDetail{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetProject(ctx, tx, opts.ProjectID); err != nil {
		return domain.TaskDetail{}, fmt.Errorf("project %s: %w", opts.ProjectID, err)
	}
	if _, err := e.Guard.RequireMember(ctx, tx, opts.ProjectID, opts.ActorID, auth.PermTaskCreate); err != nil {
		return domain.TaskDetail{}, err
	}
	var parentID *string
	if opts.ParentID != "" {
		parent, err := e.getTask(ctx, tx, opts.ParentID)
		if err != nil {
			return domain.TaskDetail{}, fmt.Errorf("parent %w", err)
		}
		if parent.ProjectID != opts.ProjectID {
			return domain.TaskDetail{}, fmt.Errorf("%w: parent %s belongs to project %s", ErrInvalidParent, parent.ID, parent.ProjectID)
		}
		parentID = &parent.ID
	}
	siblings, err := e.Repo.CountGroup(ctx, tx, opts.ProjectID, parentID)
	if err != nil {
		return domain.TaskDetail{}, err
	}

	now := e.stamp()
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	t := domain.Task{
		ID:           id,
		ProjectID:    opts.ProjectID,
		ParentTaskID: parentID,
		Title:        opts.Title,
		Description:  opts.Description,
		Status:       opts.Status,
		Priority:     opts.Priority,
		Position:     siblings + 1,
		AssigneeID:   optionalString(opts.AssigneeID),
		CreatedBy:    opts.ActorID,
		DueDate:      optionalString(opts.DueDate),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if t.Status == domain.StatusDone {
		t.CompletedAt = &now
	}
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.TaskDetail{}, fmt.Errorf("insert task: %w", err)
	}
	if err := e.emit(ctx, tx, events.TaskCreated, t.ProjectID, "task", t.ID, opts.ActorID, events.EventPayload{
		"title": t.Title, "parent_task_id": opts.ParentID, "position": t.Position,
	}); err != nil {
		return domain.TaskDetail{}, err
	}
	detail, err := e.detail(ctx, tx, t, false)
	if err != nil {
		return domain.TaskDetail{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TaskDetail{}, err
	}
	return detail, nil
}

// GetTask returns the task with its relations, subtasks, dependency edges
// and comments.
func (e Engine) GetTask(ctx context.Context, id, actorID string) (domain.TaskDetail, error) {
	t, err := e.getTask(ctx, nil, id)
	if err != nil {
		return domain.TaskDetail{}, err
	}
	if _, err := e.Guard.RequireMember(ctx, nil, t.ProjectID, actorID, auth.PermProjectRead); err != nil {
		return domain.TaskDetail{}, err
	}
	return e.detail(ctx, nil, t, true)
}

// detail resolves relations. full adds subtasks, edges and comments.
func (e Engine) detail(ctx context.Context, tx *sql.Tx, t domain.Task, full bool) (domain.TaskDetail, error) {
	d := domain.TaskDetail{
		Task:         t,
		Subtasks:     []domain.TaskSummary{},
		Dependencies: []domain.Dependency{},
		Dependents:   []domain.Dependency{},
		Comments:     []domain.Comment{},
	}
	creator, err := e.Repo.GetActor(ctx, tx, t.CreatedBy)
	if err != nil {
		return d, err
	}
	d.Creator = &creator
	if t.AssigneeID != nil {
		assignee, err := e.Repo.GetActor(ctx, tx, *t.AssigneeID)
		if err != nil {
			return d, err
		}
		d.Assignee = &assignee
	}
	if t.ParentTaskID != nil {
		parents, err := e.Repo.GetTaskSummaries(ctx, tx, []string{*t.ParentTaskID})
		if err != nil {
			return d, err
		}
		if p, ok := parents[*t.ParentTaskID]; ok {
			d.Parent = &p
		}
	}
	if !full {
		return d, nil
	}
	children, err := e.Repo.ListChildren(ctx, tx, t.ID)
	if err != nil {
		return d, err
	}
	for _, c := range children {
		d.Subtasks = append(d.Subtasks, domain.TaskSummary{ID: c.ID, Title: c.Title, Status: c.Status, Position: c.Position})
	}
	if d.Dependencies, err = e.Repo.ListDependencies(ctx, tx, t.ID); err != nil {
		return d, err
	}
	if d.Dependents, err = e.Repo.ListDependents(ctx, tx, t.ID); err != nil {
		return d, err
	}
	if d.Comments, err = e.Repo.ListComments(ctx, tx, t.ID); err != nil {
		return d, err
	}
	return d, nil
}

// TaskUpdateOptions is a partial update; nil fields are left unchanged.
type TaskUpdateOptions struct {
	ID            string
	Title         *string
	Description   *string
	Status        *string
	Priority      *string
	SetAssignee   *string
	ClearAssignee bool
	SetDueDate    *string
	ClearDueDate  bool
	SetParent     *string
	ClearParent   bool
	ActorID       string
}

// UpdateTask applies a partial update. A parent change appends the task to
// its new sibling group and renumbers the old one.
func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	if opts.Status != nil && !domain.ValidStatus(*opts.Status) {
		return domain.Task{}, invalid("unknown status %q", *opts.Status)
	}
	if opts.Priority != nil && !domain.ValidPriority(*opts.Priority) {
		return domain.Task{}, invalid("unknown priority %q", *opts.Priority)
	}
	if opts.SetDueDate != nil {
		if err := validateDueDate(*opts.SetDueDate); err != nil {
			return domain.Task{}, err
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.getTask(ctx, tx, opts.ID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := e.Guard.RequireEditor(ctx, tx, t.ProjectID, opts.ActorID, &t); err != nil {
		return domain.Task{}, err
	}
	before := t
	changed := []string{}

	if opts.Title != nil {
		title := strings.TrimSpace(*opts.Title)
		if title == "" {
			return domain.Task{}, invalid("title cannot be empty")
		}
		t.Title = title
		changed = append(changed, "title")
	}
	if opts.Description != nil {
		t.Description = *opts.Description
		changed = append(changed, "description")
	}
	if opts.Priority != nil {
		t.Priority = *opts.Priority
		changed = append(changed, "priority")
	}
	if opts.ClearAssignee {
		t.AssigneeID = nil
		changed = append(changed, "assignee_id")
	} else if opts.SetAssignee != nil {
		t.AssigneeID = optionalString(*opts.SetAssignee)
		changed = append(changed, "assignee_id")
	}
	if opts.ClearDueDate {
		t.DueDate = nil
		changed = append(changed, "due_date")
	} else if opts.SetDueDate != nil {
		t.DueDate = optionalString(*opts.SetDueDate)
		changed = append(changed, "due_date")
	}

	now := e.stamp()
	if opts.Status != nil && *opts.Status != t.Status {
		switch {
		case *opts.Status == domain.StatusDone:
			t.CompletedAt = &now
		case t.Status == domain.StatusDone:
			t.CompletedAt = nil
		}
		t.Status = *opts.Status
		changed = append(changed, "status")
	}

	newParent, parentChanged, err := e.resolveParentChange(ctx, tx, t, opts)
	if err != nil {
		return domain.Task{}, err
	}
	if parentChanged {
		siblings, err := e.Repo.CountGroup(ctx, tx, t.ProjectID, newParent)
		if err != nil {
			return domain.Task{}, err
		}
		t.ParentTaskID = newParent
		t.Position = siblings + 1
		changed = append(changed, "parent_task_id")
	}

	t.UpdatedAt = now
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, fmt.Errorf("update task: %w", err)
	}
	if parentChanged {
		if err := e.resequence(ctx, tx, t.ProjectID, before.ParentTaskID, "", 0); err != nil {
			return domain.Task{}, err
		}
	}
	if err := e.emit(ctx, tx, events.TaskUpdated, t.ProjectID, "task", t.ID, opts.ActorID, events.EventPayload{
		"fields": changed, "status_from": before.Status, "status_to": t.Status,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// resolveParentChange validates a requested re-parent. The hierarchy is
// treated as child -> parent edges; the new parent must not reach the task.
func (e Engine) resolveParentChange(ctx context.Context, tx *sql.Tx, t domain.Task, opts TaskUpdateOptions) (*string, bool, error) {
	switch {
	case opts.ClearParent:
		return nil, t.ParentTaskID != nil, nil
	case opts.SetParent == nil:
		return t.ParentTaskID, false, nil
	}
	target := strings.TrimSpace(*opts.SetParent)
	if target == "" {
		return nil, t.ParentTaskID != nil, nil
	}
	if t.ParentTaskID != nil && *t.ParentTaskID == target {
		return t.ParentTaskID, false, nil
	}
	if target == t.ID {
		return nil, false, fmt.Errorf("%w: task cannot be its own parent", ErrInvalidParent)
	}
	parent, err := e.getTask(ctx, tx, target)
	if err != nil {
		return nil, false, fmt.Errorf("parent %w", err)
	}
	if parent.ProjectID != t.ProjectID {
		return nil, false, fmt.Errorf("%w: parent %s belongs to project %s", ErrInvalidParent, parent.ID, parent.ProjectID)
	}
	links, err := e.Repo.ParentLinks(ctx, tx, t.ProjectID)
	if err != nil {
		return nil, false, err
	}
	if graph.Reachable(graph.ParentAdjacency(links), parent.ID, t.ID) {
		return nil, false, fmt.Errorf("%w: %s is a descendant of %s", ErrCircularDependency, parent.ID, t.ID)
	}
	return &parent.ID, true, nil
}

// TaskDeleteOptions selects what happens to direct subtasks: "" refuses
// when any exist, SubtasksPromote lifts them one level, SubtasksDelete
// removes the whole subtree.
type TaskDeleteOptions struct {
	ID       string
	Subtasks string
	ActorID  string
}

// DeleteTask removes a task, handling direct subtasks per opts.Subtasks.
func (e Engine) DeleteTask(ctx context.Context, opts TaskDeleteOptions) error {
	switch opts.Subtasks {
	case "", domain.SubtasksPromote, domain.SubtasksDelete:
	default:
		return invalid("unknown subtask policy %q", opts.Subtasks)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	t, err := e.getTask(ctx, tx, opts.ID)
	if err != nil {
		return err
	}
	if err := e.Guard.RequireEditor(ctx, tx, t.ProjectID, opts.ActorID, &t); err != nil {
		return err
	}
	children, err := e.Repo.ListChildren(ctx, tx, t.ID)
	if err != nil {
		return err
	}
	payload := events.EventPayload{"title": t.Title, "policy": opts.Subtasks}
	if len(children) > 0 {
		switch opts.Subtasks {
		case "":
			return fmt.Errorf("%w: task %s has %d subtasks", ErrSubtasksPresent, t.ID, len(children))
		case domain.SubtasksPromote:
			if err := e.promoteChildren(ctx, tx, t, children); err != nil {
				return err
			}
			payload["promoted"] = len(children)
		case domain.SubtasksDelete:
			removed, err := e.deleteSubtree(ctx, tx, t)
			if err != nil {
				return err
			}
			payload["removed"] = removed
		}
	}
	if err := e.Repo.DeleteTask(ctx, tx, t.ID); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if err := e.resequence(ctx, tx, t.ProjectID, t.ParentTaskID, "", 0); err != nil {
		return err
	}
	if err := e.emit(ctx, tx, events.TaskDeleted, t.ProjectID, "task", t.ID, opts.ActorID, payload); err != nil {
		return err
	}
	return tx.Commit()
}

// promoteChildren re-parents children to t's parent, after the group's
// current members and in their existing order.
func (e Engine) promoteChildren(ctx context.Context, tx *sql.Tx, t domain.Task, children []domain.Task) error {
	n, err := e.Repo.CountGroup(ctx, tx, t.ProjectID, t.ParentTaskID)
	if err != nil {
		return err
	}
	now := e.stamp()
	for i, c := range children {
		if err := e.Repo.SetParent(ctx, tx, c.ID, t.ParentTaskID, n+i+1, now); err != nil {
			return fmt.Errorf("promote %s: %w", c.ID, err)
		}
	}
	return nil
}

// deleteSubtree removes every descendant of t, deepest first.
func (e Engine) deleteSubtree(ctx context.Context, tx *sql.Tx, t domain.Task) (int, error) {
	links, err := e.Repo.ParentLinks(ctx, tx, t.ProjectID)
	if err != nil {
		return 0, err
	}
	desc := graph.Descendants(links, t.ID)
	for i := len(desc) - 1; i >= 0; i-- {
		if err := e.Repo.DeleteTask(ctx, tx, desc[i]); err != nil {
			return 0, fmt.Errorf("delete subtask %s: %w", desc[i], err)
		}
	}
	return len(desc), nil
}

// MoveTask places a task at newPosition within its sibling group.
func (e Engine) MoveTask(ctx context.Context, id string, newPosition int, actorID string) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.getTask(ctx, tx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if err := e.Guard.RequireEditor(ctx, tx, t.ProjectID, actorID, &t); err != nil {
		return domain.Task{}, err
	}
	if err := e.resequence(ctx, tx, t.ProjectID, t.ParentTaskID, t.ID, newPosition); err != nil {
		return domain.Task{}, err
	}
	moved, err := e.getTask(ctx, tx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if err := e.emit(ctx, tx, events.TaskMoved, t.ProjectID, "task", t.ID, actorID, events.EventPayload{
		"from": t.Position, "to": moved.Position,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return moved, nil
}

// TaskListFilters narrows ListTasks. Search matches title or description,
// case-insensitively.
type TaskListFilters struct {
	Status     string
	Priority   string
	AssigneeID string
	ParentID   string
	RootsOnly  bool
	Search     string
	Limit      int
}

// ListTasks returns the project's tasks ordered by sibling group and position.
func (e Engine) ListTasks(ctx context.Context, projectID, actorID string, f TaskListFilters) ([]domain.Task, error) {
	if f.Status != "" && !domain.ValidStatus(f.Status) {
		return nil, invalid("unknown status %q", f.Status)
	}
	if f.Priority != "" && !domain.ValidPriority(f.Priority) {
		return nil, invalid("unknown priority %q", f.Priority)
	}
	if _, err := e.Guard.RequireMember(ctx, nil, projectID, actorID, auth.PermProjectRead); err != nil {
		return nil, err
	}
	tasks, err := e.Repo.ListTasks(ctx, nil, repo.TaskFilters{
		ProjectID:  projectID,
		Status:     f.Status,
		Priority:   f.Priority,
		AssigneeID: f.AssigneeID,
		ParentID:   f.ParentID,
		RootsOnly:  f.RootsOnly,
	})
	if err != nil {
		return nil, err
	}
	res := []domain.Task{}
	needle := strings.TrimSpace(f.Search)
	fold := cases.Fold()
	needle = fold.String(needle)
	for _, t := range tasks {
		if needle != "" && !strings.Contains(fold.String(t.Title), needle) && !strings.Contains(fold.String(t.Description), needle) {
			continue
		}
		res = append(res, t)
		if f.Limit > 0 && len(res) == f.Limit {
			break
		}
	}
	return res, nil
}

// Tree materializes the project's hierarchy, or the subtree under rootID.
func (e Engine) Tree(ctx context.Context, projectID, rootID, actorID string) ([]*domain.TreeNode, error) {
	if _, err := e.Guard.RequireMember(ctx, nil, projectID, actorID, auth.PermProjectRead); err != nil {
		return nil, err
	}
	if rootID != "" {
		root, err := e.getTask(ctx, nil, rootID)
		if err != nil {
			return nil, err
		}
		if root.ProjectID != projectID {
			return nil, fmt.Errorf("task %s: %w", rootID, repo.ErrNotFound)
		}
	}
	tasks, err := e.Repo.ListTasks(ctx, nil, repo.TaskFilters{ProjectID: projectID})
	if err != nil {
		return nil, err
	}
	return graph.BuildTree(tasks, rootID), nil
}

func validateDueDate(v string) error {
	if v == "" {
		return nil
	}
	if _, err := time.Parse(time.DateOnly, v); err != nil {
		return invalid("due date %q must be YYYY-MM-DD", v)
	}
	return nil
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// IsNotFound reports whether err wraps repo.ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, repo.ErrNotFound)
}
