package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"

	"tasktree/internal/domain"
	"tasktree/internal/events"
	"tasktree/internal/graph"
	"tasktree/internal/repo"
)

type DependencyOptions struct {
	TaskID      string
	DependsOnID string
	Type        string
	ActorID     string
}

// AddDependency records that TaskID depends on DependsOnID. Re-adding an
// existing pair returns the stored edge, updating its type when a
// different one is requested.
func (e Engine) AddDependency(ctx context.Context, opts DependencyOptions) (domain.Dependency, error) {
	if opts.Type == "" {
		opts.Type = domain.DepBlocks
	}
	if !domain.ValidDependencyType(opts.Type) {
		return domain.Dependency{}, invalid("unknown dependency type %q", opts.Type)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Dependency{}, err
	}
	defer tx.Rollback()

	task, err := e.getTask(ctx, tx, opts.TaskID)
	if err != nil {
		return domain.Dependency{}, err
	}
	target, err := e.getTask(ctx, tx, opts.DependsOnID)
	if err != nil {
		return domain.Dependency{}, err
	}
	if task.ProjectID != target.ProjectID {
		return domain.Dependency{}, fmt.Errorf("%w: %s and %s", ErrCrossProject, task.ID, target.ID)
	}
	if err := e.Guard.RequireEditor(ctx, tx, task.ProjectID, opts.ActorID, &task); err != nil {
		return domain.Dependency{}, err
	}
	if task.ID == target.ID {
		return domain.Dependency{}, fmt.Errorf("%w: task %s cannot depend on itself", ErrCircularDependency, task.ID)
	}

	existing, err := e.Repo.GetDependency(ctx, tx, task.ID, target.ID)
	switch {
	case err == nil:
		if existing.Type == opts.Type {
			return existing, nil
		}
		if err := e.Repo.SetDependencyType(ctx, tx, task.ID, target.ID, opts.Type); err != nil {
			return domain.Dependency{}, err
		}
		if err := e.emit(ctx, tx, events.DependencyAdded, task.ProjectID, "dependency", existing.ID, opts.ActorID, events.EventPayload{
			"task_id": task.ID, "depends_on_task_id": target.ID, "dependency_type": opts.Type, "previous_type": existing.Type,
		}); err != nil {
			return domain.Dependency{}, err
		}
		if err := tx.Commit(); err != nil {
			return domain.Dependency{}, err
		}
		existing.Type = opts.Type
		return existing, nil
	case !errors.Is(err, repo.ErrNotFound):
		return domain.Dependency{}, err
	}

	adj, err := e.Repo.DependencyAdjacency(ctx, tx, task.ProjectID)
	if err != nil {
		return domain.Dependency{}, err
	}
	if graph.Reachable(adj, target.ID, task.ID) {
		return domain.Dependency{}, fmt.Errorf("%w: %s already depends on %s", ErrCircularDependency, target.ID, task.ID)
	}

	now := e.now()
	dep := domain.Dependency{
		ID:              ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		ProjectID:       task.ProjectID,
		TaskID:          task.ID,
		DependsOnTaskID: target.ID,
		Type:            opts.Type,
		CreatedBy:       opts.ActorID,
		CreatedAt:       e.stamp(),
	}
	if err := e.Repo.InsertDependency(ctx, tx, dep); err != nil {
		return domain.Dependency{}, fmt.Errorf("insert dependency: %w", err)
	}
	if err := e.emit(ctx, tx, events.DependencyAdded, dep.ProjectID, "dependency", dep.ID, opts.ActorID, events.EventPayload{
		"task_id": dep.TaskID, "depends_on_task_id": dep.DependsOnTaskID, "dependency_type": dep.Type,
	}); err != nil {
		return domain.Dependency{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Dependency{}, err
	}
	return dep, nil
}

// RemoveDependency deletes the edge if present. A missing edge or task is
// not an error.
func (e Engine) RemoveDependency(ctx context.Context, taskID, dependsOnID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	task, err := e.Repo.GetTask(ctx, tx, taskID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := e.Guard.RequireEditor(ctx, tx, task.ProjectID, actorID, &task); err != nil {
		return err
	}
	removed, err := e.Repo.DeleteDependency(ctx, tx, taskID, dependsOnID)
	if err != nil {
		return err
	}
	if !removed {
		return nil
	}
	if err := e.emit(ctx, tx, events.DependencyRemoved, task.ProjectID, "dependency", taskID+"->"+dependsOnID, actorID, events.EventPayload{
		"task_id": taskID, "depends_on_task_id": dependsOnID,
	}); err != nil {
		return err
	}
	return tx.Commit()
}
