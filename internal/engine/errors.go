package engine

import "errors"

// Failure kinds returned by engine operations. Missing records surface as
// repo.ErrNotFound and authorization failures as auth.ForbiddenError.
var (
	ErrInvalidParent      = errors.New("invalid parent")
	ErrCircularDependency = errors.New("circular dependency")
	ErrSubtasksPresent    = errors.New("task has subtasks")
	ErrCrossProject       = errors.New("tasks belong to different projects")
	ErrInvalidInput       = errors.New("invalid input")
	ErrLastOwner          = errors.New("project must keep at least one owner")
)
