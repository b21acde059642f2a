package engine

import (
	"context"
	"database/sql"

	"tasktree/internal/domain"
)

// resequence renumbers one sibling group to 1..N. With movedID set, that
// task is placed at position `at` (clamped to the group bounds) and the
// rest keep their relative order. Only rows whose position changed are
// written.
func (e Engine) resequence(ctx context.Context, tx *sql.Tx, projectID string, parentID *string, movedID string, at int) error {
	group, err := e.Repo.ListGroup(ctx, tx, projectID, parentID)
	if err != nil {
		return err
	}
	for i, t := range placeTask(group, movedID, at) {
		if t.Position == i+1 {
			continue
		}
		if err := e.Repo.SetPosition(ctx, tx, t.ID, i+1); err != nil {
			return err
		}
	}
	return nil
}

// placeTask returns group with movedID pulled out and reinserted at the
// 1-based position at. Unknown ids leave the order untouched.
func placeTask(group []domain.Task, movedID string, at int) []domain.Task {
	if movedID == "" {
		return group
	}
	idx := -1
	for i, t := range group {
		if t.ID == movedID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return group
	}
	moved := group[idx]
	rest := make([]domain.Task, 0, len(group))
	rest = append(rest, group[:idx]...)
	rest = append(rest, group[idx+1:]...)
	at = clamp(at, 1, len(group))
	out := make([]domain.Task, 0, len(group))
	out = append(out, rest[:at-1]...)
	out = append(out, moved)
	out = append(out, rest[at-1:]...)
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
