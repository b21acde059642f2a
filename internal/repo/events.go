package repo

import (
	"context"
	"database/sql"

	"tasktree/internal/domain"
)

const eventColumns = `id,ts,type,COALESCE(project_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json`

func scanEvents(rows *sql.Rows) ([]domain.Event, error) {
	defer rows.Close()
	res := []domain.Event{}
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.ProjectID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// EventsAfter returns up to limit events with id > afterID in id order.
func (r Repo) EventsAfter(ctx context.Context, afterID int64, limit int) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id>? ORDER BY id LIMIT ?`, afterID, limit)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// ProjectEvents returns the newest events of a project, newest first.
func (r Repo) ProjectEvents(ctx context.Context, projectID string, limit int) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+eventColumns+` FROM events WHERE project_id=? ORDER BY id DESC LIMIT ?`, projectID, limit)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&id)
	return id, err
}
