package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Event types appended by the engine.
const (
	ProjectCreated    = "project.created"
	MemberAdded       = "member.added"
	MemberRemoved     = "member.removed"
	TaskCreated       = "task.created"
	TaskUpdated       = "task.updated"
	TaskMoved         = "task.moved"
	TaskDeleted       = "task.deleted"
	DependencyAdded   = "dependency.added"
	DependencyRemoved = "dependency.removed"
	CommentAdded      = "comment.added"
	APIKeyCreated     = "api_key.created"
)

type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

// Append records an event inside the caller's transaction.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, projectID, entityKind, entityID, actorID string, payload EventPayload) error {
	if tx == nil {
		return errors.New("events: transaction required")
	}
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,project_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, evtType, nullable(projectID), entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
