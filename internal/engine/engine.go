package engine

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"tasktree/internal/domain"
	"tasktree/internal/engine/auth"
	"tasktree/internal/events"
	"tasktree/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Guard  auth.Guard
	Now    func() time.Time
}

func New(db *sql.DB) Engine {
	r := repo.Repo{DB: db}
	return Engine{
		DB:    db,
		Repo:  r,
		Guard: auth.Guard{Roles: r},
		Now:   time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// emit appends an event on tx using the engine clock.
func (e Engine) emit(ctx context.Context, tx *sql.Tx, evtType, projectID, entityKind, entityID, actorID string, payload events.EventPayload) error {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w.Append(ctx, tx, evtType, projectID, entityKind, entityID, actorID, payload)
}

func (e Engine) getTask(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, tx, id)
	if err != nil {
		return t, fmt.Errorf("task %s: %w", id, err)
	}
	return t, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// ListEvents returns the newest events recorded for a project.
func (e Engine) ListEvents(ctx context.Context, projectID, actorID string, limit int) ([]domain.Event, error) {
	if _, err := e.Guard.RequireMember(ctx, nil, projectID, actorID, auth.PermProjectRead); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	return e.Repo.ProjectEvents(ctx, projectID, limit)
}

// CreateAPIKey mints a key for actorID and returns it with its plaintext
// secret. Only the digest is stored.
func (e Engine) CreateAPIKey(ctx context.Context, actorID, name string) (domain.APIKey, string, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return domain.APIKey{}, "", invalid("actor required")
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return domain.APIKey{}, "", err
	}
	secret := "tt_" + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(secret),
		CreatedAt: e.stamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.APIKey{}, "", err
	}
	defer tx.Rollback()
	if err := e.Repo.EnsureActor(ctx, tx, actorID, "", key.CreatedAt); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := e.emit(ctx, tx, events.APIKeyCreated, "", "api_key", key.ID, actorID, events.EventPayload{"name": name}); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, secret, nil
}
