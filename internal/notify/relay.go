// Package notify relays committed events to a message bus. Delivery is
// fire-and-forget: a failed publish is logged and retried on the next tick,
// and nothing in the request path waits on it.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/prometheus/client_golang/prometheus"

	"tasktree/internal/domain"
)

const (
	defaultInterval = 2 * time.Second
	defaultBatch    = 100
)

// Publisher sends one message to a subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// EventSource reads the event log in id order.
type EventSource interface {
	EventsAfter(ctx context.Context, afterID int64, limit int) ([]domain.Event, error)
	LatestEventID(ctx context.Context) (int64, error)
}

// Message is the JSON body published for each event.
type Message struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	ProjectID  string          `json:"project_id,omitempty"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
}

// Relay polls the event log and publishes new events. Events recorded
// before Start are not replayed.
type Relay struct {
	Source        EventSource
	Publisher     Publisher
	SubjectPrefix string
	Interval      time.Duration
	Batch         int
	Types         []string
	Logger        *slog.Logger
	Published     prometheus.Counter

	mu      sync.Mutex
	cursor  int64
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Start positions the cursor at the newest event and begins polling.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.New("relay already running")
	}
	cur, err := r.Source.LatestEventID(ctx)
	if err != nil {
		return err
	}
	r.cursor = cur
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running = true
	go r.run(runCtx, r.done)
	return nil
}

// Stop halts polling and waits for the loop to exit.
func (r *Relay) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	cancel, done := r.cancel, r.done
	r.mu.Unlock()
	cancel()
	<-done
}

func (r *Relay) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	interval := r.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
			r.logger().Warn("relay flush failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Flush publishes every pending event once and reports how many were
// sent. It stops at the first failed publish so ordering is kept.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	batch := r.Batch
	if batch <= 0 {
		batch = defaultBatch
	}
	sent := 0
	for {
		cursor := r.position()
		evts, err := r.Source.EventsAfter(ctx, cursor, batch)
		if err != nil {
			return sent, err
		}
		for _, evt := range evts {
			if r.wants(evt.Type) {
				data, err := json.Marshal(toMessage(evt))
				if err != nil {
					return sent, err
				}
				if err := r.Publisher.Publish(ctx, r.Subject(evt), data); err != nil {
					return sent, err
				}
				sent++
				if r.Published != nil {
					r.Published.Inc()
				}
			}
			r.advance(evt.ID)
		}
		if len(evts) < batch {
			return sent, nil
		}
	}
}

// Subject returns <prefix>.<project>.<event type>. Characters that NATS
// treats as separators or wildcards are replaced in the project token.
func (r *Relay) Subject(evt domain.Event) string {
	project := subjectToken(evt.ProjectID)
	prefix := strings.TrimSuffix(r.SubjectPrefix, ".")
	if prefix == "" {
		return project + "." + evt.Type
	}
	return prefix + "." + project + "." + evt.Type
}

func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(c rune) rune {
		switch {
		case c == '.', c == '*', c == '>', unicode.IsSpace(c), unicode.IsControl(c):
			return '_'
		}
		return c
	}, s)
}

func (r *Relay) wants(evtType string) bool {
	if len(r.Types) == 0 {
		return true
	}
	for _, t := range r.Types {
		if t == evtType || (strings.HasSuffix(t, ".*") && strings.HasPrefix(evtType, strings.TrimSuffix(t, "*"))) {
			return true
		}
	}
	return false
}

func (r *Relay) position() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor
}

func (r *Relay) advance(id int64) {
	r.mu.Lock()
	if id > r.cursor {
		r.cursor = id
	}
	r.mu.Unlock()
}

func (r *Relay) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func toMessage(evt domain.Event) Message {
	payload := json.RawMessage("{}")
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage(evt.Payload)
	}
	return Message{
		ID:         evt.ID,
		Type:       evt.Type,
		ProjectID:  evt.ProjectID,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		TS:         evt.TS,
		Payload:    payload,
	}
}
