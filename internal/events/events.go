// Package events carries the fire-and-forget notifications the core emits
// after a transaction commits.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	SubOrderApproved  Type = "sub_order.approved"
	SubOrderRejected  Type = "sub_order.rejected"
	WithdrawalSettled Type = "withdrawal.settled"
)

type Event struct {
	ID         uuid.UUID       `json:"id"`
	Type       Type            `json:"type"`
	Subject    uuid.UUID       `json:"subject"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// New builds an event; data is marshalled eagerly so the payload is fixed at
// emission time.
func New(t Type, subject uuid.UUID, at time.Time, data any) Event {
	raw, err := json.Marshal(data)
	if err != nil {
		raw = json.RawMessage(`{}`)
	}
	return Event{ID: uuid.New(), Type: t, Subject: subject, OccurredAt: at.UTC(), Data: raw}
}

// Notifier never blocks the caller on delivery and never reports failure.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// Publisher is a delivery sink that may fail or block.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Notify(context.Context, Event) {}

// LogPublisher writes events to a structured logger.
type LogPublisher struct {
	Logger *slog.Logger
}

func (p LogPublisher) Publish(ctx context.Context, e Event) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "event", "event_id", e.ID, "type", e.Type, "subject", e.Subject, "data", string(e.Data))
	return nil
}

// Recorder keeps events in memory; tests use it as a Notifier.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Notify(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) Publish(ctx context.Context, e Event) error {
	r.Notify(ctx, e)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
