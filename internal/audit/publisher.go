package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the append-only persistence behind the publisher.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListByAccount(ctx context.Context, masterAccountID string) ([]Entry, error)
}

// Publisher captures structured audit entries. Writes go through the store so
// they share the caller's transaction; an optional mirror channel feeds the
// Kafka worker after the fact, best effort.
type Publisher struct {
	store  Store
	mirror chan<- Entry
}

type Option func(*Publisher)

// WithMirror attaches a channel consumed by a Worker that republishes entries
// to an external sink. Sends never block: if the channel is full the entry is
// dropped from the mirror, never from the store.
func WithMirror(ch chan<- Entry) Option {
	return func(p *Publisher) { p.mirror = ch }
}

func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit persists one entry. Called inside the mutating operation's transaction
// so a failed operation leaves no audit trace.
func (p *Publisher) Emit(ctx context.Context, entry Entry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if err := p.store.Append(ctx, entry); err != nil {
		return err
	}
	if p.mirror != nil {
		select {
		case p.mirror <- entry:
		default:
		}
	}
	return nil
}

// List returns the audit trail for one master account, oldest first.
func (p *Publisher) List(ctx context.Context, masterAccountID string) ([]Entry, error) {
	return p.store.ListByAccount(ctx, masterAccountID)
}
