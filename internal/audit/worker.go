package audit

import (
	"context"
	"log/slog"
)

// Sink receives entries mirrored off the hot path.
type Sink interface {
	Publish(ctx context.Context, entry Entry) error
}

// Worker drains the publisher's mirror channel into a sink. Sink failures are
// logged and skipped; the store already holds the entry.
type Worker struct {
	sink   Sink
	inbox  <-chan Entry
	logger *slog.Logger
}

func NewWorker(sink Sink, inbox <-chan Entry, logger *slog.Logger) *Worker {
	return &Worker{sink: sink, inbox: inbox, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry := <-w.inbox:
			if err := w.sink.Publish(ctx, entry); err != nil {
				w.logger.ErrorContext(ctx, "audit mirror publish failed",
					"action_type", entry.ActionType,
					"entry_id", entry.ID,
					"error", err,
				)
			}
		}
	}
}
