package worker

import (
	"context"
	"log/slog"

	audit "screener/pkg/platform/audit"
)

// Worker consumes audit events from a channel and persists them until the
// channel is closed.
type Worker struct {
	store  audit.Store
	inbox  <-chan audit.Event
	logger *slog.Logger
}

func NewWorker(store audit.Store, inbox <-chan audit.Event, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{store: store, inbox: inbox, logger: logger}
}

// Run drains the inbox. A failed append is logged and the worker moves on;
// Run returns when the inbox is closed.
func (w *Worker) Run(ctx context.Context) {
	for event := range w.inbox {
		if err := w.store.Append(ctx, event); err != nil {
			w.logger.ErrorContext(ctx, "async audit append failed",
				"action", event.Action,
				"event_id", event.ID,
				"error", err,
			)
		}
	}
}
