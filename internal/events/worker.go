package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
)

// Sink receives serialized events from the worker.
type Sink interface {
	Publish(ctx context.Context, key, value []byte) error
}

// Worker drains the publisher inbox into a sink. It keeps event delivery off
// the engine's critical path; delivery errors are logged, not propagated.
type Worker struct {
	inbox  <-chan Event
	sink   Sink
	logger *slog.Logger
}

func NewWorker(inbox <-chan Event, sink Sink, logger *slog.Logger) *Worker {
	return &Worker{inbox: inbox, sink: sink, logger: logger}
}

// Run consumes until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.deliver(ctx, event); err != nil {
				w.logger.ErrorContext(ctx, "event delivery failed",
					"type", event.Type,
					"event_id", event.ID,
					"error", err,
				)
			}
		}
	}
}

func (w *Worker) deliver(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	// Key by transaction so per-transaction ordering survives partitioning;
	// configuration events share one key.
	key := "quorum"
	if event.TransactionID != nil {
		key = strconv.FormatInt(*event.TransactionID, 10)
	}
	return w.sink.Publish(ctx, []byte(key), value)
}

// LogSink writes events to the structured log. The fallback when Kafka is not
// configured.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Publish(ctx context.Context, key, value []byte) error {
	s.Logger.InfoContext(ctx, "event", "key", string(key), "payload", string(value))
	return nil
}
