package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Publisher accepts notifications from the engine. Emit must never block an
// engine operation and must never fail it: notifications are side effects,
// not part of the state machine.
type Publisher interface {
	Emit(ctx context.Context, event Event)
}

// ChannelPublisher buffers events on a channel drained by a Worker. When the
// buffer is full the event is dropped and counted in the log; the stream is
// observability, the ledger remains the durable record.
type ChannelPublisher struct {
	inbox  chan Event
	logger *slog.Logger
}

func NewChannelPublisher(buffer int, logger *slog.Logger) *ChannelPublisher {
	return &ChannelPublisher{
		inbox:  make(chan Event, buffer),
		logger: logger,
	}
}

func (p *ChannelPublisher) Emit(ctx context.Context, event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case p.inbox <- event:
	default:
		p.logger.WarnContext(ctx, "event buffer full, dropping notification",
			"type", event.Type,
			"event_id", event.ID,
		)
	}
}

// Inbox exposes the channel for the worker.
func (p *ChannelPublisher) Inbox() <-chan Event {
	return p.inbox
}

// NopPublisher discards events. Used in unit tests that do not assert on
// notifications.
type NopPublisher struct{}

func (NopPublisher) Emit(context.Context, Event) {}
