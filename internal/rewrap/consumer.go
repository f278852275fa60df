package rewrap

import (
	"context"
	"log/slog"

	"medblock/internal/ledger"
	"medblock/internal/platform/kafka/consumer"
)

// EventHandler adapts ledger event messages to a Dispatcher. Messages that
// fail to decode are logged and committed.
type EventHandler struct {
	dispatcher *Dispatcher
	logger     *slog.Logger
}

func NewEventHandler(d *Dispatcher, logger *slog.Logger) *EventHandler {
	return &EventHandler{dispatcher: d, logger: logger}
}

func (h *EventHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	ev, err := ledger.DecodeEvent(ledger.EventAccessGranted, msg.Value)
	if err != nil {
		h.logger.WarnContext(ctx, "undecodable grant event, skipping",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}
	return h.dispatcher.Handle(ctx, ev)
}

// NewRouter routes AccessGranted events on the ledger events topic to the
// dispatcher and skips the rest.
func NewRouter(d *Dispatcher, logger *slog.Logger) *consumer.Router {
	r := consumer.NewRouter(ledger.EventHeader, logger, nil)
	r.Register(ledger.EventAccessGranted, NewEventHandler(d, logger))
	return r
}
