package consumer

import (
	"context"
	"log/slog"
)

// Router dispatches messages by the value of one header, such as the ledger
// event name.
type Router struct {
	header   string
	handlers map[string]Handler
	fallback Handler
	logger   *slog.Logger
}

// NewRouter creates a router keyed on header with an optional fallback.
func NewRouter(header string, logger *slog.Logger, fallback Handler) *Router {
	return &Router{
		header:   header,
		handlers: make(map[string]Handler),
		fallback: fallback,
		logger:   logger,
	}
}

func (r *Router) Register(value string, handler Handler) {
	r.handlers[value] = handler
}

func (r *Router) Handle(ctx context.Context, msg *Message) error {
	value := msg.Headers[r.header]
	handler, ok := r.handlers[value]
	if !ok {
		if r.fallback != nil {
			return r.fallback.Handle(ctx, msg)
		}
		r.logger.DebugContext(ctx, "no handler for message, skipping",
			"header", r.header,
			"value", value,
			"key", string(msg.Key),
		)
		// skipped messages are committed so they are not redelivered
		return nil
	}
	return handler.Handle(ctx, msg)
}
