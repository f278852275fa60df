package ledger

import (
	"context"
	"time"
)

// EventHandler consumes ledger events.
type EventHandler func(ctx context.Context, ev Event) error

// LocalClient stands in for the ledger in single-process deployments: each
// submitted transaction is turned into its event and handed straight to the
// subscribed handler.
type LocalClient struct {
	handler EventHandler
	now     func() time.Time
}

func NewLocalClient(handler EventHandler) *LocalClient {
	return &LocalClient{handler: handler, now: time.Now}
}

func (c *LocalClient) Name() string { return "local" }

func (c *LocalClient) Submit(ctx context.Context, txn Transaction) error {
	ev, err := EventFor(txn, c.now())
	if err != nil {
		return err
	}
	if c.handler == nil {
		return nil
	}
	return c.handler(ctx, ev)
}
