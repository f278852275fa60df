package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Message is a consumed record.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// Handler processes one message. A returned error is retried in place up to
// the consumer's attempt limit.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

type HandlerFunc func(ctx context.Context, msg *Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg *Message) error {
	return f(ctx, msg)
}

type Config struct {
	Brokers []string
	Group   string
	Topics  []string
}

// Consumer is an at-least-once group consumer. Offsets are committed only
// after the handler has seen each record of a poll.
type Consumer struct {
	client      *kgo.Client
	handler     Handler
	logger      *slog.Logger
	maxAttempts int
	backoff     time.Duration
}

type Option func(*Consumer)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Consumer) {
		c.logger = logger
	}
}

// WithRetry sets how many times a failing message is attempted before it is
// logged and skipped, and the pause between attempts.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(c *Consumer) {
		if attempts > 0 {
			c.maxAttempts = attempts
		}
		c.backoff = backoff
	}
}

func New(cfg Config, handler Handler, opts ...Option) (*Consumer, error) {
	if len(cfg.Brokers) == 0 || cfg.Group == "" || len(cfg.Topics) == 0 {
		return nil, errors.New("kafka consumer requires brokers, group and topics")
	}
	c := &Consumer{
		handler:     handler,
		logger:      slog.Default(),
		maxAttempts: 5,
		backoff:     500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.Group),
		kgo.ConsumeTopics(cfg.Topics...),
		kgo.DisableAutoCommit(),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	c.client = client
	return c, nil
}

// Run polls until ctx is cancelled or the client is closed.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.ErrorContext(ctx, "kafka fetch error",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})

		var done []*kgo.Record
		fetches.EachRecord(func(rec *kgo.Record) {
			if ctx.Err() != nil {
				return
			}
			c.process(ctx, rec)
			done = append(done, rec)
		})
		if len(done) == 0 {
			continue
		}
		if err := c.client.CommitRecords(ctx, done...); err != nil && ctx.Err() == nil {
			c.logger.ErrorContext(ctx, "kafka commit failed", "error", err, "records", len(done))
		}
	}
}

func (c *Consumer) process(ctx context.Context, rec *kgo.Record) {
	msg := toMessage(rec)
	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err = c.handler.Handle(ctx, msg); err == nil {
			return
		}
		c.logger.WarnContext(ctx, "kafka handler failed",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"attempt", attempt,
			"error", err,
		)
		if attempt < c.maxAttempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.backoff * time.Duration(attempt)):
			}
		}
	}
	c.logger.ErrorContext(ctx, "kafka message skipped after retries",
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
		"error", err,
	)
}

func (c *Consumer) Close() {
	c.client.Close()
}

func toMessage(rec *kgo.Record) *Message {
	headers := make(map[string]string, len(rec.Headers))
	for _, h := range rec.Headers {
		headers[h.Key] = string(h.Value)
	}
	return &Message{
		Topic:     rec.Topic,
		Partition: rec.Partition,
		Offset:    rec.Offset,
		Key:       rec.Key,
		Value:     rec.Value,
		Headers:   headers,
		Timestamp: rec.Timestamp,
	}
}
