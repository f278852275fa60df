package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"medblock/internal/platform/kafka/producer"
	dErrors "medblock/pkg/domain-errors"
)

// Publisher is the producer capability the Kafka client needs.
type Publisher interface {
	Publish(ctx context.Context, msg producer.Message) error
}

// KafkaClient appends transactions to a Kafka topic that an external ledger
// gateway consumes. With event echo enabled it also publishes the event the
// ledger would emit, which lets a deployment without a ledger drive the
// re-wrap dispatcher.
type KafkaClient struct {
	publisher   Publisher
	txTopic     string
	eventsTopic string
	echo        bool
	timeout     time.Duration
	now         func() time.Time
}

type KafkaOption func(*KafkaClient)

// WithEventEcho publishes derived events to topic after each transaction.
func WithEventEcho(topic string) KafkaOption {
	return func(c *KafkaClient) {
		c.echo = topic != ""
		c.eventsTopic = topic
	}
}

func WithProduceTimeout(d time.Duration) KafkaOption {
	return func(c *KafkaClient) {
		c.timeout = d
	}
}

func WithClock(now func() time.Time) KafkaOption {
	return func(c *KafkaClient) {
		c.now = now
	}
}

func NewKafkaClient(publisher Publisher, txTopic string, opts ...KafkaOption) *KafkaClient {
	c := &KafkaClient{
		publisher: publisher,
		txTopic:   txTopic,
		timeout:   5 * time.Second,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *KafkaClient) Name() string { return "kafka" }

type transactionEnvelope struct {
	Name        string   `json:"name"`
	Args        []string `json:"args"`
	RefID       string   `json:"refId,omitempty"`
	SubmittedAt string   `json:"submittedAt"`
}

func (c *KafkaClient) Submit(ctx context.Context, txn Transaction) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	now := c.now()
	payload, err := json.Marshal(transactionEnvelope{
		Name:        txn.Name,
		Args:        txn.Args,
		RefID:       txn.RefID,
		SubmittedAt: now.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("encode ledger transaction: %w", err)
	}
	err = c.publisher.Publish(ctx, producer.Message{
		Topic:   c.txTopic,
		Key:     []byte(txn.RecordID()),
		Value:   payload,
		Headers: map[string]string{"transaction": txn.Name},
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeDependencyUnavailable, "ledger submit failed")
	}
	if !c.echo {
		return nil
	}

	ev, err := EventFor(txn, now)
	if err != nil {
		return err
	}
	evPayload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode ledger event: %w", err)
	}
	err = c.publisher.Publish(ctx, producer.Message{
		Topic:   c.eventsTopic,
		Key:     []byte(ev.RecordID),
		Value:   evPayload,
		Headers: map[string]string{EventHeader: ev.Name},
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeDependencyUnavailable, "ledger event publish failed")
	}
	return nil
}
