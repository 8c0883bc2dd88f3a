package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/ahrav/go-verity/internal/ports"
)

// producer is the part of *kgo.Client the Kafka dispatcher uses.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// Kafka publishes payloads to a topic keyed by validation id, so every
// hand-off for one request lands on the same partition.
type Kafka struct {
	topic    string
	producer producer
	logger   *slog.Logger
}

// NewKafka connects a producer to brokers.
func NewKafka(brokers []string, topic string, logger *slog.Logger) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return newKafka(client, topic, logger)
}

func newKafka(p producer, topic string, logger *slog.Logger) (*Kafka, error) {
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Kafka{topic: topic, producer: p, logger: logger}, nil
}

// Dispatch implements ports.WorkflowDispatcher. It returns once the
// brokers acknowledge the record.
func (k *Kafka) Dispatch(ctx context.Context, payload ports.DelegationPayload) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return &ports.DispatchError{Target: k.topic, Err: fmt.Errorf("encode payload: %w", err)}
	}

	record := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(payload.ValidationID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "operation", Value: []byte(payload.Operation)},
			{Key: "content-type", Value: []byte("application/json")},
		},
	}

	if err := k.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return &ports.DispatchError{Target: k.topic, Err: err}
	}

	k.logger.InfoContext(ctx, "delegation dispatched",
		"validation_id", payload.ValidationID,
		"topic", k.topic,
		"partition", record.Partition,
		"offset", record.Offset)
	return nil
}

// Close flushes and closes the producer.
func (k *Kafka) Close() {
	k.producer.Close()
}

var _ ports.WorkflowDispatcher = (*Kafka)(nil)
