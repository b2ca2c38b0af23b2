package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"attribution-engine/internal/observability"
)

// KafkaSourceConfig contains configurable parameters for the Kafka source.
type KafkaSourceConfig struct {
	// Brokers is the list of Kafka broker addresses (host:port).
	Brokers []string

	// Topic carries JSON touchpoint payloads keyed by tenant.
	Topic string

	// GroupID is the consumer group. Offsets are committed after ingestion.
	GroupID string

	// MaxWait bounds how long a fetch waits for new data. Defaults to 1s.
	MaxWait time.Duration
}

// kafkaReader is the subset of *kafka.Reader used by KafkaSource.
type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSource consumes touchpoints from a Kafka topic.
type KafkaSource struct {
	reader kafkaReader
	logger *slog.Logger
}

// NewKafkaSource creates a consumer-group reader for the topic.
func NewKafkaSource(cfg KafkaSourceConfig, logger *slog.Logger) (*KafkaSource, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic required")
	}
	if cfg.GroupID == "" {
		return nil, fmt.Errorf("kafka: group id required")
	}
	if cfg.MaxWait == 0 {
		cfg.MaxWait = time.Second
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     cfg.MaxWait,
		StartOffset: kafka.FirstOffset,
	})

	return newKafkaSource(r, logger), nil
}

func newKafkaSource(r kafkaReader, logger *slog.Logger) *KafkaSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaSource{reader: r, logger: logger}
}

// Name implements TouchpointSource.
func (s *KafkaSource) Name() string { return "kafka" }

// Subscribe implements TouchpointSource.
// A message is committed once every touchpoint it carries has been acked.
// Empty and undecodable messages are delivered as AckOnly envelopes, so every
// commit follows the acks of earlier messages.
func (s *KafkaSource) Subscribe(ctx context.Context) (<-chan *Envelope, error) {
	out := make(chan *Envelope, 256)

	send := func(env *Envelope) bool {
		select {
		case out <- env:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(out)

		for {
			msg, err := s.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Error("kafka fetch failed", "error", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
					continue
				}
			}
			observability.RecordSourceMessage(s.Name())

			items, err := DecodePayload(msg.Value, string(msg.Key))
			if err != nil {
				observability.RecordIngestError("decode")
				s.logger.Warn("dropping undecodable message",
					"partition", msg.Partition, "offset", msg.Offset, "error", err)
			}
			if len(items) == 0 {
				if !send(&Envelope{Source: s.Name(), Ack: s.ackAfter(msg, 1), AckOnly: true}) {
					return
				}
				continue
			}

			ack := s.ackAfter(msg, len(items))
			for _, in := range items {
				if !send(&Envelope{TenantID: in.TenantID, Input: in, Source: s.Name(), Ack: ack}) {
					return
				}
			}
		}
	}()

	return out, nil
}

// ackAfter returns an ack func that commits msg on its n-th call.
func (s *KafkaSource) ackAfter(msg kafka.Message, n int) func(context.Context) error {
	remaining := n
	return func(ctx context.Context) error {
		remaining--
		if remaining > 0 {
			return nil
		}
		return s.reader.CommitMessages(ctx, msg)
	}
}

// Close shuts down the underlying reader.
func (s *KafkaSource) Close() error {
	if s == nil || s.reader == nil {
		return nil
	}
	return s.reader.Close()
}

var _ TouchpointSource = (*KafkaSource)(nil)
