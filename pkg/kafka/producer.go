// Package kafka publishes JSON events for notifications, sync completion
// and remote record dispatch.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/klevu/module-m2-indexing-sub002/pkg/tracing"
)

const SchemaVersion = "1.0"

// Config holds Kafka producer configuration
type Config struct {
	Brokers      []string      `mapstructure:"brokers"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	RequiredAcks int           `mapstructure:"required_acks"`
	Compression  string        `mapstructure:"compression"`
}

// ParseBrokers splits a comma-separated broker string
func ParseBrokers(brokers string) []string {
	out := []string{}
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Writer is the part of kafka.Writer the producer uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Message is one event to publish. Payload is encoded as JSON.
type Message struct {
	Topic     string
	Key       string
	EventType string
	Payload   any
	Headers   map[string]string
}

// Producer handles producing messages to Kafka
type Producer struct {
	writer Writer
	logger ectologger.Logger
}

// NewProducer creates a producer writing to the configured brokers. The
// topic is chosen per message.
func NewProducer(cfg Config, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 10 * time.Millisecond
	}
	requiredAcks := kafka.RequireOne
	if cfg.RequiredAcks != 0 {
		requiredAcks = kafka.RequiredAcks(cfg.RequiredAcks)
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              batchSize,
		BatchTimeout:           batchTimeout,
		RequiredAcks:           requiredAcks,
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}
	return NewProducerWithWriter(writer, logger)
}

func NewProducerWithWriter(writer Writer, logger ectologger.Logger) *Producer {
	return &Producer{writer: writer, logger: logger}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Publish writes all messages in one call. Nothing is written when any
// payload fails to encode.
func (p *Producer) Publish(ctx context.Context, messages ...Message) error {
	if len(messages) == 0 {
		return nil
	}

	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.Publish")
	defer span.End()

	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", messages[0].Topic),
		attribute.String("messaging.operation", "publish"),
		attribute.Int("messaging.batch_size", len(messages)),
	)

	traceparent := tracing.GetTraceParent(ctx)
	kafkaMessages := make([]kafka.Message, len(messages))
	for i, msg := range messages {
		if msg.Topic == "" {
			return fmt.Errorf("message %d (%s) has no topic", i, msg.EventType)
		}
		data, err := json.Marshal(msg.Payload)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to marshal message")
			return fmt.Errorf("failed to marshal %s message: %w", msg.EventType, err)
		}

		headers := []kafka.Header{
			{Key: "event_type", Value: []byte(msg.EventType)},
			{Key: "schema_version", Value: []byte(SchemaVersion)},
		}
		for k, v := range msg.Headers {
			headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
		}
		if traceparent != "" {
			headers = append(headers, kafka.Header{Key: "traceparent", Value: []byte(traceparent)})
		}

		kafkaMessages[i] = kafka.Message{
			Topic:   msg.Topic,
			Key:     []byte(msg.Key),
			Value:   data,
			Headers: headers,
		}
	}

	if err := p.writer.WriteMessages(ctx, kafkaMessages...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish messages")
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"topic":      messages[0].Topic,
			"event_type": messages[0].EventType,
			"batch_size": len(messages),
		}).Error("Failed to publish to Kafka")
		return err
	}

	span.SetStatus(codes.Ok, "messages published")
	p.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":      messages[0].Topic,
		"event_type": messages[0].EventType,
		"batch_size": len(messages),
	}).Debug("Published to Kafka")
	return nil
}
