package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"cloudscale/internal/config"
	"cloudscale/internal/logger"
	"cloudscale/internal/metrics"
	"cloudscale/internal/models"
)

// Producer errors
var (
	ErrProducerClosed  = errors.New("producer is closed")
	ErrSerializeFailed = errors.New("failed to serialize message")
)

// messageWriter is the part of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Stats() kafka.WriterStats
	Close() error
}

// Producer publishes metrics envelopes to Kafka from a pool of writers,
// retrying failed writes with exponential backoff.
type Producer struct {
	cfg     config.ProducerConfig
	topic   string
	writers []messageWriter
	pool    chan messageWriter
	closed  atomic.Bool

	messagesSent   atomic.Uint64
	messagesFailed atomic.Uint64
	bytesWritten   atomic.Uint64
}

// NewProducer creates a producer with cfg.PoolSize writers for topic.
func NewProducer(brokers []string, topic string, cfg config.ProducerConfig) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 4
	}

	writers := make([]messageWriter, cfg.PoolSize)
	for i := range writers {
		writers[i] = &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{}, // same resource, same partition
			BatchSize:    cfg.BatchSize,
			BatchTimeout: cfg.BatchTimeout,
			WriteTimeout: cfg.WriteTimeout,
			RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
			Compression:  getCompression(cfg.Compression),
			MaxAttempts:  1, // retries are ours
		}
	}
	return newProducer(topic, cfg, writers), nil
}

func newProducer(topic string, cfg config.ProducerConfig, writers []messageWriter) *Producer {
	p := &Producer{
		cfg:     cfg,
		topic:   topic,
		writers: writers,
		pool:    make(chan messageWriter, len(writers)),
	}
	for _, w := range writers {
		p.pool <- w
	}
	return p
}

// getCompression returns the kafka compression codec
func getCompression(name string) compress.Compression {
	switch name {
	case "gzip":
		return compress.Gzip
	case "snappy":
		return compress.Snappy
	case "lz4":
		return compress.Lz4
	case "zstd":
		return compress.Zstd
	default:
		return compress.None
	}
}

func newMessage(envelope *models.Envelope, data []byte) kafka.Message {
	return kafka.Message{
		Key:   []byte(envelope.PartitionKey),
		Value: data,
		Headers: []kafka.Header{
			{Key: "resource_id", Value: []byte(envelope.Metrics.ResourceID)},
			{Key: "resource_type", Value: []byte(envelope.Metrics.ResourceType)},
			{Key: "ingest_node", Value: []byte(envelope.IngestNode)},
		},
		Time: envelope.ReceivedAt,
	}
}

// Publish sends a single envelope.
func (p *Producer) Publish(ctx context.Context, envelope *models.Envelope) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		p.messagesFailed.Add(1)
		metrics.KafkaPublishTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("%w: %v", ErrSerializeFailed, err)
	}
	return p.send(ctx, []kafka.Message{newMessage(envelope, data)})
}

// PublishBatch sends envelopes in one write. Envelopes that fail to
// serialize are logged and skipped.
func (p *Producer) PublishBatch(ctx context.Context, envelopes []*models.Envelope) error {
	log := logger.WithComponent("kafka_producer")

	messages := make([]kafka.Message, 0, len(envelopes))
	for _, envelope := range envelopes {
		data, err := json.Marshal(envelope)
		if err != nil {
			log.Error().
				Err(err).
				Str("resource_id", envelope.Metrics.ResourceID).
				Msg("failed to serialize envelope")
			p.messagesFailed.Add(1)
			metrics.KafkaPublishTotal.WithLabelValues("failed").Inc()
			continue
		}
		messages = append(messages, newMessage(envelope, data))
	}

	if len(messages) == 0 {
		return nil
	}
	return p.send(ctx, messages)
}

func (p *Producer) send(ctx context.Context, messages []kafka.Message) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}

	log := logger.WithComponent("kafka_producer")
	n := len(messages)

	writer, release, err := p.acquire(ctx)
	if err != nil {
		p.messagesFailed.Add(uint64(n))
		return err
	}
	defer release()

	start := time.Now()
	err = p.writeWithRetry(ctx, writer, messages)
	duration := time.Since(start)
	metrics.KafkaPublishDuration.Observe(duration.Seconds())

	if err != nil {
		log.Error().
			Err(err).
			Int("batch_size", n).
			Dur("duration", duration).
			Msg("failed to publish to kafka")
		p.messagesFailed.Add(uint64(n))
		metrics.KafkaPublishTotal.WithLabelValues("failed").Add(float64(n))
		return err
	}

	var bytesTotal uint64
	for _, msg := range messages {
		bytesTotal += uint64(len(msg.Value))
	}

	log.Debug().
		Int("batch_size", n).
		Dur("duration", duration).
		Msg("published to kafka")

	p.messagesSent.Add(uint64(n))
	p.bytesWritten.Add(bytesTotal)
	metrics.KafkaPublishTotal.WithLabelValues("success").Add(float64(n))
	metrics.KafkaBytesWritten.Add(float64(bytesTotal))
	return nil
}

// acquire takes a writer from the pool; release puts it back.
func (p *Producer) acquire(ctx context.Context) (messageWriter, func(), error) {
	select {
	case w := <-p.pool:
		return w, func() { p.pool <- w }, nil
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

// writeWithRetry writes messages, doubling the backoff after each failed attempt.
// Context errors are not retried.
func (p *Producer) writeWithRetry(ctx context.Context, writer messageWriter, messages []kafka.Message) error {
	log := logger.WithComponent("kafka_producer")
	var lastErr error
	backoff := p.cfg.RetryBackoff
	attempts := p.cfg.MaxRetries + 1

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			log.Warn().
				Int("attempt", attempt).
				Int("batch_size", len(messages)).
				Dur("backoff", backoff).
				Msg("retrying kafka publish")
			metrics.KafkaPublishRetries.Inc()

			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := writer.WriteMessages(ctx, messages...)
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

// Close closes all writers in the pool
func (p *Producer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}

	var errs []error
	for _, writer := range p.writers {
		if err := writer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ProducerStats holds producer counters
type ProducerStats struct {
	MessagesSent   uint64
	MessagesFailed uint64
	BytesWritten   uint64
}

// Stats returns producer statistics
func (p *Producer) Stats() ProducerStats {
	return ProducerStats{
		MessagesSent:   p.messagesSent.Load(),
		MessagesFailed: p.messagesFailed.Load(),
		BytesWritten:   p.bytesWritten.Load(),
	}
}

// HealthCheck reports an error once the producer is closed or a writer has
// only ever failed.
func (p *Producer) HealthCheck(ctx context.Context) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}

	writer, release, err := p.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	stats := writer.Stats()
	if stats.Errors > 0 && stats.Writes == 0 {
		return fmt.Errorf("kafka writer for %s has only failed writes (%d errors)", p.topic, stats.Errors)
	}
	return nil
}
