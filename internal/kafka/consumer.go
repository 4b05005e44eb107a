package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"cloudscale/internal/logger"
	"cloudscale/internal/metrics"
	"cloudscale/internal/models"
)

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads ingested metrics envelopes back from the topic.
type Consumer struct {
	reader     messageReader
	resourceID string
}

// NewConsumer joins groupID on topic. When resourceID is set, envelopes for
// other resources are committed and skipped.
func NewConsumer(brokers []string, topic, groupID, resourceID string) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{reader: reader, resourceID: resourceID}, nil
}

// ErrNoMessages is returned by Latest when nothing arrives before ctx expires.
var ErrNoMessages = errors.New("no new messages on topic")

// drainWait bounds each fetch while skipping past a backlog.
const drainWait = 50 * time.Millisecond

// Latest waits for an envelope for the monitored resource, then keeps reading
// whatever is already buffered so a backlog yields only its newest sample.
func (c *Consumer) Latest(ctx context.Context) (*models.Metrics, error) {
	newest, err := c.next(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrNoMessages
		}
		return nil, err
	}

	skipped := 0
	for {
		drainCtx, cancel := context.WithTimeout(ctx, drainWait)
		m, err := c.next(drainCtx)
		cancel()
		if err != nil {
			if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
				log := logger.WithComponent("kafka_consumer")
				log.Warn().Err(err).Msg("stopped draining backlog")
			}
			break
		}
		newest = m
		skipped++
	}
	if skipped > 0 {
		metrics.KafkaMessagesConsumed.WithLabelValues("superseded").Add(float64(skipped))
	}
	return newest, nil
}

// next returns the metrics of the next envelope for the monitored resource.
// Undecodable messages are committed and skipped.
func (c *Consumer) next(ctx context.Context) (*models.Metrics, error) {
	log := logger.WithComponent("kafka_consumer")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch message: %w", err)
		}

		var envelope models.Envelope
		decodeErr := json.Unmarshal(msg.Value, &envelope)
		if decodeErr == nil && envelope.Metrics == nil {
			decodeErr = errors.New("envelope has no metrics")
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return nil, fmt.Errorf("commit offset %d: %w", msg.Offset, err)
		}

		if decodeErr != nil {
			metrics.KafkaMessagesConsumed.WithLabelValues("decode_error").Inc()
			log.Warn().
				Err(decodeErr).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Msg("skipping undecodable message")
			continue
		}

		metrics.KafkaMessagesConsumed.WithLabelValues("ok").Inc()
		if c.resourceID != "" && envelope.Metrics.ResourceID != c.resourceID {
			continue
		}
		return envelope.Metrics, nil
	}
}

// Close leaves the consumer group.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
