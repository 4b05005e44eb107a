package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"cloudscale/internal/config"
	"cloudscale/internal/models"
)

type fakeWriter struct {
	mu       sync.Mutex
	failures int
	calls    int
	written  []kafka.Message
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.failures > 0 {
		w.failures--
		return errors.New("leader not available")
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) Stats() kafka.WriterStats { return kafka.WriterStats{} }

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func testProducerConfig() config.ProducerConfig {
	return config.ProducerConfig{MaxRetries: 2, RetryBackoff: time.Millisecond}
}

func testEnvelope(resourceID string) *models.Envelope {
	return models.NewEnvelope(&models.Metrics{
		ResourceID:   resourceID,
		ResourceType: "vm",
		CPUUsage:     42,
		Timestamp:    time.Now().UTC(),
	}, "node-1")
}

func TestProducerPublishBatch(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer("metrics", testProducerConfig(), []messageWriter{w})

	err := p.PublishBatch(context.Background(), []*models.Envelope{testEnvelope("a"), testEnvelope("b")})
	if err != nil {
		t.Fatalf("PublishBatch: %v", err)
	}

	if len(w.written) != 2 {
		t.Fatalf("expected 2 messages written, got %d", len(w.written))
	}
	if string(w.written[0].Key) != "a" {
		t.Errorf("expected key a, got %q", w.written[0].Key)
	}
	if got := p.Stats(); got.MessagesSent != 2 || got.BytesWritten == 0 {
		t.Errorf("unexpected stats: %+v", got)
	}
}

func TestProducerRetries(t *testing.T) {
	w := &fakeWriter{failures: 2}
	p := newProducer("metrics", testProducerConfig(), []messageWriter{w})

	if err := p.Publish(context.Background(), testEnvelope("a")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if w.calls != 3 {
		t.Errorf("expected 3 write attempts, got %d", w.calls)
	}
}

func TestProducerGivesUp(t *testing.T) {
	w := &fakeWriter{failures: 10}
	p := newProducer("metrics", testProducerConfig(), []messageWriter{w})

	err := p.Publish(context.Background(), testEnvelope("a"))
	if err == nil {
		t.Fatal("expected error after retries")
	}
	if w.calls != 3 {
		t.Errorf("expected 3 write attempts, got %d", w.calls)
	}
	if p.Stats().MessagesFailed != 1 {
		t.Errorf("expected 1 failed message, got %d", p.Stats().MessagesFailed)
	}
}

func TestProducerClosed(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer("metrics", testProducerConfig(), []messageWriter{w})

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !w.closed {
		t.Error("writer not closed")
	}
	if err := p.Publish(context.Background(), testEnvelope("a")); !errors.Is(err, ErrProducerClosed) {
		t.Errorf("expected ErrProducerClosed, got %v", err)
	}
	if err := p.HealthCheck(context.Background()); !errors.Is(err, ErrProducerClosed) {
		t.Errorf("expected ErrProducerClosed from health check, got %v", err)
	}
}

func TestNewProducerValidation(t *testing.T) {
	if _, err := NewProducer(nil, "metrics", config.ProducerConfig{}); err == nil {
		t.Error("expected error without brokers")
	}
	if _, err := NewProducer([]string{"localhost:9092"}, "", config.ProducerConfig{}); err == nil {
		t.Error("expected error without topic")
	}
}

type fakeReader struct {
	messages  []kafka.Message
	committed []int64
	err       error
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if r.err != nil {
		return kafka.Message{}, r.err
	}
	if len(r.messages) == 0 {
		return kafka.Message{}, context.DeadlineExceeded
	}
	msg := r.messages[0]
	r.messages = r.messages[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func encode(t *testing.T, e *models.Envelope, offset int64) kafka.Message {
	t.Helper()
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatal(err)
	}
	return kafka.Message{Offset: offset, Value: data}
}

func TestConsumerLatestSkipsBadAndForeignMessages(t *testing.T) {
	r := &fakeReader{messages: []kafka.Message{
		{Offset: 1, Value: []byte("not json")},
		encode(t, testEnvelope("other"), 2),
		encode(t, testEnvelope("web-1"), 3),
	}}
	c := &Consumer{reader: r, resourceID: "web-1"}

	m, err := c.Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if m.ResourceID != "web-1" || m.CPUUsage != 42 {
		t.Errorf("unexpected metrics: %+v", m)
	}
	if len(r.committed) != 3 {
		t.Errorf("expected 3 commits, got %v", r.committed)
	}
}

func TestConsumerLatestReturnsNewestOfBacklog(t *testing.T) {
	older := testEnvelope("web-1")
	older.Metrics.CPUUsage = 10
	newer := testEnvelope("web-1")
	newer.Metrics.CPUUsage = 95

	r := &fakeReader{messages: []kafka.Message{
		encode(t, older, 1),
		encode(t, testEnvelope("web-1"), 2),
		encode(t, newer, 3),
		encode(t, testEnvelope("other"), 4),
	}}
	c := &Consumer{reader: r, resourceID: "web-1"}

	m, err := c.Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if m.CPUUsage != 95 {
		t.Errorf("expected newest sample (95), got %v", m.CPUUsage)
	}
	if len(r.committed) != 4 {
		t.Errorf("expected 4 commits, got %v", r.committed)
	}
	if len(r.messages) != 0 {
		t.Errorf("expected backlog drained, %d left", len(r.messages))
	}
}

func TestConsumerIdleTopic(t *testing.T) {
	c := &Consumer{reader: &fakeReader{}}
	if _, err := c.Latest(context.Background()); !errors.Is(err, ErrNoMessages) {
		t.Errorf("expected ErrNoMessages, got %v", err)
	}
}

func TestConsumerFetchError(t *testing.T) {
	boom := errors.New("group coordinator not available")
	c := &Consumer{reader: &fakeReader{err: boom}}
	_, err := c.Latest(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped fetch error, got %v", err)
	}
	if errors.Is(err, ErrNoMessages) {
		t.Error("fetch failure must not read as an idle topic")
	}
}
