package source

import (
	"context"
	"errors"
	"testing"
	"time"

	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudscale/internal/collector"
	"cloudscale/internal/config"
	"cloudscale/internal/kafka"
	"cloudscale/internal/models"
)

type fakeLister struct {
	list []models.Metrics
	err  error
	got  string
}

func (f *fakeLister) GetMetrics(ctx context.Context, resourceID string) ([]models.Metrics, error) {
	f.got = resourceID
	return f.list, f.err
}

func TestAPITakesFirstElement(t *testing.T) {
	l := &fakeLister{list: []models.Metrics{{ID: 1, CPUUsage: 95}, {ID: 2, CPUUsage: 10}}}
	m, err := NewAPI(l, "test-server-1").Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.ID)
	assert.Equal(t, "test-server-1", l.got)
}

func TestAPIEmptyList(t *testing.T) {
	_, err := NewAPI(&fakeLister{}, "x").Latest(context.Background())
	assert.ErrorIs(t, err, ErrNoSamples)
}

func TestAPIError(t *testing.T) {
	boom := errors.New("connection refused")
	_, err := NewAPI(&fakeLister{err: boom}, "x").Latest(context.Background())
	assert.ErrorIs(t, err, boom)
}

type fakeQuerier struct {
	results map[string]model.Value
}

func (f *fakeQuerier) Query(ctx context.Context, query string, ts time.Time, opts ...promv1.Option) (model.Value, promv1.Warnings, error) {
	v, ok := f.results[query]
	if !ok {
		return nil, nil, errors.New("bad_data: parse error")
	}
	return v, promv1.Warnings{"partial response"}, nil
}

func vector(v float64) model.Vector {
	return model.Vector{&model.Sample{Value: model.SampleValue(v)}}
}

func TestPrometheusLatest(t *testing.T) {
	now := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)
	p := &Prometheus{
		api: &fakeQuerier{results: map[string]model.Value{
			"cpu":  vector(91.5),
			"mem":  &model.Scalar{Value: 40},
			"disk": vector(88),
		}},
		cfg:        config.PrometheusConfig{CPUQuery: "cpu", MemoryQuery: "mem", DiskQuery: "disk"},
		resourceID: "node-1",
		now:        func() time.Time { return now },
	}

	m, err := p.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.MetricsSample{CPUUsage: 91.5, MemoryUsage: 40, DiskUsage: 88}, m.Sample())
	assert.Equal(t, "node-1", m.ResourceID)
	assert.Equal(t, now, m.Timestamp)
}

func TestPrometheusEmptyVector(t *testing.T) {
	p := &Prometheus{
		api: &fakeQuerier{results: map[string]model.Value{"cpu": model.Vector{}}},
		cfg: config.PrometheusConfig{CPUQuery: "cpu"},
		now: time.Now,
	}
	_, err := p.Latest(context.Background())
	assert.ErrorIs(t, err, ErrNoSamples)
}

func TestPrometheusQueryError(t *testing.T) {
	p := &Prometheus{
		api: &fakeQuerier{results: map[string]model.Value{"cpu": vector(1)}},
		cfg: config.PrometheusConfig{CPUQuery: "cpu", MemoryQuery: "broken"},
		now: time.Now,
	}
	_, err := p.Latest(context.Background())
	assert.ErrorContains(t, err, "memory query")
}

type fakeConsumer struct {
	m   *models.Metrics
	err error
}

func (f *fakeConsumer) Latest(ctx context.Context) (*models.Metrics, error) { return f.m, f.err }
func (f *fakeConsumer) Close() error { return nil }

func TestKafkaIdleTopicIsNoSamples(t *testing.T) {
	_, err := (&Kafka{consumer: &fakeConsumer{err: kafka.ErrNoMessages}}).Latest(context.Background())
	assert.ErrorIs(t, err, ErrNoSamples)

	boom := errors.New("fetch message: broker down")
	_, err = (&Kafka{consumer: &fakeConsumer{err: boom}}).Latest(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNoSamples)

	m, err := (&Kafka{consumer: &fakeConsumer{m: &models.Metrics{CPUUsage: 12}}}).Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12.0, m.CPUUsage)
}

func TestNewSelectsKind(t *testing.T) {
	cfg := config.Default()

	cfg.Source.Kind = "api"
	s, err := New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &API{}, s)

	cfg.Source.Kind = "host"
	s, err = New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &collector.Host{}, s)

	cfg.Source.Kind = "prometheus"
	s, err = New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &Prometheus{}, s)

	cfg.Source.Kind = "kafka"
	s, err = New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &Kafka{}, s)
	assert.NoError(t, s.Close())

	cfg.Source.Kind = "smoke-signals"
	_, err = New(cfg)
	assert.Error(t, err)
}
