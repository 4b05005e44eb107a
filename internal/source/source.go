// Package source yields the latest metrics record of the monitored resource.
package source

import (
	"context"
	"errors"
	"fmt"

	"cloudscale/internal/client"
	"cloudscale/internal/collector"
	"cloudscale/internal/config"
	"cloudscale/internal/kafka"
	"cloudscale/internal/models"
)

// ErrNoSamples is returned when a source has nothing to report yet.
var ErrNoSamples = errors.New("no metrics samples available")

// Source is polled once per monitor cycle.
type Source interface {
	Latest(ctx context.Context) (*models.Metrics, error)
	Close() error
}

// New builds the source selected by cfg.Source.Kind.
func New(cfg *config.Config) (Source, error) {
	switch cfg.Source.Kind {
	case "api":
		c := client.NewMetricsClient(cfg.Source.API.BaseURL, cfg.Source.API.Token, cfg.Source.API.Timeout)
		return NewAPI(c, cfg.Monitor.ResourceID), nil
	case "host":
		return collector.NewHost(cfg.Monitor.ResourceID, cfg.Source.Host.DiskPath, cfg.Source.Host.CPUSampleFor), nil
	case "prometheus":
		return NewPrometheus(cfg.Source.Prometheus, cfg.Monitor.ResourceID)
	case "kafka":
		c, err := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, cfg.Monitor.ResourceID)
		if err != nil {
			return nil, err
		}
		return &Kafka{consumer: c}, nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
	}
}

// messageConsumer is the part of *kafka.Consumer the Kafka source needs.
type messageConsumer interface {
	Latest(ctx context.Context) (*models.Metrics, error)
	Close() error
}

// Kafka reads samples back from the ingest topic. An idle topic reports
// ErrNoSamples rather than a poll failure.
type Kafka struct {
	consumer messageConsumer
}

func (k *Kafka) Latest(ctx context.Context) (*models.Metrics, error) {
	m, err := k.consumer.Latest(ctx)
	if errors.Is(err, kafka.ErrNoMessages) {
		return nil, ErrNoSamples
	}
	return m, err
}

func (k *Kafka) Close() error { return k.consumer.Close() }

// metricsLister is the slice of the API client the API source needs.
type metricsLister interface {
	GetMetrics(ctx context.Context, resourceID string) ([]models.Metrics, error)
}

// API polls the monitoring API's history for one resource.
type API struct {
	client     metricsLister
	resourceID string
}

// NewAPI wraps an API client.
func NewAPI(c metricsLister, resourceID string) *API {
	return &API{client: c, resourceID: resourceID}
}

// Latest returns the first (newest) record of the resource's history.
func (a *API) Latest(ctx context.Context) (*models.Metrics, error) {
	list, err := a.client.GetMetrics(ctx, a.resourceID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNoSamples
	}
	return &list[0], nil
}

func (a *API) Close() error { return nil }
