package source

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"cloudscale/internal/config"
	"cloudscale/internal/logger"
	"cloudscale/internal/models"
)

// querier is the instant-query part of the Prometheus HTTP API.
type querier interface {
	Query(ctx context.Context, query string, ts time.Time, opts ...promv1.Option) (model.Value, promv1.Warnings, error)
}

// Prometheus builds samples from three PromQL instant queries.
type Prometheus struct {
	api        querier
	cfg        config.PrometheusConfig
	resourceID string
	now        func() time.Time
}

// NewPrometheus connects to the Prometheus server at cfg.URL.
func NewPrometheus(cfg config.PrometheusConfig, resourceID string) (*Prometheus, error) {
	c, err := api.NewClient(api.Config{Address: cfg.URL})
	if err != nil {
		return nil, fmt.Errorf("prometheus client: %w", err)
	}
	return &Prometheus{
		api:        promv1.NewAPI(c),
		cfg:        cfg,
		resourceID: resourceID,
		now:        time.Now,
	}, nil
}

// Latest evaluates the cpu, memory and disk queries at the current instant.
func (p *Prometheus) Latest(ctx context.Context) (*models.Metrics, error) {
	now := p.now()

	cpu, err := p.scalar(ctx, p.cfg.CPUQuery, now)
	if err != nil {
		return nil, fmt.Errorf("cpu query: %w", err)
	}
	mem, err := p.scalar(ctx, p.cfg.MemoryQuery, now)
	if err != nil {
		return nil, fmt.Errorf("memory query: %w", err)
	}
	disk, err := p.scalar(ctx, p.cfg.DiskQuery, now)
	if err != nil {
		return nil, fmt.Errorf("disk query: %w", err)
	}

	return &models.Metrics{
		ResourceID:   p.resourceID,
		ResourceType: "prometheus",
		CPUUsage:     cpu,
		MemoryUsage:  mem,
		DiskUsage:    disk,
		Timestamp:    now.UTC(),
	}, nil
}

// scalar runs query and returns the first vector element or the scalar value.
func (p *Prometheus) scalar(ctx context.Context, query string, ts time.Time) (float64, error) {
	val, warnings, err := p.api.Query(ctx, query, ts)
	if err != nil {
		return 0, err
	}
	if len(warnings) > 0 {
		log := logger.WithComponent("prometheus_source")
		log.Warn().Strs("warnings", warnings).Str("query", query).Msg("prometheus query warnings")
	}

	switch v := val.(type) {
	case model.Vector:
		if len(v) == 0 {
			return 0, ErrNoSamples
		}
		return float64(v[0].Value), nil
	case *model.Scalar:
		return float64(v.Value), nil
	default:
		return 0, fmt.Errorf("unexpected result type %s", val.Type())
	}
}

func (p *Prometheus) Close() error { return nil }
