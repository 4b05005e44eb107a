package worker

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"cloudscale/internal/logger"
	"cloudscale/internal/metrics"
	"cloudscale/internal/models"
)

// Publisher defines the interface for publishing envelopes
type Publisher interface {
	Publish(ctx context.Context, envelope *models.Envelope) error
	PublishBatch(ctx context.Context, envelopes []*models.Envelope) error
}

// Config holds worker pool configuration
type Config struct {
	Publisher    Publisher
	EnvelopeChan <-chan *models.Envelope
	Workers      int
	BatchSize    int
	BatchTimeout time.Duration
	// PublishTimeout bounds one batch publish
	PublishTimeout time.Duration
}

// Pool batches ingested metrics envelopes and hands them to a Publisher.
// Workers exit when the envelope channel is closed, flushing what they hold.
type Pool struct {
	cfg Config

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	processed atomic.Uint64
	failed    atomic.Uint64
}

// Stats holds worker pool counters
type Stats struct {
	Processed uint64
	Failed    uint64
}

// NewPool creates a new worker pool
func NewPool(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 100 * time.Millisecond
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{cfg: cfg, ctx: ctx, cancel: cancel}
}

// Start launches the workers
func (p *Pool) Start() {
	log := logger.WithComponent("worker_pool")
	log.Info().
		Int("workers", p.cfg.Workers).
		Int("batch_size", p.cfg.BatchSize).
		Dur("batch_timeout", p.cfg.BatchTimeout).
		Msg("starting worker pool")

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.run(i)
	}
}

// Wait blocks until every worker has exited. Close the envelope channel first.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Stop cancels the workers without waiting for the channel to drain; batches
// already held are still flushed.
func (p *Pool) Stop() {
	log := logger.WithComponent("worker_pool")
	log.Info().Msg("stopping worker pool")
	p.cancel()
	p.wg.Wait()
	log.Info().Msg("worker pool stopped")
}

// Stats returns worker pool statistics
func (p *Pool) Stats() Stats {
	return Stats{
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
	}
}

func (p *Pool) run(id int) {
	defer p.wg.Done()

	log := logger.WithComponent("worker").With().Int("worker_id", id).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("worker panic recovered")
			metrics.PanicsRecovered.WithLabelValues("worker").Inc()
		}
	}()

	batch := make([]*models.Envelope, 0, p.cfg.BatchSize)
	timer := time.NewTimer(p.cfg.BatchTimeout)
	defer timer.Stop()

	flush := func() {
		if len(batch) > 0 {
			p.publish(batch)
			batch = batch[:0]
		}
	}

	for {
		select {
		case <-p.ctx.Done():
			flush()
			return

		case envelope, ok := <-p.cfg.EnvelopeChan:
			if !ok {
				flush()
				return
			}
			batch = append(batch, envelope)
			if len(batch) >= p.cfg.BatchSize {
				flush()
				timer.Reset(p.cfg.BatchTimeout)
			}

		case <-timer.C:
			flush()
			timer.Reset(p.cfg.BatchTimeout)
		}
	}
}

// publish sends a batch and falls back to one-by-one publishing when the batch fails.
// It does not derive from the pool context so a flush during Stop still goes out.
func (p *Pool) publish(batch []*models.Envelope) {
	log := logger.WithComponent("worker")
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.PublishTimeout)
	defer cancel()

	err := p.cfg.Publisher.PublishBatch(ctx, batch)
	duration := time.Since(start)
	metrics.WorkerBatchPublishDuration.Observe(duration.Seconds())

	if err == nil {
		log.Debug().
			Int("batch_size", len(batch)).
			Dur("duration", duration).
			Msg("batch published")
		p.processed.Add(uint64(len(batch)))
		metrics.WorkerProcessedTotal.Add(float64(len(batch)))
		return
	}

	log.Error().
		Err(err).
		Int("batch_size", len(batch)).
		Dur("duration", duration).
		Msg("failed to publish batch, retrying individually")

	for _, envelope := range batch {
		if err := p.cfg.Publisher.Publish(ctx, envelope); err != nil {
			log.Error().
				Err(err).
				Str("resource_id", envelope.Metrics.ResourceID).
				Str("batch_id", envelope.BatchID).
				Msg("failed to publish envelope")
			p.failed.Add(1)
			metrics.WorkerFailedTotal.Inc()
			continue
		}
		p.processed.Add(1)
		metrics.WorkerProcessedTotal.Inc()
	}
}
