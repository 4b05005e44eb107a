// Package monitor runs the poll loop and serves the dashboard API.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"cloudscale/internal/alerts"
	"cloudscale/internal/config"
	"cloudscale/internal/hub"
	"cloudscale/internal/kafka"
	"cloudscale/internal/logger"
	"cloudscale/internal/metrics"
	"cloudscale/internal/models"
	"cloudscale/internal/sound"
	"cloudscale/internal/source"
	"cloudscale/internal/worker"
)

const (
	shutdownTimeout = 10 * time.Second
	drainTimeout    = 15 * time.Second
	statsInterval   = 30 * time.Second
)

// Monitor polls a metrics source, derives alerts and keeps the alert history
// the dashboard reads.
type Monitor struct {
	cfg *config.Config

	source    source.Source
	evaluator *alerts.Evaluator
	notifier  *alerts.Notifier
	history   *alerts.History
	hub       *hub.Hub

	// ingest pipeline, nil unless cfg.Ingest.Enabled
	publisher    worker.Publisher
	producer     *kafka.Producer
	workerPool   *worker.Pool
	envelopeChan chan *models.Envelope

	httpServer *http.Server
	listener   net.Listener

	mu       sync.RWMutex
	latest   *models.Metrics
	lastErr  error
	lastPoll time.Time

	cycles     atomic.Uint64
	pollErrors atomic.Uint64
	startedAt  time.Time

	wg sync.WaitGroup
}

// Option customizes a Monitor.
type Option func(*Monitor)

// WithSource replaces the source built from the config.
func WithSource(s source.Source) Option {
	return func(m *Monitor) { m.source = s }
}

// WithPlayer replaces the sound player built from the config.
func WithPlayer(p alerts.Player) Option {
	return func(m *Monitor) { m.notifier = alerts.NewNotifier(p) }
}

// WithEvaluator replaces the evaluator built from the config.
func WithEvaluator(e *alerts.Evaluator) Option {
	return func(m *Monitor) { m.evaluator = e }
}

// WithPublisher sends ingested samples to p instead of a Kafka producer.
func WithPublisher(p worker.Publisher) Option {
	return func(m *Monitor) { m.publisher = p }
}

// New wires a Monitor from cfg. Options override the config-built parts.
func New(cfg *config.Config, opts ...Option) (*Monitor, error) {
	m := &Monitor{
		cfg:     cfg,
		history: alerts.NewHistory(cfg.Monitor.HistorySize),
	}
	m.hub = hub.New(m.history.Unacknowledged)

	for _, opt := range opts {
		opt(m)
	}

	if m.source == nil {
		s, err := source.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("metrics source: %w", err)
		}
		m.source = s
	}

	if m.evaluator == nil {
		m.evaluator = alerts.NewEvaluator(
			alerts.Thresholds(cfg.Thresholds),
			alerts.WithIDGenerator(alerts.NewIDGenerator(cfg.Monitor.IDScheme)),
		)
	}

	if m.notifier == nil {
		player, err := sound.New(cfg.Sound.Player, cfg.Sound.Command, cfg.Sound.WarningFile, cfg.Sound.CriticalFile)
		if err != nil {
			return nil, err
		}
		m.notifier = alerts.NewNotifier(player)
	}

	if cfg.Ingest.Enabled {
		m.envelopeChan = make(chan *models.Envelope, max(cfg.Ingest.QueueSize, 1))
	}

	m.httpServer = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      m.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return m, nil
}

// History exposes the alert history.
func (m *Monitor) History() *alerts.History { return m.history }

// Latest returns the last polled sample, or false before the first successful poll.
func (m *Monitor) Latest() (*models.Metrics, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.latest == nil {
		return nil, false
	}
	cp := *m.latest
	return &cp, true
}

// Addr returns the bound listen address once Run has started the server.
func (m *Monitor) Addr() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

// Cycle performs one fetch, evaluate, notify, merge and broadcast pass.
// It returns the alerts fired by this pass. A source error ends the pass early.
func (m *Monitor) Cycle(ctx context.Context) ([]models.Alert, error) {
	log := logger.WithComponent("monitor")
	m.cycles.Add(1)

	pollCtx, cancel := context.WithTimeout(ctx, m.cfg.Monitor.PollTimeout)
	start := time.Now()
	sample, err := m.source.Latest(pollCtx)
	cancel()
	metrics.PollDuration.Observe(time.Since(start).Seconds())

	m.mu.Lock()
	m.lastPoll = start
	if !errors.Is(err, source.ErrNoSamples) {
		m.lastErr = err
	}
	if err == nil {
		m.latest = sample
	}
	m.mu.Unlock()

	if err != nil {
		if errors.Is(err, source.ErrNoSamples) {
			metrics.PollTotal.WithLabelValues(m.cfg.Source.Kind, "empty").Inc()
			log.Debug().Msg("no metrics sample available")
			return nil, err
		}
		m.pollErrors.Add(1)
		metrics.PollTotal.WithLabelValues(m.cfg.Source.Kind, "error").Inc()
		log.Warn().Err(err).Str("source", m.cfg.Source.Kind).Msg("error fetching metrics")
		return nil, err
	}
	metrics.PollTotal.WithLabelValues(m.cfg.Source.Kind, "ok").Inc()
	recordUsage(sample)

	fired := m.evaluator.Evaluate(sample.Sample())
	for _, a := range fired {
		metrics.AlertsFiredTotal.WithLabelValues(string(a.Type), string(a.Severity)).Inc()
		log.Info().
			Str("alert_id", a.ID).
			Str("type", string(a.Type)).
			Str("severity", string(a.Severity)).
			Float64("value", a.Value).
			Float64("threshold", a.Threshold).
			Msg(a.Message)
	}

	m.notifier.NotifyAlerts(ctx, fired)

	m.history.Merge(fired)
	metrics.AlertHistorySize.Set(float64(m.history.Len()))

	m.hub.Broadcast(fired, m.history.Unacknowledged())
	return fired, nil
}

func recordUsage(s *models.Metrics) {
	metrics.LatestUsage.WithLabelValues(s.ResourceID, "cpu").Set(s.CPUUsage)
	metrics.LatestUsage.WithLabelValues(s.ResourceID, "memory").Set(s.MemoryUsage)
	metrics.LatestUsage.WithLabelValues(s.ResourceID, "disk").Set(s.DiskUsage)
}

// Run starts the HTTP server and the ingest pipeline, then polls until ctx is
// cancelled. The next poll is scheduled an interval after the previous one
// completes, so cycles never overlap.
func (m *Monitor) Run(ctx context.Context) error {
	log := logger.WithComponent("monitor")
	log.Info().
		Str("resource_id", m.cfg.Monitor.ResourceID).
		Str("source", m.cfg.Source.Kind).
		Dur("interval", m.cfg.Monitor.Interval).
		Msg("monitor starting")
	m.startedAt = time.Now()

	if m.cfg.Ingest.Enabled {
		if err := m.startIngest(); err != nil {
			return fmt.Errorf("failed to start ingest: %w", err)
		}
	}

	ln, err := net.Listen("tcp", m.cfg.Server.Addr)
	if err != nil {
		m.stopIngest(true)
		return fmt.Errorf("listen %s: %w", m.cfg.Server.Addr, err)
	}
	m.mu.Lock()
	m.listener = ln
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		log.Info().Str("addr", ln.Addr().String()).Msg("starting HTTP server")
		if err := m.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.reportStats(ctx)
	}()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutdown signal received")
			return m.shutdown()
		case <-timer.C:
			m.Cycle(ctx)
			timer.Reset(m.cfg.Monitor.Interval)
		}
	}
}

// startIngest builds the producer (unless a publisher was injected) and starts the worker pool
func (m *Monitor) startIngest() error {
	log := logger.WithComponent("monitor")

	if m.publisher == nil {
		producer, err := kafka.NewProducer(m.cfg.Kafka.Brokers, m.cfg.Kafka.Topic, m.cfg.Kafka.Producer)
		if err != nil {
			return err
		}
		m.producer = producer
		m.publisher = producer
		log.Info().
			Strs("brokers", m.cfg.Kafka.Brokers).
			Str("topic", m.cfg.Kafka.Topic).
			Msg("kafka producer initialized")
	}

	m.workerPool = worker.NewPool(worker.Config{
		Publisher:    m.publisher,
		EnvelopeChan: m.envelopeChan,
		Workers:      m.cfg.Kafka.Producer.PoolSize,
		BatchSize:    m.cfg.Kafka.Producer.BatchSize,
		BatchTimeout: m.cfg.Kafka.Producer.BatchTimeout,
	})
	m.workerPool.Start()
	metrics.WorkerQueueCapacity.Set(float64(cap(m.envelopeChan)))
	return nil
}

// stopIngest drains the envelope channel through the pool and closes the producer.
// drain is false when HTTP handlers may still be sending, in which case the
// channel is left open and the pool is cancelled instead.
func (m *Monitor) stopIngest(drain bool) {
	if m.workerPool == nil {
		return
	}
	log := logger.WithComponent("monitor")

	if drain {
		log.Info().Msg("closing envelope channel")
		close(m.envelopeChan)

		done := make(chan struct{})
		go func() {
			m.workerPool.Wait()
			close(done)
		}()

		select {
		case <-done:
			log.Info().Msg("workers drained")
		case <-time.After(drainTimeout):
			log.Warn().Msg("worker drain timeout, cancelling")
		}
	}
	m.workerPool.Stop()

	if m.producer != nil {
		log.Info().Msg("closing kafka producer")
		if err := m.producer.Close(); err != nil {
			log.Error().Err(err).Msg("producer close error")
		}
	}
}

// shutdown performs graceful shutdown
func (m *Monitor) shutdown() error {
	log := logger.WithComponent("monitor")
	log.Info().Msg("initiating graceful shutdown")

	m.hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info().Msg("stopping HTTP server")
	serverErr := m.httpServer.Shutdown(shutdownCtx)
	if serverErr != nil {
		log.Error().Err(serverErr).Msg("HTTP server shutdown error")
	}

	m.stopIngest(serverErr == nil)

	if err := m.source.Close(); err != nil {
		log.Error().Err(err).Msg("source close error")
	}

	m.wg.Wait()

	log.Info().Msg("monitor stopped gracefully")
	return nil
}

// reportStats periodically logs statistics
func (m *Monitor) reportStats(ctx context.Context) {
	log := logger.WithComponent("monitor")
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := m.Stats()
			event := log.Info().
				Uint64("cycles", s.Cycles).
				Uint64("poll_errors", s.PollErrors).
				Int("history_size", s.HistorySize).
				Int("active_alerts", s.ActiveAlerts).
				Int("websocket_clients", s.WebsocketClients)
			if s.Ingest != nil {
				metrics.WorkerQueueSize.Set(float64(s.Ingest.QueueBuffered))
				event = event.
					Uint64("worker_processed", s.Ingest.Processed).
					Uint64("worker_failed", s.Ingest.Failed).
					Int("queue_size", s.Ingest.QueueBuffered)
			}
			event.Msg("stats")
		}
	}
}
