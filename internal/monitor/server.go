package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cloudscale/internal/handlers"
	"cloudscale/internal/middleware"
)

// Stats is the body of GET /stats.
type Stats struct {
	Uptime           string       `json:"uptime"`
	Cycles           uint64       `json:"cycles"`
	PollErrors       uint64       `json:"poll_errors"`
	HistorySize      int          `json:"history_size"`
	ActiveAlerts     int          `json:"active_alerts"`
	WebsocketClients int          `json:"websocket_clients"`
	Ingest           *IngestStats `json:"ingest,omitempty"`
}

// IngestStats reports the ingest pipeline when it is enabled.
type IngestStats struct {
	Processed      uint64 `json:"processed"`
	Failed         uint64 `json:"failed"`
	MessagesSent   uint64 `json:"messages_sent"`
	MessagesFailed uint64 `json:"messages_failed"`
	BytesWritten   uint64 `json:"bytes_written"`
	QueueBuffered  int    `json:"queue_buffered"`
	QueueCapacity  int    `json:"queue_capacity"`
}

// Handler builds the HTTP routes. /health, /stats and /metrics are open; the
// dashboard API and the websocket go through recovery, logging and auth.
func (m *Monitor) Handler() http.Handler {
	api := http.NewServeMux()

	handlers.NewAlertsHandler(handlers.AlertsConfig{
		History: m.history,
		Latest:  m.Latest,
		OnChange: func() {
			m.hub.Broadcast(nil, m.history.Unacknowledged())
		},
	}).Register(api)

	if m.envelopeChan != nil {
		api.Handle("POST /api/v1/monitoring/metrics", handlers.NewIngestHandler(handlers.IngestConfig{
			EnvelopeChan: m.envelopeChan,
			MaxBodySize:  m.cfg.Ingest.MaxBodySize,
		}))
	}

	api.Handle("GET /ws", m.hub)

	protected := middleware.Chain(api,
		middleware.Recovery,
		middleware.Logging,
		middleware.Auth(m.cfg.Server.AuthToken),
	)

	mux := http.NewServeMux()
	mux.Handle("/api/", protected)
	mux.Handle("/ws", protected)
	mux.HandleFunc("GET /health", m.healthHandler)
	mux.HandleFunc("GET /stats", m.statsHandler)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Stats returns a snapshot of the monitor counters.
func (m *Monitor) Stats() Stats {
	s := Stats{
		Cycles:           m.cycles.Load(),
		PollErrors:       m.pollErrors.Load(),
		HistorySize:      m.history.Len(),
		ActiveAlerts:     len(m.history.Unacknowledged()),
		WebsocketClients: m.hub.Clients(),
	}
	if !m.startedAt.IsZero() {
		s.Uptime = time.Since(m.startedAt).Round(time.Second).String()
	}

	if m.workerPool != nil {
		ws := m.workerPool.Stats()
		s.Ingest = &IngestStats{
			Processed:     ws.Processed,
			Failed:        ws.Failed,
			QueueBuffered: len(m.envelopeChan),
			QueueCapacity: cap(m.envelopeChan),
		}
		if m.producer != nil {
			ps := m.producer.Stats()
			s.Ingest.MessagesSent = ps.MessagesSent
			s.Ingest.MessagesFailed = ps.MessagesFailed
			s.Ingest.BytesWritten = ps.BytesWritten
		}
	}
	return s
}

// healthHandler reports the last poll and, with ingest enabled, Kafka reachability
func (m *Monitor) healthHandler(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	lastPoll, lastErr := m.lastPoll, m.lastErr
	m.mu.RUnlock()

	body := map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if !lastPoll.IsZero() {
		body["last_poll"] = lastPoll.UTC().Format(time.RFC3339)
	}
	if lastErr != nil {
		body["last_poll_error"] = lastErr.Error()
	}

	status := http.StatusOK
	if m.producer != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := m.producer.HealthCheck(ctx); err != nil {
			body["status"] = "unhealthy"
			body["error"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, status, body)
}

// statsHandler returns current statistics
func (m *Monitor) statsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, m.Stats())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
