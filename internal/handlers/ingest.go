package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"cloudscale/internal/logger"
	"cloudscale/internal/metrics"
	"cloudscale/internal/models"
)

// IngestHandler accepts metrics samples over HTTP and queues them for Kafka
type IngestHandler struct {
	// Channel feeding the worker pool
	envelopeChan chan<- *models.Envelope

	// Node identifier stamped on envelopes
	nodeID string

	batchCounter atomic.Uint64

	maxBodySize int64
}

// IngestConfig holds configuration for the ingest handler
type IngestConfig struct {
	EnvelopeChan chan<- *models.Envelope
	NodeID       string
	MaxBodySize  int64
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(cfg IngestConfig) *IngestHandler {
	nodeID := cfg.NodeID
	if nodeID == "" {
		nodeID, _ = os.Hostname()
		if nodeID == "" {
			nodeID = "unknown"
		}
	}

	maxBodySize := cfg.MaxBodySize
	if maxBodySize == 0 {
		maxBodySize = 1 << 20
	}

	return &IngestHandler{
		envelopeChan: cfg.EnvelopeChan,
		nodeID:       nodeID,
		maxBodySize:  maxBodySize,
	}
}

// IngestRequest is the wrapped batch form of the payload
type IngestRequest struct {
	Metrics []json.RawMessage `json:"metrics"`
}

// IngestResponse is the response returned to clients
type IngestResponse struct {
	Success  bool          `json:"success"`
	BatchID  string        `json:"batch_id,omitempty"`
	Accepted int           `json:"accepted"`
	Rejected int           `json:"rejected"`
	Errors   []IngestError `json:"errors,omitempty"`
}

// IngestError describes why the sample at Index was rejected
type IngestError struct {
	Index      int    `json:"index"`
	ResourceID string `json:"resource_id,omitempty"`
	Error      string `json:"error"`
}

// ServeHTTP handles the ingest HTTP request
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType != "application/json" && contentType != "" {
		writeError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	items, err := splitBody(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(items) == 0 {
		writeError(w, http.StatusBadRequest, "no metrics provided")
		return
	}

	metrics.IngestBatchSize.Observe(float64(len(items)))

	batchID := h.generateBatchID()
	response := h.processItems(items, batchID)

	status := http.StatusOK
	if response.Rejected > 0 && response.Accepted == 0 {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, response)
}

// splitBody accepts a single sample, an array of samples, or {"metrics": [...]}.
// Items stay raw so one bad sample does not fail the whole request.
func splitBody(body []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("empty request body")
	}

	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("invalid JSON array: %w", err)
		}
		return items, nil
	}

	var req IngestRequest
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return nil, errors.New("invalid JSON format: expected sample object, array or {\"metrics\": [...]}")
	}
	if req.Metrics != nil {
		return req.Metrics, nil
	}
	return []json.RawMessage{trimmed}, nil
}

// processItems decodes, normalizes and validates each item, then queues accepted ones
func (h *IngestHandler) processItems(items []json.RawMessage, batchID string) IngestResponse {
	log := logger.WithComponent("ingest")
	response := IngestResponse{BatchID: batchID}

	reject := func(i int, resourceID, errorType string, err error) {
		response.Errors = append(response.Errors, IngestError{
			Index:      i,
			ResourceID: resourceID,
			Error:      err.Error(),
		})
		response.Rejected++
		metrics.IngestValidationErrors.WithLabelValues(errorType).Inc()
		metrics.IngestSamplesTotal.WithLabelValues("rejected").Inc()
	}

	for i, raw := range items {
		var m models.Metrics
		if err := json.Unmarshal(raw, &m); err != nil {
			errorType := "decode"
			if errors.Is(err, models.ErrInvalidTimestamp) {
				errorType = "timestamp"
			}
			reject(i, "", errorType, err)
			continue
		}

		m.Normalize()
		if err := m.Validate(); err != nil {
			reject(i, m.ResourceID, validationType(err), err)
			continue
		}

		envelope := models.NewEnvelope(&m, h.nodeID).WithBatch(batchID, i)

		select {
		case h.envelopeChan <- envelope:
			response.Accepted++
			metrics.IngestSamplesTotal.WithLabelValues("accepted").Inc()
		default:
			reject(i, m.ResourceID, "queue_full", errors.New("internal queue full, try again later"))
		}
	}

	metrics.WorkerQueueSize.Set(float64(len(h.envelopeChan)))

	if response.Rejected > 0 {
		log.Warn().
			Str("batch_id", batchID).
			Int("accepted", response.Accepted).
			Int("rejected", response.Rejected).
			Msg("ingest batch partially rejected")
	}

	response.Success = response.Rejected == 0
	return response
}

func validationType(err error) string {
	switch {
	case errors.Is(err, models.ErrEmptyResourceID), errors.Is(err, models.ErrEmptyResourceType):
		return "missing_field"
	case errors.Is(err, models.ErrCPUOutOfRange),
		errors.Is(err, models.ErrMemoryOutOfRange),
		errors.Is(err, models.ErrDiskOutOfRange),
		errors.Is(err, models.ErrNegativeNetwork):
		return "out_of_range"
	case errors.Is(err, models.ErrFutureTimestamp):
		return "timestamp"
	default:
		return "other"
	}
}

func (h *IngestHandler) generateBatchID() string {
	counter := h.batchCounter.Add(1)
	return fmt.Sprintf("%s-%d-%d", h.nodeID, time.Now().UnixNano(), counter)
}
