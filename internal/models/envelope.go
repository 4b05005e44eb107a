package models

import (
	"time"
)

// Envelope wraps a Metrics record with ingest metadata for the Kafka topic
type Envelope struct {
	Metrics *Metrics `json:"metrics"`

	// Internal processing metadata
	ReceivedAt   time.Time `json:"received_at"`
	IngestNode   string    `json:"ingest_node"`
	BatchID      string    `json:"batch_id,omitempty"`
	BatchIndex   int       `json:"batch_index,omitempty"`
	PartitionKey string    `json:"partition_key"`
}

// NewEnvelope creates a new envelope wrapping a metrics record
func NewEnvelope(m *Metrics, ingestNode string) *Envelope {
	return &Envelope{
		Metrics:      m,
		ReceivedAt:   time.Now().UTC(),
		IngestNode:   ingestNode,
		PartitionKey: m.ResourceID, // per-resource ordering
	}
}

// WithBatch sets batch metadata on the envelope
func (e *Envelope) WithBatch(batchID string, index int) *Envelope {
	e.BatchID = batchID
	e.BatchIndex = index
	return e
}
