package models

import (
	"errors"
	"strings"
	"time"
)

// MetricsSample holds the percentage readings the alert thresholds apply to.
type MetricsSample struct {
	CPUUsage    float64 `json:"cpu_usage"`
	MemoryUsage float64 `json:"memory_usage"`
	DiskUsage   float64 `json:"disk_usage"`
}

// Metrics is one resource-utilization record as served by the monitoring API.
type Metrics struct {
	ID           int64   `json:"id"`
	ResourceID   string  `json:"resource_id"`
	ResourceType string  `json:"resource_type"`
	CPUUsage     float64 `json:"cpu_usage"`
	MemoryUsage  float64 `json:"memory_usage"`
	DiskUsage    float64 `json:"disk_usage"`

	// Network rates in bytes per second
	NetworkIn  float64 `json:"network_in"`
	NetworkOut float64 `json:"network_out"`

	Timestamp time.Time `json:"timestamp"`
}

// Validation errors
var (
	ErrEmptyResourceID   = errors.New("resource ID cannot be empty")
	ErrEmptyResourceType = errors.New("resource type cannot be empty")
	ErrCPUOutOfRange     = errors.New("cpu_usage must be between 0 and 100")
	ErrMemoryOutOfRange  = errors.New("memory_usage must be between 0 and 100")
	ErrDiskOutOfRange    = errors.New("disk_usage must be between 0 and 100")
	ErrNegativeNetwork   = errors.New("network rates cannot be negative")
	ErrFutureTimestamp   = errors.New("timestamp cannot be in the future")
	ErrInvalidTimestamp  = errors.New("invalid timestamp format")
)

// Sample projects the record onto the fields the evaluator reads.
func (m *Metrics) Sample() MetricsSample {
	return MetricsSample{
		CPUUsage:    m.CPUUsage,
		MemoryUsage: m.MemoryUsage,
		DiskUsage:   m.DiskUsage,
	}
}

// Validate checks the record against the monitoring API contract.
func (m *Metrics) Validate() error {
	if m.ResourceID == "" {
		return ErrEmptyResourceID
	}

	if m.ResourceType == "" {
		return ErrEmptyResourceType
	}

	if !isPercent(m.CPUUsage) {
		return ErrCPUOutOfRange
	}

	if !isPercent(m.MemoryUsage) {
		return ErrMemoryOutOfRange
	}

	if !isPercent(m.DiskUsage) {
		return ErrDiskOutOfRange
	}

	if m.NetworkIn < 0 || m.NetworkOut < 0 {
		return ErrNegativeNetwork
	}

	if m.Timestamp.After(time.Now().Add(time.Minute)) {
		return ErrFutureTimestamp
	}

	return nil
}

// Normalize trims identifiers, lower-cases the resource type and
// stamps a missing timestamp with the current time.
func (m *Metrics) Normalize() {
	m.ResourceID = strings.TrimSpace(m.ResourceID)
	m.ResourceType = strings.ToLower(strings.TrimSpace(m.ResourceType))

	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	} else {
		m.Timestamp = m.Timestamp.UTC()
	}
}

func isPercent(v float64) bool {
	return v >= 0 && v <= 100
}
