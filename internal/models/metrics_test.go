package models_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"cloudscale/internal/models"
)

func validMetrics() *models.Metrics {
	return &models.Metrics{
		ResourceID:   "test-server-1",
		ResourceType: "vm",
		CPUUsage:     45.5,
		MemoryUsage:  60.2,
		DiskUsage:    72.8,
		NetworkIn:    1024,
		NetworkOut:   2048,
		Timestamp:    time.Now().Add(-time.Minute),
	}
}

func TestMetricsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(m *models.Metrics)
		wantErr error
	}{
		{"valid", func(m *models.Metrics) {}, nil},
		{"empty resource id", func(m *models.Metrics) { m.ResourceID = "" }, models.ErrEmptyResourceID},
		{"empty resource type", func(m *models.Metrics) { m.ResourceType = "" }, models.ErrEmptyResourceType},
		{"cpu above 100", func(m *models.Metrics) { m.CPUUsage = 100.1 }, models.ErrCPUOutOfRange},
		{"negative memory", func(m *models.Metrics) { m.MemoryUsage = -1 }, models.ErrMemoryOutOfRange},
		{"disk above 100", func(m *models.Metrics) { m.DiskUsage = 101 }, models.ErrDiskOutOfRange},
		{"negative network", func(m *models.Metrics) { m.NetworkOut = -5 }, models.ErrNegativeNetwork},
		{"future timestamp", func(m *models.Metrics) { m.Timestamp = time.Now().Add(time.Hour) }, models.ErrFutureTimestamp},
		{"boundaries", func(m *models.Metrics) { m.CPUUsage, m.DiskUsage = 0, 100 }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validMetrics()
			tt.mutate(m)
			err := m.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestMetricsNormalize(t *testing.T) {
	m := &models.Metrics{
		ResourceID:   "  test-server-1  ",
		ResourceType: "  VM ",
	}

	m.Normalize()

	if m.ResourceID != "test-server-1" {
		t.Errorf("ResourceID not trimmed: got %q", m.ResourceID)
	}
	if m.ResourceType != "vm" {
		t.Errorf("ResourceType not normalized: got %q", m.ResourceType)
	}
	if m.Timestamp.IsZero() {
		t.Error("missing timestamp was not stamped")
	}
}

func TestMetricsSample(t *testing.T) {
	m := validMetrics()
	s := m.Sample()
	if s.CPUUsage != 45.5 || s.MemoryUsage != 60.2 || s.DiskUsage != 72.8 {
		t.Errorf("unexpected sample: %+v", s)
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"RFC3339", "2024-01-15T10:30:00Z", false},
		{"RFC3339Nano", "2024-01-15T10:30:00.123456789Z", false},
		{"naive iso", "2024-01-15T10:30:00", false},
		{"naive iso with micros", "2024-01-15T10:30:00.123456", false},
		{"datetime with space", "2024-01-15 10:30:00", false},
		{"with whitespace", "  2024-01-15T10:30:00Z  ", false},
		{"invalid", "not-a-timestamp", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := models.ParseTimestamp(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseTimestamp(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestMetricsUnmarshalNaiveTimestamp(t *testing.T) {
	body := `{"id":1,"resource_id":"test-server-1","resource_type":"vm","cpu_usage":45.5,
		"memory_usage":60.2,"disk_usage":72.8,"network_in":1024,"network_out":2048,
		"timestamp":"2024-01-15T10:30:00.500000"}`

	var m models.Metrics
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	want := time.Date(2024, 1, 15, 10, 30, 0, 500000000, time.UTC)
	if !m.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", m.Timestamp, want)
	}
	if m.ResourceID != "test-server-1" || m.CPUUsage != 45.5 || m.NetworkOut != 2048 {
		t.Errorf("fields not decoded: %+v", m)
	}
}

func TestMetricsUnmarshalBadTimestamp(t *testing.T) {
	var m models.Metrics
	err := json.Unmarshal([]byte(`{"resource_id":"a","timestamp":"yesterday"}`), &m)
	if !errors.Is(err, models.ErrInvalidTimestamp) {
		t.Errorf("expected ErrInvalidTimestamp, got %v", err)
	}
}

func TestThresholdValidate(t *testing.T) {
	if err := (models.Threshold{Warning: 70, Critical: 90}).Validate(); err != nil {
		t.Errorf("valid threshold rejected: %v", err)
	}
	if err := (models.Threshold{Warning: 90, Critical: 90}).Validate(); err == nil {
		t.Error("warning == critical accepted")
	}
	if err := (models.Threshold{Warning: 50, Critical: 120}).Validate(); err == nil {
		t.Error("critical above 100 accepted")
	}
}

func TestHighestSeverity(t *testing.T) {
	if _, ok := models.HighestSeverity(nil); ok {
		t.Error("empty batch reported a severity")
	}

	sev, ok := models.HighestSeverity([]models.Alert{
		{Severity: models.SeverityWarning},
		{Severity: models.SeverityCritical},
		{Severity: models.SeverityWarning},
	})
	if !ok || sev != models.SeverityCritical {
		t.Errorf("HighestSeverity = %q, %v", sev, ok)
	}
}
