package models

import (
	"fmt"
	"time"
)

// AlertType names the monitored dimension an alert is about.
type AlertType string

const (
	AlertCPU     AlertType = "cpu"
	AlertMemory  AlertType = "memory"
	AlertDisk    AlertType = "disk"
	AlertNetwork AlertType = "network"
)

// Severity of a threshold breach
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// IsValid reports whether s is a known severity.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityWarning, SeverityCritical:
		return true
	default:
		return false
	}
}

// Rank orders severities; higher is more severe. Unknown severities rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// Threshold holds the warning and critical boundaries of one dimension, in percent.
type Threshold struct {
	Warning  float64 `json:"warning" yaml:"warning"`
	Critical float64 `json:"critical" yaml:"critical"`
}

// Validate checks 0 <= warning < critical <= 100.
func (t Threshold) Validate() error {
	if t.Warning < 0 || t.Critical > 100 {
		return fmt.Errorf("threshold %v/%v outside [0,100]", t.Warning, t.Critical)
	}
	if t.Warning >= t.Critical {
		return fmt.Errorf("warning threshold %v must be below critical threshold %v", t.Warning, t.Critical)
	}
	return nil
}

// Alert records one threshold breach at one evaluation instant.
type Alert struct {
	ID           string    `json:"id"`
	Type         AlertType `json:"type"`
	Severity     Severity  `json:"severity"`
	Message      string    `json:"message"`
	Value        float64   `json:"value"`
	Threshold    float64   `json:"threshold"`
	Timestamp    time.Time `json:"timestamp"`
	Acknowledged bool      `json:"acknowledged"`
}

// HighestSeverity returns the most severe severity among alerts, or false when empty.
func HighestSeverity(alerts []Alert) (Severity, bool) {
	var best Severity
	for _, a := range alerts {
		if a.Severity.Rank() > best.Rank() {
			best = a.Severity
		}
	}
	return best, best != ""
}
