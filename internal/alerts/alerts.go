// Package alerts derives threshold alerts from metrics samples and keeps
// the bounded alert history shown on the dashboard.
package alerts

import (
	"fmt"

	"cloudscale/internal/models"
)

// Thresholds maps each monitored dimension to its warning/critical boundaries.
// Dimensions without an entry are never evaluated.
type Thresholds map[models.AlertType]models.Threshold

// DefaultThresholds returns the stock thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		models.AlertCPU:    {Warning: 70, Critical: 90},
		models.AlertMemory: {Warning: 80, Critical: 90},
		models.AlertDisk:   {Warning: 85, Critical: 95},
	}
}

// Validate checks every configured dimension.
func (t Thresholds) Validate() error {
	for typ, th := range t {
		switch typ {
		case models.AlertCPU, models.AlertMemory, models.AlertDisk:
		default:
			return fmt.Errorf("no threshold check exists for %q", typ)
		}
		if err := th.Validate(); err != nil {
			return fmt.Errorf("%s: %w", typ, err)
		}
	}
	return nil
}

// rule is the fixed wording for one dimension.
type rule struct {
	typ             models.AlertType
	criticalMessage string
	warningMessage  string
	value           func(models.MetricsSample) float64
}

// rules are evaluated in this order.
var rules = []rule{
	{
		typ:             models.AlertCPU,
		criticalMessage: "Critical CPU usage detected",
		warningMessage:  "High CPU usage detected",
		value:           func(s models.MetricsSample) float64 { return s.CPUUsage },
	},
	{
		typ:             models.AlertMemory,
		criticalMessage: "Critical memory usage detected",
		warningMessage:  "High memory usage detected",
		value:           func(s models.MetricsSample) float64 { return s.MemoryUsage },
	},
	{
		typ:             models.AlertDisk,
		criticalMessage: "Critical disk usage detected",
		warningMessage:  "High disk usage detected",
		value:           func(s models.MetricsSample) float64 { return s.DiskUsage },
	},
}
