package alerts

import (
	"time"

	"cloudscale/internal/models"
)

// Evaluator compares samples against static thresholds.
type Evaluator struct {
	thresholds Thresholds
	ids        IDGenerator
	now        func() time.Time
}

// EvaluatorOption configures an Evaluator
type EvaluatorOption func(*Evaluator)

// WithClock overrides the wall clock used for alert timestamps.
func WithClock(now func() time.Time) EvaluatorOption {
	return func(e *Evaluator) { e.now = now }
}

// WithIDGenerator overrides the default counter ids.
func WithIDGenerator(ids IDGenerator) EvaluatorOption {
	return func(e *Evaluator) { e.ids = ids }
}

// NewEvaluator creates an evaluator. A nil thresholds map means DefaultThresholds.
func NewEvaluator(thresholds Thresholds, opts ...EvaluatorOption) *Evaluator {
	if thresholds == nil {
		thresholds = DefaultThresholds()
	}
	e := &Evaluator{
		thresholds: thresholds,
		ids:        NewCounterIDs(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate returns the alerts a sample fires: at most one per dimension,
// critical taking precedence over warning. All alerts share one timestamp.
// Input values are not validated.
func (e *Evaluator) Evaluate(sample models.MetricsSample) []models.Alert {
	var fired []models.Alert
	now := e.now()

	for _, r := range rules {
		th, ok := e.thresholds[r.typ]
		if !ok {
			continue
		}
		v := r.value(sample)

		switch {
		case v >= th.Critical:
			fired = append(fired, e.newAlert(r.typ, models.SeverityCritical, r.criticalMessage, v, th.Critical, now))
		case v >= th.Warning:
			fired = append(fired, e.newAlert(r.typ, models.SeverityWarning, r.warningMessage, v, th.Warning, now))
		}
	}

	return fired
}

func (e *Evaluator) newAlert(typ models.AlertType, sev models.Severity, msg string, value, threshold float64, at time.Time) models.Alert {
	return models.Alert{
		ID:        e.ids.NextID(),
		Type:      typ,
		Severity:  sev,
		Message:   msg,
		Value:     value,
		Threshold: threshold,
		Timestamp: at,
	}
}
