package alerts

import (
	"context"

	"cloudscale/internal/logger"
	"cloudscale/internal/metrics"
	"cloudscale/internal/models"
)

// Player plays the audio cue for a severity. Implementations must not block
// for the length of the cue.
type Player interface {
	Play(ctx context.Context, severity models.Severity) error
}

// Notifier dispatches at most one sound cue per evaluation cycle.
type Notifier struct {
	player Player
}

// NewNotifier wraps a player.
func NewNotifier(player Player) *Notifier {
	return &Notifier{player: player}
}

// Notify plays the cue for severity. Playback errors are logged and dropped.
func (n *Notifier) Notify(ctx context.Context, severity models.Severity) {
	log := logger.WithComponent("notifier")
	metrics.SoundCuesTotal.WithLabelValues(string(severity)).Inc()

	if err := n.player.Play(ctx, severity); err != nil {
		metrics.SoundFailuresTotal.WithLabelValues(string(severity)).Inc()
		log.Warn().
			Err(err).
			Str("severity", string(severity)).
			Msg("error playing alert sound")
	}
}

// NotifyAlerts plays the critical cue if the batch holds a critical alert,
// else the warning cue if it holds a warning. An empty batch is a no-op.
func (n *Notifier) NotifyAlerts(ctx context.Context, batch []models.Alert) (models.Severity, bool) {
	sev, ok := models.HighestSeverity(batch)
	if !ok {
		return "", false
	}
	n.Notify(ctx, sev)
	return sev, true
}
