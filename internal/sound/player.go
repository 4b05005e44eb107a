// Package sound provides the players behind the alert sound cue.
package sound

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"cloudscale/internal/alerts"
	"cloudscale/internal/logger"
	"cloudscale/internal/models"
)

// ErrUnknownSeverity is returned for severities without a cue.
var ErrUnknownSeverity = errors.New("no sound cue for severity")

// Starter launches an external command without waiting for it to finish.
type Starter interface {
	Start(ctx context.Context, name string, args ...string) (wait func() error, err error)
}

type execStarter struct{}

func (execStarter) Start(ctx context.Context, name string, args ...string) (func() error, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, fmt.Errorf("command %s not found", name)
	}
	cmd := exec.CommandContext(ctx, name, args...)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd.Wait, nil
}

// CommandPlayer plays cue files through an external audio command such as paplay or afplay.
type CommandPlayer struct {
	command string
	files   map[models.Severity]string
	starter Starter
}

// NewCommandPlayer creates a player running `command <file>` per severity.
func NewCommandPlayer(command, warningFile, criticalFile string) *CommandPlayer {
	return &CommandPlayer{
		command: command,
		files: map[models.Severity]string{
			models.SeverityWarning:  warningFile,
			models.SeverityCritical: criticalFile,
		},
		starter: execStarter{},
	}
}

// WithStarter swaps the process launcher.
func (p *CommandPlayer) WithStarter(s Starter) *CommandPlayer {
	p.starter = s
	return p
}

// Play starts the cue and returns once the process is launched. The process is
// detached from ctx so that cancelling the cycle does not cut the cue short.
func (p *CommandPlayer) Play(ctx context.Context, severity models.Severity) error {
	file, ok := p.files[severity]
	if !ok || file == "" {
		return fmt.Errorf("%w: %q", ErrUnknownSeverity, severity)
	}

	wait, err := p.starter.Start(context.WithoutCancel(ctx), p.command, file)
	if err != nil {
		return fmt.Errorf("start %s: %w", p.command, err)
	}

	go func() {
		if err := wait(); err != nil {
			log := logger.WithComponent("sound")
			log.Warn().Err(err).Str("file", file).Msg("sound command exited with error")
		}
	}()
	return nil
}

// LogPlayer writes the cue to the log instead of playing audio.
type LogPlayer struct{}

func (LogPlayer) Play(ctx context.Context, severity models.Severity) error {
	if !severity.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownSeverity, severity)
	}
	log := logger.WithComponent("sound")
	log.Info().Str("severity", string(severity)).Msg("alert sound cue")
	return nil
}

// NopPlayer discards cues.
type NopPlayer struct{}

func (NopPlayer) Play(context.Context, models.Severity) error { return nil }

// New builds the player named by kind: command, log or none.
func New(kind, command, warningFile, criticalFile string) (alerts.Player, error) {
	switch kind {
	case "command":
		return NewCommandPlayer(command, warningFile, criticalFile), nil
	case "log", "":
		return LogPlayer{}, nil
	case "none":
		return NopPlayer{}, nil
	default:
		return nil, fmt.Errorf("unknown sound player %q", kind)
	}
}
