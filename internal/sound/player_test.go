package sound

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudscale/internal/models"
)

type fakeStarter struct {
	mu    sync.Mutex
	calls [][]string
	err   error
	done  chan struct{}
}

func (f *fakeStarter) Start(ctx context.Context, name string, args ...string) (func() error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.err != nil {
		return nil, f.err
	}
	return func() error {
		close(f.done)
		return nil
	}, nil
}

func TestCommandPlayerPicksFilePerSeverity(t *testing.T) {
	starter := &fakeStarter{done: make(chan struct{})}
	p := NewCommandPlayer("paplay", "/w.wav", "/c.wav").WithStarter(starter)

	require.NoError(t, p.Play(context.Background(), models.SeverityCritical))
	<-starter.done

	assert.Equal(t, [][]string{{"paplay", "/c.wav"}}, starter.calls)
}

func TestCommandPlayerStartFailure(t *testing.T) {
	starter := &fakeStarter{err: errors.New("no audio device")}
	p := NewCommandPlayer("paplay", "/w.wav", "/c.wav").WithStarter(starter)

	err := p.Play(context.Background(), models.SeverityWarning)
	assert.ErrorContains(t, err, "no audio device")
}

func TestCommandPlayerUnknownSeverity(t *testing.T) {
	p := NewCommandPlayer("paplay", "/w.wav", "/c.wav").WithStarter(&fakeStarter{})
	err := p.Play(context.Background(), models.Severity("info"))
	assert.ErrorIs(t, err, ErrUnknownSeverity)
}

func TestLogPlayer(t *testing.T) {
	assert.NoError(t, LogPlayer{}.Play(context.Background(), models.SeverityWarning))
	assert.ErrorIs(t, LogPlayer{}.Play(context.Background(), "loud"), ErrUnknownSeverity)
}

func TestNew(t *testing.T) {
	p, err := New("none", "", "", "")
	require.NoError(t, err)
	assert.IsType(t, NopPlayer{}, p)

	p, err = New("command", "afplay", "/w", "/c")
	require.NoError(t, err)
	assert.IsType(t, &CommandPlayer{}, p)

	_, err = New("speaker", "", "", "")
	assert.Error(t, err)
}
