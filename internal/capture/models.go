package capture

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/veritime/attendance-service/internal/config"
	"github.com/veritime/attendance-service/internal/util/logger"
)

var ErrModelLoadTimeout = errors.New("biometric model load timed out")

// ModelState tracks biometric model readiness.
type ModelState int

const (
	ModelLoading ModelState = iota
	ModelReady
	ModelFailed
)

func (s ModelState) String() string {
	switch s {
	case ModelReady:
		return "READY"
	case ModelFailed:
		return "FAILED"
	default:
		return "LOADING"
	}
}

// ModelSource is the loadable model backing the embedder. Ready is a cheap
// synchronous check; Load blocks until the model is usable or ctx ends.
type ModelSource interface {
	Ready() bool
	Load(ctx context.Context) error
}

// Loader drives a ModelSource to readiness: synchronous check first, then an
// async load raced against a timeout, then bounded polling. The timing
// values come from config so tests control them.
type Loader struct {
	src ModelSource
	cfg config.CaptureConfig

	mu    sync.Mutex
	state ModelState
}

func NewLoader(src ModelSource, cfg config.CaptureConfig) *Loader {
	return &Loader{src: src, cfg: cfg, state: ModelLoading}
}

// State returns the current readiness state.
func (l *Loader) State() ModelState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Ensure brings the model to Ready or reports why it cannot. A timed-out
// load falls back to polling readiness for cfg.ModelPollAttempts before
// giving up with ErrModelLoadTimeout.
func (l *Loader) Ensure(ctx context.Context) error {
	if l.src.Ready() {
		l.setState(ModelReady)
		return nil
	}
	l.setState(ModelLoading)

	loadCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- l.src.Load(loadCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			l.setState(ModelFailed)
			return err
		}
		l.setState(ModelReady)
		return nil
	case <-ctx.Done():
		l.setState(ModelFailed)
		return ctx.Err()
	case <-time.After(l.cfg.ModelLoadTimeout):
		logger.Warnf("model load exceeded %s, falling back to polling", l.cfg.ModelLoadTimeout)
	}

	for attempt := 0; attempt < l.cfg.ModelPollAttempts; attempt++ {
		if l.src.Ready() {
			l.setState(ModelReady)
			return nil
		}
		select {
		case err := <-done:
			if err == nil && l.src.Ready() {
				l.setState(ModelReady)
				return nil
			}
		case <-ctx.Done():
			l.setState(ModelFailed)
			return ctx.Err()
		case <-time.After(l.cfg.ModelPollInterval):
		}
	}

	l.setState(ModelFailed)
	return ErrModelLoadTimeout
}

func (l *Loader) setState(s ModelState) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}
