package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Ticker runs one pipeline pass.
type Ticker interface {
	RunTick(ctx context.Context) (TickStats, error)
}

var _ Ticker = (*Orchestrator)(nil)

// Watcher runs ticks on a fixed interval until stopped. A tick runs
// immediately on Start; tick errors and panics are logged and the loop
// keeps going.
type Watcher struct {
	interval time.Duration
	ticker   Ticker
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher creates a watcher. interval must be positive.
func NewWatcher(ticker Ticker, interval time.Duration, logger *zap.Logger) (*Watcher, error) {
	if ticker == nil {
		return nil, fmt.Errorf("ticker cannot be nil")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", interval)
	}
	return &Watcher{interval: interval, ticker: ticker, logger: logger}, nil
}

// Start launches the background loop. Idempotent: starting a running
// watcher is a no-op.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	go w.loop(ctx, w.stopCh, w.doneCh)
	w.logger.Info("watcher started", zap.Duration("interval", w.interval))
}

// Stop signals the loop and waits for the in-flight tick to finish.
// Idempotent.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	done := w.doneCh
	w.mu.Unlock()

	<-done
	w.logger.Info("watcher stopped")
}

func (w *Watcher) loop(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	w.runOnce(ctx)
	t := time.NewTicker(w.interval)
	defer t.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-t.C:
			w.runOnce(ctx)
		}
	}
}

// runOnce isolates one tick: a panic or error in the pipeline must not
// take down the loop.
func (w *Watcher) runOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("tick panicked", zap.Any("panic", r))
		}
	}()

	if _, err := w.ticker.RunTick(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		w.logger.Error("tick failed", zap.Error(err))
	}
}
