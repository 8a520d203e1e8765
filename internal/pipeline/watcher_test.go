package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type countingTicker struct {
	ticks    atomic.Int64
	panicOn  int64 // tick number that panics, 0 for never
	tickedCh chan struct{}
}

func (c *countingTicker) RunTick(context.Context) (TickStats, error) {
	n := c.ticks.Add(1)
	if c.tickedCh != nil {
		select {
		case c.tickedCh <- struct{}{}:
		default:
		}
	}
	if c.panicOn != 0 && n == c.panicOn {
		panic("tick exploded")
	}
	return TickStats{}, nil
}

func TestWatcher_Validation(t *testing.T) {
	logger := zaptest.NewLogger(t)
	_, err := NewWatcher(nil, time.Second, logger)
	assert.Error(t, err)
	_, err = NewWatcher(&countingTicker{}, 0, logger)
	assert.Error(t, err)
}

func TestWatcher_RunsImmediatelyAndOnInterval(t *testing.T) {
	ticker := &countingTicker{tickedCh: make(chan struct{}, 8)}
	w, err := NewWatcher(ticker, 10*time.Millisecond, zaptest.NewLogger(t))
	require.NoError(t, err)

	w.Start(context.Background())
	defer w.Stop()

	// First tick fires without waiting for the interval.
	select {
	case <-ticker.tickedCh:
	case <-time.After(time.Second):
		t.Fatal("no immediate tick")
	}
	// And at least one more on the interval.
	select {
	case <-ticker.tickedCh:
	case <-time.After(time.Second):
		t.Fatal("no interval tick")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	ticker := &countingTicker{}
	w, err := NewWatcher(ticker, time.Hour, zaptest.NewLogger(t))
	require.NoError(t, err)

	w.Start(context.Background())
	w.Start(context.Background()) // no-op
	w.Stop()
	w.Stop() // no-op

	assert.Equal(t, int64(1), ticker.ticks.Load(), "only the immediate tick ran")
}

func TestWatcher_SurvivesPanic(t *testing.T) {
	ticker := &countingTicker{panicOn: 1, tickedCh: make(chan struct{}, 8)}
	w, err := NewWatcher(ticker, 10*time.Millisecond, zaptest.NewLogger(t))
	require.NoError(t, err)

	w.Start(context.Background())
	defer w.Stop()

	// The first tick panics; the loop must keep scheduling.
	for i := 0; i < 2; i++ {
		select {
		case <-ticker.tickedCh:
		case <-time.After(time.Second):
			t.Fatal("watcher died after panic")
		}
	}
}

func TestWatcher_ContextCancelStopsLoop(t *testing.T) {
	ticker := &countingTicker{}
	w, err := NewWatcher(ticker, 10*time.Millisecond, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	cancel()

	// Stop must return promptly once the context is gone.
	done := make(chan struct{})
	go func() { w.Stop(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked after context cancel")
	}
}
