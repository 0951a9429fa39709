package load

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"
)

// spinBatch is the number of compute steps between cancellation checks
const spinBatch = 4096

// sink keeps the compiler from discarding the busy loop
var sink atomic.Uint64

// RunFunc is the body of a worker. It returns true when the configured
// interval elapsed and false when ctx was cancelled first.
type RunFunc func(ctx context.Context, cfg LoadConfig) bool

// Worker is the handle of one running load worker
type Worker struct {
	id      int
	cfg     LoadConfig
	cancel  context.CancelFunc
	done    chan struct{}
	expired atomic.Bool
	started time.Time
}

// StartWorker launches run in its own goroutine. onExit, if set, is called
// after the worker has terminated and Done is closed.
func StartWorker(id int, cfg LoadConfig, run RunFunc, onExit func(*Worker)) *Worker {
	if run == nil {
		run = DutyCycle
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		id:      id,
		cfg:     cfg,
		cancel:  cancel,
		done:    make(chan struct{}),
		started: time.Now(),
	}

	go func() {
		defer cancel()
		w.expired.Store(run(ctx, cfg))
		close(w.done)
		if onExit != nil {
			onExit(w)
		}
	}()

	return w
}

// ID returns the worker id
func (w *Worker) ID() int {
	return w.id
}

// Config returns the configuration the worker runs with
func (w *Worker) Config() LoadConfig {
	return w.cfg
}

// Stop signals cancellation without waiting
func (w *Worker) Stop() {
	w.cancel()
}

// Done is closed once the worker has terminated
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Expired reports whether the worker ran its full interval.
// Only meaningful after Done is closed.
func (w *Worker) Expired() bool {
	return w.expired.Load()
}

// Wait blocks until the worker terminates or timeout passes
func (w *Worker) Wait(timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-w.done:
		return nil
	case <-timer.C:
		return ErrTerminationTimeout
	}
}

// DutyCycle burns CPU for cfg.UtilizationPercent of every Window until
// cfg.Interval has elapsed or ctx is cancelled. The goroutine is pinned to
// its OS thread for the whole run.
func DutyCycle(ctx context.Context, cfg LoadConfig) bool {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	deadline := time.Now().Add(cfg.Interval())
	busy := cfg.BusyPerWindow()

	for {
		start := time.Now()
		if !start.Before(deadline) {
			return true
		}

		windowEnd := start.Add(Window)
		if windowEnd.After(deadline) {
			windowEnd = deadline
		}
		busyEnd := start.Add(busy)
		if busyEnd.After(windowEnd) {
			busyEnd = windowEnd
		}

		if !spin(ctx, busyEnd) {
			return false
		}

		idle := time.Until(windowEnd)
		if idle <= 0 {
			if ctx.Err() != nil {
				return false
			}
			continue
		}

		timer := time.NewTimer(idle)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
}

// spin computes until the given time, checking ctx every batch
func spin(ctx context.Context, until time.Time) bool {
	x := sink.Load() | 1
	defer func() { sink.Store(x) }()

	for time.Now().Before(until) {
		for i := 0; i < spinBatch; i++ {
			x = x*6364136223846793005 + 1442695040888963407
		}
		select {
		case <-ctx.Done():
			return false
		default:
		}
	}
	return true
}
