package poller

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Action is the unit of work invoked on every tick.
// Params: none.
// Returns: none; implementations must not block indefinitely.
type Action interface {
	Invoke()
}

// ActionFunc adapts a plain function to Action.
type ActionFunc func()

// Invoke calls f.
func (f ActionFunc) Invoke() {
	f()
}

// Poller runs one action on a fixed interval in a dedicated goroutine.
// Params: interval, action and logger captured at Start.
// Returns: handle used to stop the worker.
type Poller struct {
	interval time.Duration
	logger   *slog.Logger

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Start spawns the worker; the first invocation happens immediately.
// Params: interval wait between invocations (> 0); action work unit; logger for panic reports (nil discards).
// Returns: running poller.
func Start(interval time.Duration, action Action, logger *slog.Logger) *Poller {
	if interval <= 0 {
		panic(fmt.Sprintf("poller: non-positive interval %s", interval))
	}
	if action == nil {
		panic("poller: nil action")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	p := &Poller{
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go p.loop(action)
	return p
}

// loop alternates between running the action and waiting for stop or the next tick.
// Params: action work unit.
// Returns: none; closes done on exit, including exit by action panic.
func (p *Poller) loop(action Action) {
	defer close(p.done)
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("poller action panicked, worker stopped", slog.String("panic", fmt.Sprint(r)))
		}
	}()

	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		action.Invoke()

		timer.Reset(p.interval)
		select {
		case <-p.stop:
			return
		case <-timer.C:
		}
	}
}

// Stop signals the worker and waits for it to exit.
// Params: none.
// Returns: none; idempotent, returns immediately when the worker is already gone.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.stop)
	})
	<-p.done
}

// Done is closed once the worker goroutine has exited.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

// Run blocks until ctx is cancelled or the worker dies, then stops the poller.
// Params: ctx lifecycle context.
// Returns: nil on cancellation; error when the worker exited on its own.
func (p *Poller) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		p.Stop()
		return nil
	case <-p.done:
		return fmt.Errorf("poller worker exited unexpectedly")
	}
}
