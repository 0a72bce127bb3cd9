// Package jobs hosts the two periodic background jobs: intake
// (fetch + classify inbound mail) and dispatch (deliver due
// responses). Each job runs on its own timer, one cycle at a time;
// the two jobs are concurrent with respect to each other.
package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status is the introspection surface of one job.
type Status struct {
	IsRunning bool       `json:"isRunning"`
	IsStarted bool       `json:"isStarted"`
	LastRun   *time.Time `json:"lastRun,omitempty"`
	LastError string     `json:"lastError,omitempty"`
}

// Runner drives one job function on a ticker. Cycles never overlap: a
// tick or manual trigger that arrives mid-cycle is a no-op.
type Runner struct {
	name     string
	interval time.Duration
	cycle    func(ctx context.Context) error
	log      *zap.Logger

	mu      sync.Mutex
	running bool
	started bool
	lastRun *time.Time
	lastErr error

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewRunner(name string, interval time.Duration, cycle func(ctx context.Context) error, log *zap.Logger) *Runner {
	return &Runner{
		name:     name,
		interval: interval,
		cycle:    cycle,
		log:      log,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the timer goroutine. The first cycle runs
// immediately.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	go func() {
		defer close(r.done)

		r.log.Info("job started",
			zap.String("job", r.name),
			zap.Duration("interval", r.interval),
		)

		r.runCycle(ctx)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				r.log.Info("job stopped", zap.String("job", r.name))
				return
			case <-r.stop:
				r.log.Info("job stopped", zap.String("job", r.name))
				return
			case <-ticker.C:
				r.runCycle(ctx)
			}
		}
	}()
}

// Stop halts the timer and waits for an in-flight cycle to finish, so
// shutdown never abandons a half-run cycle.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
}

// Trigger runs one cycle now. If a cycle is already in flight the
// trigger is a no-op; it never starts an overlapping cycle.
func (r *Runner) Trigger(ctx context.Context) error {
	return r.runCycle(ctx)
}

func (r *Runner) runCycle(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = true
	r.mu.Unlock()

	err := r.cycle(ctx)

	now := time.Now()
	r.mu.Lock()
	r.running = false
	r.lastRun = &now
	r.lastErr = err
	r.mu.Unlock()

	if err != nil {
		r.log.Error("job cycle failed",
			zap.String("job", r.name),
			zap.Error(err),
		)
	}
	return err
}

func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Status{
		IsRunning: r.running,
		IsStarted: r.started,
		LastRun:   r.lastRun,
	}
	if r.lastErr != nil {
		st.LastError = r.lastErr.Error()
	}
	return st
}
