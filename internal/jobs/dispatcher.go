package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/jo-hoe/videogreeter/internal/common"
)

var (
	// ErrDispatcherFull is returned when every pool slot is busy.
	ErrDispatcherFull = errors.New("dispatcher at capacity")
	// ErrDispatcherStopped is returned when enqueueing before Start or after Shutdown.
	ErrDispatcherStopped = errors.New("dispatcher not running")
)

// WorkItem carries a copy of the job to drive.
type WorkItem struct {
	Job Job
}

// Processor drives one job to a terminal status.
type Processor interface {
	Process(ctx context.Context, item WorkItem) error
}

// Dispatcher runs each job on its own pooled goroutine, detached from the
// request that created it.
type Dispatcher struct {
	log    *slog.Logger
	size   int
	mu     sync.Mutex
	pool   *ants.Pool
	proc   Processor
	ctx    context.Context
	cancel context.CancelFunc
}

// NewDispatcher creates a Dispatcher running at most size jobs at once.
func NewDispatcher(logger *slog.Logger, size int) *Dispatcher {
	if size <= 0 {
		size = common.DefaultPoolSize
	}
	return &Dispatcher{log: logger, size: size}
}

// Start creates the goroutine pool. Jobs inherit ctx values but not its
// cancellation; they are only cancelled when Shutdown's grace period expires.
func (d *Dispatcher) Start(ctx context.Context, p Processor) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pool != nil {
		return errors.New("dispatcher already started")
	}
	pool, err := ants.NewPool(d.size,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(v any) {
			d.log.Error("panic while processing job", "panic", v)
		}),
	)
	if err != nil {
		return fmt.Errorf("create worker pool: %w", err)
	}
	d.pool = pool
	d.proc = p
	d.ctx, d.cancel = context.WithCancel(context.WithoutCancel(ctx))
	return nil
}

// Enqueue schedules the job without blocking.
func (d *Dispatcher) Enqueue(item WorkItem) error {
	d.mu.Lock()
	pool := d.pool
	d.mu.Unlock()
	if pool == nil {
		return ErrDispatcherStopped
	}
	err := pool.Submit(func() { d.run(item) })
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ants.ErrPoolOverload):
		return ErrDispatcherFull
	case errors.Is(err, ants.ErrPoolClosed):
		return ErrDispatcherStopped
	default:
		return fmt.Errorf("submit job: %w", err)
	}
}

func (d *Dispatcher) run(item WorkItem) {
	jobLog := d.log.With("job_id", item.Job.ID)
	jobLog.Info("processing job", "status", item.Job.Status)
	start := time.Now()
	if err := d.proc.Process(d.ctx, item); err != nil {
		jobLog.Error("job processing failed", "err", err, "duration", time.Since(start))
		return
	}
	jobLog.Info("job processed", "duration", time.Since(start))
}

// Running reports the number of jobs currently being driven.
func (d *Dispatcher) Running() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pool == nil {
		return 0
	}
	return d.pool.Running()
}

// Shutdown stops accepting work and waits up to grace for running jobs.
// Jobs still running afterwards have their context cancelled.
func (d *Dispatcher) Shutdown(grace time.Duration) {
	d.mu.Lock()
	pool := d.pool
	d.pool = nil
	d.mu.Unlock()
	if pool == nil {
		return
	}
	if grace <= 0 {
		grace = time.Nanosecond
	}
	if err := pool.ReleaseTimeout(grace); err != nil {
		d.log.Warn("dispatcher shutdown deadline reached; cancelling running jobs", "running", pool.Running())
	}
	d.cancel()
}
