package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

type countingProcessor struct {
	count   int32
	fail    bool
	block   chan struct{}
	started chan string
}

func (p *countingProcessor) Process(ctx context.Context, item WorkItem) error {
	atomic.AddInt32(&p.count, 1)
	if p.started != nil {
		p.started <- item.Job.ID
	}
	if p.block != nil {
		<-p.block
	}
	if p.fail {
		return errors.New("fail")
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestDispatcher_StartEnqueueShutdown(t *testing.T) {
	d := NewDispatcher(discardLogger(), 2)
	p := &countingProcessor{started: make(chan string, 1)}
	if err := d.Start(context.Background(), p); err != nil {
		t.Fatalf("dispatcher start: %v", err)
	}

	if err := d.Enqueue(WorkItem{Job: Job{ID: "id1"}}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case id := <-p.started:
		if id != "id1" {
			t.Fatalf("processed %q, want id1", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("job was not processed")
	}

	d.Shutdown(2 * time.Second)
	if err := d.Enqueue(WorkItem{Job: Job{ID: "late"}}); !errors.Is(err, ErrDispatcherStopped) {
		t.Fatalf("enqueue after shutdown = %v, want ErrDispatcherStopped", err)
	}
}

func TestDispatcher_EnqueueBeforeStartFails(t *testing.T) {
	d := NewDispatcher(discardLogger(), 1)
	if err := d.Enqueue(WorkItem{Job: Job{ID: "x"}}); !errors.Is(err, ErrDispatcherStopped) {
		t.Fatalf("enqueue before start = %v, want ErrDispatcherStopped", err)
	}
}

func TestDispatcher_StartTwiceFails(t *testing.T) {
	d := NewDispatcher(discardLogger(), 1)
	if err := d.Start(context.Background(), &countingProcessor{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer d.Shutdown(time.Second)
	if err := d.Start(context.Background(), &countingProcessor{}); err == nil {
		t.Fatalf("second start should error")
	}
}

func TestDispatcher_FullPoolRejects(t *testing.T) {
	d := NewDispatcher(discardLogger(), 1)
	p := &countingProcessor{block: make(chan struct{}), started: make(chan string, 1)}
	if err := d.Start(context.Background(), p); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer d.Shutdown(2 * time.Second)

	if err := d.Enqueue(WorkItem{Job: Job{ID: "busy"}}); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	<-p.started

	if err := d.Enqueue(WorkItem{Job: Job{ID: "overflow"}}); !errors.Is(err, ErrDispatcherFull) {
		t.Fatalf("enqueue on full pool = %v, want ErrDispatcherFull", err)
	}
	if d.Running() != 1 {
		t.Fatalf("running = %d, want 1", d.Running())
	}
	close(p.block)
}

func TestDispatcher_JobsSurviveParentCancellation(t *testing.T) {
	d := NewDispatcher(discardLogger(), 1)
	parent, cancel := context.WithCancel(context.Background())
	seen := make(chan error, 1)
	p := processorFunc(func(ctx context.Context, item WorkItem) error {
		cancel()
		seen <- ctx.Err()
		return nil
	})
	if err := d.Start(parent, p); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer d.Shutdown(time.Second)

	if err := d.Enqueue(WorkItem{Job: Job{ID: "detached"}}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	select {
	case err := <-seen:
		if err != nil {
			t.Fatalf("job context cancelled with parent: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("job was not processed")
	}
}

type processorFunc func(ctx context.Context, item WorkItem) error

func (f processorFunc) Process(ctx context.Context, item WorkItem) error { return f(ctx, item) }
