package pipeline

import (
	"context"
	"sync"
	"time"

	"pictor/internal/model"
)

// Dispatcher schedules one asynchronous task per created job. Tasks
// for different jobs run independently with no ordering guarantee; a
// semaphore bounds how many run at once.
type Dispatcher struct {
	exec    *Executor
	baseCtx context.Context
	sem     chan struct{}
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher running tasks under ctx.
// maxConcurrent defaults to 4 when non-positive; timeout zero disables
// the per-job deadline.
func NewDispatcher(ctx context.Context, exec *Executor, maxConcurrent int, timeout time.Duration) *Dispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Dispatcher{
		exec:    exec,
		baseCtx: ctx,
		sem:     make(chan struct{}, maxConcurrent),
		timeout: timeout,
	}
}

// Dispatch schedules the pipeline task for a freshly created job and
// returns immediately.
func (d *Dispatcher) Dispatch(rec model.JobRecord) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		d.sem <- struct{}{}
		defer func() { <-d.sem }()

		ctx := d.baseCtx
		if d.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d.timeout)
			defer cancel()
		}
		d.exec.Process(ctx, rec)
	}()
}

// Wait blocks until all dispatched tasks have finished. Used for
// graceful shutdown and by tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
