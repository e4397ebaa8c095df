package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/platinummonkey/subscriptions/pkg/observability"
)

// ErrPoolClosed is returned when submitting to a pool that is no longer accepting work
var ErrPoolClosed = errors.New("worker pool closed")

// SafeGo executes fn in a goroutine with a timeout, panic recovery and error logging.
// Use this instead of a bare go statement for fire-and-forget work.
// A timeout of zero runs fn until parentCtx is done.
func SafeGo(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		var ctx context.Context
		var cancel context.CancelFunc
		if timeout > 0 {
			ctx, cancel = context.WithTimeout(parentCtx, timeout)
		} else {
			ctx, cancel = context.WithCancel(parentCtx)
		}
		defer cancel()

		if err := runRecovered(ctx, fn); err != nil {
			logger.WithField("task", taskName).WithError(err).Error("background task failed")
		}
	}()
}

// runRecovered converts a panic in fn into an error carrying the stack
func runRecovered(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = observability.PanicError(r)
		}
	}()
	return fn(ctx)
}

// WorkerPool runs submitted tasks on a fixed number of workers
type WorkerPool struct {
	taskName string
	timeout  time.Duration
	logger   *observability.Logger

	ctx    context.Context
	cancel context.CancelFunc
	workCh chan func(context.Context) error
	wg     sync.WaitGroup

	// sendMu guards closing workCh against concurrent sends
	sendMu sync.RWMutex
	closed bool

	errMu sync.Mutex
	errs  []error
}

// NewWorkerPool starts workers goroutines; each task gets its own timeout.
// A timeout of zero leaves tasks bounded only by ctx.
func NewWorkerPool(ctx context.Context, logger *observability.Logger, workers int, taskName string, timeout time.Duration) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)

	pool := &WorkerPool{
		taskName: taskName,
		timeout:  timeout,
		logger:   logger.WithField("pool", taskName),
		ctx:      ctx,
		cancel:   cancel,
		workCh:   make(chan func(context.Context) error, workers*2),
	}

	for i := 0; i < workers; i++ {
		pool.wg.Add(1)
		go pool.worker()
	}
	return pool
}

// Submit queues a task, blocking while the queue is full
func (p *WorkerPool) Submit(fn func(context.Context) error) error {
	p.sendMu.RLock()
	defer p.sendMu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.workCh <- fn:
		return nil
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

// Wait stops accepting work, drains the queue and returns every task error
func (p *WorkerPool) Wait() []error {
	p.close()
	p.wg.Wait()
	p.cancel()

	p.errMu.Lock()
	defer p.errMu.Unlock()
	return append([]error(nil), p.errs...)
}

// Shutdown stops the pool, cancelling in-flight tasks if they outlive timeout
func (p *WorkerPool) Shutdown(timeout time.Duration) error {
	p.close()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-time.After(timeout):
		p.cancel()
		return fmt.Errorf("worker pool %s shutdown timed out after %v", p.taskName, timeout)
	}
}

func (p *WorkerPool) close() {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.workCh)
	}
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()

	for fn := range p.workCh {
		if p.ctx.Err() != nil {
			p.record(p.ctx.Err())
			continue
		}

		var ctx context.Context
		var cancel context.CancelFunc
		if p.timeout > 0 {
			ctx, cancel = context.WithTimeout(p.ctx, p.timeout)
		} else {
			ctx, cancel = context.WithCancel(p.ctx)
		}
		err := runRecovered(ctx, fn)
		cancel()

		if err != nil {
			p.record(err)
		}
	}
}

func (p *WorkerPool) record(err error) {
	p.logger.WithError(err).Debug("task failed")

	p.errMu.Lock()
	p.errs = append(p.errs, err)
	p.errMu.Unlock()
}

// Batch processes items concurrently and returns all errors encountered
func Batch[T any](ctx context.Context, logger *observability.Logger, items []T, workers int, timeout time.Duration, taskName string,
	fn func(context.Context, T) error) []error {

	pool := NewWorkerPool(ctx, logger, workers, taskName, timeout)

	for _, item := range items {
		if err := pool.Submit(func(ctx context.Context) error {
			return fn(ctx, item)
		}); err != nil {
			errs := pool.Wait()
			return append(errs, err)
		}
	}

	return pool.Wait()
}
