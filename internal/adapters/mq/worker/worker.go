package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/okian/connect-extensions/internal/adapters/mq/queue"
	"github.com/okian/connect-extensions/internal/domain/poll"
	"github.com/okian/connect-extensions/pkg/logger"
	"github.com/okian/connect-extensions/pkg/metrics"
)

// Default worker configuration constants.
const (
	poolShutdownTimeout = 30 * time.Second
)

// Kill outcomes recorded in metrics.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeTimedOut  = "timed_out"
	OutcomeFailed    = "failed"
)

// Killer stops one job and waits until it is no longer running.
type Killer interface {
	Kill(ctx context.Context, r queue.KillRequest) error
}

// KillerFunc adapts a function to Killer.
type KillerFunc func(ctx context.Context, r queue.KillRequest) error

// Kill implements Killer.
func (f KillerFunc) Kill(ctx context.Context, r queue.KillRequest) error { return f(ctx, r) }

// ResultHandler observes finished kill attempts.
type ResultHandler func(ctx context.Context, r queue.KillRequest, err error)

// Queue defines how workers receive requests.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.KillRequest
}

// Worker processes kill requests.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)
	// Shutdown gracefully stops the worker.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker on top of a Queue.
type InMemoryWorker struct {
	queue    Queue
	killer   Killer
	name     string
	onResult ResultHandler

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, killer Killer, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		killer:   killer,
		name:     "worker",
		onResult: func(context.Context, queue.KillRequest, error) {},
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	requests := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case r, ok := <-requests:
			if !ok {
				return
			}
			if err := w.process(ctx, r); err != nil {
				w.logger.Error(ctx, "kill request failed",
					logger.String("guid", r.ContentGUID),
					logger.String("key", r.JobKey),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSucceeded
	case errors.Is(err, poll.ErrExhausted):
		return OutcomeTimedOut
	default:
		return OutcomeFailed
	}
}

// process handles a single request.
func (w *InMemoryWorker) process(ctx context.Context, r queue.KillRequest) error {
	start := time.Now()
	if r.RequestID != "" {
		ctx = logger.WithRequestID(ctx, r.RequestID)
	}

	err := w.killer.Kill(ctx, r)
	metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	metrics.RecordJobKill(outcome(err))
	w.onResult(ctx, r, err)
	if err != nil {
		return fmt.Errorf("kill job %s of %s: %w", r.JobKey, r.ContentGUID, err)
	}

	w.logger.Info(ctx, "job stopped",
		logger.String("guid", r.ContentGUID),
		logger.String("key", r.JobKey),
		logger.Duration("queued", start.Sub(r.EnqueuedAt)),
		logger.Duration("took", time.Since(start)),
	)
	return nil
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a new worker pool. A non-positive count uses one worker per CPU.
func NewPool(workerCount int, q Queue, killer Killer, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		p.workers[i] = NewInMemoryWorker(q, killer, wopts...)
	}
	metrics.UpdateWorkerActiveCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue and waits for the workers to finish.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	metrics.UpdateWorkerActiveCount(0)
	if timedOut {
		return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
	}
	return nil
}
