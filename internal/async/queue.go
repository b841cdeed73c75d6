// Package async processes documents on a fixed pool of background workers.
package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/sof-events/internal/metrics"
	"github.com/joseph-ayodele/sof-events/internal/pipeline"
)

// ErrQueueClosed is returned by Enqueue after Shutdown has begun.
var ErrQueueClosed = errors.New("queue is shutting down")

// Job is one document waiting to be processed.
type Job struct {
	Path        string
	SubmittedAt time.Time
	TraceID     string
}

// FileProcessor is satisfied by *pipeline.Processor.
type FileProcessor interface {
	ProcessFile(ctx context.Context, path string) (pipeline.Result, error)
}

// ResultHandler receives every finished job on the worker goroutine that ran it.
type ResultHandler func(job Job, res pipeline.Result, err error)

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

type ProcessorQueue struct {
	proc    FileProcessor
	logger  *slog.Logger
	workers int
	timeout time.Duration
	onDone  ResultHandler
	metrics *metrics.Metrics

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex
	closed bool
}

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func WithResultHandler(h ResultHandler) Option {
	return func(q *ProcessorQueue) { q.onDone = h }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(q *ProcessorQueue) { q.metrics = m }
}

func NewProcessorQueue(proc FileProcessor, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		proc:    proc,
		logger:  logger,
		workers: 4,
		timeout: 3 * time.Minute,
		ch:      make(chan Job, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)

				for job := range q.ch {
					q.metrics.SetQueueDepth(len(q.ch))
					q.run(workerID, job)
				}

				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ProcessorQueue) run(workerID int, job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	res, err := q.proc.ProcessFile(ctx, job.Path)
	if err != nil {
		q.logger.Error("processing failed", "worker_id", workerID, "path", job.Path, "trace_id", job.TraceID, "error", err)
	} else {
		q.logger.Info("processed file successfully",
			"worker_id", workerID,
			"path", job.Path,
			"job_id", res.JobID,
			"events", len(res.Events),
			"elapsed_ms", res.Duration.Milliseconds(),
			"queued_ms", time.Since(job.SubmittedAt).Milliseconds(),
		)
	}
	if q.onDone != nil {
		q.onDone(job, res, err)
	}
}

// Enqueue hands job to the workers. When the buffer is full it blocks until
// a slot frees up or ctx is done.
func (q *ProcessorQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "path", job.Path)
		return ErrQueueClosed
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	select {
	case q.ch <- job:
		q.logger.Info("queued file for processing", "path", job.Path)
	default:
		q.logger.Warn("queue full, applying backpressure", "path", job.Path)
		select {
		case q.ch <- job:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	q.metrics.SetQueueDepth(len(q.ch))
	return nil
}

// Shutdown stops accepting jobs and waits for queued ones to finish, or for
// ctx to end.
func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}

// Feed enqueues every path received on paths until the channel closes or ctx
// is done. Watcher errors are logged and otherwise ignored.
func Feed(ctx context.Context, q Queue, paths <-chan string, errs <-chan error, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-paths:
			if !ok {
				return
			}
			if err := q.Enqueue(ctx, Job{Path: p}); err != nil {
				logger.Warn("cannot enqueue watched file", "path", p, "error", err)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Warn("watcher reported an error", "error", err)
		}
	}
}
