package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/sof-events/internal/events"
	"github.com/joseph-ayodele/sof-events/internal/pipeline"
)

type fakeProc struct {
	running atomic.Int32
	peak    atomic.Int32
	delay   time.Duration
	gate    chan struct{}
}

func (f *fakeProc) ProcessFile(ctx context.Context, path string) (pipeline.Result, error) {
	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.gate != nil {
		<-f.gate
	}
	time.Sleep(f.delay)
	if path == "bad.pdf" {
		return pipeline.Result{Filename: path}, errors.New("decode failed")
	}
	return pipeline.Result{Filename: path, Events: events.Extract("Loading 14:00")}, nil
}

func TestProcessorQueue_ProcessesAllAndDrains(t *testing.T) {
	proc := &fakeProc{delay: 5 * time.Millisecond}
	var (
		mu     sync.Mutex
		done   = map[string]error{}
		count  int
	)
	q := NewProcessorQueue(proc, nil,
		WithWorkers(2),
		WithQueueSize(4),
		WithResultHandler(func(job Job, res pipeline.Result, err error) {
			mu.Lock()
			defer mu.Unlock()
			done[job.Path] = err
			count += len(res.Events)
		}),
	)

	paths := []string{"a.pdf", "b.docx", "bad.pdf", "c.pdf", "d.pdf", "e.docx"}
	for _, p := range paths {
		require.NoError(t, q.Enqueue(context.Background(), Job{Path: p}))
	}
	q.Shutdown(context.Background())

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, done, len(paths))
	assert.Error(t, done["bad.pdf"])
	assert.NoError(t, done["a.pdf"])
	assert.Equal(t, 5, count)
	assert.LessOrEqual(t, proc.peak.Load(), int32(2))
}

func TestProcessorQueue_RejectsAfterShutdown(t *testing.T) {
	q := NewProcessorQueue(&fakeProc{}, nil, WithWorkers(1))
	q.Shutdown(context.Background())
	q.Shutdown(context.Background())

	err := q.Enqueue(context.Background(), Job{Path: "late.pdf"})
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestProcessorQueue_BackpressureHonoursContext(t *testing.T) {
	gate := make(chan struct{})
	q := NewProcessorQueue(&fakeProc{gate: gate}, nil, WithWorkers(1), WithQueueSize(1))
	defer func() {
		close(gate)
		q.Shutdown(context.Background())
	}()

	require.NoError(t, q.Enqueue(context.Background(), Job{Path: "first.pdf"}))
	// Let the worker pick up the first job so the buffer is free again.
	require.Eventually(t, func() bool { return len(q.ch) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, q.Enqueue(context.Background(), Job{Path: "second.pdf"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, Job{Path: "third.pdf"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProcessorQueue_ShutdownHonoursContext(t *testing.T) {
	gate := make(chan struct{})
	q := NewProcessorQueue(&fakeProc{gate: gate}, nil, WithWorkers(1))
	require.NoError(t, q.Enqueue(context.Background(), Job{Path: "slow.pdf"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	q.Shutdown(ctx)
	assert.Less(t, time.Since(start), time.Second)
	close(gate)
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []string
}

func (r *recordingQueue) Enqueue(_ context.Context, job Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job.Path)
	return nil
}

func (r *recordingQueue) Shutdown(context.Context) {}

func TestFeed(t *testing.T) {
	q := &recordingQueue{}
	paths := make(chan string, 3)
	errs := make(chan error, 1)
	paths <- "a.pdf"
	paths <- "b.docx"
	errs <- errors.New("overflow")
	close(errs)
	paths <- "c.pdf"
	close(paths)

	Feed(context.Background(), q, paths, errs, nil)
	assert.ElementsMatch(t, []string{"a.pdf", "b.docx", "c.pdf"}, q.jobs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	Feed(ctx, q, make(chan string), nil, nil)
}
