package queue

import (
	"context"
	"errors"
	"sync"

	"meetscribe/internal/store"
	"meetscribe/pkg/logger"
	"meetscribe/pkg/model"

	"go.uber.org/zap"
)

// ErrQueueFull is returned when submission would exceed capacity.
var ErrQueueFull = errors.New("queue is full")

// Runner executes one complete pipeline invocation for a job.
type Runner interface {
	Run(ctx context.Context, jobID string) error
}

// Config bounds the queue.
type Config struct {
	// Capacity caps jobs that are queued or processing.
	Capacity int
	// Workers is the number of concurrent pipeline invocations.
	Workers int
}

// Queue is a single-process FIFO feeding a bounded worker pool. Submission
// is non-blocking: once Capacity jobs are queued or processing, Submit
// fails fast instead of applying backpressure.
type Queue struct {
	store  *store.JobStore
	runner Runner
	cfg    Config

	jobs chan string

	mu       sync.Mutex
	inflight int
	active   int

	cancelled sync.Map

	wg sync.WaitGroup
}

// New creates a stopped queue. Call Start to launch the workers.
func New(jobs *store.JobStore, runner Runner, cfg Config) *Queue {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 64
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}

	return &Queue{
		store:  jobs,
		runner: runner,
		cfg:    cfg,
		jobs:   make(chan string, cfg.Capacity),
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}

	logger.Info("Worker pool started",
		zap.Int("workers", q.cfg.Workers),
		zap.Int("capacity", q.cfg.Capacity))
}

// Wait blocks until every worker has returned.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// Submit enqueues a job by id, FIFO. The job's metadata and audio artifacts
// must already be durably written. Returns ErrQueueFull once the number of
// queued plus processing jobs reaches capacity.
func (q *Queue) Submit(jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.inflight >= q.cfg.Capacity {
		return ErrQueueFull
	}
	q.inflight++

	// Channel capacity equals Capacity, so this never blocks while the
	// inflight accounting holds.
	q.jobs <- jobID

	logger.Debug("Job enqueued", zap.String("job_id", jobID))
	return nil
}

// Cancel raises the cooperative cancellation flag for a job. The pipeline
// checks it between stages; in-flight engine calls are not preempted.
func (q *Queue) Cancel(jobID string) {
	q.cancelled.Store(jobID, struct{}{})
}

// Cancelled reports whether Cancel was called for the job.
func (q *Queue) Cancelled(jobID string) bool {
	_, ok := q.cancelled.Load(jobID)
	return ok
}

// Stats returns the read-only scheduling surface.
func (q *Queue) Stats() model.QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	return model.QueueStats{
		Depth:         len(q.jobs),
		ActiveWorkers: q.active,
		Capacity:      q.cfg.Capacity,
	}
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case jobID := <-q.jobs:
			q.process(ctx, id, jobID)
		}
	}
}

// process runs one dequeued job to its terminal artifact. Each job id is
// dequeued exactly once, and the store's write lock keeps a second worker
// from ever touching the same job's artifacts.
func (q *Queue) process(ctx context.Context, workerID int, jobID string) {
	defer q.finish(jobID)

	exists, err := q.store.Exists(ctx, jobID)
	if err != nil {
		logger.Error("Failed to check job existence",
			zap.String("job_id", jobID),
			zap.Error(err))
		return
	}
	if !exists {
		// Deleted while queued; skip silently.
		logger.Debug("Skipping deleted job", zap.String("job_id", jobID))
		return
	}

	if err := q.store.Acquire(jobID); err != nil {
		logger.Error("Failed to acquire job write lock",
			zap.String("job_id", jobID),
			zap.Error(err))
		return
	}
	defer q.store.Release(jobID)

	q.mu.Lock()
	q.active++
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		q.active--
		q.mu.Unlock()
	}()

	logger.Info("Worker picked up job",
		zap.Int("worker", workerID),
		zap.String("job_id", jobID))

	if err := q.runner.Run(ctx, jobID); err != nil {
		// Terminal state already persisted by the pipeline; the worker
		// just moves on to its next job.
		logger.Warn("Job finished with failure",
			zap.Int("worker", workerID),
			zap.String("job_id", jobID),
			zap.Error(err))
	}
}

func (q *Queue) finish(jobID string) {
	q.cancelled.Delete(jobID)

	q.mu.Lock()
	q.inflight--
	q.mu.Unlock()
}
