package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"meetscribe/internal/store"
	"meetscribe/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingRunner tracks pipeline invocations and flags any concurrent run
// of the same job id.
type recordingRunner struct {
	mu         sync.Mutex
	order      []string
	running    map[string]bool
	violations int
	block      chan struct{}
	done       chan string
}

func newRecordingRunner(buffer int) *recordingRunner {
	return &recordingRunner{
		running: make(map[string]bool),
		done:    make(chan string, buffer),
	}
}

func (r *recordingRunner) Run(ctx context.Context, jobID string) error {
	r.mu.Lock()
	if r.running[jobID] {
		r.violations++
	}
	r.running[jobID] = true
	r.order = append(r.order, jobID)
	r.mu.Unlock()

	if r.block != nil {
		<-r.block
	}

	r.mu.Lock()
	r.running[jobID] = false
	r.mu.Unlock()

	r.done <- jobID
	return nil
}

func newTestStore(t *testing.T) *store.JobStore {
	t.Helper()

	backend, err := store.NewFSBackend(t.TempDir())
	require.NoError(t, err)
	return store.NewJobStore(backend)
}

func createJob(t *testing.T, s *store.JobStore, id string) {
	t.Helper()

	_, err := s.Create(context.Background(), id,
		[]model.AudioSource{{Name: "microphone", Path: "/tmp/mic.wav"}}, model.Options{})
	require.NoError(t, err)
}

func waitFor(t *testing.T, done <-chan string, n int) []string {
	t.Helper()

	var finished []string
	for i := 0; i < n; i++ {
		select {
		case id := <-done:
			finished = append(finished, id)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for job %d of %d", i+1, n)
		}
	}
	return finished
}

func TestQueue_RejectsSubmissionBeyondCapacity(t *testing.T) {
	s := newTestStore(t)
	runner := newRecordingRunner(8)
	q := New(s, runner, Config{Capacity: 3, Workers: 1})

	// Workers not started: everything submitted stays pending.
	for i, id := range []string{"a", "b", "c"} {
		createJob(t, s, id)
		require.NoError(t, q.Submit(id), "submission %d should be accepted", i+1)
	}

	createJob(t, s, "d")
	assert.ErrorIs(t, q.Submit("d"), ErrQueueFull)
}

func TestQueue_CapacityCountsProcessingJobs(t *testing.T) {
	s := newTestStore(t)
	runner := newRecordingRunner(8)
	runner.block = make(chan struct{})
	q := New(s, runner, Config{Capacity: 2, Workers: 2})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	createJob(t, s, "a")
	createJob(t, s, "b")
	require.NoError(t, q.Submit("a"))
	require.NoError(t, q.Submit("b"))

	// Both jobs are being processed (blocked inside the runner), the queue
	// is drained, yet capacity still counts them.
	assert.Eventually(t, func() bool {
		return q.Stats().ActiveWorkers == 2
	}, 5*time.Second, 10*time.Millisecond)

	createJob(t, s, "c")
	assert.ErrorIs(t, q.Submit("c"), ErrQueueFull)

	close(runner.block)
	waitFor(t, runner.done, 2)

	// Capacity frees up once jobs reach their terminal artifact.
	assert.Eventually(t, func() bool {
		return q.Submit("c") == nil
	}, 5*time.Second, 10*time.Millisecond)
}

func TestQueue_DispatchesFIFO(t *testing.T) {
	s := newTestStore(t)
	runner := newRecordingRunner(8)
	q := New(s, runner, Config{Capacity: 8, Workers: 1})

	for _, id := range []string{"first", "second", "third"} {
		createJob(t, s, id)
		require.NoError(t, q.Submit(id))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	waitFor(t, runner.done, 3)
	assert.Equal(t, []string{"first", "second", "third"}, runner.order)
}

func TestQueue_SkipsJobDeletedWhileQueued(t *testing.T) {
	s := newTestStore(t)
	runner := newRecordingRunner(8)
	q := New(s, runner, Config{Capacity: 8, Workers: 1})

	createJob(t, s, "doomed")
	createJob(t, s, "survivor")
	require.NoError(t, q.Submit("doomed"))
	require.NoError(t, q.Submit("survivor"))

	require.NoError(t, s.Delete(context.Background(), "doomed"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	finished := waitFor(t, runner.done, 1)
	assert.Equal(t, []string{"survivor"}, finished)
	assert.Equal(t, []string{"survivor"}, runner.order)
}

func TestQueue_StressNoConcurrentRunsOfSameJob(t *testing.T) {
	s := newTestStore(t)
	runner := newRecordingRunner(64)
	q := New(s, runner, Config{Capacity: 64, Workers: 4})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	const jobs = 40
	for i := 0; i < jobs; i++ {
		id := fmt.Sprintf("job-%d", i)
		createJob(t, s, id)
		require.NoError(t, q.Submit(id))
	}

	waitFor(t, runner.done, jobs)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Zero(t, runner.violations, "no two workers may run the same job concurrently")
	assert.Len(t, runner.order, jobs)
}

func TestQueue_CancelFlag(t *testing.T) {
	s := newTestStore(t)
	q := New(s, newRecordingRunner(1), Config{Capacity: 4, Workers: 1})

	assert.False(t, q.Cancelled("job-1"))
	q.Cancel("job-1")
	assert.True(t, q.Cancelled("job-1"))
}

func TestQueue_Stats(t *testing.T) {
	s := newTestStore(t)
	q := New(s, newRecordingRunner(4), Config{Capacity: 5, Workers: 2})

	createJob(t, s, "a")
	require.NoError(t, q.Submit("a"))

	stats := q.Stats()
	assert.Equal(t, 1, stats.Depth)
	assert.Equal(t, 0, stats.ActiveWorkers)
	assert.Equal(t, 5, stats.Capacity)
}
