package store

import (
	"context"
	"testing"
	"time"

	"meetscribe/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *JobStore {
	t.Helper()

	backend, err := NewFSBackend(t.TempDir())
	require.NoError(t, err)

	return NewJobStore(backend)
}

func testAudio() []model.AudioSource {
	return []model.AudioSource{{Name: "microphone", Path: "/tmp/mic.wav"}}
}

func TestStore_CreateRejectsDuplicateID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "job-1", testAudio(), model.Options{})
	require.NoError(t, err)

	_, err = s.Create(ctx, "job-1", testAudio(), model.Options{})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestStore_StatusPrecedence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "job-1", testAudio(), model.Options{})
	require.NoError(t, err)

	status, err := s.Status(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusQueued, status)

	require.NoError(t, s.WriteArtifact(ctx, "job-1", KindProgress, model.Progress{Stage: "transcribe"}))
	status, err = s.Status(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessing, status)

	require.NoError(t, s.WriteArtifact(ctx, "job-1", KindTranscription, model.Transcription{}))
	status, err = s.Status(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, status)

	// A late-stage failure after the transcription was written: error wins.
	require.NoError(t, s.WriteArtifact(ctx, "job-1", KindError, model.StageError{Stage: "summarize", Message: "boom"}))
	status, err = s.Status(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, status)
}

func TestStore_StatusIsDeterministic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "job-1", testAudio(), model.Options{})
	require.NoError(t, err)
	require.NoError(t, s.WriteArtifact(ctx, "job-1", KindProgress, model.Progress{Stage: "align"}))

	first, err := s.Status(ctx, "job-1")
	require.NoError(t, err)
	second, err := s.Status(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestStore_StatusUnknownJob(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Status(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ReadArtifactNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "job-1", testAudio(), model.Options{})
	require.NoError(t, err)

	var tr model.Transcription
	err = s.ReadArtifact(ctx, "job-1", KindTranscription, &tr)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_WriteOverwritesPriorArtifact(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "job-1", testAudio(), model.Options{})
	require.NoError(t, err)

	require.NoError(t, s.WriteArtifact(ctx, "job-1", KindProgress, model.Progress{Stage: "transcribe"}))
	require.NoError(t, s.WriteArtifact(ctx, "job-1", KindProgress, model.Progress{Stage: "align", Dropped: 2}))

	var progress model.Progress
	require.NoError(t, s.ReadArtifact(ctx, "job-1", KindProgress, &progress))
	assert.Equal(t, "align", progress.Stage)
	assert.Equal(t, 2, progress.Dropped)
}

func TestStore_DeleteRemovesEverything(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "job-1", testAudio(), model.Options{})
	require.NoError(t, err)
	require.NoError(t, s.WriteArtifact(ctx, "job-1", KindTranscription, model.Transcription{}))

	require.NoError(t, s.Delete(ctx, "job-1"))

	_, err = s.Status(ctx, "job-1")
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.Delete(ctx, "job-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_DeleteWhileHeldIsInUse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "job-1", testAudio(), model.Options{})
	require.NoError(t, err)

	require.NoError(t, s.Acquire("job-1"))
	assert.ErrorIs(t, s.Delete(ctx, "job-1"), ErrInUse)

	s.Release("job-1")
	assert.NoError(t, s.Delete(ctx, "job-1"))
}

func TestStore_AcquireIsExclusive(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Acquire("job-1"))
	assert.ErrorIs(t, s.Acquire("job-1"), ErrInUse)

	s.Release("job-1")
	assert.NoError(t, s.Acquire("job-1"))
}

func TestStore_ListOrdersNewestFirstAndFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"job-a", "job-b", "job-c"} {
		_, err := s.Create(ctx, id, testAudio(), model.Options{})
		require.NoError(t, err)
		// Creation timestamps must differ for a deterministic order.
		time.Sleep(5 * time.Millisecond)
	}

	require.NoError(t, s.WriteArtifact(ctx, "job-b", KindTranscription, model.Transcription{}))

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "job-c", all[0].ID)
	assert.Equal(t, "job-b", all[1].ID)
	assert.Equal(t, "job-a", all[2].ID)

	completed, err := s.List(ctx, model.StatusCompleted)
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, "job-b", completed[0].ID)

	queued, err := s.List(ctx, model.StatusQueued)
	require.NoError(t, err)
	assert.Len(t, queued, 2)
}

func TestStore_SummaryRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "job-1", testAudio(), model.Options{})
	require.NoError(t, err)

	require.NoError(t, s.WriteSummary(ctx, "job-1", "decisions were made"))

	summary, err := s.ReadSummary(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "decisions were made", summary)
}
