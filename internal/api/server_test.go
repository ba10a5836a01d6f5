package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"meetscribe/internal/core"
	"meetscribe/internal/queue"
	"meetscribe/internal/store"
	"meetscribe/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopRunner struct{}

func (noopRunner) Run(ctx context.Context, jobID string) error { return nil }

func newTestServer(t *testing.T, capacity int) (*httptest.Server, *store.JobStore) {
	t.Helper()

	backend, err := store.NewFSBackend(t.TempDir())
	require.NoError(t, err)
	jobs := store.NewJobStore(backend)

	// Workers stay stopped so submitted jobs remain queued.
	q := queue.New(jobs, noopRunner{}, queue.Config{Capacity: capacity, Workers: 1})
	service := core.New(jobs, q, nil)

	srv := NewServer(":0", service)
	ts := httptest.NewServer(srv.http.Handler)
	t.Cleanup(ts.Close)

	return ts, jobs
}

func submitJob(t *testing.T, ts *httptest.Server, opts model.Options) string {
	t.Helper()

	body, err := json.Marshal(map[string]any{
		"audio":   []model.AudioSource{{Name: "microphone", Path: "/tmp/mic.wav"}},
		"options": opts,
	})
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/jobs", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var parsed submitResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	require.NotEmpty(t, parsed.JobID)
	assert.Equal(t, model.StatusQueued, parsed.Status)

	return parsed.JobID
}

func TestServer_SubmitAndStatus(t *testing.T) {
	ts, _ := newTestServer(t, 4)

	jobID := submitJob(t, ts, model.Options{ModelID: "base"})

	resp, err := http.Get(ts.URL + "/jobs/" + jobID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var parsed map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	assert.Equal(t, jobID, parsed["job_id"])
	assert.Equal(t, "queued", parsed["status"])
}

func TestServer_SubmitRejectsEmptyAudio(t *testing.T) {
	ts, _ := newTestServer(t, 4)

	resp, err := http.Post(ts.URL+"/jobs", "application/json",
		bytes.NewReader([]byte(`{"audio":[]}`)))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_SubmitFullQueueReturns503(t *testing.T) {
	ts, _ := newTestServer(t, 1)

	submitJob(t, ts, model.Options{})

	body := []byte(`{"audio":[{"name":"microphone","path":"/tmp/mic.wav"}]}`)
	resp, err := http.Post(ts.URL+"/jobs", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServer_StatusUnknownJob(t *testing.T) {
	ts, _ := newTestServer(t, 4)

	resp, err := http.Get(ts.URL + "/jobs/missing")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_ResultIncludesArtifacts(t *testing.T) {
	ts, jobs := newTestServer(t, 4)
	ctx := context.Background()

	jobID := submitJob(t, ts, model.Options{})
	require.NoError(t, jobs.WriteArtifact(ctx, jobID, store.KindTranscription, model.Transcription{
		Text: "[00:00] [UNKNOWN]: hello",
	}))

	resp, err := http.Get(ts.URL + "/jobs/" + jobID + "/result")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result model.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, model.StatusCompleted, result.Status)
	require.NotNil(t, result.Transcription)
	assert.Equal(t, "[00:00] [UNKNOWN]: hello", result.Transcription.Text)
}

func TestServer_ListFiltersByStatus(t *testing.T) {
	ts, jobs := newTestServer(t, 4)
	ctx := context.Background()

	queued := submitJob(t, ts, model.Options{})
	failed := submitJob(t, ts, model.Options{})
	require.NoError(t, jobs.WriteArtifact(ctx, failed, store.KindError, model.StageError{
		Stage: "transcribe", Message: "boom",
	}))

	resp, err := http.Get(ts.URL + "/jobs?status=queued")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var parsed struct {
		Jobs []model.Summary `json:"jobs"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	require.Len(t, parsed.Jobs, 1)
	assert.Equal(t, queued, parsed.Jobs[0].ID)
}

func TestServer_CancelAndDelete(t *testing.T) {
	ts, _ := newTestServer(t, 4)

	jobID := submitJob(t, ts, model.Options{})

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/jobs/"+jobID+"/cancel", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	req, err = http.NewRequest(http.MethodDelete, ts.URL+"/jobs/"+jobID, nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	statusResp, err := http.Get(ts.URL + "/jobs/" + jobID)
	require.NoError(t, err)
	defer statusResp.Body.Close()
	assert.Equal(t, http.StatusNotFound, statusResp.StatusCode)
}

func TestServer_StatsAndHealth(t *testing.T) {
	ts, _ := newTestServer(t, 8)

	submitJob(t, ts, model.Options{})

	resp, err := http.Get(ts.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats model.QueueStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 1, stats.Depth)
	assert.Equal(t, 8, stats.Capacity)

	healthResp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer healthResp.Body.Close()
	assert.Equal(t, http.StatusOK, healthResp.StatusCode)
}
