package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"meetscribe/pkg/logger"
	"meetscribe/pkg/model"

	"go.uber.org/zap"
)

// JobStore persists per-job artifacts through a Backend and derives job
// status from which artifacts exist. Status is never stored, so it cannot
// drift from the artifacts.
type JobStore struct {
	backend Backend

	mu   sync.Mutex
	held map[string]struct{}
}

// NewJobStore wraps an artifact backend.
func NewJobStore(backend Backend) *JobStore {
	return &JobStore{
		backend: backend,
		held:    make(map[string]struct{}),
	}
}

// Create claims a namespace for the job and durably writes its metadata and
// audio reference. After Create returns, the job is a valid Queued job even
// across a process restart.
func (s *JobStore) Create(ctx context.Context, jobID string, audio []model.AudioSource, opts model.Options) (model.Job, error) {
	if err := s.backend.Init(ctx, jobID); err != nil {
		return model.Job{}, err
	}

	job := model.Job{
		ID:        jobID,
		Audio:     audio,
		Options:   opts,
		CreatedAt: time.Now().UTC(),
	}

	meta, err := json.Marshal(job)
	if err != nil {
		return model.Job{}, fmt.Errorf("failed to marshal job metadata: %w", err)
	}
	if err := s.backend.Write(ctx, jobID, KindMetadata, meta); err != nil {
		return model.Job{}, err
	}

	audioRef, err := json.Marshal(audio)
	if err != nil {
		return model.Job{}, fmt.Errorf("failed to marshal audio reference: %w", err)
	}
	if err := s.backend.Write(ctx, jobID, KindAudio, audioRef); err != nil {
		return model.Job{}, err
	}

	logger.Info("Job created",
		zap.String("job_id", jobID),
		zap.Int("sources", len(audio)))

	return job, nil
}

// WriteArtifact marshals and persists one artifact, replacing any prior one.
func (s *JobStore) WriteArtifact(ctx context.Context, jobID string, kind Kind, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s artifact: %w", kind, err)
	}
	return s.backend.Write(ctx, jobID, kind, data)
}

// WriteSummary persists the summary text verbatim.
func (s *JobStore) WriteSummary(ctx context.Context, jobID, summary string) error {
	return s.backend.Write(ctx, jobID, KindSummary, []byte(summary))
}

// ReadArtifact unmarshals one artifact into dest. ErrNotFound if absent.
func (s *JobStore) ReadArtifact(ctx context.Context, jobID string, kind Kind, dest any) error {
	data, err := s.backend.Read(ctx, jobID, kind)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal %s artifact: %w", kind, err)
	}
	return nil
}

// ReadSummary returns the summary text. ErrNotFound if absent.
func (s *JobStore) ReadSummary(ctx context.Context, jobID string) (string, error) {
	data, err := s.backend.Read(ctx, jobID, KindSummary)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Job returns the metadata artifact. ErrNotFound for unknown ids.
func (s *JobStore) Job(ctx context.Context, jobID string) (model.Job, error) {
	var job model.Job
	if err := s.ReadArtifact(ctx, jobID, KindMetadata, &job); err != nil {
		return model.Job{}, err
	}
	return job, nil
}

// Exists reports whether the job namespace holds metadata.
func (s *JobStore) Exists(ctx context.Context, jobID string) (bool, error) {
	return s.backend.Exists(ctx, jobID, KindMetadata)
}

// Status derives the job status from artifact presence, checked in
// precedence order. An error artifact always wins, even when a later stage
// failed after the transcription was already written.
func (s *JobStore) Status(ctx context.Context, jobID string) (model.Status, error) {
	exists, err := s.Exists(ctx, jobID)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", ErrNotFound
	}

	for _, probe := range []struct {
		kind   Kind
		status model.Status
	}{
		{KindError, model.StatusFailed},
		{KindTranscription, model.StatusCompleted},
		{KindProgress, model.StatusProcessing},
	} {
		present, err := s.backend.Exists(ctx, jobID, probe.kind)
		if err != nil {
			return "", err
		}
		if present {
			return probe.status, nil
		}
	}

	return model.StatusQueued, nil
}

// List returns job summaries ordered by creation time, most recent first.
// An empty filter matches every job.
func (s *JobStore) List(ctx context.Context, filter model.Status) ([]model.Summary, error) {
	ids, err := s.backend.Jobs(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]model.Summary, 0, len(ids))
	for _, id := range ids {
		job, err := s.Job(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// Concurrently deleted or not yet populated.
			continue
		}
		if err != nil {
			return nil, err
		}

		status, err := s.Status(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		if filter != "" && status != filter {
			continue
		}
		summaries = append(summaries, model.Summary{Job: job, Status: status})
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})

	return summaries, nil
}

// Delete removes every artifact of the job. ErrInUse while a worker holds
// the job's write lock, ErrNotFound for unknown ids.
func (s *JobStore) Delete(ctx context.Context, jobID string) error {
	s.mu.Lock()
	if _, busy := s.held[jobID]; busy {
		s.mu.Unlock()
		return ErrInUse
	}
	s.mu.Unlock()

	if err := s.backend.Remove(ctx, jobID); err != nil {
		return err
	}

	logger.Info("Job deleted", zap.String("job_id", jobID))
	return nil
}

// Acquire takes the exclusive write lock for a job. Exactly one worker may
// hold it at a time; ErrInUse otherwise.
func (s *JobStore) Acquire(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.held[jobID]; busy {
		return ErrInUse
	}
	s.held[jobID] = struct{}{}
	return nil
}

// Release returns the write lock taken by Acquire.
func (s *JobStore) Release(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.held, jobID)
}
