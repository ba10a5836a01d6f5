package core

import (
	"context"
	"errors"
	"fmt"

	"meetscribe/internal/queue"
	"meetscribe/internal/store"
	"meetscribe/pkg/cache"
	"meetscribe/pkg/logger"
	"meetscribe/pkg/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service is the operational surface of the job core: submission, status
// and result reads, listing, deletion, cancellation, and queue stats.
// Status and result reads go straight to the store and never touch the
// queue.
type Service struct {
	store   *store.JobStore
	queue   *queue.Queue
	results cache.Cache
}

// New wires the service. results may be nil to disable result caching.
func New(jobs *store.JobStore, q *queue.Queue, results cache.Cache) *Service {
	return &Service{
		store:   jobs,
		queue:   q,
		results: results,
	}
}

// Submit durably creates the job, then enqueues it. When the queue is at
// capacity the created artifacts are rolled back and ErrQueueFull is
// returned, so a rejected submission leaves no trace.
func (s *Service) Submit(ctx context.Context, audio []model.AudioSource, opts model.Options) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("at least one audio source is required")
	}

	jobID := uuid.New().String()

	if _, err := s.store.Create(ctx, jobID, audio, opts); err != nil {
		return "", err
	}

	if err := s.queue.Submit(jobID); err != nil {
		if delErr := s.store.Delete(ctx, jobID); delErr != nil {
			logger.Error("Failed to roll back rejected job",
				zap.String("job_id", jobID),
				zap.Error(delErr))
		}
		return "", err
	}

	logger.Info("Job submitted", zap.String("job_id", jobID))
	return jobID, nil
}

// Status derives the job status from its artifacts.
func (s *Service) Status(ctx context.Context, jobID string) (model.Status, error) {
	return s.store.Status(ctx, jobID)
}

// Result returns everything currently retrievable for a job. Artifacts
// written by stages that completed before a failure remain readable.
// Completed results are served read-through from the cache when one is
// configured.
func (s *Service) Result(ctx context.Context, jobID string) (*model.Result, error) {
	status, err := s.store.Status(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if s.results != nil && status == model.StatusCompleted {
		var cached model.Result
		if err := s.results.Get(ctx, cache.ResultKey(jobID), &cached); err == nil {
			return &cached, nil
		}
	}

	job, err := s.store.Job(ctx, jobID)
	if err != nil {
		return nil, err
	}

	result := &model.Result{Job: job, Status: status}

	var transcription model.Transcription
	switch err := s.store.ReadArtifact(ctx, jobID, store.KindTranscription, &transcription); {
	case err == nil:
		result.Transcription = &transcription
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	var diarization model.Diarization
	switch err := s.store.ReadArtifact(ctx, jobID, store.KindDiarization, &diarization); {
	case err == nil:
		result.Diarization = &diarization
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	switch summary, err := s.store.ReadSummary(ctx, jobID); {
	case err == nil:
		result.Summary = summary
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	var stageErr model.StageError
	switch err := s.store.ReadArtifact(ctx, jobID, store.KindError, &stageErr); {
	case err == nil:
		result.Error = &stageErr
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	if s.results != nil && status == model.StatusCompleted {
		if err := s.results.Set(ctx, cache.ResultKey(jobID), result); err != nil {
			logger.Warn("Failed to cache result",
				zap.String("job_id", jobID),
				zap.Error(err))
		}
	}

	return result, nil
}

// List returns job summaries, newest first, optionally filtered by status.
func (s *Service) List(ctx context.Context, filter model.Status) ([]model.Summary, error) {
	return s.store.List(ctx, filter)
}

// Delete removes every artifact of a job. ErrInUse while a worker is
// writing it; deleting a still-queued job is legal, the dequeue skips it.
func (s *Service) Delete(ctx context.Context, jobID string) error {
	if err := s.store.Delete(ctx, jobID); err != nil {
		return err
	}

	if s.results != nil {
		if err := s.results.Delete(ctx, cache.ResultKey(jobID)); err != nil {
			logger.Warn("Failed to invalidate cached result",
				zap.String("job_id", jobID),
				zap.Error(err))
		}
	}

	return nil
}

// Cancel raises the cooperative cancellation flag. A processing job stops
// before its next stage; an in-flight engine call is not preempted.
func (s *Service) Cancel(ctx context.Context, jobID string) error {
	exists, err := s.store.Exists(ctx, jobID)
	if err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}

	s.queue.Cancel(jobID)
	logger.Info("Job cancellation requested", zap.String("job_id", jobID))
	return nil
}

// QueueStats exposes the read-only scheduling counters.
func (s *Service) QueueStats() model.QueueStats {
	return s.queue.Stats()
}
