package pipeline

import (
	"context"
	"errors"
	"time"

	"meetscribe/internal/align"
	"meetscribe/internal/engine"
	"meetscribe/internal/store"
	"meetscribe/pkg/logger"
	"meetscribe/pkg/model"

	"go.uber.org/zap"
)

// Stage names one step of a job's pipeline.
type Stage string

const (
	StageTranscribe Stage = "transcribe"
	StageDiarize    Stage = "diarize"
	StageAlign      Stage = "align"
	StageSummarize  Stage = "summarize"
)

// StagesFor computes the fixed stage sequence of a job from its options,
// once, at pipeline start. Transcribe and Align always run; Diarize and
// Summarize are opt-in.
func StagesFor(opts model.Options) []Stage {
	stages := []Stage{StageTranscribe}
	if opts.Diarize {
		stages = append(stages, StageDiarize)
	}
	stages = append(stages, StageAlign)
	if opts.Summarize {
		stages = append(stages, StageSummarize)
	}
	return stages
}

// Pipeline executes one job's stages strictly in order, persisting a
// progress artifact before every stage and each stage's result artifact
// after it. Any stage failure writes the error artifact and aborts the
// rest; there is no automatic retry.
type Pipeline struct {
	store         *store.JobStore
	engines       engine.Provider
	summarizer    engine.Summarizer
	filter        *align.HallucinationFilter
	aligner       *align.Aligner
	diarizerModel string
	cancelled     func(jobID string) bool
}

// New wires a pipeline. summarizer may be nil when summarization is not
// configured; cancelled may be nil when cancellation is not offered.
func New(
	jobs *store.JobStore,
	engines engine.Provider,
	summarizer engine.Summarizer,
	filter *align.HallucinationFilter,
	aligner *align.Aligner,
	diarizerModel string,
	cancelled func(jobID string) bool,
) *Pipeline {
	return &Pipeline{
		store:         jobs,
		engines:       engines,
		summarizer:    summarizer,
		filter:        filter,
		aligner:       aligner,
		diarizerModel: diarizerModel,
		cancelled:     cancelled,
	}
}

// runState carries intermediate results between stages of one invocation.
type runState struct {
	segments []model.Segment
	turns    []model.SpeakerTurn
	aligned  []model.AlignedSegment
	drops    []model.DropRecord
	text     string
	summary  string
	timings  map[string]float64
}

// Run executes the whole pipeline for one job to its terminal artifact.
// The returned error reports the failing stage for logging; the error has
// already been persisted when it is non-nil.
func (p *Pipeline) Run(ctx context.Context, jobID string) error {
	job, err := p.store.Job(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		// Deleted between dequeue and start.
		logger.Debug("Skipping vanished job", zap.String("job_id", jobID))
		return nil
	}
	if err != nil {
		return err
	}

	stages := StagesFor(job.Options)
	st := &runState{timings: make(map[string]float64)}

	logger.Info("Pipeline started",
		zap.String("job_id", jobID),
		zap.Int("stages", len(stages)))

	for _, stage := range stages {
		if p.cancelled != nil && p.cancelled(jobID) {
			return p.fail(ctx, jobID, stage, "cancelled")
		}

		if err := p.writeProgress(ctx, jobID, stage, st); err != nil {
			return p.fail(ctx, jobID, stage, err.Error())
		}

		started := time.Now()
		if err := p.runStage(ctx, stage, job, st); err != nil {
			return p.fail(ctx, jobID, stage, err.Error())
		}
		st.timings[string(stage)] = time.Since(started).Seconds()

		if err := p.writeStageResult(ctx, jobID, stage, st); err != nil {
			return p.fail(ctx, jobID, stage, err.Error())
		}
	}

	logger.Info("Pipeline completed", zap.String("job_id", jobID))
	return nil
}

func (p *Pipeline) runStage(ctx context.Context, stage Stage, job model.Job, st *runState) error {
	switch stage {
	case StageTranscribe:
		rec, err := p.engines.Recognizer(ctx, job.Options.ModelID)
		if err != nil {
			return err
		}
		for _, source := range job.Audio {
			segments, err := rec.Recognize(ctx, source)
			if err != nil {
				return err
			}
			st.segments = append(st.segments, segments...)
		}
		return nil

	case StageDiarize:
		dia, err := p.engines.Diarizer(ctx, p.diarizerModel)
		if err != nil {
			return err
		}
		for _, source := range job.Audio {
			turns, err := dia.Diarize(ctx, source)
			if err != nil {
				return err
			}
			st.turns = append(st.turns, turns...)
		}
		return nil

	case StageAlign:
		kept, drops := p.filter.Apply(st.segments)
		st.drops = drops
		st.aligned = p.aligner.Align(kept, st.turns)
		st.text = align.RenderTranscript(st.aligned)
		if len(drops) > 0 {
			logger.Info("Hallucination segments dropped",
				zap.String("job_id", job.ID),
				zap.Int("dropped", len(drops)),
				zap.Int("kept", len(kept)))
		}
		return nil

	case StageSummarize:
		if p.summarizer == nil {
			return errors.New("summarizer is not configured")
		}
		summary, err := p.summarizer.Summarize(ctx, st.text)
		if err != nil {
			return err
		}
		st.summary = summary
		return nil
	}

	return nil
}

// writeStageResult persists the artifact a completed stage produced.
// Transcribe has no artifact of its own: its output becomes visible as the
// transcription artifact once Align merges it, which is also what flips the
// derived status to completed.
func (p *Pipeline) writeStageResult(ctx context.Context, jobID string, stage Stage, st *runState) error {
	switch stage {
	case StageDiarize:
		return p.store.WriteArtifact(ctx, jobID, store.KindDiarization, model.Diarization{Turns: st.turns})

	case StageAlign:
		// Re-publish progress so the filter drops are observable even when
		// align is the last stage.
		if err := p.writeProgress(ctx, jobID, stage, st); err != nil {
			return err
		}
		return p.store.WriteArtifact(ctx, jobID, store.KindTranscription, model.Transcription{
			Segments: st.aligned,
			Text:     st.text,
			Timings:  st.timings,
		})

	case StageSummarize:
		return p.store.WriteSummary(ctx, jobID, st.summary)
	}

	return nil
}

func (p *Pipeline) writeProgress(ctx context.Context, jobID string, stage Stage, st *runState) error {
	return p.store.WriteArtifact(ctx, jobID, store.KindProgress, model.Progress{
		Stage:     string(stage),
		Dropped:   len(st.drops),
		Drops:     st.drops,
		UpdatedAt: time.Now().UTC(),
	})
}

// fail persists the error artifact and ends the invocation. The failure
// never escapes to crash the worker.
func (p *Pipeline) fail(ctx context.Context, jobID string, stage Stage, message string) error {
	stageErr := model.StageError{Stage: string(stage), Message: message}

	if err := p.store.WriteArtifact(ctx, jobID, store.KindError, stageErr); err != nil {
		logger.Error("Failed to persist error artifact",
			zap.String("job_id", jobID),
			zap.Error(err))
	}

	logger.Error("Pipeline stage failed",
		zap.String("job_id", jobID),
		zap.String("stage", string(stage)),
		zap.String("message", message))

	return stageErr
}
