package model

import (
	"fmt"
	"time"
)

// Status represents the derived state of a processing job. It is never
// stored: it is computed from which artifacts currently exist for the job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// SpeakerUnknown is assigned when no diarization turn overlaps a segment.
const SpeakerUnknown = "UNKNOWN"

// Options holds the per-job processing switches.
type Options struct {
	ModelID   string `json:"model_id"`
	Diarize   bool   `json:"diarize"`
	Summarize bool   `json:"summarize"`
}

// AudioSource references one recorded audio stream of a job, e.g. the
// microphone capture and the system loopback capture of the same meeting.
type AudioSource struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Job is the metadata artifact persisted at submission time.
type Job struct {
	ID        string        `json:"id"`
	Audio     []AudioSource `json:"audio"`
	Options   Options       `json:"options"`
	CreatedAt time.Time     `json:"created_at"`
}

// Summary pairs job metadata with its status as derived at read time.
type Summary struct {
	Job
	Status Status `json:"status"`
}

// Segment is one time-bounded unit of recognized speech from one source.
type Segment struct {
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	Text         string  `json:"text"`
	NoSpeechProb float64 `json:"no_speech_prob"`
	Source       string  `json:"source"`
}

// SpeakerTurn is one diarization turn from one source.
type SpeakerTurn struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
	Source  string  `json:"source"`
}

// AlignedSegment is a recognized segment with its assigned speaker label.
type AlignedSegment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker"`
	Source  string  `json:"source"`
}

// Timestamp renders the segment start as MM:SS for the combined transcript.
func (s AlignedSegment) Timestamp() string {
	minutes := int(s.Start) / 60
	seconds := int(s.Start) % 60
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

// DropRecord explains why the hallucination filter removed a segment.
type DropRecord struct {
	Reason  string  `json:"reason"`
	Segment Segment `json:"segment"`
}

// Progress is the artifact written before each pipeline stage.
type Progress struct {
	Stage     string       `json:"stage"`
	Dropped   int          `json:"dropped"`
	Drops     []DropRecord `json:"drops,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Transcription is the terminal result artifact: the source-merged,
// chronologically ordered transcript plus per-stage timings in seconds.
type Transcription struct {
	Segments []AlignedSegment   `json:"segments"`
	Text     string             `json:"text"`
	Timings  map[string]float64 `json:"stage_timings"`
}

// Diarization is the raw speaker-turn artifact, kept per source.
type Diarization struct {
	Turns []SpeakerTurn `json:"turns"`
}

// StageError is the error artifact written when a pipeline stage fails.
type StageError struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

func (e StageError) Error() string {
	return fmt.Sprintf("%s: %s", e.Stage, e.Message)
}

// Result bundles everything retrievable for a job.
type Result struct {
	Job           Job            `json:"job"`
	Status        Status         `json:"status"`
	Transcription *Transcription `json:"transcription,omitempty"`
	Diarization   *Diarization   `json:"diarization,omitempty"`
	Summary       string         `json:"summary,omitempty"`
	Error         *StageError    `json:"error,omitempty"`
}

// QueueStats is the read-only scheduling surface.
type QueueStats struct {
	Depth         int `json:"depth"`
	ActiveWorkers int `json:"active_workers"`
	Capacity      int `json:"capacity"`
}
