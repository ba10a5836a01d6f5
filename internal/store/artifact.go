package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned for unknown job ids and absent artifacts.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when creating a job whose namespace is populated.
var ErrAlreadyExists = errors.New("job already exists")

// ErrInUse is returned when deleting a job a worker currently writes to.
var ErrInUse = errors.New("job is in use")

// Kind names one artifact inside a job namespace. Which kinds exist for a
// job is the wire contract for its status.
type Kind string

const (
	KindMetadata      Kind = "metadata"
	KindAudio         Kind = "audio"
	KindProgress      Kind = "progress"
	KindTranscription Kind = "transcription"
	KindDiarization   Kind = "diarization"
	KindSummary       Kind = "summary"
	KindError         Kind = "error"
)

// filename maps an artifact kind to its object name inside the namespace.
func (k Kind) filename() string {
	if k == KindSummary {
		return string(k) + ".txt"
	}
	return string(k) + ".json"
}

// Backend is the pluggable artifact store. Files, blob stores, and SQL
// key-value tables all satisfy it; status derivation stays backend-agnostic.
// Write must be atomic from a reader's perspective: a concurrent Read sees
// either the previous payload or the full new one, never a partial write.
type Backend interface {
	// Init claims a fresh namespace for jobID. ErrAlreadyExists if populated.
	Init(ctx context.Context, jobID string) error
	Write(ctx context.Context, jobID string, kind Kind, payload []byte) error
	// Read returns ErrNotFound for absent jobs or artifacts.
	Read(ctx context.Context, jobID string, kind Kind) ([]byte, error)
	Exists(ctx context.Context, jobID string, kind Kind) (bool, error)
	// Remove deletes the whole namespace. ErrNotFound if absent.
	Remove(ctx context.Context, jobID string) error
	// Jobs lists all namespaces, in no particular order.
	Jobs(ctx context.Context) ([]string, error)
}
