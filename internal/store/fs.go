package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"meetscribe/pkg/logger"

	"go.uber.org/zap"
)

// FSBackend keeps one directory per job under a root directory. Artifact
// writes go to a temp file in the job directory and are renamed into place,
// so readers never observe a half-written payload.
type FSBackend struct {
	root string
}

// NewFSBackend creates the root directory if needed.
func NewFSBackend(root string) (*FSBackend, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create jobs directory: %w", err)
	}

	logger.Info("Filesystem artifact store initialized", zap.String("root", root))

	return &FSBackend{root: root}, nil
}

func (b *FSBackend) jobDir(jobID string) string {
	return filepath.Join(b.root, jobID)
}

func (b *FSBackend) Init(_ context.Context, jobID string) error {
	err := os.Mkdir(b.jobDir(jobID), 0o755)
	if os.IsExist(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to create job directory: %w", err)
	}
	return nil
}

func (b *FSBackend) Write(_ context.Context, jobID string, kind Kind, payload []byte) error {
	dir := b.jobDir(jobID)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to stat job directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+string(kind)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp artifact: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close artifact: %w", err)
	}

	// Rename is atomic within a filesystem, replacing any prior artifact.
	if err := os.Rename(tmpName, filepath.Join(dir, kind.filename())); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to publish artifact: %w", err)
	}

	return nil
}

func (b *FSBackend) Read(_ context.Context, jobID string, kind Kind) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(b.jobDir(jobID), kind.filename()))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	return data, nil
}

func (b *FSBackend) Exists(_ context.Context, jobID string, kind Kind) (bool, error) {
	_, err := os.Stat(filepath.Join(b.jobDir(jobID), kind.filename()))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat artifact: %w", err)
	}
	return true, nil
}

func (b *FSBackend) Remove(_ context.Context, jobID string) error {
	dir := b.jobDir(jobID)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to stat job directory: %w", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove job directory: %w", err)
	}

	logger.Debug("Job directory removed", zap.String("job_id", jobID))
	return nil
}

func (b *FSBackend) Jobs(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(b.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs directory: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			ids = append(ids, entry.Name())
		}
	}
	return ids, nil
}
