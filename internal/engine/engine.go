package engine

import (
	"context"
	"sync"

	"meetscribe/pkg/logger"
	"meetscribe/pkg/model"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Recognizer converts one audio source into an ordered segment sequence
// with no-speech scores.
type Recognizer interface {
	Recognize(ctx context.Context, source model.AudioSource) ([]model.Segment, error)
}

// Diarizer produces the ordered speaker-turn sequence of one audio source.
type Diarizer interface {
	Diarize(ctx context.Context, source model.AudioSource) ([]model.SpeakerTurn, error)
}

// Summarizer turns the merged transcript text into summary text.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

// Provider hands out engine handles keyed by model identifier.
type Provider interface {
	Recognizer(ctx context.Context, modelID string) (Recognizer, error)
	Diarizer(ctx context.Context, modelID string) (Diarizer, error)
}

// Cache loads engines once per model id and shares the handles across all
// workers. Concurrent first loads of the same id collapse into a single
// factory call.
type Cache struct {
	newRecognizer func(modelID string) (Recognizer, error)
	newDiarizer   func(modelID string) (Diarizer, error)

	group singleflight.Group

	mu          sync.RWMutex
	recognizers map[string]Recognizer
	diarizers   map[string]Diarizer
}

// NewCache wires the engine factories. Factories run at most once per
// model id for the lifetime of the cache.
func NewCache(newRecognizer func(string) (Recognizer, error), newDiarizer func(string) (Diarizer, error)) *Cache {
	return &Cache{
		newRecognizer: newRecognizer,
		newDiarizer:   newDiarizer,
		recognizers:   make(map[string]Recognizer),
		diarizers:     make(map[string]Diarizer),
	}
}

// Recognizer returns the cached handle for modelID, loading it on first use.
func (c *Cache) Recognizer(ctx context.Context, modelID string) (Recognizer, error) {
	c.mu.RLock()
	rec, ok := c.recognizers[modelID]
	c.mu.RUnlock()
	if ok {
		return rec, nil
	}

	v, err, _ := c.group.Do("recognizer:"+modelID, func() (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		logger.Info("Loading recognition engine", zap.String("model", modelID))
		rec, err := c.newRecognizer(modelID)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.recognizers[modelID] = rec
		c.mu.Unlock()
		return rec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Recognizer), nil
}

// Diarizer returns the cached handle for modelID, loading it on first use.
func (c *Cache) Diarizer(ctx context.Context, modelID string) (Diarizer, error) {
	c.mu.RLock()
	dia, ok := c.diarizers[modelID]
	c.mu.RUnlock()
	if ok {
		return dia, nil
	}

	v, err, _ := c.group.Do("diarizer:"+modelID, func() (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		logger.Info("Loading diarization engine", zap.String("model", modelID))
		dia, err := c.newDiarizer(modelID)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.diarizers[modelID] = dia
		c.mu.Unlock()
		return dia, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Diarizer), nil
}
