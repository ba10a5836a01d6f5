package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"meetscribe/pkg/logger"
	"meetscribe/pkg/model"

	"go.uber.org/zap"
)

// WhisperClient talks to a whisper-server sidecar exposing a synchronous
// transcription endpoint. One client per loaded model.
type WhisperClient struct {
	endpoint string
	modelID  string
	client   *http.Client
}

// NewWhisperClient creates a recognition client for one model.
func NewWhisperClient(endpoint, modelID string) *WhisperClient {
	return &WhisperClient{
		endpoint: endpoint,
		modelID:  modelID,
		client: &http.Client{
			Timeout: 30 * time.Minute,
		},
	}
}

type whisperRequest struct {
	Audio string `json:"audio"`
	Model string `json:"model"`
}

type whisperResponse struct {
	Segments []whisperSegment `json:"segments"`
	Language string           `json:"language,omitempty"`
}

type whisperSegment struct {
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	Text         string  `json:"text"`
	NoSpeechProb float64 `json:"no_speech_prob"`
}

// Recognize transcribes one audio source and tags every segment with the
// source name.
func (c *WhisperClient) Recognize(ctx context.Context, source model.AudioSource) ([]model.Segment, error) {
	body, err := json.Marshal(whisperRequest{
		Audio: source.Path,
		Model: c.modelID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/transcribe", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	logger.Debug("Starting recognition",
		zap.String("source", source.Name),
		zap.String("model", c.modelID))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("recognition request failed: status=%d, body=%s", resp.StatusCode, string(respBody))
	}

	var out whisperResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	segments := make([]model.Segment, 0, len(out.Segments))
	for _, seg := range out.Segments {
		segments = append(segments, model.Segment{
			Start:        seg.Start,
			End:          seg.End,
			Text:         seg.Text,
			NoSpeechProb: seg.NoSpeechProb,
			Source:       source.Name,
		})
	}

	logger.Info("Recognition completed",
		zap.String("source", source.Name),
		zap.Int("segments", len(segments)))

	return segments, nil
}
