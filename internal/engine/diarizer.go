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
	"meetscribe/pkg/resilience"

	"go.uber.org/zap"
)

// DiarizerClient talks to a diarization sidecar (a pyannote-style service)
// exposing a synchronous speaker-turn endpoint. A circuit breaker makes
// repeated sidecar failures fail fast instead of stalling every worker.
type DiarizerClient struct {
	endpoint string
	modelID  string
	client   *http.Client
	breaker  *resilience.CircuitBreaker
}

// NewDiarizerClient creates a diarization client for one model.
func NewDiarizerClient(endpoint, modelID string) *DiarizerClient {
	return &DiarizerClient{
		endpoint: endpoint,
		modelID:  modelID,
		client: &http.Client{
			Timeout: 30 * time.Minute,
		},
		breaker: resilience.NewCircuitBreaker(5, 2*time.Minute),
	}
}

type diarizeRequest struct {
	Audio string `json:"audio"`
	Model string `json:"model"`
}

type diarizeResponse struct {
	Turns []diarizeTurn `json:"turns"`
}

type diarizeTurn struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// Diarize returns the speaker turns of one audio source, tagged with the
// source name.
func (c *DiarizerClient) Diarize(ctx context.Context, source model.AudioSource) ([]model.SpeakerTurn, error) {
	var turns []model.SpeakerTurn
	err := c.breaker.Execute(func() error {
		var err error
		turns, err = c.diarize(ctx, source)
		return err
	})
	return turns, err
}

func (c *DiarizerClient) diarize(ctx context.Context, source model.AudioSource) ([]model.SpeakerTurn, error) {
	body, err := json.Marshal(diarizeRequest{
		Audio: source.Path,
		Model: c.modelID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/diarize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

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
		return nil, fmt.Errorf("diarization request failed: status=%d, body=%s", resp.StatusCode, string(respBody))
	}

	var out diarizeResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	turns := make([]model.SpeakerTurn, 0, len(out.Turns))
	for _, turn := range out.Turns {
		turns = append(turns, model.SpeakerTurn{
			Start:   turn.Start,
			End:     turn.End,
			Speaker: turn.Speaker,
			Source:  source.Name,
		})
	}

	logger.Info("Diarization completed",
		zap.String("source", source.Name),
		zap.Int("turns", len(turns)))

	return turns, nil
}
