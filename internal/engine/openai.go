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
	"meetscribe/pkg/resilience"

	"go.uber.org/zap"
)

const summarySystemPrompt = "You are a meeting assistant. Produce concise meeting minutes from the transcript: " +
	"organize content by topic and call out decisions and action items."

// OpenAISummarizer generates meeting minutes through an OpenAI-compatible
// chat completions endpoint. Calls are retried with exponential backoff.
type OpenAISummarizer struct {
	apiKey  string
	modelID string
	baseURL string
	client  *http.Client
	retry   *resilience.RetryConfig
}

// NewOpenAISummarizer creates a summarizer client. baseURL may point at any
// OpenAI-compatible server; empty selects the default API.
func NewOpenAISummarizer(apiKey, modelID, baseURL string) *OpenAISummarizer {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAISummarizer{
		apiKey:  apiKey,
		modelID: modelID,
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 10 * time.Minute,
		},
		retry: resilience.DefaultRetryConfig(),
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Summarize returns meeting minutes for the merged transcript text.
func (s *OpenAISummarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	var summary string

	err := resilience.RetryWithExponentialBackoff(ctx, s.retry, func() error {
		out, err := s.complete(ctx, transcript)
		if err != nil {
			logger.Warn("Summarization attempt failed", zap.Error(err))
			return err
		}
		summary = out
		return nil
	})
	if err != nil {
		return "", err
	}

	logger.Info("Summarization completed", zap.Int("length", len(summary)))
	return summary, nil
}

func (s *OpenAISummarizer) complete(ctx context.Context, transcript string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: s.modelID,
		Messages: []chatMessage{
			{Role: "system", Content: summarySystemPrompt},
			{Role: "user", Content: transcript},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("summary request failed: status=%d, body=%s", resp.StatusCode, string(respBody))
	}

	var out chatResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("summary response contained no choices")
	}

	return out.Choices[0].Message.Content, nil
}
