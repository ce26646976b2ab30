package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"carerelay/internal/domain"
)

// AnalyzerConfig configures the emotion-analysis collaborator client.
type AnalyzerConfig struct {
	APIBase string
	APIKey  string
	Model   string
	Logger  *slog.Logger
}

// HTTPAnalyzer calls an emotion-analysis API over patient audio or text and
// returns a human-readable insight summary.
type HTTPAnalyzer struct {
	apiBase string
	apiKey  string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

func NewHTTPAnalyzer(cfg AnalyzerConfig) *HTTPAnalyzer {
	if cfg.Model == "" {
		cfg.Model = "emotion-insight-1"
	}
	return &HTTPAnalyzer{
		apiBase: cfg.APIBase,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger: cfg.Logger,
	}
}

type analyzeRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type analyzeResponse struct {
	Insights string `json:"insights"`
}

// AnalyzeEmotion extracts emotional insights from the patient's message.
// Text content is prefixed so the collaborator treats it as literal text
// rather than a media reference.
func (a *HTTPAnalyzer) AnalyzeEmotion(ctx context.Context, content domain.Content) (string, error) {
	input := content.AudioRef
	if content.Kind == domain.ContentText {
		input = "Text from patient: " + content.Text
	}

	body, err := json.Marshal(analyzeRequest{Model: a.model, Input: input})
	if err != nil {
		return "", fmt.Errorf("encode analyze request: %w", err)
	}

	url := a.apiBase + "/emotion/insights"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("emotion API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("emotion API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode emotion response: %w", err)
	}

	a.logger.Info("emotion analysis complete",
		"kind", content.Kind,
		"insight_len", len(result.Insights),
	)

	return result.Insights, nil
}
