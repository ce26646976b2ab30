// Package enrich holds the HTTP clients for the two enrichment
// collaborators: audio translation and emotion analysis. Both are treated
// as slow, fallible black boxes; the pipeline decides what a failure means.
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
)

// TranslatorConfig configures the translation collaborator client.
type TranslatorConfig struct {
	APIBase string // e.g. "https://api.example.com/v1"
	APIKey  string
	Model   string
	Logger  *slog.Logger
}

// HTTPTranslator calls a speech-to-speech translation API and returns the
// translated audio reference.
type HTTPTranslator struct {
	apiBase string
	apiKey  string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

func NewHTTPTranslator(cfg TranslatorConfig) *HTTPTranslator {
	if cfg.Model == "" {
		cfg.Model = "speech-translate-1"
	}
	return &HTTPTranslator{
		apiBase: cfg.APIBase,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger: cfg.Logger,
	}
}

type translateRequest struct {
	Model          string `json:"model"`
	Audio          string `json:"audio"`
	TargetLanguage string `json:"targetLanguage"`
}

type translateResponse struct {
	TranslatedAudio string `json:"translatedAudio"`
}

// Translate converts the doctor's audio into targetLanguage and returns the
// translated audio reference.
func (t *HTTPTranslator) Translate(ctx context.Context, audioRef, targetLanguage string) (string, error) {
	body, err := json.Marshal(translateRequest{
		Model:          t.model,
		Audio:          audioRef,
		TargetLanguage: targetLanguage,
	})
	if err != nil {
		return "", fmt.Errorf("encode translate request: %w", err)
	}

	url := t.apiBase + "/audio/translations"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("translation API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("translation API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode translation response: %w", err)
	}
	if result.TranslatedAudio == "" {
		return "", fmt.Errorf("no translated audio data was returned")
	}

	t.logger.Info("translation complete",
		"target", targetLanguage,
		"ref_len", len(result.TranslatedAudio),
	)

	return result.TranslatedAudio, nil
}
