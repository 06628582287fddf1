// Package genai provides the Ollama REST backend.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// DefaultOllamaModel is used when no model option is provided.
const DefaultOllamaModel = "phi3:latest"

// OllamaOpts holds configuration options for the Ollama client.
type OllamaOpts struct {
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// OllamaOption defines a configuration option for the Ollama client.
type OllamaOption func(*OllamaOpts)

// WithOllamaBaseURL sets the Ollama server base URL.
func WithOllamaBaseURL(url string) OllamaOption {
	return func(o *OllamaOpts) { o.BaseURL = strings.TrimRight(url, "/") }
}

// WithOllamaModel overrides the generation model.
func WithOllamaModel(model string) OllamaOption {
	return func(o *OllamaOpts) { o.Model = model }
}

// WithOllamaHTTPClient injects a custom HTTP client.
func WithOllamaHTTPClient(c *http.Client) OllamaOption {
	return func(o *OllamaOpts) { o.HTTPClient = c }
}

// OllamaClient calls a local or remote Ollama server over its REST API.
// Call deadlines come from the request context; the HTTP client itself sets
// no additional timeout.
type OllamaClient struct {
	baseURL string
	model   string
	http    *http.Client
}

// NewOllamaClient creates an Ollama backend.
func NewOllamaClient(opts ...OllamaOption) (*OllamaClient, error) {
	var cfg OllamaOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("ollama base URL not set")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	slog.Debug("genai.NewOllamaClient: created", "baseURL", cfg.BaseURL, "model", cfg.Model)
	return &OllamaClient{baseURL: cfg.BaseURL, model: cfg.Model, http: cfg.HTTPClient}, nil
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

// Generate produces a completion via POST {base}/api/generate.
func (c *OllamaClient) Generate(ctx context.Context, req Request) (string, error) {
	payload, err := json.Marshal(ollamaGenerateRequest{
		Model:  c.model,
		Prompt: req.User,
		System: req.System,
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		slog.Error("OllamaClient.Generate: request failed", "baseURL", c.baseURL, "error", err)
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read ollama response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		slog.Warn("OllamaClient.Generate: non-200 response", "status", resp.StatusCode)
		return "", fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	var parsed ollamaGenerateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode ollama response: %w", err)
	}
	return strings.TrimSpace(parsed.Response), nil
}
