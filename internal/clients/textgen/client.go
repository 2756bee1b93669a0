// Package textgen calls an OpenAI-compatible chat completion endpoint to
// draft alert analyses, recommendations and emails. Every call is optional:
// failures surface as errors and the workflow falls back to templates.
package textgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Purpose identifies what a generation request is for. It selects the system
// prompt and shows up in logs.
type Purpose string

const (
	PurposeAnalysis       Purpose = "ANALYSIS"
	PurposeRecommendation Purpose = "RECOMMENDATION"
	PurposeEmailDraft     Purpose = "EMAIL_DRAFT"
)

var systemPrompts = map[Purpose]string{
	PurposeAnalysis:       "You are a portfolio compliance analyst. Explain the violation concisely for a compliance officer. Facts only, no speculation.",
	PurposeRecommendation: "You are a portfolio compliance analyst. Propose concrete remediation steps for the violation, one per line.",
	PurposeEmailDraft:     "You are a portfolio compliance analyst. Draft a short professional email notifying the compliance team of the violation.",
}

// Config holds textgen client configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client is a minimal chat-completions client.
type Client struct {
	cfg  Config
	http *http.Client
	log  zerolog.Logger
}

func NewClient(cfg Config, log zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
		log:  log.With().Str("component", "textgen_client").Logger(),
	}
}

// Enabled reports whether the client is configured to make calls at all.
func (c *Client) Enabled() bool {
	return c.cfg.BaseURL != ""
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate produces text for the given purpose and prompt. The call is
// bounded by the client timeout and the caller's context.
func (c *Client) Generate(ctx context.Context, purpose Purpose, prompt string) (string, error) {
	if !c.Enabled() {
		return "", fmt.Errorf("textgen client is not configured")
	}

	reqBody := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompts[purpose]},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.2,
		MaxTokens:   600,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to encode textgen request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build textgen request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("textgen request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read textgen response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("textgen returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode textgen response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("textgen error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("textgen returned no content")
	}

	c.log.Debug().
		Str("purpose", string(purpose)).
		Dur("elapsed", time.Since(start)).
		Msg("Text generation completed")

	return parsed.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
