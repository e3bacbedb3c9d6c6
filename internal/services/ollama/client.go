package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"tropeminer/internal/config"
	"tropeminer/internal/logging"
	"tropeminer/internal/services"
)

const (
	embedEndpoint    = "/api/embeddings"
	generateEndpoint = "/api/generate"

	maxResponseBytes = 8 << 20
)

// Client talks to a local Ollama daemon for embeddings and JSON-mode
// reasoning. All calls honor the passed context and retry transient
// failures with capped exponential backoff.
type Client struct {
	baseURL       string
	embedModel    string
	reasonerModel string
	embedTimeout  time.Duration
	llmTimeout    time.Duration
	httpClient    *http.Client
	retrier       services.Retrier
	logger        *slog.Logger
}

// New builds a client from the ollama configuration section.
func New(cfg config.Ollama, logger *slog.Logger) *Client {
	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		embedModel:    cfg.EmbedModel,
		reasonerModel: cfg.ReasonerModel,
		embedTimeout:  time.Duration(cfg.EmbedTimeoutSeconds) * time.Second,
		llmTimeout:    time.Duration(cfg.LLMTimeoutSeconds) * time.Second,
		httpClient:    &http.Client{},
		retrier: services.Retrier{
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   time.Duration(cfg.RetryBaseDelaySeconds) * time.Second,
		},
		logger: logging.NewComponentLogger(logger, "ollama"),
	}
}

// EmbedModel reports the configured embedding model name.
func (c *Client) EmbedModel() string { return c.embedModel }

// ReasonerModel reports the configured reasoning model name.
func (c *Client) ReasonerModel() string { return c.reasonerModel }

type embedRequest struct {
	Model string `json:"model"`
	// Older daemons read "prompt", newer ones read "input". Sending both
	// keeps us compatible with either.
	Prompt string `json:"prompt"`
	Input  string `json:"input"`
}

type embedResponse struct {
	Embedding  []float64   `json:"embedding"`
	Embeddings [][]float64 `json:"embeddings"`
}

// Embed returns the raw (unnormalized) embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	if strings.TrimSpace(text) == "" {
		return nil, services.Wrap(services.ErrValidation, "embed", "request", "empty input text", nil)
	}

	payload := embedRequest{Model: c.embedModel, Prompt: text, Input: text}

	var vector []float64
	err := c.retrier.Do(ctx, "embed", func() error {
		body, err := c.post(ctx, embedEndpoint, payload, c.embedTimeout)
		if err != nil {
			return err
		}
		var decoded embedResponse
		if err := json.Unmarshal(body, &decoded); err != nil {
			return services.Wrap(services.ErrMalformed, "embed", "decode", "invalid embedding response", err)
		}
		switch {
		case len(decoded.Embedding) > 0:
			vector = decoded.Embedding
		case len(decoded.Embeddings) > 0 && len(decoded.Embeddings[0]) > 0:
			vector = decoded.Embeddings[0]
		default:
			return services.Wrap(services.ErrMalformed, "embed", "decode", "response carried no embedding", nil)
		}
		return nil
	})
	if err != nil {
		return nil, classify("embed", err)
	}
	return vector, nil
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Format  string         `json:"format,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// CompleteJSON runs a single non-streaming generation in JSON mode and
// returns the raw model output. Callers decode it with DecodeJSON.
func (c *Client) CompleteJSON(ctx context.Context, prompt string) (string, error) {
	payload := generateRequest{
		Model:   c.reasonerModel,
		Prompt:  prompt,
		Stream:  false,
		Format:  "json",
		Options: map[string]any{"temperature": 0},
	}

	var raw string
	err := c.retrier.Do(ctx, "generate", func() error {
		body, err := c.post(ctx, generateEndpoint, payload, c.llmTimeout)
		if err != nil {
			return err
		}
		var decoded generateResponse
		if err := json.Unmarshal(body, &decoded); err != nil {
			return services.Wrap(services.ErrMalformed, "generate", "decode", "invalid generate response", err)
		}
		if strings.TrimSpace(decoded.Response) == "" {
			return services.Wrap(services.ErrMalformed, "generate", "decode", "model returned empty response", nil)
		}
		raw = decoded.Response
		return nil
	})
	if err != nil {
		return "", classify("generate", err)
	}
	return raw, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, timeout time.Duration) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "ollama", "encode", "marshal request", err)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "ollama", "request", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &services.HTTPStatusError{StatusCode: resp.StatusCode, Body: string(body)}
		if delay, ok := services.ParseRetryAfter(resp.Header.Get("Retry-After")); ok {
			statusErr.RetryAfter = delay
		}
		return nil, statusErr
	}
	return body, nil
}

// classify maps raw transport failures onto the pipeline error taxonomy so
// exit codes come out right at the top level.
func classify(stage string, err error) error {
	if err == nil {
		return nil
	}
	var statusErr *services.HTTPStatusError
	switch {
	case errors.As(err, &statusErr):
		if statusErr.StatusCode >= 500 || statusErr.StatusCode == http.StatusTooManyRequests {
			return services.Wrap(services.ErrUnavailable, stage, "http", fmt.Sprintf("status %d", statusErr.StatusCode), err)
		}
		return services.Wrap(services.ErrMalformed, stage, "http", fmt.Sprintf("status %d", statusErr.StatusCode), err)
	case services.IsMarked(err):
		return err
	default:
		return services.Wrap(services.ErrUnavailable, stage, "transport", "request failed", err)
	}
}
