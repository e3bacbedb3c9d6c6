package chroma

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
	"sync"
	"time"

	"tropeminer/internal/config"
	"tropeminer/internal/logging"
	"tropeminer/internal/services"
)

const maxResponseBytes = 32 << 20

// Client is a thin HTTP client for a Chroma vector store. Collections are
// addressed by name; the client caches the name-to-id mapping after the
// first get-or-create call.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	retrier    services.Retrier
	logger     *slog.Logger

	mu          sync.Mutex
	collections map[string]string
}

// New builds a client from the chroma configuration section.
func New(cfg config.Chroma, logger *slog.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		timeout:     time.Duration(cfg.QueryTimeoutSeconds) * time.Second,
		httpClient:  &http.Client{},
		retrier:     services.Retrier{},
		logger:      logging.NewComponentLogger(logger, "chroma"),
		collections: make(map[string]string),
	}
}

type collectionRequest struct {
	Name        string         `json:"name"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	GetOrCreate bool           `json:"get_or_create"`
}

type collectionResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// EnsureCollection creates the named collection with cosine distance if it
// does not exist and returns its id.
func (c *Client) EnsureCollection(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	if id, ok := c.collections[name]; ok {
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	payload := collectionRequest{
		Name:        name,
		Metadata:    map[string]any{"hnsw:space": "cosine"},
		GetOrCreate: true,
	}

	var created collectionResponse
	err := c.retrier.Do(ctx, "ensure collection", func() error {
		body, err := c.post(ctx, "/api/v1/collections", payload)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &created); err != nil {
			return services.Wrap(services.ErrMalformed, "chroma", "create collection", "invalid response", err)
		}
		if created.ID == "" {
			return services.Wrap(services.ErrMalformed, "chroma", "create collection", "response carried no id", nil)
		}
		return nil
	})
	if err != nil {
		return "", classify("ensure collection", err)
	}

	c.mu.Lock()
	c.collections[name] = created.ID
	c.mu.Unlock()
	return created.ID, nil
}

// GetCollection resolves an existing collection by name without creating it.
func (c *Client) GetCollection(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	if id, ok := c.collections[name]; ok {
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	var resolved collectionResponse
	err := c.retrier.Do(ctx, "get collection", func() error {
		body, err := c.get(ctx, "/api/v1/collections/"+name)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &resolved); err != nil {
			return services.Wrap(services.ErrMalformed, "chroma", "get collection", "invalid response", err)
		}
		return nil
	})
	if err != nil {
		var statusErr *services.HTTPStatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return "", services.Wrap(services.ErrNotFound, "chroma", "get collection", name, nil)
		}
		return "", classify("get collection", err)
	}
	if resolved.ID == "" {
		return "", services.Wrap(services.ErrNotFound, "chroma", "get collection", name, nil)
	}

	c.mu.Lock()
	c.collections[name] = resolved.ID
	c.mu.Unlock()
	return resolved.ID, nil
}

type upsertRequest struct {
	IDs        []string         `json:"ids"`
	Embeddings [][]float64      `json:"embeddings"`
	Documents  []string         `json:"documents,omitempty"`
	Metadatas  []map[string]any `json:"metadatas,omitempty"`
}

// Record is one vector plus its document text and metadata.
type Record struct {
	ID        string
	Embedding []float64
	Document  string
	Metadata  map[string]any
}

// Upsert writes records into the named collection, creating it on demand.
func (c *Client) Upsert(ctx context.Context, collection string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	id, err := c.EnsureCollection(ctx, collection)
	if err != nil {
		return err
	}

	payload := upsertRequest{
		IDs:        make([]string, 0, len(records)),
		Embeddings: make([][]float64, 0, len(records)),
		Documents:  make([]string, 0, len(records)),
		Metadatas:  make([]map[string]any, 0, len(records)),
	}
	for _, record := range records {
		if record.ID == "" || len(record.Embedding) == 0 {
			return services.Wrap(services.ErrValidation, "chroma", "upsert", "record missing id or embedding", nil)
		}
		payload.IDs = append(payload.IDs, record.ID)
		payload.Embeddings = append(payload.Embeddings, record.Embedding)
		payload.Documents = append(payload.Documents, record.Document)
		payload.Metadatas = append(payload.Metadatas, record.Metadata)
	}

	err = c.retrier.Do(ctx, "upsert", func() error {
		_, err := c.post(ctx, "/api/v1/collections/"+id+"/upsert", payload)
		return err
	})
	if err != nil {
		return classify("upsert", err)
	}
	return nil
}

type queryRequest struct {
	QueryEmbeddings [][]float64    `json:"query_embeddings"`
	NResults        int            `json:"n_results"`
	Where           map[string]any `json:"where,omitempty"`
	Include         []string       `json:"include"`
}

type queryResponse struct {
	IDs       [][]string         `json:"ids"`
	Distances [][]float64        `json:"distances"`
	Documents [][]string         `json:"documents"`
	Metadatas [][]map[string]any `json:"metadatas"`
}

// Hit is one nearest-neighbor result. Similarity is cosine similarity,
// derived from the store's cosine distance.
type Hit struct {
	ID         string
	Similarity float64
	Document   string
	Metadata   map[string]any
}

// Query runs a single-vector nearest-neighbor search against the named
// collection, optionally filtered by metadata equality.
func (c *Client) Query(ctx context.Context, collection string, embedding []float64, topK int, where map[string]any) ([]Hit, error) {
	if len(embedding) == 0 {
		return nil, services.Wrap(services.ErrValidation, "chroma", "query", "empty query embedding", nil)
	}
	if topK <= 0 {
		return nil, services.Wrap(services.ErrValidation, "chroma", "query", "top-k must be positive", nil)
	}

	id, err := c.GetCollection(ctx, collection)
	if err != nil {
		return nil, err
	}

	payload := queryRequest{
		QueryEmbeddings: [][]float64{embedding},
		NResults:        topK,
		Where:           where,
		Include:         []string{"metadatas", "documents", "distances"},
	}

	var decoded queryResponse
	err = c.retrier.Do(ctx, "query", func() error {
		body, err := c.post(ctx, "/api/v1/collections/"+id+"/query", payload)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &decoded); err != nil {
			return services.Wrap(services.ErrMalformed, "chroma", "query", "invalid response", err)
		}
		return nil
	})
	if err != nil {
		return nil, classify("query", err)
	}

	if len(decoded.IDs) == 0 {
		return nil, nil
	}

	row := decoded.IDs[0]
	hits := make([]Hit, 0, len(row))
	for i, hitID := range row {
		hit := Hit{ID: hitID}
		if len(decoded.Distances) > 0 && i < len(decoded.Distances[0]) {
			hit.Similarity = 1 - decoded.Distances[0][i]
		}
		if len(decoded.Documents) > 0 && i < len(decoded.Documents[0]) {
			hit.Document = decoded.Documents[0][i]
		}
		if len(decoded.Metadatas) > 0 && i < len(decoded.Metadatas[0]) {
			hit.Metadata = decoded.Metadatas[0][i]
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "chroma", "encode", "marshal request", err)
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(encoded))
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "chroma", "request", "build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &services.HTTPStatusError{StatusCode: resp.StatusCode, Body: string(responseBody)}
		if delay, ok := services.ParseRetryAfter(resp.Header.Get("Retry-After")); ok {
			statusErr.RetryAfter = delay
		}
		return nil, statusErr
	}
	return responseBody, nil
}

func classify(stage string, err error) error {
	if err == nil {
		return nil
	}
	if services.IsMarked(err) {
		return err
	}
	var statusErr *services.HTTPStatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode < 500 && statusErr.StatusCode != http.StatusTooManyRequests {
		return services.Wrap(services.ErrMalformed, "chroma", stage, fmt.Sprintf("status %d", statusErr.StatusCode), err)
	}
	return services.Wrap(services.ErrUnavailable, "chroma", stage, "request failed", err)
}
