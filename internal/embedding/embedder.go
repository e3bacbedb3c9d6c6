// Package embedding wraps the embedding model behind a normalizing,
// caching interface. Every vector leaving this package is unit length, so
// downstream cosine math reduces to a dot product.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"tropeminer/internal/logging"
)

// Backend produces raw embedding vectors. *ollama.Client satisfies it.
type Backend interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	EmbedModel() string
}

// Embedder memoizes normalized embeddings keyed by model and input digest.
type Embedder struct {
	backend     Backend
	cache       *lruCache
	concurrency int
	logger      *slog.Logger
}

// New builds an Embedder over backend with the given cache capacity and
// batch fan-out width.
func New(backend Backend, cacheSize, concurrency int, logger *slog.Logger) *Embedder {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Embedder{
		backend:     backend,
		cache:       newLRUCache(cacheSize),
		concurrency: concurrency,
		logger:      logging.NewComponentLogger(logger, "embedding"),
	}
}

// Embed returns the unit-length embedding for text, consulting the cache
// first. Identical inputs always yield identical vectors within a process.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	key := e.cacheKey(text)
	if vector, ok := e.cache.get(key); ok {
		return vector, nil
	}

	raw, err := e.backend.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	vector := Normalize(raw)
	e.cache.put(key, vector)
	return vector, nil
}

// EmbedBatch embeds texts concurrently, preserving input order. The first
// failure cancels the remaining work.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	vectors := make([][]float64, len(texts))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.concurrency)
	for i, text := range texts {
		group.Go(func() error {
			vector, err := e.Embed(groupCtx, text)
			if err != nil {
				return err
			}
			vectors[i] = vector
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// CacheLen reports the number of cached vectors.
func (e *Embedder) CacheLen() int { return e.cache.len() }

func (e *Embedder) cacheKey(text string) string {
	digest := sha256.Sum256([]byte(e.backend.EmbedModel() + "\x00" + text))
	return hex.EncodeToString(digest[:])
}
