package chroma

import (
	"context"
	"errors"

	"tropeminer/internal/services"
)

// WorkCollection derives the per-work collection name for a base collection.
func WorkCollection(base, workID string) string {
	return base + "__" + workID
}

// ChunkIndex addresses chunk vectors either in one shared collection
// filtered by work id, or in per-work collections with a fallback to the
// shared one for works indexed before the split.
type ChunkIndex struct {
	client  *Client
	base    string
	perWork bool
}

// NewChunkIndex wires a chunk index over the given client.
func NewChunkIndex(client *Client, base string, perWork bool) *ChunkIndex {
	return &ChunkIndex{client: client, base: base, perWork: perWork}
}

// Upsert writes chunk records for a work into the appropriate collection.
func (ci *ChunkIndex) Upsert(ctx context.Context, workID string, records []Record) error {
	collection := ci.base
	if ci.perWork {
		collection = WorkCollection(ci.base, workID)
	}
	return ci.client.Upsert(ctx, collection, records)
}

// Query searches the work's chunks. In per-work mode a missing per-work
// collection falls back to the shared collection with a work filter.
func (ci *ChunkIndex) Query(ctx context.Context, workID string, embedding []float64, topK int) ([]Hit, error) {
	if ci.perWork {
		hits, err := ci.client.Query(ctx, WorkCollection(ci.base, workID), embedding, topK, nil)
		if err == nil {
			return hits, nil
		}
		if !errors.Is(err, services.ErrNotFound) {
			return nil, err
		}
	}
	return ci.client.Query(ctx, ci.base, embedding, topK, map[string]any{"work_id": workID})
}
