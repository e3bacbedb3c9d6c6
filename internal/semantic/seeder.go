// Package semantic seeds candidates by nearest-neighbor search: tropes
// whose definition embedding lands close to a chunk embedding become
// hypotheses even without a lexical mention.
package semantic

import (
	"context"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"tropeminer/internal/catalog"
	"tropeminer/internal/logging"
	"tropeminer/internal/store"
	"tropeminer/internal/textindex"
)

// ChunkSearcher finds the nearest chunk vectors for a work.
// *chroma.ChunkIndex satisfies it.
type ChunkSearcher interface {
	Query(ctx context.Context, workID string, embedding []float64, topK int) ([]Hit, error)
}

// Hit mirrors the vector store result shape this package needs.
type Hit struct {
	ID         string
	Similarity float64
}

// Embedder produces normalized embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Options tune one semantic pass.
type Options struct {
	Tau         float64
	TopN        int
	PerSceneCap int
}

// Seeder queries the chunk collection once per trope.
type Seeder struct {
	embedder Embedder
	searcher ChunkSearcher
	opts     Options
	logger   *slog.Logger
}

// NewSeeder builds a semantic seeder.
func NewSeeder(embedder Embedder, searcher ChunkSearcher, opts Options, logger *slog.Logger) *Seeder {
	return &Seeder{
		embedder: embedder,
		searcher: searcher,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "semantic"),
	}
}

// Seed embeds each trope's definition, retrieves the nearest chunks, and
// emits a candidate per hit at or above tau, span equal to the chunk span.
// Per (trope, scene) only the top-capped hits survive, ties broken by lower
// chunk idx.
func (s *Seeder) Seed(ctx context.Context, ix *textindex.Index, tropes []catalog.Trope) ([]store.Candidate, error) {
	workID := ix.Work().ID
	var out []store.Candidate

	for _, trope := range tropes {
		vector, err := s.embedder.Embed(ctx, trope.QueryText())
		if err != nil {
			return nil, err
		}
		hits, err := s.searcher.Query(ctx, workID, vector, s.opts.TopN)
		if err != nil {
			return nil, err
		}

		type scored struct {
			chunk      textindex.Chunk
			similarity float64
		}
		perScene := make(map[string][]scored)
		for _, hit := range hits {
			if hit.Similarity < s.opts.Tau {
				continue
			}
			chunk, ok := ix.ChunkByID(hit.ID)
			if !ok {
				// Vector store knows a chunk the database does not; stale
				// collection, skip it.
				s.logger.Warn("hit references unknown chunk", logging.String("chunk", hit.ID))
				continue
			}
			perScene[chunk.SceneID] = append(perScene[chunk.SceneID], scored{chunk: chunk, similarity: hit.Similarity})
		}

		sceneIDs := make([]string, 0, len(perScene))
		for sceneID := range perScene {
			sceneIDs = append(sceneIDs, sceneID)
		}
		sort.Strings(sceneIDs)

		for _, sceneID := range sceneIDs {
			scenehits := perScene[sceneID]
			sort.Slice(scenehits, func(i, j int) bool {
				if scenehits[i].similarity != scenehits[j].similarity {
					return scenehits[i].similarity > scenehits[j].similarity
				}
				return scenehits[i].chunk.Idx < scenehits[j].chunk.Idx
			})
			if s.opts.PerSceneCap > 0 && len(scenehits) > s.opts.PerSceneCap {
				scenehits = scenehits[:s.opts.PerSceneCap]
			}
			for _, hit := range scenehits {
				out = append(out, store.Candidate{
					ID:      uuid.NewString(),
					WorkID:  workID,
					SceneID: sceneID,
					ChunkID: hit.chunk.ID,
					TropeID: trope.ID,
					Start:   hit.chunk.CharStart,
					End:     hit.chunk.CharEnd,
					Source:  store.SourceSemantic,
					Score:   hit.similarity,
				})
			}
		}
	}

	s.logger.Info("semantic pass complete",
		logging.String("work", workID),
		logging.Int("candidates", len(out)))
	return out, nil
}
