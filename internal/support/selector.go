// Package support selects the evidence chunks a scene will be judged
// against: a vector-search first stage over the work's chunks, then an
// LLM rerank that keeps the few most probative snippets.
package support

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"tropeminer/internal/logging"
	"tropeminer/internal/services/chroma"
	"tropeminer/internal/services/ollama"
	"tropeminer/internal/store"
)

// Embedder produces normalized embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Retriever searches chunk vectors for one work. *chroma.ChunkIndex
// satisfies it.
type Retriever interface {
	Query(ctx context.Context, workID string, embedding []float64, topK int) ([]chroma.Hit, error)
}

// Completer runs a JSON-mode LLM call. *ollama.Client satisfies it.
type Completer interface {
	CompleteJSON(ctx context.Context, prompt string) (string, error)
}

// Options tune one selection pass.
type Options struct {
	TopK       int
	KeepM      int
	DocCharMax int
}

// Selection is the outcome for one scene: every retrieved row for
// persistence, plus the picked snippets in rank order for downstream
// stages.
type Selection struct {
	Supports    []store.Support
	PickedIDs   []string
	PickedTexts []string
	Notes       string
}

// Selector is safe for concurrent use across scenes.
type Selector struct {
	embedder  Embedder
	retriever Retriever
	completer Completer
	opts      Options
	logger    *slog.Logger
}

func NewSelector(embedder Embedder, retriever Retriever, completer Completer, opts Options, logger *slog.Logger) *Selector {
	return &Selector{
		embedder:  embedder,
		retriever: retriever,
		completer: completer,
		opts:      opts,
		logger:    logging.NewComponentLogger(logger, "support"),
	}
}

// Select retrieves the top-k chunks for the scene and asks the reranker
// to keep the m most probative. Rerank failures of any kind degrade to the
// stage-1 order; retrieval failures are returned to the caller.
func (s *Selector) Select(ctx context.Context, workID, sceneID, sceneText string) (*Selection, error) {
	vector, err := s.embedder.Embed(ctx, sceneText)
	if err != nil {
		return nil, err
	}
	hits, err := s.retriever.Query(ctx, workID, vector, s.opts.TopK)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		s.logger.Warn("no chunks retrieved for scene", logging.String("scene", sceneID))
		return &Selection{}, nil
	}

	// Nearest first, regardless of what the store returned.
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })

	picked, notes := s.rerank(ctx, sceneID, sceneText, hits)

	rankOf := make(map[string]int, len(picked))
	for i, id := range picked {
		rankOf[id] = i + 1
	}

	sel := &Selection{PickedIDs: picked, Notes: notes}
	byID := make(map[string]chroma.Hit, len(hits))
	for _, hit := range hits {
		byID[hit.ID] = hit
		row := store.Support{
			SceneID:     sceneID,
			ChunkID:     hit.ID,
			Stage1Score: clamp01(hit.Similarity),
		}
		if rank, ok := rankOf[hit.ID]; ok {
			row.Picked = true
			row.Rank = rank
			// Rank-decayed stage-2 score: 1 for the top pick, down to 1/M.
			row.Stage2Score = float64(len(picked)-rank+1) / float64(len(picked))
		}
		sel.Supports = append(sel.Supports, row)
	}
	for _, id := range picked {
		sel.PickedTexts = append(sel.PickedTexts, byID[id].Document)
	}
	return sel, nil
}

// rerank runs stage 2. Every failure path falls back to the stage-1 order,
// which is the documented degradation for this stage.
func (s *Selector) rerank(ctx context.Context, sceneID, sceneText string, hits []chroma.Hit) (picked []string, notes string) {
	keepM := s.opts.KeepM
	if keepM > len(hits) {
		keepM = len(hits)
	}

	items := make([]promptItem, 0, len(hits))
	for _, hit := range hits {
		text := strings.TrimSpace(hit.Document)
		items = append(items, promptItem{
			ID:      hit.ID,
			KNN:     clamp01(hit.Similarity),
			Len:     len([]rune(text)),
			Snippet: truncateRunes(text, s.opts.DocCharMax),
		})
	}

	prompt, err := buildPrompt(sceneText, items, keepM)
	if err != nil {
		return s.fallback(sceneID, hits, keepM, err)
	}
	raw, err := s.completer.CompleteJSON(ctx, prompt)
	if err != nil {
		return s.fallback(sceneID, hits, keepM, err)
	}
	var resp rerankResponse
	if err := ollama.DecodeJSON(raw, &resp); err != nil {
		return s.fallback(sceneID, hits, keepM, err)
	}

	allowed := make(map[string]bool, len(hits))
	for _, hit := range hits {
		allowed[hit.ID] = true
	}
	seen := make(map[string]bool, keepM)
	for _, id := range resp.Picked {
		if !allowed[id] || seen[id] {
			continue
		}
		seen[id] = true
		picked = append(picked, id)
		if len(picked) == keepM {
			break
		}
	}
	if len(picked) == 0 {
		return s.fallback(sceneID, hits, keepM, nil)
	}
	return picked, strings.TrimSpace(resp.Notes)
}

func (s *Selector) fallback(sceneID string, hits []chroma.Hit, keepM int, cause error) ([]string, string) {
	if cause != nil {
		s.logger.Warn("rerank failed, keeping nearest neighbors",
			logging.String("scene", sceneID),
			logging.Error(cause))
	} else {
		s.logger.Warn("rerank picked nothing usable, keeping nearest neighbors",
			logging.String("scene", sceneID))
	}
	picked := make([]string, 0, keepM)
	for _, hit := range hits[:keepM] {
		picked = append(picked, hit.ID)
	}
	return picked, "fallback=knn"
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
