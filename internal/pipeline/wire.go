package pipeline

import (
	"context"
	"log/slog"

	"tropeminer/internal/config"
	"tropeminer/internal/embedding"
	"tropeminer/internal/gazetteer"
	"tropeminer/internal/judge"
	"tropeminer/internal/negation"
	"tropeminer/internal/sanity"
	"tropeminer/internal/semantic"
	"tropeminer/internal/services/chroma"
	"tropeminer/internal/services/ollama"
	"tropeminer/internal/spanverify"
	"tropeminer/internal/store"
	"tropeminer/internal/support"
)

// chunkSearch narrows the chroma chunk index to the hit shape the semantic
// seeder consumes.
type chunkSearch struct {
	idx *chroma.ChunkIndex
}

func (c chunkSearch) Query(ctx context.Context, workID string, embedding []float64, topK int) ([]semantic.Hit, error) {
	hits, err := c.idx.Query(ctx, workID, embedding, topK)
	if err != nil {
		return nil, err
	}
	out := make([]semantic.Hit, len(hits))
	for i, hit := range hits {
		out[i] = semantic.Hit{ID: hit.ID, Similarity: hit.Similarity}
	}
	return out, nil
}

// BuildDeps constructs the production stage implementations from the
// configuration. The judge needs the trope catalog up front, so the store
// is read once here.
func BuildDeps(ctx context.Context, cfg *config.Config, st *store.Store, logger *slog.Logger) (Deps, error) {
	tropes, err := st.ListTropes(ctx)
	if err != nil {
		return Deps{}, err
	}

	ollamaClient := ollama.New(cfg.Ollama, logger)
	embedder := embedding.New(ollamaClient, cfg.Ollama.EmbedCacheSize, cfg.Ollama.EmbedConcurrency, logger)
	chromaClient := chroma.New(cfg.Chroma, logger)
	chunkIndex := chroma.NewChunkIndex(chromaClient, cfg.Chroma.ChunkCollection, cfg.Chroma.PerWorkCollections)

	return Deps{
		Gazetteer: gazetteer.NewSeeder(gazetteer.Options{
			AntiWindow:  cfg.Seeding.AntiWindow,
			MinAliasLen: cfg.Seeding.MinAliasLen,
			MaxPerTrope: cfg.Seeding.MaxPerTrope,
			Stoplist:    gazetteer.NewStoplist(cfg.Seeding.ExtraStoplist),
			DisableAnti: cfg.Seeding.DisableAntiPass,
		}, logger),
		Semantic: semantic.NewSeeder(embedder, chunkSearch{idx: chunkIndex}, semantic.Options{
			Tau:         cfg.Seeding.SemTau,
			TopN:        cfg.Seeding.SemTopN,
			PerSceneCap: cfg.Seeding.SemPerSceneCap,
		}, logger),
		Selector: support.NewSelector(embedder, chunkIndex, ollamaClient, support.Options{
			TopK:       cfg.Judge.RerankTopK,
			KeepM:      cfg.Judge.RerankKeepM,
			DocCharMax: cfg.Judge.RerankDocCharMax,
		}, logger),
		Prior: sanity.NewPrior(embedder, sanity.Options{
			SemSimThreshold: cfg.Judge.SemSimThreshold,
			Downweight:      cfg.Judge.DownweightNoMention,
		}, logger),
		Judge: judge.New(ollamaClient, tropes, judge.Options{
			Threshold:          cfg.Judge.Threshold,
			TropeTopK:          cfg.Judge.TropeTopK,
			CalibrationVersion: cfg.Judge.CalibrationVersion,
		}, logger),
		Verifier: spanverify.NewVerifier(embedder, spanverify.Options{
			Threshold:    cfg.Verifier.SpanThreshold,
			MaxSentences: cfg.Verifier.MaxSentences,
		}, logger),
		Cues: negation.NewPass(negation.Options{
			Mode:            cfg.Verifier.NegationMode,
			Window:          cfg.Verifier.NegationWindow,
			NegationFactor:  cfg.Verifier.NegDownweight,
			MetaFactor:      cfg.Verifier.MetaDownweight,
			AntiAliasFactor: cfg.Verifier.AliasDownweight,
		}, logger),
	}, nil
}
