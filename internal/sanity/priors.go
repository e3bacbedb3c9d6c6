// Package sanity computes the pre-judgment prior for each candidate
// trope in a scene: a lexical mention check plus a semantic affinity
// score, folded into a single weight the judge multiplies into model
// confidence.
package sanity

import (
	"context"
	"log/slog"

	"tropeminer/internal/catalog"
	"tropeminer/internal/embedding"
	"tropeminer/internal/gazetteer"
	"tropeminer/internal/logging"
	"tropeminer/internal/store"
)

// Embedder produces normalized embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Options tune the prior.
type Options struct {
	SemSimThreshold float64
	Downweight      float64
}

// Prior scores candidate tropes per scene. Safe for concurrent use.
type Prior struct {
	embedder Embedder
	opts     Options
	logger   *slog.Logger
}

func NewPrior(embedder Embedder, opts Options, logger *slog.Logger) *Prior {
	return &Prior{
		embedder: embedder,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "sanity"),
	}
}

// Compute scores every candidate trope against the scene text and the
// picked support texts. A trope passes when its name or an alias is
// mentioned, or when its definition embedding is close enough to the
// scene or any support; otherwise its weight is the configured
// downweight.
func (p *Prior) Compute(ctx context.Context, sceneID, sceneText string, supportTexts []string, tropes []catalog.Trope) ([]store.Sanity, error) {
	contexts := make([][]float64, 0, 1+len(supportTexts))
	sceneVec, err := p.embedder.Embed(ctx, sceneText)
	if err != nil {
		return nil, err
	}
	contexts = append(contexts, sceneVec)
	for _, text := range supportTexts {
		if text == "" {
			continue
		}
		vec, err := p.embedder.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		contexts = append(contexts, vec)
	}

	out := make([]store.Sanity, 0, len(tropes))
	for _, trope := range tropes {
		matcher := gazetteer.NewMatcher(trope, gazetteer.MatcherOptions{})
		lexOK := matcher.HasMention(sceneText)
		if !lexOK {
			for _, text := range supportTexts {
				if matcher.HasMention(text) {
					lexOK = true
					break
				}
			}
		}

		tropeVec, err := p.embedder.Embed(ctx, trope.QueryText())
		if err != nil {
			return nil, err
		}
		// Cosine ranges over [-1, 1]; start below it so a negative max
		// is persisted as-is instead of being floored at zero.
		semSim := -1.0
		for _, vec := range contexts {
			if sim := embedding.Cosine(tropeVec, vec); sim > semSim {
				semSim = sim
			}
		}

		weight := 1.0
		if !lexOK && semSim < p.opts.SemSimThreshold {
			weight = p.opts.Downweight
		}
		out = append(out, store.Sanity{
			SceneID: sceneID,
			TropeID: trope.ID,
			LexOK:   lexOK,
			SemSim:  semSim,
			Weight:  weight,
		})
	}

	p.logger.Debug("priors computed",
		logging.String("scene", sceneID),
		logging.Int("tropes", len(out)))
	return out, nil
}
