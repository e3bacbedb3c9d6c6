// Package judge runs the per-scene LLM judgment: shortlisted candidate
// tropes plus picked supports go into a versioned prompt, and accepted
// verdicts come back as findings with prior-adjusted confidence.
package judge

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"tropeminer/internal/catalog"
	"tropeminer/internal/logging"
	"tropeminer/internal/services/ollama"
	"tropeminer/internal/store"
)

// Completer runs a JSON-mode LLM call. *ollama.Client satisfies it.
type Completer interface {
	CompleteJSON(ctx context.Context, prompt string) (string, error)
	ReasonerModel() string
}

// Options tune one judgment pass.
type Options struct {
	Threshold          float64
	TropeTopK          int
	CalibrationVersion string
}

// Scene carries everything the judge needs for one scene.
type Scene struct {
	WorkID    string
	SceneID   string
	Text      string
	CharStart int
	CharEnd   int
}

// Input pairs the scene with its candidate evidence.
type Input struct {
	Scene        Scene
	Candidates   []store.Candidate
	Sanity       []store.Sanity
	SupportTexts []string
	// TropeThresholds overrides the global threshold per trope id.
	TropeThresholds map[string]float64
}

// Result separates accepted findings from per-verdict rejections. A
// malformed reply is not a Result; it surfaces as an error so the caller
// can skip the scene.
type Result struct {
	Findings []store.Finding
	Audits   []store.Audit
}

type scoredTrope struct {
	trope  catalog.Trope
	sanity store.Sanity
	score  float64
}

// Judge is safe for concurrent use across scenes.
type Judge struct {
	completer Completer
	tropes    map[string]catalog.Trope
	opts      Options
	logger    *slog.Logger
}

func New(completer Completer, tropes []catalog.Trope, opts Options, logger *slog.Logger) *Judge {
	byID := make(map[string]catalog.Trope, len(tropes))
	for _, t := range tropes {
		byID[t.ID] = t
	}
	return &Judge{
		completer: completer,
		tropes:    byID,
		opts:      opts,
		logger:    logging.NewComponentLogger(logger, "judge"),
	}
}

// Judge prompts the model with the scene's shortlist and converts accepted
// verdicts into findings. The model's confidence is multiplied by the
// scene's prior weight before the threshold test; the model never gets to
// apply its own weighting. A reply that fails strict JSON decoding returns
// an error wrapping services.ErrMalformed and no findings.
func (j *Judge) Judge(ctx context.Context, in Input) (*Result, error) {
	shortlist := j.shortlist(in)
	if len(shortlist) == 0 {
		return &Result{}, nil
	}

	prompt := buildPrompt(in.Scene.Text, in.Scene.CharStart, in.Scene.CharEnd, shortlist, in.SupportTexts)
	raw, err := j.completer.CompleteJSON(ctx, prompt)
	if err != nil {
		return nil, err
	}
	var verdicts []verdict
	if err := ollama.DecodeJSON(raw, &verdicts); err != nil {
		return nil, fmt.Errorf("scene %s: %w", in.Scene.SceneID, err)
	}

	weights := make(map[string]float64, len(shortlist))
	for _, st := range shortlist {
		weights[st.trope.ID] = st.sanity.Weight
	}

	result := &Result{}
	for _, v := range verdicts {
		weight, known := weights[v.TropeID]
		if !known {
			// Not in the shortlist we sent; the model invented or recalled
			// an id on its own.
			j.logger.Warn("verdict for unknown trope dropped",
				logging.String("scene", in.Scene.SceneID),
				logging.String("trope", v.TropeID))
			continue
		}
		if v.EvidenceStart < in.Scene.CharStart || v.EvidenceEnd > in.Scene.CharEnd || v.EvidenceEnd < v.EvidenceStart {
			result.Audits = append(result.Audits, store.Audit{
				WorkID:  in.Scene.WorkID,
				SceneID: in.Scene.SceneID,
				Kind:    "bad_span",
				Detail:  fmt.Sprintf("trope %s span [%d,%d) outside scene [%d,%d)", v.TropeID, v.EvidenceStart, v.EvidenceEnd, in.Scene.CharStart, in.Scene.CharEnd),
			})
			continue
		}

		confidence := clamp01(v.Confidence)
		adjusted := confidence * weight
		threshold := j.opts.Threshold
		if override, ok := in.TropeThresholds[v.TropeID]; ok {
			threshold = override
		}
		if adjusted < threshold {
			continue
		}

		result.Findings = append(result.Findings, store.Finding{
			ID:                 uuid.NewString(),
			WorkID:             in.Scene.WorkID,
			SceneID:            in.Scene.SceneID,
			TropeID:            v.TropeID,
			Level:              store.LevelSpan,
			Confidence:         adjusted,
			Rationale:          v.Rationale,
			EvidenceStart:      v.EvidenceStart,
			EvidenceEnd:        v.EvidenceEnd,
			Model:              j.completer.ReasonerModel(),
			CalibrationVersion: j.opts.CalibrationVersion,
			ThresholdUsed:      threshold,
		})
	}

	j.logger.Info("scene judged",
		logging.String("scene", in.Scene.SceneID),
		logging.Int("shortlist", len(shortlist)),
		logging.Int("findings", len(result.Findings)))
	return result, nil
}

// shortlist folds the scene's candidate rows into per-trope scores and
// keeps the strongest TropeTopK by weight * (score + sem_sim).
func (j *Judge) shortlist(in Input) []scoredTrope {
	sanityByTrope := make(map[string]store.Sanity, len(in.Sanity))
	for _, row := range in.Sanity {
		sanityByTrope[row.TropeID] = row
	}

	best := make(map[string]float64)
	for _, c := range in.Candidates {
		if score, ok := best[c.TropeID]; !ok || c.Score > score {
			best[c.TropeID] = c.Score
		}
	}

	out := make([]scoredTrope, 0, len(best))
	for tropeID, score := range best {
		trope, ok := j.tropes[tropeID]
		if !ok {
			j.logger.Warn("candidate references unknown trope", logging.String("trope", tropeID))
			continue
		}
		sanity, ok := sanityByTrope[tropeID]
		if !ok {
			// No prior computed; treat as neutral.
			sanity = store.Sanity{SceneID: in.Scene.SceneID, TropeID: tropeID, Weight: 1.0}
		}
		out = append(out, scoredTrope{
			trope:  trope,
			sanity: sanity,
			score:  sanity.Weight * (score + sanity.SemSim),
		})
	}

	sort.Slice(out, func(i, k int) bool {
		if out[i].score != out[k].score {
			return out[i].score > out[k].score
		}
		return out[i].trope.ID < out[k].trope.ID
	})
	if j.opts.TropeTopK > 0 && len(out) > j.opts.TropeTopK {
		out = out[:j.opts.TropeTopK]
	}
	return out
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
