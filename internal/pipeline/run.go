package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"tropeminer/internal/catalog"
	"tropeminer/internal/config"
	"tropeminer/internal/judge"
	"tropeminer/internal/store"
	"tropeminer/internal/support"
)

// NewRun stamps one pipeline execution: a fresh UUID plus a canonical JSON
// record of every input that shaped it. Two runs with equal params JSON are
// reproductions of each other.
func NewRun(cfg *config.Config, tropes []catalog.Trope, workID string) (store.Run, error) {
	params := map[string]any{
		"work_id":     workID,
		"catalog_sha": catalog.SHA(tropes),
		"models": map[string]any{
			"embed":    cfg.Ollama.EmbedModel,
			"reasoner": cfg.Ollama.ReasonerModel,
		},
		"collections": map[string]any{
			"chunk":    cfg.Chroma.ChunkCollection,
			"trope":    cfg.Chroma.TropeCollection,
			"per_work": cfg.Chroma.PerWorkCollections,
		},
		"seeding": map[string]any{
			"anti_window":       cfg.Seeding.AntiWindow,
			"min_alias_len":     cfg.Seeding.MinAliasLen,
			"max_per_trope":     cfg.Seeding.MaxPerTrope,
			"sem_tau":           cfg.Seeding.SemTau,
			"sem_top_n":         cfg.Seeding.SemTopN,
			"sem_per_scene_cap": cfg.Seeding.SemPerSceneCap,
			"disable_anti":      cfg.Seeding.DisableAntiPass,
		},
		"judge": map[string]any{
			"threshold":             cfg.Judge.Threshold,
			"rerank_top_k":          cfg.Judge.RerankTopK,
			"rerank_keep_m":         cfg.Judge.RerankKeepM,
			"trope_top_k":           cfg.Judge.TropeTopK,
			"downweight_no_mention": cfg.Judge.DownweightNoMention,
			"sem_sim_threshold":     cfg.Judge.SemSimThreshold,
			"calibration_version":   cfg.Judge.CalibrationVersion,
		},
		"verifier": map[string]any{
			"span_threshold":   cfg.Verifier.SpanThreshold,
			"max_sentences":    cfg.Verifier.MaxSentences,
			"negation_mode":    cfg.Verifier.NegationMode,
			"negation_window":  cfg.Verifier.NegationWindow,
			"neg_downweight":   cfg.Verifier.NegDownweight,
			"meta_downweight":  cfg.Verifier.MetaDownweight,
			"alias_downweight": cfg.Verifier.AliasDownweight,
		},
		"prompts": map[string]any{
			"rerank": support.PromptVersion,
			"judge":  judge.PromptVersion,
		},
	}

	// encoding/json sorts object keys, so the encoding is canonical.
	encoded, err := json.Marshal(params)
	if err != nil {
		return store.Run{}, fmt.Errorf("encode run params: %w", err)
	}
	return store.Run{ID: uuid.NewString(), ParamsJSON: string(encoded)}, nil
}
