package config

import (
	"os"
	"strconv"
	"strings"
)

// Environment overrides mirror the original deployment knobs so scripted runs
// can steer a config file without editing it.
func applyEnvOverrides(cfg *Config) {
	envString("OLLAMA_BASE_URL", &cfg.Ollama.BaseURL)
	envString("EMB_MODEL", &cfg.Ollama.EmbedModel)
	envString("REASONER_MODEL", &cfg.Ollama.ReasonerModel)
	envString("CHROMA_BASE_URL", &cfg.Chroma.BaseURL)
	envString("CHUNK_COLL", &cfg.Chroma.ChunkCollection)
	envString("TROPE_COLL", &cfg.Chroma.TropeCollection)
	envBool("PER_WORK_COLLECTIONS", &cfg.Chroma.PerWorkCollections)

	envInt("ANTI_WINDOW", &cfg.Seeding.AntiWindow)
	envFloat("SEM_TAU", &cfg.Seeding.SemTau)
	envInt("SEM_TOP_N", &cfg.Seeding.SemTopN)
	envInt("SEM_PER_SCENE_CAP", &cfg.Seeding.SemPerSceneCap)

	envFloat("THRESHOLD", &cfg.Judge.Threshold)
	envInt("RERANK_TOP_K", &cfg.Judge.RerankTopK)
	envInt("RERANK_KEEP_M", &cfg.Judge.RerankKeepM)
	envInt("RERANK_DOC_CHAR_MAX", &cfg.Judge.RerankDocCharMax)
	envInt("TROPE_TOP_K", &cfg.Judge.TropeTopK)
	envFloat("DOWNWEIGHT_NO_MENTION", &cfg.Judge.DownweightNoMention)
	envFloat("SEM_SIM_THRESHOLD", &cfg.Judge.SemSimThreshold)
	envString("CALIBRATION_VERSION", &cfg.Judge.CalibrationVersion)

	envFloat("SPAN_VERIFIER_THRESHOLD", &cfg.Verifier.SpanThreshold)
	envInt("SPAN_VERIFIER_MAX_SENT", &cfg.Verifier.MaxSentences)
	envString("NEGATION_MODE", &cfg.Verifier.NegationMode)
	envFloat("NEG_DOWNWEIGHT", &cfg.Verifier.NegDownweight)
	envFloat("META_DOWNWEIGHT", &cfg.Verifier.MetaDownweight)
	envFloat("AA_DOWNWEIGHT", &cfg.Verifier.AliasDownweight)

	envInt("N_EMBED", &cfg.Ollama.EmbedConcurrency)
	envInt("N_SCENES", &cfg.Judge.SceneConcurrency)
}

func envString(key string, target *string) {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}

func envInt(key string, target *int) {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			*target = parsed
		}
	}
}

func envFloat(key string, target *float64) {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			*target = parsed
		}
	}
}

func envBool(key string, target *bool) {
	if value, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "1", "true", "yes", "on":
			*target = true
		case "0", "false", "no", "off":
			*target = false
		}
	}
}
