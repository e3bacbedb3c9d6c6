package config

import "strings"

// normalize expands paths, trims string fields, and backfills zero-valued
// numeric knobs with repository defaults so a sparse config file still yields
// a complete runtime configuration.
func (c *Config) normalize() error {
	database, err := expandPath(strings.TrimSpace(c.Paths.Database))
	if err != nil {
		return err
	}
	c.Paths.Database = database

	logDir, err := expandPath(strings.TrimSpace(c.Paths.LogDir))
	if err != nil {
		return err
	}
	c.Paths.LogDir = logDir

	c.Ollama.BaseURL = strings.TrimRight(strings.TrimSpace(c.Ollama.BaseURL), "/")
	c.Ollama.EmbedModel = strings.TrimSpace(c.Ollama.EmbedModel)
	c.Ollama.ReasonerModel = strings.TrimSpace(c.Ollama.ReasonerModel)
	c.Chroma.BaseURL = strings.TrimRight(strings.TrimSpace(c.Chroma.BaseURL), "/")
	c.Chroma.ChunkCollection = strings.TrimSpace(c.Chroma.ChunkCollection)
	c.Chroma.TropeCollection = strings.TrimSpace(c.Chroma.TropeCollection)
	c.Verifier.NegationMode = strings.ToLower(strings.TrimSpace(c.Verifier.NegationMode))
	c.Judge.CalibrationVersion = strings.TrimSpace(c.Judge.CalibrationVersion)
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))

	if c.Ollama.EmbedTimeoutSeconds <= 0 {
		c.Ollama.EmbedTimeoutSeconds = defaultEmbedTimeoutSeconds
	}
	if c.Ollama.LLMTimeoutSeconds <= 0 {
		c.Ollama.LLMTimeoutSeconds = defaultLLMTimeoutSeconds
	}
	if c.Ollama.EmbedCacheSize <= 0 {
		c.Ollama.EmbedCacheSize = defaultEmbedCacheSize
	}
	if c.Ollama.EmbedConcurrency <= 0 {
		c.Ollama.EmbedConcurrency = defaultEmbedConcurrency
	}
	if c.Ollama.RetryMaxAttempts <= 0 {
		c.Ollama.RetryMaxAttempts = 3
	}
	if c.Ollama.RetryBaseDelaySeconds <= 0 {
		c.Ollama.RetryBaseDelaySeconds = 1
	}
	if c.Chroma.QueryTimeoutSeconds <= 0 {
		c.Chroma.QueryTimeoutSeconds = defaultQueryTimeoutSeconds
	}
	if c.Seeding.AntiWindow <= 0 {
		c.Seeding.AntiWindow = defaultAntiWindow
	}
	if c.Seeding.MinAliasLen <= 0 {
		c.Seeding.MinAliasLen = defaultMinAliasLen
	}
	if c.Seeding.MaxPerTrope <= 0 {
		c.Seeding.MaxPerTrope = defaultMaxPerTrope
	}
	if c.Seeding.SemTopN <= 0 {
		c.Seeding.SemTopN = defaultSemTopN
	}
	if c.Seeding.SemPerSceneCap <= 0 {
		c.Seeding.SemPerSceneCap = defaultSemPerSceneCap
	}
	if c.Judge.RerankTopK <= 0 {
		c.Judge.RerankTopK = defaultRerankTopK
	}
	if c.Judge.RerankKeepM <= 0 {
		c.Judge.RerankKeepM = defaultRerankKeepM
	}
	if c.Judge.RerankDocCharMax <= 0 {
		c.Judge.RerankDocCharMax = defaultRerankDocCharMax
	}
	if c.Judge.TropeTopK <= 0 {
		c.Judge.TropeTopK = defaultTropeTopK
	}
	if c.Judge.SceneConcurrency <= 0 {
		c.Judge.SceneConcurrency = defaultSceneConcurrency
	}
	if c.Verifier.MaxSentences <= 0 {
		c.Verifier.MaxSentences = defaultMaxSentences
	}
	if c.Verifier.NegationWindow <= 0 {
		c.Verifier.NegationWindow = defaultNegationWindow
	}
	if c.Verifier.NegationMode == "" {
		c.Verifier.NegationMode = NegationDownweight
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}

	return nil
}
