package config

const (
	defaultDatabase        = "~/.local/share/tropeminer/tropes.db"
	defaultLogDir          = "~/.local/share/tropeminer/logs"
	defaultOllamaBaseURL   = "http://127.0.0.1:11434"
	defaultEmbedModel      = "nomic-embed-text"
	defaultReasonerModel   = "llama3.1:8b"
	defaultChromaBaseURL   = "http://127.0.0.1:8000"
	defaultChunkCollection = "trope-miner-v1-cos"
	defaultTropeCollection = "trope-catalog-nomic-cos"
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"

	defaultEmbedTimeoutSeconds = 30
	defaultQueryTimeoutSeconds = 10
	defaultLLMTimeoutSeconds   = 120
	defaultEmbedCacheSize      = 4096
	defaultEmbedConcurrency    = 4
	defaultSceneConcurrency    = 2

	defaultAntiWindow     = 60
	defaultMinAliasLen    = 5
	defaultMaxPerTrope    = 500
	defaultSemTopN        = 8
	defaultSemPerSceneCap = 3

	defaultRerankTopK       = 8
	defaultRerankKeepM      = 3
	defaultRerankDocCharMax = 480
	defaultTropeTopK        = 16
	defaultNegationWindow   = 40
	defaultMaxSentences     = 2
)

const (
	defaultThreshold           = 0.25
	defaultSemTau              = 0.70
	defaultDownweightNoMention = 0.55
	defaultSemSimThreshold     = 0.36
	defaultSpanThreshold       = 0.25
	defaultNegDownweight       = 0.6
	defaultMetaDownweight      = 0.75
	defaultAliasDownweight     = 0.5
)

// NegationMode values accepted by the post-pass.
const (
	NegationFlagOnly   = "flag-only"
	NegationDownweight = "downweight"
	NegationDelete     = "delete"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			Database: defaultDatabase,
			LogDir:   defaultLogDir,
		},
		Ollama: Ollama{
			BaseURL:             defaultOllamaBaseURL,
			EmbedModel:          defaultEmbedModel,
			ReasonerModel:       defaultReasonerModel,
			EmbedTimeoutSeconds: defaultEmbedTimeoutSeconds,
			LLMTimeoutSeconds:   defaultLLMTimeoutSeconds,
			EmbedCacheSize:      defaultEmbedCacheSize,
			EmbedConcurrency:    defaultEmbedConcurrency,
		},
		Chroma: Chroma{
			BaseURL:             defaultChromaBaseURL,
			ChunkCollection:     defaultChunkCollection,
			TropeCollection:     defaultTropeCollection,
			QueryTimeoutSeconds: defaultQueryTimeoutSeconds,
		},
		Seeding: Seeding{
			AntiWindow:     defaultAntiWindow,
			MinAliasLen:    defaultMinAliasLen,
			MaxPerTrope:    defaultMaxPerTrope,
			SemTau:         defaultSemTau,
			SemTopN:        defaultSemTopN,
			SemPerSceneCap: defaultSemPerSceneCap,
		},
		Judge: Judge{
			Threshold:           defaultThreshold,
			RerankTopK:          defaultRerankTopK,
			RerankKeepM:         defaultRerankKeepM,
			RerankDocCharMax:    defaultRerankDocCharMax,
			TropeTopK:           defaultTropeTopK,
			DownweightNoMention: defaultDownweightNoMention,
			SemSimThreshold:     defaultSemSimThreshold,
			SceneConcurrency:    defaultSceneConcurrency,
		},
		Verifier: Verifier{
			SpanThreshold:   defaultSpanThreshold,
			MaxSentences:    defaultMaxSentences,
			NegationMode:    NegationDownweight,
			NegationWindow:  defaultNegationWindow,
			NegDownweight:   defaultNegDownweight,
			MetaDownweight:  defaultMetaDownweight,
			AliasDownweight: defaultAliasDownweight,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
