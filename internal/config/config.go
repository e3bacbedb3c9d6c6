package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains database and log directory configuration.
type Paths struct {
	Database string `toml:"database"`
	LogDir   string `toml:"log_dir"`
}

// Ollama contains connection settings for the local embedding/reasoning host.
type Ollama struct {
	BaseURL               string `toml:"base_url"`
	EmbedModel            string `toml:"embed_model"`
	ReasonerModel         string `toml:"reasoner_model"`
	EmbedTimeoutSeconds   int    `toml:"embed_timeout_seconds"`
	LLMTimeoutSeconds     int    `toml:"llm_timeout_seconds"`
	EmbedCacheSize        int    `toml:"embed_cache_size"`
	EmbedConcurrency      int    `toml:"embed_concurrency"`
	RetryMaxAttempts      int    `toml:"retry_max_attempts"`
	RetryBaseDelaySeconds int    `toml:"retry_base_delay_seconds"`
}

// Chroma contains vector store connection and collection settings.
type Chroma struct {
	BaseURL             string `toml:"base_url"`
	ChunkCollection     string `toml:"chunk_collection"`
	TropeCollection     string `toml:"trope_collection"`
	PerWorkCollections  bool   `toml:"per_work_collections"`
	QueryTimeoutSeconds int    `toml:"query_timeout_seconds"`
}

// Seeding contains gazetteer and semantic seeding knobs.
type Seeding struct {
	AntiWindow      int     `toml:"anti_window"`
	MinAliasLen     int     `toml:"min_alias_len"`
	MaxPerTrope     int     `toml:"max_per_trope"`
	SemTau          float64 `toml:"sem_tau"`
	SemTopN         int     `toml:"sem_top_n"`
	SemPerSceneCap  int     `toml:"sem_per_scene_cap"`
	ExtraStoplist   string  `toml:"extra_stoplist"`
	DisableAntiPass bool    `toml:"disable_anti_pass"`
}

// Judge contains retrieval, rerank, prior, and acceptance knobs.
type Judge struct {
	Threshold           float64 `toml:"threshold"`
	RerankTopK          int     `toml:"rerank_top_k"`
	RerankKeepM         int     `toml:"rerank_keep_m"`
	RerankDocCharMax    int     `toml:"rerank_doc_char_max"`
	TropeTopK           int     `toml:"trope_top_k"`
	DownweightNoMention float64 `toml:"downweight_no_mention"`
	SemSimThreshold     float64 `toml:"sem_sim_threshold"`
	SceneConcurrency    int     `toml:"scene_concurrency"`
	CalibrationVersion  string  `toml:"calibration_version"`
}

// Verifier contains span verification and negation post-pass knobs.
type Verifier struct {
	SpanThreshold   float64 `toml:"span_threshold"`
	MaxSentences    int     `toml:"max_sentences"`
	NegationMode    string  `toml:"negation_mode"`
	NegationWindow  int     `toml:"negation_window"`
	NegDownweight   float64 `toml:"neg_downweight"`
	MetaDownweight  float64 `toml:"meta_downweight"`
	AliasDownweight float64 `toml:"alias_downweight"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration for a judging run. It is built once
// at startup and treated as immutable afterward.
//
// Sections by subsystem:
//   - Paths: SQLite database location and log directory
//   - Ollama: embedding + reasoner models and timeouts
//   - Chroma: vector store collections and per-work mode
//   - Seeding: gazetteer anti-suppression and semantic seeding knobs
//   - Judge: retrieval depth, sanity priors, acceptance threshold
//   - Verifier: span snapping and negation/meta post-pass policy
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Ollama   Ollama   `toml:"ollama"`
	Chroma   Chroma   `toml:"chroma"`
	Seeding  Seeding  `toml:"seeding"`
	Judge    Judge    `toml:"judge"`
	Verifier Verifier `toml:"verifier"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/tropeminer/config.toml")
}

// Load locates, parses, and validates a configuration file, then applies
// environment overrides. The returned config has all path fields expanded.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("tropeminer.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the pipeline writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.LogDir}
	if dbDir := filepath.Dir(c.Paths.Database); dbDir != "" && dbDir != "." {
		dirs = append(dirs, dbDir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
