package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, _, exists, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing config file")
	}
	if cfg.Judge.Threshold != 0.25 {
		t.Fatalf("expected default threshold 0.25, got %g", cfg.Judge.Threshold)
	}
	if cfg.Seeding.SemTau != 0.70 {
		t.Fatalf("expected default sem_tau 0.70, got %g", cfg.Seeding.SemTau)
	}
	if cfg.Verifier.NegationMode != NegationDownweight {
		t.Fatalf("expected default negation mode %q, got %q", NegationDownweight, cfg.Verifier.NegationMode)
	}
}

func TestLoadParsesAndExpandsPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
database = "~/trope-test/tropes.db"
log_dir = "~/trope-test/logs"

[judge]
threshold = 0.4
rerank_top_k = 10
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists=true")
	}
	if resolved != path {
		t.Fatalf("expected resolved path %q, got %q", path, resolved)
	}
	if cfg.Judge.Threshold != 0.4 {
		t.Fatalf("expected threshold 0.4, got %g", cfg.Judge.Threshold)
	}
	if strings.HasPrefix(cfg.Paths.Database, "~") {
		t.Fatalf("database path not expanded: %q", cfg.Paths.Database)
	}
	if !filepath.IsAbs(cfg.Paths.LogDir) {
		t.Fatalf("log dir not absolute: %q", cfg.Paths.LogDir)
	}
	if cfg.Ollama.EmbedModel != defaultEmbedModel {
		t.Fatalf("expected default embed model, got %q", cfg.Ollama.EmbedModel)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("THRESHOLD", "0.5")
	t.Setenv("SEM_TAU", "0.8")
	t.Setenv("NEGATION_MODE", "delete")
	t.Setenv("REASONER_MODEL", "qwen2.5:14b")
	t.Setenv("PER_WORK_COLLECTIONS", "true")

	cfg, _, _, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Judge.Threshold != 0.5 {
		t.Fatalf("THRESHOLD override ignored, got %g", cfg.Judge.Threshold)
	}
	if cfg.Seeding.SemTau != 0.8 {
		t.Fatalf("SEM_TAU override ignored, got %g", cfg.Seeding.SemTau)
	}
	if cfg.Verifier.NegationMode != NegationDelete {
		t.Fatalf("NEGATION_MODE override ignored, got %q", cfg.Verifier.NegationMode)
	}
	if cfg.Ollama.ReasonerModel != "qwen2.5:14b" {
		t.Fatalf("REASONER_MODEL override ignored, got %q", cfg.Ollama.ReasonerModel)
	}
	if !cfg.Chroma.PerWorkCollections {
		t.Fatal("PER_WORK_COLLECTIONS override ignored")
	}
}

func TestValidateRejectsOutOfRangeThreshold(t *testing.T) {
	cfg := Default()
	if err := cfg.normalize(); err != nil {
		t.Fatal(err)
	}
	cfg.Judge.Threshold = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for threshold > 1")
	}
}

func TestValidateRejectsUnknownNegationMode(t *testing.T) {
	cfg := Default()
	if err := cfg.normalize(); err != nil {
		t.Fatal(err)
	}
	cfg.Verifier.NegationMode = "maybe"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unknown negation mode")
	}
}

func TestValidateRejectsKeepMAboveTopK(t *testing.T) {
	cfg := Default()
	if err := cfg.normalize(); err != nil {
		t.Fatal(err)
	}
	cfg.Judge.RerankKeepM = 12
	cfg.Judge.RerankTopK = 8
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for keep_m > top_k")
	}
}

func TestSampleConfigParsesAndValidates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := Load(path)
	if err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if cfg.Chroma.ChunkCollection != defaultChunkCollection {
		t.Fatalf("unexpected chunk collection %q", cfg.Chroma.ChunkCollection)
	}
}
