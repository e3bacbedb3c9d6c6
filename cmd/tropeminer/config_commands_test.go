package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigInitWritesSample(t *testing.T) {
	configPath, _ := writeCLIConfig(t)

	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	out, _, err := runCLI(t, configPath, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, "Wrote sample configuration") {
		t.Fatalf("unexpected init output: %q", out)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample config: %v", err)
	}
	for _, section := range []string{"[paths]", "[ollama]", "[chroma]", "[judge]", "[verifier]"} {
		if !strings.Contains(string(data), section) {
			t.Fatalf("sample config missing %s", section)
		}
	}

	// A second init without --overwrite must refuse.
	if _, _, err := runCLI(t, configPath, "config", "init", "--path", target); err == nil {
		t.Fatal("expected error when target already exists")
	}
	if _, _, err := runCLI(t, configPath, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigShowPrintsResolvedValues(t *testing.T) {
	configPath, dbPath := writeCLIConfig(t)

	out, _, err := runCLI(t, configPath, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out, "# Config path: "+configPath) {
		t.Fatalf("missing config path header: %q", out)
	}
	if !strings.Contains(out, dbPath) {
		t.Fatalf("expected resolved database path %s in output:\n%s", dbPath, out)
	}
	// Defaults fill sections the file omitted.
	if !strings.Contains(out, "base_url") {
		t.Fatalf("expected defaulted ollama section:\n%s", out)
	}
}
