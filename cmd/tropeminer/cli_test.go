package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tropeminer/internal/catalog"
	"tropeminer/internal/store"
	"tropeminer/internal/textindex"
)

const cliFixtureText = "It was a dark and stormy night. The detective arrived."

// writeCLIConfig writes a minimal config pointing at a temp database and
// returns the config and database paths.
func writeCLIConfig(t *testing.T) (string, string) {
	t.Helper()
	base := t.TempDir()
	dbPath := filepath.Join(base, "tropes.db")
	configPath := filepath.Join(base, "config.toml")
	content := fmt.Sprintf(
		"[paths]\ndatabase = %q\nlog_dir = %q\n\n[logging]\nformat = \"json\"\nlevel = \"error\"\n",
		dbPath, filepath.Join(base, "logs"))
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return configPath, dbPath
}

// seedCLIStore populates the database with one work, one trope, two runs,
// and a finding per run.
func seedCLIStore(t *testing.T, dbPath string) {
	t.Helper()
	ctx := context.Background()

	st, err := store.OpenPath(dbPath)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	defer st.Close()

	work := textindex.Work{ID: "w-1", Title: "Fixture", NormText: cliFixtureText, CharCount: len([]rune(cliFixtureText))}
	scenes := []textindex.Scene{
		{ID: "s-1", WorkID: "w-1", Idx: 0, CharStart: 0, CharEnd: 31},
		{ID: "s-2", WorkID: "w-1", Idx: 1, CharStart: 31, CharEnd: 54},
	}
	chunkText := cliFixtureText[:31]
	chunks := []textindex.Chunk{{
		ID: "c-1", WorkID: "w-1", SceneID: "s-1", Idx: 0,
		CharStart: 0, CharEnd: 31, Text: chunkText, SHA256: textindex.ChunkSHA(chunkText),
	}}
	if err := st.InsertWork(ctx, work, scenes, chunks); err != nil {
		t.Fatalf("InsertWork: %v", err)
	}
	trope := catalog.Trope{
		ID: "t-1", Name: "Dark And Stormy Night",
		Summary: "Opening on ominous weather.",
		Aliases: []string{"dark and stormy"},
	}
	if err := st.UpsertTrope(ctx, trope); err != nil {
		t.Fatalf("UpsertTrope: %v", err)
	}

	params := `{"work_id":"w-1","catalog_sha":"deadbeefdeadbeefdead","models":{"embed":"nomic-embed-text","reasoner":"llama3.1:8b"},"judge":{"threshold":0.25}}`
	runs := []store.Run{
		{ID: "r-1", CreatedAt: "2026-01-01T00:00:00Z", ParamsJSON: params},
		{ID: "r-2", CreatedAt: "2026-01-02T00:00:00Z", ParamsJSON: params},
	}
	for _, run := range runs {
		if err := st.InsertRun(ctx, run); err != nil {
			t.Fatalf("InsertRun %s: %v", run.ID, err)
		}
	}

	findings := []struct {
		sceneID string
		finding store.Finding
	}{
		{"s-1", store.Finding{
			ID: "f-1", WorkID: "w-1", SceneID: "s-1", TropeID: "t-1",
			Level: store.LevelSpan, Confidence: 0.9, EvidenceStart: 9, EvidenceEnd: 24,
			Model: "llama3.1:8b", ThresholdUsed: 0.25, RunID: "r-1",
		}},
		{"s-2", store.Finding{
			ID: "f-2", WorkID: "w-1", SceneID: "s-2", TropeID: "t-1",
			Level: store.LevelSpan, Confidence: 0.4, EvidenceStart: 32, EvidenceEnd: 45,
			Model: "llama3.1:8b", ThresholdUsed: 0.25, RunID: "r-2",
		}},
	}
	for _, entry := range findings {
		if _, err := st.WriteSceneResults(ctx, store.SceneResults{
			SceneID:  entry.sceneID,
			Findings: []store.Finding{entry.finding},
		}); err != nil {
			t.Fatalf("WriteSceneResults %s: %v", entry.finding.ID, err)
		}
	}
}

func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestFindingsTableJoinsTropeNames(t *testing.T) {
	configPath, dbPath := writeCLIConfig(t)
	seedCLIStore(t, dbPath)

	out, _, err := runCLI(t, configPath, "findings", "w-1")
	if err != nil {
		t.Fatalf("findings: %v", err)
	}
	for _, want := range []string{"Dark And Stormy Night", "[9, 24)", "0.90", "s-2"} {
		if !strings.Contains(out, want) {
			t.Fatalf("findings output missing %q:\n%s", want, out)
		}
	}
}

func TestFindingsScopedToRun(t *testing.T) {
	configPath, dbPath := writeCLIConfig(t)
	seedCLIStore(t, dbPath)

	out, _, err := runCLI(t, configPath, "findings", "w-1", "--run", "r-1", "--json")
	if err != nil {
		t.Fatalf("findings --run: %v", err)
	}
	var views []findingView
	if err := json.Unmarshal([]byte(out), &views); err != nil {
		t.Fatalf("decode findings JSON: %v\n%s", err, out)
	}
	if len(views) != 1 {
		t.Fatalf("expected 1 finding for r-1, got %d", len(views))
	}
	view := views[0]
	if view.ID != "f-1" || view.Trope != "Dark And Stormy Night" || view.RunID != "r-1" {
		t.Fatalf("unexpected finding view: %+v", view)
	}
	if view.EvidenceStart != 9 || view.EvidenceEnd != 24 {
		t.Fatalf("unexpected evidence span: %+v", view)
	}
}

func TestFindingsEmptyWork(t *testing.T) {
	configPath, dbPath := writeCLIConfig(t)
	seedCLIStore(t, dbPath)

	out, _, err := runCLI(t, configPath, "findings", "w-missing")
	if err != nil {
		t.Fatalf("findings: %v", err)
	}
	if !strings.Contains(out, "No findings recorded") {
		t.Fatalf("expected empty-work message, got %q", out)
	}
}

func TestRunsListsStampedRuns(t *testing.T) {
	configPath, dbPath := writeCLIConfig(t)
	seedCLIStore(t, dbPath)

	out, _, err := runCLI(t, configPath, "runs")
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	for _, want := range []string{"r-1", "r-2", "w-1", "llama3.1:8b", "deadbeefdead"} {
		if !strings.Contains(out, want) {
			t.Fatalf("runs output missing %q:\n%s", want, out)
		}
	}
	// Newest first.
	if strings.Index(out, "r-2") > strings.Index(out, "r-1") {
		t.Fatalf("expected r-2 before r-1:\n%s", out)
	}
}

func TestRunsJSONCarriesRawParams(t *testing.T) {
	configPath, dbPath := writeCLIConfig(t)
	seedCLIStore(t, dbPath)

	out, _, err := runCLI(t, configPath, "runs", "--json", "--limit", "1")
	if err != nil {
		t.Fatalf("runs --json: %v", err)
	}
	var views []runView
	if err := json.Unmarshal([]byte(out), &views); err != nil {
		t.Fatalf("decode runs JSON: %v\n%s", err, out)
	}
	if len(views) != 1 || views[0].ID != "r-2" {
		t.Fatalf("unexpected runs view: %+v", views)
	}
	var params runParams
	if err := json.Unmarshal(views[0].Params, &params); err != nil {
		t.Fatalf("decode params: %v", err)
	}
	if params.WorkID != "w-1" || params.Judge.Threshold != 0.25 {
		t.Fatalf("unexpected params: %+v", params)
	}
}
