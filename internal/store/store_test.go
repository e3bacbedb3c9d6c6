package store

import (
	"context"
	"path/filepath"
	"testing"

	"tropeminer/internal/catalog"
	"tropeminer/internal/textindex"
)

const fixtureText = "It was a dark and stormy night. The detective arrived."

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenPath(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedFixture(t *testing.T, store *Store) {
	t.Helper()
	ctx := context.Background()

	work := textindex.Work{ID: "w-1", Title: "Fixture", NormText: fixtureText, CharCount: len([]rune(fixtureText))}
	scenes := []textindex.Scene{
		{ID: "s-1", WorkID: "w-1", Idx: 0, CharStart: 0, CharEnd: 31},
		{ID: "s-2", WorkID: "w-1", Idx: 1, CharStart: 31, CharEnd: 54},
	}
	chunkText := fixtureText[:31]
	chunks := []textindex.Chunk{{
		ID: "c-1", WorkID: "w-1", SceneID: "s-1", Idx: 0,
		CharStart: 0, CharEnd: 31, Text: chunkText, SHA256: textindex.ChunkSHA(chunkText),
	}}
	if err := store.InsertWork(ctx, work, scenes, chunks); err != nil {
		t.Fatalf("InsertWork: %v", err)
	}

	trope := catalog.Trope{
		ID: "t-1", Name: "Dark And Stormy Night",
		Summary: "Opening on ominous weather.",
		Aliases: []string{"dark and stormy"},
	}
	if err := store.UpsertTrope(ctx, trope); err != nil {
		t.Fatalf("UpsertTrope: %v", err)
	}

	if err := store.InsertRun(ctx, Run{ID: "r-1", CreatedAt: "2026-01-01T00:00:00Z", ParamsJSON: "{}"}); err != nil {
		t.Fatalf("InsertRun: %v", err)
	}
}

func TestInsertCandidatesDeduplicatesSpans(t *testing.T) {
	store := openTestStore(t)
	seedFixture(t, store)
	ctx := context.Background()

	candidate := Candidate{
		ID: "cand-1", WorkID: "w-1", SceneID: "s-1", ChunkID: "c-1",
		TropeID: "t-1", Start: 9, End: 24, Source: SourceGazetteer, Score: 1,
	}
	inserted, err := store.InsertCandidates(ctx, []Candidate{candidate})
	if err != nil {
		t.Fatalf("InsertCandidates: %v", err)
	}
	if inserted != 1 {
		t.Fatalf("expected 1 insert, got %d", inserted)
	}

	// Same span under a different id must dedup silently.
	candidate.ID = "cand-2"
	inserted, err = store.InsertCandidates(ctx, []Candidate{candidate})
	if err != nil {
		t.Fatalf("InsertCandidates (dup): %v", err)
	}
	if inserted != 0 {
		t.Fatalf("expected duplicate span to be ignored, inserted %d", inserted)
	}

	candidates, err := store.SceneCandidates(ctx, "s-1")
	if err != nil {
		t.Fatalf("SceneCandidates: %v", err)
	}
	if len(candidates) != 1 || candidates[0].ID != "cand-1" {
		t.Fatalf("unexpected candidates %v", candidates)
	}
}

func TestWriteSceneResultsIsAtomicPerScene(t *testing.T) {
	store := openTestStore(t)
	seedFixture(t, store)
	ctx := context.Background()

	results := SceneResults{
		SceneID: "s-1",
		Supports: []Support{
			{SceneID: "s-1", ChunkID: "c-1", Rank: 1, Stage1Score: 0.9, Stage2Score: 1, Picked: true, RunID: "r-1"},
		},
		Sanity: []Sanity{
			{SceneID: "s-1", TropeID: "t-1", LexOK: true, SemSim: 0.8, Weight: 1, RunID: "r-1"},
		},
		Findings: []Finding{{
			ID: "f-1", WorkID: "w-1", SceneID: "s-1", ChunkID: "c-1", TropeID: "t-1",
			Level: LevelSpan, Confidence: 0.8, Rationale: "literal mention",
			EvidenceStart: 0, EvidenceEnd: 31, Model: "test-model",
			ThresholdUsed: 0.25, RunID: "r-1",
		}},
	}

	written, err := store.WriteSceneResults(ctx, results)
	if err != nil {
		t.Fatalf("WriteSceneResults: %v", err)
	}
	if written != 1 {
		t.Fatalf("expected 1 finding written, got %d", written)
	}

	supports, err := store.PickedSupports(ctx, "s-1")
	if err != nil {
		t.Fatalf("PickedSupports: %v", err)
	}
	if len(supports) != 1 || supports[0].Rank != 1 {
		t.Fatalf("unexpected supports %v", supports)
	}

	// Re-judging the same span dedups the finding but refreshes supports.
	results.Findings[0].ID = "f-2"
	written, err = store.WriteSceneResults(ctx, results)
	if err != nil {
		t.Fatalf("WriteSceneResults (dup): %v", err)
	}
	if written != 0 {
		t.Fatalf("expected duplicate finding to be ignored, wrote %d", written)
	}
}

func TestWorkFindingsOrderedBySceneThenSpan(t *testing.T) {
	store := openTestStore(t)
	seedFixture(t, store)
	ctx := context.Background()

	base := Finding{
		WorkID: "w-1", TropeID: "t-1", Level: LevelSpan, Confidence: 0.5,
		Model: "test-model", ThresholdUsed: 0.25, RunID: "r-1",
	}
	later := base
	later.ID, later.SceneID, later.EvidenceStart, later.EvidenceEnd = "f-late", "s-2", 32, 54
	early := base
	early.ID, early.SceneID, early.EvidenceStart, early.EvidenceEnd = "f-early", "s-1", 9, 24

	if _, err := store.WriteSceneResults(ctx, SceneResults{Findings: []Finding{later}}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.WriteSceneResults(ctx, SceneResults{Findings: []Finding{early}}); err != nil {
		t.Fatal(err)
	}

	findings, err := store.WorkFindings(ctx, "w-1", "")
	if err != nil {
		t.Fatalf("WorkFindings: %v", err)
	}
	if len(findings) != 2 || findings[0].ID != "f-early" || findings[1].ID != "f-late" {
		t.Fatalf("unexpected ordering: %v", findings)
	}
}

func TestLatestHumanDecisionWins(t *testing.T) {
	store := openTestStore(t)
	seedFixture(t, store)
	ctx := context.Background()

	finding := Finding{
		ID: "f-1", WorkID: "w-1", SceneID: "s-1", TropeID: "t-1", Level: LevelSpan,
		Confidence: 0.5, EvidenceStart: 0, EvidenceEnd: 10, Model: "m", ThresholdUsed: 0.25, RunID: "r-1",
	}
	if _, err := store.WriteSceneResults(ctx, SceneResults{Findings: []Finding{finding}}); err != nil {
		t.Fatal(err)
	}

	if err := store.InsertHumanDecision(ctx, HumanDecision{FindingID: "f-1", Decision: "reject"}); err != nil {
		t.Fatal(err)
	}
	if err := store.InsertHumanDecision(ctx, HumanDecision{FindingID: "f-1", Decision: "accept"}); err != nil {
		t.Fatal(err)
	}

	decisions, err := store.LatestHumanDecisions(ctx)
	if err != nil {
		t.Fatalf("LatestHumanDecisions: %v", err)
	}
	if len(decisions) != 1 || decisions[0].Decision != "accept" {
		t.Fatalf("expected latest decision accept, got %v", decisions)
	}
}

func TestTropeThresholdOverride(t *testing.T) {
	store := openTestStore(t)
	seedFixture(t, store)
	ctx := context.Background()

	if err := store.SetTropeThreshold(ctx, "t-1", 0.4); err != nil {
		t.Fatal(err)
	}
	if err := store.SetTropeThreshold(ctx, "t-1", 0.6); err != nil {
		t.Fatal(err)
	}

	thresholds, err := store.TropeThresholds(ctx)
	if err != nil {
		t.Fatalf("TropeThresholds: %v", err)
	}
	if thresholds["t-1"] != 0.6 {
		t.Fatalf("expected threshold 0.6, got %g", thresholds["t-1"])
	}
}

func TestLoadIndexRoundTrip(t *testing.T) {
	store := openTestStore(t)
	seedFixture(t, store)

	ix, err := store.LoadIndex(context.Background(), "w-1")
	if err != nil {
		t.Fatalf("LoadIndex: %v", err)
	}
	if ix.CharCount() != len([]rune(fixtureText)) {
		t.Fatalf("unexpected char count %d", ix.CharCount())
	}
	if err := ix.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got := ix.Slice(9, 24); got != "dark and stormy" {
		t.Fatalf("Slice(9,24) = %q", got)
	}
}

func TestAuditRows(t *testing.T) {
	store := openTestStore(t)
	seedFixture(t, store)
	ctx := context.Background()

	audit := Audit{RunID: "r-1", WorkID: "w-1", SceneID: "s-1", Kind: "judge_parse_error", Detail: "invalid JSON"}
	if err := store.InsertAudit(ctx, audit); err != nil {
		t.Fatalf("InsertAudit: %v", err)
	}

	audits, err := store.RunAudits(ctx, "r-1")
	if err != nil {
		t.Fatalf("RunAudits: %v", err)
	}
	if len(audits) != 1 || audits[0].Kind != "judge_parse_error" {
		t.Fatalf("unexpected audits %v", audits)
	}
}
