package judge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"tropeminer/internal/catalog"
	"tropeminer/internal/logging"
	"tropeminer/internal/services"
	"tropeminer/internal/store"
)

type stubCompleter struct {
	response string
	err      error
	prompt   string
}

func (s *stubCompleter) CompleteJSON(ctx context.Context, prompt string) (string, error) {
	s.prompt = prompt
	return s.response, s.err
}

func (s *stubCompleter) ReasonerModel() string { return "llama3.1:8b" }

func testTropes() []catalog.Trope {
	return []catalog.Trope{
		{ID: "t-rh", Name: "Red Herring", Summary: "A misleading clue."},
		{ID: "t-cg", Name: "Chekhov's Gun", Summary: "A planted detail that later fires."},
		{ID: "t-ts", Name: "Twist Ending", Summary: "A late reversal of expectations."},
	}
}

func testScene() Scene {
	return Scene{
		WorkID:    "w-1",
		SceneID:   "s-1",
		Text:      "The pistol on the mantel finally went off.",
		CharStart: 100,
		CharEnd:   142,
	}
}

func testInput(completerTropes ...string) Input {
	in := Input{Scene: testScene()}
	for _, tid := range completerTropes {
		in.Candidates = append(in.Candidates, store.Candidate{TropeID: tid, SceneID: "s-1", Score: 0.8})
		in.Sanity = append(in.Sanity, store.Sanity{SceneID: "s-1", TropeID: tid, LexOK: true, SemSim: 0.5, Weight: 1.0})
	}
	return in
}

func newTestJudge(completer Completer, opts Options) *Judge {
	if opts.Threshold == 0 {
		opts.Threshold = 0.55
	}
	if opts.TropeTopK == 0 {
		opts.TropeTopK = 12
	}
	if opts.CalibrationVersion == "" {
		opts.CalibrationVersion = "cal-2025-01"
	}
	return New(completer, testTropes(), opts, logging.NewNop())
}

func TestJudgeAcceptsAboveThreshold(t *testing.T) {
	completer := &stubCompleter{response: `[{"trope_id": "t-cg", "confidence": 0.9, "evidence_start": 104, "evidence_end": 124, "rationale": "the planted pistol fires"}]`}
	res, err := newTestJudge(completer, Options{}).Judge(context.Background(), testInput("t-cg"))
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if len(res.Findings) != 1 {
		t.Fatalf("findings = %+v", res.Findings)
	}
	f := res.Findings[0]
	if f.TropeID != "t-cg" || f.Confidence != 0.9 || f.ThresholdUsed != 0.55 {
		t.Fatalf("finding = %+v", f)
	}
	if f.Level != store.LevelSpan || f.Model != "llama3.1:8b" || f.CalibrationVersion != "cal-2025-01" {
		t.Fatalf("finding stamping wrong: %+v", f)
	}
	if !strings.HasPrefix(completer.prompt, PromptVersion) {
		t.Fatal("prompt must lead with its version header")
	}
}

func TestJudgeMultipliesConfidenceByWeight(t *testing.T) {
	completer := &stubCompleter{response: `[{"trope_id": "t-rh", "confidence": 0.9, "evidence_start": 100, "evidence_end": 120, "rationale": "r"}]`}
	in := testInput("t-rh")
	in.Sanity[0].LexOK = false
	in.Sanity[0].SemSim = 0.1
	in.Sanity[0].Weight = 0.55

	res, err := newTestJudge(completer, Options{}).Judge(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	// 0.9 * 0.55 = 0.495 < 0.55: adjusted confidence misses the bar.
	if len(res.Findings) != 0 {
		t.Fatalf("downweighted finding must be rejected, got %+v", res.Findings)
	}
}

func TestJudgePerTropeThresholdOverride(t *testing.T) {
	completer := &stubCompleter{response: `[{"trope_id": "t-rh", "confidence": 0.5, "evidence_start": 100, "evidence_end": 120, "rationale": "r"}]`}
	in := testInput("t-rh")
	in.TropeThresholds = map[string]float64{"t-rh": 0.40}

	res, err := newTestJudge(completer, Options{}).Judge(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Findings) != 1 || res.Findings[0].ThresholdUsed != 0.40 {
		t.Fatalf("override not honored: %+v", res.Findings)
	}
}

func TestJudgeRejectsSpanOutsideScene(t *testing.T) {
	completer := &stubCompleter{response: `[{"trope_id": "t-rh", "confidence": 0.9, "evidence_start": 10, "evidence_end": 30, "rationale": "r"}]`}
	res, err := newTestJudge(completer, Options{}).Judge(context.Background(), testInput("t-rh"))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Findings) != 0 {
		t.Fatalf("out-of-scene span must not produce a finding: %+v", res.Findings)
	}
	if len(res.Audits) != 1 || res.Audits[0].Kind != "bad_span" {
		t.Fatalf("audits = %+v", res.Audits)
	}
}

func TestJudgeRejectsInvertedSpan(t *testing.T) {
	completer := &stubCompleter{response: `[{"trope_id": "t-rh", "confidence": 0.9, "evidence_start": 130, "evidence_end": 110, "rationale": "r"}]`}
	res, err := newTestJudge(completer, Options{}).Judge(context.Background(), testInput("t-rh"))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Findings) != 0 || len(res.Audits) != 1 {
		t.Fatalf("res = %+v", res)
	}
}

func TestJudgeMalformedReplyIsAnError(t *testing.T) {
	completer := &stubCompleter{response: "The scene clearly shows a Chekhov's Gun."}
	_, err := newTestJudge(completer, Options{}).Judge(context.Background(), testInput("t-cg"))
	if !errors.Is(err, services.ErrMalformed) {
		t.Fatalf("expected malformed-output error, got %v", err)
	}
}

func TestJudgeDropsInventedTropeIDs(t *testing.T) {
	completer := &stubCompleter{response: `[{"trope_id": "t-made-up", "confidence": 0.9, "evidence_start": 100, "evidence_end": 120, "rationale": "r"}]`}
	res, err := newTestJudge(completer, Options{}).Judge(context.Background(), testInput("t-rh"))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Findings) != 0 || len(res.Audits) != 0 {
		t.Fatalf("invented id must be silently dropped: %+v", res)
	}
}

func TestJudgeEmptyShortlistSkipsModelCall(t *testing.T) {
	completer := &stubCompleter{response: `[]`}
	res, err := newTestJudge(completer, Options{}).Judge(context.Background(), Input{Scene: testScene()})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Findings) != 0 || completer.prompt != "" {
		t.Fatalf("no candidates must mean no model call, prompt=%q", completer.prompt)
	}
}

func TestShortlistCapKeepsStrongest(t *testing.T) {
	in := testInput("t-rh", "t-cg", "t-ts")
	// t-cg gets the strongest combined prior.
	for i := range in.Candidates {
		switch in.Candidates[i].TropeID {
		case "t-cg":
			in.Candidates[i].Score = 0.95
		case "t-ts":
			in.Candidates[i].Score = 0.30
		}
	}
	j := newTestJudge(&stubCompleter{}, Options{TropeTopK: 2})
	shortlist := j.shortlist(in)
	if len(shortlist) != 2 {
		t.Fatalf("shortlist len = %d", len(shortlist))
	}
	if shortlist[0].trope.ID != "t-cg" {
		t.Fatalf("strongest trope must lead: %s", shortlist[0].trope.ID)
	}
	for _, st := range shortlist {
		if st.trope.ID == "t-ts" {
			t.Fatal("weakest trope must be capped out")
		}
	}
}
