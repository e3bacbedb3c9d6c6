// Package pipeline drives one work through the judging stages: gazetteer
// and semantic seeding, per-scene support/sanity/judge, then the span and
// cue post-passes. Each execution is stamped as a run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"tropeminer/internal/catalog"
	"tropeminer/internal/config"
	"tropeminer/internal/gazetteer"
	"tropeminer/internal/judge"
	"tropeminer/internal/logging"
	"tropeminer/internal/negation"
	"tropeminer/internal/services"
	"tropeminer/internal/spanverify"
	"tropeminer/internal/store"
	"tropeminer/internal/support"
	"tropeminer/internal/textindex"
)

// Audit row kinds written by the orchestrator.
const (
	auditJudgeParseError = "judge_parse_error"
	auditSceneError      = "scene_error"
	auditFindingFlagged  = "finding_flagged"
	auditFindingDeleted  = "finding_deleted"
)

type gazetteerSeeder interface {
	Seed(ix *textindex.Index, tropes []catalog.Trope) ([]store.Candidate, gazetteer.Stats)
}

type semanticSeeder interface {
	Seed(ctx context.Context, ix *textindex.Index, tropes []catalog.Trope) ([]store.Candidate, error)
}

type supportSelector interface {
	Select(ctx context.Context, workID, sceneID, sceneText string) (*support.Selection, error)
}

type sanityScorer interface {
	Compute(ctx context.Context, sceneID, sceneText string, supportTexts []string, tropes []catalog.Trope) ([]store.Sanity, error)
}

type sceneJudge interface {
	Judge(ctx context.Context, in judge.Input) (*judge.Result, error)
}

type spanVerifier interface {
	Verify(ctx context.Context, ix *textindex.Index, trope catalog.Trope, finding store.Finding) (spanverify.Outcome, error)
}

type cueInspector interface {
	Inspect(ix *textindex.Index, trope catalog.Trope, finding store.Finding) negation.Action
}

// Stages selects which parts of the pipeline execute.
type Stages struct {
	Seed        bool
	Judge       bool
	VerifySpans bool
	VerifyCues  bool
}

// AllStages runs the whole pipeline.
func AllStages() Stages {
	return Stages{Seed: true, Judge: true, VerifySpans: true, VerifyCues: true}
}

func (s Stages) any() bool { return s.Seed || s.Judge || s.VerifySpans || s.VerifyCues }

// Summary reports what one execution did.
type Summary struct {
	RunID          string
	Scenes         int
	ScenesSkipped  int
	Candidates     int
	Findings       int
	SpansTightened int
	CueFlagged     int
	CueDeleted     int
}

// Pipeline wires the stages over one store. Construct with New; the
// interface fields exist for tests.
type Pipeline struct {
	cfg      *config.Config
	store    *store.Store
	gaz      gazetteerSeeder
	sem      semanticSeeder
	selector supportSelector
	prior    sanityScorer
	judge    sceneJudge
	verifier spanVerifier
	cues     cueInspector
	logger   *slog.Logger
}

// Deps carries the stage implementations into New.
type Deps struct {
	Gazetteer gazetteerSeeder
	Semantic  semanticSeeder
	Selector  supportSelector
	Prior     sanityScorer
	Judge     sceneJudge
	Verifier  spanVerifier
	Cues      cueInspector
}

func New(cfg *config.Config, st *store.Store, deps Deps, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		store:    st,
		gaz:      deps.Gazetteer,
		sem:      deps.Semantic,
		selector: deps.Selector,
		prior:    deps.Prior,
		judge:    deps.Judge,
		verifier: deps.Verifier,
		cues:     deps.Cues,
		logger:   logging.NewComponentLogger(logger, "pipeline"),
	}
}

// Run executes the selected stages for one work under the database run
// lock. Seeding failures are fatal; per-scene and per-finding failures
// degrade with audit rows as each stage documents.
func (p *Pipeline) Run(ctx context.Context, workID string, stages Stages) (*Summary, error) {
	if !stages.any() {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "run", "no stages selected", nil)
	}

	lock := flock.New(p.store.Path() + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrDatabase, "pipeline", "lock", "acquire run lock", err)
	}
	if !locked {
		return nil, services.Wrap(services.ErrDatabase, "pipeline", "lock", "another run holds the database lock", nil)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			p.logger.Warn("failed to release run lock", logging.Error(err))
		}
	}()

	ix, err := p.store.LoadIndex(ctx, workID)
	if err != nil {
		return nil, err
	}
	// Refuse to write findings against text that does not match its chunks.
	if err := ix.Verify(); err != nil {
		return nil, err
	}
	tropes, err := p.store.ListTropes(ctx)
	if err != nil {
		return nil, err
	}
	if len(tropes) == 0 {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "catalog", "trope catalog is empty", nil)
	}

	run, err := NewRun(p.cfg, tropes, workID)
	if err != nil {
		return nil, err
	}
	if err := p.store.InsertRun(ctx, run); err != nil {
		return nil, err
	}

	summary := &Summary{RunID: run.ID, Scenes: len(ix.Scenes())}
	p.logger.Info("run started",
		logging.String("run", run.ID),
		logging.String("work", workID),
		logging.Int("scenes", summary.Scenes),
		logging.Int("tropes", len(tropes)))

	if stages.Seed {
		if err := p.seed(ctx, ix, tropes, summary); err != nil {
			return nil, err
		}
	}
	if stages.Judge {
		if err := p.judgeScenes(ctx, ix, tropes, run.ID, summary); err != nil {
			return nil, err
		}
	}

	byID := make(map[string]catalog.Trope, len(tropes))
	for _, t := range tropes {
		byID[t.ID] = t
	}
	if stages.VerifySpans {
		if err := p.verifySpans(ctx, ix, byID, run.ID, stages.Judge, summary); err != nil {
			return nil, err
		}
	}
	if stages.VerifyCues {
		if err := p.verifyCues(ctx, ix, byID, run.ID, stages.Judge, summary); err != nil {
			return nil, err
		}
	}

	p.logger.Info("run finished",
		logging.String("run", run.ID),
		logging.Int("candidates", summary.Candidates),
		logging.Int("findings", summary.Findings),
		logging.Int("scenes_skipped", summary.ScenesSkipped))
	return summary, nil
}

// seed runs the gazetteer and semantic seeders. Either failing is fatal:
// without candidates there is nothing to judge.
func (p *Pipeline) seed(ctx context.Context, ix *textindex.Index, tropes []catalog.Trope, summary *Summary) error {
	candidates, stats := p.gaz.Seed(ix, tropes)
	inserted, err := p.store.InsertCandidates(ctx, candidates)
	if err != nil {
		return err
	}
	summary.Candidates += inserted

	semCandidates, err := p.sem.Seed(ctx, ix, tropes)
	if err != nil {
		return err
	}
	semInserted, err := p.store.InsertCandidates(ctx, semCandidates)
	if err != nil {
		return err
	}
	summary.Candidates += semInserted

	p.logger.Info("seeding complete",
		logging.Int("gazetteer", inserted),
		logging.Int("semantic", semInserted),
		logging.Int("blocked_window", stats.BlockedWindow),
		logging.Int("blocked_chunk", stats.BlockedChunkLevel))
	return nil
}

// judgeScenes fans scenes out to the configured width. Inside a scene the
// order is strict: support selection, sanity priors, then the judge, with
// all rows for the scene committed in one transaction.
func (p *Pipeline) judgeScenes(ctx context.Context, ix *textindex.Index, tropes []catalog.Trope, runID string, summary *Summary) error {
	thresholds, err := p.store.TropeThresholds(ctx)
	if err != nil {
		return err
	}
	byID := make(map[string]catalog.Trope, len(tropes))
	for _, t := range tropes {
		byID[t.ID] = t
	}

	type sceneOutcome struct {
		findings int
		skipped  bool
	}
	outcomes := make([]sceneOutcome, len(ix.Scenes()))

	limit := p.cfg.Judge.SceneConcurrency
	if limit <= 0 {
		limit = 2
	}
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(limit)
	for i, scene := range ix.Scenes() {
		group.Go(func() error {
			written, skipped, err := p.judgeScene(gctx, ix, scene, byID, thresholds, runID)
			if err != nil {
				return err
			}
			outcomes[i] = sceneOutcome{findings: written, skipped: skipped}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	for _, o := range outcomes {
		summary.Findings += o.findings
		if o.skipped {
			summary.ScenesSkipped++
		}
	}
	return nil
}

// judgeScene processes one scene end to end. Recoverable failures skip the
// scene with an audit row and a nil error; only database write failures
// propagate.
func (p *Pipeline) judgeScene(ctx context.Context, ix *textindex.Index, scene textindex.Scene, tropes map[string]catalog.Trope, thresholds map[string]float64, runID string) (written int, skipped bool, err error) {
	candidates, err := p.store.SceneCandidates(ctx, scene.ID)
	if err != nil {
		return 0, false, err
	}
	if len(candidates) == 0 {
		return 0, false, nil
	}
	sceneText := ix.SceneText(scene)
	sceneTropes := candidateTropes(candidates, tropes)

	selection, err := p.selector.Select(ctx, scene.WorkID, scene.ID, sceneText)
	if err != nil {
		return 0, true, p.skipScene(ctx, scene, runID, "support selection failed", err)
	}

	sanity, err := p.prior.Compute(ctx, scene.ID, sceneText, selection.PickedTexts, sceneTropes)
	if err != nil {
		return 0, true, p.skipScene(ctx, scene, runID, "sanity priors failed", err)
	}

	result, err := p.judge.Judge(ctx, judge.Input{
		Scene: judge.Scene{
			WorkID:    scene.WorkID,
			SceneID:   scene.ID,
			Text:      sceneText,
			CharStart: scene.CharStart,
			CharEnd:   scene.CharEnd,
		},
		Candidates:      candidates,
		Sanity:          sanity,
		SupportTexts:    selection.PickedTexts,
		TropeThresholds: thresholds,
	})
	if err != nil {
		kind := auditSceneError
		if errors.Is(err, services.ErrMalformed) {
			kind = auditJudgeParseError
		}
		audit := store.Audit{RunID: runID, WorkID: scene.WorkID, SceneID: scene.ID, Kind: kind, Detail: err.Error()}
		if auditErr := p.store.InsertAudit(ctx, audit); auditErr != nil {
			return 0, true, auditErr
		}
		p.logger.Warn("scene skipped",
			logging.String("scene", scene.ID),
			logging.String("kind", kind),
			logging.Error(err))
		return 0, true, nil
	}

	results := store.SceneResults{SceneID: scene.ID}
	for _, row := range selection.Supports {
		row.RunID = runID
		results.Supports = append(results.Supports, row)
	}
	for _, row := range sanity {
		row.RunID = runID
		results.Sanity = append(results.Sanity, row)
	}
	for _, finding := range result.Findings {
		finding.RunID = runID
		results.Findings = append(results.Findings, finding)
	}

	written, err = p.store.WriteSceneResults(ctx, results)
	if err != nil {
		return 0, false, err
	}
	for _, audit := range result.Audits {
		audit.RunID = runID
		if err := p.store.InsertAudit(ctx, audit); err != nil {
			return written, false, err
		}
	}
	return written, false, nil
}

// skipScene records the audit row for a recoverable per-scene failure.
// The returned error is nil unless the audit write itself failed.
func (p *Pipeline) skipScene(ctx context.Context, scene textindex.Scene, runID, message string, cause error) error {
	p.logger.Warn("scene skipped",
		logging.String("scene", scene.ID),
		logging.String("reason", message),
		logging.Error(cause))
	return p.store.InsertAudit(ctx, store.Audit{
		RunID:   runID,
		WorkID:  scene.WorkID,
		SceneID: scene.ID,
		Kind:    auditSceneError,
		Detail:  fmt.Sprintf("%s: %v", message, cause),
	})
}

// verifySpans runs the span verifier over the run's findings (or, when
// invoked standalone, all findings of the work). Per-finding failures flag
// the row and continue.
func (p *Pipeline) verifySpans(ctx context.Context, ix *textindex.Index, tropes map[string]catalog.Trope, runID string, scopedToRun bool, summary *Summary) error {
	findings, err := p.findings(ctx, ix.Work().ID, runID, scopedToRun)
	if err != nil {
		return err
	}
	for _, finding := range findings {
		trope, ok := tropes[finding.TropeID]
		if !ok {
			continue
		}
		outcome, err := p.verifier.Verify(ctx, ix, trope, finding)
		if err != nil {
			p.logger.Warn("span verification failed",
				logging.String("finding", finding.ID),
				logging.Error(err))
			if err := p.store.FlagFinding(ctx, finding.ID, "verifier_error", nil); err != nil {
				return err
			}
			continue
		}
		if outcome.Replaced {
			if err := p.store.UpdateFindingSpan(ctx, finding.ID, outcome.Start, outcome.End, outcome.Score); err != nil {
				return err
			}
			summary.SpansTightened++
			continue
		}
		if err := p.store.SetVerifierScore(ctx, finding.ID, outcome.Score); err != nil {
			return err
		}
	}
	return nil
}

// verifyCues applies the negation/meta policy to each finding. Downweighted
// findings are retained even when they fall under their threshold; only
// delete mode removes rows.
func (p *Pipeline) verifyCues(ctx context.Context, ix *textindex.Index, tropes map[string]catalog.Trope, runID string, scopedToRun bool, summary *Summary) error {
	findings, err := p.findings(ctx, ix.Work().ID, runID, scopedToRun)
	if err != nil {
		return err
	}
	for _, finding := range findings {
		trope, ok := tropes[finding.TropeID]
		if !ok {
			continue
		}
		action := p.cues.Inspect(ix, trope, finding)
		if action.Flag == "" {
			continue
		}
		if action.Delete {
			if err := p.store.DeleteFinding(ctx, finding.ID); err != nil {
				return err
			}
			summary.CueDeleted++
			audit := store.Audit{RunID: runID, WorkID: finding.WorkID, SceneID: finding.SceneID, FindingID: finding.ID, Kind: auditFindingDeleted, Detail: action.Flag}
			if err := p.store.InsertAudit(ctx, audit); err != nil {
				return err
			}
			continue
		}
		if err := p.store.FlagFinding(ctx, finding.ID, action.Flag, action.NewConfidence); err != nil {
			return err
		}
		summary.CueFlagged++
		audit := store.Audit{RunID: runID, WorkID: finding.WorkID, SceneID: finding.SceneID, FindingID: finding.ID, Kind: auditFindingFlagged, Detail: action.Flag}
		if err := p.store.InsertAudit(ctx, audit); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) findings(ctx context.Context, workID, runID string, scopedToRun bool) ([]store.Finding, error) {
	if scopedToRun {
		return p.store.RunFindings(ctx, runID)
	}
	return p.store.WorkFindings(ctx, workID, "")
}

// candidateTropes resolves the distinct tropes behind a scene's candidate
// rows, in a stable order.
func candidateTropes(candidates []store.Candidate, tropes map[string]catalog.Trope) []catalog.Trope {
	seen := make(map[string]bool)
	var out []catalog.Trope
	for _, c := range candidates {
		if seen[c.TropeID] {
			continue
		}
		seen[c.TropeID] = true
		if trope, ok := tropes[c.TropeID]; ok {
			out = append(out, trope)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
