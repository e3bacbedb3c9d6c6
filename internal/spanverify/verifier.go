// Package spanverify tightens evidence spans after judging: when a span
// scores poorly against both the trope definition and its scene, nearby
// sentence-aligned windows are tried and the best one wins if it is a
// clear improvement.
package spanverify

import (
	"context"
	"log/slog"

	"tropeminer/internal/catalog"
	"tropeminer/internal/embedding"
	"tropeminer/internal/logging"
	"tropeminer/internal/services"
	"tropeminer/internal/store"
	"tropeminer/internal/textindex"
)

// A replacement window must beat the original span by at least this much.
const minImprovement = 0.05

// maxSpanRunes caps any candidate window, centered on the original span.
const maxSpanRunes = 280

// Embedder produces normalized embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Options tune one verification pass.
type Options struct {
	// Threshold is the minimum of sim_def and sim_scene below which the
	// verifier searches for a better window.
	Threshold float64
	// MaxSentences bounds the sentence-boundary search around the span.
	MaxSentences int
}

// Outcome reports what the verifier decided for one finding.
type Outcome struct {
	Start    int
	End      int
	Score    float64
	Replaced bool
}

// Verifier is safe for concurrent use across findings.
type Verifier struct {
	embedder Embedder
	opts     Options
	logger   *slog.Logger
}

func NewVerifier(embedder Embedder, opts Options, logger *slog.Logger) *Verifier {
	return &Verifier{
		embedder: embedder,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "spanverify"),
	}
}

// Verify scores the finding's span and, when it is weak, searches
// sentence-aligned windows inside the same scene for a better one. The
// returned outcome always carries a score; the span changes only when a
// window improves on the original by the required margin.
func (v *Verifier) Verify(ctx context.Context, ix *textindex.Index, trope catalog.Trope, finding store.Finding) (Outcome, error) {
	scene, ok := ix.SceneByID(finding.SceneID)
	if !ok {
		return Outcome{}, services.ErrNotFound
	}
	sceneText := ix.SceneText(scene)
	sceneRunes := []rune(sceneText)

	start, end := finding.EvidenceStart, finding.EvidenceEnd
	if start < scene.CharStart {
		start = scene.CharStart
	}
	if end > scene.CharEnd {
		end = scene.CharEnd
	}
	if end < start {
		start, end = end, start
	}

	defVec, err := v.embedder.Embed(ctx, trope.QueryText())
	if err != nil {
		return Outcome{}, err
	}
	sceneVec, err := v.embedder.Embed(ctx, sceneText)
	if err != nil {
		return Outcome{}, err
	}

	simDef, simScene, score, err := v.scoreSpan(ctx, ix.Slice(start, end), defVec, sceneVec)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{Start: start, End: end, Score: score}
	if min(simDef, simScene) >= v.opts.Threshold {
		return out, nil
	}

	// Scene-local candidate windows, sentence aligned.
	localStart, localEnd := start-scene.CharStart, end-scene.CharStart
	windows := candidateWindows(sceneRunes, localStart, localEnd, v.opts.MaxSentences)

	var best Outcome
	for _, w := range windows {
		if w.start == localStart && w.end == localEnd {
			continue
		}
		_, _, wScore, err := v.scoreSpan(ctx, string(sceneRunes[w.start:w.end]), defVec, sceneVec)
		if err != nil {
			return Outcome{}, err
		}
		if !best.Replaced || wScore > best.Score {
			best = Outcome{
				Start:    scene.CharStart + w.start,
				End:      scene.CharStart + w.end,
				Score:    wScore,
				Replaced: true,
			}
		}
	}

	if best.Replaced && best.Score >= out.Score+minImprovement {
		v.logger.Debug("span tightened",
			logging.String("finding", finding.ID),
			logging.Int("start", best.Start),
			logging.Int("end", best.End),
			logging.Float64("score", best.Score))
		return best, nil
	}
	return out, nil
}

// scoreSpan embeds a span and combines its similarity to the trope
// definition and the scene.
func (v *Verifier) scoreSpan(ctx context.Context, span string, defVec, sceneVec []float64) (simDef, simScene, score float64, err error) {
	if span == "" {
		return 0, 0, 0, nil
	}
	spanVec, err := v.embedder.Embed(ctx, span)
	if err != nil {
		return 0, 0, 0, err
	}
	simDef = embedding.Cosine(spanVec, defVec)
	simScene = embedding.Cosine(spanVec, sceneVec)
	return simDef, simScene, 0.7*simDef + 0.3*simScene, nil
}

type window struct {
	start, end int
}

// sentenceSpans splits scene text into sentence spans. A boundary sits
// after a run of {. ! ?} followed by whitespace or end-of-text; the scene
// edges always bound the first and last sentence.
func sentenceSpans(runes []rune) []window {
	var spans []window
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isSentencePunct(runes[i]) {
			continue
		}
		// Skip the punctuation run.
		j := i
		for j+1 < len(runes) && isSentencePunct(runes[j+1]) {
			j++
		}
		if j+1 < len(runes) && !isSpace(runes[j+1]) {
			i = j
			continue
		}
		spans = append(spans, window{start: start, end: j + 1})
		// Skip trailing whitespace to the next sentence start.
		k := j + 1
		for k < len(runes) && isSpace(runes[k]) {
			k++
		}
		start = k
		i = k - 1
	}
	if start < len(runes) {
		spans = append(spans, window{start: start, end: len(runes)})
	}
	if len(spans) == 0 {
		spans = append(spans, window{start: 0, end: len(runes)})
	}
	return spans
}

// candidateWindows enumerates sentence-aligned expansions and shrinks
// around the span, each capped in length by centering on the span.
func candidateWindows(runes []rune, start, end, maxSentences int) []window {
	spans := sentenceSpans(runes)

	// Sentence covering (or nearest to) the span start.
	anchor := 0
	for i, s := range spans {
		if s.start <= start && start < s.end || s.start < end && end <= s.end || (start <= s.start && end >= s.end) {
			anchor = i
			break
		}
	}

	seen := make(map[window]bool)
	var out []window
	add := func(w window) {
		w = capWindow(w, start, end, len(runes))
		if w.end <= w.start || seen[w] {
			return
		}
		seen[w] = true
		out = append(out, w)
	}

	for lo := anchor - maxSentences; lo <= anchor; lo++ {
		for hi := anchor; hi <= anchor+maxSentences; hi++ {
			i, j := clampIdx(lo, len(spans)), clampIdx(hi, len(spans))
			add(window{start: spans[i].start, end: spans[j].end})
		}
	}
	return out
}

// capWindow trims an over-long window to maxSpanRunes, centered on the
// original span.
func capWindow(w window, start, end, n int) window {
	if w.end-w.start <= maxSpanRunes {
		return w
	}
	center := (start + end) / 2
	lo := center - maxSpanRunes/2
	if lo < w.start {
		lo = w.start
	}
	if lo+maxSpanRunes > w.end {
		lo = w.end - maxSpanRunes
	}
	if lo < 0 {
		lo = 0
	}
	hi := lo + maxSpanRunes
	if hi > n {
		hi = n
	}
	return window{start: lo, end: hi}
}

func clampIdx(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func isSentencePunct(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
