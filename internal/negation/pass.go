// Package negation re-examines findings after judging: text near the
// evidence span may negate the trope, discuss it as a device, or name an
// anti-form of it. The configured policy decides whether such findings
// are flagged, downweighted, or removed.
package negation

import (
	"log/slog"
	"regexp"

	"tropeminer/internal/catalog"
	"tropeminer/internal/gazetteer"
	"tropeminer/internal/logging"
	"tropeminer/internal/store"
	"tropeminer/internal/textindex"
)

// Modes for Options.Mode.
const (
	ModeFlagOnly   = "flag-only"
	ModeDownweight = "downweight"
	ModeDelete     = "delete"
)

// Flags written to verifier_flag.
const (
	FlagNegation  = "negation_cue"
	FlagMeta      = "meta_cue"
	FlagAntiAlias = "anti_alias"
)

var (
	// Strong cues count anywhere in the window; a plain "not" counts only
	// right next to a trope mention.
	strongNegationRe = regexp.MustCompile(`(?i)\b(?:no|never|without|isn['` + "’" + `]t|wasn['` + "’" + `]t)\b`)
	plainNotRe       = regexp.MustCompile(`(?i)\bnot\b`)
	metaRe           = regexp.MustCompile(`(?i)\b(?:deconstruct(?:s|ion|ing)?|subverts?|parod(?:y|ies)\s+of|isn['` + "’" + `]t\s+a|lampshad(?:e|es|ed|ing)|satire|clich(?:e|é)s?)\b`)
)

// nearRunes bounds how far from a mention a plain "not" still counts.
const nearRunes = 16

// Options tune one pass.
type Options struct {
	Mode string
	// Window is the code-point reach around evidence_start.
	Window int
	// Downweight factors per cue kind; the smallest firing factor wins.
	NegationFactor  float64
	MetaFactor      float64
	AntiAliasFactor float64
}

// Action is the decision for one finding. A zero Action means the finding
// is untouched.
type Action struct {
	Flag string
	// NewConfidence is set in downweight mode.
	NewConfidence *float64
	Delete        bool
}

// Pass scans findings for negation, meta, and anti-alias cues.
type Pass struct {
	opts   Options
	logger *slog.Logger
}

func NewPass(opts Options, logger *slog.Logger) *Pass {
	return &Pass{opts: opts, logger: logging.NewComponentLogger(logger, "negation")}
}

// Inspect examines the window around the finding's evidence start and
// returns the action the policy dictates. Findings whose adjusted
// confidence would fall under their threshold are still retained; only
// delete mode removes rows.
func (p *Pass) Inspect(ix *textindex.Index, trope catalog.Trope, finding store.Finding) Action {
	w0 := finding.EvidenceStart - p.opts.Window
	if w0 < 0 {
		w0 = 0
	}
	w1 := finding.EvidenceStart + p.opts.Window
	if w1 > ix.CharCount() {
		w1 = ix.CharCount()
	}
	window := ix.Slice(w0, w1)

	matcher := gazetteer.NewMatcher(trope, gazetteer.MatcherOptions{})
	negation := hasNegation(window, matcher)
	meta := metaRe.MatchString(window)
	anti := matcher.HasAntiPhrase(window)

	var flag string
	var factor float64
	switch {
	case negation:
		flag, factor = FlagNegation, p.opts.NegationFactor
	case anti:
		flag, factor = FlagAntiAlias, p.opts.AntiAliasFactor
	case meta:
		flag, factor = FlagMeta, p.opts.MetaFactor
	default:
		return Action{}
	}
	// Several cues at once: the harshest factor wins.
	if negation && anti && p.opts.AntiAliasFactor < factor {
		factor = p.opts.AntiAliasFactor
	}
	if (negation || anti) && meta && p.opts.MetaFactor < factor {
		factor = p.opts.MetaFactor
	}

	switch p.opts.Mode {
	case ModeDelete:
		p.logger.Info("finding removed",
			logging.String("finding", finding.ID),
			logging.String("cue", flag))
		return Action{Flag: flag, Delete: true}
	case ModeDownweight:
		conf := clamp01(finding.Confidence * factor)
		p.logger.Info("finding downweighted",
			logging.String("finding", finding.ID),
			logging.String("cue", flag),
			logging.Float64("confidence", conf))
		return Action{Flag: flag, NewConfidence: &conf}
	default:
		return Action{Flag: flag}
	}
}

// hasNegation looks for strong cues anywhere in the window, or a plain
// "not" within a few characters of a trope mention.
func hasNegation(window string, matcher *gazetteer.Matcher) bool {
	if strongNegationRe.MatchString(window) {
		return true
	}
	if !plainNotRe.MatchString(window) {
		return false
	}
	runes := []rune(window)
	for _, m := range matcher.Find(window) {
		lo := m.Start - nearRunes
		if lo < 0 {
			lo = 0
		}
		hi := m.End + nearRunes
		if hi > len(runes) {
			hi = len(runes)
		}
		if plainNotRe.MatchString(string(runes[lo:m.Start])) || plainNotRe.MatchString(string(runes[m.End:hi])) {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
