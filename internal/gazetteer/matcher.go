package gazetteer

import (
	"regexp"
	"sort"
	"strings"

	"tropeminer/internal/catalog"
)

// negationCues suppress a match when one appears within three tokens
// before the surface.
var negationCues = map[string]struct{}{
	"no": {}, "not": {}, "never": {}, "without": {},
	"isn't": {}, "wasn't": {}, "anti": {},
}

type surface struct {
	alias     string
	canonical bool
	re        *regexp.Regexp
	antiRe    *regexp.Regexp
}

// Matcher holds the compiled surfaces and anti-alias patterns for one
// trope. It is read-only after construction and safe for concurrent use.
type Matcher struct {
	tropeID     string
	surfaces    []surface
	antiPhrases []*regexp.Regexp
}

// MatcherOptions tune alias filtering.
type MatcherOptions struct {
	MinAliasLen int
	Stoplist    *Stoplist
}

// NewMatcher compiles a trope's name and aliases. The canonical name is
// always kept; non-canonical aliases pass through the stoplist and minimum
// length filters. Surfaces that fail to compile are skipped.
func NewMatcher(trope catalog.Trope, opts MatcherOptions) *Matcher {
	stoplist := opts.Stoplist
	if stoplist == nil {
		stoplist = NewStoplist("")
	}

	type entry struct {
		alias     string
		canonical bool
	}
	entries := []entry{{NormalizeAlias(trope.Name), true}}
	for _, alias := range trope.Aliases {
		entries = append(entries, entry{NormalizeAlias(alias), false})
	}

	matcher := &Matcher{tropeID: trope.ID}
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.alias == "" {
			continue
		}
		if _, dup := seen[e.alias]; dup {
			continue
		}
		if !e.canonical {
			if len([]rune(e.alias)) < opts.MinAliasLen || stoplist.Blocked(e.alias) {
				continue
			}
		}
		core := buildCore(e.alias)
		if core == "" {
			continue
		}
		re, err := compileCore(core)
		if err != nil {
			continue
		}
		antiRe, err := regexp.Compile(`(?i)(?:anti|non)(?:` + dashClass + `|\s)+` + core)
		if err != nil {
			antiRe = nil
		}
		seen[e.alias] = struct{}{}
		matcher.surfaces = append(matcher.surfaces, surface{
			alias: e.alias, canonical: e.canonical, re: re, antiRe: antiRe,
		})
	}

	for _, phrase := range trope.AntiAliases {
		phrase = strings.TrimSpace(phrase)
		if phrase == "" {
			continue
		}
		re, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(phrase))
		if err != nil {
			continue
		}
		matcher.antiPhrases = append(matcher.antiPhrases, re)
	}

	return matcher
}

// TropeID returns the matcher's trope.
func (m *Matcher) TropeID() string { return m.tropeID }

// Empty reports whether no surface compiled.
func (m *Matcher) Empty() bool { return len(m.surfaces) == 0 }

// Find returns boundary-checked matches of any surface in text, with
// overlapping matches collapsed to the longest span. Offsets are code
// points relative to text.
func (m *Matcher) Find(text string) []Match {
	runes := []rune(text)
	table := byteToCodePoint(text)

	var matches []Match
	for _, s := range m.surfaces {
		matches = append(matches, findBounded(s.re, s.alias, runes, table)...)
	}
	return collapseLongest(matches)
}

// HasMention reports whether any surface of the trope occurs in text. The
// sanity prior applies this read-only.
func (m *Matcher) HasMention(text string) bool {
	runes := []rune(text)
	table := byteToCodePoint(text)
	for _, s := range m.surfaces {
		if len(findBounded(s.re, s.alias, runes, table)) > 0 {
			return true
		}
	}
	return false
}

// HasAntiPhrase reports whether any anti-alias phrase occurs in text.
func (m *Matcher) HasAntiPhrase(text string) bool {
	for _, re := range m.antiPhrases {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Suppressed reports whether a match at [start, end) code points within
// runes should be discarded: an anti-alias phrase, anti-<alias> or
// non-<alias> phrasing, or a bare negation cue in the surrounding window.
func (m *Matcher) Suppressed(runes []rune, start, end, window int) bool {
	if window <= 0 {
		return false
	}
	w0 := start - window
	if w0 < 0 {
		w0 = 0
	}
	w1 := end + window
	if w1 > len(runes) {
		w1 = len(runes)
	}
	windowText := string(runes[w0:w1])

	if m.HasAntiPhrase(windowText) {
		return true
	}
	if antiEdgeNear(windowText) {
		return true
	}
	for _, s := range m.surfaces {
		if s.antiRe != nil && s.antiRe.MatchString(windowText) {
			return true
		}
	}
	return negationBefore(runes, start)
}

// antiEdgeNear reports an "anti-"/"non-" style prefix in the window with
// a non-word rune before it.
func antiEdgeNear(window string) bool {
	runes := []rune(window)
	table := byteToCodePoint(window)
	for _, loc := range antiEdge.FindAllStringIndex(window, -1) {
		start := table[loc[0]]
		if start == 0 || !isWordRune(runes[start-1]) {
			return true
		}
	}
	return false
}

// negationBefore checks the three tokens preceding position start for a
// bare negation cue.
func negationBefore(runes []rune, start int) bool {
	prefix := string(runes[:start])
	fields := strings.Fields(prefix)
	from := len(fields) - 3
	if from < 0 {
		from = 0
	}
	for _, token := range fields[from:] {
		token = strings.ToLower(strings.Trim(token, `,.;:!?"'()[]{}`))
		if _, ok := negationCues[token]; ok {
			return true
		}
	}
	return false
}

// collapseLongest removes matches fully or partially overlapped by a
// longer match of the same trope, keeping the longest span per region.
func collapseLongest(matches []Match) []Match {
	if len(matches) <= 1 {
		return matches
	}
	sort.Slice(matches, func(i, j int) bool {
		li := matches[i].End - matches[i].Start
		lj := matches[j].End - matches[j].Start
		if li != lj {
			return li > lj
		}
		return matches[i].Start < matches[j].Start
	})

	var kept []Match
	for _, candidate := range matches {
		overlapped := false
		for _, winner := range kept {
			if candidate.Start < winner.End && winner.Start < candidate.End {
				overlapped = true
				break
			}
		}
		if !overlapped {
			kept = append(kept, candidate)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })
	return kept
}
