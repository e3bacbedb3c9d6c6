package gazetteer

import "strings"

// defaultStoplist holds overly-generic aliases that produced noise.
// Canonical trope names are always kept even when they appear here; the
// stoplist applies to non-canonical aliases only.
var defaultStoplist = map[string]struct{}{
	"hero": {}, "villain": {}, "power": {}, "fight": {}, "battle": {},
	"magic": {}, "love": {}, "war": {}, "secret": {}, "plan": {},
	"agent": {}, "mystery": {}, "weapon": {}, "girl": {}, "boy": {},
	"night": {}, "day": {}, "city": {}, "king": {}, "queen": {},
	"man": {}, "woman": {}, "monster": {}, "beast": {}, "darkness": {},
	"light": {}, "death": {}, "life": {}, "friend": {}, "enemy": {},
	"revenge": {}, "curse": {},

	"buddy": {}, "backup": {}, "job": {}, "serious": {}, "calm": {},
	"opposite": {}, "haunted": {}, "first glance": {},
}

// Stoplist filters non-canonical aliases.
type Stoplist struct {
	words map[string]struct{}
}

// NewStoplist builds the default stoplist plus extra comma-separated
// phrases from configuration.
func NewStoplist(extra string) *Stoplist {
	words := make(map[string]struct{}, len(defaultStoplist)+8)
	for word := range defaultStoplist {
		words[word] = struct{}{}
	}
	for _, phrase := range strings.Split(extra, ",") {
		if phrase = NormalizeAlias(phrase); phrase != "" {
			words[phrase] = struct{}{}
		}
	}
	return &Stoplist{words: words}
}

// Blocked reports whether a normalized alias should be dropped.
func (s *Stoplist) Blocked(alias string) bool {
	_, ok := s.words[alias]
	return ok
}
