package gazetteer

import (
	"testing"

	"tropeminer/internal/catalog"
)

func stormyTrope() catalog.Trope {
	return catalog.Trope{
		ID:      "t-1",
		Name:    "Dark And Stormy Night",
		Aliases: []string{"dark and stormy"},
	}
}

func newTestMatcher(trope catalog.Trope) *Matcher {
	return NewMatcher(trope, MatcherOptions{MinAliasLen: 5, Stoplist: NewStoplist("")})
}

func TestFindLiteralPhrase(t *testing.T) {
	matcher := newTestMatcher(stormyTrope())
	text := "It was a dark and stormy night."

	matches := matcher.Find(text)
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %v", matches)
	}
	// Longest-span collapse keeps the full name over the shorter alias.
	if matches[0].Start != 9 || matches[0].End != 30 {
		t.Fatalf("unexpected span [%d,%d)", matches[0].Start, matches[0].End)
	}
}

func TestFindReportsCodePointOffsets(t *testing.T) {
	matcher := newTestMatcher(stormyTrope())
	// Multibyte prefix shifts byte offsets but not code points.
	text := "«Ніч» — it was a dark and stormy night."

	matches := matcher.Find(text)
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %v", matches)
	}
	runes := []rune(text)
	if got := string(runes[matches[0].Start:matches[0].End]); got != "dark and stormy night" {
		t.Fatalf("span covers %q", got)
	}
}

func TestFindRespectsWordBoundaries(t *testing.T) {
	matcher := newTestMatcher(catalog.Trope{ID: "t-2", Name: "Whodunit"})

	if got := matcher.Find("a classic whodunit plot"); len(got) != 1 {
		t.Fatalf("expected standalone match, got %v", got)
	}
	if got := matcher.Find("the notawhodunit genre"); len(got) != 0 {
		t.Fatalf("expected no embedded match, got %v", got)
	}
	// Optional plural still matches.
	if got := matcher.Find("she loved whodunits"); len(got) != 1 {
		t.Fatalf("expected plural match, got %v", got)
	}
}

func TestFindTreatsDashesAsEquivalent(t *testing.T) {
	matcher := newTestMatcher(catalog.Trope{ID: "t-3", Name: "Face-Heel Turn"})

	for _, text := range []string{
		"a sudden face-heel turn",
		"a sudden face–heel turn",
		"a sudden face heel turn",
	} {
		if got := matcher.Find(text); len(got) != 1 {
			t.Fatalf("expected match in %q, got %v", text, got)
		}
	}
}

func TestFindTreatsApostrophesAsEquivalent(t *testing.T) {
	matcher := newTestMatcher(catalog.Trope{ID: "t-4", Name: "Chekhov's Gun"})

	for _, text := range []string{
		"the chekhov's gun on the mantel",
		"the chekhov’s gun on the mantel",
	} {
		if got := matcher.Find(text); len(got) != 1 {
			t.Fatalf("expected match in %q, got %v", text, got)
		}
	}
}

func TestStoplistDropsGenericAliasesButKeepsCanonicalName(t *testing.T) {
	trope := catalog.Trope{ID: "t-5", Name: "Hero", Aliases: []string{"villain", "chosen one"}}
	matcher := newTestMatcher(trope)

	// "Hero" is canonical, kept despite being stoplisted; "villain" is not.
	if got := matcher.Find("the hero arrives"); len(got) != 1 {
		t.Fatalf("canonical name must match, got %v", got)
	}
	if got := matcher.Find("the villain arrives"); len(got) != 0 {
		t.Fatalf("stoplisted alias must not match, got %v", got)
	}
	if got := matcher.Find("the chosen one arrives"); len(got) != 1 {
		t.Fatalf("non-stoplisted alias must match, got %v", got)
	}
}

func TestMinAliasLenFiltersShortAliases(t *testing.T) {
	trope := catalog.Trope{ID: "t-6", Name: "MacGuffin", Aliases: []string{"box"}}
	matcher := newTestMatcher(trope)

	if got := matcher.Find("the box glowed"); len(got) != 0 {
		t.Fatalf("short alias must be dropped, got %v", got)
	}
}

func TestSuppressedByNegationCue(t *testing.T) {
	matcher := newTestMatcher(stormyTrope())
	text := "This isn't a dark and stormy night."
	runes := []rune(text)

	matches := matcher.Find(text)
	if len(matches) != 1 {
		t.Fatalf("expected raw match, got %v", matches)
	}
	if !matcher.Suppressed(runes, matches[0].Start, matches[0].End, 60) {
		t.Fatal("expected negation cue to suppress the match")
	}
}

func TestSuppressedByAntiPrefix(t *testing.T) {
	matcher := newTestMatcher(catalog.Trope{ID: "t-7", Name: "Whodunit"})
	text := "the story is an anti-whodunit at heart"
	runes := []rune(text)

	// The dash before the surface is a non-word rune, so the raw match
	// survives the boundary check and suppression must catch it.
	matches := matcher.Find(text)
	if len(matches) != 1 {
		t.Fatalf("expected raw match, got %v", matches)
	}
	if !matcher.Suppressed(runes, matches[0].Start, matches[0].End, 60) {
		t.Fatal("expected anti- prefix to suppress the match")
	}
}

func TestSuppressedByNonPrefix(t *testing.T) {
	matcher := newTestMatcher(catalog.Trope{ID: "t-7", Name: "Whodunit"})
	text := "The story reads as a non-whodunit from the first page."
	runes := []rune(text)

	matches := matcher.Find(text)
	if len(matches) != 1 {
		t.Fatalf("expected raw match, got %v", matches)
	}
	if !matcher.Suppressed(runes, matches[0].Start, matches[0].End, 60) {
		t.Fatal("expected non- prefix to suppress the match")
	}
	if matcher.Suppressed(runes, matches[0].Start, matches[0].End, 0) {
		t.Fatal("zero window must not suppress")
	}
}

func TestSuppressedByAntiAliasPhrase(t *testing.T) {
	trope := catalog.Trope{
		ID:          "t-8",
		Name:        "Dream Sequence",
		AntiAliases: []string{"dream-like prose"},
	}
	matcher := newTestMatcher(trope)

	if !matcher.HasAntiPhrase("her dream-like prose carried the chapter") {
		t.Fatal("expected anti-alias phrase detection")
	}
}

func TestNotSuppressedWithoutCues(t *testing.T) {
	matcher := newTestMatcher(stormyTrope())
	text := "It was a dark and stormy night."
	runes := []rune(text)

	matches := matcher.Find(text)
	if matcher.Suppressed(runes, matches[0].Start, matches[0].End, 60) {
		t.Fatal("clean match must not be suppressed")
	}
}

func TestNormalizeAlias(t *testing.T) {
	cases := map[string]string{
		"  Dark   And Stormy  ": "dark and stormy",
		`"Whodunit?"`:           "whodunit",
		"UPPER case":            "upper case",
	}
	for input, want := range cases {
		if got := NormalizeAlias(input); got != want {
			t.Fatalf("NormalizeAlias(%q) = %q, want %q", input, got, want)
		}
	}
}
