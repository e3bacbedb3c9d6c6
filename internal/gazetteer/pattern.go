// Package gazetteer matches trope surfaces (names and aliases) against
// chunk text with word-boundary edges, dash/apostrophe tolerance, and
// optional plurals, and suppresses matches near anti-alias phrasing.
package gazetteer

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// dashClass matches an ASCII hyphen or any Unicode hyphen/dash in the
// U+2010..U+2015 range, so "Face-Heel", "Face–Heel", and "Face—Heel" are
// the same surface.
const dashClass = `[-\x{2010}-\x{2015}]`

// apostropheClass accepts both ASCII and curly apostrophes.
const apostropheClass = `['\x{2019}]`

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	asciiWord     = regexp.MustCompile(`^[A-Za-z]+$`)

	// antiEdge detects "anti-"/"non-" style prefixes (dash or space
	// separated) near a match.
	antiEdge = regexp.MustCompile(`(?i)(?:anti|non)(?:` + dashClass + `|\s)+`)
)

// NormalizeAlias lowercases, collapses internal whitespace, and trims
// punctuation from the edges of a surface phrase.
func NormalizeAlias(alias string) string {
	alias = strings.ToLower(strings.TrimSpace(alias))
	alias = whitespaceRun.ReplaceAllString(alias, " ")
	return strings.Trim(alias, `,.;:!?"'()[]{}`)
}

// buildCore translates a normalized alias into a regular expression body:
// flexible whitespace between words, dash/space equivalence, apostrophe
// variants, and an optional plural on the final alphabetic word unless the
// surface already ends in "s". Word-boundary edges are enforced separately
// by rune inspection because RE2 has no lookarounds.
func buildCore(alias string) string {
	parts := strings.Fields(alias)
	if len(parts) == 0 {
		return ""
	}

	escaped := make([]string, len(parts))
	for i, part := range parts {
		escaped[i] = escapeToken(part)
	}

	pluralize := asciiWord.MatchString(parts[len(parts)-1]) &&
		!strings.HasSuffix(parts[len(parts)-1], "s")
	if pluralize {
		escaped[len(escaped)-1] = "(?:" + escaped[len(escaped)-1] + "(?:s|es)?)"
	}

	if len(escaped) == 1 {
		return escaped[0]
	}
	joiner := `(?:` + dashClass + `+\s*|\s+)`
	return strings.Join(escaped, joiner)
}

// escapeToken quotes a word for regexp use and widens its dashes and
// apostrophes to their equivalence classes.
func escapeToken(token string) string {
	var builder strings.Builder
	for _, r := range token {
		switch {
		case r == '-' || (r >= '‐' && r <= '―'):
			// Dash and space are the same separator: "face-heel" must
			// match "face heel".
			builder.WriteString(`(?:` + dashClass + `|\s)+`)
		case r == '\'' || r == '’':
			builder.WriteString(apostropheClass)
		default:
			builder.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	return builder.String()
}

func compileCore(core string) (*regexp.Regexp, error) {
	return regexp.Compile(`(?i)` + core)
}

// isWordRune mirrors regexp's \w class: letters, digits, underscore.
func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Match is one boundary-checked surface occurrence. Offsets are code points
// relative to the scanned text.
type Match struct {
	Alias string
	Start int
	End   int
}

// findBounded runs re over text and keeps only matches whose neighboring
// runes are non-word, emulating the (?<!\w)…(?!\w) edges.
func findBounded(re *regexp.Regexp, alias string, runes []rune, byteToCP []int) []Match {
	text := string(runes)
	var out []Match
	for _, loc := range re.FindAllStringIndex(text, -1) {
		start := byteToCP[loc[0]]
		end := byteToCP[loc[1]]
		if start > 0 && isWordRune(runes[start-1]) {
			continue
		}
		if end < len(runes) && isWordRune(runes[end]) {
			continue
		}
		out = append(out, Match{Alias: alias, Start: start, End: end})
	}
	return out
}

// byteToCodePoint builds a byte-offset to code-point-offset table for text.
// Index b holds the number of code points preceding byte b; the table has
// len(text)+1 entries so end offsets resolve too.
func byteToCodePoint(text string) []int {
	table := make([]int, len(text)+1)
	cp := 0
	byteIdx := 0
	for _, r := range text {
		width := utf8.RuneLen(r)
		for j := 0; j < width; j++ {
			table[byteIdx+j] = cp
		}
		byteIdx += width
		cp++
	}
	table[len(text)] = cp
	return table
}
