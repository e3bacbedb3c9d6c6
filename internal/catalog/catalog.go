// Package catalog models the trope catalog: named narrative devices with
// surface aliases and suppressing anti-aliases.
package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"tropeminer/internal/services"
)

// Trope is one catalog entry. Aliases and AntiAliases are ordered sets of
// surface phrases.
type Trope struct {
	ID          string
	Name        string
	Summary     string
	Aliases     []string
	AntiAliases []string
	SourceURL   string
	Group       string
}

// QueryText builds the canonical embedding text for a trope: the name plus
// its summary, falling back to aliases when the summary is empty.
func (t Trope) QueryText() string {
	summary := strings.TrimSpace(t.Summary)
	if summary == "" {
		summary = strings.Join(t.Aliases, ", ")
	}
	if summary == "" {
		return t.Name
	}
	return t.Name + ". " + summary
}

// Surfaces returns the name plus aliases, the full set of phrases the
// gazetteer matches on.
func (t Trope) Surfaces() []string {
	out := make([]string, 0, len(t.Aliases)+1)
	out = append(out, t.Name)
	out = append(out, t.Aliases...)
	return out
}

// DecodeList parses a JSON array column holding surface phrases. Empty and
// NULL columns decode to nil.
func DecodeList(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, services.Wrap(services.ErrIntegrity, "catalog", "decode",
			fmt.Sprintf("invalid alias list %q", raw), err)
	}
	cleaned := out[:0]
	for _, phrase := range out {
		if phrase = strings.TrimSpace(phrase); phrase != "" {
			cleaned = append(cleaned, phrase)
		}
	}
	return cleaned, nil
}

// EncodeList renders surface phrases back to the JSON column form.
func EncodeList(phrases []string) string {
	if len(phrases) == 0 {
		return "[]"
	}
	encoded, err := json.Marshal(phrases)
	if err != nil {
		return "[]"
	}
	return string(encoded)
}

// SHA computes a stable digest over the catalog contents, recorded in run
// params so two runs are comparable only when they judged against the same
// catalog.
func SHA(tropes []Trope) string {
	sorted := make([]Trope, len(tropes))
	copy(sorted, tropes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	hasher := sha256.New()
	for _, trope := range sorted {
		fmt.Fprintf(hasher, "%s\x00%s\x00%s\x00%s\x00%s\n",
			trope.ID, trope.Name, trope.Summary,
			strings.Join(trope.Aliases, "\x01"),
			strings.Join(trope.AntiAliases, "\x01"))
	}
	return hex.EncodeToString(hasher.Sum(nil))
}
