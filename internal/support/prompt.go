package support

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PromptVersion is stamped into run params so reruns can tell prompt
// generations apart.
const PromptVersion = "TROPE-MINER-PROMPT-V2"

const sceneCharMax = 2500

type promptItem struct {
	ID      string  `json:"id"`
	KNN     float64 `json:"knn"`
	Len     int     `json:"len"`
	Snippet string  `json:"snippet"`
}

// rerankResponse is the only accepted reply shape.
type rerankResponse struct {
	Picked []string `json:"picked"`
	Notes  string   `json:"notes"`
}

// buildPrompt renders the rerank request: the scene, then each candidate
// snippet tagged with its id and stage-1 similarity, then the task.
func buildPrompt(sceneText string, items []promptItem, keepM int) (string, error) {
	if keepM > len(items) {
		keepM = len(items)
	}
	encoded, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(PromptVersion + "\n\n")
	b.WriteString("You pick the snippets most directly useful for judging which narrative tropes are present in a scene. ")
	b.WriteString("Prefer snippets with concrete, local evidence such as actions, claims, and dialogue. ")
	b.WriteString("Penalize generic background that does not bear on trope judgments, even when it is long. ")
	b.WriteString("When two snippets are equally relevant, prefer the higher 'knn' score.\n\n")
	fmt.Fprintf(&b, "Scene (trimmed):\n\"\"\"%s\"\"\"\n\n", truncateRunes(sceneText, sceneCharMax))
	b.WriteString("Candidate snippets (id, knn similarity 0..1, len, snippet):\n")
	b.Write(encoded)
	b.WriteString("\n\nTask:\n")
	fmt.Fprintf(&b, "- Choose the %d snippets that are MOST directly useful as evidence.\n", keepM)
	b.WriteString("- Return STRICT JSON ONLY:\n\n")
	b.WriteString("{\n  \"picked\": [\"<chunk_id>\", \"...\"],\n  \"notes\": \"one short reason describing why these were chosen\"\n}\n")
	return b.String(), nil
}

// truncateRunes caps a string at max code points, marking the cut with an
// ellipsis.
func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max < 1 {
		return ""
	}
	return string(runes[:max-1]) + "…"
}
