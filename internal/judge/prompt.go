package judge

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// PromptVersion is stamped into run params so reruns can tell prompt
// generations apart.
const PromptVersion = "TROPE-MINER-PROMPT-V3"

const sceneCharMax = 2500

// verdict is one item of the model's reply.
type verdict struct {
	TropeID       string  `json:"trope_id"`
	Confidence    float64 `json:"confidence"`
	EvidenceStart int     `json:"evidence_start"`
	EvidenceEnd   int     `json:"evidence_end"`
	Rationale     string  `json:"rationale"`
}

// buildPrompt renders the judgment request: the scene with its absolute
// bounds, the shortlisted trope definitions with their prior weights, the
// picked support snippets, and the reply contract.
func buildPrompt(sceneText string, sceneStart, sceneEnd int, shortlist []scoredTrope, supports []string) string {
	var b strings.Builder
	b.WriteString(PromptVersion + "\n\n")
	b.WriteString("You are a precise trope-mining assistant. Given a scene, candidate trope definitions, and retrieved support snippets, ")
	b.WriteString("decide which tropes are PRESENT in the scene. Be conservative and evidence-based.\n\n")

	fmt.Fprintf(&b, "SCENE (absolute character offsets %d..%d):\n%s\n\n", sceneStart, sceneEnd, truncateRunes(sceneText, sceneCharMax))

	b.WriteString("CANDIDATE TROPES (id :: name — summary):\n")
	ids := make([]string, 0, len(shortlist))
	weights := make(map[string]float64, len(shortlist))
	for _, st := range shortlist {
		fmt.Fprintf(&b, "- %s :: %s — %s\n", st.trope.ID, st.trope.Name, st.trope.Summary)
		ids = append(ids, st.trope.ID)
		weights[st.trope.ID] = st.sanity.Weight
	}
	sort.Strings(ids)
	encodedIDs, _ := json.Marshal(ids)
	encodedWeights, _ := json.Marshal(weights)
	b.WriteString("\nAVAILABLE_TROPE_IDS (use only these in output):\n")
	b.Write(encodedIDs)
	b.WriteString("\n\nPRIOR_WEIGHTS (advisory confidence multipliers already applied downstream):\n")
	b.Write(encodedWeights)

	b.WriteString("\n\nRETRIEVED SUPPORT (snippets):\n")
	if len(supports) == 0 {
		b.WriteString("(none)\n")
	} else {
		b.WriteString(strings.Join(supports, "\n---\n"))
		b.WriteString("\n")
	}

	b.WriteString("\nReturn a JSON array. Each item:\n")
	b.WriteString("{\n")
	b.WriteString("  \"trope_id\": string,\n")
	b.WriteString("  \"confidence\": number,       // 0..1 calibrated\n")
	b.WriteString("  \"evidence_start\": number,   // absolute offset into the work text, inside the scene bounds\n")
	b.WriteString("  \"evidence_end\": number,\n")
	b.WriteString("  \"rationale\": string\n")
	b.WriteString("}\n")
	b.WriteString("Only include tropes you judge present. Do not invent new ids or names.\n")
	return b.String()
}

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
