// Package textindex provides a read-only, code-point addressed view of a
// work's normalized text with its scene and chunk partitions. Every offset
// in the pipeline is a code point into norm_text; this package owns the
// conversion to bytes and UTF-16 code units so nothing else has to.
package textindex

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"

	"tropeminer/internal/services"
)

// Work is an ingested text. Immutable after ingest; CharCount is the length
// of NormText in code points.
type Work struct {
	ID        string
	Title     string
	Author    string
	NormText  string
	CharCount int
}

// Scene is a contiguous, non-overlapping region of a work, ordered by Idx.
type Scene struct {
	ID        string
	WorkID    string
	Idx       int
	CharStart int
	CharEnd   int
}

// Chunk is a retrieval unit inside one scene. Text must equal the slice of
// norm_text it claims to cover.
type Chunk struct {
	ID        string
	WorkID    string
	SceneID   string
	Idx       int
	CharStart int
	CharEnd   int
	Text      string
	SHA256    string
}

// Index is a code-point view over one work.
type Index struct {
	work   Work
	runes  []rune
	scenes []Scene
	chunks []Chunk
}

// New builds an index for a work. Scenes and chunks are assumed to arrive in
// idx order from the store.
func New(work Work, scenes []Scene, chunks []Chunk) *Index {
	return &Index{
		work:   work,
		runes:  []rune(work.NormText),
		scenes: scenes,
		chunks: chunks,
	}
}

// Work returns the indexed work row.
func (ix *Index) Work() Work { return ix.work }

// CharCount reports the work length in code points.
func (ix *Index) CharCount() int { return len(ix.runes) }

// Slice returns norm_text[start:end) by code points. Inputs are clamped to
// [0, CharCount]; end ≤ start yields the empty string.
func (ix *Index) Slice(start, end int) string {
	start = clamp(start, 0, len(ix.runes))
	end = clamp(end, 0, len(ix.runes))
	if end <= start {
		return ""
	}
	return string(ix.runes[start:end])
}

// Scenes returns the work's scenes in idx order.
func (ix *Index) Scenes() []Scene { return ix.scenes }

// Chunks returns the work's chunks in idx order.
func (ix *Index) Chunks() []Chunk { return ix.chunks }

// SceneChunks returns the chunks belonging to one scene, in idx order.
func (ix *Index) SceneChunks(sceneID string) []Chunk {
	var out []Chunk
	for _, chunk := range ix.chunks {
		if chunk.SceneID == sceneID {
			out = append(out, chunk)
		}
	}
	return out
}

// ChunkByID looks up a chunk.
func (ix *Index) ChunkByID(chunkID string) (Chunk, bool) {
	for _, chunk := range ix.chunks {
		if chunk.ID == chunkID {
			return chunk, true
		}
	}
	return Chunk{}, false
}

// SceneText returns the canonical text of a scene.
func (ix *Index) SceneText(scene Scene) string {
	return ix.Slice(scene.CharStart, scene.CharEnd)
}

// SceneByID looks up a scene.
func (ix *Index) SceneByID(sceneID string) (Scene, bool) {
	for _, scene := range ix.scenes {
		if scene.ID == sceneID {
			return scene, true
		}
	}
	return Scene{}, false
}

// Verify checks that the work's text is NFC-normalized and that every
// chunk's stored text and digest match the region of norm_text it claims.
// A mismatch is a data integrity failure; the pipeline must refuse to
// write findings for the work.
func (ix *Index) Verify() error {
	// Offsets were assigned against NFC text at ingest; a different
	// normalization form would silently shift every span.
	if !norm.NFC.IsNormalString(ix.work.NormText) {
		return services.Wrap(services.ErrIntegrity, "textindex", "verify",
			fmt.Sprintf("work %s norm_text is not NFC-normalized", ix.work.ID), nil)
	}
	for _, chunk := range ix.chunks {
		expected := ix.Slice(chunk.CharStart, chunk.CharEnd)
		if chunk.Text != expected {
			return services.Wrap(services.ErrIntegrity, "textindex", "verify",
				fmt.Sprintf("chunk %s text does not match norm_text[%d:%d]", chunk.ID, chunk.CharStart, chunk.CharEnd), nil)
		}
		digest := sha256.Sum256([]byte(chunk.Text))
		if hex.EncodeToString(digest[:]) != chunk.SHA256 {
			return services.Wrap(services.ErrIntegrity, "textindex", "verify",
				fmt.Sprintf("chunk %s sha256 mismatch", chunk.ID), nil)
		}
	}
	return nil
}

// ToUTF16 converts a code-point offset into a UTF-16 code-unit offset for
// consumers that address text the way JavaScript does.
func (ix *Index) ToUTF16(codePoint int) int {
	codePoint = clamp(codePoint, 0, len(ix.runes))
	units := 0
	for _, r := range ix.runes[:codePoint] {
		units += utf16.RuneLen(r)
	}
	return units
}

// FromUTF16 converts a UTF-16 code-unit offset back to code points. Offsets
// landing inside a surrogate pair round down to the pair's start.
func (ix *Index) FromUTF16(unit int) int {
	if unit <= 0 {
		return 0
	}
	units := 0
	for i, r := range ix.runes {
		width := utf16.RuneLen(r)
		if units+width > unit {
			return i
		}
		units += width
	}
	return len(ix.runes)
}

// ChunkSHA computes the canonical chunk digest for text.
func ChunkSHA(text string) string {
	digest := sha256.Sum256([]byte(text))
	return hex.EncodeToString(digest[:])
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
