package textindex

import (
	"strings"
	"testing"
)

func newTestIndex(text string) *Index {
	work := Work{ID: "w-1", Title: "Test", NormText: text, CharCount: len([]rune(text))}
	scene := Scene{ID: "s-1", WorkID: "w-1", Idx: 0, CharStart: 0, CharEnd: len([]rune(text))}
	chunk := Chunk{
		ID: "c-1", WorkID: "w-1", SceneID: "s-1", Idx: 0,
		CharStart: 0, CharEnd: len([]rune(text)),
		Text: text, SHA256: ChunkSHA(text),
	}
	return New(work, []Scene{scene}, []Chunk{chunk})
}

func TestSliceUsesCodePoints(t *testing.T) {
	// Multibyte characters; byte slicing would mangle these.
	ix := newTestIndex("людина ☃ снігу")

	if got := ix.Slice(0, 6); got != "людина" {
		t.Fatalf("Slice(0,6) = %q", got)
	}
	if got := ix.Slice(7, 8); got != "☃" {
		t.Fatalf("Slice(7,8) = %q", got)
	}
}

func TestSliceClampsAndRejectsInvertedRanges(t *testing.T) {
	ix := newTestIndex("short text")

	if got := ix.Slice(-5, 5); got != "short" {
		t.Fatalf("negative start not clamped: %q", got)
	}
	if got := ix.Slice(6, 999); got != "text" {
		t.Fatalf("oversize end not clamped: %q", got)
	}
	if got := ix.Slice(5, 5); got != "" {
		t.Fatalf("end == start must be empty, got %q", got)
	}
	if got := ix.Slice(8, 2); got != "" {
		t.Fatalf("end < start must be empty, got %q", got)
	}
}

func TestVerifyAcceptsConsistentChunks(t *testing.T) {
	ix := newTestIndex("It was a dark and stormy night.")
	if err := ix.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyRejectsTextMismatch(t *testing.T) {
	text := "It was a dark and stormy night."
	ix := newTestIndex(text)
	ix.chunks[0].Text = strings.ToUpper(text)

	if err := ix.Verify(); err == nil {
		t.Fatal("expected integrity error for mismatched chunk text")
	}
}

func TestVerifyRejectsNonNFCText(t *testing.T) {
	// "é" as 'e' + combining acute: NFD, not NFC.
	ix := newTestIndex("café scene")

	if err := ix.Verify(); err == nil {
		t.Fatal("expected integrity error for non-NFC text")
	}
}

func TestVerifyRejectsBadDigest(t *testing.T) {
	ix := newTestIndex("some scene text here")
	ix.chunks[0].SHA256 = strings.Repeat("0", 64)

	if err := ix.Verify(); err == nil {
		t.Fatal("expected integrity error for bad digest")
	}
}

func TestUTF16RoundTrip(t *testing.T) {
	// "𝄞" is outside the BMP and occupies two UTF-16 units.
	ix := newTestIndex("a𝄞b")

	if got := ix.ToUTF16(1); got != 1 {
		t.Fatalf("ToUTF16(1) = %d", got)
	}
	if got := ix.ToUTF16(2); got != 3 {
		t.Fatalf("ToUTF16(2) = %d", got)
	}
	if got := ix.FromUTF16(3); got != 2 {
		t.Fatalf("FromUTF16(3) = %d", got)
	}
	// Landing inside the surrogate pair rounds down.
	if got := ix.FromUTF16(2); got != 1 {
		t.Fatalf("FromUTF16(2) = %d", got)
	}
}

func TestSceneChunksFiltersByScene(t *testing.T) {
	text := "First scene. Second scene."
	work := Work{ID: "w-1", NormText: text, CharCount: len([]rune(text))}
	scenes := []Scene{
		{ID: "s-1", WorkID: "w-1", Idx: 0, CharStart: 0, CharEnd: 13},
		{ID: "s-2", WorkID: "w-1", Idx: 1, CharStart: 13, CharEnd: 26},
	}
	chunks := []Chunk{
		{ID: "c-1", SceneID: "s-1", CharStart: 0, CharEnd: 13, Text: text[:13], SHA256: ChunkSHA(text[:13])},
		{ID: "c-2", SceneID: "s-2", CharStart: 13, CharEnd: 26, Text: text[13:], SHA256: ChunkSHA(text[13:])},
	}
	ix := New(work, scenes, chunks)

	got := ix.SceneChunks("s-2")
	if len(got) != 1 || got[0].ID != "c-2" {
		t.Fatalf("SceneChunks(s-2) = %v", got)
	}
}
