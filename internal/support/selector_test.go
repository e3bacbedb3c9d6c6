package support

import (
	"context"
	"errors"
	"strings"
	"testing"

	"tropeminer/internal/logging"
	"tropeminer/internal/services/chroma"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	return []float64{1, 0}, nil
}

type stubRetriever struct {
	hits []chroma.Hit
	err  error
}

func (s *stubRetriever) Query(ctx context.Context, workID string, embedding []float64, topK int) ([]chroma.Hit, error) {
	return s.hits, s.err
}

type stubCompleter struct {
	response string
	err      error
	prompt   string
}

func (s *stubCompleter) CompleteJSON(ctx context.Context, prompt string) (string, error) {
	s.prompt = prompt
	return s.response, s.err
}

func fourHits() []chroma.Hit {
	return []chroma.Hit{
		{ID: "c-1", Similarity: 0.91, Document: "The butler wiped the knife clean."},
		{ID: "c-2", Similarity: 0.84, Document: "Rain fell on the moor for hours."},
		{ID: "c-3", Similarity: 0.77, Document: "\"I never trusted him,\" she said."},
		{ID: "c-4", Similarity: 0.60, Document: "A general description of the manor."},
	}
}

func newTestSelector(retriever Retriever, completer Completer) *Selector {
	return NewSelector(stubEmbedder{}, retriever, completer, Options{TopK: 4, KeepM: 2, DocCharMax: 480}, logging.NewNop())
}

func TestSelectHonorsRerankOrder(t *testing.T) {
	completer := &stubCompleter{response: `{"picked": ["c-3", "c-1"], "notes": "direct evidence"}`}
	sel, err := newTestSelector(&stubRetriever{hits: fourHits()}, completer).Select(context.Background(), "w-1", "s-1", "scene text")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got := strings.Join(sel.PickedIDs, ","); got != "c-3,c-1" {
		t.Fatalf("picked = %s", got)
	}
	if sel.Notes != "direct evidence" {
		t.Fatalf("notes = %q", sel.Notes)
	}
	if len(sel.Supports) != 4 {
		t.Fatalf("expected all retrieved rows persisted, got %d", len(sel.Supports))
	}
	for _, row := range sel.Supports {
		switch row.ChunkID {
		case "c-3":
			if !row.Picked || row.Rank != 1 || row.Stage2Score != 1 {
				t.Fatalf("c-3 row = %+v", row)
			}
		case "c-1":
			if !row.Picked || row.Rank != 2 || row.Stage2Score != 0.5 {
				t.Fatalf("c-1 row = %+v", row)
			}
		default:
			if row.Picked || row.Rank != 0 || row.Stage2Score != 0 {
				t.Fatalf("unpicked row = %+v", row)
			}
		}
		if row.Stage1Score <= 0 || row.Stage1Score > 1 {
			t.Fatalf("stage1 score out of range: %+v", row)
		}
	}
	if sel.PickedTexts[0] != "\"I never trusted him,\" she said." {
		t.Fatalf("picked texts out of order: %v", sel.PickedTexts)
	}
	if !strings.HasPrefix(completer.prompt, PromptVersion) {
		t.Fatalf("prompt must lead with its version header")
	}
}

func TestSelectFallsBackOnMalformedJSON(t *testing.T) {
	completer := &stubCompleter{response: "I think c-3 is best."}
	sel, err := newTestSelector(&stubRetriever{hits: fourHits()}, completer).Select(context.Background(), "w-1", "s-1", "scene text")
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(sel.PickedIDs, ","); got != "c-1,c-2" {
		t.Fatalf("fallback must keep nearest neighbors, got %s", got)
	}
	if sel.Notes != "fallback=knn" {
		t.Fatalf("notes = %q", sel.Notes)
	}
}

func TestSelectFallsBackOnCompleterError(t *testing.T) {
	completer := &stubCompleter{err: errors.New("reasoner down")}
	sel, err := newTestSelector(&stubRetriever{hits: fourHits()}, completer).Select(context.Background(), "w-1", "s-1", "scene text")
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(sel.PickedIDs, ","); got != "c-1,c-2" {
		t.Fatalf("fallback must keep nearest neighbors, got %s", got)
	}
}

func TestSelectDropsUnknownAndDuplicatePicks(t *testing.T) {
	completer := &stubCompleter{response: `{"picked": ["c-9", "c-2", "c-2", "c-4"], "notes": "n"}`}
	sel, err := newTestSelector(&stubRetriever{hits: fourHits()}, completer).Select(context.Background(), "w-1", "s-1", "scene text")
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(sel.PickedIDs, ","); got != "c-2,c-4" {
		t.Fatalf("picked = %s", got)
	}
}

func TestSelectRetrievalErrorPropagates(t *testing.T) {
	retriever := &stubRetriever{err: errors.New("chroma down")}
	if _, err := newTestSelector(retriever, &stubCompleter{}).Select(context.Background(), "w-1", "s-1", "scene text"); err == nil {
		t.Fatal("expected retrieval error")
	}
}

func TestSelectEmptyRetrieval(t *testing.T) {
	sel, err := newTestSelector(&stubRetriever{}, &stubCompleter{}).Select(context.Background(), "w-1", "s-1", "scene text")
	if err != nil {
		t.Fatal(err)
	}
	if len(sel.Supports) != 0 || len(sel.PickedIDs) != 0 {
		t.Fatalf("expected empty selection, got %+v", sel)
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("héllo", 10); got != "héllo" {
		t.Fatalf("short string changed: %q", got)
	}
	got := truncateRunes("одиндватри", 5)
	if runes := []rune(got); len(runes) != 5 || runes[4] != '…' {
		t.Fatalf("truncation wrong: %q", got)
	}
}
