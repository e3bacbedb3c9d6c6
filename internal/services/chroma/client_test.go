package chroma

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"tropeminer/internal/config"
	"tropeminer/internal/logging"
)

func testClient(server *httptest.Server) *Client {
	cfg := config.Default().Chroma
	cfg.BaseURL = server.URL
	return New(cfg, logging.NewNop())
}

func TestEnsureCollectionCachesID(t *testing.T) {
	var creates atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/api/v1/collections" {
			creates.Add(1)
			var req collectionRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Error(err)
			}
			if !req.GetOrCreate {
				t.Error("expected get_or_create=true")
			}
			if req.Metadata["hnsw:space"] != "cosine" {
				t.Errorf("expected cosine space, got %v", req.Metadata)
			}
			json.NewEncoder(w).Encode(collectionResponse{ID: "col-1", Name: req.Name})
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := testClient(server)
	for i := 0; i < 3; i++ {
		id, err := client.EnsureCollection(context.Background(), "chunks")
		if err != nil {
			t.Fatalf("EnsureCollection: %v", err)
		}
		if id != "col-1" {
			t.Fatalf("unexpected id %q", id)
		}
	}
	if creates.Load() != 1 {
		t.Fatalf("expected 1 create call, got %d", creates.Load())
	}
}

func TestQueryConvertsDistancesToSimilarity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/v1/collections/chunks":
			json.NewEncoder(w).Encode(collectionResponse{ID: "col-1", Name: "chunks"})
		case r.URL.Path == "/api/v1/collections/col-1/query":
			var req queryRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Error(err)
			}
			if req.NResults != 2 {
				t.Errorf("expected n_results=2, got %d", req.NResults)
			}
			if req.Where["work_id"] != "w-1" {
				t.Errorf("expected work filter, got %v", req.Where)
			}
			json.NewEncoder(w).Encode(queryResponse{
				IDs:       [][]string{{"c-1", "c-2"}},
				Distances: [][]float64{{0.1, 0.4}},
				Documents: [][]string{{"first chunk", "second chunk"}},
				Metadatas: [][]map[string]any{{{"scene_id": "s-1"}, {"scene_id": "s-2"}}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	hits, err := testClient(server).Query(context.Background(), "chunks", []float64{1, 0}, 2, map[string]any{"work_id": "w-1"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Similarity < 0.89 || hits[0].Similarity > 0.91 {
		t.Fatalf("expected similarity 0.9, got %g", hits[0].Similarity)
	}
	if hits[1].Metadata["scene_id"] != "s-2" {
		t.Fatalf("unexpected metadata %v", hits[1].Metadata)
	}
}

func TestChunkIndexFallsBackToSharedCollection(t *testing.T) {
	var sharedQueried atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/collections/chunks__w-1":
			http.NotFound(w, r)
		case "/api/v1/collections/chunks":
			json.NewEncoder(w).Encode(collectionResponse{ID: "shared", Name: "chunks"})
		case "/api/v1/collections/shared/query":
			var req queryRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Error(err)
			}
			if req.Where["work_id"] != "w-1" {
				t.Errorf("fallback query must filter by work, got %v", req.Where)
			}
			sharedQueried.Store(true)
			json.NewEncoder(w).Encode(queryResponse{IDs: [][]string{{"c-1"}}, Distances: [][]float64{{0.2}}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	index := NewChunkIndex(testClient(server), "chunks", true)
	hits, err := index.Query(context.Background(), "w-1", []float64{1}, 4)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !sharedQueried.Load() {
		t.Fatal("expected fallback to shared collection")
	}
	if len(hits) != 1 || hits[0].ID != "c-1" {
		t.Fatalf("unexpected hits %v", hits)
	}
}

func TestUpsertValidatesRecords(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(collectionResponse{ID: "col-1", Name: "chunks"})
	}))
	defer server.Close()

	err := testClient(server).Upsert(context.Background(), "chunks", []Record{{ID: "", Embedding: []float64{1}}})
	if err == nil {
		t.Fatal("expected validation error for record without id")
	}
}
