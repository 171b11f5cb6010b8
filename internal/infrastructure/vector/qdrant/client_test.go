package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dkoren/research-assistant/internal/core/domain"
)

type fixedEmbedder struct {
	vector []float32
}

func (f *fixedEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return f.vector, nil
}

func TestSemanticSearchBuildsNamedVectorRequest(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/chunks/points/search" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"result":[
			{"id":"p1","score":0.92,"payload":{"chunk_id":"c1","doc_id":"d1","title":"Attention","collection":"papers","text":"body"}}
		]}`))
	}))
	defer server.Close()

	search := NewSemanticSearch(New(server.URL, "chunks"), &fixedEmbedder{vector: []float32{0.1, 0.2}})
	chunks, err := search.Search(context.Background(), "how does attention work", domain.Scope{Kind: domain.ScopeAll}, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	vector, _ := captured["vector"].(map[string]any)
	if vector["name"] != "dense" {
		t.Fatalf("expected dense named vector, got %v", vector["name"])
	}
	if _, filtered := captured["filter"]; filtered {
		t.Fatalf("expected no filter for all scope")
	}

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	got := chunks[0]
	if got.ID != "c1" || got.Title != "Attention" || got.Collection != "papers" {
		t.Fatalf("unexpected chunk %+v", got)
	}
	if got.SemanticScore != 0.92 {
		t.Fatalf("expected semantic score carried, got %g", got.SemanticScore)
	}
	if got.Origin != domain.OriginLocal {
		t.Fatalf("expected local origin, got %s", got.Origin)
	}
}

func TestScopeFilterByCollection(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"result":[]}`))
	}))
	defer server.Close()

	search := NewLexicalSearch(New(server.URL, "chunks"))
	_, err := search.Search(context.Background(), "attention", domain.Scope{Kind: domain.ScopeCollection, Collection: "notes"}, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	filter, _ := captured["filter"].(map[string]any)
	if filter == nil {
		t.Fatalf("expected payload filter for collection scope")
	}
	must, _ := filter["must"].([]any)
	if len(must) != 1 {
		t.Fatalf("expected single must clause, got %v", filter)
	}
	clause, _ := must[0].(map[string]any)
	match, _ := clause["match"].(map[string]any)
	if match["value"] != "notes" {
		t.Fatalf("expected collection filter on notes, got %v", match)
	}
}

func TestLexicalSearchEmptyQueryShortCircuits(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	search := NewLexicalSearch(New(server.URL, "chunks"))
	chunks, err := search.Search(context.Background(), "!!!", domain.Scope{Kind: domain.ScopeAll}, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(chunks) != 0 || called {
		t.Fatalf("expected no request for a query with no indexable terms")
	}
}

func TestSearchErrorIsSourceUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "shard down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	search := NewSemanticSearch(New(server.URL, "chunks"), &fixedEmbedder{vector: []float32{0.1}})
	_, err := search.Search(context.Background(), "q", domain.Scope{Kind: domain.ScopeAll}, 10)
	if !domain.IsKind(err, domain.ErrSourceUnavailable) {
		t.Fatalf("expected source unavailable error, got %v", err)
	}
}

func TestEncodeSparseQuerySaturatesTermFrequency(t *testing.T) {
	single := encodeSparseQuery("attention")
	repeated := encodeSparseQuery("attention attention attention")

	if len(single.Indices) != 1 || len(repeated.Indices) != 1 {
		t.Fatalf("expected one hashed term, got %d and %d", len(single.Indices), len(repeated.Indices))
	}
	if single.Indices[0] != repeated.Indices[0] {
		t.Fatalf("expected stable hashing for the same term")
	}
	if repeated.Values[0] <= single.Values[0] {
		t.Fatalf("expected repeated term to weigh more, got %g vs %g", repeated.Values[0], single.Values[0])
	}
	if repeated.Values[0] >= queryBM25K+1.0 {
		t.Fatalf("expected BM25 saturation below k+1, got %g", repeated.Values[0])
	}
}
