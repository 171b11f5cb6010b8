package rerank

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dkoren/research-assistant/internal/core/domain"
)

type fakeGenerator struct {
	jsonOut string
	jsonErr error
}

func (f *fakeGenerator) GenerateText(context.Context, string) (string, error) {
	return "", nil
}

func (f *fakeGenerator) GenerateJSON(context.Context, string) (string, error) {
	return f.jsonOut, f.jsonErr
}

func chunk(id, text string) domain.CandidateChunk {
	return domain.CandidateChunk{ID: id, Title: "title " + id, Text: text}
}

func TestLLMRerankerReordersByScore(t *testing.T) {
	gen := &fakeGenerator{jsonOut: `{"scores": [0.2, 0.9, 0.5]}`}

	out, err := NewLLMReranker(gen).Rerank(context.Background(), "q", []domain.CandidateChunk{
		chunk("a", "first"), chunk("b", "second"), chunk("c", "third"),
	})
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if out[0].ID != "b" || out[1].ID != "c" || out[2].ID != "a" {
		t.Fatalf("expected score order b,c,a, got %s,%s,%s", out[0].ID, out[1].ID, out[2].ID)
	}
	if !out[0].Reranked || out[0].RerankScore != 0.9 {
		t.Fatalf("expected rerank score recorded, got %+v", out[0])
	}
}

func TestLLMRerankerScoreCountMismatchErrors(t *testing.T) {
	gen := &fakeGenerator{jsonOut: `{"scores": [0.2]}`}

	_, err := NewLLMReranker(gen).Rerank(context.Background(), "q", []domain.CandidateChunk{
		chunk("a", "first"), chunk("b", "second"),
	})
	if err == nil {
		t.Fatalf("expected error on score count mismatch")
	}
}

func TestLLMRerankerSingleCandidatePassthrough(t *testing.T) {
	gen := &fakeGenerator{jsonErr: context.DeadlineExceeded}

	out, err := NewLLMReranker(gen).Rerank(context.Background(), "q", []domain.CandidateChunk{chunk("a", "only")})
	if err != nil {
		t.Fatalf("expected passthrough without generation, got %v", err)
	}
	if len(out) != 1 || out[0].Reranked {
		t.Fatalf("expected untouched single candidate, got %+v", out)
	}
}

func TestServiceRerankerMapsIndices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rerank" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"results":[
			{"index":2,"relevance_score":0.95},
			{"index":0,"relevance_score":0.40}
		]}`))
	}))
	defer server.Close()

	reranker := NewServiceReranker(server.URL, ServiceOptions{})
	out, err := reranker.Rerank(context.Background(), "q", []domain.CandidateChunk{
		chunk("a", "first"), chunk("b", "second"), chunk("c", "third"),
	})
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if out[0].ID != "c" || out[1].ID != "a" {
		t.Fatalf("expected service order c,a, got %s,%s", out[0].ID, out[1].ID)
	}
	if out[2].ID != "b" || out[2].Reranked {
		t.Fatalf("expected unscored candidate appended untouched, got %+v", out[2])
	}
}

func TestServiceRerankerPropagatesHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	reranker := NewServiceReranker(server.URL, ServiceOptions{})
	_, err := reranker.Rerank(context.Background(), "q", []domain.CandidateChunk{
		chunk("a", "first"), chunk("b", "second"),
	})
	if err == nil {
		t.Fatalf("expected error from failing service")
	}
}
