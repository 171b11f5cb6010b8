package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/dkoren/research-assistant/internal/core/domain"
	"github.com/dkoren/research-assistant/internal/core/ports"
)

// LLMReranker scores the fused head with a single listwise generation call.
// One call for the whole head keeps latency flat in the candidate count,
// at the cost of trusting the model to score every entry.
type LLMReranker struct {
	generator ports.Generator
}

func NewLLMReranker(generator ports.Generator) *LLMReranker {
	return &LLMReranker{generator: generator}
}

func (r *LLMReranker) Rerank(ctx context.Context, query string, candidates []domain.CandidateChunk) ([]domain.CandidateChunk, error) {
	if len(candidates) < 2 {
		return candidates, nil
	}

	raw, err := r.generator.GenerateJSON(ctx, buildRerankPrompt(query, candidates))
	if err != nil {
		return nil, fmt.Errorf("rerank generation: %w", err)
	}

	var parsed struct {
		Scores []float64 `json:"scores"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("parse rerank scores: %w", err)
	}
	if len(parsed.Scores) != len(candidates) {
		return nil, fmt.Errorf("rerank returned %d scores for %d candidates", len(parsed.Scores), len(candidates))
	}

	out := make([]domain.CandidateChunk, len(candidates))
	copy(out, candidates)
	for i := range out {
		out[i].RerankScore = parsed.Scores[i]
		out[i].Reranked = true
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RerankScore != out[j].RerankScore {
			return out[i].RerankScore > out[j].RerankScore
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func buildRerankPrompt(query string, candidates []domain.CandidateChunk) string {
	var b strings.Builder
	for idx, chunk := range candidates {
		fmt.Fprintf(&b, "[%d] %s\n%s\n\n", idx+1, chunk.Title, chunk.Text)
	}

	return fmt.Sprintf(`You score how well each numbered passage answers a search query.
Return strict JSON: {"scores": [n, n, ...]} with one number from 0 to 1 per
passage, in passage order. No markdown, no extra keys.

Query:
%s

Passages:
%s`, query, b.String())
}
