package ports

import (
	"context"

	"github.com/dkoren/research-assistant/internal/core/domain"
)

// SemanticIndex wraps the vector-similarity service: embed the query text and
// return scored chunks. A scope that excludes every local source yields an
// empty list, not an error.
type SemanticIndex interface {
	Search(ctx context.Context, queryText string, scope domain.Scope, limit int) ([]domain.CandidateChunk, error)
}

// LexicalIndex wraps the term-frequency search service.
type LexicalIndex interface {
	Search(ctx context.Context, queryText string, scope domain.Scope, limit int) ([]domain.CandidateChunk, error)
}

// Generator is the language-generation collaborator shared by the planner,
// grader, synthesizer and verifier, each with its own prompt contract.
type Generator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

// Embedder builds vectors for query text.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Reranker re-orders fused candidates by estimated relevance to the exact
// query. Callers fall back to fused order on error.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []domain.CandidateChunk) ([]domain.CandidateChunk, error)
}

// WebSearcher is the external-collaborator boundary used by the web fallback
// dispatcher.
type WebSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]domain.CandidateChunk, error)
}

// ProgressSink receives per-state-transition notifications.
type ProgressSink interface {
	Publish(ctx context.Context, event domain.ProgressEvent) error
}

// RunRecorder persists the per-run audit record.
type RunRecorder interface {
	RecordRun(ctx context.Context, record domain.RunRecord) error
}
