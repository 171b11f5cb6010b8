package ports

import (
	"context"

	"github.com/dkoren/research-assistant/internal/core/domain"
)

// AskRequest carries the caller-facing query fields. MaxRetries below zero
// means "use the configured default"; zero is an explicit no-retry request.
type AskRequest struct {
	Question         string
	Scope            string
	MaxSources       int
	MinRelevance     float64
	MaxRetries       int
	IncludeCitations bool
}

// QuestionAnswerer is the inbound contract for both entry points.
type QuestionAnswerer interface {
	// Answer runs a single retrieval round with fusion and optional
	// reranking. No grading or verification loop, no assessment guarantees.
	Answer(ctx context.Context, req AskRequest) (*domain.Answer, error)

	// AgenticAnswer runs the full corrective pipeline. When agentic
	// retrieval is administratively disabled it behaves as Answer with a
	// degenerate CORRECT assessment.
	AgenticAnswer(ctx context.Context, req AskRequest) (*domain.AgenticAnswer, error)
}
