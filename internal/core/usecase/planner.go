package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dkoren/research-assistant/internal/core/domain"
	"github.com/dkoren/research-assistant/internal/core/ports"
)

// QueryPlanner widens retrieval coverage through two independent transforms:
// expansion rewrites the query into paraphrases to counter vocabulary
// mismatch, decomposition splits a compound question into atomic
// sub-questions. Both run through the language-generation collaborator; the
// planner itself is stateless and only enforces prompting discipline.
type QueryPlanner struct {
	generator ports.Generator
}

func NewQueryPlanner(generator ports.Generator) *QueryPlanner {
	return &QueryPlanner{generator: generator}
}

// Expand produces up to count paraphrases of the question. Degenerate model
// output (empty, duplicate, or echoing the original) is dropped, and a
// generation failure yields no variants rather than an error: the pipeline
// continues with the original query alone.
func (p *QueryPlanner) Expand(ctx context.Context, question string, count int) []domain.QueryVariant {
	if count <= 0 {
		return nil
	}

	raw, err := p.generator.GenerateJSON(ctx, buildExpansionPrompt(question, count))
	if err != nil {
		slog.Warn("query_expansion_degraded", "error", err)
		return nil
	}

	var parsed struct {
		Paraphrases []string `json:"paraphrases"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		slog.Warn("query_expansion_unparsable", "error", err)
		return nil
	}

	return buildVariants(question, parsed.Paraphrases, count, domain.VariantParaphrase)
}

// Decompose splits a compound question into an ordered list of atomic
// sub-questions. Single-hop questions legitimately decompose to nothing.
func (p *QueryPlanner) Decompose(ctx context.Context, question string, limit int) []domain.QueryVariant {
	if limit <= 0 {
		return nil
	}

	raw, err := p.generator.GenerateJSON(ctx, buildDecompositionPrompt(question, limit))
	if err != nil {
		slog.Warn("query_decomposition_degraded", "error", err)
		return nil
	}

	var parsed struct {
		SubQuestions []string `json:"sub_questions"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		slog.Warn("query_decomposition_unparsable", "error", err)
		return nil
	}

	return buildVariants(question, parsed.SubQuestions, limit, domain.VariantSubQuestion)
}

func buildVariants(parent string, texts []string, limit int, kind domain.VariantKind) []domain.QueryVariant {
	seen := map[string]struct{}{normalizeVariantText(parent): {}}
	out := make([]domain.QueryVariant, 0, limit)
	for _, text := range texts {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		key := normalizeVariantText(text)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, domain.QueryVariant{
			Parent: parent,
			Text:   text,
			Kind:   kind,
		})
		if len(out) == limit {
			break
		}
	}
	return out
}

func buildExpansionPrompt(question string, count int) string {
	return fmt.Sprintf(`You rewrite search queries for a document retrieval system.
Produce %d paraphrases of the question below. Preserve the intent but vary
the vocabulary: use synonyms and alternative phrasings a document author
might have used. Return strict JSON: {"paraphrases": ["...", "..."]}.
No markdown, no extra keys.

Question:
%s`, count, question)
}

func buildDecompositionPrompt(question string, limit int) string {
	return fmt.Sprintf(`You decompose compound questions for a document retrieval system.
If the question below asks several things at once or requires multi-hop
reasoning, split it into at most %d atomic sub-questions, ordered so that
their answers compose into the final answer. If it is already atomic,
return an empty list. Return strict JSON: {"sub_questions": ["...", "..."]}.
No markdown, no extra keys.

Question:
%s`, limit, question)
}
