package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/dkoren/research-assistant/internal/core/domain"
	"github.com/dkoren/research-assistant/internal/core/ports"
)

// DocumentGrader classifies each candidate chunk as relevant or irrelevant to
// a query variant, with a confidence in [0,1]. Grading runs per chunk per
// variant; the verdict kept for a chunk is the union across variants, so a
// chunk relevant to one sub-question survives failing another's test.
type DocumentGrader struct {
	generator   ports.Generator
	limiter     *rate.Limiter
	concurrency int
}

func NewDocumentGrader(generator ports.Generator, concurrency int, rps float64) *DocumentGrader {
	if concurrency <= 0 {
		concurrency = 4
	}
	if rps <= 0 {
		rps = 8
	}
	return &DocumentGrader{
		generator:   generator,
		limiter:     rate.NewLimiter(rate.Limit(rps), concurrency),
		concurrency: concurrency,
	}
}

type gradeTask struct {
	chunk   domain.CandidateChunk
	variant domain.QueryVariant
	ordinal int
}

// Grade evaluates every chunk against every variant, fanning out up to the
// provider-imposed concurrency limit. A generation failure grades that pair
// as not relevant with zero confidence instead of aborting the round.
func (g *DocumentGrader) Grade(
	ctx context.Context,
	variants []domain.QueryVariant,
	chunks []domain.CandidateChunk,
) map[string]domain.GradedChunk {
	out := make(map[string]domain.GradedChunk, len(chunks))
	if len(chunks) == 0 {
		return out
	}
	if len(variants) == 0 {
		variants = []domain.QueryVariant{{Text: "", Kind: domain.VariantOriginal}}
	}

	tasks := make(chan gradeTask)
	var mu sync.Mutex
	var wg sync.WaitGroup

	workers := g.concurrency
	if workers > len(chunks)*len(variants) {
		workers = len(chunks) * len(variants)
	}
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range tasks {
				verdict := g.gradeOne(ctx, task.variant.Text, task.chunk)
				verdict.Variant = task.ordinal
				mu.Lock()
				out[task.chunk.ID] = betterVerdict(out[task.chunk.ID], verdict)
				mu.Unlock()
			}
		}()
	}

	for _, chunk := range chunks {
		for ordinal, variant := range variants {
			select {
			case tasks <- gradeTask{chunk: chunk, variant: variant, ordinal: ordinal}:
			case <-ctx.Done():
				close(tasks)
				wg.Wait()
				return out
			}
		}
	}
	close(tasks)
	wg.Wait()
	return out
}

func (g *DocumentGrader) gradeOne(ctx context.Context, question string, chunk domain.CandidateChunk) domain.GradedChunk {
	verdict := domain.GradedChunk{Chunk: chunk}

	if err := g.limiter.Wait(ctx); err != nil {
		return verdict
	}

	raw, err := g.generator.GenerateJSON(ctx, buildGradingPrompt(question, chunk))
	if err != nil {
		slog.Warn("grading_degraded", "chunk_id", chunk.ID, "error", err)
		return verdict
	}

	var parsed struct {
		Relevant   bool    `json:"relevant"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		slog.Warn("grading_unparsable", "chunk_id", chunk.ID, "error", err)
		return verdict
	}

	verdict.Relevant = parsed.Relevant
	verdict.Confidence = clamp01(parsed.Confidence)
	return verdict
}

// betterVerdict keeps the union across variants: relevant beats irrelevant,
// and within the same relevance the higher confidence wins.
func betterVerdict(current, candidate domain.GradedChunk) domain.GradedChunk {
	if current.Chunk.ID == "" {
		return candidate
	}
	if candidate.Relevant != current.Relevant {
		if candidate.Relevant {
			return candidate
		}
		return current
	}
	if candidate.Confidence > current.Confidence {
		return candidate
	}
	return current
}

func buildGradingPrompt(question string, chunk domain.CandidateChunk) string {
	return fmt.Sprintf(`You judge whether a retrieved text passage helps answer a question.
Return strict JSON: {"relevant": true|false, "confidence": number from 0 to 1}.
"relevant" means the passage contains information that directly contributes
to answering the question. No markdown, no extra keys.

Question:
%s

Passage (from %s):
%s`, question, chunk.Title, chunk.Text)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
