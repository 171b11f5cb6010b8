package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dkoren/research-assistant/internal/core/domain"
	"github.com/dkoren/research-assistant/internal/core/ports"
)

// AnswerService answers natural-language questions against the document
// collection. It implements both entry points: the single-pass Answer and the
// corrective AgenticAnswer pipeline.
type AnswerService struct {
	semantic  ports.SemanticIndex
	lexical   ports.LexicalIndex
	generator ports.Generator
	reranker  ports.Reranker
	web       ports.WebSearcher
	progress  ports.ProgressSink
	runs      ports.RunRecorder

	planner     *QueryPlanner
	grader      *DocumentGrader
	synthesizer *AnswerSynthesizer
	verifier    *HallucinationVerifier

	settings domain.PipelineSettings
}

// AnswerServiceOptions carries the optional collaborators. A nil reranker
// keeps fused order, a nil web searcher disables escalation, nil progress and
// run sinks disable those side channels.
type AnswerServiceOptions struct {
	Reranker    ports.Reranker
	WebSearch   ports.WebSearcher
	Progress    ports.ProgressSink
	RunRecorder ports.RunRecorder
}

func NewAnswerService(
	semantic ports.SemanticIndex,
	lexical ports.LexicalIndex,
	generator ports.Generator,
	settings domain.PipelineSettings,
	options AnswerServiceOptions,
) *AnswerService {
	settings = settings.Normalize()
	return &AnswerService{
		semantic:  semantic,
		lexical:   lexical,
		generator: generator,
		reranker:  options.Reranker,
		web:       options.WebSearch,
		progress:  options.Progress,
		runs:      options.RunRecorder,

		planner:     NewQueryPlanner(generator),
		grader:      NewDocumentGrader(generator, settings.GraderConcurrency, settings.GraderRPS),
		synthesizer: NewAnswerSynthesizer(generator),
		verifier:    NewHallucinationVerifier(generator),

		settings: settings,
	}
}

// Answer runs one retrieval round with fusion and optional reranking, then
// synthesizes directly. No grading, no verification, no assessment.
func (s *AnswerService) Answer(ctx context.Context, req ports.AskRequest) (*domain.Answer, error) {
	query, err := s.buildQuery(req)
	if err != nil {
		return nil, err
	}
	settings := s.settings.ForQuery(query)

	variants := []domain.QueryVariant{{Parent: query.Text, Text: query.Text, Kind: domain.VariantOriginal}}
	semantic, lexical, _ := s.retrieve(ctx, variants, query.Scope, settings)

	fused := fuseWeightedRRF(semantic, lexical, settings.SemanticWeight, settings.LexicalWeight, settings.RRFK)
	fused = s.rerankCandidates(ctx, query.Text, fused, settings.RerankTopN)
	top := trimCandidates(fused, settings.MaxSources)

	draft, err := s.synthesizer.Synthesize(ctx, query.Text, top)
	if err != nil {
		return nil, err
	}

	answer := &domain.Answer{
		Text:       draft.Text,
		Sources:    top,
		NoEvidence: draft.NoEvidence,
	}
	if query.IncludeCitations {
		answer.Citations = draft.Citations
	}
	return answer, nil
}

func (s *AnswerService) buildQuery(req ports.AskRequest) (domain.Query, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return domain.Query{}, domain.WrapError(domain.ErrInvalidInput, "build query", fmt.Errorf("question is required"))
	}

	scope, err := domain.ParseScope(req.Scope)
	if err != nil {
		return domain.Query{}, err
	}
	if err := scope.Validate(s.settings.KnownCollections); err != nil {
		return domain.Query{}, err
	}

	return domain.Query{
		Text:             question,
		Scope:            scope,
		MaxSources:       req.MaxSources,
		MinRelevance:     req.MinRelevance,
		MaxRetries:       req.MaxRetries,
		IncludeCitations: req.IncludeCitations,
	}, nil
}

// retrieve fans out one search per variant per source and joins before
// fusion. A failing source contributes zero results for that call; partial
// coverage is acceptable and only logged.
func (s *AnswerService) retrieve(
	ctx context.Context,
	variants []domain.QueryVariant,
	scope domain.Scope,
	settings domain.PipelineSettings,
) (semantic, lexical [][]domain.CandidateChunk, failures int) {
	semantic = make([][]domain.CandidateChunk, len(variants))
	lexical = make([][]domain.CandidateChunk, len(variants))
	if !scope.IncludesLocal() {
		return semantic, lexical, 0
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for i, variant := range variants {
		wg.Add(2)
		go func(i int, text string) {
			defer wg.Done()
			chunks, err := s.semantic.Search(ctx, text, scope, settings.CandidateLimit)
			if err != nil {
				slog.Warn("semantic_source_degraded", "variant", i, "error", err)
				mu.Lock()
				failures++
				mu.Unlock()
				return
			}
			semantic[i] = chunks
		}(i, variant.Text)
		go func(i int, text string) {
			defer wg.Done()
			chunks, err := s.lexical.Search(ctx, text, scope, settings.CandidateLimit)
			if err != nil {
				slog.Warn("lexical_source_degraded", "variant", i, "error", err)
				mu.Lock()
				failures++
				mu.Unlock()
				return
			}
			lexical[i] = chunks
		}(i, variant.Text)
	}
	wg.Wait()
	return semantic, lexical, failures
}

// rerankCandidates re-orders the fused head through the configured reranker.
// Absent or failing rerankers leave fused order untouched, so downstream
// stages never depend on reranked scores being present.
func (s *AnswerService) rerankCandidates(
	ctx context.Context,
	question string,
	fused []domain.CandidateChunk,
	topN int,
) []domain.CandidateChunk {
	if s.reranker == nil || len(fused) == 0 {
		return fused
	}
	if topN <= 0 || topN > len(fused) {
		topN = len(fused)
	}

	head := make([]domain.CandidateChunk, topN)
	copy(head, fused[:topN])

	reranked, err := s.reranker.Rerank(ctx, question, head)
	if err != nil {
		slog.Warn("rerank_degraded", "error", err)
		return fused
	}
	if len(reranked) != topN {
		slog.Warn("rerank_dropped_candidates", "want", topN, "got", len(reranked))
		return fused
	}

	if topN == len(fused) {
		return reranked
	}
	out := make([]domain.CandidateChunk, 0, len(fused))
	out = append(out, reranked...)
	out = append(out, fused[topN:]...)
	return out
}

func chunksByID(pool []domain.CandidateChunk, ids []string) []domain.CandidateChunk {
	byID := make(map[string]domain.CandidateChunk, len(pool))
	for _, chunk := range pool {
		byID[chunk.ID] = chunk
	}
	out := make([]domain.CandidateChunk, 0, len(ids))
	for _, id := range ids {
		if chunk, ok := byID[id]; ok {
			out = append(out, chunk)
		}
	}
	return out
}
