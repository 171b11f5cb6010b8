package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dkoren/research-assistant/internal/core/domain"
	"github.com/dkoren/research-assistant/internal/core/ports"
)

const (
	// synthesisStageTimeout bounds synthesis and verification when the run
	// budget is already spent: the pipeline still owes the caller an answer.
	synthesisStageTimeout = 30 * time.Second

	// verificationBlendWeight is the share of the final confidence taken
	// from the claim-support ratio once verification has run.
	verificationBlendWeight = 0.3
)

// AgenticAnswer drives the corrective retrieval state machine: plan, retrieve,
// grade, assess, then retry with an untried strategy, escalate to the web, or
// proceed to synthesis and claim verification. A run is bounded by the retry
// budget plus at most one escalation and always yields an answer with an
// honest confidence label.
func (s *AnswerService) AgenticAnswer(ctx context.Context, req ports.AskRequest) (*domain.AgenticAnswer, error) {
	query, err := s.buildQuery(req)
	if err != nil {
		return nil, err
	}
	settings := s.settings.ForQuery(query)

	if !settings.AgenticEnabled {
		answer, err := s.Answer(ctx, req)
		if err != nil {
			return nil, err
		}
		return &domain.AgenticAnswer{
			Answer: *answer,
			Assessment: domain.RetrievalAssessment{
				Label:      domain.AssessmentCorrect,
				Confidence: 1.0,
			},
			Attempts: 1,
			RunID:    uuid.NewString(),
		}, nil
	}

	run := &agenticRun{
		svc:       s,
		query:     query,
		settings:  settings,
		runID:     uuid.NewString(),
		started:   time.Now(),
		attempt:   domain.NewAttemptState(),
		threshold: settings.ConfidenceThreshold,
		verdicts:  make(map[string]domain.GradedChunk),
		variants: []domain.QueryVariant{
			{Parent: query.Text, Text: query.Text, Kind: domain.VariantOriginal},
		},
	}
	return run.execute(ctx)
}

// agenticRun owns all mutable state of one pipeline run. Nothing here is
// shared across runs.
type agenticRun struct {
	svc      *AnswerService
	query    domain.Query
	settings domain.PipelineSettings
	runID    string
	started  time.Time

	state     domain.PipelineState
	attempt   *domain.AttemptState
	threshold float64

	variants     []domain.QueryVariant
	verdicts     map[string]domain.GradedChunk
	pendingGrade []domain.CandidateChunk

	planExpansion     bool
	planDecomposition bool

	assessment   domain.RetrievalAssessment
	evidence     []domain.CandidateChunk
	draft        domain.DraftAnswer
	claims       []domain.VerifiedClaim
	supportRatio float64

	retrieveVisits int
	timedOut       bool
}

func (r *agenticRun) execute(ctx context.Context) (*domain.AgenticAnswer, error) {
	runCtx, cancel := context.WithTimeout(ctx, r.settings.RunTimeout)
	defer cancel()

	r.state = domain.StatePlanning
	r.planExpansion = r.settings.ExpansionEnabled

	for r.state != domain.StateDone {
		if err := ctx.Err(); err != nil {
			return nil, domain.WrapError(domain.ErrRunCanceled, "agentic answer", err)
		}
		if runCtx.Err() != nil && !r.timedOut &&
			r.state != domain.StateSynthesizing && r.state != domain.StateVerifying {
			slog.Warn("run_budget_exhausted",
				"run_id", r.runID,
				"state", r.state,
				"attempt", r.attempt.Attempt,
			)
			r.timedOut = true
			r.state = domain.StateSynthesizing
			continue
		}

		r.emitProgress(ctx, r.state)

		switch r.state {
		case domain.StatePlanning:
			r.plan(runCtx)
		case domain.StateRetrieving:
			r.retrieveRound(runCtx)
		case domain.StateGrading:
			r.grade(runCtx)
		case domain.StateAssessing:
			r.assess()
		case domain.StateRetrying:
			r.selectRetryStrategy()
		case domain.StateEscalating:
			r.escalate(runCtx)
		case domain.StateSynthesizing:
			r.synthesize(ctx)
		case domain.StateVerifying:
			r.verify(ctx)
		}
	}
	r.emitProgress(ctx, domain.StateDone)

	result := r.buildResult()
	r.recordRun(ctx, result)
	return result, nil
}

// plan applies whichever transforms the current strategy asked for and moves
// on to retrieval. New variants queue every previously-irrelevant chunk for
// re-grading: evidence a reformulated question might rehabilitate.
func (r *agenticRun) plan(ctx context.Context) {
	changed := false
	if r.planExpansion {
		r.planExpansion = false
		r.attempt.TriedExpansion = true
		added := r.appendVariants(r.svc.planner.Expand(ctx, r.query.Text, r.settings.ExpansionCount))
		changed = changed || added
	}
	if r.planDecomposition {
		r.planDecomposition = false
		r.attempt.TriedDecomposition = true
		added := r.appendVariants(r.svc.planner.Decompose(ctx, r.query.Text, r.settings.DecompositionMax))
		changed = changed || added
	}
	if changed {
		r.queueIrrelevantForRegrade()
	}
	r.state = domain.StateRetrieving
}

func (r *agenticRun) appendVariants(variants []domain.QueryVariant) bool {
	existing := make(map[string]struct{}, len(r.variants))
	for _, v := range r.variants {
		existing[normalizeVariantText(v.Text)] = struct{}{}
	}

	added := false
	for _, v := range variants {
		key := normalizeVariantText(v.Text)
		if _, dup := existing[key]; dup {
			continue
		}
		existing[key] = struct{}{}
		v.Ordinal = len(r.variants)
		r.variants = append(r.variants, v)
		added = true
	}
	return added
}

func (r *agenticRun) queueIrrelevantForRegrade() {
	for _, verdict := range r.verdicts {
		if !verdict.Relevant || verdict.Confidence < r.threshold {
			r.pendingGrade = append(r.pendingGrade, verdict.Chunk)
		}
	}
}

// retrieveRound fans out per variant per source, fuses, optionally reranks,
// and folds results into the accumulated pool. The pool only ever grows.
func (r *agenticRun) retrieveRound(ctx context.Context) {
	r.retrieveVisits++

	semantic, lexical, failures := r.svc.retrieve(ctx, r.variants, r.query.Scope, r.settings)
	if failures > 0 {
		slog.Warn("retrieval_partial_coverage",
			"run_id", r.runID,
			"failed_calls", failures,
			"variants", len(r.variants),
		)
	}

	fused := fuseWeightedRRF(semantic, lexical, r.settings.SemanticWeight, r.settings.LexicalWeight, r.settings.RRFK)
	fused = r.svc.rerankCandidates(ctx, r.query.Text, fused, r.settings.RerankTopN)

	freshIDs := r.attempt.Absorb(fused)
	fresh := make(map[string]struct{}, len(freshIDs))
	for _, id := range freshIDs {
		fresh[id] = struct{}{}
	}
	for _, chunk := range fused {
		if _, ok := fresh[chunk.ID]; ok {
			r.pendingGrade = append(r.pendingGrade, chunk)
		}
	}

	r.state = domain.StateGrading
}

func (r *agenticRun) grade(ctx context.Context) {
	if len(r.pendingGrade) > 0 {
		verdicts := r.svc.grader.Grade(ctx, r.variants, dedupeChunks(r.pendingGrade))
		for id, verdict := range verdicts {
			r.verdicts[id] = betterVerdict(r.verdicts[id], verdict)
		}
		r.pendingGrade = nil
	}
	r.state = domain.StateAssessing
}

// assess maps the grading signals to a label and picks the next transition:
// synthesize on CORRECT, retry while budget and an untried strategy remain,
// escalate to the web at most once, otherwise synthesize with what exists.
func (r *agenticRun) assess() {
	r.assessment = assessRetrieval(r.verdicts, r.threshold, r.settings.MaxSources, r.query.Text)

	slog.Info("retrieval_assessed",
		"run_id", r.runID,
		"attempt", r.attempt.Attempt,
		"label", r.assessment.Label,
		"confidence", r.assessment.Confidence,
		"candidates", len(r.verdicts),
	)

	switch {
	case r.assessment.Label == domain.AssessmentCorrect:
		r.state = domain.StateSynthesizing
	case r.attempt.Attempt < r.settings.MaxRetries && r.hasUntriedStrategy():
		r.state = domain.StateRetrying
	case r.canEscalate():
		r.state = domain.StateEscalating
	default:
		r.state = domain.StateSynthesizing
	}
}

func (r *agenticRun) hasUntriedStrategy() bool {
	if r.settings.ExpansionEnabled && !r.attempt.TriedExpansion {
		return true
	}
	if r.settings.DecompositionEnabled && !r.attempt.TriedDecomposition {
		return true
	}
	return !r.attempt.ThresholdLowered
}

func (r *agenticRun) canEscalate() bool {
	return r.svc.web != nil &&
		r.settings.WebFallbackEnabled &&
		r.query.Scope.AllowsWeb() &&
		!r.attempt.Escalated
}

// selectRetryStrategy consumes one retry and arms the next untried strategy,
// in order: expansion, decomposition, lowered grading threshold. The first
// two need a new planning-and-retrieval round; the last only re-filters
// verdicts already in hand.
func (r *agenticRun) selectRetryStrategy() {
	r.attempt.Attempt++
	switch {
	case r.settings.ExpansionEnabled && !r.attempt.TriedExpansion:
		r.planExpansion = true
		r.state = domain.StatePlanning
	case r.settings.DecompositionEnabled && !r.attempt.TriedDecomposition:
		r.planDecomposition = true
		r.state = domain.StatePlanning
	default:
		r.attempt.ThresholdLowered = true
		r.threshold = r.settings.LoweredThreshold
		r.state = domain.StateAssessing
	}
}

// escalate issues the web fallback query once per run and folds results into
// the pool as web-origin candidates that still have to pass grading. The
// retry budget is not decremented here.
func (r *agenticRun) escalate(ctx context.Context) {
	r.attempt.Escalated = true

	webQuery := r.assessment.FallbackQuery
	if webQuery == "" {
		webQuery = buildFallbackQuery(r.query.Text)
	}

	chunks, err := r.svc.web.Search(ctx, webQuery, r.settings.WebResultLimit)
	if err != nil {
		slog.Warn("web_fallback_degraded", "run_id", r.runID, "error", err)
		r.state = domain.StateSynthesizing
		return
	}

	for i := range chunks {
		chunks[i].Origin = domain.OriginWeb
		if chunks[i].FusedScore == 0 {
			chunks[i].FusedScore = 1.0 / float64(r.settings.RRFK+i+1)
		}
	}

	freshIDs := r.attempt.Absorb(chunks)
	fresh := make(map[string]struct{}, len(freshIDs))
	for _, id := range freshIDs {
		fresh[id] = struct{}{}
	}
	for _, chunk := range chunks {
		if _, ok := fresh[chunk.ID]; ok {
			r.pendingGrade = append(r.pendingGrade, chunk)
		}
	}

	r.state = domain.StateGrading
}

// synthesize runs on the parent context: even a timed-out run owes the caller
// a best-effort answer over whatever evidence accumulated.
func (r *agenticRun) synthesize(ctx context.Context) {
	if r.assessment.Label == "" {
		r.assessment = assessRetrieval(r.verdicts, r.threshold, r.settings.MaxSources, r.query.Text)
	}
	r.evidence = selectContext(r.verdicts, r.threshold, r.settings.MaxSources)

	stageCtx, cancel := context.WithTimeout(ctx, synthesisStageTimeout)
	defer cancel()

	draft, err := r.svc.synthesizer.Synthesize(stageCtx, r.query.Text, r.evidence)
	if err != nil {
		slog.Error("synthesis_degraded", "run_id", r.runID, "error", err)
		draft = fallbackDraft(r.evidence)
	}
	r.draft = draft
	r.state = domain.StateVerifying
}

func (r *agenticRun) verify(ctx context.Context) {
	stageCtx, cancel := context.WithTimeout(ctx, synthesisStageTimeout)
	defer cancel()

	cited := chunksByID(r.evidence, r.draft.Citations)
	r.claims, r.supportRatio = r.svc.verifier.Verify(stageCtx, r.draft, cited, r.settings.StrictVerification)

	if verificationRan(r.claims) {
		blended := (1-verificationBlendWeight)*r.assessment.Confidence +
			verificationBlendWeight*r.supportRatio
		r.assessment.Confidence = blended
		r.assessment.Label = domain.LabelForConfidence(blended)
		switch {
		case r.assessment.Label == domain.AssessmentCorrect:
			r.assessment.FallbackQuery = ""
		case r.assessment.FallbackQuery == "":
			r.assessment.FallbackQuery = buildFallbackQuery(r.query.Text)
		}
	}
	r.state = domain.StateDone
}

func verificationRan(claims []domain.VerifiedClaim) bool {
	for _, claim := range claims {
		if claim.Verdict != domain.ClaimUnverified {
			return true
		}
	}
	return false
}

func fallbackDraft(evidence []domain.CandidateChunk) domain.DraftAnswer {
	if len(evidence) == 0 {
		return domain.DraftAnswer{Text: noEvidenceText, NoEvidence: true}
	}
	citations := make([]string, 0, len(evidence))
	for _, chunk := range evidence {
		citations = append(citations, chunk.ID)
	}
	return domain.DraftAnswer{
		Text:      "The answer generator is currently unavailable. The most relevant passages found for this question are attached as sources.",
		Citations: citations,
	}
}

func (r *agenticRun) buildResult() *domain.AgenticAnswer {
	answer := domain.Answer{
		Text:       r.draft.Text,
		Sources:    r.evidence,
		NoEvidence: r.draft.NoEvidence,
	}
	if r.query.IncludeCitations {
		answer.Citations = r.draft.Citations
	}
	return &domain.AgenticAnswer{
		Answer:       answer,
		Assessment:   r.assessment,
		Claims:       r.claims,
		SupportRatio: r.supportRatio,
		Attempts:     r.attempt.Attempt + 1,
		Escalated:    r.attempt.Escalated,
		RunID:        r.runID,
	}
}

func (r *agenticRun) emitProgress(ctx context.Context, state domain.PipelineState) {
	if r.svc.progress == nil {
		return
	}
	event := domain.ProgressEvent{
		RunID:   r.runID,
		State:   state,
		Detail:  progressDetail(state),
		Attempt: r.attempt.Attempt,
		At:      time.Now().UTC(),
	}
	if err := r.svc.progress.Publish(ctx, event); err != nil {
		slog.Debug("progress_publish_failed", "run_id", r.runID, "state", state, "error", err)
	}
}

func progressDetail(state domain.PipelineState) string {
	switch state {
	case domain.StatePlanning:
		return "expanding search terms"
	case domain.StateRetrieving:
		return "searching the document collection"
	case domain.StateGrading:
		return "evaluating relevance"
	case domain.StateAssessing:
		return "assessing retrieval quality"
	case domain.StateRetrying:
		return "retrying with another strategy"
	case domain.StateEscalating:
		return "searching the web"
	case domain.StateSynthesizing:
		return "composing the answer"
	case domain.StateVerifying:
		return "verifying claims against sources"
	case domain.StateDone:
		return "finished"
	default:
		return ""
	}
}

func (r *agenticRun) recordRun(ctx context.Context, result *domain.AgenticAnswer) {
	if r.svc.runs == nil {
		return
	}

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	record := domain.RunRecord{
		ID:           r.runID,
		Question:     r.query.Text,
		Scope:        r.query.Scope.String(),
		Label:        result.Assessment.Label,
		Confidence:   result.Assessment.Confidence,
		Attempts:     result.Attempts,
		Escalated:    result.Escalated,
		SourceCount:  len(result.Sources),
		SupportRatio: result.SupportRatio,
		NoEvidence:   result.NoEvidence,
		Duration:     time.Since(r.started),
		CreatedAt:    time.Now().UTC(),
	}
	if err := r.svc.runs.RecordRun(recordCtx, record); err != nil {
		slog.Warn("run_record_failed", "run_id", r.runID, "error", err)
	}
}

func dedupeChunks(chunks []domain.CandidateChunk) []domain.CandidateChunk {
	seen := make(map[string]struct{}, len(chunks))
	out := make([]domain.CandidateChunk, 0, len(chunks))
	for _, chunk := range chunks {
		if _, dup := seen[chunk.ID]; dup {
			continue
		}
		seen[chunk.ID] = struct{}{}
		out = append(out, chunk)
	}
	return out
}
