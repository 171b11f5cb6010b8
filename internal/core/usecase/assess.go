package usecase

import (
	"sort"
	"strings"

	"github.com/dkoren/research-assistant/internal/core/domain"
)

// Weights of the retrieval-quality signals: fraction of candidates graded
// relevant, mean grading confidence of the relevant set, and how far the
// relevant set goes toward filling max_sources.
const (
	assessWeightRelevantFraction = 0.45
	assessWeightMeanConfidence   = 0.35
	assessWeightCoverage         = 0.20
)

// assessRetrieval aggregates grading signals into the three-way retrieval
// quality label. An empty grading pool (including the case where grading was
// never retried because planning is disabled) maps to INCORRECT rather than a
// synthetic middle confidence.
func assessRetrieval(
	verdicts map[string]domain.GradedChunk,
	threshold float64,
	maxSources int,
	question string,
) domain.RetrievalAssessment {
	if maxSources <= 0 {
		maxSources = 1
	}

	relevant := relevantVerdicts(verdicts, threshold)
	confidence := 0.0
	if len(verdicts) > 0 && len(relevant) > 0 {
		fraction := float64(len(relevant)) / float64(len(verdicts))

		sum := 0.0
		for _, v := range relevant {
			sum += v.Confidence
		}
		mean := sum / float64(len(relevant))

		coverage := float64(len(relevant)) / float64(maxSources)
		if coverage > 1 {
			coverage = 1
		}

		confidence = assessWeightRelevantFraction*fraction +
			assessWeightMeanConfidence*mean +
			assessWeightCoverage*coverage
	}

	assessment := domain.RetrievalAssessment{
		Label:      domain.LabelForConfidence(confidence),
		Confidence: confidence,
	}
	if assessment.Label != domain.AssessmentCorrect {
		assessment.FallbackQuery = buildFallbackQuery(question)
	}
	return assessment
}

// relevantVerdicts returns the verdicts whose chunks proceed to synthesis:
// graded relevant with confidence at or above the threshold.
func relevantVerdicts(verdicts map[string]domain.GradedChunk, threshold float64) []domain.GradedChunk {
	out := make([]domain.GradedChunk, 0, len(verdicts))
	for _, v := range verdicts {
		if v.Relevant && v.Confidence >= threshold {
			out = append(out, v)
		}
	}
	return out
}

// selectContext orders the relevant verdicts by ranking score and truncates
// to maxSources. This is exactly the set the synthesizer may cite from.
func selectContext(verdicts map[string]domain.GradedChunk, threshold float64, maxSources int) []domain.CandidateChunk {
	relevant := relevantVerdicts(verdicts, threshold)
	sort.SliceStable(relevant, func(i, j int) bool {
		si, sj := relevant[i].Chunk.RankingScore(), relevant[j].Chunk.RankingScore()
		if si != sj {
			return si > sj
		}
		return relevant[i].Chunk.ID < relevant[j].Chunk.ID
	})

	out := make([]domain.CandidateChunk, 0, len(relevant))
	for _, v := range relevant {
		out = append(out, v.Chunk)
		if len(out) == maxSources {
			break
		}
	}
	return out
}

// buildFallbackQuery keyword-ifies the question for an external search: the
// local indexes lacked coverage, so the suggested query strips question
// boilerplate down to content terms. Falls back to the raw question when
// nothing survives the filter.
func buildFallbackQuery(question string) string {
	tokens := contentTokens(question)
	if len(tokens) == 0 {
		return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(question), "?"))
	}
	return strings.Join(tokens, " ")
}
