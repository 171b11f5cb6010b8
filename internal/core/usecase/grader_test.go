package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dkoren/research-assistant/internal/core/domain"
)

func originalVariant(text string) []domain.QueryVariant {
	return []domain.QueryVariant{{Parent: text, Text: text, Kind: domain.VariantOriginal}}
}

func TestGradeParsesVerdicts(t *testing.T) {
	gen := &fakeGenerator{jsonFn: func(prompt string) (string, error) {
		if strings.Contains(prompt, "passage text for rel") {
			return gradingResponse(true, 0.9), nil
		}
		return gradingResponse(false, 0.2), nil
	}}
	grader := NewDocumentGrader(gen, 2, 1000)

	verdicts := grader.Grade(context.Background(), originalVariant("q?"), []domain.CandidateChunk{
		localChunk("rel", 0.9, 0),
		localChunk("irr", 0.8, 0),
	})

	if len(verdicts) != 2 {
		t.Fatalf("expected verdicts for both chunks, got %d", len(verdicts))
	}
	if !verdicts["rel"].Relevant || verdicts["rel"].Confidence != 0.9 {
		t.Fatalf("expected rel graded relevant at 0.9, got %+v", verdicts["rel"])
	}
	if verdicts["irr"].Relevant {
		t.Fatalf("expected irr graded not relevant, got %+v", verdicts["irr"])
	}
}

func TestGradeFailureYieldsZeroVerdictNotError(t *testing.T) {
	gen := &fakeGenerator{jsonFn: func(_ string) (string, error) {
		return "", errors.New("model down")
	}}
	grader := NewDocumentGrader(gen, 2, 1000)

	verdicts := grader.Grade(context.Background(), originalVariant("q?"), []domain.CandidateChunk{
		localChunk("a", 0.9, 0),
	})
	v := verdicts["a"]
	if v.Relevant || v.Confidence != 0 {
		t.Fatalf("expected zero verdict on grading failure, got %+v", v)
	}
	if v.Chunk.ID != "a" {
		t.Fatalf("expected chunk carried through failure, got %+v", v.Chunk)
	}
}

func TestGradeUnparsableOutputYieldsZeroVerdict(t *testing.T) {
	gen := &fakeGenerator{jsonFn: func(_ string) (string, error) {
		return "definitely relevant!", nil
	}}
	grader := NewDocumentGrader(gen, 2, 1000)

	verdicts := grader.Grade(context.Background(), originalVariant("q?"), []domain.CandidateChunk{
		localChunk("a", 0.9, 0),
	})
	if v := verdicts["a"]; v.Relevant || v.Confidence != 0 {
		t.Fatalf("expected zero verdict on unparsable output, got %+v", v)
	}
}

func TestGradeKeepsBestVerdictAcrossVariants(t *testing.T) {
	variants := []domain.QueryVariant{
		{Parent: "q?", Text: "q?", Kind: domain.VariantOriginal},
		{Parent: "q?", Text: "q rephrased", Kind: domain.VariantParaphrase},
	}
	gen := &fakeGenerator{jsonFn: func(prompt string) (string, error) {
		if strings.Contains(prompt, "q rephrased") {
			return gradingResponse(true, 0.8), nil
		}
		return gradingResponse(false, 0.9), nil
	}}
	grader := NewDocumentGrader(gen, 2, 1000)

	verdicts := grader.Grade(context.Background(), variants, []domain.CandidateChunk{
		localChunk("a", 0.9, 0),
	})
	v := verdicts["a"]
	if !v.Relevant || v.Confidence != 0.8 {
		t.Fatalf("expected relevant verdict to win across variants, got %+v", v)
	}
}

func TestGradeClampsConfidence(t *testing.T) {
	gen := &fakeGenerator{jsonFn: func(_ string) (string, error) {
		return gradingResponse(true, 3.5), nil
	}}
	grader := NewDocumentGrader(gen, 2, 1000)

	verdicts := grader.Grade(context.Background(), originalVariant("q?"), []domain.CandidateChunk{
		localChunk("a", 0.9, 0),
	})
	if verdicts["a"].Confidence != 1 {
		t.Fatalf("expected confidence clamped to 1, got %g", verdicts["a"].Confidence)
	}
}

func TestBetterVerdictPrefersRelevantThenConfidence(t *testing.T) {
	chunk := localChunk("a", 0, 0)
	irrelevantHigh := domain.GradedChunk{Chunk: chunk, Relevant: false, Confidence: 0.95}
	relevantLow := domain.GradedChunk{Chunk: chunk, Relevant: true, Confidence: 0.3}
	relevantHigh := domain.GradedChunk{Chunk: chunk, Relevant: true, Confidence: 0.7}

	if got := betterVerdict(irrelevantHigh, relevantLow); !got.Relevant {
		t.Fatalf("expected relevant verdict to beat irrelevant regardless of confidence")
	}
	if got := betterVerdict(relevantLow, relevantHigh); got.Confidence != 0.7 {
		t.Fatalf("expected higher confidence to win, got %g", got.Confidence)
	}
	if got := betterVerdict(domain.GradedChunk{}, relevantLow); got.Chunk.ID != "a" {
		t.Fatalf("expected empty current replaced by candidate, got %+v", got)
	}
}
