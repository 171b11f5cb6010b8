package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/dkoren/research-assistant/internal/core/domain"
)

func TestSynthesizeEmptyContextShortCircuits(t *testing.T) {
	gen := &fakeGenerator{textErr: errors.New("must not be called")}

	draft, err := NewAnswerSynthesizer(gen).Synthesize(context.Background(), "q?", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !draft.NoEvidence {
		t.Fatalf("expected no-evidence draft for empty context")
	}
	if len(draft.Citations) != 0 {
		t.Fatalf("expected no citations, got %v", draft.Citations)
	}
}

func TestSynthesizeWrapsGenerationError(t *testing.T) {
	gen := &fakeGenerator{textErr: errors.New("ollama timeout")}

	_, err := NewAnswerSynthesizer(gen).Synthesize(context.Background(), "q?", []domain.CandidateChunk{
		localChunk("a", 0.9, 0),
	})
	if !domain.IsKind(err, domain.ErrGeneration) {
		t.Fatalf("expected generation error kind, got %v", err)
	}
}

func TestSynthesizeBlankOutputBecomesNoEvidence(t *testing.T) {
	gen := &fakeGenerator{textOut: "   \n"}

	draft, err := NewAnswerSynthesizer(gen).Synthesize(context.Background(), "q?", []domain.CandidateChunk{
		localChunk("a", 0.9, 0),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !draft.NoEvidence {
		t.Fatalf("expected blank model output treated as no evidence")
	}
}

func TestExtractCitationsMapsMarkersInFirstAppearanceOrder(t *testing.T) {
	evidence := []domain.CandidateChunk{
		localChunk("a", 0, 0),
		localChunk("b", 0, 0),
		localChunk("c", 0, 0),
	}
	text := "Claim one [2]. Claim two [1][2]. Claim three [3]."

	got := extractCitations(text, evidence)
	want := []string{"b", "a", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %d citations, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected citation order %v, got %v", want, got)
		}
	}
}

func TestExtractCitationsIgnoresOutOfRangeMarkers(t *testing.T) {
	evidence := []domain.CandidateChunk{localChunk("a", 0, 0)}

	got := extractCitations("Only [1] is real, not [0] or [7].", evidence)
	if len(got) != 1 || got[0] != "a" {
		t.Fatalf("expected only in-range markers kept, got %v", got)
	}
}

func TestExtractCitationsWithoutMarkersCitesWholeContext(t *testing.T) {
	evidence := []domain.CandidateChunk{
		localChunk("a", 0, 0),
		localChunk("b", 0, 0),
	}

	got := extractCitations("An answer without any markers.", evidence)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("expected whole context cited when markers missing, got %v", got)
	}
}
