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

// Support floors for the lexical entailment check. Strict mode demands that a
// claim's content tokens all appear inside a single cited chunk; lenient mode
// accepts claims whose tokens are covered by the union of cited chunks, which
// admits inferences that combine facts stated across passages.
const (
	strictPartialFloor  = 0.6
	lenientSupportFloor = 0.75
	lenientPartialFloor = 0.4
)

// HallucinationVerifier decomposes a draft answer into atomic claims via the
// language model and checks each claim deterministically against the full
// text of the cited chunks. Verification failure never fails the answer; it
// only lowers the support ratio the confidence assessor sees.
type HallucinationVerifier struct {
	generator ports.Generator
}

func NewHallucinationVerifier(generator ports.Generator) *HallucinationVerifier {
	return &HallucinationVerifier{generator: generator}
}

// Verify returns per-claim verdicts plus the claim-level support ratio, where
// supported counts 1, partially supported 0.5, and everything else 0.
func (v *HallucinationVerifier) Verify(
	ctx context.Context,
	draft domain.DraftAnswer,
	cited []domain.CandidateChunk,
	strict bool,
) ([]domain.VerifiedClaim, float64) {
	if draft.NoEvidence || strings.TrimSpace(draft.Text) == "" {
		return nil, 0
	}

	claims, decomposed := v.decomposeClaims(ctx, draft.Text)
	if len(claims) == 0 {
		return nil, 0
	}

	perChunk := make([]map[string]struct{}, 0, len(cited))
	union := make(map[string]struct{})
	for _, chunk := range cited {
		tokens := toTokenSet(chunk.Text)
		perChunk = append(perChunk, tokens)
		for token := range tokens {
			union[token] = struct{}{}
		}
	}

	out := make([]domain.VerifiedClaim, 0, len(claims))
	score := 0.0
	for _, claim := range claims {
		verdict := domain.ClaimUnverified
		if decomposed {
			verdict = claimVerdict(claim, perChunk, union, strict)
		}
		out = append(out, domain.VerifiedClaim{Text: claim, Verdict: verdict})
		switch verdict {
		case domain.ClaimSupported:
			score++
		case domain.ClaimPartiallySupported:
			score += 0.5
		}
	}
	return out, score / float64(len(claims))
}

// decomposeClaims asks the language model for atomic claims; when it cannot
// be reached the draft is split into sentences and every claim is reported
// unverified rather than failing the whole answer.
func (v *HallucinationVerifier) decomposeClaims(ctx context.Context, text string) ([]string, bool) {
	raw, err := v.generator.GenerateJSON(ctx, buildClaimDecompositionPrompt(text))
	if err != nil {
		slog.Warn("claim_decomposition_degraded", "error", err)
		return splitSentences(text), false
	}

	var parsed struct {
		Claims []string `json:"claims"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		slog.Warn("claim_decomposition_unparsable", "error", err)
		return splitSentences(text), false
	}

	claims := make([]string, 0, len(parsed.Claims))
	for _, claim := range parsed.Claims {
		if claim = strings.TrimSpace(claim); claim != "" {
			claims = append(claims, claim)
		}
	}
	if len(claims) == 0 {
		return splitSentences(text), false
	}
	return claims, true
}

func claimVerdict(claim string, perChunk []map[string]struct{}, union map[string]struct{}, strict bool) domain.ClaimVerdict {
	tokens := contentTokens(claim)
	if len(tokens) == 0 {
		return domain.ClaimUnverified
	}

	if strict {
		best := 0.0
		for _, chunkTokens := range perChunk {
			if coverage := tokenCoverage(tokens, chunkTokens); coverage > best {
				best = coverage
			}
		}
		switch {
		case best >= 1:
			return domain.ClaimSupported
		case best >= strictPartialFloor:
			return domain.ClaimPartiallySupported
		default:
			return domain.ClaimUnsupported
		}
	}

	coverage := tokenCoverage(tokens, union)
	switch {
	case coverage >= lenientSupportFloor:
		return domain.ClaimSupported
	case coverage >= lenientPartialFloor:
		return domain.ClaimPartiallySupported
	default:
		return domain.ClaimUnsupported
	}
}

func buildClaimDecompositionPrompt(text string) string {
	return fmt.Sprintf(`You split an answer into its atomic factual claims.
Each claim must be a single self-contained factual statement from the text,
with pronouns resolved. Ignore citation markers like [1]. Return strict
JSON: {"claims": ["...", "..."]}. No markdown, no extra keys.

Answer:
%s`, text)
}
