package domain

// DraftAnswer is the synthesizer's output for one pipeline attempt. Citations
// reference chunk IDs from the context the synthesizer was given and nothing
// else.
type DraftAnswer struct {
	Text       string   `json:"text"`
	Citations  []string `json:"citations"`
	NoEvidence bool     `json:"no_evidence,omitempty"`
}

type ClaimVerdict string

const (
	ClaimSupported          ClaimVerdict = "supported"
	ClaimPartiallySupported ClaimVerdict = "partially_supported"
	ClaimUnsupported        ClaimVerdict = "unsupported"
	ClaimUnverified         ClaimVerdict = "unverified"
)

// VerifiedClaim is one atomic factual statement extracted from a draft answer,
// checked against the cited chunks.
type VerifiedClaim struct {
	Text    string       `json:"text"`
	Verdict ClaimVerdict `json:"verdict"`
}

type AssessmentLabel string

const (
	AssessmentCorrect   AssessmentLabel = "CORRECT"
	AssessmentAmbiguous AssessmentLabel = "AMBIGUOUS"
	AssessmentIncorrect AssessmentLabel = "INCORRECT"
)

// RetrievalAssessment is the pipeline's terminal judgment of how much the
// answer can be trusted. FallbackQuery is non-empty whenever the label is not
// CORRECT.
type RetrievalAssessment struct {
	Label         AssessmentLabel `json:"label"`
	Confidence    float64         `json:"confidence"`
	FallbackQuery string          `json:"fallback_query,omitempty"`
}

// LabelForConfidence maps a numeric confidence onto the three-way label.
// Boundaries are inclusive: exactly 0.7 is CORRECT, exactly 0.4 is AMBIGUOUS.
func LabelForConfidence(confidence float64) AssessmentLabel {
	switch {
	case confidence >= 0.7:
		return AssessmentCorrect
	case confidence >= 0.4:
		return AssessmentAmbiguous
	default:
		return AssessmentIncorrect
	}
}

// Answer is the single-pass result shape.
type Answer struct {
	Text       string           `json:"text"`
	Sources    []CandidateChunk `json:"sources"`
	Citations  []string         `json:"citations,omitempty"`
	NoEvidence bool             `json:"no_evidence,omitempty"`
}

// AgenticAnswer is the full-pipeline result: an answer plus an honest
// confidence label, always present regardless of which branch produced it.
type AgenticAnswer struct {
	Answer
	Assessment   RetrievalAssessment `json:"assessment"`
	Claims       []VerifiedClaim     `json:"claims,omitempty"`
	SupportRatio float64             `json:"support_ratio"`
	Attempts     int                 `json:"attempts"`
	Escalated    bool                `json:"escalated"`
	RunID        string              `json:"run_id"`
}

// AttemptState is per-run retry bookkeeping. Candidates accumulate across
// retries and are never discarded; Seen deduplicates by chunk ID.
type AttemptState struct {
	Attempt            int
	Seen               map[string]CandidateChunk
	TriedExpansion     bool
	TriedDecomposition bool
	ThresholdLowered   bool
	Escalated          bool
}

func NewAttemptState() *AttemptState {
	return &AttemptState{Seen: make(map[string]CandidateChunk)}
}

// Absorb merges newly retrieved candidates into the accumulated pool, keeping
// the best raw score per source for chunks seen before. It returns the IDs
// that were not in the pool yet.
func (s *AttemptState) Absorb(chunks []CandidateChunk) []string {
	fresh := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		existing, ok := s.Seen[chunk.ID]
		if !ok {
			s.Seen[chunk.ID] = chunk
			fresh = append(fresh, chunk.ID)
			continue
		}
		if chunk.SemanticScore > existing.SemanticScore {
			existing.SemanticScore = chunk.SemanticScore
		}
		if chunk.LexicalScore > existing.LexicalScore {
			existing.LexicalScore = chunk.LexicalScore
		}
		if chunk.FusedScore > existing.FusedScore {
			existing.FusedScore = chunk.FusedScore
		}
		s.Seen[chunk.ID] = existing
	}
	return fresh
}
