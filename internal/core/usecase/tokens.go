package usecase

import (
	"strings"
	"unicode"
)

var stopTokens = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "did": {}, "do": {}, "does": {}, "for": {}, "from": {}, "how": {},
	"in": {}, "is": {}, "it": {}, "of": {}, "on": {}, "or": {}, "that": {},
	"the": {}, "this": {}, "to": {}, "was": {}, "were": {}, "what": {},
	"when": {}, "where": {}, "which": {}, "who": {}, "why": {}, "with": {},
}

func toTokenSet(s string) map[string]struct{} {
	tokens := splitAlphaNumLower(s)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

// contentTokens returns the lowercase alphanumeric tokens of s minus common
// function words, preserving first-occurrence order.
func contentTokens(s string) []string {
	tokens := splitAlphaNumLower(s)
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, stop := stopTokens[token]; stop {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
	}
	return out
}

// tokenCoverage reports the fraction of claim tokens present in the evidence
// token set.
func tokenCoverage(claim []string, evidence map[string]struct{}) float64 {
	if len(claim) == 0 || len(evidence) == 0 {
		return 0
	}
	matches := 0
	for _, token := range claim {
		if _, ok := evidence[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(claim))
}

func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}

// splitSentences is the fallback claim decomposition when the language model
// cannot be reached: naive split on terminal punctuation.
func splitSentences(text string) []string {
	out := make([]string, 0, 8)
	var b strings.Builder
	for _, r := range text {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(b.String()); s != "" {
				out = append(out, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		out = append(out, s)
	}
	return out
}

func normalizeVariantText(s string) string {
	return strings.Join(splitAlphaNumLower(s), " ")
}
