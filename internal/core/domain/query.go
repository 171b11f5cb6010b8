package domain

import (
	"fmt"
	"strings"
)

type ScopeKind string

const (
	ScopeAll        ScopeKind = "all"
	ScopePapersOnly ScopeKind = "papers_only"
	ScopeExternal   ScopeKind = "external"
	ScopeCollection ScopeKind = "collection"
)

// Scope restricts which document collections a query may draw evidence from.
type Scope struct {
	Kind       ScopeKind
	Collection string
}

// ParseScope accepts "all", "papers_only", "external" or "collection:<name>".
// An empty string defaults to ScopeAll.
func ParseScope(raw string) (Scope, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	switch raw {
	case "", string(ScopeAll):
		return Scope{Kind: ScopeAll}, nil
	case string(ScopePapersOnly):
		return Scope{Kind: ScopePapersOnly}, nil
	case string(ScopeExternal):
		return Scope{Kind: ScopeExternal}, nil
	}
	if name, ok := strings.CutPrefix(raw, "collection:"); ok {
		name = strings.TrimSpace(name)
		if name == "" {
			return Scope{}, WrapError(ErrInvalidScope, "parse scope", fmt.Errorf("collection name is empty"))
		}
		return Scope{Kind: ScopeCollection, Collection: name}, nil
	}
	return Scope{}, WrapError(ErrInvalidScope, "parse scope", fmt.Errorf("unknown scope %q", raw))
}

// Validate checks a collection scope against the set of known collections.
// A scope naming a nonexistent collection is an unrecoverable configuration
// error, surfaced to the caller instead of producing a low-confidence answer.
func (s Scope) Validate(knownCollections []string) error {
	if s.Kind != ScopeCollection {
		return nil
	}
	for _, name := range knownCollections {
		if strings.EqualFold(name, s.Collection) {
			return nil
		}
	}
	return WrapError(ErrInvalidScope, "validate scope", fmt.Errorf("collection %q does not exist", s.Collection))
}

// IncludesLocal reports whether the local lexical/semantic indexes may serve
// this scope. The "external" scope draws evidence from the web only.
func (s Scope) IncludesLocal() bool {
	return s.Kind != ScopeExternal
}

// AllowsWeb reports whether web results may enter this scope's candidate pool.
func (s Scope) AllowsWeb() bool {
	return s.Kind == ScopeAll || s.Kind == ScopeExternal
}

func (s Scope) String() string {
	if s.Kind == ScopeCollection {
		return "collection:" + s.Collection
	}
	return string(s.Kind)
}

// Query is the immutable input to one pipeline run.
type Query struct {
	Text             string
	Scope            Scope
	MaxSources       int
	MinRelevance     float64
	MaxRetries       int
	IncludeCitations bool
}

type VariantKind string

const (
	VariantOriginal    VariantKind = "original"
	VariantParaphrase  VariantKind = "paraphrase"
	VariantSubQuestion VariantKind = "sub_question"
)

// QueryVariant is one expanded paraphrase or decomposed sub-question. Variants
// are ephemeral, created and consumed within a single pipeline run.
type QueryVariant struct {
	Parent  string
	Text    string
	Ordinal int
	Kind    VariantKind
}
