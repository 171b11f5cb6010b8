package domain

import "time"

// PipelineSettings is the immutable configuration snapshot handed to a
// pipeline run at start. Components never read live settings mid-run, so a
// run's behavior is reproducible for a given snapshot.
type PipelineSettings struct {
	MaxSources     int
	CandidateLimit int

	ConfidenceThreshold float64
	LoweredThreshold    float64

	MaxRetries int
	RunTimeout time.Duration

	RRFK           int
	SemanticWeight float64
	LexicalWeight  float64

	ExpansionEnabled     bool
	ExpansionCount       int
	DecompositionEnabled bool
	DecompositionMax     int

	RerankTopN int

	StrictVerification bool

	WebFallbackEnabled bool
	WebResultLimit     int

	AgenticEnabled bool

	GraderConcurrency int
	GraderRPS         float64

	KnownCollections []string
}

func DefaultPipelineSettings() PipelineSettings {
	return PipelineSettings{
		MaxSources:     5,
		CandidateLimit: 30,

		ConfidenceThreshold: 0.5,
		LoweredThreshold:    0.3,

		MaxRetries: 2,
		RunTimeout: 90 * time.Second,

		RRFK:           60,
		SemanticWeight: 0.7,
		LexicalWeight:  0.3,

		ExpansionEnabled:     true,
		ExpansionCount:       3,
		DecompositionEnabled: true,
		DecompositionMax:     4,

		RerankTopN: 20,

		WebFallbackEnabled: true,
		WebResultLimit:     5,

		AgenticEnabled: true,

		GraderConcurrency: 4,
		GraderRPS:         8,
	}
}

// Normalize fills zero or out-of-range values with defaults.
func (s PipelineSettings) Normalize() PipelineSettings {
	def := DefaultPipelineSettings()
	out := s

	if out.MaxSources <= 0 {
		out.MaxSources = def.MaxSources
	}
	if out.CandidateLimit <= 0 {
		out.CandidateLimit = def.CandidateLimit
	}
	if out.ConfidenceThreshold <= 0 || out.ConfidenceThreshold > 1 {
		out.ConfidenceThreshold = def.ConfidenceThreshold
	}
	if out.LoweredThreshold <= 0 || out.LoweredThreshold >= out.ConfidenceThreshold {
		out.LoweredThreshold = out.ConfidenceThreshold * 0.6
	}
	if out.MaxRetries < 0 {
		out.MaxRetries = def.MaxRetries
	}
	if out.RunTimeout <= 0 {
		out.RunTimeout = def.RunTimeout
	}
	if out.RRFK <= 0 {
		out.RRFK = def.RRFK
	}
	if out.SemanticWeight <= 0 && out.LexicalWeight <= 0 {
		out.SemanticWeight = def.SemanticWeight
		out.LexicalWeight = def.LexicalWeight
	}
	if out.ExpansionCount <= 0 {
		out.ExpansionCount = def.ExpansionCount
	}
	if out.DecompositionMax <= 0 {
		out.DecompositionMax = def.DecompositionMax
	}
	if out.RerankTopN <= 0 {
		out.RerankTopN = def.RerankTopN
	}
	if out.WebResultLimit <= 0 {
		out.WebResultLimit = def.WebResultLimit
	}
	if out.GraderConcurrency <= 0 {
		out.GraderConcurrency = def.GraderConcurrency
	}
	if out.GraderRPS <= 0 {
		out.GraderRPS = def.GraderRPS
	}
	return out
}

// ForQuery overlays per-query knobs onto the snapshot.
func (s PipelineSettings) ForQuery(q Query) PipelineSettings {
	out := s
	if q.MaxSources > 0 {
		out.MaxSources = q.MaxSources
	}
	if q.MinRelevance > 0 && q.MinRelevance <= 1 {
		out.ConfidenceThreshold = q.MinRelevance
		out.LoweredThreshold = q.MinRelevance * 0.6
	}
	if q.MaxRetries >= 0 {
		out.MaxRetries = q.MaxRetries
	}
	return out
}
