package domain

import "time"

// PipelineState names one stage of the corrective retrieval state machine.
type PipelineState string

const (
	StatePlanning     PipelineState = "planning"
	StateRetrieving   PipelineState = "retrieving"
	StateGrading      PipelineState = "grading"
	StateAssessing    PipelineState = "assessing"
	StateRetrying     PipelineState = "retrying"
	StateEscalating   PipelineState = "escalating"
	StateSynthesizing PipelineState = "synthesizing"
	StateVerifying    PipelineState = "verifying"
	StateDone         PipelineState = "done"
)

// ProgressEvent is a per-state-transition notification for UI consumption.
// Events are fire-and-forget; the pipeline never waits on acknowledgement.
type ProgressEvent struct {
	RunID   string        `json:"run_id"`
	State   PipelineState `json:"state"`
	Detail  string        `json:"detail,omitempty"`
	Attempt int           `json:"attempt"`
	At      time.Time     `json:"at"`
}

// RunRecord is the per-run audit row persisted after a pipeline run finishes.
type RunRecord struct {
	ID           string
	Question     string
	Scope        string
	Label        AssessmentLabel
	Confidence   float64
	Attempts     int
	Escalated    bool
	SourceCount  int
	SupportRatio float64
	NoEvidence   bool
	Duration     time.Duration
	CreatedAt    time.Time
}
