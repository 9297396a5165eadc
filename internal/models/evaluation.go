package models

// ResponseQuality is the per-step judgement of how well a response reads.
type ResponseQuality string

const (
	QualityGood       ResponseQuality = "good"
	QualityAcceptable ResponseQuality = "acceptable"
	QualityPoor       ResponseQuality = "poor"
)

// ValidationDetail lists which declared behaviors a response satisfied.
type ValidationDetail struct {
	Matched    []string `json:"matched"`
	Unmatched  []string `json:"unmatched"`
	Unexpected []string `json:"unexpected"`
}

// SemanticEvaluation is the structured verdict for one evaluated step.
// IsFallback marks verdicts produced by the deterministic heuristic path
// rather than the AI judge.
type SemanticEvaluation struct {
	StepID     string           `json:"step_id"`
	Passed     bool             `json:"passed"`
	Quality    ResponseQuality  `json:"quality"`
	Intent     string           `json:"intent,omitempty"`
	FlowState  FlowState        `json:"flow_state,omitempty"`
	Severity   SignalSeverity   `json:"severity,omitempty"`
	Validation ValidationDetail `json:"validation"`
	Confidence float64          `json:"confidence"`
	Reasoning  string           `json:"reasoning,omitempty"`
	IsFallback bool             `json:"is_fallback"`
}
