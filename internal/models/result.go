package models

// Status represents the overall outcome of an evaluated test.
type Status string

const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
	StatusError  Status = "error"
)

// GoalResult is the final verdict for one declared goal.
type GoalResult struct {
	GoalID   string         `json:"goal_id"`
	Kind     GoalKind       `json:"type"`
	Passed   bool           `json:"passed"`
	Required bool           `json:"required"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
}

// ConstraintViolation records one violated constraint. TurnIndex is the
// 1-indexed message position in the transcript; zero means the violation is
// not tied to a specific message.
type ConstraintViolation struct {
	Kind      ConstraintKind    `json:"type"`
	Severity  ViolationSeverity `json:"severity"`
	Message   string            `json:"message"`
	TurnIndex int               `json:"turn_index,omitempty"`
	Excerpt   string            `json:"excerpt,omitempty"`
}

// GoalTestResult is the complete final verdict for one conversational test.
// It is a pure function of the transcript, the terminal progress snapshot
// and the declared goals/constraints, and contains only serializable data.
type GoalTestResult struct {
	TestName             string                `json:"test_name"`
	Status               Status                `json:"status"`
	Passed               bool                  `json:"passed"`
	GoalResults          []GoalResult          `json:"goal_results"`
	ConstraintViolations []ConstraintViolation `json:"constraint_violations"`
	Summary              string                `json:"summary"`
	Progress             *ProgressState        `json:"progress"`
	Transcript           []Turn                `json:"transcript,omitempty"`
	TurnCount            int                   `json:"turn_count"`
	DurationMs           int64                 `json:"duration_ms"`
	Issues               []string              `json:"issues,omitempty"`
}

// FailedGoals returns the goals that did not pass, in declaration order.
func (r *GoalTestResult) FailedGoals() []GoalResult {
	var failed []GoalResult
	for _, g := range r.GoalResults {
		if !g.Passed {
			failed = append(failed, g)
		}
	}
	return failed
}

// HasCriticalViolation reports whether any constraint violation is critical.
func (r *GoalTestResult) HasCriticalViolation() bool {
	for _, v := range r.ConstraintViolations {
		if v.Severity == ViolationCritical {
			return true
		}
	}
	return false
}
