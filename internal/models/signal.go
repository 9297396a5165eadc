package models

import "time"

// SignalKind identifies the type of a detected failure signal.
type SignalKind string

const (
	SignalIntentLoop     SignalKind = "intent_loop"
	SignalRepetition     SignalKind = "repetition"
	SignalErrorResponse  SignalKind = "error_response"
	SignalGoalRegression SignalKind = "goal_regression"
	SignalToolFailure    SignalKind = "tool_failure"
	SignalStall          SignalKind = "conversation_stall"
	SignalExcessiveTurns SignalKind = "excessive_turns"
)

// SignalSeverity ranks how serious a failure signal is.
type SignalSeverity string

const (
	SeverityWarning  SignalSeverity = "warning"
	SeverityError    SignalSeverity = "error"
	SeverityCritical SignalSeverity = "critical"
)

// FailureSignal is one detected problem in a live conversation. It carries
// enough structured data that a consumer can decide independently whether
// to act on it.
type FailureSignal struct {
	Kind       SignalKind     `json:"kind"`
	Severity   SignalSeverity `json:"severity"`
	Message    string         `json:"message"`
	TurnIndex  int            `json:"turn_index"`
	Confidence float64        `json:"confidence"`
	Timestamp  time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}
