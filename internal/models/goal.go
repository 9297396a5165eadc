package models

// GoalKind identifies the type of outcome a conversation goal requires.
type GoalKind string

const (
	GoalDataCollection    GoalKind = "data_collection"
	GoalBookingConfirmed  GoalKind = "booking_confirmed"
	GoalTransferInitiated GoalKind = "transfer_initiated"
	GoalConversationEnded GoalKind = "conversation_ended"
	GoalErrorHandled      GoalKind = "error_handled"
	GoalCustom            GoalKind = "custom"
)

// KnownGoalKinds lists every goal kind the evaluator can dispatch on.
// An unknown kind fails that goal closed rather than aborting the test.
var KnownGoalKinds = []GoalKind{
	GoalDataCollection,
	GoalBookingConfirmed,
	GoalTransferInitiated,
	GoalConversationEnded,
	GoalErrorHandled,
	GoalCustom,
}

// ConversationGoal declares one outcome a passing conversation must reach.
// Custom goals reference a predicate by name so the record stays plain
// serializable data; the goal evaluator resolves the name at evaluation time.
type ConversationGoal struct {
	ID             string   `yaml:"id" json:"id"`
	Kind           GoalKind `yaml:"type" json:"type"`
	Description    string   `yaml:"description,omitempty" json:"description,omitempty"`
	RequiredFields []string `yaml:"required_fields,omitempty" json:"required_fields,omitempty"`
	Priority       int      `yaml:"priority,omitempty" json:"priority,omitempty"`
	Required       bool     `yaml:"required" json:"required"`
	Predicate      string   `yaml:"predicate,omitempty" json:"predicate,omitempty"`
}

// ConstraintKind identifies the type of a test constraint.
type ConstraintKind string

const (
	ConstraintMustHappen    ConstraintKind = "must_happen"
	ConstraintMustNotHappen ConstraintKind = "must_not_happen"
	ConstraintMaxTurns      ConstraintKind = "max_turns"
	ConstraintMaxTime       ConstraintKind = "max_time"

	// ConstraintDataLeakage is the implicit, always-on leakage check. It is
	// never declared by a test author; it appears only in violations.
	ConstraintDataLeakage ConstraintKind = "data_leakage"
)

// ViolationSeverity ranks constraint violations. Critical violations force
// the overall verdict to failed.
type ViolationSeverity string

const (
	ViolationLow      ViolationSeverity = "low"
	ViolationMedium   ViolationSeverity = "medium"
	ViolationHigh     ViolationSeverity = "high"
	ViolationCritical ViolationSeverity = "critical"
)

// TestConstraint declares a rule about what must or must not occur, or a
// numeric bound. Limit holds the turn cap for max_turns and the duration
// cap in milliseconds for max_time.
type TestConstraint struct {
	Kind        ConstraintKind    `yaml:"type" json:"type"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Severity    ViolationSeverity `yaml:"severity,omitempty" json:"severity,omitempty"`
	Predicate   string            `yaml:"predicate,omitempty" json:"predicate,omitempty"`
	Limit       int64             `yaml:"limit,omitempty" json:"limit,omitempty"`
}
