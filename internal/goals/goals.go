// Package goals renders the final verdict for a conversational test from
// the full transcript and the terminal progress snapshot. Evaluation is a
// pure function over immutable inputs; no locking is required.
package goals

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/convocheck/convocheck/internal/models"
)

// GoalContext is the read-only view custom predicates evaluate over.
type GoalContext struct {
	Collected         map[string]any
	Transcript        []models.Turn
	BookingConfirmed  bool
	TransferInitiated bool
	FlowState         models.FlowState
	TurnCount         int
	Elapsed           time.Duration
}

// Predicate is a named boolean check over a goal context. Goals and
// constraints reference predicates by name so their records stay plain
// serializable data.
type Predicate func(GoalContext) bool

// Evaluator computes goal results and constraint violations.
type Evaluator struct {
	predicates map[string]Predicate
}

// Builtins returns the predicates available to every test case without
// registration. Callers may copy and extend the returned map.
func Builtins() map[string]Predicate {
	return map[string]Predicate{
		"booking_confirmed": func(ctx GoalContext) bool {
			return ctx.BookingConfirmed
		},
		"transfer_initiated": func(ctx GoalContext) bool {
			return ctx.TransferInitiated
		},
		"conversation_ended": func(ctx GoalContext) bool {
			return ctx.FlowState == models.FlowEnded
		},
		"has_contact_info": func(ctx GoalContext) bool {
			_, phone := ctx.Collected["parent_phone"]
			_, email := ctx.Collected["parent_email"]
			return phone || email
		},
	}
}

// New creates an Evaluator. predicates maps the names that custom goals and
// must/must-not constraints may reference; nil is valid and means no
// predicates are registered.
func New(predicates map[string]Predicate) *Evaluator {
	return &Evaluator{predicates: predicates}
}

// EvaluateTest adjudicates one finished conversation. It is total: a
// malformed goal or constraint fails only itself and the rest of the
// diagnostics survive.
func (e *Evaluator) EvaluateTest(tc *models.ConversationTestCase, progress *models.ProgressState, transcript []models.Turn, duration time.Duration) *models.GoalTestResult {
	if progress == nil {
		progress = models.NewProgressState(time.Now())
	}

	goalCtx := GoalContext{
		Collected:         progress.CollectedFields,
		Transcript:        transcript,
		BookingConfirmed:  progress.BookingConfirmed,
		TransferInitiated: progress.TransferInitiated,
		FlowState:         progress.FlowState,
		TurnCount:         progress.TurnCount,
		Elapsed:           duration,
	}

	goalResults := make([]models.GoalResult, 0, len(tc.Goals))
	for _, goal := range tc.Goals {
		goalResults = append(goalResults, e.evaluateGoal(goal, progress, transcript, goalCtx))
	}

	violations := e.checkConstraints(tc.Constraints, progress, duration, goalCtx)
	violations = append(violations, checkLeakage(transcript)...)

	passed := true
	for _, v := range violations {
		if v.Severity == models.ViolationCritical {
			passed = false
		}
	}
	if passed {
		for _, g := range goalResults {
			if g.Required && !g.Passed {
				passed = false
				break
			}
		}
	}

	status := models.StatusPassed
	if !passed {
		status = models.StatusFailed
	}

	result := &models.GoalTestResult{
		TestName:             tc.Name,
		Status:               status,
		Passed:               passed,
		GoalResults:          goalResults,
		ConstraintViolations: violations,
		Progress:             progress,
		Transcript:           transcript,
		TurnCount:            progress.TurnCount,
		DurationMs:           duration.Milliseconds(),
		Issues:               progress.Issues,
	}
	result.Summary = summarize(result)
	return result
}

func (e *Evaluator) evaluateGoal(goal models.ConversationGoal, progress *models.ProgressState, transcript []models.Turn, goalCtx GoalContext) models.GoalResult {
	result := models.GoalResult{
		GoalID:   goal.ID,
		Kind:     goal.Kind,
		Required: goal.Required,
	}

	// Completion is monotonic: a goal completed during the conversation is
	// never revisited.
	if progress.CompletedGoals[goal.ID] {
		result.Passed = true
		result.Message = "goal completed during the conversation"
		return result
	}

	switch goal.Kind {
	case models.GoalDataCollection:
		return evaluateDataCollection(goal, progress, result)
	case models.GoalBookingConfirmed:
		return evaluateBookingConfirmed(progress, transcript, result)
	case models.GoalTransferInitiated:
		return evaluateTransferInitiated(progress, transcript, result)
	case models.GoalConversationEnded:
		return evaluateConversationEnded(progress, transcript, result)
	case models.GoalErrorHandled:
		return evaluateErrorHandled(progress, transcript, result)
	case models.GoalCustom:
		return e.evaluateCustom(goal, goalCtx, result)
	default:
		result.Passed = false
		result.Message = fmt.Sprintf("unknown goal type %q; failing closed", goal.Kind)
		return result
	}
}

func evaluateDataCollection(goal models.ConversationGoal, progress *models.ProgressState, result models.GoalResult) models.GoalResult {
	var missing []string
	for _, field := range goal.RequiredFields {
		if _, ok := progress.CollectedFields[field]; !ok {
			missing = append(missing, field)
		}
	}

	if len(missing) > 0 {
		result.Passed = false
		result.Message = fmt.Sprintf("missing required fields: %s", strings.Join(missing, ", "))
		result.Details = map[string]any{"missing_fields": missing}
		return result
	}

	result.Passed = true
	result.Message = fmt.Sprintf("all %d required fields collected", len(goal.RequiredFields))
	return result
}

// bookingMarker finds the structured appointment marker the backend embeds
// in agent output. The identifier group is empty when the marker carries a
// null or empty value.
var bookingMarker = regexp.MustCompile(`"appointmentGUID"\s*:\s*(?:null|"([^"]*)")`)

// evaluateBookingConfirmed reconciles multiple sources of truth, strongest
// first. A structured marker with a real identifier proves success
// regardless of the agent's wording; a marker with a null or empty
// identifier proves failure even when the text sounds like confirmation.
// Only without any marker do the lower-confidence persistent flags and
// flow state decide.
func evaluateBookingConfirmed(progress *models.ProgressState, transcript []models.Turn, result models.GoalResult) models.GoalResult {
	for i := len(transcript) - 1; i >= 0; i-- {
		m := bookingMarker.FindStringSubmatch(transcript[i].Content)
		if m == nil {
			continue
		}

		if m[1] != "" {
			result.Passed = true
			result.Message = fmt.Sprintf("booking confirmed with appointment id %q", m[1])
			result.Details = map[string]any{
				"appointment_guid": m[1],
				"marker_turn":      i + 1,
			}
			return result
		}

		result.Passed = false
		result.Message = fmt.Sprintf("booking marker at message %d carries no appointment id; the backend call likely failed even though the agent may claim success", i+1)
		result.Details = map[string]any{"marker_turn": i + 1}
		return result
	}

	if progress.BookingConfirmed || progress.FlowState == models.FlowConfirmed {
		result.Passed = true
		result.Message = "no structured marker found; passing on persistent booking flag / flow state"
		return result
	}

	result.Passed = false
	result.Message = "no booking marker, persistent flag, or confirming flow state found"
	return result
}

var transferIntents = map[string]bool{
	"transfer":         true,
	"transfer_request": true,
	"escalate":         true,
	"speak_to_human":   true,
}

func evaluateTransferInitiated(progress *models.ProgressState, transcript []models.Turn, result models.GoalResult) models.GoalResult {
	if progress.TransferInitiated {
		result.Passed = true
		result.Message = "transfer flag set during the conversation"
		return result
	}
	if progress.FlowState == models.FlowTransferring {
		result.Passed = true
		result.Message = "conversation ended in the transferring flow state"
		return result
	}
	for _, turn := range transcript {
		if transferIntents[turn.Intent] {
			result.Passed = true
			result.Message = fmt.Sprintf("transfer intent %q observed in the transcript", turn.Intent)
			return result
		}
	}

	result.Passed = false
	result.Message = "no transfer flag, transferring flow state, or transfer intent found"
	return result
}

var farewellPhrases = []string{"goodbye", "bye", "have a great day", "take care", "see you"}

func evaluateConversationEnded(progress *models.ProgressState, transcript []models.Turn, result models.GoalResult) models.GoalResult {
	if progress.FlowState == models.FlowEnded {
		result.Passed = true
		result.Message = "conversation reached the ended flow state"
		return result
	}

	for i := len(transcript) - 1; i >= 0; i-- {
		if transcript[i].Role != models.RoleAssistant {
			continue
		}
		lowered := strings.ToLower(transcript[i].Content)
		for _, phrase := range farewellPhrases {
			if strings.Contains(lowered, phrase) {
				result.Passed = true
				result.Message = fmt.Sprintf("final assistant message contains farewell phrasing %q", phrase)
				return result
			}
		}
		break // only the last assistant message counts
	}

	result.Passed = false
	result.Message = "conversation did not reach the ended state and the last assistant message has no farewell"
	return result
}

var errorEvidence = []string{"something went wrong", "an error occurred", "technical difficulties", "unable to process"}

// evaluateErrorHandled requires both that an error was observed and that the
// conversation recovered from it.
func evaluateErrorHandled(progress *models.ProgressState, transcript []models.Turn, result models.GoalResult) models.GoalResult {
	observed := len(progress.Issues) > 0
	if !observed {
		for _, turn := range transcript {
			if turn.Role != models.RoleAssistant {
				continue
			}
			lowered := strings.ToLower(turn.Content)
			for _, phrase := range errorEvidence {
				if strings.Contains(lowered, phrase) {
					observed = true
					break
				}
			}
			if observed {
				break
			}
		}
	}

	if !observed {
		result.Passed = false
		result.Message = "no error was observed for the agent to handle"
		return result
	}
	if progress.FlowState == models.FlowError {
		result.Passed = false
		result.Message = "an error was observed but the conversation ended in the error flow state"
		return result
	}

	result.Passed = true
	result.Message = "an error was observed and the conversation recovered"
	return result
}

func (e *Evaluator) evaluateCustom(goal models.ConversationGoal, goalCtx GoalContext, result models.GoalResult) models.GoalResult {
	if goal.Predicate == "" {
		result.Passed = false
		result.Message = "custom goal declares no predicate; failing closed"
		return result
	}

	pred, ok := e.predicates[goal.Predicate]
	if !ok {
		result.Passed = false
		result.Message = fmt.Sprintf("custom goal references unregistered predicate %q; failing closed", goal.Predicate)
		return result
	}

	if pred(goalCtx) {
		result.Passed = true
		result.Message = fmt.Sprintf("custom predicate %q satisfied", goal.Predicate)
	} else {
		result.Passed = false
		result.Message = fmt.Sprintf("custom predicate %q not satisfied", goal.Predicate)
	}
	return result
}

// messagePosition converts the internal turn counter, which counts
// user+assistant exchange pairs, to the transcript's 1-indexed message
// position (the assistant message of that exchange).
func messagePosition(turn int) int {
	return turn * 2
}

func summarize(r *models.GoalTestResult) string {
	passedGoals := 0
	for _, g := range r.GoalResults {
		if g.Passed {
			passedGoals++
		}
	}

	verdict := "PASSED"
	if !r.Passed {
		verdict = "FAILED"
	}

	return fmt.Sprintf("%s: %d/%d goals passed, %d constraint violations, %d turns in %dms",
		verdict, passedGoals, len(r.GoalResults), len(r.ConstraintViolations), r.TurnCount, r.DurationMs)
}
