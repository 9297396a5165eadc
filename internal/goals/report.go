package goals

import (
	"fmt"
	"iter"
	"maps"
	"slices"
	"strings"

	"github.com/convocheck/convocheck/internal/models"
)

// GenerateFailureReport renders a deterministic, ordered, human-readable
// report from a test result. It is a pure function of the result and is
// suitable for snapshot testing.
func GenerateFailureReport(result *models.GoalTestResult) string {
	var sb strings.Builder

	verdict := "PASSED"
	if !result.Passed {
		verdict = "FAILED"
	}
	fmt.Fprintf(&sb, "Test: %s — %s\n", result.TestName, verdict)
	fmt.Fprintf(&sb, "%s\n", result.Summary)

	failed := result.FailedGoals()
	if len(failed) > 0 {
		sb.WriteString("\n== Failed Goals ==\n")
		for _, g := range failed {
			required := "optional"
			if g.Required {
				required = "required"
			}
			fmt.Fprintf(&sb, "- %s (%s, %s): %s\n", g.GoalID, g.Kind, required, g.Message)
		}
	}

	if len(result.ConstraintViolations) > 0 {
		sb.WriteString("\n== Constraint Violations ==\n")
		for _, v := range result.ConstraintViolations {
			fmt.Fprintf(&sb, "- [%s] %s", v.Severity, v.Kind)
			if v.TurnIndex > 0 {
				fmt.Fprintf(&sb, " at message %d", v.TurnIndex)
			}
			fmt.Fprintf(&sb, ": %s\n", v.Message)
			if v.Excerpt != "" {
				fmt.Fprintf(&sb, "    excerpt: %s\n", v.Excerpt)
			}
		}
	}

	if len(result.Issues) > 0 {
		sb.WriteString("\n== Detected Issues ==\n")
		for _, issue := range result.Issues {
			fmt.Fprintf(&sb, "- %s\n", issue)
		}
	}

	sb.WriteString("\n== Final State ==\n")
	p := result.Progress
	if p != nil {
		fmt.Fprintf(&sb, "flow_state: %s\n", p.FlowState)
		fmt.Fprintf(&sb, "turns: %d\n", p.TurnCount)
		fmt.Fprintf(&sb, "duration_ms: %d\n", result.DurationMs)
		fmt.Fprintf(&sb, "collected_fields: %s\n", joinSorted(maps.Keys(p.CollectedFields)))
		fmt.Fprintf(&sb, "completed_goals: %s\n", joinSorted(maps.Keys(p.CompletedGoals)))
		fmt.Fprintf(&sb, "booking_confirmed: %v\n", p.BookingConfirmed)
		fmt.Fprintf(&sb, "transfer_initiated: %v\n", p.TransferInitiated)
	}

	return sb.String()
}

func joinSorted(seq iter.Seq[string]) string {
	keys := slices.Sorted(seq)
	if len(keys) == 0 {
		return "(none)"
	}
	return strings.Join(keys, ", ")
}
