package reporting

import (
	"fmt"
	"strings"
	"time"

	"github.com/convocheck/convocheck/internal/models"
)

// InterpretPassRate returns a human-readable explanation of a pass rate (0–1).
func InterpretPassRate(rate float64) string {
	pct := rate * 100
	switch {
	case pct >= 100:
		return fmt.Sprintf("All tests passed (%.0f%%)", pct)
	case pct >= 80:
		return fmt.Sprintf("Most tests passed (%.0f%%)", pct)
	case pct >= 50:
		return fmt.Sprintf("About half the tests passed (%.0f%%)", pct)
	default:
		return fmt.Sprintf("Few tests passed (%.0f%%)", pct)
	}
}

// FormatRunSummary produces a plain-language summary for a batch of results.
func FormatRunSummary(results []*models.GoalTestResult) string {
	var b strings.Builder

	var passed, failed, errored int
	var totalMs int64
	for _, r := range results {
		totalMs += r.DurationMs
		switch r.Status {
		case models.StatusPassed:
			passed++
		case models.StatusFailed:
			failed++
		case models.StatusError:
			errored++
		}
	}

	b.WriteString("=== Summary ===\n\n")
	if len(results) > 0 {
		rate := float64(passed) / float64(len(results))
		b.WriteString(fmt.Sprintf("Pass Rate: %s\n", InterpretPassRate(rate)))
	}
	b.WriteString(fmt.Sprintf("Duration:  %v\n", time.Duration(totalMs)*time.Millisecond))
	b.WriteString(fmt.Sprintf("Tests:     %d passed, %d failed, %d errors out of %d total\n",
		passed, failed, errored, len(results)))

	if len(results) > 0 {
		b.WriteString("\nPer-Test Results:\n")
		for _, r := range results {
			icon := "✓"
			if r.Status != models.StatusPassed {
				icon = "✗"
			}
			b.WriteString(fmt.Sprintf("  %s %s: %s\n", icon, r.TestName, r.Status))
			for _, g := range r.FailedGoals() {
				b.WriteString(fmt.Sprintf("    goal %s: %s\n", g.GoalID, g.Message))
			}
			if n := len(r.ConstraintViolations); n > 0 {
				b.WriteString(fmt.Sprintf("    %d constraint violation(s)\n", n))
			}
		}
	}

	return b.String()
}
