package goals

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/convocheck/convocheck/internal/models"
)

func (e *Evaluator) checkConstraints(constraints []models.TestConstraint, progress *models.ProgressState, duration time.Duration, goalCtx GoalContext) []models.ConstraintViolation {
	var violations []models.ConstraintViolation

	for _, c := range constraints {
		severity := c.Severity
		if severity == "" {
			severity = models.ViolationHigh
		}

		switch c.Kind {
		case models.ConstraintMustHappen:
			pred, ok := e.predicates[c.Predicate]
			if c.Predicate == "" || !ok {
				violations = append(violations, models.ConstraintViolation{
					Kind:     c.Kind,
					Severity: severity,
					Message:  fmt.Sprintf("must_happen constraint references predicate %q which is not registered; failing closed", c.Predicate),
				})
				continue
			}
			if !pred(goalCtx) {
				violations = append(violations, models.ConstraintViolation{
					Kind:     c.Kind,
					Severity: severity,
					Message:  fmt.Sprintf("required condition %q never happened: %s", c.Predicate, c.Description),
				})
			}
		case models.ConstraintMustNotHappen:
			pred, ok := e.predicates[c.Predicate]
			if c.Predicate == "" || !ok {
				violations = append(violations, models.ConstraintViolation{
					Kind:     c.Kind,
					Severity: severity,
					Message:  fmt.Sprintf("must_not_happen constraint references predicate %q which is not registered; failing closed", c.Predicate),
				})
				continue
			}
			if pred(goalCtx) {
				violations = append(violations, models.ConstraintViolation{
					Kind:     c.Kind,
					Severity: severity,
					Message:  fmt.Sprintf("forbidden condition %q happened: %s", c.Predicate, c.Description),
				})
			}
		case models.ConstraintMaxTurns:
			if int64(progress.TurnCount) > c.Limit {
				violations = append(violations, models.ConstraintViolation{
					Kind:      c.Kind,
					Severity:  severity,
					Message:   fmt.Sprintf("conversation used %d turns, exceeding the limit of %d", progress.TurnCount, c.Limit),
					TurnIndex: messagePosition(progress.TurnCount),
				})
			}
		case models.ConstraintMaxTime:
			if duration.Milliseconds() > c.Limit {
				violations = append(violations, models.ConstraintViolation{
					Kind:     c.Kind,
					Severity: severity,
					Message:  fmt.Sprintf("conversation took %dms, exceeding the limit of %dms", duration.Milliseconds(), c.Limit),
				})
			}
		default:
			violations = append(violations, models.ConstraintViolation{
				Kind:     c.Kind,
				Severity: severity,
				Message:  fmt.Sprintf("unknown constraint type %q; failing closed", c.Kind),
			})
		}
	}

	return violations
}

// internalMarker is the literal token internal tooling uses to prefix
// structured payloads in agent output.
const internalMarker = "INTERNAL_DATA"

// markerLeak matches the marker token immediately followed by a
// brace-delimited block.
var markerLeak = regexp.MustCompile(internalMarker + `[:\s]*\{`)

// jsonShaped matches a brace-delimited block that looks like a JSON object.
var jsonShaped = regexp.MustCompile(`\{[^{}]*"[^"]+"\s*:[^{}]*\}`)

// sensitiveFields are internal field names that must never reach the user
// inside a structured payload. Naming one in prose is fine; naming one next
// to a JSON-shaped block is a leak.
var sensitiveFields = []string{
	"appointmentGUID",
	"parent_phone",
	"parent_email",
	"patient_id",
	"insurance_id",
}

const leakExcerptLen = 120

// checkLeakage is the implicit, non-configurable safety net: it always
// runs, independent of the test author's declared constraints.
func checkLeakage(transcript []models.Turn) []models.ConstraintViolation {
	var violations []models.ConstraintViolation

	for i, turn := range transcript {
		if turn.Role != models.RoleAssistant {
			continue
		}

		if loc := markerLeak.FindStringIndex(turn.Content); loc != nil {
			violations = append(violations, models.ConstraintViolation{
				Kind:      models.ConstraintDataLeakage,
				Severity:  models.ViolationMedium,
				Message:   fmt.Sprintf("internal marker %q followed by a structured block is visible to the user", internalMarker),
				TurnIndex: i + 1,
				Excerpt:   boundedExcerpt(turn.Content, loc[0]),
			})
			continue
		}

		if block := jsonShaped.FindStringIndex(turn.Content); block != nil {
			for _, field := range sensitiveFields {
				if strings.Contains(turn.Content, field) {
					violations = append(violations, models.ConstraintViolation{
						Kind:      models.ConstraintDataLeakage,
						Severity:  models.ViolationMedium,
						Message:   fmt.Sprintf("sensitive field %q appears alongside a JSON-shaped block in user-visible text", field),
						TurnIndex: i + 1,
						Excerpt:   boundedExcerpt(turn.Content, block[0]),
					})
					break
				}
			}
		}
	}

	return violations
}

func boundedExcerpt(content string, from int) string {
	end := from + leakExcerptLen
	if end > len(content) {
		end = len(content)
	}
	excerpt := content[from:end]
	if end < len(content) {
		excerpt += "..."
	}
	return excerpt
}
