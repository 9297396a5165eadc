package goals

import (
	"testing"
	"time"

	"github.com/convocheck/convocheck/internal/models"
	"github.com/stretchr/testify/require"
)

func violationsOfKind(result *models.GoalTestResult, kind models.ConstraintKind) []models.ConstraintViolation {
	var out []models.ConstraintViolation
	for _, v := range result.ConstraintViolations {
		if v.Kind == kind {
			out = append(out, v)
		}
	}
	return out
}

func passingCase() *models.ConversationTestCase {
	return testCase([]models.ConversationGoal{
		{ID: "g1", Kind: models.GoalDataCollection, Required: true},
	})
}

func TestConstraints_MaxTurns(t *testing.T) {
	tc := passingCase()
	tc.Constraints = []models.TestConstraint{
		{Kind: models.ConstraintMaxTurns, Severity: models.ViolationHigh, Limit: 3},
	}

	progress := freshProgress()
	for i := 0; i < 5; i++ {
		progress.AdvanceTurn(time.Now())
	}

	result := New(nil).EvaluateTest(tc, progress, nil, time.Second)
	vs := violationsOfKind(result, models.ConstraintMaxTurns)
	require.Len(t, vs, 1)
	// Exchange counter 5 translates to 1-indexed message position 10.
	require.Equal(t, 10, vs[0].TurnIndex)
	require.Contains(t, vs[0].Message, "5 turns")
}

func TestConstraints_MaxTime(t *testing.T) {
	tc := passingCase()
	tc.Constraints = []models.TestConstraint{
		{Kind: models.ConstraintMaxTime, Severity: models.ViolationMedium, Limit: 1000},
	}

	result := New(nil).EvaluateTest(tc, freshProgress(), nil, 2500*time.Millisecond)
	vs := violationsOfKind(result, models.ConstraintMaxTime)
	require.Len(t, vs, 1)
	require.Contains(t, vs[0].Message, "2500ms")
}

func TestConstraints_MustHappenAndMustNotHappen(t *testing.T) {
	predicates := map[string]Predicate{
		"greeted":       func(ctx GoalContext) bool { return len(ctx.Transcript) > 0 },
		"leaked_secret": func(ctx GoalContext) bool { return false },
	}

	tc := passingCase()
	tc.Constraints = []models.TestConstraint{
		{Kind: models.ConstraintMustHappen, Predicate: "greeted", Severity: models.ViolationHigh},
		{Kind: models.ConstraintMustNotHappen, Predicate: "leaked_secret", Severity: models.ViolationCritical},
	}

	t.Run("satisfied constraints produce no violations", func(t *testing.T) {
		transcript := []models.Turn{{Role: models.RoleUser, Content: "hi"}}
		result := New(predicates).EvaluateTest(tc, freshProgress(), transcript, time.Second)
		require.Empty(t, violationsOfKind(result, models.ConstraintMustHappen))
		require.Empty(t, violationsOfKind(result, models.ConstraintMustNotHappen))
	})

	t.Run("must_happen violated", func(t *testing.T) {
		result := New(predicates).EvaluateTest(tc, freshProgress(), nil, time.Second)
		require.Len(t, violationsOfKind(result, models.ConstraintMustHappen), 1)
	})

	t.Run("missing predicate fails closed", func(t *testing.T) {
		broken := passingCase()
		broken.Constraints = []models.TestConstraint{
			{Kind: models.ConstraintMustHappen, Predicate: "unregistered"},
		}
		result := New(predicates).EvaluateTest(broken, freshProgress(), nil, time.Second)
		vs := violationsOfKind(result, models.ConstraintMustHappen)
		require.Len(t, vs, 1)
		require.Contains(t, vs[0].Message, "unregistered")
	})
}

func TestConstraints_CriticalViolationForcesFailure(t *testing.T) {
	predicates := map[string]Predicate{
		"always": func(GoalContext) bool { return true },
	}

	tc := passingCase() // its only goal passes
	tc.Constraints = []models.TestConstraint{
		{Kind: models.ConstraintMustNotHappen, Predicate: "always", Severity: models.ViolationCritical},
	}

	result := New(predicates).EvaluateTest(tc, freshProgress(), nil, time.Second)
	require.True(t, goalByID(t, result, "g1").Passed)
	require.False(t, result.Passed)
	require.Equal(t, models.StatusFailed, result.Status)
}

func TestConstraints_UnknownKindFailsClosed(t *testing.T) {
	tc := passingCase()
	tc.Constraints = []models.TestConstraint{
		{Kind: "quantum_check", Severity: models.ViolationLow},
	}

	result := New(nil).EvaluateTest(tc, freshProgress(), nil, time.Second)
	vs := violationsOfKind(result, "quantum_check")
	require.Len(t, vs, 1)
	require.Contains(t, vs[0].Message, "unknown constraint type")
	// Low severity: diagnostics only, verdict unaffected.
	require.True(t, result.Passed)
}

func TestLeakage_MarkerFollowedByBrace(t *testing.T) {
	transcript := []models.Turn{
		{Role: models.RoleUser, Content: "book me in"},
		{Role: models.RoleAssistant, Content: "Sure thing!"},
		{Role: models.RoleAssistant, Content: `All booked. INTERNAL_DATA: {"slot": "t-123"}`},
	}

	result := New(nil).EvaluateTest(passingCase(), freshProgress(), transcript, time.Second)
	vs := violationsOfKind(result, models.ConstraintDataLeakage)
	require.Len(t, vs, 1)
	require.Equal(t, models.ViolationMedium, vs[0].Severity)
	require.Equal(t, 3, vs[0].TurnIndex)
	require.NotEmpty(t, vs[0].Excerpt)
}

func TestLeakage_SensitiveFieldWithJSONBlock(t *testing.T) {
	transcript := []models.Turn{
		{Role: models.RoleAssistant, Content: `Here you go: {"appointmentGUID": "abc123"}`},
	}

	result := New(nil).EvaluateTest(passingCase(), freshProgress(), transcript, time.Second)
	vs := violationsOfKind(result, models.ConstraintDataLeakage)
	require.Len(t, vs, 1)
	require.Contains(t, vs[0].Message, "appointmentGUID")
}

func TestLeakage_ProseMentionIsNotFlagged(t *testing.T) {
	transcript := []models.Turn{
		{Role: models.RoleAssistant, Content: "Don't worry, your appointmentGUID stays internal to our system."},
		{Role: models.RoleUser, Content: `I typed {"appointmentGUID": "x"} myself`},
	}

	result := New(nil).EvaluateTest(passingCase(), freshProgress(), transcript, time.Second)
	require.Empty(t, violationsOfKind(result, models.ConstraintDataLeakage))
}
