package goals

import (
	"testing"
	"time"

	"github.com/convocheck/convocheck/internal/models"
	"github.com/stretchr/testify/require"
)

func TestGenerateFailureReport(t *testing.T) {
	tc := testCase([]models.ConversationGoal{
		{ID: "g1", Kind: models.GoalDataCollection, RequiredFields: []string{"parent_name", "parent_phone"}, Required: true},
		{ID: "booking", Kind: models.GoalBookingConfirmed, Required: true},
	}, models.TestConstraint{
		Kind: models.ConstraintMaxTurns, Severity: models.ViolationMedium, Limit: 1,
	})

	progress := freshProgress()
	progress.CollectField("parent_name", "Jane")
	progress.AdvanceTurn(time.Now())
	progress.AdvanceTurn(time.Now())
	progress.AddIssue("tool call \"book_appointment\" failed: backend unavailable")

	result := New(nil).EvaluateTest(tc, progress, nil, 1500*time.Millisecond)
	require.False(t, result.Passed)

	report := GenerateFailureReport(result)

	require.Contains(t, report, "Test: appointment booking — FAILED")
	require.Contains(t, report, "== Failed Goals ==")
	require.Contains(t, report, "g1 (data_collection, required): missing required fields: parent_phone")
	require.Contains(t, report, "== Constraint Violations ==")
	require.Contains(t, report, "[medium] max_turns at message 4")
	require.Contains(t, report, "== Detected Issues ==")
	require.Contains(t, report, "backend unavailable")
	require.Contains(t, report, "== Final State ==")
	require.Contains(t, report, "collected_fields: parent_name")

	// Pure function of the result: rendering twice is byte-identical.
	require.Equal(t, report, GenerateFailureReport(result))
}

func TestGenerateFailureReport_PassingResult(t *testing.T) {
	tc := testCase([]models.ConversationGoal{
		{ID: "g1", Kind: models.GoalDataCollection, Required: true},
	})

	result := New(nil).EvaluateTest(tc, freshProgress(), nil, time.Second)
	require.True(t, result.Passed)

	report := GenerateFailureReport(result)
	require.Contains(t, report, "PASSED")
	require.NotContains(t, report, "== Failed Goals ==")
	require.Contains(t, report, "collected_fields: (none)")
}
