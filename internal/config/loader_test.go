package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/convocheck/convocheck/internal/models"
	"github.com/stretchr/testify/require"
)

const sampleTestCase = `
name: book-checkup
description: Caller books a checkup and leaves contact details.
goals:
  - id: contact
    type: data_collection
    required_fields: [parent_phone]
  - id: booked
    type: booking_confirmed
    required: true
constraints:
  - type: max_turns
    limit: 15
steps:
  - step_id: greet
    expected_behaviors: ["thanks for calling"]
judge:
  model: gpt-4o
metadata:
  detector:
    max_turns: 30
    compound_loop_stall: false
`

func TestParseTestCase(t *testing.T) {
	t.Run("valid case", func(t *testing.T) {
		tc, err := ParseTestCase([]byte(sampleTestCase))
		require.NoError(t, err)
		require.Equal(t, "book-checkup", tc.Name)
		require.Len(t, tc.Goals, 2)
		require.Equal(t, models.GoalDataCollection, tc.Goals[0].Kind)
		require.Equal(t, []string{"parent_phone"}, tc.Goals[0].RequiredFields)
		require.True(t, tc.Goals[1].Required)
		require.Len(t, tc.Constraints, 1)
		require.EqualValues(t, 15, tc.Constraints[0].Limit)
		require.Equal(t, "gpt-4o", tc.Judge.Model)
	})

	t.Run("schema violation surfaces errors", func(t *testing.T) {
		_, err := ParseTestCase([]byte("name: broken\ngoals:\n  - id: g\n    type: nonsense\n"))
		require.Error(t, err)
		require.Contains(t, err.Error(), "schema validation")
	})

	t.Run("duplicate goal ids rejected", func(t *testing.T) {
		doc := `
name: dupes
goals:
  - id: same
    type: conversation_ended
  - id: same
    type: booking_confirmed
`
		_, err := ParseTestCase([]byte(doc))
		require.Error(t, err)
		require.Contains(t, err.Error(), "twice")
	})
}

func TestLoadTestCase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "case.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleTestCase), 0o644))

	tc, err := LoadTestCase(path)
	require.NoError(t, err)
	require.Equal(t, "book-checkup", tc.Name)

	_, err = LoadTestCase(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestDetectorConfig(t *testing.T) {
	t.Run("defaults without metadata", func(t *testing.T) {
		tc := &models.ConversationTestCase{Name: "n"}
		cfg, err := DetectorConfig(tc)
		require.NoError(t, err)
		require.Equal(t, 20, cfg.MaxTurns)
		require.True(t, cfg.CompoundLoopStall)
	})

	t.Run("overrides applied", func(t *testing.T) {
		tc, err := ParseTestCase([]byte(sampleTestCase))
		require.NoError(t, err)

		cfg, err := DetectorConfig(tc)
		require.NoError(t, err)
		require.Equal(t, 30, cfg.MaxTurns)
		require.False(t, cfg.CompoundLoopStall)
		require.Equal(t, 4, cfg.StallThreshold)
	})

	t.Run("unknown key rejected", func(t *testing.T) {
		tc := &models.ConversationTestCase{
			Name:     "n",
			Metadata: map[string]any{"detector": map[string]any{"max_turrns": 9}},
		}
		_, err := DetectorConfig(tc)
		require.Error(t, err)
	})
}
