package validation

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const validTestCaseYAML = `
name: book-appointment
description: Caller books a checkup for their child.
goals:
  - id: collect-contact
    type: data_collection
    required_fields: [parent_phone, parent_email]
  - id: booked
    type: booking_confirmed
    required: true
constraints:
  - type: max_turns
    limit: 12
    severity: high
steps:
  - step_id: greet
    expected_behaviors:
      - "thanks for calling"
judge:
  model: gpt-4o
  max_tokens: 512
`

func TestValidateTestCaseBytes(t *testing.T) {
	t.Run("valid document", func(t *testing.T) {
		errs := ValidateTestCaseBytes([]byte(validTestCaseYAML))
		require.Empty(t, errs)
	})

	t.Run("missing goals", func(t *testing.T) {
		errs := ValidateTestCaseBytes([]byte("name: no-goals\n"))
		require.NotEmpty(t, errs)
		require.Contains(t, strings.Join(errs, "\n"), "goals")
	})

	t.Run("unknown goal type rejected", func(t *testing.T) {
		doc := `
name: bad-goal
goals:
  - id: g1
    type: teleport_caller
`
		errs := ValidateTestCaseBytes([]byte(doc))
		require.NotEmpty(t, errs)
	})

	t.Run("unknown constraint type rejected", func(t *testing.T) {
		doc := `
name: bad-constraint
goals:
  - id: g1
    type: conversation_ended
constraints:
  - type: must_maybe_happen
`
		errs := ValidateTestCaseBytes([]byte(doc))
		require.NotEmpty(t, errs)
	})

	t.Run("unknown top level key rejected", func(t *testing.T) {
		doc := `
name: extra-key
goals:
  - id: g1
    type: conversation_ended
totally_unknown: true
`
		errs := ValidateTestCaseBytes([]byte(doc))
		require.NotEmpty(t, errs)
	})

	t.Run("negative constraint limit rejected", func(t *testing.T) {
		doc := `
name: bad-limit
goals:
  - id: g1
    type: conversation_ended
constraints:
  - type: max_turns
    limit: -3
`
		errs := ValidateTestCaseBytes([]byte(doc))
		require.NotEmpty(t, errs)
	})

	t.Run("malformed yaml reports parse error", func(t *testing.T) {
		errs := ValidateTestCaseBytes([]byte("name: [unclosed"))
		require.Len(t, errs, 1)
		require.Contains(t, errs[0], "YAML parse error")
	})

	t.Run("error locations include instance path", func(t *testing.T) {
		doc := `
name: bad-severity
goals:
  - id: g1
    type: conversation_ended
constraints:
  - type: max_turns
    severity: catastrophic
`
		errs := ValidateTestCaseBytes([]byte(doc))
		require.NotEmpty(t, errs)
		require.Contains(t, strings.Join(errs, "\n"), "/constraints/0")
	})
}

func TestValidateTestCaseFile(t *testing.T) {
	t.Run("file not found", func(t *testing.T) {
		_, err := ValidateTestCaseFile("testdata/does-not-exist.yaml")
		require.Error(t, err)
	})

	t.Run("valid file", func(t *testing.T) {
		path := t.TempDir() + "/case.yaml"
		require.NoError(t, os.WriteFile(path, []byte(validTestCaseYAML), 0o644))
		errs, err := ValidateTestCaseFile(path)
		require.NoError(t, err)
		require.Empty(t, errs)
	})
}
