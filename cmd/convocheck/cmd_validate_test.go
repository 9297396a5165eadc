package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()

	goodPath := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(goodPath, []byte(evalTestCaseYAML), 0o644))

	badPath := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badPath, []byte("name: broken\ngoals:\n  - id: g\n    type: nonsense\n"), 0o644))

	t.Run("valid file passes", func(t *testing.T) {
		cmd := newRootCommand()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(&out)
		cmd.SetArgs([]string{"validate", goodPath})

		require.NoError(t, cmd.Execute())
	})

	t.Run("invalid file fails with count", func(t *testing.T) {
		cmd := newRootCommand()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(&out)
		cmd.SetArgs([]string{"validate", goodPath, badPath})

		err := cmd.Execute()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "1 of 2 file(s) failed validation")
	})

	t.Run("missing file is a runtime error", func(t *testing.T) {
		cmd := newRootCommand()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(&out)
		cmd.SetArgs([]string{"validate", filepath.Join(dir, "nope.yaml")})

		require.Error(t, cmd.Execute())
	})
}
