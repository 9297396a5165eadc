// Package transcript loads recorded conversations and archives evaluation
// results under stable, filesystem-safe names.
package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/convocheck/convocheck/internal/models"
)

// sanitize replaces characters that are unsafe in filenames.
var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

func sanitizeName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, " ", "-")
	s = unsafeChars.ReplaceAllString(s, "")
	if s == "" {
		s = "unnamed"
	}
	return s
}

// Filename returns the result filename for a test.
func Filename(testName string, ts time.Time) string {
	return fmt.Sprintf("%s-%s.json", sanitizeName(testName), ts.Format("20060102-150405"))
}

// Load reads a transcript file: a JSON array of turns. An empty transcript
// is an error since there is nothing to evaluate.
func Load(path string) ([]models.Turn, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading transcript: %w", err)
	}

	var turns []models.Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, fmt.Errorf("decoding transcript: %w", err)
	}
	if len(turns) == 0 {
		return nil, fmt.Errorf("transcript %s contains no turns", path)
	}
	return turns, nil
}

// Exchange is one user message and the assistant response that followed it.
// User is empty when the assistant spoke without a preceding user message.
type Exchange struct {
	User      string
	Assistant string
}

// Exchanges pairs each assistant turn with the user message before it.
func Exchanges(turns []models.Turn) []Exchange {
	var out []Exchange
	var pendingUser string
	for _, t := range turns {
		switch t.Role {
		case models.RoleUser:
			pendingUser = t.Content
		case models.RoleAssistant:
			out = append(out, Exchange{User: pendingUser, Assistant: t.Content})
			pendingUser = ""
		}
	}
	return out
}

// Duration returns the elapsed time between the first and last timestamped
// turn, or zero when timestamps are absent or inconsistent.
func Duration(turns []models.Turn) time.Duration {
	if len(turns) < 2 {
		return 0
	}
	first, last := turns[0].Timestamp, turns[len(turns)-1].Timestamp
	if first.IsZero() || last.IsZero() || last.Before(first) {
		return 0
	}
	return last.Sub(first)
}

// WriteResult serializes an evaluation result into dir under a name derived
// from the test name and timestamp, and returns the path written.
func WriteResult(dir string, result *models.GoalTestResult, ts time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create result dir: %w", err)
	}

	path := filepath.Join(dir, Filename(result.TestName, ts))

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write result: %w", err)
	}

	return path, nil
}
