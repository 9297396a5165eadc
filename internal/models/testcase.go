package models

import "fmt"

// StepExpectation declares the expected and forbidden behaviors for one
// evaluated step. Behavior strings are either plain case-insensitive
// substrings or literal regexes written as /pattern/flags.
type StepExpectation struct {
	StepID             string   `yaml:"step_id" json:"step_id"`
	ExpectedBehaviors  []string `yaml:"expected_behaviors,omitempty" json:"expected_behaviors,omitempty"`
	ForbiddenBehaviors []string `yaml:"forbidden_behaviors,omitempty" json:"forbidden_behaviors,omitempty"`
}

// JudgeSettings configures the AI judge for a test case. A zero value means
// the evaluator's defaults apply.
type JudgeSettings struct {
	Model       string  `yaml:"model,omitempty" json:"model,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	Temperature float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	TimeoutSec  int     `yaml:"timeout_seconds,omitempty" json:"timeout_sec,omitempty"`
}

// ConversationTestCase is one externally authored conversational test:
// the goals a conversation must reach, the constraints it must respect,
// and the per-step behavior expectations for semantic evaluation.
type ConversationTestCase struct {
	Name        string             `yaml:"name" json:"name"`
	Description string             `yaml:"description,omitempty" json:"description,omitempty"`
	Goals       []ConversationGoal `yaml:"goals" json:"goals"`
	Constraints []TestConstraint   `yaml:"constraints,omitempty" json:"constraints,omitempty"`
	Steps       []StepExpectation  `yaml:"steps,omitempty" json:"steps,omitempty"`
	Judge       JudgeSettings      `yaml:"judge,omitempty" json:"judge,omitempty"`
	Metadata    map[string]any     `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// Validate checks structural requirements that the JSON schema cannot
// express, such as goal id uniqueness.
func (tc *ConversationTestCase) Validate() error {
	if tc.Name == "" {
		return fmt.Errorf("test case must have a name")
	}
	if len(tc.Goals) == 0 {
		return fmt.Errorf("test case %q must declare at least one goal", tc.Name)
	}

	seen := make(map[string]bool, len(tc.Goals))
	for _, g := range tc.Goals {
		if g.ID == "" {
			return fmt.Errorf("test case %q has a goal with no id", tc.Name)
		}
		if seen[g.ID] {
			return fmt.Errorf("test case %q declares goal id %q twice", tc.Name, g.ID)
		}
		seen[g.ID] = true
	}

	return nil
}
