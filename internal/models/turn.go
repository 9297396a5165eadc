package models

import "time"

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ToolCall records one tool invocation reported by the agent under test.
// A call with no result, or with a non-empty Error, is considered failed.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Result    any            `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Failed reports whether this tool call produced no usable result.
func (tc ToolCall) Failed() bool {
	return tc.Result == nil || tc.Error != ""
}

// Turn is one message from either the test persona or the agent under test.
type Turn struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Timestamp time.Time  `json:"timestamp"`
	Intent    string     `json:"intent,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}
