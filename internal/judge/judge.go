// Package judge abstracts the AI capability that renders semantic verdicts.
// The oracle core must run correctly with this capability permanently
// absent; every consumer degrades to a deterministic path when a call fails.
package judge

import (
	"context"
	"errors"
	"time"
)

//go:generate go tool mockgen -source=judge.go -destination=mock_judge.go -package=judge

// ErrUnavailable indicates the judge cannot be reached at all, for example
// because no credentials or connectivity exist. It is never itself a test
// failure.
var ErrUnavailable = errors.New("judge unavailable")

// ErrTimeout indicates a judge call did not complete within the caller's
// deadline.
var ErrTimeout = errors.New("judge call timed out")

// Request is one prompt execution against the judge model.
type Request struct {
	Prompt      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Usage reports token consumption for one call, when the backend exposes it.
type Usage struct {
	TokensIn  int `json:"tokens_in"`
	TokensOut int `json:"tokens_out"`
}

// Response is the raw text produced by the judge.
type Response struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// Judge executes prompts against an AI model. Implementations must honor
// ctx cancellation and the per-request timeout.
type Judge interface {
	Execute(ctx context.Context, req Request) (*Response, error)
}
