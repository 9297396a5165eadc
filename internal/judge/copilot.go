package judge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	copilot "github.com/github/copilot-sdk/go"
)

// CopilotOptions configures the copilot-backed judge.
type CopilotOptions struct {
	// Cwd is the working directory for the copilot client process.
	Cwd string
	// LogLevel controls the copilot client's own logging. Defaults to "error".
	LogLevel string
}

// CopilotJudge executes prompts through a copilot session. Each call creates
// a fresh session so concurrent conversations never share judge state.
type CopilotJudge struct {
	opts CopilotOptions
}

// NewCopilotJudge creates a judge backed by the logged-in copilot user.
func NewCopilotJudge(opts CopilotOptions) *CopilotJudge {
	if opts.LogLevel == "" {
		opts.LogLevel = "error"
	}
	return &CopilotJudge{opts: opts}
}

// Execute implements [Judge].
func (c *CopilotJudge) Execute(ctx context.Context, req Request) (*Response, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	client := copilot.NewClient(&copilot.ClientOptions{
		Cwd:             c.opts.Cwd,
		AutoStart:       ptr(true),
		AutoRestart:     ptr(true),
		UseLoggedInUser: ptr(true),
		LogLevel:        c.opts.LogLevel,
	})

	defer func() {
		if err := client.Stop(); err != nil {
			slog.ErrorContext(ctx, "error stopping copilot client for judge call")
		}
	}()

	session, err := client.CreateSession(ctx, &copilot.SessionConfig{
		Model:     req.Model,
		Streaming: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to start copilot session: %v", ErrUnavailable, err)
	}

	resp, err := session.SendAndWait(ctx, copilot.MessageOptions{
		Prompt: req.Prompt,
		Mode:   "enqueue",
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("failed to send judge prompt: %w", err)
	}

	content := ""
	if resp.Data.Content != nil {
		content = *resp.Data.Content
	}

	return &Response{Content: content}, nil
}

func ptr[T any](v T) *T {
	return &v
}
