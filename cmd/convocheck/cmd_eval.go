package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/convocheck/convocheck/internal/config"
	"github.com/convocheck/convocheck/internal/detector"
	"github.com/convocheck/convocheck/internal/goals"
	"github.com/convocheck/convocheck/internal/judge"
	"github.com/convocheck/convocheck/internal/models"
	"github.com/convocheck/convocheck/internal/record"
	"github.com/convocheck/convocheck/internal/reporting"
	"github.com/convocheck/convocheck/internal/semantic"
	"github.com/convocheck/convocheck/internal/transcript"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	evalProgressPath string
	evalOutputPath   string
	evalResultDir    string
	evalJUnitPath    string
	evalRecordPath   string
	evalUseJudge     bool
	evalModel        string
)

func newEvalCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval <test.yaml> <transcript.json>",
		Short: "Evaluate a recorded conversation against a test case",
		Long: `Evaluate a recorded conversation against a test case.

The transcript is a JSON array of turns. An optional progress snapshot,
produced by the conversation orchestrator, supplies collected fields and
flow state; without one the verdict relies on transcript evidence alone.`,
		Args: cobra.ExactArgs(2),
		RunE: evalCommandE,
	}

	cmd.Flags().StringVar(&evalProgressPath, "progress", "", "Progress snapshot JSON from the orchestrator")
	cmd.Flags().StringVarP(&evalOutputPath, "output", "o", "", "Output JSON file for the full result")
	cmd.Flags().StringVar(&evalResultDir, "result-dir", "", "Directory to archive timestamped result JSON files")
	cmd.Flags().StringVar(&evalJUnitPath, "junit", "", "Write results as JUnit XML to this path")
	cmd.Flags().StringVar(&evalRecordPath, "record", "", "Write an NDJSON event log to this path (.zst compresses)")
	cmd.Flags().BoolVar(&evalUseJudge, "judge", false, "Use the AI judge for step evaluation (default: heuristic fallback)")
	cmd.Flags().StringVar(&evalModel, "model", "", "Judge model (overrides the test case setting)")

	return cmd
}

func evalCommandE(cmd *cobra.Command, args []string) error {
	runID := uuid.NewString()
	logger := slog.Default().With("run_id", runID)

	tc, err := config.LoadTestCase(args[0])
	if err != nil {
		return fmt.Errorf("failed to load test case: %w", err)
	}

	turns, err := transcript.Load(args[1])
	if err != nil {
		return fmt.Errorf("failed to load transcript: %w", err)
	}

	progress, err := loadProgress(evalProgressPath, turns)
	if err != nil {
		return fmt.Errorf("failed to load progress snapshot: %w", err)
	}

	var rec record.Writer = record.NopWriter{}
	if evalRecordPath != "" {
		fw, err := record.NewFileWriter(evalRecordPath)
		if err != nil {
			return err
		}
		defer fw.Close()
		rec = fw
	}

	result := evaluateConversation(cmd.Context(), tc, turns, progress, rec, logger)

	if err := rec.Write(record.Event{
		Time:    time.Now(),
		Kind:    record.EventVerdict,
		Payload: result,
	}); err != nil {
		logger.Warn("recording verdict failed", "error", err)
	}

	results := []*models.GoalTestResult{result}
	fmt.Print(reporting.FormatRunSummary(results))
	if !result.Passed {
		fmt.Println()
		fmt.Print(goals.GenerateFailureReport(result))
	}

	if evalOutputPath != "" {
		if err := saveResult(result, evalOutputPath); err != nil {
			return fmt.Errorf("failed to save output: %w", err)
		}
		fmt.Printf("Results saved to: %s\n", evalOutputPath)
	}
	if evalResultDir != "" {
		path, err := transcript.WriteResult(evalResultDir, result, time.Now())
		if err != nil {
			return fmt.Errorf("failed to archive result: %w", err)
		}
		fmt.Printf("Result archived to: %s\n", path)
	}
	if evalJUnitPath != "" {
		if err := reporting.WriteJUnitXML(tc.Name, time.Now(), results, evalJUnitPath); err != nil {
			return fmt.Errorf("failed to write JUnit XML: %w", err)
		}
		fmt.Printf("JUnit XML saved to: %s\n", evalJUnitPath)
	}

	if !result.Passed {
		return &TestFailureError{Message: fmt.Sprintf("test %q failed", tc.Name)}
	}
	return nil
}

// evaluateConversation replays a finished transcript through the failure
// detector and the step evaluator, then renders the final verdict.
func evaluateConversation(ctx context.Context, tc *models.ConversationTestCase, turns []models.Turn, progress *models.ProgressState, rec record.Writer, logger *slog.Logger) *models.GoalTestResult {
	detCfg, err := config.DetectorConfig(tc)
	if err != nil {
		logger.Warn("invalid detector overrides, using defaults", "error", err)
		detCfg = detector.DefaultConfig()
	}

	det := detector.New(detCfg, detector.WithRecorder(rec))
	for _, turn := range turns {
		det.ProcessTurn(turn, progress.CompletedGoals)
		if det.ShouldTerminate() {
			logger.Debug("early termination point reached", "reason", det.TerminationReason(), "turn", det.TurnCount())
			break
		}
	}
	for _, sig := range det.Signals() {
		progress.AddIssue(fmt.Sprintf("%s: %s", sig.Kind, sig.Message))
	}

	if len(tc.Steps) > 0 {
		evaluateSteps(ctx, tc, turns, progress, logger)
	}

	return goals.New(goals.Builtins()).EvaluateTest(tc, progress, turns, transcript.Duration(turns))
}

// evaluateSteps judges each declared step against the corresponding
// user/assistant exchange and folds failed steps into the issue list.
func evaluateSteps(ctx context.Context, tc *models.ConversationTestCase, turns []models.Turn, progress *models.ProgressState, logger *slog.Logger) {
	opts := semantic.DefaultOptions()
	if tc.Judge.Model != "" {
		opts.Model = tc.Judge.Model
	}
	if evalModel != "" {
		opts.Model = evalModel
	}
	if tc.Judge.MaxTokens > 0 {
		opts.MaxTokens = tc.Judge.MaxTokens
	}
	if tc.Judge.Temperature > 0 {
		opts.Temperature = tc.Judge.Temperature
	}
	if tc.Judge.TimeoutSec > 0 {
		opts.Timeout = time.Duration(tc.Judge.TimeoutSec) * time.Second
	}

	var j judge.Judge
	if evalUseJudge {
		j = judge.NewCopilotJudge(judge.CopilotOptions{})
	}
	eval := semantic.New(j, opts)

	exchanges := transcript.Exchanges(turns)
	scs := make([]semantic.StepContext, 0, len(tc.Steps))
	for i, step := range tc.Steps {
		if i >= len(exchanges) {
			progress.AddIssue(fmt.Sprintf("step %s: no matching exchange in transcript", step.StepID))
			continue
		}
		scs = append(scs, semantic.StepContext{
			StepID:             step.StepID,
			UserMessage:        exchanges[i].User,
			Response:           exchanges[i].Assistant,
			ExpectedBehaviors:  step.ExpectedBehaviors,
			ForbiddenBehaviors: step.ForbiddenBehaviors,
		})
	}

	for _, ev := range eval.EvaluateBatch(ctx, scs) {
		logger.Debug("step evaluated", "step", ev.StepID, "passed", ev.Passed, "fallback", ev.IsFallback)
		if !ev.Passed {
			progress.AddIssue(fmt.Sprintf("step %s: %s", ev.StepID, ev.Reasoning))
		}
	}
}

// loadProgress reads an orchestrator progress snapshot, or derives a
// minimal one from the transcript when no snapshot was provided.
func loadProgress(path string, turns []models.Turn) (*models.ProgressState, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var p models.ProgressState
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decoding progress snapshot: %w", err)
		}
		return &p, nil
	}

	start := time.Now()
	if len(turns) > 0 && !turns[0].Timestamp.IsZero() {
		start = turns[0].Timestamp
	}
	p := models.NewProgressState(start)
	for _, t := range turns {
		if t.Role == models.RoleAssistant {
			p.AdvanceTurn(t.Timestamp)
		}
	}
	return p, nil
}

func saveResult(result *models.GoalTestResult, path string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
