// Package detector watches a live conversation turn by turn, emits typed
// failure signals, and decides when a test should terminate early.
package detector

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/convocheck/convocheck/internal/models"
	"github.com/convocheck/convocheck/internal/record"
)

// Config tunes the detection rules and the early-termination policy.
type Config struct {
	// IntentLoopWindow is how many consecutive identical intents count as a
	// loop.
	IntentLoopWindow int
	// StallThreshold is how many turns without a newly satisfied goal count
	// as a stall.
	StallThreshold int
	// MaxTurns caps the conversation length.
	MaxTurns int
	// WarningLimit is how many accumulated warnings force termination.
	WarningLimit int
	// RepetitionMinLength is the minimum normalized response length for the
	// repetition rule to apply.
	RepetitionMinLength int
	// CompoundLoopStall terminates when an intent loop and a stall have both
	// been observed. The rule predates any documented rationale and may be
	// overzealous, so it is tunable rather than hardwired.
	CompoundLoopStall bool
}

// DefaultConfig returns the standard detection thresholds.
func DefaultConfig() Config {
	return Config{
		IntentLoopWindow:    3,
		StallThreshold:      4,
		MaxTurns:            20,
		WarningLimit:        5,
		RepetitionMinLength: 20,
		CompoundLoopStall:   true,
	}
}

// errorPhrases is the fixed set of apology/failure phrasings the
// error-response rule matches against, lowercased.
var errorPhrases = []string{
	"i'm sorry, something went wrong",
	"i apologize, but i'm having trouble",
	"an error occurred",
	"unable to process your request",
	"something went wrong",
	"i'm having technical difficulties",
	"please try again later",
}

// Detector consumes turns for a single conversation and maintains the
// rolling windows the detection rules need. One Detector instance is owned
// exclusively by the conversation driving one test; ProcessTurn and Reset
// must not be called concurrently.
type Detector struct {
	cfg Config
	rec record.Writer

	turnCount          int
	intents            []string
	assistantResponses []string
	lastSatisfaction   map[string]bool
	turnsSinceProgress int
	warningCount       int
	history            []models.FailureSignal

	terminateOnce sync.Once
	terminated    chan struct{}
	reason        string
}

// Option configures a Detector.
type Option func(*Detector)

// WithRecorder attaches an event log that receives every processed turn and
// emitted signal.
func WithRecorder(w record.Writer) Option {
	return func(d *Detector) {
		if w != nil {
			d.rec = w
		}
	}
}

// New creates a Detector with the given config.
func New(cfg Config, opts ...Option) *Detector {
	d := &Detector{
		cfg:        cfg,
		rec:        record.NopWriter{},
		terminated: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Reset clears all rolling state for a new test. It must not be called while
// another goroutine is waiting on a previously returned Terminated channel.
func (d *Detector) Reset() {
	d.turnCount = 0
	d.intents = nil
	d.assistantResponses = nil
	d.lastSatisfaction = nil
	d.turnsSinceProgress = 0
	d.warningCount = 0
	d.history = nil
	d.terminateOnce = sync.Once{}
	d.terminated = make(chan struct{})
	d.reason = ""
}

// ProcessTurn consumes one turn, updates the rolling windows, and returns
// the signals newly detected on this turn. goalSatisfaction is the current
// per-goal satisfaction snapshot; pass nil when no snapshot is available.
func (d *Detector) ProcessTurn(turn models.Turn, goalSatisfaction map[string]bool) []models.FailureSignal {
	d.turnCount++
	now := time.Now()

	if err := d.rec.Write(record.Event{Time: now, Kind: record.EventTurn, TurnIndex: d.turnCount, Payload: turn}); err != nil {
		slog.Debug("failed to record turn event", "error", err)
	}

	var signals []models.FailureSignal

	if turn.Intent != "" {
		d.intents = append(d.intents, turn.Intent)
		if s := d.checkIntentLoop(); s != nil {
			signals = append(signals, *s)
		}
	}

	if turn.Role == models.RoleAssistant {
		d.assistantResponses = append(d.assistantResponses, turn.Content)
		if s := d.checkRepetition(); s != nil {
			signals = append(signals, *s)
		}
		if s := d.checkErrorResponse(turn.Content); s != nil {
			signals = append(signals, *s)
		}
	}

	signals = append(signals, d.checkToolFailures(turn)...)

	signals = append(signals, d.observeGoalSatisfaction(goalSatisfaction)...)

	if d.turnsSinceProgress >= d.cfg.StallThreshold {
		signals = append(signals, models.FailureSignal{
			Kind:       models.SignalStall,
			Severity:   models.SeverityWarning,
			Message:    fmt.Sprintf("no goal newly satisfied for %d turns (threshold %d)", d.turnsSinceProgress, d.cfg.StallThreshold),
			Confidence: 0.8,
			Metadata: map[string]any{
				"turns_since_progress": d.turnsSinceProgress,
				"threshold":            d.cfg.StallThreshold,
			},
		})
	}

	if d.turnCount > d.cfg.MaxTurns {
		signals = append(signals, models.FailureSignal{
			Kind:       models.SignalExcessiveTurns,
			Severity:   models.SeverityError,
			Message:    fmt.Sprintf("conversation reached %d turns, exceeding the cap of %d", d.turnCount, d.cfg.MaxTurns),
			Confidence: 1.0,
			Metadata: map[string]any{
				"turn_count": d.turnCount,
				"max_turns":  d.cfg.MaxTurns,
			},
		})
	}

	for i := range signals {
		signals[i].TurnIndex = d.turnCount
		signals[i].Timestamp = now
		if signals[i].Severity == models.SeverityWarning {
			d.warningCount++
		}
		d.history = append(d.history, signals[i])

		if err := d.rec.Write(record.Event{Time: now, Kind: record.EventSignal, TurnIndex: d.turnCount, Payload: signals[i]}); err != nil {
			slog.Debug("failed to record signal event", "error", err)
		}
	}

	d.evaluateTermination(signals)

	return signals
}

func (d *Detector) checkIntentLoop() *models.FailureSignal {
	n := d.cfg.IntentLoopWindow
	if n <= 0 || len(d.intents) < n {
		return nil
	}

	window := d.intents[len(d.intents)-n:]
	first := window[0]
	for _, intent := range window[1:] {
		if intent != first {
			return nil
		}
	}

	return &models.FailureSignal{
		Kind:       models.SignalIntentLoop,
		Severity:   models.SeverityError,
		Message:    fmt.Sprintf("last %d intents are all %q; the conversation is looping", n, first),
		Confidence: 0.95,
		Metadata: map[string]any{
			"intent": first,
			"window": n,
		},
	}
}

func (d *Detector) checkRepetition() *models.FailureSignal {
	if len(d.assistantResponses) < 2 {
		return nil
	}

	prev := normalizeResponse(d.assistantResponses[len(d.assistantResponses)-2])
	curr := normalizeResponse(d.assistantResponses[len(d.assistantResponses)-1])

	if len(curr) <= d.cfg.RepetitionMinLength || prev != curr {
		return nil
	}

	return &models.FailureSignal{
		Kind:       models.SignalRepetition,
		Severity:   models.SeverityWarning,
		Message:    "assistant repeated its previous response verbatim",
		Confidence: 0.8,
		Metadata: map[string]any{
			"response_excerpt": excerpt(curr, 80),
		},
	}
}

func (d *Detector) checkErrorResponse(content string) *models.FailureSignal {
	lowered := strings.ToLower(content)
	for _, phrase := range errorPhrases {
		if strings.Contains(lowered, phrase) {
			return &models.FailureSignal{
				Kind:       models.SignalErrorResponse,
				Severity:   models.SeverityWarning,
				Message:    fmt.Sprintf("assistant response contains failure phrasing %q", phrase),
				Confidence: 0.7,
				Metadata: map[string]any{
					"phrase": phrase,
				},
			}
		}
	}
	return nil
}

func (d *Detector) checkToolFailures(turn models.Turn) []models.FailureSignal {
	var signals []models.FailureSignal
	for _, tc := range turn.ToolCalls {
		if !tc.Failed() {
			continue
		}

		msg := fmt.Sprintf("tool call %q returned no result", tc.Name)
		if tc.Error != "" {
			msg = fmt.Sprintf("tool call %q failed: %s", tc.Name, tc.Error)
		}

		signals = append(signals, models.FailureSignal{
			Kind:       models.SignalToolFailure,
			Severity:   models.SeverityWarning,
			Message:    msg,
			Confidence: 0.9,
			Metadata: map[string]any{
				"tool":  tc.Name,
				"error": tc.Error,
			},
		})
	}
	return signals
}

// observeGoalSatisfaction compares the new satisfaction snapshot against the
// previous one. Any satisfied goal turning unsatisfied is a regression; a
// goal newly turning satisfied resets the stall counter.
func (d *Detector) observeGoalSatisfaction(current map[string]bool) []models.FailureSignal {
	if current == nil {
		d.turnsSinceProgress++
		return nil
	}

	var signals []models.FailureSignal
	for _, id := range slices.Sorted(maps.Keys(d.lastSatisfaction)) {
		if d.lastSatisfaction[id] && !current[id] {
			signals = append(signals, models.FailureSignal{
				Kind:       models.SignalGoalRegression,
				Severity:   models.SeverityCritical,
				Message:    fmt.Sprintf("goal %q transitioned from satisfied to unsatisfied", id),
				Confidence: 0.95,
				Metadata: map[string]any{
					"goal_id": id,
				},
			})
		}
	}

	progressed := false
	for id, satisfied := range current {
		if satisfied && !d.lastSatisfaction[id] {
			progressed = true
			break
		}
	}

	if progressed {
		d.turnsSinceProgress = 0
	} else {
		d.turnsSinceProgress++
	}

	d.lastSatisfaction = maps.Clone(current)
	return signals
}

func (d *Detector) evaluateTermination(newSignals []models.FailureSignal) {
	for _, s := range newSignals {
		if s.Severity == models.SeverityCritical {
			d.terminate(fmt.Sprintf("critical signal: %s", s.Kind))
			return
		}
		if s.Severity == models.SeverityError && s.Confidence >= 0.9 {
			d.terminate(fmt.Sprintf("high-confidence error signal: %s", s.Kind))
			return
		}
	}

	if d.warningCount >= d.cfg.WarningLimit {
		d.terminate(fmt.Sprintf("accumulated %d warnings (limit %d)", d.warningCount, d.cfg.WarningLimit))
		return
	}

	if d.cfg.CompoundLoopStall && d.hasSignal(models.SignalIntentLoop) && d.hasSignal(models.SignalStall) {
		d.terminate("intent loop and conversation stall observed together")
	}
}

func (d *Detector) hasSignal(kind models.SignalKind) bool {
	for _, s := range d.history {
		if s.Kind == kind {
			return true
		}
	}
	return false
}

func (d *Detector) terminate(reason string) {
	d.terminateOnce.Do(func() {
		d.reason = reason
		close(d.terminated)

		if err := d.rec.Write(record.Event{
			Time:      time.Now(),
			Kind:      record.EventTerminate,
			TurnIndex: d.turnCount,
			Payload:   map[string]any{"reason": reason},
		}); err != nil {
			slog.Debug("failed to record terminate event", "error", err)
		}
	})
}

// Signals returns the full signal history in emission order.
func (d *Detector) Signals() []models.FailureSignal {
	return slices.Clone(d.history)
}

// ShouldTerminate reports whether the early-termination policy has fired.
func (d *Detector) ShouldTerminate() bool {
	select {
	case <-d.terminated:
		return true
	default:
		return false
	}
}

// Terminated returns a channel that is closed when the early-termination
// policy fires, so the orchestrator can observe the decision without
// polling.
func (d *Detector) Terminated() <-chan struct{} {
	return d.terminated
}

// TerminationReason describes why the detector decided to terminate, or
// returns an empty string if it has not.
func (d *Detector) TerminationReason() string {
	return d.reason
}

// TurnCount returns how many turns have been processed since the last Reset.
func (d *Detector) TurnCount() int {
	return d.turnCount
}

var whitespaceRun = strings.NewReplacer("\n", " ", "\t", " ", "\r", " ")

// normalizeResponse lowercases and collapses whitespace so trivially
// reworded repeats still compare equal.
func normalizeResponse(s string) string {
	s = strings.ToLower(whitespaceRun.Replace(s))
	return strings.Join(strings.Fields(s), " ")
}

func excerpt(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
