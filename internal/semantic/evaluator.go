// Package semantic judges individual assistant responses against declared
// expected and forbidden behaviors. The AI judge renders the primary
// verdict; a deterministic heuristic path produces an equivalent structured
// verdict whenever the judge is absent, times out, or returns output that
// cannot be decoded. The fallback is a first-class mode, not an error path.
package semantic

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/convocheck/convocheck/internal/judge"
	"github.com/convocheck/convocheck/internal/models"
	"golang.org/x/sync/singleflight"
)

// StepContext carries everything needed to judge one step of a
// conversation.
type StepContext struct {
	StepID             string   `json:"step_id"`
	UserMessage        string   `json:"user_message"`
	Response           string   `json:"response"`
	ExpectedBehaviors  []string `json:"expected_behaviors,omitempty"`
	ForbiddenBehaviors []string `json:"forbidden_behaviors,omitempty"`
}

// Options tunes the evaluator.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
	// Timeout bounds every judge call. Expiry resolves to the fallback
	// path; it never blocks the conversation loop.
	Timeout time.Duration
	// ChunkSize is how many steps share one batched judge call.
	ChunkSize int
	CacheSize int
	CacheTTL  time.Duration
}

// DefaultOptions returns the standard evaluator settings.
func DefaultOptions() Options {
	return Options{
		Model:     "gpt-4o",
		MaxTokens: 1024,
		Timeout:   30 * time.Second,
		ChunkSize: 5,
		CacheSize: 256,
		CacheTTL:  15 * time.Minute,
	}
}

// Evaluator judges steps. The cache is the only state shared across
// concurrently running conversations; everything else is read-only after
// construction.
type Evaluator struct {
	judge judge.Judge
	opts  Options
	cache *evalCache

	// matchers memoizes compiled behavior strings so they are classified
	// once, never re-parsed per call.
	matchers sync.Map

	// group deduplicates identical in-flight judge calls across
	// conversations.
	group singleflight.Group

	malformedOnce sync.Once
}

// New creates an Evaluator. A nil judge means the judge capability is
// permanently absent; every evaluation then takes the fallback path.
func New(j judge.Judge, opts Options) *Evaluator {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultOptions().ChunkSize
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultOptions().CacheSize
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultOptions().CacheTTL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}

	return &Evaluator{
		judge: j,
		opts:  opts,
		cache: newEvalCache(opts.CacheSize, opts.CacheTTL),
	}
}

// EvaluateStep judges one step. It always returns a well-formed evaluation
// and never propagates an error past its boundary.
func (e *Evaluator) EvaluateStep(ctx context.Context, sc StepContext) *models.SemanticEvaluation {
	key := Fingerprint(sc.StepID, sc.UserMessage, sc.Response)

	if cached, ok := e.cache.get(key); ok {
		return &cached
	}

	if e.judge == nil {
		eval := e.fallback(sc)
		e.cache.put(key, *eval)
		return eval
	}

	v, err, _ := e.group.Do(key, func() (any, error) {
		return e.judgeStep(ctx, sc)
	})
	if err != nil {
		eval := e.fallback(sc)
		e.cache.put(key, *eval)
		return eval
	}

	eval := v.(*models.SemanticEvaluation)
	e.cache.put(key, *eval)
	return eval
}

// EvaluateBatch judges a sequence of steps. The result always has the same
// length and order as the input. Steps are chunked; each chunk shares one
// judge call, and a chunk failure degrades every step in that chunk to the
// fallback path, never a partial exception.
func (e *Evaluator) EvaluateBatch(ctx context.Context, scs []StepContext) []*models.SemanticEvaluation {
	out := make([]*models.SemanticEvaluation, len(scs))

	for start := 0; start < len(scs); start += e.opts.ChunkSize {
		end := min(start+e.opts.ChunkSize, len(scs))
		e.evaluateChunk(ctx, scs[start:end], out[start:end])
	}

	return out
}

// evaluateChunk fills out[i] for every scs[i]. Cached steps are served
// directly; the remainder share one batched judge call.
func (e *Evaluator) evaluateChunk(ctx context.Context, scs []StepContext, out []*models.SemanticEvaluation) {
	keys := make([]string, len(scs))
	var pending []int

	for i, sc := range scs {
		keys[i] = Fingerprint(sc.StepID, sc.UserMessage, sc.Response)
		if cached, ok := e.cache.get(keys[i]); ok {
			out[i] = &cached
			continue
		}
		pending = append(pending, i)
	}

	if len(pending) == 0 {
		return
	}

	if e.judge == nil {
		for _, i := range pending {
			out[i] = e.fallback(scs[i])
			e.cache.put(keys[i], *out[i])
		}
		return
	}

	evals, err := e.judgeChunk(ctx, scs, pending)
	if err != nil {
		for _, i := range pending {
			out[i] = e.fallback(scs[i])
			e.cache.put(keys[i], *out[i])
		}
		return
	}

	for n, i := range pending {
		out[i] = evals[n]
		e.cache.put(keys[i], *evals[n])
	}
}

// judgeStep performs one judge call for a single step.
func (e *Evaluator) judgeStep(ctx context.Context, sc StepContext) (*models.SemanticEvaluation, error) {
	resp, err := e.judge.Execute(ctx, judge.Request{
		Prompt:      buildStepPrompt(sc),
		Model:       e.opts.Model,
		MaxTokens:   e.opts.MaxTokens,
		Temperature: e.opts.Temperature,
		Timeout:     e.opts.Timeout,
	})
	if err != nil {
		return nil, err
	}

	verdict, err := decodeVerdict(resp.Content)
	if err != nil {
		e.logMalformed(err)
		return nil, err
	}

	return verdict.toEvaluation(sc), nil
}

// judgeChunk performs one judge call covering the pending steps of a chunk.
// The reply must be a JSON array with exactly one verdict per step, in
// order.
func (e *Evaluator) judgeChunk(ctx context.Context, scs []StepContext, pending []int) ([]*models.SemanticEvaluation, error) {
	steps := make([]StepContext, len(pending))
	for n, i := range pending {
		steps[n] = scs[i]
	}

	resp, err := e.judge.Execute(ctx, judge.Request{
		Prompt:      buildBatchPrompt(steps),
		Model:       e.opts.Model,
		MaxTokens:   e.opts.MaxTokens * len(steps),
		Temperature: e.opts.Temperature,
		Timeout:     e.opts.Timeout,
	})
	if err != nil {
		return nil, err
	}

	verdicts, err := decodeVerdicts(resp.Content, len(steps))
	if err != nil {
		e.logMalformed(err)
		return nil, err
	}

	evals := make([]*models.SemanticEvaluation, len(steps))
	for n, v := range verdicts {
		evals[n] = v.toEvaluation(steps[n])
	}
	return evals, nil
}

func (e *Evaluator) logMalformed(err error) {
	e.malformedOnce.Do(func() {
		slog.Warn("judge returned malformed output; degrading to fallback evaluations", "error", err)
	})
}

// hardErrorPatterns detect raw failure artifacts leaking into a response.
var hardErrorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\berror\b`),
	regexp.MustCompile(`(?i)\bexception\b`),
	regexp.MustCompile(`(?i)\bfailed\b`),
	regexp.MustCompile(`(?i)\bnull\b`),
	regexp.MustCompile(`(?i)\bundefined\b`),
	regexp.MustCompile(`\bNaN\b`),
}

var softApologyPattern = regexp.MustCompile(`(?i)\b(sorry|apologize|unfortunately)\b`)

// fallback renders the deterministic verdict. It must be reproducible
// without the judge and behave identically whether the judge is permanently
// absent or transiently failing.
func (e *Evaluator) fallback(sc StepContext) *models.SemanticEvaluation {
	lowered := strings.ToLower(sc.Response)

	hardError := false
	for _, re := range hardErrorPatterns {
		if re.MatchString(sc.Response) {
			hardError = true
			break
		}
	}

	var matched, unmatched, unexpected []string
	for _, raw := range sc.ExpectedBehaviors {
		if e.matcher(raw).matches(sc.Response, lowered) {
			matched = append(matched, raw)
		} else {
			unmatched = append(unmatched, raw)
		}
	}
	for _, raw := range sc.ForbiddenBehaviors {
		if e.matcher(raw).matches(sc.Response, lowered) {
			unexpected = append(unexpected, raw)
		}
	}

	apology := softApologyPattern.MatchString(sc.Response)
	passed := !hardError && len(unmatched) == 0 && len(unexpected) == 0

	// Severity escalates in fixed priority order.
	var severity models.SignalSeverity
	var reason string
	switch {
	case hardError:
		severity = models.SeverityCritical
		reason = "response contains a hard error artifact"
	case len(unexpected) > 0:
		severity = models.SeverityError
		reason = fmt.Sprintf("forbidden behavior matched: %s", strings.Join(unexpected, "; "))
	case len(unmatched) > 0:
		severity = models.SeverityWarning
		reason = fmt.Sprintf("expected behavior not found: %s", strings.Join(unmatched, "; "))
	case apology:
		severity = models.SeverityWarning
		reason = "response contains apology language"
	default:
		reason = "all declared behaviors satisfied"
	}

	quality := models.QualityGood
	if hardError || len(unexpected) > 0 {
		quality = models.QualityPoor
	} else if len(unmatched) > 0 || apology {
		quality = models.QualityAcceptable
	}

	confidence := 0.6
	if hardError {
		confidence = 0.9
	}

	return &models.SemanticEvaluation{
		StepID:   sc.StepID,
		Passed:   passed,
		Quality:  quality,
		Severity: severity,
		Validation: models.ValidationDetail{
			Matched:    matched,
			Unmatched:  unmatched,
			Unexpected: unexpected,
		},
		Confidence: confidence,
		Reasoning:  reason,
		IsFallback: true,
	}
}

// matcher returns the compiled form of a behavior string, compiling it at
// most once per evaluator.
func (e *Evaluator) matcher(raw string) behaviorMatcher {
	if m, ok := e.matchers.Load(raw); ok {
		return m.(behaviorMatcher)
	}
	m, _ := e.matchers.LoadOrStore(raw, compileBehavior(raw))
	return m.(behaviorMatcher)
}

// judgeVerdict is the strict wire schema for judge replies. Unknown fields
// are a decode error, which folds into the fallback path.
type judgeVerdict struct {
	Passed     bool     `json:"passed"`
	Quality    string   `json:"quality"`
	Intent     string   `json:"intent"`
	FlowState  string   `json:"flow_state"`
	Matched    []string `json:"matched"`
	Unmatched  []string `json:"unmatched"`
	Unexpected []string `json:"unexpected"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

func (v *judgeVerdict) validate() error {
	switch models.ResponseQuality(v.Quality) {
	case models.QualityGood, models.QualityAcceptable, models.QualityPoor:
	default:
		return fmt.Errorf("unknown quality %q", v.Quality)
	}
	if v.Confidence < 0 || v.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range", v.Confidence)
	}
	return nil
}

func (v *judgeVerdict) toEvaluation(sc StepContext) *models.SemanticEvaluation {
	var severity models.SignalSeverity
	switch {
	case len(v.Unexpected) > 0:
		severity = models.SeverityError
	case len(v.Unmatched) > 0:
		severity = models.SeverityWarning
	}

	return &models.SemanticEvaluation{
		StepID:    sc.StepID,
		Passed:    v.Passed,
		Quality:   models.ResponseQuality(v.Quality),
		Intent:    v.Intent,
		FlowState: models.FlowState(v.FlowState),
		Severity:  severity,
		Validation: models.ValidationDetail{
			Matched:    v.Matched,
			Unmatched:  v.Unmatched,
			Unexpected: v.Unexpected,
		},
		Confidence: v.Confidence,
		Reasoning:  v.Reasoning,
		IsFallback: false,
	}
}

func decodeVerdict(content string) (*judgeVerdict, error) {
	dec := json.NewDecoder(strings.NewReader(stripMarkdownFence(content)))
	dec.DisallowUnknownFields()

	var v judgeVerdict
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decoding judge verdict: %w", err)
	}
	if err := v.validate(); err != nil {
		return nil, fmt.Errorf("invalid judge verdict: %w", err)
	}
	return &v, nil
}

func decodeVerdicts(content string, want int) ([]judgeVerdict, error) {
	dec := json.NewDecoder(strings.NewReader(stripMarkdownFence(content)))
	dec.DisallowUnknownFields()

	var vs []judgeVerdict
	if err := dec.Decode(&vs); err != nil {
		return nil, fmt.Errorf("decoding judge verdicts: %w", err)
	}
	if len(vs) != want {
		return nil, fmt.Errorf("judge returned %d verdicts, want %d", len(vs), want)
	}
	for i := range vs {
		if err := vs[i].validate(); err != nil {
			return nil, fmt.Errorf("invalid judge verdict %d: %w", i, err)
		}
	}
	return vs, nil
}

// stripMarkdownFence removes a surrounding ```json code fence, which judge
// models frequently wrap structured replies in.
func stripMarkdownFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
