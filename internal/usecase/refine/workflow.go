// Package refine runs the bounded self-critiquing generation workflow:
// analyze -> generate -> observe -> {refine -> observe}* -> done | error.
//
// The workflow never returns an error; failures collapse into a terminal
// error status with a human-readable message. Judge failures fail open
// (the current draft is approved) and refine failures accept the current
// draft, so a degraded provider still yields something deliverable.
package refine

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/leadpilot/leadpilot/internal/domain"
	"github.com/leadpilot/leadpilot/internal/observability"
	"github.com/leadpilot/leadpilot/internal/service/provider"
)

// Status is the workflow state, also used as the progress notification label.
type Status string

// Workflow states. Done and Error are terminal.
const (
	StatusAnalyzing  Status = "analyzing"
	StatusGenerating Status = "generating"
	StatusObserving  Status = "observing"
	StatusRefining   Status = "refining"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// Progress is one notification to the injected sink. A side channel only:
// control flow never depends on what the sink does with it.
type Progress struct {
	Status          Status
	Message         string
	Draft           string
	RefinementCount int
}

// Sink receives a Progress on every state transition. May be nil.
type Sink func(Progress)

// Input is the generation request context.
type Input struct {
	Lead  domain.LeadContext
	Style domain.StyleConstraints
}

// PromptSet parameterizes the workflow for one artifact type. All builders
// must be non-nil; ParseDraft should reject malformed responses with an
// error rather than panicking.
type PromptSet[A any] struct {
	// AnalysisPrompts returns the independent analysis branches run
	// concurrently during the analyzing state. A failed branch degrades to
	// an empty fragment instead of failing the join.
	AnalysisPrompts func(in Input) []provider.Prompt
	DraftPrompt     func(in Input, analysis string) provider.Prompt
	ParseDraft      func(raw string) (A, error)
	JudgePrompt     func(in Input, draft A) provider.Prompt
	RefinePrompt    func(in Input, draft A, reason string) provider.Prompt
	// Render flattens a draft for judge prompts and progress snapshots.
	Render func(a A) string
}

// Result is the terminal outcome of one workflow run.
type Result[A any] struct {
	Success         bool
	Artifact        A
	RefinementCount int
	Error           string
}

// Workflow drives one artifact type through the state machine on top of a
// provider rotation executor.
type Workflow[A any] struct {
	exec           *provider.Executor
	ps             PromptSet[A]
	maxRefinements int
	sink           Sink
}

// Option configures a Workflow.
type Option[A any] func(*Workflow[A])

// WithMaxRefinements overrides the refinement cap (default 3).
func WithMaxRefinements[A any](n int) Option[A] {
	return func(w *Workflow[A]) {
		if n >= 0 {
			w.maxRefinements = n
		}
	}
}

// WithSink attaches a progress sink.
func WithSink[A any](s Sink) Option[A] {
	return func(w *Workflow[A]) { w.sink = s }
}

// New constructs a workflow over exec for the given prompt set.
func New[A any](exec *provider.Executor, ps PromptSet[A], opts ...Option[A]) *Workflow[A] {
	w := &Workflow[A]{exec: exec, ps: ps, maxRefinements: 3}
	for _, o := range opts {
		o(w)
	}
	return w
}

// shouldRefine is the transition function out of the observing state.
func shouldRefine(status Status, needsRefinement bool, refinementCount, maxRefinements int) bool {
	if status == StatusError {
		return false
	}
	return needsRefinement && refinementCount < maxRefinements
}

// Run executes the workflow to a terminal state. It never returns an error:
// a failed run carries Success=false and a message in Error.
func (w *Workflow[A]) Run(ctx domain.Context, in Input) Result[A] {
	var (
		draft           A
		refinementCount int
	)

	w.emit(StatusAnalyzing, "analyzing lead context", "", refinementCount)
	analysis := w.analyze(ctx, in)
	if strings.TrimSpace(analysis) == "" {
		return w.fail("analysis failed: no provider response", refinementCount)
	}

	w.emit(StatusGenerating, "drafting", "", refinementCount)
	draft, ok := provider.Execute(ctx, w.exec, w.ps.DraftPrompt(in, analysis), w.ps.ParseDraft, draft, provider.Callbacks{})
	if !ok {
		return w.fail("draft generation failed", refinementCount)
	}

	for {
		w.emit(StatusObserving, "judging draft", w.ps.Render(draft), refinementCount)

		if refinementCount >= w.maxRefinements {
			// Hard cap: force approval regardless of verdict.
			slog.Info("refinement cap reached, forcing approval",
				slog.Int("refinements", refinementCount))
			break
		}

		raw, ok := provider.ExecuteText(ctx, w.exec, w.ps.JudgePrompt(in, draft), "", provider.Callbacks{})
		if !ok || strings.TrimSpace(raw) == "" {
			// Fail open: deliver the current draft rather than blocking.
			slog.Warn("judge call failed, approving current draft")
			break
		}
		v := parseVerdict(raw)
		if !shouldRefine(StatusObserving, !v.approved, refinementCount, w.maxRefinements) {
			break
		}

		w.emit(StatusRefining, fmt.Sprintf("refining: %s", v.reason), w.ps.Render(draft), refinementCount)
		refined, ok := provider.Execute(ctx, w.exec, w.ps.RefinePrompt(in, draft, v.reason), w.ps.ParseDraft, draft, provider.Callbacks{})
		refinementCount++
		if !ok {
			// Refinement is best effort; the current draft stands.
			slog.Warn("refine call failed, accepting current draft",
				slog.Int("refinements", refinementCount))
			break
		}
		draft = refined
	}

	w.emit(StatusDone, "draft approved", w.ps.Render(draft), refinementCount)
	observability.WorkflowRefinements.Observe(float64(refinementCount))
	return Result[A]{Success: true, Artifact: draft, RefinementCount: refinementCount}
}

// analyze fans the analysis branches out concurrently and joins with
// all-settle semantics: a failed branch contributes nothing, the rest
// still land.
func (w *Workflow[A]) analyze(ctx domain.Context, in Input) string {
	prompts := w.ps.AnalysisPrompts(in)
	fragments := make([]string, len(prompts))
	var wg sync.WaitGroup
	for i, p := range prompts {
		wg.Add(1)
		go func(i int, p provider.Prompt) {
			defer wg.Done()
			text, ok := provider.ExecuteText(ctx, w.exec, p, "", provider.Callbacks{})
			if ok {
				fragments[i] = strings.TrimSpace(text)
			}
		}(i, p)
	}
	wg.Wait()
	nonEmpty := fragments[:0]
	for _, f := range fragments {
		if f != "" {
			nonEmpty = append(nonEmpty, f)
		}
	}
	return strings.Join(nonEmpty, "\n\n")
}

func (w *Workflow[A]) fail(msg string, refinementCount int) Result[A] {
	w.emit(StatusError, msg, "", refinementCount)
	var zero A
	return Result[A]{Success: false, Artifact: zero, RefinementCount: refinementCount, Error: msg}
}

func (w *Workflow[A]) emit(status Status, msg, draft string, refinementCount int) {
	observability.WorkflowTransitionsTotal.WithLabelValues(string(status)).Inc()
	if w.sink == nil {
		return
	}
	w.sink(Progress{Status: status, Message: msg, Draft: draft, RefinementCount: refinementCount})
}
