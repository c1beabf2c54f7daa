package relay

import (
	"context"
	"log/slog"
	"strings"
)

// Pipeline is the iterative coding engine: coders propose, formatters
// polish, testers verify, reviewers judge. The first failing tester or
// reviewer sets Feedback and sends the run back to the coders; a clean
// pass through every stage completes the run. The loop is bounded by
// MaxIterations and a run never ends without a terminal status.
type Pipeline struct {
	coders     []Agent
	formatters []Agent
	testers    []Agent
	reviewers  []Agent

	maxIterations int
	recorder      Recorder
	tracer        Tracer
	logger        *slog.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithCoders sets the agents that draft or revise the implementation.
// They run in order; later coders see earlier coders' output.
func WithCoders(agents ...Agent) PipelineOption {
	return func(p *Pipeline) { p.coders = append(p.coders, agents...) }
}

// WithFormatters sets the best-effort polish agents. Formatter errors are
// logged and skipped; they never fail an iteration.
func WithFormatters(agents ...Agent) PipelineOption {
	return func(p *Pipeline) { p.formatters = append(p.formatters, agents...) }
}

// WithTesters sets the verification agents. The first tester reporting
// TestsPassed=false short-circuits the iteration.
func WithTesters(agents ...Agent) PipelineOption {
	return func(p *Pipeline) { p.testers = append(p.testers, agents...) }
}

// WithReviewers sets the acceptance agents. The first reviewer reporting
// QAPassed=false short-circuits the iteration.
func WithReviewers(agents ...Agent) PipelineOption {
	return func(p *Pipeline) { p.reviewers = append(p.reviewers, agents...) }
}

// WithMaxIterations bounds the propose-verify loop (default: 3).
func WithMaxIterations(n int) PipelineOption {
	return func(p *Pipeline) { p.maxIterations = n }
}

// WithPipelineRecorder journals iteration transitions to the given recorder.
func WithPipelineRecorder(r Recorder) PipelineOption {
	return func(p *Pipeline) { p.recorder = r }
}

// WithPipelineTracer enables span creation for the run and each stage.
func WithPipelineTracer(t Tracer) PipelineOption {
	return func(p *Pipeline) { p.tracer = t }
}

// WithPipelineLogger sets the structured logger.
func WithPipelineLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// NewPipeline creates a pipeline. At least one coder is required; the
// other stages may be empty, in which case they pass trivially.
func NewPipeline(opts ...PipelineOption) (*Pipeline, error) {
	p := &Pipeline{maxIterations: 3}
	for _, opt := range opts {
		opt(p)
	}
	if len(p.coders) == 0 {
		return nil, &ErrInput{Field: "coders", Message: "at least one coder is required"}
	}
	if p.recorder == nil {
		p.recorder = NopRecorder
	}
	if p.logger == nil {
		p.logger = nopLogger
	}
	return p, nil
}

// Run executes the loop for task and returns the terminal state. The
// returned error is reserved for rejected input and cancellation; stage
// failures terminate through State.Status instead.
func (p *Pipeline) Run(ctx context.Context, task string) (*State, error) {
	if strings.TrimSpace(task) == "" {
		return nil, &ErrInput{Field: "task", Message: "task must not be empty"}
	}
	s := NewState(task)
	return p.RunState(ctx, s)
}

// RunState executes the loop on an existing state, preserving accumulated
// transcript and feedback. Used by the session controller for re-runs.
func (p *Pipeline) RunState(ctx context.Context, s *State) (*State, error) {
	if p.tracer != nil {
		var span Span
		ctx, span = p.tracer.Start(ctx, "pipeline.run", IntAttr("max_iterations", p.maxIterations))
		defer span.End()
	}
	p.recorder.Record(ctx, TraceEvent{Kind: KindRunStart, Name: "coding", Data: map[string]any{"task": s.Task}})
	defer func() {
		p.recorder.Record(ctx, TraceEvent{Kind: KindRunEnd, Name: "coding", Data: map[string]any{
			"status": string(s.Status), "reason": s.Reason,
		}})
	}()

	if p.maxIterations <= 0 {
		s.Fail("no iterations")
		return s, nil
	}

	for i := 0; i < p.maxIterations; i++ {
		if err := ctx.Err(); err != nil {
			s.Status = StatusCancelled
			s.Done = true
			return s, err
		}
		p.logger.Info("pipeline iteration", "iteration", i+1, "max", p.maxIterations)
		p.transition(ctx, s, "iteration", i+1)

		if done := p.runCoders(ctx, s); done {
			return s, nil
		}
		p.runFormatters(ctx, s)

		if feedback := p.runGate(ctx, "testing", p.testers, s); feedback {
			continue
		}
		if feedback := p.runGate(ctx, "review", p.reviewers, s); feedback {
			continue
		}

		s.Complete()
		p.logger.Info("pipeline completed", "iterations", i+1)
		return s, nil
	}

	if s.Status == "" {
		s.Fail("max iterations reached")
	}
	return s, nil
}

// runCoders executes every coder in order. Returns true when the run
// terminated (no code produced or a coder fault).
func (p *Pipeline) runCoders(ctx context.Context, s *State) bool {
	for _, c := range p.coders {
		next, err := p.runStage(ctx, "coding", c, s)
		if err != nil {
			s.Fail(err.Error())
			return true
		}
		*s = *next
	}
	if strings.TrimSpace(s.ProposedCode) == "" {
		s.Fail("coder did not return code")
		return true
	}
	return false
}

// runFormatters executes formatters best-effort.
func (p *Pipeline) runFormatters(ctx context.Context, s *State) {
	for _, f := range p.formatters {
		next, err := p.runStage(ctx, "formatting", f, s)
		if err != nil {
			p.logger.Warn("formatter skipped", "formatter", f.Name(), "error", err)
			continue
		}
		*s = *next
	}
}

// runGate executes a verification stage. Returns true when the iteration
// must loop back to the coders with feedback set.
func (p *Pipeline) runGate(ctx context.Context, stage string, agents []Agent, s *State) bool {
	for _, a := range agents {
		next, err := p.runStage(ctx, stage, a, s)
		if err != nil {
			// A gate fault counts as a failed check: the coders get the
			// error text as feedback and another attempt.
			s.Feedback = err.Error()
			p.transition(ctx, s, stage+"_error", 0)
			return true
		}
		*s = *next
		switch stage {
		case "testing":
			if s.TestsPassed != nil && !*s.TestsPassed {
				s.Feedback = s.TestOutput
				p.transition(ctx, s, "tests_failed", 0)
				return true
			}
		case "review":
			if s.QAPassed != nil && !*s.QAPassed {
				s.Feedback = s.QAOutput
				p.transition(ctx, s, "review_failed", 0)
				return true
			}
		}
	}
	return false
}

// runStage runs one agent inside a span.
func (p *Pipeline) runStage(ctx context.Context, stage string, a Agent, s *State) (*State, error) {
	if p.tracer != nil {
		var span Span
		ctx, span = p.tracer.Start(ctx, "pipeline."+stage, StringAttr("agent", a.Name()))
		defer span.End()
	}
	p.recorder.Record(ctx, TraceEvent{Kind: KindNodeEnter, Name: stage, Data: map[string]any{"agent": a.Name()}})
	next, err := a.Run(ctx, s)
	p.recorder.Record(ctx, TraceEvent{Kind: KindNodeExit, Name: stage, Data: map[string]any{
		"agent": a.Name(), "error": errString(err),
	}})
	return next, err
}

func (p *Pipeline) transition(ctx context.Context, s *State, label string, iteration int) {
	data := map[string]any{"label": label}
	if iteration > 0 {
		data["iteration"] = iteration
	}
	if s.Feedback != "" {
		data["feedback"] = s.Feedback
	}
	p.recorder.Record(ctx, TraceEvent{Kind: KindStateTransition, Name: "coding", Data: data})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
