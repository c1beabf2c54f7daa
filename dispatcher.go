package relay

import (
	"context"
	"log/slog"
	"sync"
)

// Request names a registered pipeline and carries its input.
type Request struct {
	// Pipeline is the registered handler name.
	Pipeline string `json:"pipeline"`
	// Task is the work item: a coding task, a user message, a question.
	Task string `json:"task"`
	// SessionID scopes rate limiting, history, and traces. Empty means
	// an anonymous, unscoped run.
	SessionID string `json:"session_id,omitempty"`
	// Inputs carries handler-specific extras.
	Inputs map[string]any `json:"inputs,omitempty"`
}

// Handler executes one run, emitting events as it goes. Returning an
// error without having emitted done produces done{failed} with the error
// text as reason.
type Handler func(ctx context.Context, req Request, em *Emitter) error

// Dispatcher routes requests to named pipeline handlers and returns the
// run as an event stream. Every dispatch passes the per-session rate
// gate first and terminates in exactly one done event, whatever the
// handler does.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler

	limiter *SessionLimiter
	tracer  Tracer
	logger  *slog.Logger
	buffer  int
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLimiter replaces the default 5-per-10s session limiter.
func WithLimiter(l *SessionLimiter) DispatcherOption {
	return func(d *Dispatcher) { d.limiter = l }
}

// WithDispatcherTracer enables a span per dispatch.
func WithDispatcherTracer(t Tracer) DispatcherOption {
	return func(d *Dispatcher) { d.tracer = t }
}

// WithDispatcherLogger sets the structured logger.
func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// WithStreamBuffer sets the event channel capacity (default: 64).
func WithStreamBuffer(n int) DispatcherOption {
	return func(d *Dispatcher) { d.buffer = n }
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{handlers: make(map[string]Handler), buffer: 64}
	for _, opt := range opts {
		opt(d)
	}
	if d.limiter == nil {
		d.limiter = NewSessionLimiter()
	}
	if d.logger == nil {
		d.logger = nopLogger
	}
	return d
}

// Register binds name to handler. Registering an existing name replaces
// the previous handler.
func (d *Dispatcher) Register(name string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = h
}

// Dispatch starts a run and returns its stream. Rejections (unknown
// pipeline, empty task, rate limit) happen before any goroutine starts,
// so a non-nil error means no stream and no consumed budget beyond the
// rate token.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Stream, error) {
	if req.Task == "" {
		return nil, &ErrInput{Field: "task", Message: "task must not be empty"}
	}
	d.mu.RLock()
	handler, ok := d.handlers[req.Pipeline]
	d.mu.RUnlock()
	if !ok {
		return nil, &ErrInput{Field: "pipeline", Message: "unknown pipeline " + req.Pipeline}
	}
	if err := d.limiter.Allow(req.SessionID); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	ch := make(chan Event, d.buffer)
	stream := &Stream{ch: ch, cancel: cancel}
	em := &Emitter{ctx: runCtx, ch: ch}

	go func() {
		defer close(ch)
		defer cancel()
		if d.tracer != nil {
			var span Span
			runCtx, span = d.tracer.Start(runCtx, "dispatch",
				StringAttr("pipeline", req.Pipeline), StringAttr("session", req.SessionID))
			defer span.End()
		}
		d.logger.Info("dispatching", "pipeline", req.Pipeline, "session", req.SessionID)
		err := handler(runCtx, req, em)

		// Terminal contract: exactly one done per dispatch. The flush
		// bypasses the emitter because Emit drops events once the run
		// context is cancelled.
		if em.done {
			return
		}
		final := Event{Kind: EventDone, Status: StatusCompleted}
		switch {
		case runCtx.Err() != nil:
			final.Status = StatusCancelled
		case err != nil:
			final.Status = StatusFailed
			final.Reason = err.Error()
			d.logger.Warn("pipeline run failed", "pipeline", req.Pipeline, "error", err)
		}
		select {
		case ch <- final:
		default:
			// Consumer gone and buffer full; the stream is already dead.
		}
	}()
	return stream, nil
}

// CodingHandler adapts a Pipeline to the dispatcher. It reports the test
// and review artifacts, emits the accepted code as the answer, and closes
// with the pipeline's terminal status.
func CodingHandler(p *Pipeline) Handler {
	return func(ctx context.Context, req Request, em *Emitter) error {
		em.Log("coding pipeline started")
		s, err := p.Run(ctx, req.Task)
		if err != nil {
			return err
		}
		report := map[string]any{"test_output": s.TestOutput, "qa_output": s.QAOutput}
		if s.TestsPassed != nil {
			report["tests_passed"] = *s.TestsPassed
		}
		if s.QAPassed != nil {
			report["qa_passed"] = *s.QAPassed
		}
		em.Emit(Event{Kind: EventReport, Data: report})
		if s.Status == StatusCompleted {
			em.Emit(Event{Kind: EventAnswer, Text: s.ProposedCode})
		}
		em.Emit(Event{Kind: EventDone, Status: s.Status, Reason: s.Reason})
		return nil
	}
}

// GraphHandler adapts a Graph to the dispatcher. Assistant messages
// stream as tokens; the final briefing is the answer.
func GraphHandler(g *Graph) Handler {
	return func(ctx context.Context, req Request, em *Emitter) error {
		s, err := g.Run(ctx, req.SessionID, req.Task, em.Emit)
		if err != nil {
			return err
		}
		if s.Status == StatusCompleted {
			em.Emit(Event{Kind: EventAnswer, Text: s.LastAssistant()})
		}
		em.Emit(Event{Kind: EventDone, Status: s.Status, Reason: s.Reason})
		return nil
	}
}

// RAGHandler adapts an Orchestrator to the dispatcher. The orchestrator
// emits the answer and sources itself.
func RAGHandler(o *Orchestrator) Handler {
	return func(ctx context.Context, req Request, em *Emitter) error {
		s, err := o.Answer(ctx, req.SessionID, req.Task, em.Emit)
		if err != nil {
			return err
		}
		em.Emit(Event{Kind: EventDone, Status: s.Status, Reason: s.Reason})
		return nil
	}
}
