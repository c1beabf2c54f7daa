package observer

import (
	"context"
	"time"

	"github.com/relaydev/relay"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// completer wraps a relay.Completer with tracing and metrics.
type completer struct {
	inner relay.Completer
	inst  *Instruments
}

var _ relay.Completer = (*completer)(nil)

// WrapCompleter instruments every Complete call with a span, a request
// counter, token usage, and a duration histogram.
func WrapCompleter(c relay.Completer, inst *Instruments) relay.Completer {
	return &completer{inner: c, inst: inst}
}

func (c *completer) Name() string { return c.inner.Name() }

func (c *completer) Complete(ctx context.Context, messages []relay.Message) (relay.Completion, error) {
	model := attribute.String("llm.model", c.inner.Name())
	ctx, span := c.inst.Tracer.Start(ctx, "llm.complete",
		trace.WithAttributes(model, attribute.Int("llm.messages", len(messages))))
	defer span.End()

	start := time.Now()
	out, err := c.inner.Complete(ctx, messages)
	elapsed := float64(time.Since(start).Milliseconds())

	status := attribute.String("status", "ok")
	if err != nil {
		status = attribute.String("status", "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	c.inst.LLMRequests.Add(ctx, 1, metric.WithAttributes(model, status))
	c.inst.LLMDuration.Record(ctx, elapsed, metric.WithAttributes(model))
	if err == nil {
		c.inst.TokenUsage.Add(ctx, int64(out.InputTokens),
			metric.WithAttributes(model, attribute.String("direction", "input")))
		c.inst.TokenUsage.Add(ctx, int64(out.OutputTokens),
			metric.WithAttributes(model, attribute.String("direction", "output")))
		span.SetAttributes(
			attribute.Int("llm.input_tokens", out.InputTokens),
			attribute.Int("llm.output_tokens", out.OutputTokens),
		)
	}
	return out, err
}
