package observer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/relaydev/relay"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// tool wraps a relay.Tool with tracing and metrics.
type tool struct {
	inner relay.Tool
	inst  *Instruments
}

var _ relay.Tool = (*tool)(nil)

// WrapTool instruments every Execute call with a span, an execution
// counter, and a duration histogram.
func WrapTool(t relay.Tool, inst *Instruments) relay.Tool {
	return &tool{inner: t, inst: inst}
}

func (t *tool) Definitions() []relay.ToolDefinition {
	return t.inner.Definitions()
}

func (t *tool) Execute(ctx context.Context, name string, args json.RawMessage) (relay.ToolOutput, error) {
	toolAttr := attribute.String("tool.name", name)
	ctx, span := t.inst.Tracer.Start(ctx, "tool.execute", trace.WithAttributes(toolAttr))
	defer span.End()

	start := time.Now()
	out, err := t.inner.Execute(ctx, name, args)
	elapsed := float64(time.Since(start).Milliseconds())

	status := "ok"
	switch {
	case err != nil:
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case out.Err != "":
		status = "soft_error"
		span.SetAttributes(attribute.String("tool.error", out.Err))
	}
	t.inst.ToolExecutions.Add(ctx, 1,
		metric.WithAttributes(toolAttr, attribute.String("status", status)))
	t.inst.ToolDuration.Record(ctx, elapsed, metric.WithAttributes(toolAttr))
	return out, err
}
