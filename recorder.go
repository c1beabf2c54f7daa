package relay

import "context"

// Trace event kinds written by the engines. The trace package persists
// these to the per-run journal and keys replay on them.
const (
	KindRunStart        = "run_start"
	KindRunEnd          = "run_end"
	KindNodeEnter       = "node_enter"
	KindNodeExit        = "node_exit"
	KindToolRequest     = "tool_request"
	KindToolResponse    = "tool_response"
	KindLLMPrompt       = "llm_prompt"
	KindLLMOutput       = "llm_output"
	KindStateTransition = "state_transition"
)

// TraceEvent is one journal entry as the engines see it. The trace
// package adds timestamps, session/run binding, redaction, and argument
// hashing before persisting.
type TraceEvent struct {
	// Kind is one of the Kind* constants.
	Kind string
	// Name is the node, tool, or model the event concerns.
	Name string
	// SpanID correlates llm_prompt with llm_output and tool_request
	// with tool_response.
	SpanID string
	// Data is the event payload. Sensitive keys are redacted at write.
	Data map[string]any
}

// Recorder receives engine trace events. The trace package provides the
// JSONL-backed implementation via Journal.Run(); a nil-safe no-op is the
// default when no journal is configured.
type Recorder interface {
	Record(ctx context.Context, ev TraceEvent)
}

// NopRecorder discards all events.
var NopRecorder Recorder = nopRecorder{}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, TraceEvent) {}
