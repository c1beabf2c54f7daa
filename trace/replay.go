package trace

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/relaydev/relay"
)

// ReplayErrNoOutput is returned as completion text in lenient mode when
// the recorded outputs are exhausted and no fallback is configured.
const ReplayErrNoOutput = "[REPLAY ERROR: no recorded output available]"

// ReplayCompleter plays recorded model outputs back in order. Playback is
// sequential: the Nth completion request gets the Nth recorded llm_output,
// regardless of prompt content. When outputs run out, strict mode fails,
// a fallback completes live, and otherwise a sentinel string is returned.
//
// Not safe for concurrent use; a replay run is single-threaded by nature.
type ReplayCompleter struct {
	outputs  []string
	idx      int
	strict   bool
	fallback relay.Completer
	logger   *slog.Logger
}

// ReplayOption configures a ReplayCompleter.
type ReplayOption func(*ReplayCompleter)

// Strict makes exhausted playback an error instead of a sentinel.
func Strict() ReplayOption {
	return func(r *ReplayCompleter) { r.strict = true }
}

// Fallback completes live when playback is exhausted.
func Fallback(c relay.Completer) ReplayOption {
	return func(r *ReplayCompleter) { r.fallback = c }
}

// ReplayLogger sets the structured logger for playback diagnostics.
func ReplayLogger(l *slog.Logger) ReplayOption {
	return func(r *ReplayCompleter) { r.logger = l }
}

// NewReplayCompleter builds a completer from the llm_output events in a
// recorded run.
func NewReplayCompleter(events []Event, opts ...ReplayOption) *ReplayCompleter {
	r := &ReplayCompleter{outputs: llmOutputs(events)}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.DiscardHandler)
	}
	r.logger.Info("replay completer initialized", "recorded_outputs", len(r.outputs))
	return r
}

// Name implements relay.Completer.
func (r *ReplayCompleter) Name() string { return "replay" }

// Complete implements relay.Completer with sequential playback.
func (r *ReplayCompleter) Complete(ctx context.Context, messages []relay.Message) (relay.Completion, error) {
	if r.idx < len(r.outputs) {
		out := r.outputs[r.idx]
		r.idx++
		return relay.Completion{Text: out}, nil
	}
	if r.strict {
		return relay.Completion{}, fmt.Errorf("replay: no recorded output for request %d", r.idx+1)
	}
	if r.fallback != nil {
		r.logger.Warn("replay exhausted, using fallback completer", "request", r.idx+1)
		return r.fallback.Complete(ctx, messages)
	}
	r.logger.Warn("replay exhausted, returning sentinel", "request", r.idx+1)
	return relay.Completion{Text: ReplayErrNoOutput}, nil
}

// Reset rewinds playback to the first recorded output.
func (r *ReplayCompleter) Reset() { r.idx = 0 }

// Remaining returns the number of unplayed outputs.
func (r *ReplayCompleter) Remaining() int { return len(r.outputs) - r.idx }

// llmOutputs extracts recorded completion texts in file order.
func llmOutputs(events []Event) []string {
	var outputs []string
	for _, ev := range events {
		if ev.Kind != relay.KindLLMOutput {
			continue
		}
		if errText, _ := ev.Data["error"].(string); errText != "" {
			continue
		}
		text, _ := ev.Data["text"].(string)
		outputs = append(outputs, text)
	}
	return outputs
}

// ReplayTool serves recorded tool responses, keyed by tool name and
// argument fingerprint. A call with no recorded response returns a
// sentinel result so a replay diverging from the recording stays visible
// without failing the run. Implements relay.Tool for every tool name
// present in the recording.
type ReplayTool struct {
	names     []string
	responses map[string]string
	logger    *slog.Logger
}

// NewReplayTool builds a tool from the paired tool_request/tool_response
// events of a recorded run.
func NewReplayTool(events []Event, logger *slog.Logger) *ReplayTool {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	t := &ReplayTool{responses: make(map[string]string), logger: logger}
	seen := make(map[string]bool)
	for _, ex := range PairExchanges(events) {
		if !seen[ex.Name] {
			seen[ex.Name] = true
			t.names = append(t.names, ex.Name)
		}
		content, _ := ex.Response.Data["content"].(string)
		if errText, _ := ex.Response.Data["error"].(string); errText != "" {
			content = "tool error: " + errText
		}
		t.responses[ex.Name+"#"+ex.ArgsHash] = content
	}
	return t
}

// Definitions implements relay.Tool, exposing every recorded tool name.
func (t *ReplayTool) Definitions() []relay.ToolDefinition {
	defs := make([]relay.ToolDefinition, 0, len(t.names))
	for _, name := range t.names {
		defs = append(defs, relay.ToolDefinition{
			Name:        name,
			Description: "replayed " + name,
		})
	}
	return defs
}

// Execute implements relay.Tool by fingerprint lookup.
func (t *ReplayTool) Execute(_ context.Context, name string, args json.RawMessage) (relay.ToolOutput, error) {
	var generic any
	if len(args) > 0 {
		_ = json.Unmarshal(args, &generic)
	}
	key := name + "#" + HashArgs(generic)
	if content, ok := t.responses[key]; ok {
		return relay.ToolOutput{Content: content}, nil
	}
	t.logger.Warn("no recorded response", "tool", name, "key", key)
	return relay.ToolOutput{Content: fmt.Sprintf("[REPLAY: no recorded response for %s]", name)}, nil
}

// Exchange is one paired tool request and response.
type Exchange struct {
	Name     string
	ArgsHash string
	Request  Event
	Response Event
}

// PairExchanges matches tool_response events to their requests: by span
// id when both carry one, otherwise by tool name and the nearest
// not-earlier request still unpaired.
func PairExchanges(events []Event) []Exchange {
	type pending struct {
		idx int
		ev  Event
	}
	var exchanges []Exchange
	bySpan := make(map[string]int)     // span id -> exchange index
	open := make(map[string][]pending) // tool name -> unpaired requests
	claimed := make(map[int]bool)      // exchange indexes already paired

	for _, ev := range events {
		switch ev.Kind {
		case relay.KindToolRequest:
			exchanges = append(exchanges, Exchange{Name: ev.Name, ArgsHash: ev.ArgsHash, Request: ev})
			idx := len(exchanges) - 1
			if ev.SpanID != "" {
				bySpan[ev.SpanID] = idx
			}
			open[ev.Name] = append(open[ev.Name], pending{idx: idx, ev: ev})
		case relay.KindToolResponse:
			if ev.SpanID != "" {
				if idx, ok := bySpan[ev.SpanID]; ok && exchanges[idx].Response.Kind == "" {
					exchanges[idx].Response = ev
					claimed[idx] = true
					continue
				}
			}
			// Fall back to the earliest unpaired request of the same
			// name whose time is not after the response.
			for _, p := range open[ev.Name] {
				if claimed[p.idx] {
					continue
				}
				if !p.ev.Time.After(ev.Time) {
					exchanges[p.idx].Response = ev
					claimed[p.idx] = true
					break
				}
			}
		}
	}

	// Only fully paired exchanges are useful downstream.
	var paired []Exchange
	for _, ex := range exchanges {
		if ex.Response.Kind != "" {
			paired = append(paired, ex)
		}
	}
	return paired
}
