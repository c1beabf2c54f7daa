// Package trace persists pipeline runs as append-only JSONL journals and
// replays them deterministically. The journal is the source of truth for
// debugging and replay; OTEL spans (package observer) are ambient
// observability and never read back.
//
// A Journal owns a directory tree of one file per run:
//
//	<dir>/<session_id>/<run_id>.jsonl
//
// Engines record through relay.Recorder; Journal.Run binds a recorder to
// a session and run, redacts sensitive values, fingerprints tool
// arguments, and appends one JSON object per line. Reading the file back
// yields []Event, from which ReplayCompleter and ReplayTool rebuild a
// run without touching a model or a tool.
package trace

import "time"

// Event is one persisted journal record.
type Event struct {
	// Time is the append timestamp. Monotonic non-decreasing per run.
	Time time.Time `json:"ts"`
	// SessionID and RunID bind the event to its run file.
	SessionID string `json:"session_id"`
	RunID     string `json:"run_id"`
	// Kind is one of the relay.Kind* constants.
	Kind string `json:"kind"`
	// Name is the node, tool, stage, or model the event concerns.
	Name string `json:"name,omitempty"`
	// SpanID correlates prompt with output and request with response.
	SpanID string `json:"span_id,omitempty"`
	// ArgsHash fingerprints tool arguments for replay lookup.
	ArgsHash string `json:"args_hash,omitempty"`
	// Data is the redacted payload.
	Data map[string]any `json:"data,omitempty"`
}
