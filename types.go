package relay

import "encoding/json"

// Status is the terminal disposition of a pipeline run.
type Status string

const (
	// StatusCompleted marks a run that produced an accepted result.
	StatusCompleted Status = "completed"
	// StatusFailed marks a run that exhausted its budget or hit a fatal error.
	StatusFailed Status = "failed"
	// StatusCancelled marks a run stopped by context cancellation.
	StatusCancelled Status = "cancelled"
)

// Message is one turn in a conversation transcript.
// Role is one of "user", "assistant", "system", or "tool".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	// Name identifies the tool for role "tool" messages.
	Name string `json:"name,omitempty"`
	// ToolCalls carries the invocations requested by an assistant turn.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a single tool invocation requested during a run.
// ID correlates the request with its result in the trace journal.
type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// ToolOutput is the outcome of executing a ToolCall.
// Err carries soft failures (bad input, missing data) back to the model
// as text; hard failures surface as Go errors from Tool.Execute.
type ToolOutput struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Err     string `json:"error,omitempty"`
}

// Evidence is one retrieved unit backing an answer: a chunk of a local
// document or an extract of a fetched web page.
type Evidence struct {
	DocID   string            `json:"doc_id"`
	ChunkID string            `json:"chunk_id"`
	Text    string            `json:"text"`
	Score   float64           `json:"score,omitempty"`
	Meta    map[string]string `json:"meta,omitempty"`
}

// Key returns the dedup identity of the evidence: the source URI when
// present, otherwise the document id, paired with the chunk id.
func (e Evidence) Key() [2]string {
	src := e.Meta["uri"]
	if src == "" {
		src = e.DocID
	}
	return [2]string{src, e.ChunkID}
}

// SubGoal is one step of a decomposed task produced by a planner stage.
type SubGoal struct {
	Goal string `json:"goal"`
	Hint string `json:"hint,omitempty"`
}

// Completion is a model response: the text plus token accounting when the
// backing implementation reports it. Replay completions carry zero usage.
type Completion struct {
	Text         string `json:"text"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
}

// SearchResult is one hit from a web Searcher.
type SearchResult struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Snip  string `json:"snippet,omitempty"`
}

// Document is a unit of ingestable knowledge-base content.
type Document struct {
	ID   string            `json:"id"`
	Text string            `json:"text"`
	Meta map[string]string `json:"meta,omitempty"`
}
