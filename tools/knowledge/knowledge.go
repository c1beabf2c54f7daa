// Package knowledge exposes the vector knowledge base as the kb_search
// and kb_add tools.
package knowledge

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/relaydev/relay"
)

// defaultK is the result count when the caller does not specify one.
const defaultK = 5

// Tool serves kb_search and kb_add over a relay.VectorIndex.
type Tool struct {
	index relay.VectorIndex
}

var _ relay.Tool = (*Tool)(nil)

// New creates the knowledge tool.
func New(index relay.VectorIndex) *Tool {
	return &Tool{index: index}
}

func (t *Tool) Definitions() []relay.ToolDefinition {
	return []relay.ToolDefinition{
		{
			Name:        "kb_search",
			Description: "Search the internal knowledge base. Returns a JSON list of {id, text, metadata}.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"query":{"type":"string","description":"Search query"},"k":{"type":"integer","description":"Number of results (default 5)"}},"required":["query"]}`),
		},
		{
			Name:        "kb_add",
			Description: "Add a document to the internal knowledge base.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"id":{"type":"string","description":"Document id (optional)"},"text":{"type":"string","description":"Document text"},"metadata":{"type":"object","description":"String key/value metadata"}},"required":["text"]}`),
		},
	}
}

func (t *Tool) Execute(ctx context.Context, name string, args json.RawMessage) (relay.ToolOutput, error) {
	switch name {
	case "kb_search":
		return t.search(ctx, args)
	case "kb_add":
		return t.add(ctx, args)
	default:
		return relay.ToolOutput{Err: "unknown knowledge tool: " + name}, nil
	}
}

func (t *Tool) search(ctx context.Context, args json.RawMessage) (relay.ToolOutput, error) {
	var params struct {
		Query string `json:"query"`
		K     int    `json:"k"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &params); err != nil {
			return relay.ToolOutput{Err: "invalid args: " + err.Error()}, nil
		}
	}
	if strings.TrimSpace(params.Query) == "" {
		return relay.ToolOutput{Err: "query is required"}, nil
	}
	if params.K <= 0 {
		params.K = defaultK
	}
	hits, err := t.index.Search(ctx, params.Query, params.K)
	if err != nil {
		return relay.ToolOutput{Err: "kb search error: " + err.Error()}, nil
	}
	type hit struct {
		ID       string            `json:"id"`
		Text     string            `json:"text"`
		Metadata map[string]string `json:"metadata,omitempty"`
	}
	out := make([]hit, 0, len(hits))
	for _, h := range hits {
		out = append(out, hit{ID: h.DocID, Text: h.Text, Metadata: h.Meta})
	}
	data, err := json.Marshal(out)
	if err != nil {
		return relay.ToolOutput{Err: "encode results: " + err.Error()}, nil
	}
	return relay.ToolOutput{Content: string(data)}, nil
}

func (t *Tool) add(ctx context.Context, args json.RawMessage) (relay.ToolOutput, error) {
	var params struct {
		ID       string            `json:"id"`
		Text     string            `json:"text"`
		Metadata map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return relay.ToolOutput{Err: "invalid args: " + err.Error()}, nil
	}
	if strings.TrimSpace(params.Text) == "" {
		return relay.ToolOutput{Err: "text is required"}, nil
	}
	doc := relay.Document{ID: params.ID, Text: params.Text, Meta: params.Metadata}
	if err := t.index.Add(ctx, []relay.Document{doc}); err != nil {
		return relay.ToolOutput{Err: "kb add error: " + err.Error()}, nil
	}
	return relay.ToolOutput{Content: "ok"}, nil
}
