package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// ToolDefinition describes a callable tool to the reasoning graph.
// Parameters is a JSON Schema fragment describing the args object.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Tool executes named operations. One implementation may serve several
// names (Definitions returns all of them); Execute dispatches on name.
//
// Soft failures such as bad arguments or empty results go in ToolOutput.Err so
// the model can react. A returned error is a fault and aborts the step.
type Tool interface {
	Definitions() []ToolDefinition
	Execute(ctx context.Context, name string, args json.RawMessage) (ToolOutput, error)
}

// ToolRegistry maps tool names to implementations. Registering a name
// twice replaces the earlier entry. Safe for concurrent use.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewToolRegistry returns an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// Register adds every name t defines to the registry.
func (r *ToolRegistry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, def := range t.Definitions() {
		r.tools[def.Name] = t
	}
}

// Lookup returns the tool registered under name.
func (r *ToolRegistry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns the definitions of every registered tool name.
func (r *ToolRegistry) Definitions() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool, len(r.tools))
	var defs []ToolDefinition
	for name, t := range r.tools {
		if seen[name] {
			continue
		}
		for _, def := range t.Definitions() {
			if def.Name == name {
				defs = append(defs, def)
				seen[name] = true
			}
		}
	}
	return defs
}

// Execute runs the named tool with a fresh correlation id.
func (r *ToolRegistry) Execute(ctx context.Context, call ToolCall) (ToolOutput, error) {
	t, ok := r.Lookup(call.Name)
	if !ok {
		return ToolOutput{}, &ErrInput{Field: "tool", Message: fmt.Sprintf("unknown tool %q", call.Name)}
	}
	out, err := t.Execute(ctx, call.Name, call.Args)
	if err != nil {
		return ToolOutput{}, err
	}
	out.ID = call.ID
	return out, nil
}
