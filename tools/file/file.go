// Package file provides file_read and file_write scoped to a
// workspace directory.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/relaydev/relay"
)

// maxReadChars bounds file content returned to the model.
const maxReadChars = 8000

// Tool restricts all paths to a workspace root. Implements relay.Tool.
type Tool struct {
	workspace string
}

var _ relay.Tool = (*Tool)(nil)

// New creates a file tool rooted at workspace.
func New(workspace string) *Tool {
	return &Tool{workspace: filepath.Clean(workspace)}
}

func (t *Tool) Definitions() []relay.ToolDefinition {
	return []relay.ToolDefinition{
		{
			Name:        "file_read",
			Description: "Read a file from the workspace. Large files are truncated.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"Path relative to the workspace"}},"required":["path"]}`),
		},
		{
			Name:        "file_write",
			Description: "Write content to a file in the workspace, creating parent directories as needed. Returns the stored path.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"Path relative to the workspace"},"content":{"type":"string","description":"Content to write"}},"required":["path","content"]}`),
		},
	}
}

func (t *Tool) Execute(_ context.Context, name string, args json.RawMessage) (relay.ToolOutput, error) {
	var params struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return relay.ToolOutput{Err: "invalid args: " + err.Error()}, nil
	}

	resolved, err := t.resolve(params.Path)
	if err != nil {
		return relay.ToolOutput{Err: err.Error()}, nil
	}

	switch name {
	case "file_read":
		return t.read(resolved)
	case "file_write":
		return t.write(resolved, params.Content)
	default:
		return relay.ToolOutput{Err: "unknown file tool: " + name}, nil
	}
}

// resolve joins path to the workspace and rejects escapes.
func (t *Tool) resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("absolute paths not allowed: %s", path)
	}
	resolved := filepath.Join(t.workspace, path)
	if resolved != t.workspace && !strings.HasPrefix(resolved, t.workspace+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace: %s", path)
	}
	return resolved, nil
}

func (t *Tool) read(path string) (relay.ToolOutput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return relay.ToolOutput{Err: "read error: " + err.Error()}, nil
	}
	content := string(data)
	if len(content) > maxReadChars {
		content = content[:maxReadChars] + "\n... (truncated)"
	}
	return relay.ToolOutput{Content: content}, nil
}

func (t *Tool) write(path, content string) (relay.ToolOutput, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return relay.ToolOutput{Err: "mkdir error: " + err.Error()}, nil
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return relay.ToolOutput{Err: "write error: " + err.Error()}, nil
	}
	return relay.ToolOutput{Content: path}, nil
}
