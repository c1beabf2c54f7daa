// Package email provides the draft_email tool: a mock emailer that
// queues drafts as .eml files instead of sending anything.
package email

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/relaydev/relay"
)

// maxNameChars caps the subject-derived filename.
const maxNameChars = 60

// Tool writes email drafts to an outbox directory. Implements
// relay.Tool.
type Tool struct {
	outbox string
}

var _ relay.Tool = (*Tool)(nil)

// New creates the emailer with outbox as its drafts directory.
func New(outbox string) *Tool {
	return &Tool{outbox: outbox}
}

func (t *Tool) Definitions() []relay.ToolDefinition {
	return []relay.ToolDefinition{{
		Name:        "draft_email",
		Description: "Draft and queue an email (mock, nothing is sent). Returns the stored .eml path.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"to":{"type":"string","description":"Recipient address"},"subject":{"type":"string","description":"Subject line"},"body":{"type":"string","description":"Email body"}},"required":["to","subject","body"]}`),
	}}
}

func (t *Tool) Execute(_ context.Context, _ string, args json.RawMessage) (relay.ToolOutput, error) {
	var params struct {
		To      string `json:"to"`
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return relay.ToolOutput{Err: "invalid args: " + err.Error()}, nil
	}
	if strings.TrimSpace(params.To) == "" {
		return relay.ToolOutput{Err: "to is required"}, nil
	}

	if err := os.MkdirAll(t.outbox, 0o755); err != nil {
		return relay.ToolOutput{Err: "mkdir error: " + err.Error()}, nil
	}

	path := filepath.Join(t.outbox, draftName(params.Subject))
	draft := fmt.Sprintf("To: %s\nSubject: %s\n\n%s", params.To, params.Subject, params.Body)
	if err := os.WriteFile(path, []byte(draft), 0o644); err != nil {
		return relay.ToolOutput{Err: "write error: " + err.Error()}, nil
	}
	return relay.ToolOutput{Content: path}, nil
}

// draftName derives a filesystem-safe .eml name from the subject.
func draftName(subject string) string {
	name := strings.TrimSpace(subject)
	if name == "" {
		name = "email"
	}
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '-'
		}
		return r
	}, name)
	if len(name) > maxNameChars {
		name = name[:maxNameChars]
	}
	return name + ".eml"
}
