package email

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestTool_DraftsToOutbox(t *testing.T) {
	outbox := filepath.Join(t.TempDir(), "outbox")
	tool := New(outbox)

	out, err := tool.Execute(context.Background(), "draft_email",
		json.RawMessage(`{"to":"team@example.com","subject":"Weekly update","body":"All green."}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Err != "" {
		t.Fatalf("soft error: %s", out.Err)
	}

	data, err := os.ReadFile(out.Content)
	if err != nil {
		t.Fatalf("draft not written: %v", err)
	}
	want := "To: team@example.com\nSubject: Weekly update\n\nAll green."
	if string(data) != want {
		t.Errorf("draft = %q, want %q", data, want)
	}
	if filepath.Base(out.Content) != "Weekly_update.eml" {
		t.Errorf("filename = %q", filepath.Base(out.Content))
	}
}

func TestTool_MissingRecipient(t *testing.T) {
	tool := New(t.TempDir())
	out, err := tool.Execute(context.Background(), "draft_email", json.RawMessage(`{"subject":"s","body":"b"}`))
	if err != nil {
		t.Fatal(err)
	}
	if out.Err == "" {
		t.Error("missing recipient must be a soft error")
	}
}

func TestDraftName(t *testing.T) {
	cases := []struct{ subject, want string }{
		{"Weekly update", "Weekly_update.eml"},
		{"", "email.eml"},
		{"  ", "email.eml"},
		{"a/b:c?d", "a-b-c-d.eml"},
		{strings.Repeat("x", 80), strings.Repeat("x", maxNameChars) + ".eml"},
	}
	for _, c := range cases {
		if got := draftName(c.subject); got != c.want {
			t.Errorf("draftName(%q) = %q, want %q", c.subject, got, c.want)
		}
	}
}
