package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestTool_WriteThenRead(t *testing.T) {
	tool := New(t.TempDir())
	ctx := context.Background()

	out, err := tool.Execute(ctx, "file_write", json.RawMessage(`{"path":"notes/draft.txt","content":"hello file"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Err != "" {
		t.Fatalf("soft error: %s", out.Err)
	}

	out, err = tool.Execute(ctx, "file_read", json.RawMessage(`{"path":"notes/draft.txt"}`))
	if err != nil {
		t.Fatal(err)
	}
	if out.Content != "hello file" {
		t.Errorf("content = %q", out.Content)
	}
}

func TestTool_ReadTruncatesLargeFiles(t *testing.T) {
	ws := t.TempDir()
	big := strings.Repeat("a", maxReadChars+100)
	if err := os.WriteFile(filepath.Join(ws, "big.txt"), []byte(big), 0o644); err != nil {
		t.Fatal(err)
	}
	tool := New(ws)
	out, err := tool.Execute(context.Background(), "file_read", json.RawMessage(`{"path":"big.txt"}`))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(out.Content, "... (truncated)") {
		t.Errorf("content end = %q, want truncation marker", out.Content[len(out.Content)-30:])
	}
}

func TestTool_RejectsEscapes(t *testing.T) {
	tool := New(t.TempDir())
	ctx := context.Background()

	for _, path := range []string{"../outside.txt", "a/../../outside.txt", "/etc/passwd"} {
		args, _ := json.Marshal(map[string]string{"path": path, "content": "x"})
		out, err := tool.Execute(ctx, "file_write", args)
		if err != nil {
			t.Fatalf("escapes must be soft errors: %v", err)
		}
		if out.Err == "" {
			t.Errorf("path %q accepted, want rejection", path)
		}
	}
}

func TestTool_ReadMissingFile(t *testing.T) {
	tool := New(t.TempDir())
	out, err := tool.Execute(context.Background(), "file_read", json.RawMessage(`{"path":"absent.txt"}`))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.Err, "read error:") {
		t.Errorf("err = %q, want a read error", out.Err)
	}
}

func TestTool_EmptyPath(t *testing.T) {
	tool := New(t.TempDir())
	out, err := tool.Execute(context.Background(), "file_read", json.RawMessage(`{"path":" "}`))
	if err != nil {
		t.Fatal(err)
	}
	if out.Err == "" {
		t.Error("blank path must be a soft error")
	}
}

func TestTool_WriteReturnsResolvedPath(t *testing.T) {
	ws := t.TempDir()
	tool := New(ws)
	out, err := tool.Execute(context.Background(), "file_write", json.RawMessage(`{"path":"out.txt","content":"x"}`))
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(ws, "out.txt")
	if out.Content != want {
		t.Errorf("content = %q, want %q", out.Content, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("written file missing: %v", err)
	}
}

func TestTool_Definitions(t *testing.T) {
	defs := New(t.TempDir()).Definitions()
	if len(defs) != 2 {
		t.Fatalf("definitions = %d, want 2", len(defs))
	}
	names := fmt.Sprintf("%s %s", defs[0].Name, defs[1].Name)
	if !strings.Contains(names, "file_read") || !strings.Contains(names, "file_write") {
		t.Errorf("names = %q", names)
	}
}
