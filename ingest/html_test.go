package ingest

import (
	"strings"
	"testing"
)

func TestStripHTML_Basic(t *testing.T) {
	in := `<html><body><h1>Title</h1><p>First para.</p><p>Second para.</p></body></html>`
	got := StripHTML(in)
	if !strings.Contains(got, "Title") || !strings.Contains(got, "First para.") {
		t.Errorf("got %q", got)
	}
	if strings.Contains(got, "<") {
		t.Errorf("tags survived: %q", got)
	}
}

func TestStripHTML_DropsScriptsAndStyles(t *testing.T) {
	in := `<p>visible</p><script>alert("hidden")</script><style>body { color: red }</style>`
	got := StripHTML(in)
	if strings.Contains(got, "alert") || strings.Contains(got, "color") {
		t.Errorf("script or style leaked: %q", got)
	}
	if !strings.Contains(got, "visible") {
		t.Errorf("got %q, want the paragraph text", got)
	}
}

func TestStripHTML_DecodesEntities(t *testing.T) {
	got := StripHTML("<p>fish &amp; chips &lt;now&gt;</p>")
	if !strings.Contains(got, "fish & chips <now>") {
		t.Errorf("got %q", got)
	}
}

func TestStripHTML_BlockTagsBecomeNewlines(t *testing.T) {
	got := StripHTML("<p>one</p><p>two</p>")
	if !strings.Contains(got, "one\n") {
		t.Errorf("got %q, want block boundaries preserved", got)
	}
}

func TestStripHTML_CollapsesBlankRuns(t *testing.T) {
	got := StripHTML("<div></div><div></div><div></div><p>text</p>")
	if strings.Contains(got, "\n\n\n") {
		t.Errorf("got %q, want at most one blank line", got)
	}
}
