package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/relaydev/relay"
)

type captureIndex struct {
	docs []relay.Document
	err  error
}

func (c *captureIndex) Add(_ context.Context, docs []relay.Document) error {
	if c.err != nil {
		return c.err
	}
	c.docs = append(c.docs, docs...)
	return nil
}

func (c *captureIndex) Search(_ context.Context, _ string, _ int) ([]relay.Evidence, error) {
	return nil, nil
}

func TestIngestor_IngestText(t *testing.T) {
	idx := &captureIndex{}
	ing := NewIngestor(idx, WithChunker(NewTextChunker(WithMaxChars(30), WithOverlapChars(0))))

	res, err := ing.IngestText(context.Background(), "First paragraph of notes.\n\nSecond paragraph of notes.", "notes.txt", "Notes")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ChunkCount != len(idx.docs) || res.ChunkCount < 2 {
		t.Fatalf("chunk count = %d with %d docs", res.ChunkCount, len(idx.docs))
	}
	for i, d := range idx.docs {
		if d.Meta["doc_id"] != res.DocumentID {
			t.Errorf("doc %d doc_id = %q, want %q", i, d.Meta["doc_id"], res.DocumentID)
		}
		if d.Meta["uri"] != "notes.txt" || d.Meta["title"] != "Notes" {
			t.Errorf("doc %d meta = %v", i, d.Meta)
		}
		if !strings.HasPrefix(d.ID, res.DocumentID+"#") {
			t.Errorf("doc %d id = %q, want doc id prefix", i, d.ID)
		}
	}
}

func TestIngestor_EmptyInput(t *testing.T) {
	idx := &captureIndex{}
	ing := NewIngestor(idx)
	res, err := ing.IngestText(context.Background(), "  ", "empty.txt", "Empty")
	if err != nil {
		t.Fatal(err)
	}
	if res.ChunkCount != 0 || len(idx.docs) != 0 {
		t.Errorf("got %d chunks and %d docs, want none", res.ChunkCount, len(idx.docs))
	}
}

func TestIngestor_FileExtensionPicksChunker(t *testing.T) {
	idx := &captureIndex{}
	ing := NewIngestor(idx,
		WithMarkdownChunker(NewMarkdownChunker(WithMaxChars(40))),
		WithChunker(NewTextChunker(WithMaxChars(40), WithOverlapChars(0))),
	)
	md := "# One\n\nFirst section body text here.\n\n# Two\n\nSecond section body text here."
	res, err := ing.IngestFile(context.Background(), strings.NewReader(md), "guide.md")
	if err != nil {
		t.Fatal(err)
	}
	if res.ChunkCount < 2 {
		t.Fatalf("chunks = %d, want heading split", res.ChunkCount)
	}
	if idx.docs[0].Meta["title"] != "guide.md" {
		t.Errorf("title = %q, want the base filename", idx.docs[0].Meta["title"])
	}
	var sawHeading bool
	for _, d := range idx.docs {
		if strings.HasPrefix(d.Text, "# Two") {
			sawHeading = true
		}
	}
	if !sawHeading {
		t.Error("markdown chunker should cut at the second heading")
	}
}

func TestIngestor_IndexErrorPropagates(t *testing.T) {
	idx := &captureIndex{err: contextErr{}}
	ing := NewIngestor(idx)
	if _, err := ing.IngestText(context.Background(), "some text", "s", "t"); err == nil {
		t.Fatal("expected the index error")
	}
}

type contextErr struct{}

func (contextErr) Error() string { return "index full" }
