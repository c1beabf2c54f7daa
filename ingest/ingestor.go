package ingest

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/relaydev/relay"
)

// Result holds the outcome of one ingest operation.
type Result struct {
	DocumentID string
	ChunkCount int
}

// Ingestor chunks content and adds it to a vector index as one
// relay.Document per chunk, all sharing a document id in Meta.
type Ingestor struct {
	index   relay.VectorIndex
	chunker Chunker
	mdChunk Chunker
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithChunker overrides the plain-text chunker.
func WithChunker(c Chunker) Option {
	return func(ing *Ingestor) { ing.chunker = c }
}

// WithMarkdownChunker overrides the chunker used for .md content.
func WithMarkdownChunker(c Chunker) Option {
	return func(ing *Ingestor) { ing.mdChunk = c }
}

// NewIngestor creates an Ingestor over index.
func NewIngestor(index relay.VectorIndex, opts ...Option) *Ingestor {
	ing := &Ingestor{
		index:   index,
		chunker: NewTextChunker(),
		mdChunk: NewMarkdownChunker(),
	}
	for _, o := range opts {
		o(ing)
	}
	return ing
}

// IngestText chunks and indexes plain text. source and title land in
// each chunk's Meta so retrieval can cite them.
func (ing *Ingestor) IngestText(ctx context.Context, text, source, title string) (Result, error) {
	return ing.ingest(ctx, ing.chunker, text, source, title)
}

// IngestMarkdown chunks markdown at heading boundaries before indexing.
func (ing *Ingestor) IngestMarkdown(ctx context.Context, md, source, title string) (Result, error) {
	return ing.ingest(ctx, ing.mdChunk, md, source, title)
}

// IngestFile reads r fully and ingests it, choosing the chunker by the
// filename extension.
func (ing *Ingestor) IngestFile(ctx context.Context, r io.Reader, filename string) (Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Result{}, fmt.Errorf("read %s: %w", filename, err)
	}
	title := filepath.Base(filename)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".md", ".markdown":
		return ing.IngestMarkdown(ctx, string(data), filename, title)
	default:
		return ing.IngestText(ctx, string(data), filename, title)
	}
}

func (ing *Ingestor) ingest(ctx context.Context, c Chunker, text, source, title string) (Result, error) {
	chunks := c.Chunk(text)
	if len(chunks) == 0 {
		return Result{}, nil
	}
	docID := relay.NewID()
	docs := make([]relay.Document, len(chunks))
	for i, chunk := range chunks {
		docs[i] = relay.Document{
			ID:   fmt.Sprintf("%s#%d", docID, i),
			Text: chunk,
			Meta: map[string]string{
				"doc_id": docID,
				"uri":    source,
				"title":  title,
			},
		}
	}
	if err := ing.index.Add(ctx, docs); err != nil {
		return Result{}, fmt.Errorf("index %s: %w", source, err)
	}
	return Result{DocumentID: docID, ChunkCount: len(chunks)}, nil
}
