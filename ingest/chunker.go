// Package ingest turns raw documents into embedded knowledge-base
// chunks: split → wrap in relay.Document → add to a relay.VectorIndex.
package ingest

import (
	"strings"
)

// Chunker splits text into chunks suitable for embedding.
type Chunker interface {
	Chunk(text string) []string
}

// ChunkerOption configures a chunker.
type ChunkerOption func(*chunkerConfig)

type chunkerConfig struct {
	maxChars     int
	overlapChars int
}

func defaultChunkerConfig() chunkerConfig {
	return chunkerConfig{maxChars: 2000, overlapChars: 200}
}

// WithMaxChars sets the maximum characters per chunk.
func WithMaxChars(n int) ChunkerOption {
	return func(c *chunkerConfig) { c.maxChars = n }
}

// WithOverlapChars sets the overlap carried between consecutive chunks.
func WithOverlapChars(n int) ChunkerOption {
	return func(c *chunkerConfig) { c.overlapChars = n }
}

// TextChunker splits plain text by paragraphs, then sentences, then
// words, merging segments back together with overlap.
type TextChunker struct {
	maxChars     int
	overlapChars int
}

var _ Chunker = (*TextChunker)(nil)

// NewTextChunker creates a TextChunker with the given options.
func NewTextChunker(opts ...ChunkerOption) *TextChunker {
	cfg := defaultChunkerConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &TextChunker{maxChars: cfg.maxChars, overlapChars: cfg.overlapChars}
}

// Chunk implements Chunker.
func (tc *TextChunker) Chunk(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= tc.maxChars {
		return []string{text}
	}
	segments := splitSegments(text, tc.maxChars)
	return mergeWithOverlap(segments, tc.maxChars, tc.overlapChars)
}

// splitSegments breaks text into pieces no longer than maxChars,
// preferring paragraph boundaries, then sentences, then words.
func splitSegments(text string, maxChars int) []string {
	var segments []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if len(p) <= maxChars {
			segments = append(segments, p)
			continue
		}
		for _, s := range splitSentences(p) {
			if len(s) <= maxChars {
				segments = append(segments, s)
			} else {
				segments = append(segments, splitWords(s, maxChars)...)
			}
		}
	}
	return segments
}

// splitSentences splits on ". ", "! ", "? " and newlines, keeping the
// terminator with its sentence.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text)-1; i++ {
		c := text[i]
		if c == '\n' || ((c == '.' || c == '!' || c == '?') && text[i+1] == ' ') {
			s := strings.TrimSpace(text[start : i+1])
			if s != "" {
				out = append(out, s)
			}
			start = i + 1
		}
	}
	if rest := strings.TrimSpace(text[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

func splitWords(text string, maxChars int) []string {
	words := strings.Fields(text)
	var out []string
	var b strings.Builder
	for _, w := range words {
		// Pathological single word longer than a chunk: hard-cut it.
		for len(w) > maxChars {
			out = append(out, w[:maxChars])
			w = w[maxChars:]
		}
		if b.Len() > 0 && b.Len()+1+len(w) > maxChars {
			out = append(out, b.String())
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(w)
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}

// mergeWithOverlap packs segments into chunks up to maxChars, seeding
// each new chunk with the tail of the previous one.
func mergeWithOverlap(segments []string, maxChars, overlapChars int) []string {
	var chunks []string
	var b strings.Builder
	for _, seg := range segments {
		if b.Len() > 0 && b.Len()+1+len(seg) > maxChars {
			chunk := b.String()
			chunks = append(chunks, chunk)
			b.Reset()
			if tail := overlapTail(chunk, overlapChars); tail != "" && len(tail)+1+len(seg) <= maxChars {
				b.WriteString(tail)
			}
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(seg)
	}
	if b.Len() > 0 {
		chunks = append(chunks, b.String())
	}
	return chunks
}

// overlapTail returns the last n characters of text, trimmed to a word
// boundary.
func overlapTail(text string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(text) <= n {
		return text
	}
	tail := text[len(text)-n:]
	if idx := strings.IndexByte(tail, ' '); idx >= 0 {
		tail = tail[idx+1:]
	}
	return strings.TrimSpace(tail)
}
