package ingest

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownChunker splits markdown at heading boundaries using the
// goldmark AST, so headings inside fenced code blocks never split a
// chunk. Each section keeps its heading line for retrieval context.
// Sections larger than the budget fall back to the TextChunker.
type MarkdownChunker struct {
	maxChars int
	fallback *TextChunker
	parser   goldmark.Markdown
}

var _ Chunker = (*MarkdownChunker)(nil)

// NewMarkdownChunker creates a MarkdownChunker with the given options.
func NewMarkdownChunker(opts ...ChunkerOption) *MarkdownChunker {
	cfg := defaultChunkerConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &MarkdownChunker{
		maxChars: cfg.maxChars,
		fallback: NewTextChunker(opts...),
		parser:   goldmark.New(),
	}
}

// Chunk implements Chunker.
func (mc *MarkdownChunker) Chunk(md string) []string {
	md = strings.TrimSpace(md)
	if md == "" {
		return nil
	}
	if len(md) <= mc.maxChars {
		return []string{md}
	}

	sections := mc.splitSections(md)
	if len(sections) == 0 {
		return mc.fallback.Chunk(md)
	}

	var chunks []string
	var b strings.Builder
	for _, sec := range sections {
		if len(sec) > mc.maxChars {
			if b.Len() > 0 {
				chunks = append(chunks, b.String())
				b.Reset()
			}
			chunks = append(chunks, mc.fallback.Chunk(sec)...)
			continue
		}
		if b.Len() > 0 && b.Len()+2+len(sec) > mc.maxChars {
			chunks = append(chunks, b.String())
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(sec)
	}
	if b.Len() > 0 {
		chunks = append(chunks, b.String())
	}
	return chunks
}

// splitSections parses md and cuts it at every top-level heading,
// keeping the source text verbatim.
func (mc *MarkdownChunker) splitSections(md string) []string {
	source := []byte(md)
	doc := mc.parser.Parser().Parse(text.NewReader(source))

	var starts []int
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if n.Kind() != ast.KindHeading {
			continue
		}
		lines := n.Lines()
		if lines.Len() == 0 {
			continue
		}
		start := lineStart(source, lines.At(0).Start)
		starts = append(starts, start)
	}
	if len(starts) == 0 {
		return []string{md}
	}

	var sections []string
	if starts[0] > 0 {
		if pre := strings.TrimSpace(md[:starts[0]]); pre != "" {
			sections = append(sections, pre)
		}
	}
	for i, start := range starts {
		end := len(md)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		if sec := strings.TrimSpace(md[start:end]); sec != "" {
			sections = append(sections, sec)
		}
	}
	return sections
}

// lineStart walks back from pos to the start of its line. Heading
// segments begin after the "#" markers; the chunk should keep them.
func lineStart(source []byte, pos int) int {
	for pos > 0 && source[pos-1] != '\n' {
		pos--
	}
	return pos
}
