package ingest

import (
	"html"
	"regexp"
	"strings"
)

var (
	scriptRe = regexp.MustCompile(`(?is)<(script|style|noscript)\b.*?</(script|style|noscript)>`)
	blockRe  = regexp.MustCompile(`(?i)</?(p|div|br|li|ul|ol|h[1-6]|tr|table|section|article|blockquote|pre)\b[^>]*>`)
	tagRe    = regexp.MustCompile(`<[^>]*>`)
	blankRe  = regexp.MustCompile(`\n{3,}`)
	spaceRe  = regexp.MustCompile(`[ \t]+`)
)

// StripHTML reduces an HTML document to plain text: scripts and styles
// are dropped, block tags become newlines, entities are decoded.
// A fallback for pages readability cannot parse.
func StripHTML(content string) string {
	content = scriptRe.ReplaceAllString(content, " ")
	content = blockRe.ReplaceAllString(content, "\n")
	content = tagRe.ReplaceAllString(content, " ")
	content = html.UnescapeString(content)
	content = spaceRe.ReplaceAllString(content, " ")

	lines := strings.Split(content, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	content = strings.Join(lines, "\n")
	content = blankRe.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}
