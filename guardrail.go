package relay

import (
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Built-in PII patterns. Phone matching requires at least nine characters
// between the first and last digit to avoid flagging ordinary numbers.
var (
	redactEmail = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	redactPhone = regexp.MustCompile(`\+?\d[\d\-\s]{7,}\d`)
)

// zeroWidthChars are Unicode zero-width and invisible characters that can
// split a PII token across an otherwise-matching pattern.
var zeroWidthChars = strings.NewReplacer(
	"\u200b", "", // zero-width space
	"\u200c", "", // zero-width non-joiner
	"\u200d", "", // zero-width joiner
	"\ufeff", "", // zero-width no-break space (BOM)
	"\u2060", "", // word joiner
	"\u00ad", "", // soft hyphen
)

// Redactor rewrites personally identifiable information in outbound text.
// Input is NFKC-normalized and stripped of zero-width characters first, so
// fullwidth digits and obfuscated addresses still match. Built-in patterns
// cover emails and phone numbers; add more with RedactPattern.
//
// Safe for concurrent use after construction.
type Redactor struct {
	rules  []redactRule
	logger *slog.Logger
}

type redactRule struct {
	re          *regexp.Regexp
	placeholder string
}

// RedactorOption configures a Redactor.
type RedactorOption func(*Redactor)

// RedactPattern adds a custom pattern with its replacement placeholder.
func RedactPattern(re *regexp.Regexp, placeholder string) RedactorOption {
	return func(r *Redactor) {
		r.rules = append(r.rules, redactRule{re: re, placeholder: placeholder})
	}
}

// RedactorLogger sets the structured logger. Redactions are logged at
// DEBUG with the rule placeholder, never the matched text.
func RedactorLogger(l *slog.Logger) RedactorOption {
	return func(r *Redactor) { r.logger = l }
}

// NewRedactor creates a redactor with the built-in email and phone rules.
func NewRedactor(opts ...RedactorOption) *Redactor {
	r := &Redactor{
		rules: []redactRule{
			{re: redactEmail, placeholder: "[redacted-email]"},
			{re: redactPhone, placeholder: "[redacted-phone]"},
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = nopLogger
	}
	return r
}

// Redact returns text with every matching rule replaced by its placeholder.
func (r *Redactor) Redact(text string) string {
	cleaned := zeroWidthChars.Replace(text)
	cleaned = norm.NFKC.String(cleaned)
	for _, rule := range r.rules {
		if rule.re.MatchString(cleaned) {
			r.logger.Debug("redacted outbound content", "rule", rule.placeholder)
			cleaned = rule.re.ReplaceAllString(cleaned, rule.placeholder)
		}
	}
	return cleaned
}
