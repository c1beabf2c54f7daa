package relay

import (
	"regexp"
	"strings"
	"testing"
)

func TestRedactor_Email(t *testing.T) {
	r := NewRedactor()
	got := r.Redact("write to bob.smith+test@example.co.uk today")
	want := "write to [redacted-email] today"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRedactor_Phone(t *testing.T) {
	r := NewRedactor()
	got := r.Redact("call +1 415-555-0199 any time")
	if strings.Contains(got, "415") {
		t.Errorf("phone leaked: %q", got)
	}
	if !strings.Contains(got, "[redacted-phone]") {
		t.Errorf("got %q, want phone placeholder", got)
	}
}

func TestRedactor_ShortNumbersKept(t *testing.T) {
	r := NewRedactor()
	in := "chapter 12, page 345"
	if got := r.Redact(in); got != in {
		t.Errorf("ordinary numbers must survive: %q", got)
	}
}

func TestRedactor_ZeroWidthObfuscation(t *testing.T) {
	r := NewRedactor()
	// Zero-width space and joiner splitting the address.
	in := "alice\u200b@exam\u200dple.com"
	got := r.Redact(in)
	if strings.Contains(got, "example.com") || strings.Contains(got, "alice") {
		t.Errorf("obfuscated address leaked: %q", got)
	}
}

func TestRedactor_FullwidthDigits(t *testing.T) {
	r := NewRedactor()
	// Fullwidth digits normalize to ASCII under NFKC.
	in := "number ＋１４１５５５５０１９９ here"
	got := r.Redact(in)
	if !strings.Contains(got, "[redacted-phone]") {
		t.Errorf("got %q, want fullwidth number redacted", got)
	}
}

func TestRedactor_CustomPattern(t *testing.T) {
	r := NewRedactor(RedactPattern(regexp.MustCompile(`sk-[A-Za-z0-9]{8,}`), "[redacted-key]"))
	got := r.Redact("key sk-abcdef1234567890 leaked")
	if !strings.Contains(got, "[redacted-key]") {
		t.Errorf("got %q, want custom placeholder", got)
	}
}

func TestRedactor_CleanTextUnchanged(t *testing.T) {
	r := NewRedactor()
	in := "nothing sensitive here"
	if got := r.Redact(in); got != in {
		t.Errorf("got %q, want input unchanged", got)
	}
}
