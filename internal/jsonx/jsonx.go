// Package jsonx parses structured model output leniently. Models wrap
// JSON in code fences, add trailing commas, or leave quotes unbalanced;
// callers here want the object if it is recoverable and a clean error if
// it is not.
package jsonx

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Object extracts a JSON object from text. It strips code fences, cuts to
// the outermost braces, and falls back to jsonrepair before giving up.
func Object(text string) (json.RawMessage, error) {
	candidate := extract(text, '{', '}')
	if candidate == "" {
		return nil, fmt.Errorf("no JSON object in output")
	}
	if json.Valid([]byte(candidate)) {
		return json.RawMessage(candidate), nil
	}
	fixed, err := jsonrepair.JSONRepair(candidate)
	if err != nil || !json.Valid([]byte(fixed)) {
		return nil, fmt.Errorf("unrecoverable JSON object: %q", snippet(candidate))
	}
	return json.RawMessage(fixed), nil
}

// Array extracts a JSON array from text with the same recovery as Object.
func Array(text string) (json.RawMessage, error) {
	candidate := extract(text, '[', ']')
	if candidate == "" {
		return nil, fmt.Errorf("no JSON array in output")
	}
	if json.Valid([]byte(candidate)) {
		return json.RawMessage(candidate), nil
	}
	fixed, err := jsonrepair.JSONRepair(candidate)
	if err != nil || !json.Valid([]byte(fixed)) {
		return nil, fmt.Errorf("unrecoverable JSON array: %q", snippet(candidate))
	}
	return json.RawMessage(fixed), nil
}

// DecodeArray parses a JSON array from text into v, repairing when needed.
func DecodeArray(text string, v any) error {
	raw, err := Array(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode repaired JSON: %w", err)
	}
	return nil
}

// Decode parses a JSON object from text into v, repairing when needed.
func Decode(text string, v any) error {
	raw, err := Object(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode repaired JSON: %w", err)
	}
	return nil
}

// extract returns the substring from the first open delimiter to the last
// close delimiter, after removing a surrounding markdown fence.
func extract(text string, open, closing byte) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if i := strings.Index(s, "\n"); i >= 0 {
			s = s[i+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.IndexByte(s, open)
	end := strings.LastIndexByte(s, closing)
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func snippet(s string) string {
	if len(s) > 80 {
		return s[:80] + "..."
	}
	return s
}
