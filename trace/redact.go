package trace

import (
	"encoding/json"
	"fmt"
	"strings"
)

// sensitiveKeys are substrings of map keys whose values are never
// persisted. Matching is case-insensitive.
var sensitiveKeys = []string{
	"api_key",
	"token",
	"password",
	"authorization",
	"cookie",
	"secret",
}

const redactedPlaceholder = "[REDACTED]"

// redactData returns a JSON-shaped copy of data with sensitive keys
// replaced and long strings truncated. The input is round-tripped through
// JSON so typed payloads (message slices, raw args) redact uniformly.
func redactData(data map[string]any, maxChars int) map[string]any {
	if len(data) == 0 {
		return nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return map[string]any{"_redact_error": err.Error()}
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return map[string]any{"_redact_error": err.Error()}
	}
	out, _ := redactValue(generic, maxChars).(map[string]any)
	return out
}

func redactValue(v any, maxChars int) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if sensitiveKey(k) {
				out[k] = redactedPlaceholder
				continue
			}
			out[k] = redactValue(item, maxChars)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = redactValue(item, maxChars)
		}
		return out
	case string:
		return truncateValue(val, maxChars)
	default:
		return v
	}
}

func sensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// truncateValue caps s at maxChars runes, marking the cut with the
// original length so a reader knows content is missing.
func truncateValue(s string, maxChars int) string {
	if maxChars <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars]) + fmt.Sprintf("...[TRUNCATED:%d chars]", len(runes))
}
