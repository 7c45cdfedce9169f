package seclog

import (
	"strings"
)

const (
	redactedPlaceholder = "[REDACTED]"

	// partialRevealLength is the number of leading characters kept when a
	// sensitive string value is long enough to partially reveal.
	partialRevealLength = 4
)

// defaultSensitiveFields is the vocabulary of metadata keys whose values must
// never reach a log sink in clear text. Matching is case-insensitive and by
// substring, so "refresh_token" and "Authorization" both match.
var defaultSensitiveFields = []string{
	"password",
	"token",
	"secret",
	"key",
	"authorization",
	"cookie",
	"session",
	"csrf",
	"national_id",
	"cpf",
	"card_number",
	"cvv",
}

// redactor replaces sensitive metadata values before emission.
type redactor struct {
	fields []string
}

func newRedactor() *redactor {
	fields := make([]string, len(defaultSensitiveFields))
	copy(fields, defaultSensitiveFields)
	return &redactor{fields: fields}
}

func (r *redactor) add(fields ...string) {
	for _, field := range fields {
		field = strings.ToLower(strings.TrimSpace(field))
		if field != "" {
			r.fields = append(r.fields, field)
		}
	}
}

// isSensitive reports whether a metadata key matches the sensitive vocabulary.
func (r *redactor) isSensitive(key string) bool {
	lowered := strings.ToLower(key)
	for _, field := range r.fields {
		if strings.Contains(lowered, field) {
			return true
		}
	}
	return false
}

// redactMap returns a deep copy of metadata with sensitive values replaced.
// The input map is never mutated; events are immutable once emitted.
func (r *redactor) redactMap(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	out := make(map[string]any, len(metadata))
	for key, value := range metadata {
		if r.isSensitive(key) {
			out[key] = redactValue(value)
			continue
		}
		out[key] = r.redactNested(value)
	}
	return out
}

// redactNested walks nested maps and slices so sensitive keys are caught at
// any depth.
func (r *redactor) redactNested(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return r.redactMap(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = r.redactNested(item)
		}
		return out
	default:
		return value
	}
}

// redactValue replaces a sensitive value, keeping a short prefix for string
// values long enough that the prefix leaks nothing useful.
func redactValue(value any) any {
	s, ok := value.(string)
	if !ok {
		return redactedPlaceholder
	}
	if len(s) > partialRevealLength*2 {
		return s[:partialRevealLength] + "..." + redactedPlaceholder
	}
	return redactedPlaceholder
}
