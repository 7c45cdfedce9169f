package validation

import (
	"regexp"
	"strings"
)

var (
	// tagRegex matches complete markup tags including their attributes.
	tagRegex = regexp.MustCompile(`<[^<>]*>`)
)

// escaper neutralizes quote and angle-bracket characters left after tag
// stripping. The ampersand itself is deliberately not escaped so that
// sanitization stays idempotent.
var escaper = strings.NewReplacer(
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
)

// Sanitize strips markup tags (with their attributes) from s and escapes any
// residual quote or angle-bracket characters. The result contains none of
// < > " ' , so Sanitize(Sanitize(s)) == Sanitize(s) for any s.
func Sanitize(s string) string {
	for {
		stripped := tagRegex.ReplaceAllString(s, "")
		if stripped == s {
			break
		}
		s = stripped
	}
	return escaper.Replace(s)
}

// sanitizeValue deep-sanitizes every string leaf of a decoded JSON value.
func sanitizeValue(value any) any {
	switch v := value.(type) {
	case string:
		return Sanitize(v)
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = sanitizeValue(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = sanitizeValue(item)
		}
		return out
	default:
		return value
	}
}

// SanitizeMap deep-sanitizes every string leaf of a decoded JSON object.
func SanitizeMap(m map[string]any) map[string]any {
	sanitized, _ := sanitizeValue(m).(map[string]any)
	return sanitized
}
