package validation

import (
	"regexp"
)

// sqlInjectionPatterns are heuristic signatures for SQL injection attempts:
// keyword clusters, boolean tautologies, comment sequences, and statement
// separators. Heuristics are defense-in-depth only; downstream stores must
// still use parameterized queries.
var sqlInjectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(select|union|insert|update|delete|drop|alter|create|truncate|exec|execute)\b.*\b(from|into|table|database|where|set)\b`),
	regexp.MustCompile(`(?i)\bunion\s+(all\s+)?select\b`),
	regexp.MustCompile(`(?i)\bdrop\s+table\b`),
	regexp.MustCompile(`(?i)\b(or|and)\b\s+['"]?\d+['"]?\s*=\s*['"]?\d+['"]?`),
	regexp.MustCompile(`(?i)\b(or|and)\b\s+['"][^'"]*['"]\s*=\s*['"]`),
	regexp.MustCompile(`--`),
	regexp.MustCompile(`/\*.*?\*/`),
	regexp.MustCompile(`(?i);\s*(select|insert|update|delete|drop|alter|create|truncate)\b`),
	regexp.MustCompile(`(?i)\bsleep\s*\(|\bbenchmark\s*\(|\bwaitfor\s+delay\b`),
}

// xssPatterns are heuristic signatures for cross-site scripting attempts:
// script and frame tags, javascript: URIs, and inline event handlers.
var xssPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<\s*script[^>]*>`),
	regexp.MustCompile(`(?i)<\s*/\s*script\s*>`),
	regexp.MustCompile(`(?i)<\s*(iframe|object|embed|applet)[^>]*>`),
	regexp.MustCompile(`(?i)javascript\s*:`),
	regexp.MustCompile(`(?i)\bon[a-z]+\s*=\s*["']?[^"'>\s]+`),
	regexp.MustCompile(`(?i)<\s*img[^>]*\bsrc\s*=\s*["']?\s*data:`),
	regexp.MustCompile(`(?i)expression\s*\(`),
}

// DetectSQLInjection reports whether s matches any SQL injection heuristic.
func DetectSQLInjection(s string) bool {
	for _, pattern := range sqlInjectionPatterns {
		if pattern.MatchString(s) {
			return true
		}
	}
	return false
}

// DetectXSS reports whether s matches any cross-site scripting heuristic.
func DetectXSS(s string) bool {
	for _, pattern := range xssPatterns {
		if pattern.MatchString(s) {
			return true
		}
	}
	return false
}

// truncateSample returns a bounded sample of offending content for audit
// events. The original content is never echoed back to the caller.
func truncateSample(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
