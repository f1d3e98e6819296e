package logging

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// RedactedValue is the replacement for sensitive values.
const RedactedValue = "[REDACTED]"

// maxPreview bounds how much of an event body may reach a log line.
const maxPreview = 48

var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(syt_[A-Za-z0-9_]{10,})`),                        // synapse access tokens
	regexp.MustCompile(`(mct_[A-Za-z0-9_]{10,})`),                        // MAS compat tokens
	regexp.MustCompile(`(?i)bearer\s+([a-zA-Z0-9._-]{20,})`),             // Authorization headers
	regexp.MustCompile(`(?i)(access_token)=([a-zA-Z0-9._-]{16,})`),       // query string tokens
	regexp.MustCompile(`(?i)(key|token|secret|password)[=:]["']?([a-zA-Z0-9+/=_-]{32,})["']?`),
}

// Redact replaces access tokens and other secrets in a string.
func Redact(s string) string {
	result := s
	for _, pattern := range secretPatterns {
		result = pattern.ReplaceAllString(result, RedactedValue)
	}
	return result
}

// Preview returns a redacted, single-line, length-bounded form of a message
// body suitable for debug logs.
func Preview(body string) string {
	body = strings.Join(strings.Fields(Redact(body)), " ")
	if utf8.RuneCountInString(body) <= maxPreview {
		return body
	}
	runes := []rune(body)
	return string(runes[:maxPreview]) + "…"
}
