package wireconvert

import "strings"

// fixablePatterns maps substrings commonly found in upstream bad-request
// error bodies to the sanitizer that corrects the condition they describe.
// Matching is deliberately loose (case-insensitive substring) since every
// provider phrases these errors differently and the gateway does not know
// the upstream's exact wording in advance.
var fixablePatterns = []struct {
	substr string
	kind   SanitizerKind
}{
	{"text content blocks must be non-empty", SanitizeDropEmptyText},
	{"content block at index", SanitizeDropEmptyText},
	{"empty text", SanitizeDropEmptyText},
	{"tool_result", SanitizePruneOrphanToolResult},
	{"unexpected `tool_use_id`", SanitizePruneOrphanToolResult},
	{"no tool_use block", SanitizePruneOrphanToolResult},
	{"duplicate", SanitizeDedupeTools},
	{"tool names must be unique", SanitizeDedupeTools},
}

var contextOverflowPatterns = []string{
	"context_length_exceeded",
	"maximum context length",
	"prompt is too long",
	"exceeds the model's maximum context",
}

// MatchFixablePattern reports which sanitizer, if any, corrects the
// condition described by a bad-request error body. ok is false when no
// known pattern matches, meaning the error is not auto-fixable.
func MatchFixablePattern(errorBody string) (kind SanitizerKind, ok bool) {
	lower := strings.ToLower(errorBody)
	for _, p := range fixablePatterns {
		if strings.Contains(lower, p.substr) {
			return p.kind, true
		}
	}
	return "", false
}

// IsContextOverflow reports whether errorBody describes a context-window
// overflow. These are never auto-fixed; the caller should return a
// user-facing message instructing the user to compact or restart instead of
// retrying.
func IsContextOverflow(errorBody string) bool {
	lower := strings.ToLower(errorBody)
	for _, p := range contextOverflowPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
