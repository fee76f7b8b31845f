package wireconvert

import (
	"strings"

	"github.com/luthien/gateway/pkg/wire/anthropic"
	"github.com/luthien/gateway/pkg/wire/openai"
)

// SanitizerKind names a single pre-flight sanitizer, used both to report
// which sanitizers fired (for observability) and to select the one
// sanitizer retry-with-fix re-applies after a matching bad-request.
type SanitizerKind string

const (
	SanitizeDropEmptyText         SanitizerKind = "drop_empty_text"
	SanitizePruneOrphanToolResult SanitizerKind = "prune_orphan_tool_results"
	SanitizeDedupeTools           SanitizerKind = "dedupe_tools"
)

// Result reports whether a sanitizer pass changed anything, and which
// individual sanitizers fired.
type Result struct {
	Changed bool
	Applied []SanitizerKind
}

func (r *Result) mark(kind SanitizerKind) {
	r.Changed = true
	r.Applied = append(r.Applied, kind)
}

// SanitizeOpenAI applies every sanitizer to req in place, or only the one
// named by only when it is non-empty, and reports what changed. Idempotent: sanitizing an already-sanitized request is a no-op.
func SanitizeOpenAI(req *openai.Request, only SanitizerKind) *Result {
	result := &Result{}
	if only == "" || only == SanitizeDropEmptyText {
		dropEmptyTextOpenAI(req, result)
	}
	if only == "" || only == SanitizePruneOrphanToolResult {
		pruneOrphanToolResultsOpenAI(req, result)
	}
	if only == "" || only == SanitizeDedupeTools {
		dedupeToolsOpenAI(req, result)
	}
	return result
}

func dropEmptyTextOpenAI(req *openai.Request, result *Result) {
	kept := make([]openai.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Content != nil && strings.TrimSpace(*m.Content) == "" && len(m.ToolCalls) == 0 && m.Role != "tool" {
			result.mark(SanitizeDropEmptyText)
			continue
		}
		kept = append(kept, m)
	}
	req.Messages = kept
}

func pruneOrphanToolResultsOpenAI(req *openai.Request, result *Result) {
	toolCallIDs := map[string]bool{}
	for _, m := range req.Messages {
		for _, tc := range m.ToolCalls {
			toolCallIDs[tc.ID] = true
		}
	}
	kept := make([]openai.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == "tool" && !toolCallIDs[m.ToolCallID] {
			result.mark(SanitizePruneOrphanToolResult)
			continue
		}
		kept = append(kept, m)
	}
	req.Messages = kept
}

func dedupeToolsOpenAI(req *openai.Request, result *Result) {
	seen := map[string]bool{}
	kept := make([]openai.Tool, 0, len(req.Tools))
	for _, t := range req.Tools {
		if seen[t.Function.Name] {
			result.mark(SanitizeDedupeTools)
			continue
		}
		seen[t.Function.Name] = true
		kept = append(kept, t)
	}
	req.Tools = kept
}

// SanitizeAnthropic applies every sanitizer to req in place and reports what
// changed, mirroring SanitizeOpenAI for the Anthropic wire format.
func SanitizeAnthropic(req *anthropic.Request, only SanitizerKind) *Result {
	result := &Result{}
	if only == "" || only == SanitizeDropEmptyText {
		dropEmptyTextAnthropic(req, result)
	}
	if only == "" || only == SanitizePruneOrphanToolResult {
		pruneOrphanToolResultsAnthropic(req, result)
	}
	if only == "" || only == SanitizeDedupeTools {
		dedupeToolsAnthropic(req, result)
	}
	return result
}

func dropEmptyTextAnthropic(req *anthropic.Request, result *Result) {
	kept := make([]anthropic.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		blocks := make([]anthropic.ContentBlock, 0, len(m.Content))
		dropped := 0
		for _, cb := range m.Content {
			if cb.Type == "text" && strings.TrimSpace(cb.Text) == "" {
				dropped++
				continue
			}
			blocks = append(blocks, cb)
		}
		if len(blocks) == 0 {
			// Dropping the last block would empty the message; keep the
			// message with its original (all-empty) content rather than
			// dropping the message entirely, since only the pairing
			// sanitizer (orphan tool_result) is allowed to remove whole
			// messages. Nothing was dropped, so nothing is reported.
			blocks = m.Content
			dropped = 0
		}
		for i := 0; i < dropped; i++ {
			result.mark(SanitizeDropEmptyText)
		}
		m.Content = blocks
		kept = append(kept, m)
	}
	req.Messages = kept
}

func pruneOrphanToolResultsAnthropic(req *anthropic.Request, result *Result) {
	toolUseIDs := map[string]bool{}
	for _, m := range req.Messages {
		for _, cb := range m.Content {
			if cb.Type == "tool_use" {
				toolUseIDs[cb.ID] = true
			}
		}
	}
	kept := make([]anthropic.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		blocks := make([]anthropic.ContentBlock, 0, len(m.Content))
		for _, cb := range m.Content {
			if cb.Type == "tool_result" && !toolUseIDs[cb.ToolUseID] {
				result.mark(SanitizePruneOrphanToolResult)
				continue
			}
			blocks = append(blocks, cb)
		}
		if len(blocks) == 0 && len(m.Content) > 0 {
			continue
		}
		m.Content = blocks
		kept = append(kept, m)
	}
	req.Messages = kept
}

func dedupeToolsAnthropic(req *anthropic.Request, result *Result) {
	seen := map[string]bool{}
	kept := make([]anthropic.Tool, 0, len(req.Tools))
	for _, t := range req.Tools {
		if seen[t.Name] {
			result.mark(SanitizeDedupeTools)
			continue
		}
		seen[t.Name] = true
		kept = append(kept, t)
	}
	req.Tools = kept
}
