package jsonparser

import (
	"encoding/json"
)

// ParseState reports how ParsePartialJSON arrived at its result, so a
// caller watching a tool call mid-stream can distinguish "this is already
// valid" from "this only parses because we patched it" — the latter is
// good enough to peek at a partial value but not to hand to
// Block.ParsedArguments once the block has actually stopped.
type ParseState string

const (
	// ParseStateUndefinedInput means the fragment was empty — a tool-use
	// block that hasn't received its first argument delta yet.
	ParseStateUndefinedInput ParseState = "undefined-input"

	// ParseStateSuccessful means the fragment parsed as-is.
	ParseStateSuccessful ParseState = "successful-parse"

	// ParseStateRepaired means FixJSON had to close dangling structure
	// before the fragment would parse.
	ParseStateRepaired ParseState = "repaired-parse"

	// ParseStateFailed means parsing failed even after repair — the
	// fragment isn't a prefix of valid JSON at all.
	ParseStateFailed ParseState = "failed-parse"
)

// ParseResult is the outcome of a best-effort partial-JSON parse.
type ParseResult struct {
	Value interface{}
	State ParseState
	Error error
}

// ParsePartialJSON parses a possibly-truncated JSON fragment: a direct
// parse first, falling back to FixJSON's repair pass before a second
// attempt. Used on a streamed tool call's in-progress Arguments and on a
// judge model's raw completion text, both of which can arrive as a
// syntactically incomplete prefix rather than a full document.
func ParsePartialJSON(fragment string) ParseResult {
	if fragment == "" {
		return ParseResult{
			Value: nil,
			State: ParseStateUndefinedInput,
			Error: nil,
		}
	}

	var value interface{}
	err := json.Unmarshal([]byte(fragment), &value)
	if err == nil {
		return ParseResult{
			Value: value,
			State: ParseStateSuccessful,
			Error: nil,
		}
	}

	repaired := FixJSON(fragment)
	if repaired == "" {
		return ParseResult{
			Value: nil,
			State: ParseStateFailed,
			Error: err,
		}
	}

	err = json.Unmarshal([]byte(repaired), &value)
	if err == nil {
		return ParseResult{
			Value: value,
			State: ParseStateRepaired,
			Error: nil,
		}
	}

	return ParseResult{
		Value: nil,
		State: ParseStateFailed,
		Error: err,
	}
}
