// Package ansi removes terminal escape sequences from agent output so
// it can be pattern-matched and displayed as plain text.
package ansi

import "regexp"

// pattern matches the escape sequences the agent CLI emits:
// CSI sequences (colors, styles, cursor movement), OSC sequences
// (terminated by BEL), DCS/SOS/PM/APC string sequences, private mode
// sequences, and charset selection.
var pattern = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]|\x1b\][^\x07]*\x07|\x1b[PX^_][^\x1b]*\x1b\\|\x1b\(B`)

// Strip removes every escape sequence from s. Stripping is run to a
// fixpoint: removing one sequence can splice the surrounding bytes into
// a new well-formed sequence, and Strip must be idempotent.
func Strip(s string) string {
	for {
		out := pattern.ReplaceAllString(s, "")
		if out == s {
			return out
		}
		s = out
	}
}

// StripBytes is Strip for a raw byte chunk.
func StripBytes(b []byte) []byte {
	for {
		out := pattern.ReplaceAll(b, nil)
		if len(out) == len(b) {
			return out
		}
		b = out
	}
}
