package session

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/agent-console/backend/internal/event"
)

// lineEvents feeds the chunks through a fresh pipeline and returns the
// per-line classified events, ignoring the chunk-level output events
// whose boundaries depend on how the input was split.
func lineEvents(t *testing.T, chunks [][]byte) []event.Event {
	s := newSession("prop-session", t.TempDir(), "", "true", "", nil)
	for _, chunk := range chunks {
		s.handleOutput(chunk)
	}

	var out []event.Event
	for _, ev := range collect(s) {
		if ev.Type != event.TypeOutput {
			out = append(out, ev)
		}
	}
	return out
}

// chunkAt splits data at the given cut points (interpreted modulo the
// remaining length), modelling arbitrary pty read boundaries.
func chunkAt(data []byte, cuts []int) [][]byte {
	var chunks [][]byte
	rest := data
	for _, cut := range cuts {
		if len(rest) == 0 {
			break
		}
		n := cut % len(rest)
		if n == 0 {
			continue
		}
		chunks = append(chunks, rest[:n])
		rest = rest[n:]
	}
	if len(rest) > 0 {
		chunks = append(chunks, rest)
	}
	return chunks
}

// Classification must not depend on how the stream was chunked: any
// split of the same bytes yields the same line events as feeding them
// in one piece.
func TestLineClassificationChunkingInvariantProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	lineGen := gen.OneConstOf(
		"Reading file.txt",
		"Writing out.go",
		"Running go build ./...",
		"Read 42 lines",
		"Do you want to run this command? [y/n]",
		"Thinking about the next step",
		"plain output line",
		"\x1b[31mcolored output\x1b[0m",
	)

	properties.Property("line events are invariant under rechunking", prop.ForAll(
		func(lines []string, cuts []int) bool {
			var data []byte
			for _, line := range lines {
				data = append(data, line...)
				data = append(data, '\n')
			}

			whole := lineEvents(t, [][]byte{data})
			split := lineEvents(t, chunkAt(data, cuts))

			if len(whole) != len(split) {
				t.Logf("event count differs: whole=%d split=%d", len(whole), len(split))
				return false
			}
			for i := range whole {
				if whole[i].Type != split[i].Type ||
					whole[i].Text != split[i].Text ||
					whole[i].Tool != split[i].Tool ||
					whole[i].Detail != split[i].Detail {
					t.Logf("event %d differs: %+v vs %+v", i, whole[i], split[i])
					return false
				}
			}
			return true
		},
		gen.SliceOfN(8, lineGen),
		gen.SliceOfN(6, gen.IntRange(1, 64)),
	))

	properties.TestingRun(t)
}
