// Package classify assigns a semantic category to single lines of
// agent CLI output. The agent has no structured output protocol, so
// classification is heuristic pattern matching over stripped text.
package classify

import (
	"regexp"
	"strings"
)

// Category is the semantic kind of one output line.
type Category int

const (
	// PlainText is the default category; every line that matches
	// nothing else lands here, so classification cannot fail.
	PlainText Category = iota

	// PermissionPrompt is an interactive confirmation blocking the
	// agent's progress. Highest precedence: a prompt miscategorized as
	// narration would stall the conversation.
	PermissionPrompt

	// ToolStart is the agent beginning an operation (read, write,
	// execute, search...).
	ToolStart

	// ToolEnd is the agent reporting an operation finished.
	ToolEnd

	// Thinking is reasoning-in-progress narration.
	Thinking
)

// Result carries the category and, for tool lines, the tool name and
// captured detail (a filename, a command, a line count).
type Result struct {
	Category Category
	Tool     string
	Detail   string
}

// rule is one entry of the ordered match table. Precedence is encoded
// purely by table position: the first matching rule wins.
type rule struct {
	category Category

	// tool is the fixed tool name for this rule; empty when the name
	// comes from a capture group instead.
	tool string

	re *regexp.Regexp

	// toolGroup is the capture group holding the tool name, 0 if the
	// rule carries a fixed name.
	toolGroup int

	// detailGroup is the capture group holding the detail; 0 means the
	// whole trimmed line is the detail.
	detailGroup int
}

var rules = []rule{
	// 1. Permission prompts. Bracketed affordances, explicit yes/no
	// pairs, and the agent's "Do you want to ...?" confirmation menu.
	{category: PermissionPrompt, re: regexp.MustCompile(`(?i)\[y/n\]`)},
	{category: PermissionPrompt, re: regexp.MustCompile(`(?i)\(y(?:es)?/n(?:o)?\)`)},
	{category: PermissionPrompt, re: regexp.MustCompile(`Do you want to (?:create|write|delete|modify|update|remove|edit|overwrite|run|execute|make) .+\?`)},
	{category: PermissionPrompt, re: regexp.MustCompile(`(?i)\b(?:proceed|approve|continue|allow)\?`)},
	{category: PermissionPrompt, re: regexp.MustCompile(`(?i)allow this .+\?`)},

	// 2. Tool starts. One verb phrasing per tool, plus the compact
	// "Tool(arg)" action form the agent renders for its own calls.
	{category: ToolStart, tool: "Read", re: regexp.MustCompile(`^Reading (.+)$`), detailGroup: 1},
	{category: ToolStart, tool: "Write", re: regexp.MustCompile(`^Writing (.+)$`), detailGroup: 1},
	{category: ToolStart, tool: "Edit", re: regexp.MustCompile(`^Editing (.+)$`), detailGroup: 1},
	{category: ToolStart, tool: "Bash", re: regexp.MustCompile(`^(?:Running|Executing) (.+)$`), detailGroup: 1},
	{category: ToolStart, tool: "Search", re: regexp.MustCompile(`^Searching (?:for )?(.+)$`), detailGroup: 1},
	{category: ToolStart, tool: "Fetch", re: regexp.MustCompile(`^Fetching (.+)$`), detailGroup: 1},
	{category: ToolStart, tool: "Task", re: regexp.MustCompile(`^Delegating (?:to )?(.+)$`), detailGroup: 1},
	{category: ToolStart, re: regexp.MustCompile(`(?:●\s*)?(Read|Write|Edit|Bash|Search|Fetch|Task)\(([^)]+)\)`), toolGroup: 1, detailGroup: 2},

	// 3. Tool ends. Completion phrasings per tool.
	{category: ToolEnd, tool: "Read", re: regexp.MustCompile(`(?:⎿\s*)?Read (\d+) lines?`), detailGroup: 1},
	{category: ToolEnd, tool: "Write", re: regexp.MustCompile(`^(?:⎿\s*)?Wrote (.+)$`), detailGroup: 1},
	{category: ToolEnd, tool: "Write", re: regexp.MustCompile(`(?i)file written`)},
	{category: ToolEnd, tool: "Edit", re: regexp.MustCompile(`^(?:⎿\s*)?Updated (.+)$`), detailGroup: 1},
	{category: ToolEnd, tool: "Bash", re: regexp.MustCompile(`(?i)exit code (\d+)`), detailGroup: 1},
	{category: ToolEnd, tool: "Search", re: regexp.MustCompile(`(?i)^(?:⎿\s*)?Found (\d+) (?:files?|matches)`), detailGroup: 1},

	// 4. Thinking narration. The styling-based variant is handled
	// separately in Classify because it needs the raw bytes.
	{category: Thinking, re: regexp.MustCompile(`(?i)^(?:✻\s*)?(?:thinking|pondering|musing|reflecting|reasoning|brainstorming)(?:\.{3}|…)?`)},
	{category: Thinking, re: regexp.MustCompile(`^·\s.*…`)},
}

// Escape codes conventionally used for reasoning text. Checked against
// the raw line because stripping destroys the signal.
const (
	dimCode    = "\x1b[2m"
	italicCode = "\x1b[3m"
)

// Classify assigns a category to one line of output. line is the
// ANSI-stripped text used for matching; raw is the original unstripped
// line, consulted only for dim/italic styling. The caller filters
// whitespace-only lines before calling.
func Classify(line, raw string) Result {
	trimmed := strings.TrimSpace(line)

	for _, r := range rules {
		m := r.re.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		res := Result{Category: r.category, Tool: r.tool}
		if r.toolGroup > 0 {
			res.Tool = m[r.toolGroup]
		}
		if r.detailGroup > 0 {
			res.Detail = strings.TrimSpace(m[r.detailGroup])
		} else if r.category == ToolStart || r.category == ToolEnd {
			res.Detail = trimmed
		}
		return res
	}

	if strings.Contains(raw, dimCode) || strings.Contains(raw, italicCode) {
		return Result{Category: Thinking}
	}

	return Result{Category: PlainText}
}
