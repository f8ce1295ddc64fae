// Package plan implements the Plan data model and the Plan Parser (spec ss2,
// C2): converting planner text into a Task/Plan graph, validating the
// dependency-index invariant, and recording the "$k" argument substitution
// tokens that the Task Fetching Unit resolves against the Observation Log at
// dispatch time.
package plan

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tinyagent-go/llmcompiler/runtime/compiler/tools"
)

// EndOfPlan is the sentinel the planner emits once no more tasks follow.
const EndOfPlan = "<END_OF_PLAN>"

// thoughtLine and actionLine mirror the two grammar productions the planner
// may emit on any given line (spec ss2 grammar; grounded on
// StreamingGraphParser's THOUGHT_PATTERN / ACTION_PATTERN in
// original_source/src/llm_compiler/planner.py).
var (
	thoughtLine = regexp.MustCompile(`^Thought:\s*(.*)$`)
	actionLine  = regexp.MustCompile(`^\s*(\d+)\.\s*(\w+)\((.*)\)\s*(#.*)?$`)
)

// Arg is one literal or substitution-token argument to a Task. Exactly one
// of Literal or RefIndex is meaningful, selected by IsRef.
type Arg struct {
	// IsRef is true when this argument is a "$k" reference to task k's
	// observation rather than a literal value.
	IsRef bool
	// RefIndex is the referenced task index when IsRef is true.
	RefIndex int
	// Literal is the argument's literal value (string, number, bool, or a
	// []any/[]string list) when IsRef is false.
	Literal any
}

// Task is one numbered action in a plan: a tool invocation (or the
// distinguished join task) together with its declared dependency set.
type Task struct {
	// Idx is the task's 1-based index, matching the planner's numbering.
	Idx int
	// Tool is the invoked tool name, or tools.JoinName for a join task.
	Tool tools.Ident
	// Args holds the parsed, not-yet-substituted argument list.
	Args []Arg
	// Thought is the optional natural-language thought immediately preceding
	// this task in the planner's output (may be empty).
	Thought string
	// RawArgs is the unparsed argument text, kept for diagnostics and for
	// Stringify-style observation formatting.
	RawArgs string
	// Deps is the set of task indices this task's arguments reference,
	// derived from Args. Populated by the parser; the dependency-index
	// invariant (spec ss7) requires every element to be < Idx.
	Deps []int
}

// IsJoin reports whether t is the distinguished join task.
func (t Task) IsJoin() bool { return t.Tool == tools.JoinName }

// Plan is an ordered, parsed sequence of tasks terminated by the
// <END_OF_PLAN> sentinel (or end of input in the batch case).
type Plan struct {
	Tasks []Task
}

// ErrSubstitutionScope is returned when a "$k" token appears inside a
// non-string, non-list argument position. Resolution of spec ss9 Open
// Question "argument-substitution scope": substitution tokens are only
// meaningful as whole-string or list-element arguments; embedding them
// inside a larger literal (e.g. a key of a map) is rejected at parse time
// rather than silently left unsubstituted.
var ErrSubstitutionScope = fmt.Errorf("plan: $k substitution token used outside of a string or list argument position")

// refToken matches a bare "$k" reference occupying an entire argument.
var refToken = regexp.MustCompile(`^\$(\d+)$`)

// dollarRef matches any "$k" occurrence inside a larger string, used to scan
// string literals for embedded substitution tokens (spec ss4.3: "each string
// argument is scanned for literal $k substrings").
var dollarRef = regexp.MustCompile(`\$(\d+)`)

// ParseArgs splits a raw, comma-separated argument list (the text between a
// task's parentheses) into Args, resolving bare "$k" tokens to references
// and everything else to literals via a small recursive-descent scanner that
// understands quoted strings, numbers, booleans, and bracketed lists.
//
// This mirrors the original implementation's use of Python's ast.literal_eval
// over the argument text (original_source/src/llm_compiler/planner.py,
// _match_buffer_and_generate_task): Go has no equivalent "literal_eval", so
// the scanner below implements the same effective grammar (quoted strings,
// ints/floats, true/false/null, and nested [...] lists) by hand.
func ParseArgs(raw string) ([]Arg, error) {
	parts, err := splitTopLevel(raw)
	if err != nil {
		return nil, err
	}
	args := make([]Arg, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if m := refToken.FindStringSubmatch(p); m != nil {
			idx, _ := strconv.Atoi(m[1])
			args = append(args, Arg{IsRef: true, RefIndex: idx})
			continue
		}
		if strings.Contains(p, "$") && !strings.HasPrefix(p, "[") && !(strings.HasPrefix(p, `"`) || strings.HasPrefix(p, "'")) {
			return nil, ErrSubstitutionScope
		}
		lit, err := parseLiteral(p)
		if err != nil {
			return nil, err
		}
		args = append(args, Arg{Literal: lit})
	}
	return args, nil
}

// splitTopLevel splits raw on commas that are not nested inside brackets,
// parens, or quotes.
func splitTopLevel(raw string) ([]string, error) {
	var parts []string
	var buf strings.Builder
	depth := 0
	inQuote := byte(0)
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case inQuote != 0:
			buf.WriteByte(c)
			if c == inQuote && (i == 0 || raw[i-1] != '\\') {
				inQuote = 0
			}
		case c == '\'' || c == '"':
			inQuote = c
			buf.WriteByte(c)
		case c == '[' || c == '(':
			depth++
			buf.WriteByte(c)
		case c == ']' || c == ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("plan: unbalanced brackets in argument list %q", raw)
			}
			buf.WriteByte(c)
		case c == ',' && depth == 0:
			parts = append(parts, buf.String())
			buf.Reset()
		default:
			buf.WriteByte(c)
		}
	}
	if inQuote != 0 {
		return nil, fmt.Errorf("plan: unterminated quote in argument list %q", raw)
	}
	if depth != 0 {
		return nil, fmt.Errorf("plan: unbalanced brackets in argument list %q", raw)
	}
	if strings.TrimSpace(buf.String()) != "" || len(parts) > 0 {
		parts = append(parts, buf.String())
	}
	return parts, nil
}

// parseLiteral interprets one top-level argument token as a literal value:
// a quoted string, a list, a boolean, null, or a number, falling back to the
// raw (trimmed) text for anything else (bareword identifiers are passed
// through as strings, matching ast.literal_eval's permissiveness in the
// original planner for simple tokens).
func parseLiteral(tok string) (any, error) {
	tok = strings.TrimSpace(tok)
	switch {
	case tok == "True", tok == "true":
		return true, nil
	case tok == "False", tok == "false":
		return false, nil
	case tok == "None", tok == "null":
		return nil, nil
	case strings.HasPrefix(tok, "[") && strings.HasSuffix(tok, "]"):
		inner, err := splitTopLevel(tok[1 : len(tok)-1])
		if err != nil {
			return nil, err
		}
		list := make([]any, 0, len(inner))
		for _, it := range inner {
			it = strings.TrimSpace(it)
			if it == "" {
				continue
			}
			if m := refToken.FindStringSubmatch(it); m != nil {
				idx, _ := strconv.Atoi(m[1])
				list = append(list, Arg{IsRef: true, RefIndex: idx})
				continue
			}
			v, err := parseLiteral(it)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return list, nil
	case len(tok) >= 2 && (tok[0] == '"' || tok[0] == '\'') && tok[len(tok)-1] == tok[0]:
		return unquote(tok), nil
	default:
		if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
			return n, nil
		}
		if f, err := strconv.ParseFloat(tok, 64); err == nil {
			return f, nil
		}
		return tok, nil
	}
}

func unquote(tok string) string {
	inner := tok[1 : len(tok)-1]
	inner = strings.ReplaceAll(inner, `\"`, `"`)
	inner = strings.ReplaceAll(inner, `\'`, `'`)
	return inner
}

// deps collects the set of task indices referenced by args: whole-token
// "$k" references, "$k" substrings embedded inside a string literal (spec
// ss4.3), and either form recursed into element-wise inside a list literal.
func deps(args []Arg) []int {
	seen := map[int]bool{}
	var out []int
	record := func(idx int) {
		if !seen[idx] {
			seen[idx] = true
			out = append(out, idx)
		}
	}
	var walk func(a Arg)
	walk = func(a Arg) {
		if a.IsRef {
			record(a.RefIndex)
			return
		}
		switch lit := a.Literal.(type) {
		case string:
			for _, m := range dollarRef.FindAllStringSubmatch(lit, -1) {
				idx, _ := strconv.Atoi(m[1])
				record(idx)
			}
		case []any:
			for _, v := range lit {
				switch item := v.(type) {
				case Arg:
					walk(item)
				case string:
					for _, m := range dollarRef.FindAllStringSubmatch(item, -1) {
						idx, _ := strconv.Atoi(m[1])
						record(idx)
					}
				}
			}
		}
	}
	for _, a := range args {
		walk(a)
	}
	return out
}

// Validate checks the dependency-index invariant (spec ss7): every task's
// dependency set must contain only indices strictly less than its own, and
// at most one join task may appear, as the last task, if present at all
// (single-join invariant).
func (p Plan) Validate() error {
	joinSeen := false
	for i, t := range p.Tasks {
		if t.Idx <= 0 {
			return fmt.Errorf("plan: task at position %d has non-positive index %d", i, t.Idx)
		}
		for _, d := range t.Deps {
			if d >= t.Idx {
				return fmt.Errorf("plan: task %d depends on task %d, violating the forward-reference invariant", t.Idx, d)
			}
		}
		if t.IsJoin() {
			if joinSeen {
				return fmt.Errorf("plan: more than one join task present")
			}
			joinSeen = true
			if i != len(p.Tasks)-1 {
				return fmt.Errorf("plan: join task %d is not the last task in the plan", t.Idx)
			}
		}
	}
	return nil
}

// ParseBatch parses a complete planner text in one pass. It is equivalent,
// token-for-token, to feeding the same text through a StreamParser one line
// at a time and calling Finalize (spec ss8 testable property: streaming
// parse == batch parse). registry, if non-nil, is used to reject action
// lines naming an unregistered tool (spec ss4.1/ss4.2: tool-hallucination
// detection belongs to the parser); pass nil to skip that check.
func ParseBatch(text string, registry *tools.Registry) (Plan, error) {
	sp := NewStreamParser(registry)
	for _, line := range strings.Split(text, "\n") {
		if err := sp.IngestLine(line); err != nil {
			return Plan{}, err
		}
	}
	return sp.Finalize()
}
