package plan

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tinyagent-go/llmcompiler/runtime/compiler/tools"
)

// ParseError reports a single line that matched the action grammar's numeric
// prefix but failed to parse as a well-formed task. The Streaming Planner
// (C3) catches this to drive its parse-error recovery path (spec ss7 item 3:
// "malformed action line mid-stream"), mirroring
// LLMCompilerCallback.on_llm_new_token's except-branch in
// original_source/src/llm_compiler/planner.py, which synthesizes a
// corrective join task and asks the model to try again rather than aborting
// the whole plan.
type ParseError struct {
	Line string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("plan: malformed action line %q: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StreamParser consumes planner output incrementally, one token (or line) at
// a time, and accumulates a Plan. It is the streaming counterpart to
// ParseBatch and must agree with it exactly when fed the same text (spec
// ss8). Grounded on StreamingGraphParser in
// original_source/src/llm_compiler/planner.py: buffer-until-newline, then
// attempt to match the buffered line against the thought/action grammar.
type StreamParser struct {
	buf            strings.Builder
	tasks          []Task
	pendingThought string
	stopped        bool

	// registry, if non-nil, validates that every action line's tool name is
	// registered, raising a *ParseError for an unrecognized tool name (spec
	// ss4.1's "canonical case" of tool hallucination / ss4.2) so the caller's
	// existing malformed-line recovery path (a synthetic corrective join
	// asking the model to try again) fires for this case too.
	registry *tools.Registry
}

// NewStreamParser constructs an empty StreamParser. registry, if non-nil, is
// consulted to detect a hallucinated (unregistered) tool name as soon as its
// action line is parsed; pass nil to skip that check (e.g. when parsing text
// that only ever names join, as in tests with no registry to hand).
func NewStreamParser(registry *tools.Registry) *StreamParser {
	return &StreamParser{registry: registry}
}

// Stopped reports whether the sentinel <END_OF_PLAN> line has been seen; once
// true, further tokens are ignored.
func (sp *StreamParser) Stopped() bool { return sp.stopped }

// Tasks returns the tasks parsed so far, without finalizing or validating the
// plan. Useful for the TFU to observe newly completed tasks as they stream
// in, before the plan is known to be complete.
func (sp *StreamParser) Tasks() []Task {
	out := make([]Task, len(sp.tasks))
	copy(out, sp.tasks)
	return out
}

// IngestToken feeds one chunk of planner output (which may be a sub-line
// fragment, as from a token-streaming model completion) into the parser. It
// returns a *ParseError if a buffered line matched the action grammar's
// numeric prefix but failed to parse; the caller (the Streaming Planner) is
// expected to handle this without aborting ingestion of subsequent tokens.
func (sp *StreamParser) IngestToken(token string) error {
	if sp.stopped {
		return nil
	}
	sp.buf.WriteString(token)
	for {
		s := sp.buf.String()
		nl := strings.IndexByte(s, '\n')
		if nl < 0 {
			break
		}
		line := s[:nl]
		sp.buf.Reset()
		sp.buf.WriteString(s[nl+1:])
		if err := sp.ingestCompleteLine(line); err != nil {
			return err
		}
		if sp.stopped {
			break
		}
	}
	return nil
}

// IngestLine feeds one complete line (without its trailing newline) into the
// parser. Equivalent to IngestToken(line + "\n").
func (sp *StreamParser) IngestLine(line string) error {
	return sp.IngestToken(line + "\n")
}

func (sp *StreamParser) ingestCompleteLine(line string) error {
	trimmed := strings.TrimSpace(line)
	if trimmed == EndOfPlan {
		sp.stopped = true
		return nil
	}
	if trimmed == "" {
		return nil
	}
	if m := thoughtLine.FindStringSubmatch(trimmed); m != nil {
		sp.pendingThought = m[1]
		return nil
	}
	if m := actionLine.FindStringSubmatch(trimmed); m != nil {
		idx, _ := strconv.Atoi(m[1])
		toolName := tools.Ident(m[2])
		if sp.registry != nil && toolName != tools.JoinName && !sp.registry.Has(toolName) {
			return &ParseError{Line: line, Err: fmt.Errorf("unknown tool %q", toolName)}
		}
		args, err := ParseArgs(m[3])
		if err != nil {
			return &ParseError{Line: line, Err: err}
		}
		t := Task{
			Idx:     idx,
			Tool:    toolName,
			Args:    args,
			Thought: sp.pendingThought,
			RawArgs: m[3],
			Deps:    deps(args),
		}
		sp.pendingThought = ""
		sp.tasks = append(sp.tasks, t)
		return nil
	}
	// A line that is neither a thought, an action, nor the sentinel is
	// treated as prose and ignored, matching the original parser's
	// tolerance of chatty preambles before the numbered list begins.
	return nil
}

// Finalize flushes any buffered partial line and returns the accumulated
// Plan, validated via Plan.Validate.
func (sp *StreamParser) Finalize() (Plan, error) {
	if rem := sp.buf.String(); strings.TrimSpace(rem) != "" {
		if err := sp.ingestCompleteLine(rem); err != nil {
			return Plan{}, err
		}
		sp.buf.Reset()
	}
	p := Plan{Tasks: sp.tasks}
	if err := p.Validate(); err != nil {
		return Plan{}, err
	}
	return p, nil
}
