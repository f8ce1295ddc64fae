// Package joinner implements the Joinner (spec ss4.4, C5): given the query
// and the round's transcript, decides whether to Finish with a user-facing
// message or Replan with the transcript folded in as context for the next
// planning round.
//
// There is no joinner module in original_source/ (TinyAgent's "join" is a
// single sub-agent call inline in the compiler loop, not a separable
// component) so this package is grounded directly on spec ss4.4's contract
// and parsing rules, in the style established by runtime/compiler/planner
// (same Client/prompt/parse shape) per the teacher's general Planner
// structure.
package joinner

import (
	"context"
	"fmt"
	"strings"

	"github.com/tinyagent-go/llmcompiler/runtime/compiler/model"
	"github.com/tinyagent-go/llmcompiler/runtime/compiler/telemetry"
)

// SummaryResult is the sentinel a tool (the PDF summarizer, in the original)
// may use as its observation or as the joinner's Finish message to indicate
// that the real answer lives out-of-band and should be substituted by the
// caller. Grounded on SUMMARY_RESULT in
// original_source/src/tiny_agent/tiny_agent.py
// ("if result == SUMMARY_RESULT: result = self.pdf_summarizer_agent.cached_summary_result").
const SummaryResult = "SUMMARY_RESULT"

// Decision is the Joinner's verdict: either Finish with a message, or
// Replan.
type Decision struct {
	// Finished is true when the query is answered (or an unfixable error
	// must be surfaced); false means Replan.
	Finished bool
	// Message is the user-facing answer when Finished is true. Empty for a
	// Replan decision, and also empty for a malformed joinner response
	// (spec ss4.4: "A malformed response is treated as Finish(\"\")").
	Message string
	// Thought is the optional rationale line preceding the Action line,
	// informational only.
	Thought string
}

const systemPrompt = `You are the joinner for an LLM Compiler. You are given a user query and a ` +
	`transcript of the actions taken so far, each with its Thought (if any) and Observation. ` +
	`Decide whether the transcript answers the query.

Rules:
- If the query can be answered directly from the transcript, respond with the final answer.
- If a transcript entry contains the literal phrase "try again", the error is fixable: request a replan.
- Otherwise, if a transcript entry describes an error that cannot be fixed by replanning, finish with a user-friendly error message.
- If an observation equals the literal token SUMMARY_RESULT, finish with exactly SUMMARY_RESULT as the message; the caller will substitute the real cached result.

Respond with an optional "Thought: <reasoning>" line followed by exactly one of:
Action: Finish(<message>)
Action: Replan
`

const finalRoundSuffix = `

This is the final round: no further replanning is possible. You MUST respond with "Action: Finish(<message>)".`

// Joinner invokes the LLM to make a Finish/Replan decision.
type Joinner struct {
	Client model.Client
	Logger telemetry.Logger
	Tracer telemetry.Tracer
}

// New constructs a Joinner.
func New(client model.Client, logger telemetry.Logger, tracer telemetry.Tracer) *Joinner {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	return &Joinner{Client: client, Logger: logger, Tracer: tracer}
}

// Decide invokes the joinner LLM non-streaming with (query, transcript,
// isFinalRound) and parses its response. On the final round the system
// prompt forbids Replan (spec ss4.4 "restricted prompt variant").
func (j *Joinner) Decide(ctx context.Context, query, transcript string, isFinalRound bool) (Decision, error) {
	ctx, span := j.Tracer.Start(ctx, "joinner.Decide")
	defer span.End()

	prompt := systemPrompt
	if isFinalRound {
		prompt += finalRoundSuffix
	}
	human := fmt.Sprintf("Question: %s\n\n%s\n", query, transcript)

	text, err := j.Client.Complete(ctx, model.Request{
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: prompt},
			{Role: model.RoleHuman, Content: human},
		},
	})
	if err != nil {
		span.RecordError(err)
		return Decision{}, fmt.Errorf("joinner: llm completion: %w", err)
	}
	j.Logger.Debug(ctx, "joinner response", "text", text)

	decision := Parse(text)
	if isFinalRound && !decision.Finished {
		// The final-round prompt forbids Replan; treat a rule-breaking
		// response as an unfixable parse failure rather than honoring a
		// Replan the orchestrator has no budget left to act on.
		j.Logger.Warn(ctx, "joinner emitted Replan on final round, coercing to empty Finish")
		return Decision{Finished: true}, nil
	}
	return decision, nil
}

// Parse interprets a joinner response line-by-line (spec ss4.4 "Parsing"):
// a "Thought:" line captures a rationale, and a line containing
// "Action: Finish(...)" or "Action: Replan" determines the decision. The
// parenthesized text of Finish(...) is extracted with balanced-paren
// scanning rather than a last-")" search, which the spec's REDESIGN FLAGS
// section calls out as lossy when the message itself contains ")".
// A response with no recognized Action line is treated as Finish("").
func Parse(text string) Decision {
	var d Decision
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if rest, ok := cutPrefix(trimmed, "Thought:"); ok {
			d.Thought = strings.TrimSpace(rest)
			continue
		}
		if rest, ok := cutPrefix(trimmed, "Action:"); ok {
			rest = strings.TrimSpace(rest)
			if rest == "Replan" {
				return Decision{Finished: false, Thought: d.Thought}
			}
			if msg, ok := parseFinish(rest); ok {
				return Decision{Finished: true, Message: msg, Thought: d.Thought}
			}
		}
	}
	return Decision{Finished: true, Message: ""}
}

func cutPrefix(s, prefix string) (string, bool) {
	if strings.HasPrefix(s, prefix) {
		return s[len(prefix):], true
	}
	return "", false
}

// parseFinish extracts the balanced-paren contents of "Finish(...)" from
// rest, which is expected to start with "Finish(".
func parseFinish(rest string) (string, bool) {
	const prefix = "Finish("
	if !strings.HasPrefix(rest, prefix) {
		return "", false
	}
	body := rest[len(prefix):]
	depth := 1
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return body[:i], true
			}
		}
	}
	// Unbalanced: no closing paren found: take the rest of the line minus a
	// trailing ')' if present, rather than failing outright, matching the
	// spec's tolerance for a malformed-but-recognizable Finish line.
	return strings.TrimSuffix(body, ")"), true
}
