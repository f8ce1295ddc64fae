// Package orchestrator implements the LLM Compiler Orchestrator (spec
// ss4.5, C6): the plan -> execute -> join -> (optionally) replan loop,
// owning per-query state and returning the final answer string.
//
// Grounded on runtime/agent/runtime/workflow_loop.go's workflowLoop.run()
// shape (a typed per-run state struct driving a bounded loop with deadline/
// termination checks) — the "loop with typed sub-state struct" idiom is
// kept; Temporal-workflow semantics are replaced with a plain Go loop, since
// the compiler's replan loop has no need for durable workflow history by
// default (an engine.Engine can still be layered underneath for that, see
// runtime/compiler/engine).
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tinyagent-go/llmcompiler/runtime/compiler/joinner"
	"github.com/tinyagent-go/llmcompiler/runtime/compiler/plan"
	"github.com/tinyagent-go/llmcompiler/runtime/compiler/planner"
	"github.com/tinyagent-go/llmcompiler/runtime/compiler/streamch"
	"github.com/tinyagent-go/llmcompiler/runtime/compiler/telemetry"
	"github.com/tinyagent-go/llmcompiler/runtime/compiler/tfu"
)

// DefaultMaxReplans is the default bound on replan iterations (spec ss4.5:
// "max_replans defaults to 2 (so up to 3 planning rounds total)").
const DefaultMaxReplans = 2

// SummaryResolver substitutes the joinner's SUMMARY_RESULT sentinel with a
// previously cached result held by an out-of-band tool (spec ss4.4's
// "special sentinel SUMMARY_RESULT"; grounded on tiny_agent.py's
// `if result == SUMMARY_RESULT: result = self.pdf_summarizer_agent.cached_summary_result`).
// A nil SummaryResolver means the sentinel is returned to the caller
// verbatim.
type SummaryResolver func(ctx context.Context) (string, bool)

// Orchestrator runs the per-query planning loop.
type Orchestrator struct {
	Planner     *planner.Planner
	TFU         *tfu.Unit
	Joinner     *joinner.Joinner
	MaxReplans  int
	Summary     SummaryResolver
	Logger      telemetry.Logger
	Tracer      telemetry.Tracer
}

// New constructs an Orchestrator. A zero MaxReplans is replaced with
// DefaultMaxReplans; pass a negative value to disable replanning (a single
// round whose joinner call already uses the final-round prompt, matching
// "max_replans = 0" in spec ss4.5 note 6).
func New(p *planner.Planner, t *tfu.Unit, j *joinner.Joinner, maxReplans int, summary SummaryResolver, logger telemetry.Logger, tracer telemetry.Tracer) *Orchestrator {
	if maxReplans == 0 {
		maxReplans = DefaultMaxReplans
	}
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	return &Orchestrator{
		Planner:    p,
		TFU:        t,
		Joinner:    j,
		MaxReplans: maxReplans,
		Summary:    summary,
		Logger:     logger,
		Tracer:     tracer,
	}
}

// state carries per-query loop state (spec ss4.5 "Per-query state").
type state struct {
	replansRemaining int
	history          []string
}

func (s *state) context() string {
	return strings.Join(s.history, "\n\n")
}

// Run executes the plan/execute/join/replan loop for a single query and
// returns the final user-facing answer. sink, if non-nil, receives raw
// planner tokens as they stream and an ErrorMarker-prefixed token on fatal
// failure (spec ss4.6); Run always calls sink.Close before returning.
func (o *Orchestrator) Run(ctx context.Context, query string, sink streamch.Sink) (string, error) {
	ctx, span := o.Tracer.Start(ctx, "orchestrator.Run")
	defer span.End()

	// Scope a fresh RunState to this query (spec ss5's per-tool mutable
	// state, e.g. compose-email's "current query"); it goes out of scope
	// with ctx when Run returns, so nothing survives across queries.
	ctx = WithRunState(ctx, NewRunState())

	st := &state{replansRemaining: o.MaxReplans}

	if sink != nil {
		defer sink.Close(ctx)
	}

	for {
		isReplan := len(st.history) > 0
		isFinalRound := st.replansRemaining <= 0

		taskCh := make(chan plan.Task)
		planErrCh := make(chan error, 1)
		go func() {
			planErrCh <- o.Planner.StreamPlan(ctx, query, st.context(), isReplan, taskCh, func(tok string) {
				if sink != nil {
					sink.Send(ctx, tok)
				}
			})
		}()

		joinTask, log, executed, runErr := o.TFU.Run(ctx, taskCh)
		planErr := <-planErrCh

		if runErr != nil {
			span.RecordError(runErr)
			o.fail(ctx, sink, runErr)
			return "", runErr
		}
		if planErr != nil && !errors.Is(planErr, planner.ErrEarlyStop) {
			span.RecordError(planErr)
			o.fail(ctx, sink, planErr)
			return "", planErr
		}

		transcript := tfu.SerializeTranscript(executed, log)
		if joinTask.Thought != "" {
			// The synthesized corrective join (from a parse-error recovery)
			// carries its error message as Thought rather than an
			// observation, since the TFU never dispatches it as a tool
			// call; fold it into the transcript so the joinner sees it.
			transcript = strings.TrimSpace(fmt.Sprintf("%s\n\nThought: %s", transcript, joinTask.Thought))
		}

		decision, err := o.Joinner.Decide(ctx, query, transcript, isFinalRound)
		if err != nil {
			span.RecordError(err)
			o.fail(ctx, sink, err)
			return "", err
		}

		if decision.Finished {
			msg := decision.Message
			if msg == joinner.SummaryResult && o.Summary != nil {
				if cached, ok := o.Summary(ctx); ok {
					msg = cached
				}
			}
			return msg, nil
		}

		st.replansRemaining--
		st.history = append(st.history, transcript)
		o.Logger.Info(ctx, "orchestrator replanning", "replans_remaining", st.replansRemaining)
	}
}

func (o *Orchestrator) fail(ctx context.Context, sink streamch.Sink, err error) {
	if sink == nil {
		return
	}
	sink.Send(ctx, streamch.ErrorMarker+err.Error())
}
