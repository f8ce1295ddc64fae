// Package planner implements the Streaming Planner (spec ss4.1 / ss6, C3):
// prompt assembly, rate-limited LLM invocation, and token-by-token ingestion
// into a plan.StreamParser, emitting each completed Task to the caller (the
// Task Fetching Unit) as soon as its line is parsed rather than waiting for
// the whole plan to finish.
//
// Grounded on original_source/src/llm_compiler/planner.py's Planner/
// LLMCompilerCallback/StreamingGraphParser trio, and structurally on
// runtime/agent/planner/planner.go's Planner/PlanResult contract shape.
package planner

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/tinyagent-go/llmcompiler/runtime/compiler/model"
	"github.com/tinyagent-go/llmcompiler/runtime/compiler/plan"
	"github.com/tinyagent-go/llmcompiler/runtime/compiler/telemetry"
	"github.com/tinyagent-go/llmcompiler/runtime/compiler/tools"
)

// ErrEarlyStop marks a controlled stop of plan generation after a parse
// error: the remainder of the model's output is discarded, a corrective join
// task has already been emitted, and the caller should treat this as a
// normal (non-fatal) end of the planning phase. Mirrors
// TinyAgentEarlyStop in planner.py, which is deliberately a BaseException
// rather than an Exception so it is never mistaken for a fatal LLM error.
var ErrEarlyStop = errors.New("planner: plan generation stopped early after a correctable parse error")

// Planner assembles prompts, invokes the model, and streams parsed Tasks.
type Planner struct {
	Client   model.Client
	Registry *tools.Registry
	Opts     PromptOptions
	Stop     []string

	// Limiter throttles LLM invocations (one Wait per Plan/StreamPlan call).
	// A nil Limiter disables throttling.
	Limiter *rate.Limiter

	Logger  telemetry.Logger
	Tracer  telemetry.Tracer

	systemPrompt       string
	systemPromptReplan string
}

// New constructs a Planner and precomputes both system prompts (initial and
// replan variants), matching the Python Planner.__init__ which precomputes
// self.system_prompt and self.system_prompt_replan once at construction
// time since the registry is immutable for the life of a query.
func New(client model.Client, registry *tools.Registry, opts PromptOptions, stop []string, limiter *rate.Limiter, logger telemetry.Logger, tracer telemetry.Tracer) *Planner {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	return &Planner{
		Client:             client,
		Registry:           registry,
		Opts:               opts,
		Stop:               stop,
		Limiter:            limiter,
		Logger:             logger,
		Tracer:             tracer,
		systemPrompt:       BuildSystemPrompt(registry, opts, false),
		systemPromptReplan: BuildSystemPrompt(registry, opts, true),
	}
}

func (p *Planner) systemPromptFor(isReplan bool) string {
	if isReplan {
		return p.systemPromptReplan
	}
	return p.systemPrompt
}

// runLLM issues a single completion request, throttled by Limiter if set.
func (p *Planner) runLLM(ctx context.Context, systemPrompt, query, replanContext string) (string, error) {
	if p.Limiter != nil {
		if err := p.Limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("planner: rate limiter: %w", err)
		}
	}
	req := model.Request{
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: systemPrompt},
			{Role: model.RoleHuman, Content: BuildHumanPrompt(query, replanContext)},
		},
		Stop: p.Stop,
	}
	text, err := p.Client.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("planner: llm completion: %w", err)
	}
	p.Logger.Debug(ctx, "planner response", "text", text)
	return text, nil
}

// Plan runs a single non-streaming planning pass and returns the fully
// parsed, validated Plan. Equivalent to the Python Planner.plan method.
func (p *Planner) Plan(ctx context.Context, query, replanContext string, isReplan bool) (plan.Plan, error) {
	ctx, span := p.Tracer.Start(ctx, "planner.Plan")
	defer span.End()

	text, err := p.runLLM(ctx, p.systemPromptFor(isReplan), query, replanContext)
	if err != nil {
		span.RecordError(err)
		return plan.Plan{}, err
	}
	return plan.ParseBatch(text+"\n", p.Registry)
}

// PlanWithSpecs is Plan narrowed to a caller-chosen subset of the registry's
// tools rather than the full registry, letting a retrieval component (tool
// RAG) shrink the prompt to only the tools plausibly relevant to query. The
// original rebuilds its whole system prompt per-query from a retrieved
// subset (tool_rag/classifier_tool_rag.py); retrieval itself is out of
// scope (spec ss1), but this is the interface a caller's retrieval step
// plugs into. specs must be a subset of p.Registry — dispatch still goes
// through the full Registry once the TFU executes the returned Plan.
func (p *Planner) PlanWithSpecs(ctx context.Context, specs []tools.Spec, query, replanContext string, isReplan bool) (plan.Plan, error) {
	ctx, span := p.Tracer.Start(ctx, "planner.PlanWithSpecs")
	defer span.End()

	systemPrompt := BuildSystemPromptForSpecs(specs, p.Opts, isReplan)
	text, err := p.runLLM(ctx, systemPrompt, query, replanContext)
	if err != nil {
		span.RecordError(err)
		return plan.Plan{}, err
	}
	return plan.ParseBatch(text+"\n", p.Registry)
}

// StreamPlan runs a streaming planning pass, sending each Task to tasks as
// soon as its line is parsed (spec ss6: the Streaming Planner emits tasks
// incrementally so the TFU can begin dispatch before the full plan text has
// arrived). The channel is closed by StreamPlan before it returns. A
// malformed action line mid-stream does not return a fatal error: a
// corrective join task carrying the parse error as its thought/observation
// seed is sent instead, generation is stopped, and ErrEarlyStop is returned
// (wrap-checkable via errors.Is) so the orchestrator can route this exactly
// like a join with an error observation rather than aborting the query.
func (p *Planner) StreamPlan(ctx context.Context, query, replanContext string, isReplan bool, tasks chan<- plan.Task, onToken func(string)) error {
	return p.streamPlan(ctx, "planner.StreamPlan", p.systemPromptFor(isReplan), query, replanContext, tasks, onToken)
}

// StreamPlanWithSpecs is StreamPlan narrowed to specs, the streaming
// counterpart to PlanWithSpecs (see its doc for the tool-RAG narrowing this
// supports).
func (p *Planner) StreamPlanWithSpecs(ctx context.Context, specs []tools.Spec, query, replanContext string, isReplan bool, tasks chan<- plan.Task, onToken func(string)) error {
	systemPrompt := BuildSystemPromptForSpecs(specs, p.Opts, isReplan)
	return p.streamPlan(ctx, "planner.StreamPlanWithSpecs", systemPrompt, query, replanContext, tasks, onToken)
}

func (p *Planner) streamPlan(ctx context.Context, spanName, systemPrompt, query, replanContext string, tasks chan<- plan.Task, onToken func(string)) error {
	defer close(tasks)

	ctx, span := p.Tracer.Start(ctx, spanName)
	defer span.End()

	if p.Limiter != nil {
		if err := p.Limiter.Wait(ctx); err != nil {
			span.RecordError(err)
			return fmt.Errorf("planner: rate limiter: %w", err)
		}
	}

	req := model.Request{
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: systemPrompt},
			{Role: model.RoleHuman, Content: BuildHumanPrompt(query, replanContext)},
		},
		Stop: p.Stop,
	}

	stream, err := p.Client.Stream(ctx, req)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("planner: llm stream: %w", err)
	}
	defer stream.Close()

	sp := plan.NewStreamParser(p.Registry)
	before := 0
	for {
		chunk, err := stream.Recv(ctx)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("planner: llm stream recv: %w", err)
		}
		if chunk.TextDelta != "" {
			if onToken != nil {
				onToken(chunk.TextDelta)
			}
			if ingestErr := sp.IngestToken(chunk.TextDelta); ingestErr != nil {
				var perr *plan.ParseError
				if errors.As(ingestErr, &perr) {
					p.emitCorrectiveJoin(ctx, sp, perr, tasks)
					return ErrEarlyStop
				}
				span.RecordError(ingestErr)
				return ingestErr
			}
			after := sp.Tasks()
			for _, t := range after[before:] {
				tasks <- t
			}
			before = len(after)
			if sp.Stopped() {
				break
			}
		}
		if chunk.Done {
			break
		}
	}

	finalPlan, err := sp.Finalize()
	if err != nil {
		span.RecordError(err)
		return err
	}
	all := finalPlan.Tasks
	for _, t := range all[before:] {
		tasks <- t
	}
	return nil
}

// emitCorrectiveJoin synthesizes a join task carrying the parse failure as
// its observation seed and sends it to tasks. Mirrors
// LLMCompilerCallback.on_llm_new_token's except-branch, which instantiates a
// join task whose observation tells the model "You MUST correct this error
// and try again!" so the joinner can surface it and the orchestrator can
// replan.
func (p *Planner) emitCorrectiveJoin(ctx context.Context, sp *plan.StreamParser, perr *plan.ParseError, tasks chan<- plan.Task) {
	p.Logger.Warn(ctx, "planner parse error, synthesizing corrective join", "line", perr.Line, "err", perr.Err)
	idx := len(sp.Tasks()) + 1
	tasks <- plan.Task{
		Idx:  idx,
		Tool: tools.JoinName,
		Thought: fmt.Sprintf(
			"The plan generation was stopped due to an error in action %q! Error: %v! You MUST correct this error and try again!",
			perr.Line, perr.Err,
		),
	}
}
