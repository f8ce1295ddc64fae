// Package engine abstracts the durable-execution backend underneath the
// Orchestrator's replan loop (spec §4.5, C6). The orchestrator drives its
// plan/execute/join/replan loop directly in Go by default; an Engine lets
// that same loop run as a durable workflow (Temporal) instead, without the
// orchestrator's own code changing. Grounded on runtime/agent/engine/engine.go's
// Engine/WorkflowContext/Future contract, narrowed to the single workflow
// shape the compiler needs (the replan loop) rather than one workflow per
// generated agent.
package engine

import (
	"context"
	"time"

	"github.com/tinyagent-go/llmcompiler/runtime/compiler/telemetry"
)

type (
	// Engine abstracts workflow/activity registration and execution so
	// adapters (Temporal, in-memory, or a future custom backend) can be
	// swapped without touching the orchestrator.
	Engine interface {
		// RegisterWorkflow registers a workflow definition. Call during
		// startup, before any StartWorkflow.
		RegisterWorkflow(ctx context.Context, def WorkflowDefinition) error

		// RegisterActivity registers an activity definition. Call during
		// startup, before any workflow that invokes it runs.
		RegisterActivity(ctx context.Context, def ActivityDefinition) error

		// StartWorkflow launches a new workflow execution and returns a
		// handle for waiting on, signaling, or cancelling it. req.ID must be
		// unique for the engine instance.
		StartWorkflow(ctx context.Context, req WorkflowStartRequest) (WorkflowHandle, error)
	}

	// WorkflowDefinition binds a workflow handler to a logical name and
	// default task queue.
	WorkflowDefinition struct {
		// Name is the logical identifier registered with the engine, e.g.
		// "CompilerReplanWorkflow".
		Name string
		// TaskQueue is the queue new executions are scheduled on by default.
		TaskQueue string
		// Handler is invoked by the engine when the workflow executes.
		Handler WorkflowFunc
	}

	// WorkflowFunc is a workflow entry point: it receives a WorkflowContext
	// and the start input, and returns a result or error. It must be
	// deterministic under engines that require replay (Temporal); the
	// in-memory engine has no such requirement.
	WorkflowFunc func(ctx WorkflowContext, input any) (any, error)

	// WorkflowContext exposes engine operations to a running workflow:
	// activity dispatch, signal delivery, and observability, behind a
	// uniform API regardless of backend.
	//
	// Thread-safety: bound to a single workflow execution, not shared across
	// goroutines; activity and signal operations are serialized by the
	// engine.
	WorkflowContext interface {
		// Context returns the Go context for the workflow; activity calls
		// should use it. The in-memory engine returns the context passed to
		// StartWorkflow; the Temporal engine returns context.Background(),
		// which carries no workflow.Context.
		Context() context.Context

		// WorkflowID returns the caller-assigned identifier for this
		// execution.
		WorkflowID() string

		// RunID returns the engine-assigned run identifier.
		RunID() string

		// ExecuteActivity schedules an activity and blocks for its result,
		// populating result.
		ExecuteActivity(ctx context.Context, req ActivityRequest, result any) error

		// ExecuteActivityAsync schedules an activity without blocking,
		// returning a Future resolved later via Future.Get. Enables running
		// multiple tool activities in parallel (mirrors the Task Fetching
		// Unit's concurrent dispatch, spec §4.3, when layered under an
		// Engine).
		ExecuteActivityAsync(ctx context.Context, req ActivityRequest) (Future, error)

		// SignalChannel returns the channel for the named signal, e.g. a
		// mid-run cancellation or an externally supplied replan hint.
		SignalChannel(name string) SignalChannel

		// Logger, Metrics, and Tracer are scoped to this workflow execution.
		Logger() telemetry.Logger
		Metrics() telemetry.Metrics
		Tracer() telemetry.Tracer

		// Now returns the current time in a manner that is replay-safe
		// under engines that require it.
		Now() time.Time
	}

	// Future represents a pending activity result.
	//
	// Thread-safety: bound to a single workflow execution. Get is safe to
	// call more than once and returns the same result/error each time.
	Future interface {
		// Get blocks until the activity completes and populates result.
		Get(ctx context.Context, result any) error
		// IsReady reports whether Get will not block.
		IsReady() bool
	}

	// ActivityDefinition registers an activity handler with optional
	// defaults. Activities are stateless and may perform side effects (tool
	// invocation, LLM calls) that workflow code itself must not.
	ActivityDefinition struct {
		Name    string
		Handler ActivityFunc
		Options ActivityOptions
	}

	// ActivityFunc handles a single activity invocation with a plain Go
	// context, unlike WorkflowFunc.
	ActivityFunc func(ctx context.Context, input any) (any, error)

	// ActivityOptions configures retry/timeout behavior for an activity.
	ActivityOptions struct {
		Queue       string
		RetryPolicy RetryPolicy
		Timeout     time.Duration
	}

	// WorkflowStartRequest describes how to launch a workflow execution.
	WorkflowStartRequest struct {
		// ID must be unique within the engine scope.
		ID string
		// Workflow names the registered WorkflowDefinition to run.
		Workflow string
		// TaskQueue overrides the definition's default queue when set.
		TaskQueue string
		// Input is the payload passed to the workflow handler.
		Input any
		// RetryPolicy controls retries of the workflow start attempt itself.
		RetryPolicy RetryPolicy
	}

	// ActivityRequest carries what's needed to schedule an activity from a
	// workflow.
	ActivityRequest struct {
		Name        string
		Input       any
		Queue       string
		RetryPolicy RetryPolicy
		Timeout     time.Duration
	}

	// WorkflowHandle lets callers interact with a running workflow.
	WorkflowHandle interface {
		// Wait blocks until the workflow completes, populating result.
		Wait(ctx context.Context, result any) error
		// Signal sends an asynchronous message to the workflow.
		Signal(ctx context.Context, name string, payload any) error
		// Cancel requests cancellation of the workflow.
		Cancel(ctx context.Context) error
	}

	// RetryPolicy defines retry semantics shared by workflows and
	// activities. Zero-valued fields mean the engine applies its defaults.
	RetryPolicy struct {
		MaxAttempts        int
		InitialInterval    time.Duration
		BackoffCoefficient float64
	}

	// SignalChannel exposes signal delivery in an engine-agnostic way.
	SignalChannel interface {
		// Receive blocks until a signal is delivered and decodes it into
		// dest.
		Receive(ctx context.Context, dest any) error
		// ReceiveAsync attempts a non-blocking receive, reporting whether a
		// value was written into dest.
		ReceiveAsync(dest any) bool
	}
)
