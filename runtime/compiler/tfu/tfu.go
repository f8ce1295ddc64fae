package tfu

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tinyagent-go/llmcompiler/runtime/compiler/plan"
	"github.com/tinyagent-go/llmcompiler/runtime/compiler/telemetry"
	"github.com/tinyagent-go/llmcompiler/runtime/compiler/toolerrors"
	"github.com/tinyagent-go/llmcompiler/runtime/compiler/tools"
)

// Options configures scheduler behavior.
type Options struct {
	// PendingDeadline bounds how long a task may wait for its dependencies
	// before the scheduler gives up on it and records a failure observation
	// in its place. Zero (the default) preserves the original "wait
	// forever" behavior — resolution of spec ss9 Open Question
	// "join timing / unreachable dependency": a plan that references a task
	// index never produced (a planner bug) would otherwise hang the query
	// indefinitely; a caller that wants liveness sets this to a finite
	// duration, everyone else opts in to nothing changing.
	PendingDeadline time.Duration

	// DeadlinePollInterval controls how often the scheduler checks pending
	// tasks against PendingDeadline. Defaults to 200ms when PendingDeadline
	// is set and this is zero.
	DeadlinePollInterval time.Duration
}

// Unit is the Task Fetching Unit: it consumes a stream of plan.Task values
// (in plan order; concurrently safe to dispatch out of completion order)
// and dispatches each to its registered tool as soon as its dependencies'
// observations are available, recording results in an ObservationLog. The
// distinguished join task is never dispatched as a tool call; Run returns it
// to the caller once every other task has completed, acting as the barrier
// spec ss4.3 calls "join-as-memory-barrier".
type Unit struct {
	Registry *tools.Registry
	Logger   telemetry.Logger
	Tracer   telemetry.Tracer
	Opts     Options
}

// New constructs a Unit.
func New(registry *tools.Registry, opts Options, logger telemetry.Logger, tracer telemetry.Tracer) *Unit {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	return &Unit{Registry: registry, Logger: logger, Tracer: tracer, Opts: opts}
}

type pendingEntry struct {
	task      plan.Task
	queuedAt  time.Time
}

type schedState struct {
	mu       sync.Mutex
	cond     *sync.Cond
	log      *ObservationLog
	pending  []pendingEntry
	running  int
	joinTask plan.Task
	joinSeen bool
	executed []plan.Task
}

// Run drains tasksIn, dispatching non-join tasks concurrently as their
// dependencies resolve, and blocks until the join task has arrived and every
// other task has finished (successfully or with a recorded error
// observation). It returns the join task, the final ObservationLog, and the
// ordered list of non-join tasks that were executed this round, so the
// caller (the orchestrator) can build the round's transcript (spec ss4.3
// "Transcript output").
//
// Run returns an error only for conditions outside the normal tool-error
// protocol: tasksIn closed without ever producing a join task (the planner
// is required to always terminate with one, per the single-join invariant).
func (u *Unit) Run(ctx context.Context, tasksIn <-chan plan.Task) (plan.Task, *ObservationLog, []plan.Task, error) {
	st := &schedState{log: NewObservationLog()}
	st.cond = sync.NewCond(&st.mu)

	streamClosed := false
	drainDone := make(chan struct{})
	go func() {
		defer close(drainDone)
		defer func() {
			st.mu.Lock()
			streamClosed = true
			st.mu.Unlock()
			st.cond.Broadcast()
		}()
		for t := range tasksIn {
			if t.IsJoin() {
				st.mu.Lock()
				st.joinTask = t
				st.joinSeen = true
				st.mu.Unlock()
				st.cond.Broadcast()
				continue
			}
			st.mu.Lock()
			st.executed = append(st.executed, t)
			st.mu.Unlock()
			u.dispatchOrQueue(ctx, st, t)
		}
	}()

	if u.Opts.PendingDeadline > 0 {
		go u.watchDeadlines(ctx, st)
	}

	st.mu.Lock()
	for !(st.joinSeen && st.running == 0 && len(st.pending) == 0) &&
		!(streamClosed && !st.joinSeen && st.running == 0) {
		st.cond.Wait()
	}
	jt := st.joinTask
	executed := append([]plan.Task(nil), st.executed...)
	st.mu.Unlock()

	<-drainDone

	if !jt.IsJoin() {
		return plan.Task{}, st.log, executed, fmt.Errorf("tfu: task stream ended without a join task")
	}
	return jt, st.log, executed, nil
}

func (u *Unit) dispatchOrQueue(ctx context.Context, st *schedState, t plan.Task) {
	st.mu.Lock()
	if dependenciesReady(t, st.log) {
		st.running++
		st.mu.Unlock()
		go u.execute(ctx, st, t)
		return
	}
	st.pending = append(st.pending, pendingEntry{task: t, queuedAt: time.Now()})
	st.mu.Unlock()
}

// execute runs a single task's tool invocation and records its observation.
// Errors from argument resolution, argument-shape validation, or the tool
// itself are recorded as the task's observation string (spec ss4.3/ss7:
// "tool errors become observations, not fatal errors") rather than aborting
// the run.
func (u *Unit) execute(ctx context.Context, st *schedState, t plan.Task) {
	ctx, span := u.Tracer.Start(ctx, "tfu.execute")
	span.AddEvent("task", "idx", t.Idx, "tool", string(t.Tool))
	defer span.End()

	obs := u.runTask(ctx, t, st.log)

	st.mu.Lock()
	st.log.Set(t.Idx, obs)
	st.running--
	u.promotePending(ctx, st)
	st.mu.Unlock()
	st.cond.Broadcast()
}

func (u *Unit) runTask(ctx context.Context, t plan.Task, log *ObservationLog) string {
	spec, ok := u.Registry.Lookup(t.Tool)
	if !ok {
		err := toolerrors.Errorf("unknown tool %q", t.Tool)
		u.Logger.Error(ctx, "tfu: unknown tool", "tool", string(t.Tool), "idx", t.Idx)
		return err.AsObservation()
	}

	args, err := substitute(t.Args, log)
	if err != nil {
		te := toolerrors.FromError(err)
		u.Logger.Error(ctx, "tfu: substitution failed", "idx", t.Idx, "err", err)
		return te.AsObservation()
	}

	if err := spec.ValidateArgs(args); err != nil {
		te := toolerrors.FromError(err)
		u.Logger.Error(ctx, "tfu: argument validation failed", "idx", t.Idx, "err", err)
		return te.AsObservation()
	}

	result, err := spec.Fn(ctx, args)
	if err != nil {
		te := toolerrors.FromError(err)
		u.Logger.Error(ctx, "tfu: tool invocation failed", "idx", t.Idx, "tool", string(t.Tool), "err", err)
		return te.AsObservation()
	}
	return result
}

// promotePending must be called with st.mu held. It scans the pending queue
// for tasks whose dependencies are now satisfied and dispatches them.
func (u *Unit) promotePending(ctx context.Context, st *schedState) {
	remaining := st.pending[:0]
	for _, pe := range st.pending {
		if dependenciesReady(pe.task, st.log) {
			st.running++
			go u.execute(ctx, st, pe.task)
			continue
		}
		remaining = append(remaining, pe)
	}
	st.pending = remaining
}

// watchDeadlines periodically fails pending tasks that have waited longer
// than Opts.PendingDeadline for their dependencies, recording a tool-error
// observation in their place so the join barrier can still be released.
func (u *Unit) watchDeadlines(ctx context.Context, st *schedState) {
	interval := u.Opts.DeadlinePollInterval
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		st.mu.Lock()
		now := time.Now()
		var remaining []pendingEntry
		changed := false
		for _, pe := range st.pending {
			if now.Sub(pe.queuedAt) >= u.Opts.PendingDeadline {
				err := toolerrors.Errorf("task %d timed out waiting for dependencies %v", pe.task.Idx, pe.task.Deps)
				st.log.Set(pe.task.Idx, err.AsObservation())
				u.Logger.Warn(ctx, "tfu: pending deadline exceeded", "idx", pe.task.Idx, "deps", pe.task.Deps)
				changed = true
				continue
			}
			remaining = append(remaining, pe)
		}
		if changed {
			st.pending = remaining
			u.promotePending(ctx, st)
		}
		joinSeen := st.joinSeen
		running := st.running
		pendingLen := len(st.pending)
		st.mu.Unlock()
		if changed {
			st.cond.Broadcast()
		}
		if joinSeen && running == 0 && pendingLen == 0 {
			return
		}
	}
}
