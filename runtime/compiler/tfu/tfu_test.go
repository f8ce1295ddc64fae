package tfu

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyagent-go/llmcompiler/runtime/compiler/plan"
	"github.com/tinyagent-go/llmcompiler/runtime/compiler/tools"
)

func registryWithEcho(t *testing.T) *tools.Registry {
	r := tools.NewRegistry()
	require.NoError(t, r.Register(tools.Spec{
		Name:  "search",
		Arity: 1,
		Fn: func(ctx context.Context, args []any) (string, error) {
			return fmt.Sprintf("result:%v", args[0]), nil
		},
	}))
	require.NoError(t, r.Register(tools.Spec{
		Name:  "fail",
		Arity: 0,
		Fn: func(ctx context.Context, args []any) (string, error) {
			return "", fmt.Errorf("boom")
		},
	}))
	return r
}

func sendAll(ch chan<- plan.Task, tasks []plan.Task) {
	for _, t := range tasks {
		ch <- t
	}
	close(ch)
}

func TestUnit_Run_DispatchesChainAndReleasesJoin(t *testing.T) {
	registry := registryWithEcho(t)
	u := New(registry, Options{}, nil, nil)

	tasks := []plan.Task{
		{Idx: 1, Tool: "search", Args: []plan.Arg{{Literal: "a"}}},
		{Idx: 2, Tool: "search", Args: []plan.Arg{{IsRef: true, RefIndex: 1}}, Deps: []int{1}},
		{Idx: 3, Tool: "join"},
	}
	ch := make(chan plan.Task)
	go sendAll(ch, tasks)

	join, log, executed, err := u.Run(context.Background(), ch)
	require.NoError(t, err)
	assert.True(t, join.IsJoin())
	assert.Len(t, executed, 2)

	v1, ok := log.Get(1)
	require.True(t, ok)
	assert.Equal(t, "result:a", v1)

	v2, ok := log.Get(2)
	require.True(t, ok)
	assert.Equal(t, "result:result:a", v2)
}

func TestUnit_Run_IndependentTasksRunConcurrently(t *testing.T) {
	registry := tools.NewRegistry()
	var concurrent int32
	var maxConcurrent int32
	require.NoError(t, registry.Register(tools.Spec{
		Name:  "slow",
		Arity: 0,
		Fn: func(ctx context.Context, args []any) (string, error) {
			cur := atomic.AddInt32(&concurrent, 1)
			for {
				m := atomic.LoadInt32(&maxConcurrent)
				if cur <= m || atomic.CompareAndSwapInt32(&maxConcurrent, m, cur) {
					break
				}
			}
			time.Sleep(30 * time.Millisecond)
			atomic.AddInt32(&concurrent, -1)
			return "done", nil
		},
	}))

	u := New(registry, Options{}, nil, nil)
	tasks := []plan.Task{
		{Idx: 1, Tool: "slow"},
		{Idx: 2, Tool: "slow"},
		{Idx: 3, Tool: "join"},
	}
	ch := make(chan plan.Task)
	go sendAll(ch, tasks)

	_, _, _, err := u.Run(context.Background(), ch)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, int(atomic.LoadInt32(&maxConcurrent)), 2)
}

func TestUnit_Run_ToolErrorBecomesObservation(t *testing.T) {
	registry := registryWithEcho(t)
	u := New(registry, Options{}, nil, nil)

	tasks := []plan.Task{
		{Idx: 1, Tool: "fail"},
		{Idx: 2, Tool: "join"},
	}
	ch := make(chan plan.Task)
	go sendAll(ch, tasks)

	_, log, _, err := u.Run(context.Background(), ch)
	require.NoError(t, err)
	v, ok := log.Get(1)
	require.True(t, ok)
	assert.Contains(t, v, "Error:")
}

func TestUnit_Run_SubstitutesQuotedReferenceFromRealPlanText(t *testing.T) {
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(tools.Spec{
		Name:  "A",
		Arity: 0,
		Fn:    func(ctx context.Context, args []any) (string, error) { return "hello", nil },
	}))
	var bArg any
	require.NoError(t, registry.Register(tools.Spec{
		Name:  "B",
		Arity: 1,
		Fn: func(ctx context.Context, args []any) (string, error) {
			bArg = args[0]
			return args[0].(string) + "!", nil
		},
	}))

	p, err := plan.ParseBatch("1. A()\n2. B(\"$1\")\n3. join()\n<END_OF_PLAN>", registry)
	require.NoError(t, err)
	require.Equal(t, []int{1}, p.Tasks[1].Deps)

	u := New(registry, Options{}, nil, nil)
	ch := make(chan plan.Task)
	go sendAll(ch, p.Tasks)

	_, log, _, err := u.Run(context.Background(), ch)
	require.NoError(t, err)

	assert.Equal(t, "hello", bArg)
	v2, ok := log.Get(2)
	require.True(t, ok)
	assert.Equal(t, "hello!", v2)
}

func TestUnit_Run_SubstitutesListArgumentFromRealPlanText(t *testing.T) {
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(tools.Spec{
		Name:  "A",
		Arity: 0,
		Fn:    func(ctx context.Context, args []any) (string, error) { return "x@y", nil },
	}))
	var bArgs []any
	require.NoError(t, registry.Register(tools.Spec{
		Name:  "B",
		Arity: 2,
		Fn: func(ctx context.Context, args []any) (string, error) {
			bArgs = args
			return "sent", nil
		},
	}))

	p, err := plan.ParseBatch(`1. A()
2. B(["$1"], "hi")
3. join()
<END_OF_PLAN>`, registry)
	require.NoError(t, err)
	require.Equal(t, []int{1}, p.Tasks[1].Deps)

	u := New(registry, Options{}, nil, nil)
	ch := make(chan plan.Task)
	go sendAll(ch, p.Tasks)

	_, _, _, err = u.Run(context.Background(), ch)
	require.NoError(t, err)

	require.Len(t, bArgs, 2)
	assert.Equal(t, []any{"x@y"}, bArgs[0])
	assert.Equal(t, "hi", bArgs[1])
}

func TestUnit_Run_PendingDeadlineFailsUnresolvedDependency(t *testing.T) {
	registry := registryWithEcho(t)
	u := New(registry, Options{PendingDeadline: 20 * time.Millisecond, DeadlinePollInterval: 5 * time.Millisecond}, nil, nil)

	// Task 2 depends on task 1, but task 1 is never sent: simulates a
	// malformed plan referencing a task index that will never resolve.
	tasks := []plan.Task{
		{Idx: 2, Tool: "search", Args: []plan.Arg{{IsRef: true, RefIndex: 1}}, Deps: []int{1}},
		{Idx: 3, Tool: "join"},
	}
	ch := make(chan plan.Task)
	go sendAll(ch, tasks)

	join, log, _, err := u.Run(context.Background(), ch)
	require.NoError(t, err)
	assert.True(t, join.IsJoin())
	v, ok := log.Get(2)
	require.True(t, ok)
	assert.Contains(t, v, "Error:")
}
