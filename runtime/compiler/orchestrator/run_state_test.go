package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyagent-go/llmcompiler/runtime/compiler/joinner"
	"github.com/tinyagent-go/llmcompiler/runtime/compiler/planner"
	"github.com/tinyagent-go/llmcompiler/runtime/compiler/tfu"
	"github.com/tinyagent-go/llmcompiler/runtime/compiler/tools"
)

func TestRunState_SetThenGet(t *testing.T) {
	s := NewRunState()
	_, ok := s.Get("compose_email")
	assert.False(t, ok)

	s.Set("compose_email", "draft the quarterly update")
	v, ok := s.Get("compose_email")
	require.True(t, ok)
	assert.Equal(t, "draft the quarterly update", v)
}

func TestRunState_NilIsSafe(t *testing.T) {
	var s *RunState
	_, ok := s.Get("compose_email")
	assert.False(t, ok)
	s.Set("compose_email", "ignored")
}

func TestWithRunStateAndRunStateFromContext(t *testing.T) {
	s := NewRunState()
	ctx := WithRunState(context.Background(), s)

	got, ok := RunStateFromContext(ctx)
	require.True(t, ok)
	assert.Same(t, s, got)
}

func TestRunStateFromContext_MissingReturnsFalse(t *testing.T) {
	_, ok := RunStateFromContext(context.Background())
	assert.False(t, ok)
}

// TestOrchestrator_Run_ScopesRunStatePerQuery verifies that a tool writing
// to RunState during one query cannot observe state left by a previous
// query through the same long-lived Orchestrator/Registry, matching the
// "single-request scoped" requirement for tool mutable state.
func TestOrchestrator_Run_ScopesRunStatePerQuery(t *testing.T) {
	var observedOnSecondCall any
	var sawStateOnSecondCall bool

	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(tools.Spec{
		Name:  "compose_email",
		Arity: 1,
		Fn: func(ctx context.Context, args []any) (string, error) {
			state, ok := RunStateFromContext(ctx)
			require.True(t, ok)
			if v, ok := state.Get("compose_email"); ok {
				observedOnSecondCall = v
				sawStateOnSecondCall = true
			}
			state.Set("compose_email", args[0])
			return "sent", nil
		},
	}))

	client := &scriptedClient{
		planResponses: []string{
			"1. compose_email(\"first query\")\n2. join()\n<END_OF_PLAN>",
			"1. compose_email(\"second query\")\n2. join()\n<END_OF_PLAN>",
		},
		joinResponses: []string{
			"Action: Finish(done)",
			"Action: Finish(done)",
		},
	}
	pl := planner.New(client, registry, planner.PromptOptions{Examples: "n/a"}, nil, nil, nil, nil)
	tf := tfu.New(registry, tfu.Options{}, nil, nil)
	jn := joinner.New(client, nil, nil)
	orch := New(pl, tf, jn, -1, nil, nil, nil)

	_, err := orch.Run(context.Background(), "first query", nil)
	require.NoError(t, err)
	_, err = orch.Run(context.Background(), "second query", nil)
	require.NoError(t, err)

	assert.False(t, sawStateOnSecondCall, "second query observed state from the first query's RunState: %v", observedOnSecondCall)
}
