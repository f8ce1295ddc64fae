package orchestrator

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyagent-go/llmcompiler/runtime/compiler/joinner"
	"github.com/tinyagent-go/llmcompiler/runtime/compiler/model"
	"github.com/tinyagent-go/llmcompiler/runtime/compiler/planner"
	"github.com/tinyagent-go/llmcompiler/runtime/compiler/streamch"
	"github.com/tinyagent-go/llmcompiler/runtime/compiler/tfu"
	"github.com/tinyagent-go/llmcompiler/runtime/compiler/tools"
)

// scriptedClient returns planner completions from planResponses in order
// (one per round) and joiner completions from joinResponses in order. Both
// Complete and Stream are satisfied so the same fake backs the planner (via
// Stream) and the joinner (via Complete).
type scriptedClient struct {
	planResponses []string
	joinResponses []string
	planCalls     int
	joinCalls     int
}

func (c *scriptedClient) Complete(ctx context.Context, req model.Request) (string, error) {
	resp := c.joinResponses[c.joinCalls]
	c.joinCalls++
	return resp, nil
}

func (c *scriptedClient) Stream(ctx context.Context, req model.Request) (model.Streamer, error) {
	resp := c.planResponses[c.planCalls]
	c.planCalls++
	return &chunkStreamer{text: resp}, nil
}

type chunkStreamer struct {
	text string
	pos  int
}

func (s *chunkStreamer) Recv(ctx context.Context) (model.Chunk, error) {
	if s.pos >= len(s.text) {
		return model.Chunk{Done: true}, nil
	}
	end := s.pos + 5
	if end > len(s.text) {
		end = len(s.text)
	}
	delta := s.text[s.pos:end]
	s.pos = end
	return model.Chunk{TextDelta: delta}, nil
}

func (s *chunkStreamer) Close() error { return nil }

func newRegistry(t *testing.T) *tools.Registry {
	r := tools.NewRegistry()
	require.NoError(t, r.Register(tools.Spec{
		Name:  "search",
		Arity: 1,
		Fn:    func(ctx context.Context, args []any) (string, error) { return "weather: sunny", nil },
	}))
	return r
}

func TestOrchestrator_Run_FinishesFirstRound(t *testing.T) {
	registry := newRegistry(t)
	client := &scriptedClient{
		planResponses: []string{"1. search(\"weather\")\n2. join()\n<END_OF_PLAN>"},
		joinResponses: []string{"Action: Finish(It is sunny.)"},
	}
	pl := planner.New(client, registry, planner.PromptOptions{Examples: "n/a"}, nil, nil, nil, nil)
	tf := tfu.New(registry, tfu.Options{}, nil, nil)
	jn := joinner.New(client, nil, nil)
	orch := New(pl, tf, jn, -1, nil, nil, nil)

	sink := streamch.NewChan(64)
	go func() {
		for range sink.C() {
		}
	}()

	answer, err := orch.Run(context.Background(), "what's the weather", sink)
	require.NoError(t, err)
	assert.Equal(t, "It is sunny.", answer)
}

func TestOrchestrator_Run_ReplansThenFinishes(t *testing.T) {
	registry := newRegistry(t)
	client := &scriptedClient{
		planResponses: []string{
			"1. search(\"weather\")\n2. join()\n<END_OF_PLAN>",
			"1. search(\"weather again\")\n2. join()\n<END_OF_PLAN>",
		},
		joinResponses: []string{
			"Action: Replan",
			"Action: Finish(It is sunny, confirmed.)",
		},
	}
	pl := planner.New(client, registry, planner.PromptOptions{Examples: "n/a"}, nil, nil, nil, nil)
	tf := tfu.New(registry, tfu.Options{}, nil, nil)
	jn := joinner.New(client, nil, nil)
	orch := New(pl, tf, jn, 1, nil, nil, nil)

	answer, err := orch.Run(context.Background(), "what's the weather", nil)
	require.NoError(t, err)
	assert.Equal(t, "It is sunny, confirmed.", answer)
	assert.Equal(t, 2, client.planCalls)
	assert.Equal(t, 2, client.joinCalls)
}

func TestOrchestrator_Run_SummaryResultSentinelResolved(t *testing.T) {
	registry := newRegistry(t)
	client := &scriptedClient{
		planResponses: []string{"1. search(\"weather\")\n2. join()\n<END_OF_PLAN>"},
		joinResponses: []string{"Action: Finish(SUMMARY_RESULT)"},
	}
	pl := planner.New(client, registry, planner.PromptOptions{Examples: "n/a"}, nil, nil, nil, nil)
	tf := tfu.New(registry, tfu.Options{}, nil, nil)
	jn := joinner.New(client, nil, nil)
	resolver := func(ctx context.Context) (string, bool) { return "cached PDF summary", true }
	orch := New(pl, tf, jn, -1, resolver, nil, nil)

	answer, err := orch.Run(context.Background(), "summarize the pdf", nil)
	require.NoError(t, err)
	assert.Equal(t, "cached PDF summary", answer)
}

func TestOrchestrator_Run_StreamsTokensToSink(t *testing.T) {
	registry := newRegistry(t)
	planText := "1. search(\"weather\")\n2. join()\n<END_OF_PLAN>"
	client := &scriptedClient{
		planResponses: []string{planText},
		joinResponses: []string{"Action: Finish(done)"},
	}
	pl := planner.New(client, registry, planner.PromptOptions{Examples: "n/a"}, nil, nil, nil, nil)
	tf := tfu.New(registry, tfu.Options{}, nil, nil)
	jn := joinner.New(client, nil, nil)
	orch := New(pl, tf, jn, -1, nil, nil, nil)

	sink := streamch.NewChan(64)
	var received strings.Builder
	done := make(chan struct{})
	go func() {
		defer close(done)
		for tok := range sink.C() {
			received.WriteString(tok)
		}
	}()

	_, err := orch.Run(context.Background(), "what's the weather", sink)
	require.NoError(t, err)
	<-done
	assert.Equal(t, planText, received.String())
}
