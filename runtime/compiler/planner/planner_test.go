package planner

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyagent-go/llmcompiler/runtime/compiler/model"
	"github.com/tinyagent-go/llmcompiler/runtime/compiler/plan"
	"github.com/tinyagent-go/llmcompiler/runtime/compiler/tools"
)

type fakeClient struct {
	completeText string
	streamChunks []model.Chunk
}

func (f *fakeClient) Complete(ctx context.Context, req model.Request) (string, error) {
	return f.completeText, nil
}

func (f *fakeClient) Stream(ctx context.Context, req model.Request) (model.Streamer, error) {
	return &fakeStreamer{chunks: f.streamChunks}, nil
}

type fakeStreamer struct {
	chunks []model.Chunk
	pos    int
}

func (s *fakeStreamer) Recv(ctx context.Context) (model.Chunk, error) {
	if s.pos >= len(s.chunks) {
		return model.Chunk{Done: true}, nil
	}
	c := s.chunks[s.pos]
	s.pos++
	return c, nil
}

func (s *fakeStreamer) Close() error { return nil }

func newTestRegistry(t *testing.T) *tools.Registry {
	r := tools.NewRegistry()
	require.NoError(t, r.Register(tools.Spec{
		Name:        "search",
		Description: "search(query: string) -> string",
		Arity:       1,
		Fn:          func(ctx context.Context, args []any) (string, error) { return "ok", nil },
	}))
	return r
}

func chunksFromText(text string) []model.Chunk {
	const width = 4
	var out []model.Chunk
	for i := 0; i < len(text); i += width {
		end := i + width
		if end > len(text) {
			end = len(text)
		}
		out = append(out, model.Chunk{TextDelta: text[i:end]})
	}
	return out
}

func TestPlanner_Plan_NonStreaming(t *testing.T) {
	registry := newTestRegistry(t)
	client := &fakeClient{completeText: "1. search(\"weather\")\n2. join()\n<END_OF_PLAN>"}
	p := New(client, registry, PromptOptions{Examples: "n/a"}, nil, nil, nil, nil)

	result, err := p.Plan(context.Background(), "what's the weather", "", false)
	require.NoError(t, err)
	require.Len(t, result.Tasks, 2)
	assert.Equal(t, "search", string(result.Tasks[0].Tool))
	assert.True(t, result.Tasks[1].IsJoin())
}

func TestPlanner_StreamPlan_EmitsTasksIncrementally(t *testing.T) {
	registry := newTestRegistry(t)
	text := "1. search(\"weather\")\n2. join()\n<END_OF_PLAN>"
	client := &fakeClient{streamChunks: chunksFromText(text)}
	p := New(client, registry, PromptOptions{Examples: "n/a"}, nil, nil, nil, nil)

	ch := make(chan plan.Task, 10)
	err := p.StreamPlan(context.Background(), "what's the weather", "", false, ch, nil)
	require.NoError(t, err)

	var got []plan.Task
	for t := range ch {
		got = append(got, t)
	}
	require.Len(t, got, 2)
	assert.Equal(t, "search", string(got[0].Tool))
	assert.True(t, got[1].IsJoin())
}

func TestPlanner_StreamPlan_RecoversFromParseError(t *testing.T) {
	registry := newTestRegistry(t)
	text := "1. search(\"unterminated)\n"
	client := &fakeClient{streamChunks: chunksFromText(text)}
	p := New(client, registry, PromptOptions{Examples: "n/a"}, nil, nil, nil, nil)

	ch := make(chan plan.Task, 10)
	err := p.StreamPlan(context.Background(), "broken query", "", false, ch, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEarlyStop))

	var got []plan.Task
	for t := range ch {
		got = append(got, t)
	}
	require.Len(t, got, 1)
	assert.True(t, got[0].IsJoin())
	assert.Contains(t, got[0].Thought, "You MUST correct this error and try again!")
}

func TestPlanner_StreamPlan_RecoversFromHallucinatedToolName(t *testing.T) {
	registry := newTestRegistry(t)
	text := "1. nonexistent_tool(\"weather\")\n2. join()\n<END_OF_PLAN>"
	client := &fakeClient{streamChunks: chunksFromText(text)}
	p := New(client, registry, PromptOptions{Examples: "n/a"}, nil, nil, nil, nil)

	ch := make(chan plan.Task, 10)
	err := p.StreamPlan(context.Background(), "what's the weather", "", false, ch, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEarlyStop))

	var got []plan.Task
	for t := range ch {
		got = append(got, t)
	}
	require.Len(t, got, 1)
	assert.True(t, got[0].IsJoin())
	assert.Contains(t, got[0].Thought, "You MUST correct this error and try again!")
	assert.Contains(t, got[0].Thought, "nonexistent_tool")
}

func TestBuildSystemPrompt_IncludesToolsAndReplanGuidance(t *testing.T) {
	registry := newTestRegistry(t)
	prompt := BuildSystemPrompt(registry, PromptOptions{Examples: "EX"}, true)
	assert.True(t, strings.Contains(prompt, "search(query: string)"))
	assert.True(t, strings.Contains(prompt, "join():"))
	assert.True(t, strings.Contains(prompt, `"Previous Plan"`))
	assert.True(t, strings.Contains(prompt, "EX"))
}

func TestBuildSystemPromptForSpecs_NarrowsToGivenSubset(t *testing.T) {
	registry := newTestRegistry(t)
	require.NoError(t, registry.Register(tools.Spec{
		Name:        "weather",
		Description: "weather(city: string) -> string",
		Arity:       1,
		Fn:          func(ctx context.Context, args []any) (string, error) { return "sunny", nil },
	}))

	full := BuildSystemPrompt(registry, PromptOptions{Examples: "EX"}, false)
	assert.True(t, strings.Contains(full, "weather(city: string)"))

	narrowed := BuildSystemPromptForSpecs([]tools.Spec{registry.List()[0]}, PromptOptions{Examples: "EX"}, false)
	assert.True(t, strings.Contains(narrowed, "search(query: string)"))
	assert.False(t, strings.Contains(narrowed, "weather(city: string)"))
	assert.True(t, strings.Contains(narrowed, "join():"))
}

func TestPlanner_PlanWithSpecs_UsesOnlyGivenSubset(t *testing.T) {
	registry := newTestRegistry(t)
	require.NoError(t, registry.Register(tools.Spec{
		Name:        "weather",
		Description: "weather(city: string) -> string",
		Arity:       1,
		Fn:          func(ctx context.Context, args []any) (string, error) { return "sunny", nil },
	}))
	var capturedPrompt string
	client := &capturingClient{
		fakeClient: fakeClient{completeText: "1. search(\"weather\")\n2. join()\n<END_OF_PLAN>"},
		capture:    &capturedPrompt,
	}
	p := New(client, registry, PromptOptions{Examples: "n/a"}, nil, nil, nil, nil)

	subset := []tools.Spec{}
	for _, s := range registry.List() {
		if s.Name == "search" {
			subset = append(subset, s)
		}
	}
	require.Len(t, subset, 1)

	result, err := p.PlanWithSpecs(context.Background(), subset, "what's the weather", "", false)
	require.NoError(t, err)
	require.Len(t, result.Tasks, 2)
	assert.True(t, strings.Contains(capturedPrompt, "search(query: string)"))
	assert.False(t, strings.Contains(capturedPrompt, "weather(city: string)"))
}

func TestPlanner_StreamPlanWithSpecs_UsesOnlyGivenSubset(t *testing.T) {
	registry := newTestRegistry(t)
	require.NoError(t, registry.Register(tools.Spec{
		Name:        "weather",
		Description: "weather(city: string) -> string",
		Arity:       1,
		Fn:          func(ctx context.Context, args []any) (string, error) { return "sunny", nil },
	}))
	text := "1. search(\"weather\")\n2. join()\n<END_OF_PLAN>"
	var capturedPrompt string
	client := &capturingClient{
		fakeClient: fakeClient{streamChunks: chunksFromText(text)},
		capture:    &capturedPrompt,
	}
	p := New(client, registry, PromptOptions{Examples: "n/a"}, nil, nil, nil, nil)

	subset := []tools.Spec{}
	for _, s := range registry.List() {
		if s.Name == "search" {
			subset = append(subset, s)
		}
	}

	ch := make(chan plan.Task, 10)
	err := p.StreamPlanWithSpecs(context.Background(), subset, "what's the weather", "", false, ch, nil)
	require.NoError(t, err)

	var got []plan.Task
	for tk := range ch {
		got = append(got, tk)
	}
	require.Len(t, got, 2)
	assert.False(t, strings.Contains(capturedPrompt, "weather(city: string)"))
}

// capturingClient wraps fakeClient and records the system prompt it was
// invoked with, so tests can assert PlanWithSpecs/StreamPlanWithSpecs build a
// narrowed prompt rather than the full registry's.
type capturingClient struct {
	fakeClient
	capture *string
}

func (c *capturingClient) Complete(ctx context.Context, req model.Request) (string, error) {
	*c.capture = req.Messages[0].Content
	return c.fakeClient.Complete(ctx, req)
}

func (c *capturingClient) Stream(ctx context.Context, req model.Request) (model.Streamer, error) {
	*c.capture = req.Messages[0].Content
	return c.fakeClient.Stream(ctx, req)
}
