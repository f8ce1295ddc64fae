package joinner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyagent-go/llmcompiler/runtime/compiler/model"
)

type fakeClient struct{ response string }

func (f *fakeClient) Complete(ctx context.Context, req model.Request) (string, error) {
	return f.response, nil
}
func (f *fakeClient) Stream(ctx context.Context, req model.Request) (model.Streamer, error) {
	panic("not used")
}

func TestParse_Finish(t *testing.T) {
	d := Parse("Thought: all good\nAction: Finish(the answer is 42)")
	assert.True(t, d.Finished)
	assert.Equal(t, "the answer is 42", d.Message)
	assert.Equal(t, "all good", d.Thought)
}

func TestParse_Replan(t *testing.T) {
	d := Parse("Thought: try again needed\nAction: Replan")
	assert.False(t, d.Finished)
}

func TestParse_FinishMessageWithParens(t *testing.T) {
	d := Parse("Action: Finish(the result is (42) and that's final)")
	assert.True(t, d.Finished)
	assert.Equal(t, "the result is (42) and that's final", d.Message)
}

func TestParse_MalformedIsEmptyFinish(t *testing.T) {
	d := Parse("this is not a valid joinner response")
	assert.True(t, d.Finished)
	assert.Equal(t, "", d.Message)
}

func TestJoinner_Decide_FinalRoundCoercesReplanToFinish(t *testing.T) {
	j := New(&fakeClient{response: "Action: Replan"}, nil, nil)
	d, err := j.Decide(context.Background(), "q", "transcript", true)
	require.NoError(t, err)
	assert.True(t, d.Finished)
}

func TestJoinner_Decide_NormalReplan(t *testing.T) {
	j := New(&fakeClient{response: "Action: Replan"}, nil, nil)
	d, err := j.Decide(context.Background(), "q", "transcript", false)
	require.NoError(t, err)
	assert.False(t, d.Finished)
}

func TestJoinner_Decide_SummaryResultSentinel(t *testing.T) {
	j := New(&fakeClient{response: "Action: Finish(SUMMARY_RESULT)"}, nil, nil)
	d, err := j.Decide(context.Background(), "q", "transcript", false)
	require.NoError(t, err)
	assert.True(t, d.Finished)
	assert.Equal(t, SummaryResult, d.Message)
}
