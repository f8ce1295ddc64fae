package redisstream

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCmdable embeds the (large) redis.Cmdable interface and overrides only
// XAdd, the single command redisstream.Sink issues; any other method call
// panics via the nil embedded interface, which is fine since Sink never
// calls them.
type fakeCmdable struct {
	redis.Cmdable
	calls []*redis.XAddArgs
	err   error
}

func (f *fakeCmdable) XAdd(_ context.Context, args *redis.XAddArgs) *redis.IntCmd {
	f.calls = append(f.calls, args)
	cmd := redis.NewIntCmd(context.Background())
	if f.err != nil {
		cmd.SetErr(f.err)
	}
	return cmd
}

func TestNewSink_RequiresClient(t *testing.T) {
	t.Parallel()

	_, err := NewSink(Options{RequestID: "r1"})
	assert.ErrorContains(t, err, "client is required")
}

func TestNewSink_RequiresRequestID(t *testing.T) {
	t.Parallel()

	_, err := NewSink(Options{Client: &fakeCmdable{}})
	assert.ErrorContains(t, err, "request id is required")
}

func TestSink_StreamKey(t *testing.T) {
	t.Parallel()

	sink, err := NewSink(Options{Client: &fakeCmdable{}, RequestID: "req-123"})
	require.NoError(t, err)
	assert.Equal(t, "llmcompiler:stream:req-123", sink.StreamKey())
}

func TestSink_SendPublishesEnvelope(t *testing.T) {
	t.Parallel()

	fake := &fakeCmdable{}
	sink, err := NewSink(Options{Client: fake, RequestID: "req-1"})
	require.NoError(t, err)

	require.NoError(t, sink.Send(context.Background(), "hello"))
	require.Len(t, fake.calls, 1)

	args := fake.calls[0]
	assert.Equal(t, "llmcompiler:stream:req-1", args.Stream)
	raw, ok := args.Values.(map[string]any)["data"]
	require.True(t, ok)

	var env Envelope
	require.NoError(t, json.Unmarshal(raw.([]byte), &env))
	assert.Equal(t, "hello", env.Token)
	assert.False(t, env.Timestamp.IsZero())
}

func TestSink_SendAppliesMaxLen(t *testing.T) {
	t.Parallel()

	fake := &fakeCmdable{}
	sink, err := NewSink(Options{Client: fake, RequestID: "req-1", MaxLen: 100})
	require.NoError(t, err)

	require.NoError(t, sink.Send(context.Background(), "x"))
	require.Len(t, fake.calls, 1)
	assert.Equal(t, int64(100), fake.calls[0].MaxLen)
	assert.True(t, fake.calls[0].Approx)
}

func TestSink_CloseAddsEOFEntry(t *testing.T) {
	t.Parallel()

	fake := &fakeCmdable{}
	sink, err := NewSink(Options{Client: fake, RequestID: "req-1"})
	require.NoError(t, err)

	require.NoError(t, sink.Close(context.Background()))
	require.Len(t, fake.calls, 1)
	assert.Equal(t, "1", fake.calls[0].Values.(map[string]any)["eof"])
}

func TestSink_SendPropagatesError(t *testing.T) {
	t.Parallel()

	fake := &fakeCmdable{err: assertError{"boom"}}
	sink, err := NewSink(Options{Client: fake, RequestID: "req-1"})
	require.NoError(t, err)

	err = sink.Send(context.Background(), "hello")
	assert.ErrorContains(t, err, "boom")
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
