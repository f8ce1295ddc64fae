package tfu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyagent-go/llmcompiler/runtime/compiler/plan"
)

func TestSubstitute_WholeStringReference(t *testing.T) {
	log := NewObservationLog()
	log.Set(1, "hello")

	out, err := substitute([]plan.Arg{{Literal: "$1"}}, log)
	require.NoError(t, err)
	assert.Equal(t, "hello", out[0])
}

func TestSubstitute_EmbeddedReferenceWithinString(t *testing.T) {
	log := NewObservationLog()
	log.Set(1, "world")

	out, err := substitute([]plan.Arg{{Literal: "hello-$1-suffix"}}, log)
	require.NoError(t, err)
	assert.Equal(t, "hello-world-suffix", out[0])
}

func TestSubstitute_MultipleReferencesWithinOneString(t *testing.T) {
	log := NewObservationLog()
	log.Set(1, "a")
	log.Set(2, "b")

	out, err := substitute([]plan.Arg{{Literal: "$1 and $2"}}, log)
	require.NoError(t, err)
	assert.Equal(t, "a and b", out[0])
}

func TestSubstitute_ListElementStringReference(t *testing.T) {
	log := NewObservationLog()
	log.Set(1, "x@y")

	out, err := substitute([]plan.Arg{{Literal: []any{"$1", "hi"}}}, log)
	require.NoError(t, err)
	assert.Equal(t, []any{"x@y", "hi"}, out[0])
}

func TestSubstitute_UnresolvedEmbeddedReferenceErrors(t *testing.T) {
	log := NewObservationLog()
	_, err := substitute([]plan.Arg{{Literal: "hello-$1-suffix"}}, log)
	assert.Error(t, err)
}

func TestSubstitute_NonStringLiteralPassedThroughUnchanged(t *testing.T) {
	log := NewObservationLog()
	out, err := substitute([]plan.Arg{{Literal: int64(42)}}, log)
	require.NoError(t, err)
	assert.Equal(t, int64(42), out[0])
}
