// Package model defines the LLM contract the Streaming Planner and Joinner
// depend on (spec ss6): streaming chat completion with system/human messages
// and stop sequences, plus a non-streaming variant for the Joinner's
// Finish/Replan decision. It is deliberately narrower than a full
// provider-native tool-calling contract (see features/model/anthropic in the
// teacher) because the LLM Compiler plan format is plain text, not a
// provider's structured tool_use blocks (original_source's Planner never
// passes `tools=` to the chat model — it encodes the whole action grammar in
// the system prompt instead).
package model

import "context"

// Role distinguishes the two message roles the planner ever sends. The
// compiler core never needs an "assistant" role in its own request
// construction (prior turns are folded into the human message as
// "Previous Plan" / "Observation" context, per generate_llm_compiler_prompt).
type Role string

const (
	RoleSystem Role = "system"
	RoleHuman  Role = "human"
)

// Message is one turn of a chat completion request.
type Message struct {
	Role    Role
	Content string
}

// Request describes a single completion request.
type Request struct {
	Messages []Message
	// Stop holds stop sequences; the planner uses this to halt generation at
	// "<END_OF_PLAN>" boundaries in provider SDKs that support it natively,
	// though the compiler's own StreamParser also recognizes the sentinel
	// textually regardless of provider stop-sequence support.
	Stop []string
	// MaxTokens bounds the completion length; zero means provider default.
	MaxTokens int
	// Temperature controls sampling randomness; zero means the adapter's
	// configured temperature, and when that is also zero no temperature is
	// sent, so the provider's own default applies.
	Temperature float64
}

// Chunk is one piece of a streamed completion.
type Chunk struct {
	// TextDelta is the incremental text produced since the previous chunk.
	TextDelta string
	// Done marks the final chunk of the stream; TextDelta may be empty.
	Done bool
	// StopReason is set on the final chunk when the provider reports one
	// (e.g. "stop_sequence", "end_turn", "max_tokens").
	StopReason string
}

// Streamer receives chunks from a streaming completion. Recv returns
// io.EOF-shaped termination via Chunk.Done rather than a sentinel error, so
// callers don't need to special-case io.EOF from a non-I/O source.
type Streamer interface {
	Recv(ctx context.Context) (Chunk, error)
	Close() error
}

// Client is the LLM contract the planner and joinner depend on.
type Client interface {
	// Complete runs a non-streaming completion, returning the full text.
	Complete(ctx context.Context, req Request) (string, error)
	// Stream runs a streaming completion, returning a Streamer the caller
	// drains until Chunk.Done.
	Stream(ctx context.Context, req Request) (Streamer, error)
}
