package orchestrator

import (
	"context"
	"sync"

	"github.com/tinyagent-go/llmcompiler/runtime/compiler/tools"
)

// RunState is per-query mutable state scoped to a single Run call, keyed by
// tool identity. Spec ss5 notes that "tool implementations themselves may
// carry mutable state (e.g., cached summary, compose-email current query);
// this is documented per tool and must be single-request scoped" — in the
// original Python, that mutable state lives directly on a long-lived
// sub-agent object (compose_email_agent.query), which is only safe because
// TinyAgent serves one query at a time. A compiler core serving N concurrent
// queries in one process needs that state scoped per Run instead of shared
// on the tool object, so RunState gives each tool a Get/Set slot keyed by
// its own tools.Ident and threaded through context rather than held on a
// package-level or struct field.
type RunState struct {
	mu    sync.Mutex
	items map[tools.Ident]any
}

// NewRunState constructs an empty RunState.
func NewRunState() *RunState {
	return &RunState{items: make(map[tools.Ident]any)}
}

// Get returns the value a tool previously stored under its own identity,
// and whether anything was stored.
func (s *RunState) Get(tool tools.Ident) (any, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[tool]
	return v, ok
}

// Set stores a value under a tool's identity, overwriting any prior value
// for this Run.
func (s *RunState) Set(tool tools.Ident, value any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[tool] = value
}

type runStateKey struct{}

// WithRunState returns a context carrying state, retrievable by a tool's Fn
// via RunStateFromContext.
func WithRunState(ctx context.Context, state *RunState) context.Context {
	return context.WithValue(ctx, runStateKey{}, state)
}

// RunStateFromContext returns the RunState stored in ctx by Run, if any.
func RunStateFromContext(ctx context.Context) (*RunState, bool) {
	state, ok := ctx.Value(runStateKey{}).(*RunState)
	return state, ok
}
