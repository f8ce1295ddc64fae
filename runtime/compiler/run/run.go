// Package run defines identifiers and lifecycle state for a single query
// executed by the LLM Compiler orchestrator. One Context is created per
// incoming query (cmd/llmcompiler builds one via NewContext); the planner,
// TFU, joinner, and orchestrator do not take it as a parameter, and the core
// does not persist it across queries (spec ss1 Non-goals).
package run

import (
	"time"

	"github.com/google/uuid"
)

type (
	// Context carries execution metadata for a single query. It is created by
	// the caller via NewContext.
	Context struct {
		// RunID uniquely identifies this query's execution.
		RunID string
		// SessionID groups related queries into a conversation thread (optional;
		// the core itself does not use it beyond passing it through to tools and
		// telemetry).
		SessionID string
		// TurnID identifies this query within SessionID (optional).
		TurnID string
		// Labels carries caller-provided metadata (tenant, priority, etc.) for
		// telemetry and tool dispatch.
		Labels map[string]string
	}

	// Record captures durable metadata about a run for observability (see
	// runlog). Distinct from the per-query Observation Log, which holds task
	// outputs, not lifecycle state.
	Record struct {
		RunID     string
		SessionID string
		TurnID    string
		Status    Status
		StartedAt time.Time
		UpdatedAt time.Time
		Labels    map[string]string
	}

	// Status is the coarse-grained lifecycle state of a run.
	Status string
)

const (
	StatusRunning   Status = "running"
	StatusReplanned Status = "replanned"
	StatusFinished  Status = "finished"
	StatusFailed    Status = "failed"
)

// NewID generates a new run identifier.
func NewID() string {
	return uuid.NewString()
}

// NewContext builds a fresh run.Context with a generated RunID.
func NewContext(sessionID, turnID string, labels map[string]string) Context {
	return Context{
		RunID:     NewID(),
		SessionID: sessionID,
		TurnID:    turnID,
		Labels:    labels,
	}
}
