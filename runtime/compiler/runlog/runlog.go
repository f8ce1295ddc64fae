// Package runlog provides a durable, append-only event log for compiler
// runs: one entry per planning round's transcript plus the final decision,
// so a query's full plan/execute/join/replan history can be replayed or
// audited after the fact. Grounded on runtime/agent/runlog/runlog.go's
// Event/Page/Store shape, narrowed to the compiler's own event vocabulary.
package runlog

import (
	"context"
	"encoding/json"
	"time"
)

// EventType distinguishes the kind of compiler lifecycle event recorded.
type EventType string

const (
	EventPlanRound  EventType = "plan_round"
	EventJoin       EventType = "join_decision"
	EventReplan     EventType = "replan"
	EventFinish     EventType = "finish"
	EventFatalError EventType = "fatal_error"
)

// Event is a single immutable run event appended to the run log.
type Event struct {
	// ID is the store-assigned opaque identifier for this event.
	ID string
	// RunID is the identifier of the run (spec ss1 Context.RunID) this event
	// belongs to.
	RunID string
	// SessionID groups related runs into a conversation thread.
	SessionID string
	// TurnID identifies the conversational turn within the session.
	TurnID string
	// Type is the compiler lifecycle event type.
	Type EventType
	// Payload is the canonical JSON-encoded payload for the event (e.g. a
	// serialized transcript, a joinner Decision, an error string).
	Payload json.RawMessage
	// Timestamp is the event time.
	Timestamp time.Time
}

// Page is a forward page of run events.
type Page struct {
	// Events are ordered oldest-first.
	Events []*Event
	// NextCursor is the cursor to use to fetch the next page; empty when
	// there are no further events.
	NextCursor string
}

// Store is an append-only event store for run introspection. Implementations
// must provide stable ordering within a run; cursor values are store-owned
// and opaque to callers.
type Store interface {
	// Append stores the event in the run log. Store implementations assign
	// the event ID and persist the payload verbatim.
	Append(ctx context.Context, e *Event) error

	// List returns the next forward page of events for the given run ID.
	// Cursor is an opaque value returned by a previous call to List (or
	// empty to start from the beginning). Limit must be greater than zero.
	List(ctx context.Context, runID string, cursor string, limit int) (Page, error)
}
