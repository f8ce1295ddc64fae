// Package tools implements the Tool Registry (spec ss4, C1): the set of
// callable tools by name, with argument arity, a human-readable description
// for planner prompts, and optional JSON-Schema argument validation.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Ident is the strong type for tool names. Using a distinct type from plain
// string avoids accidentally mixing free-form strings with registered tool
// identifiers across the planner/TFU boundary.
type Ident string

func (i Ident) String() string { return string(i) }

// JoinName is the reserved tool name for the distinguished join action (spec
// ss3: "join" is reserved and never registered).
const JoinName Ident = "join"

// Invoke executes a tool call with the given positional arguments and
// returns the observation string, or an error. Implementations are supplied
// by the caller; the core only sees tools through this interface (spec ss1).
type Invoke func(ctx context.Context, args []any) (string, error)

// Spec describes one registered tool: its name, description (embedded
// verbatim into the planner prompt), fixed positional arity, optional JSON
// Schema for its argument tuple, and its invocation function.
type Spec struct {
	// Name is the unique tool identifier.
	Name Ident
	// Description is embedded verbatim into the planner prompt (spec ss6).
	Description string
	// Arity is the fixed positional argument count. A negative value means
	// variadic (no arity check is performed).
	Arity int
	// ArgsSchema optionally validates the argument tuple (encoded as a JSON
	// array) before dispatch. Nil disables schema validation.
	ArgsSchema *jsonschema.Schema
	// Fn is the tool's invocation function.
	Fn Invoke
}

// Registry holds the set of callable tools by name. A Registry is immutable
// for the lifetime of a query (spec ss3 "Lifecycle: constructed at
// orchestrator init; immutable for the lifetime of a query").
type Registry struct {
	mu    sync.RWMutex
	tools map[Ident]Spec
	order []Ident
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[Ident]Spec)}
}

// Register adds a tool to the registry. It returns an error if the name is
// empty, already registered, or equal to the reserved "join" name (spec ss3
// invariant: tool names are unique; "join" is reserved).
func (r *Registry) Register(spec Spec) error {
	if spec.Name == "" {
		return fmt.Errorf("tools: tool name is required")
	}
	if spec.Name == JoinName {
		return fmt.Errorf("tools: %q is reserved and cannot be registered", JoinName)
	}
	if spec.Fn == nil {
		return fmt.Errorf("tools: tool %q has no invoke function", spec.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.tools[spec.Name]; dup {
		return fmt.Errorf("tools: tool %q already registered", spec.Name)
	}
	r.tools[spec.Name] = spec
	r.order = append(r.order, spec.Name)
	return nil
}

// MustRegister is like Register but panics on error. Intended for static
// tool wiring at orchestrator init, where a registration failure is a
// programmer error.
func (r *Registry) MustRegister(spec Spec) {
	if err := r.Register(spec); err != nil {
		panic(err)
	}
}

// Lookup returns the tool spec for name, if registered.
func (r *Registry) Lookup(name Ident) (Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.tools[name]
	return s, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name Ident) bool {
	_, ok := r.Lookup(name)
	return ok
}

// List returns all registered tools in registration order.
func (r *Registry) List() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Spec, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Names returns the sorted list of registered tool names. Useful for
// deterministic test assertions and diagnostics.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, string(name))
	}
	sort.Strings(out)
	return out
}

// ValidateArgs checks args against the tool's declared arity and, if
// present, its JSON Schema. It is the Tool Registry's half of spec ss7 item 4
// ("Argument-shape error detected at tool boundary"); callers store the
// returned error as the task's observation per the Tool-error policy.
func (s Spec) ValidateArgs(args []any) error {
	if s.Arity >= 0 && len(args) != s.Arity {
		return fmt.Errorf("tool %q expects %d argument(s), got %d", s.Name, s.Arity, len(args))
	}
	if s.ArgsSchema == nil {
		return nil
	}
	asAny := make([]any, len(args))
	copy(asAny, args)
	if err := s.ArgsSchema.Validate(asAny); err != nil {
		return fmt.Errorf("tool %q argument validation: %w", s.Name, err)
	}
	return nil
}

// CompileArgsSchema compiles a JSON Schema document (as a map, matching the
// shape produced by encoding/json.Unmarshal) describing the argument tuple
// for a tool. Compilation errors are a programmer error at wiring time.
func CompileArgsSchema(id string, doc map[string]any) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(id, doc); err != nil {
		return nil, fmt.Errorf("tools: add schema resource %q: %w", id, err)
	}
	schema, err := c.Compile(id)
	if err != nil {
		return nil, fmt.Errorf("tools: compile schema %q: %w", id, err)
	}
	return schema, nil
}
