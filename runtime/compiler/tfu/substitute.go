package tfu

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/tinyagent-go/llmcompiler/runtime/compiler/plan"
)

// dollarRef matches a "$k" occurrence inside a string literal, mirroring
// plan.dollarRef: spec ss4.3 requires every such substring in a string
// argument to be textually replaced by task k's observation, not just a
// whole-string bare reference.
var dollarRef = regexp.MustCompile(`\$(\d+)`)

// dependenciesReady reports whether every task index t depends on has a
// recorded observation in log.
func dependenciesReady(t plan.Task, log *ObservationLog) bool {
	for _, d := range t.Deps {
		if _, ok := log.Get(d); !ok {
			return false
		}
	}
	return true
}

// substitute resolves every "$k" reference in args against log, returning
// the fully-literal argument list ready to pass to a tool's Invoke function.
// Resolution walks into the elements of a list literal, matching
// plan.ParseArgs's representation of nested "$k" tokens as plan.Arg values
// inside a []any; a list nested inside a list is passed through unchanged.
// Callers must only invoke this once dependenciesReady has returned true.
func substitute(args []plan.Arg, log *ObservationLog) ([]any, error) {
	out := make([]any, len(args))
	for i, a := range args {
		v, err := substituteOne(a, log)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func substituteOne(a plan.Arg, log *ObservationLog) (any, error) {
	if a.IsRef {
		v, ok := log.Get(a.RefIndex)
		if !ok {
			return nil, fmt.Errorf("tfu: unresolved reference to task %d", a.RefIndex)
		}
		return v, nil
	}
	switch lit := a.Literal.(type) {
	case string:
		return substituteString(lit, log)
	case []any:
		resolved := make([]any, len(lit))
		for i, item := range lit {
			switch x := item.(type) {
			case plan.Arg:
				v, err := substituteOne(x, log)
				if err != nil {
					return nil, err
				}
				resolved[i] = v
			case string:
				v, err := substituteString(x, log)
				if err != nil {
					return nil, err
				}
				resolved[i] = v
			default:
				resolved[i] = x
			}
		}
		return resolved, nil
	default:
		return a.Literal, nil
	}
}

// substituteString replaces every "$k" substring in s with task k's
// observation from log (spec ss4.3: textual replace, applied exactly once
// per occurrence).
func substituteString(s string, log *ObservationLog) (string, error) {
	var firstErr error
	replaced := dollarRef.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}
		idx, _ := strconv.Atoi(dollarRef.FindStringSubmatch(match)[1])
		v, ok := log.Get(idx)
		if !ok {
			firstErr = fmt.Errorf("tfu: unresolved reference to task %d", idx)
			return match
		}
		return v
	})
	if firstErr != nil {
		return "", firstErr
	}
	return replaced, nil
}
