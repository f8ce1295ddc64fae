package tfu

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tinyagent-go/llmcompiler/runtime/compiler/plan"
)

// SerializeTranscript renders a round's executed tasks and their
// observations as the textual block fed to the joinner and, on replan, to
// the next planner round. Grounded on spec ss4.3 "Transcript output":
// ascending idx order, one blank-line-separated entry per task of the form
//
//	Idx: {k}
//	Tool: {tool_name}({stringified_args})
//	Thought: ... (only when present)
//	Observation: {observation}
func SerializeTranscript(tasks []plan.Task, log *ObservationLog) string {
	sorted := append([]plan.Task(nil), tasks...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Idx < sorted[j].Idx })

	entries := make([]string, 0, len(sorted))
	for _, t := range sorted {
		obs, _ := log.Get(t.Idx)
		var b strings.Builder
		fmt.Fprintf(&b, "Idx: %d\n", t.Idx)
		fmt.Fprintf(&b, "Tool: %s(%s)\n", t.Tool, t.RawArgs)
		if t.Thought != "" {
			fmt.Fprintf(&b, "Thought: %s\n", t.Thought)
		}
		fmt.Fprintf(&b, "Observation: %s", obs)
		entries = append(entries, b.String())
	}
	return strings.Join(entries, "\n\n")
}
