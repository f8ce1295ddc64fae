package planner

import (
	"fmt"
	"strings"

	"github.com/tinyagent-go/llmcompiler/runtime/compiler/plan"
	"github.com/tinyagent-go/llmcompiler/runtime/compiler/tools"
)

// joinDescription is the fixed description of the distinguished join action,
// appended after every registered tool's description. Ported near-verbatim
// from JOIN_DESCRIPTION in
// original_source/src/llm_compiler/planner.py.
const joinDescription = "join():\n" +
	" - Collects and combines results from prior actions.\n" +
	" - An LLM agent is called upon invoking join to either finalize the user query or wait until the plans are executed.\n" +
	" - join should always be the last action in the plan, and will be called in two scenarios:\n" +
	"   (a) if the answer can be determined by gathering the outputs from tasks to generate the final response.\n" +
	"   (b) if the answer cannot be determined in the planning phase before you execute the plans."

// PromptOptions carries caller-provided customization for prompt assembly.
type PromptOptions struct {
	// CustomInstructions, if non-empty, is inserted verbatim after the fixed
	// guidelines block (spec ss6: "conditional clauses").
	CustomInstructions string
	// Examples is a pre-formatted block of few-shot examples appended at the
	// end of the prompt.
	Examples string
	// Clauses is the fixed, enumerated catalogue of tool-conditional prompt
	// instructions (spec ss4.2 item 3). A nil Clauses contributes nothing.
	Clauses *ClauseCatalogue
}

// BuildSystemPrompt assembles the planner's system prompt: the fixed prefix,
// one numbered line per registered tool plus the join action, the
// guidelines block, optional custom instructions, replan-specific guidance
// when isReplan is true, and the examples block. Grounded directly on
// generate_llm_compiler_prompt in
// original_source/src/llm_compiler/planner.py.
func BuildSystemPrompt(registry *tools.Registry, opts PromptOptions, isReplan bool) string {
	return BuildSystemPromptForSpecs(registry.List(), opts, isReplan)
}

// BuildSystemPromptForSpecs is BuildSystemPrompt narrowed to a caller-chosen
// subset of tool specs rather than a whole Registry's contents, so a
// retrieval component (tool RAG) can shrink the prompt to only the tools
// plausibly relevant to one query (see Planner.PlanWithSpecs).
func BuildSystemPromptForSpecs(specs []tools.Spec, opts PromptOptions, isReplan bool) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Given a user query, create a plan to solve it with the utmost parallelizability. "+
		"Each plan should comprise an action from the following %d types:\n", len(specs)+1)

	for i, t := range specs {
		fmt.Fprintf(&b, "%d. %s\n", i+1, t.Description)
	}
	fmt.Fprintf(&b, "%d. %s\n\n", len(specs)+1, joinDescription)

	b.WriteString("Guidelines:\n" +
		" - Each action described above contains input/output types and description.\n" +
		"    - You must strictly adhere to the input and output types for each action.\n" +
		"    - The action descriptions contain the guidelines. You MUST strictly follow those guidelines when you use the actions.\n" +
		" - Each action in the plan should strictly be one of the above types. Follow standard conventions for each action.\n" +
		" - Each action MUST have a unique ID, which is strictly increasing.\n" +
		" - Inputs for actions can either be constants or outputs from preceding actions. " +
		"In the latter case, use the format $id to denote the ID of the previous action whose output will be the input.\n" +
		fmt.Sprintf(" - Always call join as the last action in the plan. Say %q after you call join\n", plan.EndOfPlan) +
		" - Ensure the plan maximizes parallelizability.\n" +
		" - Only use the provided action types. If a query cannot be addressed using these, invoke the join action for the next steps.\n" +
		" - Never explain the plan with comments (e.g. #).\n" +
		" - Never introduce new actions other than the ones provided.\n\n")

	if clauses := opts.Clauses.Applicable(specs); len(clauses) > 0 {
		for _, instruction := range clauses {
			fmt.Fprintf(&b, "%s\n", instruction)
		}
		b.WriteString("\n")
	}

	if opts.CustomInstructions != "" {
		fmt.Fprintf(&b, "%s\n\n", opts.CustomInstructions)
	}

	if isReplan {
		b.WriteString(` - You are given "Previous Plan" which is the plan that the previous agent created along with the execution results ` +
			`(given as Observation) of each plan and a general thought (given as Thought) about the executed results. ` +
			"You MUST use this information to create the next plan under \"Current Plan\".\n" +
			" - When starting the Current Plan, you should start with \"Thought\" that outlines the strategy for the next plan.\n" +
			" - In the Current Plan, you should NEVER repeat the actions that are already executed in the Previous Plan.\n")
	}

	b.WriteString("Here are some examples:\n\n")
	b.WriteString(opts.Examples)

	return b.String()
}

// BuildHumanPrompt assembles the per-query human message. When context is
// non-empty (the replan case), it is appended after the question, mirroring
// run_llm's `f"Question: {inputs['input']}\n{inputs['context']}\n"`.
func BuildHumanPrompt(query, context string) string {
	if context == "" {
		return fmt.Sprintf("Question: %s", query)
	}
	return fmt.Sprintf("Question: %s\n%s\n", query, context)
}
