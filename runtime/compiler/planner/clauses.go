package planner

import "github.com/tinyagent-go/llmcompiler/runtime/compiler/tools"

// Clause is one tool-conditional prompt instruction (spec ss4.2 item 3):
// "for each subset of tools present in the registry, a corresponding
// instruction is appended." A Clause fires when all of its Requires tools
// are registered, contributing its Instruction line to the prompt.
//
// Grounded on tiny_agent_tools.py's get_email_address_tool /
// get_send_sms_tool / get_compose_new_email_tool ordering: the agent is
// expected to resolve a contact name to an email address via
// get_email_address before handing it to an email- or SMS-sending tool, but
// nothing in the tool descriptions themselves enforces that order — the
// constraint lives only in prompt guidance.
type Clause struct {
	// Requires lists the tool names that must all be present in the plan's
	// registry for this clause to apply.
	Requires []tools.Ident
	// Instruction is the guideline line appended to the prompt when Requires
	// is satisfied.
	Instruction string
}

// applies reports whether every tool in c.Requires is present in have.
func (c Clause) applies(have map[tools.Ident]bool) bool {
	for _, name := range c.Requires {
		if !have[name] {
			return false
		}
	}
	return true
}

// DefaultClauses is the fixed, enumerated catalogue of conditional clauses
// (spec ss4.2: "the full list of conditional clauses is fixed and enumerated
// in the configuration"). Callers that register additional tool-ordering
// constraints build their own catalogue with NewClauseCatalogue and pass it
// via PromptOptions.Clauses; DefaultClauses covers the one concrete instance
// original_source demonstrates.
var DefaultClauses = []Clause{
	{
		Requires: []tools.Ident{"get_email_address", "compose_email"},
		Instruction: " - Always resolve a contact's name to an email address with get_email_address " +
			"before calling compose_email with that recipient.",
	},
	{
		Requires: []tools.Ident{"get_email_address", "send_sms"},
		Instruction: " - Always resolve a contact's name to a phone number with get_email_address " +
			"before calling send_sms with that recipient.",
	},
}

// ClauseCatalogue holds the fixed set of conditional clauses available to a
// Planner and resolves which apply to a given tool subset.
type ClauseCatalogue struct {
	clauses []Clause
}

// NewClauseCatalogue builds a catalogue from an explicit clause list. A nil
// or empty list is valid and yields a catalogue that never contributes
// instructions.
func NewClauseCatalogue(clauses []Clause) *ClauseCatalogue {
	return &ClauseCatalogue{clauses: clauses}
}

// Applicable returns the Instruction line of every clause in the catalogue
// whose Requires are all present in specs, in catalogue order.
func (c *ClauseCatalogue) Applicable(specs []tools.Spec) []string {
	if c == nil || len(c.clauses) == 0 {
		return nil
	}
	have := make(map[tools.Ident]bool, len(specs))
	for _, s := range specs {
		have[s.Name] = true
	}
	var out []string
	for _, clause := range c.clauses {
		if clause.applies(have) {
			out = append(out, clause.Instruction)
		}
	}
	return out
}
