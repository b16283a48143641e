// Package contracts derives per-step I/O expectations from a plan: which
// reports a step reads, which report it writes, and the signal it must leave
// behind. The same contract feeds worker prompts and `relay validate`.
package contracts

import (
	"fmt"
	"strings"

	"github.com/kingrea/relay/internal/task"
)

// Contract describes the I/O surface of one step.
type Contract struct {
	// Step is the step name the contract belongs to.
	Step string
	// Slot is the plan slot the step occupies.
	Slot int
	// Consumes lists report types the step must fetch before working.
	Consumes []string
	// Optional lists report types the step may fetch when present.
	Optional []string
	// Produces is the report type the step's output is captured as.
	Produces string
	// Signal is the signal type the step's attempt completes through.
	Signal string
}

// FromPlan derives the contract for every step in the plan, in slot order.
func FromPlan(plan task.Plan) []Contract {
	var contracts []Contract
	for slot, step := range plan.Steps {
		for _, name := range step.Names {
			contracts = append(contracts, contractFor(plan, slot, name))
		}
	}
	return contracts
}

// For returns the contract for a single named step.
func For(plan task.Plan, name string) (Contract, bool) {
	slot, ok := plan.SlotOf(name)
	if !ok {
		return Contract{}, false
	}
	return contractFor(plan, slot, name), true
}

func contractFor(plan task.Plan, slot int, name string) Contract {
	contract := Contract{
		Step:     name,
		Slot:     slot,
		Produces: plan.ProducesOf(name),
		Signal:   name,
	}
	if binding, ok := plan.IO[name]; ok {
		contract.Consumes = append([]string(nil), binding.Consumes...)
		contract.Optional = append([]string(nil), binding.Optional...)
	}
	return contract
}

// IOBlock renders the workflow I/O contract block injected into a worker
// prompt: the task id, the reports to fetch first, the report type the
// output is captured as, and the required STATUS trailer.
func (c Contract) IOBlock(taskID string) string {
	var b strings.Builder
	b.WriteString("## Workflow I/O Contract\n\n")
	fmt.Fprintf(&b, "You are step `%s` of a multi-step workflow. TASK_ID: `%s`\n\n", c.Step, taskID)
	b.WriteString("### Input: fetch these reports first\n\n")
	if len(c.Consumes) == 0 && len(c.Optional) == 0 {
		b.WriteString("(none - skip this section)\n")
	} else {
		for _, input := range c.Consumes {
			fmt.Fprintf(&b, "- %s (required): relay report get %s %s\n", input, taskID, input)
		}
		for _, input := range c.Optional {
			fmt.Fprintf(&b, "- %s (optional): relay report get %s %s\n", input, taskID, input)
		}
		b.WriteString("\nA missing report returns a \"not available\" message - skip it and continue.\n")
		b.WriteString("Reports summarize previous steps, not current file content; verify against real files before judging.\n")
	}
	fmt.Fprintf(&b, "\n### Output: `%s`\n\n", c.Produces)
	b.WriteString("Your response is captured as the workflow report. Structure it with `## Heading` sections\n")
	b.WriteString("and end the response with `STATUS: PASSED` or `STATUS: FAILED` on its own line.\n")
	return b.String()
}
