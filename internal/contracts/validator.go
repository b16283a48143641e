package contracts

import (
	"fmt"

	"github.com/kingrea/relay/internal/task"
)

// ValidatePlan checks the plan's I/O wiring beyond structural validation:
// every required input must be produced by a strictly earlier slot, every
// optional input by some step, and no two steps may capture their output
// under the same report type. The full error list is returned so callers can
// surface everything at once.
func ValidatePlan(plan task.Plan) []error {
	if err := plan.Validate(); err != nil {
		return []error{err}
	}

	var errs []error
	producedBy := map[string]string{}
	producedAt := map[string]int{}
	for _, contract := range FromPlan(plan) {
		if prior, exists := producedBy[contract.Produces]; exists {
			errs = append(errs, fmt.Errorf("steps %s and %s both produce report %q", prior, contract.Step, contract.Produces))
			continue
		}
		producedBy[contract.Produces] = contract.Step
		producedAt[contract.Produces] = contract.Slot
	}

	for _, contract := range FromPlan(plan) {
		for _, input := range contract.Consumes {
			slot, ok := producedAt[input]
			if !ok {
				errs = append(errs, fmt.Errorf("step %s consumes report %q which no step produces", contract.Step, input))
				continue
			}
			if slot >= contract.Slot {
				errs = append(errs, fmt.Errorf("step %s consumes report %q which is not produced before its slot", contract.Step, input))
			}
		}
		for _, input := range contract.Optional {
			if _, ok := producedAt[input]; !ok {
				errs = append(errs, fmt.Errorf("step %s optionally consumes report %q which no step produces", contract.Step, input))
			}
		}
	}
	return errs
}
