package contracts

import (
	"fmt"

	"github.com/kingrea/relay/internal/task"
)

// Report captures the validation result for one plan file.
type Report struct {
	Path   string
	PlanID string
	Errors []error
}

// ValidatePlanFile loads and validates a plan file.
func ValidatePlanFile(path string) (*Report, error) {
	plan, err := task.LoadPlanFile(path)
	if err != nil {
		return nil, fmt.Errorf("load plan file: %w", err)
	}
	return &Report{
		Path:   path,
		PlanID: plan.ID,
		Errors: ValidatePlan(plan),
	}, nil
}

// IsValid reports whether the validation passed.
func (r *Report) IsValid() bool {
	return r != nil && len(r.Errors) == 0
}
