// Package plugins discovers plan definitions under .relay/plans. Plans can
// be declared as YAML files or as Go scripts interpreted at discovery time;
// both forms normalize to the same task.Plan and are addressed by plan id.
package plugins

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kingrea/relay/internal/task"
)

// PlanDefinition pairs a parsed plan with its on-disk source.
type PlanDefinition struct {
	Plan task.Plan
	Path string
}

// LoadPlanFile reads a YAML file from disk and returns the parsed plan.
func LoadPlanFile(path string) (PlanDefinition, error) {
	info, err := os.Stat(path)
	if err != nil {
		return PlanDefinition{}, fmt.Errorf("plugin: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return PlanDefinition{}, fmt.Errorf("plugin: %s is a directory", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return PlanDefinition{}, fmt.Errorf("plugin: read %s: %w", path, err)
	}
	plan, err := task.ParsePlanYAML(data)
	if err != nil {
		return PlanDefinition{}, fmt.Errorf("plugin: %s: %w", path, err)
	}
	return PlanDefinition{Plan: plan, Path: filepath.Clean(path)}, nil
}
