package task

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultPlanDir points to the conventional location for YAML plan files
// when loading from disk.
const DefaultPlanDir = "plans"

// ParsePlanYAML decodes a plan from YAML/JSON bytes and normalizes it.
func ParsePlanYAML(data []byte) (Plan, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Plan{}, fmt.Errorf("task: plan payload is empty")
	}
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return Plan{}, fmt.Errorf("task: decode plan: %w", err)
	}
	return plan.Normalized()
}

// LoadPlanReader reads plan data from an io.Reader.
func LoadPlanReader(r io.Reader) (Plan, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return Plan{}, fmt.Errorf("task: read plan: %w", err)
	}
	return ParsePlanYAML(content)
}

// LoadPlanFile loads a plan from an explicit file path.
func LoadPlanFile(path string) (Plan, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, fmt.Errorf("task: read %s: %w", path, err)
	}
	plan, parseErr := ParsePlanYAML(content)
	if parseErr != nil {
		return Plan{}, fmt.Errorf("task: %s: %w", path, parseErr)
	}
	return plan, nil
}

// LoadPlanRelative loads a plan from the plans directory (or a custom
// baseDir if provided).
func LoadPlanRelative(baseDir, name string) (Plan, error) {
	if baseDir == "" {
		baseDir = DefaultPlanDir
	}
	path := filepath.Join(baseDir, name)
	return LoadPlanFile(path)
}
