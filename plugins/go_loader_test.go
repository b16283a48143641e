package plugins

import (
	"os"
	"path/filepath"
	"testing"
)

const goPlanScript = `package main

func PlanDefinitions() ([]map[string]any, error) {
	return []map[string]any{
		{
			"id":    "scripted",
			"steps": []any{"plan", "implement"},
			"gates": map[string]any{
				"implement": map[string]any{
					"gating":       true,
					"retry_target": "plan",
					"max_retries":  1,
				},
			},
		},
	}, nil
}
`

func TestLoadGoDirEvaluatesScripts(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "scripted.go"), []byte(goPlanScript), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}

	defs, err := LoadGoDir(dir)
	if err != nil {
		t.Fatalf("load go dir: %v", err)
	}
	if len(defs) != 1 {
		t.Fatalf("expected 1 plan, got %d", len(defs))
	}
	plan := defs[0].Plan
	if plan.ID != "scripted" || len(plan.Steps) != 2 {
		t.Fatalf("unexpected plan %+v", plan)
	}
	gate, ok := plan.Gates["implement"]
	if !ok || !gate.Gating || gate.RetryTarget != "plan" {
		t.Fatalf("gate not carried through: %+v", gate)
	}
}

func TestLoadGoDirRejectsScriptWithoutEntrypoint(t *testing.T) {
	dir := t.TempDir()
	script := "package main\n\nfunc Other() {}\n"
	if err := os.WriteFile(filepath.Join(dir, "other.go"), []byte(script), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	if _, err := LoadGoDir(dir); err == nil {
		t.Fatal("expected missing entrypoint error")
	}
}

func TestLoadGoDirMissingIsEmpty(t *testing.T) {
	defs, err := LoadGoDir(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("missing dir should not error: %v", err)
	}
	if len(defs) != 0 {
		t.Fatalf("expected no plans, got %d", len(defs))
	}
}
