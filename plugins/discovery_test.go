package plugins

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const reviewPlanYAML = `id: review-loop
name: Review loop
steps:
  - plan
  - tests-design
  - tests-review
  - implement
gates:
  tests-review:
    gating: true
    retry_target: tests-design
    max_retries: 2
io:
  implement:
    consumes: [plan, tests-design]
runtime:
  wait_timeout: 90s
  poll_interval: 1s
`

const fanoutPlanYAML = `id: fanout
steps:
  - plan
  - [performance, security]
  - finalize
`

func writePlan(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadYAMLDirParsesPlans(t *testing.T) {
	dir := t.TempDir()
	writePlan(t, dir, "review.yaml", reviewPlanYAML)
	writePlan(t, dir, "fanout.yml", fanoutPlanYAML)
	writePlan(t, dir, "notes.txt", "not a plan")

	defs, err := LoadYAMLDir(dir)
	if err != nil {
		t.Fatalf("load dir: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("expected 2 plans, got %d", len(defs))
	}
	// Sorted by path: fanout.yml before review.yaml.
	if defs[0].Plan.ID != "fanout" || defs[1].Plan.ID != "review-loop" {
		t.Fatalf("unexpected order: %s, %s", defs[0].Plan.ID, defs[1].Plan.ID)
	}
	if !defs[0].Plan.Steps[1].Parallel() {
		t.Fatal("group slot should parse as parallel")
	}
	gate, ok := defs[1].Plan.Gates["tests-review"]
	if !ok || gate.RetryTarget != "tests-design" || gate.MaxRetries != 2 {
		t.Fatalf("gate not parsed: %+v", gate)
	}
}

func TestLoadYAMLDirMissingIsEmpty(t *testing.T) {
	defs, err := LoadYAMLDir(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("missing dir should not error: %v", err)
	}
	if len(defs) != 0 {
		t.Fatalf("expected no plans, got %d", len(defs))
	}
}

func TestLoadYAMLDirRejectsInvalidPlan(t *testing.T) {
	dir := t.TempDir()
	writePlan(t, dir, "broken.yaml", "id: broken\nsteps: []\n")
	if _, err := LoadYAMLDir(dir); err == nil {
		t.Fatal("expected error for plan without steps")
	}
}

func TestDiscoverMergesAndIndexes(t *testing.T) {
	dir := t.TempDir()
	writePlan(t, dir, "review.yaml", reviewPlanYAML)
	writePlan(t, dir, "fanout.yaml", fanoutPlanYAML)

	lib, err := Discover(dir)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if lib.Len() != 2 {
		t.Fatalf("expected 2 plans, got %d", lib.Len())
	}
	plan, ok := lib.Get("review-loop")
	if !ok {
		t.Fatal("review-loop not indexed")
	}
	if plan.Runtime.WaitTimeout == 0 {
		t.Fatal("discovered plans should be normalized")
	}
	if _, ok := lib.Get("ghost"); ok {
		t.Fatal("unknown id should miss")
	}
	all := lib.All()
	if len(all) != 2 || all[0].Plan.ID != "fanout" {
		t.Fatalf("All() not sorted by id: %+v", all)
	}
}

func TestDiscoverRejectsDuplicateIDs(t *testing.T) {
	dir := t.TempDir()
	writePlan(t, dir, "a.yaml", fanoutPlanYAML)
	writePlan(t, dir, "b.yaml", fanoutPlanYAML)
	_, err := Discover(dir)
	if err == nil {
		t.Fatal("expected duplicate id error")
	}
	if !strings.Contains(err.Error(), "duplicate plan id") {
		t.Fatalf("unexpected error: %v", err)
	}
}
