package worker

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRosterMissingFileYieldsEmptyRoster(t *testing.T) {
	roster, err := LoadRoster(filepath.Join(t.TempDir(), "workers.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(roster.Workers) != 0 {
		t.Fatalf("expected empty roster, got %d bindings", len(roster.Workers))
	}
}

func TestRosterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "team", "workers.json")
	roster := Roster{Workers: []Binding{
		{Steps: []string{"implement"}, Kind: " Exec ", Command: "./run-step.sh"},
		{Steps: []string{"*"}, Kind: "noop"},
	}}
	if err := roster.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadRoster(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Workers) != 2 {
		t.Fatalf("expected 2 bindings, got %d", len(loaded.Workers))
	}
	if loaded.Workers[0].Kind != KindExec {
		t.Fatalf("kind not normalized: %q", loaded.Workers[0].Kind)
	}
}

func TestRosterValidateRequiresExecCommand(t *testing.T) {
	roster := Roster{Workers: []Binding{{Steps: []string{"implement"}, Kind: KindExec}}}
	if err := roster.Validate(); err == nil {
		t.Fatal("expected error for exec binding without command")
	}
}

func TestLoadRosterRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workers.json")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadRoster(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestBindingForPrefersExplicitOverCatchAll(t *testing.T) {
	roster := Roster{Workers: []Binding{
		{Steps: []string{"*"}, Kind: KindNoop},
		{Steps: []string{"implement"}, Kind: KindExec, Command: "impl.sh"},
	}}
	if got := roster.BindingFor("implement"); got.Kind != KindExec {
		t.Fatalf("expected explicit exec binding, got %s", got.Kind)
	}
	if got := roster.BindingFor("review"); got.Kind != KindNoop {
		t.Fatalf("expected catch-all noop, got %s", got.Kind)
	}
}

func TestBindingForFallsBackToNoop(t *testing.T) {
	var roster Roster
	if got := roster.BindingFor("anything"); got.Kind != KindNoop {
		t.Fatalf("expected noop fallback, got %s", got.Kind)
	}
}
