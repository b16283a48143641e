package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kingrea/relay/internal/store"
	"github.com/kingrea/relay/internal/task"
)

type stubRunner struct {
	output string
	err    error
	run    func(Request) (Result, error)

	mu   sync.Mutex
	seen []Request
}

func (r *stubRunner) Run(ctx context.Context, req Request) (Result, error) {
	r.mu.Lock()
	r.seen = append(r.seen, req)
	r.mu.Unlock()
	if r.run != nil {
		return r.run(req)
	}
	return Result{Output: r.output}, r.err
}

func newCrewHarness(t *testing.T, runner *stubRunner) (*Crew, *store.FileStore, task.State) {
	t.Helper()
	fileStore := store.NewFileStore(t.TempDir())
	registry := NewRegistry()
	registry.MustRegister("stub", func(Binding) (Runner, error) {
		return runner, nil
	})
	roster := Roster{Workers: []Binding{{Steps: []string{"*"}, Kind: "stub"}}}
	crew, err := NewCrew(fileStore, registry, roster)
	if err != nil {
		t.Fatalf("new crew: %v", err)
	}
	plan, err := task.Plan{
		ID: "feature",
		Steps: []task.Step{
			task.Single("plan"),
			task.Group("performance", "security"),
			task.Single("finalize"),
		},
		IO: map[string]task.IOBinding{
			"performance": {Consumes: []string{"plan"}},
			"finalize":    {Consumes: []string{"performance"}, Optional: []string{"security"}},
		},
	}.Normalized()
	if err != nil {
		t.Fatalf("normalize plan: %v", err)
	}
	state := task.NewState("task-1", plan, time.Now())
	return crew, fileStore, state
}

func TestRunAttemptBackfillsReportAndSignal(t *testing.T) {
	runner := &stubRunner{output: "## Summary\nDrafted the plan.\n\nSTATUS: PASSED"}
	crew, fileStore, state := newCrewHarness(t, runner)

	if err := crew.RunAttempt(context.Background(), state, "plan"); err != nil {
		t.Fatalf("run attempt: %v", err)
	}
	report, err := fileStore.GetReport("task-1", "plan")
	if err != nil {
		t.Fatalf("get report: %v", err)
	}
	if !strings.Contains(report.Content, "Drafted the plan") {
		t.Fatalf("report not backfilled: %q", report.Content)
	}
	sig, err := fileStore.GetSignal("task-1", "plan")
	if err != nil {
		t.Fatalf("get signal: %v", err)
	}
	if sig.Status != store.StatusPassed {
		t.Fatalf("signal status = %s, want passed", sig.Status)
	}
	if !sig.AutoSaved || sig.SavedBy != DefaultCrewName {
		t.Fatalf("signal should carry auto-save provenance, got %+v", sig)
	}
}

func TestRunAttemptPromptCarriesContractAndInputs(t *testing.T) {
	runner := &stubRunner{output: "STATUS: PASSED"}
	crew, fileStore, state := newCrewHarness(t, runner)
	if err := fileStore.PutReport("task-1", "plan", "the plan content"); err != nil {
		t.Fatalf("seed report: %v", err)
	}

	if err := crew.RunAttempt(context.Background(), state, "performance"); err != nil {
		t.Fatalf("run attempt: %v", err)
	}
	if len(runner.seen) != 1 {
		t.Fatalf("expected 1 request, got %d", len(runner.seen))
	}
	prompt := runner.seen[0].Prompt
	for _, fragment := range []string{
		"Workflow I/O Contract",
		"TASK_ID: `task-1`",
		"the plan content",
		"### Output: `performance`",
	} {
		if !strings.Contains(prompt, fragment) {
			t.Fatalf("prompt missing %q:\n%s", fragment, prompt)
		}
	}
}

func TestRunAttemptMissingInputBecomesNote(t *testing.T) {
	runner := &stubRunner{output: "STATUS: PASSED"}
	crew, _, state := newCrewHarness(t, runner)

	if err := crew.RunAttempt(context.Background(), state, "finalize"); err != nil {
		t.Fatalf("run attempt: %v", err)
	}
	prompt := runner.seen[0].Prompt
	if !strings.Contains(prompt, "not available yet") {
		t.Fatalf("missing-input note absent from prompt:\n%s", prompt)
	}
}

func TestRunAttemptRunnerErrorSavesFailedSignal(t *testing.T) {
	runner := &stubRunner{output: "partial output", err: errors.New("exec blew up")}
	crew, fileStore, state := newCrewHarness(t, runner)

	if err := crew.RunAttempt(context.Background(), state, "plan"); err == nil {
		t.Fatal("expected runner error to propagate")
	}
	sig, err := fileStore.GetSignal("task-1", "plan")
	if err != nil {
		t.Fatalf("get signal: %v", err)
	}
	if sig.Status != store.StatusFailed {
		t.Fatalf("signal status = %s, want failed", sig.Status)
	}
	if !strings.HasPrefix(sig.Summary, "ERROR:") {
		t.Fatalf("failure summary should start with ERROR:, got %q", sig.Summary)
	}
	report, err := fileStore.GetReport("task-1", "plan")
	if err != nil {
		t.Fatalf("partial output should still be captured: %v", err)
	}
	if report.Content != "partial output" {
		t.Fatalf("unexpected report content %q", report.Content)
	}
}

func TestRunAttemptRespectsWorkerSavedSignal(t *testing.T) {
	runner := &stubRunner{}
	crew, fileStore, state := newCrewHarness(t, runner)
	runner.run = func(req Request) (Result, error) {
		sig := store.Signal{Status: store.StatusFailed, Summary: "review found gaps"}
		if err := fileStore.PutSignal(req.TaskID, req.Step, sig); err != nil {
			return Result{}, err
		}
		return Result{Output: "wrote my own signal"}, nil
	}

	if err := crew.RunAttempt(context.Background(), state, "plan"); err != nil {
		t.Fatalf("run attempt: %v", err)
	}
	sig, err := fileStore.GetSignal("task-1", "plan")
	if err != nil {
		t.Fatalf("get signal: %v", err)
	}
	if sig.Status != store.StatusFailed || sig.AutoSaved {
		t.Fatalf("worker-saved signal should be kept, got %+v", sig)
	}
}

func TestDispatchFansOutAcrossGroupMembers(t *testing.T) {
	runner := &stubRunner{output: "STATUS: PASSED"}
	crew, fileStore, state := newCrewHarness(t, runner)

	slot := state.Plan.Steps[1]
	if err := crew.Dispatch(context.Background(), state, slot); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	for _, name := range []string{"performance", "security"} {
		if _, err := fileStore.GetSignal("task-1", name); err != nil {
			t.Fatalf("signal for %s missing: %v", name, err)
		}
	}
	if len(runner.seen) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(runner.seen))
	}
}

func TestRunAttemptUnknownStep(t *testing.T) {
	runner := &stubRunner{output: "STATUS: PASSED"}
	crew, _, state := newCrewHarness(t, runner)
	if err := crew.RunAttempt(context.Background(), state, "ghost"); err == nil {
		t.Fatal("expected error for step outside the plan")
	}
}

func TestRegistryRejectsDuplicateKind(t *testing.T) {
	registry := NewRegistry()
	registry.MustRegister("stub", func(Binding) (Runner, error) { return NoopRunner{}, nil })
	if err := registry.Register("stub", func(Binding) (Runner, error) { return NoopRunner{}, nil }); err == nil {
		t.Fatal("expected duplicate registration error")
	}
	if _, err := registry.Resolve(Binding{Kind: "unknown"}); err == nil {
		t.Fatal("expected unknown-kind error")
	}
	kinds := registry.Kinds()
	if len(kinds) != 1 || kinds[0] != "stub" {
		t.Fatalf("unexpected kinds %v", kinds)
	}
}
