package task

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLayoutPaths(t *testing.T) {
	l := NewLayout("/tmp/tasks")
	if got := l.ReportPath("task-1", "plan"); got != filepath.Join("/tmp/tasks", "task-1", "reports", "plan.md") {
		t.Fatalf("report path = %s", got)
	}
	if got := l.SignalPath("task-1", "review"); got != filepath.Join("/tmp/tasks", "task-1", "signals", "review.json") {
		t.Fatalf("signal path = %s", got)
	}
	if got := l.ClearMarkerPath("task-1", "review"); got != filepath.Join("/tmp/tasks", "task-1", "signals", "review.cleared") {
		t.Fatalf("clear marker path = %s", got)
	}
	if got := l.StatePath("task-1"); got != filepath.Join("/tmp/tasks", "task-1", "state.json") {
		t.Fatalf("state path = %s", got)
	}
}

func TestEnsureTaskCreatesStructure(t *testing.T) {
	l := NewLayout(t.TempDir())
	if err := l.EnsureTask("task-1"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	for _, dir := range []string{l.TaskDir("task-1"), l.ReportsPath("task-1"), l.SignalsPath("task-1")} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("missing directory %s: %v", dir, err)
		}
	}
}

func TestResolveBasePrefersEnv(t *testing.T) {
	t.Setenv(EnvTasksBase, "/override/tasks")
	base, err := ResolveBase("")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if base != "/override/tasks" {
		t.Fatalf("base = %s", base)
	}
	if base, _ := ResolveBase("/explicit"); base != "/explicit" {
		t.Fatalf("explicit should win, got %s", base)
	}
}

func TestResolveBaseFindsGitRoot(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, ".git"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if got := resolveBaseFrom(nested); got != filepath.Join(root, RelayDirName, "tasks") {
		t.Fatalf("base = %s", got)
	}
	outside := t.TempDir()
	if got := resolveBaseFrom(outside); got != filepath.Join(outside, RelayDirName, "tasks") {
		t.Fatalf("fallback base = %s", got)
	}
}
