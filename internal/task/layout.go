// internal/task/layout.go
//
// Defines the on-disk layout for task material. Everything for one task
// lives under {base}/{taskId}/: reports, signals, and the persisted state.

package task

import (
	"os"
	"path/filepath"
)

// Directory names within a task directory.
const (
	ReportsDir = "reports"
	SignalsDir = "signals"
)

// File names and extensions for task artifacts.
const (
	FileState        = "state.json"
	ReportExt        = ".md"
	SignalExt        = ".json"
	ClearedMarkerExt = ".cleared"
)

// EnvTasksBase overrides the tasks base directory when set.
const EnvTasksBase = "RELAY_TASKS_BASE"

// RelayDirName is the per-project directory relay keeps its material in.
const RelayDirName = ".relay"

// Layout resolves on-disk locations under the tasks base directory.
type Layout struct {
	base string
}

// NewLayout creates a layout rooted at base.
func NewLayout(base string) *Layout {
	return &Layout{base: base}
}

// Base returns the tasks base directory.
func (l *Layout) Base() string {
	return l.base
}

// TaskDir returns the directory holding one task's material.
func (l *Layout) TaskDir(taskID string) string {
	return filepath.Join(l.base, taskID)
}

// ReportsPath returns the reports directory for a task.
func (l *Layout) ReportsPath(taskID string) string {
	return filepath.Join(l.TaskDir(taskID), ReportsDir)
}

// SignalsPath returns the signals directory for a task.
func (l *Layout) SignalsPath(taskID string) string {
	return filepath.Join(l.TaskDir(taskID), SignalsDir)
}

// ReportPath returns the path to one report file.
func (l *Layout) ReportPath(taskID, reportType string) string {
	return filepath.Join(l.ReportsPath(taskID), reportType+ReportExt)
}

// SignalPath returns the path to one signal file.
func (l *Layout) SignalPath(taskID, signalType string) string {
	return filepath.Join(l.SignalsPath(taskID), signalType+SignalExt)
}

// ClearMarkerPath returns the path to the clear stamp recorded by
// ClearSignal and consumed by the waiter's happens-before check.
func (l *Layout) ClearMarkerPath(taskID, signalType string) string {
	return filepath.Join(l.SignalsPath(taskID), signalType+ClearedMarkerExt)
}

// StatePath returns the path to the persisted task state.
func (l *Layout) StatePath(taskID string) string {
	return filepath.Join(l.TaskDir(taskID), FileState)
}

// EnsureTask creates the directory structure for a task.
func (l *Layout) EnsureTask(taskID string) error {
	dirs := []string{
		l.TaskDir(taskID),
		l.ReportsPath(taskID),
		l.SignalsPath(taskID),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// ResolveBase picks the tasks base directory: the explicit value wins, then
// the RELAY_TASKS_BASE environment variable, then .relay/tasks under the
// enclosing git root, then .relay/tasks under the working directory.
func ResolveBase(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if env := os.Getenv(EnvTasksBase); env != "" {
		return env, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return resolveBaseFrom(wd), nil
}

func resolveBaseFrom(dir string) string {
	if root, ok := gitRoot(dir); ok {
		return filepath.Join(root, RelayDirName, "tasks")
	}
	return filepath.Join(dir, RelayDirName, "tasks")
}

func gitRoot(start string) (string, bool) {
	dir := start
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}
