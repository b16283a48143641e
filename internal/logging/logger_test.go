package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesToFileSink(t *testing.T) {
	dir := t.TempDir()
	logger, closer, err := New(Options{Dir: dir})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	comp := Component(logger, "orchestrator")
	comp.Info().Str("task_id", "task-1").Msg("dispatched")
	if err := closer(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := string(data)
	for _, want := range []string{`"component":"orchestrator"`, `"task_id":"task-1"`, `"message":"dispatched"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("log line missing %s: %s", want, line)
		}
	}
}

func TestNewWithoutSinksIsNop(t *testing.T) {
	logger, closer, err := New(Options{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	logger.Info().Msg("dropped")
	if err := closer(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestDebugLevelLowersThreshold(t *testing.T) {
	dir := t.TempDir()
	logger, closer, err := New(Options{Dir: dir, Debug: true})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	logger.Debug().Msg("verbose detail")
	closer()
	data, _ := os.ReadFile(filepath.Join(dir, FileName))
	if !strings.Contains(string(data), "verbose detail") {
		t.Fatalf("debug line should be written, got %s", data)
	}
}
