package store

import (
	"errors"
	"path/filepath"
	"testing"
)

func newSQLStore(t *testing.T) (*SQLStore, *testClock) {
	t.Helper()
	clock := newTestClock()
	s, err := OpenSQL(filepath.Join(t.TempDir(), "relay.db"), WithSQLClock(clock.Now))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, clock
}

func TestSQLReportOverwrite(t *testing.T) {
	s, _ := newSQLStore(t)
	if err := s.PutReport("task-1", "plan", "first"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.PutReport("task-1", "plan", "second"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	report, err := s.GetReport("task-1", "plan")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if report.Content != "second" {
		t.Fatalf("latest write should win, got %q", report.Content)
	}
	if _, err := s.GetReport("task-2", "plan"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("tasks must be isolated, got %v", err)
	}
}

func TestSQLSignalLifecycle(t *testing.T) {
	s, _ := newSQLStore(t)
	if err := s.PutSignal("task-1", "review", Signal{Status: "partial"}); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("partial should be rejected, got %v", err)
	}
	if err := s.PutSignal("task-1", "review", Signal{Status: StatusFailed, Summary: "needs work", AutoSaved: true, SavedBy: "crew"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	sig, err := s.GetSignal("task-1", "review")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sig.Status != StatusFailed || sig.Summary != "needs work" || !sig.AutoSaved || sig.SavedBy != "crew" {
		t.Fatalf("unexpected signal: %+v", sig)
	}
	writtenAt := sig.WrittenAt

	if err := s.ClearSignal("task-1", "review"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := s.GetSignal("task-1", "review"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cleared signal should be gone, got %v", err)
	}
	cleared, err := s.LastCleared("task-1", "review")
	if err != nil {
		t.Fatalf("last cleared: %v", err)
	}
	if !cleared.After(writtenAt) {
		t.Fatalf("clear stamp %v should postdate write %v", cleared, writtenAt)
	}
}

func TestSQLLastClearedZeroWhenNeverCleared(t *testing.T) {
	s, _ := newSQLStore(t)
	cleared, err := s.LastCleared("task-1", "review")
	if err != nil {
		t.Fatalf("last cleared: %v", err)
	}
	if !cleared.IsZero() {
		t.Fatalf("never-cleared key should report zero time, got %v", cleared)
	}
}

func TestSQLSignalWrittenAfterClearQualifies(t *testing.T) {
	s, _ := newSQLStore(t)
	if err := s.ClearSignal("task-1", "review"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := s.PutSignal("task-1", "review", Signal{Status: StatusPassed}); err != nil {
		t.Fatalf("put: %v", err)
	}
	sig, err := s.GetSignal("task-1", "review")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	cleared, err := s.LastCleared("task-1", "review")
	if err != nil {
		t.Fatalf("last cleared: %v", err)
	}
	if !sig.WrittenAt.After(cleared) {
		t.Fatalf("write %v should postdate clear %v", sig.WrittenAt, cleared)
	}
}
