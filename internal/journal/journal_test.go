package journal

import (
	"path/filepath"
	"testing"
	"time"
)

func newJournal(t *testing.T) *Journal {
	t.Helper()
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	j, err := New(filepath.Join(t.TempDir(), "journal.jsonl"), WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return j
}

func TestRecordAndTail(t *testing.T) {
	j := newJournal(t)
	j.Record("task-1", EventStarted, "", "")
	j.Record("task-1", EventDispatched, "plan", "")
	j.Record("task-1", EventTerminal, "implement", "complete")

	entries := j.Tail("task-1", 10)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Event != EventStarted || entries[2].Event != EventTerminal {
		t.Fatalf("order lost: %+v", entries)
	}
	if entries[1].Step != "plan" {
		t.Fatalf("step lost: %+v", entries[1])
	}
	if entries[2].Detail != "complete" {
		t.Fatalf("detail lost: %+v", entries[2])
	}
	if !entries[1].Time.After(entries[0].Time) {
		t.Fatalf("stamps must advance: %v then %v", entries[0].Time, entries[1].Time)
	}
}

func TestTailFiltersByTask(t *testing.T) {
	j := newJournal(t)
	j.Record("task-a", EventDispatched, "plan", "")
	j.Record("task-b", EventDispatched, "plan", "")
	j.Record("task-a", EventTerminal, "plan", "complete")

	entries := j.Tail("task-a", 10)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries for task-a, got %d", len(entries))
	}
	for _, entry := range entries {
		if entry.TaskID != "task-a" {
			t.Fatalf("foreign entry leaked: %+v", entry)
		}
	}
	if all := j.Tail("", 10); len(all) != 3 {
		t.Fatalf("empty filter should match everything, got %d", len(all))
	}
}

func TestTailBoundsEntries(t *testing.T) {
	j := newJournal(t)
	for i := 0; i < 10; i++ {
		j.Record("task-1", EventDecision, "", "")
	}
	j.Record("task-1", EventTerminal, "", "complete")
	entries := j.Tail("task-1", 3)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[2].Event != EventTerminal {
		t.Fatalf("tail should keep the newest entries, got %+v", entries)
	}
}

func TestNilJournalIsSafe(t *testing.T) {
	var j *Journal
	j.Record("task-1", EventDecision, "", "")
	if entries := j.Tail("task-1", 5); entries != nil {
		t.Fatalf("nil journal should return nothing, got %v", entries)
	}
	if j.Path() != "" {
		t.Fatalf("nil journal path should be empty")
	}
}
