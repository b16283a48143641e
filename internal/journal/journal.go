// Package journal keeps a per-task JSONL event log: one line per decision,
// dispatch, signal, timeout, and terminal transition. The status command
// and the watch TUI read it back with Tail.
package journal

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event names recorded by the orchestrator loop.
const (
	EventStarted    = "started"
	EventDecision   = "decision"
	EventDispatched = "dispatched"
	EventSignal     = "signal"
	EventTimeout    = "timeout"
	EventTerminal   = "terminal"
	EventError      = "error"
)

// Entry is one journal line.
type Entry struct {
	Time   time.Time `json:"time"`
	TaskID string    `json:"taskId"`
	Event  string    `json:"event"`
	Step   string    `json:"step,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

// Journal appends task events to a JSONL file. Append failures are
// swallowed: the journal is an audit trail, never a reason to stop a task.
type Journal struct {
	path  string
	clock func() time.Time
	mu    sync.Mutex
}

// Option customizes a journal.
type Option func(*Journal)

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(j *Journal) {
		if clock != nil {
			j.clock = clock
		}
	}
}

// New creates a journal that writes to the provided path.
func New(path string, opts ...Option) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	j := &Journal{path: path, clock: time.Now}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Path returns the file backing this journal.
func (j *Journal) Path() string {
	if j == nil {
		return ""
	}
	return j.path
}

// Record appends a single event.
func (j *Journal) Record(taskID, event, step, detail string) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	entry := Entry{
		Time:   j.clock().UTC(),
		TaskID: taskID,
		Event:  event,
		Step:   step,
		Detail: detail,
	}
	encoded, err := json.Marshal(entry)
	if err != nil {
		return
	}
	file, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer file.Close()
	_, _ = file.Write(append(encoded, '\n'))
}

// Tail returns up to maxEntries of the most recent events for a task. An
// empty taskID matches every task.
func (j *Journal) Tail(taskID string, maxEntries int) []Entry {
	if j == nil || maxEntries <= 0 {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	file, err := os.Open(j.path)
	if err != nil {
		return nil
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if taskID != "" && entry.TaskID != taskID {
			continue
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return nil
	}
	if len(entries) > maxEntries {
		entries = entries[len(entries)-maxEntries:]
	}
	return entries
}
