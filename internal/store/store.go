// Package store persists the reports and signals steps exchange, and
// provides the wait primitive the orchestrator blocks on. Reports carry
// step output; signals mark attempt completion. Both are keyed by task and
// type, and successive writes overwrite so the latest value is
// authoritative.
package store

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Signal statuses form a closed enum. Writes carrying any other value are
// protocol violations and are rejected at the boundary.
const (
	StatusPassed = "passed"
	StatusFailed = "failed"
)

var (
	// ErrNotFound marks a missing report or signal.
	ErrNotFound = errors.New("store: not found")

	// ErrInvalidStatus marks a signal write whose status falls outside the
	// closed enum.
	ErrInvalidStatus = errors.New("store: invalid signal status")
)

// Report is the durable output of one step attempt.
type Report struct {
	TaskID     string    `json:"taskId"`
	ReportType string    `json:"reportType"`
	Content    string    `json:"content"`
	WrittenAt  time.Time `json:"writtenAt"`
}

// Signal is the completion marker for one step attempt. The camelCase field
// names are the wire contract external workers write against.
type Signal struct {
	TaskID     string    `json:"taskId"`
	SignalType string    `json:"signalType"`
	Status     string    `json:"status"`
	Summary    string    `json:"summary,omitempty"`
	AutoSaved  bool      `json:"autoSaved,omitempty"`
	SavedBy    string    `json:"savedBy,omitempty"`
	WrittenAt  time.Time `json:"writtenAt"`
}

// Store is the report/signal persistence contract. Implementations stamp
// every signal write with the write instant and record the instant of every
// clear; the waiter compares the two, so a signal written before its key's
// last clear never satisfies a wait. Distinct task ids are fully isolated.
type Store interface {
	PutReport(taskID, reportType, content string) error
	GetReport(taskID, reportType string) (Report, error)
	ClearSignal(taskID, signalType string) error
	PutSignal(taskID, signalType string, sig Signal) error
	GetSignal(taskID, signalType string) (Signal, error)
	LastCleared(taskID, signalType string) (time.Time, error)
}

// ValidStatus reports whether status belongs to the closed enum.
func ValidStatus(status string) bool {
	return status == StatusPassed || status == StatusFailed
}

func validateKey(kind, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("store: %s is required", kind)
	}
	if strings.ContainsAny(value, `/\`) || value == "." || value == ".." {
		return fmt.Errorf("store: %s %q must not contain path elements", kind, value)
	}
	return nil
}
