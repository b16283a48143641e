package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kingrea/relay/internal/task"
)

// FileStore keeps reports and signals as plain files under the tasks base
// directory:
//
//	{base}/{taskId}/reports/{type}.md
//	{base}/{taskId}/signals/{type}.json
//	{base}/{taskId}/signals/{type}.cleared
//
// Reports hold raw markdown so workers and humans read them directly;
// signals and clear stamps are JSON records. All writes are atomic
// (temp file + rename) so readers never observe partial content.
type FileStore struct {
	layout *task.Layout
	clock  func() time.Time
}

// FileOption customizes a FileStore.
type FileOption func(*FileStore)

// WithClock overrides the time source used for signal stamps and clear
// markers.
func WithClock(clock func() time.Time) FileOption {
	return func(s *FileStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewFileStore creates a file-backed store rooted at base.
func NewFileStore(base string, opts ...FileOption) *FileStore {
	s := &FileStore{
		layout: task.NewLayout(base),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Layout exposes the path layout the store writes through.
func (s *FileStore) Layout() *task.Layout {
	return s.layout
}

// PutReport overwrites the report for (taskID, reportType).
func (s *FileStore) PutReport(taskID, reportType, content string) error {
	if err := validateKeys(taskID, "report type", reportType); err != nil {
		return err
	}
	path := s.layout.ReportPath(taskID, reportType)
	if err := writeFileAtomic(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("store: write report %s/%s: %w", taskID, reportType, err)
	}
	return nil
}

// GetReport reads the latest report for (taskID, reportType).
func (s *FileStore) GetReport(taskID, reportType string) (Report, error) {
	if err := validateKeys(taskID, "report type", reportType); err != nil {
		return Report{}, err
	}
	path := s.layout.ReportPath(taskID, reportType)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Report{}, fmt.Errorf("report %s/%s: %w", taskID, reportType, ErrNotFound)
		}
		return Report{}, fmt.Errorf("store: read report %s/%s: %w", taskID, reportType, err)
	}
	report := Report{
		TaskID:     taskID,
		ReportType: reportType,
		Content:    string(data),
	}
	if info, statErr := os.Stat(path); statErr == nil {
		report.WrittenAt = info.ModTime()
	}
	return report, nil
}

// ClearSignal removes any existing signal for (taskID, signalType) and
// records the clear instant consumed by the waiter.
func (s *FileStore) ClearSignal(taskID, signalType string) error {
	if err := validateKeys(taskID, "signal type", signalType); err != nil {
		return err
	}
	if err := os.Remove(s.layout.SignalPath(taskID, signalType)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("store: clear signal %s/%s: %w", taskID, signalType, err)
	}
	stamp := s.clock().UTC().Format(time.RFC3339Nano)
	path := s.layout.ClearMarkerPath(taskID, signalType)
	if err := writeFileAtomic(path, []byte(stamp+"\n"), 0o644); err != nil {
		return fmt.Errorf("store: stamp clear %s/%s: %w", taskID, signalType, err)
	}
	return nil
}

// PutSignal overwrites the signal for (taskID, signalType), stamping it with
// the write instant. A status outside the closed enum is rejected.
func (s *FileStore) PutSignal(taskID, signalType string, sig Signal) error {
	if err := validateKeys(taskID, "signal type", signalType); err != nil {
		return err
	}
	if !ValidStatus(sig.Status) {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, sig.Status)
	}
	sig.TaskID = taskID
	sig.SignalType = signalType
	sig.WrittenAt = s.clock().UTC()
	encoded, err := json.MarshalIndent(sig, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode signal %s/%s: %w", taskID, signalType, err)
	}
	path := s.layout.SignalPath(taskID, signalType)
	if err := writeFileAtomic(path, append(encoded, '\n'), 0o644); err != nil {
		return fmt.Errorf("store: write signal %s/%s: %w", taskID, signalType, err)
	}
	return nil
}

// GetSignal reads the latest signal for (taskID, signalType).
func (s *FileStore) GetSignal(taskID, signalType string) (Signal, error) {
	if err := validateKeys(taskID, "signal type", signalType); err != nil {
		return Signal{}, err
	}
	path := s.layout.SignalPath(taskID, signalType)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Signal{}, fmt.Errorf("signal %s/%s: %w", taskID, signalType, ErrNotFound)
		}
		return Signal{}, fmt.Errorf("store: read signal %s/%s: %w", taskID, signalType, err)
	}
	var sig Signal
	if err := json.Unmarshal(data, &sig); err != nil {
		return Signal{}, fmt.Errorf("store: decode signal %s/%s: %w", taskID, signalType, err)
	}
	return sig, nil
}

// LastCleared returns the instant of the most recent clear for
// (taskID, signalType), or the zero time when the key was never cleared.
func (s *FileStore) LastCleared(taskID, signalType string) (time.Time, error) {
	if err := validateKeys(taskID, "signal type", signalType); err != nil {
		return time.Time{}, err
	}
	path := s.layout.ClearMarkerPath(taskID, signalType)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("store: read clear stamp %s/%s: %w", taskID, signalType, err)
	}
	stamp, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(data)))
	if err != nil {
		return time.Time{}, fmt.Errorf("store: parse clear stamp %s/%s: %w", taskID, signalType, err)
	}
	return stamp, nil
}

func validateKeys(taskID, kind, value string) error {
	if err := validateKey("task id", taskID); err != nil {
		return err
	}
	return validateKey(kind, value)
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
