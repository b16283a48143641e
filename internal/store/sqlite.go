package store

import (
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// SQLStore keeps reports and signals in a single SQLite database. One
// writer connection with WAL journaling keeps concurrent CLI invocations
// and the orchestrator from tripping over each other; busy errors are
// retried with backoff.
type SQLStore struct {
	db    *sql.DB
	clock func() time.Time
}

// SQLOption customizes a SQLStore.
type SQLOption func(*SQLStore)

// WithSQLClock overrides the time source used for signal stamps and clear
// instants.
func WithSQLClock(clock func() time.Time) SQLOption {
	return func(s *SQLStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// OpenSQL opens (creating if needed) the SQLite-backed store at path.
func OpenSQL(path string, opts ...SQLOption) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: create db directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	s := &SQLStore{db: db, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying handle so the state repository can share the
// single writer connection.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Close releases the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) init() error {
	statements := []string{
		`PRAGMA journal_mode=WAL`,
		`PRAGMA busy_timeout=5000`,
		`CREATE TABLE IF NOT EXISTS reports (
			task_id     TEXT NOT NULL,
			report_type TEXT NOT NULL,
			content     TEXT NOT NULL,
			written_at  INTEGER NOT NULL,
			PRIMARY KEY (task_id, report_type)
		)`,
		`CREATE TABLE IF NOT EXISTS signals (
			task_id     TEXT NOT NULL,
			signal_type TEXT NOT NULL,
			status      TEXT NOT NULL,
			summary     TEXT NOT NULL DEFAULT '',
			auto_saved  INTEGER NOT NULL DEFAULT 0,
			saved_by    TEXT NOT NULL DEFAULT '',
			written_at  INTEGER NOT NULL,
			PRIMARY KEY (task_id, signal_type)
		)`,
		`CREATE TABLE IF NOT EXISTS signal_clears (
			task_id     TEXT NOT NULL,
			signal_type TEXT NOT NULL,
			cleared_at  INTEGER NOT NULL,
			PRIMARY KEY (task_id, signal_type)
		)`,
		`CREATE TABLE IF NOT EXISTS task_states (
			task_id    TEXT PRIMARY KEY,
			state      TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("store: init schema: %w", err)
		}
	}
	return nil
}

// PutReport overwrites the report for (taskID, reportType).
func (s *SQLStore) PutReport(taskID, reportType, content string) error {
	if err := validateKeys(taskID, "report type", reportType); err != nil {
		return err
	}
	return s.execRetry(`INSERT INTO reports (task_id, report_type, content, written_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (task_id, report_type) DO UPDATE SET
			content = excluded.content,
			written_at = excluded.written_at`,
		taskID, reportType, content, s.clock().UnixNano())
}

// GetReport reads the latest report for (taskID, reportType).
func (s *SQLStore) GetReport(taskID, reportType string) (Report, error) {
	if err := validateKeys(taskID, "report type", reportType); err != nil {
		return Report{}, err
	}
	row := s.db.QueryRow(`SELECT content, written_at FROM reports
		WHERE task_id = ? AND report_type = ?`, taskID, reportType)
	var content string
	var writtenAt int64
	if err := row.Scan(&content, &writtenAt); err != nil {
		if err == sql.ErrNoRows {
			return Report{}, fmt.Errorf("report %s/%s: %w", taskID, reportType, ErrNotFound)
		}
		return Report{}, fmt.Errorf("store: read report %s/%s: %w", taskID, reportType, err)
	}
	return Report{
		TaskID:     taskID,
		ReportType: reportType,
		Content:    content,
		WrittenAt:  time.Unix(0, writtenAt),
	}, nil
}

// ClearSignal removes any existing signal for (taskID, signalType) and
// records the clear instant.
func (s *SQLStore) ClearSignal(taskID, signalType string) error {
	if err := validateKeys(taskID, "signal type", signalType); err != nil {
		return err
	}
	now := s.clock().UnixNano()
	return s.withRetry(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("store: clear signal %s/%s: %w", taskID, signalType, err)
		}
		defer tx.Rollback()
		if _, err := tx.Exec(`DELETE FROM signals WHERE task_id = ? AND signal_type = ?`, taskID, signalType); err != nil {
			return fmt.Errorf("store: clear signal %s/%s: %w", taskID, signalType, err)
		}
		if _, err := tx.Exec(`INSERT INTO signal_clears (task_id, signal_type, cleared_at)
			VALUES (?, ?, ?)
			ON CONFLICT (task_id, signal_type) DO UPDATE SET cleared_at = excluded.cleared_at`,
			taskID, signalType, now); err != nil {
			return fmt.Errorf("store: stamp clear %s/%s: %w", taskID, signalType, err)
		}
		return tx.Commit()
	})
}

// PutSignal overwrites the signal for (taskID, signalType), stamping it with
// the write instant. A status outside the closed enum is rejected.
func (s *SQLStore) PutSignal(taskID, signalType string, sig Signal) error {
	if err := validateKeys(taskID, "signal type", signalType); err != nil {
		return err
	}
	if !ValidStatus(sig.Status) {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, sig.Status)
	}
	autoSaved := 0
	if sig.AutoSaved {
		autoSaved = 1
	}
	return s.execRetry(`INSERT INTO signals (task_id, signal_type, status, summary, auto_saved, saved_by, written_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (task_id, signal_type) DO UPDATE SET
			status = excluded.status,
			summary = excluded.summary,
			auto_saved = excluded.auto_saved,
			saved_by = excluded.saved_by,
			written_at = excluded.written_at`,
		taskID, signalType, sig.Status, sig.Summary, autoSaved, sig.SavedBy, s.clock().UnixNano())
}

// GetSignal reads the latest signal for (taskID, signalType).
func (s *SQLStore) GetSignal(taskID, signalType string) (Signal, error) {
	if err := validateKeys(taskID, "signal type", signalType); err != nil {
		return Signal{}, err
	}
	row := s.db.QueryRow(`SELECT status, summary, auto_saved, saved_by, written_at FROM signals
		WHERE task_id = ? AND signal_type = ?`, taskID, signalType)
	var (
		status, summary, savedBy string
		autoSaved                int
		writtenAt                int64
	)
	if err := row.Scan(&status, &summary, &autoSaved, &savedBy, &writtenAt); err != nil {
		if err == sql.ErrNoRows {
			return Signal{}, fmt.Errorf("signal %s/%s: %w", taskID, signalType, ErrNotFound)
		}
		return Signal{}, fmt.Errorf("store: read signal %s/%s: %w", taskID, signalType, err)
	}
	return Signal{
		TaskID:     taskID,
		SignalType: signalType,
		Status:     status,
		Summary:    summary,
		AutoSaved:  autoSaved != 0,
		SavedBy:    savedBy,
		WrittenAt:  time.Unix(0, writtenAt),
	}, nil
}

// LastCleared returns the instant of the most recent clear for
// (taskID, signalType), or the zero time when the key was never cleared.
func (s *SQLStore) LastCleared(taskID, signalType string) (time.Time, error) {
	if err := validateKeys(taskID, "signal type", signalType); err != nil {
		return time.Time{}, err
	}
	row := s.db.QueryRow(`SELECT cleared_at FROM signal_clears
		WHERE task_id = ? AND signal_type = ?`, taskID, signalType)
	var clearedAt int64
	if err := row.Scan(&clearedAt); err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("store: read clear stamp %s/%s: %w", taskID, signalType, err)
	}
	return time.Unix(0, clearedAt), nil
}

func (s *SQLStore) execRetry(query string, args ...any) error {
	return s.withRetry(func() error {
		_, err := s.db.Exec(query, args...)
		return err
	})
}

// withRetry retries f when SQLite reports the database busy or locked,
// backing off exponentially with jitter on top of the driver's busy
// timeout.
func (s *SQLStore) withRetry(f func() error) error {
	const maxRetries = 5
	const baseDelay = 50 * time.Millisecond
	const maxDelay = 500 * time.Millisecond

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = f()
		if err == nil || !isBusy(err) {
			return err
		}
		if attempt == maxRetries {
			return err
		}
		delay := baseDelay << uint(attempt)
		if delay > maxDelay {
			delay = maxDelay
		}
		delay = delay - delay/4 + time.Duration(rand.Intn(int(delay/2)))
		time.Sleep(delay)
	}
	return err
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}
