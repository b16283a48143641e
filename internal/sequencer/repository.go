package sequencer

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/kingrea/relay/internal/task"
)

// ErrStateNotFound is returned when no persisted state exists for a task.
var ErrStateNotFound = errors.New("sequencer: task state not found")

// StateStore persists task state snapshots keyed by task id.
type StateStore interface {
	Load(taskID string) (task.State, error)
	Save(task.State) error
}

// FileRepository stores each task's state inside its task directory.
type FileRepository struct {
	layout *task.Layout
}

// NewFileRepository creates a repository rooted at the tasks base directory.
func NewFileRepository(base string) *FileRepository {
	return &FileRepository{layout: task.NewLayout(base)}
}

// Load reads the persisted state if present.
func (r *FileRepository) Load(taskID string) (task.State, error) {
	data, err := os.ReadFile(r.layout.StatePath(taskID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return task.State{}, ErrStateNotFound
		}
		return task.State{}, fmt.Errorf("sequencer: read state %s: %w", taskID, err)
	}
	var state task.State
	if err := json.Unmarshal(data, &state); err != nil {
		return task.State{}, fmt.Errorf("sequencer: decode state %s: %w", taskID, err)
	}
	return state, nil
}

// Save writes the task state to disk with best-effort atomicity.
func (r *FileRepository) Save(state task.State) error {
	if state.TaskID == "" {
		return fmt.Errorf("sequencer: state is missing a task id")
	}
	path := r.layout.StatePath(state.TaskID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	encoded, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(encoded, '\n'), 0o644)
}

// SQLRepository stores task state in the shared relay database, alongside
// the reports and signals.
type SQLRepository struct {
	db *sql.DB
}

// NewSQLRepository wraps the database handle the SQLite store opened.
func NewSQLRepository(db *sql.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

// Load reads the persisted state if present.
func (r *SQLRepository) Load(taskID string) (task.State, error) {
	row := r.db.QueryRow(`SELECT state FROM task_states WHERE task_id = ?`, taskID)
	var encoded string
	if err := row.Scan(&encoded); err != nil {
		if err == sql.ErrNoRows {
			return task.State{}, ErrStateNotFound
		}
		return task.State{}, fmt.Errorf("sequencer: read state %s: %w", taskID, err)
	}
	var state task.State
	if err := json.Unmarshal([]byte(encoded), &state); err != nil {
		return task.State{}, fmt.Errorf("sequencer: decode state %s: %w", taskID, err)
	}
	return state, nil
}

// Save upserts the task state row.
func (r *SQLRepository) Save(state task.State) error {
	if state.TaskID == "" {
		return fmt.Errorf("sequencer: state is missing a task id")
	}
	encoded, err := json.Marshal(state)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(`INSERT INTO task_states (task_id, state, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (task_id) DO UPDATE SET
			state = excluded.state,
			updated_at = excluded.updated_at`,
		state.TaskID, string(encoded), state.UpdatedAt.UnixNano())
	return err
}
