package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/relay/internal/store"
	"github.com/kingrea/relay/internal/task"
)

type stubViewer struct {
	state task.State
	err   error
}

func (v stubViewer) View(string) (task.State, error) {
	return v.state, v.err
}

type stubSignals struct {
	signals map[string]store.Signal
}

func (s stubSignals) GetSignal(_, signalType string) (store.Signal, error) {
	sig, ok := s.signals[signalType]
	if !ok {
		return store.Signal{}, store.ErrNotFound
	}
	return sig, nil
}

func watchFixture(t *testing.T) (task.State, stubSignals) {
	t.Helper()
	plan, err := task.Plan{
		ID: "review-loop",
		Steps: []task.Step{
			task.Single("plan"),
			task.Group("performance", "security"),
			task.Single("finalize"),
		},
		Gates: map[string]task.GatePolicy{
			"finalize": {Gating: true, RetryTarget: "plan", MaxRetries: 1},
		},
	}.Normalized()
	if err != nil {
		t.Fatalf("normalize plan: %v", err)
	}
	state := task.NewState("task-1", plan, time.Now())
	state.Status = task.StatusRunning
	state.Cursor = 2
	state.RetryCounts = map[int]int{1: 1}
	signals := stubSignals{signals: map[string]store.Signal{
		"plan": {Status: store.StatusPassed, Summary: "drafted"},
	}}
	return state, signals
}

func loadedModel(t *testing.T, state task.State, signals stubSignals) WatchModel {
	t.Helper()
	model := NewWatchModel("task-1", stubViewer{state: state}, signals, nil)
	cmd := model.refresh()
	msg := cmd()
	refresh, ok := msg.(watchRefreshMsg)
	if !ok {
		t.Fatalf("expected refresh msg, got %T", msg)
	}
	updated, _ := model.Update(refresh)
	return updated.(WatchModel)
}

func TestViewRendersSlotRows(t *testing.T) {
	state, signals := watchFixture(t)
	model := loadedModel(t, state, signals)

	view := model.View()
	for _, fragment := range []string{
		"Task task-1",
		"running",
		"plan ✓",
		"performance",
		"security",
		"finalize",
		"[gate: finalize]",
	} {
		if !strings.Contains(view, fragment) {
			t.Fatalf("view missing %q:\n%s", fragment, view)
		}
	}
}

func TestViewMarksFailedSignals(t *testing.T) {
	state, signals := watchFixture(t)
	signals.signals["plan"] = store.Signal{Status: store.StatusFailed, Summary: "gaps"}
	model := loadedModel(t, state, signals)

	if !strings.Contains(model.View(), "plan ✗") {
		t.Fatalf("failed slot not marked:\n%s", model.View())
	}
}

func TestViewShowsMissingStateHint(t *testing.T) {
	model := NewWatchModel("task-1", stubViewer{err: errStateMissing{}}, stubSignals{}, nil)
	msg := model.refresh()()
	updated, _ := model.Update(msg)
	view := updated.(WatchModel).View()
	if !strings.Contains(view, "Watch error") {
		t.Fatalf("error not surfaced:\n%s", view)
	}
}

func TestUpdateNavigationAndQuit(t *testing.T) {
	state, signals := watchFixture(t)
	model := loadedModel(t, state, signals)

	updated, _ := model.Update(tea.KeyMsg{Type: tea.KeyDown})
	model = updated.(WatchModel)
	if model.selection != 1 {
		t.Fatalf("selection = %d, want 1", model.selection)
	}
	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyUp})
	model = updated.(WatchModel)
	if model.selection != 0 {
		t.Fatalf("selection = %d, want 0", model.selection)
	}

	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("q should quit")
	}
	if msg := cmd(); msg != (tea.QuitMsg{}) {
		t.Fatalf("expected quit msg, got %T", msg)
	}
}

func TestSelectedSlotShowsRetryDetail(t *testing.T) {
	state, signals := watchFixture(t)
	model := loadedModel(t, state, signals)
	updated, _ := model.Update(tea.KeyMsg{Type: tea.KeyDown})
	model = updated.(WatchModel)

	if !strings.Contains(model.View(), "retries: 1") {
		t.Fatalf("retry detail missing:\n%s", model.View())
	}
}

type errStateMissing struct{}

func (errStateMissing) Error() string { return "state missing" }
