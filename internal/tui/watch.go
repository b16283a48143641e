// internal/tui/watch.go
//
// The watch view for relay. It uses bubbletea, which follows The Elm
// Architecture:
//
// 1. Model: Your application state
// 2. Update: A function that updates state based on messages
// 3. View: A function that renders state to a string
//
// The watch model is read-only: it polls the persisted task state and the
// journal on a tick and renders per-slot progress. It never mutates the
// task.

package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/relay/internal/journal"
	"github.com/kingrea/relay/internal/sequencer"
	"github.com/kingrea/relay/internal/store"
	"github.com/kingrea/relay/internal/task"
)

const (
	watchRefreshInterval = 2 * time.Second
	eventTailSize        = 8
)

var (
	stylePassed   = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	styleFailed   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	styleInFlight = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	styleGate     = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	stylePending  = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	styleHeader   = lipgloss.NewStyle().Bold(true)
	styleDetail   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
)

// StateViewer returns the persisted snapshot of one task.
type StateViewer interface {
	View(taskID string) (task.State, error)
}

// SignalReader reads signals to decorate finished slots with their outcome.
type SignalReader interface {
	GetSignal(taskID, signalType string) (store.Signal, error)
}

type watchRefreshMsg struct {
	state   task.State
	signals map[string]store.Signal
	events  []journal.Entry
	err     error
}

type refreshTickMsg struct{}

// WatchModel is the bubbletea model behind `relay watch`.
type WatchModel struct {
	taskID  string
	states  StateViewer
	signals SignalReader
	journal *journal.Journal

	spinner   spinner.Model
	state     task.State
	sigs      map[string]store.Signal
	events    []journal.Entry
	loaded    bool
	err       error
	selection int
	width     int
}

// NewWatchModel builds the watch model for one task.
func NewWatchModel(taskID string, states StateViewer, signals SignalReader, jnl *journal.Journal) WatchModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styleInFlight
	return WatchModel{
		taskID:  taskID,
		states:  states,
		signals: signals,
		journal: jnl,
		spinner: sp,
	}
}

// Init kicks off the first refresh and the spinner.
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.refresh(), m.spinner.Tick)
}

// Update handles key presses, refresh ticks, and loaded snapshots.
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.refresh()
		case "up", "k":
			if m.selection > 0 {
				m.selection--
			}
		case "down", "j":
			if m.selection < len(m.state.Plan.Steps)-1 {
				m.selection++
			}
		}
		return m, nil
	case watchRefreshMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, m.scheduleRefresh()
		}
		m.err = nil
		m.loaded = true
		m.state = msg.state
		m.sigs = msg.signals
		m.events = msg.events
		if m.selection >= len(m.state.Plan.Steps) {
			m.selection = maxInt(0, len(m.state.Plan.Steps)-1)
		}
		return m, m.scheduleRefresh()
	case refreshTickMsg:
		return m, m.refresh()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	default:
		return m, nil
	}
}

// View renders the task header, one row per slot, and the journal tail.
func (m WatchModel) View() string {
	if m.err != nil {
		if errors.Is(m.err, sequencer.ErrStateNotFound) {
			return fmt.Sprintf("Task %s has no state yet.\n\nq=quit  r=retry\n", m.taskID)
		}
		return fmt.Sprintf("Watch error: %v\n\nq=quit  r=retry\n", m.err)
	}
	if !m.loaded {
		return fmt.Sprintf("%s Loading task %s…\n", m.spinner.View(), m.taskID)
	}

	header := styleHeader.Render(fmt.Sprintf("Task %s · %s", m.state.TaskID, m.state.Status))
	if m.state.StatusReason != "" {
		header += styleDetail.Render(" · " + m.state.StatusReason)
	}
	lines := []string{header, ""}
	for idx, step := range m.state.Plan.Steps {
		lines = append(lines, m.renderSlotLine(idx, step))
		if idx == m.selection {
			if detail := m.renderSlotDetail(idx, step); detail != "" {
				lines = append(lines, detail)
			}
		}
	}
	if tail := m.renderEventTail(); tail != "" {
		lines = append(lines, "", styleHeader.Render("Recent events"), tail)
	}
	lines = append(lines, "", "r=refresh  j/k=move  q=quit")
	return strings.Join(lines, "\n")
}

func (m WatchModel) renderSlotLine(idx int, step task.Step) string {
	indicator := " "
	if idx == m.selection {
		indicator = ">"
	}
	inFlight, inFlightOK := m.state.InFlightSlot()
	members := make([]string, 0, len(step.Names))
	for _, name := range step.Names {
		var label string
		switch {
		case inFlightOK && idx == inFlight:
			label = m.spinner.View() + styleInFlight.Render(name)
		case idx < m.state.Cursor:
			if sig, ok := m.sigs[name]; ok && sig.Status == store.StatusFailed {
				label = styleFailed.Render(name + " ✗")
			} else if _, ok := m.sigs[name]; ok {
				label = stylePassed.Render(name + " ✓")
			} else {
				label = stylePending.Render(name)
			}
		default:
			label = stylePending.Render(name)
		}
		members = append(members, label)
	}
	line := fmt.Sprintf("%s %2d. %s", indicator, idx+1, strings.Join(members, "  "))
	if gateName, _, ok := m.state.Plan.GateFor(idx); ok {
		line += "  " + styleGate.Render(fmt.Sprintf("[gate: %s]", gateName))
	}
	return line
}

func (m WatchModel) renderSlotDetail(idx int, step task.Step) string {
	var details []string
	if retries := m.state.RetryCount(idx); retries > 0 {
		details = append(details, fmt.Sprintf("retries: %d", retries))
	}
	if timeouts := m.state.TimeoutCount(idx); timeouts > 0 {
		details = append(details, fmt.Sprintf("timeouts: %d", timeouts))
	}
	for _, name := range step.Names {
		sig, ok := m.sigs[name]
		if !ok {
			continue
		}
		line := fmt.Sprintf("%s: %s", name, sig.Status)
		if sig.Summary != "" {
			line += " · " + sig.Summary
		}
		details = append(details, line)
	}
	if len(details) == 0 {
		return ""
	}
	return styleDetail.Render("      " + strings.Join(details, "\n      "))
}

func (m WatchModel) renderEventTail() string {
	if len(m.events) == 0 {
		return ""
	}
	lines := make([]string, 0, len(m.events))
	for _, entry := range m.events {
		line := fmt.Sprintf("%s  %-10s %s", entry.Time.Local().Format("15:04:05"), entry.Event, entry.Step)
		if entry.Detail != "" {
			line += " · " + entry.Detail
		}
		lines = append(lines, styleDetail.Render(line))
	}
	return strings.Join(lines, "\n")
}

// refresh loads the snapshot, the signals of dispatched steps, and the
// journal tail in one command.
func (m WatchModel) refresh() tea.Cmd {
	states := m.states
	signals := m.signals
	jnl := m.journal
	taskID := m.taskID
	return func() tea.Msg {
		state, err := states.View(taskID)
		if err != nil {
			return watchRefreshMsg{err: err}
		}
		sigs := make(map[string]store.Signal)
		if signals != nil {
			for idx, step := range state.Plan.Steps {
				if idx >= state.Cursor {
					break
				}
				for _, name := range step.Names {
					if sig, err := signals.GetSignal(taskID, name); err == nil {
						sigs[name] = sig
					}
				}
			}
		}
		var events []journal.Entry
		if jnl != nil {
			events = jnl.Tail(taskID, eventTailSize)
		}
		return watchRefreshMsg{state: state, signals: sigs, events: events}
	}
}

func (m WatchModel) scheduleRefresh() tea.Cmd {
	return tea.Tick(watchRefreshInterval, func(time.Time) tea.Msg {
		return refreshTickMsg{}
	})
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
