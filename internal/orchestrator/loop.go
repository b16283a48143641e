// Package orchestrator drives one task to a terminal status. The loop has
// no branching logic of its own: every decision comes from the sequencer,
// the loop only clears signals, dispatches the chosen slot, and blocks on
// the wait primitive. At most one slot is in flight per task at any time.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kingrea/relay/internal/journal"
	"github.com/kingrea/relay/internal/notify"
	"github.com/kingrea/relay/internal/sequencer"
	"github.com/kingrea/relay/internal/store"
	"github.com/kingrea/relay/internal/task"
)

// Decider is the slice of the sequencer the loop consumes.
type Decider interface {
	Next(taskID string, obs sequencer.Observation) (sequencer.Decision, error)
	Abort(taskID, reason string) (task.State, error)
}

// SignalWaiter blocks until a slot's signal set is complete or times out.
type SignalWaiter interface {
	Wait(ctx context.Context, taskID string, signalTypes []string, timeout, pollInterval time.Duration) (store.WaitResult, error)
}

// SignalClearer removes stale signals before a dispatch.
type SignalClearer interface {
	ClearSignal(taskID, signalType string) error
}

// Dispatcher launches the worker invocations for one slot. Implementations
// must write (or cause workers to write) one signal per member; a returned
// error is absorbed by the loop because the outcome still surfaces through
// the signal or the wait timeout.
type Dispatcher interface {
	Dispatch(ctx context.Context, state task.State, step task.Step) error
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, state task.State, step task.Step) error

// Dispatch calls the wrapped function.
func (f DispatcherFunc) Dispatch(ctx context.Context, state task.State, step task.Step) error {
	return f(ctx, state, step)
}

// Outcome summarizes a finished task run.
type Outcome struct {
	TaskID      string
	Status      task.Status
	Reason      string
	LastStep    string
	RetryCounts map[int]int
}

// Loop runs the query-clear-dispatch-wait cycle for one task at a time.
type Loop struct {
	decider    Decider
	signals    SignalClearer
	waiter     SignalWaiter
	dispatcher Dispatcher
	journal    *journal.Journal
	notifier   notify.Notifier
	logger     zerolog.Logger
}

// Option customizes a loop.
type Option func(*Loop)

// WithJournal records loop events to a task journal.
func WithJournal(j *journal.Journal) Option {
	return func(l *Loop) {
		l.journal = j
	}
}

// WithNotifier sends terminal outcomes out of band.
func WithNotifier(n notify.Notifier) Option {
	return func(l *Loop) {
		if n != nil {
			l.notifier = n
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// NewLoop wires the loop to its collaborators.
func NewLoop(decider Decider, signals SignalClearer, waiter SignalWaiter, dispatcher Dispatcher, opts ...Option) (*Loop, error) {
	if decider == nil {
		return nil, fmt.Errorf("orchestrator: decider is required")
	}
	if signals == nil {
		return nil, fmt.Errorf("orchestrator: signal clearer is required")
	}
	if waiter == nil {
		return nil, fmt.Errorf("orchestrator: waiter is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("orchestrator: dispatcher is required")
	}
	loop := &Loop{
		decider:    decider,
		signals:    signals,
		waiter:     waiter,
		dispatcher: dispatcher,
		notifier:   notify.Nop{},
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(loop)
	}
	return loop, nil
}

// Run drives the task until the sequencer reports a terminal status. Store
// errors are fatal: the loop best-effort marks the task aborted and returns
// the error. Context cancellation aborts the same way.
func (l *Loop) Run(ctx context.Context, taskID string) (Outcome, error) {
	obs := sequencer.Observation{}
	for {
		decision, err := l.decider.Next(taskID, obs)
		if err != nil {
			return l.fail(ctx, taskID, fmt.Errorf("orchestrator: decide next step: %w", err))
		}
		if decision.Terminal {
			outcome := outcomeOf(decision.State)
			l.record(taskID, journal.EventTerminal, outcome.LastStep, fmt.Sprintf("%s: %s", outcome.Status, outcome.Reason))
			l.logger.Info().
				Str("task_id", taskID).
				Str("status", string(outcome.Status)).
				Str("last_step", outcome.LastStep).
				Msg("task finished")
			l.notifyOutcome(ctx, outcome)
			return outcome, nil
		}

		step := decision.Step
		l.record(taskID, journal.EventDecision, step.Label(), fmt.Sprintf("slot %d", decision.Slot))
		for _, name := range step.Names {
			if err := l.signals.ClearSignal(taskID, name); err != nil {
				return l.fail(ctx, taskID, fmt.Errorf("orchestrator: clear signal %s: %w", name, err))
			}
		}

		l.record(taskID, journal.EventDispatched, step.Label(), "")
		l.logger.Info().
			Str("task_id", taskID).
			Str("step", step.Label()).
			Int("slot", decision.Slot).
			Msg("dispatching slot")
		if err := l.dispatcher.Dispatch(ctx, decision.State, step); err != nil {
			// Absorbed: the failure surfaces as a failed signal or a wait
			// timeout, both of which the sequencer owns.
			l.record(taskID, journal.EventError, step.Label(), err.Error())
			l.logger.Warn().Err(err).
				Str("task_id", taskID).
				Str("step", step.Label()).
				Msg("dispatch reported an error")
		}

		runtime := decision.State.Plan.Runtime
		result, err := l.waiter.Wait(ctx, taskID, step.Names, runtime.WaitTimeout, runtime.PollInterval)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return l.fail(ctx, taskID, fmt.Errorf("orchestrator: run canceled: %w", err))
			}
			return l.fail(ctx, taskID, fmt.Errorf("orchestrator: wait for %s: %w", step.Label(), err))
		}
		if result.TimedOut {
			l.record(taskID, journal.EventTimeout, step.Label(), fmt.Sprintf("no complete signal set within %s", runtime.WaitTimeout))
			l.logger.Warn().
				Str("task_id", taskID).
				Str("step", step.Label()).
				Msg("wait timed out")
		} else {
			for name, sig := range result.Signals {
				l.record(taskID, journal.EventSignal, name, fmt.Sprintf("%s: %s", sig.Status, sig.Summary))
			}
		}
		obs = sequencer.Observation{TimedOut: result.TimedOut}
	}
}

// fail marks the task aborted when the store still permits and returns the
// originating error.
func (l *Loop) fail(ctx context.Context, taskID string, cause error) (Outcome, error) {
	outcome := Outcome{TaskID: taskID, Status: task.StatusAborted, Reason: cause.Error()}
	if state, err := l.decider.Abort(taskID, cause.Error()); err == nil {
		outcome = outcomeOf(state)
	} else {
		l.logger.Error().Err(err).Str("task_id", taskID).Msg("abort after failure")
	}
	l.record(taskID, journal.EventTerminal, outcome.LastStep, fmt.Sprintf("%s: %s", outcome.Status, outcome.Reason))
	l.notifyOutcome(ctx, outcome)
	return outcome, cause
}

func (l *Loop) notifyOutcome(ctx context.Context, outcome Outcome) {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>relay task %s: %s</b>", notify.EscapeText(outcome.TaskID), notify.EscapeText(string(outcome.Status)))
	if outcome.LastStep != "" {
		fmt.Fprintf(&b, "\nlast step: %s", notify.EscapeText(outcome.LastStep))
	}
	if outcome.Reason != "" {
		fmt.Fprintf(&b, "\n%s", notify.EscapeText(outcome.Reason))
	}
	if len(outcome.RetryCounts) > 0 {
		fmt.Fprintf(&b, "\nretries: %s", notify.EscapeText(formatCounts(outcome.RetryCounts)))
	}
	if err := l.notifier.Send(ctx, b.String()); err != nil {
		l.logger.Warn().Err(err).Str("task_id", outcome.TaskID).Msg("notify terminal state")
	}
}

func (l *Loop) record(taskID, event, step, detail string) {
	if l.journal == nil {
		return
	}
	l.journal.Record(taskID, event, step, detail)
}

func outcomeOf(state task.State) Outcome {
	return Outcome{
		TaskID:      state.TaskID,
		Status:      state.Status,
		Reason:      state.StatusReason,
		LastStep:    state.LastDispatched(),
		RetryCounts: state.Clone().RetryCounts,
	}
}

func formatCounts(counts map[int]int) string {
	slots := make([]int, 0, len(counts))
	for slot := range counts {
		slots = append(slots, slot)
	}
	sort.Ints(slots)
	parts := make([]string, 0, len(slots))
	for _, slot := range slots {
		parts = append(parts, fmt.Sprintf("slot %d x%d", slot, counts[slot]))
	}
	return strings.Join(parts, ", ")
}
