// Package sequencer decides what a task runs next. It is the sole mutator
// of task state: every query loads the persisted snapshot, applies the gate
// table to the signals of the slot in flight, persists the result, and
// tells the caller which slot to dispatch. The cursor always points one
// past the most recently dispatched slot, so the slot under inspection is
// Cursor-1.
package sequencer

import (
	"errors"
	"fmt"
	"time"

	"github.com/kingrea/relay/internal/store"
	"github.com/kingrea/relay/internal/task"
)

// SignalReader is the slice of the store the sequencer inspects.
type SignalReader interface {
	GetSignal(taskID, signalType string) (store.Signal, error)
	LastCleared(taskID, signalType string) (time.Time, error)
}

// Observation carries what the orchestrator saw since the previous query.
type Observation struct {
	// TimedOut reports that the wait on the in-flight slot hit its deadline.
	TimedOut bool
}

// Decision is the sequencer's answer to one query. Either Terminal is set
// and Status/Reason describe the final state, or Step/Slot name the slot to
// dispatch next. State is the snapshot after the decision.
type Decision struct {
	Terminal bool
	Status   task.Status
	Reason   string
	Step     task.Step
	Slot     int
	State    task.State
}

// Sequencer applies gate policies to persisted state.
type Sequencer struct {
	repo    StateStore
	signals SignalReader
	clock   func() time.Time
}

// Option customizes the sequencer instance.
type Option func(*Sequencer)

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(s *Sequencer) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New wires a sequencer to the state repository and signal store.
func New(repo StateStore, signals SignalReader, opts ...Option) (*Sequencer, error) {
	if repo == nil {
		return nil, fmt.Errorf("sequencer: state store is required")
	}
	if signals == nil {
		return nil, fmt.Errorf("sequencer: signal reader is required")
	}
	seq := &Sequencer{
		repo:    repo,
		signals: signals,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(seq)
	}
	return seq, nil
}

// Start creates the state for a new task. A task id that already has state
// is rejected: there is exactly one state per task.
func (s *Sequencer) Start(taskID string, plan task.Plan) (task.State, error) {
	if taskID == "" {
		return task.State{}, fmt.Errorf("sequencer: task id is required")
	}
	normalized, err := plan.Normalized()
	if err != nil {
		return task.State{}, err
	}
	if _, err := s.repo.Load(taskID); err == nil {
		return task.State{}, fmt.Errorf("sequencer: task %s already exists", taskID)
	} else if !errors.Is(err, ErrStateNotFound) {
		return task.State{}, err
	}
	state := task.NewState(taskID, normalized, s.now())
	if err := s.repo.Save(state); err != nil {
		return task.State{}, err
	}
	return state, nil
}

// View returns the last persisted snapshot without deciding anything.
func (s *Sequencer) View(taskID string) (task.State, error) {
	return s.repo.Load(taskID)
}

// Abort marks the task aborted with a reason. Terminal tasks are left
// untouched.
func (s *Sequencer) Abort(taskID, reason string) (task.State, error) {
	state, err := s.repo.Load(taskID)
	if err != nil {
		return task.State{}, err
	}
	if state.Status.Terminal() {
		return state, nil
	}
	state.Status = task.StatusAborted
	state.StatusReason = reason
	state.UpdatedAt = s.now()
	if err := s.repo.Save(state); err != nil {
		return task.State{}, err
	}
	return state, nil
}

// Next performs one read-modify-write decision for the task.
//
// A terminal task returns the identical terminal decision with no side
// effects. A fresh task dispatches slot 0. Otherwise the slot in flight is
// inspected: while any of its signals is missing (or predates its clear)
// the slot is replayed, mutating state only when the caller observed a wait
// timeout, in which case the slot's timeout budget burns down and exhausts
// into escalation. With the full signal set present, a failed gating step
// spends one retry from its budget and redirects the cursor to the gate's
// retry target, exhaustion escalates, and everything else advances. Every
// decision that dispatches slot i leaves the persisted cursor at i+1.
func (s *Sequencer) Next(taskID string, obs Observation) (Decision, error) {
	state, err := s.repo.Load(taskID)
	if err != nil {
		return Decision{}, err
	}
	if state.Status.Terminal() {
		return terminalDecision(state), nil
	}

	if state.Cursor == 0 {
		state.Cursor = 1
		return s.dispatch(state, 0)
	}

	slot := state.Cursor - 1
	outcome, missing, err := s.inspect(state.TaskID, state.Plan, slot)
	if err != nil {
		return Decision{}, err
	}

	if missing {
		if !obs.TimedOut {
			// Replay after crash or restart: no state changed, so no save.
			return replayDecision(state, slot), nil
		}
		return s.timeout(state, slot)
	}

	if gateName, policy, ok := state.Plan.GateFor(slot); ok && policy.Gating && outcome.anyFailed {
		return s.gateFail(state, slot, gateName, policy)
	}
	return s.advance(state, slot)
}

type slotOutcome struct {
	anyFailed bool
	failed    []string
}

// inspect gathers the in-flight slot's signals. missing is true while any
// member has no signal written after its most recent clear.
func (s *Sequencer) inspect(taskID string, plan task.Plan, slot int) (slotOutcome, bool, error) {
	var out slotOutcome
	for _, name := range plan.Steps[slot].Names {
		sig, err := s.signals.GetSignal(taskID, name)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return slotOutcome{}, true, nil
			}
			return slotOutcome{}, false, err
		}
		cleared, err := s.signals.LastCleared(taskID, name)
		if err != nil {
			return slotOutcome{}, false, err
		}
		if !cleared.IsZero() && !sig.WrittenAt.After(cleared) {
			return slotOutcome{}, true, nil
		}
		if sig.Status == store.StatusFailed {
			out.anyFailed = true
			out.failed = append(out.failed, name)
		}
	}
	return out, false, nil
}

// timeout burns one unit of the slot's timeout budget; exhaustion escalates,
// anything less replays the same slot.
func (s *Sequencer) timeout(state task.State, slot int) (Decision, error) {
	if state.TimeoutCounts == nil {
		state.TimeoutCounts = map[int]int{}
	}
	state.TimeoutCounts[slot]++
	if state.TimeoutCounts[slot] > state.Plan.Runtime.MaxTimeouts {
		state.Status = task.StatusEscalated
		state.StatusReason = fmt.Sprintf("step %s exhausted its timeout budget (%d waits)", state.Plan.Steps[slot].Label(), state.Plan.Runtime.MaxTimeouts)
		state.UpdatedAt = s.now()
		if err := s.repo.Save(state); err != nil {
			return Decision{}, err
		}
		return terminalDecision(state), nil
	}
	state.UpdatedAt = s.now()
	if err := s.repo.Save(state); err != nil {
		return Decision{}, err
	}
	return replayDecision(state, slot), nil
}

// gateFail spends one retry from the gate's budget and redirects the cursor
// to the retry target; a spent budget escalates the task.
func (s *Sequencer) gateFail(state task.State, slot int, gateName string, policy task.GatePolicy) (Decision, error) {
	if state.RetryCounts == nil {
		state.RetryCounts = map[int]int{}
	}
	state.RetryCounts[slot]++
	if state.RetryCounts[slot] > policy.MaxRetries {
		state.Status = task.StatusEscalated
		state.StatusReason = fmt.Sprintf("gate %s failed %d times, retry budget is %d", gateName, state.RetryCounts[slot], policy.MaxRetries)
		state.UpdatedAt = s.now()
		if err := s.repo.Save(state); err != nil {
			return Decision{}, err
		}
		return terminalDecision(state), nil
	}
	target := policy.RetryTarget
	if target == "" {
		target = gateName
	}
	targetSlot, ok := state.Plan.SlotOf(target)
	if !ok {
		return Decision{}, fmt.Errorf("sequencer: gate %s retry target %s not in plan", gateName, target)
	}
	state.Cursor = targetSlot + 1
	return s.dispatch(state, targetSlot)
}

// advance moves past the inspected slot: either the plan is finished or the
// next slot dispatches.
func (s *Sequencer) advance(state task.State, slot int) (Decision, error) {
	next := slot + 1
	if next >= len(state.Plan.Steps) {
		state.Status = task.StatusComplete
		state.UpdatedAt = s.now()
		if err := s.repo.Save(state); err != nil {
			return Decision{}, err
		}
		return terminalDecision(state), nil
	}
	state.Cursor = next + 1
	return s.dispatch(state, next)
}

// dispatch persists the advanced cursor and hands the slot to the caller.
func (s *Sequencer) dispatch(state task.State, slot int) (Decision, error) {
	state.Status = task.StatusRunning
	state.UpdatedAt = s.now()
	if err := s.repo.Save(state); err != nil {
		return Decision{}, err
	}
	return Decision{
		Status: state.Status,
		Step:   state.Plan.Steps[slot].Clone(),
		Slot:   slot,
		State:  state.Clone(),
	}, nil
}

func replayDecision(state task.State, slot int) Decision {
	return Decision{
		Status: state.Status,
		Step:   state.Plan.Steps[slot].Clone(),
		Slot:   slot,
		State:  state.Clone(),
	}
}

func terminalDecision(state task.State) Decision {
	return Decision{
		Terminal: true,
		Status:   state.Status,
		Reason:   state.StatusReason,
		State:    state.Clone(),
	}
}

func (s *Sequencer) now() time.Time {
	if s.clock == nil {
		return time.Now()
	}
	return s.clock()
}
