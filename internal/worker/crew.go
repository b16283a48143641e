package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/kingrea/relay/internal/contracts"
	"github.com/kingrea/relay/internal/store"
	"github.com/kingrea/relay/internal/task"
)

// DefaultCrewName stamps auto-saved signals so their origin is visible.
const DefaultCrewName = "relay-crew"

// Crew dispatches step attempts: it resolves each step through the roster,
// renders the workflow I/O contract into the prompt, runs the attempt, and
// backfills the report and signal when the worker left neither. Group
// members run concurrently; the crew never touches task state.
type Crew struct {
	store    store.Store
	registry *Registry
	roster   Roster
	name     string
	logger   zerolog.Logger
}

// CrewOption customizes a crew.
type CrewOption func(*Crew)

// WithName overrides the savedBy stamp on auto-saved signals.
func WithName(name string) CrewOption {
	return func(c *Crew) {
		if name != "" {
			c.name = name
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger zerolog.Logger) CrewOption {
	return func(c *Crew) {
		c.logger = logger
	}
}

// NewCrew wires a crew to the store, runner registry, and roster.
func NewCrew(st store.Store, registry *Registry, roster Roster, opts ...CrewOption) (*Crew, error) {
	if st == nil {
		return nil, fmt.Errorf("worker: store is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("worker: registry is required")
	}
	crew := &Crew{
		store:    st,
		registry: registry,
		roster:   roster,
		name:     DefaultCrewName,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(crew)
	}
	return crew, nil
}

// Dispatch runs one attempt per slot member concurrently and waits for all
// of them to return. Fan-out never crosses the slot boundary.
func (c *Crew) Dispatch(ctx context.Context, state task.State, step task.Step) error {
	group, ctx := errgroup.WithContext(ctx)
	for _, name := range step.Names {
		name := name
		group.Go(func() error {
			return c.RunAttempt(ctx, state, name)
		})
	}
	return group.Wait()
}

// RunAttempt executes a single step attempt end to end. A runner error is
// converted into a failed signal before being returned, so the sequencer
// always sees an outcome instead of waiting out the timeout.
func (c *Crew) RunAttempt(ctx context.Context, state task.State, stepName string) error {
	contract, ok := contracts.For(state.Plan, stepName)
	if !ok {
		return fmt.Errorf("worker: step %s is not part of plan %s", stepName, state.Plan.ID)
	}
	attempt := uuid.NewString()
	binding := c.roster.BindingFor(stepName)
	logger := c.logger.With().
		Str("task_id", state.TaskID).
		Str("step", stepName).
		Str("attempt", attempt).
		Str("kind", binding.Kind).
		Logger()

	runner, err := c.registry.Resolve(binding)
	if err != nil {
		logger.Error().Err(err).Msg("resolve runner")
		c.saveAutoSignal(state.TaskID, contract.Signal, store.StatusFailed, "ERROR: "+err.Error())
		return err
	}

	req := Request{
		TaskID:  state.TaskID,
		Step:    stepName,
		Attempt: attempt,
		Prompt:  c.buildPrompt(state.TaskID, contract, binding),
		Binding: binding,
	}
	logger.Info().Msg("attempt started")
	result, runErr := runner.Run(ctx, req)
	output := result.Output

	if output != "" {
		c.backfillReport(state.TaskID, contract.Produces, output, logger)
	}
	if runErr != nil {
		logger.Error().Err(runErr).Msg("attempt failed")
		c.saveAutoSignal(state.TaskID, contract.Signal, store.StatusFailed, "ERROR: "+truncate(runErr.Error(), 100))
		return runErr
	}

	if c.signalPresent(state.TaskID, contract.Signal) {
		logger.Info().Msg("attempt finished, worker saved its own signal")
		return nil
	}
	status, summary := InferOutcome(output)
	c.saveAutoSignal(state.TaskID, contract.Signal, status, summary)
	logger.Info().Str("status", status).Msg("attempt finished, signal auto-saved")
	return nil
}

// buildPrompt renders the attempt instructions: the I/O contract block, the
// binding's prompt, and the inlined input reports for runners that cannot
// fetch them themselves. Missing inputs become "not available" notes rather
// than failures.
func (c *Crew) buildPrompt(taskID string, contract contracts.Contract, binding Binding) string {
	var b strings.Builder
	b.WriteString(contract.IOBlock(taskID))
	b.WriteString("\n---\n\n")
	if binding.Prompt != "" {
		b.WriteString(binding.Prompt)
	} else {
		fmt.Fprintf(&b, "Perform the %s step of task %s.", contract.Step, taskID)
	}
	inputs := append(append([]string(nil), contract.Consumes...), contract.Optional...)
	for _, input := range inputs {
		report, err := c.store.GetReport(taskID, input)
		if err != nil {
			fmt.Fprintf(&b, "\n\n### Input report: %s\n\n(report not available yet - skip and continue)", input)
			continue
		}
		fmt.Fprintf(&b, "\n\n### Input report: %s\n\n%s", input, report.Content)
	}
	return b.String()
}

// backfillReport captures the attempt output as the step report when the
// worker did not write one itself.
func (c *Crew) backfillReport(taskID, reportType, output string, logger zerolog.Logger) {
	_, err := c.store.GetReport(taskID, reportType)
	if err == nil {
		return
	}
	if !errors.Is(err, store.ErrNotFound) {
		logger.Warn().Err(err).Msg("check report before backfill")
		return
	}
	if err := c.store.PutReport(taskID, reportType, output); err != nil {
		logger.Warn().Err(err).Msg("backfill report")
	}
}

// signalPresent reports whether the worker already saved a signal for this
// attempt, i.e. one written after the pre-dispatch clear.
func (c *Crew) signalPresent(taskID, signalType string) bool {
	sig, err := c.store.GetSignal(taskID, signalType)
	if err != nil {
		return false
	}
	cleared, err := c.store.LastCleared(taskID, signalType)
	if err != nil {
		return false
	}
	return cleared.IsZero() || sig.WrittenAt.After(cleared)
}

func (c *Crew) saveAutoSignal(taskID, signalType, status, summary string) {
	sig := store.Signal{
		Status:    status,
		Summary:   summary,
		AutoSaved: true,
		SavedBy:   c.name,
	}
	if err := c.store.PutSignal(taskID, signalType, sig); err != nil {
		c.logger.Error().Err(err).
			Str("task_id", taskID).
			Str("signal", signalType).
			Msg("auto-save signal")
	}
}
