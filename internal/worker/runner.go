// Package worker executes step attempts. A crew resolves each step through
// a roster to a runner (exec, llm, noop), feeds it the workflow I/O
// contract, and backfills the report and signal a worker forgot to leave.
package worker

import "context"

// Environment variables exported to exec runners so spawned commands can
// reach the store with the relay CLI.
const (
	EnvTaskID    = "RELAY_TASK_ID"
	EnvStep      = "RELAY_STEP"
	EnvAttempt   = "RELAY_ATTEMPT"
	EnvTasksBase = "RELAY_TASKS_BASE"
)

// Request carries one step attempt to a runner.
type Request struct {
	TaskID  string
	Step    string
	Attempt string
	// Prompt is the rendered instruction block: the I/O contract, the
	// binding's prompt, and the inlined input reports.
	Prompt string
	// Binding is the roster entry the attempt was resolved through.
	Binding Binding
}

// Result is the raw output of one attempt. The crew derives the report and
// signal from it when the worker wrote neither itself.
type Result struct {
	Output string
}

// Runner executes one step attempt.
type Runner interface {
	Run(ctx context.Context, req Request) (Result, error)
}

// NoopRunner stands in for steps without a bound worker. It reports the
// step as passed so plans can be exercised end to end before every step has
// a real worker.
type NoopRunner struct{}

// Run returns a canned passing response.
func (NoopRunner) Run(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return Result{Output: "## Summary\nNo worker is bound to step " + req.Step + "; attempt recorded as a no-op.\n\nSTATUS: PASSED"}, nil
}
