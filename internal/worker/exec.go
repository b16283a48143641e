package worker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ExecRunner spawns the binding's command for each attempt. The prompt is
// fed on stdin and the task context is exported through RELAY_* environment
// variables, so the command can fetch and write reports with the relay CLI.
type ExecRunner struct {
	binding   Binding
	tasksBase string
}

// NewExecRunner builds a runner for an exec binding.
func NewExecRunner(binding Binding, tasksBase string) (*ExecRunner, error) {
	if strings.TrimSpace(binding.Command) == "" {
		return nil, fmt.Errorf("worker: exec binding has no command")
	}
	return &ExecRunner{binding: binding, tasksBase: tasksBase}, nil
}

// Run executes the command and captures its combined output. A non-zero
// exit is returned alongside whatever output was produced, so the crew can
// still derive a failed signal from it.
func (r *ExecRunner) Run(ctx context.Context, req Request) (Result, error) {
	cmd := exec.CommandContext(ctx, r.binding.Command, r.binding.Args...)
	cmd.Stdin = strings.NewReader(req.Prompt)
	cmd.Env = append(os.Environ(),
		EnvTaskID+"="+req.TaskID,
		EnvStep+"="+req.Step,
		EnvAttempt+"="+req.Attempt,
		EnvTasksBase+"="+r.tasksBase,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return Result{Output: string(output)}, fmt.Errorf("worker: exec %s: %w", r.binding.Command, err)
	}
	return Result{Output: string(output)}, nil
}
