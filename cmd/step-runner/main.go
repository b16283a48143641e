// cmd/step-runner runs one step attempt against an existing task and
// exits. It is the manual counterpart of the orchestrator's dispatch: useful
// for re-running a single step after fixing a worker, or for driving a task
// by hand while developing a plan.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/kingrea/relay/internal/config"
	"github.com/kingrea/relay/internal/logging"
	"github.com/kingrea/relay/internal/sequencer"
	"github.com/kingrea/relay/internal/store"
	"github.com/kingrea/relay/internal/worker"
)

func main() {
	taskID := flag.String("task", "", "task id holding the step")
	step := flag.String("step", "", "step name to attempt")
	projectDir := flag.String("project", "", "path to the project directory (defaults to cwd)")
	debug := flag.Bool("debug", false, "verbose logging")
	flag.Parse()

	if strings.TrimSpace(*taskID) == "" {
		die("-task is required")
	}
	if strings.TrimSpace(*step) == "" {
		die("-step is required")
	}

	project := *projectDir
	if project == "" {
		var err error
		project, err = os.Getwd()
		if err != nil {
			die("determine working directory: %v", err)
		}
	}
	absoluteProject, err := filepath.Abs(project)
	if err != nil {
		die("resolve project dir: %v", err)
	}
	if err := config.InitRelayDir(absoluteProject); err != nil {
		die("init .relay: %v", err)
	}
	cfg, err := config.NewConfig(absoluteProject)
	if err != nil {
		die("load config: %v", err)
	}
	logger, closeLog, err := logging.New(logging.Options{Dir: cfg.LogsDir(), Console: true, Debug: *debug})
	if err != nil {
		die("open log: %v", err)
	}
	defer closeLog()

	var st store.Store
	var repo sequencer.StateStore
	switch cfg.Project.Store.Backend {
	case config.BackendSQLite:
		sq, err := store.OpenSQL(cfg.SQLitePath())
		if err != nil {
			die("open store: %v", err)
		}
		defer sq.Close()
		st = sq
		repo = sequencer.NewSQLRepository(sq.DB())
	default:
		base := cfg.TasksBase()
		st = store.NewFileStore(base)
		repo = sequencer.NewFileRepository(base)
	}

	state, err := repo.Load(strings.TrimSpace(*taskID))
	if err != nil {
		die("load task: %v", err)
	}

	roster, err := worker.LoadRoster(cfg.RosterPath())
	if err != nil {
		die("load roster: %v", err)
	}
	registry := worker.NewRegistry()
	worker.RegisterBuiltins(registry, worker.RunnerOptions{
		TasksBase: cfg.TasksBase(),
		LLM: worker.LLMOptions{
			BaseURL:  cfg.Project.LLM.BaseURL,
			Model:    cfg.Project.LLM.Model,
			TokenEnv: cfg.Project.LLM.APIKeyEnv,
		},
	})
	crew, err := worker.NewCrew(st, registry, roster, worker.WithLogger(logging.Component(logger, "crew")))
	if err != nil {
		die("build crew: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := crew.RunAttempt(ctx, state, strings.TrimSpace(*step)); err != nil {
		die("run attempt: %v", err)
	}
	sig, err := st.GetSignal(state.TaskID, strings.TrimSpace(*step))
	if err != nil {
		die("read signal: %v", err)
	}
	fmt.Printf("Step %s: %s\n", *step, sig.Status)
	if sig.Summary != "" {
		fmt.Println(sig.Summary)
	}
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
