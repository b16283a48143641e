package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/kingrea/relay/internal/bridge"
	"github.com/kingrea/relay/internal/config"
	"github.com/kingrea/relay/internal/logging"
	"github.com/kingrea/relay/internal/notify"
	"github.com/kingrea/relay/internal/orchestrator"
	"github.com/kingrea/relay/internal/store"
	"github.com/kingrea/relay/internal/task"
	"github.com/kingrea/relay/internal/tui"
	"github.com/kingrea/relay/plugins"
)

func cmdInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	project := fs.String("project", "", "project directory (default: cwd)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	dir := *project
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return err
		}
	}
	if err := config.InitRelayDir(dir); err != nil {
		return err
	}
	fmt.Printf("Initialized .relay in %s\n", dir)
	return nil
}

func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	planRef := fs.String("plan", "", "plan id from .relay/plans, or a path to a plan file")
	taskID := fs.String("task", "", "task id (default: generated)")
	project := fs.String("project", "", "project directory (default: cwd)")
	debug := fs.Bool("debug", false, "verbose logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*planRef) == "" {
		return fmt.Errorf("-plan is required")
	}

	e, err := openEnv(*project, true, *debug)
	if err != nil {
		return err
	}
	defer e.Close()

	plan, err := resolvePlan(e.cfg, *planRef)
	if err != nil {
		return err
	}
	e.cfg.ApplyRuntimeDefaults(&plan)

	id := strings.TrimSpace(*taskID)
	if id == "" {
		id = uuid.NewString()
	}
	if _, err := e.seq.Start(id, plan); err != nil {
		return err
	}
	fmt.Printf("Started task %s on plan %s\n", id, plan.ID)
	return driveTask(e, id)
}

func cmdResume(args []string) error {
	fs := flag.NewFlagSet("resume", flag.ExitOnError)
	taskID := fs.String("task", "", "task id to resume")
	project := fs.String("project", "", "project directory (default: cwd)")
	debug := fs.Bool("debug", false, "verbose logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*taskID) == "" {
		return fmt.Errorf("-task is required")
	}

	e, err := openEnv(*project, true, *debug)
	if err != nil {
		return err
	}
	defer e.Close()
	return driveTask(e, strings.TrimSpace(*taskID))
}

// driveTask wires the loop and runs the task until a terminal status. The
// bridge listener starts alongside when the project enables it so external
// workers can post signals while the loop waits.
func driveTask(e *env, taskID string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	crew, err := e.crew()
	if err != nil {
		return err
	}
	notifier := notify.Notifier(notify.Nop{})
	if e.cfg.NotifyEnabled() {
		n, err := notify.NewTelegramFromEnv()
		if err != nil {
			return err
		}
		notifier = n
	}
	loop, err := orchestrator.NewLoop(e.seq, e.store, store.NewWaiter(e.store), crew,
		orchestrator.WithJournal(e.journal),
		orchestrator.WithNotifier(notifier),
		orchestrator.WithLogger(logging.Component(e.logger, "loop")),
	)
	if err != nil {
		return err
	}

	settings := bridge.SettingsFromConfig(e.cfg)
	if settings.Enabled {
		srv, err := bridge.NewServer(settings, e.store,
			bridge.WithStateViewer(e.seq),
			bridge.WithLogger(logging.Component(e.logger, "bridge")))
		if err != nil {
			return err
		}
		if err := srv.Start(ctx); err != nil {
			return err
		}
		defer srv.Shutdown(context.Background())
		fmt.Printf("Signal bridge listening on %s\n", srv.BaseURL())
	}

	outcome, err := loop.Run(ctx, taskID)
	if err != nil {
		return err
	}
	printOutcome(outcome)
	if outcome.Status != task.StatusComplete {
		return fmt.Errorf("task %s finished %s", outcome.TaskID, outcome.Status)
	}
	return nil
}

func cmdServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	project := fs.String("project", "", "project directory (default: cwd)")
	debug := fs.Bool("debug", false, "verbose logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := openEnv(*project, true, *debug)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings := bridge.SettingsFromConfig(e.cfg)
	// `relay serve` is an explicit request: ignore the enabled toggle.
	settings.Enabled = true
	srv, err := bridge.NewServer(settings, e.store,
		bridge.WithStateViewer(e.seq),
		bridge.WithLogger(logging.Component(e.logger, "bridge")))
	if err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		return err
	}
	fmt.Printf("Signal bridge listening on %s\n", srv.BaseURL())
	<-ctx.Done()
	return srv.Shutdown(context.Background())
}

func cmdWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	taskID := fs.String("task", "", "task id to watch")
	project := fs.String("project", "", "project directory (default: cwd)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*taskID) == "" {
		return fmt.Errorf("-task is required")
	}

	e, err := openEnv(*project, false, false)
	if err != nil {
		return err
	}
	defer e.Close()
	return tui.Watch(strings.TrimSpace(*taskID), e.seq, e.store, e.journal)
}

func cmdStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	taskID := fs.String("task", "", "task id to inspect")
	project := fs.String("project", "", "project directory (default: cwd)")
	tail := fs.Int("tail", 10, "journal entries to show")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*taskID) == "" {
		return fmt.Errorf("-task is required")
	}

	e, err := openEnv(*project, false, false)
	if err != nil {
		return err
	}
	defer e.Close()

	state, err := e.seq.View(strings.TrimSpace(*taskID))
	if err != nil {
		return err
	}
	fmt.Printf("Task:   %s\n", state.TaskID)
	fmt.Printf("Plan:   %s\n", state.Plan.ID)
	fmt.Printf("Status: %s", state.Status)
	if state.StatusReason != "" {
		fmt.Printf(" (%s)", state.StatusReason)
	}
	fmt.Println()
	for idx, step := range state.Plan.Steps {
		marker := " "
		if inFlight, ok := state.InFlightSlot(); ok && idx == inFlight {
			marker = ">"
		}
		line := fmt.Sprintf("%s %2d. %s", marker, idx+1, step.Label())
		if retries := state.RetryCount(idx); retries > 0 {
			line += fmt.Sprintf("  retries=%d", retries)
		}
		if timeouts := state.TimeoutCount(idx); timeouts > 0 {
			line += fmt.Sprintf("  timeouts=%d", timeouts)
		}
		fmt.Println(line)
	}
	entries := e.journal.Tail(state.TaskID, *tail)
	if len(entries) > 0 {
		fmt.Println("\nRecent events:")
		for _, entry := range entries {
			line := fmt.Sprintf("  %s  %-10s %s", entry.Time.Local().Format("15:04:05"), entry.Event, entry.Step)
			if entry.Detail != "" {
				line += " · " + entry.Detail
			}
			fmt.Println(line)
		}
	}
	return nil
}

func printOutcome(outcome orchestrator.Outcome) {
	fmt.Printf("Task %s: %s\n", outcome.TaskID, outcome.Status)
	if outcome.LastStep != "" {
		fmt.Printf("Last step: %s\n", outcome.LastStep)
	}
	if outcome.Reason != "" {
		fmt.Println(outcome.Reason)
	}
}

// resolvePlan accepts either a file path or a plan id discovered under
// .relay/plans.
func resolvePlan(cfg *config.Config, ref string) (task.Plan, error) {
	trimmed := strings.TrimSpace(ref)
	lower := strings.ToLower(trimmed)
	if strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml") || strings.ContainsAny(trimmed, `/\`) {
		return task.LoadPlanFile(trimmed)
	}
	lib, err := plugins.Discover(cfg.PlansDir())
	if err != nil {
		return task.Plan{}, err
	}
	plan, ok := lib.Get(trimmed)
	if !ok {
		ids := make([]string, 0, lib.Len())
		for _, def := range lib.All() {
			ids = append(ids, def.Plan.ID)
		}
		if len(ids) == 0 {
			return task.Plan{}, fmt.Errorf("no plans found under %s", cfg.PlansDir())
		}
		return task.Plan{}, fmt.Errorf("plan %s not found; available: %s", trimmed, strings.Join(ids, ", "))
	}
	return plan, nil
}
