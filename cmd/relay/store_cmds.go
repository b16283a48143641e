package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kingrea/relay/internal/contracts"
	"github.com/kingrea/relay/internal/store"
	"github.com/kingrea/relay/plugins"
)

func cmdReport(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("report requires a verb: get or put")
	}
	switch args[0] {
	case "get":
		return reportGet(args[1:])
	case "put":
		return reportPut(args[1:])
	default:
		return fmt.Errorf("unknown report verb %q", args[0])
	}
}

func reportGet(args []string) error {
	fs := flag.NewFlagSet("report get", flag.ExitOnError)
	project := fs.String("project", "", "project directory (default: cwd)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	taskID, reportType, err := taskAndType(fs.Args())
	if err != nil {
		return err
	}
	e, err := openEnv(*project, false, false)
	if err != nil {
		return err
	}
	defer e.Close()
	report, err := e.store.GetReport(taskID, reportType)
	if err != nil {
		return err
	}
	fmt.Print(report.Content)
	if !strings.HasSuffix(report.Content, "\n") {
		fmt.Println()
	}
	return nil
}

func reportPut(args []string) error {
	fs := flag.NewFlagSet("report put", flag.ExitOnError)
	project := fs.String("project", "", "project directory (default: cwd)")
	file := fs.String("file", "", "read content from this file instead of stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}
	taskID, reportType, err := taskAndType(fs.Args())
	if err != nil {
		return err
	}
	var content []byte
	if *file != "" {
		content, err = os.ReadFile(*file)
	} else {
		content, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return err
	}
	e, err := openEnv(*project, false, false)
	if err != nil {
		return err
	}
	defer e.Close()
	if err := e.store.PutReport(taskID, reportType, string(content)); err != nil {
		return err
	}
	fmt.Printf("Stored report %s for task %s\n", reportType, taskID)
	return nil
}

func cmdSignal(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("signal requires a verb: get, put, clear, or wait")
	}
	switch args[0] {
	case "get":
		return signalGet(args[1:])
	case "put":
		return signalPut(args[1:])
	case "clear":
		return signalClear(args[1:])
	case "wait":
		return signalWait(args[1:])
	default:
		return fmt.Errorf("unknown signal verb %q", args[0])
	}
}

func signalGet(args []string) error {
	fs := flag.NewFlagSet("signal get", flag.ExitOnError)
	project := fs.String("project", "", "project directory (default: cwd)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	taskID, signalType, err := taskAndType(fs.Args())
	if err != nil {
		return err
	}
	e, err := openEnv(*project, false, false)
	if err != nil {
		return err
	}
	defer e.Close()
	sig, err := e.store.GetSignal(taskID, signalType)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", signalType, sig.Status)
	if sig.Summary != "" {
		fmt.Println(sig.Summary)
	}
	if sig.AutoSaved {
		fmt.Printf("(auto-saved by %s)\n", sig.SavedBy)
	}
	return nil
}

func signalPut(args []string) error {
	fs := flag.NewFlagSet("signal put", flag.ExitOnError)
	project := fs.String("project", "", "project directory (default: cwd)")
	status := fs.String("status", "", "signal status: passed or failed")
	summary := fs.String("summary", "", "one-line summary of the attempt")
	savedBy := fs.String("saved-by", "", "identity recorded on the signal")
	if err := fs.Parse(args); err != nil {
		return err
	}
	taskID, signalType, err := taskAndType(fs.Args())
	if err != nil {
		return err
	}
	if !store.ValidStatus(strings.ToLower(strings.TrimSpace(*status))) {
		return fmt.Errorf("-status must be %q or %q", store.StatusPassed, store.StatusFailed)
	}
	e, err := openEnv(*project, false, false)
	if err != nil {
		return err
	}
	defer e.Close()
	sig := store.Signal{
		Status:  strings.ToLower(strings.TrimSpace(*status)),
		Summary: strings.TrimSpace(*summary),
		SavedBy: strings.TrimSpace(*savedBy),
	}
	if err := e.store.PutSignal(taskID, signalType, sig); err != nil {
		return err
	}
	fmt.Printf("Stored signal %s=%s for task %s\n", signalType, sig.Status, taskID)
	return nil
}

func signalClear(args []string) error {
	fs := flag.NewFlagSet("signal clear", flag.ExitOnError)
	project := fs.String("project", "", "project directory (default: cwd)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	taskID, signalType, err := taskAndType(fs.Args())
	if err != nil {
		return err
	}
	e, err := openEnv(*project, false, false)
	if err != nil {
		return err
	}
	defer e.Close()
	if err := e.store.ClearSignal(taskID, signalType); err != nil {
		return err
	}
	fmt.Printf("Cleared signal %s for task %s\n", signalType, taskID)
	return nil
}

func signalWait(args []string) error {
	fs := flag.NewFlagSet("signal wait", flag.ExitOnError)
	project := fs.String("project", "", "project directory (default: cwd)")
	timeout := fs.Duration("timeout", 10*time.Minute, "give up after this long")
	poll := fs.Duration("poll", 2*time.Second, "poll interval")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) < 2 {
		return fmt.Errorf("usage: relay signal wait <task> <type> [<type>...]")
	}
	taskID := rest[0]
	signalTypes := rest[1:]

	e, err := openEnv(*project, false, false)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	result, err := store.NewWaiter(e.store).Wait(ctx, taskID, signalTypes, *timeout, *poll)
	if err != nil {
		return err
	}
	if result.TimedOut {
		return fmt.Errorf("timed out waiting for %s", strings.Join(signalTypes, ", "))
	}
	for _, signalType := range signalTypes {
		sig := result.Signals[signalType]
		fmt.Printf("%s: %s\n", signalType, sig.Status)
	}
	return nil
}

func cmdPlans(args []string) error {
	fs := flag.NewFlagSet("plans", flag.ExitOnError)
	project := fs.String("project", "", "project directory (default: cwd)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	e, err := openEnv(*project, false, false)
	if err != nil {
		return err
	}
	defer e.Close()

	lib, err := plugins.Discover(e.cfg.PlansDir())
	if err != nil {
		return err
	}
	defs := lib.All()
	if len(defs) == 0 {
		fmt.Printf("No plans found under %s\n", e.cfg.PlansDir())
		return nil
	}
	for _, def := range defs {
		name := def.Plan.Name
		if name == "" {
			name = def.Plan.ID
		}
		fmt.Printf("%-24s %-32s %2d slots  %s\n", def.Plan.ID, name, len(def.Plan.Steps), def.Path)
	}
	return nil
}

func cmdValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: relay validate <plan-file>")
	}
	report, err := contracts.ValidatePlanFile(fs.Arg(0))
	if err != nil {
		return err
	}
	if report.IsValid() {
		fmt.Printf("Plan %s is valid.\n", report.PlanID)
		return nil
	}
	for _, issue := range report.Errors {
		fmt.Fprintf(os.Stderr, "  %v\n", issue)
	}
	return fmt.Errorf("plan %s has %d contract error(s)", report.PlanID, len(report.Errors))
}

func taskAndType(args []string) (string, string, error) {
	if len(args) != 2 {
		return "", "", fmt.Errorf("expected <task> <type> arguments")
	}
	taskID := strings.TrimSpace(args[0])
	kind := strings.TrimSpace(args[1])
	if taskID == "" || kind == "" {
		return "", "", fmt.Errorf("expected <task> <type> arguments")
	}
	return taskID, kind, nil
}
