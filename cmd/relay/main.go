// cmd/relay/main.go
//
// This is the entry point for the relay CLI. Every subcommand resolves the
// project directory (defaulting to the working directory), initializes the
// .relay folder on first use, and wires the store backend the project
// config selects.
package main

import (
	"fmt"
	"os"
)

const usage = `relay drives multi-step tasks through their plans.

Usage:
  relay init                              prepare the .relay directory
  relay run -plan <id|file> [-task <id>]  start a task and drive it to the end
  relay resume -task <id>                 continue a task from its saved state
  relay status -task <id>                 print the task snapshot and journal
  relay watch -task <id>                  live per-slot view of a running task
  relay report get <task> <type>          print a stored report
  relay report put <task> <type> [-file]  store a report (stdin by default)
  relay signal get <task> <type>          print a stored signal
  relay signal put <task> <type> -status  store a completion signal
  relay signal clear <task> <type>        clear a signal before a retry
  relay signal wait <task> <type...>      block until the signal set is complete
  relay plans                             list discovered plan definitions
  relay validate <file>                   check a plan's I/O contract wiring
  relay serve                             run the HTTP signal bridge

Common flags (per subcommand):
  -project <dir>   project directory (default: current directory)
  -debug           verbose logging
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "init":
		err = cmdInit(os.Args[2:])
	case "run":
		err = cmdRun(os.Args[2:])
	case "resume":
		err = cmdResume(os.Args[2:])
	case "status":
		err = cmdStatus(os.Args[2:])
	case "watch":
		err = cmdWatch(os.Args[2:])
	case "report":
		err = cmdReport(os.Args[2:])
	case "signal":
		err = cmdSignal(os.Args[2:])
	case "plans":
		err = cmdPlans(os.Args[2:])
	case "validate":
		err = cmdValidate(os.Args[2:])
	case "serve":
		err = cmdServe(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "relay: unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "relay: %v\n", err)
		os.Exit(1)
	}
}
