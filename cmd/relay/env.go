package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/kingrea/relay/internal/config"
	"github.com/kingrea/relay/internal/journal"
	"github.com/kingrea/relay/internal/logging"
	"github.com/kingrea/relay/internal/sequencer"
	"github.com/kingrea/relay/internal/store"
	"github.com/kingrea/relay/internal/worker"
)

// env bundles the wired collaborators a subcommand needs: the configured
// store backend, the state repository sharing it, the sequencer, and the
// journal. Close releases the sqlite handle and the log file sink.
type env struct {
	cfg     *config.Config
	store   store.Store
	repo    sequencer.StateStore
	seq     *sequencer.Sequencer
	journal *journal.Journal
	logger  zerolog.Logger

	closers []func() error
}

func openEnv(projectDir string, console, debug bool) (*env, error) {
	dir := projectDir
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("determine working directory: %w", err)
		}
	}
	absolute, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve project dir: %w", err)
	}
	if err := config.InitRelayDir(absolute); err != nil {
		return nil, fmt.Errorf("init .relay: %w", err)
	}
	cfg, err := config.NewConfig(absolute)
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg}
	logger, logClose, err := logging.New(logging.Options{Dir: cfg.LogsDir(), Console: console, Debug: debug})
	if err != nil {
		return nil, err
	}
	e.logger = logger
	e.closers = append(e.closers, logClose)

	switch cfg.Project.Store.Backend {
	case config.BackendSQLite:
		sq, err := store.OpenSQL(cfg.SQLitePath())
		if err != nil {
			e.Close()
			return nil, err
		}
		e.store = sq
		e.repo = sequencer.NewSQLRepository(sq.DB())
		e.closers = append(e.closers, sq.Close)
	default:
		base := cfg.TasksBase()
		e.store = store.NewFileStore(base)
		e.repo = sequencer.NewFileRepository(base)
	}

	seq, err := sequencer.New(e.repo, e.store)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.seq = seq

	jnl, err := journal.New(cfg.JournalPath())
	if err != nil {
		e.Close()
		return nil, err
	}
	e.journal = jnl
	return e, nil
}

// Close releases resources in reverse acquisition order.
func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		_ = e.closers[i]()
	}
}

// crew builds the worker crew from the project roster and the configured
// runner options.
func (e *env) crew() (*worker.Crew, error) {
	roster, err := worker.LoadRoster(e.cfg.RosterPath())
	if err != nil {
		return nil, err
	}
	registry := worker.NewRegistry()
	worker.RegisterBuiltins(registry, worker.RunnerOptions{
		TasksBase: e.cfg.TasksBase(),
		LLM: worker.LLMOptions{
			BaseURL:  e.cfg.Project.LLM.BaseURL,
			Model:    e.cfg.Project.LLM.Model,
			TokenEnv: e.cfg.Project.LLM.APIKeyEnv,
		},
	})
	return worker.NewCrew(e.store, registry, roster, worker.WithLogger(logging.Component(e.logger, "crew")))
}
