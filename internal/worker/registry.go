package worker

import (
	"fmt"
	"sort"
	"sync"
)

// Factory constructs a runner for a roster binding.
type Factory func(Binding) (Runner, error)

// Registry maintains known runner factories keyed by kind.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register installs a runner factory. Returns an error if the kind already
// exists.
func (r *Registry) Register(kind string, factory Factory) error {
	if kind == "" {
		return fmt.Errorf("worker: kind is required")
	}
	if factory == nil {
		return fmt.Errorf("worker: factory is required for %s", kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[kind]; exists {
		return fmt.Errorf("worker: %s already registered", kind)
	}
	r.factories[kind] = factory
	return nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(kind string, factory Factory) {
	if err := r.Register(kind, factory); err != nil {
		panic(err)
	}
}

// Resolve constructs a runner for the binding's kind.
func (r *Registry) Resolve(binding Binding) (Runner, error) {
	r.mu.RLock()
	factory, ok := r.factories[binding.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("worker: unknown runner kind %s", binding.Kind)
	}
	return factory(binding)
}

// Kinds returns a sorted list of registered runner kinds.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for kind := range r.factories {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// RunnerOptions configures the built-in runner factories.
type RunnerOptions struct {
	// TasksBase is exported to exec runners as RELAY_TASKS_BASE.
	TasksBase string
	// LLM configures the langchaingo client behind llm bindings.
	LLM LLMOptions
}

// RegisterBuiltins installs the exec, llm, and noop factories.
func RegisterBuiltins(r *Registry, opts RunnerOptions) {
	r.MustRegister(KindNoop, func(Binding) (Runner, error) {
		return NoopRunner{}, nil
	})
	r.MustRegister(KindExec, func(binding Binding) (Runner, error) {
		return NewExecRunner(binding, opts.TasksBase)
	})
	r.MustRegister(KindLLM, func(binding Binding) (Runner, error) {
		llmOpts := opts.LLM
		if binding.Model != "" {
			llmOpts.Model = binding.Model
		}
		return NewLLMRunner(llmOpts)
	})
}
