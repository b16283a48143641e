// Package task defines the plan and state model for multi-step tasks: the
// ordered slots a task walks, the gate policies that steer the cursor, and
// the persisted snapshot the sequencer mutates.
package task

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Runtime defaults applied by Normalized when a plan omits them.
const (
	DefaultWaitTimeout  = 10 * time.Minute
	DefaultPollInterval = 2 * time.Second
	DefaultMaxTimeouts  = 3
)

// Plan declares the ordered slots a task walks, the gate policies attached
// to step names, and the report bindings each step reads and writes.
type Plan struct {
	ID          string                `json:"id" yaml:"id"`
	Name        string                `json:"name,omitempty" yaml:"name,omitempty"`
	Description string                `json:"description,omitempty" yaml:"description,omitempty"`
	Steps       []Step                `json:"steps" yaml:"steps"`
	Gates       map[string]GatePolicy `json:"gates,omitempty" yaml:"gates,omitempty"`
	IO          map[string]IOBinding  `json:"io,omitempty" yaml:"io,omitempty"`
	Runtime     RuntimeConfig         `json:"runtime,omitempty" yaml:"runtime,omitempty"`
}

// GatePolicy describes how a step's signal steers the cursor. A gating step
// that reports failed sends the cursor back to RetryTarget until MaxRetries
// consecutive budget is spent; a non-gating policy records the signal but
// never blocks advancement.
type GatePolicy struct {
	Gating      bool   `json:"gating" yaml:"gating"`
	RetryTarget string `json:"retry_target,omitempty" yaml:"retry_target,omitempty"`
	MaxRetries  int    `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
}

// IOBinding names the reports a step consumes and the report it produces.
// Produces defaults to the step's own name.
type IOBinding struct {
	Consumes []string `json:"consumes,omitempty" yaml:"consumes,omitempty"`
	Optional []string `json:"optional,omitempty" yaml:"optional,omitempty"`
	Produces string   `json:"produces,omitempty" yaml:"produces,omitempty"`
}

// Clone returns a deep copy of the plan.
func (p Plan) Clone() Plan {
	clone := Plan{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Runtime:     p.Runtime,
	}
	if len(p.Steps) > 0 {
		clone.Steps = make([]Step, len(p.Steps))
		for i, step := range p.Steps {
			clone.Steps[i] = step.Clone()
		}
	}
	if len(p.Gates) > 0 {
		clone.Gates = make(map[string]GatePolicy, len(p.Gates))
		for name, policy := range p.Gates {
			clone.Gates[name] = policy
		}
	}
	if len(p.IO) > 0 {
		clone.IO = make(map[string]IOBinding, len(p.IO))
		for name, binding := range p.IO {
			clone.IO[name] = binding.clone()
		}
	}
	return clone
}

func (io IOBinding) clone() IOBinding {
	return IOBinding{
		Consumes: cloneStringSlice(io.Consumes),
		Optional: cloneStringSlice(io.Optional),
		Produces: io.Produces,
	}
}

// Validate ensures the plan is self-consistent: step names unique across
// slots, gates attached to known steps with backward retry targets, and at
// most one gate per slot. A raw definition with an unset runtime passes;
// Normalized fills the runtime defaults.
func (p Plan) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("task: plan id is required")
	}
	if len(p.Steps) == 0 {
		return fmt.Errorf("plan %s: at least one step is required", p.ID)
	}
	slots := map[string]int{}
	for idx, step := range p.Steps {
		if len(step.Names) == 0 {
			return fmt.Errorf("plan %s step[%d]: empty slot", p.ID, idx)
		}
		for _, name := range step.Names {
			if name == "" {
				return fmt.Errorf("plan %s step[%d]: empty step name", p.ID, idx)
			}
			if _, exists := slots[name]; exists {
				return fmt.Errorf("plan %s: duplicate step name %s", p.ID, name)
			}
			slots[name] = idx
		}
	}
	for idx := range p.Steps {
		gated := 0
		for _, name := range p.Steps[idx].Names {
			if _, ok := p.Gates[name]; ok {
				gated++
			}
		}
		if gated > 1 {
			return fmt.Errorf("plan %s step[%d]: at most one member of a group may carry a gate policy", p.ID, idx)
		}
	}
	for name, policy := range p.Gates {
		slot, ok := slots[name]
		if !ok {
			return fmt.Errorf("plan %s: gate references unknown step %s", p.ID, name)
		}
		if policy.MaxRetries < 0 {
			return fmt.Errorf("plan %s gate %s: max_retries must be >= 0", p.ID, name)
		}
		if policy.RetryTarget == "" {
			continue
		}
		target, ok := slots[policy.RetryTarget]
		if !ok {
			return fmt.Errorf("plan %s gate %s: retry target %s references unknown step", p.ID, name, policy.RetryTarget)
		}
		if target > slot {
			return fmt.Errorf("plan %s gate %s: retry target %s is after the gate", p.ID, name, policy.RetryTarget)
		}
	}
	for name := range p.IO {
		if _, ok := slots[name]; !ok {
			return fmt.Errorf("plan %s: io binding references unknown step %s", p.ID, name)
		}
	}
	if err := p.Runtime.validate(); err != nil {
		return fmt.Errorf("plan %s runtime: %w", p.ID, err)
	}
	return nil
}

// Normalized clones the plan, fills runtime defaults, and validates the
// result.
func (p Plan) Normalized() (Plan, error) {
	clone := p.Clone()
	clone.Runtime = clone.Runtime.normalized()
	if err := clone.Validate(); err != nil {
		return Plan{}, err
	}
	return clone, nil
}

// SlotOf returns the slot index holding the named step.
func (p Plan) SlotOf(name string) (int, bool) {
	for idx, step := range p.Steps {
		if step.Contains(name) {
			return idx, true
		}
	}
	return 0, false
}

// GateFor returns the gate policy attached to a member of the slot, if any.
// The policy's step name anchors retry bookkeeping; validation guarantees at
// most one member carries a policy.
func (p Plan) GateFor(slot int) (string, GatePolicy, bool) {
	if slot < 0 || slot >= len(p.Steps) {
		return "", GatePolicy{}, false
	}
	for _, name := range p.Steps[slot].Names {
		if policy, ok := p.Gates[name]; ok {
			return name, policy, true
		}
	}
	return "", GatePolicy{}, false
}

// ProducesOf returns the report type the named step writes.
func (p Plan) ProducesOf(name string) string {
	if binding, ok := p.IO[name]; ok && binding.Produces != "" {
		return binding.Produces
	}
	return name
}

// StepNames returns every step name in slot order.
func (p Plan) StepNames() []string {
	names := make([]string, 0, len(p.Steps))
	for _, step := range p.Steps {
		names = append(names, step.Names...)
	}
	return names
}

// RuntimeConfig bounds how long the loop waits on a slot's signals, how
// often it polls, and how many wait timeouts a slot may burn before the task
// escalates.
type RuntimeConfig struct {
	WaitTimeout  time.Duration `json:"wait_timeout,omitempty"`
	PollInterval time.Duration `json:"poll_interval,omitempty"`
	MaxTimeouts  int           `json:"max_timeouts,omitempty"`
}

type runtimeConfigYAML struct {
	WaitTimeout  string `yaml:"wait_timeout,omitempty"`
	PollInterval string `yaml:"poll_interval,omitempty"`
	MaxTimeouts  int    `yaml:"max_timeouts,omitempty"`
}

// UnmarshalYAML reads durations in time.ParseDuration notation ("90s", "10m").
func (cfg *RuntimeConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw runtimeConfigYAML
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("task: decode runtime: %w", err)
	}
	if raw.WaitTimeout != "" {
		d, err := time.ParseDuration(raw.WaitTimeout)
		if err != nil {
			return fmt.Errorf("task: runtime wait_timeout: %w", err)
		}
		cfg.WaitTimeout = d
	}
	if raw.PollInterval != "" {
		d, err := time.ParseDuration(raw.PollInterval)
		if err != nil {
			return fmt.Errorf("task: runtime poll_interval: %w", err)
		}
		cfg.PollInterval = d
	}
	cfg.MaxTimeouts = raw.MaxTimeouts
	return nil
}

// MarshalYAML emits durations in the same notation UnmarshalYAML accepts.
func (cfg RuntimeConfig) MarshalYAML() (any, error) {
	raw := runtimeConfigYAML{MaxTimeouts: cfg.MaxTimeouts}
	if cfg.WaitTimeout > 0 {
		raw.WaitTimeout = cfg.WaitTimeout.String()
	}
	if cfg.PollInterval > 0 {
		raw.PollInterval = cfg.PollInterval.String()
	}
	return raw, nil
}

func (cfg RuntimeConfig) normalized() RuntimeConfig {
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = DefaultWaitTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxTimeouts <= 0 {
		cfg.MaxTimeouts = DefaultMaxTimeouts
	}
	return cfg
}

// validate accepts zero values: an unset field means "use the default" and
// is filled by normalized before a task runs. Fields that are set must still
// be coherent.
func (cfg RuntimeConfig) validate() error {
	if cfg.WaitTimeout < 0 {
		return fmt.Errorf("wait_timeout must not be negative")
	}
	if cfg.PollInterval < 0 {
		return fmt.Errorf("poll_interval must not be negative")
	}
	if cfg.WaitTimeout > 0 && cfg.PollInterval > cfg.WaitTimeout {
		return fmt.Errorf("poll_interval must not exceed wait_timeout")
	}
	if cfg.MaxTimeouts < 0 {
		return fmt.Errorf("max_timeouts must not be negative")
	}
	return nil
}

func cloneStringSlice(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	clone := make([]string, len(values))
	copy(clone, values)
	return clone
}
