package worker

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Runner kinds a roster binding may name.
const (
	KindExec = "exec"
	KindLLM  = "llm"
	KindNoop = "noop"
)

// WildcardStep matches every step in a binding's step list.
const WildcardStep = "*"

// Binding attaches a runner to one or more step names. A binding listing
// "*" (or no steps at all) acts as the catch-all for steps no other binding
// claims.
type Binding struct {
	Steps   []string `json:"steps,omitempty"`
	Kind    string   `json:"kind"`
	Command string   `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`
	Prompt  string   `json:"prompt,omitempty"`
	Model   string   `json:"model,omitempty"`
}

// Roster is the persisted worker team: the bindings consulted to resolve a
// step to a runner. Stored as .relay/team/workers.json.
type Roster struct {
	Workers []Binding `json:"workers"`
}

// LoadRoster reads a roster file. A missing file yields an empty roster so
// fresh projects run on the noop catch-all.
func LoadRoster(path string) (Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Roster{}, nil
		}
		return Roster{}, fmt.Errorf("worker: read roster %s: %w", path, err)
	}
	var roster Roster
	if err := json.Unmarshal(data, &roster); err != nil {
		return Roster{}, fmt.Errorf("worker: parse roster %s: %w", path, err)
	}
	roster = roster.Normalize()
	if err := roster.Validate(); err != nil {
		return Roster{}, fmt.Errorf("worker: roster %s: %w", path, err)
	}
	return roster, nil
}

// Save writes the roster back to disk.
func (r Roster) Save(path string) error {
	normalized := r.Normalize()
	if err := normalized.Validate(); err != nil {
		return fmt.Errorf("worker: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("worker: ensure roster dir: %w", err)
	}
	data, err := json.MarshalIndent(normalized, "", "  ")
	if err != nil {
		return fmt.Errorf("worker: encode roster: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("worker: write roster %s: %w", path, err)
	}
	return nil
}

// Normalize trims names, lowercases kinds, and drops empty step entries.
func (r Roster) Normalize() Roster {
	out := Roster{}
	for _, binding := range r.Workers {
		binding.Kind = strings.ToLower(strings.TrimSpace(binding.Kind))
		var steps []string
		for _, step := range binding.Steps {
			if trimmed := strings.TrimSpace(step); trimmed != "" {
				steps = append(steps, trimmed)
			}
		}
		binding.Steps = steps
		out.Workers = append(out.Workers, binding)
	}
	return out
}

// Validate checks every binding names a kind and exec bindings carry a
// command.
func (r Roster) Validate() error {
	for i, binding := range r.Workers {
		if binding.Kind == "" {
			return fmt.Errorf("workers[%d]: kind is required", i)
		}
		if binding.Kind == KindExec && strings.TrimSpace(binding.Command) == "" {
			return fmt.Errorf("workers[%d]: command is required for exec bindings", i)
		}
	}
	return nil
}

// BindingFor resolves the binding for a step: the first binding listing the
// step wins, then the first catch-all. The noop catch-all is returned when
// the roster has no match, so every step always resolves.
func (r Roster) BindingFor(step string) Binding {
	for _, binding := range r.Workers {
		for _, name := range binding.Steps {
			if name == step {
				return binding
			}
		}
	}
	for _, binding := range r.Workers {
		if len(binding.Steps) == 0 {
			return binding
		}
		for _, name := range binding.Steps {
			if name == WildcardStep {
				return binding
			}
		}
	}
	return Binding{Kind: KindNoop}
}
