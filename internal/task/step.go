package task

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Step is one slot in a plan: a single named step, or a parallel group of
// names that is dispatched together and completes together. On the wire a
// slot is either a bare name or a list of names, so a plan's step sequence
// reads as a mixed array:
//
//	steps:
//	  - plan
//	  - [performance, security]
//	  - finalize
type Step struct {
	Names []string
}

// Single wraps one step name as a slot.
func Single(name string) Step {
	return Step{Names: []string{name}}
}

// Group wraps several step names as one parallel slot.
func Group(names ...string) Step {
	return Step{Names: append([]string(nil), names...)}
}

// Parallel reports whether the slot fans out to more than one step.
func (s Step) Parallel() bool {
	return len(s.Names) > 1
}

// Label renders the slot for logs and UI: a bare name, or members joined
// with "+" for a group.
func (s Step) Label() string {
	return strings.Join(s.Names, "+")
}

// Contains reports whether the slot includes the named step.
func (s Step) Contains(name string) bool {
	for _, n := range s.Names {
		if n == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the slot.
func (s Step) Clone() Step {
	return Step{Names: cloneStringSlice(s.Names)}
}

// UnmarshalYAML accepts either a scalar step name or a sequence of names.
func (s *Step) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var name string
		if err := value.Decode(&name); err != nil {
			return fmt.Errorf("task: decode step name: %w", err)
		}
		s.Names = []string{name}
		return nil
	case yaml.SequenceNode:
		var names []string
		if err := value.Decode(&names); err != nil {
			return fmt.Errorf("task: decode step group: %w", err)
		}
		s.Names = names
		return nil
	default:
		return fmt.Errorf("task: step must be a name or a list of names")
	}
}

// MarshalYAML emits the wire form: a bare name for single slots, a sequence
// for groups.
func (s Step) MarshalYAML() (any, error) {
	if len(s.Names) == 1 {
		return s.Names[0], nil
	}
	return s.Names, nil
}

// UnmarshalJSON mirrors the YAML wire form for JSON plans and persisted state.
func (s *Step) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		s.Names = []string{name}
		return nil
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return fmt.Errorf("task: step must be a name or a list of names")
	}
	s.Names = names
	return nil
}

// MarshalJSON emits the wire form: a bare name for single slots, an array
// for groups.
func (s Step) MarshalJSON() ([]byte, error) {
	if len(s.Names) == 1 {
		return json.Marshal(s.Names[0])
	}
	return json.Marshal(s.Names)
}
