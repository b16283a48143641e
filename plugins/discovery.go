package plugins

import (
	"fmt"
	"sort"

	"github.com/kingrea/relay/internal/task"
)

// Library indexes discovered plans by id.
type Library struct {
	defs map[string]PlanDefinition
}

// Discover loads every YAML and Go plan definition under dir. Duplicate plan
// ids are rejected so `relay run --plan <id>` stays unambiguous.
func Discover(dir string) (*Library, error) {
	yamlDefs, err := LoadYAMLDir(dir)
	if err != nil {
		return nil, err
	}
	goDefs, err := LoadGoDir(dir)
	if err != nil {
		return nil, err
	}
	lib := &Library{defs: make(map[string]PlanDefinition)}
	for _, def := range append(yamlDefs, goDefs...) {
		if existing, ok := lib.defs[def.Plan.ID]; ok {
			return nil, fmt.Errorf("plugin: duplicate plan id %s (%s and %s)", def.Plan.ID, existing.Path, def.Path)
		}
		lib.defs[def.Plan.ID] = def
	}
	return lib, nil
}

// Get returns the plan registered under id.
func (l *Library) Get(id string) (task.Plan, bool) {
	if l == nil {
		return task.Plan{}, false
	}
	def, ok := l.defs[id]
	if !ok {
		return task.Plan{}, false
	}
	return def.Plan.Clone(), true
}

// All returns every discovered definition sorted by plan id.
func (l *Library) All() []PlanDefinition {
	if l == nil || len(l.defs) == 0 {
		return nil
	}
	defs := make([]PlanDefinition, 0, len(l.defs))
	for _, def := range l.defs {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Plan.ID < defs[j].Plan.ID })
	return defs
}

// Len reports the number of discovered plans.
func (l *Library) Len() int {
	if l == nil {
		return 0
	}
	return len(l.defs)
}
