// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package workflow

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// InputRef points at another task's output. AsReference=true means the
// downstream wants a URL; false means inline data.
type InputRef struct {
	Task        string `yaml:"task"`
	Output      string `yaml:"output,omitempty"`
	AsReference bool   `yaml:"as_reference,omitempty"`
}

// InputValue is either a literal scalar or a list of literal scalars,
// as written in the workflow's `inputs` map.
type InputValue struct {
	Values []string
}

// LinkedInputValue is either a single InputRef or a list of them, as
// written in the workflow's `linked_inputs` map.
type LinkedInputValue struct {
	Refs []InputRef
}

// TaskSpec is one entry in the workflow's `tasks` list.
type TaskSpec struct {
	Name          string                      `yaml:"name"`
	URL           string                      `yaml:"url"`
	Identifier    string                      `yaml:"identifier"`
	Inputs        map[string]InputValue       `yaml:"inputs,omitempty"`
	LinkedInputs  map[string]LinkedInputValue `yaml:"linked_inputs,omitempty"`
	ProgressRange [2]int                      `yaml:"progress_range,omitempty"`
}

// EffectiveProgressRange returns the task's progress range, defaulting
// to [0, 100] when unset.
func (t *TaskSpec) EffectiveProgressRange() [2]int {
	if t.ProgressRange == ([2]int{}) {
		return [2]int{0, 100}
	}
	return t.ProgressRange
}

// MapSpec is a parallel group's `map` field: either a literal list or an
// input reference to the task whose output supplies the array.
type MapSpec struct {
	Literal []string
	Ref     *InputRef
}

// ParallelGroup is one entry in the workflow's `parallel_groups` list.
type ParallelGroup struct {
	Name         string     `yaml:"name"`
	MaxProcesses int        `yaml:"max_processes"`
	Map          MapSpec    `yaml:"map"`
	Reduce       InputRef   `yaml:"reduce"`
	Tasks        []TaskSpec `yaml:"tasks"`
}

// Definition is the user-supplied workflow description: a name, an
// ordered list of tasks, and an ordered list of parallel groups.
type Definition struct {
	Name           string          `yaml:"name"`
	Tasks          []TaskSpec      `yaml:"tasks,omitempty"`
	ParallelGroups []ParallelGroup `yaml:"parallel_groups,omitempty"`
}

// Parse decodes a workflow definition from YAML (or JSON, which is a
// YAML subset) and validates it against the workflow schema before
// returning it.
func Parse(data []byte) (*Definition, error) {
	if err := validateAgainstSchema(data); err != nil {
		return nil, err
	}

	var raw rawDefinition
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &WorkflowInvalidError{Message: fmt.Sprintf("decoding workflow: %v", err)}
	}

	return raw.toDefinition()
}

// rawDefinition mirrors Definition's shape but with loosely-typed
// fields so it can absorb the `string | []string` / `inputRef |
// []inputRef` polymorphism the wire schema allows.
type rawDefinition struct {
	Name           string              `yaml:"name"`
	Tasks          []rawTask           `yaml:"tasks"`
	ParallelGroups []rawParallelGroup  `yaml:"parallel_groups"`
}

type rawTask struct {
	Name          string                 `yaml:"name"`
	URL           string                 `yaml:"url"`
	Identifier    string                 `yaml:"identifier"`
	Inputs        map[string]yaml.Node   `yaml:"inputs"`
	LinkedInputs  map[string]yaml.Node   `yaml:"linked_inputs"`
	ProgressRange []int                  `yaml:"progress_range"`
}

type rawParallelGroup struct {
	Name         string    `yaml:"name"`
	MaxProcesses int       `yaml:"max_processes"`
	Map          yaml.Node `yaml:"map"`
	Reduce       yaml.Node `yaml:"reduce"`
	Tasks        []rawTask `yaml:"tasks"`
}

func (r *rawDefinition) toDefinition() (*Definition, error) {
	def := &Definition{Name: r.Name}

	for _, rt := range r.Tasks {
		t, err := rt.toTaskSpec()
		if err != nil {
			return nil, err
		}
		def.Tasks = append(def.Tasks, *t)
	}

	for _, rg := range r.ParallelGroups {
		g, err := rg.toParallelGroup()
		if err != nil {
			return nil, err
		}
		def.ParallelGroups = append(def.ParallelGroups, *g)
	}

	return def, nil
}

func (rt *rawTask) toTaskSpec() (*TaskSpec, error) {
	t := &TaskSpec{
		Name:       rt.Name,
		URL:        rt.URL,
		Identifier: rt.Identifier,
	}

	if len(rt.ProgressRange) == 2 {
		t.ProgressRange = [2]int{rt.ProgressRange[0], rt.ProgressRange[1]}
	}

	if len(rt.Inputs) > 0 {
		t.Inputs = make(map[string]InputValue, len(rt.Inputs))
		for k, node := range rt.Inputs {
			vals, err := decodeStringOrList(&node)
			if err != nil {
				return nil, &WorkflowInvalidError{Task: rt.Name, Message: fmt.Sprintf("input %q: %v", k, err)}
			}
			t.Inputs[k] = InputValue{Values: vals}
		}
	}

	if len(rt.LinkedInputs) > 0 {
		t.LinkedInputs = make(map[string]LinkedInputValue, len(rt.LinkedInputs))
		for k, node := range rt.LinkedInputs {
			refs, err := decodeRefOrList(&node)
			if err != nil {
				return nil, &WorkflowInvalidError{Task: rt.Name, Message: fmt.Sprintf("linked_input %q: %v", k, err)}
			}
			t.LinkedInputs[k] = LinkedInputValue{Refs: refs}
		}
	}

	return t, nil
}

func (rg *rawParallelGroup) toParallelGroup() (*ParallelGroup, error) {
	g := &ParallelGroup{
		Name:         rg.Name,
		MaxProcesses: rg.MaxProcesses,
	}

	mapSpec, err := decodeMapSpec(&rg.Map)
	if err != nil {
		return nil, &WorkflowInvalidError{Task: rg.Name, Message: fmt.Sprintf("map: %v", err)}
	}
	g.Map = mapSpec

	var reduceRef InputRef
	if err := rg.Reduce.Decode(&reduceRef); err != nil {
		return nil, &WorkflowInvalidError{Task: rg.Name, Message: fmt.Sprintf("reduce: %v", err)}
	}
	g.Reduce = reduceRef

	for _, rt := range rg.Tasks {
		t, err := rt.toTaskSpec()
		if err != nil {
			return nil, err
		}
		g.Tasks = append(g.Tasks, *t)
	}

	return g, nil
}

func decodeStringOrList(node *yaml.Node) ([]string, error) {
	if node.Kind == yaml.SequenceNode {
		var vals []string
		if err := node.Decode(&vals); err != nil {
			return nil, err
		}
		return vals, nil
	}
	var v string
	if err := node.Decode(&v); err != nil {
		return nil, err
	}
	return []string{v}, nil
}

func decodeRefOrList(node *yaml.Node) ([]InputRef, error) {
	if node.Kind == yaml.SequenceNode {
		var refs []InputRef
		if err := node.Decode(&refs); err != nil {
			return nil, err
		}
		return refs, nil
	}
	var ref InputRef
	if err := node.Decode(&ref); err != nil {
		return nil, err
	}
	return []InputRef{ref}, nil
}

func decodeMapSpec(node *yaml.Node) (MapSpec, error) {
	if node.Kind == yaml.SequenceNode {
		var lits []string
		if err := node.Decode(&lits); err != nil {
			return MapSpec{}, err
		}
		return MapSpec{Literal: lits}, nil
	}
	var ref InputRef
	if err := node.Decode(&ref); err != nil {
		return MapSpec{}, err
	}
	return MapSpec{Ref: &ref}, nil
}
