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

	"github.com/wpsflow/engine/internal/wpsclient"
)

// edgeSpec is one resolved connection between a named output of an
// upstream node and a named input of a downstream node.
type edgeSpec struct {
	Up          TaskNode
	UpOutput    string
	Down        TaskNode
	DownInput   string
	AsReference bool
}

// groupInfo records a parallel group's replica count and member nodes,
// used by the Scheduler to fan work across max_processes replicas.
type groupInfo struct {
	Name         string
	MaxProcesses int
	InnerSpecs   []TaskSpec
	Map          *MapTask
	Reduce       *ReduceTask
	MapSpec      MapSpec
	ReduceRef    InputRef
}

// Graph is the fully-wired task graph a Definition compiles to: every
// node, every resolved edge, and the parallel-group replica metadata
// the Scheduler needs.
type Graph struct {
	Name string

	nodes    []TaskNode
	byName   map[string]TaskNode
	edges    []edgeSpec
	edgeSeen map[string]bool
	groups   []groupInfo
}

// connect records an edge between up and down, inserting a ProxyNode
// when an edge between this exact ordered pair already exists so the
// at-most-one-edge-per-pair invariant holds.
func (g *Graph) connect(up TaskNode, upOutput string, down TaskNode, downInput string, asReference bool) {
	key := up.Name() + "->" + down.Name()
	if !g.edgeSeen[key] {
		g.edgeSeen[key] = true
		g.edges = append(g.edges, edgeSpec{Up: up, UpOutput: upOutput, Down: down, DownInput: downInput, AsReference: asReference})
		return
	}

	proxy := NewProxyNode(fmt.Sprintf("%s__to__%s__proxy", up.Name(), down.Name()))
	g.nodes = append(g.nodes, proxy)
	g.byName[proxy.Name()] = proxy

	g.edges = append(g.edges, edgeSpec{Up: up, UpOutput: upOutput, Down: proxy, DownInput: proxyInput, AsReference: asReference})
	g.edges = append(g.edges, edgeSpec{Up: proxy, UpOutput: proxyOutput, Down: down, DownInput: downInput, AsReference: asReference})
}

// sourceNodes returns every node with no linked-input declarations (or
// only the dummy one).
func (g *Graph) sourceNodes() []TaskNode {
	var sources []TaskNode
	for _, n := range g.nodes {
		linked := n.LinkedInputs()
		isSource := true
		for _, decl := range linked {
			if decl.Name != DummyInput {
				isSource = false
				break
			}
		}
		if isSource {
			sources = append(sources, n)
		}
	}
	return sources
}

// edgesFrom returns every edge whose upstream node is n.
func (g *Graph) edgesFrom(n TaskNode) []edgeSpec {
	var out []edgeSpec
	for _, e := range g.edges {
		if e.Up == n {
			out = append(out, e)
		}
	}
	return out
}

// edgesInto returns every edge whose downstream node is n.
func (g *Graph) edgesInto(n TaskNode) []edgeSpec {
	var out []edgeSpec
	for _, e := range g.edges {
		if e.Down == n {
			out = append(out, e)
		}
	}
	return out
}

// BuildGraph checks that def declares at least one task or parallel
// group and that no name is used twice (full schema validation happens
// in Parse, not here), instantiates every task, Map, and Reduce node,
// and resolves every linked input by calling try_connect across the
// task list, stopping at the first success.
func BuildGraph(def *Definition, client *wpsclient.Client, monitor *Monitor, authHeaders map[string]string) (*Graph, error) {
	g := &Graph{
		Name:     def.Name,
		byName:   make(map[string]TaskNode),
		edgeSeen: make(map[string]bool),
	}

	if len(def.Tasks) == 0 && len(def.ParallelGroups) == 0 {
		return nil, &WorkflowInvalidError{Message: "workflow must declare at least one of tasks or parallel_groups"}
	}

	seenNames := make(map[string]bool)

	for _, spec := range def.Tasks {
		if seenNames[spec.Name] {
			return nil, &WorkflowInvalidError{Task: spec.Name, Message: "duplicate task name"}
		}
		seenNames[spec.Name] = true

		task, err := NewWPSTask(spec, client, monitor)
		if err != nil {
			return nil, err
		}
		task.SetAuthHeaders(authHeaders)
		g.nodes = append(g.nodes, task)
		g.byName[spec.Name] = task
	}

	for _, group := range def.ParallelGroups {
		if seenNames[group.Name] {
			return nil, &WorkflowInvalidError{Task: group.Name, Message: "duplicate task name"}
		}
		seenNames[group.Name] = true

		mapNode := NewMapTask(group.Name, group.Map)
		g.nodes = append(g.nodes, mapNode)
		g.byName[group.Name] = mapNode

		reduceName := group.Name + ".reduce"
		reduceNode := NewReduceTask(reduceName)
		g.nodes = append(g.nodes, reduceNode)
		g.byName[reduceName] = reduceNode

		info := groupInfo{
			Name:         group.Name,
			MaxProcesses: group.MaxProcesses,
			Map:          mapNode,
			Reduce:       reduceNode,
			MapSpec:      group.Map,
			ReduceRef:    group.Reduce,
		}

		for _, inner := range group.Tasks {
			if seenNames[inner.Name] {
				return nil, &WorkflowInvalidError{Task: inner.Name, Message: "duplicate task name"}
			}
			seenNames[inner.Name] = true

			template, err := NewParallelWPSTask(inner, group.Name, 0, client, monitor)
			if err != nil {
				return nil, err
			}
			template.SetAuthHeaders(authHeaders)
			g.nodes = append(g.nodes, template)
			g.byName[inner.Name] = template
			info.InnerSpecs = append(info.InnerSpecs, inner)
		}

		g.groups = append(g.groups, info)
	}

	if err := g.resolveLinks(def); err != nil {
		return nil, err
	}

	return g, nil
}

// resolveLinks implements the try_connect resolution loop: for every
// task and every one of its linked-input declarations, it iterates the
// full node list looking for the first node whose try_connect succeeds.
func (g *Graph) resolveLinks(def *Definition) error {
	resolveOne := func(down TaskNode) error {
		for _, decl := range down.LinkedInputs() {
			for _, ref := range decl.Refs {
				resolved := false
				for _, up := range g.nodes {
					if up == down {
						continue
					}
					if up.TryConnect(g, ref, down, decl.Name) {
						resolved = true
						break
					}
				}
				if !resolved {
					return &WorkflowInvalidError{
						Task:    down.Name(),
						Message: fmt.Sprintf("unresolved linked input %q referencing task %q", decl.Name, ref.Task),
					}
				}
			}
		}
		return nil
	}

	for _, n := range g.nodes {
		if err := resolveOne(n); err != nil {
			return err
		}
	}

	for _, group := range g.groups {
		if err := resolveGroupMapAndReduce(g, group); err != nil {
			return err
		}
	}

	return nil
}

// resolveGroupMapAndReduce wires the Map's upstream reference (if it
// has one rather than a literal list) and the group's reduce
// reference, neither of which is a TaskSpec linked input.
func resolveGroupMapAndReduce(g *Graph, info groupInfo) error {
	if info.Map.literal == nil && info.MapSpec.Ref != nil {
		resolved := false
		for _, up := range g.nodes {
			if up == TaskNode(info.Map) {
				continue
			}
			if up.TryConnect(g, *info.MapSpec.Ref, info.Map, mapInput) {
				resolved = true
				break
			}
		}
		if !resolved {
			return &WorkflowInvalidError{Task: info.Name, Message: fmt.Sprintf("unresolved map reference to task %q", info.MapSpec.Ref.Task)}
		}
	}

	resolved := false
	for _, up := range g.nodes {
		if up == TaskNode(info.Reduce) {
			continue
		}
		if up.TryConnect(g, info.ReduceRef, info.Reduce, reduceInput) {
			resolved = true
			break
		}
	}
	if !resolved {
		return &WorkflowInvalidError{Task: info.Reduce.Name(), Message: fmt.Sprintf("unresolved reduce reference to task %q", info.ReduceRef.Task)}
	}

	return nil
}
