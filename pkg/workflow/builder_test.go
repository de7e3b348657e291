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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wpsflow/engine/internal/wpsclient"
)

func TestBuildGraph_ResolvesLinkedInput(t *testing.T) {
	srv := newEchoServer(`"hi"`)
	defer srv.Close()

	def := &Definition{
		Name: "chain",
		Tasks: []TaskSpec{
			{Name: "a", URL: srv.URL, Identifier: "echo"},
			{Name: "b", URL: srv.URL, Identifier: "echo", LinkedInputs: map[string]LinkedInputValue{
				"x": {Refs: []InputRef{{Task: "a", Output: "y"}}},
			}},
		},
	}

	client := wpsclient.New(wpsclient.WithRateLimit(1000, 1000))
	monitor := NewMonitor("run-1", def.Name)
	graph, err := BuildGraph(def, client, monitor, nil)
	require.NoError(t, err)
	require.Len(t, graph.nodes, 2)
	require.Len(t, graph.edges, 1)
	require.Equal(t, "a", graph.edges[0].Up.Name())
	require.Equal(t, "b", graph.edges[0].Down.Name())
}

func TestBuildGraph_RejectsDuplicateTaskNames(t *testing.T) {
	srv := newEchoServer(`"hi"`)
	defer srv.Close()

	def := &Definition{
		Name: "dup",
		Tasks: []TaskSpec{
			{Name: "a", URL: srv.URL, Identifier: "echo"},
			{Name: "a", URL: srv.URL, Identifier: "echo"},
		},
	}

	client := wpsclient.New(wpsclient.WithRateLimit(1000, 1000))
	monitor := NewMonitor("run-1", def.Name)
	_, err := BuildGraph(def, client, monitor, nil)
	require.Error(t, err)
	var invalid *WorkflowInvalidError
	require.ErrorAs(t, err, &invalid)
}

func TestBuildGraph_UnresolvedLinkedInputFails(t *testing.T) {
	srv := newEchoServer(`"hi"`)
	defer srv.Close()

	def := &Definition{
		Name: "dangling",
		Tasks: []TaskSpec{
			{Name: "b", URL: srv.URL, Identifier: "echo", LinkedInputs: map[string]LinkedInputValue{
				"x": {Refs: []InputRef{{Task: "missing"}}},
			}},
		},
	}

	client := wpsclient.New(wpsclient.WithRateLimit(1000, 1000))
	monitor := NewMonitor("run-1", def.Name)
	_, err := BuildGraph(def, client, monitor, nil)
	require.Error(t, err)
}

func TestBuildGraph_SecondEdgeBetweenSamePairInsertsProxy(t *testing.T) {
	srv := newEchoServer(`"hi"`)
	defer srv.Close()

	def := &Definition{
		Name: "fanout",
		Tasks: []TaskSpec{
			{Name: "a", URL: srv.URL, Identifier: "echo"},
			{Name: "b", URL: srv.URL, Identifier: "echo", LinkedInputs: map[string]LinkedInputValue{
				"x": {Refs: []InputRef{{Task: "a", Output: "y"}}},
			}},
		},
	}

	client := wpsclient.New(wpsclient.WithRateLimit(1000, 1000))
	monitor := NewMonitor("run-1", def.Name)
	graph, err := BuildGraph(def, client, monitor, nil)
	require.NoError(t, err)

	a := graph.byName["a"]
	b := graph.byName["b"]
	// Force a second connection between the same ordered pair, the way
	// a second linked_inputs reference to the same upstream task would.
	graph.connect(a, "y", b, "status", false)

	require.Len(t, graph.nodes, 3)
	var sawProxy bool
	for _, n := range graph.nodes {
		if _, ok := n.(*ProxyNode); ok {
			sawProxy = true
		}
	}
	require.True(t, sawProxy)
}

func TestBuildGraph_ParallelGroupWiresMapAndReduce(t *testing.T) {
	srv := newEchoServer(`"hi"`)
	defer srv.Close()

	def := &Definition{
		Name: "grouped",
		ParallelGroups: []ParallelGroup{
			{
				Name:         "g",
				MaxProcesses: 2,
				Map:          MapSpec{Literal: []string{"1", "2"}},
				Reduce:       InputRef{Task: "inner"},
				Tasks: []TaskSpec{
					{Name: "inner", URL: srv.URL, Identifier: "echo", LinkedInputs: map[string]LinkedInputValue{
						"x": {Refs: []InputRef{{Task: "g"}}},
					}},
				},
			},
		},
	}

	client := wpsclient.New(wpsclient.WithRateLimit(1000, 1000))
	monitor := NewMonitor("run-1", def.Name)
	graph, err := BuildGraph(def, client, monitor, nil)
	require.NoError(t, err)
	require.Len(t, graph.groups, 1)
	require.NotNil(t, graph.byName["g"])
	require.NotNil(t, graph.byName["g.reduce"])
	require.NotNil(t, graph.byName["inner"])
}

func TestBuildGraph_AuthHeadersPropagateToTasks(t *testing.T) {
	srv := newEchoServer(`"hi"`)
	defer srv.Close()

	def := &Definition{
		Name: "auth",
		Tasks: []TaskSpec{
			{Name: "a", URL: srv.URL, Identifier: "echo"},
		},
	}

	client := wpsclient.New(wpsclient.WithRateLimit(1000, 1000))
	monitor := NewMonitor("run-1", def.Name)
	graph, err := BuildGraph(def, client, monitor, map[string]string{"Access-Token": "secret"})
	require.NoError(t, err)

	task := graph.byName["a"].(*WPSTask)
	merged := task.requestHeaders(map[string]string{"task": "a"})
	require.Equal(t, "secret", merged["Access-Token"])
	require.Equal(t, "a", merged["task"])
}
