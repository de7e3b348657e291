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
)

func TestParse_SingleTask(t *testing.T) {
	doc := []byte(`
name: simple
tasks:
  - name: a
    url: http://wps.example.org/wps
    identifier: echo
    inputs:
      x: "1"
`)
	def, err := Parse(doc)
	require.NoError(t, err)
	require.Equal(t, "simple", def.Name)
	require.Len(t, def.Tasks, 1)
	require.Equal(t, []string{"1"}, def.Tasks[0].Inputs["x"].Values)
}

func TestParse_InputAcceptsListOrScalar(t *testing.T) {
	doc := []byte(`
name: lists
tasks:
  - name: a
    url: http://wps.example.org/wps
    identifier: echo
    inputs:
      x:
        - "1"
        - "2"
`)
	def, err := Parse(doc)
	require.NoError(t, err)
	require.Equal(t, []string{"1", "2"}, def.Tasks[0].Inputs["x"].Values)
}

func TestParse_LinkedInputAcceptsListOrScalar(t *testing.T) {
	doc := []byte(`
name: links
tasks:
  - name: a
    url: http://wps.example.org/wps
    identifier: echo
  - name: b
    url: http://wps.example.org/wps
    identifier: echo
    linked_inputs:
      x:
        task: a
`)
	def, err := Parse(doc)
	require.NoError(t, err)
	require.Len(t, def.Tasks[1].LinkedInputs["x"].Refs, 1)
	require.Equal(t, "a", def.Tasks[1].LinkedInputs["x"].Refs[0].Task)
}

func TestParse_RejectsUnknownTopLevelField(t *testing.T) {
	doc := []byte(`
name: bad
bogus: true
tasks:
  - name: a
    url: http://wps.example.org/wps
    identifier: echo
`)
	_, err := Parse(doc)
	require.Error(t, err)
	var invalid *WorkflowInvalidError
	require.ErrorAs(t, err, &invalid)
}

func TestParse_RequiresTasksOrParallelGroups(t *testing.T) {
	doc := []byte(`name: empty`)
	_, err := Parse(doc)
	require.Error(t, err)
}

func TestParse_RequiresTaskURLAndIdentifier(t *testing.T) {
	doc := []byte(`
name: bad
tasks:
  - name: a
`)
	_, err := Parse(doc)
	require.Error(t, err)
}

func TestParse_MapLiteralList(t *testing.T) {
	doc := []byte(`
name: mapped
parallel_groups:
  - name: g
    max_processes: 2
    map: ["a", "b", "c"]
    reduce:
      task: g
    tasks:
      - name: inner
        url: http://wps.example.org/wps
        identifier: echo
        linked_inputs:
          x:
            task: g
`)
	def, err := Parse(doc)
	require.NoError(t, err)
	require.Len(t, def.ParallelGroups, 1)
	require.Equal(t, []string{"a", "b", "c"}, def.ParallelGroups[0].Map.Literal)
	require.Nil(t, def.ParallelGroups[0].Map.Ref)
}

func TestParse_MapInputReference(t *testing.T) {
	doc := []byte(`
name: mapped
tasks:
  - name: lister
    url: http://wps.example.org/wps
    identifier: list
parallel_groups:
  - name: g
    max_processes: 2
    map:
      task: lister
    reduce:
      task: g
    tasks:
      - name: inner
        url: http://wps.example.org/wps
        identifier: echo
        linked_inputs:
          x:
            task: g
`)
	def, err := Parse(doc)
	require.NoError(t, err)
	require.Nil(t, def.ParallelGroups[0].Map.Literal)
	require.NotNil(t, def.ParallelGroups[0].Map.Ref)
	require.Equal(t, "lister", def.ParallelGroups[0].Map.Ref.Task)
}

func TestEffectiveProgressRange_DefaultsToFullRange(t *testing.T) {
	var spec TaskSpec
	require.Equal(t, [2]int{0, 100}, spec.EffectiveProgressRange())

	spec.ProgressRange = [2]int{20, 80}
	require.Equal(t, [2]int{20, 80}, spec.EffectiveProgressRange())
}
