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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReduceTask_AssemblesDenseArrayInIndexOrder(t *testing.T) {
	r := NewReduceTask("g")

	require.NoError(t, r.Process(Message{Payload: LiteralVariant("c"), Headers: map[string]string{HeaderMapIndex: "2"}}))
	require.NoError(t, r.Process(Message{Payload: LiteralVariant("a"), Headers: map[string]string{HeaderMapIndex: "0"}}))
	require.NoError(t, r.Process(Message{Payload: LiteralVariant("b"), Headers: map[string]string{HeaderMapIndex: "1"}}))

	var got Message
	r.SetEmit(func(output string, msg Message) {
		require.Equal(t, reduceOutput, output)
		got = msg
	})
	require.NoError(t, r.Postprocess())

	var arr []string
	require.NoError(t, json.Unmarshal(got.Payload.ComplexBytes, &arr))
	require.Equal(t, []string{"a", "b", "c"}, arr)
	_, hasMapIndex := got.Headers[HeaderMapIndex]
	require.False(t, hasMapIndex)
}

func TestReduceTask_MissingMapIndexHeaderFails(t *testing.T) {
	r := NewReduceTask("g")
	err := r.Process(Message{Payload: LiteralVariant("a"), Headers: map[string]string{}})
	require.Error(t, err)
}

func TestReduceTask_PostprocessFailsOnUnsetSlot(t *testing.T) {
	r := NewReduceTask("g")
	require.NoError(t, r.Process(Message{Payload: LiteralVariant("a"), Headers: map[string]string{HeaderMapIndex: "0"}}))
	require.NoError(t, r.Process(Message{Payload: LiteralVariant("c"), Headers: map[string]string{HeaderMapIndex: "2"}}))

	r.SetEmit(func(string, Message) {})
	err := r.Postprocess()
	require.Error(t, err)
	var invalid *WorkflowInvalidError
	require.ErrorAs(t, err, &invalid)
}

func TestReduceTask_CanConnectRejectsParallelDownstream(t *testing.T) {
	r := NewReduceTask("g")
	parallel := &ParallelWPSTask{wpsTaskCore: &wpsTaskCore{baseNode: newBaseNode("inner")}, groupName: "g"}
	require.False(t, r.CanConnect(InputRef{}, parallel, "x"))
}
