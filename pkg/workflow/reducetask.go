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
	"fmt"
	"strconv"
	"sync"

	"github.com/wpsflow/engine/internal/wpsclient"
)

const (
	reduceInput  = "reduce_in"
	reduceOutput = "reduce_out"
)

// ReduceTask is the Reduce parallel-element in a parallel group: every
// replica of the group's producer funnels into this single instance,
// which assembles their outputs into one dense, index-ordered array.
type ReduceTask struct {
	baseNode

	groupName string

	mu       sync.Mutex
	slots    []json.RawMessage
	set      []bool
	inDesc   *wpsclient.InputDescriptor
	outShape wpsclient.DataType
}

// NewReduceTask builds a Reduce node for groupName.
func NewReduceTask(groupName string) *ReduceTask {
	return &ReduceTask{baseNode: newBaseNode(groupName), groupName: groupName, outShape: wpsclient.DataTypeComplex}
}

func (r *ReduceTask) InputNames() []string        { return []string{reduceInput} }
func (r *ReduceTask) OutputNames() []string       { return []string{reduceOutput} }
func (r *ReduceTask) DefaultOutput() (string, bool) { return reduceOutput, true }

func (r *ReduceTask) GetInputDesc(name string) (*wpsclient.InputDescriptor, bool) {
	if name != reduceInput {
		return nil, false
	}
	return r.inDesc, r.inDesc != nil
}

func (r *ReduceTask) GetOutputDesc(name string) (*wpsclient.OutputDescriptor, bool) {
	return nil, false
}

// ConnectedTo learns the upstream output's shape for its own input
// descriptor mirror, used when a downstream consumer later asks this
// Reduce for its input descriptor.
func (r *ReduceTask) ConnectedTo(input string, upNode TaskNode, upOutput string) {
	if desc, ok := upNode.GetOutputDesc(upOutput); ok {
		r.mu.Lock()
		r.inDesc = &wpsclient.InputDescriptor{
			Identifier:         reduceInput,
			DataType:           desc.DataType,
			SupportedMimetypes: desc.SupportedMimetypes,
		}
		r.mu.Unlock()
	}
}

// CanConnect restricts the Reduce to non-parallel downstream tasks.
func (r *ReduceTask) CanConnect(ref InputRef, downNode TaskNode, downInput string) bool {
	_, isParallel := downNode.(*ParallelWPSTask)
	return !isParallel
}

func (r *ReduceTask) TryConnect(g *Graph, ref InputRef, downNode TaskNode, downInput string) bool {
	if ref.Task != r.name {
		return false
	}
	if !r.CanConnect(ref, downNode, downInput) {
		return false
	}
	if desc, ok := downNode.GetInputDesc(downInput); ok {
		r.mu.Lock()
		r.inDesc = desc
		r.mu.Unlock()
	}
	g.connect(r, reduceOutput, downNode, downInput, ref.AsReference)
	downNode.ConnectedTo(downInput, r, reduceOutput)
	return true
}

// Process writes one replica's output into the auto-resizing sparse
// array at its header-carried map_index.
func (r *ReduceTask) Process(msg Message) error {
	r.absorb(msg.Headers)

	idxStr, ok := msg.Headers[HeaderMapIndex]
	if !ok {
		return &WorkflowInvalidError{Task: r.name, Message: "inbound message missing map_index header"}
	}
	idx, err := strconv.Atoi(idxStr)
	if err != nil || idx < 0 {
		return &WorkflowInvalidError{Task: r.name, Message: fmt.Sprintf("invalid map_index %q", idxStr)}
	}

	raw := variantToJSON(msg.Payload)

	r.mu.Lock()
	defer r.mu.Unlock()
	if idx >= len(r.slots) {
		grown := make([]json.RawMessage, idx+1)
		copy(grown, r.slots)
		r.slots = grown
		grownSet := make([]bool, idx+1)
		copy(grownSet, r.set)
		r.set = grownSet
	}
	r.slots[idx] = raw
	r.set[idx] = true
	return nil
}

// Postprocess fails if any slot is unset, then emits one message whose
// payload is the JSON-serialized dense array, with map_index stripped
// from the outbound headers.
func (r *ReduceTask) Postprocess() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, ok := range r.set {
		if !ok {
			return &WorkflowInvalidError{Task: r.name, Message: fmt.Sprintf("reduce index %d was never produced", i)}
		}
	}

	out, err := json.Marshal(r.slots)
	if err != nil {
		return &WorkflowInvalidError{Task: r.name, Message: fmt.Sprintf("assembling reduced array: %v", err)}
	}

	if r.emit == nil {
		return nil
	}
	headers := r.stampedHeaders()
	delete(headers, HeaderMapIndex)
	r.emit(reduceOutput, Message{Payload: ComplexInlineVariant(out, jsonMimeType), Headers: headers})
	return nil
}

func variantToJSON(v Variant) json.RawMessage {
	switch v.Kind {
	case VariantComplexInline:
		return json.RawMessage(v.ComplexBytes)
	case VariantLiteral:
		b, _ := json.Marshal(v.Literal)
		return b
	case VariantComplexRef:
		b, _ := json.Marshal(v.RefURL)
		return b
	case VariantOutputObject:
		if v.Output != nil && len(v.Output.Data) > 0 {
			return json.RawMessage(v.Output.Data[0])
		}
		if v.Output != nil {
			b, _ := json.Marshal(v.Output.Reference)
			return b
		}
		return json.RawMessage("null")
	default:
		return json.RawMessage("null")
	}
}
