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

	"github.com/wpsflow/engine/internal/wpsclient"
)

const (
	mapInput  = "map_in"
	mapOutput = "map_out"
)

// MapTask is the Map parallel-element in a parallel group: it declares
// one input and one output, and emits each array element as its own
// message, highest index first.
type MapTask struct {
	baseNode

	groupName string
	literal   []string

	downDesc *wpsclient.InputDescriptor
}

// NewMapTask builds a Map node for groupName. If spec.Literal is set
// the Map emits those elements at workflow start instead of waiting
// for an inbound array.
func NewMapTask(groupName string, spec MapSpec) *MapTask {
	return &MapTask{baseNode: newBaseNode(groupName), groupName: groupName, literal: spec.Literal}
}

func (m *MapTask) InputNames() []string  { return []string{mapInput} }
func (m *MapTask) OutputNames() []string { return []string{mapOutput} }
func (m *MapTask) DefaultOutput() (string, bool) { return mapOutput, true }

func (m *MapTask) GetInputDesc(name string) (*wpsclient.InputDescriptor, bool) {
	if name != mapInput {
		return nil, false
	}
	return m.downDesc, m.downDesc != nil
}

// GetOutputDesc reports map_out's descriptor, shaped from the
// downstream parallel task's input descriptor: complex, bounding-box,
// or literal, adopting the first supported mimetype for complex data.
func (m *MapTask) GetOutputDesc(name string) (*wpsclient.OutputDescriptor, bool) {
	if name != mapOutput || m.downDesc == nil {
		return nil, false
	}
	out := &wpsclient.OutputDescriptor{
		Identifier:         mapOutput,
		DataType:           m.downDesc.DataType,
		SupportedMimetypes: m.downDesc.SupportedMimetypes,
		SupportedCRS:       m.downDesc.SupportedCRS,
	}
	if len(out.SupportedMimetypes) > 0 {
		out.DefaultMimeType = out.SupportedMimetypes[0]
	}
	return out, true
}

// ConnectedTo is a no-op: the Map's output descriptor comes from its
// downstream task, recorded in TryConnect via connectedDownstream.
func (m *MapTask) ConnectedTo(input string, upNode TaskNode, upOutput string) {}

// connectedDownstream is called by the Graph Builder once the Map's
// single downstream parallel task is known, so the Map can shape its
// own output descriptor from the inner task's input descriptor.
func (m *MapTask) connectedDownstream(desc *wpsclient.InputDescriptor) {
	m.downDesc = desc
}

// CanConnect restricts the Map to parallel-variant WPS Tasks whose
// group name equals the Map's own name.
func (m *MapTask) CanConnect(ref InputRef, downNode TaskNode, downInput string) bool {
	pt, ok := downNode.(*ParallelWPSTask)
	return ok && pt.groupName == m.groupName
}

func (m *MapTask) TryConnect(g *Graph, ref InputRef, downNode TaskNode, downInput string) bool {
	if ref.Task != m.name {
		return false
	}
	if !m.CanConnect(ref, downNode, downInput) {
		return false
	}
	if desc, ok := downNode.GetInputDesc(downInput); ok {
		m.connectedDownstream(desc)
	}
	g.connect(m, mapOutput, downNode, downInput, ref.AsReference)
	downNode.ConnectedTo(downInput, m, mapOutput)
	return true
}

// Process parses each inbound payload as a JSON array and emits each
// element as its own message, descending from the highest index so
// downstream monitors can learn the total count from the first
// emission.
func (m *MapTask) Process(msg Message) error {
	m.absorb(msg.Headers)

	if len(m.literal) > 0 {
		return nil
	}

	raw := payloadBytes(msg.Payload)
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return &WorkflowInvalidError{Task: m.name, Message: fmt.Sprintf("map input is not a JSON array: %v", err)}
	}

	m.emitDescending(elems)
	return nil
}

// Postprocess does nothing: a literal list is emitted by Start and an
// inbound array by Process.
func (m *MapTask) Postprocess() error { return nil }

// Start emits the Map's literal configuration, if any. Called by the
// scheduler once, from the Map's own worker before its receive loop,
// for Map nodes configured with a literal list instead of an upstream
// array reference.
func (m *MapTask) Start() {
	if len(m.literal) == 0 {
		return
	}
	elems := make([]json.RawMessage, len(m.literal))
	for i, v := range m.literal {
		b, _ := json.Marshal(v)
		elems[i] = b
	}
	m.emitDescending(elems)
}

func (m *MapTask) emitDescending(elems []json.RawMessage) {
	for i := len(elems) - 1; i >= 0; i-- {
		headers := m.stampedHeaders()
		headers[HeaderMapIndex] = fmt.Sprintf("%d", i)
		var s string
		if err := json.Unmarshal(elems[i], &s); err == nil {
			m.dispatch(mapOutput, LiteralVariant(s), headers)
			continue
		}
		m.dispatch(mapOutput, ComplexInlineVariant(elems[i], jsonMimeType), headers)
	}
}

func (m *MapTask) dispatch(output string, payload Variant, headers map[string]string) {
	if m.emit == nil {
		return
	}
	m.emit(output, Message{Payload: payload, Headers: headers})
}

func payloadBytes(v Variant) []byte {
	switch v.Kind {
	case VariantComplexInline:
		return v.ComplexBytes
	case VariantLiteral:
		return []byte(v.Literal)
	default:
		return nil
	}
}
