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
	"sync"

	"github.com/wpsflow/engine/internal/wpsclient"
)

// LinkedInputDecl is one linked-input name a node declares, each of
// which the Graph Builder must resolve against another node's output.
type LinkedInputDecl struct {
	Name string
	Refs []InputRef
}

// TaskNode is the contract every graph participant implements: WPS
// tasks (single and parallel), Map, Reduce, and Proxy nodes.
type TaskNode interface {
	// Name is the node's identifier, unique within the workflow.
	Name() string

	// InputNames lists the declared input names this node accepts.
	InputNames() []string
	// OutputNames lists the declared output names this node produces.
	OutputNames() []string
	// LinkedInputs lists this node's linked-input declarations, which
	// the Graph Builder must resolve before the workflow can run.
	LinkedInputs() []LinkedInputDecl
	// DefaultOutput returns this node's sole output name, if it has
	// exactly one.
	DefaultOutput() (string, bool)

	// GetInputDesc returns the input descriptor for the named input.
	GetInputDesc(name string) (*wpsclient.InputDescriptor, bool)
	// GetOutputDesc returns the output descriptor for the named output.
	GetOutputDesc(name string) (*wpsclient.OutputDescriptor, bool)

	// TryConnect attempts to satisfy ref by connecting this node's
	// matching output to downNode's downInput. It returns true and
	// records the connection iff this node's name matches ref.Task,
	// it can serve the requested output, and CanConnect allows it.
	TryConnect(g *Graph, ref InputRef, downNode TaskNode, downInput string) bool
	// CanConnect reports whether this node permits the requested
	// connection beyond the name/output match TryConnect already
	// checked — used by Map to refuse non-group WPS tasks and by
	// Reduce to refuse parallel downstreams.
	CanConnect(ref InputRef, downNode TaskNode, downInput string) bool
	// ConnectedTo notifies this node that it has been connected as the
	// downstream of upNode's upOutput, for nodes (Map, Reduce) that
	// shape their own descriptors from the other side of the edge.
	ConnectedTo(input string, upNode TaskNode, upOutput string)

	// Process handles one inbound message on any input.
	Process(msg Message) error
	// Postprocess runs once, after every inbound edge has drained.
	Postprocess() error

	// SetEmit wires the node's outbound dispatch function. Called once
	// by the Scheduler before any worker goroutine starts.
	SetEmit(fn EmitFunc)
}

// EmitFunc routes one outbound message from a named output of a node
// to every edge the Graph Builder connected it to. The scheduler
// supplies the concrete implementation when it wires a node's worker.
type EmitFunc func(output string, msg Message)

// baseNode is embedded by every concrete TaskNode implementation. It
// owns the running data_headers map every outbound message stamps,
// merged from every inbound message the node has seen.
type baseNode struct {
	name string
	emit EmitFunc

	mu      sync.Mutex
	headers map[string]string
}

func newBaseNode(name string) baseNode {
	return baseNode{name: name, headers: make(map[string]string)}
}

// SetEmit wires the node's outbound dispatch function. Called once by
// the scheduler before any worker goroutine starts.
func (b *baseNode) SetEmit(fn EmitFunc) { b.emit = fn }

// emitOutput stamps the node's running headers onto payload and
// dispatches it on the named output.
func (b *baseNode) emitOutput(output string, payload Variant) {
	if b.emit == nil {
		return
	}
	b.emit(output, Message{Payload: payload, Headers: b.stampedHeaders()})
}

func (b *baseNode) Name() string { return b.name }

// absorb merges an inbound message's headers into the node's running
// data_headers map and stamps the task name, matching the outbound
// stamping every node hook performs.
func (b *baseNode) absorb(headers map[string]string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, v := range headers {
		b.headers[k] = v
	}
	b.headers[HeaderTask] = b.name
}

// stampTraceID records the active trace's id in the node's running
// data_headers, so every subsequent outbound message carries it
// forward alongside the task name and map index; downstream nodes
// then propagate it further through absorb without any special case.
func (b *baseNode) stampTraceID(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.headers[HeaderTraceID] = id
}

// stampedHeaders returns a copy of the running data_headers map,
// suitable for attaching to an outbound message.
func (b *baseNode) stampedHeaders() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]string, len(b.headers))
	for k, v := range b.headers {
		out[k] = v
	}
	out[HeaderTask] = b.name
	return out
}

// CanConnect is the default permissive implementation; Map and Reduce
// override it with their own restrictions.
func (b *baseNode) CanConnect(ref InputRef, downNode TaskNode, downInput string) bool {
	return true
}

// ConnectedTo is a no-op default; Map and Reduce override it to learn
// the connected datatype.
func (b *baseNode) ConnectedTo(input string, upNode TaskNode, upOutput string) {}

// LinkedInputs is a no-op default for nodes with none (Map, Reduce,
// Proxy); WPS Task overrides it.
func (b *baseNode) LinkedInputs() []LinkedInputDecl { return nil }
