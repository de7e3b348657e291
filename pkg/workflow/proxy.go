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

import "github.com/wpsflow/engine/internal/wpsclient"

const (
	proxyInput  = "proxy_in"
	proxyOutput = "proxy_out"
)

// ProxyNode preserves the underlying dataflow engine's at-most-one-edge-
// per-ordered-pair invariant: when a second edge is requested between
// the same (upstream, downstream) node pair, the Graph Builder routes
// it through a ProxyNode instead, whose only job is to copy messages
// from its input straight to its output.
type ProxyNode struct {
	baseNode
}

// NewProxyNode creates a proxy inserted between two nodes that already
// share an edge.
func NewProxyNode(name string) *ProxyNode {
	return &ProxyNode{baseNode: newBaseNode(name)}
}

func (p *ProxyNode) InputNames() []string          { return []string{proxyInput} }
func (p *ProxyNode) OutputNames() []string         { return []string{proxyOutput} }
func (p *ProxyNode) DefaultOutput() (string, bool) { return proxyOutput, true }

func (p *ProxyNode) GetInputDesc(name string) (*wpsclient.InputDescriptor, bool) {
	return nil, false
}

func (p *ProxyNode) GetOutputDesc(name string) (*wpsclient.OutputDescriptor, bool) {
	return nil, false
}

// TryConnect always fails: a ProxyNode is an internal implementation
// detail the workflow document never names.
func (p *ProxyNode) TryConnect(g *Graph, ref InputRef, downNode TaskNode, downInput string) bool {
	return false
}

// Process forwards the inbound message's payload verbatim.
func (p *ProxyNode) Process(msg Message) error {
	p.absorb(msg.Headers)
	p.emitOutput(proxyOutput, msg.Payload)
	return nil
}

func (p *ProxyNode) Postprocess() error { return nil }
