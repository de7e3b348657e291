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
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/wpsflow/engine/internal/wpsclient"
)

// Scheduler drives a built Graph to completion: one goroutine per
// non-parallel node, max_processes goroutines per parallel inner task,
// communicating over buffered channels that mirror the graph's edges.
// There is no shared mutable heap beyond the Monitor.
type Scheduler struct {
	graph          *Graph
	client         *wpsclient.Client
	monitor        *Monitor
	edgeBufferSize int
}

// NewScheduler creates a Scheduler for graph. edgeBufferSize sizes
// every inter-node channel; 0 yields unbuffered edges.
func NewScheduler(graph *Graph, client *wpsclient.Client, monitor *Monitor, edgeBufferSize int) *Scheduler {
	return &Scheduler{graph: graph, client: client, monitor: monitor, edgeBufferSize: edgeBufferSize}
}

// chanEdge pairs one resolved edgeSpec with the channel carrying it. wg
// counts down once per writer goroutine finishing; the channel closes
// once every writer has called Done.
type chanEdge struct {
	spec edgeSpec
	ch   chan Message
	wg   *sync.WaitGroup
}

// Run wires every edge into a channel, starts one worker per node (or
// max_processes workers sharing a template's wiring for a parallel
// inner task), has each literal-list Map emit its elements from its own
// worker, and blocks until every node's postprocess has run. Worker
// errors are collected by the Monitor rather than aborting the run;
// workers always return nil, so Run returns nil.
func (s *Scheduler) Run(ctx context.Context) error {
	templateGroup, templateSpec := s.indexTemplates()

	edges := make([]*chanEdge, len(s.graph.edges))
	for i, spec := range s.graph.edges {
		writers := 1
		if info, ok := templateGroup[spec.Up]; ok {
			writers = info.MaxProcesses
		}
		wg := &sync.WaitGroup{}
		wg.Add(writers)
		ce := &chanEdge{spec: spec, ch: make(chan Message, s.edgeBufferSize), wg: wg}
		edges[i] = ce
		go func(ce *chanEdge) {
			ce.wg.Wait()
			close(ce.ch)
		}(ce)
	}

	inboundOf := func(n TaskNode) []*chanEdge {
		var out []*chanEdge
		for _, e := range edges {
			if e.spec.Down == n {
				out = append(out, e)
			}
		}
		return out
	}
	outboundOf := func(n TaskNode) []*chanEdge {
		var out []*chanEdge
		for _, e := range edges {
			if e.spec.Up == n {
				out = append(out, e)
			}
		}
		return out
	}
	makeEmit := func(out []*chanEdge) EmitFunc {
		return func(output string, msg Message) {
			for _, e := range out {
				if e.spec.UpOutput == output {
					e.ch <- msg
				}
			}
		}
	}

	group, _ := errgroup.WithContext(ctx)

	for _, n := range s.graph.nodes {
		if _, isTemplate := templateSpec[n]; isTemplate {
			continue
		}
		node := n
		in := fanIn(inboundOf(node))
		out := outboundOf(node)
		node.SetEmit(makeEmit(out))

		group.Go(func() error {
			// A literal Map emits before its (empty) receive loop ends, so
			// its outbound edges cannot close while it is still sending.
			if mt, ok := node.(*MapTask); ok && mt.literal != nil {
				mt.Start()
			}
			s.runNode(node, in, out)
			return nil
		})
	}

	for n, spec := range templateSpec {
		info := templateGroup[n]
		s.monitor.RegisterGroup(spec.Name, info.MaxProcesses, spec.EffectiveProgressRange())
		in := fanIn(inboundOf(n))
		out := outboundOf(n)
		template := n.(*ParallelWPSTask)
		baseRequests := template.OutputRequests()
		authHeaders := template.authHeaders

		for rank := 0; rank < info.MaxProcesses; rank++ {
			rank := rank
			replica, err := NewParallelWPSTask(spec, info.Name, rank, s.client, s.monitor)
			if err != nil {
				s.monitor.RecordException(spec.Name, err)
				releaseWriters(out, 1)
				continue
			}
			replica.SetOutputRequests(baseRequests)
			replica.SetAuthHeaders(authHeaders)
			replica.SetEmit(makeEmit(out))

			group.Go(func() error {
				s.runReplica(replica, in, out)
				return nil
			})
		}
	}

	return group.Wait()
}

// runNode drains in, calling node.Process per message, then calls
// Postprocess once, reporting any error to the Monitor and releasing
// this node's single writer slot on every edge it feeds.
func (s *Scheduler) runNode(node TaskNode, in <-chan Message, out []*chanEdge) {
	for msg := range in {
		if err := node.Process(msg); err != nil {
			s.monitor.RecordException(node.Name(), err)
		}
	}
	if err := node.Postprocess(); err != nil {
		s.monitor.RecordException(node.Name(), err)
	}
	releaseWriters(out, 1)
}

// runReplica is runNode specialised for one parallel-task replica: in
// and out are shared with every sibling replica, so only this
// replica's own contribution to each outbound edge's writer count is
// released on exit.
func (s *Scheduler) runReplica(replica *ParallelWPSTask, in <-chan Message, out []*chanEdge) {
	for msg := range in {
		if err := replica.Process(msg); err != nil {
			s.monitor.RecordException(replica.name, err)
		}
	}
	if err := replica.Postprocess(); err != nil {
		s.monitor.RecordException(replica.name, err)
	}
	releaseWriters(out, 1)
}

func releaseWriters(edges []*chanEdge, n int) {
	for _, e := range edges {
		for i := 0; i < n; i++ {
			e.wg.Done()
		}
	}
}

// indexTemplates identifies every ParallelWPSTask the Graph Builder
// registered as a connection-resolution template (rank 0, one per
// parallel inner task spec) and maps it to its group and original spec.
func (s *Scheduler) indexTemplates() (map[TaskNode]groupInfo, map[TaskNode]TaskSpec) {
	byNode := make(map[TaskNode]groupInfo)
	bySpec := make(map[TaskNode]TaskSpec)
	for _, info := range s.graph.groups {
		for _, spec := range info.InnerSpecs {
			if n, ok := s.graph.byName[spec.Name]; ok {
				byNode[n] = info
				bySpec[n] = spec
			}
		}
	}
	return byNode, bySpec
}

// fanIn merges every edge's channel into one, closing the merged
// channel once every input channel has been closed by its writer(s).
func fanIn(edges []*chanEdge) <-chan Message {
	out := make(chan Message)
	var wg sync.WaitGroup
	wg.Add(len(edges))
	for _, e := range edges {
		e := e
		go func() {
			defer wg.Done()
			for m := range e.ch {
				out <- m
			}
		}()
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
