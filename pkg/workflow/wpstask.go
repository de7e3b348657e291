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
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wpsflow/engine/internal/wpsclient"
)

var tracer = otel.Tracer("github.com/wpsflow/engine/pkg/workflow")

// fixedOutputStatus and fixedOutputStatusLocation are the two outputs
// every WPS Task emits in addition to whatever the caller requested.
const (
	fixedOutputStatus         = "status"
	fixedOutputStatusLocation = "status_location"
)

// wpsTaskCore holds everything shared between the single-instance and
// parallel-replica WPS Task variants: the remote process description,
// the resolved output requests, and the static+dynamic input
// accumulation that feeds one remote execute call.
type wpsTaskCore struct {
	baseNode

	url        string
	identifier string

	client  *wpsclient.Client
	adapter *Adapter
	monitor *Monitor

	progressRange [2]int

	desc *wpsclient.ProcessDescription

	declaredLinked []LinkedInputDecl

	mu            sync.Mutex
	staticInputs  []wpsclient.InputValue
	dynamicInputs []wpsclient.InputValue
	outputReqs    []wpsclient.OutputRequest
	satisfied     map[string]bool
	authHeaders   map[string]string
}

// SetAuthHeaders seeds the caller-supplied auth headers (e.g.
// X-X509-User-Proxy, Access-Token) forwarded verbatim on every remote
// execute call this node makes.
func (c *wpsTaskCore) SetAuthHeaders(h map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authHeaders = h
}

// requestHeaders merges the node's running data_headers (task name,
// map index) with the caller's auth headers into the single map
// handed to the transport as HTTP request headers.
func (c *wpsTaskCore) requestHeaders(dataHeaders map[string]string) map[string]string {
	c.mu.Lock()
	auth := c.authHeaders
	c.mu.Unlock()
	out := make(map[string]string, len(dataHeaders)+len(auth))
	for k, v := range dataHeaders {
		out[k] = v
	}
	for k, v := range auth {
		out[k] = v
	}
	return out
}

// newWPSTaskCore normalizes a task's {k: v or [v...]} input shape into a
// flat list of (k, v) pairs, fetches the remote process description,
// and validates every declared input name.
func newWPSTaskCore(name string, spec TaskSpec, client *wpsclient.Client, monitor *Monitor) (*wpsTaskCore, error) {
	desc, err := client.Describe(context.Background(), spec.URL, spec.Identifier)
	if err != nil {
		return nil, &RemoteUnavailableError{URL: spec.URL, Cause: err}
	}

	core := &wpsTaskCore{
		baseNode:      newBaseNode(name),
		url:           spec.URL,
		identifier:    spec.Identifier,
		client:        client,
		adapter:       NewAdapter(client),
		monitor:       monitor,
		progressRange: spec.EffectiveProgressRange(),
		desc:          desc,
		satisfied:     make(map[string]bool),
	}

	for k, v := range spec.Inputs {
		for _, val := range v.Values {
			if !desc.HasInput(k) && k != DummyInput {
				return nil, &WorkflowInvalidError{Task: name, Message: fmt.Sprintf("unknown input %q", k)}
			}
			core.staticInputs = append(core.staticInputs, wpsclient.InputValue{Identifier: k, Literal: val})
		}
	}

	for k, v := range spec.LinkedInputs {
		if !desc.HasInput(k) && k != DummyInput {
			return nil, &WorkflowInvalidError{Task: name, Message: fmt.Sprintf("unknown linked input %q", k)}
		}
		core.declaredLinked = append(core.declaredLinked, LinkedInputDecl{Name: k, Refs: v.Refs})
		core.satisfied[k] = false
	}

	return core, nil
}

func (c *wpsTaskCore) LinkedInputs() []LinkedInputDecl { return c.declaredLinked }

func (c *wpsTaskCore) InputNames() []string {
	names := make([]string, 0, len(c.desc.Inputs))
	for n := range c.desc.Inputs {
		names = append(names, n)
	}
	return names
}

func (c *wpsTaskCore) OutputNames() []string {
	names := make([]string, 0, len(c.desc.Outputs))
	for n := range c.desc.Outputs {
		names = append(names, n)
	}
	return names
}

func (c *wpsTaskCore) DefaultOutput() (string, bool) { return c.desc.SoleOutput() }

func (c *wpsTaskCore) GetInputDesc(name string) (*wpsclient.InputDescriptor, bool) {
	d, ok := c.desc.Inputs[name]
	return d, ok
}

func (c *wpsTaskCore) GetOutputDesc(name string) (*wpsclient.OutputDescriptor, bool) {
	d, ok := c.desc.Outputs[name]
	return d, ok
}

// CanConnect allows any requested output the remote description
// declares.
func (c *wpsTaskCore) CanConnect(ref InputRef, downNode TaskNode, downInput string) bool {
	_, ok := c.desc.Outputs[ref.Output]
	return ok || ref.Output == ""
}

// recordOutputRequest is invoked by TryConnect on success, recording
// which output the downstream wants and whether it wants a reference.
func (c *wpsTaskCore) recordOutputRequest(outputName string, asReference bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.outputReqs {
		if existing.Identifier == outputName && existing.AsReference == asReference {
			return
		}
	}
	c.outputReqs = append(c.outputReqs, wpsclient.OutputRequest{Identifier: outputName, AsReference: asReference})
}

// OutputRequests returns a copy of the output requests try_connect
// recorded against this node, used by the Scheduler to seed each
// parallel replica's core from its template's resolved wiring.
func (c *wpsTaskCore) OutputRequests() []wpsclient.OutputRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]wpsclient.OutputRequest(nil), c.outputReqs...)
}

// SetOutputRequests seeds this node's output requests, bypassing
// try_connect — used to clone a parallel template's resolved wiring
// onto each of its runtime replicas.
func (c *wpsTaskCore) SetOutputRequests(reqs []wpsclient.OutputRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outputReqs = append([]wpsclient.OutputRequest(nil), reqs...)
}

// addDynamicInput records one resolved linked-input value arriving on
// an inbound message.
func (c *wpsTaskCore) addDynamicInput(name string, v Variant) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.satisfied[name] = true
	c.dynamicInputs = append(c.dynamicInputs, variantToInputValue(name, v))
}

// checkSatisfied implements postprocess step 1: every linked input
// must have contributed at least one value, unless it is the dummy.
func (c *wpsTaskCore) checkSatisfied(taskName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, ok := range c.satisfied {
		if !ok && name != DummyInput {
			return &WorkflowInvalidError{Task: taskName, Message: fmt.Sprintf("linked input %q was never satisfied", name)}
		}
	}
	return nil
}

func variantToInputValue(name string, v Variant) wpsclient.InputValue {
	switch v.Kind {
	case VariantComplexRef:
		return wpsclient.InputValue{Identifier: name, Reference: v.RefURL, MimeType: v.RefMime}
	case VariantComplexInline:
		return wpsclient.InputValue{Identifier: name, Literal: string(v.ComplexBytes), MimeType: v.ComplexMime}
	default:
		return wpsclient.InputValue{Identifier: name, Literal: v.Literal}
	}
}

// scaleProgress maps percentCompleted in [0,100] onto the task's
// configured progress range.
func (c *wpsTaskCore) scaleProgress(percent int) int {
	lo, hi := c.progressRange[0], c.progressRange[1]
	return lo + (percent*(hi-lo))/100
}

// runExecute submits the remote execute call and drives the poll loop,
// emitting progress through the Monitor and wrapping terminal failure
// as RemoteFailedError. mapIndex is -1 for non-parallel tasks. taskName
// identifies this execution to the Monitor; traceLabel decorates the
// tracing span (proc/data-suffixed for parallel replicas) without
// affecting how progress and status are keyed.
func (c *wpsTaskCore) runExecute(ctx context.Context, taskName, traceLabel string, mapIndex int, headers map[string]string) (*wpsclient.ExecutionHandle, error) {
	ctx, span := tracer.Start(ctx, "wpstask.execute", trace.WithAttributes(
		attribute.String("wpsflow.task", traceLabel),
		attribute.Int("wpsflow.map_index", mapIndex),
	))
	defer span.End()

	if sc := span.SpanContext(); sc.HasTraceID() {
		c.stampTraceID(sc.TraceID().String())
	}

	c.mu.Lock()
	inputs := make([]wpsclient.InputValue, 0, len(c.staticInputs)+len(c.dynamicInputs))
	inputs = append(inputs, c.staticInputs...)
	inputs = append(inputs, c.dynamicInputs...)
	outputs := append([]wpsclient.OutputRequest(nil), c.outputReqs...)
	c.mu.Unlock()

	handle, err := c.client.Execute(ctx, c.url, c.identifier, inputs, outputs, headers)
	if err != nil {
		return nil, &RemoteUnavailableError{URL: c.url, Cause: err}
	}

	lastMessage := ""
	lastPercent := -1
	err = c.client.PollUntilTerminal(ctx, handle, func(h *wpsclient.ExecutionHandle) {
		if h.StatusMessage == lastMessage && h.PercentCompleted == lastPercent {
			return
		}
		lastMessage = h.StatusMessage
		lastPercent = h.PercentCompleted
		idx := mapIndex
		if idx < 0 {
			idx = 0
		}
		c.monitor.RecordProgress(taskName, idx, c.scaleProgress(h.PercentCompleted))
		c.monitor.RecordStatus(taskName, idx, h.Status)
	})
	if err != nil {
		return nil, &StatusReadFailedError{StatusLocation: handle.StatusLocation, Cause: err}
	}

	if handle.Status == wpsclient.StatusFailed {
		return nil, &RemoteFailedError{Task: taskName, Errors: handle.Errors}
	}

	return handle, nil
}

// resolvedOutput pairs the output name the downstream graph edge was
// connected under with its resolved value, since the two diverge once
// the value's Identifier has its namespace prefix stripped.
type resolvedOutput struct {
	requestID string
	value     wpsclient.OutputValue
}

// resolvedOutputs returns handle's requested outputs with DataType
// backfilled from the process description and the identifier's
// namespace prefix stripped, the shared resolution step both outbound
// message emission and Monitor execution capture need.
func (c *wpsTaskCore) resolvedOutputs(handle *wpsclient.ExecutionHandle) []resolvedOutput {
	c.mu.Lock()
	reqs := append([]wpsclient.OutputRequest(nil), c.outputReqs...)
	c.mu.Unlock()

	out := make([]resolvedOutput, 0, len(reqs))
	for _, req := range reqs {
		ov, ok := handle.Output(req.Identifier)
		if !ok {
			continue
		}
		resolved := *ov
		if resolved.DataType == "" {
			if d, ok := c.desc.Outputs[req.Identifier]; ok {
				resolved.DataType = d.DataType
			}
		}
		resolved.Identifier = stripNamespace(resolved.Identifier)
		out = append(out, resolvedOutput{requestID: req.Identifier, value: resolved})
	}
	return out
}

// executionRecord builds the Monitor record for one completed execute
// call, carrying its resolved outputs and, for a parallel replica, the
// map index and replica rank that identify it among its group.
func (c *wpsTaskCore) executionRecord(handle *wpsclient.ExecutionHandle, dataID, processID *int) ExecutionRecord {
	outputs := c.resolvedOutputs(handle)
	recs := make([]OutputRecord, 0, len(outputs))
	for _, ro := range outputs {
		ov := ro.value
		rec := OutputRecord{
			Identifier: ov.Identifier,
			Title:      ov.Title,
			DataType:   string(ov.DataType),
			MimeType:   ov.MimeType,
			Reference:  ov.Reference,
		}
		if len(ov.Data) > 0 {
			rec.Data = ov.Data[0]
		}
		recs = append(recs, rec)
	}

	return ExecutionRecord{
		Status:         handle.Status,
		StatusLocation: handle.StatusLocation,
		Outputs:        recs,
		DataID:         dataID,
		ProcessID:      processID,
	}
}

// emitResults implements postprocess/process step 4: one outbound
// message per requested output carrying the raw output object, plus
// the two fixed outputs every WPS Task always emits.
func (c *wpsTaskCore) emitResults(handle *wpsclient.ExecutionHandle) {
	for _, ro := range c.resolvedOutputs(handle) {
		out := ro.value
		c.emitOutput(ro.requestID, OutputObjectVariant(&out))
	}

	c.emitOutput(fixedOutputStatus, LiteralVariant(handle.Status))
	c.emitOutput(fixedOutputStatusLocation, LiteralVariant(handle.StatusLocation))
}

func stripNamespace(id string) string {
	for i := len(id) - 1; i >= 0; i-- {
		if id[i] == ':' {
			return id[i+1:]
		}
	}
	return id
}

// WPSTask is the single-instance (non-parallel) WPS Task variant: it
// accumulates inputs across every inbound message and drives its
// remote execute once, inside Postprocess.
type WPSTask struct {
	*wpsTaskCore
}

// NewWPSTask builds a non-parallel WPS Task from its workflow spec.
func NewWPSTask(spec TaskSpec, client *wpsclient.Client, monitor *Monitor) (*WPSTask, error) {
	core, err := newWPSTaskCore(spec.Name, spec, client, monitor)
	if err != nil {
		return nil, err
	}
	return &WPSTask{wpsTaskCore: core}, nil
}

func (t *WPSTask) TryConnect(g *Graph, ref InputRef, downNode TaskNode, downInput string) bool {
	if ref.Task != t.name {
		return false
	}
	if !t.CanConnect(ref, downNode, downInput) {
		return false
	}
	outputName := ref.Output
	if outputName == "" {
		if sole, ok := t.DefaultOutput(); ok {
			outputName = sole
		}
	}
	t.recordOutputRequest(outputName, ref.AsReference)
	g.connect(t, outputName, downNode, downInput, ref.AsReference)
	downNode.ConnectedTo(downInput, t, outputName)
	return true
}

func (t *WPSTask) ConnectedTo(input string, upNode TaskNode, upOutput string) {}

// Process accumulates one inbound linked-input value; the remote
// execute itself happens once, in Postprocess.
func (t *WPSTask) Process(msg Message) error {
	t.absorb(msg.Headers)

	name, adapted, err := t.adaptInbound(msg)
	if err != nil {
		return err
	}
	t.addDynamicInput(name, adapted)
	return nil
}

// adaptInbound resolves which declared linked-input name msg satisfies
// and runs it through the Data Adapter against that input's descriptor.
func (t *wpsTaskCore) adaptInbound(msg Message) (string, Variant, error) {
	name := msg.Headers[HeaderTask]
	for _, decl := range t.declaredLinked {
		for _, ref := range decl.Refs {
			if ref.Task == name {
				name = decl.Name
				break
			}
		}
	}

	if msg.Payload.Kind != VariantOutputObject {
		return name, msg.Payload, nil
	}

	inDesc, ok := t.GetInputDesc(name)
	if !ok {
		return name, msg.Payload, nil
	}

	vals, err := t.adapter.Adapt(context.Background(), t.name, *msg.Payload.Output, *inDesc, false)
	if err != nil {
		return "", Variant{}, err
	}
	return name, vals[0], nil
}

func (t *WPSTask) Postprocess() error {
	if err := t.checkSatisfied(t.name); err != nil {
		return err
	}

	handle, err := t.runExecute(context.Background(), t.name, t.name, -1, t.requestHeaders(t.stampedHeaders()))
	if err != nil {
		return err
	}

	t.monitor.RecordExecution(t.name, t.executionRecord(handle, nil, nil))
	t.emitResults(handle)
	return nil
}

// ParallelWPSTask is the variant attached to a parallel group: the
// scheduler instantiates max_processes of these, each running the full
// execute cycle inside Process so every mapped item drives its own
// independent remote execute.
type ParallelWPSTask struct {
	*wpsTaskCore
	groupName string
	rank      int
	linkedIn  string
}

// NewParallelWPSTask builds one replica of a parallel-variant WPS Task.
// A parallel task accepts at most one linked input.
func NewParallelWPSTask(spec TaskSpec, groupName string, rank int, client *wpsclient.Client, monitor *Monitor) (*ParallelWPSTask, error) {
	core, err := newWPSTaskCore(spec.Name, spec, client, monitor)
	if err != nil {
		return nil, err
	}
	if len(core.declaredLinked) > 1 {
		return nil, &WorkflowInvalidError{Task: spec.Name, Message: "a parallel task may declare at most one linked input"}
	}

	linkedIn := ""
	if len(core.declaredLinked) == 1 {
		linkedIn = core.declaredLinked[0].Name
	}

	return &ParallelWPSTask{wpsTaskCore: core, groupName: groupName, rank: rank, linkedIn: linkedIn}, nil
}

func (t *ParallelWPSTask) TryConnect(g *Graph, ref InputRef, downNode TaskNode, downInput string) bool {
	if ref.Task != t.name {
		return false
	}
	if !t.CanConnect(ref, downNode, downInput) {
		return false
	}
	outputName := ref.Output
	if outputName == "" {
		if sole, ok := t.DefaultOutput(); ok {
			outputName = sole
		}
	}
	t.recordOutputRequest(outputName, ref.AsReference)
	g.connect(t, outputName, downNode, downInput, ref.AsReference)
	downNode.ConnectedTo(downInput, t, outputName)
	return true
}

func (t *ParallelWPSTask) ConnectedTo(input string, upNode TaskNode, upOutput string) {}

// Process runs one full execute cycle per inbound mapped item,
// decorating its tracing span with the proc/data suffix (spec.md
// 4.4(d)); progress and status stay keyed by the task's own name.
func (t *ParallelWPSTask) Process(msg Message) error {
	t.absorb(msg.Headers)

	mapIndex := 0
	if s, ok := msg.Headers[HeaderMapIndex]; ok {
		fmt.Sscanf(s, "%d", &mapIndex)
	}

	name, adapted, err := t.adaptInbound(msg)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.dynamicInputs = []wpsclient.InputValue{variantToInputValue(name, adapted)}
	t.mu.Unlock()

	decoratedName := fmt.Sprintf("%s-proc%d-data%d", t.name, t.rank, mapIndex)
	handle, err := t.runExecute(context.Background(), t.name, decoratedName, mapIndex, t.requestHeaders(t.stampedHeaders()))
	if err != nil {
		return err
	}

	dataID, processID := mapIndex, t.rank
	t.monitor.RecordExecution(t.name, t.executionRecord(handle, &dataID, &processID))
	t.emitResultsAt(handle, mapIndex)
	return nil
}

// emitResultsAt is emitResults with the map_index header preserved on
// every outbound message, since replica output must still be
// attributable to its originating mapped item downstream.
func (t *ParallelWPSTask) emitResultsAt(handle *wpsclient.ExecutionHandle, mapIndex int) {
	headers := t.stampedHeaders()
	headers[HeaderMapIndex] = fmt.Sprintf("%d", mapIndex)

	emit := func(output string, payload Variant) {
		if t.emit == nil {
			return
		}
		t.emit(output, Message{Payload: payload, Headers: headers})
	}

	for _, ro := range t.resolvedOutputs(handle) {
		out := ro.value
		emit(ro.requestID, OutputObjectVariant(&out))
	}

	emit(fixedOutputStatus, LiteralVariant(handle.Status))
	emit(fixedOutputStatusLocation, LiteralVariant(handle.StatusLocation))
}

func (t *ParallelWPSTask) Postprocess() error { return nil }
