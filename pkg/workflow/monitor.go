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
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	wflog "github.com/wpsflow/engine/internal/log"
	"github.com/wpsflow/engine/internal/wpsclient"
)

var (
	taskProgress = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wpsflow_task_progress_percent",
			Help: "Current percentCompleted reported by a task's remote WPS process",
		},
		[]string{"workflow", "task", "map_index"},
	)

	taskStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wpsflow_task_status",
			Help: "Task status: 0=accepted, 1=started, 2=succeeded, 3=failed",
		},
		[]string{"workflow", "task", "map_index"},
	)

	taskExceptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wpsflow_task_exceptions_total",
			Help: "Total exceptions collected from worker goroutines by task",
		},
		[]string{"workflow", "task"},
	)
)

// statusCode maps a wpsclient execution status string to the fixed
// ordinal the taskStatus gauge exports.
func statusCode(status string) float64 {
	switch status {
	case wpsclient.StatusAccepted:
		return 0
	case wpsclient.StatusStarted:
		return 1
	case wpsclient.StatusSucceeded:
		return 2
	case wpsclient.StatusFailed:
		return 3
	default:
		return -1
	}
}

// LogEntry is a single timestamped record captured from the run's
// logger, replayed verbatim in a WorkflowFailedError's message body.
type LogEntry struct {
	Time    time.Time
	Level   string
	Message string
}

// ExecutionRecord captures one remote execute call's terminal result:
// the status and status location the poll loop last observed, and the
// requested outputs resolved from the execute response. DataID and
// ProcessID are non-nil only for a parallel-group task's replica
// executions, carrying the map index and replica rank respectively.
type ExecutionRecord struct {
	Status         string
	StatusLocation string
	Outputs        []OutputRecord
	DataID         *int
	ProcessID      *int
}

// Monitor is the workflow's single point of contact for progress
// reporting, status changes, execution-result capture, and exception
// collection across every worker goroutine. A Monitor is safe for
// concurrent use.
type Monitor struct {
	mu sync.Mutex

	runID        string
	workflowName string

	progress   map[string]map[int]int
	statuses   map[string]map[int]string
	executions map[string][]ExecutionRecord
	groupSize  map[string]int
	groupRange map[string][2]int
	logs       []LogEntry
	excs       []*taskError
}

// NewMonitor creates a Monitor for one workflow run.
func NewMonitor(runID, workflowName string) *Monitor {
	return &Monitor{
		runID:        runID,
		workflowName: workflowName,
		progress:     make(map[string]map[int]int),
		statuses:     make(map[string]map[int]string),
		executions:   make(map[string][]ExecutionRecord),
		groupSize:    make(map[string]int),
		groupRange:   make(map[string][2]int),
	}
}

// RegisterGroup records a parallel-group inner task's replica count
// and progress range, so ProgressSnapshot can average per-index
// progress across replicas and default indices that haven't reported
// yet to the range's start.
func (m *Monitor) RegisterGroup(task string, maxProcesses int, progressRange [2]int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groupSize[task] = maxProcesses
	m.groupRange[task] = progressRange
}

// Append implements internal/log.Sink, letting a Monitor be passed
// straight to log.New so every record the run's logger emits is
// retained for replay in a WorkflowFailedError.
func (m *Monitor) Append(e wflog.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, LogEntry{
		Time:    e.Time,
		Level:   e.Level.String(),
		Message: e.Message,
	})
}

// RecordProgress updates a task's percentCompleted for the given map
// index (0 for non-parallel tasks) and mirrors it to Prometheus.
func (m *Monitor) RecordProgress(task string, mapIndex, percent int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.progress[task] == nil {
		m.progress[task] = make(map[int]int)
	}
	m.progress[task][mapIndex] = percent

	taskProgress.WithLabelValues(m.workflowName, task, fmt.Sprintf("%d", mapIndex)).Set(float64(percent))
}

// RecordStatus updates a task's WPS execution status for the given map
// index and mirrors it to Prometheus.
func (m *Monitor) RecordStatus(task string, mapIndex int, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.statuses[task] == nil {
		m.statuses[task] = make(map[int]string)
	}
	m.statuses[task][mapIndex] = status

	if code := statusCode(status); code >= 0 {
		taskStatus.WithLabelValues(m.workflowName, task, fmt.Sprintf("%d", mapIndex)).Set(code)
	}
}

// RecordExecution appends one completed execute call's result against
// task, in the order executions complete.
func (m *Monitor) RecordExecution(task string, rec ExecutionRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions[task] = append(m.executions[task], rec)
}

// Executions returns a copy of every execution record collected so
// far, keyed by task name.
func (m *Monitor) Executions() map[string][]ExecutionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]ExecutionRecord, len(m.executions))
	for task, recs := range m.executions {
		out[task] = append([]ExecutionRecord(nil), recs...)
	}
	return out
}

// RecordException records a worker goroutine's terminal error against
// the task that produced it, capturing a stack trace at the call site.
func (m *Monitor) RecordException(task string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.excs = append(m.excs, wrapTaskError(task, err))
	taskExceptions.WithLabelValues(m.workflowName, task).Inc()
}

// Failed reports whether any worker goroutine has recorded an
// exception so far.
func (m *Monitor) Failed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.excs) > 0
}

// Err returns a *WorkflowFailedError wrapping every collected
// exception and the full captured log, or nil if none were recorded.
func (m *Monitor) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.excs) == 0 {
		return nil
	}

	logCopy := make([]LogEntry, len(m.logs))
	copy(logCopy, m.logs)

	excCopy := make([]*taskError, len(m.excs))
	copy(excCopy, m.excs)

	return &WorkflowFailedError{Exceptions: excCopy, Log: logCopy}
}

// ProgressSnapshot returns one completed-percent value per task
// recorded so far. For a plain task this is its own last-reported
// percent. For a parallel-group task registered via RegisterGroup it
// is the arithmetic mean of every replica's per-map_index percent over
// indices 0 up to the larger of the group's replica count and the
// highest index reported so far, with any index that hasn't reported
// yet defaulting to the task's progress range start.
func (m *Monitor) ProgressSnapshot() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]int)
	for task, byIndex := range m.progress {
		if size, ok := m.groupSize[task]; ok {
			out[task] = m.groupMean(task, byIndex, size)
			continue
		}
		for _, pct := range byIndex {
			out[task] = pct
		}
	}
	for task, size := range m.groupSize {
		if _, ok := out[task]; ok {
			continue
		}
		out[task] = m.groupMean(task, m.progress[task], size)
	}
	return out
}

// groupMean averages byIndex's values across [0, n), where n is the
// larger of size and one past the highest reported index, defaulting
// any missing index to task's registered progress range start. Caller
// holds m.mu.
func (m *Monitor) groupMean(task string, byIndex map[int]int, size int) int {
	n := size
	for idx := range byIndex {
		if idx+1 > n {
			n = idx + 1
		}
	}
	if n == 0 {
		return 0
	}
	start := m.groupRange[task][0]
	sum := 0
	for idx := 0; idx < n; idx++ {
		if pct, ok := byIndex[idx]; ok {
			sum += pct
		} else {
			sum += start
		}
	}
	return sum / n
}
