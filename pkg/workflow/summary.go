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

import "sort"

// Summary is the JSON-shaped report a completed run produces: its
// name and, per task, the ordered list of execution records the
// Monitor captured — one record for a plain task, one per replica for
// a parallel-group task's inner task.
type Summary struct {
	Name  string                  `json:"name"`
	Tasks map[string][]TaskRecord `json:"tasks"`
}

// TaskRecord is one remote execute call's terminal state: the status
// and status location the poll loop last observed, and the resolved
// output set. DataID and ProcessID are set only for a parallel-group
// task's replica executions, carrying the map index and replica rank.
type TaskRecord struct {
	Status         string         `json:"status"`
	StatusLocation string         `json:"status_location"`
	Outputs        []OutputRecord `json:"outputs"`
	DataID         *int           `json:"data_id,omitempty"`
	ProcessID      *int           `json:"process_id,omitempty"`
}

// OutputRecord is one output value captured from a task's execution,
// shaped for display rather than further adaptation.
type OutputRecord struct {
	Identifier string `json:"identifier"`
	Title      string `json:"title,omitempty"`
	DataType   string `json:"dataType,omitempty"`
	MimeType   string `json:"mimeType,omitempty"`
	Reference  string `json:"reference,omitempty"`
	Data       string `json:"data,omitempty"`
}

// BuildSummary snapshots the Monitor's captured execution records into
// a Summary keyed by the run's workflow name, ordering each task's
// records by map index so a parallel group's replicas read back in
// the order they were mapped.
func BuildSummary(name string, monitor *Monitor) Summary {
	s := Summary{Name: name, Tasks: make(map[string][]TaskRecord)}
	for task, execs := range monitor.Executions() {
		recs := make([]TaskRecord, 0, len(execs))
		for _, e := range execs {
			recs = append(recs, TaskRecord{
				Status:         e.Status,
				StatusLocation: e.StatusLocation,
				Outputs:        e.Outputs,
				DataID:         e.DataID,
				ProcessID:      e.ProcessID,
			})
		}
		sort.Slice(recs, func(i, j int) bool {
			return ptrOrZero(recs[i].DataID) < ptrOrZero(recs[j].DataID)
		})
		s.Tasks[task] = recs
	}
	return s
}

func ptrOrZero(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
