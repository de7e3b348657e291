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

	"gopkg.in/yaml.v3"

	wfschema "github.com/wpsflow/engine/pkg/workflow/schema"
)

var inputRefSchema = map[string]interface{}{
	"type":                 "object",
	"required":             []interface{}{"task"},
	"additionalProperties": false,
	"properties": map[string]interface{}{
		"task":         map[string]interface{}{"type": "string"},
		"output":       map[string]interface{}{"type": "string"},
		"as_reference": map[string]interface{}{"type": "boolean"},
	},
}

var taskSchema = map[string]interface{}{
	"type":                 "object",
	"required":             []interface{}{"name", "url", "identifier"},
	"additionalProperties": false,
	"properties": map[string]interface{}{
		"name":           map[string]interface{}{"type": "string"},
		"url":            map[string]interface{}{"type": "string"},
		"identifier":     map[string]interface{}{"type": "string"},
		"inputs":         map[string]interface{}{"type": "object"},
		"linked_inputs":  map[string]interface{}{"type": "object"},
		"progress_range": map[string]interface{}{"type": "array"},
	},
}

var parallelGroupSchema = map[string]interface{}{
	"type":                 "object",
	"required":             []interface{}{"name", "max_processes", "map", "reduce", "tasks"},
	"additionalProperties": false,
	"properties": map[string]interface{}{
		"name":          map[string]interface{}{"type": "string"},
		"max_processes": map[string]interface{}{"type": "integer", "minimum": 1.0},
		"map":           map[string]interface{}{},
		"reduce":        map[string]interface{}{},
		"tasks": map[string]interface{}{
			"type":     "array",
			"minItems": 1,
			"items":    taskSchema,
		},
	},
}

var workflowSchema = map[string]interface{}{
	"type":                 "object",
	"required":             []interface{}{"name"},
	"additionalProperties": false,
	"properties": map[string]interface{}{
		"name": map[string]interface{}{"type": "string"},
		"tasks": map[string]interface{}{
			"type":  "array",
			"items": taskSchema,
		},
		"parallel_groups": map[string]interface{}{
			"type":  "array",
			"items": parallelGroupSchema,
		},
	},
}

// validateAgainstSchema decodes data as a generic document and checks it
// against the workflow schema: required/unknown top-level and nested
// fields, task/parallel-group shape, and the "at least one of tasks or
// parallel_groups" rule spec.md's Open Questions settled on.
func validateAgainstSchema(data []byte) error {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return &WorkflowInvalidError{Message: fmt.Sprintf("parsing workflow document: %v", err)}
	}

	if err := wfschema.NewValidator().Validate(workflowSchema, doc); err != nil {
		return &WorkflowInvalidError{Message: err.Error()}
	}

	obj, _ := doc.(map[string]interface{})
	tasks, _ := obj["tasks"].([]interface{})
	groups, _ := obj["parallel_groups"].([]interface{})
	if len(tasks) == 0 && len(groups) == 0 {
		return &WorkflowInvalidError{Message: "workflow must declare at least one of tasks or parallel_groups"}
	}

	for _, g := range groups {
		gm, ok := g.(map[string]interface{})
		if !ok {
			continue
		}
		if err := validateMapField(gm["map"]); err != nil {
			return &WorkflowInvalidError{Task: fmt.Sprintf("%v", gm["name"]), Message: fmt.Sprintf("map: %v", err)}
		}
		if reduce, ok := gm["reduce"]; ok {
			if err := wfschema.NewValidator().Validate(inputRefSchema, reduce); err != nil {
				return &WorkflowInvalidError{Task: fmt.Sprintf("%v", gm["name"]), Message: fmt.Sprintf("reduce: %v", err)}
			}
		}
	}

	return nil
}

// validateMapField enforces the map field's (inputRef | []string) union,
// which the mini JSON-schema validator cannot express directly.
func validateMapField(v interface{}) error {
	switch val := v.(type) {
	case []interface{}:
		for i, elem := range val {
			if _, ok := elem.(string); !ok {
				return fmt.Errorf("element %d: expected string, got %T", i, elem)
			}
		}
		return nil
	case map[string]interface{}:
		return wfschema.NewValidator().Validate(inputRefSchema, val)
	default:
		return fmt.Errorf("expected a literal list or an input reference, got %T", v)
	}
}
