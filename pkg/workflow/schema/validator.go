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

package schema

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Validator validates data against a JSON Schema.
type Validator interface {
	Validate(schema map[string]interface{}, data interface{}) error
}

// DefaultValidator implements Validator for a subset of JSON Schema
// Draft 7: type, properties, required, enum, items, minimum, and
// additionalProperties (only the boolean `false` form).
type DefaultValidator struct{}

// NewValidator creates a new schema validator.
func NewValidator() Validator {
	return &DefaultValidator{}
}

// Validate validates data against a JSON Schema.
func (v *DefaultValidator) Validate(schema map[string]interface{}, data interface{}) error {
	return v.validate(schema, data, "$")
}

func (v *DefaultValidator) validate(schema map[string]interface{}, data interface{}, path string) error {
	if schemaType, ok := schema["type"].(string); ok {
		if err := v.validateType(schemaType, data, path); err != nil {
			return err
		}

		switch schemaType {
		case "object":
			if err := v.validateObject(schema, data, path); err != nil {
				return err
			}
		case "array":
			if err := v.validateArray(schema, data, path); err != nil {
				return err
			}
		case "string":
			if err := v.validateString(schema, data, path); err != nil {
				return err
			}
		case "number", "integer":
			if err := v.validateNumber(schema, data, path); err != nil {
				return err
			}
		}
	}

	return nil
}

func (v *DefaultValidator) validateType(schemaType string, data interface{}, path string) error {
	switch schemaType {
	case "object":
		if _, ok := data.(map[string]interface{}); !ok {
			return NewValidationError(path, "type", fmt.Sprintf("expected object, got %T", data))
		}
	case "array":
		if _, ok := data.([]interface{}); !ok {
			return NewValidationError(path, "type", fmt.Sprintf("expected array, got %T", data))
		}
	case "string":
		if _, ok := data.(string); !ok {
			return NewValidationError(path, "type", fmt.Sprintf("expected string, got %T", data))
		}
	case "number":
		switch data.(type) {
		case float64, int, int64, float32:
		default:
			return NewValidationError(path, "type", fmt.Sprintf("expected number, got %T", data))
		}
	case "integer":
		switch n := data.(type) {
		case float64:
			if n != float64(int64(n)) {
				return NewValidationError(path, "type", fmt.Sprintf("expected integer, got %v", n))
			}
		case int, int64:
		default:
			return NewValidationError(path, "type", fmt.Sprintf("expected integer, got %T", data))
		}
	case "boolean":
		if _, ok := data.(bool); !ok {
			return NewValidationError(path, "type", fmt.Sprintf("expected boolean, got %T", data))
		}
	default:
		return fmt.Errorf("unsupported schema type: %s", schemaType)
	}
	return nil
}

func (v *DefaultValidator) validateObject(schema map[string]interface{}, data interface{}, path string) error {
	obj, ok := data.(map[string]interface{})
	if !ok {
		return NewValidationError(path, "type", fmt.Sprintf("expected object, got %T", data))
	}

	if required, ok := schema["required"].([]interface{}); ok {
		for _, reqField := range required {
			fieldName, ok := reqField.(string)
			if !ok {
				continue
			}
			if _, exists := obj[fieldName]; !exists {
				return NewValidationError(path, "required", fmt.Sprintf("missing required field: %s", fieldName))
			}
		}
	}

	properties, _ := schema["properties"].(map[string]interface{})

	if additional, ok := schema["additionalProperties"].(bool); ok && !additional {
		var unknown []string
		for fieldName := range obj {
			if _, declared := properties[fieldName]; !declared {
				unknown = append(unknown, fieldName)
			}
		}
		if len(unknown) > 0 {
			sort.Strings(unknown)
			return NewValidationError(path, "additionalProperties", fmt.Sprintf("unknown field(s): %v", unknown))
		}
	}

	for fieldName, fieldValue := range obj {
		if propSchema, ok := properties[fieldName].(map[string]interface{}); ok {
			fieldPath := fmt.Sprintf("%s.%s", path, fieldName)
			if err := v.validate(propSchema, fieldValue, fieldPath); err != nil {
				return err
			}
		}
	}

	return nil
}

func (v *DefaultValidator) validateArray(schema map[string]interface{}, data interface{}, path string) error {
	arr, ok := data.([]interface{})
	if !ok {
		return NewValidationError(path, "type", fmt.Sprintf("expected array, got %T", data))
	}

	if minItems, ok := schema["minItems"].(int); ok && len(arr) < minItems {
		return NewValidationError(path, "minItems", fmt.Sprintf("expected at least %d item(s), got %d", minItems, len(arr)))
	}

	if items, ok := schema["items"].(map[string]interface{}); ok {
		for i, item := range arr {
			itemPath := fmt.Sprintf("%s[%d]", path, i)
			if err := v.validate(items, item, itemPath); err != nil {
				return err
			}
		}
	}

	return nil
}

func (v *DefaultValidator) validateString(schema map[string]interface{}, data interface{}, path string) error {
	str, ok := data.(string)
	if !ok {
		return NewValidationError(path, "type", fmt.Sprintf("expected string, got %T", data))
	}

	if enum, ok := schema["enum"].([]interface{}); ok {
		valid := false
		for _, allowedValue := range enum {
			if allowedStr, ok := allowedValue.(string); ok && allowedStr == str {
				valid = true
				break
			}
		}
		if !valid {
			enumJSON, _ := json.Marshal(enum)
			return NewValidationError(path, "enum", fmt.Sprintf("value %q not in allowed values: %s", str, enumJSON))
		}
	}

	return nil
}

func (v *DefaultValidator) validateNumber(schema map[string]interface{}, data interface{}, path string) error {
	var n float64
	switch val := data.(type) {
	case float64:
		n = val
	case int:
		n = float64(val)
	case int64:
		n = float64(val)
	default:
		return nil
	}

	if min, ok := schema["minimum"].(float64); ok && n < min {
		return NewValidationError(path, "minimum", fmt.Sprintf("value %v is below minimum %v", n, min))
	}
	if max, ok := schema["maximum"].(float64); ok && n > max {
		return NewValidationError(path, "maximum", fmt.Sprintf("value %v is above maximum %v", n, max))
	}

	return nil
}
