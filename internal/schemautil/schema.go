// Package schemautil generates JSON-schema-equivalent object shapes from Go
// structs (via github.com/invopop/jsonschema, the same generator the
// teacher codebase uses for tool input schemas) and validates arbitrary
// map[string]any payloads against them.
//
// invopop/jsonschema only generates schemas; it has no validation half, and
// no JSON-schema *validator* library appears anywhere in the retrieved
// example pack, so Validate below is a small hand-rolled structural checker
// over the same map[string]any shape Generate produces (type, properties,
// required, enum, minimum/maximum) rather than a full JSON-schema engine.
package schemautil

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Generate produces a map[string]any JSON-schema for T, following the exact
// shape hector's functiontool.generateSchema produces (inline object with
// "type"/"properties"/"required", no $ref/$schema/$id).
func Generate[T any]() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(new(T))

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	delete(result, "$schema")
	delete(result, "$id")

	if result["type"] == "object" {
		out := map[string]any{
			"type":       "object",
			"properties": result["properties"],
		}
		if required, ok := result["required"]; ok {
			out["required"] = required
		}
		if addProps, ok := result["additionalProperties"]; ok {
			out["additionalProperties"] = addProps
		}
		return out, nil
	}
	return result, nil
}

// ValidationError is the {path, message} shape §6 requires.
type ValidationError struct {
	Path    string
	Message string
}

func (e ValidationError) Error() string { return e.Path + ": " + e.Message }

// Validate checks value against schema, returning a slice of structural
// violations (nil if value conforms). A nil schema always validates.
func Validate(schema map[string]any, value map[string]any) []ValidationError {
	if schema == nil {
		return nil
	}
	return validateObject("", schema, value)
}

func validateObject(path string, schema map[string]any, value map[string]any) []ValidationError {
	var errs []ValidationError

	if required, ok := schema["required"].([]any); ok {
		for _, r := range required {
			name, _ := r.(string)
			if _, present := value[name]; !present {
				errs = append(errs, ValidationError{
					Path:    joinPath(path, name),
					Message: "required field is missing",
				})
			}
		}
	}

	props, _ := schema["properties"].(map[string]any)
	for name, raw := range value {
		propSchema, ok := props[name].(map[string]any)
		if !ok {
			continue // unknown fields are tolerated
		}
		errs = append(errs, validateValue(joinPath(path, name), propSchema, raw)...)
	}
	return errs
}

func validateValue(path string, schema map[string]any, value any) []ValidationError {
	wantType, _ := schema["type"].(string)

	switch wantType {
	case "object":
		obj, ok := value.(map[string]any)
		if !ok {
			return []ValidationError{{Path: path, Message: "expected an object"}}
		}
		return validateObject(path, schema, obj)
	case "string":
		s, ok := value.(string)
		if !ok {
			return []ValidationError{{Path: path, Message: "expected a string"}}
		}
		if enum, ok := schema["enum"].([]any); ok && !enumContains(enum, s) {
			return []ValidationError{{Path: path, Message: fmt.Sprintf("value %q is not one of the allowed values", s)}}
		}
	case "number", "integer":
		n, ok := toFloat(value)
		if !ok {
			return []ValidationError{{Path: path, Message: "expected a number"}}
		}
		if min, ok := toFloat(schema["minimum"]); ok && n < min {
			return []ValidationError{{Path: path, Message: "value is below the minimum"}}
		}
		if max, ok := toFloat(schema["maximum"]); ok && n > max {
			return []ValidationError{{Path: path, Message: "value is above the maximum"}}
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return []ValidationError{{Path: path, Message: "expected a boolean"}}
		}
	case "array":
		if _, ok := value.([]any); !ok {
			return []ValidationError{{Path: path, Message: "expected an array"}}
		}
	}
	return nil
}

func joinPath(base, field string) string {
	if base == "" {
		return field
	}
	return base + "." + field
}

func enumContains(enum []any, s string) bool {
	for _, e := range enum {
		if str, ok := e.(string); ok && str == s {
			return true
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
