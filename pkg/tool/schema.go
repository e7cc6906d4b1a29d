package tool

import (
	"fmt"
)

// JSONSchema is the subset of JSON-Schema the built-in tools declare.
type JSONSchema struct {
	Type        string                 `json:"type,omitempty"`
	Description string                 `json:"description,omitempty"`
	Properties  map[string]*JSONSchema `json:"properties,omitempty"`
	Required    []string               `json:"required,omitempty"`
	Items       *JSONSchema            `json:"items,omitempty"`
	Enum        []string               `json:"enum,omitempty"`
}

// ToMap renders the schema as the generic map shape upstream declarations
// use.
func (s *JSONSchema) ToMap() map[string]any {
	if s == nil {
		return nil
	}
	out := map[string]any{}
	if s.Type != "" {
		out["type"] = s.Type
	}
	if s.Description != "" {
		out["description"] = s.Description
	}
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for name, prop := range s.Properties {
			props[name] = prop.ToMap()
		}
		out["properties"] = props
	}
	if len(s.Required) > 0 {
		required := make([]any, len(s.Required))
		for i, name := range s.Required {
			required[i] = name
		}
		out["required"] = required
	}
	if s.Items != nil {
		out["items"] = s.Items.ToMap()
	}
	if len(s.Enum) > 0 {
		enum := make([]any, len(s.Enum))
		for i, v := range s.Enum {
			enum[i] = v
		}
		out["enum"] = enum
	}
	return out
}

// schemaValidator performs structural checks: required properties must be
// present and string enums must match. Full JSON-Schema semantics stay
// upstream; the model already produced arguments against the same schema.
type schemaValidator struct{}

func (schemaValidator) Validate(params map[string]any, schema *JSONSchema) error {
	if schema == nil {
		return nil
	}
	return validateValue(params, schema, "")
}

func validateValue(value any, schema *JSONSchema, path string) error {
	if schema == nil || value == nil {
		return nil
	}
	label := path
	if label == "" {
		label = "arguments"
	}
	switch schema.Type {
	case "object":
		obj, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("%s: expected object", label)
		}
		for _, name := range schema.Required {
			if _, present := obj[name]; !present {
				return fmt.Errorf("%s: missing required property %q", label, name)
			}
		}
		for name, prop := range schema.Properties {
			child, present := obj[name]
			if !present {
				continue
			}
			if err := validateValue(child, prop, joinPath(path, name)); err != nil {
				return err
			}
		}
	case "array":
		items, ok := value.([]any)
		if !ok {
			return fmt.Errorf("%s: expected array", label)
		}
		if schema.Items != nil {
			for i, item := range items {
				if err := validateValue(item, schema.Items, fmt.Sprintf("%s[%d]", label, i)); err != nil {
					return err
				}
			}
		}
	case "string":
		str, ok := value.(string)
		if !ok {
			return fmt.Errorf("%s: expected string", label)
		}
		if len(schema.Enum) > 0 {
			for _, allowed := range schema.Enum {
				if str == allowed {
					return nil
				}
			}
			return fmt.Errorf("%s: value %q not in %v", label, str, schema.Enum)
		}
	case "number", "integer":
		switch value.(type) {
		case float64, float32, int, int64, int32:
		default:
			return fmt.Errorf("%s: expected number", label)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("%s: expected boolean", label)
		}
	}
	return nil
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}
