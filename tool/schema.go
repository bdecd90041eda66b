package tool

import "fmt"

// Property describes one input field.
type Property struct {
	Type        string `json:"type"` // "string", "integer", "number", "boolean", "array", "object"
	Description string `json:"description,omitempty"`
}

// Schema is a declarative input schema: a flat object of typed
// properties with a required subset. Rich JSON Schema features are
// deliberately out of scope; every shipped tool fits this shape.
type Schema struct {
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Validate checks input against the schema: every required field must be
// present and every known field must match its declared type. Unknown
// fields are tolerated; models occasionally attach extras.
func (s Schema) Validate(input map[string]any) error {
	for _, name := range s.Required {
		if _, ok := input[name]; !ok {
			return fmt.Errorf("missing required field %q", name)
		}
	}
	for name, value := range input {
		prop, ok := s.Properties[name]
		if !ok {
			continue
		}
		if !matchesType(value, prop.Type) {
			return fmt.Errorf("field %q: expected %s, got %T", name, prop.Type, value)
		}
	}
	return nil
}

// Parameters renders the schema as the JSON Schema map both wire formats
// carry tool schemas in.
func (s Schema) Parameters() map[string]any {
	props := make(map[string]any, len(s.Properties))
	for name, p := range s.Properties {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		props[name] = prop
	}
	out := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(s.Required) > 0 {
		required := make([]any, len(s.Required))
		for i, r := range s.Required {
			required[i] = r
		}
		out["required"] = required
	}
	return out
}

func matchesType(value any, typ string) bool {
	if value == nil {
		return false
	}
	switch typ {
	case "string":
		_, ok := value.(string)
		return ok
	case "integer":
		// JSON numbers decode as float64; accept whole values only.
		switch n := value.(type) {
		case float64:
			return n == float64(int64(n))
		case int:
			return true
		default:
			return false
		}
	case "number":
		switch value.(type) {
		case float64, int:
			return true
		default:
			return false
		}
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}
