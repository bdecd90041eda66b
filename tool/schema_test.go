package tool

import "testing"

func commandSchema() Schema {
	return Schema{
		Properties: map[string]Property{
			"command": {Type: "string", Description: "Shell command to run"},
			"timeout": {Type: "integer"},
			"verbose": {Type: "boolean"},
		},
		Required: []string{"command"},
	}
}

func TestSchemaValidate(t *testing.T) {
	schema := commandSchema()

	tests := []struct {
		name    string
		input   map[string]any
		wantErr bool
	}{
		{"valid minimal", map[string]any{"command": "ls"}, false},
		{"valid full", map[string]any{"command": "ls", "timeout": float64(30), "verbose": true}, false},
		{"missing required", map[string]any{"timeout": float64(30)}, true},
		{"wrong type", map[string]any{"command": 42}, true},
		{"fractional integer", map[string]any{"command": "ls", "timeout": 1.5}, true},
		{"whole float as integer", map[string]any{"command": "ls", "timeout": float64(30)}, false},
		{"unknown field tolerated", map[string]any{"command": "ls", "extra": "x"}, false},
		{"null value", map[string]any{"command": nil}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := schema.Validate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%v) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestSchemaParameters(t *testing.T) {
	params := commandSchema().Parameters()

	if params["type"] != "object" {
		t.Errorf("type = %v", params["type"])
	}
	props := params["properties"].(map[string]any)
	command := props["command"].(map[string]any)
	if command["type"] != "string" || command["description"] != "Shell command to run" {
		t.Errorf("command property = %v", command)
	}
	required := params["required"].([]any)
	if len(required) != 1 || required[0] != "command" {
		t.Errorf("required = %v", required)
	}
}

func TestSchemaParametersOmitsEmptyRequired(t *testing.T) {
	params := Schema{Properties: map[string]Property{"path": {Type: "string"}}}.Parameters()
	if _, ok := params["required"]; ok {
		t.Error("required should be omitted when empty")
	}
}
