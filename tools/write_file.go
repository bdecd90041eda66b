package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/keel-agent/keel/tool"
)

// WriteFile creates or overwrites a file with the given content.
type WriteFile struct{}

type writeFileInput struct {
	Path    string `mapstructure:"path"`
	Content string `mapstructure:"content"`
}

func (w *WriteFile) Name() string { return "write_file" }

func (w *WriteFile) Description() string {
	return "Write content to a file, creating it and any parent directories if needed. Overwrites existing content."
}

func (w *WriteFile) Schema() tool.Schema {
	return tool.Schema{
		Properties: map[string]tool.Property{
			"path":    {Type: "string", Description: "File path, absolute or relative to the working directory"},
			"content": {Type: "string", Description: "Full content to write"},
		},
		Required: []string{"path", "content"},
	}
}

func (w *WriteFile) ReadOnly() bool     { return false }
func (w *WriteFile) MutatesFiles() bool { return true }

func (w *WriteFile) NeedsPermission(map[string]any) bool { return true }

func (w *WriteFile) Validate(ctx context.Context, input map[string]any, env tool.Env) error {
	var in writeFileInput
	if err := mapstructure.Decode(input, &in); err != nil {
		return err
	}
	if strings.TrimSpace(in.Path) == "" {
		return fmt.Errorf("path must not be empty")
	}
	return nil
}

func (w *WriteFile) Run(ctx context.Context, input map[string]any, env tool.Env) <-chan tool.Update {
	return tool.Emit(func(yield func(tool.Update)) {
		var in writeFileInput
		if err := mapstructure.Decode(input, &in); err != nil {
			yield(tool.Update{Result: &tool.Result{Err: err}})
			return
		}
		if err := env.WriteFile(in.Path, in.Content); err != nil {
			yield(tool.Update{Result: &tool.Result{Err: err}})
			return
		}
		yield(tool.Update{Result: &tool.Result{
			Data:     in.Path,
			Rendered: fmt.Sprintf("Wrote %d bytes to %s", len(in.Content), in.Path),
		}})
	})
}
