package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/keel-agent/keel/tool"
)

// ReadFile reads a file, optionally windowed by line offset and limit.
type ReadFile struct{}

type readFileInput struct {
	Path   string `mapstructure:"path"`
	Offset int    `mapstructure:"offset"` // 1-based first line
	Limit  int    `mapstructure:"limit"`  // max lines
}

func (r *ReadFile) Name() string { return "read_file" }

func (r *ReadFile) Description() string {
	return "Read a file from the working directory, optionally windowed by a 1-based line offset and a line limit."
}

func (r *ReadFile) Schema() tool.Schema {
	return tool.Schema{
		Properties: map[string]tool.Property{
			"path":   {Type: "string", Description: "File path, absolute or relative to the working directory"},
			"offset": {Type: "integer", Description: "1-based line number to start from"},
			"limit":  {Type: "integer", Description: "Maximum number of lines to return"},
		},
		Required: []string{"path"},
	}
}

func (r *ReadFile) ReadOnly() bool     { return true }
func (r *ReadFile) MutatesFiles() bool { return false }

func (r *ReadFile) NeedsPermission(map[string]any) bool { return false }

func (r *ReadFile) Validate(ctx context.Context, input map[string]any, env tool.Env) error {
	var in readFileInput
	if err := mapstructure.Decode(input, &in); err != nil {
		return err
	}
	if strings.TrimSpace(in.Path) == "" {
		return fmt.Errorf("path must not be empty")
	}
	if in.Offset < 0 || in.Limit < 0 {
		return fmt.Errorf("offset and limit must not be negative")
	}
	if !env.FileExists(in.Path) {
		return fmt.Errorf("file does not exist: %s", in.Path)
	}
	return nil
}

func (r *ReadFile) Run(ctx context.Context, input map[string]any, env tool.Env) <-chan tool.Update {
	return tool.Emit(func(yield func(tool.Update)) {
		var in readFileInput
		if err := mapstructure.Decode(input, &in); err != nil {
			yield(tool.Update{Result: &tool.Result{Err: err}})
			return
		}
		content, err := env.ReadFile(in.Path, in.Offset, in.Limit)
		if err != nil {
			yield(tool.Update{Result: &tool.Result{Err: err}})
			return
		}
		if content == "" {
			yield(tool.Update{Result: &tool.Result{Data: content, Rendered: "(empty file)"}})
			return
		}
		yield(tool.Update{Result: &tool.Result{Data: content}})
	})
}
