// Package tools provides the shipped tool implementations: bash,
// read_file, and write_file.
package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/keel-agent/keel/tool"
)

const defaultBashTimeout = 2 * time.Minute

// Bash executes shell commands in the session working directory.
type Bash struct {
	// Timeout bounds each command; zero means defaultBashTimeout.
	Timeout time.Duration
}

type bashInput struct {
	Command string `mapstructure:"command"`
	Timeout int    `mapstructure:"timeout"` // seconds
}

func (b *Bash) Name() string { return "bash" }

func (b *Bash) Description() string {
	return "Run a shell command in the working directory and return its combined output and exit status."
}

func (b *Bash) Schema() tool.Schema {
	return tool.Schema{
		Properties: map[string]tool.Property{
			"command": {Type: "string", Description: "The shell command to execute"},
			"timeout": {Type: "integer", Description: "Optional timeout in seconds"},
		},
		Required: []string{"command"},
	}
}

func (b *Bash) ReadOnly() bool     { return false }
func (b *Bash) MutatesFiles() bool { return false }

func (b *Bash) NeedsPermission(map[string]any) bool { return true }

// Normalize strips a redundant "cd <cwd> && " prefix some models prepend
// even though commands already run in the working directory.
func (b *Bash) Normalize(input map[string]any, env tool.Env) map[string]any {
	command, ok := input["command"].(string)
	if !ok {
		return input
	}
	for _, form := range []string{
		"cd " + env.WorkingDirectory() + " && ",
		"cd " + shellQuote(env.WorkingDirectory()) + " && ",
	} {
		if strings.HasPrefix(command, form) {
			out := make(map[string]any, len(input))
			for k, v := range input {
				out[k] = v
			}
			out["command"] = strings.TrimPrefix(command, form)
			return out
		}
	}
	return input
}

func shellQuote(s string) string { return "'" + s + "'" }

func (b *Bash) Validate(ctx context.Context, input map[string]any, env tool.Env) error {
	var in bashInput
	if err := mapstructure.Decode(input, &in); err != nil {
		return err
	}
	if strings.TrimSpace(in.Command) == "" {
		return fmt.Errorf("command must not be empty")
	}
	if strings.ContainsRune(in.Command, 0) {
		return fmt.Errorf("command contains a null byte")
	}
	return nil
}

func (b *Bash) Run(ctx context.Context, input map[string]any, env tool.Env) <-chan tool.Update {
	return tool.Emit(func(yield func(tool.Update)) {
		var in bashInput
		if err := mapstructure.Decode(input, &in); err != nil {
			yield(tool.Update{Result: &tool.Result{Err: err}})
			return
		}

		timeout := b.Timeout
		if timeout == 0 {
			timeout = defaultBashTimeout
		}
		if in.Timeout > 0 {
			timeout = time.Duration(in.Timeout) * time.Second
		}

		yield(tool.Update{Progress: "running: " + in.Command})

		result, err := env.ExecCommand(ctx, in.Command, timeout)
		if err != nil {
			yield(tool.Update{Result: &tool.Result{Err: err}})
			return
		}

		output := result.Output()
		switch {
		case result.TimedOut:
			yield(tool.Update{Result: &tool.Result{
				Data: output,
				Err:  fmt.Errorf("command timed out after %s", timeout),
			}})
		case result.ExitCode != 0:
			rendered := output
			if rendered != "" {
				rendered += "\n"
			}
			rendered += fmt.Sprintf("exit status %d", result.ExitCode)
			yield(tool.Update{Result: &tool.Result{
				Data: output,
				Err:  fmt.Errorf("%s", rendered),
			}})
		default:
			yield(tool.Update{Result: &tool.Result{Data: output}})
		}
	})
}
