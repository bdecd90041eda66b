// Package tool defines the uniform contract between the dispatcher and
// tool implementations, the registry they are looked up in, and the
// execution environment they run against.
package tool

import "context"

// Result is the terminal outcome of one tool execution.
type Result struct {
	// Data is the raw result payload.
	Data string
	// Rendered is the assistant-facing rendering of Data. When empty,
	// Data itself is shown to the model.
	Rendered string
	// Err marks the execution as failed. The dispatcher converts it
	// into an error ToolResult rather than propagating.
	Err error
}

// Content returns the string the model should see.
func (r Result) Content() string {
	if r.Rendered != "" {
		return r.Rendered
	}
	return r.Data
}

// Update is one step of a tool's execution stream: zero or more progress
// steps terminated by exactly one step carrying a Result.
type Update struct {
	Progress string
	Result   *Result
}

// Tool is implemented by every dispatchable tool.
type Tool interface {
	// Name is the identifier the model invokes the tool by.
	Name() string

	// Description is shown to the model alongside the schema.
	Description() string

	// Schema declares the tool's input shape for validation and for
	// the provider tool listing.
	Schema() Schema

	// ReadOnly reports whether the tool has no side effects. A round
	// whose tools are all read-only may run concurrently.
	ReadOnly() bool

	// MutatesFiles reports whether the tool writes files. Grants for
	// file-mutating tools are never persisted to configuration.
	MutatesFiles() bool

	// NeedsPermission decides, per input, whether the permission gate
	// must be consulted before execution.
	NeedsPermission(input map[string]any) bool

	// Validate performs semantic validation beyond the schema check.
	Validate(ctx context.Context, input map[string]any, env Env) error

	// Run executes the tool. The returned channel yields progress
	// updates and is closed after exactly one terminal Result update.
	// Implementations must observe ctx and abort their own work.
	Run(ctx context.Context, input map[string]any, env Env) <-chan Update
}

// Normalizer is optionally implemented by tools whose inputs need
// cleanup before validation (e.g. stripping a redundant "cd <cwd> && "
// prefix some models prepend to shell commands).
type Normalizer interface {
	Normalize(input map[string]any, env Env) map[string]any
}

// Emit writes updates to a fresh channel from a goroutine and closes it
// after the terminal result. Helper for simple tool implementations.
func Emit(run func(yield func(Update))) <-chan Update {
	ch := make(chan Update, 4)
	go func() {
		defer close(ch)
		run(func(u Update) { ch <- u })
	}()
	return ch
}
