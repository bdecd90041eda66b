package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/keel-agent/keel/llm"
	"github.com/keel-agent/keel/logging"
	"github.com/keel-agent/keel/permission"
	"github.com/keel-agent/keel/tool"
)

// Sentinel result contents. The engine recognizes these and ends the
// turn without another provider round-trip.
const (
	PermissionDeniedResult = "Permission to use this tool was denied by the user."
	CancelledResult        = "Tool execution was cancelled."
)

// errRoundAborted signals that the caller cancelled mid-round. The
// engine maps it to a terminal aborted event.
var errRoundAborted = errors.New("tool round aborted")

// defaultConcurrency bounds parallel execution of read-only rounds.
const defaultConcurrency = 10

// Dispatcher executes one round of tool calls issued by the model.
// A round containing only read-only tools runs concurrently; any
// write-capable tool in the round forces serial execution in request
// order. Results always come back in request order.
type Dispatcher struct {
	Gate        *permission.Gate
	Concurrency int
}

// NewDispatcher creates a dispatcher with the default concurrency bound.
func NewDispatcher(gate *permission.Gate) *Dispatcher {
	return &Dispatcher{Gate: gate, Concurrency: defaultConcurrency}
}

// Dispatch runs every tool call in the round and returns results in
// request order. Individual failures become error results; the only
// error return is errRoundAborted when ctx is cancelled mid-round.
func (d *Dispatcher) Dispatch(ctx context.Context, session *Session, uses []llm.ToolUseBlock, emit func(kind EventKind, data map[string]any)) ([]llm.ToolResultBlock, error) {
	if len(uses) == 0 {
		return nil, nil
	}
	for _, use := range uses {
		emit(EventToolRequested, map[string]any{
			"tool_use_id": use.ID,
			"tool_name":   use.Name,
		})
	}

	results := make([]llm.ToolResultBlock, len(uses))
	if d.roundIsReadOnly(session, uses) {
		if err := d.runConcurrent(ctx, session, uses, results, emit); err != nil {
			return nil, err
		}
	} else {
		if err := d.runSerial(ctx, session, uses, results, emit); err != nil {
			return nil, err
		}
	}

	for _, r := range results {
		emit(EventToolResult, map[string]any{
			"tool_use_id": r.ToolUseID,
			"is_error":    r.IsError,
		})
	}
	return results, nil
}

// roundIsReadOnly reports whether every resolvable tool in the round
// declares itself read-only. Unknown tool names produce error results
// without side effects, so they never force serialization.
func (d *Dispatcher) roundIsReadOnly(session *Session, uses []llm.ToolUseBlock) bool {
	for _, use := range uses {
		t := session.Registry.Get(use.Name)
		if t != nil && !t.ReadOnly() {
			return false
		}
	}
	return true
}

func (d *Dispatcher) runSerial(ctx context.Context, session *Session, uses []llm.ToolUseBlock, results []llm.ToolResultBlock, emit func(EventKind, map[string]any)) error {
	for i, use := range uses {
		if ctx.Err() != nil {
			return errRoundAborted
		}
		results[i] = d.runOne(ctx, session, use, emit)
	}
	if ctx.Err() != nil {
		return errRoundAborted
	}
	return nil
}

func (d *Dispatcher) runConcurrent(ctx context.Context, session *Session, uses []llm.ToolUseBlock, results []llm.ToolResultBlock, emit func(EventKind, map[string]any)) error {
	limit := d.Concurrency
	if limit <= 0 {
		limit = defaultConcurrency
	}
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for i, use := range uses {
		wg.Add(1)
		go func(i int, use llm.ToolUseBlock) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = d.runOne(ctx, session, use, emit)
		}(i, use)
	}
	wg.Wait()
	if ctx.Err() != nil {
		return errRoundAborted
	}
	return nil
}

// runOne takes one tool call through the full pipeline: resolve,
// schema validation, normalization, semantic validation, permission
// check, execution, rendering. Every failure becomes an error result
// so the model can react to it.
func (d *Dispatcher) runOne(ctx context.Context, session *Session, use llm.ToolUseBlock, emit func(EventKind, map[string]any)) llm.ToolResultBlock {
	t := session.Registry.Get(use.Name)
	if t == nil {
		return errorResult(use.ID, fmt.Sprintf("tool not found: %s", use.Name))
	}

	input, err := decodeInput(use.Input)
	if err != nil {
		return errorResult(use.ID, fmt.Sprintf("invalid tool input: %v", err))
	}
	if err := t.Schema().Validate(input); err != nil {
		return errorResult(use.ID, fmt.Sprintf("invalid tool input: %v", err))
	}
	if n, ok := t.(tool.Normalizer); ok {
		input = n.Normalize(input, session.Env)
	}
	if err := t.Validate(ctx, input, session.Env); err != nil {
		return errorResult(use.ID, fmt.Sprintf("invalid tool input: %v", err))
	}

	if err := d.Gate.Authorize(ctx, t, input); err != nil {
		switch {
		case errors.Is(err, permission.ErrAborted):
			return errorResult(use.ID, CancelledResult)
		case errors.Is(err, permission.ErrDenied):
			return errorResult(use.ID, PermissionDeniedResult)
		default:
			return errorResult(use.ID, fmt.Sprintf("permission check failed: %v", err))
		}
	}

	logging.Debug("executing tool", "tool", t.Name(), "tool_use_id", use.ID)
	var final *tool.Result
	for update := range t.Run(ctx, input, session.Env) {
		if update.Result != nil {
			final = update.Result
			continue
		}
		if update.Progress != "" {
			session.Append(NewProgressMessage(update.Progress, use.ID))
			emit(EventProgress, map[string]any{
				"tool_use_id": use.ID,
				"status":      update.Progress,
			})
		}
	}

	if ctx.Err() != nil {
		return errorResult(use.ID, CancelledResult)
	}
	if final == nil {
		return errorResult(use.ID, "tool produced no result")
	}
	if final.Err != nil {
		return errorResult(use.ID, truncateToolOutput(final.Err.Error(), t.Name()))
	}
	return llm.ToolResultBlock{
		ToolUseID: use.ID,
		Content:   truncateToolOutput(final.Content(), t.Name()),
	}
}

func decodeInput(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var input map[string]any
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, err
	}
	if input == nil {
		input = map[string]any{}
	}
	return input, nil
}

func errorResult(toolUseID, content string) llm.ToolResultBlock {
	return llm.ToolResultBlock{ToolUseID: toolUseID, Content: content, IsError: true}
}
