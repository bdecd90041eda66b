package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/keel-agent/keel/llm"
	"github.com/keel-agent/keel/logging"
)

// State tracks where the engine is in the turn lifecycle. It is
// observational; the loop itself drives transitions.
type State string

const (
	StateIdle            State = "idle"
	StateDrafting        State = "drafting"
	StateDispatching     State = "dispatching"
	StateAwaitingResults State = "awaiting_results"
	StateAborted         State = "aborted"
	StateError           State = "error"
)

// defaultMaxTokens bounds a single assistant message when the caller
// does not configure a limit.
const defaultMaxTokens = 8192

// SystemPromptBuilder produces the ordered system prompt parts for a
// request. It runs once per provider call so prompts can reflect
// current session state.
type SystemPromptBuilder func(session *Session) []string

// Engine drives one turn at a time: provider call, tool dispatch,
// result resubmission, until the model stops calling tools or the
// turn terminates early.
type Engine struct {
	Gateway    llm.Querier
	Dispatcher *Dispatcher
	Store      Store
	Emitter    *EventEmitter

	Model        string
	MaxTokens    int
	SystemPrompt SystemPromptBuilder

	state State
}

// NewEngine wires an engine with its own event emitter.
func NewEngine(gateway llm.Querier, dispatcher *Dispatcher, store Store, model string) *Engine {
	if store == nil {
		store = NullStore{}
	}
	return &Engine{
		Gateway:    gateway,
		Dispatcher: dispatcher,
		Store:      store,
		Emitter:    NewEventEmitter(),
		Model:      model,
		state:      StateIdle,
	}
}

// State returns the engine's current lifecycle state.
func (e *Engine) State() State { return e.state }

// Events returns the channel turn events are delivered on.
func (e *Engine) Events() <-chan Event { return e.Emitter.Events() }

// Run executes one full turn for the given user input. It returns when
// the turn reaches a terminal state: idle on success, or an error for
// fatal failures and cancellation. Exactly one terminal event is
// emitted per turn.
func (e *Engine) Run(ctx context.Context, session *Session, input string) error {
	if err := e.validate(session, input); err != nil {
		e.state = StateError
		e.emit(session, EventError, map[string]any{"error": err.Error()})
		return err
	}

	session.Append(NewUserMessage(input))
	err := e.loop(ctx, session)
	if saveErr := e.Store.Save(session); saveErr != nil {
		logging.Warn("session save failed", "session", session.ID, "error", saveErr)
	}

	switch {
	case err == nil:
		e.state = StateIdle
		e.emit(session, EventTurnIdle, nil)
	case errors.Is(err, errRoundAborted) || llm.IsAborted(err):
		e.state = StateAborted
		e.emit(session, EventAborted, nil)
	default:
		e.state = StateError
		e.emit(session, EventError, map[string]any{"error": err.Error()})
	}
	return err
}

// validate checks turn preconditions. Failures are terminal and happen
// before any provider call.
func (e *Engine) validate(session *Session, input string) error {
	switch {
	case session == nil:
		return fmt.Errorf("no session")
	case session.WorkingDir == "":
		return fmt.Errorf("session has no working directory")
	case session.Registry == nil:
		return fmt.Errorf("session has no tool registry")
	case session.Config == nil:
		return fmt.Errorf("session has no project configuration")
	case strings.TrimSpace(input) == "":
		return fmt.Errorf("empty input")
	}
	return nil
}

func (e *Engine) loop(ctx context.Context, session *Session) error {
	for {
		if ctx.Err() != nil {
			return &llm.AbortError{GatewayError: llm.GatewayError{Message: "turn cancelled", Cause: ctx.Err()}}
		}

		e.state = StateDrafting
		resp, err := e.Gateway.Query(ctx, e.buildRequest(session))
		if err != nil {
			return err
		}

		msg := NewAssistantMessage(resp)
		session.Append(msg)
		e.emit(session, EventAssistantStarted, map[string]any{
			"response_id": resp.ID,
			"model":       resp.Model,
		})
		if text := resp.Text(); text != "" {
			e.emit(session, EventAssistantText, map[string]any{"text": text})
		}

		uses := resp.ToolUses()
		if len(uses) == 0 {
			e.emit(session, EventAssistantDone, map[string]any{
				"response_id": resp.ID,
				"stop_reason": string(resp.StopReason),
			})
			return nil
		}

		e.state = StateDispatching
		results, err := e.Dispatcher.Dispatch(ctx, session, uses, func(kind EventKind, data map[string]any) {
			e.emit(session, kind, data)
		})
		if err != nil {
			return err
		}

		e.state = StateAwaitingResults
		session.Append(NewToolResultsMessage(results))
		e.emit(session, EventAssistantDone, map[string]any{
			"response_id": resp.ID,
			"stop_reason": string(resp.StopReason),
		})
		if saveErr := e.Store.Save(session); saveErr != nil {
			logging.Warn("session save failed", "session", session.ID, "error", saveErr)
		}

		// A denied or cancelled tool ends the turn without another
		// provider round-trip; resubmitting would just retry the same
		// refused action.
		if hasSentinel(results) {
			return nil
		}
	}
}

func (e *Engine) buildRequest(session *Session) llm.Request {
	maxTokens := e.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	var system []string
	if e.SystemPrompt != nil {
		system = e.SystemPrompt(session)
	}
	return llm.Request{
		Model:     e.Model,
		System:    system,
		Messages:  ProviderHistory(session.History()),
		MaxTokens: maxTokens,
		Tools:     session.Registry.Schemas(),
	}
}

func (e *Engine) emit(session *Session, kind EventKind, data map[string]any) {
	id := ""
	if session != nil {
		id = session.ID
	}
	e.Emitter.Emit(id, kind, data)
}

func hasSentinel(results []llm.ToolResultBlock) bool {
	for _, r := range results {
		if r.IsError && (r.Content == PermissionDeniedResult || r.Content == CancelledResult) {
			return true
		}
	}
	return false
}
