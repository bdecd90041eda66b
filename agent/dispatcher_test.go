package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/keel-agent/keel/config"
	"github.com/keel-agent/keel/llm"
	"github.com/keel-agent/keel/permission"
	"github.com/keel-agent/keel/tool"
)

// stubEnv satisfies tool.Env without touching the filesystem.
type stubEnv struct{ cwd string }

func (e *stubEnv) WorkingDirectory() string { return e.cwd }
func (e *stubEnv) ReadFile(path string, offset, limit int) (string, error) {
	return "", fmt.Errorf("not implemented")
}
func (e *stubEnv) WriteFile(path, content string) error { return nil }

func (e *stubEnv) FileExists(path string) bool { return false }
func (e *stubEnv) ExecCommand(ctx context.Context, command string, timeout time.Duration) (*tool.ExecResult, error) {
	return &tool.ExecResult{}, nil
}

// fakeTool is a scriptable tool.Tool for dispatcher tests.
type fakeTool struct {
	name       string
	readOnly   bool
	mutates    bool
	needsPerm  bool
	schema     tool.Schema
	validate   func(input map[string]any) error
	run        func(ctx context.Context, input map[string]any, yield func(tool.Update))
	mu         sync.Mutex
	executions []string
}

func (f *fakeTool) Name() string { return f.name }

func (f *fakeTool) Description() string { return "test tool" }

func (f *fakeTool) Schema() tool.Schema { return f.schema }

func (f *fakeTool) ReadOnly() bool { return f.readOnly }

func (f *fakeTool) MutatesFiles() bool { return f.mutates }

func (f *fakeTool) NeedsPermission(map[string]any) bool { return f.needsPerm }
func (f *fakeTool) Validate(ctx context.Context, input map[string]any, env tool.Env) error {
	if f.validate != nil {
		return f.validate(input)
	}
	return nil
}

func (f *fakeTool) Run(ctx context.Context, input map[string]any, env tool.Env) <-chan tool.Update {
	return tool.Emit(func(yield func(tool.Update)) {
		f.mu.Lock()
		f.executions = append(f.executions, fmt.Sprint(input["id"]))
		f.mu.Unlock()
		if f.run != nil {
			f.run(ctx, input, yield)
			return
		}
		yield(tool.Update{Result: &tool.Result{Data: fmt.Sprintf("ran %v", input["id"])}})
	})
}

func newTestSession(t *testing.T, tools ...tool.Tool) *Session {
	t.Helper()
	dir := t.TempDir()
	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	return NewSession(dir, tool.NewRegistry(tools...), cfg, &stubEnv{cwd: dir})
}

func openDispatcher(t *testing.T, session *Session) *Dispatcher {
	t.Helper()
	gate := permission.NewGate(session.Config, nil, nil)
	gate.SetBypass(true)
	return NewDispatcher(gate)
}

func useFor(id, name, input string) llm.ToolUseBlock {
	return llm.ToolUseBlock{ID: id, Name: name, Input: json.RawMessage(input)}
}

func noEvents(EventKind, map[string]any) {}

func TestDispatchOrdersConcurrentResults(t *testing.T) {
	// Completions finish in reverse request order; results must still
	// come back in request order.
	var started sync.WaitGroup
	started.Add(3)
	release := make(chan struct{})
	ft := &fakeTool{
		name:     "probe",
		readOnly: true,
		run: func(ctx context.Context, input map[string]any, yield func(tool.Update)) {
			started.Done()
			<-release
			yield(tool.Update{Result: &tool.Result{Data: fmt.Sprintf("out-%v", input["id"])}})
		},
	}
	session := newTestSession(t, ft)
	d := openDispatcher(t, session)

	done := make(chan struct{})
	var results []llm.ToolResultBlock
	var dispatchErr error
	go func() {
		defer close(done)
		results, dispatchErr = d.Dispatch(context.Background(), session, []llm.ToolUseBlock{
			useFor("tu_1", "probe", `{"id":"1"}`),
			useFor("tu_2", "probe", `{"id":"2"}`),
			useFor("tu_3", "probe", `{"id":"3"}`),
		}, noEvents)
	}()

	started.Wait() // all three running at once proves the round is concurrent
	close(release)
	<-done

	if dispatchErr != nil {
		t.Fatalf("Dispatch: %v", dispatchErr)
	}
	for i, want := range []string{"tu_1", "tu_2", "tu_3"} {
		if results[i].ToolUseID != want {
			t.Fatalf("result %d = %q, want %q", i, results[i].ToolUseID, want)
		}
	}
	for i, want := range []string{"out-1", "out-2", "out-3"} {
		if results[i].Content != want {
			t.Fatalf("result %d content = %q, want %q", i, results[i].Content, want)
		}
	}
}

func TestDispatchHonorsConcurrencyBound(t *testing.T) {
	var mu sync.Mutex
	active, maxActive := 0, 0
	ft := &fakeTool{
		name:     "probe",
		readOnly: true,
		run: func(ctx context.Context, input map[string]any, yield func(tool.Update)) {
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			yield(tool.Update{Result: &tool.Result{Data: "ok"}})
		},
	}
	session := newTestSession(t, ft)
	d := openDispatcher(t, session)
	d.Concurrency = 2

	var uses []llm.ToolUseBlock
	for i := 0; i < 6; i++ {
		uses = append(uses, useFor(fmt.Sprintf("tu_%d", i), "probe", `{}`))
	}
	if _, err := d.Dispatch(context.Background(), session, uses, noEvents); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if maxActive > 2 {
		t.Fatalf("ran %d tools at once, bound is 2", maxActive)
	}
}

func TestDispatchSerializesWriteRounds(t *testing.T) {
	var mu sync.Mutex
	var order []string
	active := 0
	maxActive := 0
	slow := func(ctx context.Context, input map[string]any, yield func(tool.Update)) {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		order = append(order, fmt.Sprint(input["id"]))
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		yield(tool.Update{Result: &tool.Result{Data: "ok"}})
	}
	reader := &fakeTool{name: "reader", readOnly: true, run: slow}
	writer := &fakeTool{name: "writer", readOnly: false, run: slow}
	session := newTestSession(t, reader, writer)
	d := openDispatcher(t, session)

	_, err := d.Dispatch(context.Background(), session, []llm.ToolUseBlock{
		useFor("tu_1", "reader", `{"id":"r1"}`),
		useFor("tu_2", "writer", `{"id":"w1"}`),
		useFor("tu_3", "reader", `{"id":"r2"}`),
	}, noEvents)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if maxActive != 1 {
		t.Fatalf("write round ran %d tools at once, want serial", maxActive)
	}
	want := []string{"r1", "w1", "r2"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("execution order %v, want %v", order, want)
		}
	}
}

func TestDispatchUnknownToolIsErrorResult(t *testing.T) {
	session := newTestSession(t, &fakeTool{name: "probe", readOnly: true})
	d := openDispatcher(t, session)

	results, err := d.Dispatch(context.Background(), session, []llm.ToolUseBlock{
		useFor("tu_1", "nope", `{}`),
		useFor("tu_2", "probe", `{"id":"x"}`),
	}, noEvents)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !results[0].IsError || !strings.Contains(results[0].Content, "tool not found: nope") {
		t.Fatalf("unexpected result for unknown tool: %+v", results[0])
	}
	if results[1].IsError {
		t.Fatalf("known tool should still run: %+v", results[1])
	}
}

func TestDispatchSchemaRejectionIsErrorResult(t *testing.T) {
	ft := &fakeTool{
		name:     "strict",
		readOnly: true,
		schema: tool.Schema{
			Properties: map[string]tool.Property{"path": {Type: "string"}},
			Required:   []string{"path"},
		},
	}
	session := newTestSession(t, ft)
	d := openDispatcher(t, session)

	results, err := d.Dispatch(context.Background(), session, []llm.ToolUseBlock{
		useFor("tu_1", "strict", `{}`),
	}, noEvents)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !results[0].IsError || !strings.Contains(results[0].Content, "invalid tool input") {
		t.Fatalf("unexpected result: %+v", results[0])
	}
	if len(ft.executions) != 0 {
		t.Fatal("tool ran despite schema rejection")
	}
}

func TestDispatchToolFailureIsErrorResult(t *testing.T) {
	ft := &fakeTool{
		name:     "flaky",
		readOnly: true,
		run: func(ctx context.Context, input map[string]any, yield func(tool.Update)) {
			yield(tool.Update{Result: &tool.Result{Err: errors.New("exit status 3")}})
		},
	}
	session := newTestSession(t, ft)
	d := openDispatcher(t, session)

	results, err := d.Dispatch(context.Background(), session, []llm.ToolUseBlock{
		useFor("tu_1", "flaky", `{}`),
	}, noEvents)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !results[0].IsError || !strings.Contains(results[0].Content, "exit status 3") {
		t.Fatalf("unexpected result: %+v", results[0])
	}
}

type denyPrompter struct{ calls int }

func (p *denyPrompter) RequestPermission(ctx context.Context, req permission.Request) (permission.Decision, error) {
	p.calls++
	return permission.Deny, nil
}

func TestDispatchPermissionDenialIsSentinel(t *testing.T) {
	ft := &fakeTool{name: "guarded", readOnly: true, needsPerm: true}
	session := newTestSession(t, ft)
	prompter := &denyPrompter{}
	d := NewDispatcher(permission.NewGate(session.Config, prompter, nil))

	results, err := d.Dispatch(context.Background(), session, []llm.ToolUseBlock{
		useFor("tu_1", "guarded", `{}`),
	}, noEvents)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !results[0].IsError || results[0].Content != PermissionDeniedResult {
		t.Fatalf("unexpected result: %+v", results[0])
	}
	if prompter.calls != 1 {
		t.Fatalf("prompted %d times, want 1", prompter.calls)
	}
	if len(ft.executions) != 0 {
		t.Fatal("tool ran despite denial")
	}
}

func TestDispatchAbortMidRound(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ft := &fakeTool{
		name:     "slow",
		readOnly: false, // serial round
		run: func(ctx context.Context, input map[string]any, yield func(tool.Update)) {
			cancel()
			yield(tool.Update{Result: &tool.Result{Data: "ok"}})
		},
	}
	session := newTestSession(t, ft)
	d := openDispatcher(t, session)

	_, err := d.Dispatch(ctx, session, []llm.ToolUseBlock{
		useFor("tu_1", "slow", `{}`),
		useFor("tu_2", "slow", `{}`),
	}, noEvents)
	if !errors.Is(err, errRoundAborted) {
		t.Fatalf("err = %v, want round aborted", err)
	}
	if len(ft.executions) != 1 {
		t.Fatalf("ran %d tools after cancellation, want 1", len(ft.executions))
	}
}

func TestDispatchEmitsLifecycleEvents(t *testing.T) {
	ft := &fakeTool{
		name:     "probe",
		readOnly: true,
		run: func(ctx context.Context, input map[string]any, yield func(tool.Update)) {
			yield(tool.Update{Progress: "working"})
			yield(tool.Update{Result: &tool.Result{Data: "done"}})
		},
	}
	session := newTestSession(t, ft)
	d := openDispatcher(t, session)

	var mu sync.Mutex
	counts := map[EventKind]int{}
	_, err := d.Dispatch(context.Background(), session, []llm.ToolUseBlock{
		useFor("tu_1", "probe", `{}`),
	}, func(kind EventKind, data map[string]any) {
		mu.Lock()
		counts[kind]++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if counts[EventToolRequested] != 1 || counts[EventProgress] != 1 || counts[EventToolResult] != 1 {
		t.Fatalf("unexpected event counts: %v", counts)
	}

	// progress is also recorded in history as a transient message
	var progress int
	for _, msg := range session.History() {
		if msg.Kind == MessageProgress {
			progress++
		}
	}
	if progress != 1 {
		t.Fatalf("recorded %d progress messages, want 1", progress)
	}
}
