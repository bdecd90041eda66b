package agent

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/keel-agent/keel/llm"
)

func TestMessageConstructors(t *testing.T) {
	user := NewUserMessage("hello")
	if user.Kind != MessageUser || user.User == nil || user.User.Text != "hello" {
		t.Fatalf("unexpected user message: %+v", user)
	}
	if user.ID == "" {
		t.Fatal("expected generated message ID")
	}
	if got := user.Text(); got != "hello" {
		t.Fatalf("Text() = %q, want %q", got, "hello")
	}

	resp := &llm.Response{
		ID:    "resp_1",
		Model: "claude-sonnet-4-5",
		Message: llm.Message{
			Role: llm.RoleAssistant,
			Content: []llm.ContentBlock{
				llm.TextBlock("working on it"),
				llm.ToolUse("tu_1", "bash", json.RawMessage(`{"command":"ls"}`)),
			},
		},
		Usage: llm.Usage{InputTokens: 10, OutputTokens: 5},
	}
	assistant := NewAssistantMessage(resp)
	if assistant.Kind != MessageAssistant {
		t.Fatalf("kind = %q, want assistant", assistant.Kind)
	}
	if assistant.Assistant.ResponseID != "resp_1" {
		t.Fatalf("response id = %q", assistant.Assistant.ResponseID)
	}
	uses := assistant.ToolUses()
	if len(uses) != 1 || uses[0].ID != "tu_1" {
		t.Fatalf("unexpected tool uses: %+v", uses)
	}
	if got := assistant.Text(); got != "working on it" {
		t.Fatalf("Text() = %q", got)
	}

	progress := NewProgressMessage("running", "tu_1")
	if progress.Kind != MessageProgress || progress.Progress.ToolUseID != "tu_1" {
		t.Fatalf("unexpected progress message: %+v", progress)
	}
}

func assistantWithCalls(text string, uses ...llm.ToolUseBlock) Message {
	content := []llm.ContentBlock{llm.TextBlock(text)}
	for _, u := range uses {
		content = append(content, llm.ToolUse(u.ID, u.Name, u.Input))
	}
	return Message{
		Kind:      MessageAssistant,
		Assistant: &AssistantContent{Content: content},
	}
}

func TestProviderHistory(t *testing.T) {
	history := []Message{
		NewUserMessage("list files"),
		assistantWithCalls("checking",
			llm.ToolUseBlock{ID: "tu_1", Name: "bash", Input: json.RawMessage(`{"command":"ls"}`)}),
		NewProgressMessage("running: ls", "tu_1"),
		NewToolResultsMessage([]llm.ToolResultBlock{
			{ToolUseID: "tu_1", Content: "a.txt"},
		}),
		assistantWithCalls("done"),
	}

	converted := ProviderHistory(history)
	if len(converted) != 4 {
		t.Fatalf("got %d messages, want 4 (progress dropped): %+v", len(converted), converted)
	}
	if converted[0].Role != llm.RoleUser || converted[0].TextContent() != "list files" {
		t.Fatalf("unexpected first message: %+v", converted[0])
	}
	if got := len(converted[1].ToolUses()); got != 1 {
		t.Fatalf("assistant tool uses = %d, want 1", got)
	}
	results := converted[2].ToolResults()
	if len(results) != 1 || results[0].ToolUseID != "tu_1" {
		t.Fatalf("unexpected results message: %+v", converted[2])
	}
}

func TestProviderHistorySynthesizesMissingResults(t *testing.T) {
	history := []Message{
		NewUserMessage("go"),
		assistantWithCalls("calling",
			llm.ToolUseBlock{ID: "tu_1", Name: "bash"},
			llm.ToolUseBlock{ID: "tu_2", Name: "read_file"}),
	}

	converted := ProviderHistory(history)
	if len(converted) != 3 {
		t.Fatalf("got %d messages, want 3: %+v", len(converted), converted)
	}
	results := converted[2].ToolResults()
	if len(results) != 2 {
		t.Fatalf("got %d synthesized results, want 2", len(results))
	}
	for i, id := range []string{"tu_1", "tu_2"} {
		if results[i].ToolUseID != id || !results[i].IsError {
			t.Fatalf("result %d = %+v, want error result for %s", i, results[i], id)
		}
	}
	if !strings.Contains(results[0].Content, "bash") {
		t.Fatalf("synthesized result should name the tool: %q", results[0].Content)
	}
}

func TestProviderHistoryReordersAndFillsPartialResults(t *testing.T) {
	history := []Message{
		assistantWithCalls("",
			llm.ToolUseBlock{ID: "tu_1", Name: "bash"},
			llm.ToolUseBlock{ID: "tu_2", Name: "bash"},
			llm.ToolUseBlock{ID: "tu_3", Name: "bash"}),
		NewToolResultsMessage([]llm.ToolResultBlock{
			{ToolUseID: "tu_3", Content: "three"},
			{ToolUseID: "tu_1", Content: "one"},
		}),
	}

	converted := ProviderHistory(history)
	results := converted[1].ToolResults()
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].Content != "one" || results[2].Content != "three" {
		t.Fatalf("results not reordered to request order: %+v", results)
	}
	if !results[1].IsError || results[1].ToolUseID != "tu_2" {
		t.Fatalf("missing result not synthesized: %+v", results[1])
	}
}
