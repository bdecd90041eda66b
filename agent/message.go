package agent

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/keel-agent/keel/llm"
)

// MessageKind discriminates between history message types.
type MessageKind string

const (
	MessageUser      MessageKind = "user"
	MessageAssistant MessageKind = "assistant"
	MessageProgress  MessageKind = "progress"
)

// UserContent holds user input or a round's ordered tool results.
type UserContent struct {
	Text    string                `json:"text,omitempty"`
	Results []llm.ToolResultBlock `json:"results,omitempty"`
}

// AssistantContent holds one provider response.
type AssistantContent struct {
	Content    []llm.ContentBlock `json:"content"`
	Usage      llm.Usage          `json:"usage"`
	ResponseID string             `json:"response_id,omitempty"`
}

// ProgressContent holds a transient status update tied to a tool call.
// Progress messages are driver-facing only and never resubmitted to a
// provider.
type ProgressContent struct {
	Status    string `json:"status"`
	ToolUseID string `json:"tool_use_id,omitempty"`
}

// Message is a single entry in the conversation history.
type Message struct {
	ID        string            `json:"id"`
	Kind      MessageKind       `json:"kind"`
	Timestamp time.Time         `json:"timestamp"`
	User      *UserContent      `json:"user,omitempty"`
	Assistant *AssistantContent `json:"assistant,omitempty"`
	Progress  *ProgressContent  `json:"progress,omitempty"`
}

// NewUserMessage creates a history entry for user input.
func NewUserMessage(text string) Message {
	return Message{
		ID:        uuid.New().String(),
		Kind:      MessageUser,
		Timestamp: time.Now(),
		User:      &UserContent{Text: text},
	}
}

// NewToolResultsMessage wraps a round's ordered tool results as a user
// message, the form providers expect results to be resubmitted in.
func NewToolResultsMessage(results []llm.ToolResultBlock) Message {
	return Message{
		ID:        uuid.New().String(),
		Kind:      MessageUser,
		Timestamp: time.Now(),
		User:      &UserContent{Results: results},
	}
}

// NewAssistantMessage creates a history entry from a provider response.
func NewAssistantMessage(resp *llm.Response) Message {
	return Message{
		ID:        uuid.New().String(),
		Kind:      MessageAssistant,
		Timestamp: time.Now(),
		Assistant: &AssistantContent{
			Content:    resp.Message.Content,
			Usage:      resp.Usage,
			ResponseID: resp.ID,
		},
	}
}

// NewProgressMessage creates a transient progress entry.
func NewProgressMessage(status, toolUseID string) Message {
	return Message{
		ID:        uuid.New().String(),
		Kind:      MessageProgress,
		Timestamp: time.Now(),
		Progress:  &ProgressContent{Status: status, ToolUseID: toolUseID},
	}
}

// Text returns the message's text content regardless of kind.
func (m Message) Text() string {
	switch m.Kind {
	case MessageUser:
		if m.User != nil {
			return m.User.Text
		}
	case MessageAssistant:
		if m.Assistant != nil {
			return llm.Message{Role: llm.RoleAssistant, Content: m.Assistant.Content}.TextContent()
		}
	}
	return ""
}

// ToolUses returns the tool_use blocks of an assistant message, in order.
func (m Message) ToolUses() []llm.ToolUseBlock {
	if m.Kind != MessageAssistant || m.Assistant == nil {
		return nil
	}
	return llm.Message{Role: llm.RoleAssistant, Content: m.Assistant.Content}.ToolUses()
}

// ProviderHistory converts history into the provider-neutral message
// form. Progress messages are dropped. Every tool_use block is paired
// with exactly one tool_result carrying the same identifier before
// resubmission; a missing result (e.g. after crash recovery) is
// synthesized as an execution failure so the invariant holds.
func ProviderHistory(messages []Message) []llm.Message {
	var out []llm.Message
	var pendingUses []llm.ToolUseBlock

	flushPending := func() {
		if len(pendingUses) == 0 {
			return
		}
		results := make([]llm.ToolResultBlock, len(pendingUses))
		for i, use := range pendingUses {
			results[i] = llm.ToolResultBlock{
				ToolUseID: use.ID,
				Content:   fmt.Sprintf("tool result missing for %s", use.Name),
				IsError:   true,
			}
		}
		out = append(out, llm.ToolResultsMessage(results))
		pendingUses = nil
	}

	for _, msg := range messages {
		switch msg.Kind {
		case MessageUser:
			if msg.User == nil {
				continue
			}
			if len(msg.User.Results) > 0 {
				results := pairResults(pendingUses, msg.User.Results)
				pendingUses = nil
				out = append(out, llm.ToolResultsMessage(results))
			} else if msg.User.Text != "" {
				flushPending()
				out = append(out, llm.UserMessage(msg.User.Text))
			}
		case MessageAssistant:
			if msg.Assistant == nil {
				continue
			}
			flushPending()
			m := llm.Message{Role: llm.RoleAssistant, Content: msg.Assistant.Content}
			out = append(out, m)
			pendingUses = m.ToolUses()
		case MessageProgress:
			// driver-facing only
		}
	}
	flushPending()
	return out
}

// pairResults orders results to match the originating tool_use blocks
// and synthesizes error results for any use left unanswered.
func pairResults(uses []llm.ToolUseBlock, results []llm.ToolResultBlock) []llm.ToolResultBlock {
	if len(uses) == 0 {
		return results
	}
	byID := make(map[string]llm.ToolResultBlock, len(results))
	for _, r := range results {
		byID[r.ToolUseID] = r
	}
	ordered := make([]llm.ToolResultBlock, 0, len(uses))
	for _, use := range uses {
		if r, ok := byID[use.ID]; ok {
			ordered = append(ordered, r)
			continue
		}
		ordered = append(ordered, llm.ToolResultBlock{
			ToolUseID: use.ID,
			Content:   fmt.Sprintf("tool result missing for %s", use.Name),
			IsError:   true,
		})
	}
	return ordered
}
