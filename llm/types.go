package llm

import (
	"encoding/json"
	"strings"
)

// Role identifies who produced a message in a conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockKind is the discriminator tag for ContentBlock.
type BlockKind string

const (
	BlockText       BlockKind = "text"
	BlockToolUse    BlockKind = "tool_use"
	BlockToolResult BlockKind = "tool_result"
	BlockThinking   BlockKind = "thinking"
)

// ToolUseBlock is a model-issued tool invocation embedded in an assistant
// message. The ID is unique within the message that produced it.
type ToolUseBlock struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResultBlock pairs the outcome of a tool execution with the tool_use
// block that requested it.
type ToolResultBlock struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error"`
}

// ThinkingBlock holds model reasoning content. Backends spell the field
// differently on the wire; the neutral form is always "thinking".
type ThinkingBlock struct {
	Text      string `json:"text"`
	Signature string `json:"signature,omitempty"`
}

// ContentBlock is a tagged union representing one block of a message.
type ContentBlock struct {
	Kind       BlockKind        `json:"kind"`
	Text       string           `json:"text,omitempty"`
	ToolUse    *ToolUseBlock    `json:"tool_use,omitempty"`
	ToolResult *ToolResultBlock `json:"tool_result,omitempty"`
	Thinking   *ThinkingBlock   `json:"thinking,omitempty"`
}

// TextBlock creates a text ContentBlock.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Kind: BlockText, Text: text}
}

// ToolUse creates a tool_use ContentBlock.
func ToolUse(id, name string, input json.RawMessage) ContentBlock {
	return ContentBlock{
		Kind:    BlockToolUse,
		ToolUse: &ToolUseBlock{ID: id, Name: name, Input: input},
	}
}

// ToolResultFor creates a tool_result ContentBlock paired with the given
// tool_use identifier.
func ToolResultFor(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{
		Kind:       BlockToolResult,
		ToolResult: &ToolResultBlock{ToolUseID: toolUseID, Content: content, IsError: isError},
	}
}

// Thinking creates a thinking ContentBlock.
func Thinking(text, signature string) ContentBlock {
	return ContentBlock{
		Kind:     BlockThinking,
		Thinking: &ThinkingBlock{Text: text, Signature: signature},
	}
}

// Message is the backend-neutral unit of conversation.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// UserMessage creates a user Message with text content.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: []ContentBlock{TextBlock(text)}}
}

// AssistantMessage creates an assistant Message with text content.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: []ContentBlock{TextBlock(text)}}
}

// ToolResultsMessage wraps ordered tool results into a user Message, the
// form both wire protocols expect results to be resubmitted in.
func ToolResultsMessage(results []ToolResultBlock) Message {
	blocks := make([]ContentBlock, len(results))
	for i, r := range results {
		blocks[i] = ToolResultFor(r.ToolUseID, r.Content, r.IsError)
	}
	return Message{Role: RoleUser, Content: blocks}
}

// TextContent returns the concatenation of all text blocks.
func (m Message) TextContent() string {
	var sb strings.Builder
	for _, block := range m.Content {
		if block.Kind == BlockText {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

// ToolUses returns all tool_use blocks in message order.
func (m Message) ToolUses() []ToolUseBlock {
	var uses []ToolUseBlock
	for _, block := range m.Content {
		if block.Kind == BlockToolUse && block.ToolUse != nil {
			uses = append(uses, *block.ToolUse)
		}
	}
	return uses
}

// ToolResults returns all tool_result blocks in message order.
func (m Message) ToolResults() []ToolResultBlock {
	var results []ToolResultBlock
	for _, block := range m.Content {
		if block.Kind == BlockToolResult && block.ToolResult != nil {
			results = append(results, *block.ToolResult)
		}
	}
	return results
}

// ToolSchema describes a tool to the model.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// Request is the immutable per-call input to Gateway.Query.
type Request struct {
	Model       string       `json:"model"`
	System      []string     `json:"system,omitempty"` // ordered system prompt parts
	Messages    []Message    `json:"messages"`
	MaxTokens   int          `json:"max_tokens"`
	Tools       []ToolSchema `json:"tools,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
	Backend     string       `json:"backend,omitempty"` // override the configured primary
}

// StopReason describes why the model stopped generating.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
	StopOther     StopReason = "other"
)

// Usage tracks token consumption for one query. Cache tokens are priced
// independently from ordinary input tokens.
type Usage struct {
	InputTokens      int `json:"input_tokens"`
	OutputTokens     int `json:"output_tokens"`
	CacheReadTokens  int `json:"cache_read_tokens"`
	CacheWriteTokens int `json:"cache_write_tokens"`
}

// Add returns the sum of u and other.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:      u.InputTokens + other.InputTokens,
		OutputTokens:     u.OutputTokens + other.OutputTokens,
		CacheReadTokens:  u.CacheReadTokens + other.CacheReadTokens,
		CacheWriteTokens: u.CacheWriteTokens + other.CacheWriteTokens,
	}
}

// Response is the backend-neutral result of one completed query.
type Response struct {
	ID         string     `json:"id"`
	Model      string     `json:"model"`
	Backend    string     `json:"backend"`
	Message    Message    `json:"message"` // always RoleAssistant
	StopReason StopReason `json:"stop_reason"`
	Usage      Usage      `json:"usage"`
}

// Text returns the concatenated text content of the response message.
func (r *Response) Text() string {
	return r.Message.TextContent()
}

// ToolUses returns the tool_use blocks of the response message in order.
func (r *Response) ToolUses() []ToolUseBlock {
	return r.Message.ToolUses()
}
