package llm

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicBackend speaks the blocks-style wire format: messages carry
// typed content blocks (text, tool_use, tool_result, thinking), tool
// schemas are {name, description, input_schema}, and usage reports cache
// read/write tokens separately.
type AnthropicBackend struct {
	client anthropic.Client
}

// NewAnthropicBackend creates a backend for the Anthropic API. The SDK's
// built-in retries are disabled; the gateway owns the retry policy.
func NewAnthropicBackend(apiKey string, extra ...option.RequestOption) *AnthropicBackend {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	opts = append(opts, extra...)
	return &AnthropicBackend{client: anthropic.NewClient(opts...)}
}

// Name returns "anthropic".
func (b *AnthropicBackend) Name() string { return "anthropic" }

// Complete sends one query and normalizes the response.
func (b *AnthropicBackend) Complete(ctx context.Context, req Request) (*Response, error) {
	params := encodeAnthropicRequest(req)
	msg, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyAnthropicError(ctx, err)
	}
	return decodeAnthropicMessage(msg), nil
}

// encodeAnthropicRequest translates a neutral request into wire params.
func encodeAnthropicRequest(req Request) anthropic.MessageNewParams {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages:  encodeAnthropicMessages(req.Messages),
	}
	for _, part := range req.System {
		params.System = append(params.System, anthropic.TextBlockParam{Text: part})
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	for _, tool := range req.Tools {
		params.Tools = append(params.Tools, encodeAnthropicTool(tool))
	}
	return params
}

func encodeAnthropicMessages(messages []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Content))
		for _, block := range msg.Content {
			switch block.Kind {
			case BlockText:
				if block.Text != "" {
					blocks = append(blocks, anthropic.NewTextBlock(block.Text))
				}
			case BlockToolUse:
				if block.ToolUse != nil {
					blocks = append(blocks, anthropic.NewToolUseBlock(
						block.ToolUse.ID, block.ToolUse.Input, block.ToolUse.Name))
				}
			case BlockToolResult:
				if block.ToolResult != nil {
					blocks = append(blocks, anthropic.NewToolResultBlock(
						block.ToolResult.ToolUseID, block.ToolResult.Content, block.ToolResult.IsError))
				}
			case BlockThinking:
				if block.Thinking != nil {
					blocks = append(blocks, anthropic.NewThinkingBlock(
						block.Thinking.Signature, block.Thinking.Text))
				}
			}
		}
		if len(blocks) == 0 {
			continue
		}
		if msg.Role == RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out
}

func encodeAnthropicTool(tool ToolSchema) anthropic.ToolUnionParam {
	var required []string
	if raw, ok := tool.Parameters["required"].([]string); ok {
		required = raw
	} else if raw, ok := tool.Parameters["required"].([]any); ok {
		for _, item := range raw {
			if s, ok := item.(string); ok {
				required = append(required, s)
			}
		}
	}
	param := anthropic.ToolParam{
		Name:        tool.Name,
		Description: anthropic.String(tool.Description),
		InputSchema: anthropic.ToolInputSchemaParam{
			Type:       "object",
			Properties: tool.Parameters["properties"],
			Required:   required,
		},
	}
	return anthropic.ToolUnionParam{OfTool: &param}
}

// decodeAnthropicMessage reconstructs the neutral assistant message,
// including tool_use and thinking blocks, from the wire response.
func decodeAnthropicMessage(msg *anthropic.Message) *Response {
	out := Message{Role: RoleAssistant}
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			out.Content = append(out.Content, TextBlock(variant.Text))
		case anthropic.ToolUseBlock:
			out.Content = append(out.Content, ToolUse(variant.ID, variant.Name, variant.Input))
		case anthropic.ThinkingBlock:
			out.Content = append(out.Content, Thinking(variant.Thinking, variant.Signature))
		}
	}

	stop := StopOther
	switch msg.StopReason {
	case anthropic.StopReasonEndTurn:
		stop = StopEndTurn
	case anthropic.StopReasonToolUse:
		stop = StopToolUse
	case anthropic.StopReasonMaxTokens:
		stop = StopMaxTokens
	}

	return &Response{
		ID:         msg.ID,
		Model:      string(msg.Model),
		Backend:    "anthropic",
		Message:    out,
		StopReason: stop,
		Usage: Usage{
			InputTokens:      int(msg.Usage.InputTokens),
			OutputTokens:     int(msg.Usage.OutputTokens),
			CacheReadTokens:  int(msg.Usage.CacheReadInputTokens),
			CacheWriteTokens: int(msg.Usage.CacheCreationInputTokens),
		},
	}
}

func classifyAnthropicError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return &AbortError{GatewayError: GatewayError{Message: "anthropic query cancelled", Cause: ctx.Err()}}
	}
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		payload := apierr.Error()
		var retryAfter *float64
		if apierr.Response != nil {
			retryAfter = parseRetryAfter(apierr.Response.Header.Get("retry-after"))
		}
		classified := ErrorFromStatusCode(apierr.StatusCode, "anthropic request failed", "anthropic", payload, retryAfter)
		// The API reports transient overload with a dedicated error type;
		// treat it as a should-retry hint regardless of status code.
		if be, ok := classified.(*BadRequestError); ok && strings.Contains(payload, "overloaded_error") {
			be.Retryable = true
		}
		return classified
	}
	return &NetworkError{GatewayError: GatewayError{Message: "anthropic connection failed", Cause: err}}
}

var anthropicMaxTokensRe = regexp.MustCompile(`max_tokens: [0-9]+ > ([0-9]+)`)

// DetectQuirk recognizes wire quirks from the error payload: a max_tokens
// value above the model's ceiling, or a sampling field the model rejects.
func (b *AnthropicBackend) DetectQuirk(req Request, err error) (Correction, bool) {
	var be *BadRequestError
	if !errors.As(err, &be) {
		return Correction{}, false
	}
	if m := anthropicMaxTokensRe.FindStringSubmatch(be.Payload); m != nil {
		if limit, convErr := strconv.Atoi(m[1]); convErr == nil {
			return Correction{Code: "clamp_max_tokens", MaxTokens: limit}, true
		}
	}
	if strings.Contains(be.Payload, "temperature") && strings.Contains(be.Payload, "not supported") {
		return Correction{Code: "drop_temperature"}, true
	}
	return Correction{}, false
}

// parseRetryAfter reads a retry-after header value in seconds.
func parseRetryAfter(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil || seconds < 0 {
		return nil
	}
	return &seconds
}
