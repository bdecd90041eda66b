package llm

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAIBackend speaks the chat-completions wire format: flat string
// content plus a tool_calls array on assistant messages, tool results as
// role "tool" messages, and function-style tool schemas. Some compatible
// servers attach reasoning text as a nonstandard "reasoning_content" or
// "reasoning" field; it is surfaced as a thinking block.
type OpenAIBackend struct {
	client openai.Client
	name   string
}

// NewOpenAIBackend creates a backend for the OpenAI API or any
// chat-completions-compatible server. An empty baseURL targets the
// official endpoint. SDK retries are disabled; the gateway retries.
func NewOpenAIBackend(apiKey, baseURL string, extra ...option.RequestOption) *OpenAIBackend {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	opts = append(opts, extra...)
	return &OpenAIBackend{client: openai.NewClient(opts...), name: "openai"}
}

// Name returns "openai".
func (b *OpenAIBackend) Name() string { return b.name }

// Complete sends one query and normalizes the response.
func (b *OpenAIBackend) Complete(ctx context.Context, req Request) (*Response, error) {
	params := encodeOpenAIRequest(req)
	resp, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classifyOpenAIError(ctx, err)
	}
	return decodeOpenAICompletion(resp), nil
}

// encodeOpenAIRequest flattens the blocks-style history into the
// chat-completions shape. Thinking blocks are not sent back; this family
// has no slot for them and servers reject unknown assistant fields.
func encodeOpenAIRequest(req Request) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+len(req.System))
	for _, part := range req.System {
		messages = append(messages, openai.SystemMessage(part))
	}
	for _, msg := range req.Messages {
		messages = append(messages, encodeOpenAIMessage(msg)...)
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	for _, tool := range req.Tools {
		fn := shared.FunctionDefinitionParam{
			Name:        tool.Name,
			Description: openai.String(tool.Description),
		}
		if len(tool.Parameters) > 0 {
			fn.Parameters = shared.FunctionParameters(tool.Parameters)
		}
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{Function: fn})
	}
	return params
}

// encodeOpenAIMessage may yield several wire messages: each tool result
// block becomes its own role "tool" message.
func encodeOpenAIMessage(msg Message) []openai.ChatCompletionMessageParamUnion {
	if msg.Role == RoleAssistant {
		toolCalls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(msg.Content))
		for _, use := range msg.ToolUses() {
			args := string(use.Input)
			if args == "" {
				args = "{}"
			}
			toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
				ID: use.ID,
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      use.Name,
					Arguments: args,
				},
			})
		}
		text := msg.TextContent()
		if len(toolCalls) == 0 {
			if text == "" {
				return nil
			}
			return []openai.ChatCompletionMessageParamUnion{openai.AssistantMessage(text)}
		}
		assistant := openai.ChatCompletionAssistantMessageParam{ToolCalls: toolCalls}
		if text != "" {
			assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(text)}
		}
		return []openai.ChatCompletionMessageParamUnion{{OfAssistant: &assistant}}
	}

	var out []openai.ChatCompletionMessageParamUnion
	for _, result := range msg.ToolResults() {
		out = append(out, openai.ToolMessage(result.Content, result.ToolUseID))
	}
	if text := msg.TextContent(); text != "" {
		out = append(out, openai.UserMessage(text))
	}
	return out
}

func decodeOpenAICompletion(resp *openai.ChatCompletion) *Response {
	out := Message{Role: RoleAssistant}
	stop := StopOther
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		if reasoning := extractReasoningContent(choice.Message); reasoning != "" {
			out.Content = append(out.Content, Thinking(reasoning, ""))
		}
		if choice.Message.Content != "" {
			out.Content = append(out.Content, TextBlock(choice.Message.Content))
		}
		for _, tc := range choice.Message.ToolCalls {
			args := tc.Function.Arguments
			if strings.TrimSpace(args) == "" {
				args = "{}"
			}
			out.Content = append(out.Content, ToolUse(tc.ID, tc.Function.Name, json.RawMessage(args)))
		}
		switch choice.FinishReason {
		case "stop":
			stop = StopEndTurn
		case "tool_calls", "function_call":
			stop = StopToolUse
		case "length":
			stop = StopMaxTokens
		}
	}

	cached := int(resp.Usage.PromptTokensDetails.CachedTokens)
	return &Response{
		ID:         resp.ID,
		Model:      resp.Model,
		Backend:    "openai",
		Message:    out,
		StopReason: stop,
		Usage: Usage{
			InputTokens:     int(resp.Usage.PromptTokens) - cached,
			OutputTokens:    int(resp.Usage.CompletionTokens),
			CacheReadTokens: cached,
		},
	}
}

// extractReasoningContent pulls reasoning text that compatible servers
// attach outside the standard schema.
func extractReasoningContent(msg openai.ChatCompletionMessage) string {
	if msg.JSON.ExtraFields == nil {
		return ""
	}
	for _, key := range []string{"reasoning_content", "reasoning"} {
		field, ok := msg.JSON.ExtraFields[key]
		if !ok {
			continue
		}
		raw := strings.TrimSpace(field.Raw())
		if raw == "" || raw == "null" {
			continue
		}
		var text string
		if err := json.Unmarshal([]byte(raw), &text); err == nil && strings.TrimSpace(text) != "" {
			return strings.TrimSpace(text)
		}
	}
	return ""
}

func classifyOpenAIError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return &AbortError{GatewayError: GatewayError{Message: "openai query cancelled", Cause: ctx.Err()}}
	}
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		payload := apierr.Error()
		var retryAfter *float64
		if apierr.Response != nil {
			retryAfter = parseRetryAfter(apierr.Response.Header.Get("retry-after"))
		}
		return ErrorFromStatusCode(apierr.StatusCode, "openai request failed", "openai", payload, retryAfter)
	}
	return &NetworkError{GatewayError: GatewayError{Message: "openai connection failed", Cause: err}}
}

var openaiMaxTokensRe = regexp.MustCompile(`supports at most ([0-9]+) (?:completion |output )?tokens`)

// DetectQuirk recognizes wire quirks from the error payload: a max_tokens
// ceiling below the requested value, or a model that rejects temperature.
func (b *OpenAIBackend) DetectQuirk(req Request, err error) (Correction, bool) {
	var be *BadRequestError
	if !errors.As(err, &be) {
		return Correction{}, false
	}
	if m := openaiMaxTokensRe.FindStringSubmatch(be.Payload); m != nil {
		if limit, convErr := strconv.Atoi(m[1]); convErr == nil {
			return Correction{Code: "clamp_max_tokens", MaxTokens: limit}, true
		}
	}
	if req.Temperature != nil && strings.Contains(be.Payload, "temperature") &&
		(strings.Contains(be.Payload, "unsupported") || strings.Contains(be.Payload, "does not support")) {
		return Correction{Code: "drop_temperature"}, true
	}
	return Correction{}, false
}
