package permission

import (
	"context"
	"strings"

	"github.com/keel-agent/keel/llm"
)

// detectorSystemPrompt instructs the model to classify a command's safe
// prefix. The reply protocol is a single line: the prefix itself, "none"
// when only exact-match authorization applies, or
// "command_injection_detected" when the command embeds dynamic content
// that could smuggle a different command past a prefix grant.
const detectorSystemPrompt = `Your task is to process Bash commands that an AI coding agent wants to run.

This policy spec defines how to determine the prefix of a Bash command:
- The prefix is the initial portion that identifies which program and subcommand will run, stripped of arguments that vary per invocation. Examples: "npm install foo" has prefix "npm install"; "git commit -m 'msg'" has prefix "git commit"; "cargo build --release" has prefix "cargo build".
- If the command is a single program with no subcommand structure, or the full command is needed to judge its safety, reply "none".
- If the command contains command substitution ($(...), backticks), variable expansion that could alter which program runs, or chained input that could inject an unrelated command, reply "command_injection_detected".

Reply with exactly one line and nothing else.`

// LLMPrefixDetector classifies safe prefixes with a lightweight gateway
// query. This is the permission gate's one upward dependency on the
// provider layer.
type LLMPrefixDetector struct {
	querier llm.Querier
	model   string
}

// NewLLMPrefixDetector builds a detector that queries the given model.
func NewLLMPrefixDetector(querier llm.Querier, model string) *LLMPrefixDetector {
	return &LLMPrefixDetector{querier: querier, model: model}
}

// DetectPrefix classifies one command. Errors propagate so the caller
// fails closed.
func (d *LLMPrefixDetector) DetectPrefix(ctx context.Context, command string) (PrefixResult, error) {
	resp, err := d.querier.Query(ctx, llm.Request{
		Model:     d.model,
		System:    []string{detectorSystemPrompt},
		Messages:  []llm.Message{llm.UserMessage(command)},
		MaxTokens: 64,
	})
	if err != nil {
		return PrefixResult{}, err
	}

	reply := strings.TrimSpace(resp.Text())
	switch {
	case reply == "" || strings.EqualFold(reply, "none"):
		return PrefixResult{}, nil
	case strings.EqualFold(reply, "command_injection_detected"):
		return PrefixResult{CommandInjection: true}, nil
	default:
		return PrefixResult{Prefix: reply}, nil
	}
}
