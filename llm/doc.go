// Package llm is the provider gateway: a backend-agnostic query facade
// over interchangeable LLM backends with divergent wire formats.
//
// # Architecture
//
//   - Neutral types: Message, ContentBlock, Request, Response are shared
//     by every component that touches model output; backends translate
//     them losslessly to and from their wire formats.
//   - Backends: AnthropicBackend speaks the typed-blocks format,
//     OpenAIBackend speaks chat completions. Each classifies its own
//     transport errors into the shared taxonomy and can recognize its
//     wire quirks from error payloads.
//   - Gateway: resolves the backend for a request, runs the retry policy
//     with exponential backoff and retry-after hints, applies memoized
//     wire-quirk corrections, fails over once to a fallback backend, and
//     records token usage and dollar cost.
//
// # Quick Start
//
//	gw := llm.NewGateway("anthropic", "openai",
//	    llm.NewAnthropicBackend(os.Getenv("ANTHROPIC_API_KEY")),
//	    llm.NewOpenAIBackend(os.Getenv("OPENAI_API_KEY"), ""))
//
//	resp, err := gw.Query(ctx, llm.Request{
//	    Model:    "claude-sonnet-4-5",
//	    System:   []string{"You are a coding assistant."},
//	    Messages: []llm.Message{llm.UserMessage("List the files here.")},
//	    Tools:    registry.Schemas(),
//	})
package llm
