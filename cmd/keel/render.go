package main

import (
	"fmt"
	"io"
	"time"

	"github.com/keel-agent/keel/agent"
	"github.com/keel-agent/keel/llm"
)

// renderEvents prints a readable transcript of the turn as it runs.
func renderEvents(w io.Writer, events <-chan agent.Event) {
	for event := range events {
		switch event.Kind {
		case agent.EventAssistantText:
			if text, ok := event.Data["text"].(string); ok && text != "" {
				fmt.Fprintln(w, text)
			}
		case agent.EventToolRequested:
			fmt.Fprintf(w, "→ %v\n", event.Data["tool_name"])
		case agent.EventProgress:
			if status, ok := event.Data["status"].(string); ok {
				fmt.Fprintf(w, "  %s\n", status)
			}
		case agent.EventToolResult:
			if isErr, _ := event.Data["is_error"].(bool); isErr {
				fmt.Fprintf(w, "  tool failed (%v)\n", event.Data["tool_use_id"])
			}
		case agent.EventError:
			fmt.Fprintf(w, "error: %v\n", event.Data["error"])
		case agent.EventAborted:
			fmt.Fprintln(w, "aborted")
		}
	}
}

func printCost(w io.Writer, summary llm.CostSummary) {
	fmt.Fprintf(w, "\n%d queries, %d in / %d out tokens (%d cache read, %d cache write), $%.4f, %s api time\n",
		summary.Queries,
		summary.Usage.InputTokens, summary.Usage.OutputTokens,
		summary.Usage.CacheReadTokens, summary.Usage.CacheWriteTokens,
		summary.CostUSD, summary.APITime.Round(10*time.Millisecond))
}
