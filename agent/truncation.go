package agent

import (
	"fmt"
	"strings"
)

// Character limits per tool applied before a result enters the history.
var toolCharLimits = map[string]int{
	"read_file":  50000,
	"bash":       30000,
	"write_file": 1000,
}

const defaultCharLimit = 30000

// Line limits per tool, applied after character truncation.
var toolLineLimits = map[string]int{
	"bash": 256,
}

// truncateMiddle keeps the head and tail of oversized output and marks
// how much was removed.
func truncateMiddle(output string, maxChars int) string {
	if len(output) <= maxChars {
		return output
	}
	half := maxChars / 2
	removed := len(output) - maxChars
	return output[:half] +
		fmt.Sprintf("\n\n[Output truncated: %d characters removed from the middle. "+
			"Re-run the tool with more targeted parameters to see specific parts.]\n\n",
			removed) +
		output[len(output)-half:]
}

// truncateLines keeps the head and tail lines of oversized output.
func truncateLines(output string, maxLines int) string {
	lines := strings.Split(output, "\n")
	if len(lines) <= maxLines {
		return output
	}
	headCount := maxLines / 2
	tailCount := maxLines - headCount
	omitted := len(lines) - headCount - tailCount
	return strings.Join(lines[:headCount], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tailCount:], "\n")
}

// truncateToolOutput bounds a tool result before it is recorded and
// resubmitted, so one noisy command cannot blow out the context window.
func truncateToolOutput(output, toolName string) string {
	maxChars, ok := toolCharLimits[toolName]
	if !ok {
		maxChars = defaultCharLimit
	}
	result := truncateMiddle(output, maxChars)
	if maxLines, ok := toolLineLimits[toolName]; ok {
		result = truncateLines(result, maxLines)
	}
	return result
}
