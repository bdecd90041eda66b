package permission

import (
	"context"
	"strings"

	"github.com/keel-agent/keel/logging"
)

// safeCommands are universally safe read-only commands authorized by
// exact match with no grant or prompt.
var safeCommands = map[string]bool{
	"git status":    true,
	"git diff":      true,
	"git log":       true,
	"git branch":    true,
	"pwd":           true,
	"ls":            true,
	"ls -la":        true,
	"ls -l":         true,
	"date":          true,
	"whoami":        true,
	"which git":     true,
	"echo":          true,
	"tree":          true,
	"git config --get remote.origin.url": true,
}

// PrefixResult is the outcome of safe-prefix detection for one command.
type PrefixResult struct {
	// Prefix is the detected safe prefix, empty when only exact-match
	// authorization applies.
	Prefix string
	// CommandInjection forces exact-match-only authorization regardless
	// of any detected prefix.
	CommandInjection bool
}

// PrefixDetector classifies a shell command's safe prefix. The production
// implementation queries the provider gateway; tests use a rule-based
// fake. A returned error fails the authorization closed.
type PrefixDetector interface {
	DetectPrefix(ctx context.Context, command string) (PrefixResult, error)
}

// splitCommand breaks a command into sub-commands on shell control
// operators (&&, ||, ;, |), respecting single and double quotes. Operator
// text inside quotes does not split.
func splitCommand(command string) []string {
	var (
		parts   []string
		current strings.Builder
		quote   rune
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			parts = append(parts, s)
		}
		current.Reset()
	}

	runes := []rune(command)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if quote != 0 {
			if r == quote {
				quote = 0
			}
			current.WriteRune(r)
			continue
		}
		switch r {
		case '\'', '"':
			quote = r
			current.WriteRune(r)
		case '&':
			if i+1 < len(runes) && runes[i+1] == '&' {
				flush()
				i++
			} else {
				current.WriteRune(r)
			}
		case '|':
			if i+1 < len(runes) && runes[i+1] == '|' {
				i++
			}
			flush()
		case ';':
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return parts
}

// authorizeShell runs the shell-command authorization algorithm against
// the allowed predicate (session plus persisted grants). It returns
// whether the command is authorized without interaction; callers fall
// through to the interactive prompt on false. A detector failure fails
// closed.
func authorizeShell(ctx context.Context, toolName, command string, detector PrefixDetector, allowed func(key string) bool) bool {
	command = strings.TrimSpace(command)
	if safeCommands[command] {
		return true
	}

	subs := splitCommand(command)
	if len(subs) == 0 {
		return false
	}

	// The whole command's injection verdict applies to every part.
	whole, err := detectPrefix(ctx, detector, command)
	if err != nil {
		logging.Warn("prefix detection failed, failing closed", "command", command, "error", err)
		return false
	}

	for _, sub := range subs {
		var precomputed *PrefixResult
		if len(subs) == 1 {
			precomputed = &whole
		}
		if !authorizeSingle(ctx, toolName, sub, detector, whole.CommandInjection, precomputed, allowed) {
			return false
		}
	}
	return true
}

func authorizeSingle(ctx context.Context, toolName, sub string, detector PrefixDetector, injection bool, precomputed *PrefixResult, allowed func(key string) bool) bool {
	if safeCommands[sub] {
		return true
	}
	if allowed(Key(toolName, map[string]any{"command": sub})) {
		return true
	}
	if injection {
		return false
	}

	result := PrefixResult{}
	if precomputed != nil {
		result = *precomputed
	} else {
		var err error
		result, err = detectPrefix(ctx, detector, sub)
		if err != nil {
			logging.Warn("prefix detection failed, failing closed", "command", sub, "error", err)
			return false
		}
	}
	if result.CommandInjection || result.Prefix == "" {
		return false
	}
	return allowed(PrefixKey(toolName, result.Prefix))
}

func detectPrefix(ctx context.Context, detector PrefixDetector, command string) (PrefixResult, error) {
	if detector == nil {
		// No detector configured: exact-match-only authorization.
		return PrefixResult{}, nil
	}
	return detector.DetectPrefix(ctx, command)
}
