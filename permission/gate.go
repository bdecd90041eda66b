package permission

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/keel-agent/keel/config"
	"github.com/keel-agent/keel/logging"
	"github.com/keel-agent/keel/tool"
)

// ErrDenied is returned when the user (or policy) refuses a tool call.
var ErrDenied = errors.New("permission denied")

// ErrAborted is returned when a permission request is cancelled. Callers
// must distinguish it from denial: cancellation aborts the turn, denial
// only ends it.
var ErrAborted = errors.New("permission request aborted")

// Decision is an interactive prompt outcome.
type Decision int

const (
	Deny Decision = iota
	AllowOnce
	AllowSession
	AllowAlways
)

// Request is what the prompter presents to the user.
type Request struct {
	Tool  string
	Key   string
	Input map[string]any
}

// Prompter asks the user to authorize a tool call. Implementations must
// honor ctx cancellation and return its error.
type Prompter interface {
	RequestPermission(ctx context.Context, req Request) (Decision, error)
}

// Gate is the tiered authorization protocol. Tiers, in order: the bypass
// flag, the in-session grant cache, the shell-command algorithm (for
// shell inputs), persisted configuration grants, and finally the
// interactive prompt.
//
// The session grant cache is process-wide by design: a grant made while
// one session runs applies to every session in the process, and is lost
// when the process exits.
type Gate struct {
	bypass   bool
	project  *config.Project
	prompter Prompter
	detector PrefixDetector

	mu      sync.Mutex
	session map[string]map[string]bool // tool name -> granted keys
}

// NewGate builds a gate. project may be nil (no persisted grants),
// prompter may be nil (fall-through requests are denied), detector may be
// nil (shell prefix grants disabled, exact match only).
func NewGate(project *config.Project, prompter Prompter, detector PrefixDetector) *Gate {
	bypass := false
	if project != nil {
		bypass = project.SkipPermissions
	}
	return &Gate{
		bypass:   bypass,
		project:  project,
		prompter: prompter,
		detector: detector,
		session:  make(map[string]map[string]bool),
	}
}

// SetBypass toggles the skip-all-permissions flag.
func (g *Gate) SetBypass(on bool) { g.bypass = on }

// GrantSession inserts a key into the session cache.
func (g *Gate) GrantSession(toolName, key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session[toolName] == nil {
		g.session[toolName] = make(map[string]bool)
	}
	g.session[toolName][key] = true
}

func (g *Gate) sessionGranted(toolName, key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.session[toolName][key]
}

// Check is the non-interactive fast path: it reports whether the call is
// already authorized by the bypass flag, a session grant, the shell
// algorithm, or a persisted grant. It never prompts.
func (g *Gate) Check(ctx context.Context, t tool.Tool, input map[string]any) bool {
	if g.bypass {
		return true
	}
	name := t.Name()
	key := Key(name, input)

	if g.sessionGranted(name, key) {
		return true
	}

	if command, ok := input["command"].(string); ok {
		allowed := func(k string) bool {
			if g.sessionGranted(name, k) {
				return true
			}
			return g.project != nil && g.project.IsAllowed(k)
		}
		return authorizeShell(ctx, name, command, g.detector, allowed)
	}

	// Persisted grants never cover file-mutating tools.
	if t.MutatesFiles() {
		return false
	}
	if g.project != nil && (g.project.IsAllowed(key) || g.project.IsAllowed(name)) {
		return true
	}
	return false
}

// Authorize runs the full protocol for one call: the fast path first,
// then the interactive prompt. It returns nil on grant, ErrDenied on
// refusal, and ErrAborted when the prompt is cancelled.
func (g *Gate) Authorize(ctx context.Context, t tool.Tool, input map[string]any) error {
	if !t.NeedsPermission(input) {
		return nil
	}
	if g.Check(ctx, t, input) {
		return nil
	}
	return g.request(ctx, t, input)
}

func (g *Gate) request(ctx context.Context, t tool.Tool, input map[string]any) error {
	if g.prompter == nil {
		return fmt.Errorf("%w: no interactive prompter configured", ErrDenied)
	}
	if err := ctx.Err(); err != nil {
		return ErrAborted
	}

	name := t.Name()
	key := Key(name, input)
	decision, err := g.prompter.RequestPermission(ctx, Request{Tool: name, Key: key, Input: input})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return ErrAborted
		}
		return fmt.Errorf("permission prompt failed: %w", err)
	}

	switch decision {
	case AllowOnce:
		return nil
	case AllowSession:
		g.GrantSession(name, key)
		return nil
	case AllowAlways:
		g.GrantSession(name, key)
		if !t.MutatesFiles() && g.project != nil {
			if err := g.project.AddAllowedTool(key); err != nil {
				logging.Warn("failed to persist permission grant", "key", key, "error", err)
			}
		}
		return nil
	default:
		return ErrDenied
	}
}
