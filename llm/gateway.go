package llm

import (
	"context"
	"sync"
	"time"

	"github.com/keel-agent/keel/logging"
)

// Gateway is the backend-agnostic query facade. It resolves the backend
// for a request, applies memoized wire-quirk corrections, runs the call
// under the retry policy, fails over once to the fallback backend when
// the primary is exhausted, and records token usage and cost.
//
// The quirk memo is process-wide and shared across sessions: once a
// (backend, model) pair is known to need a correction, every later query
// applies it up front instead of repeating the failed attempt.
type Gateway struct {
	primary  string
	fallback string
	policy   RetryPolicy
	costs    CostTracker

	mu       sync.Mutex
	backends map[string]Backend
	memo     map[string][]Correction
}

// NewGateway builds a gateway with the given primary and fallback backend
// names. The fallback may be empty or equal to the primary, in which case
// no failover attempt is made.
func NewGateway(primary, fallback string, backends ...Backend) *Gateway {
	g := &Gateway{
		primary:  primary,
		fallback: fallback,
		policy:   DefaultRetryPolicy(),
		backends: make(map[string]Backend),
		memo:     make(map[string][]Correction),
	}
	for _, b := range backends {
		g.backends[b.Name()] = b
	}
	return g
}

// Register adds or replaces a backend adapter.
func (g *Gateway) Register(b Backend) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.backends[b.Name()] = b
}

// SetRetryPolicy overrides the default retry policy.
func (g *Gateway) SetRetryPolicy(policy RetryPolicy) { g.policy = policy }

// Costs returns the accumulated usage and cost totals.
func (g *Gateway) Costs() CostSummary { return g.costs.Summary() }

// Query issues one completion. The backend is taken from req.Backend when
// set, else the configured primary. If the resolved backend fails after
// exhausting retries and a distinct fallback is configured, one single
// attempt is made against the fallback; if that also fails, the original
// error is surfaced. An aborted query is never failed over.
func (g *Gateway) Query(ctx context.Context, req Request) (*Response, error) {
	name := req.Backend
	if name == "" {
		name = g.primary
	}
	backend, ok := g.lookup(name)
	if !ok {
		return nil, &ConfigurationError{GatewayError: GatewayError{Message: "unknown backend: " + name}}
	}

	resp, err := g.queryBackend(ctx, backend, req)
	if err == nil {
		return resp, nil
	}
	if IsAborted(err) || g.fallback == "" || g.fallback == name {
		return nil, err
	}
	fb, ok := g.lookup(g.fallback)
	if !ok {
		return nil, err
	}
	logging.Warn("primary backend failed, trying fallback", "primary", name, "fallback", g.fallback, "error", err)
	if resp, fbErr := g.queryBackend(ctx, fb, req); fbErr == nil {
		return resp, nil
	}
	return nil, err
}

// queryBackend runs the retry loop against one backend, detecting and
// memoizing wire-quirk corrections along the way.
func (g *Gateway) queryBackend(ctx context.Context, backend Backend, req Request) (*Response, error) {
	cur := req
	for _, c := range g.corrections(backend.Name(), req.Model) {
		cur = c.Apply(cur)
	}

	// A single call tolerates at most one new correction per quirk code;
	// a payload that keeps failing after correction is a real error.
	const maxCorrections = 2
	for fixes := 0; ; fixes++ {
		start := time.Now()
		resp, err := Retry(ctx, g.policy, func(ctx context.Context) (*Response, error) {
			return backend.Complete(ctx, cur)
		})
		if err == nil {
			g.costs.Record(resp.Model, resp.Usage, time.Since(start))
			return resp, nil
		}
		if fixes >= maxCorrections {
			return nil, err
		}
		detector, ok := backend.(QuirkDetector)
		if !ok {
			return nil, err
		}
		correction, found := detector.DetectQuirk(cur, err)
		if !found {
			return nil, err
		}
		logging.Debug("applying wire-quirk correction", "backend", backend.Name(), "model", cur.Model, "code", correction.Code)
		g.memoize(backend.Name(), cur.Model, correction)
		cur = correction.Apply(cur)
	}
}

func (g *Gateway) lookup(name string) (Backend, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.backends[name]
	return b, ok
}

func memoKey(backend, model string) string { return backend + "\x00" + model }

func (g *Gateway) corrections(backend, model string) []Correction {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.memo[memoKey(backend, model)]
}

func (g *Gateway) memoize(backend, model string, c Correction) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := memoKey(backend, model)
	for _, existing := range g.memo[key] {
		if existing.Code == c.Code {
			return
		}
	}
	g.memo[key] = append(g.memo[key], c)
}

// Querier is the surface consumed by the turn engine and the permission
// gate's command classifier.
type Querier interface {
	Query(ctx context.Context, req Request) (*Response, error)
}

var _ Querier = (*Gateway)(nil)
