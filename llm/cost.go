package llm

import (
	"strings"
	"sync"
	"time"
)

// Pricing holds per-model token prices in USD per million tokens. Cache
// reads and writes are priced independently of plain input tokens.
type Pricing struct {
	InputPerMTok      float64
	OutputPerMTok     float64
	CacheReadPerMTok  float64
	CacheWritePerMTok float64
}

// Cost computes the dollar cost of a usage record.
func (p Pricing) Cost(u Usage) float64 {
	const mtok = 1_000_000
	return float64(u.InputTokens)*p.InputPerMTok/mtok +
		float64(u.OutputTokens)*p.OutputPerMTok/mtok +
		float64(u.CacheReadTokens)*p.CacheReadPerMTok/mtok +
		float64(u.CacheWriteTokens)*p.CacheWritePerMTok/mtok
}

// defaultPricing is applied when a model has no table entry, so totals
// stay roughly meaningful rather than silently reading zero.
var defaultPricing = Pricing{InputPerMTok: 3.0, OutputPerMTok: 15.0, CacheReadPerMTok: 0.3, CacheWritePerMTok: 3.75}

// pricingTable maps model name prefixes to prices. Longest prefix wins.
var pricingTable = map[string]Pricing{
	"claude-opus":      {InputPerMTok: 15.0, OutputPerMTok: 75.0, CacheReadPerMTok: 1.5, CacheWritePerMTok: 18.75},
	"claude-sonnet":    {InputPerMTok: 3.0, OutputPerMTok: 15.0, CacheReadPerMTok: 0.3, CacheWritePerMTok: 3.75},
	"claude-haiku":     {InputPerMTok: 0.8, OutputPerMTok: 4.0, CacheReadPerMTok: 0.08, CacheWritePerMTok: 1.0},
	"claude-3-5-haiku": {InputPerMTok: 0.8, OutputPerMTok: 4.0, CacheReadPerMTok: 0.08, CacheWritePerMTok: 1.0},
	"gpt-4o-mini":      {InputPerMTok: 0.15, OutputPerMTok: 0.6, CacheReadPerMTok: 0.075},
	"gpt-4o":           {InputPerMTok: 2.5, OutputPerMTok: 10.0, CacheReadPerMTok: 1.25},
	"gpt-4.1-mini":     {InputPerMTok: 0.4, OutputPerMTok: 1.6, CacheReadPerMTok: 0.1},
	"gpt-4.1":          {InputPerMTok: 2.0, OutputPerMTok: 8.0, CacheReadPerMTok: 0.5},
	"o3":               {InputPerMTok: 2.0, OutputPerMTok: 8.0, CacheReadPerMTok: 0.5},
}

// PricingFor returns the price entry for a model, falling back to a
// generic rate for unknown models.
func PricingFor(model string) Pricing {
	best := ""
	for prefix := range pricingTable {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return defaultPricing
	}
	return pricingTable[best]
}

// CostTracker accumulates token usage, dollar cost, and wall-clock time
// across queries. Safe for concurrent use.
type CostTracker struct {
	mu      sync.Mutex
	usage   Usage
	costUSD float64
	apiTime time.Duration
	queries int
}

// Record adds one completed query to the running totals.
func (t *CostTracker) Record(model string, usage Usage, elapsed time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.usage = t.usage.Add(usage)
	t.costUSD += PricingFor(model).Cost(usage)
	t.apiTime += elapsed
	t.queries++
}

// CostSummary is a snapshot of accumulated totals.
type CostSummary struct {
	Usage   Usage
	CostUSD float64
	APITime time.Duration
	Queries int
}

// Summary returns the current totals.
func (t *CostTracker) Summary() CostSummary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return CostSummary{Usage: t.usage, CostUSD: t.costUSD, APITime: t.apiTime, Queries: t.queries}
}
