package llm

import (
	"math"
	"testing"
	"time"
)

func TestPricingFor(t *testing.T) {
	t.Run("longest prefix wins", func(t *testing.T) {
		mini := PricingFor("gpt-4o-mini-2024-07-18")
		full := PricingFor("gpt-4o-2024-08-06")
		if mini.InputPerMTok >= full.InputPerMTok {
			t.Errorf("mini input rate %v should be below full rate %v", mini.InputPerMTok, full.InputPerMTok)
		}
	})

	t.Run("unknown model falls back", func(t *testing.T) {
		got := PricingFor("mystery-model-9000")
		if got != defaultPricing {
			t.Errorf("PricingFor(unknown) = %+v, want default", got)
		}
	})
}

func TestPricingCost(t *testing.T) {
	p := Pricing{InputPerMTok: 3.0, OutputPerMTok: 15.0, CacheReadPerMTok: 0.3, CacheWritePerMTok: 3.75}
	u := Usage{InputTokens: 1_000_000, OutputTokens: 100_000, CacheReadTokens: 2_000_000, CacheWriteTokens: 400_000}
	want := 3.0 + 1.5 + 0.6 + 1.5
	if got := p.Cost(u); math.Abs(got-want) > 1e-9 {
		t.Errorf("Cost() = %v, want %v", got, want)
	}
}

func TestCostTrackerAccumulates(t *testing.T) {
	var tracker CostTracker
	tracker.Record("claude-sonnet-4-5", Usage{InputTokens: 100, OutputTokens: 50}, 200*time.Millisecond)
	tracker.Record("claude-sonnet-4-5", Usage{InputTokens: 30, OutputTokens: 10, CacheReadTokens: 500}, 100*time.Millisecond)

	s := tracker.Summary()
	if s.Queries != 2 {
		t.Errorf("Queries = %d, want 2", s.Queries)
	}
	if s.Usage.InputTokens != 130 || s.Usage.OutputTokens != 60 || s.Usage.CacheReadTokens != 500 {
		t.Errorf("Usage = %+v", s.Usage)
	}
	if s.APITime != 300*time.Millisecond {
		t.Errorf("APITime = %v", s.APITime)
	}
	if s.CostUSD <= 0 {
		t.Errorf("CostUSD = %v, want positive", s.CostUSD)
	}
}
