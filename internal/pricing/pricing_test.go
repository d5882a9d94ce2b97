package pricing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlfredDev/orchestratord/internal/model"
	"github.com/AlfredDev/orchestratord/internal/pricing"
)

func TestResolveTier(t *testing.T) {
	cases := map[string]model.Tier{
		"claude-opus-4-5":     model.TierOpus,
		"claude-sonnet-4-5":   model.TierSonnet,
		"CLAUDE-HAIKU-4-5":    model.TierHaiku,
		"gpt-4o":              model.TierUnknown,
		"anthropic/opus-mini": model.TierOpus,
	}
	for in, want := range cases {
		assert.Equal(t, want, pricing.ResolveTier(in), in)
	}
}

func TestCostMonotoneInEachComponent(t *testing.T) {
	e := pricing.NewEngine()
	base := model.TokenCounts{Input: 1000, Output: 500, CacheWrite: 100, CacheRead: 200}
	baseCost := e.Cost("claude-sonnet-4-5", base).Total

	more := base
	more.Input += 1000
	require.Greater(t, e.Cost("claude-sonnet-4-5", more).Total, baseCost)

	more = base
	more.Output += 1000
	require.Greater(t, e.Cost("claude-sonnet-4-5", more).Total, baseCost)
}

func TestUnknownTierIsZeroCostButRecorded(t *testing.T) {
	e := pricing.NewEngine()
	cb := e.Cost("some-future-model", model.TokenCounts{Input: 1000, Output: 1000})
	assert.Zero(t, cb.Total)
}

func TestSavingsNonNegativeWhenCacheUsed(t *testing.T) {
	e := pricing.NewEngine()
	cb := e.Cost("claude-sonnet-4-5", model.TokenCounts{Input: 10000, Output: 3000, CacheRead: 9000})
	assert.GreaterOrEqual(t, cb.Savings, 0.0)
	assert.InDelta(t, cb.Input+cb.Output+cb.CacheWrite+cb.CacheRead, cb.Total, 1e-6)
}

func TestRefreshSwapsTableAtomically(t *testing.T) {
	e := pricing.NewEngine()
	e.Refresh([]model.PricingEntry{
		{Model: "custom-model", Tier: model.TierSonnet, InputPer1M: 1.0, OutputPer1M: 2.0},
	})
	cb := e.Cost("custom-model", model.TokenCounts{Input: 1_000_000, Output: 1_000_000})
	assert.InDelta(t, 3.0, cb.Total, 1e-9)
	// The built-in rows are gone after a refresh — Refresh replaces, not merges.
	assert.Zero(t, e.Cost("claude-sonnet-4-5", model.TokenCounts{Input: 1_000_000}).Total)
}
