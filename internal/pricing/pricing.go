// Package pricing implements the daemon's cost engine (C1): a
// case-insensitive tier resolver and a per-1M-token cost calculator,
// grounded on services/gateway/provider/pricing.go's ModelPricing map
// and services/gateway/metering.go's CostEngine, generalized from a
// provider/model lookup to the daemon's four-way token-class split.
package pricing

import (
	"math"
	"strings"
	"sync/atomic"

	"github.com/AlfredDev/orchestratord/internal/model"
)

// Table is a read-mostly snapshot of the pricing data. Refresh swaps it
// atomically so callers never observe a half-updated table.
type Table struct {
	entries map[string]model.PricingEntry // key: lowercased model name
}

// Engine resolves tiers and computes costs against the current Table.
type Engine struct {
	current atomic.Pointer[Table]
}

// NewEngine builds an Engine preloaded with the built-in rate table.
// Production deployments refresh this from the persisted pricing table
// at startup and again whenever it changes (see Refresh).
func NewEngine() *Engine {
	e := &Engine{}
	e.current.Store(defaultTable())
	return e
}

// Refresh atomically swaps in a new pricing table loaded from
// persistence, without requiring a daemon restart.
func (e *Engine) Refresh(entries []model.PricingEntry) {
	t := &Table{entries: make(map[string]model.PricingEntry, len(entries))}
	for _, pe := range entries {
		t.entries[strings.ToLower(pe.Model)] = pe
	}
	e.current.Store(t)
}

// AllPricing returns a copy of every entry currently loaded.
func (e *Engine) AllPricing() []model.PricingEntry {
	t := e.current.Load()
	out := make([]model.PricingEntry, 0, len(t.entries))
	for _, pe := range t.entries {
		out = append(out, pe)
	}
	return out
}

// ResolveTier applies a case-insensitive substring match over the
// well-known model family names. Unrecognized models resolve to Unknown
// rather than erroring — the call is still recorded with zero cost.
func ResolveTier(modelName string) model.Tier {
	lower := strings.ToLower(modelName)
	switch {
	case strings.Contains(lower, "opus"):
		return model.TierOpus
	case strings.Contains(lower, "sonnet"):
		return model.TierSonnet
	case strings.Contains(lower, "haiku"):
		return model.TierHaiku
	default:
		return model.TierUnknown
	}
}

// Cost computes the per-call cost breakdown for a model/token split.
// Unknown tiers and models absent from the table both cost zero but are
// still returned (never an error) — the call is recorded regardless.
func (e *Engine) Cost(modelName string, tokens model.TokenCounts) model.CostBreakdown {
	t := e.current.Load()
	pe, ok := t.entries[strings.ToLower(modelName)]
	if !ok {
		return model.CostBreakdown{}
	}

	input := classCost(tokens.Input, pe.InputPer1M)
	output := classCost(tokens.Output, pe.OutputPer1M)
	cacheWrite := classCost(tokens.CacheWrite, pe.CacheWritePer1M)
	cacheRead := classCost(tokens.CacheRead, pe.CacheReadPer1M)
	total := round6(input + output + cacheWrite + cacheRead)

	// Would-be cost: cache reads/writes priced as regular input instead
	// of at their discounted/premium rate.
	wouldBe := round6(input + output + classCost(tokens.CacheWrite+tokens.CacheRead, pe.InputPer1M))

	return model.CostBreakdown{
		Input:      input,
		Output:     output,
		CacheWrite: cacheWrite,
		CacheRead:  cacheRead,
		Total:      total,
		WouldBe:    wouldBe,
		Savings:    round6(wouldBe - total),
	}
}

func classCost(tokens int64, perMillion float64) float64 {
	return round6(float64(tokens) / 1_000_000.0 * perMillion)
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// defaultTable is the built-in rate table, in the shape of
// services/gateway/provider/pricing.go's DefaultPricing — per-1M-token
// USD rates keyed by model family. Cache-read/write rates follow the
// provider convention of pricing reads below, and writes above, the
// regular input rate.
func defaultTable() *Table {
	rows := []model.PricingEntry{
		{Model: "claude-opus-4-5", Tier: model.TierOpus, Provider: "anthropic", InputPer1M: 15.00, OutputPer1M: 75.00, CacheReadPer1M: 1.50, CacheWritePer1M: 18.75},
		{Model: "claude-sonnet-4-5", Tier: model.TierSonnet, Provider: "anthropic", InputPer1M: 3.00, OutputPer1M: 15.00, CacheReadPer1M: 0.30, CacheWritePer1M: 3.75},
		{Model: "claude-haiku-4-5", Tier: model.TierHaiku, Provider: "anthropic", InputPer1M: 0.80, OutputPer1M: 4.00, CacheReadPer1M: 0.08, CacheWritePer1M: 1.00},
		{Model: "claude-3-5-sonnet-20241022", Tier: model.TierSonnet, Provider: "anthropic", InputPer1M: 3.00, OutputPer1M: 15.00, CacheReadPer1M: 0.30, CacheWritePer1M: 3.75},
		{Model: "claude-3-5-haiku-20241022", Tier: model.TierHaiku, Provider: "anthropic", InputPer1M: 0.80, OutputPer1M: 4.00, CacheReadPer1M: 0.08, CacheWritePer1M: 1.00},
		{Model: "claude-3-opus-20240229", Tier: model.TierOpus, Provider: "anthropic", InputPer1M: 15.00, OutputPer1M: 75.00, CacheReadPer1M: 1.50, CacheWritePer1M: 18.75},
	}
	t := &Table{entries: make(map[string]model.PricingEntry, len(rows))}
	for _, pe := range rows {
		t.entries[strings.ToLower(pe.Model)] = pe
	}
	return t
}
