// Package usage implements the Usage Tracker (U) and its Cost Calculator
// (spec §4.4): best-effort recording of token usage per orchestration,
// per-model cost computation, and daily/monthly budget status.
package usage

import (
	"strings"
	"sync"
)

// ModelPrice holds per-1K-token pricing for one model, including the two
// cache tiers the spec's cost formula needs (spec §3: total =
// input+output+cache-create+cache-read; spec §4.4: cache savings =
// cache-read-tokens × (input-price − cache-read-price)).
type ModelPrice struct {
	InputPer1K       float64
	OutputPer1K      float64
	CacheCreatePer1K float64
	CacheReadPer1K   float64
}

// PricingTable is a provider-agnostic model->price table with a
// wildcard fallback per provider, mirroring the shape (and default
// numbers, where the model families overlap) of a production
// multi-provider cost calculator.
type PricingTable struct {
	mu     sync.RWMutex
	prices map[string]ModelPrice
}

// defaultPrices seeds common model families. Unknown models fall back
// to "*". These are illustrative defaults, not a live pricing feed —
// spec §4.4 treats exact pricing as operator-configurable.
var defaultPrices = map[string]ModelPrice{
	"claude-opus-4":      {InputPer1K: 0.015, OutputPer1K: 0.075, CacheCreatePer1K: 0.01875, CacheReadPer1K: 0.0015},
	"claude-sonnet-4":    {InputPer1K: 0.003, OutputPer1K: 0.015, CacheCreatePer1K: 0.00375, CacheReadPer1K: 0.0003},
	"claude-3-5-sonnet":  {InputPer1K: 0.003, OutputPer1K: 0.015, CacheCreatePer1K: 0.00375, CacheReadPer1K: 0.0003},
	"claude-3-5-haiku":   {InputPer1K: 0.0008, OutputPer1K: 0.004, CacheCreatePer1K: 0.001, CacheReadPer1K: 0.00008},
	"gpt-4o":             {InputPer1K: 0.0025, OutputPer1K: 0.01, CacheCreatePer1K: 0.0025, CacheReadPer1K: 0.00125},
	"gpt-4o-mini":        {InputPer1K: 0.00015, OutputPer1K: 0.0006, CacheCreatePer1K: 0.00015, CacheReadPer1K: 0.000075},
	"*":                  {InputPer1K: 0.003, OutputPer1K: 0.015, CacheCreatePer1K: 0.00375, CacheReadPer1K: 0.0003},
}

// NewPricingTable builds a table seeded with defaultPrices.
func NewPricingTable() *PricingTable {
	t := &PricingTable{prices: make(map[string]ModelPrice, len(defaultPrices))}
	for model, price := range defaultPrices {
		t.prices[model] = price
	}
	return t
}

// Set overrides (or adds) the price for a model, for operator-supplied
// pricing config.
func (t *PricingTable) Set(model string, price ModelPrice) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prices[strings.ToLower(model)] = price
}

// Price looks up a model's price, falling back to the wildcard entry.
func (t *PricingTable) Price(model string) ModelPrice {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if p, ok := t.prices[strings.ToLower(model)]; ok {
		return p
	}
	return t.prices["*"]
}

// Cost computes the USD cost of one usage event from its four token
// buckets (spec §3's invariant: total = input+output+cache-create+
// cache-read).
func (t *PricingTable) Cost(model string, input, output, cacheCreate, cacheRead int64) float64 {
	p := t.Price(model)
	return float64(input)/1000*p.InputPer1K +
		float64(output)/1000*p.OutputPer1K +
		float64(cacheCreate)/1000*p.CacheCreatePer1K +
		float64(cacheRead)/1000*p.CacheReadPer1K
}

// CacheSavings returns how much cheaper a cache-read token was than a
// fresh input token would have been, for the given model and read
// count (spec §4.4's cache-savings formula).
func (t *PricingTable) CacheSavings(model string, cacheReadTokens int64) float64 {
	p := t.Price(model)
	perTokenSavings := (p.InputPer1K - p.CacheReadPer1K) / 1000
	if perTokenSavings < 0 {
		perTokenSavings = 0
	}
	return float64(cacheReadTokens) * perTokenSavings
}
