package utils

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"www.github.com/Wanderer0074348/RoastRouter/src/models"
)

// MicrosPerDollar is the fixed-point scale used for all cost arithmetic.
const MicrosPerDollar = 1_000_000

// Pricing per 1M tokens, used when a route does not declare its own prices
const (
	GPT4oInputPer1M  = 2.50
	GPT4oOutputPer1M = 10.00

	GPT4oMiniInputPer1M  = 0.15
	GPT4oMiniOutputPer1M = 0.60

	LlamaInstantInputPer1M  = 0.05
	LlamaInstantOutputPer1M = 0.08
)

type ModelPrice struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// CostTable is the static provider pricing reference. It is read-only after
// construction except for Register, which is only called during startup.
type CostTable struct {
	mu     sync.RWMutex
	prices map[string]ModelPrice
}

func NewCostTable() *CostTable {
	return &CostTable{
		prices: map[string]ModelPrice{
			"gpt-4o":               {GPT4oInputPer1M, GPT4oOutputPer1M},
			"gpt-4o-mini":          {GPT4oMiniInputPer1M, GPT4oMiniOutputPer1M},
			"llama-3.1-8b-instant": {LlamaInstantInputPer1M, LlamaInstantOutputPer1M},
		},
	}
}

// Register sets or overrides the price of a model.
func (t *CostTable) Register(modelID string, price ModelPrice) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prices[modelID] = price
}

func (t *CostTable) Price(modelID string) (ModelPrice, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	price, ok := t.prices[modelID]
	return price, ok
}

// Cost prices a completed call for the given model.
func (t *CostTable) Cost(modelID string, usage models.TokenUsage, cacheDiscountRatio float64) (float64, error) {
	price, ok := t.Price(modelID)
	if !ok {
		return 0, fmt.Errorf("no pricing for model %s", modelID)
	}
	return MicrosToUSD(CostMicros(price, usage, cacheDiscountRatio)), nil
}

// CostMicros computes the cost of a call in micro-dollars, rounded up so a
// call is never billed below its price.
// Input tokens include cached tokens; the cached part is billed at
// inputPrice * cacheDiscountRatio. A ratio outside (0, 1] bills cached tokens
// at the full input price.
func CostMicros(price ModelPrice, usage models.TokenUsage, cacheDiscountRatio float64) int64 {
	inputPerMillion := dollarsToMicros(price.InputPerMillion)
	outputPerMillion := dollarsToMicros(price.OutputPerMillion)

	if cacheDiscountRatio <= 0 || cacheDiscountRatio > 1 {
		cacheDiscountRatio = 1
	}
	cachedPerMillion := int64(math.Round(float64(inputPerMillion) * cacheDiscountRatio))

	cached := int64(usage.Cached)
	if cached > int64(usage.Input) {
		cached = int64(usage.Input)
	}
	if cached < 0 {
		cached = 0
	}
	uncached := int64(usage.Input) - cached

	total := uncached*inputPerMillion + cached*cachedPerMillion + int64(usage.Output)*outputPerMillion
	if total <= 0 {
		return 0
	}
	return (total + 999_999) / 1_000_000
}

func MicrosToUSD(micros int64) float64 {
	return float64(micros) / MicrosPerDollar
}

func USDToMicros(usd float64) int64 {
	return dollarsToMicros(usd)
}

func dollarsToMicros(usd float64) int64 {
	return int64(math.Round(usd * MicrosPerDollar))
}

// EstimateTokenCount estimates token count from text (~1 token per 4 characters)
func EstimateTokenCount(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}
