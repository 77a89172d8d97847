package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"www.github.com/Wanderer0074348/RoastRouter/src/models"
)

func TestCostMicros_ExactMillionInputTokens(t *testing.T) {
	price := ModelPrice{InputPerMillion: 3.00, OutputPerMillion: 15.00}
	usage := models.TokenUsage{Input: 1_000_000}

	assert.Equal(t, int64(3_000_000), CostMicros(price, usage, 1))
	assert.Equal(t, 3.00, MicrosToUSD(CostMicros(price, usage, 1)))
}

func TestCostMicros_InputAndOutput(t *testing.T) {
	price := ModelPrice{InputPerMillion: 2.50, OutputPerMillion: 10.00}
	usage := models.TokenUsage{Input: 2000, Output: 500}

	// 2000*2.5/1e6 + 500*10/1e6 = 0.005 + 0.005
	assert.Equal(t, int64(10_000), CostMicros(price, usage, 1))
}

func TestCostMicros_SmallCallsRoundUp(t *testing.T) {
	price := ModelPrice{InputPerMillion: 0.15, OutputPerMillion: 0.60}

	// 4*0.15 + 2*0.60 = 1.8 micro-dollars
	assert.Equal(t, int64(2), CostMicros(price, models.TokenUsage{Input: 4, Output: 2}, 1))
	assert.Equal(t, int64(1), CostMicros(price, models.TokenUsage{Input: 1}, 1))
	assert.Zero(t, CostMicros(price, models.TokenUsage{}, 1))
}

func TestCostMicros_CachedTokensUseProviderDiscount(t *testing.T) {
	price := ModelPrice{InputPerMillion: 2.00}
	usage := models.TokenUsage{Input: 1_000_000, Cached: 500_000}

	half := CostMicros(price, usage, 0.5)
	tenth := CostMicros(price, usage, 0.1)

	assert.Equal(t, int64(1_500_000), half)
	assert.Equal(t, int64(1_100_000), tenth)
}

func TestCostMicros_InvalidRatioBillsFullPrice(t *testing.T) {
	price := ModelPrice{InputPerMillion: 2.00}
	usage := models.TokenUsage{Input: 1_000_000, Cached: 1_000_000}

	assert.Equal(t, int64(2_000_000), CostMicros(price, usage, 0))
	assert.Equal(t, int64(2_000_000), CostMicros(price, usage, 1.5))
}

func TestCostMicros_CachedNeverExceedsInput(t *testing.T) {
	price := ModelPrice{InputPerMillion: 1.00}
	usage := models.TokenUsage{Input: 100, Cached: 1000}

	assert.Equal(t, CostMicros(price, models.TokenUsage{Input: 100, Cached: 100}, 0.5), CostMicros(price, usage, 0.5))
}

func TestCostTable_UnknownModel(t *testing.T) {
	table := NewCostTable()

	_, err := table.Cost("mystery-model", models.TokenUsage{Input: 10}, 1)
	assert.Error(t, err)
}

func TestCostTable_Register(t *testing.T) {
	table := NewCostTable()
	table.Register("claude-sonnet", ModelPrice{InputPerMillion: 3.00, OutputPerMillion: 15.00})

	cost, err := table.Cost("claude-sonnet", models.TokenUsage{Input: 1_000_000}, 1)
	require.NoError(t, err)
	assert.Equal(t, 3.00, cost)
}

func TestEstimateTokenCount(t *testing.T) {
	assert.Equal(t, 0, EstimateTokenCount("   "))
	assert.Equal(t, 1, EstimateTokenCount("hey"))
	assert.Equal(t, 3, EstimateTokenCount("hey there"))
}
