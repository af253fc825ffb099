package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/config"
	"github.com/alanyoungcy/hedgebot/internal/domain"
)

func tradeConfig() config.TradeConfig {
	cfg := config.Defaults().Trade
	cfg.MinQuantity = 0.001
	cfg.MaxQuantity = 10
	cfg.QuantityStep = 0.001
	cfg.SafetyFactor = 0.5
	cfg.MinNotionalUSD = 50
	return cfg
}

func TestComputeQuantityUsesSmallerTopOfBook(t *testing.T) {
	now := time.Now()
	snap1, snap2 := profitablePair(now)
	snap2.Bids[0].Size = 3 // ask side on 1 has 5, bid side on 2 has 3

	qty, ok := ComputeQuantity(snap1, snap2, domain.OrderSideBuy, tradeConfig())
	require.True(t, ok)
	assert.InDelta(t, 1.5, qty, 1e-9, "min(5,3) * 0.5")
}

func TestComputeQuantityClampsToMax(t *testing.T) {
	now := time.Now()
	snap1, snap2 := profitablePair(now)
	cfg := tradeConfig()
	cfg.MaxQuantity = 1

	qty, ok := ComputeQuantity(snap1, snap2, domain.OrderSideBuy, cfg)
	require.True(t, ok)
	assert.Equal(t, 1.0, qty)
}

func TestComputeQuantityFloorsToStep(t *testing.T) {
	now := time.Now()
	snap1, snap2 := profitablePair(now)
	snap1.Asks[0].Size = 3.333
	snap2.Bids[0].Size = 9
	cfg := tradeConfig()
	cfg.QuantityStep = 0.1

	qty, ok := ComputeQuantity(snap1, snap2, domain.OrderSideBuy, cfg)
	require.True(t, ok)
	assert.InDelta(t, 1.6, qty, 1e-9, "3.333*0.5 floored to 0.1 steps")
}

func TestComputeQuantityFailsBelowNotional(t *testing.T) {
	now := time.Now()
	snap1, snap2 := profitablePair(now)
	snap1.Asks[0].Size = 0.5
	snap2.Bids[0].Size = 0.5
	cfg := tradeConfig()
	cfg.MinNotionalUSD = 50 // 0.25 * ~100.15 ≈ 25 USD

	_, ok := ComputeQuantity(snap1, snap2, domain.OrderSideBuy, cfg)
	assert.False(t, ok)
}

func TestComputeQuantityFailsOnEmptySide(t *testing.T) {
	now := time.Now()
	snap1, snap2 := profitablePair(now)
	snap2.Bids = nil

	_, ok := ComputeQuantity(snap1, snap2, domain.OrderSideBuy, tradeConfig())
	assert.False(t, ok)
}

func TestComputeQuantityIsIdempotent(t *testing.T) {
	now := time.Now()
	snap1, snap2 := profitablePair(now)
	cfg := tradeConfig()

	first, ok1 := ComputeQuantity(snap1, snap2, domain.OrderSideBuy, cfg)
	require.True(t, ok1)
	for i := 0; i < 20; i++ {
		qty, ok := ComputeQuantity(snap1, snap2, domain.OrderSideBuy, cfg)
		require.True(t, ok)
		assert.Equal(t, first, qty)
	}
}

func TestSpreadRateSignConvention(t *testing.T) {
	// Buying at 100 on leg1 while selling at 100.30 on leg2 earns 0.3%.
	assert.InDelta(t, 0.003, SpreadRate(domain.OrderSideBuy, 100.00, 100.30), 1e-9)
	// Selling at 100.30 on leg1 while buying at 100 on leg2 earns ~0.299%.
	assert.InDelta(t, 0.003/1.003, SpreadRate(domain.OrderSideSell, 100.30, 100.00), 1e-9)
	// Adverse prices produce a negative rate.
	assert.Negative(t, SpreadRate(domain.OrderSideBuy, 100.30, 100.00))
}
