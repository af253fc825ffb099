// Package engine implements the hedge decision loop: dynamic sizing, the
// risk gate, paired-leg execution, and realized-quality feedback.
package engine

import (
	"math"

	"github.com/alanyoungcy/hedgebot/internal/config"
	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// ComputeQuantity derives the trade quantity from the smaller of the two
// books' top-of-book size on the side each leg would consume, scaled by the
// safety factor, clamped to [MinQuantity, MaxQuantity] and floored to the
// quantity step. ok is false when no tradeable quantity exists this cycle,
// which is a routine outcome: displayed depth too thin, or the clamped
// notional below the configured minimum.
func ComputeQuantity(snap1, snap2 domain.OrderBookSnapshot, side1 domain.OrderSide, cfg config.TradeConfig) (qty float64, ok bool) {
	side2 := side1.Opposite()

	top1 := snap1.TopSize(side1)
	top2 := snap2.TopSize(side2)
	if top1 <= 0 || top2 <= 0 {
		return 0, false
	}

	qty = math.Min(top1, top2) * cfg.SafetyFactor
	if qty > cfg.MaxQuantity {
		qty = cfg.MaxQuantity
	}
	if qty < cfg.MinQuantity {
		return 0, false
	}
	if cfg.QuantityStep > 0 {
		qty = math.Floor(qty/cfg.QuantityStep) * cfg.QuantityStep
	}
	if qty < cfg.MinQuantity {
		return 0, false
	}

	p1 := snap1.TakePrice(side1)
	p2 := snap2.TakePrice(side2)
	if p1 <= 0 || p2 <= 0 {
		return 0, false
	}
	notional := qty * (p1 + p2) / 2
	if notional < cfg.MinNotionalUSD {
		return 0, false
	}
	return qty, true
}

// SpreadRate returns the per-trade rate captured by crossing both books at
// the given prices: buying leg1 profits when leg2's price is higher, selling
// leg1 profits when leg2's price is lower.
func SpreadRate(side1 domain.OrderSide, p1, p2 float64) float64 {
	if p1 <= 0 {
		return 0
	}
	if side1 == domain.OrderSideBuy {
		return (p2 - p1) / p1
	}
	return (p1 - p2) / p1
}
