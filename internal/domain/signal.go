package domain

import "time"

// TradeSignal is a paired-trade candidate built from the two current book
// snapshots. Signals are ephemeral: one is constructed per evaluation and
// never persisted.
type TradeSignal struct {
	ID     string
	Symbol string

	// Leg 1 executes on exchange 1, leg 2 on exchange 2.
	Side1  OrderSide
	Side2  OrderSide
	Price1 float64
	Price2 float64

	Spread     float64 // price1 - price2
	ProfitRate float64 // expected per-trade spread profit rate
	Quantity   float64 // proposed quantity, set by sizing

	FundingDiffAPY float64 // annualized funding-rate differential, when known

	// Timestamps of the snapshots the signal was derived from.
	BookTime1 time.Time
	BookTime2 time.Time
	CreatedAt time.Time
}

// NotionalUSD estimates the per-leg dollar value of the signal at the
// average of the two leg prices.
func (s TradeSignal) NotionalUSD() float64 {
	return s.Quantity * (s.Price1 + s.Price2) / 2
}
