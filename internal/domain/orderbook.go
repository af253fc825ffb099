package domain

import "time"

// PriceLevel is a single price+size entry in an orderbook.
type PriceLevel struct {
	Price float64
	Size  float64
}

// OrderBookSnapshot is an immutable view of one exchange's book for a symbol.
// Bids are sorted descending by price, asks ascending. A snapshot is handed
// out by value; its level slices are never mutated after construction.
type OrderBookSnapshot struct {
	Exchange  string
	Symbol    string
	Bids      []PriceLevel
	Asks      []PriceLevel
	Timestamp time.Time
}

// BestBid returns the highest bid price, or 0 when the bid side is empty.
func (s OrderBookSnapshot) BestBid() float64 {
	if len(s.Bids) == 0 {
		return 0
	}
	return s.Bids[0].Price
}

// BestAsk returns the lowest ask price, or 0 when the ask side is empty.
func (s OrderBookSnapshot) BestAsk() float64 {
	if len(s.Asks) == 0 {
		return 0
	}
	return s.Asks[0].Price
}

// MidPrice returns the midpoint of the best bid and ask, or 0 when either
// side is empty.
func (s OrderBookSnapshot) MidPrice() float64 {
	bid, ask := s.BestBid(), s.BestAsk()
	if bid <= 0 || ask <= 0 {
		return 0
	}
	return (bid + ask) / 2
}

// SpreadPct returns the bid/ask spread as a fraction of the mid price.
func (s OrderBookSnapshot) SpreadPct() float64 {
	mid := s.MidPrice()
	if mid <= 0 {
		return 0
	}
	return (s.BestAsk() - s.BestBid()) / mid
}

// TopSize returns the displayed size at the best level of the given side.
func (s OrderBookSnapshot) TopSize(side OrderSide) float64 {
	// A buy consumes ask liquidity, a sell consumes bid liquidity.
	if side == OrderSideBuy {
		if len(s.Asks) == 0 {
			return 0
		}
		return s.Asks[0].Size
	}
	if len(s.Bids) == 0 {
		return 0
	}
	return s.Bids[0].Size
}

// TakePrice returns the price a market order on the given side would cross
// at: the best ask for buys, the best bid for sells.
func (s OrderBookSnapshot) TakePrice(side OrderSide) float64 {
	if side == OrderSideBuy {
		return s.BestAsk()
	}
	return s.BestBid()
}

// Age returns the elapsed time since the snapshot was last updated.
func (s OrderBookSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.Timestamp)
}

// BookDelta is a raw level update decoded by an exchange feed collaborator.
// When Snapshot is true the delta replaces the full book; otherwise levels
// are merged (size 0 removes a level, nonzero upserts).
type BookDelta struct {
	Symbol    string
	Bids      []PriceLevel
	Asks      []PriceLevel
	Snapshot  bool
	Timestamp time.Time
}
