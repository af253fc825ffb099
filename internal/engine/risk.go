package engine

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/config"
	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// Rejection reasons, in gate order. A decision carries exactly the first
// failed check.
const (
	RejectFreshness = "freshness"
	RejectSpread    = "spread"
	RejectDepth     = "depth"
	RejectProfit    = "profit"
)

// Decision is the risk gate's verdict on one candidate signal.
type Decision struct {
	Accepted bool
	Reason   string
	Detail   string
}

// Gate applies the pre-trade risk checks. Evaluate is a pure function of its
// inputs; rejections are routine control flow, counted by the engine rather
// than escalated.
type Gate struct {
	cfg config.RiskConfig
}

// NewGate builds a gate from static risk configuration.
func NewGate(cfg config.RiskConfig) *Gate {
	return &Gate{cfg: cfg}
}

// Evaluate checks the candidate against both books in fixed order, stopping
// at the first failure: freshness, per-book spread, top-of-book depth, then
// profitability against minRate (the dynamically adjusted minimum).
func (g *Gate) Evaluate(snap1, snap2 domain.OrderBookSnapshot, sig domain.TradeSignal, minRate float64, now time.Time) Decision {
	maxAge := g.cfg.MaxBookStaleness.Duration
	if age := snap1.Age(now); age > maxAge {
		return reject(RejectFreshness, "%s book %s old", snap1.Exchange, age.Round(time.Millisecond))
	}
	if age := snap2.Age(now); age > maxAge {
		return reject(RejectFreshness, "%s book %s old", snap2.Exchange, age.Round(time.Millisecond))
	}

	if sp := snap1.SpreadPct(); sp > g.cfg.MaxSpreadPct {
		return reject(RejectSpread, "%s spread %.5f > %.5f", snap1.Exchange, sp, g.cfg.MaxSpreadPct)
	}
	if sp := snap2.SpreadPct(); sp > g.cfg.MaxSpreadPct {
		return reject(RejectSpread, "%s spread %.5f > %.5f", snap2.Exchange, sp, g.cfg.MaxSpreadPct)
	}

	side2 := sig.Side1.Opposite()
	if top := snap1.TopSize(sig.Side1); top < g.cfg.MinTopDepth {
		return reject(RejectDepth, "%s top size %v < %v", snap1.Exchange, top, g.cfg.MinTopDepth)
	}
	if top := snap2.TopSize(side2); top < g.cfg.MinTopDepth {
		return reject(RejectDepth, "%s top size %v < %v", snap2.Exchange, top, g.cfg.MinTopDepth)
	}

	if sig.ProfitRate < minRate {
		return reject(RejectProfit, "rate %.5f < min %.5f", sig.ProfitRate, minRate)
	}

	return Decision{Accepted: true}
}

func reject(reason, format string, args ...any) Decision {
	return Decision{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}
