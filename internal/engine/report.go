package engine

import (
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// TradeStats accumulates executed-trade totals over the engine's lifetime.
type TradeStats struct {
	Filled           int64   `json:"filled"`
	PartialFailures  int64   `json:"partial_failures"`
	Failed           int64   `json:"failed"`
	TotalProfitUSD   float64 `json:"total_profit_usd"`
	TotalNotionalUSD float64 `json:"total_notional_usd"`
}

// EngineReport is the point-in-time status surface exposed over the HTTP
// status endpoint: connection state of both replicas, the execution state,
// signal accept/reject counters, and realized-versus-expected profit
// statistics.
type EngineReport struct {
	Symbol         string            `json:"symbol"`
	Running        bool              `json:"running"`
	ExecutionState string            `json:"execution_state"`
	Conn1          domain.ConnStatus `json:"conn1"`
	Conn2          domain.ConnStatus `json:"conn2"`

	Accepted         int64            `json:"accepted"`
	RejectedByReason map[string]int64 `json:"rejected_by_reason"`
	SizingFailures   int64            `json:"sizing_failures"`
	InFlightSkips    int64            `json:"in_flight_skips"`

	Trades  TradeStats   `json:"trades"`
	Quality QualityStats `json:"quality"`

	EffectiveMinProfitRate float64   `json:"effective_min_profit_rate"`
	FundingDiffAPY         float64   `json:"funding_diff_apy"`
	RelaxSteps             int       `json:"relax_steps"`
	LastAcceptedAt         time.Time `json:"last_accepted_at"`
}
