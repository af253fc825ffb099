package domain

import (
	"context"
	"time"
)

// HedgeOutcome is the terminal result of a two-leg execution.
type HedgeOutcome string

const (
	OutcomeBothFilled     HedgeOutcome = "both_filled"
	OutcomePartialFailure HedgeOutcome = "partial_failure"
	OutcomeFailed         HedgeOutcome = "failed"
)

// HedgeLeg records one side's order of an executed (or attempted) hedge.
type HedgeLeg struct {
	Exchange      string
	Symbol        string
	Side          OrderSide
	OrderID       string
	ExpectedPrice float64
	FilledPrice   float64
	Quantity      float64
	Status        OrderStatus
	Unwound       bool
}

// HedgeExecution is the persisted record of one paired trade.
type HedgeExecution struct {
	ID                 string
	Symbol             string
	Outcome            HedgeOutcome
	Leg1               HedgeLeg
	Leg2               HedgeLeg
	ExpectedProfitRate float64
	RealizedProfitRate float64
	FundingDiffAPY     float64
	ProfitUSD          float64
	NotionalUSD        float64
	StartedAt          time.Time
	CompletedAt        time.Time
}

// HedgeExecutionStore persists executed hedges for reporting and archival.
type HedgeExecutionStore interface {
	Create(ctx context.Context, exec HedgeExecution) error
	ListRecent(ctx context.Context, limit int) ([]HedgeExecution, error)
	ListBefore(ctx context.Context, before time.Time) ([]HedgeExecution, error)
}

// FundingCache provides TTL-cached funding rates per exchange/symbol so the
// decision loop never blocks on a REST lookup.
type FundingCache interface {
	SetRate(ctx context.Context, exchange, symbol string, rate float64, at time.Time) error
	GetRate(ctx context.Context, exchange, symbol string) (float64, time.Time, error)
}
