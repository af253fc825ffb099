package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/exchange"
)

// CoordinatorConfig tunes paired-leg execution.
type CoordinatorConfig struct {
	PerLegTimeout time.Duration
	MaxLegRetries int
	// PollInterval is the fill-status polling cadence. Zero means 100ms.
	PollInterval time.Duration
	// Taker fees per leg, subtracted from the realized spread rate.
	TakerFee1 float64
	TakerFee2 float64
}

// Coordinator submits the two legs of an accepted signal concurrently,
// confirms fills, and neutralizes exposure when exactly one leg fills.
type Coordinator struct {
	trader1  exchange.Trader
	trader2  exchange.Trader
	cfg      CoordinatorConfig
	events   domain.EventSink
	log      *slog.Logger
	setState func(domain.ExecutionState)
}

// NewCoordinator builds a coordinator over the two venue trading clients.
// setState publishes granular execution-state transitions back to the
// engine's status surface.
func NewCoordinator(t1, t2 exchange.Trader, cfg CoordinatorConfig, events domain.EventSink, setState func(domain.ExecutionState), logger *slog.Logger) *Coordinator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if cfg.PerLegTimeout <= 0 {
		cfg.PerLegTimeout = 5 * time.Second
	}
	if setState == nil {
		setState = func(domain.ExecutionState) {}
	}
	return &Coordinator{
		trader1:  t1,
		trader2:  t2,
		cfg:      cfg,
		events:   events,
		log:      logger.With(slog.String("component", "execution_coordinator")),
		setState: setState,
	}
}

// Execute races both leg submissions, each bounded by the per-leg timeout,
// and returns the completed execution record. The two legs complete in
// either order. A partial failure always produces a compensating order on
// the filled leg and exactly one high-severity event.
func (c *Coordinator) Execute(ctx context.Context, sig domain.TradeSignal) domain.HedgeExecution {
	exec := domain.HedgeExecution{
		ID:                 sig.ID,
		Symbol:             sig.Symbol,
		ExpectedProfitRate: sig.ProfitRate,
		FundingDiffAPY:     sig.FundingDiffAPY,
		StartedAt:          time.Now(),
	}

	c.setState(domain.ExecAwaitingLeg1)

	ch1 := make(chan domain.HedgeLeg, 1)
	ch2 := make(chan domain.HedgeLeg, 1)
	go func() {
		ch1 <- c.runLeg(ctx, c.trader1, domain.OrderRequest{
			Symbol: sig.Symbol, Side: sig.Side1, Type: domain.OrderTypeMarket,
			Quantity: sig.Quantity, Price: sig.Price1,
		})
	}()
	go func() {
		ch2 <- c.runLeg(ctx, c.trader2, domain.OrderRequest{
			Symbol: sig.Symbol, Side: sig.Side2, Type: domain.OrderTypeMarket,
			Quantity: sig.Quantity, Price: sig.Price2,
		})
	}()

	var got1, got2 bool
	for !got1 || !got2 {
		select {
		case leg := <-ch1:
			exec.Leg1, got1 = leg, true
		case leg := <-ch2:
			exec.Leg2, got2 = leg, true
		}
		if got1 != got2 {
			c.setState(domain.ExecAwaitingLeg2)
		}
	}

	filled1 := exec.Leg1.Status == domain.OrderStatusFilled
	filled2 := exec.Leg2.Status == domain.OrderStatusFilled
	exec.CompletedAt = time.Now()

	switch {
	case filled1 && filled2:
		c.setState(domain.ExecBothFilled)
		exec.Outcome = domain.OutcomeBothFilled
		exec.RealizedProfitRate = SpreadRate(sig.Side1, exec.Leg1.FilledPrice, exec.Leg2.FilledPrice) - c.cfg.TakerFee1 - c.cfg.TakerFee2
		exec.NotionalUSD = sig.Quantity * (exec.Leg1.FilledPrice + exec.Leg2.FilledPrice) / 2
		exec.ProfitUSD = exec.RealizedProfitRate * exec.NotionalUSD
		c.log.Info("hedge filled",
			slog.String("execution_id", exec.ID),
			slog.Float64("expected_rate", exec.ExpectedProfitRate),
			slog.Float64("realized_rate", exec.RealizedProfitRate),
			slog.Float64("profit_usd", exec.ProfitUSD))

	case filled1 != filled2:
		c.setState(domain.ExecPartialFailureUnwinding)
		exec.Outcome = domain.OutcomePartialFailure
		exec.NotionalUSD = sig.NotionalUSD()

		filled := &exec.Leg1
		trader := c.trader1
		if filled2 {
			filled = &exec.Leg2
			trader = c.trader2
		}
		c.unwind(ctx, trader, filled)

		msg := fmt.Sprintf("one-sided fill on %s %s %s qty %v, unwound=%v",
			filled.Exchange, filled.Side, sig.Symbol, sig.Quantity, filled.Unwound)
		c.log.Error("partial hedge failure", slog.String("execution_id", exec.ID), slog.String("detail", msg))
		if c.events != nil {
			c.events.Emit(ctx, domain.OperationalEvent{
				Type:     domain.EventPartialFailure,
				Severity: domain.SeverityHigh,
				Symbol:   sig.Symbol,
				Message:  msg,
				At:       time.Now(),
			})
		}

	default:
		c.setState(domain.ExecFailed)
		exec.Outcome = domain.OutcomeFailed
		c.log.Warn("both legs failed, no exposure created", slog.String("execution_id", exec.ID))
	}

	return exec
}

// runLeg places one order and polls it to a fill, all within the per-leg
// timeout. Placement is retried a bounded number of times; an order still
// open at the deadline is cancelled best-effort.
func (c *Coordinator) runLeg(ctx context.Context, trader exchange.Trader, req domain.OrderRequest) domain.HedgeLeg {
	leg := domain.HedgeLeg{
		Exchange:      trader.Exchange(),
		Symbol:        req.Symbol,
		Side:          req.Side,
		ExpectedPrice: req.Price,
		Quantity:      req.Quantity,
		Status:        domain.OrderStatusFailed,
	}

	legCtx, cancel := context.WithTimeout(ctx, c.cfg.PerLegTimeout)
	defer cancel()

	var res domain.OrderResult
	var err error
	for attempt := 0; attempt <= c.cfg.MaxLegRetries; attempt++ {
		res, err = trader.PlaceOrder(legCtx, req)
		if err == nil {
			break
		}
		c.log.Warn("order placement failed",
			slog.String("exchange", trader.Exchange()),
			slog.Int("attempt", attempt+1),
			slog.Any("error", err))
		select {
		case <-legCtx.Done():
			return leg
		case <-time.After(c.cfg.PollInterval):
		}
	}
	if err != nil {
		return leg
	}
	leg.OrderID = res.OrderID

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-legCtx.Done():
			return c.resolveTimedOut(ctx, trader, req.Symbol, res.OrderID, leg)
		case <-ticker.C:
			detail, err := trader.GetRecentOrder(legCtx, req.Symbol, res.OrderID)
			if err != nil {
				continue
			}
			switch {
			case detail.Filled():
				leg.Status = domain.OrderStatusFilled
				leg.FilledPrice = detail.AvgPrice
				return leg
			case detail.Status == domain.OrderStatusCancelled || detail.Status == domain.OrderStatusRejected:
				leg.Status = detail.Status
				return leg
			}
		}
	}
}

// unwind closes the exposure of a filled leg with an opposing reduce-only
// market order. It runs detached from the parent cancellation so an engine
// shutdown cannot strand a one-sided position.
func (c *Coordinator) unwind(ctx context.Context, trader exchange.Trader, leg *domain.HedgeLeg) {
	unwindCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.PerLegTimeout)
	defer cancel()

	req := domain.OrderRequest{
		Symbol:     leg.Symbol,
		Side:       leg.Side.Opposite(),
		Type:       domain.OrderTypeMarket,
		Quantity:   leg.Quantity,
		Price:      leg.FilledPrice,
		ReduceOnly: true,
	}
	res, err := trader.PlaceOrder(unwindCtx, req)
	if err != nil {
		c.log.Error("unwind order failed",
			slog.String("exchange", trader.Exchange()),
			slog.Any("error", err))
		return
	}
	leg.Unwound = true
	c.log.Info("exposure unwound",
		slog.String("exchange", trader.Exchange()),
		slog.String("order_id", res.OrderID))
}

// resolveTimedOut cancels an order that outlived its leg deadline and then
// re-queries its final state. An order that filled just before the cancel
// landed is a filled leg; recording it failed would leave real exposure
// unaccounted and unwind the wrong side.
func (c *Coordinator) resolveTimedOut(ctx context.Context, trader exchange.Trader, symbol, orderID string, leg domain.HedgeLeg) domain.HedgeLeg {
	cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	acked, err := trader.CancelOrder(cancelCtx, symbol, orderID)
	if err != nil || !acked {
		c.log.Warn("cancel after timeout not acknowledged",
			slog.String("exchange", trader.Exchange()),
			slog.String("order_id", orderID),
			slog.Any("error", err))
	}

	detail, err := trader.GetRecentOrder(cancelCtx, symbol, orderID)
	if err != nil {
		c.log.Error("order state unknown after timeout, treating as failed",
			slog.String("exchange", trader.Exchange()),
			slog.String("order_id", orderID),
			slog.Any("error", err))
		return leg
	}
	switch {
	case detail.Filled():
		leg.Status = domain.OrderStatusFilled
		leg.FilledPrice = detail.AvgPrice
	case detail.Status == domain.OrderStatusCancelled || detail.Status == domain.OrderStatusRejected:
		leg.Status = detail.Status
	}
	return leg
}

// newExecutionID returns a fresh signal/execution identifier.
func newExecutionID() string {
	return uuid.NewString()
}
