package engine

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/book"
	"github.com/alanyoungcy/hedgebot/internal/config"
	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/exchange"
)

// fundingRefreshInterval is how often the funding-rate cache is repopulated
// from the venues' REST endpoints.
const fundingRefreshInterval = time.Minute

// Engine orchestrates the hedge: it subscribes to both book replicas, runs
// sizing and the risk gate on every update, and hands accepted signals to
// the execution coordinator. Its decision loop is logically single-threaded;
// only one execution may be in flight at a time.
type Engine struct {
	tradeCfg config.TradeConfig
	riskCfg  config.RiskConfig

	replica1 *book.Replica
	replica2 *book.Replica
	trader1  exchange.Trader
	trader2  exchange.Trader

	gate    *Gate
	quality *QualityWindow
	coord   *Coordinator
	events  domain.EventSink
	store   domain.HedgeExecutionStore // optional
	funding domain.FundingCache        // optional
	log     *slog.Logger

	side1 domain.OrderSide
	side2 domain.OrderSide

	// updates coalesces book-update notifications: the loop re-reads the
	// latest snapshots, so dropped notifications lose nothing.
	updates  chan struct{}
	execDone chan domain.HedgeExecution

	mu              sync.Mutex
	running         bool
	execState       domain.ExecutionState
	accepted        int64
	rejected        map[string]int64
	sizingFailures  int64
	inFlightSkips   int64
	trades          TradeStats
	relaxSteps      int
	lastAcceptedAt  time.Time
	lastFundingDiff float64
	cooldownUntil   time.Time
	cancel          context.CancelFunc
}

// Options carries the engine's optional collaborators. Nil fields disable
// the corresponding feature.
type EngineOptions struct {
	Events  domain.EventSink
	Store   domain.HedgeExecutionStore
	Funding domain.FundingCache
}

// New builds an engine over the two replicas and trading clients.
func New(tradeCfg config.TradeConfig, riskCfg config.RiskConfig, fee1, fee2 float64,
	r1, r2 *book.Replica, t1, t2 exchange.Trader, opts EngineOptions, logger *slog.Logger) *Engine {

	e := &Engine{
		tradeCfg: tradeCfg,
		riskCfg:  riskCfg,
		replica1: r1,
		replica2: r2,
		trader1:  t1,
		trader2:  t2,
		gate:     NewGate(riskCfg),
		quality:  NewQualityWindow(riskCfg.QualityWindowSize, riskCfg.QualityWindowAge.Duration),
		events:   opts.Events,
		store:    opts.Store,
		funding:  opts.Funding,
		log:      logger.With(slog.String("component", "hedge_engine"), slog.String("symbol", tradeCfg.Symbol)),
		side1:    domain.OrderSide(tradeCfg.Side1),
		side2:    domain.OrderSide(tradeCfg.Side2),
		updates:  make(chan struct{}, 1),
		execDone: make(chan domain.HedgeExecution, 1),
		rejected: make(map[string]int64),
	}
	e.coord = NewCoordinator(t1, t2, CoordinatorConfig{
		PerLegTimeout: tradeCfg.PerLegTimeout.Duration,
		MaxLegRetries: tradeCfg.MaxLegRetries,
		TakerFee1:     fee1,
		TakerFee2:     fee2,
	}, opts.Events, e.setExecState, logger)

	// Subscribe at construction, before the feeds start streaming: an
	// update applied between startup and a later subscription would be
	// lost, and the coalescing channel means nothing would re-trigger
	// evaluation.
	notify := func(domain.OrderBookSnapshot) {
		select {
		case e.updates <- struct{}{}:
		default:
		}
	}
	r1.Subscribe(notify)
	r2.Subscribe(notify)
	return e
}

// Run drives the decision loop until ctx is cancelled, Stop is called, or
// the no-trade timeout exhausts its relaxation steps. It never returns with
// an execution still in flight.
func (e *Engine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	e.running = true
	e.cancel = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	if e.funding != nil {
		go e.refreshFunding(ctx)
	}

	e.emit(ctx, domain.EventEngineStarted, domain.SeverityInfo, "hedge engine started")
	e.log.Info("engine started",
		slog.String("side1", string(e.side1)),
		slog.String("exchange1", e.trader1.Exchange()),
		slog.String("exchange2", e.trader2.Exchange()))

	var timerC <-chan time.Time
	var timer *time.Timer
	if d := e.tradeCfg.NoTradeTimeout.Duration; d > 0 {
		timer = time.NewTimer(d)
		defer timer.Stop()
		timerC = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			e.drainInFlight()
			e.emit(context.WithoutCancel(ctx), domain.EventEngineStopped, domain.SeverityInfo, "hedge engine stopped")
			e.log.Info("engine stopped")
			return nil

		case <-e.updates:
			if e.evaluate(ctx) && timer != nil {
				// An accepted trade restarts the idle clock.
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(e.tradeCfg.NoTradeTimeout.Duration)
			}

		case exec := <-e.execDone:
			e.finishExecution(ctx, exec)

		case <-timerC:
			if !e.relaxThreshold(ctx) {
				e.drainInFlight()
				e.emit(context.WithoutCancel(ctx), domain.EventEngineStopped, domain.SeverityInfo, "hedge engine suspended after inactivity")
				e.log.Info("engine suspended after inactivity")
				return nil
			}
			timer.Reset(e.tradeCfg.NoTradeTimeout.Duration)
		}
	}
}

// Stop requests a graceful shutdown; Run waits for any in-flight execution
// to resolve before returning.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// drainInFlight blocks until an outstanding execution, if any, resolves.
// The engine is never torn down mid-leg.
func (e *Engine) drainInFlight() {
	e.mu.Lock()
	inFlight := e.execState != domain.ExecIdle
	e.mu.Unlock()
	if !inFlight {
		return
	}
	exec := <-e.execDone
	e.finishExecution(context.Background(), exec)
}

// evaluate runs one decision cycle: build a candidate from the two latest
// snapshots, size it, gate it, and launch execution on accept. It reports
// whether a signal was accepted.
func (e *Engine) evaluate(ctx context.Context) bool {
	e.mu.Lock()
	if e.execState != domain.ExecIdle {
		e.inFlightSkips++
		e.mu.Unlock()
		return false
	}
	if time.Now().Before(e.cooldownUntil) {
		e.mu.Unlock()
		return false
	}
	relaxSteps := e.relaxSteps
	e.mu.Unlock()

	if !e.replica1.Usable() || !e.replica2.Usable() {
		e.countReject(RejectFreshness)
		return false
	}
	snap1, ok1 := e.replica1.Latest()
	snap2, ok2 := e.replica2.Latest()
	if !ok1 || !ok2 {
		return false
	}

	p1 := snap1.TakePrice(e.side1)
	p2 := snap2.TakePrice(e.side2)
	if p1 <= 0 || p2 <= 0 {
		return false
	}

	qty, ok := ComputeQuantity(snap1, snap2, e.side1, e.tradeCfg)
	if !ok {
		e.mu.Lock()
		e.sizingFailures++
		e.mu.Unlock()
		return false
	}

	now := time.Now()
	sig := domain.TradeSignal{
		ID:         newExecutionID(),
		Symbol:     e.tradeCfg.Symbol,
		Side1:      e.side1,
		Side2:      e.side2,
		Price1:     p1,
		Price2:     p2,
		Spread:     p1 - p2,
		ProfitRate: SpreadRate(e.side1, p1, p2) - e.coord.cfg.TakerFee1 - e.coord.cfg.TakerFee2,
		Quantity:   qty,
		BookTime1:  snap1.Timestamp,
		BookTime2:  snap2.Timestamp,
		CreatedAt:  now,
	}
	sig.FundingDiffAPY = e.fundingDiff(ctx)
	e.mu.Lock()
	e.lastFundingDiff = sig.FundingDiffAPY
	e.mu.Unlock()

	minRate := e.effectiveMinRate(relaxSteps, now)
	decision := e.gate.Evaluate(snap1, snap2, sig, minRate, now)
	if !decision.Accepted {
		e.countReject(decision.Reason)
		e.log.Debug("signal rejected",
			slog.String("reason", decision.Reason),
			slog.String("detail", decision.Detail))
		return false
	}

	e.mu.Lock()
	e.accepted++
	e.execState = domain.ExecEvaluating
	e.lastAcceptedAt = now
	e.relaxSteps = 0
	e.mu.Unlock()

	e.log.Info("signal accepted",
		slog.String("signal_id", sig.ID),
		slog.Float64("profit_rate", sig.ProfitRate),
		slog.Float64("quantity", sig.Quantity),
		slog.Float64("notional_usd", sig.NotionalUSD()))

	go func() {
		e.execDone <- e.coord.Execute(ctx, sig)
	}()
	return true
}

// effectiveMinRate layers the no-trade relaxation and the realized-quality
// adjustment onto the configured baseline.
func (e *Engine) effectiveMinRate(relaxSteps int, now time.Time) float64 {
	baseline := e.riskCfg.MinProfitRate
	if e.riskCfg.RelaxStep > 0 && relaxSteps > 0 {
		baseline *= math.Pow(1-e.riskCfg.RelaxStep, float64(relaxSteps))
	}
	return e.quality.AdjustedMinProfitRate(baseline, e.riskCfg.MaxAdjustFactor, now)
}

// relaxThreshold handles one no-trade timeout. It lowers the effective
// profit threshold one step and reports whether the engine should keep
// running; exhausting the step budget suspends the engine.
func (e *Engine) relaxThreshold(ctx context.Context) bool {
	e.mu.Lock()
	if e.riskCfg.RelaxStep <= 0 || e.relaxSteps >= e.riskCfg.MaxRelaxSteps {
		e.mu.Unlock()
		e.emit(ctx, domain.EventNoTradeTimeout, domain.SeverityInfo, "no trade accepted within timeout, suspending")
		return false
	}
	e.relaxSteps++
	steps := e.relaxSteps
	e.mu.Unlock()

	e.log.Info("no trade within timeout, relaxing profit threshold",
		slog.Int("relax_steps", steps),
		slog.Float64("effective_min_rate", e.effectiveMinRate(steps, time.Now())))
	e.emit(ctx, domain.EventNoTradeTimeout, domain.SeverityInfo, "no trade accepted within timeout, threshold relaxed")
	return true
}

// finishExecution records a completed execution: quality feedback,
// persistence, events, counters, and the return to Idle.
func (e *Engine) finishExecution(ctx context.Context, exec domain.HedgeExecution) {
	e.mu.Lock()
	switch exec.Outcome {
	case domain.OutcomeBothFilled:
		e.trades.Filled++
		e.trades.TotalProfitUSD += exec.ProfitUSD
		e.trades.TotalNotionalUSD += exec.NotionalUSD
	case domain.OutcomePartialFailure:
		e.trades.PartialFailures++
	default:
		e.trades.Failed++
	}
	if d := e.tradeCfg.TradeInterval.Duration; d > 0 {
		e.cooldownUntil = time.Now().Add(d)
	}
	e.mu.Unlock()

	if exec.Outcome == domain.OutcomeBothFilled {
		e.quality.Record(exec.ExpectedProfitRate, exec.RealizedProfitRate, exec.CompletedAt)
		e.emit(ctx, domain.EventTradeFilled, domain.SeverityInfo, "hedge filled")
	} else if exec.Outcome == domain.OutcomeFailed {
		e.emit(ctx, domain.EventTradeFailed, domain.SeverityInfo, "both legs failed")
	}

	if e.store != nil {
		storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := e.store.Create(storeCtx, exec); err != nil {
			e.log.Error("persist execution failed",
				slog.String("execution_id", exec.ID),
				slog.Any("error", err))
		}
		cancel()
	}

	e.setExecState(domain.ExecIdle)
}

// refreshFunding keeps the funding cache warm so evaluations never block on
// a REST lookup.
func (e *Engine) refreshFunding(ctx context.Context) {
	ticker := time.NewTicker(fundingRefreshInterval)
	defer ticker.Stop()
	e.fetchFunding(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.fetchFunding(ctx)
		}
	}
}

func (e *Engine) fetchFunding(ctx context.Context) {
	for _, t := range []exchange.Trader{e.trader1, e.trader2} {
		rate, err := t.FundingRateAPY(ctx, e.tradeCfg.Symbol)
		if err != nil {
			e.log.Debug("funding rate lookup failed",
				slog.String("exchange", t.Exchange()),
				slog.Any("error", err))
			continue
		}
		if err := e.funding.SetRate(ctx, t.Exchange(), e.tradeCfg.Symbol, rate, time.Now()); err != nil {
			e.log.Debug("funding cache write failed", slog.Any("error", err))
		}
	}
}

// fundingDiff reads the cached annualized funding differential in the
// direction leg1 earns it. Missing cache entries yield zero.
func (e *Engine) fundingDiff(ctx context.Context) float64 {
	if e.funding == nil {
		return 0
	}
	r1, _, err1 := e.funding.GetRate(ctx, e.trader1.Exchange(), e.tradeCfg.Symbol)
	r2, _, err2 := e.funding.GetRate(ctx, e.trader2.Exchange(), e.tradeCfg.Symbol)
	if err1 != nil || err2 != nil {
		return 0
	}
	if e.side1 == domain.OrderSideBuy {
		return r2 - r1
	}
	return r1 - r2
}

func (e *Engine) countReject(reason string) {
	e.mu.Lock()
	e.rejected[reason]++
	e.mu.Unlock()
}

func (e *Engine) setExecState(s domain.ExecutionState) {
	e.mu.Lock()
	e.execState = s
	e.mu.Unlock()
}

// ExecutionState returns the current execution state.
func (e *Engine) ExecutionState() domain.ExecutionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.execState
}

func (e *Engine) emit(ctx context.Context, typ domain.EventType, sev domain.EventSeverity, msg string) {
	if e.events == nil {
		return
	}
	e.events.Emit(ctx, domain.OperationalEvent{
		Type:     typ,
		Severity: sev,
		Symbol:   e.tradeCfg.Symbol,
		Message:  msg,
		At:       time.Now(),
	})
}

// Report assembles the status snapshot for the HTTP status surface.
func (e *Engine) Report() EngineReport {
	now := time.Now()

	e.mu.Lock()
	rejected := make(map[string]int64, len(e.rejected))
	for k, v := range e.rejected {
		rejected[k] = v
	}
	rep := EngineReport{
		Symbol:           e.tradeCfg.Symbol,
		Running:          e.running,
		ExecutionState:   e.execState.String(),
		Accepted:         e.accepted,
		RejectedByReason: rejected,
		SizingFailures:   e.sizingFailures,
		InFlightSkips:    e.inFlightSkips,
		Trades:           e.trades,
		FundingDiffAPY:   e.lastFundingDiff,
		RelaxSteps:       e.relaxSteps,
		LastAcceptedAt:   e.lastAcceptedAt,
	}
	relaxSteps := e.relaxSteps
	e.mu.Unlock()

	rep.Conn1 = e.replica1.Status()
	rep.Conn2 = e.replica2.Status()
	rep.Quality = e.quality.Stats(now)
	rep.EffectiveMinProfitRate = e.effectiveMinRate(relaxSteps, now)
	return rep
}
