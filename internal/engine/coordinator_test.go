package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

type fakeTrader struct {
	name      string
	fillPrice float64
	placeErr  error
	neverFill bool
	// fillOnCancel reports the order open until a cancel is attempted, then
	// reports it filled, like an order that executed before the cancel landed.
	fillOnCancel bool
	// fillWhen, when non-nil, holds fills back until the channel is closed.
	fillWhen chan struct{}

	mu      sync.Mutex
	placed  []domain.OrderRequest
	cancels []string
	nextID  int
	funding float64
}

func (f *fakeTrader) Exchange() string { return f.name }

func (f *fakeTrader) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return domain.OrderResult{}, f.placeErr
	}
	f.placed = append(f.placed, req)
	f.nextID++
	return domain.OrderResult{OrderID: fmt.Sprintf("%s-%d", f.name, f.nextID), Status: domain.OrderStatusNew}, nil
}

func (f *fakeTrader) GetRecentOrder(ctx context.Context, symbol, orderID string) (domain.OrderDetail, error) {
	if f.neverFill {
		return domain.OrderDetail{OrderID: orderID, Symbol: symbol, Status: domain.OrderStatusNew}, nil
	}
	if f.fillOnCancel {
		f.mu.Lock()
		cancelled := len(f.cancels) > 0
		f.mu.Unlock()
		if !cancelled {
			return domain.OrderDetail{OrderID: orderID, Symbol: symbol, Status: domain.OrderStatusNew}, nil
		}
	}
	if f.fillWhen != nil {
		select {
		case <-f.fillWhen:
		default:
			return domain.OrderDetail{OrderID: orderID, Symbol: symbol, Status: domain.OrderStatusNew}, nil
		}
	}
	return domain.OrderDetail{
		OrderID:   orderID,
		Symbol:    symbol,
		Status:    domain.OrderStatusFilled,
		AvgPrice:  f.fillPrice,
		UpdatedAt: time.Now(),
	}, nil
}

func (f *fakeTrader) CancelOrder(ctx context.Context, symbol, orderID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, orderID)
	return true, nil
}

func (f *fakeTrader) FundingRateAPY(ctx context.Context, symbol string) (float64, error) {
	return f.funding, nil
}

func (f *fakeTrader) placedOrders() []domain.OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.OrderRequest(nil), f.placed...)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []domain.OperationalEvent
}

func (r *eventRecorder) Emit(ctx context.Context, ev domain.OperationalEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) byType(typ domain.EventType) []domain.OperationalEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.OperationalEvent
	for _, ev := range r.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSignal() domain.TradeSignal {
	return domain.TradeSignal{
		ID:         newExecutionID(),
		Symbol:     "BTCUSDT",
		Side1:      domain.OrderSideBuy,
		Side2:      domain.OrderSideSell,
		Price1:     100.00,
		Price2:     100.30,
		ProfitRate: 0.003,
		Quantity:   1,
		CreatedAt:  time.Now(),
	}
}

func newTestCoordinator(t1, t2 *fakeTrader, events domain.EventSink, setState func(domain.ExecutionState)) *Coordinator {
	return NewCoordinator(t1, t2, CoordinatorConfig{
		PerLegTimeout: 300 * time.Millisecond,
		MaxLegRetries: 1,
		PollInterval:  5 * time.Millisecond,
	}, events, setState, discardLogger())
}

func TestExecuteBothFilled(t *testing.T) {
	t1 := &fakeTrader{name: "binance", fillPrice: 100.02}
	t2 := &fakeTrader{name: "bybit", fillPrice: 100.28}
	rec := &eventRecorder{}

	sig := testSignal()
	sig.FundingDiffAPY = 0.012
	exec := newTestCoordinator(t1, t2, rec, nil).Execute(context.Background(), sig)

	assert.Equal(t, domain.OutcomeBothFilled, exec.Outcome)
	assert.Equal(t, domain.OrderStatusFilled, exec.Leg1.Status)
	assert.Equal(t, domain.OrderStatusFilled, exec.Leg2.Status)
	// Realized off the fills, not the evaluated books.
	assert.InDelta(t, (100.28-100.02)/100.02, exec.RealizedProfitRate, 1e-9)
	assert.Positive(t, exec.ProfitUSD)
	assert.Equal(t, 0.012, exec.FundingDiffAPY, "funding differential carried onto the record")
	assert.Empty(t, rec.byType(domain.EventPartialFailure))
	assert.Len(t, t1.placedOrders(), 1)
	assert.Len(t, t2.placedOrders(), 1)
}

func TestExecutePartialFailureUnwindsFilledLeg(t *testing.T) {
	t1 := &fakeTrader{name: "binance", fillPrice: 100.02}
	t2 := &fakeTrader{name: "bybit", placeErr: errors.New("insufficient margin")}
	rec := &eventRecorder{}

	exec := newTestCoordinator(t1, t2, rec, nil).Execute(context.Background(), testSignal())

	require.Equal(t, domain.OutcomePartialFailure, exec.Outcome)
	assert.True(t, exec.Leg1.Unwound)

	orders := t1.placedOrders()
	require.Len(t, orders, 2, "fill plus compensating order")
	assert.Equal(t, domain.OrderSideSell, orders[1].Side, "unwind opposes the filled leg")
	assert.True(t, orders[1].ReduceOnly)
	assert.Equal(t, orders[0].Quantity, orders[1].Quantity)

	high := rec.byType(domain.EventPartialFailure)
	require.Len(t, high, 1, "exactly one partial-failure event")
	assert.Equal(t, domain.SeverityHigh, high[0].Severity)
}

func TestExecutePartialFailureOnLegTimeout(t *testing.T) {
	t1 := &fakeTrader{name: "binance", fillPrice: 100.02}
	t2 := &fakeTrader{name: "bybit", neverFill: true}
	rec := &eventRecorder{}

	exec := newTestCoordinator(t1, t2, rec, nil).Execute(context.Background(), testSignal())

	require.Equal(t, domain.OutcomePartialFailure, exec.Outcome)
	assert.Equal(t, domain.OrderStatusFailed, exec.Leg2.Status)
	assert.NotEmpty(t, t2.cancels, "open order cancelled after timeout")
	assert.True(t, exec.Leg1.Unwound)
	require.Len(t, rec.byType(domain.EventPartialFailure), 1)
}

func TestExecuteLegFilledDuringCancelCountsAsFilled(t *testing.T) {
	t1 := &fakeTrader{name: "binance", fillPrice: 100.02}
	t2 := &fakeTrader{name: "bybit", fillPrice: 100.28, fillOnCancel: true}
	rec := &eventRecorder{}

	exec := newTestCoordinator(t1, t2, rec, nil).Execute(context.Background(), testSignal())

	require.Equal(t, domain.OutcomeBothFilled, exec.Outcome,
		"a fill that beats the cancel is a filled leg, not a failure")
	assert.Equal(t, domain.OrderStatusFilled, exec.Leg2.Status)
	assert.Equal(t, 100.28, exec.Leg2.FilledPrice)
	assert.NotEmpty(t, t2.cancels)
	assert.False(t, exec.Leg1.Unwound, "nothing to unwind when both sides filled")
	assert.Len(t, t1.placedOrders(), 1)
	assert.Empty(t, rec.byType(domain.EventPartialFailure))
}

func TestExecuteBothLegsFailed(t *testing.T) {
	t1 := &fakeTrader{name: "binance", placeErr: errors.New("down")}
	t2 := &fakeTrader{name: "bybit", placeErr: errors.New("down")}
	rec := &eventRecorder{}

	exec := newTestCoordinator(t1, t2, rec, nil).Execute(context.Background(), testSignal())

	assert.Equal(t, domain.OutcomeFailed, exec.Outcome)
	assert.False(t, exec.Leg1.Unwound)
	assert.False(t, exec.Leg2.Unwound)
	assert.Empty(t, rec.byType(domain.EventPartialFailure), "no exposure, no high-severity event")
}

func TestExecuteReportsStateTransitions(t *testing.T) {
	t1 := &fakeTrader{name: "binance", fillPrice: 100.02}
	t2 := &fakeTrader{name: "bybit", fillPrice: 100.28}

	var mu sync.Mutex
	var states []domain.ExecutionState
	record := func(s domain.ExecutionState) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	}

	newTestCoordinator(t1, t2, nil, record).Execute(context.Background(), testSignal())

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, states)
	assert.Equal(t, domain.ExecAwaitingLeg1, states[0])
	assert.Equal(t, domain.ExecBothFilled, states[len(states)-1])
	assert.Contains(t, states, domain.ExecAwaitingLeg2)
}
