// Package exchange provides per-venue trading clients and order-book feed
// dialers behind a common interface, selected by a configuration-driven
// factory.
package exchange

import (
	"context"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// Trader is the per-exchange trading capability the hedge engine consumes.
// One implementation exists per venue; all symbol translation and request
// signing stays behind this interface.
type Trader interface {
	// Exchange returns the venue name, e.g. "binance".
	Exchange() string
	// PlaceOrder submits an order and returns the venue order ID. A non-nil
	// error means the order was not accepted.
	PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error)
	// GetRecentOrder fetches the current status of a previously placed order.
	GetRecentOrder(ctx context.Context, symbol, orderID string) (domain.OrderDetail, error)
	// CancelOrder cancels an open order. The bool reports whether the venue
	// acknowledged the cancel.
	CancelOrder(ctx context.Context, symbol, orderID string) (bool, error)
	// FundingRateAPY returns the venue's current funding rate for symbol,
	// annualized.
	FundingRateAPY(ctx context.Context, symbol string) (float64, error)
}
