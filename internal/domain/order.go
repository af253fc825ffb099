package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Opposite returns the side that closes a position opened with s.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderType indicates the execution style of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// OrderStatus tracks the order lifecycle on the exchange.
type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "new"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRejected  OrderStatus = "rejected"
	OrderStatusFailed    OrderStatus = "failed"
)

// OrderRequest is what the execution coordinator hands to an exchange
// trading collaborator.
type OrderRequest struct {
	Symbol     string
	Side       OrderSide
	Type       OrderType
	Quantity   float64
	Price      float64 // reference price; advisory for market orders
	ReduceOnly bool
}

// OrderResult wraps the exchange response after order submission.
type OrderResult struct {
	OrderID string
	Status  OrderStatus
	Message string
}

// OrderDetail is the queried state of a previously submitted order.
type OrderDetail struct {
	OrderID   string
	Symbol    string
	Status    OrderStatus
	AvgPrice  float64
	FilledQty float64
	UpdatedAt time.Time
}

// Filled reports whether the order has fully executed with a usable
// average price.
func (d OrderDetail) Filled() bool {
	return d.Status == OrderStatusFilled && d.AvgPrice > 0
}
