package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/crypto"
	"github.com/alanyoungcy/hedgebot/internal/domain"
)

const (
	binanceRecvWindow = "5000"
	// fundingPeriodsPerYear annualizes an 8-hour funding rate.
	fundingPeriodsPerYear = 3 * 365
)

// BinanceTrader talks to the Binance USDT-margined futures REST API.
type BinanceTrader struct {
	apiKey  string
	secret  string
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

// NewBinanceTrader builds a trading client for Binance futures.
func NewBinanceTrader(apiKey, secret, baseURL string, logger *slog.Logger) *BinanceTrader {
	return &BinanceTrader{
		apiKey:  apiKey,
		secret:  secret,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     logger.With(slog.String("component", "binance_trader")),
	}
}

func (b *BinanceTrader) Exchange() string { return "binance" }

// binanceOrderResponse is the subset of the order endpoints' response the
// engine consumes.
type binanceOrderResponse struct {
	OrderID     int64  `json:"orderId"`
	Status      string `json:"status"`
	AvgPrice    string `json:"avgPrice"`
	ExecutedQty string `json:"executedQty"`
	UpdateTime  int64  `json:"updateTime"`
}

// PlaceOrder submits a futures order via POST /fapi/v1/order.
func (b *BinanceTrader) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if req.Quantity <= 0 {
		return domain.OrderResult{}, fmt.Errorf("binance: %w: quantity %v", domain.ErrInvalidOrder, req.Quantity)
	}
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", string(req.Side))
	params.Set("type", string(req.Type))
	params.Set("quantity", formatFloat(req.Quantity))
	if req.Type == domain.OrderTypeLimit {
		params.Set("price", formatFloat(req.Price))
		params.Set("timeInForce", "GTC")
	}
	if req.ReduceOnly {
		params.Set("reduceOnly", "true")
	}

	var resp binanceOrderResponse
	if err := b.signedRequest(ctx, http.MethodPost, "/fapi/v1/order", params, &resp); err != nil {
		return domain.OrderResult{}, err
	}
	return domain.OrderResult{
		OrderID: strconv.FormatInt(resp.OrderID, 10),
		Status:  binanceStatus(resp.Status),
	}, nil
}

// GetRecentOrder queries GET /fapi/v1/order.
func (b *BinanceTrader) GetRecentOrder(ctx context.Context, symbol, orderID string) (domain.OrderDetail, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	var resp binanceOrderResponse
	if err := b.signedRequest(ctx, http.MethodGet, "/fapi/v1/order", params, &resp); err != nil {
		return domain.OrderDetail{}, err
	}
	avg, _ := strconv.ParseFloat(resp.AvgPrice, 64)
	filled, _ := strconv.ParseFloat(resp.ExecutedQty, 64)
	return domain.OrderDetail{
		OrderID:   strconv.FormatInt(resp.OrderID, 10),
		Symbol:    symbol,
		Status:    binanceStatus(resp.Status),
		AvgPrice:  avg,
		FilledQty: filled,
		UpdatedAt: time.UnixMilli(resp.UpdateTime),
	}, nil
}

// CancelOrder issues DELETE /fapi/v1/order.
func (b *BinanceTrader) CancelOrder(ctx context.Context, symbol, orderID string) (bool, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	var resp binanceOrderResponse
	if err := b.signedRequest(ctx, http.MethodDelete, "/fapi/v1/order", params, &resp); err != nil {
		return false, err
	}
	return binanceStatus(resp.Status) == domain.OrderStatusCancelled, nil
}

// FundingRateAPY annualizes the current 8-hour funding rate from
// GET /fapi/v1/premiumIndex.
func (b *BinanceTrader) FundingRateAPY(ctx context.Context, symbol string) (float64, error) {
	u := fmt.Sprintf("%s/fapi/v1/premiumIndex?symbol=%s", b.baseURL, url.QueryEscape(symbol))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("binance: build request: %w", err)
	}
	var resp struct {
		LastFundingRate string `json:"lastFundingRate"`
	}
	if err := b.do(httpReq, &resp); err != nil {
		return 0, err
	}
	rate, err := strconv.ParseFloat(resp.LastFundingRate, 64)
	if err != nil {
		return 0, fmt.Errorf("binance: parse funding rate %q: %w", resp.LastFundingRate, err)
	}
	return rate * fundingPeriodsPerYear, nil
}

// signedRequest signs params with the account secret and executes the call.
func (b *BinanceTrader) signedRequest(ctx context.Context, method, path string, params url.Values, out any) error {
	params.Set("recvWindow", binanceRecvWindow)
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	query := params.Encode()
	query += "&signature=" + crypto.SignHex(b.secret, query)

	httpReq, err := http.NewRequestWithContext(ctx, method, b.baseURL+path+"?"+query, nil)
	if err != nil {
		return fmt.Errorf("binance: build request: %w", err)
	}
	httpReq.Header.Set("X-MBX-APIKEY", b.apiKey)
	return b.do(httpReq, out)
}

func (b *BinanceTrader) do(req *http.Request, out any) error {
	resp, err := b.http.Do(req)
	if err != nil {
		return fmt.Errorf("binance: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("binance: read response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("binance: %w: %s", domain.ErrRateLimited, string(body))
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("binance: %s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("binance: decode response: %w", err)
	}
	return nil
}

// binanceStatus maps the venue's order status strings onto the domain set.
func binanceStatus(s string) domain.OrderStatus {
	switch s {
	case "NEW", "PARTIALLY_FILLED":
		return domain.OrderStatusNew
	case "FILLED":
		return domain.OrderStatusFilled
	case "CANCELED", "EXPIRED":
		return domain.OrderStatusCancelled
	case "REJECTED":
		return domain.OrderStatusRejected
	default:
		return domain.OrderStatusFailed
	}
}

// formatFloat renders quantities and prices without exponent notation.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
