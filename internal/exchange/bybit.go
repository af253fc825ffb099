package exchange

import (
	"bytes"
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

const bybitRecvWindow = "5000"

// BybitTrader talks to the Bybit v5 REST API (linear perpetuals).
type BybitTrader struct {
	apiKey  string
	secret  string
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

// NewBybitTrader builds a trading client for Bybit linear contracts.
func NewBybitTrader(apiKey, secret, baseURL string, logger *slog.Logger) *BybitTrader {
	return &BybitTrader{
		apiKey:  apiKey,
		secret:  secret,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     logger.With(slog.String("component", "bybit_trader")),
	}
}

func (b *BybitTrader) Exchange() string { return "bybit" }

// bybitEnvelope is the common v5 response wrapper.
type bybitEnvelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

// PlaceOrder submits an order via POST /v5/order/create.
func (b *BybitTrader) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if req.Quantity <= 0 {
		return domain.OrderResult{}, fmt.Errorf("bybit: %w: quantity %v", domain.ErrInvalidOrder, req.Quantity)
	}
	body := map[string]any{
		"category":  "linear",
		"symbol":    req.Symbol,
		"side":      bybitSide(req.Side),
		"orderType": bybitOrderType(req.Type),
		"qty":       formatFloat(req.Quantity),
	}
	if req.Type == domain.OrderTypeLimit {
		body["price"] = formatFloat(req.Price)
		body["timeInForce"] = "GTC"
	}
	if req.ReduceOnly {
		body["reduceOnly"] = true
	}

	var result struct {
		OrderID string `json:"orderId"`
	}
	if err := b.signedPost(ctx, "/v5/order/create", body, &result); err != nil {
		return domain.OrderResult{}, err
	}
	return domain.OrderResult{OrderID: result.OrderID, Status: domain.OrderStatusNew}, nil
}

// GetRecentOrder queries GET /v5/order/realtime.
func (b *BybitTrader) GetRecentOrder(ctx context.Context, symbol, orderID string) (domain.OrderDetail, error) {
	params := url.Values{}
	params.Set("category", "linear")
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	var result struct {
		List []struct {
			OrderID     string `json:"orderId"`
			OrderStatus string `json:"orderStatus"`
			AvgPrice    string `json:"avgPrice"`
			CumExecQty  string `json:"cumExecQty"`
			UpdatedTime string `json:"updatedTime"`
		} `json:"list"`
	}
	if err := b.signedGet(ctx, "/v5/order/realtime", params, &result); err != nil {
		return domain.OrderDetail{}, err
	}
	if len(result.List) == 0 {
		return domain.OrderDetail{}, fmt.Errorf("bybit: order %s: %w", orderID, domain.ErrNotFound)
	}

	o := result.List[0]
	avg, _ := strconv.ParseFloat(o.AvgPrice, 64)
	filled, _ := strconv.ParseFloat(o.CumExecQty, 64)
	updatedMs, _ := strconv.ParseInt(o.UpdatedTime, 10, 64)
	return domain.OrderDetail{
		OrderID:   o.OrderID,
		Symbol:    symbol,
		Status:    bybitStatus(o.OrderStatus),
		AvgPrice:  avg,
		FilledQty: filled,
		UpdatedAt: time.UnixMilli(updatedMs),
	}, nil
}

// CancelOrder issues POST /v5/order/cancel.
func (b *BybitTrader) CancelOrder(ctx context.Context, symbol, orderID string) (bool, error) {
	body := map[string]any{
		"category": "linear",
		"symbol":   symbol,
		"orderId":  orderID,
	}
	var result struct {
		OrderID string `json:"orderId"`
	}
	if err := b.signedPost(ctx, "/v5/order/cancel", body, &result); err != nil {
		return false, err
	}
	return result.OrderID != "", nil
}

// FundingRateAPY annualizes the current funding rate from
// GET /v5/market/tickers.
func (b *BybitTrader) FundingRateAPY(ctx context.Context, symbol string) (float64, error) {
	u := fmt.Sprintf("%s/v5/market/tickers?category=linear&symbol=%s", b.baseURL, url.QueryEscape(symbol))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("bybit: build request: %w", err)
	}

	var result struct {
		List []struct {
			FundingRate string `json:"fundingRate"`
		} `json:"list"`
	}
	if err := b.do(httpReq, &result); err != nil {
		return 0, err
	}
	if len(result.List) == 0 {
		return 0, fmt.Errorf("bybit: ticker %s: %w", symbol, domain.ErrNotFound)
	}
	rate, err := strconv.ParseFloat(result.List[0].FundingRate, 64)
	if err != nil {
		return 0, fmt.Errorf("bybit: parse funding rate %q: %w", result.List[0].FundingRate, err)
	}
	return rate * fundingPeriodsPerYear, nil
}

// signedPost executes an authenticated JSON POST. The v5 signature is
// HMAC-SHA256(secret, timestamp+apiKey+recvWindow+body) hex-encoded.
func (b *BybitTrader) signedPost(ctx context.Context, path string, body map[string]any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("bybit: marshal body: %w", err)
	}
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("bybit: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	b.authHeaders(httpReq, ts, string(raw))
	return b.doEnvelope(httpReq, out)
}

// signedGet executes an authenticated GET; the query string takes the
// body's place in the signature payload.
func (b *BybitTrader) signedGet(ctx context.Context, path string, params url.Values, out any) error {
	query := params.Encode()
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path+"?"+query, nil)
	if err != nil {
		return fmt.Errorf("bybit: build request: %w", err)
	}
	b.authHeaders(httpReq, ts, query)
	return b.doEnvelope(httpReq, out)
}

func (b *BybitTrader) authHeaders(req *http.Request, ts, payload string) {
	req.Header.Set("X-BAPI-API-KEY", b.apiKey)
	req.Header.Set("X-BAPI-TIMESTAMP", ts)
	req.Header.Set("X-BAPI-RECV-WINDOW", bybitRecvWindow)
	req.Header.Set("X-BAPI-SIGN", crypto.SignHex(b.secret, ts+b.apiKey+bybitRecvWindow+payload))
}

// doEnvelope executes the request and unwraps the v5 envelope into out.
func (b *BybitTrader) doEnvelope(req *http.Request, out any) error {
	var env bybitEnvelope
	if err := b.do(req, &env); err != nil {
		return err
	}
	if env.RetCode != 0 {
		if env.RetCode == 10006 {
			return fmt.Errorf("bybit: %w: %s", domain.ErrRateLimited, env.RetMsg)
		}
		return fmt.Errorf("bybit: %s %s: retCode %d: %s", req.Method, req.URL.Path, env.RetCode, env.RetMsg)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("bybit: decode result: %w", err)
	}
	return nil
}

func (b *BybitTrader) do(req *http.Request, out any) error {
	resp, err := b.http.Do(req)
	if err != nil {
		return fmt.Errorf("bybit: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("bybit: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bybit: %s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("bybit: decode response: %w", err)
	}
	return nil
}

func bybitSide(s domain.OrderSide) string {
	if s == domain.OrderSideBuy {
		return "Buy"
	}
	return "Sell"
}

func bybitOrderType(t domain.OrderType) string {
	if t == domain.OrderTypeLimit {
		return "Limit"
	}
	return "Market"
}

// bybitStatus maps the venue's order status strings onto the domain set.
func bybitStatus(s string) domain.OrderStatus {
	switch s {
	case "New", "PartiallyFilled", "Untriggered", "Created":
		return domain.OrderStatusNew
	case "Filled":
		return domain.OrderStatusFilled
	case "Cancelled", "PartiallyFilledCanceled", "Deactivated":
		return domain.OrderStatusCancelled
	case "Rejected":
		return domain.OrderStatusRejected
	default:
		return domain.OrderStatusFailed
	}
}
