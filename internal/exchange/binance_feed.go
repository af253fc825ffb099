package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/hedgebot/internal/book"
	"github.com/alanyoungcy/hedgebot/internal/domain"
)

const feedReadWait = 90 * time.Second

// BinanceFeedDialer opens partial-depth streams on Binance futures. Each
// message carries the full top 20 levels, so every delta is a snapshot and
// no REST bootstrap is needed.
type BinanceFeedDialer struct {
	wsURL string
}

// NewBinanceFeedDialer builds a dialer against the given stream base URL,
// e.g. "wss://fstream.binance.com/ws".
func NewBinanceFeedDialer(wsURL string) *BinanceFeedDialer {
	return &BinanceFeedDialer{wsURL: strings.TrimRight(wsURL, "/")}
}

func (d *BinanceFeedDialer) Exchange() string { return "binance" }

// Dial connects to <base>/<symbol>@depth20@100ms.
func (d *BinanceFeedDialer) Dial(ctx context.Context, symbol string) (book.FeedConn, error) {
	u := fmt.Sprintf("%s/%s@depth20@100ms", d.wsURL, strings.ToLower(symbol))
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	ws, _, err := dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("binance feed: connect %s: %w", u, err)
	}
	conn := &binanceFeedConn{ws: ws, symbol: symbol}
	// The server pings; gorilla answers with pongs from inside ReadMessage.
	go func() {
		<-ctx.Done()
		_ = ws.Close()
	}()
	return conn, nil
}

type binanceFeedConn struct {
	ws     *websocket.Conn
	symbol string
}

// binanceDepthMessage is the partial-depth stream payload. EventType must
// have its own field: without it encoding/json matches the "e" key
// case-insensitively onto "E" and rejects the message.
type binanceDepthMessage struct {
	EventType string     `json:"e"`
	EventTime int64      `json:"E"`
	Bids      [][]string `json:"b"`
	Asks      [][]string `json:"a"`
}

func (c *binanceFeedConn) ReadDelta(ctx context.Context) (domain.BookDelta, error) {
	if err := ctx.Err(); err != nil {
		return domain.BookDelta{}, err
	}
	_ = c.ws.SetReadDeadline(time.Now().Add(feedReadWait))
	_, raw, err := c.ws.ReadMessage()
	if err != nil {
		return domain.BookDelta{}, fmt.Errorf("binance feed: read: %w", err)
	}
	return decodeBinanceDepth(raw, c.symbol)
}

func (c *binanceFeedConn) Close() error { return c.ws.Close() }

func decodeBinanceDepth(raw []byte, symbol string) (domain.BookDelta, error) {
	var msg binanceDepthMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return domain.BookDelta{}, fmt.Errorf("binance feed: decode: %w", err)
	}
	return domain.BookDelta{
		Symbol:    symbol,
		Bids:      parseStringLevels(msg.Bids),
		Asks:      parseStringLevels(msg.Asks),
		Snapshot:  true,
		Timestamp: time.UnixMilli(msg.EventTime),
	}, nil
}

// parseStringLevels converts [["price","size"], ...] pairs, skipping
// malformed entries.
func parseStringLevels(raw [][]string) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(raw))
	for _, pair := range raw {
		if len(pair) < 2 {
			continue
		}
		price, err1 := strconv.ParseFloat(pair[0], 64)
		size, err2 := strconv.ParseFloat(pair[1], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, domain.PriceLevel{Price: price, Size: size})
	}
	return out
}
