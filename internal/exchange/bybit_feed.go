package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/hedgebot/internal/book"
	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// bybitPingPeriod keeps the v5 public stream alive; the server drops
// connections silent for more than 30 seconds.
const bybitPingPeriod = 20 * time.Second

// BybitFeedDialer opens orderbook.50 streams on the Bybit v5 public linear
// endpoint. The stream sends one full snapshot followed by deltas; the
// replica does the merging.
type BybitFeedDialer struct {
	wsURL string
}

// NewBybitFeedDialer builds a dialer against the given public stream URL,
// e.g. "wss://stream.bybit.com/v5/public/linear".
func NewBybitFeedDialer(wsURL string) *BybitFeedDialer {
	return &BybitFeedDialer{wsURL: wsURL}
}

func (d *BybitFeedDialer) Exchange() string { return "bybit" }

// Dial connects and subscribes to orderbook.50.<symbol>.
func (d *BybitFeedDialer) Dial(ctx context.Context, symbol string) (book.FeedConn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	ws, _, err := dialer.DialContext(ctx, d.wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("bybit feed: connect %s: %w", d.wsURL, err)
	}

	sub := map[string]any{
		"op":   "subscribe",
		"args": []string{fmt.Sprintf("orderbook.50.%s", symbol)},
	}
	if err := ws.WriteJSON(sub); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("bybit feed: subscribe: %w", err)
	}

	conn := &bybitFeedConn{ws: ws, symbol: symbol, done: make(chan struct{})}
	go conn.pingLoop(ctx)
	go func() {
		<-ctx.Done()
		_ = ws.Close()
	}()
	return conn, nil
}

type bybitFeedConn struct {
	ws     *websocket.Conn
	symbol string
	done   chan struct{}
}

// bybitBookMessage is the orderbook.50 payload; non-topic frames (op acks,
// pongs) leave Topic empty.
type bybitBookMessage struct {
	Topic string `json:"topic"`
	Type  string `json:"type"`
	TS    int64  `json:"ts"`
	Data  struct {
		Bids [][]string `json:"b"`
		Asks [][]string `json:"a"`
	} `json:"data"`
}

func (c *bybitFeedConn) ReadDelta(ctx context.Context) (domain.BookDelta, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.BookDelta{}, err
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(feedReadWait))
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return domain.BookDelta{}, fmt.Errorf("bybit feed: read: %w", err)
		}
		delta, ok, err := decodeBybitBook(raw, c.symbol)
		if err != nil {
			return domain.BookDelta{}, err
		}
		if !ok {
			// Subscription ack or pong; keep reading.
			continue
		}
		return delta, nil
	}
}

func (c *bybitFeedConn) Close() error {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	return c.ws.Close()
}

func (c *bybitFeedConn) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(bybitPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.ws.WriteJSON(map[string]string{"op": "ping"}); err != nil {
				return
			}
		}
	}
}

func decodeBybitBook(raw []byte, symbol string) (domain.BookDelta, bool, error) {
	var msg bybitBookMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return domain.BookDelta{}, false, fmt.Errorf("bybit feed: decode: %w", err)
	}
	if msg.Topic == "" {
		return domain.BookDelta{}, false, nil
	}
	return domain.BookDelta{
		Symbol:    symbol,
		Bids:      parseStringLevels(msg.Data.Bids),
		Asks:      parseStringLevels(msg.Data.Asks),
		Snapshot:  msg.Type == "snapshot",
		Timestamp: time.UnixMilli(msg.TS),
	}, true, nil
}
