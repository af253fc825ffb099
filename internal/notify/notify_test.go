package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

type memSender struct {
	name string
	err  error

	mu   sync.Mutex
	sent []string
}

func (m *memSender) Send(ctx context.Context, title, message string) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, title)
	return nil
}

func (m *memSender) Name() string { return m.name }

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifierFiltersByEventType(t *testing.T) {
	s := &memSender{name: "mem"}
	n := NewNotifier([]Sender{s}, []string{"trade_filled"}, silentLogger())

	require.NoError(t, n.Notify(context.Background(), "trade_filled", domain.SeverityInfo, "Filled", "ok"))
	require.NoError(t, n.Notify(context.Background(), "engine_started", domain.SeverityInfo, "Started", "ok"))

	assert.Equal(t, []string{"Filled"}, s.sent)
}

func TestNotifierHighSeverityBypassesFilter(t *testing.T) {
	s := &memSender{name: "mem"}
	n := NewNotifier([]Sender{s}, []string{"trade_filled"}, silentLogger())

	require.NoError(t, n.Notify(context.Background(), "partial_failure", domain.SeverityHigh, "Exposure", "unwound"))
	assert.Equal(t, []string{"Exposure"}, s.sent)
}

func TestNotifierEmptyAllowlistPassesEverything(t *testing.T) {
	s := &memSender{name: "mem"}
	n := NewNotifier([]Sender{s}, nil, silentLogger())

	require.NoError(t, n.Notify(context.Background(), "anything", domain.SeverityInfo, "T", "m"))
	assert.Len(t, s.sent, 1)
}

func TestNotifierContinuesPastFailingSender(t *testing.T) {
	bad := &memSender{name: "bad", err: errors.New("down")}
	good := &memSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, silentLogger())

	err := n.Notify(context.Background(), "x", domain.SeverityInfo, "T", "m")
	assert.Error(t, err)
	assert.Len(t, good.sent, 1, "second sender still receives the message")
}

type memStream struct {
	mu     sync.Mutex
	events []domain.OperationalEvent
}

func (m *memStream) Append(ctx context.Context, ev domain.OperationalEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func TestEventBridgeDeliversToStreamAndNotifier(t *testing.T) {
	s := &memSender{name: "mem"}
	stream := &memStream{}
	bridge := NewEventBridge(NewNotifier([]Sender{s}, nil, silentLogger()), stream, silentLogger())

	bridge.Emit(context.Background(), domain.OperationalEvent{
		Type:     domain.EventPartialFailure,
		Severity: domain.SeverityHigh,
		Symbol:   "BTCUSDT",
		Message:  "one-sided fill",
		At:       time.Now(),
	})

	assert.Len(t, stream.events, 1)
	require.Len(t, s.sent, 1)
	assert.Contains(t, s.sent[0], "Partial Failure")
}
