package domain

import (
	"context"
	"time"
)

// EventSeverity classifies operational events for routing and filtering.
type EventSeverity string

const (
	SeverityInfo EventSeverity = "info"
	// SeverityHigh events must remain visible even when all other
	// notification traffic is filtered out (partial-failure exposure).
	SeverityHigh EventSeverity = "high"
)

// EventType identifies the kind of operational event the engine emitted.
type EventType string

const (
	EventEngineStarted  EventType = "engine_started"
	EventEngineStopped  EventType = "engine_stopped"
	EventTradeFilled    EventType = "trade_filled"
	EventTradeFailed    EventType = "trade_failed"
	EventPartialFailure EventType = "partial_failure"
	EventNoTradeTimeout EventType = "no_trade_timeout"
)

// OperationalEvent is emitted by the engine core and consumed by the
// surrounding operational layer (notification senders, event streams). The
// core never performs delivery itself.
type OperationalEvent struct {
	Type     EventType
	Severity EventSeverity
	Symbol   string
	Message  string
	At       time.Time
}

// EventSink receives operational events. Implementations must not block the
// engine's decision loop for long; delivery failures are their own concern.
type EventSink interface {
	Emit(ctx context.Context, ev OperationalEvent)
}

// EventStream appends operational events to a durable stream for external
// consumers.
type EventStream interface {
	Append(ctx context.Context, ev OperationalEvent) error
}
