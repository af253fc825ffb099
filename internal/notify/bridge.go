package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// EventBridge adapts the engine's operational-event stream onto the
// notifier and, when configured, a durable event stream. It satisfies
// domain.EventSink so the engine never touches delivery machinery directly.
type EventBridge struct {
	notifier *Notifier
	stream   domain.EventStream // optional
	logger   *slog.Logger
}

// NewEventBridge wires the notifier and an optional durable stream.
func NewEventBridge(notifier *Notifier, stream domain.EventStream, logger *slog.Logger) *EventBridge {
	return &EventBridge{
		notifier: notifier,
		stream:   stream,
		logger:   logger.With(slog.String("component", "event_bridge")),
	}
}

// Emit delivers one operational event. Delivery failures are logged, never
// propagated back into the engine's decision loop.
func (b *EventBridge) Emit(ctx context.Context, ev domain.OperationalEvent) {
	if b.stream != nil {
		if err := b.stream.Append(ctx, ev); err != nil {
			b.logger.ErrorContext(ctx, "event stream append failed",
				slog.String("type", string(ev.Type)),
				slog.Any("error", err))
		}
	}
	if b.notifier == nil {
		return
	}

	title := eventTitle(ev)
	msg := ev.Message
	if ev.Symbol != "" {
		msg = fmt.Sprintf("[%s] %s", ev.Symbol, ev.Message)
	}
	if err := b.notifier.Notify(ctx, string(ev.Type), ev.Severity, title, msg); err != nil {
		b.logger.ErrorContext(ctx, "notification delivery failed",
			slog.String("type", string(ev.Type)),
			slog.Any("error", err))
	}
}

// eventTitle renders "partial_failure" as "Partial Failure", prefixed for
// high-severity events.
func eventTitle(ev domain.OperationalEvent) string {
	words := strings.Split(string(ev.Type), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	title := strings.Join(words, " ")
	if ev.Severity == domain.SeverityHigh {
		return "🚨 " + title
	}
	return title
}
