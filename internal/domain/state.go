package domain

import "time"

// ConnectionState is the lifecycle state of one order-book replica's feed.
type ConnectionState int

const (
	ConnConnecting ConnectionState = iota
	ConnConnected
	ConnDegraded
	ConnReconnecting
	ConnClosed
)

// String returns the lowercase state name used in logs and status reports.
func (s ConnectionState) String() string {
	switch s {
	case ConnConnecting:
		return "connecting"
	case ConnConnected:
		return "connected"
	case ConnDegraded:
		return "degraded"
	case ConnReconnecting:
		return "reconnecting"
	case ConnClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON status reports.
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Usable reports whether snapshots produced under this state may be consumed
// downstream. Reconnecting and Closed mean "no usable data", not merely old
// data.
func (s ConnectionState) Usable() bool {
	return s == ConnConnected || s == ConnDegraded
}

// ConnStatus is a point-in-time view of a replica's connection, exposed
// through the engine status report.
type ConnStatus struct {
	Exchange         string          `json:"exchange"`
	Symbol           string          `json:"symbol"`
	State            ConnectionState `json:"state"`
	MissedHeartbeats int             `json:"missed_heartbeats"`
	ReconnectAttempt int             `json:"reconnect_attempt"`
	NextRetryAt      time.Time       `json:"next_retry_at"`
	LastMessageAt    time.Time       `json:"last_message_at"`
}

// ExecutionState is the hedge engine's trade-execution state. Only one
// execution may be non-Idle at a time across the engine's lifetime.
type ExecutionState int

const (
	ExecIdle ExecutionState = iota
	ExecEvaluating
	ExecAwaitingLeg1
	ExecAwaitingLeg2
	ExecBothFilled
	ExecPartialFailureUnwinding
	ExecFailed
)

// String returns the state name used in logs and status reports.
func (s ExecutionState) String() string {
	switch s {
	case ExecIdle:
		return "idle"
	case ExecEvaluating:
		return "evaluating"
	case ExecAwaitingLeg1:
		return "awaiting_leg1"
	case ExecAwaitingLeg2:
		return "awaiting_leg2"
	case ExecBothFilled:
		return "both_filled"
	case ExecPartialFailureUnwinding:
		return "partial_failure_unwinding"
	case ExecFailed:
		return "failed"
	default:
		return "unknown"
	}
}
