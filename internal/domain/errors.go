package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrHeartbeatLost = errors.New("heartbeat lost")
	ErrInvalidOrder  = errors.New("invalid order parameters")
	ErrRateLimited   = errors.New("rate limited")
)
