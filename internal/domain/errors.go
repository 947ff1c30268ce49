package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrRateLimited    = errors.New("rate limited")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrLockHeld       = errors.New("lock already held")
	ErrLockLost       = errors.New("lock no longer held")
	ErrInvalidMint    = errors.New("invalid mint")
	ErrNoPosition     = errors.New("no position for mint")
	ErrPositionExists = errors.New("position already open")
	ErrTradingHalted  = errors.New("trading halted")
	ErrNoPrice        = errors.New("no price available")
	ErrQueueFull      = errors.New("queue full")
	ErrWSDisconnect   = errors.New("websocket disconnected")
)
