package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrProfileNotFound    = errors.New("profile not found")
	ErrOrderNotFound      = errors.New("order not found")
	ErrLastProfile        = errors.New("cannot delete the last profile")
	ErrMaxOpenPositions   = errors.New("max open positions reached")
	ErrLockHeld           = errors.New("lock already held")
)
