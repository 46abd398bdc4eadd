package token

import "errors"

var (
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	ErrPaused              = errors.New("token: paused")
	ErrInvalidAmount       = errors.New("token: amount must be positive")
	ErrBalanceOverflow     = errors.New("token: balance overflow")
	ErrSymbolMismatch      = errors.New("token: stored symbol does not match")
	ErrSymbolRequired      = errors.New("token: symbol required")
	ErrZeroOwner           = errors.New("token: owner must not be the zero address")
)
