package sale

import "errors"

var (
	ErrSaleNotActive     = errors.New("sale: not active")
	ErrCapExceeded       = errors.New("sale: cap exceeded")
	ErrAlreadyFinalized  = errors.New("sale: already finalized")
	ErrTooEarly          = errors.New("sale: auction has not ended")
	ErrNotFinalized      = errors.New("sale: not finalized")
	ErrNotWhitelisted    = errors.New("sale: address not whitelisted")
	ErrWindowAlreadyOpen = errors.New("sale: auction window already open")
	ErrRateAlreadySet    = errors.New("sale: preferential rate already set")
	ErrInvalidValue      = errors.New("sale: contribution must be positive")
	ErrInvalidRate       = errors.New("sale: rate must be positive")
	ErrInvalidAddress    = errors.New("sale: address must not be zero")
	ErrInvalidParams     = errors.New("sale: invalid parameters")

	errNilLedger = errors.New("sale: ledger not configured")
)
