package continuous

import (
	"errors"
	"math/big"

	"tokensale/native/common"
	"tokensale/native/token"
)

var (
	ErrNotStarted     = errors.New("continuous: sale not started")
	ErrAlreadyStarted = errors.New("continuous: sale already started")
	ErrBucketExceeded = common.ErrBucketExceeded
	ErrInvalidValue   = errors.New("continuous: contribution must be positive")
	ErrInvalidRate    = errors.New("continuous: rate must not be negative")

	errNilLedger = errors.New("continuous: ledger not configured")
)

// Status tracks the allocator lifecycle. Transitions only move forward.
type Status uint8

const (
	StatusPending Status = iota
	StatusStarted
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusStarted:
		return "started"
	default:
		return "unknown"
	}
}

// Ledger is the token ledger the allocator mints through. The allocator's own
// address must own the ledger for purchases to succeed.
type Ledger interface {
	Update(fn func(token.Writer) error) error
	Record(key []byte, out interface{}) (bool, error)
}

// Config seeds a new allocator.
type Config struct {
	// Self is the allocator's address and the ledger owner once handed over.
	Self [20]byte
	// Owner administers the allocator; in practice the sale controller.
	Owner  [20]byte
	Wallet [20]byte
	// Rate is the number of tokens granted per unit of value.
	Rate *big.Int
	// Capacity is the number of tokens released per window.
	Capacity *big.Int
	// WindowSeconds is the bucket length in seconds.
	WindowSeconds uint64
}

// Purchase describes a settled continuous-sale purchase.
type Purchase struct {
	Purchaser   [20]byte
	Beneficiary [20]byte
	Value       *big.Int
	Tokens      *big.Int
	Rate        *big.Int
}
