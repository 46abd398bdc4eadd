package sale

import (
	"math/big"

	"tokensale/native/token"
)

// Phase is the externally observable lifecycle position of the sale.
type Phase uint8

const (
	PhasePreSale Phase = iota
	PhaseActive
	PhaseEnded
	PhaseFinalized
	PhaseContinuousActive
)

func (p Phase) String() string {
	switch p {
	case PhasePreSale:
		return "presale"
	case PhaseActive:
		return "active"
	case PhaseEnded:
		return "ended"
	case PhaseFinalized:
		return "finalized"
	case PhaseContinuousActive:
		return "continuous"
	default:
		return "unknown"
	}
}

// stage is the height-independent part of the lifecycle, derived from the
// finalization record and the allocator status. PreSale, Active and Ended are
// all stageAuction and are told apart by block height.
type stage uint8

const (
	stageAuction stage = iota
	stageFinalized
	stageContinuous
)

// Ledger is the token ledger the sale mints through.
type Ledger interface {
	Update(fn func(token.Writer) error) error
	TotalSupply() (*big.Int, error)
	Record(key []byte, out interface{}) (bool, error)
}

// Config seeds a new sale controller.
type Config struct {
	// Self is the controller's address; it must own the ledger until
	// finalization hands ownership to the allocator.
	Self   [20]byte
	Owner  [20]byte
	Wallet [20]byte
	Params Params
}

// Purchase describes a settled purchase in either phase.
type Purchase struct {
	Phase       string
	Purchaser   [20]byte
	Beneficiary [20]byte
	Value       *big.Int
	Tokens      *big.Int
	Rate        *big.Int
}

// Finalization is written once when the auction closes.
type Finalization struct {
	Caller          [20]byte
	Height          uint64
	TokensSold      *big.Int
	FoundationShare *big.Int
	TotalSupply     *big.Int
	IssuanceRate    *big.Int
	Allocator       [20]byte
}

// Clone returns a deep copy of the record.
func (f Finalization) Clone() Finalization {
	out := f
	out.TokensSold = cloneBig(f.TokensSold)
	out.FoundationShare = cloneBig(f.FoundationShare)
	out.TotalSupply = cloneBig(f.TotalSupply)
	out.IssuanceRate = cloneBig(f.IssuanceRate)
	return out
}
