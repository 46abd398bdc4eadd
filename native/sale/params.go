package sale

import (
	"fmt"
	"math/big"
)

const (
	// BasisPoints is the denominator for every *Bps parameter.
	BasisPoints uint64 = 10_000

	DefaultFoundationShareBps uint64 = 6_000
	DefaultAnnualIssuanceBps  uint64 = 800
	DefaultBucketSeconds      uint64 = 43_200
	DefaultSecondsPerYear     uint64 = 31_536_000
)

// Params captures the immutable sale configuration.
type Params struct {
	// StartBlock and EndBlock bound the auction window [StartBlock, EndBlock).
	StartBlock uint64
	EndBlock   uint64
	// StartRate and EndRate are the tokens granted per unit of value at the
	// window edges; the price moves linearly between them.
	StartRate *big.Int
	EndRate   *big.Int
	// PreferentialRate applies to whitelisted buyers without an override.
	PreferentialRate *big.Int
	// Cap bounds the total value raised during the auction.
	Cap *big.Int
	// FoundationShareBps is the foundation's share of the post-finalize
	// supply; the remainder is what the auction sold. Zero means no share.
	FoundationShareBps uint64
	AnnualIssuanceBps  uint64
	BucketSeconds      uint64
	SecondsPerYear     uint64
	// ContinuousRate seeds the allocator; StartRate when unset.
	ContinuousRate *big.Int
	// PauseAfterFinalize leaves the ledger paused once the allocator takes
	// over, requiring an explicit UnpauseToken.
	PauseAfterFinalize bool
}

// WithDefaults fills zero-valued tunables with their defaults.
// FoundationShareBps is left alone since zero is a valid share; the config
// layer seeds DefaultFoundationShareBps.
func (p Params) WithDefaults() Params {
	out := p.Clone()
	if out.AnnualIssuanceBps == 0 {
		out.AnnualIssuanceBps = DefaultAnnualIssuanceBps
	}
	if out.BucketSeconds == 0 {
		out.BucketSeconds = DefaultBucketSeconds
	}
	if out.SecondsPerYear == 0 {
		out.SecondsPerYear = DefaultSecondsPerYear
	}
	if out.ContinuousRate == nil && out.StartRate != nil {
		out.ContinuousRate = new(big.Int).Set(out.StartRate)
	}
	return out
}

// Clone returns a deep copy of the parameters.
func (p Params) Clone() Params {
	out := p
	out.StartRate = cloneBig(p.StartRate)
	out.EndRate = cloneBig(p.EndRate)
	out.PreferentialRate = cloneBig(p.PreferentialRate)
	out.Cap = cloneBig(p.Cap)
	out.ContinuousRate = cloneBig(p.ContinuousRate)
	return out
}

// Validate ensures the parameters describe a usable sale.
func (p Params) Validate() error {
	if p.StartBlock >= p.EndBlock {
		return fmt.Errorf("%w: start block %d must precede end block %d", ErrInvalidParams, p.StartBlock, p.EndBlock)
	}
	if !positive(p.StartRate) || !positive(p.EndRate) {
		return fmt.Errorf("%w: curve rates must be positive", ErrInvalidParams)
	}
	if !positive(p.PreferentialRate) {
		return fmt.Errorf("%w: preferential rate must be positive", ErrInvalidParams)
	}
	if !positive(p.Cap) {
		return fmt.Errorf("%w: cap must be positive", ErrInvalidParams)
	}
	if p.FoundationShareBps >= BasisPoints {
		return fmt.Errorf("%w: foundation share %d bps must be below %d", ErrInvalidParams, p.FoundationShareBps, BasisPoints)
	}
	if p.AnnualIssuanceBps > BasisPoints {
		return fmt.Errorf("%w: annual issuance %d bps exceeds %d", ErrInvalidParams, p.AnnualIssuanceBps, BasisPoints)
	}
	if p.BucketSeconds == 0 || p.SecondsPerYear == 0 {
		return fmt.Errorf("%w: bucket and year lengths must be positive", ErrInvalidParams)
	}
	if p.ContinuousRate != nil && p.ContinuousRate.Sign() < 0 {
		return fmt.Errorf("%w: continuous rate must not be negative", ErrInvalidParams)
	}
	return nil
}

// FoundationShare returns the tokens minted to the wallet at finalization so
// that the foundation holds FoundationShareBps of the resulting supply.
func (p Params) FoundationShare(tokensSold *big.Int) *big.Int {
	if tokensSold == nil || tokensSold.Sign() <= 0 || p.FoundationShareBps == 0 {
		return big.NewInt(0)
	}
	share := new(big.Int).Mul(tokensSold, new(big.Int).SetUint64(p.FoundationShareBps))
	return share.Quo(share, new(big.Int).SetUint64(BasisPoints-p.FoundationShareBps))
}

// IssuancePerBucket returns floor(totalSupply * AnnualIssuanceBps * BucketSeconds /
// (BasisPoints * SecondsPerYear)).
func (p Params) IssuancePerBucket(totalSupply *big.Int) *big.Int {
	if totalSupply == nil || totalSupply.Sign() <= 0 {
		return big.NewInt(0)
	}
	num := new(big.Int).Mul(totalSupply, new(big.Int).SetUint64(p.AnnualIssuanceBps))
	num.Mul(num, new(big.Int).SetUint64(p.BucketSeconds))
	den := new(big.Int).Mul(new(big.Int).SetUint64(BasisPoints), new(big.Int).SetUint64(p.SecondsPerYear))
	return num.Quo(num, den)
}

func positive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
