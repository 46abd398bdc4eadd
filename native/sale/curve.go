package sale

import (
	"fmt"
	"math/big"
)

// RateCurve moves the purchase rate linearly from StartRate at StartBlock to
// EndRate at EndBlock.
type RateCurve struct {
	StartBlock uint64
	EndBlock   uint64
	StartRate  *big.Int
	EndRate    *big.Int
}

// NewRateCurve validates and copies the curve endpoints.
func NewRateCurve(startBlock, endBlock uint64, startRate, endRate *big.Int) (RateCurve, error) {
	if startBlock >= endBlock {
		return RateCurve{}, fmt.Errorf("%w: empty curve window [%d, %d)", ErrInvalidParams, startBlock, endBlock)
	}
	if !positive(startRate) || !positive(endRate) {
		return RateCurve{}, fmt.Errorf("%w: curve rates must be positive", ErrInvalidParams)
	}
	return RateCurve{
		StartBlock: startBlock,
		EndBlock:   endBlock,
		StartRate:  new(big.Int).Set(startRate),
		EndRate:    new(big.Int).Set(endRate),
	}, nil
}

// PriceAt returns the rate at height. Heights outside the window are clamped
// to the nearest endpoint.
//
// The step is floored toward negative infinity, so a falling curve leaves its
// start rate on the first block after StartBlock and both endpoints are hit
// exactly.
func (c RateCurve) PriceAt(height uint64) *big.Int {
	if height <= c.StartBlock {
		return new(big.Int).Set(c.StartRate)
	}
	if height >= c.EndBlock {
		return new(big.Int).Set(c.EndRate)
	}
	elapsed := new(big.Int).SetUint64(height - c.StartBlock)
	span := new(big.Int).SetUint64(c.EndBlock - c.StartBlock)
	step := new(big.Int).Sub(c.EndRate, c.StartRate)
	step.Mul(step, elapsed)
	// Euclidean division by a positive divisor is floor division.
	step.Div(step, span)
	return step.Add(step, c.StartRate)
}
