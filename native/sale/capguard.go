package sale

import "math/big"

// CapGuard tracks the value raised against a hard cap. Admission is split into
// Check and Commit so callers can apply the raise only after the matching mint
// succeeded.
type CapGuard struct {
	cap    *big.Int
	raised *big.Int
}

func NewCapGuard(limit *big.Int) *CapGuard {
	return &CapGuard{cap: new(big.Int).Set(limit), raised: big.NewInt(0)}
}

// Check returns the total raised after accepting value, or ErrCapExceeded.
func (g *CapGuard) Check(value *big.Int) (*big.Int, error) {
	next := new(big.Int).Add(g.raised, value)
	if next.Cmp(g.cap) > 0 {
		return nil, ErrCapExceeded
	}
	return next, nil
}

// Commit records a total previously returned by Check.
func (g *CapGuard) Commit(next *big.Int) {
	g.raised = new(big.Int).Set(next)
}

func (g *CapGuard) Cap() *big.Int    { return new(big.Int).Set(g.cap) }
func (g *CapGuard) Raised() *big.Int { return new(big.Int).Set(g.raised) }

// Remaining returns the value that can still be accepted.
func (g *CapGuard) Remaining() *big.Int {
	return new(big.Int).Sub(g.cap, g.raised)
}
