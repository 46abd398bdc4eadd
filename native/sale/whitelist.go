package sale

import "math/big"

// Whitelist records addresses allowed to buy at preferential prices. Entries
// are never removed; an override rate may be set once per address and only
// before the auction opens.
type Whitelist struct {
	startBlock uint64
	overrides  map[[20]byte]*big.Int
	index      map[[20]byte]uint64
	members    [][20]byte
}

// NewWhitelist returns an empty registry whose overrides lock at startBlock.
func NewWhitelist(startBlock uint64) *Whitelist {
	return &Whitelist{
		startBlock: startBlock,
		overrides:  make(map[[20]byte]*big.Int),
		index:      make(map[[20]byte]uint64),
	}
}

// Add registers addr and reports whether it was newly added.
func (w *Whitelist) Add(addr [20]byte) bool {
	if _, ok := w.overrides[addr]; ok {
		return false
	}
	w.overrides[addr] = nil
	w.index[addr] = uint64(len(w.members))
	w.members = append(w.members, addr)
	return true
}

func (w *Whitelist) IsWhitelisted(addr [20]byte) bool {
	_, ok := w.overrides[addr]
	return ok
}

// IndexOf returns the registration position of addr.
func (w *Whitelist) IndexOf(addr [20]byte) (uint64, bool) {
	idx, ok := w.index[addr]
	return idx, ok
}

// OverrideRateOf returns the buyer-specific rate, if one was set.
func (w *Whitelist) OverrideRateOf(addr [20]byte) (*big.Int, bool) {
	rate := w.overrides[addr]
	if rate == nil {
		return nil, false
	}
	return new(big.Int).Set(rate), true
}

// CheckOverrideRate reports whether SetOverrideRate would accept the call
// without changing anything.
func (w *Whitelist) CheckOverrideRate(addr [20]byte, rate *big.Int, height uint64) error {
	existing, ok := w.overrides[addr]
	if !ok {
		return ErrNotWhitelisted
	}
	if height >= w.startBlock {
		return ErrWindowAlreadyOpen
	}
	if existing != nil {
		return ErrRateAlreadySet
	}
	if !positive(rate) {
		return ErrInvalidRate
	}
	return nil
}

// SetOverrideRate assigns a buyer-specific rate evaluated at height.
func (w *Whitelist) SetOverrideRate(addr [20]byte, rate *big.Int, height uint64) error {
	if err := w.CheckOverrideRate(addr, rate, height); err != nil {
		return err
	}
	w.overrides[addr] = new(big.Int).Set(rate)
	return nil
}

// restore re-registers a persisted entry. The start-block lock does not apply.
func (w *Whitelist) restore(addr [20]byte, rate *big.Int) {
	w.Add(addr)
	if positive(rate) {
		w.overrides[addr] = new(big.Int).Set(rate)
	}
}

// Members lists whitelisted addresses in registration order.
func (w *Whitelist) Members() [][20]byte {
	return append([][20]byte(nil), w.members...)
}

func (w *Whitelist) Len() int { return len(w.members) }
