package continuous

import (
	"errors"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"tokensale/native/common"
	"tokensale/native/token"
)

// ErrStateMissing is returned by Load when no allocator was persisted at the
// configured address.
var ErrStateMissing = errors.New("continuous: no persisted allocator state")

var statePrefix = []byte("continuous/state/")

func stateKey(self [20]byte) []byte {
	buf := make([]byte, len(statePrefix)+len(self))
	copy(buf, statePrefix)
	copy(buf[len(statePrefix):], self[:])
	return ethcrypto.Keccak256(buf)
}

// allocatorState is the persisted part of the allocator. The wallet is not
// stored; the controller supplies it on load.
type allocatorState struct {
	Rate        *big.Int
	Status      uint8
	WindowStart uint64
	WindowSize  uint64
	Capacity    *big.Int
	Consumed    *big.Int
}

func newState(rate *big.Int, status Status, bucket common.Bucket) *allocatorState {
	return &allocatorState{
		Rate:        new(big.Int).Set(rate),
		Status:      uint8(status),
		WindowStart: bucket.WindowStart,
		WindowSize:  bucket.WindowSize,
		Capacity:    new(big.Int).Set(bucket.Capacity),
		Consumed:    new(big.Int).Set(bucket.Consumed),
	}
}

// WriteState stages the allocator's current state in w. The controller calls
// it inside the finalize update so the allocator exists exactly when the
// ledger handoff is committed.
func (e *Engine) WriteState(w token.Writer) error {
	return w.PutRecord(stateKey(e.self), newState(e.rate, e.status, e.bucket))
}

// persist commits state, together with any ledger writes staged by fn, in a
// single ledger update.
func (e *Engine) persist(state *allocatorState, fn func(token.Writer) error) error {
	return e.ledger.Update(func(w token.Writer) error {
		if fn != nil {
			if err := fn(w); err != nil {
				return err
			}
		}
		return w.PutRecord(stateKey(e.self), state)
	})
}

// Load rebuilds the allocator persisted at cfg.Self. Rate, status and bucket
// come from storage; cfg supplies the addresses.
func Load(cfg Config, ledger Ledger) (*Engine, error) {
	if ledger == nil {
		return nil, errNilLedger
	}
	var state allocatorState
	found, err := ledger.Record(stateKey(cfg.Self), &state)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrStateMissing
	}
	cfg.Rate = state.Rate
	cfg.Capacity = state.Capacity
	cfg.WindowSeconds = state.WindowSize
	engine, err := NewEngine(cfg, ledger)
	if err != nil {
		return nil, err
	}
	engine.status = Status(state.Status)
	engine.bucket = common.Bucket{
		WindowStart: state.WindowStart,
		WindowSize:  state.WindowSize,
		Capacity:    new(big.Int).Set(state.Capacity),
		Consumed:    new(big.Int).Set(state.Consumed),
	}
	return engine, nil
}
