package sale

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"tokensale/native/continuous"
	"tokensale/native/token"
)

var errAllocatorMismatch = errors.New("sale: persisted allocator does not match the controller")

var (
	statePrefix  = []byte("sale/state/")
	memberPrefix = []byte("sale/whitelist/")
)

func stateKey(self [20]byte) []byte {
	buf := make([]byte, len(statePrefix)+len(self))
	copy(buf, statePrefix)
	copy(buf[len(statePrefix):], self[:])
	return ethcrypto.Keccak256(buf)
}

func memberKey(self [20]byte, index uint64) []byte {
	buf := make([]byte, len(memberPrefix)+len(self)+8)
	copy(buf, memberPrefix)
	copy(buf[len(memberPrefix):], self[:])
	binary.BigEndian.PutUint64(buf[len(memberPrefix)+len(self):], index)
	return ethcrypto.Keccak256(buf)
}

// engineState is the persisted controller record. Whitelist entries live
// under their own keys so registering a buyer writes one entry, not the list.
type engineState struct {
	Owner        [20]byte
	Wallet       [20]byte
	Raised       *big.Int
	TokensSold   *big.Int
	Members      uint64
	Finalized    bool
	Finalization Finalization
}

// memberRecord is one whitelist entry; a zero Rate means no override.
type memberRecord struct {
	Address [20]byte
	Rate    *big.Int
}

func (e *Engine) snapshot() *engineState {
	state := &engineState{
		Owner:      e.owner,
		Wallet:     e.wallet,
		Raised:     e.capGuard.Raised(),
		TokensSold: new(big.Int).Set(e.tokensSold),
		Members:    uint64(e.whitelist.Len()),
	}
	if e.finalization != nil {
		state.Finalized = true
		state.Finalization = e.finalization.Clone()
	}
	return state
}

// persist writes state, together with any ledger writes staged by fn, in one
// ledger update.
func (e *Engine) persist(state *engineState, fn func(token.Writer) error) error {
	return e.ledger.Update(func(w token.Writer) error {
		if fn != nil {
			if err := fn(w); err != nil {
				return err
			}
		}
		return w.PutRecord(stateKey(e.self), state)
	})
}

func (e *Engine) putMember(w token.Writer, index uint64, addr [20]byte, rate *big.Int) error {
	record := &memberRecord{Address: addr, Rate: big.NewInt(0)}
	if rate != nil {
		record.Rate = new(big.Int).Set(rate)
	}
	return w.PutRecord(memberKey(e.self, index), record)
}

// load restores a previously persisted controller. It reports false when the
// ledger holds no record for this controller.
func (e *Engine) load() (bool, error) {
	var state engineState
	found, err := e.ledger.Record(stateKey(e.self), &state)
	if err != nil || !found {
		return false, err
	}
	e.owner = state.Owner
	e.wallet = state.Wallet
	e.capGuard.Commit(state.Raised)
	e.tokensSold = new(big.Int).Set(state.TokensSold)
	for i := uint64(0); i < state.Members; i++ {
		var member memberRecord
		ok, err := e.ledger.Record(memberKey(e.self, i), &member)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, fmt.Errorf("sale: whitelist entry %d missing", i)
		}
		e.whitelist.restore(member.Address, member.Rate)
	}
	if !state.Finalized {
		return true, nil
	}
	if state.Finalization.Allocator != e.AllocatorAddress() {
		return false, errAllocatorMismatch
	}
	allocator, err := continuous.Load(continuous.Config{
		Self:   state.Finalization.Allocator,
		Owner:  e.self,
		Wallet: e.wallet,
	}, e.ledger)
	if err != nil {
		return false, err
	}
	allocator.SetEmitter(e.emitter)
	fin := state.Finalization.Clone()
	e.finalization = &fin
	e.allocator = allocator
	return true, nil
}
