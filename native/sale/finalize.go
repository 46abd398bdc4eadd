package sale

import (
	"math/big"

	"tokensale/core/events"
	"tokensale/core/types"
	"tokensale/native/continuous"
	"tokensale/native/token"
)

// Finalize closes the auction. The owner may finalize at any time; anyone
// else only once EndBlock is reached. Within one ledger update it mints the
// foundation share to the wallet, creates the allocator sized from the
// resulting supply and hands ledger ownership to it. Nothing changes when any
// step fails.
func (e *Engine) Finalize(caller [20]byte, now types.BlockTime) (*Finalization, error) {
	if e.currentStage() != stageAuction {
		return nil, ErrAlreadyFinalized
	}
	if caller != e.owner && now.Height < e.params.EndBlock {
		return nil, ErrTooEarly
	}

	share := e.params.FoundationShare(e.tokensSold)
	allocatorAddr := e.AllocatorAddress()
	var (
		allocator *continuous.Engine
		supply    *big.Int
		issuance  *big.Int
		record    Finalization
	)
	err := e.ledger.Update(func(w token.Writer) error {
		paused, err := w.Paused()
		if err != nil {
			return err
		}
		if paused {
			if err := w.Unpause(e.self); err != nil {
				return err
			}
		}
		if share.Sign() > 0 {
			if err := w.Mint(e.self, e.wallet, share); err != nil {
				return err
			}
		}
		supply, err = w.TotalSupply()
		if err != nil {
			return err
		}
		issuance = e.params.IssuancePerBucket(supply)
		allocator, err = continuous.NewEngine(continuous.Config{
			Self:          allocatorAddr,
			Owner:         e.self,
			Wallet:        e.wallet,
			Rate:          e.params.ContinuousRate,
			Capacity:      issuance,
			WindowSeconds: e.params.BucketSeconds,
		}, e.ledger)
		if err != nil {
			return err
		}
		if e.params.PauseAfterFinalize {
			if err := w.Pause(e.self); err != nil {
				return err
			}
		}
		if err := w.TransferOwnership(e.self, allocatorAddr); err != nil {
			return err
		}
		if err := allocator.WriteState(w); err != nil {
			return err
		}
		record = Finalization{
			Caller:          caller,
			Height:          now.Height,
			TokensSold:      new(big.Int).Set(e.tokensSold),
			FoundationShare: share,
			TotalSupply:     supply,
			IssuanceRate:    issuance,
			Allocator:       allocatorAddr,
		}
		state := e.snapshot()
		state.Finalized = true
		state.Finalization = record.Clone()
		return w.PutRecord(stateKey(e.self), state)
	})
	if err != nil {
		return nil, err
	}

	allocator.SetEmitter(e.emitter)
	e.allocator = allocator
	e.finalization = &record
	e.emitter.Emit(events.SaleFinalized{
		Caller:          caller,
		Wallet:          e.wallet,
		TokensSold:      e.finalization.TokensSold,
		FoundationShare: share,
		TotalSupply:     supply,
		IssuanceRate:    issuance,
		Allocator:       allocatorAddr,
		Height:          now.Height,
	})
	out := record.Clone()
	return &out, nil
}
